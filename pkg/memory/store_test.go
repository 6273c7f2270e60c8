package memory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndWindow(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Append("c1", NewTurn("user", "hello")))
	require.NoError(t, store.Append("c1", NewTurn("assistant", "hi there")))
	require.NoError(t, store.Append("c1", NewTurn("user", "how are you?")))

	window, err := store.Window("c1", 2)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, "hi there", window[0].Content)
	assert.Equal(t, "how are you?", window[1].Content)

	// Window larger than history returns everything, in order.
	window, err = store.Window("c1", 10)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "hello", window[0].Content)

	length, err := store.Len("c1")
	require.NoError(t, err)
	assert.Equal(t, 3, length)
}

func TestRoundTripThroughDisk(t *testing.T) {
	dir := t.TempDir()

	store := NewStore(dir)
	turn := NewTurn("user", "persist me")
	require.NoError(t, store.Append("c1", turn))

	// A fresh store must load the same turns from disk.
	reloaded := NewStore(dir)
	turns, err := reloaded.All("c1")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, turn.Role, turns[0].Role)
	assert.Equal(t, turn.Content, turns[0].Content)
	assert.True(t, turn.Timestamp.Equal(turns[0].Timestamp))
}

func TestConversationIsolation(t *testing.T) {
	store := NewStore(t.TempDir())

	require.NoError(t, store.Append("alpha", NewTurn("user", "alpha message")))
	require.NoError(t, store.Append("beta", NewTurn("user", "beta message")))

	turns, err := store.All("alpha")
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "alpha message", turns[0].Content)

	length, err := store.Len("beta")
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}

func TestClearIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Append("c1", NewTurn("user", "bye")))
	require.NoError(t, store.Clear("c1"))

	length, err := store.Len("c1")
	require.NoError(t, err)
	assert.Zero(t, length)

	// File is gone.
	_, statErr := os.Stat(filepath.Join(dir, "history_c1.json"))
	assert.True(t, os.IsNotExist(statErr))

	// Clearing again, and clearing an unknown conversation, both succeed.
	require.NoError(t, store.Clear("c1"))
	require.NoError(t, store.Clear("never-existed"))
}

func TestWindowZeroIsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Append("c1", NewTurn("user", "x")))

	window, err := store.Window("c1", 0)
	require.NoError(t, err)
	assert.Empty(t, window)
}

func TestConversationIDSanitizedForFilename(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	require.NoError(t, store.Append("tg_12345", NewTurn("user", "hi")))
	require.NoError(t, store.Append("../escape", NewTurn("user", "nope")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "..")
	}
}

func TestCorruptHistoryFileSurfacesStorageError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "history_c1.json"), []byte("{not json"), 0644))

	store := NewStore(dir)
	_, err := store.All("c1")
	assert.ErrorIs(t, err, ErrStorage)
}

func TestInMemoryStoreSkipsPersistence(t *testing.T) {
	store := NewStore("")
	require.NoError(t, store.Append("c1", NewTurn("user", "ephemeral")))

	length, err := store.Len("c1")
	require.NoError(t, err)
	assert.Equal(t, 1, length)
}
