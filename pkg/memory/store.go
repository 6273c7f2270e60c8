// Package memory implements the per-conversation turn log backing the
// agent's conversational context. Each conversation is an append-only
// ordered sequence of turns persisted to its own JSON file.
package memory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrStorage wraps persistence I/O failures. Storage errors are surfaced
// to the caller, not retried.
var ErrStorage = errors.New("memory storage failure")

var filenameSafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// Turn is a single persisted message in conversation history.
// Immutable once appended.
type Turn struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTurn builds a Turn stamped with the current time, truncated to
// second precision so the persisted form round-trips exactly.
func NewTurn(role, content string) Turn {
	return Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().Truncate(time.Second),
	}
}

// historyFile is the on-disk layout of one conversation.
type historyFile struct {
	Timestamp string `json:"timestamp"` // last save time
	Messages  []Turn `json:"messages"`
}

type conversation struct {
	mu    sync.Mutex
	turns []Turn
}

// Store manages multiple conversation histories isolated by conversation ID.
// Appends within one conversation are serialized by a per-conversation
// mutex; different conversations do not contend.
type Store struct {
	conversations map[string]*conversation
	storage       string
	mu            sync.RWMutex
}

// NewStore initializes a Store with a specific storage directory.
// An empty storage directory disables persistence (in-memory only).
func NewStore(storage string) *Store {
	if storage != "" {
		os.MkdirAll(storage, 0755)
	}
	return &Store{
		conversations: make(map[string]*conversation),
		storage:       storage,
	}
}

// get retrieves an existing conversation or lazily loads it from disk.
func (s *Store) get(conversationID string) (*conversation, error) {
	s.mu.RLock()
	c, ok := s.conversations[conversationID]
	s.mu.RUnlock()

	if ok {
		return c, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double check under lock
	if c, ok = s.conversations[conversationID]; ok {
		return c, nil
	}

	c = &conversation{}
	if s.storage != "" {
		if err := s.load(conversationID, c); err != nil {
			return nil, err
		}
	}

	s.conversations[conversationID] = c
	return c, nil
}

func (s *Store) historyPath(conversationID string) string {
	safeID := filenameSafeRegex.ReplaceAllString(conversationID, "_")
	return filepath.Join(s.storage, fmt.Sprintf("history_%s.json", safeID))
}

func (s *Store) load(conversationID string, c *conversation) error {
	data, err := os.ReadFile(s.historyPath(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil // fresh conversation
		}
		return fmt.Errorf("%w: read %s: %v", ErrStorage, conversationID, err)
	}

	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrStorage, conversationID, err)
	}
	c.turns = file.Messages
	return nil
}

// save writes the conversation file and syncs it to stable storage, so a
// crash after Append returns cannot lose the most recent exchange.
func (s *Store) save(conversationID string, turns []Turn) error {
	file := historyFile{
		Timestamp: time.Now().Format(time.RFC3339),
		Messages:  turns,
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrStorage, conversationID, err)
	}

	f, err := os.OpenFile(s.historyPath(conversationID), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrStorage, conversationID, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, conversationID, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrStorage, conversationID, err)
	}
	return nil
}

// Append adds a turn to the conversation and durably flushes it before
// acknowledging.
func (s *Store) Append(conversationID string, turn Turn) error {
	c, err := s.get(conversationID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, turn)

	if s.storage == "" {
		return nil
	}
	if err := s.save(conversationID, c.turns); err != nil {
		// Roll back the in-memory append so memory and disk stay consistent.
		c.turns = c.turns[:len(c.turns)-1]
		return err
	}
	return nil
}

// Window returns the last k turns in conversational order, or fewer if
// the history is shorter. k <= 0 yields an empty window.
func (s *Store) Window(conversationID string, k int) ([]Turn, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if k <= 0 {
		return nil, nil
	}
	start := len(c.turns) - k
	if start < 0 {
		start = 0
	}

	window := make([]Turn, len(c.turns)-start)
	copy(window, c.turns[start:])
	return window, nil
}

// All returns every turn of the conversation in order.
func (s *Store) All(conversationID string) ([]Turn, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return turns, nil
}

// Len reports the total number of turns in the conversation.
func (s *Store) Len(conversationID string) (int, error) {
	c, err := s.get(conversationID)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns), nil
}

// Clear empties the conversation history. Idempotent: clearing an empty
// or unknown conversation succeeds.
func (s *Store) Clear(conversationID string) error {
	c, err := s.get(conversationID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = nil

	if s.storage == "" {
		return nil
	}
	if err := os.Remove(s.historyPath(conversationID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %s: %v", ErrStorage, conversationID, err)
	}
	return nil
}
