package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seeker/pkg/config"
	"seeker/pkg/llm"
	"seeker/pkg/memory"
	"seeker/pkg/search"
)

// fakeSearch is a scripted search provider.
type fakeSearch struct {
	results []search.Result
	err     error
	queries []string
}

func (f *fakeSearch) Search(ctx context.Context, query string) ([]search.Result, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testSystemConfig() config.SystemConfig {
	sys := *config.DefaultSystemConfig()
	sys.MaxSearchesPerRun = 2
	sys.MaxIterations = 5
	return sys
}

func newTestController(t *testing.T, client *scriptedClient, provider *fakeSearch) *Controller {
	t.Helper()
	store := memory.NewStore(t.TempDir())
	return newTestControllerWithStore(client, provider, store)
}

func newTestControllerWithStore(client *scriptedClient, provider *fakeSearch, store *memory.Store) *Controller {
	engine := NewEngine(client, 0)
	gateway := search.NewGateway(provider, time.Second)
	return NewController(engine, gateway, store, testSystemConfig(), "")
}

func collect(s *Session) []Event {
	var events []Event
	for ev := range s.Events() {
		events = append(events, ev)
	}
	return events
}

func eventsOfType(events []Event, typ EventType) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRunDirectAnswerEmitsNoSearchEvents(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Final Answer: 2+2 equals 4.",
	}}
	provider := &fakeSearch{}
	ctrl := newTestController(t, client, provider)

	events := collect(ctrl.Open(context.Background(), "c1", "what is 2+2?"))

	require.NotEmpty(t, events)
	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Empty(t, eventsOfType(events, EventSearch))
	assert.Empty(t, provider.queries)

	var answer string
	for _, ev := range eventsOfType(events, EventContent) {
		answer += ev.Content
	}
	assert.Equal(t, "2+2 equals 4.", answer)
}

func TestRunWithTwoSearches(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Thought: need prices\nAction: search_web\nAction Input: bitcoin price",
		"Thought: need volume too\nAction: search_web\nAction Input: bitcoin volume",
		"Final Answer: price is X, volume is Y",
	}}
	provider := &fakeSearch{results: []search.Result{{Title: "BTC", Snippet: "data", URL: "https://x"}}}
	ctrl := newTestController(t, client, provider)

	events := collect(ctrl.Open(context.Background(), "c1", "bitcoin stats"))

	searches := eventsOfType(events, EventSearch)
	require.Len(t, searches, 2)
	assert.Equal(t, "bitcoin price", searches[0].Query)
	assert.Equal(t, 1, searches[0].Count)
	assert.Equal(t, "bitcoin volume", searches[1].Query)
	assert.Equal(t, 2, searches[1].Count)
	assert.Len(t, eventsOfType(events, EventSearchComplete), 2)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	// Each search_complete follows its search.
	var order []EventType
	for _, ev := range events {
		if ev.Type == EventSearch || ev.Type == EventSearchComplete {
			order = append(order, ev.Type)
		}
	}
	assert.Equal(t, []EventType{EventSearch, EventSearchComplete, EventSearch, EventSearchComplete}, order)
}

func TestRunSearchCapForcesAnswer(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Action: search_web\nAction Input: query one",
		"Action: search_web\nAction Input: query two",
		"Action: search_web\nAction Input: query three",
		"Final Answer: best effort from two searches",
	}}
	provider := &fakeSearch{results: []search.Result{{Title: "t", Snippet: "s", URL: "u"}}}
	ctrl := newTestController(t, client, provider)

	events := collect(ctrl.Open(context.Background(), "c1", "exhaustive question"))

	// Third search request hits the cap; the tool never runs again.
	assert.Len(t, provider.queries, 2)
	assert.Len(t, eventsOfType(events, EventSearch), 2)
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	var answer string
	for _, ev := range eventsOfType(events, EventContent) {
		answer += ev.Content
	}
	assert.Equal(t, "best effort from two searches", answer)
}

func TestRunSearchFailureBecomesObservation(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Action: search_web\nAction Input: flaky query",
		"Final Answer: answering from my own knowledge instead",
	}}
	provider := &fakeSearch{err: errors.New("context deadline exceeded")}
	ctrl := newTestController(t, client, provider)

	events := collect(ctrl.Open(context.Background(), "c1", "something current"))

	// Failed search ends the search phase normally, not the run.
	assert.Len(t, eventsOfType(events, EventSearchComplete), 1)
	assert.Empty(t, eventsOfType(events, EventError))
	assert.Equal(t, EventDone, events[len(events)-1].Type)

	// The model saw the failure as an observation.
	require.GreaterOrEqual(t, len(client.lastMsgs), 2)
	last := client.lastMsgs[len(client.lastMsgs)-1]
	assert.Contains(t, last.Content, "search failed")
}

func TestRunIterationCapForcesAnswer(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Thought: hmm",
		"Thought: still thinking",
		"Thought: more thinking",
		"Thought: yet more",
		"Thought: one more",
		"Final Answer: forced conclusion",
	}}
	provider := &fakeSearch{}
	ctrl := newTestController(t, client, provider)

	events := collect(ctrl.Open(context.Background(), "c1", "hard question"))

	assert.Equal(t, EventDone, events[len(events)-1].Type)
	var answer string
	for _, ev := range eventsOfType(events, EventContent) {
		answer += ev.Content
	}
	assert.Equal(t, "forced conclusion", answer)
}

func TestRunEmitsExactlyOneTerminalEvent(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("provider down")}}
	provider := &fakeSearch{}
	ctrl := newTestController(t, client, provider)

	events := collect(ctrl.Open(context.Background(), "c1", "hello"))

	terminals := 0
	for i, ev := range events {
		if ev.Terminal() {
			terminals++
			assert.Equal(t, len(events)-1, i, "terminal event must be last")
		}
	}
	assert.Equal(t, 1, terminals)
	assert.Equal(t, EventError, events[len(events)-1].Type)
}

func TestRunPersistsExchangeAfterDone(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Final Answer: saved answer",
	}}
	store := memory.NewStore(t.TempDir())
	ctrl := newTestControllerWithStore(client, &fakeSearch{}, store)

	collect(ctrl.Open(context.Background(), "conv", "saved question"))

	turns, err := store.All("conv")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "saved question", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, "saved answer", turns[1].Content)
}

func TestRunFailurePersistsNothing(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("boom")}}
	store := memory.NewStore(t.TempDir())
	ctrl := newTestControllerWithStore(client, &fakeSearch{}, store)

	collect(ctrl.Open(context.Background(), "conv", "doomed question"))

	length, err := store.Len("conv")
	require.NoError(t, err)
	assert.Zero(t, length)
}

// stallingClient emits one delta then blocks until cancellation.
type stallingClient struct {
	firstDelta chan struct{}
}

func (s *stallingClient) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		select {
		case ch <- llm.NewTextChunk("Final Answer: partial"):
			close(s.firstDelta)
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return ch, nil
}

func (s *stallingClient) IsTransientError(err error) bool { return false }

func TestCancelledRunPersistsNothing(t *testing.T) {
	client := &stallingClient{firstDelta: make(chan struct{})}
	store := memory.NewStore(t.TempDir())
	engine := NewEngine(client, 0)
	gateway := search.NewGateway(&fakeSearch{}, time.Second)
	ctrl := NewController(engine, gateway, store, testSystemConfig(), "")

	session := ctrl.Open(context.Background(), "conv", "doomed")
	<-client.firstDelta
	session.Cancel()

	for range session.Events() {
	}

	length, err := store.Len("conv")
	require.NoError(t, err)
	assert.Zero(t, length)
}

func TestRunHistoryWindowReachesModel(t *testing.T) {
	store := memory.NewStore(t.TempDir())
	require.NoError(t, store.Append("conv", memory.NewTurn("user", "my name is Ada")))
	require.NoError(t, store.Append("conv", memory.NewTurn("assistant", "Nice to meet you, Ada.")))

	client := &scriptedClient{responses: []string{
		"Final Answer: Your name is Ada.",
	}}
	ctrl := newTestControllerWithStore(client, &fakeSearch{}, store)

	collect(ctrl.Open(context.Background(), "conv", "what is my name?"))

	// system + 2 history turns + new user message
	require.Len(t, client.lastMsgs, 4)
	assert.Equal(t, "system", client.lastMsgs[0].Role)
	assert.Equal(t, "my name is Ada", client.lastMsgs[1].Content)
	assert.Equal(t, "what is my name?", client.lastMsgs[3].Content)
}

func TestQueryReturnsAnswerAndLength(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Final Answer: synchronous reply",
	}}
	ctrl := newTestController(t, client, &fakeSearch{})

	answer, length, err := ctrl.Query(context.Background(), "conv", "hello")
	require.NoError(t, err)
	assert.Equal(t, "synchronous reply", answer)
	assert.Equal(t, 2, length)
}

func TestQuerySurfacesRunError(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("llm down")}}
	ctrl := newTestController(t, client, &fakeSearch{})

	_, _, err := ctrl.Query(context.Background(), "conv", "hello")
	assert.Error(t, err)
}
