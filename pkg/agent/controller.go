package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"seeker/pkg/config"
	"seeker/pkg/llm"
	"seeker/pkg/memory"
	"seeker/pkg/monitor"
	"seeker/pkg/search"
)

// Controller drives the reason/act loop: it owns the engine, the search
// gateway and the memory store, and exposes each user message as a run
// that produces an ordered event stream.
type Controller struct {
	engine  *Engine
	gateway *search.Gateway
	store   *memory.Store
	system  config.SystemConfig
	persona string
}

// NewController wires the loop's collaborators together. persona is the
// configured system prompt; empty selects the default.
func NewController(engine *Engine, gateway *search.Gateway, store *memory.Store, system config.SystemConfig, persona string) *Controller {
	return &Controller{
		engine:  engine,
		gateway: gateway,
		store:   store,
		system:  system,
		persona: persona,
	}
}

// Session is one in-flight run. Events yields the ordered event stream
// and is closed after the terminal event. Cancel aborts the run; a
// cancelled run persists nothing.
type Session struct {
	events <-chan Event
	cancel context.CancelFunc
}

func (s *Session) Events() <-chan Event { return s.events }
func (s *Session) Cancel()              { s.cancel() }

// Open starts a run for one user message. The returned session's event
// channel always ends with exactly one terminal event.
func (c *Controller) Open(ctx context.Context, conversationID, message string) *Session {
	if strings.TrimSpace(conversationID) == "" {
		conversationID = "default"
	}
	runCtx, cancel := context.WithCancel(ctx)
	runCtx = context.WithValue(runCtx, monitor.RunIDContextKey, uuid.NewString()[:8])

	events := make(chan Event, c.system.InternalChannelBuffer)
	go c.run(runCtx, conversationID, message, events)

	return &Session{events: events, cancel: cancel}
}

// Query runs a message to completion and returns the final answer plus
// the conversation length after persisting the exchange.
func (c *Controller) Query(ctx context.Context, conversationID, message string) (string, int, error) {
	if strings.TrimSpace(conversationID) == "" {
		conversationID = "default"
	}
	session := c.Open(ctx, conversationID, message)
	var answer strings.Builder
	for ev := range session.Events() {
		switch ev.Type {
		case EventContent:
			answer.WriteString(ev.Content)
		case EventError:
			return "", 0, errors.New(ev.Message)
		}
	}
	length, err := c.store.Len(conversationID)
	if err != nil {
		return "", 0, err
	}
	return answer.String(), length, nil
}

// Clear wipes a conversation's persisted history.
func (c *Controller) Clear(conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		conversationID = "default"
	}
	return c.store.Clear(conversationID)
}

func (c *Controller) run(ctx context.Context, conversationID, message string, events chan<- Event) {
	defer close(events)

	terminal := false
	emit := func(ev Event) bool {
		if terminal {
			return false
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return false
		}
		if ev.Terminal() {
			terminal = true
		}
		return true
	}
	fail := func(format string, args ...any) {
		emit(Event{Type: EventError, Message: fmt.Sprintf(format, args...)})
	}

	emit(Event{Type: EventStart})

	window, err := c.store.Window(conversationID, c.system.MemoryWindow)
	if err != nil {
		fail("failed to load conversation history: %v", err)
		return
	}

	messages := make([]llm.Message, 0, len(window)+2)
	messages = append(messages, llm.NewSystemMessage(BuildSystemPrompt(c.persona)))
	for _, turn := range window {
		messages = append(messages, llm.NewTextMessage(turn.Role, turn.Content))
	}
	messages = append(messages, llm.NewUserMessage(message))

	searches := 0
	seen := make(map[string]struct{})
	var answer string
	answered := false

	for iter := 0; iter < c.system.MaxIterations && !answered; iter++ {
		streamed := false
		step, _, err := c.engine.StepStreaming(ctx, messages, func(delta string) {
			streamed = true
			emit(Event{Type: EventContent, Content: delta})
		})
		if err != nil {
			if ctx.Err() != nil {
				fail("run cancelled")
			} else {
				fail("reasoning engine failed: %v", err)
			}
			return
		}

		switch step.Kind {
		case StepFinal:
			answer = step.Answer
			answered = true
			// Deltas already carried the answer when streaming worked;
			// StepStreaming falls back to one emit when it did not.
			_ = streamed

		case StepAction:
			if step.Tool != SearchToolName {
				obs := fmt.Sprintf("Observation: unknown tool %q. Only %s is available.", step.Tool, SearchToolName)
				messages = appendExchange(messages, step, obs)
				continue
			}
			if searches >= c.system.MaxSearchesPerRun {
				answer = c.forceAnswer(ctx, messages, emit)
				answered = true
				continue
			}
			query := strings.TrimSpace(step.Input)
			if _, dup := seen[query]; dup {
				slog.WarnContext(ctx, "repeated search query", "query", query)
			}
			seen[query] = struct{}{}
			searches++

			emit(Event{Type: EventSearch, Query: query, Count: searches})
			results, err := c.gateway.Search(ctx, query)
			var obs string
			if err != nil {
				if ctx.Err() != nil {
					fail("run cancelled")
					return
				}
				obs = FormatFailedObservation(err)
			} else {
				obs = FormatObservation(results)
			}
			emit(Event{Type: EventSearchComplete, Query: query, Count: searches})
			messages = appendExchange(messages, step, obs)

		case StepThought:
			// Bare reasoning with no action; nudge the model onward.
			messages = append(messages,
				llm.NewAssistantMessage(step.Thought),
				llm.NewUserMessage("Continue. Either take an Action or give the Final Answer."))
		}
	}

	if !answered {
		answer = c.forceAnswer(ctx, messages, emit)
	}
	if ctx.Err() != nil {
		fail("run cancelled")
		return
	}

	if !emit(Event{Type: EventDone}) {
		return
	}

	// Persist only after the terminal event so a cancelled or failed run
	// leaves the conversation untouched.
	if err := c.store.Append(conversationID, memory.NewTurn("user", message)); err != nil {
		slog.ErrorContext(ctx, "failed to persist user turn", "conversation", conversationID, "error", err)
		return
	}
	if err := c.store.Append(conversationID, memory.NewTurn("assistant", answer)); err != nil {
		slog.ErrorContext(ctx, "failed to persist assistant turn", "conversation", conversationID, "error", err)
	}
}

// forceAnswer asks the model for a direct answer once a cap is hit. The
// extra call does not count against the iteration or search budgets.
func (c *Controller) forceAnswer(ctx context.Context, messages []llm.Message, emit func(Event) bool) string {
	forced := append(append([]llm.Message{}, messages...), llm.NewUserMessage(forcedAnswerInstruction))
	step, raw, err := c.engine.StepStreaming(ctx, forced, func(delta string) {
		emit(Event{Type: EventContent, Content: delta})
	})
	if err != nil {
		slog.WarnContext(ctx, "forced answer failed", "error", err)
		fallback := "I was unable to complete the answer within the allowed number of steps."
		emit(Event{Type: EventContent, Content: fallback})
		return fallback
	}
	if step.Kind == StepFinal {
		return step.Answer
	}
	// The model kept emitting markup; strip it and use whatever is left.
	answer := strings.TrimSpace(StripThinkBlocks(raw))
	if answer == "" {
		answer = "I was unable to complete the answer within the allowed number of steps."
	}
	emit(Event{Type: EventContent, Content: answer})
	return answer
}

// appendExchange records the model's tool call and the observation so the
// next step sees the full scratchpad.
func appendExchange(messages []llm.Message, step Step, observation string) []llm.Message {
	call := step.Thought
	if call != "" {
		call += "\n"
	}
	call += fmt.Sprintf("Action: %s\nAction Input: %s", step.Tool, step.Input)
	return append(messages,
		llm.NewAssistantMessage(call),
		llm.NewUserMessage(observation))
}
