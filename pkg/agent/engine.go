package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"seeker/pkg/llm"
)

// ErrEngineUnavailable marks fatal model failures (client init, broken
// stream). Unlike search failures these abort the run.
var ErrEngineUnavailable = errors.New("reasoning engine unavailable")

// Engine wraps an llm.LLMClient and turns free-text completions into
// structured reasoning steps.
type Engine struct {
	client  llm.LLMClient
	timeout time.Duration
}

// NewEngine constructs an Engine. A non-positive timeout disables the
// per-step deadline.
func NewEngine(client llm.LLMClient, timeout time.Duration) *Engine {
	return &Engine{client: client, timeout: timeout}
}

// Step runs one model invocation to completion and parses the output.
func (e *Engine) Step(ctx context.Context, messages []llm.Message) (Step, string, error) {
	return e.StepStreaming(ctx, messages, nil)
}

// StepStreaming runs one model invocation, forwarding user-facing answer
// deltas to emit while accumulating the full output for parsing. Thought
// and action markup never reaches emit; only final-answer text does.
// The returned string is the raw accumulated model output.
func (e *Engine) StepStreaming(ctx context.Context, messages []llm.Message, emit func(delta string)) (Step, string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	chunkCh, err := e.client.StreamChat(ctx, messages)
	if err != nil {
		return Step{}, "", fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	gate := newDeltaGate(emit)
	var raw strings.Builder

	for chunk := range chunkCh {
		if chunk.RawError != nil {
			return Step{}, raw.String(), fmt.Errorf("%w: %v", ErrEngineUnavailable, chunk.RawError)
		}
		if chunk.Error != "" && chunk.IsFinal {
			return Step{}, raw.String(), fmt.Errorf("%w: %s", ErrEngineUnavailable, chunk.Error)
		}
		if chunk.Text != "" {
			raw.WriteString(chunk.Text)
			gate.Feed(chunk.Text)
		}
		// Thinking deltas are provider-side reasoning; never forwarded.
		if chunk.IsFinal {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return Step{}, raw.String(), err
	}

	step := ParseStep(raw.String())
	if step.Kind == StepFinal && !gate.emitted {
		// The stream never surfaced answer text (e.g. garbage fallback);
		// deliver the parsed answer in one delta so streaming consumers
		// still see content before the terminal event.
		gate.emitNow(step.Answer)
	}
	return step, raw.String(), nil
}

// deltaGate filters a stream of text deltas so that only user-facing
// answer text passes through. Everything is buffered until a
// final-answer marker appears; thought and action markup therefore never
// reaches the consumer. Output that answers without the marker is
// delivered whole via emitNow once the step is parsed.
type deltaGate struct {
	emit    func(string)
	buf     strings.Builder
	open    bool // marker seen, answer text is flowing
	sent    int  // bytes of buf already emitted
	emitted bool
}

func newDeltaGate(emit func(string)) *deltaGate {
	return &deltaGate{emit: emit}
}

func (g *deltaGate) Feed(delta string) {
	if g.emit == nil {
		return
	}
	g.buf.WriteString(delta)
	text := g.buf.String()

	if !g.open {
		idx := strings.Index(strings.ToLower(text), finalAnswerMarker)
		if idx < 0 {
			return
		}
		g.open = true
		g.sent = idx + len(finalAnswerMarker)
		// Skip whitespace directly after the marker.
		for g.sent < len(text) && (text[g.sent] == ' ' || text[g.sent] == '\n') {
			g.sent++
		}
	}

	if g.sent < len(text) {
		g.emit(text[g.sent:])
		g.sent = len(text)
		g.emitted = true
	}
}

func (g *deltaGate) emitNow(text string) {
	if g.emit != nil && text != "" {
		g.emit(text)
		g.emitted = true
	}
}
