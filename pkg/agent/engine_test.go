package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seeker/pkg/llm"
)

// scriptedClient replays canned responses, one per StreamChat call. Each
// response is chopped into small deltas so streaming paths are exercised.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
	lastMsgs  []llm.Message
}

func (s *scriptedClient) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	idx := s.calls
	s.calls++
	s.lastMsgs = messages

	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx >= len(s.responses) {
		return nil, errors.New("no more scripted responses")
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		text := s.responses[idx]
		for len(text) > 0 {
			n := 7
			if n > len(text) {
				n = len(text)
			}
			select {
			case ch <- llm.NewTextChunk(text[:n]):
			case <-ctx.Done():
				return
			}
			text = text[n:]
		}
		ch <- llm.NewFinalChunk(llm.StopReasonStop, nil)
	}()
	return ch, nil
}

func (s *scriptedClient) IsTransientError(err error) bool { return false }

func TestEngineStepParsesAction(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Thought: need data\nAction: search_web\nAction Input: moon phase tonight",
	}}
	engine := NewEngine(client, 0)

	step, _, err := engine.Step(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, StepAction, step.Kind)
	assert.Equal(t, "moon phase tonight", step.Input)
}

func TestEngineStreamsOnlyAnswerText(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"Thought: easy one.\nFinal Answer: 2+2 equals 4.",
	}}
	engine := NewEngine(client, 0)

	var streamed strings.Builder
	step, _, err := engine.StepStreaming(context.Background(), nil, func(delta string) {
		streamed.WriteString(delta)
	})
	require.NoError(t, err)
	assert.Equal(t, StepFinal, step.Kind)
	assert.Equal(t, "2+2 equals 4.", step.Answer)

	out := streamed.String()
	assert.Equal(t, "2+2 equals 4.", out)
	assert.NotContains(t, strings.ToLower(out), "thought")
	assert.NotContains(t, strings.ToLower(out), "action")
}

func TestEngineStreamsNothingForActionSteps(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"I will look that up.\nAction: search_web\nAction Input: anything",
	}}
	engine := NewEngine(client, 0)

	var streamed strings.Builder
	step, _, err := engine.StepStreaming(context.Background(), nil, func(delta string) {
		streamed.WriteString(delta)
	})
	require.NoError(t, err)
	assert.Equal(t, StepAction, step.Kind)
	assert.Empty(t, streamed.String())
}

func TestEngineEmitsWholeAnswerWithoutMarker(t *testing.T) {
	// Output with no grammar at all still reaches the consumer once the
	// step falls back to a final answer.
	client := &scriptedClient{responses: []string{
		"Gophers are burrowing rodents native to North America.",
	}}
	engine := NewEngine(client, 0)

	var streamed strings.Builder
	step, _, err := engine.StepStreaming(context.Background(), nil, func(delta string) {
		streamed.WriteString(delta)
	})
	require.NoError(t, err)
	assert.Equal(t, StepFinal, step.Kind)
	assert.Equal(t, step.Answer, streamed.String())
}

func TestEngineWrapsClientFailure(t *testing.T) {
	client := &scriptedClient{errs: []error{errors.New("connection refused")}}
	engine := NewEngine(client, 0)

	_, _, err := engine.Step(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestEngineMarkerSplitAcrossDeltas(t *testing.T) {
	// The scripted client cuts every 7 bytes, so "Final Answer:" always
	// arrives fragmented; the gate must reassemble it.
	client := &scriptedClient{responses: []string{
		"Final Answer: streaming works across chunk boundaries",
	}}
	engine := NewEngine(client, 0)

	var streamed strings.Builder
	_, _, err := engine.StepStreaming(context.Background(), nil, func(delta string) {
		streamed.WriteString(delta)
	})
	require.NoError(t, err)
	assert.Equal(t, "streaming works across chunk boundaries", streamed.String())
}
