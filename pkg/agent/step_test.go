package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStepFinalAnswer(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "plain marker",
			raw:  "Final Answer: Paris is the capital of France.",
			want: "Paris is the capital of France.",
		},
		{
			name: "marker after thought",
			raw:  "Thought: I already know this.\nFinal Answer: 4",
			want: "4",
		},
		{
			name: "case insensitive marker",
			raw:  "final answer: forty two",
			want: "forty two",
		},
		{
			name: "marker wins over action markup",
			raw:  "Action: search_web\nAction Input: cats\nFinal Answer: never mind, cats are mammals",
			want: "never mind, cats are mammals",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := ParseStep(tt.raw)
			assert.Equal(t, StepFinal, step.Kind)
			assert.Equal(t, tt.want, step.Answer)
		})
	}
}

func TestParseStepAction(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		query string
	}{
		{
			name:  "standard grammar",
			raw:   "Thought: I need current data.\nAction: search_web\nAction Input: bitcoin price today",
			query: "bitcoin price today",
		},
		{
			name:  "dash separators",
			raw:   "Action - search_web\nAction Input - weather in Taipei",
			query: "weather in Taipei",
		},
		{
			name:  "quoted input",
			raw:   "Action: search_web\nAction Input: \"golang 1.25 release notes\"",
			query: "golang 1.25 release notes",
		},
		{
			name:  "tool call with arg tags",
			raw:   "<tool_call>search_web<arg_key>query</arg_key><arg_value>latest mars rover news</arg_value></tool_call>",
			query: "latest mars rover news",
		},
		{
			name:  "tool call function syntax",
			raw:   `<tool_call>search_web(query="nobel prize 2025")</tool_call>`,
			query: "nobel prize 2025",
		},
		{
			name:  "tool call json body",
			raw:   `<tool_call>{"name": "search_web", "arguments": {"query": "eurovision winner"}}</tool_call>`,
			query: "eurovision winner",
		},
		{
			name:  "tool call malformed json gets repaired",
			raw:   `<tool_call>{"name": "search_web", "arguments": {"query": "stock market close",}}</tool_call>`,
			query: "stock market close",
		},
		{
			name:  "tool call top level query",
			raw:   `<tool_call>{"query": "population of brazil"}</tool_call>`,
			query: "population of brazil",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			step := ParseStep(tt.raw)
			assert.Equal(t, StepAction, step.Kind)
			assert.Equal(t, SearchToolName, step.Tool)
			assert.Equal(t, tt.query, step.Input)
		})
	}
}

func TestParseStepThought(t *testing.T) {
	step := ParseStep("Thought: I should consider what the user is really asking.")
	assert.Equal(t, StepThought, step.Kind)
	assert.Contains(t, step.Thought, "really asking")
}

func TestParseStepActionWithoutInputIsNotAction(t *testing.T) {
	// The grammar requires both parts; a bare Action line falls through.
	step := ParseStep("Action: search_web")
	assert.NotEqual(t, StepAction, step.Kind)
}

func TestParseStepEmptyOutputIsThought(t *testing.T) {
	assert.Equal(t, StepThought, ParseStep("").Kind)
	assert.Equal(t, StepThought, ParseStep("<think>hidden reasoning</think>").Kind)
}

func TestParseStepGarbageFallsBackToFinal(t *testing.T) {
	// Unparseable output terminates the run instead of looping.
	step := ParseStep("The weather in Paris is sunny and 24 degrees.")
	assert.Equal(t, StepFinal, step.Kind)
	assert.Equal(t, "The weather in Paris is sunny and 24 degrees.", step.Answer)
}

func TestParseStepIgnoresThinkBlocks(t *testing.T) {
	step := ParseStep("<think>do I need to search? yes</think>Action: search_web\nAction Input: capybara lifespan")
	assert.Equal(t, StepAction, step.Kind)
	assert.Equal(t, "capybara lifespan", step.Input)
}

func TestParseStepForeignToolCallRejected(t *testing.T) {
	// A tool call naming an unknown tool must not turn into a search.
	step := ParseStep(`<tool_call>{"name": "delete_files", "arguments": {"query": "x"}}</tool_call>`)
	assert.NotEqual(t, StepAction, step.Kind)
}

func TestStripThinkBlocks(t *testing.T) {
	assert.Equal(t, "hello", StripThinkBlocks("<think>reasoning</think>hello"))
	assert.Equal(t, "a b", StripThinkBlocks("a <think>x</think>b"))
	assert.Equal(t, "plain", StripThinkBlocks("plain"))
}
