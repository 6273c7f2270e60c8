package agent

import (
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StepKind tags the variants of a parsed reasoning step.
type StepKind int

const (
	// StepThought is intermediate reasoning; the loop continues.
	StepThought StepKind = iota
	// StepAction requests a tool invocation.
	StepAction
	// StepFinal carries the user-facing answer; the run terminates.
	StepFinal
)

// Step is the structured form of one model invocation's output.
// At most one step is produced per invocation.
type Step struct {
	Kind    StepKind
	Thought string // StepThought
	Tool    string // StepAction
	Input   string // StepAction
	Answer  string // StepFinal
}

// SearchToolName is the single tool the agent knows about.
const SearchToolName = "search_web"

const finalAnswerMarker = "final answer:"

var (
	actionRegex      = regexp.MustCompile(`(?i)action\s*[:\-]\s*(\S+)`)
	actionInputRegex = regexp.MustCompile(`(?i)action\s+input\s*[:\-]\s*(.+)`)
	thinkRegex       = regexp.MustCompile(`(?s)<think>.*?</think>`)

	// Text-format tool call fallbacks; weaker models skip the Action
	// grammar and emit these shapes instead.
	toolCallArgRegex  = regexp.MustCompile(`(?s)<tool_call>\s*` + SearchToolName + `.*?<arg_value>(.*?)</arg_value>`)
	toolCallFnRegex   = regexp.MustCompile(`(?s)<tool_call>\s*` + SearchToolName + `\s*\(.*?query\s*[=:]\s*["']([^"']+)["']`)
	toolCallBodyRegex = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)
)

// StripThinkBlocks removes <think>...</think> blocks from model output.
// Some models (like qwen3) wrap their reasoning in these blocks.
func StripThinkBlocks(s string) string {
	return strings.TrimSpace(thinkRegex.ReplaceAllString(s, ""))
}

// ParseStep classifies raw model output into a Step. The grammar is
// fuzzy, so the parse is total: an explicit final-answer marker wins;
// an action needs both a tool name and an input; plain thoughts keep the
// loop going; anything unparseable falls back to a final answer so the
// run always terminates instead of looping on garbage.
func ParseStep(raw string) Step {
	text := StripThinkBlocks(raw)
	if text == "" {
		return Step{Kind: StepThought}
	}

	lower := strings.ToLower(text)

	// Terminal marker takes priority over everything else.
	if idx := strings.Index(lower, finalAnswerMarker); idx >= 0 {
		return Step{
			Kind:   StepFinal,
			Answer: strings.TrimSpace(text[idx+len(finalAnswerMarker):]),
		}
	}

	// Structured action: both name and input must be present.
	if m := actionRegex.FindStringSubmatch(text); len(m) == 2 {
		tool := strings.TrimSpace(m[1])
		if in := actionInputRegex.FindStringSubmatch(text); len(in) == 2 {
			input := strings.Trim(strings.TrimSpace(in[1]), `"'`)
			if tool != "" && input != "" {
				return Step{Kind: StepAction, Tool: tool, Input: input}
			}
		}
	}

	// Text-format tool call fallbacks.
	if query := parseTextToolCall(text); query != "" {
		return Step{Kind: StepAction, Tool: SearchToolName, Input: query}
	}

	if strings.HasPrefix(lower, "thought") {
		return Step{Kind: StepThought, Thought: text}
	}

	// Unparseable output: treat the whole text as the answer rather than
	// spinning on it.
	return Step{Kind: StepFinal, Answer: text}
}

// parseTextToolCall recovers a search query from <tool_call> style
// output (XML args, call syntax, or a JSON body that may need repair).
func parseTextToolCall(text string) string {
	if !strings.Contains(text, "<tool_call>") {
		return ""
	}

	if m := toolCallArgRegex.FindStringSubmatch(text); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	if m := toolCallFnRegex.FindStringSubmatch(text); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}

	if m := toolCallBodyRegex.FindStringSubmatch(text); len(m) == 2 {
		if query := parseToolCallJSON(m[1]); query != "" {
			return query
		}
	}
	return ""
}

// parseToolCallJSON extracts a query from a JSON tool-call body,
// repairing malformed JSON if needed.
func parseToolCallJSON(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}

	var call struct {
		Name      string `json:"name"`
		Query     string `json:"query"`
		Arguments struct {
			Query string `json:"query"`
		} `json:"arguments"`
	}

	if err := json.Unmarshal([]byte(body), &call); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(body)
		if repairErr != nil {
			return ""
		}
		if err := json.Unmarshal([]byte(repaired), &call); err != nil {
			return ""
		}
	}

	if call.Name != "" && call.Name != SearchToolName {
		return ""
	}
	if call.Query != "" {
		return strings.TrimSpace(call.Query)
	}
	return strings.TrimSpace(call.Arguments.Query)
}
