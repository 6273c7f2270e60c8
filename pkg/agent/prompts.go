package agent

import (
	"fmt"
	"strings"

	"seeker/pkg/search"
)

// DefaultSystemPrompt is the agent persona used when config.json does not
// override it.
const DefaultSystemPrompt = "You are a helpful AI assistant that can use a search tool to retrieve real-time information to answer user questions.\n\n" +
	"When you need latest information, real-time data, or content beyond your knowledge, use the search tool.\n" +
	"For simple common-sense questions, you can answer directly without searching.\n" +
	"Always respond in English."

// formatInstructions teaches the model the step grammar the parser expects.
const formatInstructions = "Use exactly this format.\n\n" +
	"To search the web:\n" +
	"Thought: <why you need to search>\n" +
	"Action: " + SearchToolName + "\n" +
	"Action Input: <the search query>\n\n" +
	"When you know the answer:\n" +
	"Final Answer: <the answer to the user>\n\n" +
	"Never mix an Action and a Final Answer in the same reply."

// forcedAnswerInstruction is injected when a cap forces the run into
// answering; the model must conclude from whatever it already has.
const forcedAnswerInstruction = "You cannot search any further. Using the information gathered above " +
	"and your own knowledge, reply now with only:\nFinal Answer: <your best answer>"

// BuildSystemPrompt combines the persona with the step grammar.
func BuildSystemPrompt(persona string) string {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultSystemPrompt
	}
	return persona + "\n\n" + formatInstructions
}

// FormatObservation renders search results as a scratchpad observation.
func FormatObservation(results []search.Result) string {
	var b strings.Builder
	b.WriteString("Observation: search results:\n")
	if len(results) == 0 {
		b.WriteString("(no results returned)\n")
	}
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s | %s | %s\n", i+1, strings.TrimSpace(r.Title), strings.TrimSpace(r.URL), strings.TrimSpace(r.Snippet))
	}
	b.WriteString("\nBased on these results, continue. Answer with 'Final Answer:' once you know enough.")
	return b.String()
}

// FormatFailedObservation renders a failed search so the model can retry
// with a reformulated query or answer from its own knowledge.
func FormatFailedObservation(err error) string {
	return fmt.Sprintf("Observation: the search failed (%v). You may retry with a different query or answer from your own knowledge.", err)
}
