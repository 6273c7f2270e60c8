package llm

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop   = "stop"   // Normal completion
	StopReasonLength = "length" // Output truncated due to token limit
)
