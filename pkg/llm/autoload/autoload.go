// Package autoload registers all built-in LLM provider factories via
// their init functions. Import it for side effects only.
package autoload

import (
	_ "seeker/pkg/llm/gemini"
	_ "seeker/pkg/llm/ollama"
	_ "seeker/pkg/llm/openailm"
)
