package openailm

import (
	"context"
	"fmt"
	"strings"

	"seeker/pkg/llm"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

// Client is a wrapper around the official OpenAI Go SDK. It also serves
// OpenAI-compatible endpoints through the base URL override.
type Client struct {
	client   *openai.Client
	provider string
	model    string
	options  map[string]any
}

// NewClient creates a new OpenAI client
func NewClient(provider string, apiKey string, model string, baseURL string, options map[string]any) (*Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client:   &client,
		provider: provider,
		model:    model,
		options:  options,
	}, nil
}

func (c *Client) Provider() string {
	return c.provider
}

func (c *Client) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	// Transient: network-level issues
	if strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return true
	}

	// Transient: server-side temporary failures
	if strings.Contains(msg, "500 internal") ||
		strings.Contains(msg, "502 bad gateway") ||
		strings.Contains(msg, "503 service unavailable") ||
		strings.Contains(msg, "overloaded") {
		return true
	}

	// Everything else (400 Bad Request, 401 Unauthorized, etc.) is non-transient
	return false
}

func (c *Client) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	chunkCh := make(chan llm.StreamChunk, 100)

	params := responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: c.convertMessages(messages),
		},
	}

	opts := []option.RequestOption{}

	// Handle unified "temperature" option (optional)
	if t, ok := c.options["temperature"].(float64); ok {
		opts = append(opts, option.WithJSONSet("temperature", t))
	}

	// Handle unified "top_p" option (optional)
	if p, ok := c.options["top_p"].(float64); ok {
		opts = append(opts, option.WithJSONSet("top_p", p))
	}

	// Handle unified "max_tokens" option (mapped to max_completion_tokens for newer models)
	if maxTok, ok := c.options["max_tokens"].(float64); ok {
		opts = append(opts, option.WithJSONSet("max_completion_tokens", int(maxTok)))
	}

	go func() {
		defer close(chunkCh)

		stream := c.client.Responses.NewStreaming(ctx, params, opts...)
		defer stream.Close()

		var lastFinishReason string
		var lastUsage *llm.LLMUsage

		for stream.Next() {
			event := stream.Current()

			switch variant := event.AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				chunkCh <- llm.NewTextChunk(variant.Delta)

			case responses.ResponseReasoningTextDeltaEvent:
				chunkCh <- llm.NewThinkingChunk(variant.Delta)

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				chunkCh <- llm.NewThinkingChunk(variant.Delta)

			case responses.ResponseCompletedEvent:
				lastFinishReason = "stop"
				if variant.Response.Usage.TotalTokens > 0 {
					lastUsage = &llm.LLMUsage{
						PromptTokens:     int(variant.Response.Usage.InputTokens),
						CompletionTokens: int(variant.Response.Usage.OutputTokens),
						TotalTokens:      int(variant.Response.Usage.TotalTokens),
						StopReason:       llm.StopReasonStop,
					}
				}

			case responses.ResponseFailedEvent:
				lastFinishReason = "failed"
				chunkCh <- llm.NewErrorChunk("API Response Failed", nil, true)

			case responses.ResponseIncompleteEvent:
				lastFinishReason = "length"
				chunkCh <- llm.NewErrorChunk("API Response Incomplete", nil, true)

			case responses.ResponseErrorEvent:
				chunkCh <- llm.NewErrorChunk(fmt.Sprintf("API Error: %s", variant.Message), nil, true)
			}
		}

		if err := stream.Err(); err != nil {
			chunkCh <- llm.NewErrorChunk(fmt.Sprintf("Stream error: %v", err), err, true)
		} else {
			// Send final chunk with accumulated stats
			reason := llm.StopReasonStop
			if lastFinishReason != "" {
				reason = normalizeStopReason(lastFinishReason)
			}
			chunkCh <- llm.NewFinalChunk(reason, lastUsage)
			llm.LogUsage(c.model, lastUsage)
		}
	}()

	return chunkCh, nil
}

func (c *Client) convertMessages(messages []llm.Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case "system":
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.Content,
				responses.EasyInputMessageRoleSystem,
			))
		case "assistant":
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.Content,
				responses.EasyInputMessageRoleAssistant,
			))
		default:
			items = append(items, responses.ResponseInputItemParamOfMessage(
				m.Content,
				responses.EasyInputMessageRoleUser,
			))
		}
	}

	return items
}

// normalizeStopReason converts OpenAI-specific finish_reason to
// a standardized lowercase format.
func normalizeStopReason(reason string) string {
	switch strings.ToLower(reason) {
	case "stop":
		return llm.StopReasonStop
	case "length", "incomplete":
		return llm.StopReasonLength
	default:
		return reason
	}
}
