package llm

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"
)

// LLMUsage 定義通用的用量統計結構
type LLMUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ThoughtsTokens   int    `json:"thoughts_tokens,omitempty"`
	StopReason       string `json:"stop_reason,omitempty"`
}

// LogUsage 印出統一格式的用量統計
func LogUsage(model string, usage *LLMUsage) {
	if usage == nil {
		return
	}
	slog.Debug("LLM usage",
		"model", model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"stop_reason", usage.StopReason,
	)
}

// LLMClient 通用 LLM 客戶端介面
type LLMClient interface {
	// StreamChat 流式對話，返回 StreamChunk channel
	// messages: 對話歷史（使用 llm.Message 結構）
	// 返回值: StreamChunk channel（增量式內容 + 最終用量統計）
	StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error)

	// IsTransientError 判斷是否為暫時性錯誤 (如 503, Rate Limit)
	IsTransientError(err error) bool
}

// FallbackClient 支援多個 Client 分級嘗試
type FallbackClient struct {
	Clients    []LLMClient
	MaxRetries int
	RetryDelay time.Duration
}

func (f *FallbackClient) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	var lastErr error
	for i, client := range f.Clients {
		if i > 0 {
			log.Printf("⚠️ Previous provider failed. Trying fallback provider #%d...", i+1)
		}

		// 使用配置的重試次數，若為 0 則至少執行 1 次
		maxRetries := f.MaxRetries
		if maxRetries <= 0 {
			maxRetries = 1
		}

		for retry := 1; retry <= maxRetries; retry++ {
			if retry > 1 {
				log.Printf("🔄 Retrying provider #%d (attempt %d/%d)...", i, retry, maxRetries)
				// 稍微等待一下再重試
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(time.Duration(retry-1) * f.RetryDelay):
				}
			}

			ch, err := client.StreamChat(ctx, messages)
			if err == nil {
				return ch, nil
			}

			lastErr = err

			// Check if the error is transient using the client's implementation
			if client.IsTransientError(err) && retry < maxRetries {
				log.Printf("❌ Provider #%d failed with transient error: %v. Retrying...", i+1, err)
				continue
			}

			// 非暫時性錯誤，或者已達最大重試次數
			log.Printf("❌ Provider #%d failed: %v", i+1, err)
			break
		}
	}
	return nil, fmt.Errorf("all fallback providers failed. Last error: %v", lastErr)
}

// IsTransientError 實作 LLMClient 介面
// FallbackClient 是一個容器，它的錯誤通常意味著所有 Child 都失敗了
// 因此視為非暫時性 (除非我們想對整個 Fallback Group 進行外部重試)
func (f *FallbackClient) IsTransientError(err error) bool {
	return false
}
