package llm

import "time"

// Message 表示一條對話訊息。The agent works in plain text only, so a
// message is a role plus one content string.
type Message struct {
	Role      string `json:"role"` // "user", "assistant", "system"
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NewTextMessage 建立純文字訊息
func NewTextMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   text,
		Timestamp: time.Now().Unix(),
	}
}

// NewSystemMessage 建立系統訊息
func NewSystemMessage(text string) Message {
	return NewTextMessage("system", text)
}

// NewUserMessage 建立使用者訊息
func NewUserMessage(text string) Message {
	return NewTextMessage("user", text)
}

// NewAssistantMessage 建立助理訊息
func NewAssistantMessage(text string) Message {
	return NewTextMessage("assistant", text)
}

//----------------------------------------------------------------
// StreamChunk - 串流 chunk 結構
//----------------------------------------------------------------

// StreamChunk 表示 LLM 串流回應的一個 chunk（增量式）
type StreamChunk struct {
	// Text 為本 chunk 新增的回應文字（增量）
	Text string `json:"text,omitempty"`

	// Thinking 為內部推理內容（增量），不會進入最終回應
	Thinking string `json:"thinking,omitempty"`

	// Error 為顯示給使用者的錯誤描述
	Error string `json:"error,omitempty"`

	// RawError 保存底層錯誤，僅供內部判斷，不序列化
	RawError error `json:"-"`

	// 是否為最後一個 chunk
	IsFinal bool `json:"is_final"`

	// 停止原因（只在最後 chunk 有值）
	FinishReason string `json:"finish_reason,omitempty"`

	// 用量統計（可能在中間 chunk 就有，但最後 chunk 一定有）
	Usage *LLMUsage `json:"usage,omitempty"`
}

// NewTextChunk 建立文字 chunk
func NewTextChunk(text string) StreamChunk {
	return StreamChunk{Text: text}
}

// NewThinkingChunk 建立思考 chunk
func NewThinkingChunk(text string) StreamChunk {
	return StreamChunk{Thinking: text}
}

// NewFinalChunk 建立最終 chunk（帶用量統計）
func NewFinalChunk(reason string, usage *LLMUsage) StreamChunk {
	return StreamChunk{
		IsFinal:      true,
		FinishReason: reason,
		Usage:        usage,
	}
}

// NewErrorChunk 建立錯誤 chunk
func NewErrorChunk(text string, raw error, final bool) StreamChunk {
	return StreamChunk{
		Error:    text,
		RawError: raw,
		IsFinal:  final,
	}
}
