package core

import "github.com/google/uuid"

// FinishReason explains why the provider stopped generating.
type FinishReason string

const (
	// FinishUnspecified is the zero value used on non-terminal chunks.
	FinishUnspecified FinishReason = ""
	// FinishStop marks a normal end of turn.
	FinishStop FinishReason = "stop"
	// FinishToolCalls marks a turn ending in pending tool calls.
	FinishToolCalls FinishReason = "tool_calls"
	// FinishLength marks output truncated at the token limit.
	FinishLength FinishReason = "length"
	// FinishContentFilter marks output suppressed by provider moderation.
	FinishContentFilter FinishReason = "content_filter"
	// FinishError marks a turn terminated by a provider-side error.
	FinishError FinishReason = "error"
)

// Usage captures token accounting for a completed exchange.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is one chunk of a result stream. A chunk carries at most one
// primary payload: incremental output text, newly produced messages, or a
// terminal usage/finish signal. Thinking and metadata may accompany any of
// them. For typed sends the final Output holds the structured value's JSON.
type ChatResult struct {
	ID           string         `json:"id"`
	Output       string         `json:"output,omitempty"`
	Messages     []ChatMessage  `json:"messages,omitempty"`
	FinishReason FinishReason   `json:"finish_reason,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Thinking     string         `json:"thinking,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
}

// NewID generates a unique identifier for results and messages.
func NewID() string { return uuid.NewString() }
