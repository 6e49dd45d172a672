package llm

import (
	"encoding/json"
	"time"
)

// ChatResponse represents a provider-agnostic chat completion response.
// This is the internal representation used by the gateway after parsing
// provider-specific response formats.
type ChatResponse struct {
	// Model that generated the response
	Model string `json:"model"`

	// Response timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// The assistant's response message
	Message Message `json:"message"`

	// Whether generation is complete (for streaming)
	Done bool `json:"done"`

	// Stop reason (e.g., "stop", "length", "tool_calls")
	StopReason string `json:"stop_reason,omitempty"`

	// Token usage and timing metrics
	Usage *Usage `json:"usage,omitempty"`

	// Provider-specific fields that don't map to common parameters
	Extra map[string]any `json:"extra,omitempty"`

	// RawResponse preserves the original response payload for cases where
	// parsing is incomplete or for debugging.
	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// Usage contains token counts and timing information.
type Usage struct {
	// Token counts
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	// Tokens spent on hidden reasoning, when the backend reports them
	ReasoningTokens int `json:"reasoning_tokens,omitempty"`

	// Prompt tokens served from the backend's prompt cache
	CachedPromptTokens int `json:"cached_prompt_tokens,omitempty"`

	// Timing (provider-specific, normalized to nanoseconds)
	TotalDurationNs  int64 `json:"total_duration_ns,omitempty"`
	PromptDurationNs int64 `json:"prompt_duration_ns,omitempty"`
	EvalDurationNs   int64 `json:"eval_duration_ns,omitempty"`
}

// ErrorResponse is the JSON body returned to clients when the gateway
// cannot complete a request.
type ErrorResponse struct {
	Error string `json:"error"`
}
