package llm

import "encoding/json"

// ChatRequest represents a provider-agnostic chat completion request.
// This is the internal representation used by the gateway after parsing
// provider-specific request formats.
type ChatRequest struct {
	// Model name (e.g., "gpt-4o", "llama3.2")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream *bool `json:"stream,omitempty"`

	// System prompt (some providers handle this separately from messages)
	System string `json:"system,omitempty"`

	// Tools the model may call
	Tools []Tool `json:"tools,omitempty"`

	// Generation parameters (unified across providers)
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	// Provider-specific fields that don't map to common parameters
	Extra map[string]any `json:"extra,omitempty"`

	// RawRequest preserves the original request payload for cases where
	// parsing is incomplete or for debugging.
	RawRequest json.RawMessage `json:"raw_request,omitempty"`
}

// Tool describes a function the model may call. Parameters is a JSON Schema
// object in the shape both OpenAI and Ollama accept.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Streaming reports whether the request asked for a streamed response,
// falling back to the given default when the field was omitted.
func (r *ChatRequest) Streaming(defaultStreaming bool) bool {
	if r.Stream == nil {
		return defaultStreaming
	}
	return *r.Stream
}
