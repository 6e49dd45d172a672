package llm

import "time"

// StreamChunk represents a single chunk in a streaming response.
// This is the internal representation used by the gateway after parsing
// provider-specific streaming formats.
type StreamChunk struct {
	// Model that generated the chunk
	Model string `json:"model"`

	// Chunk timestamp
	CreatedAt time.Time `json:"created_at,omitzero"`

	// Partial message content; text parts carry this chunk's content delta
	Message Message `json:"message"`

	// Reasoning delta, when the backend exposes a separate thinking channel
	Reasoning string `json:"reasoning,omitempty"`

	// Incremental tool-call fragments, keyed by index
	ToolCalls []ToolCallDelta `json:"tool_calls,omitempty"`

	// Whether this is the final chunk
	Done bool `json:"done"`

	// Stop reason (only present on final chunk)
	StopReason string `json:"stop_reason,omitempty"`

	// Usage metrics (typically only present on final chunk)
	Usage *Usage `json:"usage,omitempty"`
}

// ToolCallDelta is one fragment of a tool call in a streaming response.
// OpenAI-style backends split a call across chunks: the first fragment for
// an index usually carries ID and Name, later fragments append to
// Arguments. Ollama sends the whole call in one fragment with Arguments
// already forming a complete JSON object.
type ToolCallDelta struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	// Arguments is raw JSON text. A single fragment may not parse on its
	// own; concatenating every fragment for an index must.
	Arguments string `json:"arguments,omitempty"`
}
