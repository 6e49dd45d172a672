package provider

import (
	"github.com/papercomputeco/patchbay/pkg/llm"
)

// Provider defines the interface for one upstream LLM API format. Each
// implementation knows how to detect its wire format, parse payloads into
// the internal representation, and format the internal representation back
// into its wire form.
type Provider interface {
	// Name returns the canonical provider name (e.g., "openai", "ollama")
	Name() string

	// CanHandle returns true if the payload appears to be for this provider.
	// Implementations should check for provider-specific markers in the JSON
	// such as field names, model name patterns, or response structure.
	CanHandle(payload []byte) bool

	// ParseRequest converts a provider-specific request into the internal format.
	// Returns an error if the payload cannot be parsed.
	ParseRequest(payload []byte) (*llm.ChatRequest, error)

	// FormatRequest converts an internal request into this provider's wire
	// format, suitable for POSTing to the provider's chat endpoint.
	FormatRequest(req *llm.ChatRequest) ([]byte, error)

	// ParseResponse converts a provider-specific response into the internal format.
	// Returns an error if the payload cannot be parsed.
	ParseResponse(payload []byte) (*llm.ChatResponse, error)

	// ParseStreamChunk converts a single streaming payload (one SSE data
	// payload or one NDJSON line, transport framing already stripped) into
	// the internal format. Returns (nil, nil) if the chunk carries nothing
	// and should be skipped (e.g., keep-alives, end-of-stream sentinels).
	ParseStreamChunk(payload []byte) (*llm.StreamChunk, error)

	// DefaultStreaming reports whether the provider streams when the request
	// omits the stream field.
	DefaultStreaming() bool
}
