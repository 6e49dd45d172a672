package gateway

import (
	"time"

	"github.com/papercomputeco/patchbay/pkg/eventstream"
	"github.com/papercomputeco/patchbay/pkg/transcript"
)

// Config is the gateway server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8000")
	ListenAddr string

	// OpenAIURL is the OpenAI-compatible backend base URL
	// (e.g., "https://api.openai.com"). Empty disables the backend.
	OpenAIURL string

	// OpenAIKey is the bearer token sent to the OpenAI-compatible backend.
	// Empty forwards the client's own Authorization header instead.
	OpenAIKey string

	// OllamaURL is the Ollama backend base URL (e.g., "http://localhost:11434").
	// Empty disables the backend.
	OllamaURL string

	// DefaultBackend routes models the catalog doesn't know
	// ("openai" or "ollama", defaults to "ollama").
	DefaultBackend string

	// CatalogOverrides is an optional TOML file of model metadata overrides,
	// reloaded on change.
	CatalogOverrides string

	// CatalogTTL bounds how long discovered model lists are served from the
	// capability cache before re-discovery. Zero means the catalog default.
	CatalogTTL time.Duration

	// Store persists completed conversation turns.
	Store transcript.Store

	// Publisher is an optional event stream publisher for recorded turns.
	// If nil, turn events are disabled.
	Publisher eventstream.Publisher
}
