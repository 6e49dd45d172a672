// Package provider
package provider

import (
	"github.com/papercomputeco/patchbay/pkg/llm/provider/ollama"
	"github.com/papercomputeco/patchbay/pkg/llm/provider/openai"
)

// Detector manages provider detection by checking registered providers in order.
type Detector struct {
	providers []Provider
}

// NewDetector creates a new Detector with the default set of providers.
// Providers are checked in order: OpenAI, then Ollama.
func NewDetector() *Detector {
	return &Detector{
		providers: []Provider{
			openai.New(),
			ollama.New(),
		},
	}
}

// Detect returns the appropriate provider for the given payload.
// It iterates through registered providers and returns the first one
// that reports it can handle the payload. If no provider matches,
// OpenAI is returned as the fallback since its chat-completions format
// is the de facto standard for payloads with no distinguishing markers.
func (d *Detector) Detect(payload []byte) Provider {
	for _, p := range d.providers {
		if p.CanHandle(payload) {
			return p
		}
	}
	return openai.New()
}

// DetectRequest is a convenience method that detects the provider
// and parses the request in one call.
func (d *Detector) DetectRequest(payload []byte) (Provider, error) {
	p := d.Detect(payload)
	_, err := p.ParseRequest(payload)
	return p, err
}
