// Package catalog discovers models from the configured backends, merges them
// into a single routable view, and caches capability metadata.
package catalog

import (
	"slices"
	"sort"
)

// Backends a catalog entry can route to.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// Capability names reported by backends and overrides.
const (
	CapabilityCompletion = "completion"
	CapabilityTools      = "tools"
	CapabilityVision     = "vision"
	CapabilityThinking   = "thinking"
)

// Model is one entry in the merged catalog.
type Model struct {
	ID            string   `json:"id"`
	Name          string   `json:"name,omitempty"`
	Backend       string   `json:"backend"`
	ContextLength int      `json:"context_length,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
	Family        string   `json:"family,omitempty"`
	ParameterSize string   `json:"parameter_size,omitempty"`
	OwnedBy       string   `json:"owned_by,omitempty"`
}

// HasCapability reports whether the model advertises a capability.
func (m Model) HasCapability(name string) bool {
	return slices.Contains(m.Capabilities, name)
}

// DisplayName returns the human-facing name, falling back to the id.
func (m Model) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}

	return m.ID
}

func sortModels(models []Model) {
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID < models[j].ID
	})
}
