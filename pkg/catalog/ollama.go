package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type ollamaTagsResponse struct {
	Models []ollamaTag `json:"models"`
}

type ollamaTag struct {
	Name    string           `json:"name"`
	Details ollamaTagDetails `json:"details"`
}

type ollamaTagDetails struct {
	Family        string `json:"family"`
	ParameterSize string `json:"parameter_size"`
}

type ollamaShowRequest struct {
	Model string `json:"model"`
}

type ollamaShowResponse struct {
	Details      ollamaTagDetails `json:"details"`
	ModelInfo    map[string]any   `json:"model_info"`
	Capabilities []string         `json:"capabilities"`
}

// ListOllama fetches local models from an Ollama backend via GET /api/tags,
// enriching each entry with capabilities and context length from
// POST /api/show. Enrichment is best-effort: a failed show call leaves the
// bare tag entry in place.
func ListOllama(ctx context.Context, baseURL string) ([]Model, error) {
	client := &http.Client{Timeout: discoveryTimeout}

	target := strings.TrimRight(baseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create ollama tags request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send ollama tags request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama tags status %d: %s", resp.StatusCode, string(body))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode ollama tags response: %w", err)
	}

	models := make([]Model, 0, len(tags.Models))
	for _, tag := range tags.Models {
		if tag.Name == "" {
			continue
		}

		model := Model{
			ID:            tag.Name,
			Backend:       BackendOllama,
			Family:        tag.Details.Family,
			ParameterSize: tag.Details.ParameterSize,
		}

		if show, err := showOllamaModel(ctx, client, baseURL, tag.Name); err == nil {
			model.Capabilities = unionCapabilities(nil, show.Capabilities)
			model.ContextLength = contextLengthFromInfo(show.ModelInfo)
			if model.Family == "" {
				model.Family = show.Details.Family
			}
			if model.ParameterSize == "" {
				model.ParameterSize = show.Details.ParameterSize
			}
		}

		models = append(models, model)
	}

	sortModels(models)

	return models, nil
}

func showOllamaModel(ctx context.Context, client *http.Client, baseURL, name string) (*ollamaShowResponse, error) {
	payload, err := json.Marshal(ollamaShowRequest{Model: name})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama show request: %w", err)
	}

	target := strings.TrimRight(baseURL, "/") + "/api/show"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create ollama show request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send ollama show request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama show status %d: %s", resp.StatusCode, string(body))
	}

	var show ollamaShowResponse
	if err := json.NewDecoder(resp.Body).Decode(&show); err != nil {
		return nil, fmt.Errorf("decode ollama show response: %w", err)
	}

	return &show, nil
}

// contextLengthFromInfo pulls "<architecture>.context_length" out of the
// model_info blob, keyed by "general.architecture".
func contextLengthFromInfo(info map[string]any) int {
	arch, _ := info["general.architecture"].(string)
	if arch == "" {
		return 0
	}

	length, ok := info[arch+".context_length"].(float64)
	if !ok {
		return 0
	}

	return int(length)
}
