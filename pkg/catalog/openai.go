package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const discoveryTimeout = 30 * time.Second

type openaiModelList struct {
	Data []openaiModel `json:"data"`
}

type openaiModel struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}

// ListOpenAI fetches the model list from an OpenAI-compatible backend via
// GET /v1/models. An empty apiKey sends no Authorization header.
func ListOpenAI(ctx context.Context, baseURL, apiKey string) ([]Model, error) {
	target := strings.TrimRight(baseURL, "/") + "/v1/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create openai models request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: discoveryTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send openai models request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai models status %d: %s", resp.StatusCode, string(body))
	}

	var list openaiModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode openai models response: %w", err)
	}

	models := make([]Model, 0, len(list.Data))
	for _, m := range list.Data {
		if m.ID == "" {
			continue
		}
		models = append(models, Model{
			ID:      m.ID,
			Backend: BackendOpenAI,
			OwnedBy: m.OwnedBy,
		})
	}

	sortModels(models)

	return models, nil
}
