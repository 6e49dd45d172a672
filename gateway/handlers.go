package gateway

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/pkg/llm"
)

// modelEntry is one /v1/models item: the OpenAI model object plus the
// catalog's extended metadata, which OpenAI-style clients ignore.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`

	Name          string   `json:"name,omitempty"`
	Backend       string   `json:"backend"`
	ContextLength int      `json:"context_length,omitempty"`
	Capabilities  []string `json:"capabilities,omitempty"`
	Family        string   `json:"family,omitempty"`
	ParameterSize string   `json:"parameter_size,omitempty"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// handleModels serves the merged catalog in OpenAI list form.
func (g *Gateway) handleModels(c *fiber.Ctx) error {
	models, err := g.catalog.Models(c.Context())
	if err != nil {
		g.logger.Error("model discovery failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "model discovery failed"})
	}

	out := modelList{Object: "list", Data: make([]modelEntry, 0, len(models))}
	for _, m := range models {
		out.Data = append(out.Data, modelEntry{
			ID:            m.ID,
			Object:        "model",
			OwnedBy:       m.OwnedBy,
			Name:          m.DisplayName(),
			Backend:       m.Backend,
			ContextLength: m.ContextLength,
			Capabilities:  m.Capabilities,
			Family:        m.Family,
			ParameterSize: m.ParameterSize,
		})
	}

	return c.JSON(out)
}

// handleConversation serves the records of one conversation in the order
// they were recorded.
func (g *Gateway) handleConversation(c *fiber.Ctx) error {
	id := c.Params("id")

	recs, err := g.config.Store.List(c.Context(), id)
	if err != nil {
		g.logger.Error("transcript list failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "transcript lookup failed"})
	}
	if len(recs) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "conversation not found"})
	}

	return c.JSON(fiber.Map{
		"conversation_id": id,
		"records":         recs,
	})
}
