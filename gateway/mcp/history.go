package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/pkg/transcript"
	"github.com/papercomputeco/patchbay/pkg/utils"
)

var (
	historySearchToolName    = "history_search"
	historySearchDescription = "Search recorded chat conversations by message text. Returns the most recent matching turns with previews; use history_get to fetch a full turn."

	historyGetToolName    = "history_get"
	historyGetDescription = "Fetch one recorded conversation turn by record id, including the full request and response."
)

const previewLength = 240

// HistorySearchInput represents the input arguments for the history_search tool.
type HistorySearchInput struct {
	Query string `json:"query" jsonschema:"the text to search for in recorded conversations"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results to return (default: 5)"`
}

// HistoryHit is a single search result.
type HistoryHit struct {
	RecordID       string    `json:"record_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Provider       string    `json:"provider"`
	Model          string    `json:"model"`
	CreatedAt      time.Time `json:"created_at"`
	Preview        string    `json:"preview"`
}

// HistorySearchOutput represents the output of the history_search tool.
type HistorySearchOutput struct {
	Query   string       `json:"query"`
	Results []HistoryHit `json:"results"`
	Count   int          `json:"count"`
}

// handleHistorySearch processes a history_search request.
func (s *Server) handleHistorySearch(ctx context.Context, req *mcp.CallToolRequest, input HistorySearchInput) (*mcp.CallToolResult, HistorySearchOutput, error) {
	logger := s.config.Logger

	// Default limit if not specified
	limit := input.Limit
	if limit <= 0 {
		limit = 5
	}

	logger.Debug("MCP history search request",
		zap.String("query", input.Query),
		zap.Int("limit", limit),
	)

	recs, err := s.config.Store.Search(ctx, input.Query, limit)
	if err != nil {
		logger.Error("failed to search transcripts", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to search transcripts: %v", err)},
			},
		}, HistorySearchOutput{}, nil
	}

	hits := make([]HistoryHit, 0, len(recs))
	for _, rec := range recs {
		hits = append(hits, HistoryHit{
			RecordID:       rec.ID,
			ConversationID: rec.ConversationID,
			Provider:       rec.Provider,
			Model:          rec.Model,
			CreatedAt:      rec.CreatedAt,
			Preview:        utils.Truncate(rec.SearchText(), previewLength),
		})
	}

	output := HistorySearchOutput{
		Query:   input.Query,
		Results: hits,
		Count:   len(hits),
	}

	return toolResult(logger, output)
}

// HistoryGetInput represents the input arguments for the history_get tool.
type HistoryGetInput struct {
	RecordID string `json:"record_id" jsonschema:"the id of the recorded turn to fetch"`
}

// HistoryGetOutput represents the output of the history_get tool.
type HistoryGetOutput struct {
	Record *transcript.Record `json:"record"`
}

// handleHistoryGet processes a history_get request.
func (s *Server) handleHistoryGet(ctx context.Context, req *mcp.CallToolRequest, input HistoryGetInput) (*mcp.CallToolResult, HistoryGetOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP history get request",
		zap.String("record_id", input.RecordID),
	)

	rec, err := s.config.Store.Get(ctx, input.RecordID)
	if err != nil {
		if errors.Is(err, transcript.ErrNotFound) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("No recorded turn with id %q", input.RecordID)},
				},
			}, HistoryGetOutput{}, nil
		}

		logger.Error("failed to load transcript", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to load transcript: %v", err)},
			},
		}, HistoryGetOutput{}, nil
	}

	return toolResult(logger, HistoryGetOutput{Record: rec})
}

// toolResult wraps a structured output in a CallToolResult.
// Per MCP spec: tools returning structured content should also return
// serialized JSON in a TextContent block for backwards compatibility.
func toolResult[T any](logger *zap.Logger, output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal tool output", zap.Error(err))
		var zero T
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
