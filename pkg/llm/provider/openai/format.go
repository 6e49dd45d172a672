package openai

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/papercomputeco/patchbay/pkg/llm"
)

// StreamIdentity carries the response identifiers repeated on every chunk of
// one streamed completion.
type StreamIdentity struct {
	ID      string
	Model   string
	Created int64
}

// FormatResponse renders an internal response as a complete chat.completion
// object. The caller supplies the response ID; upstream-assigned IDs (kept
// in Extra) take precedence.
func FormatResponse(id string, resp *llm.ChatResponse) ([]byte, error) {
	if extraID, ok := resp.Extra["id"].(string); ok && extraID != "" {
		id = extraID
	}

	created := resp.CreatedAt.Unix()
	if resp.CreatedAt.IsZero() {
		created = time.Now().Unix()
	}

	finishReason := resp.StopReason
	if finishReason == "" {
		finishReason = "stop"
	}

	wireMessages, err := formatMessage(resp.Message)
	if err != nil {
		return nil, err
	}
	msg := openaiMessage{Role: llm.RoleAssistant, Content: ""}
	if len(wireMessages) > 0 {
		msg = wireMessages[0]
	}

	out := openaiResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   resp.Model,
		Usage:   formatUsage(resp.Usage),
	}
	out.Choices = append(out.Choices, struct {
		Index        int           `json:"index"`
		Message      openaiMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	}{Index: 0, Message: msg, FinishReason: finishReason})

	return json.Marshal(out)
}

// FormatRoleChunk renders the opening chunk of a streamed completion, which
// announces the assistant role before any content arrives.
func FormatRoleChunk(id StreamIdentity) ([]byte, error) {
	empty := ""
	return json.Marshal(chunkFor(id, openaiChunkChoice{
		Delta: openaiDelta{Role: llm.RoleAssistant, Content: &empty},
	}))
}

// FormatTextChunk renders one content delta.
func FormatTextChunk(id StreamIdentity, text string) ([]byte, error) {
	return json.Marshal(chunkFor(id, openaiChunkChoice{
		Delta: openaiDelta{Content: &text},
	}))
}

// FormatToolCallChunk renders one complete tool call as a single delta.
// Arguments are re-serialized from the parsed object, so fragments that were
// accumulated across multiple upstream chunks leave as one piece.
func FormatToolCallChunk(id StreamIdentity, index int, callID, name string, args map[string]any) ([]byte, error) {
	raw := "{}"
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("marshaling tool arguments for %q: %w", name, err)
		}
		raw = string(b)
	}

	idx := index
	return json.Marshal(chunkFor(id, openaiChunkChoice{
		Delta: openaiDelta{ToolCalls: []openaiToolCall{{
			Index:    &idx,
			ID:       callID,
			Type:     "function",
			Function: openaiCallFunction{Name: name, Arguments: raw},
		}}},
	}))
}

// FormatStopChunk renders the final chunk carrying the finish reason and,
// when known, usage totals.
func FormatStopChunk(id StreamIdentity, finishReason string, usage *llm.Usage) ([]byte, error) {
	if finishReason == "" {
		finishReason = "stop"
	}
	chunk := chunkFor(id, openaiChunkChoice{
		Delta:        openaiDelta{},
		FinishReason: &finishReason,
	})
	chunk.Usage = formatUsage(usage)
	return json.Marshal(chunk)
}

func chunkFor(id StreamIdentity, choice openaiChunkChoice) openaiChunk {
	return openaiChunk{
		ID:      id.ID,
		Object:  "chat.completion.chunk",
		Created: id.Created,
		Model:   id.Model,
		Choices: []openaiChunkChoice{choice},
	}
}

func formatUsage(u *llm.Usage) *openaiUsage {
	if u == nil {
		return nil
	}
	out := &openaiUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if u.CachedPromptTokens > 0 {
		out.PromptTokensDetails = &openaiPromptTokenDetails{CachedTokens: u.CachedPromptTokens}
	}
	if u.ReasoningTokens > 0 {
		out.CompletionTokensDetails = &openaiCompletionTokenDetails{ReasoningTokens: u.ReasoningTokens}
	}
	return out
}
