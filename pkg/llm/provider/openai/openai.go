// Package openai
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/patchbay/pkg/llm"
)

// provider implements the Provider interface for OpenAI's Chat Completions API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "openai"
}

// DefaultStreaming is false: the chat-completions API only streams when the
// request carries an explicit stream flag.
func (o *provider) DefaultStreaming() bool {
	return false
}

func (o *provider) CanHandle(payload []byte) bool {
	var probe struct {
		Model   string `json:"model"`
		Object  string `json:"object"`
		Choices []any  `json:"choices"`
	}

	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}

	// Check for OpenAI model names
	for _, prefix := range []string{"gpt-", "o1-", "o3-", "o4-", "chatgpt-"} {
		if strings.HasPrefix(probe.Model, prefix) {
			return true
		}
	}

	// Check for OpenAI response structure ("chat.completion" or
	// "chat.completion.chunk")
	if strings.HasPrefix(probe.Object, "chat.completion") {
		return true
	}

	return len(probe.Choices) > 0
}

func (o *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req openaiRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		converted := llm.Message{Role: msg.Role}

		switch content := msg.Content.(type) {
		case string:
			converted.Parts = []llm.Part{llm.TextPart{Text: content}}
		case []any:
			// Multimodal content (e.g., vision)
			for _, item := range content {
				if part, ok := item.(map[string]any); ok {
					converted.Parts = append(converted.Parts, parseContentPart(part))
				}
			}
		case nil:
			// Empty content (can happen with tool calls)
		}

		// Handle tool calls in assistant messages
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			json.Unmarshal([]byte(tc.Function.Arguments), &input)
			converted.Parts = append(converted.Parts, llm.ToolUsePart{
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}

		// Handle tool results
		if msg.Role == llm.RoleTool && msg.ToolCallID != "" {
			text := ""
			if s, ok := msg.Content.(string); ok {
				text = s
			}
			converted.Parts = []llm.Part{llm.ToolResultPart{
				ToolUseID: msg.ToolCallID,
				Output:    text,
			}}
		}

		messages = append(messages, converted)
	}

	// Parse stop sequences
	var stop []string
	switch s := req.Stop.(type) {
	case string:
		stop = []string{s}
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				stop = append(stop, str)
			}
		}
	}

	result := &llm.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        stop,
		Seed:        req.Seed,
		Stream:      req.Stream,
		RawRequest:  payload,
	}

	for _, t := range req.Tools {
		result.Tools = append(result.Tools, llm.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	// Preserve OpenAI-specific fields
	if req.FrequencyPenalty != nil || req.PresencePenalty != nil || req.ResponseFormat != nil || req.StreamOptions != nil {
		result.Extra = make(map[string]any)
		if req.FrequencyPenalty != nil {
			result.Extra["frequency_penalty"] = *req.FrequencyPenalty
		}
		if req.PresencePenalty != nil {
			result.Extra["presence_penalty"] = *req.PresencePenalty
		}
		if req.ResponseFormat != nil {
			result.Extra["response_format"] = req.ResponseFormat
		}
		if req.StreamOptions != nil {
			result.Extra["stream_options"] = req.StreamOptions
		}
	}

	return result, nil
}

// parseContentPart converts one element of a multimodal content array.
// Unknown part shapes degrade to an empty text part rather than failing the
// whole request.
func parseContentPart(part map[string]any) llm.Part {
	typ, _ := part["type"].(string)
	switch typ {
	case "image_url":
		var url string
		if imageURL, ok := part["image_url"].(map[string]any); ok {
			url, _ = imageURL["url"].(string)
		}
		return llm.ImagePart{URL: url}
	default:
		text, _ := part["text"].(string)
		return llm.TextPart{Text: text}
	}
}

func (o *provider) FormatRequest(req *llm.ChatRequest) ([]byte, error) {
	out := openaiRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Seed:        req.Seed,
		Stream:      req.Stream,
	}

	switch len(req.Stop) {
	case 0:
	case 1:
		out.Stop = req.Stop[0]
	default:
		out.Stop = req.Stop
	}

	// OpenAI has no top-level system field; the system prompt leads the
	// message list.
	if req.System != "" {
		out.Messages = append(out.Messages, openaiMessage{Role: llm.RoleSystem, Content: req.System})
	}

	for _, msg := range req.Messages {
		converted, err := formatMessage(msg)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, converted...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openaiTool{
			Type: "function",
			Function: openaiFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if v, ok := req.Extra["frequency_penalty"].(float64); ok {
		out.FrequencyPenalty = &v
	}
	if v, ok := req.Extra["presence_penalty"].(float64); ok {
		out.PresencePenalty = &v
	}
	if v, ok := req.Extra["response_format"].(map[string]any); ok {
		out.ResponseFormat = v
	}
	if v, ok := req.Extra["stream_options"].(map[string]any); ok {
		out.StreamOptions = v
	}

	return json.Marshal(out)
}

// formatMessage converts one internal message into its OpenAI wire form.
// Tool results become standalone role="tool" messages, so a single internal
// message can expand to several wire messages.
func formatMessage(msg llm.Message) ([]openaiMessage, error) {
	var (
		texts       []string
		images      []llm.ImagePart
		toolCalls   []openaiToolCall
		toolResults []llm.ToolResultPart
	)

	for _, p := range msg.Parts {
		switch v := p.(type) {
		case llm.TextPart:
			texts = append(texts, v.Text)
		case llm.ImagePart:
			images = append(images, v)
		case llm.ToolUsePart:
			args := "{}"
			if v.Input != nil {
				raw, err := json.Marshal(v.Input)
				if err != nil {
					return nil, fmt.Errorf("marshaling tool input for %q: %w", v.Name, err)
				}
				args = string(raw)
			}
			toolCalls = append(toolCalls, openaiToolCall{
				ID:       v.ID,
				Type:     "function",
				Function: openaiCallFunction{Name: v.Name, Arguments: args},
			})
		case llm.ToolResultPart:
			toolResults = append(toolResults, v)
		default:
			return nil, fmt.Errorf("unhandled message part type %T", p)
		}
	}

	var messages []openaiMessage

	if len(texts) > 0 || len(images) > 0 || len(toolCalls) > 0 {
		converted := openaiMessage{Role: msg.Role, ToolCalls: toolCalls}
		switch {
		case len(images) > 0:
			var parts []openaiContentPart
			for _, t := range texts {
				parts = append(parts, openaiContentPart{Type: "text", Text: t})
			}
			for _, img := range images {
				url := img.URL
				if url == "" {
					url = dataURI(img)
				}
				part := openaiContentPart{Type: "image_url"}
				part.ImageURL = &struct {
					URL    string `json:"url"`
					Detail string `json:"detail,omitempty"`
				}{URL: url}
				parts = append(parts, part)
			}
			converted.Content = parts
		case len(texts) > 0:
			converted.Content = strings.Join(texts, "")
		default:
			// Tool-call-only assistant message; content stays null.
		}
		messages = append(messages, converted)
	}

	for _, res := range toolResults {
		messages = append(messages, openaiMessage{
			Role:       llm.RoleTool,
			ToolCallID: res.ToolUseID,
			Content:    res.Output,
		})
	}

	return messages, nil
}

func dataURI(img llm.ImagePart) string {
	mediaType := img.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mediaType, img.Data)
}

func (o *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		// Return empty response if no choices
		return &llm.ChatResponse{
			Model:       resp.Model,
			Done:        true,
			RawResponse: payload,
		}, nil
	}

	choice := resp.Choices[0]
	msg := choice.Message

	var parts []llm.Part
	switch c := msg.Content.(type) {
	case string:
		parts = []llm.Part{llm.TextPart{Text: c}}
	case []any:
		for _, item := range c {
			if part, ok := item.(map[string]any); ok {
				parts = append(parts, parseContentPart(part))
			}
		}
	case nil:
	}

	// Handle tool calls
	for _, tc := range msg.ToolCalls {
		var input map[string]any
		json.Unmarshal([]byte(tc.Function.Arguments), &input)
		parts = append(parts, llm.ToolUsePart{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	result := &llm.ChatResponse{
		Model: resp.Model,
		Message: llm.Message{
			Role:  msg.Role,
			Parts: parts,
		},
		Done:        true,
		StopReason:  choice.FinishReason,
		Usage:       convertUsage(resp.Usage),
		CreatedAt:   time.Unix(resp.Created, 0),
		RawResponse: payload,
		Extra: map[string]any{
			"id":     resp.ID,
			"object": resp.Object,
		},
	}

	return result, nil
}

// doneSentinel terminates an OpenAI SSE stream. It is not JSON and must be
// recognized before decoding.
var doneSentinel = []byte("[DONE]")

func (o *provider) ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, doneSentinel) {
		return nil, nil
	}

	var chunk openaiChunk
	if err := json.Unmarshal(trimmed, &chunk); err != nil {
		return nil, fmt.Errorf("decoding stream chunk: %w", err)
	}

	out := &llm.StreamChunk{
		Model: chunk.Model,
		Usage: convertUsage(chunk.Usage),
	}
	if chunk.Created > 0 {
		out.CreatedAt = time.Unix(chunk.Created, 0)
	}

	if len(chunk.Choices) == 0 {
		// A usage-only frame follows the final choice when the client asked
		// for stream usage. Anything else without choices carries nothing.
		if out.Usage == nil {
			return nil, nil
		}
		return out, nil
	}

	choice := chunk.Choices[0]
	msg := llm.Message{Role: choice.Delta.Role}
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	if choice.Delta.Content != nil && *choice.Delta.Content != "" {
		msg.Parts = append(msg.Parts, llm.TextPart{Text: *choice.Delta.Content})
	}
	out.Message = msg

	out.Reasoning = choice.Delta.Reasoning
	if out.Reasoning == "" {
		out.Reasoning = choice.Delta.ReasoningContent
	}

	for i, tc := range choice.Delta.ToolCalls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCallDelta{
			Index:     idx,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	if choice.FinishReason != nil && *choice.FinishReason != "" {
		out.Done = true
		out.StopReason = *choice.FinishReason
	}

	return out, nil
}

func convertUsage(u *openaiUsage) *llm.Usage {
	if u == nil {
		return nil
	}
	out := &llm.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.PromptTokensDetails != nil {
		out.CachedPromptTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		out.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return out
}
