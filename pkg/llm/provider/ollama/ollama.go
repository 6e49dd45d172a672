package ollama

import (
	"encoding/json"
	"fmt"

	"github.com/papercomputeco/patchbay/pkg/llm"
)

// provider implements the Provider interface for Ollama's native chat API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "ollama"
}

// DefaultStreaming is true: /api/chat streams NDJSON unless the request
// carries an explicit stream:false.
func (o *provider) DefaultStreaming() bool {
	return true
}

func (o *provider) CanHandle(payload []byte) bool {
	var probe struct {
		KeepAlive string `json:"keep_alive"`
		Options   any    `json:"options"`
		Context   []int  `json:"context"`

		// Ollama-specific response fields
		TotalDuration int64 `json:"total_duration"`
		EvalCount     int   `json:"eval_count"`
	}

	if err := json.Unmarshal(payload, &probe); err != nil {
		return false
	}

	// Check for Ollama-specific request fields
	if probe.KeepAlive != "" || probe.Options != nil {
		return true
	}

	// Check for Ollama-specific response fields
	if probe.Context != nil || probe.TotalDuration > 0 || probe.EvalCount > 0 {
		return true
	}

	return false
}

func (o *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req ollamaRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, parseMessage(msg))
	}

	result := &llm.ChatRequest{
		Model:      req.Model,
		Messages:   messages,
		Stream:     req.Stream,
		RawRequest: payload,
	}

	for _, t := range req.Tools {
		result.Tools = append(result.Tools, llm.Tool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			Parameters:  t.Function.Parameters,
		})
	}

	// Map options to common fields
	if req.Options != nil {
		result.Temperature = req.Options.Temperature
		result.TopP = req.Options.TopP
		result.TopK = req.Options.TopK
		result.Seed = req.Options.Seed
		result.MaxTokens = req.Options.NumPredict
		result.Stop = req.Options.Stop

		// Preserve Ollama-specific options
		result.Extra = make(map[string]any)
		if req.Options.NumCtx != nil {
			result.Extra["num_ctx"] = *req.Options.NumCtx
		}
		if req.Options.RepeatPenalty != nil {
			result.Extra["repeat_penalty"] = *req.Options.RepeatPenalty
		}
		if req.Options.RepeatLastN != nil {
			result.Extra["repeat_last_n"] = *req.Options.RepeatLastN
		}
	}

	// Preserve other Ollama-specific fields
	if req.Format != "" {
		if result.Extra == nil {
			result.Extra = make(map[string]any)
		}
		result.Extra["format"] = req.Format
	}
	if req.KeepAlive != "" {
		if result.Extra == nil {
			result.Extra = make(map[string]any)
		}
		result.Extra["keep_alive"] = req.KeepAlive
	}

	return result, nil
}

// parseMessage converts one Ollama wire message into the internal form.
func parseMessage(msg ollamaMessage) llm.Message {
	converted := llm.Message{Role: msg.Role}

	if msg.Role == llm.RoleTool {
		// Ollama tool messages carry the result as plain content. The
		// protocol has no call ID, so the reference stays empty.
		converted.Parts = append(converted.Parts, llm.ToolResultPart{Output: msg.Content})
		return converted
	}

	if msg.Content != "" {
		converted.Parts = append(converted.Parts, llm.TextPart{Text: msg.Content})
	}

	for _, img := range msg.Images {
		converted.Parts = append(converted.Parts, llm.ImagePart{Data: img})
	}

	for _, tc := range msg.ToolCalls {
		converted.Parts = append(converted.Parts, llm.ToolUsePart{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		})
	}

	return converted
}

func (o *provider) FormatRequest(req *llm.ChatRequest) ([]byte, error) {
	out := ollamaRequest{
		Model:  req.Model,
		Stream: req.Stream,
	}

	// Ollama has no top-level system field; the system prompt leads the
	// message list.
	if req.System != "" {
		out.Messages = append(out.Messages, ollamaMessage{Role: llm.RoleSystem, Content: req.System})
	}

	for _, msg := range req.Messages {
		converted, err := formatMessage(msg)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, converted...)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, ollamaTool{
			Type: "function",
			Function: ollamaFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	if opts := formatOptions(req); opts != nil {
		out.Options = opts
	}
	if v, ok := req.Extra["format"].(string); ok {
		out.Format = v
	}
	if v, ok := req.Extra["keep_alive"].(string); ok {
		out.KeepAlive = v
	}

	return json.Marshal(out)
}

// formatMessage converts one internal message into its Ollama wire form.
// Tool results become standalone role="tool" messages, so a single internal
// message can expand to several wire messages.
func formatMessage(msg llm.Message) ([]ollamaMessage, error) {
	var (
		main        ollamaMessage
		haveMain    bool
		toolResults []llm.ToolResultPart
	)
	main.Role = msg.Role

	for _, p := range msg.Parts {
		switch v := p.(type) {
		case llm.TextPart:
			main.Content += v.Text
			haveMain = true
		case llm.ImagePart:
			if v.Data == "" {
				return nil, fmt.Errorf("ollama requires inline image data; message for %q has a URL-only image", msg.Role)
			}
			main.Images = append(main.Images, v.Data)
			haveMain = true
		case llm.ToolUsePart:
			main.ToolCalls = append(main.ToolCalls, ollamaToolCall{
				ID:       v.ID,
				Function: ollamaCallFunction{Name: v.Name, Arguments: v.Input},
			})
			haveMain = true
		case llm.ToolResultPart:
			toolResults = append(toolResults, v)
		default:
			return nil, fmt.Errorf("unhandled message part type %T", p)
		}
	}

	var messages []ollamaMessage
	if haveMain {
		messages = append(messages, main)
	}
	for _, res := range toolResults {
		messages = append(messages, ollamaMessage{Role: llm.RoleTool, Content: res.Output})
	}
	return messages, nil
}

func formatOptions(req *llm.ChatRequest) *ollamaOptions {
	opts := &ollamaOptions{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Seed:        req.Seed,
		NumPredict:  req.MaxTokens,
		Stop:        req.Stop,
	}

	if v, ok := req.Extra["num_ctx"].(int); ok {
		opts.NumCtx = &v
	}
	if v, ok := req.Extra["repeat_penalty"].(float64); ok {
		opts.RepeatPenalty = &v
	}
	if v, ok := req.Extra["repeat_last_n"].(int); ok {
		opts.RepeatLastN = &v
	}

	if opts.Temperature == nil && opts.TopP == nil && opts.TopK == nil &&
		opts.Seed == nil && opts.NumPredict == nil && len(opts.Stop) == 0 &&
		opts.NumCtx == nil && opts.RepeatPenalty == nil && opts.RepeatLastN == nil {
		return nil
	}
	return opts
}

func (o *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp ollamaResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	result := &llm.ChatResponse{
		Model:       resp.Model,
		Message:     parseMessage(resp.Message),
		Done:        resp.Done,
		StopReason:  stopReason(resp),
		Usage:       convertUsage(resp),
		CreatedAt:   resp.CreatedAt,
		RawResponse: payload,
	}

	// Preserve Ollama-specific fields
	if resp.Context != nil {
		result.Extra = map[string]any{
			"context":       resp.Context,
			"load_duration": resp.LoadDuration,
		}
	}

	return result, nil
}

// ParseStreamChunk converts one NDJSON line of a streamed /api/chat
// response. The final line sets done and carries the eval metrics.
func (o *provider) ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	var chunk ollamaResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return nil, fmt.Errorf("decoding stream chunk: %w", err)
	}

	// Tool calls are reported through ToolCalls deltas only; the partial
	// message carries just the text channel.
	msg := llm.Message{Role: chunk.Message.Role}
	if msg.Role == "" {
		msg.Role = llm.RoleAssistant
	}
	if chunk.Message.Content != "" {
		msg.Parts = append(msg.Parts, llm.TextPart{Text: chunk.Message.Content})
	}

	out := &llm.StreamChunk{
		Model:     chunk.Model,
		CreatedAt: chunk.CreatedAt,
		Message:   msg,
		Reasoning: chunk.Message.Thinking,
		Done:      chunk.Done,
		Usage:     convertUsage(chunk),
	}
	if chunk.Done {
		out.StopReason = stopReason(chunk)
	}

	// Ollama sends complete tool calls, each in its own chunk, with parsed
	// argument objects. Re-serialize so downstream accumulation sees one
	// whole fragment per call.
	for i, tc := range chunk.Message.ToolCalls {
		args := "{}"
		if tc.Function.Arguments != nil {
			raw, err := json.Marshal(tc.Function.Arguments)
			if err != nil {
				return nil, fmt.Errorf("marshaling tool arguments for %q: %w", tc.Function.Name, err)
			}
			args = string(raw)
		}
		idx := tc.Function.Index
		if idx == 0 {
			idx = i
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCallDelta{
			Index:     idx,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}

	return out, nil
}

func stopReason(resp ollamaResponse) string {
	if !resp.Done {
		return ""
	}
	if resp.DoneReason != "" {
		return resp.DoneReason
	}
	return "stop"
}

func convertUsage(resp ollamaResponse) *llm.Usage {
	if resp.PromptEvalCount == 0 && resp.EvalCount == 0 && resp.TotalDuration == 0 {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		TotalDurationNs:  resp.TotalDuration,
		PromptDurationNs: resp.PromptEvalDuration,
		EvalDurationNs:   resp.EvalDuration,
	}
}
