package gateway

import (
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/patchbay/pkg/llm"
	"github.com/papercomputeco/patchbay/pkg/llm/provider/openai"
	"github.com/papercomputeco/patchbay/pkg/sse"
)

// clientStream is the client-facing half of a relayed completion. Both
// backend legs feed it decoded events; it re-encodes them as OpenAI-style
// chunks over SSE and accumulates the assistant message for the transcript.
type clientStream struct {
	w     *sse.Writer
	ident openai.StreamIdentity

	text      strings.Builder
	toolUses  []llm.ToolUsePart
	toolIndex int
}

// newClientStream opens the stream for the given model and announces the
// assistant role, which OpenAI-style clients expect as the first chunk.
func newClientStream(w io.Writer, model string) (*clientStream, error) {
	s := &clientStream{
		w: sse.NewWriter(w),
		ident: openai.StreamIdentity{
			ID:      "chatcmpl-" + uuid.NewString(),
			Model:   model,
			Created: time.Now().Unix(),
		},
	}

	payload, err := openai.FormatRoleChunk(s.ident)
	if err != nil {
		return nil, err
	}
	if err := s.w.WriteData(string(payload)); err != nil {
		return nil, err
	}

	return s, nil
}

// Text relays one content fragment.
func (s *clientStream) Text(text string) error {
	s.text.WriteString(text)

	payload, err := openai.FormatTextChunk(s.ident, text)
	if err != nil {
		return err
	}
	return s.w.WriteData(string(payload))
}

// ToolCall relays one complete tool call. A blank id gets a minted one so
// clients can always reference the call in a follow-up tool result.
func (s *clientStream) ToolCall(id, name string, args map[string]any) error {
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	s.toolUses = append(s.toolUses, llm.ToolUsePart{ID: id, Name: name, Input: args})

	payload, err := openai.FormatToolCallChunk(s.ident, s.toolIndex, id, name, args)
	if err != nil {
		return err
	}
	s.toolIndex++
	return s.w.WriteData(string(payload))
}

// Finish closes the stream with a finish_reason chunk and the [DONE] sentinel.
// An empty stopReason falls back to "tool_calls" when the stream carried tool
// calls, "stop" otherwise.
func (s *clientStream) Finish(stopReason string, usage *llm.Usage) error {
	payload, err := openai.FormatStopChunk(s.ident, s.StopReason(stopReason), usage)
	if err != nil {
		return err
	}
	if err := s.w.WriteData(string(payload)); err != nil {
		return err
	}
	return s.w.WriteDone()
}

// StopReason resolves the finish reason sent to the client.
func (s *clientStream) StopReason(stopReason string) string {
	if stopReason != "" {
		return stopReason
	}
	if len(s.toolUses) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// Message assembles the accumulated assistant message.
func (s *clientStream) Message() llm.Message {
	msg := llm.Message{Role: llm.RoleAssistant}
	if s.text.Len() > 0 {
		msg.Parts = append(msg.Parts, llm.TextPart{Text: s.text.String()})
	}
	for _, tu := range s.toolUses {
		msg.Parts = append(msg.Parts, tu)
	}
	return msg
}
