package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles shared by every provider format patchbay speaks.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a conversation. Content is stored
// as an ordered list of Parts so multimodal and tool-calling messages keep
// their structure in a provider-agnostic way.
type Message struct {
	Role  string `json:"role"` // "system", "user", "assistant", "tool"
	Parts []Part `json:"parts"`
}

// Part is one piece of message content. The set of implementations is closed:
// TextPart, ImagePart, ToolUsePart, and ToolResultPart. Code that switches
// over Part must return an error for variants it does not handle, so adding
// a new kind surfaces every conversion site that needs updating.
type Part interface {
	isPart()
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

// ImagePart is image content, either referenced by URL or inlined as
// base64 data with a MIME media type.
type ImagePart struct {
	URL       string
	Data      string
	MediaType string
}

// ToolUsePart is an assistant request to invoke a tool. Input holds the
// already-parsed argument object.
type ToolUsePart struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolResultPart carries the output of a tool invocation back to the model.
// ToolUseID references the ToolUsePart that requested it.
type ToolResultPart struct {
	ToolUseID string
	Output    string
	IsError   bool
}

func (TextPart) isPart()       {}
func (ImagePart) isPart()      {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}

// NewTextMessage creates a message containing a single text part.
func NewTextMessage(role, text string) Message {
	return Message{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// Text returns the concatenated text parts of the message. Non-text parts
// are skipped.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

// ToolUses returns the tool-use parts of the message in order.
func (m Message) ToolUses() []ToolUsePart {
	var uses []ToolUsePart
	for _, p := range m.Parts {
		if u, ok := p.(ToolUsePart); ok {
			uses = append(uses, u)
		}
	}
	return uses
}

// partEnvelope is the wire form of a Part. A single flat struct with a type
// tag keeps the JSON stable while the Go side stays a closed interface.
type partEnvelope struct {
	Type string `json:"type"`

	// type="text"
	Text string `json:"text,omitempty"`

	// type="image"
	URL       string `json:"url,omitempty"`
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	// type="tool_use"
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// type="tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Output    string `json:"output,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

const (
	partTypeText       = "text"
	partTypeImage      = "image"
	partTypeToolUse    = "tool_use"
	partTypeToolResult = "tool_result"
)

func encodePart(p Part) (partEnvelope, error) {
	switch v := p.(type) {
	case TextPart:
		return partEnvelope{Type: partTypeText, Text: v.Text}, nil
	case ImagePart:
		return partEnvelope{Type: partTypeImage, URL: v.URL, Data: v.Data, MediaType: v.MediaType}, nil
	case ToolUsePart:
		return partEnvelope{Type: partTypeToolUse, ID: v.ID, Name: v.Name, Input: v.Input}, nil
	case ToolResultPart:
		return partEnvelope{Type: partTypeToolResult, ToolUseID: v.ToolUseID, Output: v.Output, IsError: v.IsError}, nil
	default:
		return partEnvelope{}, fmt.Errorf("unhandled message part type %T", p)
	}
}

func decodePart(env partEnvelope) (Part, error) {
	switch env.Type {
	case partTypeText:
		return TextPart{Text: env.Text}, nil
	case partTypeImage:
		return ImagePart{URL: env.URL, Data: env.Data, MediaType: env.MediaType}, nil
	case partTypeToolUse:
		return ToolUsePart{ID: env.ID, Name: env.Name, Input: env.Input}, nil
	case partTypeToolResult:
		return ToolResultPart{ToolUseID: env.ToolUseID, Output: env.Output, IsError: env.IsError}, nil
	default:
		return nil, fmt.Errorf("unknown message part type %q", env.Type)
	}
}

type wireMessage struct {
	Role  string         `json:"role"`
	Parts []partEnvelope `json:"parts"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	envs := make([]partEnvelope, 0, len(m.Parts))
	for _, p := range m.Parts {
		env, err := encodePart(p)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return json.Marshal(wireMessage{Role: m.Role, Parts: envs})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	parts := make([]Part, 0, len(w.Parts))
	for _, env := range w.Parts {
		p, err := decodePart(env)
		if err != nil {
			return err
		}
		parts = append(parts, p)
	}
	m.Role = w.Role
	m.Parts = parts
	return nil
}
