package llm_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/patchbay/pkg/llm"
)

var _ = Describe("Message", func() {
	Describe("JSON round trip", func() {
		It("preserves a multi-part message", func() {
			msg := llm.Message{
				Role: llm.RoleAssistant,
				Parts: []llm.Part{
					llm.TextPart{Text: "Let me check the weather."},
					llm.ToolUsePart{
						ID:    "call_abc",
						Name:  "get_weather",
						Input: map[string]any{"city": "Lisbon"},
					},
				},
			}

			data, err := json.Marshal(msg)
			Expect(err).NotTo(HaveOccurred())

			var decoded llm.Message
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded.Role).To(Equal(llm.RoleAssistant))
			Expect(decoded.Parts).To(HaveLen(2))

			text, ok := decoded.Parts[0].(llm.TextPart)
			Expect(ok).To(BeTrue())
			Expect(text.Text).To(Equal("Let me check the weather."))

			use, ok := decoded.Parts[1].(llm.ToolUsePart)
			Expect(ok).To(BeTrue())
			Expect(use.ID).To(Equal("call_abc"))
			Expect(use.Name).To(Equal("get_weather"))
			Expect(use.Input).To(HaveKeyWithValue("city", "Lisbon"))
		})

		It("tags each part with its wire type", func() {
			msg := llm.Message{
				Role: llm.RoleUser,
				Parts: []llm.Part{
					llm.TextPart{Text: "what is this?"},
					llm.ImagePart{URL: "https://example.com/cat.png", MediaType: "image/png"},
				},
			}

			data, err := json.Marshal(msg)
			Expect(err).NotTo(HaveOccurred())

			var wire struct {
				Parts []map[string]any `json:"parts"`
			}
			Expect(json.Unmarshal(data, &wire)).To(Succeed())
			Expect(wire.Parts[0]).To(HaveKeyWithValue("type", "text"))
			Expect(wire.Parts[1]).To(HaveKeyWithValue("type", "image"))
			Expect(wire.Parts[1]).To(HaveKeyWithValue("url", "https://example.com/cat.png"))
		})

		It("round-trips tool results including the error flag", func() {
			msg := llm.Message{
				Role: llm.RoleTool,
				Parts: []llm.Part{
					llm.ToolResultPart{ToolUseID: "call_abc", Output: "no such city", IsError: true},
				},
			}

			data, err := json.Marshal(msg)
			Expect(err).NotTo(HaveOccurred())

			var decoded llm.Message
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			res, ok := decoded.Parts[0].(llm.ToolResultPart)
			Expect(ok).To(BeTrue())
			Expect(res.ToolUseID).To(Equal("call_abc"))
			Expect(res.IsError).To(BeTrue())
		})

		It("rejects unknown part types", func() {
			payload := `{"role":"user","parts":[{"type":"video","url":"x"}]}`

			var decoded llm.Message
			err := json.Unmarshal([]byte(payload), &decoded)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("video"))
		})

		It("marshals an empty message with an empty parts array", func() {
			data, err := json.Marshal(llm.Message{Role: llm.RoleUser})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring(`"parts":[]`))
		})
	})

	Describe("Text", func() {
		It("concatenates text parts and skips the rest", func() {
			msg := llm.Message{
				Role: llm.RoleAssistant,
				Parts: []llm.Part{
					llm.TextPart{Text: "hello "},
					llm.ToolUsePart{ID: "call_1", Name: "noop"},
					llm.TextPart{Text: "world"},
				},
			}
			Expect(msg.Text()).To(Equal("hello world"))
		})

		It("returns empty for a message with no text parts", func() {
			msg := llm.Message{Role: llm.RoleTool, Parts: []llm.Part{
				llm.ToolResultPart{ToolUseID: "call_1", Output: "42"},
			}}
			Expect(msg.Text()).To(BeEmpty())
		})
	})

	Describe("ToolUses", func() {
		It("returns tool-use parts in order", func() {
			msg := llm.Message{
				Role: llm.RoleAssistant,
				Parts: []llm.Part{
					llm.ToolUsePart{ID: "call_1", Name: "first"},
					llm.TextPart{Text: "and"},
					llm.ToolUsePart{ID: "call_2", Name: "second"},
				},
			}

			uses := msg.ToolUses()
			Expect(uses).To(HaveLen(2))
			Expect(uses[0].Name).To(Equal("first"))
			Expect(uses[1].Name).To(Equal("second"))
		})
	})

	Describe("NewTextMessage", func() {
		It("builds a single text part message", func() {
			msg := llm.NewTextMessage(llm.RoleUser, "hi")
			Expect(msg.Role).To(Equal(llm.RoleUser))
			Expect(msg.Parts).To(HaveLen(1))
			Expect(msg.Text()).To(Equal("hi"))
		})
	})
})

var _ = Describe("ChatRequest", func() {
	Describe("Streaming", func() {
		It("uses the provider default when unset", func() {
			req := &llm.ChatRequest{}
			Expect(req.Streaming(true)).To(BeTrue())
			Expect(req.Streaming(false)).To(BeFalse())
		})

		It("honors an explicit stream field", func() {
			f := false
			req := &llm.ChatRequest{Stream: &f}
			Expect(req.Streaming(true)).To(BeFalse())
		})
	})
})
