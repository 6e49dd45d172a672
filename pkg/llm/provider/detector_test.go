package provider_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/patchbay/pkg/llm/provider"
)

var _ = Describe("Detector", func() {
	var detector *provider.Detector

	BeforeEach(func() {
		detector = provider.NewDetector()
	})

	Describe("NewDetector", func() {
		It("creates a new detector instance", func() {
			Expect(detector).NotTo(BeNil())
		})
	})

	Describe("Detect", func() {
		Context("with OpenAI payloads", func() {
			It("detects GPT model names", func() {
				payload := []byte(`{
					"model": "gpt-4-turbo",
					"messages": [{"role": "user", "content": "Hello"}]
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("openai"))
			})

			It("detects o1 model names", func() {
				payload := []byte(`{
					"model": "o1-preview",
					"messages": [{"role": "user", "content": "Hello"}]
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("openai"))
			})

			It("detects OpenAI responses with choices", func() {
				payload := []byte(`{
					"id": "chatcmpl-123",
					"object": "chat.completion",
					"model": "gpt-4",
					"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hi"}}]
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("openai"))
			})

			It("detects chat.completion object type", func() {
				payload := []byte(`{
					"id": "chatcmpl-123",
					"object": "chat.completion",
					"model": "some-model",
					"choices": []
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("openai"))
			})
		})

		Context("with Ollama payloads", func() {
			It("detects keep_alive field", func() {
				payload := []byte(`{
					"model": "llama3.2",
					"messages": [{"role": "user", "content": "Hello"}],
					"keep_alive": "5m"
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("ollama"))
			})

			It("detects options field", func() {
				payload := []byte(`{
					"model": "llama3.2",
					"messages": [{"role": "user", "content": "Hello"}],
					"options": {"temperature": 0.7}
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("ollama"))
			})

			It("detects Ollama responses with context", func() {
				payload := []byte(`{
					"model": "llama3.2",
					"message": {"role": "assistant", "content": "Hi"},
					"done": true,
					"context": [1, 2, 3]
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("ollama"))
			})

			It("detects Ollama responses with total_duration", func() {
				payload := []byte(`{
					"model": "llama3.2",
					"message": {"role": "assistant", "content": "Hi"},
					"done": true,
					"total_duration": 5000000000
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("ollama"))
			})
		})

		Context("with unmarked payloads", func() {
			It("falls back to OpenAI for unrecognized format", func() {
				payload := []byte(`{
					"custom_model": "my-model",
					"input_text": "Hello world"
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("openai"))
			})

			It("falls back to OpenAI for generic messages-only payload", func() {
				// Has messages but no provider-specific markers; the
				// chat-completions shape is the safest reading.
				payload := []byte(`{
					"model": "unknown-model",
					"messages": [{"role": "user", "content": "Hello"}]
				}`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("openai"))
			})

			It("falls back to OpenAI for invalid JSON", func() {
				payload := []byte(`not json at all`)

				p := detector.Detect(payload)
				Expect(p.Name()).To(Equal("openai"))
			})
		})
	})

	Describe("DetectRequest", func() {
		It("detects provider and validates parsing", func() {
			payload := []byte(`{
				"model": "gpt-4",
				"messages": [{"role": "user", "content": "Hello"}]
			}`)

			p, err := detector.DetectRequest(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal("openai"))
		})

		It("surfaces parse errors alongside the detected provider", func() {
			payload := []byte(`{"model": "gpt-4", "messages": "not an array"}`)

			p, err := detector.DetectRequest(payload)
			Expect(p.Name()).To(Equal("openai"))
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("New", func() {
	It("constructs each supported provider", func() {
		for _, name := range provider.SupportedProviders() {
			p, err := provider.New(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Name()).To(Equal(name))
		}
	})

	It("rejects unknown provider types", func() {
		_, err := provider.New("bedrock")
		Expect(err).To(HaveOccurred())
	})
})
