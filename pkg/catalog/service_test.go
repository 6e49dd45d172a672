package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/patchbay/pkg/catalog"
)

func openaiBackend(calls *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o","owned_by":"system"}]}`))
	}))
}

func ollamaBackend() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2:latest","details":{"family":"llama"}}]}`))
		case "/api/show":
			_, _ = w.Write([]byte(`{"capabilities":["completion"],"model_info":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

var _ = Describe("Service", func() {
	It("merges both backends into one catalog", func() {
		openai := openaiBackend(nil)
		defer openai.Close()
		ollama := ollamaBackend()
		defer ollama.Close()

		svc := catalog.NewService(catalog.Config{
			OpenAIURL: openai.URL,
			OllamaURL: ollama.URL,
		})

		models, err := svc.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(HaveLen(2))
		Expect(models[0].ID).To(Equal("gpt-4o"))
		Expect(models[1].ID).To(Equal("llama3.2:latest"))
	})

	It("serves from the cache until the TTL lapses", func() {
		var calls atomic.Int64
		openai := openaiBackend(&calls)
		defer openai.Close()

		now := time.Unix(1735689600, 0).UTC()
		cache := catalog.NewCache(5*time.Minute, func() time.Time { return now })

		svc := catalog.NewService(catalog.Config{
			OpenAIURL: openai.URL,
			Cache:     cache,
		})

		_, err := svc.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		_, err = svc.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(calls.Load()).To(Equal(int64(1)))

		now = now.Add(6 * time.Minute)
		_, err = svc.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(calls.Load()).To(Equal(int64(2)))
	})

	It("keeps serving the other backend when one fails", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer failing.Close()
		ollama := ollamaBackend()
		defer ollama.Close()

		svc := catalog.NewService(catalog.Config{
			OpenAIURL: failing.URL,
			OllamaURL: ollama.URL,
		})

		models, err := svc.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(HaveLen(1))
		Expect(models[0].ID).To(Equal("llama3.2:latest"))
	})

	It("errors when every backend fails and nothing is cached", func() {
		failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer failing.Close()

		svc := catalog.NewService(catalog.Config{
			OpenAIURL: failing.URL,
			OllamaURL: failing.URL,
		})

		_, err := svc.Models(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("applies overrides on top of discovery", func() {
		openai := openaiBackend(nil)
		defer openai.Close()

		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "overrides.toml")
		Expect(os.WriteFile(path, []byte(`
[models."gpt-4o"]
context_length = 128000
`), 0o644)).To(Succeed())

		overrides, err := catalog.LoadOverrides(path, nil)
		Expect(err).NotTo(HaveOccurred())

		svc := catalog.NewService(catalog.Config{
			OpenAIURL: openai.URL,
			Overrides: overrides,
		})

		models, err := svc.Models(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(HaveLen(1))
		Expect(models[0].ContextLength).To(Equal(128000))
	})

	Describe("Lookup", func() {
		It("matches exact ids before normalized ids", func() {
			ollama := ollamaBackend()
			defer ollama.Close()

			svc := catalog.NewService(catalog.Config{OllamaURL: ollama.URL})

			m, ok := svc.Lookup(context.Background(), "llama3.2:latest")
			Expect(ok).To(BeTrue())
			Expect(m.Backend).To(Equal(catalog.BackendOllama))

			m, ok = svc.Lookup(context.Background(), "llama3.2")
			Expect(ok).To(BeTrue(), "normalized lookup matches the :latest tag")
			Expect(m.ID).To(Equal("llama3.2:latest"))
		})

		It("misses unknown models", func() {
			ollama := ollamaBackend()
			defer ollama.Close()

			svc := catalog.NewService(catalog.Config{OllamaURL: ollama.URL})

			_, ok := svc.Lookup(context.Background(), "no-such-model")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Route", func() {
		It("routes catalog models to their backend", func() {
			openai := openaiBackend(nil)
			defer openai.Close()
			ollama := ollamaBackend()
			defer ollama.Close()

			svc := catalog.NewService(catalog.Config{
				OpenAIURL:      openai.URL,
				OllamaURL:      ollama.URL,
				DefaultBackend: catalog.BackendOpenAI,
			})

			Expect(svc.Route(context.Background(), "gpt-4o")).To(Equal(catalog.BackendOpenAI))
			Expect(svc.Route(context.Background(), "llama3.2")).To(Equal(catalog.BackendOllama))
		})

		It("falls back to the default backend for unplaceable models", func() {
			svc := catalog.NewService(catalog.Config{DefaultBackend: catalog.BackendOpenAI})
			Expect(svc.Route(context.Background(), "mystery-model")).To(Equal(catalog.BackendOpenAI))
		})

		It("defaults the default backend to ollama", func() {
			svc := catalog.NewService(catalog.Config{})
			Expect(svc.Route(context.Background(), "mystery-model")).To(Equal(catalog.BackendOllama))
		})
	})
})
