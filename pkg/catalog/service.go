package catalog

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const defaultCacheTTL = 5 * time.Minute

// Config configures a catalog Service. Backends with an empty URL are
// skipped during discovery.
type Config struct {
	OpenAIURL      string
	OllamaURL      string
	OpenAIKey      string
	DefaultBackend string
	Cache          *Cache
	Overrides      *Overrides
	Logger         *zap.Logger
}

// Service answers model discovery and routing questions, backed by the
// capability cache and the overrides file.
type Service struct {
	cfg    Config
	cache  *Cache
	logger *zap.Logger
}

// NewService creates a catalog service. A nil cache gets a private one with
// the default TTL; an empty default backend falls back to ollama.
func NewService(cfg Config) *Service {
	if cfg.Cache == nil {
		cfg.Cache = NewCache(defaultCacheTTL, nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DefaultBackend == "" {
		cfg.DefaultBackend = BackendOllama
	}

	return &Service{
		cfg:    cfg,
		cache:  cfg.Cache,
		logger: cfg.Logger,
	}
}

// Models returns the merged catalog, re-discovering each configured backend
// whose cache entry has expired. Discovery is best-effort per backend: an
// error is returned only when every source failed and nothing is cached.
// Ollama entries win merge conflicts so shared ids route locally.
func (s *Service) Models(ctx context.Context) ([]Model, error) {
	var errs []error

	if s.cfg.OpenAIURL != "" {
		if _, ok := s.cache.Get(BackendOpenAI); !ok {
			models, err := ListOpenAI(ctx, s.cfg.OpenAIURL, s.cfg.OpenAIKey)
			if err != nil {
				errs = append(errs, err)
				s.logger.Warn("openai model discovery failed", zap.Error(err))
			} else {
				s.cache.Put(BackendOpenAI, models)
			}
		}
	}

	if s.cfg.OllamaURL != "" {
		if _, ok := s.cache.Get(BackendOllama); !ok {
			models, err := ListOllama(ctx, s.cfg.OllamaURL)
			if err != nil {
				errs = append(errs, err)
				s.logger.Warn("ollama model discovery failed", zap.Error(err))
			} else {
				s.cache.Put(BackendOllama, models)
			}
		}
	}

	merged := s.cache.Merge(BackendOpenAI, BackendOllama)
	if s.cfg.Overrides != nil {
		merged = s.cfg.Overrides.Apply(merged)
	}

	if len(merged) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return merged, nil
}

// Lookup finds a model by id, matching the exact id first and the
// normalized id second.
func (s *Service) Lookup(ctx context.Context, model string) (Model, bool) {
	models, err := s.Models(ctx)
	if err != nil {
		return Model{}, false
	}

	for _, m := range models {
		if m.ID == model {
			return m, true
		}
	}

	normalized := NormalizeID(model)
	for _, m := range models {
		if NormalizeID(m.ID) == normalized {
			return m, true
		}
	}

	return Model{}, false
}

// Route picks the backend for a model, falling back to the configured
// default when the catalog cannot place it.
func (s *Service) Route(ctx context.Context, model string) string {
	if m, ok := s.Lookup(ctx, model); ok && m.Backend != "" {
		return m.Backend
	}

	return s.cfg.DefaultBackend
}
