// Package gateway provides a streaming chat gateway that fronts OpenAI-compatible
// and Ollama backends behind one OpenAI-style surface, recording every finished
// conversation turn as a transcript.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/gateway/header"
	gatewaymcp "github.com/papercomputeco/patchbay/gateway/mcp"
	"github.com/papercomputeco/patchbay/gateway/worker"
	"github.com/papercomputeco/patchbay/pkg/catalog"
	"github.com/papercomputeco/patchbay/pkg/llm/provider"
	"github.com/papercomputeco/patchbay/pkg/stream"
)

// Gateway is a chat gateway between OpenAI-style clients and LLM backends.
// It exposes one OpenAI-compatible surface, routes each request to a backend
// by model, rewrites the backend's native stream into OpenAI-style SSE, and
// enqueues finished turns for async recording via its worker pool.
type Gateway struct {
	config        Config
	catalog       *catalog.Service
	overrides     *catalog.Overrides
	workerPool    *worker.Pool
	logger        *zap.Logger
	httpClient    *http.Client
	server        *fiber.App
	providers     map[string]provider.Provider
	decoder       *stream.Decoder
	headerHandler *header.Handler
	metrics       *metrics

	// stopWatch cancels the catalog override watcher.
	stopWatch context.CancelFunc
}

// New creates a new Gateway.
// The transcript store is injected to handle async persistence of turns.
// Returns an error when neither backend URL is configured.
func New(config Config, logger *zap.Logger) (*Gateway, error) {
	if config.OpenAIURL == "" && config.OllamaURL == "" {
		return nil, errors.New("at least one backend URL is required")
	}
	if config.Store == nil {
		return nil, errors.New("transcript store is required")
	}

	providers := make(map[string]provider.Provider)
	for _, name := range []string{provider.OpenAI, provider.Ollama} {
		prov, err := provider.New(name)
		if err != nil {
			return nil, fmt.Errorf("could not create provider %s: %w", name, err)
		}
		providers[name] = prov
	}

	overrides, err := catalog.LoadOverrides(config.CatalogOverrides, logger)
	if err != nil {
		return nil, fmt.Errorf("loading catalog overrides: %w", err)
	}

	// Unknown models route to the default backend; when none is set, prefer
	// whichever backend is actually configured.
	defaultBackend := config.DefaultBackend
	if defaultBackend == "" && config.OllamaURL == "" {
		defaultBackend = catalog.BackendOpenAI
	}

	// The gateway owns the capability cache so its lifetime and TTL are
	// explicit; the catalog service only reads through it.
	var cache *catalog.Cache
	if config.CatalogTTL > 0 {
		cache = catalog.NewCache(config.CatalogTTL, nil)
	}

	catalogSvc := catalog.NewService(catalog.Config{
		OpenAIURL:      config.OpenAIURL,
		OllamaURL:      config.OllamaURL,
		OpenAIKey:      config.OpenAIKey,
		DefaultBackend: defaultBackend,
		Cache:          cache,
		Overrides:      overrides,
		Logger:         logger,
	})

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		// Enable streaming
		StreamRequestBody: true,
	})

	// Add compression middleware to handle responses
	app.Use(compress.New())

	wp, err := worker.NewPool(&worker.Config{
		Store:     config.Store,
		Publisher: config.Publisher,
		Gateway:   config.ListenAddr,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	g := &Gateway{
		config:        config,
		catalog:       catalogSvc,
		overrides:     overrides,
		workerPool:    wp,
		logger:        logger,
		server:        app,
		providers:     providers,
		decoder:       stream.New(stream.Config{Logger: logger}),
		headerHandler: header.NewHandler(),
		metrics:       newMetrics(),
		httpClient: &http.Client{
			// LLM requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	mcpServer, err := gatewaymcp.NewServer(&gatewaymcp.Config{
		Store:  config.Store,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create mcp server: %w", err)
	}

	app.Post("/v1/chat/completions", g.handleChatCompletions)
	app.Get("/v1/models", g.handleModels)
	app.Get("/v1/conversations/:id", g.handleConversation)
	app.Get("/healthz", g.handleHealthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(g.metrics.registry, promhttp.HandlerOpts{})))
	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return g, nil
}

// Run starts the gateway server on the configured listening address.
func (g *Gateway) Run() error {
	g.startOverrideWatch()

	g.logger.Info("starting gateway server",
		zap.String("listen", g.config.ListenAddr),
		zap.String("openai", g.config.OpenAIURL),
		zap.String("ollama", g.config.OllamaURL),
	)

	return g.server.Listen(g.config.ListenAddr)
}

// RunWithListener starts the gateway server using the provided listener.
func (g *Gateway) RunWithListener(listener net.Listener) error {
	g.startOverrideWatch()

	g.logger.Info("starting gateway server",
		zap.String("listen", listener.Addr().String()),
		zap.String("openai", g.config.OpenAIURL),
		zap.String("ollama", g.config.OllamaURL),
	)

	return g.server.Listener(listener)
}

// Close gracefully shuts down the gateway and waits for the worker pool to drain.
func (g *Gateway) Close() error {
	if g.stopWatch != nil {
		g.stopWatch()
	}
	err := g.server.Shutdown()
	g.workerPool.Close()
	return err
}

// startOverrideWatch reloads the catalog override file on change for the
// lifetime of the gateway.
func (g *Gateway) startOverrideWatch() {
	ctx, cancel := context.WithCancel(context.Background())
	g.stopWatch = cancel

	go func() {
		if err := g.overrides.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Warn("catalog override watch stopped", zap.Error(err))
		}
	}()
}

// handleHealthz reports liveness.
func (g *Gateway) handleHealthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}
