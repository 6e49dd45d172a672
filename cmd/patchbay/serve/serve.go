// Package servecmder provides the serve command for running the patchbay gateway.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/patchbay/gateway"
	"github.com/papercomputeco/patchbay/pkg/config"
	"github.com/papercomputeco/patchbay/pkg/credentials"
	"github.com/papercomputeco/patchbay/pkg/dotdir"
	"github.com/papercomputeco/patchbay/pkg/eventstream"
	kafkastream "github.com/papercomputeco/patchbay/pkg/eventstream/kafka"
	"github.com/papercomputeco/patchbay/pkg/eventstream/nop"
	"github.com/papercomputeco/patchbay/pkg/logger"
	"github.com/papercomputeco/patchbay/pkg/transcript"
	"github.com/papercomputeco/patchbay/pkg/transcript/inmemory"
	"github.com/papercomputeco/patchbay/pkg/transcript/postgres"
	"github.com/papercomputeco/patchbay/pkg/transcript/sqlite"
)

// transcriptsFile is the default SQLite database name inside .patchbay/.
const transcriptsFile = "transcripts.db"

type ServeCommander struct {
	listen           string
	openaiURL        string
	ollamaURL        string
	defaultBackend   string
	storageDriver    string
	sqlitePath       string
	postgresDSN      string
	eventsEnabled    bool
	kafkaBrokers     string
	kafkaTopic       string
	catalogTTL       uint
	catalogOverrides string
	logFile          string

	configDir string
	debug     bool
	logger    *zap.Logger
}

// serveFlags is the registry of flags the serve command binds into viper.
// Each flag maps to a dotted config key so flag > env > config.toml > default
// precedence holds for every setting.
var serveFlags = config.FlagSet{
	config.FlagListen: {
		Name: "listen", Shorthand: "l",
		ViperKey:    "gateway.listen",
		Description: "Address for the gateway to listen on",
	},
	config.FlagOpenAIURL: {
		Name:        "openai-url",
		ViperKey:    "gateway.openai_url",
		Description: "OpenAI-compatible backend base URL (empty disables the backend)",
	},
	config.FlagOllamaURL: {
		Name:        "ollama-url",
		ViperKey:    "gateway.ollama_url",
		Description: "Ollama backend base URL (empty disables the backend)",
	},
	config.FlagDefaultBackend: {
		Name:        "default-backend",
		ViperKey:    "gateway.default_backend",
		Description: "Backend for models the catalog cannot place (openai or ollama)",
	},
	config.FlagStorageDriver: {
		Name:        "storage-driver",
		ViperKey:    "storage.driver",
		Description: "Transcript store driver (memory, sqlite, postgres)",
	},
	config.FlagSQLitePath: {
		Name: "sqlite", Shorthand: "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite transcript database (default: .patchbay/transcripts.db)",
	},
	config.FlagPostgresDSN: {
		Name:        "postgres-dsn",
		ViperKey:    "storage.postgres_dsn",
		Description: "Postgres connection string for the transcript store",
	},
	config.FlagEventsEnabled: {
		Name:        "events",
		ViperKey:    "events.enabled",
		Description: "Publish recorded turns to Kafka",
	},
	config.FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma-separated Kafka broker list",
	},
	config.FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "events.kafka_topic",
		Description: "Kafka topic for turn events",
	},
	config.FlagCatalogTTL: {
		Name:        "catalog-ttl",
		ViperKey:    "catalog.ttl_seconds",
		Description: "Model catalog cache TTL in seconds",
	},
	config.FlagCatalogOverrides: {
		Name:        "catalog-overrides",
		ViperKey:    "catalog.overrides_path",
		Description: "TOML file of per-model capability overrides (hot reloaded)",
	},
}

// serveFlagKeys is the bind order for BindRegisteredFlags.
var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagOpenAIURL,
	config.FlagOllamaURL,
	config.FlagDefaultBackend,
	config.FlagStorageDriver,
	config.FlagSQLitePath,
	config.FlagPostgresDSN,
	config.FlagEventsEnabled,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagCatalogTTL,
	config.FlagCatalogOverrides,
}

const serveLongDesc string = `Run the patchbay gateway.

The gateway exposes one OpenAI-compatible chat surface, routes each request
to a backend by model, rewrites the backend's native stream into OpenAI-style
SSE, and records every finished conversation turn.

Settings follow viper precedence: CLI flags override PATCHBAY_* environment
variables, which override config.toml in the .patchbay/ directory, which
overrides built-in defaults.

Examples:
  patchbay serve
  patchbay serve --listen :9090 --ollama-url http://localhost:11434
  PATCHBAY_GATEWAY_OPENAI_URL=https://api.openai.com patchbay serve
  patchbay serve --events --kafka-brokers broker:9092`

const serveShortDesc string = "Run the patchbay gateway"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("initializing config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)
			cmder.applyViper(v, cmd)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagOpenAIURL, &cmder.openaiURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagOllamaURL, &cmder.ollamaURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagDefaultBackend, &cmder.defaultBackend)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLitePath, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddBoolFlag(cmd, serveFlags, config.FlagEventsEnabled, &cmder.eventsEnabled)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, serveFlags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddUintFlag(cmd, serveFlags, config.FlagCatalogTTL, &cmder.catalogTTL)
	config.AddStringFlag(cmd, serveFlags, config.FlagCatalogOverrides, &cmder.catalogOverrides)

	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write logs to this file")

	return cmd
}

// applyViper copies effective viper values into the commander for every flag
// the user did not set explicitly, completing the precedence chain.
func (c *ServeCommander) applyViper(v *viper.Viper, cmd *cobra.Command) {
	for _, key := range serveFlagKeys {
		def := serveFlags[key]
		if cmd.Flags().Changed(def.Name) {
			continue
		}

		switch key {
		case config.FlagListen:
			c.listen = v.GetString(def.ViperKey)
		case config.FlagOpenAIURL:
			c.openaiURL = v.GetString(def.ViperKey)
		case config.FlagOllamaURL:
			c.ollamaURL = v.GetString(def.ViperKey)
		case config.FlagDefaultBackend:
			c.defaultBackend = v.GetString(def.ViperKey)
		case config.FlagStorageDriver:
			c.storageDriver = v.GetString(def.ViperKey)
		case config.FlagSQLitePath:
			c.sqlitePath = v.GetString(def.ViperKey)
		case config.FlagPostgresDSN:
			c.postgresDSN = v.GetString(def.ViperKey)
		case config.FlagEventsEnabled:
			c.eventsEnabled = v.GetBool(def.ViperKey)
		case config.FlagKafkaBrokers:
			c.kafkaBrokers = v.GetString(def.ViperKey)
		case config.FlagKafkaTopic:
			c.kafkaTopic = v.GetString(def.ViperKey)
		case config.FlagCatalogTTL:
			c.catalogTTL = v.GetUint(def.ViperKey)
		case config.FlagCatalogOverrides:
			c.catalogOverrides = v.GetString(def.ViperKey)
		}
	}
}

func (c *ServeCommander) run() error {
	if err := c.createLogger(); err != nil {
		return err
	}
	defer func() { _ = c.logger.Sync() }()

	storer, err := c.createStore()
	if err != nil {
		return err
	}
	defer storer.Close()

	publisher, err := c.createPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	openaiKey, err := c.resolveOpenAIKey()
	if err != nil {
		return err
	}

	gw, err := gateway.New(gateway.Config{
		ListenAddr:       c.listen,
		OpenAIURL:        c.openaiURL,
		OpenAIKey:        openaiKey,
		OllamaURL:        c.ollamaURL,
		DefaultBackend:   c.defaultBackend,
		CatalogOverrides: c.catalogOverrides,
		CatalogTTL:       config.CatalogConfig{TTLSeconds: c.catalogTTL}.TTL(),
		Store:            storer,
		Publisher:        publisher,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer gw.Close()

	errChan := make(chan error, 1)
	go func() {
		if err := gw.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

// createLogger builds the zap logger, fanned out to a log file when requested.
func (c *ServeCommander) createLogger() error {
	if c.logFile == "" {
		c.logger = logger.NewLogger(c.debug)
		return nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	c.logger = logger.NewLoggerWithWriters(c.debug, os.Stdout, f)
	return nil
}

func (c *ServeCommander) createStore() (transcript.Store, error) {
	switch c.storageDriver {
	case "memory":
		c.logger.Info("using in-memory transcript store")
		return inmemory.NewStore(), nil

	case "sqlite", "":
		path := c.sqlitePath
		if path == "" {
			target, err := dotdir.NewManager().Target(c.configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
			path = filepath.Join(target, transcriptsFile)
		}

		storer, err := sqlite.NewStore(path)
		if err != nil {
			return nil, fmt.Errorf("creating sqlite transcript store: %w", err)
		}
		c.logger.Info("using SQLite transcript store", zap.String("path", path))
		return storer, nil

	case "postgres":
		if c.postgresDSN == "" {
			return nil, fmt.Errorf("postgres driver requires storage.postgres_dsn")
		}
		storer, err := postgres.NewStore(context.Background(), c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("creating postgres transcript store: %w", err)
		}
		c.logger.Info("using Postgres transcript store")
		return storer, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q (memory, sqlite, postgres)", c.storageDriver)
	}
}

func (c *ServeCommander) createPublisher() (eventstream.Publisher, error) {
	if !c.eventsEnabled {
		return nop.NewPublisher(), nil
	}

	brokers := config.EventsConfig{KafkaBrokers: c.kafkaBrokers}.BrokerList()
	pub, err := kafkastream.NewPublisher(brokers, c.kafkaTopic)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing turn events to kafka",
		zap.Strings("brokers", brokers),
		zap.String("topic", c.kafkaTopic),
	)
	return pub, nil
}

// resolveOpenAIKey looks up the stored OpenAI credential, falling back to the
// environment. An empty key is fine; the gateway then forwards the client's
// own Authorization header.
func (c *ServeCommander) resolveOpenAIKey() (string, error) {
	if c.openaiURL == "" {
		return "", nil
	}

	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	key, err := mgr.ResolveKey("openai")
	if err != nil {
		return "", fmt.Errorf("resolving openai credentials: %w", err)
	}
	return key, nil
}
