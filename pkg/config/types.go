package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent patchbay configuration stored as config.toml
// in the .patchbay/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Storage StorageConfig `toml:"storage"`
	Gateway GatewayConfig `toml:"gateway"`
	Client  ClientConfig  `toml:"client"`
	Events  EventsConfig  `toml:"events"`
	Catalog CatalogConfig `toml:"catalog"`
}

// StorageConfig holds transcript store settings.
type StorageConfig struct {
	// Driver selects the transcript store backend: "memory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// GatewayConfig holds gateway server settings.
type GatewayConfig struct {
	Listen    string `toml:"listen,omitempty"`
	OpenAIURL string `toml:"openai_url,omitempty"`
	OllamaURL string `toml:"ollama_url,omitempty"`

	// DefaultBackend is the backend used for models the catalog cannot place.
	DefaultBackend string `toml:"default_backend,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// gateway (e.g. patchbay chat, patchbay models, patchbay status).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	GatewayTarget string `toml:"gateway_target,omitempty"`
}

// EventsConfig holds turn-event publishing settings.
type EventsConfig struct {
	Enabled bool `toml:"enabled,omitempty"`

	// KafkaBrokers is a comma-separated broker list, e.g. "b1:9092,b2:9092".
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// BrokerList splits KafkaBrokers into individual broker addresses,
// trimming whitespace and dropping empty entries.
func (e EventsConfig) BrokerList() []string {
	parts := strings.Split(e.KafkaBrokers, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if b := strings.TrimSpace(p); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// CatalogConfig holds model discovery cache settings.
type CatalogConfig struct {
	TTLSeconds    uint   `toml:"ttl_seconds,omitempty"`
	OverridesPath string `toml:"overrides_path,omitempty"`
}

// TTL returns the cache TTL as a duration.
func (c CatalogConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error { c.Storage.Driver = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"gateway.listen": {
		get: func(c *Config) string { return c.Gateway.Listen },
		set: func(c *Config, v string) error { c.Gateway.Listen = v; return nil },
	},
	"gateway.openai_url": {
		get: func(c *Config) string { return c.Gateway.OpenAIURL },
		set: func(c *Config, v string) error { c.Gateway.OpenAIURL = v; return nil },
	},
	"gateway.ollama_url": {
		get: func(c *Config) string { return c.Gateway.OllamaURL },
		set: func(c *Config, v string) error { c.Gateway.OllamaURL = v; return nil },
	},
	"gateway.default_backend": {
		get: func(c *Config) string { return c.Gateway.DefaultBackend },
		set: func(c *Config, v string) error { c.Gateway.DefaultBackend = v; return nil },
	},
	"client.gateway_target": {
		get: func(c *Config) string { return c.Client.GatewayTarget },
		set: func(c *Config, v string) error { c.Client.GatewayTarget = v; return nil },
	},
	"events.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Events.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for events.enabled: %w", err)
			}
			c.Events.Enabled = b
			return nil
		},
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
	"catalog.ttl_seconds": {
		get: func(c *Config) string {
			if c.Catalog.TTLSeconds == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(c.Catalog.TTLSeconds), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for catalog.ttl_seconds: %w", err)
			}
			c.Catalog.TTLSeconds = uint(n)
			return nil
		},
	},
	"catalog.overrides_path": {
		get: func(c *Config) string { return c.Catalog.OverridesPath },
		set: func(c *Config, v string) error { c.Catalog.OverridesPath = v; return nil },
	},
}
