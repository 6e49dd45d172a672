package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/patchbay/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the PATCHBAY_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (PATCHBAY_GATEWAY_LISTEN, PATCHBAY_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: PATCHBAY_GATEWAY_LISTEN, PATCHBAY_EVENTS_KAFKA_BROKERS, etc.
	v.SetEnvPrefix("PATCHBAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Gateway
	v.SetDefault("gateway.listen", d.Gateway.Listen)
	v.SetDefault("gateway.openai_url", d.Gateway.OpenAIURL)
	v.SetDefault("gateway.ollama_url", d.Gateway.OllamaURL)
	v.SetDefault("gateway.default_backend", d.Gateway.DefaultBackend)

	// Client
	v.SetDefault("client.gateway_target", d.Client.GatewayTarget)

	// Events
	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)

	// Catalog
	v.SetDefault("catalog.ttl_seconds", d.Catalog.TTLSeconds)
	v.SetDefault("catalog.overrides_path", d.Catalog.OverridesPath)
}
