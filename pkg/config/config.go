package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/patchbay/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .patchbay/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}

	// Return in a stable, logical order matching the TOML section layout.
	ordered := []string{
		"storage.driver",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"gateway.listen",
		"gateway.openai_url",
		"gateway.ollama_url",
		"gateway.default_backend",
		"client.gateway_target",
		"events.enabled",
		"events.kafka_brokers",
		"events.kafka_topic",
		"catalog.ttl_seconds",
		"catalog.overrides_path",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .patchbay/ directory.
// If the file does not exist, returns DefaultConfig() so callers always receive
// a fully-populated Config with sane defaults. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from DefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = defaults.Storage.Driver
	}

	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = defaults.Gateway.Listen
	}
	if cfg.Gateway.OpenAIURL == "" {
		cfg.Gateway.OpenAIURL = defaults.Gateway.OpenAIURL
	}
	if cfg.Gateway.OllamaURL == "" {
		cfg.Gateway.OllamaURL = defaults.Gateway.OllamaURL
	}
	if cfg.Gateway.DefaultBackend == "" {
		cfg.Gateway.DefaultBackend = defaults.Gateway.DefaultBackend
	}

	if cfg.Client.GatewayTarget == "" {
		cfg.Client.GatewayTarget = defaults.Client.GatewayTarget
	}

	if cfg.Events.KafkaBrokers == "" {
		cfg.Events.KafkaBrokers = defaults.Events.KafkaBrokers
	}
	if cfg.Events.KafkaTopic == "" {
		cfg.Events.KafkaTopic = defaults.Events.KafkaTopic
	}

	if cfg.Catalog.TTLSeconds == 0 {
		cfg.Catalog.TTLSeconds = defaults.Catalog.TTLSeconds
	}
}

// SaveConfig persists the configuration to config.toml in the target .patchbay/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a Config with sane defaults for the named backend preset.
// Supported presets: "openai", "ollama". The preset picks the default backend
// for models the catalog cannot place; both backend URLs stay populated.
// Returns an error if the preset name is not recognized.
func PresetConfig(name string) (*Config, error) {
	switch strings.ToLower(name) {
	case "openai":
		return &Config{
			Version: CurrentV,
			Storage: StorageConfig{
				Driver: defaultStorageDriver,
			},
			Gateway: GatewayConfig{
				Listen:         defaultGatewayListen,
				OpenAIURL:      defaultOpenAIURL,
				OllamaURL:      defaultOllamaURL,
				DefaultBackend: "openai",
			},
			Client: ClientConfig{
				GatewayTarget: defaultGatewayTarget,
			},
		}, nil

	case "ollama":
		return &Config{
			Version: CurrentV,
			Storage: StorageConfig{
				Driver: defaultStorageDriver,
			},
			Gateway: GatewayConfig{
				Listen:         defaultGatewayListen,
				OpenAIURL:      defaultOpenAIURL,
				OllamaURL:      defaultOllamaURL,
				DefaultBackend: "ollama",
			},
			Client: ClientConfig{
				GatewayTarget: defaultGatewayTarget,
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown preset: %q (available: openai, ollama)", name)
	}
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return []string{"openai", "ollama"}
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
