package config

const (
	defaultStorageDriver = "sqlite"

	defaultGatewayListen = ":8080"
	defaultOpenAIURL     = "https://api.openai.com"
	defaultOllamaURL     = "http://localhost:11434"
	defaultBackend       = "ollama"

	defaultGatewayTarget = "http://localhost:8080"

	defaultKafkaBrokers = "localhost:9092"
	defaultKafkaTopic   = "patchbay.turns"

	defaultCatalogTTLSeconds = 300
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Gateway: GatewayConfig{
			Listen:         defaultGatewayListen,
			OpenAIURL:      defaultOpenAIURL,
			OllamaURL:      defaultOllamaURL,
			DefaultBackend: defaultBackend,
		},
		Client: ClientConfig{
			GatewayTarget: defaultGatewayTarget,
		},
		Events: EventsConfig{
			Enabled:      false,
			KafkaBrokers: defaultKafkaBrokers,
			KafkaTopic:   defaultKafkaTopic,
		},
		Catalog: CatalogConfig{
			TTLSeconds: defaultCatalogTTLSeconds,
		},
	}
}
