package credentials

// Credentials represents the stored API credentials in credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential holds the API key for a single provider. For ollama the
// key is an optional bearer token used by self-hosted deployments behind an
// authenticating reverse proxy.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}
