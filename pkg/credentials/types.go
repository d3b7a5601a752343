package credentials

// Credentials represents the stored secrets in credentials.toml.
type Credentials struct {
	Version   int                           `toml:"version"`
	Providers map[string]ProviderCredential `toml:"providers"`
}

// ProviderCredential holds the secret for a single provider. For LLM
// providers this is the API key; for the discord provider it is the webhook
// token.
type ProviderCredential struct {
	APIKey string `toml:"api_key"`
}
