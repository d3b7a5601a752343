// Package credentials manages secrets stored in the .computercraft
// directory. Keys live in credentials.toml with restrictive permissions,
// and each provider can fall back to a well-known environment variable so
// CI and containers never need a credentials file on disk.
package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/suremarc/computercraft/pkg/dotdir"
)

const (
	credentialsFileName = "credentials.toml"
	currentVersion      = 1

	// ProviderOpenAI is the upstream LLM provider key.
	ProviderOpenAI = "openai"
	// ProviderDiscord stores the webhook token used by the relay.
	ProviderDiscord = "discord"
)

// providerEnvVars maps each supported provider to its environment variable
// fallback, consulted when no key is stored on disk.
var providerEnvVars = map[string]string{
	ProviderOpenAI:  "OPENAI_API_KEY",
	ProviderDiscord: "DISCORD_WEBHOOK_TOKEN",
}

// Manager reads and writes the credentials file.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a credentials manager rooted at the dotdir target.
// overrideDir, when non-empty, takes precedence over the default lookup.
func NewManager(overrideDir string) (*Manager, error) {
	ddm := dotdir.NewManager()
	target, err := ddm.Target(overrideDir)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials directory: %w", err)
	}

	return &Manager{
		ddm:        ddm,
		targetPath: filepath.Join(target, credentialsFileName),
	}, nil
}

// Path returns the location of the credentials file.
func (m *Manager) Path() string {
	return m.targetPath
}

// Load reads the credentials file. A missing file yields an empty set.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{
				Version:   currentVersion,
				Providers: map[string]ProviderCredential{},
			}, nil
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var creds Credentials
	if err := toml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials file: %w", err)
	}
	if creds.Providers == nil {
		creds.Providers = map[string]ProviderCredential{}
	}
	return &creds, nil
}

// Save writes the credentials file with owner-only permissions.
func (m *Manager) Save(creds *Credentials) error {
	creds.Version = currentVersion

	f, err := os.OpenFile(m.targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening credentials file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	return nil
}

// SetKey stores a secret for the given provider.
func (m *Manager) SetKey(provider, key string) error {
	if !IsSupportedProvider(provider) {
		return fmt.Errorf("unsupported provider %q", provider)
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}
	creds.Providers[provider] = ProviderCredential{APIKey: key}
	return m.Save(creds)
}

// GetKey returns the secret for the given provider, preferring the stored
// value and falling back to the provider's environment variable. An empty
// string means no credential is available.
func (m *Manager) GetKey(provider string) (string, error) {
	creds, err := m.Load()
	if err != nil {
		return "", err
	}
	if cred, ok := creds.Providers[provider]; ok && cred.APIKey != "" {
		return cred.APIKey, nil
	}
	if envVar, ok := providerEnvVars[provider]; ok {
		return os.Getenv(envVar), nil
	}
	return "", nil
}

// RemoveKey deletes the stored secret for the given provider.
func (m *Manager) RemoveKey(provider string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}
	delete(creds.Providers, provider)
	return m.Save(creds)
}

// ListProviders returns the providers with stored secrets.
func (m *Manager) ListProviders() ([]string, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}
	providers := make([]string, 0, len(creds.Providers))
	for p := range creds.Providers {
		providers = append(providers, p)
	}
	return providers, nil
}

// SupportedProviders lists the providers this build knows about.
func SupportedProviders() []string {
	return []string{ProviderOpenAI, ProviderDiscord}
}

// IsSupportedProvider reports whether provider is recognized.
func IsSupportedProvider(provider string) bool {
	_, ok := providerEnvVars[provider]
	return ok
}

// EnvVarForProvider returns the environment variable fallback for a
// provider, or empty when the provider is unknown.
func EnvVarForProvider(provider string) string {
	return providerEnvVars[provider]
}
