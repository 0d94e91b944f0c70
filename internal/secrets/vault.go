// Package secrets provides a thread-safe secret vault with hot reload.
// Connector gateways and the LLM proxy rotate credentials without a
// redeploy; the process re-reads them on SIGHUP.
package secrets

import (
	"fmt"
	"sync"
)

// Well-known secret keys resolved through the vault.
const (
	KeyLiteLLMMasterKey = "LITELLM_MASTER_KEY"
	KeySlackWebhook     = "LEDGERLINE_SLACK_WEBHOOK"
	KeyDiscordWebhook   = "LEDGERLINE_DISCORD_WEBHOOK"
	KeySMTPPassword     = "LEDGERLINE_SMTP_PASSWORD"
)

// Loader retrieves secrets from a source (env vars, file, remote vault).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// GetOr returns the secret for key, or fallback when the vault has none.
// Lets YAML-configured values act as the default below rotated secrets.
func (v *Vault) GetOr(key, fallback string) string {
	if val := v.Get(key); val != "" {
		return val
	}
	return fallback
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}
