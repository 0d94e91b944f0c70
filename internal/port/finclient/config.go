// Package finclient defines the shared configuration shape for connector
// clients, the small HTTP clients each domain worker constructs from an
// organization's stored connector record.
package finclient

import (
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/connector"
)

// DefaultTimeout bounds connector calls when the record does not set one.
const DefaultTimeout = 15 * time.Second

// Config is the constructor input for every connector client.
type Config struct {
	Endpoint     string
	APIKey       string
	TenantID     string
	ExtraHeaders map[string]string
	Timeout      time.Duration
}

// FromRecord extracts a client Config from a stored connector record.
// Returns ok=false when the record has no endpoint (accepting either an
// "endpoint" or a "url" config key).
func FromRecord(rec *connector.Record) (Config, bool) {
	endpoint := rec.Endpoint()
	if endpoint == "" {
		return Config{}, false
	}

	cfg := Config{
		Endpoint: endpoint,
		APIKey:   rec.ConfigString("api_key"),
		TenantID: rec.ConfigString("tenant_id"),
		Timeout:  DefaultTimeout,
	}

	if ms, ok := rec.Config["timeout_ms"].(float64); ok && ms > 0 {
		cfg.Timeout = time.Duration(ms) * time.Millisecond
	}
	if hdrs, ok := rec.Config["extra_headers"].(map[string]any); ok {
		cfg.ExtraHeaders = make(map[string]string, len(hdrs))
		for k, v := range hdrs {
			if s, ok := v.(string); ok {
				cfg.ExtraHeaders[k] = s
			}
		}
	}
	return cfg, true
}
