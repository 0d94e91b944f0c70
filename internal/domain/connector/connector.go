// Package connector defines the org-scoped connector registry record.
// Records are written by an external provisioning flow; this core only
// reads them to gate domain worker execution.
package connector

import (
	"errors"
	"time"
)

// Type classifies the external system behind a connector.
type Type string

const (
	TypeERP        Type = "erp"
	TypeTax        Type = "tax"
	TypeCompliance Type = "compliance"
	TypeAnalytics  Type = "analytics"
	TypeRegulatory Type = "regulatory"
	TypeLedger     Type = "ledger"
)

// Status represents the provisioning state of a connector.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Record is one external integration per organization+name.
type Record struct {
	ID         string         `json:"id"`
	OrgID      string         `json:"org_id"`
	Type       Type           `json:"type"`
	Name       string         `json:"name"`
	Status     Status         `json:"status"`
	Config     map[string]any `json:"config"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	LastSyncAt time.Time      `json:"last_sync_at,omitzero"`
	LastError  string         `json:"last_error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Endpoint extracts the connector endpoint from Config, accepting either an
// "endpoint" or a "url" key. Returns "" when neither is present.
func (r *Record) Endpoint() string {
	for _, key := range []string{"endpoint", "url"} {
		if v, ok := r.Config[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ConfigString returns the named string config value, or "" if absent.
func (r *Record) ConfigString(key string) string {
	v, _ := r.Config[key].(string)
	return v
}

// RegisterRequest holds the fields for the org-scoped upsert-by-name
// connector registration.
type RegisterRequest struct {
	OrgID    string         `json:"org_id"`
	Type     Type           `json:"type"`
	Name     string         `json:"name"`
	Status   Status         `json:"status,omitempty"`
	Config   map[string]any `json:"config"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks that the register request is well-formed.
func (r *RegisterRequest) Validate() error {
	if r.OrgID == "" {
		return errors.New("org_id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Type == "" {
		return errors.New("type is required")
	}
	return nil
}
