// Package records defines the domain result records each worker persists
// after a successful connector call. Every record carries a natural
// composite key so retried execution upserts instead of duplicating state.
package records

import "time"

// TaxFiling is upserted by the tax worker. Natural key: org + jurisdiction + period.
type TaxFiling struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	Jurisdiction string         `json:"jurisdiction"`
	Period       string         `json:"period"`
	FilingType   string         `json:"filing_type,omitempty"`
	Status       string         `json:"status"`
	ExternalRef  string         `json:"external_ref,omitempty"`
	DueDate      time.Time      `json:"due_date,omitzero"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// APInvoice is upserted by the payables worker. Natural key: org + vendor + invoice number.
type APInvoice struct {
	ID                   string         `json:"id"`
	OrgID                string         `json:"org_id"`
	Vendor               string         `json:"vendor"`
	InvoiceNumber        string         `json:"invoice_number"`
	Amount               float64        `json:"amount"`
	Currency             string         `json:"currency"`
	Status               string         `json:"status"`
	RequiresDualApproval bool           `json:"requires_dual_approval"`
	ExternalRef          string         `json:"external_ref,omitempty"`
	Detail               map[string]any `json:"detail,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// RiskEntry is upserted by the risk/controls worker. Natural key: org + risk ref.
type RiskEntry struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	RiskRef     string         `json:"risk_ref"`
	Title       string         `json:"title,omitempty"`
	Severity    string         `json:"severity,omitempty"`
	TestResult  string         `json:"test_result,omitempty"`
	ExternalRef string         `json:"external_ref,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// AuditWalkthrough is upserted by the audit worker. Natural key: org + engagement + process.
type AuditWalkthrough struct {
	ID            string         `json:"id"`
	OrgID         string         `json:"org_id"`
	Engagement    string         `json:"engagement"`
	Process       string         `json:"process"`
	EvidenceReady bool           `json:"evidence_ready"`
	ExternalRef   string         `json:"external_ref,omitempty"`
	Detail        map[string]any `json:"detail,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// BoardPack is upserted by the CFO/strategy worker. Natural key: org + period.
type BoardPack struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	Period      string         `json:"period"`
	Title       string         `json:"title,omitempty"`
	ExternalRef string         `json:"external_ref,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// RegulatoryFiling is upserted by the regulatory worker. Natural key: org + regulator + period.
type RegulatoryFiling struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	Regulator   string         `json:"regulator"`
	Period      string         `json:"period"`
	FilingType  string         `json:"filing_type,omitempty"`
	Status      string         `json:"status"`
	ExternalRef string         `json:"external_ref,omitempty"`
	DueDate     time.Time      `json:"due_date,omitzero"`
	Detail      map[string]any `json:"detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}
