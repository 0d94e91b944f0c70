// Package payables implements the accounts-payable domain worker: invoice
// intake through the ERP payables module and payment-run deadline checks.
// Invoices at or above the configured dual-approval threshold are flagged
// so downstream approval flows require a second signer.
package payables

import (
	"context"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/adapter/erpap"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/records"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
)

// Domain is the registry key for this worker.
const Domain = "payables"

const connectorERP = "payables_module"

const (
	IntentProcessInvoice = "ap.process_invoice"
	IntentCheckDeadline  = "ap.check_deadline"
)

// defaultDueWindowDays bounds the deadline sweep when the payload does not
// set one.
const defaultDueWindowDays = 14

type Worker struct {
	deps domainworker.Deps
}

// New creates the payables worker.
func New(deps domainworker.Deps) domainworker.Worker {
	return &Worker{deps: deps}
}

func (w *Worker) Domain() string { return Domain }

func (w *Worker) Required() []work.Requirement {
	return []work.Requirement{
		{Name: connectorERP, Type: connector.TypeERP},
	}
}

func (w *Worker) Execute(ctx context.Context, orgID string, p *work.Payload) *work.Result {
	stored, gated := domainworker.Gate(ctx, w.deps, orgID, p, w.Required())
	if gated != nil {
		return gated
	}
	cfg, ok := finclient.FromRecord(stored[connectorERP])
	if !ok {
		return work.ConfigMissing(connectorERP)
	}
	client := erpap.NewClient(cfg)
	if w.deps.Breaker != nil {
		client.SetBreaker(w.deps.Breaker)
	}

	switch p.Intent {
	case IntentProcessInvoice:
		return w.processInvoice(ctx, client, orgID, p)
	case IntentCheckDeadline:
		return w.checkDeadline(ctx, client, p)
	default:
		return work.UnsupportedIntent(p.Intent)
	}
}

func (w *Worker) processInvoice(ctx context.Context, client *erpap.Client, orgID string, p *work.Payload) *work.Result {
	vendor := p.String("vendor")
	number := p.String("invoice_number")
	amount := p.Float("amount")
	if vendor == "" || number == "" {
		return work.NeedsHITL("missing_inputs:vendor,invoice_number",
			"An invoice needs both a vendor and an invoice number.")
	}
	if amount <= 0 {
		return work.NeedsHITL("invalid_amount",
			fmt.Sprintf("Invoice %s from %s has a non-positive amount.", number, vendor))
	}

	resp, err := client.CreateInvoice(ctx, erpap.InvoiceRequest{
		Vendor:        vendor,
		InvoiceNumber: number,
		Amount:        amount,
		Currency:      p.String("currency"),
		DueDate:       p.String("due_date"),
		CostCenter:    p.String("cost_center"),
	})
	if err != nil {
		return work.Contain(connectorERP, err)
	}

	dualApproval := amount >= w.deps.Cfg.Payables.DualApprovalThreshold

	inv := &records.APInvoice{
		OrgID:                orgID,
		Vendor:               vendor,
		InvoiceNumber:        number,
		Amount:               amount,
		Currency:             p.String("currency"),
		Status:               resp.Status,
		RequiresDualApproval: dualApproval,
		ExternalRef:          resp.DocumentID,
	}
	saved, err := w.deps.Store.UpsertAPInvoice(ctx, inv)
	if err != nil {
		return work.Contain("ap_invoice_store", err)
	}

	out := map[string]any{
		"invoice_id":           saved.ID,
		"document_id":          resp.DocumentID,
		"status":               resp.Status,
		"requiresDualApproval": dualApproval,
	}
	notices := []string{fmt.Sprintf("Invoice %s from %s registered as %s.", number, vendor, resp.DocumentID)}
	if dualApproval {
		notices = append(notices, fmt.Sprintf(
			"Amount %.2f meets the dual-approval threshold; a second approver is required before payment.", amount))
	}
	res := work.Completed(out, notices...)
	res.Telemetry = map[string]int64{"invoices_processed": 1}
	return res
}

func (w *Worker) checkDeadline(ctx context.Context, client *erpap.Client, p *work.Payload) *work.Result {
	within := int(p.Float("within_days"))
	if within <= 0 {
		within = defaultDueWindowDays
	}

	due, err := client.GetDueInvoices(ctx, within)
	if err != nil {
		return work.Contain(connectorERP, err)
	}

	notices := make([]string, 0, len(due))
	for _, inv := range due {
		notices = append(notices, fmt.Sprintf("Invoice %s from %s (%.2f %s) is due %s.",
			inv.InvoiceNumber, inv.Vendor, inv.Amount, inv.Currency, inv.DueDate))
	}

	res := work.Completed(map[string]any{
		"due_invoices": due,
		"count":        len(due),
		"within_days":  within,
	}, notices...)
	res.Telemetry = map[string]int64{"due_invoices_found": int64(len(due))}
	return res
}
