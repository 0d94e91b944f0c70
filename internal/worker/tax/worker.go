// Package tax implements the indirect-tax domain worker: preparing filings
// through the tax authority gateway and surfacing statutory deadlines.
package tax

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/adapter/taxgw"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/records"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
)

// Domain is the registry key for this worker.
const Domain = "tax"

const (
	connectorGateway = "tax_authority_gateway"
	connectorLedger  = "general_ledger"
)

const (
	IntentPrepareFiling = "tax.prepare_filing"
	IntentCheckDeadline = "tax.check_deadline"
)

type Worker struct {
	deps domainworker.Deps
}

// New creates the tax worker.
func New(deps domainworker.Deps) domainworker.Worker {
	return &Worker{deps: deps}
}

func (w *Worker) Domain() string { return Domain }

func (w *Worker) Required() []work.Requirement {
	return []work.Requirement{
		{Name: connectorGateway, Type: connector.TypeTax},
		{Name: connectorLedger, Type: connector.TypeLedger},
	}
}

func (w *Worker) Execute(ctx context.Context, orgID string, p *work.Payload) *work.Result {
	stored, gated := domainworker.Gate(ctx, w.deps, orgID, p, w.Required())
	if gated != nil {
		return gated
	}
	cfg, ok := finclient.FromRecord(stored[connectorGateway])
	if !ok {
		return work.ConfigMissing(connectorGateway)
	}
	client := taxgw.NewClient(cfg)
	if w.deps.Breaker != nil {
		client.SetBreaker(w.deps.Breaker)
	}

	switch p.Intent {
	case IntentPrepareFiling:
		return w.prepareFiling(ctx, client, orgID, p)
	case IntentCheckDeadline:
		return w.checkDeadline(ctx, client, p)
	default:
		return work.UnsupportedIntent(p.Intent)
	}
}

func (w *Worker) prepareFiling(ctx context.Context, client *taxgw.Client, orgID string, p *work.Payload) *work.Result {
	jurisdiction := p.String("jurisdiction")
	period := p.String("period")
	if jurisdiction == "" || period == "" {
		return work.NeedsHITL("missing_inputs:jurisdiction,period",
			"A tax filing needs both a jurisdiction and a period.")
	}
	// A filing whose supporting audit evidence is declared not ready must
	// not be lodged; silence means the caller made no declaration.
	if ready, declared := p.Inputs["evidence_ready"].(bool); declared && !ready {
		return work.NeedsHITL("evidence_not_ready:"+jurisdiction+"/"+period,
			fmt.Sprintf("Audit evidence for the %s %s filing is not ready; a human must sign off before it is lodged.", jurisdiction, period))
	}

	resp, err := client.SubmitFiling(ctx, taxgw.FilingRequest{
		Jurisdiction: jurisdiction,
		Period:       period,
		FilingType:   p.String("filing_type"),
		NetAmount:    p.Float("net_amount"),
		Currency:     p.String("currency"),
	})
	if err != nil {
		return work.Contain(connectorGateway, err)
	}

	filing := &records.TaxFiling{
		OrgID:        orgID,
		Jurisdiction: jurisdiction,
		Period:       period,
		FilingType:   p.String("filing_type"),
		Status:       resp.Status,
		ExternalRef:  resp.Reference,
	}
	if due, perr := time.Parse("2006-01-02", resp.DueDate); perr == nil {
		filing.DueDate = due
	}
	saved, err := w.deps.Store.UpsertTaxFiling(ctx, filing)
	if err != nil {
		return work.Contain("tax_filing_store", err)
	}

	out := map[string]any{
		"filing_id": saved.ID,
		"reference": resp.Reference,
		"status":    resp.Status,
	}
	if resp.DueDate != "" {
		out["due_date"] = resp.DueDate
	}
	res := work.Completed(out,
		fmt.Sprintf("Filing for %s %s lodged as %s.", jurisdiction, period, resp.Reference))
	res.Telemetry = map[string]int64{"filings_submitted": 1}
	return res
}

func (w *Worker) checkDeadline(ctx context.Context, client *taxgw.Client, p *work.Payload) *work.Result {
	jurisdiction := p.String("jurisdiction")
	deadlines, err := client.GetDeadlines(ctx, jurisdiction)
	if err != nil {
		return work.Contain(connectorGateway, err)
	}

	notices := make([]string, 0, len(deadlines))
	var followUps []work.Payload
	for _, d := range deadlines {
		notices = append(notices, fmt.Sprintf("%s %s for %s is due %s.",
			d.Jurisdiction, d.FilingType, d.Period, d.DueDate))
		if p.Bool("auto_prepare") {
			followUps = append(followUps, work.Payload{
				Intent: IntentPrepareFiling,
				Domain: Domain,
				Inputs: map[string]any{
					"jurisdiction": d.Jurisdiction,
					"period":       d.Period,
					"filing_type":  d.FilingType,
				},
			})
		}
	}

	res := work.Completed(map[string]any{
		"deadlines": deadlines,
		"count":     len(deadlines),
	}, notices...)
	res.FollowUps = followUps
	res.Telemetry = map[string]int64{"deadlines_found": int64(len(deadlines))}
	return res
}
