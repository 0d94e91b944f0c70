// Package regfiling implements the regulatory-filing domain worker:
// lodging submissions with a regulator's electronic portal and tracking
// the filing calendar.
package regfiling

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgerline/ledgerline/internal/adapter/regportal"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/records"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
)

// Domain is the registry key for this worker.
const Domain = "regfiling"

const connectorPortal = "regulatory_portal"

const (
	IntentPrepareFiling = "regulatory.prepare_filing"
	IntentTrackDeadline = "regulatory.track_deadline"
)

type Worker struct {
	deps domainworker.Deps
}

// New creates the regulatory-filing worker.
func New(deps domainworker.Deps) domainworker.Worker {
	return &Worker{deps: deps}
}

func (w *Worker) Domain() string { return Domain }

func (w *Worker) Required() []work.Requirement {
	return []work.Requirement{
		{Name: connectorPortal, Type: connector.TypeRegulatory},
	}
}

func (w *Worker) Execute(ctx context.Context, orgID string, p *work.Payload) *work.Result {
	stored, gated := domainworker.Gate(ctx, w.deps, orgID, p, w.Required())
	if gated != nil {
		return gated
	}
	cfg, ok := finclient.FromRecord(stored[connectorPortal])
	if !ok {
		return work.ConfigMissing(connectorPortal)
	}
	client := regportal.NewClient(cfg)
	if w.deps.Breaker != nil {
		client.SetBreaker(w.deps.Breaker)
	}

	switch p.Intent {
	case IntentPrepareFiling:
		return w.prepareFiling(ctx, client, orgID, p)
	case IntentTrackDeadline:
		return w.trackDeadline(ctx, client, p)
	default:
		return work.UnsupportedIntent(p.Intent)
	}
}

func (w *Worker) prepareFiling(ctx context.Context, client *regportal.Client, orgID string, p *work.Payload) *work.Result {
	regulator := p.String("regulator")
	period := p.String("period")
	if regulator == "" || period == "" {
		return work.NeedsHITL("missing_inputs:regulator,period",
			"A submission needs both a regulator and a period.")
	}

	var documents []string
	if items, ok := p.Inputs["documents"].([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok {
				documents = append(documents, s)
			}
		}
	}

	resp, err := client.SubmitFiling(ctx, regportal.FilingRequest{
		Regulator:  regulator,
		FilingType: p.String("filing_type"),
		Period:     period,
		Documents:  documents,
	})
	if err != nil {
		return work.Contain(connectorPortal, err)
	}

	filing := &records.RegulatoryFiling{
		OrgID:       orgID,
		Regulator:   regulator,
		Period:      period,
		FilingType:  p.String("filing_type"),
		Status:      resp.Status,
		ExternalRef: resp.Reference,
	}
	if due, perr := time.Parse("2006-01-02", p.String("due_date")); perr == nil {
		filing.DueDate = due
	}
	saved, err := w.deps.Store.UpsertRegulatoryFiling(ctx, filing)
	if err != nil {
		return work.Contain("regulatory_filing_store", err)
	}

	res := work.Completed(map[string]any{
		"filing_id": saved.ID,
		"reference": resp.Reference,
		"status":    resp.Status,
	}, fmt.Sprintf("Submission to %s for %s lodged as %s.", regulator, period, resp.Reference))
	res.Telemetry = map[string]int64{"submissions_lodged": 1}
	return res
}

func (w *Worker) trackDeadline(ctx context.Context, client *regportal.Client, p *work.Payload) *work.Result {
	regulator := p.String("regulator")
	entries, err := client.GetFilingCalendar(ctx, regulator)
	if err != nil {
		return work.Contain(connectorPortal, err)
	}

	notices := make([]string, 0, len(entries))
	var followUps []work.Payload
	for _, e := range entries {
		notices = append(notices, fmt.Sprintf("%s %s for %s is due %s.",
			e.Regulator, e.FilingType, e.Period, e.DueDate))
		if p.Bool("auto_prepare") {
			followUps = append(followUps, work.Payload{
				Intent: IntentPrepareFiling,
				Domain: Domain,
				Inputs: map[string]any{
					"regulator":   e.Regulator,
					"period":      e.Period,
					"filing_type": e.FilingType,
					"due_date":    e.DueDate,
				},
			})
		}
	}

	res := work.Completed(map[string]any{
		"calendar": entries,
		"count":    len(entries),
	}, notices...)
	res.FollowUps = followUps
	res.Telemetry = map[string]int64{"calendar_entries_found": int64(len(entries))}
	return res
}
