// Package audit implements the external-audit domain worker: scheduling
// walkthroughs on the GRC platform and tracking engagement deadlines. A
// walkthrough whose evidence is not ready is scheduled but escalated so a
// human chases the missing items before the auditor arrives.
package audit

import (
	"context"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/adapter/grc"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/records"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
)

// Domain is the registry key for this worker.
const Domain = "audit"

const (
	connectorGRC    = "grc_platform"
	connectorLedger = "general_ledger"
)

const (
	IntentPrepareWalkthrough = "audit.prepare_walkthrough"
	IntentTrackDeadline      = "audit.track_deadline"
)

type Worker struct {
	deps domainworker.Deps
}

// New creates the audit worker.
func New(deps domainworker.Deps) domainworker.Worker {
	return &Worker{deps: deps}
}

func (w *Worker) Domain() string { return Domain }

func (w *Worker) Required() []work.Requirement {
	return []work.Requirement{
		{Name: connectorGRC, Type: connector.TypeCompliance},
		{Name: connectorLedger, Type: connector.TypeLedger},
	}
}

func (w *Worker) Execute(ctx context.Context, orgID string, p *work.Payload) *work.Result {
	stored, gated := domainworker.Gate(ctx, w.deps, orgID, p, w.Required())
	if gated != nil {
		return gated
	}
	cfg, ok := finclient.FromRecord(stored[connectorGRC])
	if !ok {
		return work.ConfigMissing(connectorGRC)
	}
	client := grc.NewClient(cfg)
	if w.deps.Breaker != nil {
		client.SetBreaker(w.deps.Breaker)
	}

	switch p.Intent {
	case IntentPrepareWalkthrough:
		return w.prepareWalkthrough(ctx, client, orgID, p)
	case IntentTrackDeadline:
		return w.trackDeadline(ctx, client)
	default:
		return work.UnsupportedIntent(p.Intent)
	}
}

func (w *Worker) prepareWalkthrough(ctx context.Context, client *grc.Client, orgID string, p *work.Payload) *work.Result {
	engagement := p.String("engagement")
	process := p.String("process")
	if engagement == "" || process == "" {
		return work.NeedsHITL("missing_inputs:engagement,process",
			"A walkthrough needs both an engagement and a process.")
	}

	var evidence []string
	if items, ok := p.Inputs["evidence"].([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok {
				evidence = append(evidence, s)
			}
		}
	}
	evidenceReady := p.Bool("evidence_ready")

	resp, err := client.CreateWalkthrough(ctx, grc.WalkthroughRequest{
		Engagement: engagement,
		Process:    process,
		Auditor:    p.String("auditor"),
		Evidence:   evidence,
	})
	if err != nil {
		return work.Contain(connectorGRC, err)
	}

	walk := &records.AuditWalkthrough{
		OrgID:         orgID,
		Engagement:    engagement,
		Process:       process,
		EvidenceReady: evidenceReady,
		ExternalRef:   resp.WalkthroughID,
	}
	saved, err := w.deps.Store.UpsertAuditWalkthrough(ctx, walk)
	if err != nil {
		return work.Contain("audit_walkthrough_store", err)
	}

	out := map[string]any{
		"walkthrough_id": saved.ID,
		"external_ref":   resp.WalkthroughID,
		"status":         resp.Status,
		"evidence_ready": evidenceReady,
	}

	if !evidenceReady {
		res := work.NeedsHITL("evidence_not_ready:"+engagement+"/"+process,
			fmt.Sprintf("Walkthrough for %s / %s is scheduled but its evidence is incomplete; a human must chase the missing items.", engagement, process))
		res.Output = out
		res.Telemetry = map[string]int64{"walkthroughs_awaiting_evidence": 1}
		return res
	}

	res := work.Completed(out,
		fmt.Sprintf("Walkthrough for %s / %s scheduled as %s.", engagement, process, resp.WalkthroughID))
	res.Telemetry = map[string]int64{"walkthroughs_scheduled": 1}
	return res
}

func (w *Worker) trackDeadline(ctx context.Context, client *grc.Client) *work.Result {
	deadlines, err := client.GetControlDeadlines(ctx)
	if err != nil {
		return work.Contain(connectorGRC, err)
	}

	notices := make([]string, 0, len(deadlines))
	for _, d := range deadlines {
		notices = append(notices, fmt.Sprintf("Control %s: %s due %s.", d.ControlRef, d.Activity, d.DueDate))
	}

	res := work.Completed(map[string]any{
		"deadlines": deadlines,
		"count":     len(deadlines),
	}, notices...)
	res.Telemetry = map[string]int64{"engagement_deadlines_found": int64(len(deadlines))}
	return res
}
