// Package riskctl implements the risk-and-controls domain worker: keeping
// the risk register aligned with the GRC platform and tracking control
// activity deadlines. A failed control test is never auto-closed; the
// register is updated and the command escalates to a human reviewer.
package riskctl

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
const Domain = "riskctl"

const connectorGRC = "grc_platform"

const (
	IntentUpdateRegister = "risk.update_register"
	IntentTrackDeadline  = "risk.track_deadline"
)

const testResultFailed = "failed"

type Worker struct {
	deps domainworker.Deps
}

// New creates the risk-and-controls worker.
func New(deps domainworker.Deps) domainworker.Worker {
	return &Worker{deps: deps}
}

func (w *Worker) Domain() string { return Domain }

func (w *Worker) Required() []work.Requirement {
	return []work.Requirement{
		{Name: connectorGRC, Type: connector.TypeCompliance},
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
	case IntentUpdateRegister:
		return w.updateRegister(ctx, client, orgID, p)
	case IntentTrackDeadline:
		return w.trackDeadline(ctx, client, p)
	default:
		return work.UnsupportedIntent(p.Intent)
	}
}

func (w *Worker) updateRegister(ctx context.Context, client *grc.Client, orgID string, p *work.Payload) *work.Result {
	riskRef := p.String("risk_ref")
	if riskRef == "" {
		return work.NeedsHITL("missing_inputs:risk_ref",
			"A register update needs a risk reference.")
	}
	testResult := p.String("test_result")

	resp, err := client.UpsertRisk(ctx, grc.RiskRequest{
		RiskRef:    riskRef,
		Title:      p.String("title"),
		Severity:   p.String("severity"),
		Owner:      p.String("owner"),
		Mitigation: p.String("mitigation"),
		TestResult: testResult,
	})
	if err != nil {
		return work.Contain(connectorGRC, err)
	}

	entry := &records.RiskEntry{
		OrgID:       orgID,
		RiskRef:     riskRef,
		Title:       p.String("title"),
		Severity:    p.String("severity"),
		TestResult:  testResult,
		ExternalRef: resp.RiskRef,
	}
	saved, err := w.deps.Store.UpsertRiskEntry(ctx, entry)
	if err != nil {
		return work.Contain("risk_register_store", err)
	}

	out := map[string]any{
		"risk_id":  saved.ID,
		"risk_ref": riskRef,
		"status":   resp.Status,
	}

	// The register is updated either way, but a failed control test is a
	// finding a human must disposition.
	if testResult == testResultFailed {
		res := work.NeedsHITL("control_test_failed:"+riskRef,
			fmt.Sprintf("Control test for %s failed; the register is updated and a reviewer must disposition the finding.", riskRef))
		res.Output = out
		res.Telemetry = map[string]int64{"control_tests_failed": 1}
		return res
	}

	res := work.Completed(out,
		fmt.Sprintf("Risk %s updated in the register.", riskRef))
	res.Telemetry = map[string]int64{"risks_updated": 1}
	return res
}

func (w *Worker) trackDeadline(ctx context.Context, client *grc.Client, p *work.Payload) *work.Result {
	deadlines, err := client.GetControlDeadlines(ctx)
	if err != nil {
		return work.Contain(connectorGRC, err)
	}

	notices := make([]string, 0, len(deadlines))
	var followUps []work.Payload
	for _, d := range deadlines {
		notices = append(notices, fmt.Sprintf("Control %s: %s due %s.", d.ControlRef, d.Activity, d.DueDate))
		if p.Bool("auto_update") {
			followUps = append(followUps, work.Payload{
				Intent: IntentUpdateRegister,
				Domain: Domain,
				Inputs: map[string]any{
					"risk_ref": d.ControlRef,
					"title":    d.Activity,
				},
			})
		}
	}

	res := work.Completed(map[string]any{
		"deadlines": deadlines,
		"count":     len(deadlines),
	}, notices...)
	res.FollowUps = followUps
	res.Telemetry = map[string]int64{"control_deadlines_found": int64(len(deadlines))}
	return res
}
