// Package cfo implements the CFO/strategy domain worker: board pack
// generation and reporting-cycle deadline tracking against the analytics
// warehouse.
package cfo

import (
	"context"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/adapter/warehouse"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/records"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/port/finclient"
)

// Domain is the registry key for this worker.
const Domain = "cfo"

const connectorWarehouse = "analytics_warehouse"

const (
	IntentGenerateBoardPack = "cfo.generate_board_pack"
	IntentTrackDeadline     = "cfo.track_deadline"
)

type Worker struct {
	deps domainworker.Deps
}

// New creates the CFO/strategy worker.
func New(deps domainworker.Deps) domainworker.Worker {
	return &Worker{deps: deps}
}

func (w *Worker) Domain() string { return Domain }

func (w *Worker) Required() []work.Requirement {
	return []work.Requirement{
		{Name: connectorWarehouse, Type: connector.TypeAnalytics},
	}
}

func (w *Worker) Execute(ctx context.Context, orgID string, p *work.Payload) *work.Result {
	stored, gated := domainworker.Gate(ctx, w.deps, orgID, p, w.Required())
	if gated != nil {
		return gated
	}
	cfg, ok := finclient.FromRecord(stored[connectorWarehouse])
	if !ok {
		return work.ConfigMissing(connectorWarehouse)
	}
	client := warehouse.NewClient(cfg)
	if w.deps.Breaker != nil {
		client.SetBreaker(w.deps.Breaker)
	}

	switch p.Intent {
	case IntentGenerateBoardPack:
		return w.generateBoardPack(ctx, client, orgID, p)
	case IntentTrackDeadline:
		return w.trackDeadline(ctx, client, p)
	default:
		return work.UnsupportedIntent(p.Intent)
	}
}

func (w *Worker) generateBoardPack(ctx context.Context, client *warehouse.Client, orgID string, p *work.Payload) *work.Result {
	period := p.String("period")
	if period == "" {
		return work.NeedsHITL("missing_inputs:period",
			"A board pack needs a reporting period.")
	}

	var sections []string
	if items, ok := p.Inputs["sections"].([]any); ok {
		for _, it := range items {
			if s, ok := it.(string); ok {
				sections = append(sections, s)
			}
		}
	}

	resp, err := client.GenerateBoardPack(ctx, warehouse.BoardPackRequest{
		Period:   period,
		Sections: sections,
		Audience: p.String("audience"),
	})
	if err != nil {
		return work.Contain(connectorWarehouse, err)
	}

	pack := &records.BoardPack{
		OrgID:       orgID,
		Period:      period,
		Title:       p.String("title"),
		ExternalRef: resp.PackID,
	}
	if resp.ArtifactURL != "" {
		pack.Detail = map[string]any{"artifact_url": resp.ArtifactURL}
	}
	saved, err := w.deps.Store.UpsertBoardPack(ctx, pack)
	if err != nil {
		return work.Contain("board_pack_store", err)
	}

	out := map[string]any{
		"pack_id":      saved.ID,
		"external_ref": resp.PackID,
		"status":       resp.Status,
	}
	if resp.ArtifactURL != "" {
		out["artifact_url"] = resp.ArtifactURL
	}
	res := work.Completed(out,
		fmt.Sprintf("Board pack for %s generated as %s.", period, resp.PackID))
	res.Telemetry = map[string]int64{"board_packs_generated": 1}
	return res
}

func (w *Worker) trackDeadline(ctx context.Context, client *warehouse.Client, p *work.Payload) *work.Result {
	period := p.String("period")
	metrics := []string{"close_progress", "reporting_days_remaining"}

	points, err := client.QueryMetrics(ctx, period, metrics)
	if err != nil {
		return work.Contain(connectorWarehouse, err)
	}

	notices := make([]string, 0, len(points))
	for _, pt := range points {
		notices = append(notices, fmt.Sprintf("%s for %s: %.2f.", pt.Metric, pt.Period, pt.Value))
	}

	res := work.Completed(map[string]any{
		"metrics": points,
		"count":   len(points),
	}, notices...)
	res.Telemetry = map[string]int64{"reporting_metrics_queried": int64(len(points))}
	return res
}
