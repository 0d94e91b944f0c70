package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ledgerline"

// Metrics holds all orchestrator metric instruments.
type Metrics struct {
	CommandsEnqueued metric.Int64Counter
	PlansProduced    metric.Int64Counter
	PlansRejected    metric.Int64Counter
	JobsClaimed      metric.Int64Counter
	JobsFailed       metric.Int64Counter
	HITLEscalations  metric.Int64Counter
	DispatchLatency  metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CommandsEnqueued, err = meter.Int64Counter("ledgerline.commands.enqueued",
		metric.WithDescription("Number of commands enqueued"))
	if err != nil {
		return nil, err
	}

	m.PlansProduced, err = meter.Int64Counter("ledgerline.plans.produced",
		metric.WithDescription("Number of director plans accepted"))
	if err != nil {
		return nil, err
	}

	m.PlansRejected, err = meter.Int64Counter("ledgerline.plans.rejected",
		metric.WithDescription("Number of director plans rejected by budget or validation"))
	if err != nil {
		return nil, err
	}

	m.JobsClaimed, err = meter.Int64Counter("ledgerline.jobs.claimed",
		metric.WithDescription("Number of jobs claimed by pollers"))
	if err != nil {
		return nil, err
	}

	m.JobsFailed, err = meter.Int64Counter("ledgerline.jobs.failed",
		metric.WithDescription("Number of jobs driven to failed"))
	if err != nil {
		return nil, err
	}

	m.HITLEscalations, err = meter.Int64Counter("ledgerline.hitl.escalations",
		metric.WithDescription("Number of executions escalated to a human reviewer"))
	if err != nil {
		return nil, err
	}

	m.DispatchLatency, err = meter.Float64Histogram("ledgerline.dispatch.duration_seconds",
		metric.WithDescription("Job dispatch duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
