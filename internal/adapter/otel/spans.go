package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "ledgerline"

// StartEnqueueSpan starts a span for a command enqueue.
func StartEnqueueSpan(ctx context.Context, sessionID, commandType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "enqueue",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("command.type", commandType),
		),
	)
}

// StartPlanSpan starts a span for a director planning run.
func StartPlanSpan(ctx context.Context, sessionID, commandID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "plan",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("command.id", commandID),
		),
	)
}

// StartSafetySpan starts a span for a safety review.
func StartSafetySpan(ctx context.Context, commandID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "safety_review",
		trace.WithAttributes(
			attribute.String("command.id", commandID),
		),
	)
}

// StartDispatchSpan starts a span for a job dispatch.
func StartDispatchSpan(ctx context.Context, jobID, worker, domainAgent string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "dispatch",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.worker", worker),
			attribute.String("job.domain_agent", domainAgent),
		),
	)
}
