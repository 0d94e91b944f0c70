package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelad "github.com/ledgerline/ledgerline/internal/adapter/otel"
	"github.com/ledgerline/ledgerline/internal/adapter/ws"
	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/job"
	"github.com/ledgerline/ledgerline/internal/domain/safety"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
)

// DispatchService claims jobs and drives them through planning, safety
// review, and domain execution. Every dispatch ends with the job and its
// command in a terminal status; external failures surface as human
// escalations, not dispatcher crashes.
type DispatchService struct {
	orc        *OrchestratorService
	director   *DirectorService
	safety     *SafetyService
	workerDeps domainworker.Deps
	metrics    *otelad.Metrics
}

// NewDispatchService creates a DispatchService.
func NewDispatchService(orc *OrchestratorService, dir *DirectorService, saf *SafetyService, workerDeps domainworker.Deps, metrics *otelad.Metrics) *DispatchService {
	return &DispatchService{orc: orc, director: dir, safety: saf, workerDeps: workerDeps, metrics: metrics}
}

// Dispatch claims and executes one job. A claim conflict (another dispatcher
// won the race) returns domain.ErrJobClaimConflict; callers treat that as
// routine.
func (s *DispatchService) Dispatch(ctx context.Context, jobID string) error {
	start := time.Now()

	j, err := s.orc.ClaimJob(ctx, jobID)
	if err != nil {
		return err
	}

	ctx, span := otelad.StartDispatchSpan(ctx, j.ID, string(j.Worker), j.DomainAgent)
	defer span.End()

	env, err := s.orc.GetEnvelope(ctx, j.CommandID)
	if err != nil {
		s.failJob(ctx, j.ID, fmt.Sprintf("envelope assembly: %v", err))
		return err
	}
	env.Job = j

	if env.Command.Status == command.StatusQueued {
		if err := s.orc.UpdateCommandStatus(ctx, env.Command.ID, command.StatusUpdate{Status: command.StatusRunning}); err != nil {
			s.failJob(ctx, j.ID, fmt.Sprintf("command start: %v", err))
			return err
		}
		env.Command.Status = command.StatusRunning
	}

	switch j.Worker {
	case job.WorkerDirector:
		err = s.runDirector(ctx, env)
	case job.WorkerSafety:
		err = s.runSafety(ctx, env)
	case job.WorkerDomain:
		err = s.runDomain(ctx, env)
	default:
		reason := fmt.Sprintf("unknown worker kind %q", j.Worker)
		s.failJob(ctx, j.ID, reason)
		s.failCommand(ctx, env, reason)
		err = errors.New(reason)
	}

	if s.metrics != nil {
		s.metrics.DispatchLatency.Record(ctx, time.Since(start).Seconds())
	}
	return err
}

// runDirector produces a plan and enqueues its steps as commands. A plan
// flagged hitl_required is escalated instead of auto-enqueued.
func (s *DispatchService) runDirector(ctx context.Context, env *command.Envelope) error {
	plan, err := s.director.Plan(ctx, env)
	if err != nil {
		if s.metrics != nil && (errors.Is(err, domain.ErrPlanBudgetExceeded) ||
			errors.Is(err, domain.ErrPlanBudgetTotalExceeded) ||
			errors.Is(err, domain.ErrPlanMissingOutput)) {
			s.metrics.PlansRejected.Add(ctx, 1)
		}
		s.failJob(ctx, env.Job.ID, err.Error())
		s.failCommand(ctx, env, err.Error())
		return err
	}

	if s.metrics != nil {
		s.metrics.PlansProduced.Add(ctx, 1)
	}

	if plan.HITLRequired {
		s.orc.EscalateHITL(ctx, env.Command.OrgID, ws.HITLEscalationEvent{
			CommandID: env.Command.ID,
			SessionID: env.Session.ID,
			Status:    string(safety.DecisionNeedsHITL),
			Reasons:   []string{"plan requires human approval before execution"},
		})
	} else {
		for _, step := range plan.Steps {
			req := command.EnqueueRequest{
				OrgID:       env.Command.OrgID,
				SessionID:   env.Session.ID,
				CommandType: step.Envelope.CommandType,
				Payload:     step.Envelope.Payload,
				IssuedBy:    "director",
				Worker:      step.Envelope.TargetWorker,
				DomainAgent: step.Envelope.Domain,
				Metadata: map[string]any{
					"plan_step_id": step.ID,
					"title":        step.Envelope.Title,
				},
			}
			if _, err := s.orc.Enqueue(ctx, req); err != nil {
				slog.Error("enqueue plan step failed", "step_id", step.ID, "error", err)
				// Remaining steps still get their chance; the failed step
				// is visible in the plan result and the logs.
			}
		}
	}

	result, err := json.Marshal(plan)
	if err != nil {
		result = []byte(`{}`)
	}
	s.completeJob(ctx, env.Job.ID)
	s.completeCommand(ctx, env, json.RawMessage(result))
	return nil
}

// runSafety executes a standalone safety review command.
func (s *DispatchService) runSafety(ctx context.Context, env *command.Envelope) error {
	outcome := s.safety.Review(ctx, env)

	result, err := json.Marshal(outcome)
	if err != nil {
		result = []byte(`{}`)
	}
	s.completeJob(ctx, env.Job.ID)

	if outcome.Status == safety.DecisionApproved {
		s.completeCommand(ctx, env, json.RawMessage(result))
		return nil
	}

	s.escalate(ctx, env, outcome)
	s.failCommandWithResult(ctx, env, outcome.Reason(), json.RawMessage(result))
	return nil
}

// runDomain gates a domain command through safety review, then executes it
// through the registered worker for its domain.
func (s *DispatchService) runDomain(ctx context.Context, env *command.Envelope) error {
	outcome := s.safety.Review(ctx, env)
	if outcome.Status != safety.DecisionApproved {
		s.completeJob(ctx, env.Job.ID)
		s.escalate(ctx, env, outcome)
		s.failCommand(ctx, env, outcome.Reason())
		return nil
	}

	worker, err := domainworker.New(env.Job.DomainAgent, s.workerDeps)
	if err != nil {
		reason := err.Error()
		s.completeJob(ctx, env.Job.ID)
		s.escalate(ctx, env, safety.Outcome{Status: safety.DecisionNeedsHITL, Reasons: []string{reason}})
		s.failCommand(ctx, env, reason)
		return nil
	}

	var payload work.Payload
	if err := json.Unmarshal(env.Command.Payload, &payload); err != nil {
		payload = work.Payload{}
	}
	if payload.Intent == "" {
		payload.Intent = env.Command.CommandType
	}
	if payload.Domain == "" {
		payload.Domain = env.Job.DomainAgent
	}

	res := domainworker.Run(ctx, worker, env.Command.OrgID, &payload)

	for _, fu := range res.FollowUps {
		fuPayload, err := json.Marshal(fu)
		if err != nil {
			slog.Error("marshal follow-up payload", "error", err)
			continue
		}
		req := command.EnqueueRequest{
			OrgID:       env.Command.OrgID,
			SessionID:   env.Session.ID,
			CommandType: fu.Intent,
			Payload:     fuPayload,
			IssuedBy:    "worker:" + worker.Domain(),
			Worker:      job.WorkerDomain,
			DomainAgent: fu.Domain,
		}
		if _, err := s.orc.Enqueue(ctx, req); err != nil {
			slog.Error("enqueue follow-up failed", "intent", fu.Intent, "error", err)
		}
	}

	result, err := json.Marshal(res)
	if err != nil {
		result = []byte(`{}`)
	}
	s.completeJob(ctx, env.Job.ID)

	if res.Status == work.StatusCompleted {
		s.completeCommand(ctx, env, json.RawMessage(result))
		return nil
	}

	s.escalate(ctx, env, safety.Outcome{
		Status:  safety.DecisionNeedsHITL,
		Reasons: append([]string{res.HITLReason}, res.Notices...),
	})
	s.failCommandWithResult(ctx, env, res.HITLReason, json.RawMessage(result))
	return nil
}

// --- terminal-state helpers ---

func (s *DispatchService) completeJob(ctx context.Context, jobID string) {
	now := time.Now().UTC()
	if err := s.orc.UpdateJobStatus(ctx, jobID, job.StatusUpdate{
		Status:      job.StatusCompleted,
		CompletedAt: &now,
	}); err != nil {
		slog.Error("complete job failed", "job_id", jobID, "error", err)
	}
}

func (s *DispatchService) failJob(ctx context.Context, jobID, reason string) {
	now := time.Now().UTC()
	if err := s.orc.UpdateJobStatus(ctx, jobID, job.StatusUpdate{
		Status:    job.StatusFailed,
		FailedAt:  &now,
		LastError: &reason,
	}); err != nil {
		slog.Error("fail job failed", "job_id", jobID, "error", err)
	}
}

func (s *DispatchService) completeCommand(ctx context.Context, env *command.Envelope, result json.RawMessage) {
	if err := s.orc.UpdateCommandStatus(ctx, env.Command.ID, command.StatusUpdate{
		Status: command.StatusCompleted,
		Result: result,
	}); err != nil {
		slog.Error("complete command failed", "command_id", env.Command.ID, "error", err)
	}
}

func (s *DispatchService) failCommand(ctx context.Context, env *command.Envelope, reason string) {
	s.failCommandWithResult(ctx, env, reason, nil)
}

func (s *DispatchService) failCommandWithResult(ctx context.Context, env *command.Envelope, reason string, result json.RawMessage) {
	if err := s.orc.UpdateCommandStatus(ctx, env.Command.ID, command.StatusUpdate{
		Status:    command.StatusFailed,
		Result:    result,
		LastError: &reason,
	}); err != nil {
		slog.Error("fail command failed", "command_id", env.Command.ID, "error", err)
	}
}

func (s *DispatchService) escalate(ctx context.Context, env *command.Envelope, outcome safety.Outcome) {
	s.orc.EscalateHITL(ctx, env.Command.OrgID, ws.HITLEscalationEvent{
		CommandID:   env.Command.ID,
		SessionID:   env.Session.ID,
		Status:      string(outcome.Status),
		Reasons:     outcome.Reasons,
		Mitigations: outcome.Mitigations,
		Fingerprint: work.Fingerprint(env.Command.Payload),
	})
}
