// Package service implements the orchestration pipeline business logic on
// top of the database, queue, cache, and agent gateway ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	otelad "github.com/ledgerline/ledgerline/internal/adapter/otel"
	"github.com/ledgerline/ledgerline/internal/adapter/ristretto"
	"github.com/ledgerline/ledgerline/internal/adapter/ws"
	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/job"
	"github.com/ledgerline/ledgerline/internal/domain/session"
	"github.com/ledgerline/ledgerline/internal/port/cache"
	"github.com/ledgerline/ledgerline/internal/port/database"
	"github.com/ledgerline/ledgerline/internal/port/messagequeue"
	"github.com/ledgerline/ledgerline/internal/port/notifier"
)

// OrchestratorService is the facade over sessions, commands, jobs, and the
// connector registry. Every mutation that other components react to is
// published on the queue and broadcast to connected review consoles.
type OrchestratorService struct {
	store    database.Store
	queue    messagequeue.Queue
	hub      *ws.Hub
	cache    cache.Cache
	metrics  *otelad.Metrics
	notifier notifier.Notifier
}

// NewOrchestratorService creates an OrchestratorService. hub, cache, and
// metrics are optional; a nil value disables that concern.
func NewOrchestratorService(store database.Store, queue messagequeue.Queue, hub *ws.Hub, c cache.Cache, metrics *otelad.Metrics) *OrchestratorService {
	return &OrchestratorService{store: store, queue: queue, hub: hub, cache: c, metrics: metrics}
}

// --- Sessions ---

// CreateSession opens a new planning session for an org.
func (s *OrchestratorService) CreateSession(ctx context.Context, sess *session.Session) error {
	return s.store.CreateSession(ctx, sess)
}

// GetSession returns a session by ID.
func (s *OrchestratorService) GetSession(ctx context.Context, id string) (*session.Session, error) {
	return s.store.GetSession(ctx, id)
}

// UpdateSessionState applies a partial state patch to a session.
func (s *OrchestratorService) UpdateSessionState(ctx context.Context, id string, patch session.StateUpdate) (*session.Session, error) {
	return s.store.UpdateSessionState(ctx, id, patch)
}

// --- Commands ---

// Enqueue atomically creates a command and its job, then announces it.
func (s *OrchestratorService) Enqueue(ctx context.Context, req command.EnqueueRequest) (*command.EnqueueResult, error) {
	ctx, span := otelad.StartEnqueueSpan(ctx, req.SessionID, req.CommandType)
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEnqueueFailed, err)
	}

	// The session must exist before any command is accepted against it.
	if _, err := s.store.GetSession(ctx, req.SessionID); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrEnqueueFailed, err)
	}

	res, err := s.store.EnqueueCommand(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CommandsEnqueued.Add(ctx, 1)
	}
	s.publish(ctx, messagequeue.SubjectCommandEnqueued, res)
	return res, nil
}

// GetCommand returns a command by ID.
func (s *OrchestratorService) GetCommand(ctx context.Context, id string) (*command.Command, error) {
	return s.store.GetCommand(ctx, id)
}

// ListSessionCommands returns the commands issued within a session.
func (s *OrchestratorService) ListSessionCommands(ctx context.Context, sessionID string) ([]command.Command, error) {
	return s.store.ListCommandsForSession(ctx, sessionID)
}

// GetEnvelope assembles the {command, session, job} triple for planning,
// safety review, or execution. Assembly fails closed: a missing session or
// job is an error, never a partial envelope.
func (s *OrchestratorService) GetEnvelope(ctx context.Context, commandID string) (*command.Envelope, error) {
	cmd, err := s.store.GetCommand(ctx, commandID)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, fmt.Errorf("envelope for command %s: %w", commandID, err)
	}
	j, err := s.store.GetEarliestJobForCommand(ctx, commandID)
	if err != nil {
		return nil, fmt.Errorf("envelope for command %s: %w", commandID, err)
	}
	return &command.Envelope{Command: cmd, Session: sess, Job: j}, nil
}

// ListPendingEnvelopes returns full envelopes for due pending jobs of one
// worker kind, scheduledAt ascending, an empty orgID meaning all orgs.
// External pollers consume this instead of raw job rows. Assembly fails
// closed: a pending job whose command or session row is missing aborts the
// listing rather than returning a partial envelope.
func (s *OrchestratorService) ListPendingEnvelopes(ctx context.Context, orgID string, kind job.WorkerKind, limit int) ([]command.Envelope, error) {
	jobs, err := s.store.ListPendingJobs(ctx, orgID, kind, limit)
	if err != nil {
		return nil, err
	}

	envs := make([]command.Envelope, 0, len(jobs))
	for i := range jobs {
		j := &jobs[i]
		cmd, err := s.store.GetCommand(ctx, j.CommandID)
		if err != nil {
			return nil, fmt.Errorf("envelope for job %s: %w", j.ID, err)
		}
		sess, err := s.store.GetSession(ctx, cmd.SessionID)
		if err != nil {
			return nil, fmt.Errorf("envelope for job %s: %w", j.ID, err)
		}
		envs = append(envs, command.Envelope{Command: cmd, Session: sess, Job: j})
	}
	return envs, nil
}

// UpdateCommandStatus applies a status transition after checking it is
// legal, then announces the change.
func (s *OrchestratorService) UpdateCommandStatus(ctx context.Context, id string, patch command.StatusUpdate) error {
	cmd, err := s.store.GetCommand(ctx, id)
	if err != nil {
		return err
	}
	if !cmd.Status.CanTransition(patch.Status) {
		return fmt.Errorf("command %s: %s -> %s: %w", id, cmd.Status, patch.Status, domain.ErrIllegalTransition)
	}

	stampStatusUpdate(&patch)
	if err := s.store.UpdateCommandStatus(ctx, id, patch); err != nil {
		return err
	}

	event := ws.CommandStatusEvent{CommandID: id, SessionID: cmd.SessionID, Status: string(patch.Status)}
	s.publish(ctx, messagequeue.SubjectCommandStatus, event)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, cmd.OrgID, ws.EventCommandStatus, event)
	}
	return nil
}

// --- Jobs ---

// ClaimJob atomically claims a pending job for execution.
func (s *OrchestratorService) ClaimJob(ctx context.Context, jobID string) (*job.Job, error) {
	j, err := s.store.ClaimJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.JobsClaimed.Add(ctx, 1)
	}
	return j, nil
}

// UpdateJobStatus applies a job status transition and announces it. The
// store rejects illegal transitions.
func (s *OrchestratorService) UpdateJobStatus(ctx context.Context, id string, patch job.StatusUpdate) error {
	if err := s.store.UpdateJobStatus(ctx, id, patch); err != nil {
		return err
	}
	if s.metrics != nil && patch.Status == job.StatusFailed {
		s.metrics.JobsFailed.Add(ctx, 1)
	}
	s.publish(ctx, messagequeue.SubjectJobStatus, map[string]string{
		"job_id": id,
		"status": string(patch.Status),
	})
	return nil
}

// --- Connectors ---

// RegisterConnector upserts a connector record and invalidates its cache
// entry.
func (s *OrchestratorService) RegisterConnector(ctx context.Context, req connector.RegisterRequest) (string, error) {
	id, err := s.store.UpsertConnector(ctx, req)
	if err != nil {
		return "", err
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, ristretto.ConnectorKey(req.OrgID, req.Name)); err != nil {
			slog.Warn("connector cache invalidation failed", "name", req.Name, "error", err)
		}
	}
	return id, nil
}

// GetConnector returns one org connector, read through the cache.
func (s *OrchestratorService) GetConnector(ctx context.Context, orgID, name string) (*connector.Record, error) {
	key := ristretto.ConnectorKey(orgID, name)
	if s.cache != nil {
		if data, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var rec connector.Record
			if err := json.Unmarshal(data, &rec); err == nil {
				return &rec, nil
			}
		}
	}

	rec, err := s.store.GetConnectorByName(ctx, orgID, name)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if data, err := json.Marshal(rec); err == nil {
			if err := s.cache.Set(ctx, key, data, ristretto.ConnectorTTL); err != nil {
				slog.Warn("connector cache write failed", "name", name, "error", err)
			}
		}
	}
	return rec, nil
}

// ListConnectors returns all connectors for an org.
func (s *OrchestratorService) ListConnectors(ctx context.Context, orgID string) ([]connector.Record, error) {
	return s.store.ListOrgConnectors(ctx, orgID)
}

// --- HITL ---

// ResolveHITL records a human reviewer's verdict on an escalated command
// and drives it to a terminal status.
func (s *OrchestratorService) ResolveHITL(ctx context.Context, commandID, reviewer string, approved bool, note string) error {
	cmd, err := s.store.GetCommand(ctx, commandID)
	if err != nil {
		return err
	}
	if cmd.Status.IsTerminal() {
		return fmt.Errorf("command %s already %s: %w", commandID, cmd.Status, domain.ErrConflict)
	}

	now := time.Now().UTC()
	meta := map[string]any{"hitl_reviewer": reviewer, "hitl_note": note}
	patch := command.StatusUpdate{Metadata: meta}
	if approved {
		patch.Status = command.StatusCompleted
		patch.CompletedAt = &now
	} else {
		patch.Status = command.StatusFailed
		patch.FailedAt = &now
		reason := "rejected by reviewer"
		patch.LastError = &reason
	}
	return s.UpdateCommandStatus(ctx, commandID, patch)
}

// SetNotifier attaches an outbound escalation notifier. Nil leaves
// escalations on the queue and websocket channels only.
func (s *OrchestratorService) SetNotifier(n notifier.Notifier) {
	s.notifier = n
}

// EscalateHITL publishes a human-review escalation for a command outcome.
func (s *OrchestratorService) EscalateHITL(ctx context.Context, orgID string, event ws.HITLEscalationEvent) {
	if s.metrics != nil {
		s.metrics.HITLEscalations.Add(ctx, 1)
	}
	s.publish(ctx, messagequeue.SubjectHITLEscalated, event)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, orgID, ws.EventHITLEscalated, event)
	}
	if s.notifier != nil {
		level := "warning"
		if event.Status == "rejected" {
			level = "error"
		}
		err := s.notifier.Send(ctx, notifier.Notification{
			Title:       "Human review required",
			Message:     fmt.Sprintf("A command in org %s was escalated (%s).", orgID, event.Status),
			Level:       level,
			CommandID:   event.CommandID,
			SessionID:   event.SessionID,
			Fingerprint: event.Fingerprint,
			Reasons:     event.Reasons,
		})
		if err != nil {
			slog.Error("escalation notification failed", "command_id", event.CommandID, "error", err)
		}
	}
}

// publish marshals and publishes an event, logging rather than failing:
// the store write has already happened and remains authoritative.
func (s *OrchestratorService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal queue event", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Error("publish queue event", "subject", subject, "error", err)
	}
}

// stampStatusUpdate fills the timestamp matching the target status when the
// caller did not set one.
func stampStatusUpdate(patch *command.StatusUpdate) {
	now := time.Now().UTC()
	switch patch.Status {
	case command.StatusRunning:
		if patch.StartedAt == nil {
			patch.StartedAt = &now
		}
	case command.StatusCompleted:
		if patch.CompletedAt == nil {
			patch.CompletedAt = &now
		}
	case command.StatusFailed:
		if patch.FailedAt == nil {
			patch.FailedAt = &now
		}
	}
}
