// Package command defines the orchestrator command entity, one unit of
// intended action against an external financial system.
package command

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/ledgerline/ledgerline/internal/domain/job"
)

// Status represents the lifecycle state of a command.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if the command is in a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Terminal states never regress.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// DefaultPriority is the priority assigned when the caller does not set one.
// Smaller values are more urgent. Priority is advisory triage metadata, not
// a dispatch-order guarantee.
const DefaultPriority = 100

// Command is one unit of intended action. Commands are append-only audit
// records: they are never deleted, only driven to a terminal status.
// The raw payload never travels into safety audit records, only its
// fingerprint does.
type Command struct {
	ID           string          `json:"id"`
	OrgID        string          `json:"org_id"`
	SessionID    string          `json:"session_id"`
	CommandType  string          `json:"command_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       Status          `json:"status"`
	Priority     int             `json:"priority"`
	IssuedBy     string          `json:"issued_by,omitempty"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	StartedAt    time.Time       `json:"started_at,omitzero"`
	CompletedAt  time.Time       `json:"completed_at,omitzero"`
	FailedAt     time.Time       `json:"failed_at,omitzero"`
	Result       json.RawMessage `json:"result,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// EnqueueRequest holds the fields for atomically creating a command and its
// job. The two rows are created together or not at all.
type EnqueueRequest struct {
	OrgID        string          `json:"org_id"`
	SessionID    string          `json:"session_id"`
	CommandType  string          `json:"command_type"`
	Payload      json.RawMessage `json:"payload"`
	IssuedBy     string          `json:"issued_by,omitempty"`
	Priority     int             `json:"priority,omitempty"`
	ScheduledFor time.Time       `json:"scheduled_for,omitzero"`
	Worker       job.WorkerKind  `json:"worker"`
	DomainAgent  string          `json:"domain_agent,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// Validate checks that the enqueue request is well-formed.
func (r *EnqueueRequest) Validate() error {
	if r.OrgID == "" {
		return errors.New("org_id is required")
	}
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	if r.CommandType == "" {
		return errors.New("command_type is required")
	}
	if !job.ValidWorkerKind(string(r.Worker)) {
		return errors.New("worker must be one of director, domain, safety")
	}
	if r.Worker == job.WorkerDomain && r.DomainAgent == "" {
		return errors.New("domain_agent is required for domain commands")
	}
	return nil
}

// EnqueueResult reports what the atomic enqueue created.
type EnqueueResult struct {
	CommandID    string    `json:"command_id"`
	JobID        string    `json:"job_id"`
	SessionID    string    `json:"session_id"`
	Status       Status    `json:"status"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// StatusUpdate is a partial patch applied by UpdateCommandStatus. Only the
// new status is required; callers supply whichever timestamps, result, and
// error text the transition needs.
type StatusUpdate struct {
	Status      Status          `json:"status"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	FailedAt    *time.Time      `json:"failed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	LastError   *string         `json:"last_error,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
}
