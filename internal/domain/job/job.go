// Package job defines the orchestrator job entity, the execution unit a
// worker process claims.
package job

import "time"

// WorkerKind identifies which poller family handles a job.
type WorkerKind string

const (
	WorkerDirector WorkerKind = "director"
	WorkerDomain   WorkerKind = "domain"
	WorkerSafety   WorkerKind = "safety"
)

// ValidWorkerKind reports whether k is a known worker kind.
func ValidWorkerKind(k string) bool {
	switch WorkerKind(k) {
	case WorkerDirector, WorkerDomain, WorkerSafety:
		return true
	}
	return false
}

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true if the job is in a final state. A failed job stays
// failed until an external scheduler enqueues a replacement; there is no
// built-in retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. Terminal states never regress.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusFailed
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Job is the claimable execution unit created 1:1 with its command. If the
// store ever holds multiple jobs for one command, the earliest-created job
// is authoritative.
type Job struct {
	ID          string         `json:"id"`
	OrgID       string         `json:"org_id"`
	CommandID   string         `json:"command_id"`
	Worker      WorkerKind     `json:"worker"`
	DomainAgent string         `json:"domain_agent,omitempty"`
	Status      Status         `json:"status"`
	Attempts    int            `json:"attempts"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	StartedAt   time.Time      `json:"started_at,omitzero"`
	CompletedAt time.Time      `json:"completed_at,omitzero"`
	FailedAt    time.Time      `json:"failed_at,omitzero"`
	LastError   string         `json:"last_error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// StatusUpdate is a partial patch applied by UpdateJobStatus. Only the new
// status is required; callers supply whichever timestamps and error text the
// transition needs.
type StatusUpdate struct {
	Status      Status         `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	FailedAt    *time.Time     `json:"failed_at,omitempty"`
	LastError   *string        `json:"last_error,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
