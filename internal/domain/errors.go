// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// Envelope assembly errors. Each missing link in the command → session → job
// chain fails with its own sentinel so callers can tell which reference broke.
var (
	ErrCommandNotFound = errors.New("command_not_found")
	ErrSessionNotFound = errors.New("orchestrator_session_not_found")
	ErrJobNotFound     = errors.New("orchestrator_job_not_found")
)

// ErrEnqueueFailed indicates the atomic command+job creation failed;
// nothing was persisted.
var ErrEnqueueFailed = errors.New("enqueue_failed")

// ErrJobClaimConflict indicates another poller claimed the job between
// listing and claiming it.
var ErrJobClaimConflict = errors.New("job already claimed")

// Planning agent errors.
var (
	ErrPlanMissingOutput       = errors.New("director_plan_missing_output")
	ErrPlanBudgetExceeded      = errors.New("director_plan_budget_exceeded")
	ErrPlanBudgetTotalExceeded = errors.New("director_plan_budget_total_exceeded")
)

// ErrIllegalTransition indicates a status update that would regress a
// terminal state or skip a required intermediate state.
var ErrIllegalTransition = errors.New("illegal status transition")
