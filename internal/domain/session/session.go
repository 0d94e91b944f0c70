// Package session defines the orchestrator session entity, one per ongoing
// planning conversation.
package session

import (
	"bytes"
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of an orchestrator session.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusClosed  Status = "closed"
)

// Session is one ongoing planning conversation for an organization.
// DirectorState and SafetyState hold the last structurally valid plan and
// safety review snapshots; a stored value that fails to parse is treated
// as absent on read, never as an error.
type Session struct {
	ID                string          `json:"id"`
	OrgID             string          `json:"org_id"`
	ChatSessionRef    string          `json:"chat_session_ref,omitempty"`
	Status            Status          `json:"status"`
	DirectorState     json.RawMessage `json:"director_state,omitempty"`
	SafetyState       json.RawMessage `json:"safety_state,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	CurrentObjective  string          `json:"current_objective,omitempty"`
	LastDirectorRunID string          `json:"last_director_run_id,omitempty"`
	LastSafetyRunID   string          `json:"last_safety_run_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	ClosedAt          time.Time       `json:"closed_at,omitzero"`
}

// StateUpdate is a partial patch for a session. Nil pointer fields are left
// untouched. An explicit JSON null for DirectorState/SafetyState clears the
// stored value to an empty object, which is distinct from "not provided".
type StateUpdate struct {
	Status            *Status          `json:"status,omitempty"`
	CurrentObjective  *string          `json:"current_objective,omitempty"`
	DirectorState     *json.RawMessage `json:"director_state,omitempty"`
	SafetyState       *json.RawMessage `json:"safety_state,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
	LastDirectorRunID *string          `json:"last_director_run_id,omitempty"`
	LastSafetyRunID   *string          `json:"last_safety_run_id,omitempty"`
	ClosedAt          *time.Time       `json:"closed_at,omitempty"`
}

var jsonNull = []byte("null")

// NormalizeState maps an explicit null (or empty) raw state to an empty
// object so "cleared" and "never set" stay distinguishable in storage.
func NormalizeState(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return json.RawMessage(`{}`)
	}
	return raw
}

// Apply merges the patch into s in place. Shared by the postgres store's
// read-modify-write path and in-memory test doubles.
func (s *Session) Apply(u StateUpdate) {
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.CurrentObjective != nil {
		s.CurrentObjective = *u.CurrentObjective
	}
	if u.DirectorState != nil {
		s.DirectorState = NormalizeState(*u.DirectorState)
	}
	if u.SafetyState != nil {
		s.SafetyState = NormalizeState(*u.SafetyState)
	}
	if u.Metadata != nil {
		s.Metadata = u.Metadata
	}
	if u.LastDirectorRunID != nil {
		s.LastDirectorRunID = *u.LastDirectorRunID
	}
	if u.LastSafetyRunID != nil {
		s.LastSafetyRunID = *u.LastSafetyRunID
	}
	if u.ClosedAt != nil {
		s.ClosedAt = *u.ClosedAt
		s.Status = StatusClosed
	}
}
