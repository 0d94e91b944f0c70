// Package safety defines the structured safety-agent output and the
// three-way decision reduction applied to it.
package safety

import (
	"encoding/json"
	"strings"
	"time"
)

// DecisionStatus is the safety agent's verdict on a command.
type DecisionStatus string

const (
	DecisionApproved  DecisionStatus = "approved"
	DecisionNeedsHITL DecisionStatus = "needs_hitl"
	DecisionRejected  DecisionStatus = "rejected"
)

// CommandRef identifies the reviewed command. It carries the payload
// fingerprint, never the payload itself, so safety audit records cannot
// leak raw financial detail.
type CommandRef struct {
	CommandID    string `json:"command_id"`
	Worker       string `json:"worker"`
	CommandType  string `json:"command_type"`
	Fingerprint  string `json:"fingerprint"`
	HITLRequired bool   `json:"hitl_required,omitempty"`
}

// ReviewEnvelope anchors a review to its session, org, and job.
type ReviewEnvelope struct {
	SessionID string `json:"session_id"`
	OrgID     string `json:"org_id"`
	JobID     string `json:"job_id,omitempty"`
}

// Decision is the agent's structured verdict.
type Decision struct {
	Status       DecisionStatus `json:"status"`
	Reasons      []string       `json:"reasons,omitempty"`
	Mitigations  []string       `json:"mitigations,omitempty"`
	HITLRequired bool           `json:"hitl_required,omitempty"`
}

// Refusal is an explicit agent refusal backed by a policy reference.
type Refusal struct {
	Reason string `json:"reason"`
	Policy string `json:"policy,omitempty"`
}

// Audit carries optional reviewer attribution for the audit trail.
type Audit struct {
	Reviewer   string    `json:"reviewer,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at,omitzero"`
}

// Review is the structured safety-agent output.
type Review struct {
	Command  CommandRef     `json:"command"`
	Envelope ReviewEnvelope `json:"envelope"`
	Decision Decision       `json:"decision"`
	Refusal  *Refusal       `json:"refusal,omitempty"`
	Audit    *Audit         `json:"audit,omitempty"`
}

// Outcome is the reduced three-way result the caller acts on. Every outcome
// carries human-readable reasons suitable for direct display.
type Outcome struct {
	Status      DecisionStatus `json:"status"`
	Reasons     []string       `json:"reasons,omitempty"`
	Mitigations []string       `json:"mitigations,omitempty"`
}

// Reduce collapses a review to a three-way outcome, evaluated in order:
//
//  1. nil review (call failed or returned nothing) → needs_hitl; a safety
//     check failure must never silently become an approval
//  2. explicit refusal, or decision.status == rejected → rejected
//  3. decision.status == needs_hitl, or decision.hitl_required → needs_hitl
//  4. otherwise → approved
func Reduce(r *Review) Outcome {
	if r == nil {
		return Outcome{
			Status:  DecisionNeedsHITL,
			Reasons: []string{"safety review unavailable: escalating to human review"},
		}
	}

	if r.Refusal != nil || r.Decision.Status == DecisionRejected {
		reasons := make([]string, 0, len(r.Decision.Reasons)+1)
		if r.Refusal != nil {
			reason := r.Refusal.Reason
			if r.Refusal.Policy != "" {
				reason += " (policy: " + r.Refusal.Policy + ")"
			}
			if reason != "" {
				reasons = append(reasons, reason)
			}
		}
		reasons = append(reasons, r.Decision.Reasons...)
		return Outcome{
			Status:      DecisionRejected,
			Reasons:     reasons,
			Mitigations: r.Decision.Mitigations,
		}
	}

	if r.Decision.Status == DecisionNeedsHITL || r.Decision.HITLRequired {
		return Outcome{
			Status:      DecisionNeedsHITL,
			Reasons:     r.Decision.Reasons,
			Mitigations: r.Decision.Mitigations,
		}
	}

	return Outcome{
		Status:      DecisionApproved,
		Reasons:     r.Decision.Reasons,
		Mitigations: r.Decision.Mitigations,
	}
}

// Reason joins the outcome's reasons into one display string.
func (o Outcome) Reason() string {
	return strings.Join(o.Reasons, "; ")
}

// Parse decodes a stored review snapshot. A structurally invalid or empty
// value yields nil rather than an error, mirroring director.Parse.
func Parse(raw json.RawMessage) *Review {
	if len(raw) == 0 {
		return nil
	}
	var r Review
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil
	}
	if r.Command.CommandID == "" && r.Decision.Status == "" {
		return nil
	}
	return &r
}
