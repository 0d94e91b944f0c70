// Package director defines the structured planning-agent output (the
// finance director plan) and the token budget circuit breaker enforced
// on every accepted plan.
package director

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ledgerline/ledgerline/internal/domain/job"
)

// StepStatus represents the lifecycle state of a plan step.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Guardrails carries the policy constraints a step must execute under.
type Guardrails struct {
	SafetyPolicies       []string `json:"safety_policies,omitempty"`
	ResidencyConstraints []string `json:"residency_constraints,omitempty"`
}

// Budget is the optional resource ceiling the planner proposes for a step.
type Budget struct {
	Tokens   int     `json:"tokens,omitempty"`
	Currency string  `json:"currency,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// StepEnvelope describes the command a plan step will enqueue.
type StepEnvelope struct {
	TargetWorker          job.WorkerKind  `json:"target_worker"`
	CommandType           string          `json:"command_type"`
	Title                 string          `json:"title"`
	Description           string          `json:"description,omitempty"`
	Domain                string          `json:"domain,omitempty"`
	Payload               json.RawMessage `json:"payload,omitempty"`
	SuccessCriteria       []string        `json:"success_criteria,omitempty"`
	Dependencies          []string        `json:"dependencies,omitempty"`
	ConnectorDependencies []string        `json:"connector_dependencies,omitempty"`
	TelemetryTags         []string        `json:"telemetry_tags,omitempty"`
	Guardrails            Guardrails      `json:"guardrails,omitzero"`
	HITLRequired          bool            `json:"hitl_required,omitempty"`
	Budget                *Budget         `json:"budget,omitempty"`
}

// Step is one planned action within a finance director plan.
type Step struct {
	ID       string       `json:"id"`
	Status   StepStatus   `json:"status"`
	Envelope StepEnvelope `json:"envelope"`
}

// Plan is the structured planning-agent output.
type Plan struct {
	Version      string   `json:"version"`
	Objective    string   `json:"objective"`
	Summary      string   `json:"summary,omitempty"`
	DecisionLog  []string `json:"decision_log,omitempty"`
	Steps        []Step   `json:"steps"`
	HITLRequired bool     `json:"hitl_required,omitempty"`
}

// Validate checks that an agent-produced plan is structurally usable.
// Invalid agent output is an adapter-level failure, never a default plan.
func (p *Plan) Validate() error {
	if p.Objective == "" {
		return errors.New("objective is required")
	}
	if len(p.Steps) == 0 {
		return errors.New("at least one step is required")
	}
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return fmt.Errorf("step %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("step %d: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if !job.ValidWorkerKind(string(s.Envelope.TargetWorker)) {
			return fmt.Errorf("step %q: unknown target worker %q", s.ID, s.Envelope.TargetWorker)
		}
		if s.Envelope.CommandType == "" {
			return fmt.Errorf("step %q: command_type is required", s.ID)
		}
		if s.Envelope.TargetWorker == job.WorkerDomain && s.Envelope.Domain == "" {
			return fmt.Errorf("step %q: domain is required for domain steps", s.ID)
		}
	}
	for _, s := range p.Steps {
		for _, dep := range s.Envelope.Dependencies {
			if !seen[dep] {
				return fmt.Errorf("step %q: unknown dependency %q", s.ID, dep)
			}
		}
	}
	return nil
}

// Parse decodes a stored plan snapshot. A structurally invalid or empty
// value yields nil rather than an error so schema drift in persisted state
// never blocks the pipeline.
func Parse(raw json.RawMessage) *Plan {
	if len(raw) == 0 {
		return nil
	}
	var p Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil
	}
	if err := p.Validate(); err != nil {
		return nil
	}
	return &p
}
