// Package work defines the domain-worker contract: the command payload a
// worker consumes and the standardized result it returns.
package work

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ledgerline/ledgerline/internal/domain/connector"
)

// ResultStatus is the terminal state a worker reports for one execution.
type ResultStatus string

const (
	StatusCompleted ResultStatus = "completed"
	StatusNeedsHITL ResultStatus = "needs_hitl"
)

// Payload carries the intent and inputs for one domain worker execution.
type Payload struct {
	Intent          string                      `json:"intent"`
	Domain          string                      `json:"domain"`
	Objective       string                      `json:"objective,omitempty"`
	Inputs          map[string]any              `json:"inputs,omitempty"`
	Guardrails      []string                    `json:"guardrails,omitempty"`
	TelemetryTags   []string                    `json:"telemetry_tags,omitempty"`
	ConnectorStatus map[string]connector.Status `json:"connector_status,omitempty"`
	SafetyFlags     []string                    `json:"safety_flags,omitempty"`
	Metadata        map[string]any              `json:"metadata,omitempty"`
}

// String returns the named string input, or "" if absent.
func (p *Payload) String(key string) string {
	v, _ := p.Inputs[key].(string)
	return v
}

// Float returns the named numeric input, or 0 if absent.
func (p *Payload) Float(key string) float64 {
	switch v := p.Inputs[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns the named boolean input, or false if absent.
func (p *Payload) Bool(key string) bool {
	v, _ := p.Inputs[key].(bool)
	return v
}

// Result is the standardized outcome of one domain worker execution.
// Notices are human-readable strings suitable for direct display; raw
// connector error text lives in HITLReason for audit, not for end users.
type Result struct {
	Status     ResultStatus     `json:"status"`
	Output     map[string]any   `json:"output,omitempty"`
	Notices    []string         `json:"notices,omitempty"`
	HITLReason string           `json:"hitl_reason,omitempty"`
	FollowUps  []Payload        `json:"follow_ups,omitempty"`
	Telemetry  map[string]int64 `json:"telemetry,omitempty"`
}

// Completed builds a successful result.
func Completed(output map[string]any, notices ...string) *Result {
	return &Result{Status: StatusCompleted, Output: output, Notices: notices}
}

// NeedsHITL builds a human-escalation result.
func NeedsHITL(reason string, notices ...string) *Result {
	return &Result{Status: StatusNeedsHITL, HITLReason: reason, Notices: notices}
}

// UnsupportedIntent builds the standard escalation for an intent a worker
// does not recognize.
func UnsupportedIntent(intent string) *Result {
	return NeedsHITL("intent_not_supported:"+intent,
		fmt.Sprintf("No automated handler for intent %q; routed to a human operator.", intent))
}

// Requirement names one connector a domain worker depends on, with the
// connector type it must be registered as.
type Requirement struct {
	Name string
	Type connector.Type
}

// MissingConnectors returns the names of required connectors that are not
// ready, considering both the payload's own connector-status map and the
// organization's stored records. A stored record of the wrong type counts
// as missing. Names come back sorted for deterministic reasons strings.
func MissingConnectors(p *Payload, stored map[string]*connector.Record, required []Requirement) []string {
	var missing []string
	for _, req := range required {
		if status, ok := p.ConnectorStatus[req.Name]; ok && status != connector.StatusActive {
			missing = append(missing, req.Name)
			continue
		}
		rec, ok := stored[req.Name]
		if !ok || rec == nil || rec.Status != connector.StatusActive || rec.Type != req.Type {
			missing = append(missing, req.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

// GateResult builds the standard needs_hitl result for unready connectors:
// hitlReason "activate_connectors:<comma-joined-names>" plus one notice per
// missing connector. No external call may be attempted after this.
func GateResult(missing []string) *Result {
	notices := make([]string, 0, len(missing))
	for _, name := range missing {
		notices = append(notices, fmt.Sprintf("Connector %q is not active; activate it to proceed.", name))
	}
	return NeedsHITL("activate_connectors:"+strings.Join(missing, ","), notices...)
}

// ConfigMissing builds the standard needs_hitl result for a connector whose
// stored config lacks an endpoint.
func ConfigMissing(name string) *Result {
	return NeedsHITL("connector_config_missing",
		fmt.Sprintf("Connector %q has no endpoint configured.", name))
}

// Contain converts an external-system failure into a reviewable escalation.
// Worker boundaries call this instead of letting connector or persistence
// errors propagate.
func Contain(connectorName string, err error) *Result {
	return NeedsHITL(fmt.Sprintf("%s: %v", connectorName, err),
		fmt.Sprintf("External call through %q failed; a human reviewer has the full error.", connectorName))
}
