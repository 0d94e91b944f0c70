package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventCommandStatus = "command.status"
	EventJobStatus     = "job.status"
	EventHITLEscalated = "hitl.escalated"
)

// CommandStatusEvent is broadcast when a command's status changes.
type CommandStatusEvent struct {
	CommandID string `json:"command_id"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// JobStatusEvent is broadcast when a job's status changes.
type JobStatusEvent struct {
	JobID     string `json:"job_id"`
	CommandID string `json:"command_id"`
	Worker    string `json:"worker"`
	Status    string `json:"status"`
}

// HITLEscalationEvent is broadcast when an execution needs a human reviewer.
// It carries reasons and mitigations, never the command payload.
type HITLEscalationEvent struct {
	CommandID   string   `json:"command_id"`
	SessionID   string   `json:"session_id"`
	Status      string   `json:"status"` // needs_hitl or rejected
	Reasons     []string `json:"reasons,omitempty"`
	Mitigations []string `json:"mitigations,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// BroadcastEvent marshals a typed event and broadcasts it to one org's
// connected clients.
func (h *Hub) BroadcastEvent(ctx context.Context, orgID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToOrg(ctx, orgID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
