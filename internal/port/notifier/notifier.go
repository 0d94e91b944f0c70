// Package notifier defines the escalation notification port. Adapters
// deliver human-review escalations to wherever the reviewing team lives
// (Slack, Discord, email).
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier is missing required config.
var ErrNotConfigured = errors.New("notifier: not configured")

// Notification is the payload sent through a Notifier. Reasons and the
// payload fingerprint stand in for the command payload itself; raw
// financial detail never leaves the store through this channel.
type Notification struct {
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Level       string   `json:"level"` // "info", "warning", "error"
	CommandID   string   `json:"command_id,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	Reasons     []string `json:"reasons,omitempty"`
}

// Capabilities declares which features a notifier supports.
type Capabilities struct {
	RichFormatting bool `json:"rich_formatting"`
	Threads        bool `json:"threads"`
}

// Notifier is the port interface for delivering escalations.
type Notifier interface {
	// Name returns the unique identifier for this notifier (e.g. "slack").
	Name() string

	// Capabilities returns what this notifier supports.
	Capabilities() Capabilities

	// Send delivers a notification.
	Send(ctx context.Context, notification Notification) error
}
