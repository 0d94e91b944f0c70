package ws

import (
	"context"
	"testing"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("expected non-nil hub")
	}
	if hub.ConnectionCount() != 0 {
		t.Fatalf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubBroadcastNoConnections(t *testing.T) {
	hub := NewHub()

	// Broadcast with no connections should not panic.
	hub.Broadcast(context.Background(), Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}

func TestHubBroadcastEventNoConnections(t *testing.T) {
	hub := NewHub()

	hub.BroadcastEvent(context.Background(), "org-1", EventHITLEscalated, HITLEscalationEvent{
		CommandID: "c1",
		SessionID: "s1",
		Status:    "needs_hitl",
		Reasons:   []string{"amount exceeds threshold"},
	})
}

func TestHubBroadcastEventMarshalError(t *testing.T) {
	hub := NewHub()

	// A channel cannot be marshaled to JSON; should log error, not panic.
	hub.BroadcastEvent(context.Background(), "org-1", "bad", make(chan int))
}

func TestHubRemoveNonexistent(t *testing.T) {
	hub := NewHub()

	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := &conn{ws: nil, orgID: "org-1", cancel: cancel}
	hub.remove(c)
}

func TestHubBroadcastToOrgNoConnections(t *testing.T) {
	hub := NewHub()

	hub.BroadcastToOrg(context.Background(), "org-1", Message{
		Type:    "test",
		Payload: []byte(`{"key":"value"}`),
	})
}
