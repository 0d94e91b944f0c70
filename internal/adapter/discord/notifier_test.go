package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ledgerline/ledgerline/internal/port/notifier"
)

func TestSendEscalation(t *testing.T) {
	var gotBody []byte
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		rw.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	n := NewNotifier(ts.URL)
	err := n.Send(context.Background(), notifier.Notification{
		Title:       "Human review required",
		Message:     "Command tax.prepare_filing was escalated.",
		Level:       "error",
		CommandID:   "cmd-7",
		SessionID:   "sess-2",
		Fingerprint: "deadbeef",
		Reasons:     []string{"control_test_failed:R-12"},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	var msg discordMessage
	if err := json.Unmarshal(gotBody, &msg); err != nil {
		t.Fatalf("unmarshal webhook body: %v", err)
	}
	if len(msg.Embeds) != 1 {
		t.Fatalf("embeds = %d, want 1", len(msg.Embeds))
	}
	embed := msg.Embeds[0]
	if embed.Color != colorError {
		t.Errorf("color = %#x, want %#x", embed.Color, colorError)
	}
	if len(embed.Fields) != 3 {
		t.Fatalf("fields = %d, want reasons + command + session", len(embed.Fields))
	}
	if embed.Footer == nil || embed.Footer.Text != "payload deadbeef" {
		t.Errorf("footer = %+v", embed.Footer)
	}
}

func TestSendUnconfigured(t *testing.T) {
	n := NewNotifier("")
	err := n.Send(context.Background(), notifier.Notification{Title: "x"})
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("error = %v, want ErrNotConfigured", err)
	}
}

func TestRegistered(t *testing.T) {
	n, err := notifier.New(providerName, map[string]string{"webhook_url": "https://discord.example.com/x"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if !n.Capabilities().RichFormatting {
		t.Error("discord notifier should report rich formatting")
	}
}
