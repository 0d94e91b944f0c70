package logger

import (
	"context"
	"testing"

	"github.com/ledgerline/ledgerline/internal/config"
)

func TestNewSynchronous(t *testing.T) {
	l, closer := New(config.Logging{Level: "debug", Service: "ledgerline-test"})
	defer closer.Close()

	if l == nil {
		t.Fatal("nil logger")
	}
	l.Debug("boot")
}

func TestNewAsync(t *testing.T) {
	l, closer := New(config.Logging{Level: "info", Service: "ledgerline-test", Async: true})
	if l == nil {
		t.Fatal("nil logger")
	}
	l.Info("session created", "session_id", "s-1")
	closer.Close()
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"verbose", "INFO"},
		{"", "INFO"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := parseLevel(tc.in).String(); got != tc.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tc.in, got, tc.want)
			}
		})
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("RequestID on empty context = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-42")
	if got := RequestID(ctx); got != "req-42" {
		t.Errorf("RequestID = %q, want req-42", got)
	}
}
