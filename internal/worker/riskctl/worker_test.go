package riskctl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/storemem"
)

const testOrg = "org-1"

func newDeps(t *testing.T, endpoint string) (domainworker.Deps, *storemem.Store) {
	t.Helper()
	store := storemem.New()
	cfg := config.Defaults()
	_, err := store.UpsertConnector(context.Background(), connector.RegisterRequest{
		OrgID:  testOrg,
		Name:   connectorGRC,
		Type:   connector.TypeCompliance,
		Status: connector.StatusActive,
		Config: map[string]any{"endpoint": endpoint},
	})
	if err != nil {
		t.Fatalf("register connector: %v", err)
	}
	return domainworker.Deps{Store: store, Cfg: &cfg}, store
}

func grcServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/risks":
			var req map[string]any
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(rw).Encode(map[string]any{
				"risk_ref": req["risk_ref"],
				"status":   "recorded",
			})
		case "/v1/controls/deadlines":
			json.NewEncoder(rw).Encode(map[string]any{
				"deadlines": []map[string]any{
					{"control_ref": "CTL-9", "activity": "quarterly recertification", "due_date": "2026-09-30"},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestUpdateRegister(t *testing.T) {
	ts := grcServer(t)
	defer ts.Close()

	deps, store := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentUpdateRegister,
		Inputs: map[string]any{
			"risk_ref":    "RSK-12",
			"title":       "Vendor concentration",
			"severity":    "medium",
			"test_result": "passed",
		},
	})

	if res.Status != work.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", res.Status, res.HITLReason)
	}

	entry, ok := store.RiskEntries[testOrg+"/RSK-12"]
	if !ok {
		t.Fatal("risk entry was not persisted")
	}
	if entry.Severity != "medium" || entry.TestResult != "passed" {
		t.Errorf("persisted entry = %+v", entry)
	}
}

func TestUpdateRegisterFailedTestEscalates(t *testing.T) {
	ts := grcServer(t)
	defer ts.Close()

	deps, store := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentUpdateRegister,
		Inputs: map[string]any{
			"risk_ref":    "RSK-13",
			"test_result": "failed",
		},
	})

	if res.Status != work.StatusNeedsHITL {
		t.Fatalf("status = %s, want needs_hitl", res.Status)
	}
	if !strings.HasPrefix(res.HITLReason, "control_test_failed:") {
		t.Errorf("hitl reason = %q", res.HITLReason)
	}
	// The register update itself still lands before escalation.
	if _, ok := store.RiskEntries[testOrg+"/RSK-13"]; !ok {
		t.Error("failed test must still be recorded in the register")
	}
}

func TestUpdateRegisterRequiresRef(t *testing.T) {
	deps, _ := newDeps(t, "http://example.test")
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{Intent: IntentUpdateRegister})

	if res.Status != work.StatusNeedsHITL {
		t.Fatalf("status = %s, want needs_hitl", res.Status)
	}
	if !strings.HasPrefix(res.HITLReason, "missing_inputs:") {
		t.Errorf("hitl reason = %q", res.HITLReason)
	}
}

func TestTrackDeadline(t *testing.T) {
	ts := grcServer(t)
	defer ts.Close()

	deps, _ := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentTrackDeadline,
		Inputs: map[string]any{"auto_update": true},
	})

	if res.Status != work.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", res.Status, res.HITLReason)
	}
	if len(res.FollowUps) != 1 {
		t.Fatalf("follow-ups = %d, want 1", len(res.FollowUps))
	}
	if res.FollowUps[0].Intent != IntentUpdateRegister {
		t.Errorf("follow-up intent = %q", res.FollowUps[0].Intent)
	}
}

func TestContainsGRCFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		http.Error(rw, "grc down", http.StatusInternalServerError)
	}))
	defer ts.Close()

	deps, _ := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentUpdateRegister,
		Inputs: map[string]any{"risk_ref": "RSK-1"},
	})

	if res.Status != work.StatusNeedsHITL {
		t.Fatalf("status = %s, want needs_hitl", res.Status)
	}
	if !strings.Contains(res.HITLReason, connectorGRC) {
		t.Errorf("hitl reason %q does not name the connector", res.HITLReason)
	}
}
