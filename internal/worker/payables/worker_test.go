package payables

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
	deps := domainworker.Deps{Store: store, Cfg: &cfg}

	conf := map[string]any{}
	if endpoint != "" {
		conf["endpoint"] = endpoint
	}
	_, err := store.UpsertConnector(context.Background(), connector.RegisterRequest{
		OrgID:  testOrg,
		Name:   connectorERP,
		Type:   connector.TypeERP,
		Status: connector.StatusActive,
		Config: conf,
	})
	if err != nil {
		t.Fatalf("register connector: %v", err)
	}
	return deps, store
}

func erpServer(t *testing.T, status string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/invoices" {
			t.Errorf("path = %s, want /v1/invoices", r.URL.Path)
		}
		json.NewEncoder(rw).Encode(map[string]any{
			"document_id": "DOC-1001",
			"status":      status,
		})
	}))
}

func TestProcessInvoice(t *testing.T) {
	ts := erpServer(t, "registered")
	defer ts.Close()

	deps, store := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentProcessInvoice,
		Inputs: map[string]any{
			"vendor":         "Acme GmbH",
			"invoice_number": "INV-77",
			"amount":         2500.0,
			"currency":       "EUR",
		},
	})

	if res.Status != work.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", res.Status, res.HITLReason)
	}
	if res.Output["requiresDualApproval"] != false {
		t.Errorf("requiresDualApproval = %v, want false", res.Output["requiresDualApproval"])
	}

	inv, ok := store.APInvoices[testOrg+"/Acme GmbH/INV-77"]
	if !ok {
		t.Fatal("invoice was not persisted")
	}
	if inv.ExternalRef != "DOC-1001" || inv.RequiresDualApproval {
		t.Errorf("persisted invoice = %+v", inv)
	}
}

func TestProcessInvoiceDualApprovalThreshold(t *testing.T) {
	ts := erpServer(t, "registered")
	defer ts.Close()

	// The default threshold is 10000; a 15000 EUR invoice must be flagged.
	deps, store := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentProcessInvoice,
		Inputs: map[string]any{
			"vendor":         "Acme GmbH",
			"invoice_number": "INV-15000",
			"amount":         15000.0,
			"currency":       "EUR",
		},
	})

	if res.Status != work.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", res.Status, res.HITLReason)
	}
	if res.Output["requiresDualApproval"] != true {
		t.Errorf("requiresDualApproval = %v, want true", res.Output["requiresDualApproval"])
	}
	found := false
	for _, n := range res.Notices {
		if strings.Contains(n, "dual-approval") {
			found = true
		}
	}
	if !found {
		t.Errorf("notices %v lack a dual-approval warning", res.Notices)
	}

	inv := store.APInvoices[testOrg+"/Acme GmbH/INV-15000"]
	if inv == nil || !inv.RequiresDualApproval {
		t.Errorf("persisted invoice = %+v, want requires_dual_approval", inv)
	}
}

func TestProcessInvoiceAtExactThreshold(t *testing.T) {
	ts := erpServer(t, "registered")
	defer ts.Close()

	deps, _ := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentProcessInvoice,
		Inputs: map[string]any{
			"vendor":         "Acme GmbH",
			"invoice_number": "INV-10000",
			"amount":         10000.0,
		},
	})

	if res.Status != work.StatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.Output["requiresDualApproval"] != true {
		t.Error("an invoice at exactly the threshold must require dual approval")
	}
}

func TestProcessInvoiceInvalidAmount(t *testing.T) {
	deps, _ := newDeps(t, "http://example.test")
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentProcessInvoice,
		Inputs: map[string]any{"vendor": "Acme GmbH", "invoice_number": "INV-0", "amount": -5.0},
	})

	if res.Status != work.StatusNeedsHITL {
		t.Fatalf("status = %s, want needs_hitl", res.Status)
	}
	if res.HITLReason != "invalid_amount" {
		t.Errorf("hitl reason = %q", res.HITLReason)
	}
}

func TestProcessInvoiceContainsERPFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		http.Error(rw, "erp down", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	deps, store := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentProcessInvoice,
		Inputs: map[string]any{"vendor": "Acme GmbH", "invoice_number": "INV-9", "amount": 100.0},
	})

	if res.Status != work.StatusNeedsHITL {
		t.Fatalf("status = %s, want needs_hitl", res.Status)
	}
	if len(store.APInvoices) != 0 {
		t.Error("no invoice should be persisted on ERP failure")
	}
}

func TestCheckDeadline(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("within_days"); got != "7" {
			t.Errorf("within_days = %q, want 7", got)
		}
		json.NewEncoder(rw).Encode(map[string]any{
			"invoices": []map[string]any{
				{"vendor": "Acme GmbH", "invoice_number": "INV-3", "amount": 950.0, "currency": "EUR", "due_date": "2026-09-05"},
				{"vendor": "Globex", "invoice_number": "INV-4", "amount": 120.0, "currency": "USD", "due_date": "2026-09-06"},
			},
		})
	}))
	defer ts.Close()

	deps, _ := newDeps(t, ts.URL)
	w := New(deps)

	res := w.Execute(context.Background(), testOrg, &work.Payload{
		Intent: IntentCheckDeadline,
		Inputs: map[string]any{"within_days": 7.0},
	})

	if res.Status != work.StatusCompleted {
		t.Fatalf("status = %s (%s), want completed", res.Status, res.HITLReason)
	}
	if res.Output["count"] != 2 {
		t.Errorf("count = %v, want 2", res.Output["count"])
	}
	if len(res.Notices) != 2 {
		t.Errorf("notices = %v", res.Notices)
	}
}

func TestGateBlocksInactiveConnector(t *testing.T) {
	store := storemem.New()
	cfg := config.Defaults()
	deps := domainworker.Deps{Store: store, Cfg: &cfg}
	_, err := store.UpsertConnector(context.Background(), connector.RegisterRequest{
		OrgID:  testOrg,
		Name:   connectorERP,
		Type:   connector.TypeERP,
		Status: connector.StatusPending,
		Config: map[string]any{"endpoint": "http://example.test"},
	})
	if err != nil {
		t.Fatalf("register connector: %v", err)
	}

	w := New(deps)
	res := w.Execute(context.Background(), testOrg, &work.Payload{Intent: IntentProcessInvoice})

	if res.Status != work.StatusNeedsHITL {
		t.Fatalf("status = %s, want needs_hitl", res.Status)
	}
	if !strings.HasPrefix(res.HITLReason, "activate_connectors:") {
		t.Errorf("hitl reason = %q", res.HITLReason)
	}
}
