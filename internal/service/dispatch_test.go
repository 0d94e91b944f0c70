package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ledgerline/ledgerline/internal/adapter/litellm"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/connector"
	"github.com/ledgerline/ledgerline/internal/domain/director"
	"github.com/ledgerline/ledgerline/internal/domain/job"
	"github.com/ledgerline/ledgerline/internal/domain/session"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/domainworker"
	"github.com/ledgerline/ledgerline/internal/storemem"

	_ "github.com/ledgerline/ledgerline/internal/worker/payables"
	_ "github.com/ledgerline/ledgerline/internal/worker/tax"
)

const testOrg = "org-1"

const (
	approvedReview = `{"command":{"command_id":"c"},"decision":{"status":"approved"}}`
	rejectedReview = `{"command":{"command_id":"c"},"decision":{"status":"rejected","reasons":["payment exceeds policy guardrail"]}}`
)

// llmStub serves the LiteLLM chat completion wire format with a fixed
// message content. A status >= 400 produces a bare error response.
func llmStub(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s, want /chat/completions", r.URL.Path)
		}
		if status >= 400 {
			rw.WriteHeader(status)
			return
		}
		json.NewEncoder(rw).Encode(map[string]any{
			"model":   "openai/gpt-4o",
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

type harness struct {
	store    *storemem.Store
	orc      *OrchestratorService
	dispatch *DispatchService
}

func newHarness(t *testing.T, directorContent, safetyContent string) *harness {
	t.Helper()
	return newHarnessServers(t, llmStub(t, http.StatusOK, directorContent), llmStub(t, http.StatusOK, safetyContent))
}

func newHarnessServers(t *testing.T, dirTS, safTS *httptest.Server) *harness {
	t.Helper()
	store := storemem.New()
	cfg := config.Defaults()

	orc := NewOrchestratorService(store, nil, nil, nil, nil)
	dir := NewDirectorService(store, litellm.NewClient(dirTS.URL, "test-key"), cfg.Director)
	saf := NewSafetyService(store, litellm.NewClient(safTS.URL, "test-key"), cfg.Safety)
	deps := domainworker.Deps{Store: store, Cfg: &cfg}

	return &harness{
		store:    store,
		orc:      orc,
		dispatch: NewDispatchService(orc, dir, saf, deps, nil),
	}
}

func (h *harness) newSession(t *testing.T, objective string) string {
	t.Helper()
	sess := &session.Session{OrgID: testOrg, CurrentObjective: objective}
	if err := h.orc.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess.ID
}

func (h *harness) enqueue(t *testing.T, req command.EnqueueRequest) *command.EnqueueResult {
	t.Helper()
	res, err := h.orc.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	return res
}

func (h *harness) registerConnector(t *testing.T, name string, typ connector.Type, endpoint string) {
	t.Helper()
	conf := map[string]any{}
	if endpoint != "" {
		conf["endpoint"] = endpoint
	}
	_, err := h.store.UpsertConnector(context.Background(), connector.RegisterRequest{
		OrgID:  testOrg,
		Name:   name,
		Type:   typ,
		Status: connector.StatusActive,
		Config: conf,
	})
	if err != nil {
		t.Fatalf("register connector %s: %v", name, err)
	}
}

func (h *harness) command(t *testing.T, id string) *command.Command {
	t.Helper()
	cmd, err := h.store.GetCommand(context.Background(), id)
	if err != nil {
		t.Fatalf("get command %s: %v", id, err)
	}
	return cmd
}

func (h *harness) job(t *testing.T, commandID string) *job.Job {
	t.Helper()
	jb, err := h.store.GetEarliestJobForCommand(context.Background(), commandID)
	if err != nil {
		t.Fatalf("get job for command %s: %v", commandID, err)
	}
	return jb
}

func planContent(t *testing.T, p director.Plan) string {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	return "Here is the plan.\n" + string(data)
}

func domainStep(id, commandType, domainName string, tokens int) director.Step {
	return director.Step{
		ID:     id,
		Status: director.StepStatusPending,
		Envelope: director.StepEnvelope{
			TargetWorker: job.WorkerDomain,
			CommandType:  commandType,
			Title:        "step " + id,
			Domain:       domainName,
			Budget:       &director.Budget{Tokens: tokens},
		},
	}
}

func TestDispatchDirectorEnqueuesPlanSteps(t *testing.T) {
	step2 := domainStep("step-2", "tax.check_deadline", "tax", 8)
	step2.Envelope.Dependencies = []string{"step-1"}
	plan := director.Plan{
		Version:   "1",
		Objective: "Close the quarter",
		Summary:   "Register the invoice, then check filing deadlines.",
		Steps:     []director.Step{domainStep("step-1", "ap.process_invoice", "payables", 8), step2},
	}

	h := newHarness(t, planContent(t, plan), approvedReview)
	sessID := h.newSession(t, "Close the quarter")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "director.plan",
		Worker:      job.WorkerDirector,
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusCompleted {
		t.Fatalf("command status = %s (%s), want completed", cmd.Status, cmd.LastError)
	}
	if !strings.Contains(string(cmd.Result), `"objective":"Close the quarter"`) {
		t.Errorf("result does not carry the plan: %s", cmd.Result)
	}
	if jb := h.job(t, res.CommandID); jb.Status != job.StatusCompleted {
		t.Errorf("job status = %s, want completed", jb.Status)
	}

	cmds, err := h.store.ListCommandsForSession(context.Background(), sessID)
	if err != nil {
		t.Fatalf("list commands: %v", err)
	}
	if len(cmds) != 3 {
		t.Fatalf("session has %d commands, want 3 (plan + 2 steps)", len(cmds))
	}
	steps := 0
	for _, c := range cmds {
		if c.IssuedBy != "director" {
			continue
		}
		steps++
		if c.Metadata["plan_step_id"] == nil {
			t.Errorf("step command %s has no plan_step_id metadata", c.ID)
		}
	}
	if steps != 2 {
		t.Errorf("director issued %d step commands, want 2", steps)
	}

	pending, err := h.store.ListPendingJobs(context.Background(), testOrg, job.WorkerDomain, 10)
	if err != nil {
		t.Fatalf("list pending jobs: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("pending domain jobs = %d, want 2", len(pending))
	}

	sess, err := h.store.GetSession(context.Background(), sessID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.LastDirectorRunID != res.JobID {
		t.Errorf("last director run = %q, want %q", sess.LastDirectorRunID, res.JobID)
	}
	if director.Parse(sess.DirectorState) == nil {
		t.Error("director state snapshot was not persisted")
	}
}

func TestDispatchDirectorRejectsOverBudgetPlan(t *testing.T) {
	tests := []struct {
		name    string
		steps   []director.Step
		wantErr error
	}{
		{
			name:    "per step ceiling",
			steps:   []director.Step{domainStep("step-1", "ap.process_invoice", "payables", 64)},
			wantErr: domain.ErrPlanBudgetExceeded,
		},
		{
			name: "plan wide ceiling",
			steps: []director.Step{
				domainStep("step-1", "ap.process_invoice", "payables", 30),
				domainStep("step-2", "tax.check_deadline", "tax", 30),
				domainStep("step-3", "risk.update_register", "riskctl", 30),
				domainStep("step-4", "audit.track_deadline", "audit", 30),
				domainStep("step-5", "cfo.track_deadline", "cfo", 30),
			},
			wantErr: domain.ErrPlanBudgetTotalExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := director.Plan{Version: "1", Objective: "Close the quarter", Steps: tt.steps}
			h := newHarness(t, planContent(t, plan), approvedReview)
			sessID := h.newSession(t, "Close the quarter")
			res := h.enqueue(t, command.EnqueueRequest{
				OrgID:       testOrg,
				SessionID:   sessID,
				CommandType: "director.plan",
				Worker:      job.WorkerDirector,
			})

			err := h.dispatch.Dispatch(context.Background(), res.JobID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("dispatch error = %v, want %v", err, tt.wantErr)
			}

			cmd := h.command(t, res.CommandID)
			if cmd.Status != command.StatusFailed {
				t.Errorf("command status = %s, want failed", cmd.Status)
			}
			if jb := h.job(t, res.CommandID); jb.Status != job.StatusFailed {
				t.Errorf("job status = %s, want failed", jb.Status)
			}

			// Budget rejection is all-or-nothing: no step may slip through.
			cmds, _ := h.store.ListCommandsForSession(context.Background(), sessID)
			if len(cmds) != 1 {
				t.Errorf("session has %d commands, want only the rejected plan command", len(cmds))
			}
		})
	}
}

func TestDispatchDirectorUnstructuredOutput(t *testing.T) {
	h := newHarness(t, "I could not produce a plan for this objective.", approvedReview)
	sessID := h.newSession(t, "Close the quarter")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "director.plan",
		Worker:      job.WorkerDirector,
	})

	err := h.dispatch.Dispatch(context.Background(), res.JobID)
	if !errors.Is(err, domain.ErrPlanMissingOutput) {
		t.Fatalf("dispatch error = %v, want ErrPlanMissingOutput", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusFailed {
		t.Errorf("command status = %s, want failed", cmd.Status)
	}
	if !strings.Contains(cmd.LastError, "no structured plan") {
		t.Errorf("last error = %q", cmd.LastError)
	}
}

func TestDispatchDirectorHITLPlan(t *testing.T) {
	plan := director.Plan{
		Version:      "1",
		Objective:    "Wire a large vendor payment",
		Steps:        []director.Step{domainStep("step-1", "ap.process_invoice", "payables", 8)},
		HITLRequired: true,
	}

	h := newHarness(t, planContent(t, plan), approvedReview)
	sessID := h.newSession(t, "Wire a large vendor payment")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "director.plan",
		Worker:      job.WorkerDirector,
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusCompleted {
		t.Fatalf("command status = %s, want completed", cmd.Status)
	}

	// The plan is recorded but none of its steps execute without a human.
	cmds, _ := h.store.ListCommandsForSession(context.Background(), sessID)
	if len(cmds) != 1 {
		t.Errorf("session has %d commands, want 1", len(cmds))
	}
	pending, _ := h.store.ListPendingJobs(context.Background(), testOrg, job.WorkerDomain, 10)
	if len(pending) != 0 {
		t.Errorf("pending domain jobs = %d, want 0", len(pending))
	}
}

func TestDispatchDomainDualApprovalInvoice(t *testing.T) {
	erp := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		json.NewEncoder(rw).Encode(map[string]any{"document_id": "DOC-9001", "status": "registered"})
	}))
	defer erp.Close()

	h := newHarness(t, approvedReview, approvedReview)
	h.registerConnector(t, "payables_module", connector.TypeERP, erp.URL)

	sessID := h.newSession(t, "Process the Acme invoice")
	payload, _ := json.Marshal(work.Payload{
		Intent: "ap.process_invoice",
		Inputs: map[string]any{
			"vendor":         "Acme GmbH",
			"invoice_number": "INV-900",
			"amount":         15000.0,
			"currency":       "EUR",
		},
	})
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "ap.process_invoice",
		Payload:     payload,
		Worker:      job.WorkerDomain,
		DomainAgent: "payables",
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusCompleted {
		t.Fatalf("command status = %s (%s), want completed", cmd.Status, cmd.LastError)
	}
	if !strings.Contains(string(cmd.Result), `"requiresDualApproval":true`) {
		t.Errorf("result does not flag dual approval: %s", cmd.Result)
	}

	inv, ok := h.store.APInvoices[testOrg+"/Acme GmbH/INV-900"]
	if !ok {
		t.Fatal("invoice was not persisted")
	}
	if !inv.RequiresDualApproval {
		t.Error("persisted invoice is not flagged for dual approval")
	}
	if jb := h.job(t, res.CommandID); jb.Status != job.StatusCompleted {
		t.Errorf("job status = %s, want completed", jb.Status)
	}
}

func TestDispatchDomainSafetyRejected(t *testing.T) {
	var erpCalls atomic.Int64
	erp := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		erpCalls.Add(1)
		json.NewEncoder(rw).Encode(map[string]any{"document_id": "DOC-1", "status": "registered"})
	}))
	defer erp.Close()

	h := newHarness(t, approvedReview, rejectedReview)
	h.registerConnector(t, "payables_module", connector.TypeERP, erp.URL)

	sessID := h.newSession(t, "Process the Acme invoice")
	payload, _ := json.Marshal(work.Payload{
		Intent: "ap.process_invoice",
		Inputs: map[string]any{"vendor": "Acme GmbH", "invoice_number": "INV-901", "amount": 500.0},
	})
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "ap.process_invoice",
		Payload:     payload,
		Worker:      job.WorkerDomain,
		DomainAgent: "payables",
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusFailed {
		t.Fatalf("command status = %s, want failed", cmd.Status)
	}
	if cmd.LastError != "payment exceeds policy guardrail" {
		t.Errorf("last error = %q", cmd.LastError)
	}
	if jb := h.job(t, res.CommandID); jb.Status != job.StatusCompleted {
		t.Errorf("job status = %s, want completed", jb.Status)
	}

	// A rejected command never reaches the worker or the ERP.
	if n := erpCalls.Load(); n != 0 {
		t.Errorf("ERP was called %d times", n)
	}
	if len(h.store.APInvoices) != 0 {
		t.Error("invoice was persisted despite rejection")
	}
}

func TestDispatchDomainSafetyUnavailable(t *testing.T) {
	h := newHarnessServers(t,
		llmStub(t, http.StatusOK, approvedReview),
		llmStub(t, http.StatusInternalServerError, ""))

	sessID := h.newSession(t, "Process the Acme invoice")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "ap.process_invoice",
		Worker:      job.WorkerDomain,
		DomainAgent: "payables",
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusFailed {
		t.Fatalf("command status = %s, want failed", cmd.Status)
	}
	if !strings.Contains(cmd.LastError, "safety review unavailable") {
		t.Errorf("last error = %q", cmd.LastError)
	}
}

func TestDispatchDomainUnregisteredWorker(t *testing.T) {
	h := newHarness(t, approvedReview, approvedReview)
	sessID := h.newSession(t, "Move treasury funds")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "treasury.sweep",
		Worker:      job.WorkerDomain,
		DomainAgent: "treasury",
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusFailed {
		t.Fatalf("command status = %s, want failed", cmd.Status)
	}
	if !strings.Contains(cmd.LastError, "treasury") {
		t.Errorf("last error = %q", cmd.LastError)
	}
	if jb := h.job(t, res.CommandID); jb.Status != job.StatusCompleted {
		t.Errorf("job status = %s, want completed", jb.Status)
	}
}

func TestDispatchDomainEscalatesInvalidInput(t *testing.T) {
	erp := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		json.NewEncoder(rw).Encode(map[string]any{"document_id": "DOC-1", "status": "registered"})
	}))
	defer erp.Close()

	h := newHarness(t, approvedReview, approvedReview)
	h.registerConnector(t, "payables_module", connector.TypeERP, erp.URL)

	sessID := h.newSession(t, "Process the Acme invoice")
	payload, _ := json.Marshal(work.Payload{
		Intent: "ap.process_invoice",
		Inputs: map[string]any{"vendor": "Acme GmbH", "invoice_number": "INV-902", "amount": -5.0},
	})
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "ap.process_invoice",
		Payload:     payload,
		Worker:      job.WorkerDomain,
		DomainAgent: "payables",
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	cmd := h.command(t, res.CommandID)
	if cmd.Status != command.StatusFailed {
		t.Fatalf("command status = %s, want failed", cmd.Status)
	}
	if cmd.LastError != "invalid_amount" {
		t.Errorf("last error = %q, want invalid_amount", cmd.LastError)
	}
	if !strings.Contains(string(cmd.Result), "needs_hitl") {
		t.Errorf("result does not carry the worker outcome: %s", cmd.Result)
	}
}

func TestDispatchDomainEnqueuesFollowUps(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		json.NewEncoder(rw).Encode(map[string]any{
			"deadlines": []map[string]any{
				{"jurisdiction": "FR", "filing_type": "vat_return", "period": "2026-08", "due_date": "2026-09-19"},
			},
		})
	}))
	defer gw.Close()

	h := newHarness(t, approvedReview, approvedReview)
	h.registerConnector(t, "tax_authority_gateway", connector.TypeTax, gw.URL)
	h.registerConnector(t, "general_ledger", connector.TypeLedger, "")

	sessID := h.newSession(t, "Prepare upcoming filings")
	payload, _ := json.Marshal(work.Payload{
		Intent: "tax.check_deadline",
		Inputs: map[string]any{"jurisdiction": "FR", "auto_prepare": true},
	})
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "tax.check_deadline",
		Payload:     payload,
		Worker:      job.WorkerDomain,
		DomainAgent: "tax",
	})

	if err := h.dispatch.Dispatch(context.Background(), res.JobID); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if cmd := h.command(t, res.CommandID); cmd.Status != command.StatusCompleted {
		t.Fatalf("command status = %s (%s), want completed", cmd.Status, cmd.LastError)
	}

	cmds, err := h.store.ListCommandsForSession(context.Background(), sessID)
	if err != nil {
		t.Fatalf("list commands: %v", err)
	}
	if len(cmds) != 2 {
		t.Fatalf("session has %d commands, want the deadline check plus one follow-up", len(cmds))
	}
	var followUp *command.Command
	for i := range cmds {
		if cmds[i].ID != res.CommandID {
			followUp = &cmds[i]
		}
	}
	if followUp == nil {
		t.Fatal("no follow-up command found")
	}
	if followUp.CommandType != "tax.prepare_filing" {
		t.Errorf("follow-up command type = %q", followUp.CommandType)
	}
	if followUp.IssuedBy != "worker:tax" {
		t.Errorf("follow-up issued by %q", followUp.IssuedBy)
	}
}

func TestDispatchClaimConflict(t *testing.T) {
	h := newHarness(t, approvedReview, approvedReview)
	sessID := h.newSession(t, "Close the quarter")
	res := h.enqueue(t, command.EnqueueRequest{
		OrgID:       testOrg,
		SessionID:   sessID,
		CommandType: "director.plan",
		Worker:      job.WorkerDirector,
	})

	if _, err := h.orc.ClaimJob(context.Background(), res.JobID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	err := h.dispatch.Dispatch(context.Background(), res.JobID)
	if !errors.Is(err, domain.ErrJobClaimConflict) {
		t.Fatalf("dispatch error = %v, want ErrJobClaimConflict", err)
	}
}
