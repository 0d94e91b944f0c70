package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ledgerline/ledgerline/internal/adapter/ws"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/job"
	"github.com/ledgerline/ledgerline/internal/domain/session"
	"github.com/ledgerline/ledgerline/internal/middleware"
	"github.com/ledgerline/ledgerline/internal/service"
)

// Handlers bundles the HTTP handlers with their service dependencies.
type Handlers struct {
	orc *service.OrchestratorService
	hub *ws.Hub
}

// NewHandlers creates the handler set. hub may be nil when the event
// stream is disabled.
func NewHandlers(orc *service.OrchestratorService, hub *ws.Hub) *Handlers {
	return &Handlers{orc: orc, hub: hub}
}

// --- Sessions ---

type createSessionRequest struct {
	ChatSessionRef   string         `json:"chat_session_ref,omitempty"`
	CurrentObjective string         `json:"current_objective,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createSessionRequest](w, r)
	if !ok {
		return
	}

	sess := &session.Session{
		OrgID:            middleware.OrgIDFromContext(r.Context()),
		ChatSessionRef:   req.ChatSessionRef,
		CurrentObjective: req.CurrentObjective,
		Metadata:         req.Metadata,
	}
	if err := h.orc.CreateSession(r.Context(), sess); err != nil {
		writeDomainError(w, err, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	sess, err := h.orc.GetSession(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) PatchSession(w http.ResponseWriter, r *http.Request) {
	patch, ok := readJSON[session.StateUpdate](w, r)
	if !ok {
		return
	}

	sess, err := h.orc.UpdateSessionState(r.Context(), urlParam(r, "id"), patch)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handlers) ListSessionCommands(w http.ResponseWriter, r *http.Request) {
	cmds, err := h.orc.ListSessionCommands(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "failed to list commands")
		return
	}
	if cmds == nil {
		cmds = []command.Command{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": cmds, "count": len(cmds)})
}

// --- Commands ---

type enqueueRequest struct {
	SessionID    string          `json:"session_id"`
	CommandType  string          `json:"command_type"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	IssuedBy     string          `json:"issued_by,omitempty"`
	Priority     int             `json:"priority,omitempty"`
	ScheduledFor *time.Time      `json:"scheduled_for,omitempty"`
	Worker       string          `json:"worker"`
	DomainAgent  string          `json:"domain_agent,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

func (h *Handlers) EnqueueCommand(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[enqueueRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.SessionID, "session_id") ||
		!requireField(w, req.CommandType, "command_type") {
		return
	}

	enq := command.EnqueueRequest{
		OrgID:       middleware.OrgIDFromContext(r.Context()),
		SessionID:   req.SessionID,
		CommandType: req.CommandType,
		Payload:     req.Payload,
		IssuedBy:    req.IssuedBy,
		Priority:    req.Priority,
		Worker:      job.WorkerKind(req.Worker),
		DomainAgent: req.DomainAgent,
		Metadata:    req.Metadata,
	}
	if req.ScheduledFor != nil {
		enq.ScheduledFor = *req.ScheduledFor
	}

	res, err := h.orc.Enqueue(r.Context(), enq)
	if err != nil {
		writeDomainError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) GetCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := h.orc.GetCommand(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

func (h *Handlers) GetEnvelope(w http.ResponseWriter, r *http.Request) {
	env, err := h.orc.GetEnvelope(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "envelope is incomplete")
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (h *Handlers) UpdateCommandStatus(w http.ResponseWriter, r *http.Request) {
	patch, ok := readJSON[command.StatusUpdate](w, r)
	if !ok {
		return
	}
	if !requireField(w, string(patch.Status), "status") {
		return
	}

	if err := h.orc.UpdateCommandStatus(r.Context(), urlParam(r, "id"), patch); err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(patch.Status)})
}

// --- Jobs ---

// ListPendingJobs serves full envelopes for due pending jobs of one worker
// kind, the feed an external poller claims from.
func (h *Handlers) ListPendingJobs(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("worker")
	if !job.ValidWorkerKind(kind) {
		writeError(w, http.StatusBadRequest, "worker must be one of director, safety, domain")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orgID := middleware.OrgIDFromContext(r.Context())
	envs, err := h.orc.ListPendingEnvelopes(r.Context(), orgID, job.WorkerKind(kind), limit)
	if err != nil {
		writeDomainError(w, err, "failed to list pending jobs")
		return
	}
	if envs == nil {
		envs = []command.Envelope{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"envelopes": envs, "count": len(envs)})
}

// --- HITL ---

type resolveHITLRequest struct {
	Reviewer string `json:"reviewer"`
	Approved bool   `json:"approved"`
	Note     string `json:"note,omitempty"`
}

func (h *Handlers) ResolveHITL(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[resolveHITLRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Reviewer, "reviewer") {
		return
	}

	id := urlParam(r, "id")
	if err := h.orc.ResolveHITL(r.Context(), id, req.Reviewer, req.Approved, req.Note); err != nil {
		writeDomainError(w, err, "command not found")
		return
	}

	cmd, err := h.orc.GetCommand(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// --- Events ---

func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream is disabled")
		return
	}
	h.hub.HandleWS(w, r)
}
