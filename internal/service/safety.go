package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledgerline/ledgerline/internal/adapter/litellm"
	otelad "github.com/ledgerline/ledgerline/internal/adapter/otel"
	"github.com/ledgerline/ledgerline/internal/config"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/safety"
	"github.com/ledgerline/ledgerline/internal/domain/session"
	"github.com/ledgerline/ledgerline/internal/domain/work"
	"github.com/ledgerline/ledgerline/internal/port/database"
)

const safetySystemPrompt = `You are a compliance safety reviewer for finance operations. Review the
described command and respond with a single JSON object:
{
  "command": {"command_id": "...", "worker": "...", "command_type": "...", "fingerprint": "..."},
  "decision": {"status": "approved|needs_hitl|rejected", "reasons": ["..."], "mitigations": ["..."], "hitl_required": false},
  "refusal": {"reason": "...", "policy": "..."}
}
Omit "refusal" unless you are refusing outright. Escalate anything involving
irreversible money movement, regulator submissions, or missing approvals.
Do not include any text outside the JSON object.`

// SafetyService runs the safety review gate. It never sees raw command
// payloads (only the payload fingerprint travels into the review) and it
// fails safe: an unavailable or unparseable review becomes needs_hitl,
// never an approval.
type SafetyService struct {
	store database.Store
	llm   *litellm.Client
	cfg   config.Safety
}

// NewSafetyService creates a SafetyService.
func NewSafetyService(store database.Store, llm *litellm.Client, cfg config.Safety) *SafetyService {
	return &SafetyService{store: store, llm: llm, cfg: cfg}
}

// Review runs the safety agent over the envelope's command and reduces the
// response to a three-way outcome.
func (s *SafetyService) Review(ctx context.Context, env *command.Envelope) safety.Outcome {
	ctx, span := otelad.StartSafetySpan(ctx, env.Command.ID)
	defer span.End()

	ref := safety.CommandRef{
		CommandID:   env.Command.ID,
		Worker:      string(env.Job.Worker),
		CommandType: env.Command.CommandType,
		Fingerprint: work.Fingerprint(env.Command.Payload),
	}

	review := s.runAgent(ctx, env, ref)
	if review != nil {
		// The agent echo of the command ref is advisory; the authoritative
		// identity comes from the envelope.
		review.Command = ref
		review.Envelope = safety.ReviewEnvelope{
			SessionID: env.Session.ID,
			OrgID:     env.Command.OrgID,
			JobID:     env.Job.ID,
		}
	}

	outcome := safety.Reduce(review)

	// The persisted snapshot is always a well-formed review so a later
	// safety.Parse of the session state round-trips. When the agent call
	// failed, the snapshot records the escalation verdict itself.
	snapshot := review
	if snapshot == nil {
		snapshot = &safety.Review{
			Command: ref,
			Envelope: safety.ReviewEnvelope{
				SessionID: env.Session.ID,
				OrgID:     env.Command.OrgID,
				JobID:     env.Job.ID,
			},
			Decision: safety.Decision{
				Status:       outcome.Status,
				Reasons:      outcome.Reasons,
				HITLRequired: true,
			},
		}
	}
	s.saveState(ctx, env, snapshot)

	slog.Info("safety review",
		"command_id", env.Command.ID,
		"fingerprint", ref.Fingerprint,
		"outcome", outcome.Status)
	return outcome
}

// runAgent calls the safety model. Any failure returns nil, which Reduce
// maps to needs_hitl.
func (s *SafetyService) runAgent(ctx context.Context, env *command.Envelope, ref safety.CommandRef) *safety.Review {
	var b strings.Builder
	fmt.Fprintf(&b, "Command type: %s\n", env.Command.CommandType)
	fmt.Fprintf(&b, "Target worker: %s\n", env.Job.Worker)
	if env.Job.DomainAgent != "" {
		fmt.Fprintf(&b, "Domain: %s\n", env.Job.DomainAgent)
	}
	fmt.Fprintf(&b, "Payload fingerprint: %s\n", ref.Fingerprint)
	if env.Session.CurrentObjective != "" {
		fmt.Fprintf(&b, "Session objective: %s\n", env.Session.CurrentObjective)
	}

	resp, err := s.llm.ChatCompletion(ctx, litellm.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []litellm.ChatMessage{
			{Role: "system", Content: safetySystemPrompt},
			{Role: "user", Content: b.String()},
		},
		MaxTokens: s.cfg.MaxTokens,
	})
	if err != nil {
		slog.Warn("safety completion failed, escalating", "command_id", env.Command.ID, "error", err)
		return nil
	}

	return safety.Parse(json.RawMessage(extractJSON(resp.Content)))
}

func (s *SafetyService) saveState(ctx context.Context, env *command.Envelope, review *safety.Review) {
	data, err := json.Marshal(review)
	if err != nil {
		slog.Error("marshal safety state", "error", err)
		return
	}
	state := json.RawMessage(data)
	runID := env.Job.ID
	if _, err := s.store.UpdateSessionState(ctx, env.Session.ID, session.StateUpdate{
		SafetyState:     &state,
		LastSafetyRunID: &runID,
	}); err != nil {
		slog.Error("persist safety state failed", "session_id", env.Session.ID, "error", err)
	}
}
