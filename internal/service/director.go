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
	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/command"
	"github.com/ledgerline/ledgerline/internal/domain/director"
	"github.com/ledgerline/ledgerline/internal/domain/session"
	"github.com/ledgerline/ledgerline/internal/port/database"
)

const directorSystemPrompt = `You are a finance operations planning agent. Turn the objective into a
structured execution plan. Respond with a single JSON object:
{
  "version": "1",
  "objective": "...",
  "summary": "...",
  "decision_log": ["..."],
  "hitl_required": false,
  "steps": [
    {
      "id": "step-1",
      "status": "pending",
      "envelope": {
        "target_worker": "domain",
        "command_type": "execute_domain_intent",
        "title": "...",
        "domain": "tax|payables|riskctl|audit|cfo|regfiling",
        "payload": {"intent": "...", "inputs": {}},
        "success_criteria": ["..."],
        "dependencies": [],
        "connector_dependencies": ["..."],
        "guardrails": {"safety_policies": []},
        "hitl_required": false,
        "budget": {"tokens": 8}
      }
    }
  ]
}
Steps targeting "domain" must name the domain. Keep per-step token budgets
small. Do not include any text outside the JSON object.`

// DirectorService runs the planning agent: it turns a session objective
// into a validated, budget-checked finance director plan.
type DirectorService struct {
	store  database.Store
	llm    *litellm.Client
	cfg    config.Director
	limits director.BudgetLimits
}

// NewDirectorService creates a DirectorService.
func NewDirectorService(store database.Store, llm *litellm.Client, cfg config.Director) *DirectorService {
	return &DirectorService{
		store: store,
		llm:   llm,
		cfg:   cfg,
		limits: director.BudgetLimits{
			StepTokens:  cfg.StepTokenLimit,
			TotalTokens: cfg.TotalTokenLimit,
		},
	}
}

// Plan produces a plan for the envelope's command. A structurally invalid
// agent response or a budget breach rejects the whole run; there is no
// partial or default plan. The accepted plan is persisted as the session's
// director state before it is returned.
func (s *DirectorService) Plan(ctx context.Context, env *command.Envelope) (*director.Plan, error) {
	ctx, span := otelad.StartPlanSpan(ctx, env.Session.ID, env.Command.ID)
	defer span.End()

	prompt := s.buildPrompt(env)
	resp, err := s.llm.ChatCompletion(ctx, litellm.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []litellm.ChatMessage{
			{Role: "system", Content: directorSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("director completion: %w", err)
	}

	raw := extractJSON(resp.Content)
	plan := director.Parse(json.RawMessage(raw))
	if plan == nil {
		return nil, fmt.Errorf("%w: no structured plan in agent response", domain.ErrPlanMissingOutput)
	}
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrPlanMissingOutput, err)
	}
	if err := director.EnsureBudget(plan, s.limits); err != nil {
		return nil, err
	}

	if err := s.saveState(ctx, env, plan); err != nil {
		// The plan is still good; state persistence failure is logged and
		// the pipeline continues on the returned plan.
		slog.Error("persist director state failed", "session_id", env.Session.ID, "error", err)
	}

	slog.Info("plan accepted",
		"session_id", env.Session.ID,
		"command_id", env.Command.ID,
		"steps", len(plan.Steps),
		"tokens_used", resp.Usage.TotalTokens)
	return plan, nil
}

func (s *DirectorService) buildPrompt(env *command.Envelope) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", objectiveFor(env))
	if len(env.Command.Payload) > 0 && string(env.Command.Payload) != "{}" {
		fmt.Fprintf(&b, "Command payload: %s\n", env.Command.Payload)
	}
	if prior := director.Parse(env.Session.DirectorState); prior != nil {
		fmt.Fprintf(&b, "Prior plan summary: %s (%d steps)\n", prior.Summary, len(prior.Steps))
	}
	return b.String()
}

func objectiveFor(env *command.Envelope) string {
	if env.Session.CurrentObjective != "" {
		return env.Session.CurrentObjective
	}
	return env.Command.CommandType
}

func (s *DirectorService) saveState(ctx context.Context, env *command.Envelope, plan *director.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	state := json.RawMessage(data)
	runID := env.Job.ID
	_, err = s.store.UpdateSessionState(ctx, env.Session.ID, session.StateUpdate{
		DirectorState:     &state,
		LastDirectorRunID: &runID,
	})
	return err
}

// extractJSON pulls the outermost JSON object out of an agent response that
// may wrap it in prose or a code fence.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
