package director

import (
	"errors"
	"testing"

	"github.com/ledgerline/ledgerline/internal/domain"
	"github.com/ledgerline/ledgerline/internal/domain/job"
)

func planWithBudgets(tokens ...int) *Plan {
	p := &Plan{Version: "1", Objective: "close the quarter"}
	for i, t := range tokens {
		p.Steps = append(p.Steps, Step{
			ID:     string(rune('a' + i)),
			Status: StepStatusPending,
			Envelope: StepEnvelope{
				TargetWorker: job.WorkerDomain,
				CommandType:  "finance.execute",
				Domain:       "tax",
				Budget:       &Budget{Tokens: t},
			},
		})
	}
	return p
}

func TestEnsureBudget_WithinLimits(t *testing.T) {
	p := planWithBudgets(10, 20, 30)
	if err := EnsureBudget(p, BudgetLimits{StepTokens: 32, TotalTokens: 128}); err != nil {
		t.Fatalf("expected plan accepted, got %v", err)
	}
}

func TestEnsureBudget_SingleStepOverCeilingRejectsWholePlan(t *testing.T) {
	// One step at 33 against a 32 ceiling rejects the entire plan,
	// not just the offending step.
	p := planWithBudgets(10, 33, 5)
	err := EnsureBudget(p, BudgetLimits{StepTokens: 32, TotalTokens: 128})
	if !errors.Is(err, domain.ErrPlanBudgetExceeded) {
		t.Fatalf("expected ErrPlanBudgetExceeded, got %v", err)
	}
}

func TestEnsureBudget_SumOverTotalCeiling(t *testing.T) {
	// Five steps of 30 tokens each: no step breaks the per-step ceiling,
	// but 150 > 128 rejects the plan.
	p := planWithBudgets(30, 30, 30, 30, 30)
	err := EnsureBudget(p, BudgetLimits{StepTokens: 32, TotalTokens: 128})
	if !errors.Is(err, domain.ErrPlanBudgetTotalExceeded) {
		t.Fatalf("expected ErrPlanBudgetTotalExceeded, got %v", err)
	}
}

func TestEnsureBudget_StepsWithoutBudgetIgnored(t *testing.T) {
	p := planWithBudgets(30)
	p.Steps = append(p.Steps, Step{
		ID:     "z",
		Status: StepStatusPending,
		Envelope: StepEnvelope{
			TargetWorker: job.WorkerSafety,
			CommandType:  "finance.review",
		},
	})
	if err := EnsureBudget(p, BudgetLimits{StepTokens: 32, TotalTokens: 128}); err != nil {
		t.Fatalf("expected plan accepted, got %v", err)
	}
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr bool
	}{
		{"valid", func(*Plan) {}, false},
		{"no objective", func(p *Plan) { p.Objective = "" }, true},
		{"no steps", func(p *Plan) { p.Steps = nil }, true},
		{"missing step id", func(p *Plan) { p.Steps[0].ID = "" }, true},
		{"duplicate step id", func(p *Plan) { p.Steps[1].ID = p.Steps[0].ID }, true},
		{"bad worker", func(p *Plan) { p.Steps[0].Envelope.TargetWorker = "janitor" }, true},
		{"no command type", func(p *Plan) { p.Steps[0].Envelope.CommandType = "" }, true},
		{"domain step without domain", func(p *Plan) { p.Steps[0].Envelope.Domain = "" }, true},
		{"unknown dependency", func(p *Plan) { p.Steps[1].Envelope.Dependencies = []string{"nope"} }, true},
		{"known dependency", func(p *Plan) { p.Steps[1].Envelope.Dependencies = []string{p.Steps[0].ID} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := planWithBudgets(1, 2)
			tt.mutate(p)
			err := p.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestParse_InvalidReturnsNil(t *testing.T) {
	if got := Parse([]byte(`not json`)); got != nil {
		t.Error("expected nil for malformed json")
	}
	if got := Parse([]byte(`{"objective":""}`)); got != nil {
		t.Error("expected nil for structurally invalid plan")
	}
	if got := Parse(nil); got != nil {
		t.Error("expected nil for empty value")
	}

	valid := `{"version":"1","objective":"o","steps":[{"id":"a","envelope":{"target_worker":"domain","command_type":"finance.execute","domain":"tax"}}]}`
	if got := Parse([]byte(valid)); got == nil {
		t.Error("expected plan for valid snapshot")
	}
}
