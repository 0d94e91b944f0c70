package director

import (
	"fmt"

	"github.com/ledgerline/ledgerline/internal/domain"
)

// BudgetLimits holds the token ceilings enforced on every plan.
type BudgetLimits struct {
	StepTokens  int // max tokens any single step may budget
	TotalTokens int // max tokens the whole plan may budget
}

// EnsureBudget is an all-or-nothing circuit breaker over the plan's token
// budgets. If any single step exceeds the per-step ceiling, or the sum
// across steps exceeds the plan-wide ceiling, the entire plan is rejected;
// there is no partial-plan execution. Rejecting outright forces a re-plan
// instead of silently dropping steps nobody reviewed.
func EnsureBudget(p *Plan, limits BudgetLimits) error {
	total := 0
	for _, s := range p.Steps {
		if s.Envelope.Budget == nil {
			continue
		}
		tokens := s.Envelope.Budget.Tokens
		if tokens > limits.StepTokens {
			return fmt.Errorf("step %q budgets %d tokens, per-step ceiling is %d: %w",
				s.ID, tokens, limits.StepTokens, domain.ErrPlanBudgetExceeded)
		}
		total += tokens
	}
	if total > limits.TotalTokens {
		return fmt.Errorf("plan budgets %d tokens across steps, plan-wide ceiling is %d: %w",
			total, limits.TotalTokens, domain.ErrPlanBudgetTotalExceeded)
	}
	return nil
}
