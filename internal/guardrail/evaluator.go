package guardrail

import (
	"context"
	"fmt"
	"strings"

	"github.com/stackops/stackops/internal/domain"
)

// CheckPlanAllowed evaluates every rule against the plan and reports all
// violations at once, in rule order. It has no side effects.
func CheckPlanAllowed(plan *domain.Plan, policy *Policy) error {
	if plan == nil || len(plan.Steps) == 0 {
		return domain.ErrEmptyPlan
	}
	if policy == nil {
		policy = &Policy{}
	}

	var violations []domain.Violation

	if len(policy.ToolsAllowed) > 0 {
		allowed := make(map[domain.Tool]bool, len(policy.ToolsAllowed))
		for _, tool := range policy.ToolsAllowed {
			allowed[tool] = true
		}
		for i, step := range plan.Steps {
			if !allowed[step.Tool] {
				violations = append(violations, domain.Violation{
					Rule:    domain.RuleToolNotAllowed,
					Step:    i + 1,
					Message: fmt.Sprintf("tool not allowed: %s", step.Tool),
				})
			}
		}
	}

	creations := plan.CountTool(domain.ToolCreateUser)
	if limit := policy.MaxUsersPerBatch(); creations > limit {
		violations = append(violations, domain.Violation{
			Rule:    domain.RuleMaxUsersPerBatch,
			Message: fmt.Sprintf("too many user creations: %d > %d", creations, limit),
		})
	}

	for i, step := range plan.Steps {
		upn := step.Principal()
		if upn == "" {
			continue
		}
		for _, protected := range policy.ProtectedPrincipals {
			if strings.EqualFold(upn, protected) {
				violations = append(violations, domain.Violation{
					Rule:    domain.RuleProtectedPrincipal,
					Step:    i + 1,
					Message: fmt.Sprintf("cannot perform operations on protected principal: %s", upn),
				})
				break
			}
		}
	}

	if len(violations) > 0 {
		return &domain.GuardrailViolation{Violations: violations}
	}
	return nil
}

// Evaluator checks plans against a lazily loaded, process-wide policy
type Evaluator struct {
	policy *CachedPolicy
}

// NewEvaluator creates an evaluator that loads its policy from source on first use
func NewEvaluator(source PolicySource) *Evaluator {
	return &Evaluator{policy: NewCachedPolicy(source)}
}

// Check loads the policy if needed and evaluates the plan. A policy load
// failure is returned as-is and is not a guardrail violation.
func (e *Evaluator) Check(ctx context.Context, plan *domain.Plan) error {
	policy, err := e.policy.Get(ctx)
	if err != nil {
		return fmt.Errorf("guardrail policy unavailable: %w", err)
	}
	return CheckPlanAllowed(plan, policy)
}

// Policy exposes the loaded policy, e.g. for startup logging
func (e *Evaluator) Policy(ctx context.Context) (*Policy, error) {
	return e.policy.Get(ctx)
}
