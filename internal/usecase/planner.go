package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/infra/telemetry"
	"github.com/stackops/stackops/internal/planschema"
	"github.com/stackops/stackops/internal/ports"
)

const plannerSystemPrompt = `You are a Microsoft tenant ops planner.
Return ONLY JSON matching:
{ "steps": [ { "tool": "<allowed>", "input": { ... } } ] }

Allowed tools:
- graph.users.create: displayName, userPrincipalName, mailNickname, department, jobTitle, usageLocation, passwordProfile.password, passwordProfile.forceChangePasswordNextSignIn
- graph.groups.addMember: group, userPrincipalName
- graph.licenses.assign: userPrincipalName, skus[]
- graph.users.disable: userPrincipalName

If essential data is missing, ask ONE clarifying question:
{ "clarify": "your concise question" }

No prose.`

// maxSynthesisAttempts is the original call plus exactly one corrective call
const maxSynthesisAttempts = 2

// PlanResult is either a clarifying question or a validated plan
type PlanResult struct {
	NeedsClarification bool
	ClarifyingQuestion string
	Plan               *domain.Plan
	Attempts           int
}

// Planner turns a natural-language request into a validated plan through the oracle
type Planner struct {
	oracle    ports.Oracle
	validator *planschema.Validator
	logger    logger.Logger
	metrics   *telemetry.PipelineMetrics
	tracer    trace.Tracer
}

// NewPlanner creates a new planner
func NewPlanner(oracle ports.Oracle, validator *planschema.Validator, log logger.Logger, metrics *telemetry.PipelineMetrics) *Planner {
	return &Planner{
		oracle:    oracle,
		validator: validator,
		logger:    log.WithFields(map[string]interface{}{"component": "planner"}),
		metrics:   metrics,
		tracer:    otel.Tracer("github.com/stackops/stackops/usecase"),
	}
}

// PlanFromText asks the oracle for a plan. An invalid answer gets exactly one
// corrective round-trip carrying the validation issues; a second invalid answer
// is returned as *domain.ValidationError. Oracle failures are not retried.
func (p *Planner) PlanFromText(ctx context.Context, tenantID, text string) (*PlanResult, error) {
	ctx, span := p.tracer.Start(ctx, "planner.plan_from_text",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	userPrompt := fmt.Sprintf("Tenant: %s\nTask: %s\nOutput: JSON only.", tenantID, text)

	prompt := userPrompt
	var lastErr error
	for attempt := 1; attempt <= maxSynthesisAttempts; attempt++ {
		raw, err := p.oracle.Complete(ctx, plannerSystemPrompt, prompt)
		if err != nil {
			p.metrics.RecordSynthesis(ctx, attempt, "transport_error")
			span.RecordError(err)
			span.SetStatus(codes.Error, "oracle unavailable")
			return nil, &domain.TransportError{Op: "oracle " + p.oracle.Provider(), Err: err}
		}

		result, err := p.interpret(raw)
		if err == nil {
			result.Attempts = attempt
			outcome := "plan"
			if result.NeedsClarification {
				outcome = "clarify"
			}
			p.metrics.RecordSynthesis(ctx, attempt, outcome)
			span.SetAttributes(attribute.Int("synthesis.attempts", attempt), attribute.String("synthesis.outcome", outcome))
			p.logger.Info(ctx, "Plan synthesis succeeded", map[string]interface{}{
				"tenant_id": tenantID,
				"attempt":   attempt,
				"outcome":   outcome,
			})
			return result, nil
		}

		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			return nil, err
		}

		p.metrics.RecordSynthesis(ctx, attempt, "invalid")
		p.logger.Warn(ctx, "Oracle returned an invalid plan", map[string]interface{}{
			"tenant_id": tenantID,
			"attempt":   attempt,
			"issues":    ve.Summary(),
		})
		lastErr = ve
		prompt = fmt.Sprintf("%s\nYour last JSON was invalid: %s\nReturn a corrected JSON plan only.", userPrompt, ve.Summary())
	}

	span.SetAttributes(attribute.Int("synthesis.attempts", maxSynthesisAttempts))
	span.SetStatus(codes.Error, "plan validation failed")
	return nil, lastErr
}

// interpret decodes one oracle answer into a clarification or a validated plan
func (p *Planner) interpret(raw string) (*PlanResult, error) {
	cleaned := stripCodeFence(raw)

	var doc any
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return nil, &domain.ValidationError{Issues: []domain.FieldIssue{
			{Message: "invalid JSON: " + err.Error()},
		}}
	}

	if obj, ok := doc.(map[string]any); ok {
		if question, ok := obj["clarify"].(string); ok && strings.TrimSpace(question) != "" {
			return &PlanResult{NeedsClarification: true, ClarifyingQuestion: strings.TrimSpace(question)}, nil
		}
	}

	plan, err := p.validator.ParseValue(doc, []byte(cleaned))
	if err != nil {
		return nil, err
	}
	return &PlanResult{Plan: plan}, nil
}

// stripCodeFence removes a surrounding markdown code fence such as ```json ... ```
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
