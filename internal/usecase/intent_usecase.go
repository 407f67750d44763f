package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/infra/telemetry"
	"github.com/stackops/stackops/internal/ports"
)

// Chat outcomes
const (
	ChatStatusClarify = "clarify"
	ChatStatusPlanned = "planned"
)

const (
	defaultActivityLimit = 20
	maxActivityLimit     = 100
)

// ChatRequest represents a natural-language operations request
type ChatRequest struct {
	TenantID string `json:"tenantId"`
	Text     string `json:"text"`
}

// ChatResponse is either a clarifying question or a planned intent
type ChatResponse struct {
	Status   string       `json:"status"`
	Question string       `json:"question,omitempty"`
	IntentID string       `json:"intentId,omitempty"`
	Plan     *domain.Plan `json:"plan,omitempty"`
}

// ApproveRequest represents the approval of a planned intent
type ApproveRequest struct {
	IntentID string `json:"intentId"`
	Approver string `json:"-"`
}

// ApproveResponse reports the final status of an approved intent
type ApproveResponse struct {
	IntentID string              `json:"intentId"`
	Status   domain.IntentStatus `json:"status"`
	Results  []StepOutcome       `json:"results"`
	Error    string              `json:"error,omitempty"`
}

// IntentDetail is an intent with its approvals and audit trail
type IntentDetail struct {
	Intent    *domain.Intent          `json:"intent"`
	Approvals []*domain.Approval      `json:"approvals"`
	Audit     []*domain.AuditLogEntry `json:"audit"`
}

// PlanGuard checks a plan against policy
type PlanGuard interface {
	Check(ctx context.Context, plan *domain.Plan) error
}

// IntentUseCase sequences synthesis, guardrails, persistence, approval and execution
type IntentUseCase struct {
	intentRepo   ports.IntentRepository
	auditRepo    ports.AuditRepository
	approvalRepo ports.ApprovalRepository
	planner      *Planner
	guard        PlanGuard
	executor     *Executor
	limiter      ports.RateLimiter
	logger       logger.Logger
	metrics      *telemetry.PipelineMetrics
	tracer       trace.Tracer
}

// NewIntentUseCase creates a new intent use case. limiter may be nil.
func NewIntentUseCase(
	intentRepo ports.IntentRepository,
	auditRepo ports.AuditRepository,
	approvalRepo ports.ApprovalRepository,
	planner *Planner,
	guard PlanGuard,
	executor *Executor,
	limiter ports.RateLimiter,
	log logger.Logger,
	metrics *telemetry.PipelineMetrics,
) *IntentUseCase {
	return &IntentUseCase{
		intentRepo:   intentRepo,
		auditRepo:    auditRepo,
		approvalRepo: approvalRepo,
		planner:      planner,
		guard:        guard,
		executor:     executor,
		limiter:      limiter,
		logger:       log.WithFields(map[string]interface{}{"component": "intent"}),
		metrics:      metrics,
		tracer:       otel.Tracer("github.com/stackops/stackops/usecase"),
	}
}

// Chat synthesizes a plan for the request. A clarification persists nothing;
// a guardrail violation persists nothing; otherwise the intent is stored as planned.
func (uc *IntentUseCase) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	if req.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, domain.ErrMissingText
	}

	ctx, span := uc.tracer.Start(ctx, "intent.chat", trace.WithAttributes(attribute.String("tenant.id", req.TenantID)))
	defer span.End()

	if uc.limiter != nil {
		allowed, err := uc.limiter.Allow(ctx, "chat:tenant:"+req.TenantID)
		if err != nil {
			// limiter outages do not block requests
			uc.logger.Error(ctx, "Rate limit check failed", err, map[string]interface{}{"tenant_id": req.TenantID})
		} else if !allowed {
			uc.metrics.RecordIntent(ctx, "rate_limited")
			return nil, domain.ErrRateLimited
		}
	}

	result, err := uc.planner.PlanFromText(ctx, req.TenantID, req.Text)
	if err != nil {
		uc.metrics.RecordIntent(ctx, "synthesis_failed")
		logger.LogPipelineEvent(ctx, uc.logger, "synthesis", "", "failed", map[string]interface{}{
			"tenant_id": req.TenantID,
			"error":     err.Error(),
		})
		span.SetStatus(codes.Error, "synthesis failed")
		return nil, fmt.Errorf("plan synthesis failed: %w", err)
	}

	if result.NeedsClarification {
		uc.metrics.RecordIntent(ctx, ChatStatusClarify)
		logger.LogPipelineEvent(ctx, uc.logger, "synthesis", "", ChatStatusClarify, map[string]interface{}{
			"tenant_id": req.TenantID,
		})
		return &ChatResponse{Status: ChatStatusClarify, Question: result.ClarifyingQuestion}, nil
	}

	if err := uc.guard.Check(ctx, result.Plan); err != nil {
		var gv *domain.GuardrailViolation
		if errors.As(err, &gv) {
			uc.metrics.RecordIntent(ctx, "guardrail_rejected")
			logger.LogPipelineEvent(ctx, uc.logger, "guardrail", "", "rejected", map[string]interface{}{
				"tenant_id":  req.TenantID,
				"violations": gv.Error(),
			})
		}
		span.SetStatus(codes.Error, "guardrail check failed")
		return nil, err
	}

	intent, err := domain.NewPlannedIntent(req.TenantID, req.Text, result.Plan)
	if err != nil {
		return nil, err
	}
	if err := uc.intentRepo.Create(ctx, intent); err != nil {
		span.SetStatus(codes.Error, "persist failed")
		return nil, fmt.Errorf("failed to create intent: %w", err)
	}

	uc.metrics.RecordIntent(ctx, ChatStatusPlanned)
	span.SetAttributes(attribute.String("intent.id", intent.ID))
	logger.LogPipelineEvent(ctx, uc.logger, "persist", intent.ID, ChatStatusPlanned, map[string]interface{}{
		"tenant_id": req.TenantID,
		"steps":     len(intent.PlanJSON.Steps),
	})

	return &ChatResponse{Status: ChatStatusPlanned, IntentID: intent.ID, Plan: intent.PlanJSON}, nil
}

// Approve records the approval of a planned intent and executes its plan.
// Only planned intents can be approved. When a step fails the intent is
// marked failed and the response is returned together with the step error.
func (uc *IntentUseCase) Approve(ctx context.Context, req ApproveRequest) (*ApproveResponse, error) {
	if strings.TrimSpace(req.IntentID) == "" {
		return nil, fmt.Errorf("%w: intent id is required", domain.ErrIntentNotFound)
	}

	ctx, span := uc.tracer.Start(ctx, "intent.approve", trace.WithAttributes(attribute.String("intent.id", req.IntentID)))
	defer span.End()

	intent, err := uc.intentRepo.FindByID(ctx, req.IntentID)
	if err != nil {
		return nil, err
	}
	if err := intent.Approve(); err != nil {
		logger.LogPipelineEvent(ctx, uc.logger, "approve", intent.ID, "rejected", map[string]interface{}{
			"status": intent.Status,
		})
		return nil, err
	}

	claimed, err := uc.intentRepo.TransitionStatus(ctx, intent.ID, domain.IntentStatusPlanned, domain.IntentStatusApproved)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return nil, domain.ErrIntentNotApprovable
		}
		return nil, fmt.Errorf("failed to approve intent: %w", err)
	}
	intent = claimed

	approval := domain.NewApproval(intent.ID, req.Approver)
	if err := uc.approvalRepo.Create(ctx, approval); err != nil {
		err = fmt.Errorf("failed to record approval: %w", err)
		if ferr := uc.finish(ctx, intent, domain.IntentStatusFailed); ferr != nil {
			err = errors.Join(err, fmt.Errorf("failed to mark intent failed: %w", ferr))
		}
		return nil, err
	}
	logger.LogPipelineEvent(ctx, uc.logger, "approve", intent.ID, string(domain.IntentStatusApproved), map[string]interface{}{
		"approver": approval.Approver,
	})

	sink := ports.AuditSinkFunc(uc.auditRepo.Create)
	outcomes, execErr := uc.executor.ExecutePlan(ctx, intent.ID, intent.PlanJSON, sink)
	if outcomes == nil {
		outcomes = []StepOutcome{}
	}

	if execErr != nil {
		if err := intent.Fail(); err != nil {
			return nil, err
		}
		resp := &ApproveResponse{
			IntentID: intent.ID,
			Status:   domain.IntentStatusFailed,
			Results:  outcomes,
			Error:    execErr.Error(),
		}
		// the step error stays first so callers still map it
		if err := uc.finish(ctx, intent, domain.IntentStatusFailed); err != nil {
			execErr = errors.Join(execErr, fmt.Errorf("failed to mark intent failed: %w", err))
		}
		uc.metrics.RecordIntent(ctx, string(domain.IntentStatusFailed))
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "execution failed")
		return resp, execErr
	}

	if err := intent.Apply(); err != nil {
		return nil, err
	}
	if err := uc.finish(ctx, intent, domain.IntentStatusApplied); err != nil {
		return nil, fmt.Errorf("failed to mark intent applied: %w", err)
	}
	uc.metrics.RecordIntent(ctx, string(domain.IntentStatusApplied))

	return &ApproveResponse{IntentID: intent.ID, Status: domain.IntentStatusApplied, Results: outcomes}, nil
}

// finish writes a terminal status even if the caller's context is gone
func (uc *IntentUseCase) finish(ctx context.Context, intent *domain.Intent, status domain.IntentStatus) error {
	_, err := uc.intentRepo.UpdateStatus(context.WithoutCancel(ctx), intent.ID, status)
	if err != nil {
		uc.logger.Error(ctx, "Failed to update intent status", err, map[string]interface{}{
			"intent_id": intent.ID,
			"status":    status,
		})
		return err
	}
	logger.LogPipelineEvent(ctx, uc.logger, "execute", intent.ID, string(status), nil)
	return nil
}

// GetIntent returns an intent with its approvals and audit trail
func (uc *IntentUseCase) GetIntent(ctx context.Context, intentID string) (*IntentDetail, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, domain.ErrIntentNotFound
	}

	intent, err := uc.intentRepo.FindByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	approvals, err := uc.approvalRepo.ListByIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	audit, err := uc.auditRepo.ListByIntent(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	return &IntentDetail{Intent: intent, Approvals: approvals, Audit: audit}, nil
}

// RecentActivity merges the newest intents and audit entries, newest first
func (uc *IntentUseCase) RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}

	intents, err := uc.intentRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	entries, err := uc.auditRepo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	activity := make([]domain.Activity, 0, len(intents)+len(entries))
	for _, intent := range intents {
		activity = append(activity, domain.Activity{
			ID:        intent.ID,
			Kind:      "intent",
			Type:      intent.Type,
			Status:    string(intent.Status),
			Details:   "Intent: " + intent.Type,
			Timestamp: intent.CreatedAt,
		})
	}
	for _, entry := range entries {
		activity = append(activity, domain.Activity{
			ID:        entry.ID,
			Kind:      "audit",
			Type:      string(entry.ToolName),
			Status:    string(entry.Status),
			Details:   entry.Step,
			Timestamp: entry.Timestamp,
		})
	}

	sort.SliceStable(activity, func(i, j int) bool {
		return activity[i].Timestamp.After(activity[j].Timestamp)
	})
	if len(activity) > limit {
		activity = activity[:limit]
	}
	return activity, nil
}
