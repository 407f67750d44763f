package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/infra/telemetry"
	"github.com/stackops/stackops/internal/ports"
)

// StepOutcome is the result of one attempted step
type StepOutcome struct {
	Step   int                `json:"step"`
	Tool   domain.Tool        `json:"tool"`
	Status domain.AuditStatus `json:"status"`
	Output json.RawMessage    `json:"output,omitempty"`
}

// Executor runs a plan against the actuator, strictly in step order
type Executor struct {
	actuator   ports.Actuator
	translator *Translator
	logger     logger.Logger
	metrics    *telemetry.PipelineMetrics
	tracer     trace.Tracer
}

// NewExecutor creates a new executor
func NewExecutor(actuator ports.Actuator, translator *Translator, log logger.Logger, metrics *telemetry.PipelineMetrics) *Executor {
	return &Executor{
		actuator:   actuator,
		translator: translator,
		logger:     log.WithFields(map[string]interface{}{"component": "executor"}),
		metrics:    metrics,
		tracer:     otel.Tracer("github.com/stackops/stackops/usecase"),
	}
}

// ExecutePlan attempts each step in order and records exactly one audit entry
// per attempted step before deciding whether to continue. The first failure
// stops execution and is returned as *domain.ActuationError; earlier steps are
// not undone. The outcomes of all attempted steps are returned in both cases.
func (e *Executor) ExecutePlan(ctx context.Context, intentID string, plan *domain.Plan, sink ports.AuditSink) ([]StepOutcome, error) {
	if plan == nil || len(plan.Steps) == 0 {
		return nil, domain.ErrEmptyPlan
	}

	ctx, span := e.tracer.Start(ctx, "executor.execute_plan", trace.WithAttributes(
		attribute.String("intent.id", intentID),
		attribute.Int("plan.steps", len(plan.Steps)),
	))
	defer span.End()

	start := time.Now()
	outcomes := make([]StepOutcome, 0, len(plan.Steps))

	for i, step := range plan.Steps {
		output, failure := e.attempt(ctx, intentID, i, step)

		status := domain.AuditStatusDone
		if failure != nil {
			status = domain.AuditStatusError
		}

		// audit writes must land even if the request was cancelled mid-step
		entry := domain.NewAuditLogEntry(intentID, i, step, output, status)
		if err := sink.Record(context.WithoutCancel(ctx), entry); err != nil {
			e.logger.Error(ctx, "Failed to record audit entry", err, map[string]interface{}{
				"intent_id": intentID,
				"step":      i + 1,
			})
			span.SetStatus(codes.Error, "audit write failed")
			if failure != nil {
				return outcomes, errors.Join(failure, fmt.Errorf("failed to record audit entry for step %d: %w", i+1, err))
			}
			return outcomes, fmt.Errorf("failed to record audit entry for step %d: %w", i+1, err)
		}

		outcomes = append(outcomes, StepOutcome{Step: i + 1, Tool: step.Tool, Status: status, Output: output})
		e.metrics.RecordStep(ctx, string(step.Tool), string(status))

		if failure != nil {
			e.logger.Warn(ctx, "Plan step failed, stopping execution", map[string]interface{}{
				"intent_id": intentID,
				"step":      i + 1,
				"tool":      step.Tool,
				"detail":    failure.Detail,
			})
			span.RecordError(failure)
			span.SetStatus(codes.Error, "step failed")
			return outcomes, failure
		}

		e.logger.Info(ctx, "Plan step applied", map[string]interface{}{
			"intent_id": intentID,
			"step":      i + 1,
			"tool":      step.Tool,
		})
	}

	logger.LogPerformance(ctx, e.logger, "execute_plan", time.Since(start), map[string]interface{}{
		"intent_id": intentID,
		"steps":     len(plan.Steps),
	})
	return outcomes, nil
}

// attempt translates and invokes one step, returning the audit output and the failure if any
func (e *Executor) attempt(ctx context.Context, intentID string, index int, step domain.Step) (json.RawMessage, *domain.ActuationError) {
	ctx, span := e.tracer.Start(ctx, "executor.step", trace.WithAttributes(
		attribute.Int("step.index", index+1),
		attribute.String("step.tool", string(step.Tool)),
	))
	defer span.End()

	translation, err := e.translator.Translate(step)
	if err != nil {
		span.RecordError(err)
		return domain.ErrorOutput(err.Error()), &domain.ActuationError{
			Step:   index + 1,
			Tool:   step.Tool,
			Detail: err.Error(),
			Cause:  err,
		}
	}
	if translation.GeneratedPassword {
		e.logger.Warn(ctx, "Plan omitted a password; a random temporary password was generated", map[string]interface{}{
			"intent_id": intentID,
			"step":      index + 1,
			"principal": step.Principal(),
		})
	}

	result, err := e.actuator.Invoke(ctx, translation.Request)
	if err != nil {
		span.RecordError(err)
		cause := &domain.TransportError{Op: "actuator " + translation.Request.Method + " " + translation.Request.Path, Err: err}
		return domain.ErrorOutput(cause.Error()), &domain.ActuationError{
			Step:   index + 1,
			Tool:   step.Tool,
			Detail: cause.Error(),
			Cause:  cause,
		}
	}

	if !result.Success {
		detail := result.Error
		if detail == "" {
			detail = "directory call failed"
		}
		span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
		return errorOutput(detail, result.Payload), &domain.ActuationError{
			Step:    index + 1,
			Tool:    step.Tool,
			Detail:  detail,
			Payload: result.Payload,
		}
	}

	if len(result.Result) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return result.Result, nil
}

// errorOutput renders a failure with the remote payload when there is one
func errorOutput(detail string, payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 || !json.Valid(payload) {
		return domain.ErrorOutput(detail)
	}
	raw, err := json.Marshal(struct {
		Error   string          `json:"error"`
		Payload json.RawMessage `json:"payload"`
	}{Error: detail, Payload: payload})
	if err != nil {
		return domain.ErrorOutput(detail)
	}
	return raw
}
