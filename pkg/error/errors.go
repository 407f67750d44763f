package error

import (
	"errors"
	"net/http"

	"github.com/stackops/stackops/internal/domain"
)

type AppError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

func NewBadRequest(message string) *AppError {
	return &AppError{Code: "BAD_REQUEST", Message: message, Status: http.StatusBadRequest}
}

func NewUnauthorized(message string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: message, Status: http.StatusUnauthorized}
}

func NewNotFound(message string) *AppError {
	return &AppError{Code: "NOT_FOUND", Message: message, Status: http.StatusNotFound}
}

func NewInternalServer(message string) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError}
}

func NewConflict(message string) *AppError {
	return &AppError{Code: "CONFLICT", Message: message, Status: http.StatusConflict}
}

// MapError translates the domain error taxonomy into an HTTP status and a stable code.
// The details carry what an operator needs to act: field paths, violated rules or the
// remote payload.
func MapError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		return &AppError{
			Code:    "VALIDATION_FAILED",
			Message: "The synthesized plan did not satisfy the plan schema",
			Status:  http.StatusUnprocessableEntity,
			Details: validation.Issues,
		}
	}

	var guardrail *domain.GuardrailViolation
	if errors.As(err, &guardrail) {
		return &AppError{
			Code:    "GUARDRAIL_VIOLATION",
			Message: guardrail.Error(),
			Status:  http.StatusUnprocessableEntity,
			Details: guardrail.Violations,
		}
	}

	var actuation *domain.ActuationError
	if errors.As(err, &actuation) {
		return &AppError{
			Code:    "ACTUATION_FAILED",
			Message: actuation.Error(),
			Status:  http.StatusBadGateway,
			Details: actuation,
		}
	}

	if domain.IsTransport(err) {
		return &AppError{Code: "UPSTREAM_UNAVAILABLE", Message: err.Error(), Status: http.StatusBadGateway}
	}

	switch {
	case errors.Is(err, domain.ErrIntentNotFound):
		return NewNotFound(domain.ErrIntentNotFound.Error())
	case errors.Is(err, domain.ErrIntentNotApprovable), errors.Is(err, domain.ErrInvalidTransition):
		return NewConflict(err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		return &AppError{Code: "RATE_LIMITED", Message: err.Error(), Status: http.StatusTooManyRequests}
	case errors.Is(err, domain.ErrMissingTenant), errors.Is(err, domain.ErrMissingText),
		errors.Is(err, domain.ErrEmptyPlan), errors.Is(err, domain.ErrUnknownTool):
		return NewBadRequest(err.Error())
	default:
		return NewInternalServer("An unexpected error occurred")
	}
}
