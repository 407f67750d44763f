package error

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stackops/stackops/internal/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{
			name:       "app error passes through",
			err:        NewUnauthorized("missing token"),
			wantCode:   "UNAUTHORIZED",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "validation",
			err:        fmt.Errorf("plan synthesis failed: %w", &domain.ValidationError{Issues: []domain.FieldIssue{{Path: "steps", Message: "required"}}}),
			wantCode:   "VALIDATION_FAILED",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "guardrail",
			err:        &domain.GuardrailViolation{Violations: []domain.Violation{{Rule: domain.RuleProtectedPrincipal, Step: 1, Message: "protected"}}},
			wantCode:   "GUARDRAIL_VIOLATION",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "actuation",
			err:        &domain.ActuationError{Step: 2, Tool: domain.ToolAddGroupMember, Detail: "Request_BadRequest"},
			wantCode:   "ACTUATION_FAILED",
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "transport",
			err:        fmt.Errorf("plan synthesis failed: %w", &domain.TransportError{Op: "oracle openai", Err: errors.New("timeout")}),
			wantCode:   "UPSTREAM_UNAVAILABLE",
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "not found",
			err:        domain.ErrIntentNotFound,
			wantCode:   "NOT_FOUND",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "not approvable",
			err:        domain.ErrIntentNotApprovable,
			wantCode:   "CONFLICT",
			wantStatus: http.StatusConflict,
		},
		{
			name:       "rate limited",
			err:        domain.ErrRateLimited,
			wantCode:   "RATE_LIMITED",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "missing tenant",
			err:        domain.ErrMissingTenant,
			wantCode:   "BAD_REQUEST",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unexpected",
			err:        errors.New("pq: connection refused"),
			wantCode:   "INTERNAL_ERROR",
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := MapError(tt.err)
			assert.Equal(t, tt.wantCode, appErr.Code)
			assert.Equal(t, tt.wantStatus, appErr.Status)
		})
	}
}

func TestMapError_Details(t *testing.T) {
	violations := []domain.Violation{{Rule: domain.RuleMaxUsersPerBatch, Message: "too many user creations: 30 > 25"}}
	appErr := MapError(&domain.GuardrailViolation{Violations: violations})
	assert.Equal(t, violations, appErr.Details)

	unexpected := MapError(errors.New("secret internals"))
	assert.NotContains(t, unexpected.Message, "secret")
}
