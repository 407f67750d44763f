package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/stackops/stackops/internal/adapter/http/response"
	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/infra/logger"
	"github.com/stackops/stackops/internal/usecase"
	apperror "github.com/stackops/stackops/pkg/error"
)

// IntentUseCase defines the behavior the handler depends on
type IntentUseCase interface {
	Chat(ctx context.Context, req usecase.ChatRequest) (*usecase.ChatResponse, error)
	Approve(ctx context.Context, req usecase.ApproveRequest) (*usecase.ApproveResponse, error)
	GetIntent(ctx context.Context, intentID string) (*usecase.IntentDetail, error)
	RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error)
}

// IntentHandler handles HTTP requests for the intent pipeline
type IntentHandler struct {
	intentUseCase   IntentUseCase
	defaultApprover string
	logger          logger.Logger
}

// NewIntentHandler creates a new intent handler
func NewIntentHandler(intentUseCase IntentUseCase, defaultApprover string, log logger.Logger) *IntentHandler {
	if defaultApprover == "" {
		defaultApprover = domain.DefaultApprover
	}
	return &IntentHandler{
		intentUseCase:   intentUseCase,
		defaultApprover: defaultApprover,
		logger:          log,
	}
}

// RegisterRoutes registers intent routes
func (h *IntentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/agent/chat", h.Chat).Methods("POST")
	router.HandleFunc("/agent/approve", h.Approve).Methods("POST")
	router.HandleFunc("/intents/{id}", h.GetIntent).Methods("GET")
	router.HandleFunc("/activity", h.RecentActivity).Methods("GET")
}

// Chat turns a natural-language request into a clarification or a planned intent
func (h *IntentHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req usecase.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.Text) == "" {
		response.BadRequest(w, "tenantId and text are required")
		return
	}

	result, err := h.intentUseCase.Chat(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if result.Status == usecase.ChatStatusClarify {
		response.Success(w, http.StatusOK, "Clarification needed", result)
		return
	}
	response.Success(w, http.StatusCreated, "Intent planned", result)
}

// Approve records the approval and executes the plan
func (h *IntentHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req usecase.ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.IntentID) == "" {
		response.BadRequest(w, "intentId is required")
		return
	}

	req.Approver = PrincipalFromContext(r.Context())
	if req.Approver == "" {
		req.Approver = h.defaultApprover
	}

	result, err := h.intentUseCase.Approve(r.Context(), req)
	if err != nil {
		if result != nil && result.Status == domain.IntentStatusFailed {
			appErr := apperror.MapError(err)
			h.logger.Warn(r.Context(), "Intent execution failed", map[string]interface{}{
				"intent_id": result.IntentID,
				"error":     err.Error(),
			})
			response.ErrorWithData(w, appErr.Status, err.Error(), result)
			return
		}
		h.writeError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, "Intent applied", result)
}

// GetIntent returns one intent with its approvals and audit trail
func (h *IntentHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	intentID := mux.Vars(r)["id"]
	if intentID == "" {
		response.BadRequest(w, "Intent ID is required")
		return
	}

	detail, err := h.intentUseCase.GetIntent(r.Context(), intentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, "Intent retrieved", detail)
}

// RecentActivity returns the merged activity feed
func (h *IntentHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	activity, err := h.intentUseCase.RecentActivity(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.Success(w, http.StatusOK, "Activity retrieved", activity)
}

func (h *IntentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperror.MapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "Request failed", err, map[string]interface{}{
			"path": r.URL.Path,
			"code": appErr.Code,
		})
	}
	response.AppError(w, appErr)
}
