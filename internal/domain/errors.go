package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Custom errors
var (
	ErrIntentNotFound      = NewDomainError("intent not found")
	ErrIntentNotApprovable = NewDomainError("intent is not awaiting approval")
	ErrInvalidTransition   = NewDomainError("invalid status transition")
	ErrMissingTenant       = NewDomainError("tenant id is required")
	ErrMissingText         = NewDomainError("request text is required")
	ErrUnknownTool         = NewDomainError("unknown tool")
	ErrEmptyPlan           = NewDomainError("plan has no steps")
	ErrRateLimited         = NewDomainError("too many requests for this tenant")
)

// DomainError represents a domain-specific error
type DomainError struct {
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

func NewDomainError(message string) *DomainError {
	return &DomainError{Message: message}
}

// FieldIssue is one schema failure, addressed by a dotted path such as steps.0.tool
type FieldIssue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i FieldIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return i.Path + ": " + i.Message
}

// ValidationError reports a candidate plan that does not satisfy the plan schema
type ValidationError struct {
	Issues []FieldIssue `json:"issues"`
}

func (e *ValidationError) Error() string {
	return "plan validation failed: " + e.Summary()
}

// Summary joins the issues as "path: message; path: message"
func (e *ValidationError) Summary() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return strings.Join(parts, "; ")
}

// Guardrail rule names
const (
	RuleToolNotAllowed     = "tool_not_allowed"
	RuleMaxUsersPerBatch   = "max_users_per_batch"
	RuleProtectedPrincipal = "protected_principal"
)

// Violation is one broken guardrail rule. Step is 1-based; 0 means plan-wide.
type Violation struct {
	Rule    string `json:"rule"`
	Step    int    `json:"step,omitempty"`
	Message string `json:"message"`
}

// GuardrailViolation reports a well-formed plan that policy forbids
type GuardrailViolation struct {
	Violations []Violation `json:"violations"`
}

func (e *GuardrailViolation) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Message)
	}
	return "guardrail violation: " + strings.Join(messages, "; ")
}

// HasRule reports whether the given rule was violated
func (e *GuardrailViolation) HasRule(rule string) bool {
	for _, v := range e.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// ActuationError reports a step the directory service rejected or failed
type ActuationError struct {
	Step    int             `json:"step"`
	Tool    Tool            `json:"tool"`
	Detail  string          `json:"detail"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Cause   error           `json:"-"`
}

func (e *ActuationError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %s", e.Step, e.Tool, e.Detail)
}

func (e *ActuationError) Unwrap() error {
	return e.Cause
}

// TransportError reports an unreachable or timed-out collaborator
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is, or wraps, a TransportError
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
