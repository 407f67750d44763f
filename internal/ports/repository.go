package ports

import (
	"context"

	"github.com/stackops/stackops/internal/domain"
)

// IntentRepository defines the interface for intent persistence
type IntentRepository interface {
	// Create saves a new intent; the store assigns ID and CreatedAt
	Create(ctx context.Context, intent *domain.Intent) error

	// FindByID retrieves an intent by its ID
	FindByID(ctx context.Context, id string) (*domain.Intent, error)

	// UpdateStatus writes the status and returns the updated intent
	UpdateStatus(ctx context.Context, id string, status domain.IntentStatus) (*domain.Intent, error)

	// TransitionStatus writes to only if the current status is from.
	// It returns domain.ErrInvalidTransition when another writer got there first.
	TransitionStatus(ctx context.Context, id string, from, to domain.IntentStatus) (*domain.Intent, error)

	// ListRecent returns the newest intents first
	ListRecent(ctx context.Context, limit int) ([]*domain.Intent, error)
}

// AuditRepository defines the interface for audit log persistence.
// Entries are append-only; there is no update or delete.
type AuditRepository interface {
	// Create appends an entry; the store assigns ID and Timestamp
	Create(ctx context.Context, entry *domain.AuditLogEntry) error

	// ListByIntent returns the entries of one intent in step order
	ListByIntent(ctx context.Context, intentID string) ([]*domain.AuditLogEntry, error)

	// ListRecent returns the newest entries first
	ListRecent(ctx context.Context, limit int) ([]*domain.AuditLogEntry, error)
}

// ApprovalRepository defines the interface for approval persistence
type ApprovalRepository interface {
	// Create saves a new approval; the store assigns ID and CreatedAt
	Create(ctx context.Context, approval *domain.Approval) error

	// ListByIntent returns the approvals recorded for an intent
	ListByIntent(ctx context.Context, intentID string) ([]*domain.Approval, error)
}

// AuditSink durably records one audit entry per call
type AuditSink interface {
	Record(ctx context.Context, entry *domain.AuditLogEntry) error
}

// AuditSinkFunc adapts a function to AuditSink
type AuditSinkFunc func(ctx context.Context, entry *domain.AuditLogEntry) error

// Record calls f
func (f AuditSinkFunc) Record(ctx context.Context, entry *domain.AuditLogEntry) error {
	return f(ctx, entry)
}
