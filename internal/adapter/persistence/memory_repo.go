package persistence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stackops/stackops/internal/domain"
)

// MemoryStore keeps intents, audit entries and approvals in process memory.
// It backs local runs and tests; data does not survive a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	intents   map[string]*domain.Intent
	order     []string
	audit     []*domain.AuditLogEntry
	approvals []*domain.Approval
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		intents: make(map[string]*domain.Intent),
		now:     time.Now,
	}
}

// Intents returns the intent repository view of the store
func (s *MemoryStore) Intents() *MemoryIntentRepository { return &MemoryIntentRepository{s: s} }

// Audit returns the audit repository view of the store
func (s *MemoryStore) Audit() *MemoryAuditRepository { return &MemoryAuditRepository{s: s} }

// Approvals returns the approval repository view of the store
func (s *MemoryStore) Approvals() *MemoryApprovalRepository { return &MemoryApprovalRepository{s: s} }

func cloneIntent(in *domain.Intent) *domain.Intent {
	out := *in
	out.InputJSON = append(json.RawMessage(nil), in.InputJSON...)
	if in.PlanJSON != nil {
		plan := domain.Plan{Steps: make([]domain.Step, len(in.PlanJSON.Steps))}
		for i, step := range in.PlanJSON.Steps {
			plan.Steps[i] = domain.Step{Tool: step.Tool, Input: append(json.RawMessage(nil), step.Input...)}
		}
		out.PlanJSON = &plan
	}
	return &out
}

// MemoryIntentRepository implements IntentRepository on a MemoryStore
type MemoryIntentRepository struct {
	s *MemoryStore
}

// Create saves a new intent
func (r *MemoryIntentRepository) Create(ctx context.Context, intent *domain.Intent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent.ID = uuid.NewString()
	intent.CreatedAt = r.s.now()
	r.s.intents[intent.ID] = cloneIntent(intent)
	r.s.order = append(r.s.order, intent.ID)
	return nil
}

// FindByID retrieves an intent by its ID
func (r *MemoryIntentRepository) FindByID(ctx context.Context, id string) (*domain.Intent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	intent, ok := r.s.intents[id]
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	return cloneIntent(intent), nil
}

// UpdateStatus writes the status and returns the updated intent
func (r *MemoryIntentRepository) UpdateStatus(ctx context.Context, id string, status domain.IntentStatus) (*domain.Intent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.intents[id]
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	intent.Status = status
	return cloneIntent(intent), nil
}

// TransitionStatus writes to only if the current status is from
func (r *MemoryIntentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.IntentStatus) (*domain.Intent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.intents[id]
	if !ok {
		return nil, domain.ErrIntentNotFound
	}
	if intent.Status != from {
		return nil, domain.ErrInvalidTransition
	}
	intent.Status = to
	return cloneIntent(intent), nil
}

// ListRecent returns the newest intents first
func (r *MemoryIntentRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Intent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	intents := make([]*domain.Intent, 0, len(r.s.order))
	for i := len(r.s.order) - 1; i >= 0; i-- {
		if limit > 0 && len(intents) == limit {
			break
		}
		intents = append(intents, cloneIntent(r.s.intents[r.s.order[i]]))
	}
	return intents, nil
}

// MemoryAuditRepository implements AuditRepository on a MemoryStore
type MemoryAuditRepository struct {
	s *MemoryStore
}

// Create appends an audit entry
func (r *MemoryAuditRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	entry.ID = uuid.NewString()
	entry.Timestamp = r.s.now()
	stored := *entry
	r.s.audit = append(r.s.audit, &stored)
	return nil
}

// ListByIntent returns the entries of one intent in insertion order
func (r *MemoryAuditRepository) ListByIntent(ctx context.Context, intentID string) ([]*domain.AuditLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var entries []*domain.AuditLogEntry
	for _, entry := range r.s.audit {
		if entry.IntentID == intentID {
			e := *entry
			entries = append(entries, &e)
		}
	}
	return entries, nil
}

// ListRecent returns the newest entries first
func (r *MemoryAuditRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AuditLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := make([]*domain.AuditLogEntry, 0, len(r.s.audit))
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		if limit > 0 && len(entries) == limit {
			break
		}
		e := *r.s.audit[i]
		entries = append(entries, &e)
	}
	return entries, nil
}

// MemoryApprovalRepository implements ApprovalRepository on a MemoryStore
type MemoryApprovalRepository struct {
	s *MemoryStore
}

// Create saves a new approval
func (r *MemoryApprovalRepository) Create(ctx context.Context, approval *domain.Approval) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	approval.ID = uuid.NewString()
	approval.CreatedAt = r.s.now()
	stored := *approval
	r.s.approvals = append(r.s.approvals, &stored)
	return nil
}

// ListByIntent returns the approvals recorded for an intent
func (r *MemoryApprovalRepository) ListByIntent(ctx context.Context, intentID string) ([]*domain.Approval, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var approvals []*domain.Approval
	for _, approval := range r.s.approvals {
		if approval.IntentID == intentID {
			a := *approval
			approvals = append(approvals, &a)
		}
	}
	return approvals, nil
}
