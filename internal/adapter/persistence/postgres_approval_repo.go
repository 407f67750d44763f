package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/ports"
)

// PostgresApprovalRepository implements ApprovalRepository using PostgreSQL
type PostgresApprovalRepository struct {
	db *sql.DB
}

// NewPostgresApprovalRepository creates a new PostgreSQL approval repository
func NewPostgresApprovalRepository(db *sql.DB) ports.ApprovalRepository {
	return &PostgresApprovalRepository{db: db}
}

// Create saves a new approval
func (r *PostgresApprovalRepository) Create(ctx context.Context, approval *domain.Approval) error {
	query := `
		INSERT INTO approvals (intent_id, approver, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		approval.IntentID,
		approval.Approver,
		approval.Status,
	).Scan(&approval.ID, &approval.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create approval: %w", err)
	}

	return nil
}

// ListByIntent returns the approvals recorded for an intent
func (r *PostgresApprovalRepository) ListByIntent(ctx context.Context, intentID string) ([]*domain.Approval, error) {
	query := `
		SELECT id, intent_id, approver, status, created_at
		FROM approvals
		WHERE intent_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*domain.Approval
	for rows.Next() {
		var approval domain.Approval
		if err := rows.Scan(
			&approval.ID,
			&approval.IntentID,
			&approval.Approver,
			&approval.Status,
			&approval.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, &approval)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating approvals: %w", err)
	}

	return approvals, nil
}
