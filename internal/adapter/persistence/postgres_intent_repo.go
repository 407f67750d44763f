package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/ports"
)

// PostgresIntentRepository implements IntentRepository using PostgreSQL
type PostgresIntentRepository struct {
	db *sql.DB
}

// NewPostgresIntentRepository creates a new PostgreSQL intent repository
func NewPostgresIntentRepository(db *sql.DB) ports.IntentRepository {
	return &PostgresIntentRepository{db: db}
}

const intentColumns = `id, tenant_id, type, input_json, plan_json, status, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*domain.Intent, error) {
	var (
		intent domain.Intent
		input  []byte
		plan   []byte
	)
	if err := row.Scan(
		&intent.ID,
		&intent.TenantID,
		&intent.Type,
		&input,
		&plan,
		&intent.Status,
		&intent.CreatedAt,
	); err != nil {
		return nil, err
	}

	intent.InputJSON = json.RawMessage(input)
	if len(plan) > 0 {
		var p domain.Plan
		if err := json.Unmarshal(plan, &p); err != nil {
			return nil, fmt.Errorf("failed to decode plan of intent %s: %w", intent.ID, err)
		}
		intent.PlanJSON = &p
	}
	return &intent, nil
}

// Create saves a new intent
func (r *PostgresIntentRepository) Create(ctx context.Context, intent *domain.Intent) error {
	plan, err := json.Marshal(intent.PlanJSON)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	query := `
		INSERT INTO intents (tenant_id, type, input_json, plan_json, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		intent.TenantID,
		intent.Type,
		[]byte(intent.InputJSON),
		plan,
		string(intent.Status),
	).Scan(&intent.ID, &intent.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create intent: %w", err)
	}

	return nil
}

// FindByID retrieves an intent by its ID
func (r *PostgresIntentRepository) FindByID(ctx context.Context, id string) (*domain.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents WHERE id = $1`

	intent, err := scanIntent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to find intent: %w", err)
	}

	return intent, nil
}

// UpdateStatus writes the status and returns the updated intent
func (r *PostgresIntentRepository) UpdateStatus(ctx context.Context, id string, status domain.IntentStatus) (*domain.Intent, error) {
	query := `
		UPDATE intents
		SET status = $2
		WHERE id = $1
		RETURNING ` + intentColumns

	intent, err := scanIntent(r.db.QueryRowContext(ctx, query, id, string(status)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIntentNotFound
		}
		return nil, fmt.Errorf("failed to update intent status: %w", err)
	}

	return intent, nil
}

// TransitionStatus moves the intent from one status to another in a single statement
func (r *PostgresIntentRepository) TransitionStatus(ctx context.Context, id string, from, to domain.IntentStatus) (*domain.Intent, error) {
	query := `
		UPDATE intents
		SET status = $2
		WHERE id = $1 AND status = $3
		RETURNING ` + intentColumns

	intent, err := scanIntent(r.db.QueryRowContext(ctx, query, id, string(to), string(from)))
	if err == nil {
		return intent, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition intent status: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM intents WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check intent: %w", err)
	}
	if !exists {
		return nil, domain.ErrIntentNotFound
	}
	return nil, domain.ErrInvalidTransition
}

// ListRecent returns the newest intents first
func (r *PostgresIntentRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM intents ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query intents: %w", err)
	}
	defer rows.Close()

	var intents []*domain.Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, intent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intents: %w", err)
	}

	return intents, nil
}
