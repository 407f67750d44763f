package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/stackops/stackops/internal/domain"
	"github.com/stackops/stackops/internal/ports"
)

// PostgresAuditRepository implements AuditRepository using PostgreSQL.
// Rows are only ever inserted.
type PostgresAuditRepository struct {
	db *sql.DB
}

// NewPostgresAuditRepository creates a new PostgreSQL audit repository
func NewPostgresAuditRepository(db *sql.DB) ports.AuditRepository {
	return &PostgresAuditRepository{db: db}
}

const auditColumns = `id, intent_id, step, tool_name, input_json, output_json, status, ts`

func scanAudit(row rowScanner) (*domain.AuditLogEntry, error) {
	var (
		entry  domain.AuditLogEntry
		input  []byte
		output []byte
	)
	if err := row.Scan(
		&entry.ID,
		&entry.IntentID,
		&entry.Step,
		&entry.ToolName,
		&input,
		&output,
		&entry.Status,
		&entry.Timestamp,
	); err != nil {
		return nil, err
	}
	entry.InputJSON = json.RawMessage(input)
	entry.OutputJSON = json.RawMessage(output)
	return &entry, nil
}

// Create appends an audit entry
func (r *PostgresAuditRepository) Create(ctx context.Context, entry *domain.AuditLogEntry) error {
	query := `
		INSERT INTO audit_logs (intent_id, step, tool_name, input_json, output_json, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, ts
	`

	err := r.db.QueryRowContext(ctx, query,
		entry.IntentID,
		entry.Step,
		string(entry.ToolName),
		jsonOrNull(entry.InputJSON),
		jsonOrNull(entry.OutputJSON),
		string(entry.Status),
	).Scan(&entry.ID, &entry.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

// ListByIntent returns the entries of one intent in step order
func (r *PostgresAuditRepository) ListByIntent(ctx context.Context, intentID string) ([]*domain.AuditLogEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs WHERE intent_id = $1 ORDER BY ts ASC, step::int ASC`
	return r.list(ctx, query, intentID)
}

// ListRecent returns the newest entries first
func (r *PostgresAuditRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AuditLogEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_logs ORDER BY ts DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *PostgresAuditRepository) list(ctx context.Context, query string, args ...any) ([]*domain.AuditLogEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.AuditLogEntry
	for rows.Next() {
		entry, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

// jsonOrNull keeps empty payloads out of jsonb columns
func jsonOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
