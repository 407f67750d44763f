// Package migrate applies the numbered SQL files under the migrations directory.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/stackops/stackops/internal/infra/logger"
)

const (
	KindUp   = "up"
	KindDown = "down"
)

// File is one migration script, e.g. 0001_init.up.sql
type File struct {
	Version int
	Name    string
	Path    string
	Kind    string
}

// Migrator tracks applied versions in schema_migrations
type Migrator struct {
	db     *sql.DB
	dir    string
	logger logger.Logger
}

// New creates a migrator for the scripts in dir
func New(db *sql.DB, dir string, log logger.Logger) *Migrator {
	return &Migrator{db: db, dir: dir, logger: log.WithFields(map[string]interface{}{"component": "migrate"})}
}

// Up applies every pending up script in ascending version order
func (m *Migrator) Up(ctx context.Context) (int, error) {
	files, err := m.prepare(ctx, KindUp)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, f := range files {
		done, err := m.isApplied(ctx, f.Version)
		if err != nil {
			return applied, err
		}
		if done {
			continue
		}
		m.logger.Info(ctx, "Applying migration", map[string]interface{}{"version": f.Version, "name": f.Name})
		if err := m.run(ctx, f, "INSERT INTO schema_migrations (version, name) VALUES ($1, $2)", f.Version, f.Name); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// Down reverts every applied version in descending order
func (m *Migrator) Down(ctx context.Context) (int, error) {
	files, err := m.prepare(ctx, KindDown)
	if err != nil {
		return 0, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Version > files[j].Version })

	reverted := 0
	for _, f := range files {
		done, err := m.isApplied(ctx, f.Version)
		if err != nil {
			return reverted, err
		}
		if !done {
			continue
		}
		m.logger.Info(ctx, "Reverting migration", map[string]interface{}{"version": f.Version, "name": f.Name})
		if err := m.run(ctx, f, "DELETE FROM schema_migrations WHERE version = $1", f.Version); err != nil {
			return reverted, err
		}
		reverted++
	}
	return reverted, nil
}

func (m *Migrator) prepare(ctx context.Context, kind string) ([]File, error) {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, fmt.Errorf("failed to ensure schema_migrations: %w", err)
	}

	all, err := LoadFiles(m.dir)
	if err != nil {
		return nil, err
	}
	var files []File
	for _, f := range all {
		if f.Kind == kind {
			files = append(files, f)
		}
	}
	return files, nil
}

func (m *Migrator) isApplied(ctx context.Context, version int) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %d: %w", version, err)
	}
	return exists, nil
}

// run executes the script and its bookkeeping statement in one transaction
func (m *Migrator) run(ctx context.Context, f File, bookkeeping string, args ...interface{}) error {
	script, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.Path, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return fmt.Errorf("failed applying %s: %w", f.Path, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", f.Version, err)
	}
	return tx.Commit()
}

// LoadFiles lists the scripts in dir sorted by version. Files without a
// numeric prefix are skipped; a file without .up/.down counts as up.
func LoadFiles(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations dir: %w", err)
	}

	var files []File
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if !strings.HasSuffix(lower, ".sql") {
			continue
		}

		kind := KindUp
		base := strings.TrimSuffix(lower, ".sql")
		switch {
		case strings.HasSuffix(base, ".down"):
			kind = KindDown
			base = strings.TrimSuffix(base, ".down")
		case strings.HasSuffix(base, ".up"):
			base = strings.TrimSuffix(base, ".up")
		}

		prefix, rest, ok := strings.Cut(base, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		files = append(files, File{Version: version, Name: rest, Path: filepath.Join(dir, name), Kind: kind})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}
