package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackops/stackops/internal/infra/logger"
)

func writeScripts(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func TestLoadFiles(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"0002_audit.up.sql":   "CREATE TABLE b();",
		"0001_init.up.sql":    "CREATE TABLE a();",
		"0001_init.down.sql":  "DROP TABLE a;",
		"0003_legacy.sql":     "SELECT 1;",
		"README.md":           "docs",
		"nover_something.sql": "SELECT 1;",
	})

	files, err := LoadFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 4)

	assert.Equal(t, 1, files[0].Version)
	assert.Equal(t, 1, files[1].Version)
	assert.Equal(t, 2, files[2].Version)
	assert.Equal(t, "audit", files[2].Name)
	assert.Equal(t, KindUp, files[2].Kind)
	assert.Equal(t, 3, files[3].Version)
	assert.Equal(t, KindUp, files[3].Kind)

	kinds := map[string]bool{}
	for _, f := range files[:2] {
		kinds[f.Kind] = true
		assert.Equal(t, "init", f.Name)
	}
	assert.True(t, kinds[KindUp] && kinds[KindDown])
}

func TestMigrator_UpSkipsApplied(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"0001_init.up.sql":   "CREATE TABLE intents();",
		"0002_more.up.sql":   "CREATE TABLE approvals();",
		"0001_init.down.sql": "DROP TABLE intents;",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE approvals").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(2, "more").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := New(db, dir, logger.NewNopLogger()).Up(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpRollsBackFailedScript(t *testing.T) {
	dir := writeScripts(t, map[string]string{"0001_init.up.sql": "CREATE TABLE broken("})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE broken").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	applied, err := New(db, dir, logger.NewNopLogger()).Up(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_DownRevertsNewestFirst(t *testing.T) {
	dir := writeScripts(t, map[string]string{
		"0001_init.down.sql": "DROP TABLE intents;",
		"0002_more.down.sql": "DROP TABLE approvals;",
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE approvals").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schema_migrations").WithArgs(2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery("SELECT EXISTS").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE intents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schema_migrations").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reverted, err := New(db, dir, logger.NewNopLogger()).Down(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, reverted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
