package db

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "erg_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func columns(t *testing.T, db *DB, table string) []string {
	t.Helper()
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestNewDB_MigratesToLatest(t *testing.T) {
	db := setupTestDB(t)

	status, err := db.MigrationStatus(Migrations())
	require.NoError(t, err)
	assert.Equal(t, MigrationStatus{CurrentVersion: 2, LatestVersion: 2}, status)
	assert.False(t, status.Pending())

	for _, table := range []string{"sessions", "intervals", "strokes"} {
		assert.NotEmpty(t, columns(t, db, table), table)
	}
	assert.Contains(t, columns(t, db, "sessions"), "recording")

	var fk int
	require.NoError(t, db.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestNewDB_ReopenIsNoChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "erg_test.db")
	db, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	version, dirty, err := db.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)
}

func TestMigrateDownAndTo(t *testing.T) {
	db := setupTestDB(t)
	migrations := Migrations()

	require.NoError(t, db.MigrateDown(migrations))
	version, _, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.NotContains(t, columns(t, db, "sessions"), "recording")

	require.NoError(t, db.MigrateTo(migrations, 2))
	assert.Contains(t, columns(t, db, "sessions"), "recording")

	// already there
	require.NoError(t, db.MigrateUp(migrations))
}

func TestLatestMigrationVersion(t *testing.T) {
	latest, err := LatestMigrationVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(2), latest)
}

func TestRunMigrate(t *testing.T) {
	db := setupTestDB(t)
	migrations := Migrations()

	var out bytes.Buffer
	require.NoError(t, db.runMigrate(migrations, []string{"status"}, &out))
	assert.Contains(t, out.String(), "Current version: 2")
	assert.NotContains(t, out.String(), "pending")

	out.Reset()
	require.NoError(t, db.runMigrate(migrations, []string{"down"}, &out))
	assert.Contains(t, out.String(), "1 migration(s) pending")

	out.Reset()
	require.NoError(t, db.runMigrate(migrations, []string{"version", "2"}, &out))
	assert.Contains(t, out.String(), "Schema at version 2")

	err := db.runMigrate(migrations, []string{"version"}, &out)
	assert.ErrorContains(t, err, "usage")
	err = db.runMigrate(migrations, []string{"force", "two"}, &out)
	assert.ErrorContains(t, err, "invalid version number")

	out.Reset()
	err = db.runMigrate(migrations, []string{"sideways"}, &out)
	assert.ErrorIs(t, err, ErrUnknownMigrateAction)
	assert.Contains(t, out.String(), "Usage: ergmonitor migrate")
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "All migrations applied")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"help"}, path, &out))
	assert.Contains(t, out.String(), "Database Migration Commands")

	assert.Error(t, RunMigrateCommand(nil, path, io.Discard))
}

func TestBackup(t *testing.T) {
	db := setupTestDB(t)
	path := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, db.Backup(path))

	restored, err := OpenDB(path)
	require.NoError(t, err)
	defer restored.Close()
	version, _, err := restored.MigrateVersion(Migrations())
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest("GET", "/debug/backup", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment; filename=backup-"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("SQLite format 3")))
}
