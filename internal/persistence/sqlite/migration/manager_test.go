package migration

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migration.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestManager_RunAppliesPendingOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	files := fstest.MapFS{
		"m/001_notes.sql": {Data: []byte("CREATE TABLE notes (id TEXT PRIMARY KEY, body TEXT NOT NULL);")},
		"m/002_tags.sql":  {Data: []byte("CREATE TABLE tags (id TEXT PRIMARY KEY);\nCREATE INDEX idx_tags_id ON tags (id);")},
	}

	manager := NewManager(db, NewScanner(files, "m"), nil)
	if err := manager.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if err := manager.Run(ctx); err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.CurrentVersion != "002" {
		t.Errorf("expected current version 002, got %q", status.CurrentVersion)
	}
	if len(status.Pending) != 0 {
		t.Errorf("expected no pending migrations, got %d", len(status.Pending))
	}
	if len(status.Applied) != 2 {
		t.Errorf("expected 2 applied migrations, got %d", len(status.Applied))
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO notes (id, body) VALUES ('n1', 'hello')"); err != nil {
		t.Fatalf("expected notes table to exist: %v", err)
	}
}

func TestManager_RunRollsBackFailedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	files := fstest.MapFS{
		"m/001_ok.sql":     {Data: []byte("CREATE TABLE ok (id TEXT);")},
		"m/002_broken.sql": {Data: []byte("CREATE TABLE half (id TEXT);\nINSERT INTO missing_table VALUES (1);")},
	}

	err := NewManager(db, NewScanner(files, "m"), nil).Run(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}

	var migrationErr *MigrationError
	if !errors.As(err, &migrationErr) || migrationErr.Version != "002" {
		t.Fatalf("expected MigrationError for version 002, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'half'").Scan(&count); err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	if count != 0 {
		t.Errorf("expected failed migration to be rolled back")
	}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 recorded migration, got %d", count)
	}
}

func TestManager_StatusDetectsConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("gap in sequence", func(t *testing.T) {
		t.Parallel()
		files := fstest.MapFS{
			"m/001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
			"m/003_c.sql": {Data: []byte("CREATE TABLE c (id TEXT);")},
		}
		_, err := NewManager(openTestDB(t), NewScanner(files, "m"), nil).Status(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected ErrVersionConflict, got %v", err)
		}
	})

	t.Run("edited migration", func(t *testing.T) {
		t.Parallel()
		db := openTestDB(t)
		original := fstest.MapFS{"m/001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}
		if err := NewManager(db, NewScanner(original, "m"), nil).Run(ctx); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		edited := fstest.MapFS{"m/001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT, extra TEXT);")}}
		_, err := NewManager(db, NewScanner(edited, "m"), nil).Status(ctx)
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("expected ErrChecksumMismatch, got %v", err)
		}
	})
}
