package db

import (
	"path/filepath"
	"testing"
)

// newTestDB creates a fully migrated database in a temp directory.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDB_CreatesSchema(t *testing.T) {
	db := newTestDB(t)

	// All three domain tables should exist after NewDB
	for _, table := range []string{"projects", "constraints", "solves"} {
		var exists bool
		err := db.QueryRow(`
			SELECT COUNT(*) > 0
			FROM sqlite_master
			WHERE type='table' AND name=?
		`, table).Scan(&exists)
		if err != nil {
			t.Fatalf("failed to check %s table: %v", table, err)
		}
		if !exists {
			t.Errorf("%s table should exist after NewDB", table)
		}
	}
}

func TestNewDB_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")

	db, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("first NewDB failed: %v", err)
	}

	// Write a row so we can prove reopening preserves data
	_, err = db.Exec(`INSERT INTO projects (project_id, name, created_at, updated_at)
		VALUES ('p1', 'reopen test', '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	db.Close()

	// Reopen: migrations are already applied, NewDB must not fail or wipe data
	db, err = NewDB(dbPath)
	if err != nil {
		t.Fatalf("second NewDB failed: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM projects").Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 project after reopen, got %d", count)
	}
}

func TestNewDB_AtLatestVersion(t *testing.T) {
	db := newTestDB(t)

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(migrationsFS)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("fresh database should not be dirty")
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("NewDB left version %d, latest is %d", version, latest)
	}
}

func TestOpenDB_NoSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bare.db")

	db, err := OpenDB(dbPath)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	defer db.Close()

	// OpenDB must not create domain tables; migrations own the schema
	var exists bool
	err = db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='projects'
	`).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check projects table: %v", err)
	}
	if exists {
		t.Error("OpenDB should not create the projects table")
	}
}
