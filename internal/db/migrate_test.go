package db

import (
	"io/fs"
	"path/filepath"
	"testing"
	"testing/fstest"
)

// openBareDB opens a database with no schema so the tests can drive the
// migration machinery step by step.
func openBareDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate.db"))
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// embeddedSet returns the migration files compiled into the binary.
func embeddedSet(t *testing.T) fs.FS {
	t.Helper()
	fsys, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS failed: %v", err)
	}
	return fsys
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name=?
	`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check table %s: %v", name, err)
	}
	return exists
}

func indexExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var exists bool
	err := db.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='index' AND name=?
	`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("failed to check index %s: %v", name, err)
	}
	return exists
}

func TestMigrateUp(t *testing.T) {
	db := openBareDB(t)
	set := embeddedSet(t)

	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(set)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after a clean up")
	}

	for _, table := range []string{"projects", "constraints", "solves"} {
		if !tableExists(t, db, table) {
			t.Errorf("%s table should exist after MigrateUp", table)
		}
	}
	if !indexExists(t, db, "idx_solves_project") {
		t.Error("idx_solves_project should exist after MigrateUp")
	}
}

func TestMigrateUp_AlreadyCurrent(t *testing.T) {
	db := openBareDB(t)
	set := embeddedSet(t)

	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("first MigrateUp failed: %v", err)
	}
	// A second up has nothing to do and must not report an error.
	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	version, _, err := db.MigrateVersion(set)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openBareDB(t)
	set := embeddedSet(t)

	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.MigrateDown(set); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion(set)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1 after one rollback, got %d", version)
	}
	if dirty {
		t.Error("database should not be dirty after a clean rollback")
	}

	// Rolling back the solves migration must leave the project tables alone.
	if tableExists(t, db, "solves") {
		t.Error("solves table should be gone at version 1")
	}
	if !tableExists(t, db, "projects") {
		t.Error("projects table should survive rolling back the solves migration")
	}
	if !tableExists(t, db, "constraints") {
		t.Error("constraints table should survive rolling back the solves migration")
	}
}

func TestMigrateVersion_FreshDatabase(t *testing.T) {
	db := openBareDB(t)

	version, dirty, err := db.MigrateVersion(embeddedSet(t))
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 before any migration, got %d", version)
	}
	if dirty {
		t.Error("fresh database should not be dirty")
	}
}

func TestMigrateTo(t *testing.T) {
	db := openBareDB(t)
	set := embeddedSet(t)

	// Stop at the projects schema.
	if err := db.MigrateTo(set, 1); err != nil {
		t.Fatalf("MigrateTo(1) failed: %v", err)
	}
	version, _, err := db.MigrateVersion(set)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected version 1, got %d", version)
	}
	if !tableExists(t, db, "projects") {
		t.Error("projects table should exist at version 1")
	}
	if tableExists(t, db, "solves") {
		t.Error("solves table should not exist at version 1")
	}

	// Continue to the solves schema.
	if err := db.MigrateTo(set, 2); err != nil {
		t.Fatalf("MigrateTo(2) failed: %v", err)
	}
	version, _, err = db.MigrateVersion(set)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 2 {
		t.Errorf("expected version 2, got %d", version)
	}
	if !tableExists(t, db, "solves") {
		t.Error("solves table should exist at version 2")
	}
}

func TestMigrateForce_StampsWithoutRunningSQL(t *testing.T) {
	db := openBareDB(t)
	set := embeddedSet(t)

	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := db.MigrateForce(set, 1); err != nil {
		t.Fatalf("MigrateForce failed: %v", err)
	}

	version, _, err := db.MigrateVersion(set)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 1 {
		t.Errorf("expected forced version 1, got %d", version)
	}

	// Force only rewrites the bookkeeping row; the solves table from
	// version 2 is still physically present.
	if !tableExists(t, db, "solves") {
		t.Error("solves table should survive a force, which runs no SQL")
	}
}

func TestBaselineAtVersion(t *testing.T) {
	db := openBareDB(t)

	if err := db.BaselineAtVersion(1); err != nil {
		t.Fatalf("BaselineAtVersion failed: %v", err)
	}

	if !tableExists(t, db, "schema_migrations") {
		t.Fatal("schema_migrations table should exist after baseline")
	}
	var version int
	if err := db.QueryRow("SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		t.Fatalf("failed to read baseline version: %v", err)
	}
	if version != 1 {
		t.Errorf("expected baseline version 1, got %d", version)
	}

	// Baselining never runs migrations, so no domain table appears.
	if tableExists(t, db, "projects") {
		t.Error("baseline should not create the projects table")
	}

	// A database with a recorded version cannot be baselined again.
	if err := db.BaselineAtVersion(2); err == nil {
		t.Error("expected error when baselining an already-migrated database")
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db := openBareDB(t)
	set := embeddedSet(t)

	status, err := db.GetMigrationStatus(set)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status["current_version"] != uint(0) {
		t.Errorf("expected version 0 before migrations, got %v", status["current_version"])
	}
	if status["dirty"] != false {
		t.Error("expected dirty=false before migrations")
	}

	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	status, err = db.GetMigrationStatus(set)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status["current_version"] != uint(2) {
		t.Errorf("expected version 2 after migrations, got %v", status["current_version"])
	}
	if status["schema_migrations_exists"] != true {
		t.Error("expected schema_migrations_exists=true after migrations")
	}
}

func TestGetLatestMigrationVersion(t *testing.T) {
	t.Run("versions come from filenames", func(t *testing.T) {
		fsys := fstest.MapFS{
			"000001_create_projects.up.sql":   {},
			"000001_create_projects.down.sql": {},
			"000007_add_crs_column.up.sql":    {},
			"000007_add_crs_column.down.sql":  {},
		}
		latest, err := GetLatestMigrationVersion(fsys)
		if err != nil {
			t.Fatalf("GetLatestMigrationVersion failed: %v", err)
		}
		if latest != 7 {
			t.Errorf("expected latest version 7, got %d", latest)
		}
	})

	t.Run("empty set is an error", func(t *testing.T) {
		if _, err := GetLatestMigrationVersion(fstest.MapFS{}); err == nil {
			t.Error("expected error for a filesystem with no migrations")
		}
	})
}

func TestMigrateUpDown_FullCycle(t *testing.T) {
	db := openBareDB(t)
	set := embeddedSet(t)

	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	// Roll everything back.
	if err := db.MigrateDown(set); err != nil {
		t.Fatalf("first MigrateDown failed: %v", err)
	}
	if err := db.MigrateDown(set); err != nil {
		t.Fatalf("second MigrateDown failed: %v", err)
	}

	version, _, err := db.MigrateVersion(set)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 after rolling back everything, got %d", version)
	}
	if tableExists(t, db, "projects") {
		t.Error("projects table should be gone after a full rollback")
	}

	// With nothing applied there is nothing left to roll back.
	if err := db.MigrateDown(set); err == nil {
		t.Error("expected error rolling back past the first migration")
	}

	// The schema comes back cleanly.
	if err := db.MigrateUp(set); err != nil {
		t.Fatalf("re-applying migrations failed: %v", err)
	}
	if !tableExists(t, db, "solves") {
		t.Error("solves table should exist after re-applying migrations")
	}
}
