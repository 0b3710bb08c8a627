package db

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand dispatches the 'migrate' subcommand. args holds the
// positional arguments after the subcommand's own flags.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		PrintMigrateHelp()
		os.Exit(1)
	}

	migrationsFS, err := getMigrationsFS()
	if err != nil {
		log.Fatalf("Failed to load migrations: %v", err)
	}

	// Open without schema initialization; the migrations own the schema.
	database, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		handleMigrateUp(database, migrationsFS)

	case "down":
		handleMigrateDown(database, migrationsFS)

	case "status":
		handleMigrateStatus(database, migrationsFS)

	case "version":
		target := parseVersionArg(args, "georef migrate version <N>")
		log.Printf("Migrating to version %d...", target)
		if err := database.MigrateTo(migrationsFS, target); err != nil {
			log.Fatalf("Migration to version %d failed: %v", target, err)
		}
		log.Printf("✓ Now at version %d", target)

	case "force":
		handleMigrateForce(database, migrationsFS, parseVersionArg(args, "georef migrate force <N>"))

	case "baseline":
		target := parseVersionArg(args, "georef migrate baseline <N>")
		log.Printf("Baselining database at version %d...", target)
		if err := database.BaselineAtVersion(target); err != nil {
			log.Fatalf("Baseline failed: %v", err)
		}
		log.Printf("✓ Database baselined at version %d", target)

	case "help":
		PrintMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}
}

// parseVersionArg reads the version number expected as the second
// positional argument, exiting with usage on absence or garbage.
func parseVersionArg(args []string, usage string) uint {
	if len(args) < 2 {
		log.Fatalf("Usage: %s", usage)
	}
	v, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		log.Fatalf("Invalid version number %q", args[1])
	}
	return uint(v)
}

// reportVersion echoes the version the database landed on.
func reportVersion(database *DB, migrationsFS fs.FS) {
	version, dirty, _ := database.MigrateVersion(migrationsFS)
	log.Printf("Current version: %d (dirty: %v)", version, dirty)
}

func handleMigrateUp(database *DB, migrationsFS fs.FS) {
	log.Printf("Applying pending migrations...")
	if err := database.MigrateUp(migrationsFS); err != nil {
		log.Fatalf("Migration up failed: %v", err)
	}
	log.Println("✓ All migrations applied")
	reportVersion(database, migrationsFS)
}

func handleMigrateDown(database *DB, migrationsFS fs.FS) {
	log.Printf("Rolling back one migration...")
	if err := database.MigrateDown(migrationsFS); err != nil {
		log.Fatalf("Migration down failed: %v", err)
	}
	log.Println("✓ Rolled back one migration")
	reportVersion(database, migrationsFS)
}

func handleMigrateStatus(database *DB, migrationsFS fs.FS) {
	version, dirty, err := database.MigrateVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}

	status, err := database.GetMigrationStatus(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}

	latest, err := GetLatestMigrationVersion(migrationsFS)
	if err != nil {
		log.Fatalf("Failed to read latest migration version: %v", err)
	}

	fmt.Println("=== Migration Status ===")
	fmt.Printf("Current version: %d\n", version)
	fmt.Printf("Latest available: %d\n", latest)
	fmt.Printf("Dirty: %v\n", dirty)
	fmt.Printf("Schema migrations table exists: %v\n", status["schema_migrations_exists"])

	if version < latest && !dirty {
		fmt.Printf("\n⚠️  Database is %d version(s) behind. Run 'georef migrate up' to update.\n", latest-version)
	}

	if dirty {
		fmt.Println("\n⚠️  WARNING: a migration failed partway through.")
		fmt.Println("Inspect the database, repair it by hand, then run:")
		fmt.Println("  georef migrate force <version>")
	}
}

// handleMigrateForce stamps the version without running any migration.
// Recovery tool for a dirty state, so it asks before writing.
func handleMigrateForce(database *DB, migrationsFS fs.FS, target uint) {
	fmt.Printf("⚠️  Forcing the recorded migration version to %d.\n", target)
	fmt.Println("No migration will run; only the schema_migrations row changes.")
	fmt.Print("Continue? [y/N]: ")

	var response string
	fmt.Scanln(&response)
	if response != "y" && response != "Y" {
		log.Println("Aborted")
		os.Exit(0)
	}

	if err := database.MigrateForce(migrationsFS, int(target)); err != nil {
		log.Fatalf("Force failed: %v", err)
	}
	log.Printf("✓ Migration version forced to %d", target)
}

// PrintMigrateHelp displays the help message for the migrate command.
func PrintMigrateHelp() {
	fmt.Println("Database Migration Commands")
	fmt.Println()
	fmt.Println("Usage: georef migrate <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up              Apply all pending migrations")
	fmt.Println("  down            Roll back one migration")
	fmt.Println("  status          Show current and latest migration versions")
	fmt.Println("  version <N>     Migrate up or down to version N")
	fmt.Println("  force <N>       Stamp version N without migrating (recovery only)")
	fmt.Println("  baseline <N>    Mark an existing schema as version N")
	fmt.Println("  help            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  georef migrate up")
	fmt.Println("  georef migrate status")
	fmt.Println("  georef migrate version 1")
	fmt.Println()
	fmt.Println("Adopting a database created before migrations existed:")
	fmt.Println("  1. georef migrate baseline <N>  # record the schema version already present")
	fmt.Println("  2. georef migrate up            # apply anything newer")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -db <path>    Path to database file (default: georef.db)")
}
