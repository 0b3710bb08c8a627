package db

import (
	"embed"
	"io/fs"
	"os"
)

// DevMode switches getMigrationsFS to read migration files from the
// working tree instead of the embedded copy. Only useful while iterating
// on a new migration; the embedded copy is authoritative in builds.
var DevMode bool

//go:embed migrations
var migrationsFS embed.FS

// getMigrationsFS returns the migrations as a filesystem rooted at the
// migration files themselves.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		return os.DirFS("internal/db/migrations"), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}
