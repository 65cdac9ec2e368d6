package database

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// migrationSet selects which embedded migration directory applies to a
// database file.
type migrationSet struct {
	name string
	dir  string
}

var (
	migrationSetCatalog = migrationSet{name: "catalog", dir: "migrations/catalog"}
	migrationSetProject = migrationSet{name: "project", dir: "migrations/project"}
)

// runMigrations applies all pending migrations for the given set.
//
// Migration files are embedded into the binary with go:embed so deployments
// never depend on external files. The version counter lives in the
// schema_meta table; migrations are forward-only, each bumping the version.
func runMigrations(db *sql.DB, set migrationSet) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{
		MigrationsTable: "schema_meta",
	})
	if err != nil {
		return fmt.Errorf("failed to create sqlite migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, set.dir)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, set.name, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply %s migrations: %w", set.name, err)
	}

	// Close only the source driver. m.Close() would also close the database
	// driver, which closes the shared *sql.DB underneath the caller.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("failed to close migration source: %w", err)
	}

	return nil
}
