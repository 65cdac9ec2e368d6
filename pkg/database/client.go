// Package database provides the embedded SQLite stores (catalog and
// per-project), migration utilities, and the transaction discipline used by
// all repositories.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Register the CGO-free sqlite driver for database/sql
)

// DB wraps a single embedded database file. One file per project plus one
// top-level catalog.
type DB struct {
	*sql.DB
	path string
}

// Path returns the database file location. Empty for in-memory databases.
func (d *DB) Path() string {
	return d.path
}

// Handle returns a fresh repository handle over this database.
func (d *DB) Handle() *Handle {
	return &Handle{db: d.DB}
}

// OpenProject opens (creating lazily, including parent directories) a
// per-project database and applies pending project migrations.
func OpenProject(ctx context.Context, path string) (*DB, error) {
	return open(ctx, path, migrationSetProject)
}

// OpenCatalog opens the top-level catalog database and applies pending
// catalog migrations.
func OpenCatalog(ctx context.Context, path string) (*DB, error) {
	return open(ctx, path, migrationSetCatalog)
}

func open(ctx context.Context, path string, set migrationSet) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers at the pool level; WAL mode and
	// busy_timeout cover readers opened on separate handles.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, set); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{DB: db, path: path}, nil
}

// dsn builds the sqlite connection string. Pragmas allow the handle to be
// shared across goroutines without "database is locked" storms.
func dsn(path string) string {
	if path == ":memory:" {
		return "file::memory:?_pragma=foreign_keys(1)"
	}
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"
}

// Health pings the database with the given context.
func Health(ctx context.Context, db *sql.DB) error {
	return db.PingContext(ctx)
}
