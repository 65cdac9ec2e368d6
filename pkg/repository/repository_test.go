package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/glossforge/glossforge/pkg/database"
)

func openProjectDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenProject(context.Background(), filepath.Join(t.TempDir(), "project.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openCatalogDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenCatalog(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
