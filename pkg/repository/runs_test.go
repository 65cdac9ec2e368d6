package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
)

func TestCreateRunStartsPending(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	run, err := CreateRun(ctx, db.Handle(), models.ScopeFull, "test", nil)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Nil(t, run.StartedAt)
	assert.Nil(t, run.FinishedAt)

	loaded, err := GetRun(ctx, db.Handle(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, models.ScopeFull, loaded.Scope)
}

func TestCreateRunRejectsUnknownScope(t *testing.T) {
	db := openProjectDB(t)

	_, err := CreateRun(context.Background(), db.Handle(), models.Scope("bogus"), "test", nil)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateRunPersistsDocumentIDs(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	run, err := CreateRun(ctx, db.Handle(), models.ScopeExtract, "upload", []int64{3, 7})
	require.NoError(t, err)

	loaded, err := GetRun(ctx, db.Handle(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, loaded.DocumentIDs)
}

func TestGetCurrentRunNilWhenIdle(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	current, err := GetCurrentRun(ctx, db.Handle())
	require.NoError(t, err)
	assert.Nil(t, current)

	run, err := CreateRun(ctx, db.Handle(), models.ScopeFull, "test", nil)
	require.NoError(t, err)

	current, err = GetCurrentRun(ctx, db.Handle())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, run.ID, current.ID)

	_, err = UpdateIfActive(ctx, db.Handle(), run.ID, models.RunStatusCancelled, database.NowUTC(), "")
	require.NoError(t, err)

	current, err = GetCurrentRun(ctx, db.Handle())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestMarkRunningStampsStartedAt(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	run, err := CreateRun(ctx, db.Handle(), models.ScopeFull, "test", nil)
	require.NoError(t, err)

	n, err := MarkRunning(ctx, db.Handle(), run.ID, database.NowUTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	loaded, err := GetRun(ctx, db.Handle(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, loaded.Status)
	require.NotNil(t, loaded.StartedAt)
	assert.False(t, loaded.StartedAt.Before(loaded.CreatedAt))
}

func TestUpdateIfRunningLosesToPriorCancel(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	run, err := CreateRun(ctx, db.Handle(), models.ScopeFull, "test", nil)
	require.NoError(t, err)
	_, err = MarkRunning(ctx, db.Handle(), run.ID, database.NowUTC())
	require.NoError(t, err)

	n, err := UpdateIfActive(ctx, db.Handle(), run.ID, models.RunStatusCancelled, database.NowUTC(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Completion arriving after the cancel is a no-op.
	n, err = UpdateIfRunning(ctx, db.Handle(), run.ID, models.RunStatusCompleted, database.NowUTC(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	loaded, err := GetRun(ctx, db.Handle(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, loaded.Status)
}

func TestUpdateIfActiveOnTerminalRunMutatesNothing(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	run, err := CreateRun(ctx, db.Handle(), models.ScopeFull, "test", nil)
	require.NoError(t, err)
	_, err = MarkRunning(ctx, db.Handle(), run.ID, database.NowUTC())
	require.NoError(t, err)

	n, err := UpdateIfActive(ctx, db.Handle(), run.ID, models.RunStatusFailed, database.NowUTC(), "first failure")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	before, err := GetRun(ctx, db.Handle(), run.ID)
	require.NoError(t, err)

	// A second terminal write is rejected by the status condition.
	n, err = UpdateIfActive(ctx, db.Handle(), run.ID, models.RunStatusCancelled, database.NowUTC(), "late cancel")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	after, err := GetRun(ctx, db.Handle(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.ErrorMessage, after.ErrorMessage)
	assert.Equal(t, before.FinishedAt, after.FinishedAt)
}

func TestUpdateIfActiveUnknownRun(t *testing.T) {
	db := openProjectDB(t)

	n, err := UpdateIfActive(context.Background(), db.Handle(), 9999, models.RunStatusCancelled, database.NowUTC(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestTerminalRunHasFinishedAt(t *testing.T) {
	db := openProjectDB(t)
	ctx := context.Background()

	run, err := CreateRun(ctx, db.Handle(), models.ScopeFull, "test", nil)
	require.NoError(t, err)
	_, err = MarkRunning(ctx, db.Handle(), run.ID, database.NowUTC())
	require.NoError(t, err)
	_, err = UpdateIfRunning(ctx, db.Handle(), run.ID, models.RunStatusCompleted, database.NowUTC(), "")
	require.NoError(t, err)

	loaded, err := GetRun(ctx, db.Handle(), run.ID)
	require.NoError(t, err)
	require.True(t, loaded.Status.Terminal())
	require.NotNil(t, loaded.StartedAt)
	require.NotNil(t, loaded.FinishedAt)
	assert.False(t, loaded.StartedAt.Before(loaded.CreatedAt))
	assert.False(t, loaded.FinishedAt.Before(*loaded.StartedAt))
}
