package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
)

const runColumns = "id, scope, status, triggered_by, created_at, started_at, finished_at, error_message, document_ids"

// CreateRun inserts a new run in pending state and returns it.
func CreateRun(ctx context.Context, h *database.Handle, scope models.Scope, triggeredBy string, documentIDs []int64) (*models.Run, error) {
	if !scope.Valid() {
		return nil, NewValidationError("scope", "unknown scope "+string(scope))
	}

	now := database.NowUTC()
	created, err := database.FormatTime(now)
	if err != nil {
		return nil, err
	}

	var docIDsJSON any
	if len(documentIDs) > 0 {
		b, err := json.Marshal(documentIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document ids: %w", err)
		}
		docIDsJSON = string(b)
	}

	res, err := h.ExecContext(ctx,
		`INSERT INTO runs (scope, status, triggered_by, created_at, document_ids) VALUES (?, ?, ?, ?, ?)`,
		string(scope), string(models.RunStatusPending), triggeredBy, created, docIDsJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read run id: %w", err)
	}

	return &models.Run{
		ID:          id,
		Scope:       scope,
		Status:      models.RunStatusPending,
		TriggeredBy: triggeredBy,
		CreatedAt:   now,
		DocumentIDs: documentIDs,
	}, nil
}

// GetRun returns a run by id or ErrNotFound.
func GetRun(ctx context.Context, h *database.Handle, id int64) (*models.Run, error) {
	row := h.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// GetCurrentRun returns the newest non-terminal run, or nil when the project
// is idle. Admission serialization guarantees at most one exists.
func GetCurrentRun(ctx context.Context, h *database.Handle) (*models.Run, error) {
	row := h.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status IN (?, ?) ORDER BY created_at DESC, id DESC LIMIT 1`,
		string(models.RunStatusPending), string(models.RunStatusRunning),
	)
	run, err := scanRun(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return run, err
}

// MarkRunning moves an active run to running and stamps started_at. Returns
// the rowcount so callers can tell "applied" from "already terminal".
func MarkRunning(ctx context.Context, h *database.Handle, id int64, startedAt time.Time) (int64, error) {
	started, err := database.FormatTime(startedAt)
	if err != nil {
		return 0, err
	}
	return conditionalUpdate(ctx, h,
		`UPDATE runs SET status = ?, started_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(models.RunStatusRunning), started, id,
		string(models.RunStatusPending), string(models.RunStatusRunning),
	)
}

// UpdateIfRunning moves a run out of running into a terminal state. Used for
// normal completion so a concurrently-served cancel wins the race.
func UpdateIfRunning(ctx context.Context, h *database.Handle, id int64, status models.RunStatus, finishedAt time.Time, errorMessage string) (int64, error) {
	finished, err := database.FormatTime(finishedAt)
	if err != nil {
		return 0, err
	}
	return conditionalUpdate(ctx, h,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE id = ? AND status = ?`,
		string(status), finished, nullIfEmpty(errorMessage), id,
		string(models.RunStatusRunning),
	)
}

// UpdateIfActive moves a run out of any active state (pending or running)
// into a terminal state. Used for cancel and failure so nothing overwrites a
// prior terminal. A rowcount of 0 covers both "not found" and "already
// terminal"; callers must not branch on the difference.
func UpdateIfActive(ctx context.Context, h *database.Handle, id int64, status models.RunStatus, finishedAt time.Time, errorMessage string) (int64, error) {
	finished, err := database.FormatTime(finishedAt)
	if err != nil {
		return 0, err
	}
	return conditionalUpdate(ctx, h,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE id = ? AND status IN (?, ?)`,
		string(status), finished, nullIfEmpty(errorMessage), id,
		string(models.RunStatusPending), string(models.RunStatusRunning),
	)
}

// ListRuns returns runs newest-first.
func ListRuns(ctx context.Context, h *database.Handle, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func conditionalUpdate(ctx context.Context, h *database.Handle, query string, args ...any) (int64, error) {
	res, err := h.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("conditional run update failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rowcount: %w", err)
	}
	return n, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row *sql.Row) (*models.Run, error) {
	run, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func scanRunRow(row rowScanner) (*models.Run, error) {
	var (
		run        models.Run
		scope      string
		status     string
		createdAt  string
		startedAt  sql.NullString
		finishedAt sql.NullString
		errMsg     sql.NullString
		docIDs     sql.NullString
	)
	if err := row.Scan(&run.ID, &scope, &status, &run.TriggeredBy, &createdAt, &startedAt, &finishedAt, &errMsg, &docIDs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.Scope = models.Scope(scope)
	run.Status = models.RunStatus(status)

	created, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = created

	if startedAt.Valid {
		t, err := database.ParseTime(startedAt.String)
		if err != nil {
			return nil, err
		}
		run.StartedAt = &t
	}
	if finishedAt.Valid {
		t, err := database.ParseTime(finishedAt.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	if errMsg.Valid {
		run.ErrorMessage = errMsg.String
	}
	if docIDs.Valid && strings.TrimSpace(docIDs.String) != "" {
		if err := json.Unmarshal([]byte(docIDs.String), &run.DocumentIDs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document ids: %w", err)
		}
	}
	return &run, nil
}
