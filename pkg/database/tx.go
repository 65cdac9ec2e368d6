package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Handle is the unit of data access handed to repositories. Repository
// functions execute SQL through it but never commit; callers own transaction
// boundaries via InTx. Nested InTx calls use savepoints.
type Handle struct {
	db    *sql.DB
	tx    *sql.Tx
	depth int
}

// NewHandle wraps a raw *sql.DB. Used by tests; production code goes through
// DB.Handle.
func NewHandle(db *sql.DB) *Handle {
	return &Handle{db: db}
}

// ExecContext runs a statement inside the enclosing transaction if one is
// open, otherwise in autocommit mode.
func (h *Handle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if h.tx != nil {
		return h.tx.ExecContext(ctx, query, args...)
	}
	return h.db.ExecContext(ctx, query, args...)
}

// QueryContext mirrors ExecContext for row queries.
func (h *Handle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if h.tx != nil {
		return h.tx.QueryContext(ctx, query, args...)
	}
	return h.db.QueryContext(ctx, query, args...)
}

// QueryRowContext mirrors ExecContext for single-row queries.
func (h *Handle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if h.tx != nil {
		return h.tx.QueryRowContext(ctx, query, args...)
	}
	return h.db.QueryRowContext(ctx, query, args...)
}

// InTx runs fn inside a transaction: commit on clean return, rollback on
// error or panic. When the handle already carries an open transaction the
// inner scope becomes a savepoint, so a failing inner fn rolls back only its
// own writes.
func (h *Handle) InTx(ctx context.Context, fn func(h *Handle) error) error {
	if h.tx != nil {
		return h.inSavepoint(ctx, fn)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	inner := &Handle{db: h.db, tx: tx, depth: 1}
	if err := runGuarded(inner, fn); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (h *Handle) inSavepoint(ctx context.Context, fn func(h *Handle) error) error {
	name := fmt.Sprintf("sp_%d", h.depth)
	if _, err := h.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}

	inner := &Handle{db: h.db, tx: h.tx, depth: h.depth + 1}
	if err := runGuarded(inner, fn); err != nil {
		if _, rbErr := h.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("failed to rollback savepoint after %v: %w", err, rbErr)
		}
		return err
	}

	if _, err := h.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// runGuarded converts a panic inside fn into an error so the transaction is
// still rolled back before the panic propagates as a failure.
func runGuarded(h *Handle, fn func(h *Handle) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in transaction: %v", r)
		}
	}()
	return fn(h)
}
