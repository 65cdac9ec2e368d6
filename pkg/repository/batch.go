package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/glossforge/glossforge/pkg/database"
)

// sqlite bounds the number of bound variables per statement; chunk batches
// well below the default limit.
const maxBatchVars = 800

// batchInsert executes a multi-row INSERT for all batch writes in this
// package. Callers are expected to hold a transaction so a batch of N rows
// costs one commit, not N.
func batchInsert(ctx context.Context, h *database.Handle, table string, columns []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	rowsPerStmt := maxBatchVars / len(columns)
	if rowsPerStmt < 1 {
		rowsPerStmt = 1
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))

	for start := 0; start < len(rows); start += rowsPerStmt {
		end := start + rowsPerStmt
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		values := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				return fmt.Errorf("batch insert into %s: row has %d values, want %d", table, len(row), len(columns))
			}
			values[i] = placeholder
			args = append(args, row...)
		}

		if _, err := h.ExecContext(ctx, prefix+strings.Join(values, ","), args...); err != nil {
			return fmt.Errorf("batch insert into %s: %w", table, err)
		}
	}
	return nil
}
