package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
)

// InsertDocuments batch-inserts validated documents and returns them with
// assigned ids. Validation happens at the API boundary; this function only
// persists.
func InsertDocuments(ctx context.Context, h *database.Handle, docs []models.Document) ([]models.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	created, err := database.FormatTime(database.NowUTC())
	if err != nil {
		return nil, err
	}

	// Inserted one by one (not via batchInsert) because each row's assigned
	// id is returned to the uploader.
	out := make([]models.Document, 0, len(docs))
	for _, d := range docs {
		d.ContentHash = models.HashContent(d.Content)
		res, err := h.ExecContext(ctx,
			`INSERT INTO documents (file_name, content, content_hash, created_at) VALUES (?, ?, ?, ?)`,
			d.FileName, d.Content, d.ContentHash, created,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: document %q", ErrAlreadyExists, d.FileName)
			}
			return nil, fmt.Errorf("failed to insert document %q: %w", d.FileName, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("failed to read document id: %w", err)
		}
		d.ID = id
		out = append(out, d)
	}
	return out, nil
}

// ListDocuments returns all documents ordered by file name.
func ListDocuments(ctx context.Context, h *database.Handle) ([]models.Document, error) {
	return queryDocuments(ctx, h, `SELECT id, file_name, content, content_hash FROM documents ORDER BY file_name`)
}

// GetDocumentsByIDs returns the documents matching ids, preserving no
// particular order. Unknown ids are silently skipped.
func GetDocumentsByIDs(ctx context.Context, h *database.Handle, ids []int64) ([]models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return queryDocuments(ctx, h,
		`SELECT id, file_name, content, content_hash FROM documents WHERE id IN (`+placeholders+`) ORDER BY file_name`,
		args...)
}

// GetDocument returns a single document or ErrNotFound.
func GetDocument(ctx context.Context, h *database.Handle, id int64) (*models.Document, error) {
	var d models.Document
	err := h.QueryRowContext(ctx,
		`SELECT id, file_name, content, content_hash FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.FileName, &d.Content, &d.ContentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

// ReplaceDocumentContent overwrites a document's content and re-hashes it.
func ReplaceDocumentContent(ctx context.Context, h *database.Handle, id int64, content string) error {
	res, err := h.ExecContext(ctx,
		`UPDATE documents SET content = ?, content_hash = ? WHERE id = ?`,
		content, models.HashContent(content), id,
	)
	if err != nil {
		return fmt.Errorf("failed to replace document content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDocument removes a document.
func DeleteDocument(ctx context.Context, h *database.Handle, id int64) error {
	res, err := h.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountDocuments returns the number of stored documents.
func CountDocuments(ctx context.Context, h *database.Handle) (int, error) {
	var n int
	if err := h.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func queryDocuments(ctx context.Context, h *database.Handle, query string, args ...any) ([]models.Document, error) {
	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.FileName, &d.Content, &d.ContentHash); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}
