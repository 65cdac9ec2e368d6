package repository

import (
	"context"
	"fmt"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
)

// InsertExtractedTerms batch-inserts classified terms.
func InsertExtractedTerms(ctx context.Context, h *database.Handle, terms []models.ExtractedTerm) error {
	rows := make([][]any, len(terms))
	for i, t := range terms {
		var category any
		if t.Category != "" {
			category = string(t.Category)
		}
		rows[i] = []any{t.TermText, category}
	}
	return batchInsert(ctx, h, "terms_extracted", []string{"term_text", "category"}, rows)
}

// ListExtractedTerms returns extraction results in insertion order.
func ListExtractedTerms(ctx context.Context, h *database.Handle) ([]models.ExtractedTerm, error) {
	rows, err := h.QueryContext(ctx, `SELECT id, term_text, COALESCE(category, '') FROM terms_extracted ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list extracted terms: %w", err)
	}
	defer rows.Close()

	var terms []models.ExtractedTerm
	for rows.Next() {
		var t models.ExtractedTerm
		var category string
		if err := rows.Scan(&t.ID, &t.TermText, &category); err != nil {
			return nil, fmt.Errorf("failed to scan extracted term: %w", err)
		}
		t.Category = models.TermCategory(category)
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// ClearExtractedTerms empties the extraction results table.
func ClearExtractedTerms(ctx context.Context, h *database.Handle) error {
	_, err := h.ExecContext(ctx, `DELETE FROM terms_extracted`)
	if err != nil {
		return fmt.Errorf("failed to clear extracted terms: %w", err)
	}
	return nil
}

// AddExcludedTerm stores an NFC-trimmed excluded term.
func AddExcludedTerm(ctx context.Context, h *database.Handle, text string, source models.TermSource) (*models.ExcludedTerm, error) {
	return addTermList(ctx, h, "terms_excluded", text, source)
}

// AddRequiredTerm stores an NFC-trimmed required term. Source is always
// manual for required terms.
func AddRequiredTerm(ctx context.Context, h *database.Handle, text string) (*models.RequiredTerm, error) {
	t, err := addTermList(ctx, h, "terms_required", text, models.TermSourceManual)
	if err != nil {
		return nil, err
	}
	return &models.RequiredTerm{ID: t.ID, TermText: t.TermText, Source: t.Source, CreatedAt: t.CreatedAt}, nil
}

func addTermList(ctx context.Context, h *database.Handle, table, text string, source models.TermSource) (*models.ExcludedTerm, error) {
	text = models.NormalizeTermText(text)
	if text == "" {
		return nil, NewValidationError("term_text", "must not be empty")
	}

	now := database.NowUTC()
	created, err := database.FormatTime(now)
	if err != nil {
		return nil, err
	}

	res, err := h.ExecContext(ctx,
		`INSERT INTO `+table+` (term_text, source, created_at) VALUES (?, ?, ?)`,
		text, string(source), created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: term %q", ErrAlreadyExists, text)
		}
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read term id: %w", err)
	}
	return &models.ExcludedTerm{ID: id, TermText: text, Source: source, CreatedAt: now}, nil
}

// ListExcludedTerms returns the excluded list ordered by text.
func ListExcludedTerms(ctx context.Context, h *database.Handle) ([]models.ExcludedTerm, error) {
	rows, err := h.QueryContext(ctx, `SELECT id, term_text, source, created_at FROM terms_excluded ORDER BY term_text`)
	if err != nil {
		return nil, fmt.Errorf("failed to list excluded terms: %w", err)
	}
	defer rows.Close()

	var terms []models.ExcludedTerm
	for rows.Next() {
		var t models.ExcludedTerm
		var source, created string
		if err := rows.Scan(&t.ID, &t.TermText, &source, &created); err != nil {
			return nil, fmt.Errorf("failed to scan excluded term: %w", err)
		}
		t.Source = models.TermSource(source)
		if t.CreatedAt, err = database.ParseTime(created); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// ListRequiredTerms returns the required list ordered by text.
func ListRequiredTerms(ctx context.Context, h *database.Handle) ([]models.RequiredTerm, error) {
	rows, err := h.QueryContext(ctx, `SELECT id, term_text, source, created_at FROM terms_required ORDER BY term_text`)
	if err != nil {
		return nil, fmt.Errorf("failed to list required terms: %w", err)
	}
	defer rows.Close()

	var terms []models.RequiredTerm
	for rows.Next() {
		var t models.RequiredTerm
		var source, created string
		if err := rows.Scan(&t.ID, &t.TermText, &source, &created); err != nil {
			return nil, fmt.Errorf("failed to scan required term: %w", err)
		}
		t.Source = models.TermSource(source)
		if t.CreatedAt, err = database.ParseTime(created); err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// DeleteExcludedTerm removes an excluded term by id.
func DeleteExcludedTerm(ctx context.Context, h *database.Handle, id int64) error {
	return deleteByID(ctx, h, "terms_excluded", id)
}

// DeleteRequiredTerm removes a required term by id.
func DeleteRequiredTerm(ctx context.Context, h *database.Handle, id int64) error {
	return deleteByID(ctx, h, "terms_required", id)
}

func deleteByID(ctx context.Context, h *database.Handle, table string, id int64) error {
	res, err := h.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// VisibleTerms is the term enumeration shown to the UI: the union of
// extracted terms and required terms. A required term always appears, even
// when excluded. Required-only rows are synthetic and carry negative ids.
func VisibleTerms(ctx context.Context, h *database.Handle) ([]models.ExtractedTerm, error) {
	extracted, err := ListExtractedTerms(ctx, h)
	if err != nil {
		return nil, err
	}
	required, err := ListRequiredTerms(ctx, h)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(extracted))
	for _, t := range extracted {
		seen[t.TermText] = true
	}

	out := extracted
	for _, r := range required {
		if seen[r.TermText] {
			continue
		}
		out = append(out, models.ExtractedTerm{ID: -r.ID, TermText: r.TermText})
	}
	return out, nil
}
