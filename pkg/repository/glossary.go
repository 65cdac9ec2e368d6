package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
)

// Provisional and refined glossary tables share one shape; the table name is
// the only difference.
const (
	TableProvisional = "glossary_provisional"
	TableRefined     = "glossary_refined"
)

// InsertGlossaryEntries batch-inserts entries into the named glossary table.
func InsertGlossaryEntries(ctx context.Context, h *database.Handle, table string, entries []models.GlossaryEntry) error {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		aliases, err := marshalStrings(e.Aliases)
		if err != nil {
			return fmt.Errorf("entry %q: %w", e.Name, err)
		}
		rows[i] = []any{e.Name, e.Definition, e.Confidence, aliases}
	}
	return batchInsert(ctx, h, table, []string{"name", "definition", "confidence", "aliases"}, rows)
}

// ListGlossaryEntries returns the named glossary table in insertion order.
func ListGlossaryEntries(ctx context.Context, h *database.Handle, table string) ([]models.GlossaryEntry, error) {
	rows, err := h.QueryContext(ctx, `SELECT id, name, definition, confidence, aliases FROM `+table+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	defer rows.Close()

	var entries []models.GlossaryEntry
	for rows.Next() {
		var e models.GlossaryEntry
		var aliases string
		if err := rows.Scan(&e.ID, &e.Name, &e.Definition, &e.Confidence, &aliases); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		if err := unmarshalStrings(aliases, &e.Aliases); err != nil {
			return nil, fmt.Errorf("entry %q: %w", e.Name, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearGlossaryEntries empties the named glossary table.
func ClearGlossaryEntries(ctx context.Context, h *database.Handle, table string) error {
	if _, err := h.ExecContext(ctx, `DELETE FROM `+table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

// InsertIssues batch-inserts reviewer findings.
func InsertIssues(ctx context.Context, h *database.Handle, issues []models.Issue) error {
	rows := make([][]any, len(issues))
	for i, is := range issues {
		rows[i] = []any{is.TermName, is.IssueType, is.Description, is.Severity}
	}
	return batchInsert(ctx, h, "glossary_issues", []string{"term_name", "issue_type", "description", "severity"}, rows)
}

// ListIssues returns reviewer findings in insertion order.
func ListIssues(ctx context.Context, h *database.Handle) ([]models.Issue, error) {
	rows, err := h.QueryContext(ctx, `SELECT id, term_name, issue_type, description, severity FROM glossary_issues ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []models.Issue
	for rows.Next() {
		var is models.Issue
		if err := rows.Scan(&is.ID, &is.TermName, &is.IssueType, &is.Description, &is.Severity); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, is)
	}
	return issues, rows.Err()
}

// ClearIssues empties the issues table.
func ClearIssues(ctx context.Context, h *database.Handle) error {
	if _, err := h.ExecContext(ctx, `DELETE FROM glossary_issues`); err != nil {
		return fmt.Errorf("failed to clear issues: %w", err)
	}
	return nil
}

func marshalStrings(s []string) (string, error) {
	if s == nil {
		s = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string, dst *[]string) error {
	if raw == "" {
		*dst = []string{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("failed to unmarshal string list: %w", err)
	}
	return nil
}
