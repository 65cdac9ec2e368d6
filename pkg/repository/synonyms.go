package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/models"
)

// CreateSynonymGroup stores a synonym group. The primary term must be one of
// the members; a missing primary is added rather than rejected.
func CreateSynonymGroup(ctx context.Context, h *database.Handle, group models.SynonymGroup) (*models.SynonymGroup, error) {
	group.PrimaryTermText = models.NormalizeTermText(group.PrimaryTermText)
	if group.PrimaryTermText == "" {
		return nil, NewValidationError("primary_term_text", "must not be empty")
	}
	normalized := make([]string, 0, len(group.Members))
	for _, m := range group.Members {
		if m = models.NormalizeTermText(m); m != "" {
			normalized = append(normalized, m)
		}
	}
	group.Members = normalized
	if !group.ContainsPrimary() {
		group.Members = append(group.Members, group.PrimaryTermText)
	}

	members, err := marshalStrings(group.Members)
	if err != nil {
		return nil, err
	}
	res, err := h.ExecContext(ctx,
		`INSERT INTO synonym_groups (primary_term_text, members) VALUES (?, ?)`,
		group.PrimaryTermText, members,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synonym group: %w", err)
	}
	if group.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read synonym group id: %w", err)
	}
	return &group, nil
}

// ListSynonymGroups returns all groups ordered by primary term.
func ListSynonymGroups(ctx context.Context, h *database.Handle) ([]models.SynonymGroup, error) {
	rows, err := h.QueryContext(ctx, `SELECT id, primary_term_text, members FROM synonym_groups ORDER BY primary_term_text`)
	if err != nil {
		return nil, fmt.Errorf("failed to list synonym groups: %w", err)
	}
	defer rows.Close()

	var groups []models.SynonymGroup
	for rows.Next() {
		var g models.SynonymGroup
		var members string
		if err := rows.Scan(&g.ID, &g.PrimaryTermText, &members); err != nil {
			return nil, fmt.Errorf("failed to scan synonym group: %w", err)
		}
		if err := unmarshalStrings(members, &g.Members); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// GetSynonymGroup returns a group by id or ErrNotFound.
func GetSynonymGroup(ctx context.Context, h *database.Handle, id int64) (*models.SynonymGroup, error) {
	var g models.SynonymGroup
	var members string
	err := h.QueryRowContext(ctx,
		`SELECT id, primary_term_text, members FROM synonym_groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.PrimaryTermText, &members)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get synonym group: %w", err)
	}
	if err := unmarshalStrings(members, &g.Members); err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteSynonymGroup removes a group.
func DeleteSynonymGroup(ctx context.Context, h *database.Handle, id int64) error {
	return deleteByID(ctx, h, "synonym_groups", id)
}
