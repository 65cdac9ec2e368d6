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

const projectColumns = "id, name, doc_root, llm_provider, llm_model, llm_base_url, created_at"

// CreateProject registers a project in the catalog. The per-project database
// file is created lazily on first write, not here.
func CreateProject(ctx context.Context, h *database.Handle, p models.Project) (*models.Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, NewValidationError("name", "must not be empty")
	}
	if strings.ContainsAny(p.Name, `/\`) {
		return nil, NewValidationError("name", "must not contain path separators")
	}

	p.CreatedAt = database.NowUTC()
	created, err := database.FormatTime(p.CreatedAt)
	if err != nil {
		return nil, err
	}

	res, err := h.ExecContext(ctx,
		`INSERT INTO projects (name, doc_root, llm_provider, llm_model, llm_base_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.DocRoot, p.LLMProvider, p.LLMModel, p.LLMBaseURL, created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: project %q", ErrAlreadyExists, p.Name)
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read project id: %w", err)
	}
	return &p, nil
}

// GetProject returns a project by id or ErrNotFound.
func GetProject(ctx context.Context, h *database.Handle, id int64) (*models.Project, error) {
	row := h.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectByName returns a project by unique name or ErrNotFound.
func GetProjectByName(ctx context.Context, h *database.Handle, name string) (*models.Project, error) {
	row := h.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE name = ?`, name)
	return scanProject(row)
}

// ListProjects returns all projects ordered by name.
func ListProjects(ctx context.Context, h *database.Handle) ([]models.Project, error) {
	rows, err := h.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProjectRow(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// UpdateProjectSettings updates the mutable project fields.
func UpdateProjectSettings(ctx context.Context, h *database.Handle, id int64, docRoot, provider, model, baseURL string) error {
	res, err := h.ExecContext(ctx,
		`UPDATE projects SET doc_root = ?, llm_provider = ?, llm_model = ?, llm_base_url = ? WHERE id = ?`,
		docRoot, provider, model, baseURL, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a catalog entry. The project database file is the
// caller's responsibility.
func DeleteProject(ctx context.Context, h *database.Handle, id int64) error {
	return deleteByID(ctx, h, "projects", id)
}

func scanProject(row *sql.Row) (*models.Project, error) {
	p, err := scanProjectRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanProjectRow(row rowScanner) (*models.Project, error) {
	var p models.Project
	var created string
	if err := row.Scan(&p.ID, &p.Name, &p.DocRoot, &p.LLMProvider, &p.LLMModel, &p.LLMBaseURL, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	var err error
	if p.CreatedAt, err = database.ParseTime(created); err != nil {
		return nil, err
	}
	return &p, nil
}
