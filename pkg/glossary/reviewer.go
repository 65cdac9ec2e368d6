package glossary

import (
	"context"
	"log/slog"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
)

// reviewChunkSize bounds how many entries go into one review prompt.
const reviewChunkSize = 30

// Reviewer inspects provisional entries for defects.
type Reviewer struct {
	client llm.Client
	logger *slog.Logger
}

// NewReviewer builds a reviewer over the given client.
func NewReviewer(client llm.Client, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{client: client, logger: logger.With("component", "reviewer")}
}

// Review returns reviewer findings for the entries, chunked to bound prompt
// size. Returns ErrCancelled when cancelled; a chunk's failure is logged and
// that chunk is skipped.
func (r *Reviewer) Review(ctx context.Context, entries []models.GlossaryEntry, cancel *cancellation.Event) ([]models.Issue, error) {
	issues := []models.Issue{}
	for start := 0; start < len(entries); start += reviewChunkSize {
		if cancel.IsSet() {
			return nil, cancellation.ErrCancelled
		}

		end := start + reviewChunkSize
		if end > len(entries) {
			end = len(entries)
		}
		chunk := entries[start:end]

		var resp struct {
			Issues []struct {
				TermName    string `json:"term_name"`
				IssueType   string `json:"issue_type"`
				Description string `json:"description"`
				Severity    string `json:"severity"`
			} `json:"issues"`
		}
		err := r.client.GenerateStructured(ctx, reviewPrompt(chunk), reviewSchema, &resp, llm.CallOptions{Cancel: cancel})
		if err != nil {
			if cancellation.IsCancelled(err) {
				return nil, cancellation.ErrCancelled
			}
			r.logger.Warn("review call failed, skipping chunk",
				"from", start, "to", end, "error", err)
			continue
		}

		for _, is := range resp.Issues {
			severity := is.Severity
			if severity == "" {
				severity = "minor"
			}
			issues = append(issues, models.Issue{
				TermName:    is.TermName,
				IssueType:   is.IssueType,
				Description: is.Description,
				Severity:    severity,
			})
		}
	}
	return issues, nil
}
