package glossary

import (
	"context"
	"log/slog"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
)

// Refiner rewrites provisional entries to resolve reviewer findings.
type Refiner struct {
	client llm.Client
	logger *slog.Logger
}

// NewRefiner builds a refiner over the given client.
func NewRefiner(client llm.Client, logger *slog.Logger) *Refiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{client: client, logger: logger.With("component", "refiner")}
}

// Refine produces the final entry set. Entries without findings pass through
// unchanged with no LLM call; entries with findings are rewritten, keeping
// the original on a per-item failure.
func (r *Refiner) Refine(ctx context.Context, entries []models.GlossaryEntry, issues []models.Issue, docs []models.Document, cancel *cancellation.Event, progress Progress) ([]models.GlossaryEntry, error) {
	byName := make(map[string][]models.Issue, len(issues))
	for _, is := range issues {
		byName[is.TermName] = append(byName[is.TermName], is)
	}

	out := make([]models.GlossaryEntry, 0, len(entries))
	total := len(entries)
	for i, entry := range entries {
		found := byName[entry.Name]
		if len(found) == 0 {
			out = append(out, entry)
			progress.report(i+1, total, entry.Name)
			continue
		}

		if cancel.IsSet() {
			return nil, cancellation.ErrCancelled
		}

		var resp entryResponse
		err := r.client.GenerateStructured(ctx, refinePrompt(entry, found, contextSnippets(docs, entry.Name)), entrySchema, &resp, llm.CallOptions{Cancel: cancel})
		switch {
		case err == nil:
			out = append(out, resp.toEntry(entry.Name))
		case cancellation.IsCancelled(err):
			return nil, cancellation.ErrCancelled
		default:
			r.logger.Warn("refinement failed, keeping provisional entry",
				"term", entry.Name, "error", err)
			out = append(out, entry)
		}
		progress.report(i+1, total, entry.Name)
	}
	return out, nil
}
