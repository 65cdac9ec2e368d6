package glossary

import (
	"context"
	"log/slog"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
)

// Generator produces provisional glossary entries, one LLM call per accepted
// term.
type Generator struct {
	client llm.Client
	logger *slog.Logger
}

// NewGenerator builds a generator over the given client.
func NewGenerator(client llm.Client, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{client: client, logger: logger.With("component", "generator")}
}

// Generate emits one entry per term. Common nouns are skipped here, not at
// extraction, so the term list still shows them. A single term's failure is
// logged and skipped; progress advances regardless.
func (g *Generator) Generate(ctx context.Context, terms []Term, docs []models.Document, cancel *cancellation.Event, progress Progress) ([]models.GlossaryEntry, error) {
	var entries []models.GlossaryEntry
	total := len(terms)
	for i, term := range terms {
		if cancel.IsSet() {
			return nil, cancellation.ErrCancelled
		}

		func() {
			defer progress.report(i+1, total, term.Text)

			if term.Category == models.CategoryCommonNoun {
				return
			}

			var resp entryResponse
			err := g.client.GenerateStructured(ctx, generatePrompt(term, contextSnippets(docs, term.Text)), entrySchema, &resp, llm.CallOptions{Cancel: cancel})
			if err != nil {
				if cancellation.IsCancelled(err) {
					// Re-checked at the top of the next iteration.
					return
				}
				g.logger.Warn("definition generation failed, skipping term",
					"term", term.Text, "error", err)
				return
			}
			entries = append(entries, resp.toEntry(term.Text))
		}()

		if cancel.IsSet() {
			return nil, cancellation.ErrCancelled
		}
	}
	return entries, nil
}

// entryResponse is the wire shape shared by generation and refinement.
type entryResponse struct {
	Name       string   `json:"name"`
	Definition string   `json:"definition"`
	Confidence float64  `json:"confidence"`
	Aliases    []string `json:"aliases"`
}

// toEntry converts a response to an entry, falling back to the source term
// when the model omits or rewrites the name.
func (r entryResponse) toEntry(term string) models.GlossaryEntry {
	name := r.Name
	if name == "" {
		name = term
	}
	aliases := r.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	return models.GlossaryEntry{
		Name:       name,
		Definition: r.Definition,
		Confidence: r.Confidence,
		Aliases:    aliases,
	}
}
