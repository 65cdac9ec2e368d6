// Package glossary holds the domain engines driven by the pipeline:
// term extraction and classification, definition generation, review, and
// refinement. Engines consume the LLM client and read-only persisted state;
// they accept a cancellation event and optional progress callbacks.
package glossary

import "github.com/glossforge/glossforge/pkg/models"

// Term is the tagged variant flowing between stages: a bare candidate before
// classification, a (text, category) pair after. Stages normalize to the
// classified form at their boundary.
type Term struct {
	Text     string
	Category models.TermCategory
}

// Unclassified wraps a candidate surface form.
func Unclassified(text string) Term {
	return Term{Text: text}
}

// Classified pairs a surface form with its category.
func Classified(text string, category models.TermCategory) Term {
	return Term{Text: text, Category: category}
}

// IsClassified reports whether the term carries a category.
func (t Term) IsClassified() bool {
	return t.Category != ""
}

// Progress reports per-item advancement inside a stage. current counts
// processed items, total is the stage workload, term names the item in
// flight.
type Progress func(current, total int, term string)

func (p Progress) report(current, total int, term string) {
	if p != nil {
		p(current, total, term)
	}
}
