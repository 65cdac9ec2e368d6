package glossary

import (
	"strings"

	"github.com/glossforge/glossforge/pkg/models"
)

const (
	snippetWindow = 200 // runes on each side of an occurrence
	maxSnippets   = 3
)

// contextSnippets collects up to maxSnippets excerpts surrounding occurrences
// of term across the corpus, one per document at most, in document order.
func contextSnippets(docs []models.Document, term string) []string {
	if term == "" {
		return nil
	}
	var out []string
	for _, doc := range docs {
		if len(out) == maxSnippets {
			break
		}
		idx := strings.Index(doc.Content, term)
		if idx < 0 {
			continue
		}
		out = append(out, excerpt(doc.Content, idx, len(term)))
	}
	return out
}

// excerpt returns the text around [idx, idx+length), widened by snippetWindow
// runes on each side and aligned to rune boundaries.
func excerpt(content string, idx, length int) string {
	runes := []rune(content)
	runeIdx := len([]rune(content[:idx]))
	runeEnd := runeIdx + len([]rune(content[idx:idx+length]))

	start := runeIdx - snippetWindow
	if start < 0 {
		start = 0
	}
	end := runeEnd + snippetWindow
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end])
}
