package glossary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
)

// segmenter yields candidate surface forms from raw document text. The
// production implementation is a morphological analyzer; tests script it.
type segmenter interface {
	candidates(text string) []string
}

// TermExtractor surfaces candidate terms by morphological analysis and
// classifies them with the LLM.
type TermExtractor struct {
	client llm.Client
	seg    segmenter
	logger *slog.Logger
}

// NewTermExtractor builds an extractor backed by the bundled IPA dictionary.
func NewTermExtractor(client llm.Client, logger *slog.Logger) (*TermExtractor, error) {
	tok, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tokenizer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TermExtractor{
		client: client,
		seg:    &kagomeSegmenter{tok: tok},
		logger: logger.With("component", "extractor"),
	}, nil
}

func newTermExtractorWithSegmenter(client llm.Client, seg segmenter, logger *slog.Logger) *TermExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TermExtractor{client: client, seg: seg, logger: logger.With("component", "extractor")}
}

// CollectCandidates runs morphological analysis over every document, merges
// in required terms, drops excluded terms that are not required, and
// deduplicates. It returns the unique candidate list in first-seen order and
// the raw candidate count before deduplication.
func (e *TermExtractor) CollectCandidates(docs []models.Document, required []string, excluded map[string]bool) ([]string, int) {
	requiredSet := make(map[string]bool, len(required))
	for _, r := range required {
		requiredSet[models.NormalizeTermText(r)] = true
	}

	raw := 0
	seen := make(map[string]bool)
	var unique []string
	add := func(text string) {
		text = models.NormalizeTermText(text)
		if text == "" {
			return
		}
		raw++
		if excluded[text] && !requiredSet[text] {
			return
		}
		if seen[text] {
			return
		}
		seen[text] = true
		unique = append(unique, text)
	}

	for _, doc := range docs {
		for _, c := range e.seg.candidates(doc.Content) {
			add(c)
		}
	}
	// Required terms always enter the candidate set, even when the corpus
	// never mentions them.
	for _, r := range required {
		add(r)
	}
	return unique, raw
}

// Classify assigns one of the seven categories to each candidate. A single
// term's LLM failure is logged and the term is kept unclassified rather than
// failing the run. Cancellation is checked before each call.
func (e *TermExtractor) Classify(ctx context.Context, terms []string, cancel *cancellation.Event, progress Progress) ([]Term, error) {
	out := make([]Term, 0, len(terms))
	total := len(terms)
	for i, text := range terms {
		if cancel.IsSet() {
			return nil, cancellation.ErrCancelled
		}

		var resp struct {
			Category string `json:"category"`
		}
		err := e.client.GenerateStructured(ctx, classifyPrompt(text), classifySchema, &resp, llm.CallOptions{Cancel: cancel})
		switch {
		case err == nil && models.TermCategory(resp.Category).Valid():
			out = append(out, Classified(text, models.TermCategory(resp.Category)))
		case err == nil:
			e.logger.Warn("LLM returned unknown category, keeping term unclassified",
				"term", text, "category", resp.Category)
			out = append(out, Unclassified(text))
		case cancellation.IsCancelled(err):
			return nil, cancellation.ErrCancelled
		default:
			e.logger.Warn("term classification failed, keeping term unclassified",
				"term", text, "error", err)
			out = append(out, Unclassified(text))
		}

		progress.report(i+1, total, text)
	}
	return out, nil
}

// kagomeSegmenter merges consecutive noun tokens and keeps runs that contain
// at least one proper noun.
type kagomeSegmenter struct {
	tok *tokenizer.Tokenizer
}

func (s *kagomeSegmenter) candidates(text string) []string {
	var out []string
	var run strings.Builder
	runHasProper := false

	flush := func() {
		if runHasProper && run.Len() > 0 {
			out = append(out, run.String())
		}
		run.Reset()
		runHasProper = false
	}

	for _, token := range s.tok.Tokenize(text) {
		features := token.Features()
		if len(features) < 2 || features[0] != "名詞" || !nounSubOK(features[1]) || isPunctuation(token.Surface) {
			flush()
			continue
		}
		run.WriteString(token.Surface)
		if features[1] == "固有名詞" {
			runHasProper = true
		}
	}
	flush()
	return out
}

// nounSubOK filters noun sub-categories that never start or extend a term:
// dependent nouns, pronouns, and counters.
func nounSubOK(sub string) bool {
	switch sub {
	case "非自立", "代名詞", "数", "接尾":
		return false
	}
	return true
}

func isPunctuation(surface string) bool {
	for _, r := range surface {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
