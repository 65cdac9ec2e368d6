package glossary

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
)

// fakeLLM scripts GenerateStructured by prompt inspection. handler receives
// the prompt and fills v via JSON.
type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	handler func(prompt string) (any, error)
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, opts llm.CallOptions) (string, error) {
	return "", errors.New("not scripted")
}

func (f *fakeLLM) GenerateStructured(ctx context.Context, prompt string, schema *llm.Schema, v any, opts llm.CallOptions) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if opts.Cancel.IsSet() {
		return cancellation.ErrCancelled
	}
	resp, err := f.handler(prompt)
	if err != nil {
		return err
	}
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (f *fakeLLM) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeLLM) Close() error                         { return nil }

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// promptTerm extracts the task term after the delimiter.
func promptTerm(prompt string) string {
	_, after, found := strings.Cut(prompt, "## 今回の用語:\n")
	if !found {
		return ""
	}
	term, _, _ := strings.Cut(after, "\n")
	return strings.TrimSpace(term)
}

// listSegmenter replays a fixed candidate list per document content.
type listSegmenter struct {
	byContent map[string][]string
}

func (s *listSegmenter) candidates(text string) []string {
	return s.byContent[text]
}

func TestCollectCandidatesFiltersAndDeduplicates(t *testing.T) {
	seg := &listSegmenter{byContent: map[string][]string{
		"doc1": {"Alice", "Acme", "Alice"},
		"doc2": {"Acme", "Noise"},
	}}
	e := newTermExtractorWithSegmenter(&fakeLLM{}, seg, nil)

	docs := []models.Document{{Content: "doc1"}, {Content: "doc2"}}
	unique, raw := e.CollectCandidates(docs,
		[]string{"Ghost"},
		map[string]bool{"Noise": true},
	)

	// 5 document candidates plus 1 required, minus the excluded one.
	assert.Equal(t, 6, raw)
	assert.Equal(t, []string{"Alice", "Acme", "Ghost"}, unique)
}

func TestCollectCandidatesRequiredOverridesExcluded(t *testing.T) {
	seg := &listSegmenter{byContent: map[string][]string{"doc": {"Ghost"}}}
	e := newTermExtractorWithSegmenter(&fakeLLM{}, seg, nil)

	unique, _ := e.CollectCandidates(
		[]models.Document{{Content: "doc"}},
		[]string{"Ghost"},
		map[string]bool{"Ghost": true},
	)
	assert.Equal(t, []string{"Ghost"}, unique)
}

func TestCollectCandidatesNormalizesText(t *testing.T) {
	seg := &listSegmenter{byContent: map[string][]string{"doc": {" Alice ", "Alice"}}}
	e := newTermExtractorWithSegmenter(&fakeLLM{}, seg, nil)

	unique, _ := e.CollectCandidates([]models.Document{{Content: "doc"}}, nil, nil)
	assert.Equal(t, []string{"Alice"}, unique)
}

func TestClassifyAssignsCategories(t *testing.T) {
	client := &fakeLLM{handler: func(prompt string) (any, error) {
		switch promptTerm(prompt) {
		case "Alice":
			return map[string]string{"category": "person_name"}, nil
		case "Acme":
			return map[string]string{"category": "organization"}, nil
		}
		return map[string]string{"category": "common_noun"}, nil
	}}
	e := newTermExtractorWithSegmenter(client, &listSegmenter{}, nil)

	terms, err := e.Classify(context.Background(), []string{"Alice", "Acme"}, cancellation.NewEvent(), nil)
	require.NoError(t, err)
	assert.Equal(t, []Term{
		Classified("Alice", models.CategoryPersonName),
		Classified("Acme", models.CategoryOrganization),
	}, terms)
	assert.Equal(t, 2, client.callCount())
}

func TestClassifyKeepsTermOnPerItemFailure(t *testing.T) {
	client := &fakeLLM{handler: func(prompt string) (any, error) {
		if promptTerm(prompt) == "Broken" {
			return nil, errors.New("upstream exploded")
		}
		return map[string]string{"category": "technical"}, nil
	}}
	e := newTermExtractorWithSegmenter(client, &listSegmenter{}, nil)

	terms, err := e.Classify(context.Background(), []string{"Broken", "Works"}, cancellation.NewEvent(), nil)
	require.NoError(t, err)
	require.Len(t, terms, 2)
	assert.False(t, terms[0].IsClassified())
	assert.True(t, terms[1].IsClassified())
}

func TestClassifyStopsOnCancel(t *testing.T) {
	ev := cancellation.NewEvent()
	client := &fakeLLM{handler: func(prompt string) (any, error) {
		// Latch after the first call; the loop must stop before the second.
		ev.Set()
		return map[string]string{"category": "technical"}, nil
	}}
	e := newTermExtractorWithSegmenter(client, &listSegmenter{}, nil)

	_, err := e.Classify(context.Background(), []string{"a", "b", "c"}, ev, nil)
	assert.ErrorIs(t, err, cancellation.ErrCancelled)
	assert.Equal(t, 1, client.callCount())
}

func TestClassifyReportsProgress(t *testing.T) {
	client := &fakeLLM{handler: func(prompt string) (any, error) {
		return map[string]string{"category": "technical"}, nil
	}}
	e := newTermExtractorWithSegmenter(client, &listSegmenter{}, nil)

	var seen []string
	progress := func(current, total int, term string) {
		assert.Equal(t, 2, total)
		seen = append(seen, term)
	}
	_, err := e.Classify(context.Background(), []string{"a", "b"}, cancellation.NewEvent(), progress)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}
