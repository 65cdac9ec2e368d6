package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/glossary"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/repository"
)

// Executor drives one run through the stage graph. It owns the LLM client
// for the run's duration; Close releases it.
type Executor struct {
	client    llm.Client
	extractor *glossary.TermExtractor
	generator *glossary.Generator
	reviewer  *glossary.Reviewer
	refiner   *glossary.Refiner
	logger    *slog.Logger
}

// NewExecutor builds an executor and its domain engines over client.
func NewExecutor(client llm.Client, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	extractor, err := glossary.NewTermExtractor(client, logger)
	if err != nil {
		return nil, err
	}
	return &Executor{
		client:    client,
		extractor: extractor,
		generator: glossary.NewGenerator(client, logger),
		reviewer:  glossary.NewReviewer(client, logger),
		refiner:   glossary.NewRefiner(client, logger),
		logger:    logger.With("component", "executor"),
	}, nil
}

// Close releases the executor's LLM client. Always called by the run
// manager, on every exit path.
func (e *Executor) Close() error {
	return e.client.Close()
}

// clearStep names one table-clear operation so the policy stays
// table-driven and testable.
type clearStep struct {
	table string
	fn    func(ctx context.Context, h *database.Handle) error
}

func clearIssues(ctx context.Context, h *database.Handle) error {
	return repository.ClearIssues(ctx, h)
}

func clearRefined(ctx context.Context, h *database.Handle) error {
	return repository.ClearGlossaryEntries(ctx, h, repository.TableRefined)
}

func clearProvisional(ctx context.Context, h *database.Handle) error {
	return repository.ClearGlossaryEntries(ctx, h, repository.TableProvisional)
}

func clearExtracted(ctx context.Context, h *database.Handle) error {
	return repository.ClearExtractedTerms(ctx, h)
}

// clearPolicy maps each scope to the downstream tables wiped before the run,
// in order.
var clearPolicy = map[models.Scope][]clearStep{
	models.ScopeFull: {
		{"glossary_issues", clearIssues},
		{repository.TableRefined, clearRefined},
		{repository.TableProvisional, clearProvisional},
		{"terms_extracted", clearExtracted},
	},
	models.ScopeExtract: {
		{"glossary_issues", clearIssues},
		{repository.TableRefined, clearRefined},
		{repository.TableProvisional, clearProvisional},
		{"terms_extracted", clearExtracted},
	},
	models.ScopeFromTerms: {
		{"glossary_issues", clearIssues},
		{repository.TableRefined, clearRefined},
		{repository.TableProvisional, clearProvisional},
	},
	models.ScopeProvisionalToRefined: {
		{"glossary_issues", clearIssues},
		{repository.TableRefined, clearRefined},
	},
}

// Execute runs the scope's stage subgraph. It returns ErrCancelled when the
// cancel event is observed, any other error for infrastructure failures, and
// nil on clean completion.
func (e *Executor) Execute(ctx context.Context, h *database.Handle, scope models.Scope, ec *ExecutionContext, documentIDs []int64) error {
	steps, ok := clearPolicy[scope]
	if !ok {
		e.logger.Error("unknown scope, nothing to execute", "scope", scope)
		ec.emit(e.logger, models.LogEvent{Level: "error", Message: "unknown scope " + string(scope)})
		return nil
	}

	// An incremental extract after upload appends; it never wipes prior
	// results.
	if len(documentIDs) == 0 {
		if err := e.clearTables(ctx, h, scope, steps, ec); err != nil {
			return err
		}
	}

	switch scope {
	case models.ScopeFull, models.ScopeExtract:
		return e.executeFull(ctx, h, scope, ec, documentIDs)
	case models.ScopeFromTerms:
		return e.executeFromTerms(ctx, h, ec)
	case models.ScopeProvisionalToRefined:
		return e.executeProvisionalToRefined(ctx, h, ec)
	}
	return nil
}

func (e *Executor) clearTables(ctx context.Context, h *database.Handle, scope models.Scope, steps []clearStep, ec *ExecutionContext) error {
	err := h.InTx(ctx, func(h *database.Handle) error {
		for _, step := range steps {
			if err := step.fn(ctx, h); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear tables for scope %s: %w", scope, err)
	}
	e.logger.Info("cleared downstream tables", "scope", scope, "tables", len(steps))
	ec.emit(e.logger, models.LogEvent{Level: "info", Message: "cleared previous results", Step: "prepare"})
	return nil
}

func (e *Executor) executeFull(ctx context.Context, h *database.Handle, scope models.Scope, ec *ExecutionContext, documentIDs []int64) error {
	docs, err := e.loadDocuments(ctx, h, ec, documentIDs)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		ec.emit(e.logger, models.LogEvent{Level: "warn", Message: "no documents to process", Step: "load"})
		return nil
	}

	terms, err := e.extractStage(ctx, h, ec, docs)
	if err != nil {
		return err
	}
	if scope == models.ScopeExtract {
		return nil
	}
	return e.generateStages(ctx, h, ec, terms, docs)
}

func (e *Executor) executeFromTerms(ctx context.Context, h *database.Handle, ec *ExecutionContext) error {
	if ec.Cancel.IsSet() {
		return cancellation.ErrCancelled
	}
	docs, err := repository.ListDocuments(ctx, h)
	if err != nil {
		return err
	}
	extracted, err := repository.ListExtractedTerms(ctx, h)
	if err != nil {
		return err
	}

	terms := make([]glossary.Term, 0, len(extracted))
	for _, t := range extracted {
		terms = append(terms, glossary.Term{Text: t.TermText, Category: t.Category})
	}
	return e.generateStages(ctx, h, ec, terms, docs)
}

func (e *Executor) executeProvisionalToRefined(ctx context.Context, h *database.Handle, ec *ExecutionContext) error {
	if ec.Cancel.IsSet() {
		return cancellation.ErrCancelled
	}
	docs, err := repository.ListDocuments(ctx, h)
	if err != nil {
		return err
	}
	entries, err := repository.ListGlossaryEntries(ctx, h, repository.TableProvisional)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		ec.emit(e.logger, models.LogEvent{Level: "warn", Message: "no provisional entries to refine", Step: "review"})
		return nil
	}

	issues, err := e.reviewStage(ctx, ec, entries)
	if err != nil {
		return err
	}
	if err := h.InTx(ctx, func(h *database.Handle) error {
		return repository.InsertIssues(ctx, h, issues)
	}); err != nil {
		return err
	}
	return e.refineStage(ctx, h, ec, entries, issues, docs)
}

// loadDocuments reads the corpus from the DB first. When the DB is empty and
// a doc root is configured (CLI mode), documents are imported from disk in a
// single transaction before the run continues.
func (e *Executor) loadDocuments(ctx context.Context, h *database.Handle, ec *ExecutionContext, documentIDs []int64) ([]models.Document, error) {
	if ec.Cancel.IsSet() {
		return nil, cancellation.ErrCancelled
	}
	ec.emit(e.logger, models.LogEvent{Level: "info", Message: "loading documents", Step: "load"})

	if len(documentIDs) > 0 {
		return repository.GetDocumentsByIDs(ctx, h, documentIDs)
	}

	docs, err := repository.ListDocuments(ctx, h)
	if err != nil {
		return nil, err
	}
	if len(docs) > 0 || ec.DocRoot == "" {
		return docs, nil
	}

	imported, err := readDocRoot(ec.DocRoot)
	if err != nil {
		return nil, err
	}
	if len(imported) == 0 {
		return nil, nil
	}
	err = h.InTx(ctx, func(h *database.Handle) error {
		docs, err = repository.InsertDocuments(ctx, h, imported)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("imported documents from doc root", "count", len(docs), "doc_root", ec.DocRoot)
	return docs, nil
}

// readDocRoot collects .txt/.md files under root whose relative names pass
// upload validation. Oversized or invalid files are skipped with a warning.
func readDocRoot(root string) ([]models.Document, error) {
	var docs []models.Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ext := strings.ToLower(filepath.Ext(rel))
		if ext != ".txt" && ext != ".md" {
			return nil
		}
		if err := models.ValidateFileName(rel); err != nil {
			slog.Warn("skipping file with invalid name", "file", rel, "error", err)
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if err := models.ValidateDocumentContent(string(content)); err != nil {
			slog.Warn("skipping oversized file", "file", rel, "error", err)
			return nil
		}
		docs = append(docs, models.Document{FileName: rel, Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan doc root: %w", err)
	}
	return docs, nil
}

// extractStage surfaces candidates, logs the deduplication reduction,
// classifies, and persists in one batch transaction. When the run is an
// incremental extract, terms already present are not re-inserted.
func (e *Executor) extractStage(ctx context.Context, h *database.Handle, ec *ExecutionContext, docs []models.Document) ([]glossary.Term, error) {
	if ec.Cancel.IsSet() {
		return nil, cancellation.ErrCancelled
	}
	ec.emit(e.logger, models.LogEvent{Level: "info", Message: "extracting terms", Step: "extract"})

	required, err := repository.ListRequiredTerms(ctx, h)
	if err != nil {
		return nil, err
	}
	excluded, err := repository.ListExcludedTerms(ctx, h)
	if err != nil {
		return nil, err
	}
	existing, err := repository.ListExtractedTerms(ctx, h)
	if err != nil {
		return nil, err
	}

	requiredTexts := make([]string, len(required))
	for i, r := range required {
		requiredTexts[i] = r.TermText
	}
	excludedSet := make(map[string]bool, len(excluded))
	for _, x := range excluded {
		excludedSet[x.TermText] = true
	}

	candidates, raw := e.extractor.CollectCandidates(docs, requiredTexts, excludedSet)
	e.logger.Info("collected candidates", "raw", raw, "unique", len(candidates))
	ec.emit(e.logger, models.LogEvent{
		Level:   "info",
		Message: fmt.Sprintf("deduplicated %d candidates to %d unique terms", raw, len(candidates)),
		Step:    "extract",
	})

	// Terms already persisted by a previous run stay untouched; only new
	// surface forms are classified and appended.
	known := make(map[string]bool, len(existing))
	for _, t := range existing {
		known[t.TermText] = true
	}
	fresh := candidates[:0:0]
	for _, c := range candidates {
		if !known[c] {
			fresh = append(fresh, c)
		}
	}

	classified, err := e.extractor.Classify(ctx, fresh, ec.Cancel, e.progress(ec, "extract"))
	if err != nil {
		return nil, err
	}

	rows := make([]models.ExtractedTerm, len(classified))
	for i, t := range classified {
		rows[i] = models.ExtractedTerm{TermText: t.Text, Category: t.Category}
	}
	if err := h.InTx(ctx, func(h *database.Handle) error {
		return repository.InsertExtractedTerms(ctx, h, rows)
	}); err != nil {
		return nil, err
	}

	all := make([]glossary.Term, 0, len(existing)+len(classified))
	for _, t := range existing {
		all = append(all, glossary.Term{Text: t.TermText, Category: t.Category})
	}
	all = append(all, classified...)
	return all, nil
}

// generateStages runs generate, review, refine and the two persistence
// points shared by the full and from_terms scopes.
func (e *Executor) generateStages(ctx context.Context, h *database.Handle, ec *ExecutionContext, terms []glossary.Term, docs []models.Document) error {
	if ec.Cancel.IsSet() {
		return cancellation.ErrCancelled
	}
	ec.emit(e.logger, models.LogEvent{Level: "info", Message: "generating provisional definitions", Step: "generate"})

	entries, err := e.generator.Generate(ctx, terms, docs, ec.Cancel, e.progress(ec, "generate"))
	if err != nil {
		return err
	}

	issues, err := e.reviewStage(ctx, ec, entries)
	if err != nil {
		return err
	}

	// Provisional entries and findings become visible together, and only
	// once reviewing survived cancellation.
	if err := h.InTx(ctx, func(h *database.Handle) error {
		if err := repository.InsertGlossaryEntries(ctx, h, repository.TableProvisional, entries); err != nil {
			return err
		}
		return repository.InsertIssues(ctx, h, issues)
	}); err != nil {
		return err
	}

	return e.refineStage(ctx, h, ec, entries, issues, docs)
}

func (e *Executor) reviewStage(ctx context.Context, ec *ExecutionContext, entries []models.GlossaryEntry) ([]models.Issue, error) {
	if ec.Cancel.IsSet() {
		return nil, cancellation.ErrCancelled
	}
	ec.emit(e.logger, models.LogEvent{Level: "info", Message: "reviewing entries", Step: "review"})
	return e.reviewer.Review(ctx, entries, ec.Cancel)
}

func (e *Executor) refineStage(ctx context.Context, h *database.Handle, ec *ExecutionContext, entries []models.GlossaryEntry, issues []models.Issue, docs []models.Document) error {
	if ec.Cancel.IsSet() {
		return cancellation.ErrCancelled
	}
	ec.emit(e.logger, models.LogEvent{Level: "info", Message: "refining entries", Step: "refine"})

	refined, err := e.refiner.Refine(ctx, entries, issues, docs, ec.Cancel, e.progress(ec, "refine"))
	if err != nil {
		return err
	}

	// A late cancel must not produce visible output.
	if ec.Cancel.IsSet() {
		return cancellation.ErrCancelled
	}
	if err := h.InTx(ctx, func(h *database.Handle) error {
		return repository.InsertGlossaryEntries(ctx, h, repository.TableRefined, refined)
	}); err != nil {
		return err
	}
	ec.emit(e.logger, models.LogEvent{
		Level:   "info",
		Message: fmt.Sprintf("persisted %d refined entries", len(refined)),
		Step:    "persist",
	})
	return nil
}

// progress adapts per-item engine callbacks into log events.
func (e *Executor) progress(ec *ExecutionContext, step string) glossary.Progress {
	return func(current, total int, term string) {
		ec.emit(e.logger, models.LogEvent{
			Level:           "info",
			Step:            step,
			ProgressCurrent: current,
			ProgressTotal:   total,
			CurrentTerm:     term,
		})
	}
}
