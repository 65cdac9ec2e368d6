// Package pipeline drives the stage graph over the domain engines: scope
// dispatch, table-clear policy, cancellation plumbing, progress emission,
// cross-document deduplication, and batch persistence.
package pipeline

import (
	"log/slog"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/models"
)

// ExecutionContext carries the per-run plumbing handed to the executor. It
// holds no back-pointer to the run manager.
type ExecutionContext struct {
	RunID     int64
	ProjectID int64
	Cancel    *cancellation.Event

	// Log receives pipeline log/progress events for stream subscribers. May
	// be nil; invoked only through safeCallback.
	Log func(models.LogEvent)

	// DocRoot, when non-empty, is the filesystem fallback for document
	// loading in CLI mode.
	DocRoot string
}

// safeCallback invokes fn, swallowing a panic so a faulty subscriber callback
// can never fail the run.
func safeCallback(logger *slog.Logger, fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("callback panicked, continuing", "panic", r)
		}
	}()
	fn()
}

// emit sends a log event through the context callback under safeCallback.
func (c *ExecutionContext) emit(logger *slog.Logger, ev models.LogEvent) {
	if c.Log == nil {
		return
	}
	ev.RunID = c.RunID
	ev.ProjectID = c.ProjectID
	safeCallback(logger, func() { c.Log(ev) })
}
