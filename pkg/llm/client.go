// Package llm provides the language-model client contract and its
// HTTP-backed implementation: retry with backoff, structured-output parsing
// with a lenient repair pass, cancellation-aware calls, and a debug sink.
package llm

import (
	"context"
	"time"

	"github.com/glossforge/glossforge/pkg/cancellation"
)

// Client is the contract consumed by the domain engines.
type Client interface {
	// Generate returns the raw completion text for a prompt.
	Generate(ctx context.Context, prompt string, opts CallOptions) (string, error)

	// GenerateStructured asks for a JSON response, parses it (with a single
	// repair pass on malformed output), validates it against schema, and
	// unmarshals it into v.
	GenerateStructured(ctx context.Context, prompt string, schema *Schema, v any, opts CallOptions) error

	// IsAvailable is a cheap round-trip probe.
	IsAvailable(ctx context.Context) bool

	// Close releases transport resources.
	Close() error
}

// CallOptions tune a single call. The zero value uses the client defaults.
type CallOptions struct {
	// Timeout bounds the in-flight HTTP call. Zero means the client default.
	Timeout time.Duration

	// Cancel is checked between retry attempts and immediately before each
	// HTTP call. In-flight calls are not preempted; the timeout bounds them.
	Cancel *cancellation.Event
}

// cancelled reports whether the options' cancel event is latched.
func (o CallOptions) cancelled() bool {
	return o.Cancel != nil && o.Cancel.IsSet()
}

// watchCancel derives a context that is cancelled when the cancel event
// latches, so backoff sleeps and HTTP calls unblock promptly.
func (o CallOptions) watchCancel(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Cancel == nil {
		return context.WithCancel(ctx)
	}
	watched, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-o.Cancel.Done():
			cancel()
		case <-watched.Done():
		}
	}()
	return watched, cancel
}

// ErrCancelled re-exports the pipeline cancellation sentinel for callers
// that only import this package.
var ErrCancelled = cancellation.ErrCancelled
