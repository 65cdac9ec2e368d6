// Package cancellation provides the cooperative cancel latch shared by the
// run manager, pipeline executor, and LLM client.
package cancellation

import (
	"errors"
	"sync"
)

// ErrCancelled is the single out-of-band exit used by the pipeline. Every
// stage returns it up the stack unchanged; the run manager translates it to
// the cancelled terminal state.
var ErrCancelled = errors.New("run cancelled")

// Event is a set-once latch. Workers poll IsSet at stage boundaries and
// before each LLM call; long waits select on Done.
type Event struct {
	once sync.Once
	ch   chan struct{}
}

// NewEvent creates an unset latch.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set latches the event. Safe to call multiple times and from any goroutine.
func (e *Event) Set() {
	e.once.Do(func() { close(e.ch) })
}

// IsSet reports whether the event has been latched. A nil event is never
// set.
func (e *Event) IsSet() bool {
	if e == nil {
		return false
	}
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the event is set. A nil event blocks
// forever.
func (e *Event) Done() <-chan struct{} {
	if e == nil {
		return nil
	}
	return e.ch
}

// IsCancelled reports whether err is the cancellation sentinel, possibly
// wrapped.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
