// Package run hosts the per-project run manager: admission, the status state
// machine, the background worker, and log fan-out to stream subscribers.
package run

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/glossforge/glossforge/pkg/models"
)

// subscriberBuffer bounds a subscriber's live channel. A subscriber that
// falls this far behind starts losing events rather than stalling the
// pipeline.
const subscriberBuffer = 256

// maxBufferedRuns bounds how many finished runs keep their replay buffer.
const maxBufferedRuns = 8

type subscriber struct {
	id string
	ch chan models.LogEvent
}

type runLog struct {
	events      []models.LogEvent
	complete    bool
	subscribers map[string]*subscriber
	order       int64 // creation order for buffer eviction
}

// LogBus buffers per-run log events and fans them out to subscribers. Late
// subscribers receive the buffered snapshot followed by live events; the
// complete sentinel is always the last event a subscriber sees.
type LogBus struct {
	projectID int64
	logger    *slog.Logger

	mu     sync.Mutex
	runs   map[int64]*runLog
	seq    int64
}

// NewLogBus creates a bus bound to one project.
func NewLogBus(projectID int64, logger *slog.Logger) *LogBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogBus{
		projectID: projectID,
		logger:    logger.With("component", "logbus", "project_id", projectID),
		runs:      make(map[int64]*runLog),
	}
}

// Publish appends an event to its run's buffer and delivers it to that run's
// subscribers. Events for another project are dropped on ingress so a stale
// stream never carries over after a context switch.
func (b *LogBus) Publish(ev models.LogEvent) {
	if ev.ProjectID != 0 && ev.ProjectID != b.projectID {
		b.logger.Warn("dropping log event for foreign project", "event_project_id", ev.ProjectID)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	rl := b.runLogLocked(ev.RunID)
	if rl.complete {
		return
	}
	rl.events = append(rl.events, ev)
	for _, sub := range rl.subscribers {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("subscriber too slow, dropping event", "subscriber", sub.id, "run_id", ev.RunID)
		}
	}
}

// Complete broadcasts the terminal sentinel for a run and closes all of its
// subscriber channels. Further publishes for the run are ignored.
func (b *LogBus) Complete(runID int64) {
	sentinel := models.LogEvent{ProjectID: b.projectID, RunID: runID, Complete: true}

	b.mu.Lock()
	defer b.mu.Unlock()

	rl := b.runLogLocked(runID)
	if rl.complete {
		return
	}
	rl.complete = true
	rl.events = append(rl.events, sentinel)
	for _, sub := range rl.subscribers {
		select {
		case sub.ch <- sentinel:
		default:
			b.logger.Warn("subscriber too slow, dropping complete sentinel", "subscriber", sub.id, "run_id", runID)
		}
		close(sub.ch)
	}
	rl.subscribers = make(map[string]*subscriber)
	b.evictLocked()
}

// Subscribe returns a channel of events for a run plus an unsubscribe
// function. The channel first yields the buffered snapshot, then live
// events; it is closed after the complete sentinel.
func (b *LogBus) Subscribe(runID int64) (<-chan models.LogEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rl := b.runLogLocked(runID)
	ch := make(chan models.LogEvent, len(rl.events)+subscriberBuffer)
	for _, ev := range rl.events {
		ch <- ev
	}

	if rl.complete {
		close(ch)
		return ch, func() {}
	}

	sub := &subscriber{id: uuid.NewString(), ch: ch}
	rl.subscribers[sub.id] = sub
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := rl.subscribers[sub.id]; ok {
			delete(rl.subscribers, sub.id)
			close(cur.ch)
		}
	}
}

func (b *LogBus) runLogLocked(runID int64) *runLog {
	rl, ok := b.runs[runID]
	if !ok {
		b.seq++
		rl = &runLog{subscribers: make(map[string]*subscriber), order: b.seq}
		b.runs[runID] = rl
	}
	return rl
}

// evictLocked drops the oldest completed run buffers beyond the retention
// cap.
func (b *LogBus) evictLocked() {
	for {
		completed := 0
		var oldestID int64
		var oldest *runLog
		for id, rl := range b.runs {
			if !rl.complete {
				continue
			}
			completed++
			if oldest == nil || rl.order < oldest.order {
				oldestID, oldest = id, rl
			}
		}
		if completed <= maxBufferedRuns {
			return
		}
		delete(b.runs, oldestID)
	}
}
