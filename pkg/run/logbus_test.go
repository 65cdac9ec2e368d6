package run

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glossforge/glossforge/pkg/models"
)

func collectUntilClosed(t *testing.T, ch <-chan models.LogEvent) []models.LogEvent {
	t.Helper()
	var out []models.LogEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestSubscribeReceivesSnapshotThenLive(t *testing.T) {
	bus := NewLogBus(1, nil)

	bus.Publish(models.LogEvent{RunID: 7, Message: "first"})
	bus.Publish(models.LogEvent{RunID: 7, Message: "second"})

	ch, unsubscribe := bus.Subscribe(7)
	defer unsubscribe()

	bus.Publish(models.LogEvent{RunID: 7, Message: "third"})
	bus.Complete(7)

	events := collectUntilClosed(t, ch)
	require.Len(t, events, 4)
	assert.Equal(t, "first", events[0].Message)
	assert.Equal(t, "second", events[1].Message)
	assert.Equal(t, "third", events[2].Message)
	assert.True(t, events[3].Complete, "the sentinel is always last")
}

func TestSubscribeAfterCompleteReplaysEverything(t *testing.T) {
	bus := NewLogBus(1, nil)

	bus.Publish(models.LogEvent{RunID: 7, Message: "only"})
	bus.Complete(7)

	ch, unsubscribe := bus.Subscribe(7)
	defer unsubscribe()

	events := collectUntilClosed(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, "only", events[0].Message)
	assert.True(t, events[1].Complete)
}

func TestPublishDropsForeignProjectEvents(t *testing.T) {
	bus := NewLogBus(1, nil)

	ch, unsubscribe := bus.Subscribe(7)
	defer unsubscribe()

	bus.Publish(models.LogEvent{ProjectID: 2, RunID: 7, Message: "stale carry-over"})
	bus.Publish(models.LogEvent{ProjectID: 1, RunID: 7, Message: "own"})
	bus.Complete(7)

	events := collectUntilClosed(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, "own", events[0].Message)
	assert.True(t, events[1].Complete)
}

func TestEventsForOtherRunsNotDelivered(t *testing.T) {
	bus := NewLogBus(1, nil)

	ch, unsubscribe := bus.Subscribe(7)
	defer unsubscribe()

	bus.Publish(models.LogEvent{RunID: 8, Message: "other run"})
	bus.Publish(models.LogEvent{RunID: 7, Message: "mine"})
	bus.Complete(7)

	events := collectUntilClosed(t, ch)
	require.Len(t, events, 2)
	assert.Equal(t, "mine", events[0].Message)
}

func TestPublishAfterCompleteIsIgnored(t *testing.T) {
	bus := NewLogBus(1, nil)

	bus.Complete(7)
	bus.Publish(models.LogEvent{RunID: 7, Message: "late"})

	ch, unsubscribe := bus.Subscribe(7)
	defer unsubscribe()
	events := collectUntilClosed(t, ch)
	require.Len(t, events, 1)
	assert.True(t, events[0].Complete)
}

func TestCompleteIsIdempotent(t *testing.T) {
	bus := NewLogBus(1, nil)
	bus.Complete(7)
	assert.NotPanics(t, func() { bus.Complete(7) })
}

func TestBufferEviction(t *testing.T) {
	bus := NewLogBus(1, nil)

	for runID := int64(1); runID <= int64(maxBufferedRuns)+3; runID++ {
		bus.Publish(models.LogEvent{RunID: runID, Message: "x"})
		bus.Complete(runID)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.LessOrEqual(t, len(bus.runs), maxBufferedRuns)
	// The newest runs survive eviction.
	assert.Contains(t, bus.runs, int64(maxBufferedRuns)+3)
	assert.NotContains(t, bus.runs, int64(1))
}
