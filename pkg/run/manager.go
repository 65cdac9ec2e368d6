package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glossforge/glossforge/pkg/cancellation"
	"github.com/glossforge/glossforge/pkg/database"
	"github.com/glossforge/glossforge/pkg/llm"
	"github.com/glossforge/glossforge/pkg/models"
	"github.com/glossforge/glossforge/pkg/pipeline"
	"github.com/glossforge/glossforge/pkg/repository"
)

// ErrAlreadyRunning rejects run admission while a non-terminal run exists.
var ErrAlreadyRunning = errors.New("a run is already active for this project")

// ErrShuttingDown rejects run admission during graceful shutdown.
var ErrShuttingDown = errors.New("run manager is shutting down")

// ClientFactory builds the LLM client for one run. The factory owns provider
// selection and debug-sink wiring so every call path logs consistently.
type ClientFactory func(runID int64) (llm.Client, error)

// Manager owns the run lifecycle for a single project: admission, the
// background worker, cancellation, and log fan-out.
type Manager struct {
	projectID int64
	db        *database.DB
	docRoot   string
	newClient ClientFactory
	logger    *slog.Logger
	bus       *LogBus

	// Lock order is strictly startMu before cancelMu; no method takes them
	// in reverse.
	startMu  sync.Mutex
	cancelMu sync.Mutex

	cancelEvents map[int64]*cancellation.Event

	executorsMu sync.Mutex
	executors   map[int64]*pipeline.Executor

	wg       sync.WaitGroup
	closedMu sync.Mutex
	closed   bool
}

// NewManager builds a manager over an open project database.
func NewManager(projectID int64, db *database.DB, docRoot string, newClient ClientFactory, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "run_manager", "project_id", projectID)
	return &Manager{
		projectID:    projectID,
		db:           db,
		docRoot:      docRoot,
		newClient:    newClient,
		logger:       logger,
		bus:          NewLogBus(projectID, logger),
		cancelEvents: make(map[int64]*cancellation.Event),
		executors:    make(map[int64]*pipeline.Executor),
	}
}

// StartRun admits a new run and launches its worker. Returns
// ErrAlreadyRunning when a non-terminal run exists.
func (m *Manager) StartRun(ctx context.Context, scope models.Scope, triggeredBy string, documentIDs []int64) (int64, error) {
	if m.isClosed() {
		return 0, ErrShuttingDown
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	var created *models.Run
	h := m.db.Handle()
	// Admission check and insert in one transaction so two concurrent
	// starts cannot both pass the check.
	err := h.InTx(ctx, func(h *database.Handle) error {
		current, err := repository.GetCurrentRun(ctx, h)
		if err != nil {
			return err
		}
		if current != nil {
			return ErrAlreadyRunning
		}
		created, err = repository.CreateRun(ctx, h, scope, triggeredBy, documentIDs)
		return err
	})
	if err != nil {
		return 0, err
	}

	// The cancel event must be registered before admission releases, so a
	// cancel racing the start always finds the latch.
	ev := cancellation.NewEvent()
	m.cancelMu.Lock()
	m.cancelEvents[created.ID] = ev
	m.cancelMu.Unlock()

	m.wg.Add(1)
	go m.executeRun(created, ev)

	m.logger.Info("run admitted", "run_id", created.ID, "scope", scope, "triggered_by", triggeredBy)
	return created.ID, nil
}

// CancelRun latches the run's cancel event and conditionally moves the run
// to cancelled. Idempotent: a second call reports already_terminal and
// mutates nothing.
func (m *Manager) CancelRun(ctx context.Context, runID int64) (models.CancelResult, error) {
	m.cancelMu.Lock()
	if ev, ok := m.cancelEvents[runID]; ok {
		ev.Set()
	}
	m.cancelMu.Unlock()

	n, err := repository.UpdateIfActive(ctx, m.db.Handle(), runID, models.RunStatusCancelled, database.NowUTC(), "")
	if err != nil {
		return "", err
	}
	if n > 0 {
		m.logger.Info("run cancelled", "run_id", runID)
		return models.CancelOK, nil
	}

	if _, err := repository.GetRun(ctx, m.db.Handle(), runID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return models.CancelNotFound, nil
		}
		return "", err
	}
	return models.CancelAlreadyTerminal, nil
}

// GetCurrentRun returns the project's active run, or nil when idle.
func (m *Manager) GetCurrentRun(ctx context.Context) (*models.Run, error) {
	return repository.GetCurrentRun(ctx, m.db.Handle())
}

// SubscribeLogs streams a run's buffered and live log events.
func (m *Manager) SubscribeLogs(runID int64) (<-chan models.LogEvent, func()) {
	return m.bus.Subscribe(runID)
}

// executeRun is the worker body. It never propagates errors; every outcome
// is recorded in the run row and broadcast to subscribers.
func (m *Manager) executeRun(run *models.Run, ev *cancellation.Event) {
	defer m.wg.Done()

	logger := m.logger.With("run_id", run.ID)
	h := m.db.Handle()

	defer func() {
		m.cancelMu.Lock()
		delete(m.cancelEvents, run.ID)
		m.cancelMu.Unlock()
		// The sentinel is broadcast last, after all state is released.
		m.bus.Complete(run.ID)
	}()

	// Terminal writes use a background context so an unwound request
	// context cannot abort them.
	ctx := context.Background()

	n, err := repository.MarkRunning(ctx, h, run.ID, database.NowUTC())
	if err != nil {
		logger.Error("failed to mark run running", "error", err)
		m.finalize(logger, run.ID, models.RunStatusFailed, "unable to start: "+err.Error())
		return
	}
	if n == 0 {
		// Cancelled between admission and pickup.
		logger.Info("run already terminal before start")
		return
	}
	m.bus.Publish(models.LogEvent{ProjectID: m.projectID, RunID: run.ID, Level: "info", Message: "run started"})

	client, err := m.newClient(run.ID)
	if err != nil {
		logger.Error("failed to build LLM client", "error", err)
		m.finalize(logger, run.ID, models.RunStatusFailed, "unable to start: "+err.Error())
		return
	}
	executor, err := pipeline.NewExecutor(client, m.logger)
	if err != nil {
		_ = client.Close()
		logger.Error("failed to build executor", "error", err)
		m.finalize(logger, run.ID, models.RunStatusFailed, "unable to start: "+err.Error())
		return
	}

	m.executorsMu.Lock()
	m.executors[run.ID] = executor
	m.executorsMu.Unlock()
	defer func() {
		m.executorsMu.Lock()
		delete(m.executors, run.ID)
		m.executorsMu.Unlock()
		if err := executor.Close(); err != nil {
			logger.Warn("failed to close executor", "error", err)
		}
	}()

	ec := &pipeline.ExecutionContext{
		RunID:     run.ID,
		ProjectID: m.projectID,
		Cancel:    ev,
		Log:       m.bus.Publish,
		DocRoot:   m.docRoot,
	}
	execErr := executor.Execute(ctx, h, run.Scope, ec, run.DocumentIDs)

	switch {
	case cancellation.IsCancelled(execErr) || ev.IsSet():
		m.finalize(logger, run.ID, models.RunStatusCancelled, "")
	case execErr != nil:
		logger.Error("run failed", "error", execErr)
		m.bus.Publish(models.LogEvent{ProjectID: m.projectID, RunID: run.ID, Level: "error", Message: execErr.Error()})
		m.finalize(logger, run.ID, models.RunStatusFailed, execErr.Error())
	default:
		m.finalize(logger, run.ID, models.RunStatusCompleted, "")
	}
}

// finalize records a terminal status with the conditional updaters. If the
// primary handle is unusable a fresh connection is opened for one retry;
// both failures are logged but never re-raised.
func (m *Manager) finalize(logger *slog.Logger, runID int64, status models.RunStatus, errorMessage string) {
	ctx := context.Background()
	now := database.NowUTC()

	apply := func(h *database.Handle) (int64, error) {
		if status == models.RunStatusCompleted {
			// Conditional on running so a concurrently-served cancel wins.
			return repository.UpdateIfRunning(ctx, h, runID, status, now, errorMessage)
		}
		return repository.UpdateIfActive(ctx, h, runID, status, now, errorMessage)
	}

	n, err := apply(m.db.Handle())
	if err != nil {
		logger.Warn("finalize failed on primary handle, retrying on fresh connection", "error", err)
		fresh, openErr := database.OpenProject(ctx, m.db.Path())
		if openErr != nil {
			logger.Error("failed to open fresh connection for finalize", "error", openErr)
			return
		}
		defer fresh.Close()
		if n, err = apply(fresh.Handle()); err != nil {
			logger.Error("finalize failed on fresh connection", "error", err)
			return
		}
	}
	if n == 0 {
		logger.Debug("finalize was a no-op, run already terminal", "target_status", status)
		return
	}
	logger.Info("run finalized", "status", status)
}

// Shutdown stops admission, cancels active runs, and waits for workers until
// ctx expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closedMu.Lock()
	m.closed = true
	m.closedMu.Unlock()

	m.cancelMu.Lock()
	for _, ev := range m.cancelEvents {
		ev.Set()
	}
	m.cancelMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out with runs still active: %w", ctx.Err())
	}
}

func (m *Manager) isClosed() bool {
	m.closedMu.Lock()
	defer m.closedMu.Unlock()
	return m.closed
}
