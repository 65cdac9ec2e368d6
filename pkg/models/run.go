package models

import (
	"fmt"
	"time"
)

// Scope selects the pipeline subgraph a run executes and the corresponding
// table-clear policy.
type Scope string

// Run scopes.
const (
	ScopeFull                 Scope = "full"
	ScopeExtract              Scope = "extract"
	ScopeFromTerms            Scope = "from_terms"
	ScopeProvisionalToRefined Scope = "provisional_to_refined"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeFull, ScopeExtract, ScopeFromTerms, ScopeProvisionalToRefined:
		return true
	}
	return false
}

// RunStatus is the run lifecycle state.
type RunStatus string

// Run statuses. Terminal set: completed, failed, cancelled.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is terminal. Once terminal, no field
// of the run mutates.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// Run is a single end-to-end or partial execution of the pipeline for one
// project.
type Run struct {
	ID           int64      `json:"id"`
	Scope        Scope      `json:"scope"`
	Status       RunStatus  `json:"status"`
	TriggeredBy  string     `json:"triggered_by"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DocumentIDs  []int64    `json:"document_ids,omitempty"`
}

// CancelResult is the outcome of a cancel request.
type CancelResult string

// Cancel outcomes.
const (
	CancelOK              CancelResult = "ok"
	CancelNotFound        CancelResult = "not_found"
	CancelAlreadyTerminal CancelResult = "already_terminal"
)

// LogEvent is a single pipeline log record delivered to stream subscribers.
type LogEvent struct {
	ProjectID       int64  `json:"-"`
	RunID           int64  `json:"run_id"`
	Level           string `json:"level,omitempty"`
	Message         string `json:"message,omitempty"`
	Step            string `json:"step,omitempty"`
	ProgressCurrent int    `json:"progress_current,omitempty"`
	ProgressTotal   int    `json:"progress_total,omitempty"`
	CurrentTerm     string `json:"current_term,omitempty"`
	Complete        bool   `json:"complete,omitempty"`
}

func (e LogEvent) String() string {
	return fmt.Sprintf("run=%d level=%s %s", e.RunID, e.Level, e.Message)
}
