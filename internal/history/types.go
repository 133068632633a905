// Package history persists registered scripts and their run records in
// SQLite.
package history

import (
	"errors"
	"time"
)

// DefaultRunLimit is the number of runs returned by ListRuns when no limit
// is given.
const DefaultRunLimit = 50

// Status is the lifecycle state of a run record.
type Status string

// Run statuses. A record starts running and moves exactly once to one of
// the terminal values.
const (
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

var (
	// ErrScriptNotFound is returned for an unknown script id.
	ErrScriptNotFound = errors.New("script not found")

	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunFinalized is returned when finalizing a record that already
	// holds a terminal status.
	ErrRunFinalized = errors.New("run already finalized")
)

// Script is a registered script file.
type Script struct {
	ID          int64
	Name        string
	Path        string
	Description string
	Category    string
	RunAsAdmin  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RunRecord is the durable record of one run.
type RunRecord struct {
	ID         int64
	ScriptID   int64
	StartedAt  time.Time
	FinishedAt *time.Time
	ExitCode   *int
	Output     string
	Status     Status
}

// Duration returns how long the run took, or zero while it is running.
func (r *RunRecord) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

// Finalization carries the terminal fields written by FinalizeRun.
type Finalization struct {
	FinishedAt time.Time
	ExitCode   int
	Output     string
	Status     Status
}
