package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning is returned when an operation targets a script with no
	// active run.
	ErrNotRunning = errors.New("script is not running")

	// ErrAlreadyRunning is returned by Start when the script already has an
	// active run.
	ErrAlreadyRunning = errors.New("script is already running")

	// ErrShuttingDown is returned by Start after Shutdown began.
	ErrShuttingDown = errors.New("runner is shutting down")
)

// SpawnError reports that a script process could not be started. The run
// record, if one was created, has already been finalized as error.
type SpawnError struct {
	ScriptID int64
	RunID    int64
	Path     string
	Err      error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn script %d (%s): %v", e.ScriptID, e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
