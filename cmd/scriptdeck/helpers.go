package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/musher-dev/scriptdeck/internal/config"
	clierrors "github.com/musher-dev/scriptdeck/internal/errors"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/launcher"
	"github.com/musher-dev/scriptdeck/internal/runner"
)

// openStore loads configuration and opens the history database. Returns a
// CLIError if the database cannot be opened.
func openStore(ctx context.Context) (*config.Config, *history.Store, error) {
	cfg := config.Load()

	store, err := history.Open(ctx, cfg.DatabasePath(), history.Options{})
	if err != nil {
		return nil, nil, clierrors.DatabaseFailed(err)
	}

	return cfg, store, nil
}

// parseID parses a positive numeric id argument.
func parseID(kind, arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, &clierrors.CLIError{
			Message: fmt.Sprintf("Invalid %s id: %q", kind, arg),
			Hint:    fmt.Sprintf("A %s id is a positive number", kind),
			Code:    clierrors.ExitUsage,
		}
	}

	return id, nil
}

// lookupScript loads a script, mapping a miss to a CLIError.
func lookupScript(ctx context.Context, store *history.Store, id int64) (*history.Script, error) {
	script, err := store.GetScript(ctx, id)
	if err != nil {
		if errors.Is(err, history.ErrScriptNotFound) {
			return nil, clierrors.ScriptNotFound(id)
		}

		return nil, clierrors.DatabaseFailed(err)
	}

	return script, nil
}

// lookupRun loads a run record, mapping a miss to a CLIError.
func lookupRun(ctx context.Context, store *history.Store, id int64) (*history.RunRecord, error) {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, history.ErrRunNotFound) {
			return nil, clierrors.RunNotFound(id)
		}

		return nil, clierrors.DatabaseFailed(err)
	}

	return run, nil
}

// startError maps an engine Start failure to a CLIError.
func startError(scriptID int64, err error) error {
	var spawnErr *runner.SpawnError

	switch {
	case errors.Is(err, history.ErrScriptNotFound):
		return clierrors.ScriptNotFound(scriptID)
	case errors.Is(err, runner.ErrAlreadyRunning):
		return clierrors.ScriptAlreadyRunning(scriptID)
	case errors.As(err, &spawnErr):
		if errors.Is(spawnErr, launcher.ErrElevationUnavailable) {
			return clierrors.ElevationUnavailable(spawnErr.Err)
		}

		return clierrors.SpawnFailed(spawnErr.Path, spawnErr.Err)
	default:
		return clierrors.Wrap(clierrors.ExitGeneral, "Failed to start script", err)
	}
}

// finishError maps a finished run to the command's exit status.
func finishError(ev runner.FinishedEvent) error {
	switch ev.Status {
	case history.StatusSuccess:
		return nil
	case history.StatusCancelled:
		return clierrors.RunCancelled(ev.TimedOut)
	default:
		cliErr := clierrors.RunFailed(ev.ExitCode)
		cliErr.Code = runExitCode(ev.ExitCode)

		return cliErr
	}
}

// runExitCode passes a script's exit code through when it fits a process
// exit status.
func runExitCode(code int) int {
	if code > 0 && code < 256 {
		return code
	}

	return clierrors.ExitExecution
}
