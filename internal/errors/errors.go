// Package errors provides structured CLI error types for scriptdeck.
//
// CLIError wraps errors with user-facing messages, hints, and exit codes
// to provide consistent, actionable error output across all commands.
package errors

import (
	"errors"
	"fmt"
)

// Exit codes for CLI errors.
const (
	ExitSuccess   = 0  // Successful execution
	ExitGeneral   = 1  // General error
	ExitNotFound  = 2  // Script or run not found
	ExitConflict  = 3  // Script already running
	ExitConfig    = 4  // Configuration or storage error
	ExitTimeout   = 5  // Run cancelled by deadline
	ExitExecution = 6  // Spawn or run failure
	ExitCancelled = 7  // Run cancelled by request
	ExitUsage     = 64 // Command line usage error (BSD convention)
)

// CLIError represents a user-facing CLI error with actionable guidance.
type CLIError struct {
	// Message is the primary error message shown to the user.
	Message string

	// Hint provides actionable guidance on how to fix the error.
	Hint string

	// Cause is the underlying error, if any.
	Cause error

	// Code is the exit code for the CLI.
	Code int
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// New creates a new CLIError with the given message and exit code.
func New(code int, message string) *CLIError {
	return &CLIError{
		Message: message,
		Code:    code,
	}
}

// Wrap wraps an existing error with a CLIError.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{
		Message: message,
		Cause:   cause,
		Code:    code,
	}
}

// WithHint adds a hint to the error.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is a convenience function for errors.As with CLIError.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// --- Common error constructors ---

// ScriptNotFound returns an error for an unknown script id.
func ScriptNotFound(id int64) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Script not found: %d", id),
		Hint:    "Run 'scriptdeck script list' to see registered scripts",
		Code:    ExitNotFound,
	}
}

// ScriptAlreadyRunning returns an error when a second run is requested.
func ScriptAlreadyRunning(id int64) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Script %d is already running", id),
		Hint:    "Wait for the current run to finish or cancel it first",
		Code:    ExitConflict,
	}
}

// SpawnFailed returns an error when a script process could not be started.
func SpawnFailed(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to start %s", path),
		Hint:    "Check that the file exists, is readable, and its interpreter is installed",
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// ElevationUnavailable returns an error when privilege escalation is impossible.
func ElevationUnavailable(cause error) *CLIError {
	return &CLIError{
		Message: "Cannot run script with elevated privileges",
		Hint:    "Install sudo (Unix) or run from an Administrator shell (Windows), or clear the script's admin flag",
		Cause:   cause,
		Code:    ExitExecution,
	}
}

// RunNotFound returns an error for an unknown run record.
func RunNotFound(id int64) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Run not found: %d", id),
		Hint:    "Run 'scriptdeck history list <script-id>' to see recorded runs",
		Code:    ExitNotFound,
	}
}

// RunFailed returns an error when a run finished with a nonzero exit code.
func RunFailed(exitCode int) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Script exited with code %d", exitCode),
		Code:    ExitExecution,
	}
}

// RunCancelled returns an error when a run was cancelled.
func RunCancelled(timedOut bool) *CLIError {
	if timedOut {
		return &CLIError{
			Message: "Run cancelled: timeout reached",
			Hint:    "Increase --timeout or remove it to let the script run to completion",
			Code:    ExitTimeout,
		}
	}

	return &CLIError{
		Message: "Run cancelled",
		Code:    ExitCancelled,
	}
}

// ConfigFailed returns an error for configuration save failures.
func ConfigFailed(operation string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Failed to %s", operation),
		Hint:    "Check file permissions for your scriptdeck config directory or run 'scriptdeck doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// DatabaseFailed returns an error when the history database is unusable.
func DatabaseFailed(cause error) *CLIError {
	return &CLIError{
		Message: "Failed to open the scriptdeck database",
		Hint:    "Check database.path in your config or run 'scriptdeck doctor'",
		Cause:   cause,
		Code:    ExitConfig,
	}
}

// NotATerminal returns an error when an interactive command lacks a TTY.
func NotATerminal() *CLIError {
	return &CLIError{
		Message: "Interactive input requires a terminal (TTY)",
		Hint:    "Pass --detach-input to run without forwarding keyboard input",
		Code:    ExitUsage,
	}
}

// InvalidManifest returns an error for an unreadable script manifest.
func InvalidManifest(path string, cause error) *CLIError {
	return &CLIError{
		Message: fmt.Sprintf("Invalid script manifest: %s", path),
		Hint:    "Manifests are YAML (.yaml/.yml) or TOML (.toml) with a top-level 'scripts' list",
		Cause:   cause,
		Code:    ExitUsage,
	}
}
