// Package runner is the script execution engine. It starts scripts under a
// terminal or pipes, streams their output to a Sink, accepts input, resize,
// and cancellation, and records every run's outcome exactly once.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/musher-dev/scriptdeck/internal/bridge"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/launcher"
	"github.com/musher-dev/scriptdeck/internal/observability"
)

// Default drain windows used when Options leaves them zero.
const (
	DefaultDrainGrace   = 250 * time.Millisecond
	DefaultDrainTimeout = 5 * time.Second
)

// ScriptProvider resolves a script id to its metadata.
type ScriptProvider interface {
	GetScript(ctx context.Context, id int64) (*history.Script, error)
}

// RunStore persists run records.
type RunStore interface {
	CreateRun(ctx context.Context, scriptID int64, startedAt time.Time) (int64, error)
	FinalizeRun(ctx context.Context, runID int64, fin history.Finalization) error
}

// Options configures an Engine.
type Options struct {
	Scripts  ScriptProvider
	Runs     RunStore
	Launcher launcher.Launcher
	Sink     Sink
	Logger   *slog.Logger

	// ForcePipes skips terminal allocation for every run.
	ForcePipes bool

	// DefaultSize applies when StartOptions leaves the size zero.
	DefaultSize bridge.Size

	// DrainGrace is how long to wait for output after exit when the channel
	// does not report end-of-stream on its own.
	DrainGrace time.Duration

	// DrainTimeout bounds the wait for natural end-of-stream after exit.
	DrainTimeout time.Duration

	// TranscriptLimit caps the persisted transcript in bytes.
	TranscriptLimit int
}

// StartOptions configures one run.
type StartOptions struct {
	Cols uint16
	Rows uint16

	// Timeout cancels the run once elapsed. Zero means no deadline.
	Timeout time.Duration
}

// Engine runs scripts. It is safe for concurrent use.
type Engine struct {
	scripts  ScriptProvider
	runs     RunStore
	launcher launcher.Launcher
	sink     Sink
	logger   *slog.Logger

	forcePipes      bool
	defaultSize     bridge.Size
	drainGrace      time.Duration
	drainTimeout    time.Duration
	transcriptLimit int

	registry *Registry
	cancels  *CancellationSet
	closing  atomic.Bool

	open func(*launcher.Spec, bridge.Size, bridge.Options) (bridge.Bridge, error)
	now  func() time.Time
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Scripts == nil {
		return nil, errors.New("script provider is required")
	}

	if opts.Runs == nil {
		return nil, errors.New("run store is required")
	}

	e := &Engine{
		scripts:         opts.Scripts,
		runs:            opts.Runs,
		launcher:        opts.Launcher,
		sink:            opts.Sink,
		logger:          observability.Component(opts.Logger, "runner"),
		forcePipes:      opts.ForcePipes,
		defaultSize:     opts.DefaultSize,
		drainGrace:      opts.DrainGrace,
		drainTimeout:    opts.DrainTimeout,
		transcriptLimit: opts.TranscriptLimit,
		registry:        NewRegistry(),
		cancels:         NewCancellationSet(),
		open:            bridge.Open,
		now:             time.Now,
	}

	if e.launcher == nil {
		e.launcher = launcher.New(launcher.Options{Logger: opts.Logger})
	}

	if e.sink == nil {
		e.sink = discardSink{}
	}

	if e.drainGrace <= 0 {
		e.drainGrace = DefaultDrainGrace
	}

	if e.drainTimeout <= 0 {
		e.drainTimeout = DefaultDrainTimeout
	}

	return e, nil
}

// Start launches the script and returns the new run id once the child is
// running. Output and completion arrive through the Sink.
func (e *Engine) Start(ctx context.Context, scriptID int64, opts StartOptions) (int64, error) {
	if e.closing.Load() {
		return 0, ErrShuttingDown
	}

	ctx, span := observability.Tracer("scriptdeck/runner").Start(ctx, "runner.start")
	defer span.End()

	span.SetAttributes(attribute.Int64("script.id", scriptID))

	script, err := e.scripts.GetScript(ctx, scriptID)
	if err != nil {
		return 0, fmt.Errorf("load script %d: %w", scriptID, err)
	}

	h := newHandle(scriptID, e.now())
	if err := e.registry.Insert(scriptID, h); err != nil {
		return 0, err
	}

	runID, err := e.runs.CreateRun(ctx, scriptID, h.startedAt)
	if err != nil {
		e.release(h)
		return 0, fmt.Errorf("create run record: %w", err)
	}

	h.setRunID(runID)
	span.SetAttributes(attribute.Int64("run.id", runID))

	logger := e.logger.With(
		slog.Int64("script.id", scriptID),
		slog.Int64("run.id", runID),
	)

	b, err := e.spawn(script, opts)
	if err != nil {
		spawnErr := &SpawnError{ScriptID: scriptID, RunID: runID, Path: script.Path, Err: err}
		e.failSpawn(ctx, logger, h, spawnErr)

		return 0, spawnErr
	}

	cancelPending := h.attach(b)

	logger.Info(
		"run started",
		slog.String("event.type", "run.start"),
		slog.String("script.path", script.Path),
		slog.Int("process.pid", b.Pid()),
		slog.String("bridge.mode", b.Mode()),
	)

	if opts.Timeout > 0 {
		h.setTimer(time.AfterFunc(opts.Timeout, func() {
			e.expire(h)
		}))
	}

	runCtx, runSpan := observability.StartRunSpan(context.WithoutCancel(ctx), scriptID, runID, script.Path)

	go e.coordinate(runCtx, logger, h, b, runSpan)

	// Shutdown may have snapshotted the registry while this run was still
	// pending; it waits on the handle, so the run must not outlive it.
	switch {
	case cancelPending:
		e.cancel(h, b, "requested")
	case e.closing.Load():
		e.cancel(h, b, "shutdown")
	}

	return runID, nil
}

func (e *Engine) spawn(script *history.Script, opts StartOptions) (bridge.Bridge, error) {
	spec, err := e.launcher.Build(script.Path, script.RunAsAdmin)
	if err != nil {
		return nil, err
	}

	size := bridge.Size{Cols: opts.Cols, Rows: opts.Rows}
	if size.Cols == 0 {
		size.Cols = e.defaultSize.Cols
	}

	if size.Rows == 0 {
		size.Rows = e.defaultSize.Rows
	}

	return e.open(spec, size, bridge.Options{ForcePipes: e.forcePipes, Logger: e.logger})
}

// failSpawn finalizes the reserved record as error and frees the slot, so
// a failed start never leaves a running record behind.
func (e *Engine) failSpawn(ctx context.Context, logger *slog.Logger, h *Handle, spawnErr *SpawnError) {
	logger.Warn(
		"script failed to start",
		slog.String("event.type", "run.spawn_failed"),
		slog.String("error", spawnErr.Err.Error()),
	)

	h.finalize.Do(func() {
		err := e.runs.FinalizeRun(context.WithoutCancel(ctx), h.RunID(), history.Finalization{
			FinishedAt: e.now(),
			ExitCode:   -1,
			Output:     spawnErr.Error(),
			Status:     history.StatusError,
		})
		if err != nil {
			logger.Error(
				"failed to finalize run record",
				slog.String("event.type", "run.finalize_failed"),
				slog.String("error", err.Error()),
			)
		}
	})

	e.release(h)
}

func (e *Engine) release(h *Handle) {
	e.registry.CompareAndRemove(h.scriptID, h)
	close(h.done)
}

// WriteInput forwards data to the running script's input. Writes to one
// run are delivered in call order.
func (e *Engine) WriteInput(scriptID int64, data []byte) error {
	b, err := e.activeBridge(scriptID)
	if err != nil {
		return err
	}

	if _, err := b.Write(data); err != nil {
		if errors.Is(err, bridge.ErrClosed) {
			return ErrNotRunning
		}

		return err
	}

	return nil
}

// Resize changes the running script's terminal size. Runs without a
// terminal return bridge.ErrNoTerminal.
func (e *Engine) Resize(scriptID int64, cols, rows uint16) error {
	b, err := e.activeBridge(scriptID)
	if err != nil {
		return err
	}

	if err := b.Resize(bridge.Size{Cols: cols, Rows: rows}); err != nil {
		if errors.Is(err, bridge.ErrClosed) {
			return ErrNotRunning
		}

		return err
	}

	return nil
}

// Cancel requests termination of the script's process tree and returns
// without waiting. The run finishes as cancelled. A run still spawning is
// cancelled by Start as soon as its child exists.
func (e *Engine) Cancel(scriptID int64) error {
	h, ok := e.registry.Get(scriptID)
	if !ok {
		return ErrNotRunning
	}

	b, ok := h.requestCancel()
	if !ok {
		return nil
	}

	e.cancel(h, b, "requested")

	return nil
}

func (e *Engine) expire(h *Handle) {
	current, ok := e.registry.Get(h.scriptID)
	if !ok || current != h {
		return
	}

	b, ok := h.Bridge()
	if !ok {
		return
	}

	h.timedOut.Store(true)
	e.cancel(h, b, "timeout")
}

func (e *Engine) cancel(h *Handle, b bridge.Bridge, reason string) {
	// The intent must be visible before the signal can cause an exit.
	e.cancels.Mark(h.scriptID, h.RunID())

	logger := e.logger.With(
		slog.Int64("script.id", h.scriptID),
		slog.Int64("run.id", h.RunID()),
	)

	logger.Info(
		"cancelling run",
		slog.String("event.type", "run.cancel"),
		slog.String("cancel.reason", reason),
	)

	go func() {
		if err := b.Terminate(); err != nil {
			logger.Warn(
				"failed to signal process tree",
				slog.String("event.type", "run.cancel_failed"),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// IsRunning reports whether the script has an active run.
func (e *Engine) IsRunning(scriptID int64) bool {
	return e.registry.Contains(scriptID)
}

// Running returns the ids of scripts with active runs, ascending.
func (e *Engine) Running() []int64 {
	return e.registry.IDs()
}

// Done returns a channel closed when the script's active run has fully
// finished. The channel is already closed when nothing is running.
func (e *Engine) Done(scriptID int64) <-chan struct{} {
	if h, ok := e.registry.Get(scriptID); ok {
		return h.Done()
	}

	closed := make(chan struct{})
	close(closed)

	return closed
}

// Shutdown rejects new runs, cancels every active run, and waits for all
// of them to finish or for ctx to end.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.closing.Store(true)

	handles := e.registry.snapshot()
	for _, h := range handles {
		if b, ok := h.Bridge(); ok {
			e.cancel(h, b, "shutdown")
		}
	}

	for _, h := range handles {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return fmt.Errorf("wait for runs to finish: %w", ctx.Err())
		}
	}

	return nil
}

func (e *Engine) activeBridge(scriptID int64) (bridge.Bridge, error) {
	h, ok := e.registry.Get(scriptID)
	if !ok {
		return nil, ErrNotRunning
	}

	b, ok := h.Bridge()
	if !ok {
		return nil, ErrNotRunning
	}

	return b, nil
}
