package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/scriptdeck/internal/bridge"
	"github.com/musher-dev/scriptdeck/internal/config"
	clierrors "github.com/musher-dev/scriptdeck/internal/errors"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/journal"
	"github.com/musher-dev/scriptdeck/internal/launcher"
	"github.com/musher-dev/scriptdeck/internal/observability"
	"github.com/musher-dev/scriptdeck/internal/output"
	"github.com/musher-dev/scriptdeck/internal/runner"
	"github.com/musher-dev/scriptdeck/internal/terminal"
)

// shutdownTimeout bounds how long an interrupted run may take to exit.
const shutdownTimeout = 10 * time.Second

type runFlags struct {
	cols        int
	rows        int
	timeout     time.Duration
	detachInput bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <script-id>",
		Short: "Run a registered script",
		Long: `Run a registered script under a pseudo-terminal, streaming its output live and
forwarding keyboard input. The run's outcome and transcript are recorded, and
the command exits with the script's exit code.`,
		Example: `  scriptdeck run 3
  scriptdeck run 3 --timeout 10m
  scriptdeck run 3 --detach-input --cols 200 > backup.log`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("script", args[0])
			if err != nil {
				return err
			}

			if flags.cols < 0 || flags.cols > math.MaxUint16 || flags.rows < 0 || flags.rows > math.MaxUint16 {
				return clierrors.New(clierrors.ExitUsage, "--cols and --rows must be between 0 and 65535")
			}

			if flags.timeout < 0 {
				return clierrors.New(clierrors.ExitUsage, "--timeout must not be negative")
			}

			if !flags.detachInput && !terminal.StdinIsTerminal() {
				return clierrors.NotATerminal()
			}

			return runScript(cmd.Context(), id, flags)
		},
	}

	cmd.Flags().IntVar(&flags.cols, "cols", 0, "Terminal width for the script (default: current terminal or runner.cols)")
	cmd.Flags().IntVar(&flags.rows, "rows", 0, "Terminal height for the script (default: current terminal or runner.rows)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "Cancel the run after this long (example: 10m)")
	cmd.Flags().BoolVar(&flags.detachInput, "detach-input", false, "Do not forward keyboard input to the script")

	return cmd
}

func runScript(ctx context.Context, scriptID int64, flags runFlags) error {
	out := output.FromContext(ctx)
	logger := observability.FromContext(ctx)

	cfg, store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer warnOnClose(logger, "history store", store.Close)

	lock, err := acquireEngine(ctx, logger, cfg, store)
	if err != nil {
		return err
	}
	defer warnOnClose(logger, "engine lock", lock.Release)

	if _, err := lookupScript(ctx, store, scriptID); err != nil {
		return err
	}

	finished := make(chan runner.FinishedEvent, 1)
	sinks := runner.MultiSink{}

	// The journal goes first so its session is closed before the command
	// sees the run finish.
	if rec, err := journal.NewRecorder(journal.Options{Dir: cfg.JournalDir(), Logger: logger}); err != nil {
		out.Warning("Raw output will not be journaled: %v", err)
	} else {
		defer warnOnClose(logger, "output journal", rec.Close)

		sinks = append(sinks, rec)
	}

	sinks = append(sinks, runner.SinkFuncs{
		OnOutput: func(ev runner.OutputEvent) {
			if ev.Stream == bridge.StreamStderr {
				_, _ = out.Err.Write(ev.Data)
				return
			}

			out.Raw(ev.Data)
		},
		OnFinished: func(ev runner.FinishedEvent) {
			finished <- ev
		},
	})

	engine, err := runner.New(runner.Options{
		Scripts:      store,
		Runs:         store,
		Launcher:     launcher.New(launcher.Options{Interpreters: cfg.Interpreters(), Logger: logger}),
		Sink:         sinks,
		Logger:       logger,
		ForcePipes:   cfg.ForcePipes(),
		DefaultSize:  defaultSize(cfg, !flags.detachInput),
		DrainGrace:   cfg.DrainGrace(),
		DrainTimeout: cfg.DrainTimeout(),
	})
	if err != nil {
		return clierrors.Wrap(clierrors.ExitGeneral, "Failed to create runner", err)
	}

	if !flags.detachInput {
		restore, err := terminal.MakeRaw(os.Stdin)
		if err != nil {
			if errors.Is(err, terminal.ErrNotTerminal) {
				return clierrors.NotATerminal()
			}

			return clierrors.Wrap(clierrors.ExitGeneral, "Failed to put the terminal in raw mode", err)
		}
		defer restore()
	}

	runID, err := engine.Start(ctx, scriptID, runner.StartOptions{
		Cols:    uint16(flags.cols), //nolint:gosec // bounds checked by the caller
		Rows:    uint16(flags.rows), //nolint:gosec // bounds checked by the caller
		Timeout: flags.timeout,
	})
	if err != nil {
		return startError(scriptID, err)
	}

	out.Debug("run %d started", runID)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !flags.detachInput {
		go forwardInput(logger, engine, scriptID, os.Stdin)
		go watchResize(sigCtx, engine, scriptID, os.Stdout)
	}

	var ev runner.FinishedEvent

	select {
	case ev = <-finished:
	case <-sigCtx.Done():
		ev, err = interrupt(engine, finished)
		if err != nil {
			return err
		}
	}

	out.Debug("run %d finished: %s (exit %d)", ev.RunID, ev.Status, ev.ExitCode)

	return finishError(ev)
}

// acquireEngine takes the engine lock and, when this is the only process
// running scripts, repairs records left running by a crash.
func acquireEngine(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *history.Store) (*history.EngineLock, error) {
	lock, sole, err := history.AcquireEngineLock(cfg.DatabasePath())
	if err != nil {
		return nil, clierrors.DatabaseFailed(err)
	}

	if !sole {
		return lock, nil
	}

	n, err := store.ReconcileOrphans(ctx)
	if err != nil {
		logger.Warn(
			"failed to reconcile orphaned runs",
			slog.String("event.type", "run.reconcile_failed"),
			slog.String("error", err.Error()),
		)

		return lock, nil
	}

	if n > 0 {
		logger.Info(
			"reconciled orphaned runs",
			slog.String("event.type", "run.reconcile"),
			slog.Int64("run.count", n),
		)
	}

	return lock, nil
}

// interrupt shuts the engine down after a signal and waits for the run's
// completion event.
func interrupt(engine *runner.Engine, finished <-chan runner.FinishedEvent) (runner.FinishedEvent, error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := engine.Shutdown(ctx); err != nil {
		return runner.FinishedEvent{}, clierrors.Wrap(clierrors.ExitCancelled, "Script did not stop after cancellation", err)
	}

	select {
	case ev := <-finished:
		return ev, nil
	case <-ctx.Done():
		return runner.FinishedEvent{}, clierrors.Wrap(clierrors.ExitCancelled, "Script did not stop after cancellation", ctx.Err())
	}
}

// defaultSize picks the size for runs that do not set one: the attached
// terminal when there is one, otherwise the configured size.
func defaultSize(cfg *config.Config, attached bool) bridge.Size {
	cols, rows := cfg.TerminalSize()

	if attached {
		if c, r, err := terminal.Size(os.Stdout); err == nil && c > 0 && r > 0 {
			cols, rows = c, r
		}
	}

	return bridge.Size{Cols: clampDim(cols), Rows: clampDim(rows)}
}

func clampDim(n int) uint16 {
	switch {
	case n <= 0:
		return 0
	case n > math.MaxUint16:
		return math.MaxUint16
	default:
		return uint16(n)
	}
}

// forwardInput copies keyboard input to the running script until either
// side ends.
func forwardInput(logger *slog.Logger, engine *runner.Engine, scriptID int64, in io.Reader) {
	buf := make([]byte, 4096)

	for {
		n, err := in.Read(buf)
		if n > 0 {
			if werr := engine.WriteInput(scriptID, buf[:n]); werr != nil {
				if !errors.Is(werr, runner.ErrNotRunning) {
					logger.Debug("input forwarding stopped", slog.String("error", werr.Error()))
				}

				return
			}
		}

		if err != nil {
			return
		}
	}
}

// resizeTo pushes the current size of f to the running script.
func resizeTo(engine *runner.Engine, scriptID int64, f *os.File) error {
	cols, rows, err := terminal.Size(f)
	if err != nil {
		return fmt.Errorf("read terminal size: %w", err)
	}

	err = engine.Resize(scriptID, clampDim(cols), clampDim(rows))
	if errors.Is(err, bridge.ErrNoTerminal) || errors.Is(err, runner.ErrNotRunning) {
		return nil
	}

	return err
}
