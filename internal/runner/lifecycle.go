package runner

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/musher-dev/scriptdeck/internal/bridge"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/observability"
)

// coordinate owns one run from spawn to completion: it waits for exit,
// settles the output streams, derives the status, finalizes the record,
// frees the registry slot, and emits Finished, in that order.
func (e *Engine) coordinate(ctx context.Context, logger *slog.Logger, h *Handle, b bridge.Bridge, span trace.Span) {
	defer close(h.done)

	runID := h.RunID()
	transcript := NewTranscript(e.transcriptLimit)

	var pumps errgroup.Group

	for _, stream := range b.Streams() {
		dec := transcript.Stream()

		pumps.Go(func() error {
			return pump(stream, h.scriptID, runID, e.sink, dec, e.now)
		})
	}

	pumpsDone := make(chan error, 1)

	go func() {
		pumpsDone <- pumps.Wait()
	}()

	code, waitErr := b.Wait()

	// Whatever was requested before this point decides the status.
	cancelled := e.cancels.Consume(h.scriptID, runID)
	h.stopTimer()

	if waitErr != nil {
		logger.Warn(
			"wait for script failed",
			slog.String("event.type", "run.wait_failed"),
			slog.String("error", waitErr.Error()),
		)
	}

	readErr := e.drain(logger, b, pumpsDone)
	if readErr != nil && !isClosedRead(readErr) {
		logger.Debug(
			"output stream ended with error",
			slog.String("event.type", "run.read_error"),
			slog.String("error", readErr.Error()),
		)
	}

	status := deriveStatus(code, cancelled)

	h.finalize.Do(func() {
		err := e.runs.FinalizeRun(ctx, runID, history.Finalization{
			FinishedAt: e.now(),
			ExitCode:   code,
			Output:     transcript.String(),
			Status:     status,
		})
		if err != nil {
			logger.Error(
				"failed to finalize run record",
				slog.String("event.type", "run.finalize_failed"),
				slog.String("error", err.Error()),
			)

			return
		}

		logger.Info(
			"run finished",
			slog.String("event.type", "run.finalize"),
			slog.String("run.status", string(status)),
			slog.Int("run.exit_code", code),
			slog.Duration("run.duration", e.now().Sub(h.startedAt)),
			slog.Bool("transcript.truncated", transcript.Truncated()),
		)
	})

	e.registry.CompareAndRemove(h.scriptID, h)
	e.cancels.Discard(h.scriptID, runID)

	observability.EndRunSpan(span, string(status), code)

	e.sink.Finished(FinishedEvent{
		ScriptID: h.scriptID,
		RunID:    runID,
		ExitCode: code,
		Status:   status,
		TimedOut: cancelled && h.timedOut.Load(),
	})
}

// drain settles the output streams after exit and closes the host side.
// Channels that report end-of-stream get DrainTimeout to do so; channels
// that never will get DrainGrace. The pumps are always joined.
func (e *Engine) drain(logger *slog.Logger, b bridge.Bridge, pumpsDone <-chan error) error {
	wait := e.drainTimeout
	if !b.ExitEOF() {
		wait = e.drainGrace
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-pumpsDone:
		_ = b.Close()
		return err
	case <-timer.C:
	}

	if b.ExitEOF() {
		logger.Warn(
			"output did not end after exit, closing",
			slog.String("event.type", "run.drain_forced"),
			slog.Duration("drain.timeout", wait),
		)
	}

	_ = b.Close()

	return <-pumpsDone
}

func deriveStatus(code int, cancelled bool) history.Status {
	switch {
	case cancelled:
		return history.StatusCancelled
	case code == 0:
		return history.StatusSuccess
	default:
		return history.StatusError
	}
}

// isClosedRead reports read errors that only mean the host side went away,
// such as EIO from a terminal whose child exited.
func isClosedRead(err error) bool {
	return errors.Is(err, bridge.ErrClosed) || isTerminalHangup(err)
}
