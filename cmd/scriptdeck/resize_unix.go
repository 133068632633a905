//go:build unix

package main

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"github.com/musher-dev/scriptdeck/internal/runner"
)

// watchResize follows SIGWINCH until ctx ends or the run finishes.
func watchResize(ctx context.Context, engine *runner.Engine, scriptID int64, f *os.File) {
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, unix.SIGWINCH)
	defer signal.Stop(winch)

	done := engine.Done(scriptID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-winch:
			_ = resizeTo(engine, scriptID, f)
		}
	}
}
