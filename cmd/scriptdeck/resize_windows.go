//go:build windows

package main

import (
	"context"
	"os"
	"time"

	"github.com/musher-dev/scriptdeck/internal/runner"
	"github.com/musher-dev/scriptdeck/internal/terminal"
)

// Windows consoles have no resize signal, so the size is polled.
const resizePollInterval = 500 * time.Millisecond

func watchResize(ctx context.Context, engine *runner.Engine, scriptID int64, f *os.File) {
	ticker := time.NewTicker(resizePollInterval)
	defer ticker.Stop()

	done := engine.Done(scriptID)
	lastCols, lastRows, _ := terminal.Size(f)

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			cols, rows, err := terminal.Size(f)
			if err != nil || (cols == lastCols && rows == lastRows) {
				continue
			}

			lastCols, lastRows = cols, rows
			_ = resizeTo(engine, scriptID, f)
		}
	}
}
