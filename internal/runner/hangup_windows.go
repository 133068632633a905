//go:build windows

package runner

import (
	"errors"
	"os"

	"golang.org/x/sys/windows"
)

func isTerminalHangup(err error) bool {
	return errors.Is(err, windows.ERROR_BROKEN_PIPE) || errors.Is(err, os.ErrClosed)
}
