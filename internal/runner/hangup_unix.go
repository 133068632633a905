//go:build !windows

package runner

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

func isTerminalHangup(err error) bool {
	return errors.Is(err, unix.EIO) || errors.Is(err, os.ErrClosed)
}
