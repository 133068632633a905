//go:build !windows

package bridge

import (
	"errors"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

const pipesReportEOF = true

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// terminateTree sends SIGTERM to the process group, falling back to the
// direct child when the group cannot be signalled.
func terminateTree(pid, pgid int) error {
	if pgid > 0 {
		if err := unix.Kill(-pgid, unix.SIGTERM); err == nil || errors.Is(err, unix.ESRCH) {
			return nil
		}
	}

	if pid <= 0 {
		return nil
	}

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}

	return nil
}

func exitCode(cmd *exec.Cmd, waitErr error) (int, error) {
	state := cmd.ProcessState
	if state == nil {
		return -1, waitErr
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}

	return state.ExitCode(), nil
}
