//go:build windows

package bridge

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// Descendants inherit the pipe handles, so end-of-stream can lag the exit
// of the direct child indefinitely.
const pipesReportEOF = false

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP,
	}
}

// terminateTree force-kills the child and all of its descendants.
func terminateTree(pid, _ int) error {
	if pid <= 0 {
		return nil
	}

	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	kill.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}

	if out, err := kill.CombinedOutput(); err != nil {
		return fmt.Errorf("taskkill: %w: %s", err, out)
	}

	return nil
}

func exitCode(cmd *exec.Cmd, waitErr error) (int, error) {
	state := cmd.ProcessState
	if state == nil {
		return -1, waitErr
	}

	return state.ExitCode(), nil
}
