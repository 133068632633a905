//go:build !windows

package bridge

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/musher-dev/scriptdeck/internal/launcher"
)

type ptyBridge struct {
	cmd  *exec.Cmd
	ptmx *os.File
	pgid int

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex
	closed bool
}

func openPTY(spec *launcher.Spec, size Size) (Bridge, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errNoPTY, err)
	}

	// The child keeps its own copy of the slave; ours must go so EOF reaches
	// the master once the child exits.
	defer func() { _ = tty.Close() }()

	if err := pty.Setsize(ptmx, &pty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
		_ = ptmx.Close()
		return nil, fmt.Errorf("%w: set size: %w", errNoPTY, err)
	}

	cmd := command(spec)
	cmd.Stdin = tty
	cmd.Stdout = tty
	cmd.Stderr = tty
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true}

	if err := cmd.Start(); err != nil {
		_ = ptmx.Close()
		return nil, startError(cmd, err)
	}

	b := &ptyBridge{cmd: cmd, ptmx: ptmx}
	if pgid, pgErr := unix.Getpgid(cmd.Process.Pid); pgErr == nil {
		b.pgid = pgid
	}

	return b, nil
}

func (b *ptyBridge) Pid() int { return b.cmd.Process.Pid }

func (b *ptyBridge) Mode() string { return "pty" }

func (b *ptyBridge) Streams() []Stream {
	return []Stream{{Name: StreamPTY, Reader: b.ptmx}}
}

func (b *ptyBridge) Write(p []byte) (int, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if b.isClosed() {
		return 0, ErrClosed
	}

	n, err := b.ptmx.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to pty: %w", err)
	}

	return n, nil
}

func (b *ptyBridge) Resize(size Size) error {
	if b.isClosed() {
		return ErrClosed
	}

	size = size.withDefaults()

	if err := pty.Setsize(b.ptmx, &pty.Winsize{Cols: size.Cols, Rows: size.Rows}); err != nil {
		return fmt.Errorf("resize pty: %w", err)
	}

	return nil
}

func (b *ptyBridge) Terminate() error {
	return terminateTree(b.Pid(), b.pgid)
}

func (b *ptyBridge) Wait() (int, error) {
	return exitCode(b.cmd, b.cmd.Wait())
}

func (b *ptyBridge) ExitEOF() bool { return true }

func (b *ptyBridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.closeErr = b.ptmx.Close()
	})

	return b.closeErr
}

func (b *ptyBridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// ProbePTY allocates and releases a terminal pair, reporting whether runs
// on this host can get one.
func ProbePTY() error {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return fmt.Errorf("%w: %w", errNoPTY, err)
	}

	_ = tty.Close()

	return ptmx.Close()
}
