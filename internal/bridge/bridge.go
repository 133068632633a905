// Package bridge attaches a spawned script to host-side I/O: a
// pseudo-terminal when one can be allocated, separate pipes otherwise.
package bridge

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"

	"github.com/musher-dev/scriptdeck/internal/launcher"
)

// ChunkSize is the maximum number of bytes delivered by one read.
const ChunkSize = 4096

// Default terminal dimensions.
const (
	DefaultCols = 80
	DefaultRows = 24
)

// Stream names reported by Streams.
const (
	StreamPTY    = "pty"
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

var (
	// ErrClosed is returned by Write after the bridge is closed.
	ErrClosed = errors.New("bridge closed")

	// ErrNoTerminal is returned by Resize when the child has no terminal.
	ErrNoTerminal = errors.New("child has no terminal")

	// errNoPTY marks a terminal allocation failure; Open falls back to pipes.
	errNoPTY = errors.New("pty unavailable")
)

// Size is a terminal size in character cells.
type Size struct {
	Cols uint16
	Rows uint16
}

func (s Size) withDefaults() Size {
	if s.Cols == 0 {
		s.Cols = DefaultCols
	}

	if s.Rows == 0 {
		s.Rows = DefaultRows
	}

	return s
}

// Stream is one named output channel of the child.
type Stream struct {
	Name   string
	Reader io.Reader
}

// Bridge is the host side of a running child.
type Bridge interface {
	// Pid returns the native process id of the direct child.
	Pid() int

	// Mode returns "pty" or "pipe".
	Mode() string

	// Streams returns the output readers to drain.
	Streams() []Stream

	// Write forwards p to the child's input.
	Write(p []byte) (int, error)

	// Resize changes the terminal size. Pipe bridges return ErrNoTerminal.
	Resize(size Size) error

	// Terminate asks the whole process tree to exit.
	Terminate() error

	// Wait blocks until the child exits and returns its exit code. Death by
	// signal maps to 128+signal. A wait failure returns -1 and the error.
	Wait() (int, error)

	// ExitEOF reports whether the output streams reach end-of-stream on
	// their own once the child exits.
	ExitEOF() bool

	// Close releases every host-side handle. Blocked readers return.
	Close() error
}

// Options configures Open.
type Options struct {
	// ForcePipes skips terminal allocation.
	ForcePipes bool

	Logger *slog.Logger
}

// Open spawns spec attached to a terminal of the given size, falling back
// to pipes when no terminal can be allocated.
func Open(spec *launcher.Spec, size Size, opts Options) (Bridge, error) {
	if spec == nil || spec.Program == "" {
		return nil, errors.New("empty spawn spec")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	size = size.withDefaults()

	if !opts.ForcePipes {
		b, err := openPTY(spec, size)
		if err == nil {
			return b, nil
		}

		if !errors.Is(err, errNoPTY) {
			return nil, err
		}

		logger.Debug(
			"terminal unavailable, using pipes",
			slog.String("component", "bridge"),
			slog.String("event.type", "bridge.pipe_fallback"),
			slog.String("error", err.Error()),
		)
	}

	return openPipes(spec)
}

func command(spec *launcher.Spec) *exec.Cmd {
	cmd := exec.Command(spec.Program, spec.Args...) //nolint:gosec // program comes from the launcher table
	cmd.Env = spec.Env
	cmd.Dir = spec.Dir

	return cmd
}

func startError(cmd *exec.Cmd, err error) error {
	return fmt.Errorf("start %s: %w", cmd.Path, err)
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
