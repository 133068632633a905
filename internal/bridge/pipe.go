package bridge

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/musher-dev/scriptdeck/internal/launcher"
)

type pipeBridge struct {
	cmd *exec.Cmd

	stdin  *os.File
	stdout *os.File
	stderr *os.File

	streams []Stream

	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex
	closed bool
}

func openPipes(spec *launcher.Spec) (Bridge, error) {
	inR, inW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW)
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(inR, inW, outR, outW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd := command(spec)
	cmd.Stdin = inR
	cmd.Stdout = outW
	cmd.Stderr = errW
	setProcessGroup(cmd)

	startErr := cmd.Start()

	// Child-side ends belong to the child now.
	closeAll(inR, outW, errW)

	if startErr != nil {
		closeAll(inW, outR, errR)
		return nil, startError(cmd, startErr)
	}

	return &pipeBridge{
		cmd:    cmd,
		stdin:  inW,
		stdout: outR,
		stderr: errR,
		streams: []Stream{
			{Name: StreamStdout, Reader: newLineReader(outR)},
			{Name: StreamStderr, Reader: newLineReader(errR)},
		},
	}, nil
}

func (b *pipeBridge) Pid() int { return b.cmd.Process.Pid }

func (b *pipeBridge) Mode() string { return "pipe" }

func (b *pipeBridge) Streams() []Stream { return b.streams }

func (b *pipeBridge) Write(p []byte) (int, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if b.isClosed() {
		return 0, ErrClosed
	}

	n, err := b.stdin.Write(p)
	if err != nil {
		return n, fmt.Errorf("write to stdin: %w", err)
	}

	return n, nil
}

func (b *pipeBridge) Resize(Size) error {
	if b.isClosed() {
		return ErrClosed
	}

	return ErrNoTerminal
}

func (b *pipeBridge) Terminate() error {
	return terminateTree(b.Pid(), b.Pid())
}

func (b *pipeBridge) Wait() (int, error) {
	return exitCode(b.cmd, b.cmd.Wait())
}

func (b *pipeBridge) ExitEOF() bool { return pipesReportEOF }

func (b *pipeBridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.closeErr = errors.Join(b.stdin.Close(), b.stdout.Close(), b.stderr.Close())
	})

	return b.closeErr
}

func (b *pipeBridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// lineReader delivers pipe output a line at a time, splitting lines longer
// than ChunkSize.
type lineReader struct {
	br      *bufio.Reader
	pending []byte
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, ChunkSize)}
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(l.pending) > 0 {
		n := copy(p, l.pending)
		l.pending = l.pending[n:]

		return n, nil
	}

	line, err := l.br.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		err = nil
	}

	n := copy(p, line)
	if n < len(line) {
		l.pending = append(l.pending[:0], line[n:]...)
	}

	if n > 0 && err != nil {
		// Deliver the data now; the error comes back on the next call.
		return n, nil
	}

	return n, err
}
