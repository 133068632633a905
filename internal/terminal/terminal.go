// Package terminal provides terminal detection and capabilities.
//
// It covers TTY detection, NO_COLOR support, terminal dimensions, and
// raw input mode for forwarding keystrokes to a running script.
package terminal

import (
	"errors"
	"os"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when raw mode is requested on a non-TTY.
var ErrNotTerminal = errors.New("not a terminal")

// Info holds terminal capability information.
type Info struct {
	IsTTY     bool
	NoColor   bool
	Width     int
	Height    int
	ForceFlag bool // Set when --no-color flag is used
}

// Detect returns terminal information for the current environment.
func Detect() *Info {
	stdoutFD := int(os.Stdout.Fd())
	isTTY := term.IsTerminal(stdoutFD)

	width, height := 80, 24 // sensible defaults

	if isTTY {
		if w, h, err := term.GetSize(stdoutFD); err == nil {
			width, height = w, h
		}
	}

	// Check NO_COLOR environment variable (https://no-color.org/)
	_, noColor := os.LookupEnv("NO_COLOR")

	// Treat TERM=dumb as no-color (terminals that don't support escape sequences)
	if os.Getenv("TERM") == "dumb" {
		noColor = true
	}

	return &Info{
		IsTTY:   isTTY,
		NoColor: noColor,
		Width:   width,
		Height:  height,
	}
}

// ColorEnabled returns true if colored output should be used.
func (t *Info) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// InteractiveEnabled returns true if interactive prompts are allowed.
func (t *Info) InteractiveEnabled() bool {
	return t.IsTTY
}

// SpinnersEnabled returns true if spinners should be used.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor
}

// StdinIsTerminal reports whether stdin is a TTY.
func StdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Size returns the current size of the terminal on f.
func Size(f *os.File) (cols, rows int, err error) {
	return term.GetSize(int(f.Fd()))
}

// MakeRaw puts f into raw mode and returns a function restoring the
// previous state. Restore is safe to call more than once.
func MakeRaw(f *os.File) (func(), error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}

	restored := false

	return func() {
		if restored {
			return
		}

		restored = true
		_ = term.Restore(fd, state)
	}, nil
}
