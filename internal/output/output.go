// Package output provides CLI output handling for scriptdeck commands.
//
// A Writer wraps stdout/stderr with JSON and quiet modes, colored status
// lines with TTY detection, spinners for slow operations, and column
// tables sized by display width.
package output

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/musher-dev/scriptdeck/internal/terminal"
)

type contextKey struct{}

// Writer handles CLI output with multiple modes.
type Writer struct {
	Out      io.Writer
	Err      io.Writer
	JSON     bool
	Quiet    bool
	Verbose  bool
	terminal *terminal.Info

	successColor *color.Color
	errorColor   *color.Color
	warningColor *color.Color
	infoColor    *color.Color
	mutedColor   *color.Color
	headerColor  *color.Color
}

// Default returns a Writer configured for stdout/stderr.
func Default() *Writer {
	return newWriter(os.Stdout, os.Stderr, terminal.Detect())
}

// NewWriter creates a Writer with custom writers and terminal info.
func NewWriter(out, err io.Writer, term *terminal.Info) *Writer {
	return newWriter(out, err, term)
}

func newWriter(out, err io.Writer, term *terminal.Info) *Writer {
	w := &Writer{
		Out:          out,
		Err:          err,
		terminal:     term,
		successColor: color.New(color.FgGreen),
		errorColor:   color.New(color.FgRed),
		warningColor: color.New(color.FgYellow),
		infoColor:    color.New(color.FgCyan),
		mutedColor:   color.New(color.FgHiBlack),
		headerColor:  color.New(color.Bold),
	}

	if !term.ColorEnabled() {
		color.NoColor = true
	}

	return w
}

// WithContext stores the Writer in the context.
func (w *Writer) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext retrieves the Writer from context, or returns Default().
func FromContext(ctx context.Context) *Writer {
	if w, ok := ctx.Value(contextKey{}).(*Writer); ok {
		return w
	}

	return Default()
}

// Terminal returns the terminal info.
func (w *Writer) Terminal() *terminal.Info {
	return w.terminal
}

// SetNoColor disables colored output.
func (w *Writer) SetNoColor(disabled bool) {
	w.terminal.ForceFlag = disabled
	if disabled {
		color.NoColor = true
	}
}

// Print writes to stdout unless quiet.
func (w *Writer) Print(format string, args ...any) {
	if !w.Quiet {
		fmt.Fprintf(w.Out, format, args...)
	}
}

// Println writes a line to stdout unless quiet.
func (w *Writer) Println(args ...any) {
	if !w.Quiet {
		fmt.Fprintln(w.Out, args...)
	}
}

// PrintJSON outputs structured data as indented JSON.
func (w *Writer) PrintJSON(v any) error {
	enc := json.NewEncoder(w.Out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// Error writes to stderr.
func (w *Writer) Error(format string, args ...any) {
	fmt.Fprintf(w.Err, format, args...)
}

// Errorln writes a line to stderr.
func (w *Writer) Errorln(args ...any) {
	fmt.Fprintln(w.Err, args...)
}

// Write implements io.Writer, writing to Out unless quiet.
func (w *Writer) Write(p []byte) (int, error) {
	if w.Quiet {
		return len(p), nil
	}

	return w.Out.Write(p)
}

// Raw writes script output to Out byte for byte. Quiet mode does not
// apply: script output is the payload, not decoration.
func (w *Writer) Raw(p []byte) {
	_, _ = w.Out.Write(p)
}

// Debug writes to stderr only in verbose mode.
func (w *Writer) Debug(format string, args ...any) {
	if w.Verbose {
		w.mutedColor.Fprintf(w.Err, "[debug] "+format+"\n", args...)
	}
}

func (w *Writer) writeStatus(writer io.Writer, tone *color.Color, prefix, message string) {
	if w.terminal.ColorEnabled() {
		tone.Fprint(writer, prefix+" ")
		fmt.Fprintln(writer, message)

		return
	}

	fmt.Fprintln(writer, prefix+" "+message)
}

// Success writes a success message with a checkmark.
func (w *Writer) Success(format string, args ...any) {
	if w.Quiet {
		return
	}

	w.writeStatus(w.Out, w.successColor, CheckMark, fmt.Sprintf(format, args...))
}

// Failure writes an error message with an X mark to stderr.
func (w *Writer) Failure(format string, args ...any) {
	w.writeStatus(w.Err, w.errorColor, XMark, fmt.Sprintf(format, args...))
}

// Warning writes a warning message.
func (w *Writer) Warning(format string, args ...any) {
	if w.Quiet {
		return
	}

	w.writeStatus(w.Out, w.warningColor, WarningMark, fmt.Sprintf(format, args...))
}

// Info writes an info message.
func (w *Writer) Info(format string, args ...any) {
	if w.Quiet {
		return
	}

	w.writeStatus(w.Out, w.infoColor, InfoMark, fmt.Sprintf(format, args...))
}

// Notice writes an informational line to stderr, keeping stdout free for
// script output.
func (w *Writer) Notice(format string, args ...any) {
	if w.Quiet {
		return
	}

	w.writeStatus(w.Err, w.infoColor, InfoMark, fmt.Sprintf(format, args...))
}

// Muted writes gray text.
func (w *Writer) Muted(format string, args ...any) {
	if w.Quiet {
		return
	}

	msg := fmt.Sprintf(format, args...)
	if w.terminal.ColorEnabled() {
		w.mutedColor.Fprintln(w.Out, msg)
		return
	}

	fmt.Fprintln(w.Out, msg)
}

// RunStatus returns a run status label, colored by outcome.
func (w *Writer) RunStatus(status string) string {
	if !w.terminal.ColorEnabled() {
		return status
	}

	switch status {
	case "success":
		return w.successColor.Sprint(status)
	case "error":
		return w.errorColor.Sprint(status)
	case "cancelled":
		return w.warningColor.Sprint(status)
	case "running":
		return w.infoColor.Sprint(status)
	default:
		return status
	}
}

// Status symbols
const (
	CheckMark   = "\u2713" // ✓
	XMark       = "\u2717" // ✗
	WarningMark = "\u26A0" // ⚠
	InfoMark    = "\u2139" // ℹ
)

// FormatDuration renders a run duration for tables.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return d.Truncate(time.Second).String()
	}
}

// Spinner creates a spinner for long operations. It degrades to plain
// text when spinners are disabled (non-TTY or quiet mode).
func (w *Writer) Spinner(message string) *Spinner {
	if w.Quiet || !w.terminal.SpinnersEnabled() {
		return &Spinner{disabled: true, message: message, writer: w}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Writer = w.Err
	s.Suffix = " " + message

	return &Spinner{
		spinner: s,
		message: message,
		writer:  w,
	}
}

// Spinner wraps briandowns/spinner with graceful fallback.
type Spinner struct {
	spinner  *spinner.Spinner
	message  string
	writer   *Writer
	disabled bool
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	if s.disabled {
		s.writer.Print("%s... ", s.message)
		return
	}

	s.spinner.Start()
}

// Stop stops the spinner animation.
func (s *Spinner) Stop() {
	if !s.disabled {
		s.spinner.Stop()
	}
}

// StopWithSuccess stops the spinner and shows a success message.
func (s *Spinner) StopWithSuccess(message string) {
	s.stop("done")

	if message != "" {
		s.writer.Success("%s", message)
	}
}

// StopWithFailure stops the spinner and shows a failure message.
func (s *Spinner) StopWithFailure(message string) {
	s.stop("failed")

	if message != "" {
		s.writer.Failure("%s", message)
	}
}

func (s *Spinner) stop(plain string) {
	if s.disabled {
		s.writer.Println(plain)
		return
	}

	s.spinner.Stop()
}

// UpdateMessage changes the spinner message.
func (s *Spinner) UpdateMessage(message string) {
	s.message = message
	if !s.disabled {
		s.spinner.Suffix = " " + message
	}
}
