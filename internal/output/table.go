package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const columnGap = "  "

// Table renders left-aligned columns padded by display width, so wide
// characters in script names keep the columns straight.
type Table struct {
	headers []string
	rows    [][]string

	// MaxWidth truncates the last column so rows fit. Zero disables.
	MaxWidth int
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{headers: headers}
}

// AddRow appends a row. Missing cells render empty; extra cells are
// dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Render writes the table to out.
func (t *Table) Render(out io.Writer) error {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}

	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	if err := t.renderRow(out, t.headers, widths); err != nil {
		return err
	}

	for _, row := range t.rows {
		if err := t.renderRow(out, row, widths); err != nil {
			return err
		}
	}

	return nil
}

func (t *Table) renderRow(out io.Writer, cells []string, widths []int) error {
	var b strings.Builder

	last := len(cells) - 1
	for i, cell := range cells {
		if i == last {
			if t.MaxWidth > 0 {
				room := t.MaxWidth - runewidth.StringWidth(b.String())
				if room > 0 && runewidth.StringWidth(cell) > room {
					cell = runewidth.Truncate(cell, room, "…")
				}
			}

			b.WriteString(cell)

			break
		}

		b.WriteString(runewidth.FillRight(cell, widths[i]))
		b.WriteString(columnGap)
	}

	_, err := fmt.Fprintln(out, strings.TrimRight(b.String(), " "))

	return err
}

// Table renders t to stdout, truncating to the terminal width on a TTY.
func (w *Writer) Table(t *Table) error {
	if w.Quiet {
		return nil
	}

	if w.terminal.IsTTY && t.MaxWidth == 0 {
		t.MaxWidth = w.terminal.Width
	}

	return t.Render(w.Out)
}
