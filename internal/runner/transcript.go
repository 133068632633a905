package runner

import (
	"sync"
	"unicode/utf8"

	"github.com/musher-dev/scriptdeck/internal/ansi"
)

// DefaultTranscriptLimit caps the persisted transcript, in bytes.
const DefaultTranscriptLimit = 50 * 1024

// Transcript accumulates the escape-free text of a run, bounded to a byte
// limit. Text past the limit is dropped; the cut always lands on a rune
// boundary.
type Transcript struct {
	mu    sync.Mutex
	limit int
	buf   []byte
	full  bool
}

// NewTranscript creates a transcript capped at limit bytes
// (DefaultTranscriptLimit when limit <= 0).
func NewTranscript(limit int) *Transcript {
	if limit <= 0 {
		limit = DefaultTranscriptLimit
	}

	return &Transcript{limit: limit}
}

// Stream returns a decoder that feeds this transcript. Every output stream
// needs its own decoder because escape and UTF-8 state is per stream.
func (t *Transcript) Stream() *StreamDecoder {
	return &StreamDecoder{t: t}
}

// String returns the text accumulated so far. Incomplete trailing
// characters still held by decoders are not included.
func (t *Transcript) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return string(t.buf)
}

// Len returns the transcript size in bytes.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.buf)
}

// Truncated reports whether text was dropped at the limit.
func (t *Transcript) Truncated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.full
}

func (t *Transcript) append(text []byte) {
	if len(text) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.full {
		return
	}

	room := t.limit - len(t.buf)
	if len(text) <= room {
		t.buf = append(t.buf, text...)
		return
	}

	cut := room
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	t.buf = append(t.buf, text[:cut]...)
	t.full = true
}

// StreamDecoder strips escape sequences from raw chunks and decodes them as
// UTF-8. A multi-byte character split across chunks is carried to the next
// chunk; invalid bytes become U+FFFD.
type StreamDecoder struct {
	t       *Transcript
	strip   ansi.Stripper
	pending []byte
	clean   []byte
	text    []byte
}

// Write implements io.Writer. It never fails.
func (d *StreamDecoder) Write(p []byte) (int, error) {
	d.clean = d.strip.Append(d.clean[:0], p)

	data := d.clean
	if len(d.pending) > 0 {
		data = append(d.pending, d.clean...)
		d.pending = nil
	}

	d.text = d.text[:0]

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size <= 1 {
			if !utf8.FullRune(data) {
				d.pending = append([]byte(nil), data...)
				break
			}

			d.text = utf8.AppendRune(d.text, utf8.RuneError)
			data = data[1:]

			continue
		}

		d.text = append(d.text, data[:size]...)
		data = data[size:]
	}

	d.t.append(d.text)

	return len(p), nil
}

// Pending returns the number of bytes held back as an incomplete character.
func (d *StreamDecoder) Pending() int {
	return len(d.pending)
}
