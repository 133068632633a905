package runner

import (
	"strings"
	"sync"
	"testing"
	"unicode/utf8"
)

func TestStreamDecoder(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{
			name:   "plain text",
			chunks: []string{"hello ", "world\n"},
			want:   "hello world\n",
		},
		{
			name:   "color codes removed",
			chunks: []string{"\x1b[32mok\x1b[0m\r\n"},
			want:   "ok\n",
		},
		{
			name:   "escape split across chunks",
			chunks: []string{"a\x1b[3", "1mb\x1b", "]0;title\x07c"},
			want:   "abc",
		},
		{
			name:   "multi-byte rune split across chunks",
			chunks: []string{"caf\xc3", "\xa9 \xe2\x82", "\xac"},
			want:   "café €",
		},
		{
			name:   "invalid byte replaced",
			chunks: []string{"a\xffb"},
			want:   "a�b",
		},
		{
			name:   "truncated prefix then ascii",
			chunks: []string{"x\xe2\x82", "y"},
			want:   "x��y",
		},
		{
			name:   "incomplete tail discarded",
			chunks: []string{"end\xf0\x9f"},
			want:   "end",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTranscript(0)
			dec := tr.Stream()

			for _, chunk := range tt.chunks {
				if n, err := dec.Write([]byte(chunk)); err != nil || n != len(chunk) {
					t.Fatalf("Write() = %d, %v", n, err)
				}
			}

			if got := tr.String(); got != tt.want {
				t.Fatalf("transcript = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStreamDecoder_SplitAnywhere(t *testing.T) {
	input := "\x1b[1;34mblue\x1b[0m ünïcødé \xe2\x9c\x93\r\n\x1b]8;;http://x\x1b\\link\x1b]8;;\x1b\\ done\n"

	whole := NewTranscript(0)
	_, _ = whole.Stream().Write([]byte(input))
	want := whole.String()

	for i := range len(input) + 1 {
		tr := NewTranscript(0)
		dec := tr.Stream()

		_, _ = dec.Write([]byte(input[:i]))
		_, _ = dec.Write([]byte(input[i:]))

		if got := tr.String(); got != want {
			t.Fatalf("split at %d: got %q, want %q", i, got, want)
		}
	}
}

func TestTranscript_LimitOnRuneBoundary(t *testing.T) {
	tr := NewTranscript(10)
	dec := tr.Stream()

	// 9 ASCII bytes leave one byte of room for a two-byte rune.
	_, _ = dec.Write([]byte("123456789é more"))

	if got := tr.String(); got != "123456789" {
		t.Fatalf("transcript = %q", got)
	}

	if !tr.Truncated() {
		t.Fatal("Truncated() = false")
	}

	_, _ = dec.Write([]byte("x"))

	if tr.Len() != 9 {
		t.Fatalf("Len() = %d after limit, want 9", tr.Len())
	}
}

func TestTranscript_DefaultLimit(t *testing.T) {
	tr := NewTranscript(0)
	dec := tr.Stream()

	chunk := []byte(strings.Repeat("ß", 1000))
	for range 40 {
		_, _ = dec.Write(chunk)
	}

	got := tr.String()

	if len(got) > DefaultTranscriptLimit {
		t.Fatalf("Len() = %d, over the limit", len(got))
	}

	if !utf8.ValidString(got) {
		t.Fatal("transcript is not valid UTF-8 after truncation")
	}

	if len(got) < DefaultTranscriptLimit-utf8.UTFMax {
		t.Fatalf("Len() = %d, cut too early", len(got))
	}
}

func TestTranscript_StreamsKeepSeparateState(t *testing.T) {
	tr := NewTranscript(0)
	out := tr.Stream()
	errs := tr.Stream()

	// Half a rune on stdout must not combine with stderr bytes.
	_, _ = out.Write([]byte("\xc3"))
	_, _ = errs.Write([]byte("E"))
	_, _ = out.Write([]byte("\xa9"))

	if got := tr.String(); got != "Eé" {
		t.Fatalf("transcript = %q, want %q", got, "Eé")
	}

	if out.Pending() != 0 || errs.Pending() != 0 {
		t.Fatal("decoders still hold bytes")
	}
}

func TestTranscript_ConcurrentStreams(t *testing.T) {
	tr := NewTranscript(0)

	var wg sync.WaitGroup

	for _, line := range []string{"aaaa\n", "bbbb\n"} {
		dec := tr.Stream()

		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				_, _ = dec.Write([]byte(line))
			}
		}()
	}

	wg.Wait()

	if tr.Len() != 1000 {
		t.Fatalf("Len() = %d, want 1000", tr.Len())
	}
}
