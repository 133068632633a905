package ansi

import (
	"strings"
	"testing"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text",
			in:   "hello world",
			want: "hello world",
		},
		{
			name: "single color sequence",
			in:   "\x1b[31mred\x1b[0m text",
			want: "red text",
		},
		{
			name: "multiple sequences",
			in:   "a\x1b[1mb\x1b[0mc\x1b[32md\x1b[0m",
			want: "abcd",
		},
		{
			name: "unicode around ansi",
			in:   "✓ \x1b[36mblue\x1b[0m 你好",
			want: "✓ blue 你好",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Strip(tt.in); got != tt.want {
				t.Fatalf("Strip() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStripper_Append(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello\n", "hello\n"},
		{"sgr", "\x1b[1;31merror\x1b[0m: boom\n", "error: boom\n"},
		{"cursor movement", "50%\x1b[2K\x1b[1G100%\n", "50%100%\n"},
		{"osc title bel", "\x1b]0;my title\x07prompt$ ", "prompt$ "},
		{"osc hyperlink st", "\x1b]8;;https://example.com\x1b\\link\x1b]8;;\x1b\\", "link"},
		{"dcs", "\x1bPq#0;2;0;0;0\x1b\\after", "after"},
		{"charset designation", "\x1b(Bascii", "ascii"},
		{"keypad mode", "\x1b=on\x1b>", "on"},
		{"carriage returns dropped", "line\r\n", "line\n"},
		{"bell and backspace dropped", "a\x07b\x08c", "abc"},
		{"tabs kept", "k\tv\n", "k\tv\n"},
		{"utf8 untouched", "héllo 世界 🚀", "héllo 世界 🚀"},
		{"esc restarts csi", "\x1b[12\x1b[31mx", "x"},
		{"private mode", "\x1b[?25lhidden\x1b[?25h", "hidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Stripper

			got := string(s.Append(nil, []byte(tt.in)))
			if got != tt.want {
				t.Fatalf("Append() = %q, want %q", got, tt.want)
			}

			if s.InSequence() {
				t.Fatal("stripper left mid-sequence after complete input")
			}
		})
	}
}

// Splitting the input at every offset must give the same result as feeding
// it whole.
func TestStripper_SplitInvariant(t *testing.T) {
	inputs := []string{
		"\x1b[1;31merror\x1b[0m: boom\n",
		"\x1b]0;title\x07ok\n",
		"\x1b]8;;https://x\x1b\\a\x1b]8;;\x1b\\",
		"plain 世界\x1b[?25l\n",
	}

	for _, in := range inputs {
		var whole Stripper
		want := string(whole.Append(nil, []byte(in)))

		for i := 0; i <= len(in); i++ {
			var s Stripper

			out := s.Append(nil, []byte(in[:i]))
			out = s.Append(out, []byte(in[i:]))

			if string(out) != want {
				t.Fatalf("split at %d of %q: got %q, want %q", i, in, out, want)
			}
		}
	}
}

func TestStripper_ByteAtATime(t *testing.T) {
	in := strings.Repeat("\x1b[32m✓\x1b[0m done\r\n", 3)

	var s Stripper

	var out []byte
	for i := 0; i < len(in); i++ {
		out = s.Append(out, []byte{in[i]})
	}

	if got, want := string(out), strings.Repeat("✓ done\n", 3); got != want {
		t.Fatalf("byte-at-a-time = %q, want %q", got, want)
	}
}

func TestStripper_Reset(t *testing.T) {
	var s Stripper

	s.Append(nil, []byte("\x1b[31"))
	if !s.InSequence() {
		t.Fatal("expected partial sequence")
	}

	s.Reset()

	if got := string(s.Append(nil, []byte("m"))); got != "m" {
		t.Fatalf("after Reset() = %q, want %q", got, "m")
	}
}
