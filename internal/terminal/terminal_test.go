package terminal

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestInfo_Capabilities(t *testing.T) {
	tests := []struct {
		name        string
		info        Info
		wantColor   bool
		wantSpinner bool
	}{
		{"tty", Info{IsTTY: true}, true, true},
		{"not a tty", Info{}, false, false},
		{"NO_COLOR", Info{IsTTY: true, NoColor: true}, false, false},
		{"--no-color", Info{IsTTY: true, ForceFlag: true}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.ColorEnabled(); got != tt.wantColor {
				t.Errorf("ColorEnabled() = %v, want %v", got, tt.wantColor)
			}

			if got := tt.info.SpinnersEnabled(); got != tt.wantSpinner {
				t.Errorf("SpinnersEnabled() = %v, want %v", got, tt.wantSpinner)
			}
		})
	}
}

func TestDetect_NoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if info := Detect(); !info.NoColor {
		t.Fatal("Detect() ignored NO_COLOR")
	}
}

func TestDetect_DumbTerminal(t *testing.T) {
	t.Setenv("TERM", "dumb")

	if info := Detect(); !info.NoColor {
		t.Fatal("Detect() should treat TERM=dumb as no-color")
	}
}

func TestMakeRaw_RejectsRegularFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "plain"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := MakeRaw(f); !errors.Is(err, ErrNotTerminal) {
		t.Fatalf("MakeRaw() error = %v, want ErrNotTerminal", err)
	}
}
