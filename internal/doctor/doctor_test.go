package doctor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/musher-dev/scriptdeck/internal/config"
	"github.com/musher-dev/scriptdeck/internal/launcher"
)

func isolatedConfig(t *testing.T) *config.Config {
	t.Helper()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("SCRIPTDECK_DATABASE_PATH", "")
	t.Setenv("SCRIPTDECK_HISTORY_DIR", "")

	return config.Load()
}

func byName(results []Result) map[string]Result {
	out := make(map[string]Result, len(results))
	for _, r := range results {
		out[r.Name] = r
	}

	return out
}

func TestRunner_HealthyInstall(t *testing.T) {
	cfg := isolatedConfig(t)

	l := launcher.New(launcher.Options{
		LookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
	})

	results := New(Options{Config: cfg, Launcher: l, ProbePTY: func() error { return nil }}).Run(t.Context())
	got := byName(results)

	for _, name := range []string{"Config", "Database", "Journal", "Terminal", "Interpreters", "Elevation"} {
		if got[name].Status != StatusPass {
			t.Errorf("%s = %+v, want pass", name, got[name])
		}
	}

	if !strings.Contains(got["Database"].Message, "(0 scripts)") {
		t.Errorf("Database message = %q", got["Database"].Message)
	}

	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		t.Errorf("database not created: %v", err)
	}
}

func TestRunner_Degraded(t *testing.T) {
	cfg := isolatedConfig(t)

	l := launcher.New(launcher.Options{
		LookPath: func(name string) (string, error) {
			if name == "bash" {
				return "/bin/bash", nil
			}

			return "", errors.New("not found")
		},
	})

	results := New(Options{
		Config:   cfg,
		Launcher: l,
		ProbePTY: func() error { return errors.New("no ptys") },
	}).Run(t.Context())
	got := byName(results)

	for _, name := range []string{"Terminal", "Interpreters", "Elevation"} {
		if got[name].Status != StatusWarn {
			t.Errorf("%s = %+v, want warn", name, got[name])
		}
	}

	if !strings.Contains(got["Interpreters"].Detail, "Missing:") {
		t.Errorf("Interpreters detail = %q", got["Interpreters"].Detail)
	}
}

func TestCheckDatabase_Unusable(t *testing.T) {
	// A directory where the database file should be cannot be opened.
	dir := t.TempDir()
	path := filepath.Join(dir, "db")

	if err := os.Mkdir(path, 0o700); err != nil {
		t.Fatal(err)
	}

	if r := checkDatabase(t.Context(), path); r.Status != StatusFail || r.Detail == "" {
		t.Fatalf("checkDatabase() = %+v, want fail with detail", r)
	}
}

func TestCheckJournal_NotWritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if r := checkJournal(filepath.Join(file, "journal")); r.Status != StatusFail {
		t.Fatalf("checkJournal() = %+v, want fail", r)
	}
}

func TestSummary(t *testing.T) {
	r := &Runner{}
	r.AddCheck("a", func(context.Context) Result { return Result{Status: StatusPass} })
	r.AddCheck("b", func(context.Context) Result { return Result{Status: StatusWarn} })
	r.AddCheck("c", func(context.Context) Result { return Result{Status: StatusFail} })
	r.AddCheck("d", func(context.Context) Result { return Result{Status: StatusPass} })

	results := r.Run(t.Context())
	if results[2].Name != "c" {
		t.Fatalf("Run() did not name results: %+v", results)
	}

	passed, failed, warnings := Summary(results)
	if passed != 2 || failed != 1 || warnings != 1 {
		t.Fatalf("Summary() = %d, %d, %d", passed, failed, warnings)
	}
}

func TestStatus_Text(t *testing.T) {
	tests := []struct {
		status Status
		symbol string
		name   string
	}{
		{StatusPass, checkMark, "pass"},
		{StatusWarn, warningMark, "warn"},
		{StatusFail, xMark, "fail"},
		{Status(9), "?", "unknown"},
	}

	for _, tt := range tests {
		if tt.status.Symbol() != tt.symbol || tt.status.String() != tt.name {
			t.Errorf("Status(%d) = %q/%q", tt.status, tt.status.Symbol(), tt.status.String())
		}
	}
}
