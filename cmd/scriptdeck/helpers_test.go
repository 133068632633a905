package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/output"
	"github.com/musher-dev/scriptdeck/internal/terminal"
)

func testWriter() (*output.Writer, *bytes.Buffer) {
	var buf bytes.Buffer

	term := &terminal.Info{IsTTY: false, NoColor: true, Width: 80, Height: 24}

	return output.NewWriter(&buf, &buf, term), &buf
}

type testEnv struct {
	root       string
	database   string
	journalDir string
}

// isolateEnv points every scriptdeck location at a fresh temp tree.
func isolateEnv(t *testing.T) testEnv {
	t.Helper()

	root := t.TempDir()
	env := testEnv{
		root:       root,
		database:   filepath.Join(root, "data", "scriptdeck.db"),
		journalDir: filepath.Join(root, "journal"),
	}

	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("SCRIPTDECK_DATABASE_PATH", env.database)
	t.Setenv("SCRIPTDECK_HISTORY_DIR", env.journalDir)

	for _, key := range []string{
		"SCRIPTDECK_RUNNER_COLS",
		"SCRIPTDECK_RUNNER_ROWS",
		"SCRIPTDECK_RUNNER_FORCE_PIPES",
		"SCRIPTDECK_HISTORY_LIMIT",
		"SCRIPTDECK_HISTORY_RETENTION",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	return env
}

// execute runs cmd with args against a buffered writer and returns what
// it printed to either stream.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	out, buf := testWriter()

	return executeWith(t, out, buf, cmd, args...)
}

func executeWith(t *testing.T, out *output.Writer, buf *bytes.Buffer, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetContext(out.WithContext(t.Context()))

	err := cmd.Execute()

	return buf.String(), err
}

func openTestStore(t *testing.T, env testEnv) *history.Store {
	t.Helper()

	store, err := history.Open(t.Context(), env.database, history.Options{})
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })

	return store
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o700); err != nil {
		t.Fatal(err)
	}

	return path
}
