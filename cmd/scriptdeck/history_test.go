package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/musher-dev/scriptdeck/internal/bridge"
	clierrors "github.com/musher-dev/scriptdeck/internal/errors"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/journal"
	"github.com/musher-dev/scriptdeck/internal/runner"
)

const seededOutput = "\x1b[32mok\x1b[0m\n"

// seedRuns registers a script named "seeded" and records n successful runs,
// each with a journal session holding seededOutput.
func seedRuns(t *testing.T, env testEnv, store *history.Store, n int) (int64, []int64) {
	t.Helper()

	script := &history.Script{Name: "seeded", Path: writeScript(t, env.root, "seeded.sh", "echo ok\n")}
	if err := store.CreateScript(t.Context(), script); err != nil {
		t.Fatalf("CreateScript() error = %v", err)
	}

	rec, err := journal.NewRecorder(journal.Options{Dir: env.journalDir})
	if err != nil {
		t.Fatalf("journal.NewRecorder() error = %v", err)
	}

	t.Cleanup(func() { _ = rec.Close() })

	started := time.Now().Add(-time.Hour)
	ids := make([]int64, 0, n)

	for i := range n {
		at := started.Add(time.Duration(i) * time.Minute)

		runID, err := store.CreateRun(t.Context(), script.ID, at)
		if err != nil {
			t.Fatalf("CreateRun() error = %v", err)
		}

		rec.Output(runner.OutputEvent{
			ScriptID: script.ID,
			RunID:    runID,
			Stream:   bridge.StreamStdout,
			Data:     []byte(seededOutput),
			At:       at,
		})

		err = store.FinalizeRun(t.Context(), runID, history.Finalization{
			FinishedAt: at.Add(1500 * time.Millisecond),
			Output:     "ok\n",
			Status:     history.StatusSuccess,
		})
		if err != nil {
			t.Fatalf("FinalizeRun() error = %v", err)
		}

		rec.Finished(runner.FinishedEvent{ScriptID: script.ID, RunID: runID, Status: history.StatusSuccess})

		ids = append(ids, runID)
	}

	return script.ID, ids
}

func TestHistoryList_JSON(t *testing.T) {
	env := isolateEnv(t)
	store := openTestStore(t, env)
	scriptID, runIDs := seedRuns(t, env, store, 3)

	out, buf := testWriter()
	out.JSON = true

	if _, err := executeWith(t, out, buf, newHistoryCmd(), "list", strconv.FormatInt(scriptID, 10), "--limit", "2"); err != nil {
		t.Fatalf("history list error = %v", err)
	}

	var infos []RunInfo
	if err := json.Unmarshal(buf.Bytes(), &infos); err != nil {
		t.Fatalf("history list --json: %v\n%s", err, buf.String())
	}

	if len(infos) != 2 {
		t.Fatalf("history list returned %d runs, want 2", len(infos))
	}

	if infos[0].ID != runIDs[2] || infos[1].ID != runIDs[1] {
		t.Fatalf("history list order = %d, %d; want newest first", infos[0].ID, infos[1].ID)
	}

	if infos[0].Status != history.StatusSuccess || infos[0].ExitCode == nil || *infos[0].ExitCode != 0 {
		t.Errorf("run info = %+v", infos[0])
	}

	if infos[0].DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", infos[0].DurationMS)
	}
}

func TestHistoryList_UnknownScript(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, newHistoryCmd(), "list", "9")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitNotFound {
		t.Fatalf("history list error = %v, want ScriptNotFound", err)
	}
}

func TestHistoryShow(t *testing.T) {
	env := isolateEnv(t)
	store := openTestStore(t, env)
	_, runIDs := seedRuns(t, env, store, 1)

	got, err := execute(t, newHistoryCmd(), "show", strconv.FormatInt(runIDs[0], 10))
	if err != nil {
		t.Fatalf("history show error = %v", err)
	}

	for _, want := range []string{"Run 1 of script 1: success", "Exit:     0", "ok\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("history show output missing %q:\n%s", want, got)
		}
	}

	_, err = execute(t, newHistoryCmd(), "show", "99")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitNotFound {
		t.Fatalf("history show unknown run error = %v, want RunNotFound", err)
	}
}

func TestHistoryReplay(t *testing.T) {
	env := isolateEnv(t)
	store := openTestStore(t, env)
	_, runIDs := seedRuns(t, env, store, 1)
	id := strconv.FormatInt(runIDs[0], 10)

	got, err := execute(t, newHistoryCmd(), "replay", id)
	if err != nil {
		t.Fatalf("history replay error = %v", err)
	}

	if got != seededOutput {
		t.Fatalf("history replay = %q, want %q", got, seededOutput)
	}

	got, err = execute(t, newHistoryCmd(), "replay", id, "--plain")
	if err != nil {
		t.Fatalf("history replay --plain error = %v", err)
	}

	if got != "ok\n" {
		t.Fatalf("history replay --plain = %q, want %q", got, "ok\n")
	}
}

func TestHistoryReplay_NoJournal(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, newHistoryCmd(), "replay", "5")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitNotFound {
		t.Fatalf("history replay error = %v, want ExitNotFound", err)
	}

	if !strings.Contains(cliErr.Message, "No raw output recorded for run 5") {
		t.Fatalf("message = %q", cliErr.Message)
	}
}

func TestHistoryClear_KeepsRunningRecord(t *testing.T) {
	env := isolateEnv(t)
	store := openTestStore(t, env)
	scriptID, runIDs := seedRuns(t, env, store, 2)

	runningID, err := store.CreateRun(t.Context(), scriptID, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	got, err := execute(t, newHistoryCmd(), "clear", strconv.FormatInt(scriptID, 10))
	if err != nil {
		t.Fatalf("history clear error = %v", err)
	}

	if !strings.Contains(got, "Cleared 2 run(s) of script 1") {
		t.Fatalf("history clear output = %q", got)
	}

	for _, id := range runIDs {
		if _, err := store.GetRun(t.Context(), id); err == nil {
			t.Errorf("finished run %d survived clear", id)
		}

		if _, err := journal.FindRun(env.journalDir, id); err == nil {
			t.Errorf("journal for run %d survived clear", id)
		}
	}

	run, err := store.GetRun(t.Context(), runningID)
	if err != nil || run.Status != history.StatusRunning {
		t.Fatalf("running record after clear = %+v, %v", run, err)
	}
}

func TestHistoryPrune(t *testing.T) {
	env := isolateEnv(t)
	store := openTestStore(t, env)
	_, runIDs := seedRuns(t, env, store, 2)

	got, err := execute(t, newHistoryCmd(), "prune", "--older-than", "24h")
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}

	if !strings.Contains(got, "Removed 0 journal session(s)") {
		t.Fatalf("history prune (24h) output = %q", got)
	}

	backdateSessions(t, env.journalDir, time.Hour)

	got, err = execute(t, newHistoryCmd(), "prune", "--older-than", "1m")
	if err != nil {
		t.Fatalf("history prune error = %v", err)
	}

	if !strings.Contains(got, "Removed 2 journal session(s)") {
		t.Fatalf("history prune (1m) output = %q", got)
	}

	entries, _ := os.ReadDir(env.journalDir)
	if len(entries) != 0 {
		t.Fatalf("%d sessions left after prune", len(entries))
	}

	// Records and transcripts outlive their journals.
	if _, err := store.GetRun(t.Context(), runIDs[0]); err != nil {
		t.Fatalf("run record pruned: %v", err)
	}
}

// backdateSessions shifts every session's timestamps back by d.
func backdateSessions(t *testing.T, dir string, d time.Duration) {
	t.Helper()

	sessions, err := journal.ListSessions(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, s := range sessions {
		meta := s.Meta
		meta.StartedAt = meta.StartedAt.Add(-d)

		if meta.ClosedAt != nil {
			closed := meta.ClosedAt.Add(-d)
			meta.ClosedAt = &closed
		}

		data, err := json.Marshal(meta)
		if err != nil {
			t.Fatal(err)
		}

		if err := os.WriteFile(filepath.Join(s.Path, "meta.json"), data, 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func TestHistoryPrune_BadDuration(t *testing.T) {
	isolateEnv(t)

	_, err := execute(t, newHistoryCmd(), "prune", "--older-than", "soon")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitUsage {
		t.Fatalf("history prune error = %v, want ExitUsage", err)
	}
}
