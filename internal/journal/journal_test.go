package journal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/runner"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()

	r, err := NewRecorder(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	t.Cleanup(func() { _ = r.Close() })

	return r
}

func output(runID int64, stream, data string) runner.OutputEvent {
	return runner.OutputEvent{ScriptID: 1, RunID: runID, Stream: stream, Data: []byte(data), At: time.Now()}
}

func TestRecorder_RecordAndReplay(t *testing.T) {
	r := newTestRecorder(t)

	r.Output(output(7, "pty", "\x1b[32mgreen\x1b[0m\r\n"))
	r.Output(output(7, "pty", "\xff raw bytes survive\n"))
	r.Finished(runner.FinishedEvent{ScriptID: 1, RunID: 7, ExitCode: 3, Status: history.StatusError})

	session, err := FindRun(r.Dir(), 7)
	if err != nil {
		t.Fatalf("FindRun() error = %v", err)
	}

	if session.Open() || session.Status != history.StatusError || session.ExitCode == nil || *session.ExitCode != 3 {
		t.Fatalf("session meta = %+v", session.Meta)
	}

	events, err := ReadEvents(r.Dir(), session.SessionID)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("ReadEvents() len = %d, want 2", len(events))
	}

	var raw bytes.Buffer
	for i, ev := range events {
		if ev.Seq != uint64(i+1) || ev.Stream != "pty" {
			t.Fatalf("event %d = %+v", i, ev)
		}

		raw.Write(ev.Raw)
	}

	if want := "\x1b[32mgreen\x1b[0m\r\n\xff raw bytes survive\n"; raw.String() != want {
		t.Fatalf("replayed bytes = %q, want %q", raw.String(), want)
	}
}

func TestRecorder_RunWithoutOutput(t *testing.T) {
	r := newTestRecorder(t)

	r.Finished(runner.FinishedEvent{ScriptID: 2, RunID: 9, Status: history.StatusSuccess})

	session, err := FindRun(r.Dir(), 9)
	if err != nil {
		t.Fatalf("FindRun() error = %v", err)
	}

	events, err := ReadEvents(r.Dir(), session.SessionID)
	if err != nil || len(events) != 0 {
		t.Fatalf("ReadEvents() = %v, %v; want empty", events, err)
	}
}

func TestRecorder_SeparateRuns(t *testing.T) {
	r := newTestRecorder(t)

	r.Output(output(1, "stdout", "one"))
	r.Output(output(2, "stderr", "two"))
	r.Finished(runner.FinishedEvent{RunID: 1, Status: history.StatusSuccess})
	r.Finished(runner.FinishedEvent{RunID: 2, Status: history.StatusCancelled, ExitCode: 143})

	sessions, err := ListSessions(r.Dir())
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}

	if len(sessions) != 2 {
		t.Fatalf("ListSessions() len = %d, want 2", len(sessions))
	}

	for _, runID := range []int64{1, 2} {
		s, err := FindRun(r.Dir(), runID)
		if err != nil {
			t.Fatalf("FindRun(%d) error = %v", runID, err)
		}

		events, err := ReadEvents(r.Dir(), s.SessionID)
		if err != nil || len(events) != 1 {
			t.Fatalf("run %d events = %v, %v", runID, events, err)
		}
	}
}

func TestReadEvents_OpenSessionUsesLiveFile(t *testing.T) {
	r := newTestRecorder(t)

	r.Output(output(4, "pty", "still running\n"))

	session, err := FindRun(r.Dir(), 4)
	if err != nil {
		t.Fatalf("FindRun() error = %v", err)
	}

	if !session.Open() {
		t.Fatal("session should be open before Finished")
	}

	events, err := ReadEvents(r.Dir(), session.SessionID)
	if err != nil {
		t.Fatalf("ReadEvents() error = %v", err)
	}

	if len(events) != 1 || string(events[0].Raw) != "still running\n" {
		t.Fatalf("events = %+v", events)
	}
}

func TestReadLiveEventsFrom_Resumes(t *testing.T) {
	r := newTestRecorder(t)

	r.Output(output(5, "pty", "a"))

	session, err := FindRun(r.Dir(), 5)
	if err != nil {
		t.Fatal(err)
	}

	first, offset, err := ReadLiveEventsFrom(r.Dir(), session.SessionID, 0)
	if err != nil || len(first) != 1 {
		t.Fatalf("first read = %v, %v", first, err)
	}

	r.Output(output(5, "pty", "b"))
	r.Output(output(5, "pty", "c"))

	next, offset2, err := ReadLiveEventsFrom(r.Dir(), session.SessionID, offset)
	if err != nil {
		t.Fatalf("second read error = %v", err)
	}

	if len(next) != 2 || string(next[0].Raw) != "b" || string(next[1].Raw) != "c" {
		t.Fatalf("second read = %+v", next)
	}

	if offset2 <= offset {
		t.Fatalf("offset did not advance: %d -> %d", offset, offset2)
	}

	// A partial trailing line is left for the next poll.
	live := filepath.Join(session.Path, eventsLiveFileName)

	f, err := os.OpenFile(live, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}

	_, _ = f.WriteString(`{"seq":9,"raw":"`)
	_ = f.Close()

	partial, offset3, err := ReadLiveEventsFrom(r.Dir(), session.SessionID, offset2)
	if err != nil || len(partial) != 0 || offset3 != offset2 {
		t.Fatalf("partial read = %v, %d, %v", partial, offset3, err)
	}

	if _, _, err := ReadLiveEventsFrom(r.Dir(), session.SessionID, -1); err == nil {
		t.Fatal("negative offset should fail")
	}
}

func TestFindRun_Missing(t *testing.T) {
	if _, err := FindRun(t.TempDir(), 42); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("FindRun() error = %v, want ErrSessionNotFound", err)
	}

	if sessions, err := ListSessions(filepath.Join(t.TempDir(), "absent")); err != nil || sessions != nil {
		t.Fatalf("ListSessions(absent) = %v, %v", sessions, err)
	}
}

func TestReadEvents_RejectsTraversal(t *testing.T) {
	for _, id := range []string{"", "../x", "a/b", `a\b`} {
		if _, err := ReadEvents(t.TempDir(), id); err == nil {
			t.Errorf("ReadEvents(%q) should fail", id)
		}
	}
}

func TestPruneAndRemoveRuns(t *testing.T) {
	r := newTestRecorder(t)

	for _, runID := range []int64{1, 2, 3} {
		r.Output(output(runID, "pty", "x"))
		r.Finished(runner.FinishedEvent{RunID: runID, Status: history.StatusSuccess})
	}

	removed, err := RemoveRuns(r.Dir(), []int64{2, 99})
	if err != nil || removed != 1 {
		t.Fatalf("RemoveRuns() = %d, %v; want 1", removed, err)
	}

	if _, err := FindRun(r.Dir(), 2); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("run 2 journal still present")
	}

	removed, err = PruneOlderThan(r.Dir(), time.Now().Add(-time.Hour))
	if err != nil || removed != 0 {
		t.Fatalf("PruneOlderThan(past) = %d, %v; want 0", removed, err)
	}

	removed, err = PruneOlderThan(r.Dir(), time.Now().Add(time.Hour))
	if err != nil || removed != 2 {
		t.Fatalf("PruneOlderThan(future) = %d, %v; want 2", removed, err)
	}
}

func TestRecorder_CloseLeavesOutcomeUnset(t *testing.T) {
	dir := t.TempDir()

	r, err := NewRecorder(Options{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}

	r.Output(output(8, "pty", "partial"))

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	session, err := FindRun(dir, 8)
	if err != nil {
		t.Fatal(err)
	}

	if session.Open() || session.Status != "" || session.ExitCode != nil {
		t.Fatalf("meta after Close = %+v", session.Meta)
	}

	events, err := ReadEvents(dir, session.SessionID)
	if err != nil || len(events) != 1 {
		t.Fatalf("events after Close = %v, %v", events, err)
	}
}
