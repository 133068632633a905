package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/musher-dev/scriptdeck/internal/bridge"
	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/launcher"
)

const waitTimeout = 5 * time.Second

// timeline records the order of observable side effects across fakes.
type timeline struct {
	mu     sync.Mutex
	events []string
}

func (tl *timeline) add(format string, args ...any) {
	tl.mu.Lock()
	tl.events = append(tl.events, fmt.Sprintf(format, args...))
	tl.mu.Unlock()
}

func (tl *timeline) snapshot() []string {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return append([]string(nil), tl.events...)
}

type fakeStore struct {
	mu sync.Mutex
	tl *timeline

	scripts   map[int64]*history.Script
	runs      map[int64]*history.RunRecord
	nextRun   int64
	finalizes map[int64]int

	createErr   error
	finalizeErr error
}

func newFakeStore(tl *timeline, scripts ...*history.Script) *fakeStore {
	s := &fakeStore{
		tl:        tl,
		scripts:   make(map[int64]*history.Script),
		runs:      make(map[int64]*history.RunRecord),
		finalizes: make(map[int64]int),
	}

	for _, script := range scripts {
		s.scripts[script.ID] = script
	}

	return s
}

func (s *fakeStore) GetScript(_ context.Context, id int64) (*history.Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	script, ok := s.scripts[id]
	if !ok {
		return nil, history.ErrScriptNotFound
	}

	return script, nil
}

func (s *fakeStore) CreateRun(_ context.Context, scriptID int64, startedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return 0, s.createErr
	}

	s.nextRun++
	s.runs[s.nextRun] = &history.RunRecord{
		ID:        s.nextRun,
		ScriptID:  scriptID,
		StartedAt: startedAt,
		Status:    history.StatusRunning,
	}

	return s.nextRun, nil
}

func (s *fakeStore) FinalizeRun(_ context.Context, runID int64, fin history.Finalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finalizes[runID]++
	s.tl.add("finalize %d %s", runID, fin.Status)

	if s.finalizeErr != nil {
		return s.finalizeErr
	}

	run, ok := s.runs[runID]
	if !ok {
		return history.ErrRunNotFound
	}

	if run.Status != history.StatusRunning {
		return history.ErrRunFinalized
	}

	finished := fin.FinishedAt
	code := fin.ExitCode
	run.FinishedAt = &finished
	run.ExitCode = &code
	run.Output = fin.Output
	run.Status = fin.Status

	return nil
}

func (s *fakeStore) run(id int64) history.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run, ok := s.runs[id]; ok {
		return *run
	}

	return history.RunRecord{}
}

func (s *fakeStore) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.runs)
}

func (s *fakeStore) finalizeCount(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finalizes[id]
}

// recordingSink collects events and signals each Finished.
type recordingSink struct {
	tl *timeline

	mu       sync.Mutex
	output   map[int64]*bytes.Buffer
	streams  map[string]int
	finished []FinishedEvent

	finishedCh chan FinishedEvent
}

func newRecordingSink(tl *timeline) *recordingSink {
	return &recordingSink{
		tl:         tl,
		output:     make(map[int64]*bytes.Buffer),
		streams:    make(map[string]int),
		finishedCh: make(chan FinishedEvent, 16),
	}
}

func (s *recordingSink) Output(ev OutputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.output[ev.RunID]
	if !ok {
		buf = &bytes.Buffer{}
		s.output[ev.RunID] = buf
	}

	buf.Write(ev.Data)
	s.streams[ev.Stream]++
}

func (s *recordingSink) Finished(ev FinishedEvent) {
	s.tl.add("finished %d %s", ev.RunID, ev.Status)

	s.mu.Lock()
	s.finished = append(s.finished, ev)
	s.mu.Unlock()

	s.finishedCh <- ev
}

func (s *recordingSink) outputOf(runID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if buf, ok := s.output[runID]; ok {
		return buf.String()
	}

	return ""
}

func (s *recordingSink) finishedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.finished)
}

func (s *recordingSink) waitFinished(t *testing.T) FinishedEvent {
	t.Helper()

	select {
	case ev := <-s.finishedCh:
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for Finished")
		return FinishedEvent{}
	}
}

// fakeBridge is a scripted child. Tests push output with emit and end the
// child with exit; Terminate exits with 143 unless ignoreTerm is set.
type fakeBridge struct {
	mode    string
	exitEOF bool

	ignoreTerm bool
	resizeErr  error

	streams []bridge.Stream
	writers map[string]*io.PipeWriter

	mu         sync.Mutex
	input      bytes.Buffer
	sizes      []bridge.Size
	terminates int
	closed     bool

	exitCh   chan int
	exitOnce sync.Once
	keepOpen bool
}

func newFakeBridge(names ...string) *fakeBridge {
	if len(names) == 0 {
		names = []string{bridge.StreamPTY}
	}

	f := &fakeBridge{
		mode:    "pty",
		exitEOF: true,
		writers: make(map[string]*io.PipeWriter),
		exitCh:  make(chan int, 1),
	}

	for _, name := range names {
		r, w := io.Pipe()
		f.streams = append(f.streams, bridge.Stream{Name: name, Reader: r})
		f.writers[name] = w
	}

	return f
}

func (f *fakeBridge) emit(t *testing.T, stream, data string) {
	t.Helper()

	if _, err := f.writers[stream].Write([]byte(data)); err != nil {
		t.Fatalf("emit %q: %v", stream, err)
	}
}

func (f *fakeBridge) exit(code int) {
	f.exitOnce.Do(func() { f.exitCh <- code })
}

func (f *fakeBridge) Pid() int { return 4242 }

func (f *fakeBridge) Mode() string { return f.mode }

func (f *fakeBridge) Streams() []bridge.Stream { return f.streams }

func (f *fakeBridge) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, bridge.ErrClosed
	}

	return f.input.Write(p)
}

func (f *fakeBridge) Resize(size bridge.Size) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.resizeErr != nil {
		return f.resizeErr
	}

	f.sizes = append(f.sizes, size)

	return nil
}

func (f *fakeBridge) Terminate() error {
	f.mu.Lock()
	f.terminates++
	ignore := f.ignoreTerm
	f.mu.Unlock()

	if !ignore {
		f.exit(143)
	}

	return nil
}

func (f *fakeBridge) Wait() (int, error) {
	code := <-f.exitCh

	if f.exitEOF && !f.keepOpen {
		for _, w := range f.writers {
			_ = w.Close()
		}
	}

	return code, nil
}

func (f *fakeBridge) ExitEOF() bool { return f.exitEOF }

func (f *fakeBridge) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	for _, w := range f.writers {
		_ = w.CloseWithError(bridge.ErrClosed)
	}

	return nil
}

func (f *fakeBridge) inputString() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.input.String()
}

func (f *fakeBridge) terminateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.terminates
}

// stubLauncher returns a fixed spec without touching the filesystem.
type stubLauncher struct {
	err error
}

func (l stubLauncher) Build(path string, elevate bool) (*launcher.Spec, error) {
	if l.err != nil {
		return nil, l.err
	}

	return &launcher.Spec{Program: "/bin/true", Script: path, Elevated: elevate}, nil
}

type harness struct {
	engine *Engine
	store  *fakeStore
	sink   *recordingSink
	tl     *timeline

	mu      sync.Mutex
	bridges []*fakeBridge
	next    func() *fakeBridge
	openErr error
	sizes   []bridge.Size
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()

	tl := &timeline{}
	h := &harness{
		tl:    tl,
		store: newFakeStore(tl, &history.Script{ID: 1, Name: "one", Path: "/s/one.sh"}, &history.Script{ID: 2, Name: "two", Path: "/s/two.sh"}),
		sink:  newRecordingSink(tl),
		next:  func() *fakeBridge { return newFakeBridge() },
	}

	opts.Scripts = h.store
	opts.Runs = h.store
	opts.Sink = h.sink

	if opts.Launcher == nil {
		opts.Launcher = stubLauncher{}
	}

	if opts.DrainGrace == 0 {
		opts.DrainGrace = 20 * time.Millisecond
	}

	if opts.DrainTimeout == 0 {
		opts.DrainTimeout = time.Second
	}

	engine, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	engine.open = func(_ *launcher.Spec, size bridge.Size, _ bridge.Options) (bridge.Bridge, error) {
		h.mu.Lock()
		defer h.mu.Unlock()

		h.sizes = append(h.sizes, size)

		if h.openErr != nil {
			return nil, h.openErr
		}

		b := h.next()
		h.bridges = append(h.bridges, b)

		return b, nil
	}

	h.engine = engine

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()

		_ = engine.Shutdown(ctx)
	})

	return h
}

func (h *harness) start(t *testing.T, scriptID int64, opts StartOptions) (int64, *fakeBridge) {
	t.Helper()

	runID, err := h.engine.Start(t.Context(), scriptID, opts)
	if err != nil {
		t.Fatalf("Start(%d) error = %v", scriptID, err)
	}

	h.mu.Lock()
	b := h.bridges[len(h.bridges)-1]
	h.mu.Unlock()

	return runID, b
}

var errBoom = errors.New("boom")
