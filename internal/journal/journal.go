// Package journal keeps the raw output of every run on disk, byte for
// byte, so a run can be replayed later with its colors and cursor moves
// intact.
//
// Each run gets a session directory holding gzip JSONL events, a plain
// JSONL live copy that other processes can follow, and a meta.json.
package journal

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/musher-dev/scriptdeck/internal/history"
	"github.com/musher-dev/scriptdeck/internal/observability"
	"github.com/musher-dev/scriptdeck/internal/paths"
	"github.com/musher-dev/scriptdeck/internal/runner"
)

const (
	eventsFileName     = "events.jsonl.gz"
	eventsLiveFileName = "events.live.jsonl"
	metaFileName       = "meta.json"
)

// Event is one chunk of raw output.
type Event struct {
	Seq    uint64    `json:"seq"`
	TS     time.Time `json:"ts"`
	Stream string    `json:"stream"`
	Raw    []byte    `json:"raw"`
}

// Meta describes one session.
type Meta struct {
	SessionID string         `json:"sessionId"`
	ScriptID  int64          `json:"scriptId"`
	RunID     int64          `json:"runId"`
	StartedAt time.Time      `json:"startedAt"`
	ClosedAt  *time.Time     `json:"closedAt,omitempty"`
	Status    history.Status `json:"status,omitempty"`
	ExitCode  *int           `json:"exitCode,omitempty"`
}

// DefaultDir returns the default journal root.
func DefaultDir() (string, error) {
	return paths.JournalDir()
}

// Options configures a Recorder.
type Options struct {
	Dir    string
	Logger *slog.Logger
}

// Recorder is a runner.Sink that writes one session per run.
type Recorder struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

var _ runner.Sink = (*Recorder)(nil)

// NewRecorder creates a Recorder rooted at opts.Dir (DefaultDir when
// empty).
func NewRecorder(opts Options) (*Recorder, error) {
	dir := opts.Dir
	if dir == "" {
		var err error

		dir, err = DefaultDir()
		if err != nil {
			return nil, fmt.Errorf("resolve journal directory: %w", err)
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	return &Recorder{
		dir:      dir,
		logger:   observability.Component(opts.Logger, "journal"),
		sessions: make(map[int64]*session),
	}, nil
}

// Dir returns the journal root.
func (r *Recorder) Dir() string {
	return r.dir
}

// Output implements runner.Sink.
func (r *Recorder) Output(ev runner.OutputEvent) {
	s, err := r.session(ev.ScriptID, ev.RunID)
	if err != nil {
		r.logger.Warn(
			"failed to open journal session",
			slog.String("event.type", "journal.open_failed"),
			slog.Int64("run.id", ev.RunID),
			slog.String("error", err.Error()),
		)

		return
	}

	if err := s.append(ev.Stream, ev.Data, ev.At); err != nil {
		r.logger.Warn(
			"failed to append journal event",
			slog.String("event.type", "journal.append_failed"),
			slog.Int64("run.id", ev.RunID),
			slog.String("error", err.Error()),
		)
	}
}

// Finished implements runner.Sink. It closes the run's session, creating an
// empty one for runs that produced no output.
func (r *Recorder) Finished(ev runner.FinishedEvent) {
	s, err := r.session(ev.ScriptID, ev.RunID)
	if err == nil {
		err = s.close(ev.Status, ev.ExitCode)
	}

	r.mu.Lock()
	delete(r.sessions, ev.RunID)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn(
			"failed to close journal session",
			slog.String("event.type", "journal.close_failed"),
			slog.Int64("run.id", ev.RunID),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes every open session without marking it finished.
func (r *Recorder) Close() error {
	r.mu.Lock()
	open := r.sessions
	r.sessions = make(map[int64]*session)
	r.mu.Unlock()

	var errs []error
	for _, s := range open {
		if err := s.close("", 0); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (r *Recorder) session(scriptID, runID int64) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[runID]; ok {
		return s, nil
	}

	s, err := openSession(r.dir, uuid.NewString(), scriptID, runID)
	if err != nil {
		return nil, err
	}

	r.sessions[runID] = s

	return s, nil
}

type session struct {
	mu sync.Mutex

	dir  string
	meta Meta
	seq  uint64

	file     *os.File
	gz       *gzip.Writer
	bw       *bufio.Writer
	liveFile *os.File
	liveBW   *bufio.Writer

	closed bool
}

func openSession(root, id string, scriptID, runID int64) (*session, error) {
	if err := validateSessionID(id); err != nil {
		return nil, err
	}

	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, eventsFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // dir is validated and controlled
	if err != nil {
		return nil, fmt.Errorf("open journal events: %w", err)
	}

	liveFile, err := os.OpenFile(filepath.Join(dir, eventsLiveFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // dir is validated and controlled
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open live journal events: %w", err)
	}

	gz := gzip.NewWriter(f)

	s := &session{
		dir: dir,
		meta: Meta{
			SessionID: id,
			ScriptID:  scriptID,
			RunID:     runID,
			StartedAt: time.Now().UTC(),
		},
		file:     f,
		gz:       gz,
		bw:       bufio.NewWriterSize(gz, 64*1024),
		liveFile: liveFile,
		liveBW:   bufio.NewWriterSize(liveFile, 64*1024),
	}

	if err := writeMeta(dir, &s.meta); err != nil {
		_ = s.close("", 0)
		return nil, err
	}

	return s, nil
}

func (s *session) append(stream string, chunk []byte, at time.Time) error {
	if len(chunk) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("journal session is closed")
	}

	if at.IsZero() {
		at = time.Now()
	}

	s.seq++

	line, err := json.Marshal(&Event{
		Seq:    s.seq,
		TS:     at.UTC(),
		Stream: stream,
		Raw:    chunk,
	})
	if err != nil {
		return fmt.Errorf("marshal journal event: %w", err)
	}

	line = append(line, '\n')
	if _, err := s.bw.Write(line); err != nil {
		return fmt.Errorf("encode journal event: %w", err)
	}

	if _, err := s.liveBW.Write(line); err != nil {
		return fmt.Errorf("encode live journal event: %w", err)
	}

	if err := s.liveBW.Flush(); err != nil {
		return fmt.Errorf("flush live journal event: %w", err)
	}

	return nil
}

// close flushes and closes the files. An empty status leaves the outcome
// unset.
func (s *session) close(status history.Status, exitCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	now := time.Now().UTC()
	s.meta.ClosedAt = &now

	if status != "" {
		s.meta.Status = status
		s.meta.ExitCode = &exitCode
	}

	var errs []error
	if err := writeMeta(s.dir, &s.meta); err != nil {
		errs = append(errs, err)
	}

	for _, step := range []func() error{s.bw.Flush, s.liveBW.Flush, s.gz.Close, s.file.Close, s.liveFile.Close} {
		if err := step(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func writeMeta(dir string, meta *Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal journal meta: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, metaFileName), data, 0o600); err != nil {
		return fmt.Errorf("write journal meta: %w", err)
	}

	return nil
}

func validateSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}

	if sessionID != filepath.Base(sessionID) || strings.Contains(sessionID, "..") || strings.ContainsAny(sessionID, `/\`) {
		return errors.New("invalid session id")
	}

	return nil
}
