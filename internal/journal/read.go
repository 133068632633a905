package journal

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrSessionNotFound is returned when no journal exists for a run.
var ErrSessionNotFound = errors.New("journal session not found")

// Session describes one stored session.
type Session struct {
	Meta
	Path string
}

// Open reports whether the session is still being written.
func (s *Session) Open() bool {
	return s.ClosedAt == nil
}

// ListSessions returns sessions sorted by newest start time first. A
// missing root yields no sessions.
func ListSessions(rootDir string) ([]Session, error) {
	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("list journal sessions: %w", err)
	}

	sessions := make([]Session, 0, len(entries))
	for _, ent := range entries {
		if !ent.IsDir() {
			continue
		}

		dir := filepath.Join(rootDir, ent.Name())

		meta, err := readMeta(dir)
		if err != nil {
			continue
		}

		sessions = append(sessions, Session{Meta: *meta, Path: dir})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	return sessions, nil
}

// FindRun returns the session recorded for runID.
func FindRun(rootDir string, runID int64) (*Session, error) {
	sessions, err := ListSessions(rootDir)
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		if sessions[i].RunID == runID {
			return &sessions[i], nil
		}
	}

	return nil, fmt.Errorf("run %d: %w", runID, ErrSessionNotFound)
}

// ReadEvents reads every event of a session. Sessions that were never
// closed are read from the live file, since their compressed stream is
// incomplete.
func ReadEvents(rootDir, sessionID string) (events []Event, err error) {
	dir, err := sessionDir(rootDir, sessionID)
	if err != nil {
		return nil, err
	}

	meta, err := readMeta(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
		}

		return nil, err
	}

	if meta.ClosedAt == nil {
		return readLiveFile(dir)
	}

	file, err := os.Open(filepath.Join(dir, eventsFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return readLiveFile(dir)
		}

		return nil, fmt.Errorf("open journal events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}

		return nil, fmt.Errorf("create gzip reader: %w", err)
	}

	defer func() {
		if closeErr := gzipReader.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(gzipReader)
}

func readLiveFile(dir string) (events []Event, err error) {
	file, err := os.Open(filepath.Join(dir, eventsLiveFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("open live journal events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return scanEvents(file)
}

func scanEvents(r io.Reader) ([]Event, error) {
	var events []Event

	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		trimmed := bytes.TrimSpace(scanner.Bytes())
		if len(trimmed) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(trimmed, &event); err != nil {
			continue
		}

		events = append(events, event)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return events, fmt.Errorf("scan journal events: %w", err)
	}

	return events, nil
}

// ReadLiveEventsFrom reads live events from a byte offset in the
// append-only JSONL file and returns the offset to resume from.
func ReadLiveEventsFrom(rootDir, sessionID string, offset int64) (events []Event, nextOffset int64, err error) {
	if offset < 0 {
		return nil, offset, errors.New("offset must be >= 0")
	}

	dir, err := sessionDir(rootDir, sessionID)
	if err != nil {
		return nil, offset, err
	}

	file, err := os.Open(filepath.Join(dir, eventsLiveFileName)) //nolint:gosec // controlled path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, offset, nil
		}

		return nil, offset, fmt.Errorf("open live journal events: %w", err)
	}

	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	stat, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat live journal file: %w", err)
	}

	if offset > stat.Size() {
		offset = stat.Size()
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek live journal file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	nextOffset = offset

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) > 0 {
			// A writer may be mid-line; resume from the last full line.
			if line[len(line)-1] != '\n' {
				break
			}

			nextOffset += int64(len(line))

			trimmed := bytes.TrimSpace(line)
			if len(trimmed) > 0 {
				var event Event
				if err := json.Unmarshal(trimmed, &event); err == nil {
					events = append(events, event)
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return events, nextOffset, fmt.Errorf("read live journal line: %w", readErr)
		}
	}

	return events, nextOffset, nil
}

// Reload re-reads a session's meta, for callers following an open session.
func Reload(s *Session) (*Session, error) {
	meta, err := readMeta(s.Path)
	if err != nil {
		return nil, err
	}

	return &Session{Meta: *meta, Path: s.Path}, nil
}

// PruneOlderThan removes sessions that closed (or, if never closed,
// started) before cutoff.
func PruneOlderThan(rootDir string, cutoff time.Time) (int, error) {
	sessions, err := ListSessions(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, session := range sessions {
		referenceTime := session.StartedAt
		if session.ClosedAt != nil {
			referenceTime = *session.ClosedAt
		}

		if referenceTime.Before(cutoff) {
			if err := os.RemoveAll(session.Path); err != nil {
				return removed, fmt.Errorf("prune journal session %q: %w", session.SessionID, err)
			}

			removed++
		}
	}

	return removed, nil
}

// RemoveRuns deletes the sessions of the given runs and returns how many
// were removed.
func RemoveRuns(rootDir string, runIDs []int64) (int, error) {
	if len(runIDs) == 0 {
		return 0, nil
	}

	want := make(map[int64]bool, len(runIDs))
	for _, id := range runIDs {
		want[id] = true
	}

	sessions, err := ListSessions(rootDir)
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, session := range sessions {
		if !want[session.RunID] {
			continue
		}

		if err := os.RemoveAll(session.Path); err != nil {
			return removed, fmt.Errorf("remove journal session %q: %w", session.SessionID, err)
		}

		removed++
	}

	return removed, nil
}

func resolveRoot(rootDir string) (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}

	dir, err := DefaultDir()
	if err != nil {
		return "", fmt.Errorf("resolve journal root directory: %w", err)
	}

	return dir, nil
}

func sessionDir(rootDir, sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}

	rootDir, err := resolveRoot(rootDir)
	if err != nil {
		return "", err
	}

	return filepath.Join(rootDir, sessionID), nil
}

func readMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName)) //nolint:gosec // controlled directory
	if err != nil {
		return nil, err
	}

	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode journal meta: %w", err)
	}

	return &meta, nil
}
