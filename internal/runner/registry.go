package runner

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/musher-dev/scriptdeck/internal/bridge"
)

// Handle is the registry entry for one active run. It is reserved before
// spawn and attached to its bridge once the child exists.
type Handle struct {
	scriptID  int64
	startedAt time.Time

	mu            sync.Mutex
	runID         int64
	bridge        bridge.Bridge
	timer         *time.Timer
	cancelPending bool

	timedOut atomic.Bool
	finalize sync.Once
	done     chan struct{}
}

func newHandle(scriptID int64, startedAt time.Time) *Handle {
	return &Handle{
		scriptID:  scriptID,
		startedAt: startedAt,
		done:      make(chan struct{}),
	}
}

// ScriptID returns the script this handle runs.
func (h *Handle) ScriptID() int64 { return h.scriptID }

// RunID returns the run record id, zero until the record exists.
func (h *Handle) RunID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.runID
}

// Pid returns the child's process id, zero before spawn.
func (h *Handle) Pid() int {
	if b, ok := h.Bridge(); ok {
		return b.Pid()
	}

	return 0
}

// Bridge returns the attached bridge.
func (h *Handle) Bridge() (bridge.Bridge, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.bridge, h.bridge != nil
}

// Done is closed once the run has fully finished.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) setRunID(id int64) {
	h.mu.Lock()
	h.runID = id
	h.mu.Unlock()
}

// attach stores b and reports whether a cancel arrived while the child
// was being spawned.
func (h *Handle) attach(b bridge.Bridge) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.bridge = b

	return h.cancelPending
}

// requestCancel returns the attached bridge. Before attach it records the
// request instead, for attach to report.
func (h *Handle) requestCancel() (bridge.Bridge, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.bridge == nil {
		h.cancelPending = true
		return nil, false
	}

	return h.bridge, true
}

func (h *Handle) setTimer(t *time.Timer) {
	h.mu.Lock()
	h.timer = t
	h.mu.Unlock()
}

func (h *Handle) stopTimer() {
	h.mu.Lock()
	t := h.timer
	h.timer = nil
	h.mu.Unlock()

	if t != nil {
		t.Stop()
	}
}

// Registry maps script ids to their active run. At most one run per
// script exists at any time.
type Registry struct {
	mu      sync.Mutex
	handles map[int64]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[int64]*Handle)}
}

// Insert registers h unless the script already has a run.
func (r *Registry) Insert(scriptID int64, h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[scriptID]; exists {
		return ErrAlreadyRunning
	}

	r.handles[scriptID] = h

	return nil
}

// Remove drops the entry for scriptID. Removing an absent id is a no-op.
func (r *Registry) Remove(scriptID int64) {
	r.mu.Lock()
	delete(r.handles, scriptID)
	r.mu.Unlock()
}

// CompareAndRemove drops the entry only if it is still h.
func (r *Registry) CompareAndRemove(scriptID int64, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handles[scriptID] != h {
		return false
	}

	delete(r.handles, scriptID)

	return true
}

// Get returns the active handle for scriptID.
func (r *Registry) Get(scriptID int64) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[scriptID]

	return h, ok
}

// Contains reports whether scriptID has an active run.
func (r *Registry) Contains(scriptID int64) bool {
	_, ok := r.Get(scriptID)
	return ok
}

// Len returns the number of active runs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.handles)
}

// IDs returns the script ids with active runs, ascending.
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	ids := make([]int64, 0, len(r.handles))

	for id := range r.handles {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)

	return ids
}

func (r *Registry) snapshot() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}

	return out
}
