package runner

import "sync"

// CancellationSet records termination requests until the run's coordinator
// consumes them. Entries are keyed by script and tagged with the run they
// were issued against, so a request that arrives after its run ended can
// never cancel the next one.
type CancellationSet struct {
	mu      sync.Mutex
	pending map[int64]int64
}

// NewCancellationSet creates an empty set.
func NewCancellationSet() *CancellationSet {
	return &CancellationSet{pending: make(map[int64]int64)}
}

// Mark records a termination request for the given run.
func (c *CancellationSet) Mark(scriptID, runID int64) {
	c.mu.Lock()
	c.pending[scriptID] = runID
	c.mu.Unlock()
}

// Consume removes the entry for scriptID and reports whether it was issued
// against runID. A stale entry for another run is dropped.
func (c *CancellationSet) Consume(scriptID, runID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	tagged, ok := c.pending[scriptID]
	if !ok {
		return false
	}

	delete(c.pending, scriptID)

	return tagged == runID
}

// Discard drops the entry for scriptID if it belongs to runID.
func (c *CancellationSet) Discard(scriptID, runID int64) {
	c.mu.Lock()
	if tagged, ok := c.pending[scriptID]; ok && tagged == runID {
		delete(c.pending, scriptID)
	}
	c.mu.Unlock()
}

// Contains reports whether scriptID has an unconsumed request.
func (c *CancellationSet) Contains(scriptID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.pending[scriptID]

	return ok
}

// Len returns the number of unconsumed requests.
func (c *CancellationSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}
