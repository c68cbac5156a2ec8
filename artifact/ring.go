package artifact

import "sync"

// defaultRingSize is the ≤50 bound spec §3 places on a session's
// ArtifactExecution history.
const defaultRingSize = 50

// Ring is a bounded, mutex-protected FIFO of artifact executions. Once
// full, adding a new entry evicts the oldest.
type Ring struct {
	mu    sync.Mutex
	items []*Execution
	max   int
}

// NewRing constructs a Ring bounded to max entries; max <= 0 defaults to
// the spec's 50-entry bound.
func NewRing(max int) *Ring {
	if max <= 0 {
		max = defaultRingSize
	}
	return &Ring{max: max}
}

// Add appends e, evicting the oldest entry if the ring is already at
// capacity.
func (r *Ring) Add(e *Execution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, e)
	if len(r.items) > r.max {
		r.items = r.items[len(r.items)-r.max:]
	}
}

// Snapshot returns a copy of the ring's current contents, oldest first.
func (r *Ring) Snapshot() []*Execution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Execution, len(r.items))
	copy(out, r.items)
	return out
}

// Len reports the current number of entries held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Recent returns the last n executions (or all, if fewer), in Snapshot's
// order, for the Task Executor's optional "artifact context" prompt section
// (spec §4.9 step 1); it does no formatting of its own.
func (r *Ring) Recent(n int) []*Execution {
	all := r.Snapshot()
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	return all[len(all)-n:]
}
