package index

import (
	"sort"
	"sync"
)

// Tracker records whether a source term is aligned, explicitly or through
// an ancestor's correspondence. It also holds the display-only flag marking
// terms that contain an aligned descendant.
//
// Thread-safety: all methods are safe for concurrent use. Concurrent writes
// to the same ID resolve as last-write-wins.
type Tracker struct {
	mu         sync.RWMutex
	aligned    map[string]bool
	descendant map[string]bool
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		aligned:    make(map[string]bool),
		descendant: make(map[string]bool),
	}
}

// IsAligned returns the cached alignment state. Unknown IDs are not aligned.
func (t *Tracker) IsAligned(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.aligned[id]
}

// Set records the alignment state of id.
func (t *Tracker) Set(id string, aligned bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aligned[id] = aligned
}

// Mark sets every id to aligned.
func (t *Tracker) Mark(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.aligned[id] = true
	}
}

// Unmark sets every id to not aligned.
func (t *Tracker) Unmark(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.aligned[id] = false
	}
}

// FlagDescendant marks id as containing an aligned descendant.
func (t *Tracker) FlagDescendant(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.descendant[id] = true
}

// HasAlignedDescendant reports the display flag for id.
func (t *Tracker) HasAlignedDescendant(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.descendant[id]
}

// ClearDescendant drops the display flag for every id.
func (t *Tracker) ClearDescendant(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		delete(t.descendant, id)
	}
}

// Aligned returns the sorted IDs currently cached as aligned.
func (t *Tracker) Aligned() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.aligned))
	for id, ok := range t.aligned {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Snapshot returns a copy of the alignment map.
func (t *Tracker) Snapshot() map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]bool, len(t.aligned))
	for id, ok := range t.aligned {
		out[id] = ok
	}
	return out
}
