package sync

import "sync/atomic"

// Tracker derives the dirty signal from mutation activity. Dirty is
// true iff some mutation exists that has not been confirmed by a
// fully successful sync cycle; it is cleared only after push and
// pull both succeed, never at push success alone, so a failed pull
// can never leave the client falsely clean.
//
// Hydration (the first population of state from the local store) is
// bracketed with BeginHydration/EndHydration so it never sets dirty.
type Tracker struct {
	dirty     atomic.Bool
	hydrating atomic.Bool
}

// NewTracker returns a clean tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// BeginHydration suppresses dirty-marking until EndHydration.
func (t *Tracker) BeginHydration() {
	t.hydrating.Store(true)
}

// EndHydration re-enables dirty-marking.
func (t *Tracker) EndHydration() {
	t.hydrating.Store(false)
}

// MarkDirty records a mutation. No-op during hydration.
func (t *Tracker) MarkDirty() {
	if t.hydrating.Load() {
		return
	}
	t.dirty.Store(true)
}

// Clear marks all mutations as confirmed. Called only at the end of
// a successful full cycle.
func (t *Tracker) Clear() {
	t.dirty.Store(false)
}

// IsDirty reports whether unconfirmed mutations exist.
func (t *Tracker) IsDirty() bool {
	return t.dirty.Load()
}
