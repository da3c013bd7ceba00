package snapshot

import "sync"

// Store is the current-snapshot cell: one writer per completed cycle, many readers.
// Publish only accepts the generation it is told is active, so a superseded cycle
// finishing late cannot overwrite newer data.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
	ok      bool
}

// Load returns the current snapshot and whether one has been published.
func (s *Store) Load() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.ok
}

// Publish replaces the current snapshot when snap's generation is newer than the stored
// one and active reports it as still current. It returns whether the write happened.
func (s *Store) Publish(snap Snapshot, active func(gen uint64) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active != nil && !active(snap.Generation()) {
		return false
	}
	if s.ok && snap.Generation() <= s.current.Generation() {
		return false
	}
	s.current = snap
	s.ok = true
	return true
}
