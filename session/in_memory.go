package session

import (
	"sync"

	"github.com/hupe1980/goalflow/core"
)

// InMemoryStore is a volatile PauseStore implementation keeping paused run
// state in a process local map. It is safe for concurrent access and best
// suited for tests or single process deployments. Snapshots are cloned on
// both save and load so callers can never mutate stored state in place.
type InMemoryStore struct {
	mu     sync.RWMutex
	paused map[string]*core.PauseState
}

// NewInMemoryStore constructs an empty in-memory pause store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{paused: make(map[string]*core.PauseState)}
}

// Save stores a clone of the pause snapshot. Saving twice for the same run
// overwrites the earlier snapshot; last writer wins.
func (s *InMemoryStore) Save(runID string, state *core.PauseState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused[runID] = state.Clone()
	return nil
}

// Load returns a clone of the pause snapshot for the run, or nil when the
// run has no saved snapshot.
func (s *InMemoryStore) Load(runID string) (*core.PauseState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ps, ok := s.paused[runID]; ok {
		return ps.Clone(), nil
	}
	return nil, nil
}

// Delete removes the pause snapshot for the run. Deleting an unknown run is
// a no-op.
func (s *InMemoryStore) Delete(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paused, runID)
	return nil
}

// Len reports the number of paused runs currently held.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.paused)
}
