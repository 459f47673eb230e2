package evaluation

import (
	"sort"
	"sync"

	"github.com/hupe1980/goalflow/core"
)

// InMemoryStore is a volatile TestStore implementation keeping tests in a
// process local map. It is safe for concurrent access and best suited for
// tests or single process deployments. Tests are cloned on both write and
// read so callers can never mutate stored state in place.
type InMemoryStore struct {
	mu    sync.RWMutex
	tests map[string]*core.Test
}

var _ core.TestStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory test store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tests: make(map[string]*core.Test)}
}

// Create stores a clone of the test. Creating an id twice overwrites the
// earlier test; last writer wins.
func (s *InMemoryStore) Create(t *core.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tests[t.ID] = t.Clone()
	return nil
}

// Get returns a clone of the test, or core.ErrTestNotFound.
func (s *InMemoryStore) Get(id string) (*core.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tests[id]; ok {
		return t.Clone(), nil
	}
	return nil, core.ErrTestNotFound
}

// Update replaces the stored test. Unknown ids yield core.ErrTestNotFound.
func (s *InMemoryStore) Update(t *core.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tests[t.ID]; !ok {
		return core.ErrTestNotFound
	}
	s.tests[t.ID] = t.Clone()
	return nil
}

// Delete removes the test. Deleting an unknown id is a no-op.
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tests, id)
	return nil
}

// List returns the goal's tests in ascending id order, optionally restricted
// to the given statuses.
func (s *InMemoryStore) List(goalID string, statuses ...core.TestStatus) ([]*core.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Test
	for _, t := range s.tests {
		if t.GoalID != goalID {
			continue
		}
		if len(statuses) > 0 && !statusIn(t.Status, statuses) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func statusIn(status core.TestStatus, statuses []core.TestStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}
