package core

// TestStore is the repository abstraction the test lifecycle manager is
// built on. Implementations must return tests in deterministic order
// (ascending id) from List and must never hand out aliased mutable state.
//
// Get returns ErrTestNotFound when no test exists for the id.
type TestStore interface {
	Create(t *Test) error
	Get(id string) (*Test, error)
	Update(t *Test) error
	Delete(id string) error
	// List returns the goal's tests, optionally restricted to the given
	// statuses.
	List(goalID string, statuses ...TestStatus) ([]*Test, error)
}
