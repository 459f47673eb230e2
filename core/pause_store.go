package core

// PauseStore persists suspended runs keyed by run id. Semantics are plain
// key-value with last-writer-wins per run id; no transactional guarantees
// are required. Load returns (nil, nil) when no paused run exists.
type PauseStore interface {
	Save(runID string, state *PauseState) error
	Load(runID string) (*PauseState, error)
	Delete(runID string) error
}
