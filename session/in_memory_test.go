package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
)

// Interface compliance (compile-time assertion)
var _ core.PauseStore = (*InMemoryStore)(nil)

func samplePauseState(runID string) *core.PauseState {
	return &core.PauseState{
		RunID:       runID,
		GraphID:     "g-1",
		PausedAt:    "review",
		ResumeLabel: "default",
		Context:     map[string]any{"draft": "summary text", "score": 0.9},
		Visited:     []string{"draft", "review"},
		Created:     time.Now().UTC(),
	}
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Save("run-1", samplePauseState("run-1")))

	loaded, err := store.Load("run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "review", loaded.PausedAt)
	assert.Equal(t, "default", loaded.ResumeLabel)
	assert.Equal(t, []string{"draft", "review"}, loaded.Visited)
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStoreLoadMissing(t *testing.T) {
	store := NewInMemoryStore()
	loaded, err := store.Load("unknown")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestInMemoryStoreCloneDiscipline(t *testing.T) {
	store := NewInMemoryStore()

	original := samplePauseState("run-1")
	require.NoError(t, store.Save("run-1", original))

	// Mutating the saved snapshot must not affect the stored copy.
	original.Context["draft"] = "tampered"

	loaded, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, "summary text", loaded.Context["draft"])

	// Mutating a loaded snapshot must not affect subsequent loads.
	loaded.Context["score"] = 0.1

	again, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, again.Context["score"])
}

func TestInMemoryStoreOverwrite(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Save("run-1", samplePauseState("run-1")))

	updated := samplePauseState("run-1")
	updated.PausedAt = "approval"
	require.NoError(t, store.Save("run-1", updated))

	loaded, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, "approval", loaded.PausedAt)
	assert.Equal(t, 1, store.Len())
}

func TestInMemoryStoreDelete(t *testing.T) {
	store := NewInMemoryStore()

	require.NoError(t, store.Save("run-1", samplePauseState("run-1")))
	require.NoError(t, store.Delete("run-1"))

	loaded, err := store.Load("run-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete("run-1"))
}
