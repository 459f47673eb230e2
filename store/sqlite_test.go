package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "goalflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPauseStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)

	state := &core.PauseState{
		RunID:       "run-1",
		GraphID:     "graph-1",
		PausedAt:    "confirm",
		ResumeLabel: "approved",
		Context:     map[string]any{"amount": 250.0, "customer": "c-9"},
		Visited:     []string{"entry", "assess", "confirm"},
		Created:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.Save("run-1", state))

	loaded, err := db.Load("run-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "graph-1", loaded.GraphID)
	assert.Equal(t, "confirm", loaded.PausedAt)
	assert.Equal(t, "approved", loaded.ResumeLabel)
	assert.Equal(t, 250.0, loaded.Context["amount"])
	assert.Equal(t, []string{"entry", "assess", "confirm"}, loaded.Visited)
	assert.Equal(t, state.Created, loaded.Created)
}

func TestPauseStoreLoadMissingIsNilNil(t *testing.T) {
	db := openTestDB(t)
	loaded, err := db.Load("no-such-run")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPauseStoreSaveOverwrites(t *testing.T) {
	db := openTestDB(t)

	first := &core.PauseState{RunID: "run-1", GraphID: "g", PausedAt: "a", Context: map[string]any{"v": 1.0}}
	require.NoError(t, db.Save("run-1", first))

	second := &core.PauseState{RunID: "run-1", GraphID: "g", PausedAt: "b", Context: map[string]any{"v": 2.0}}
	require.NoError(t, db.Save("run-1", second))

	loaded, err := db.Load("run-1")
	require.NoError(t, err)
	assert.Equal(t, "b", loaded.PausedAt)
	assert.Equal(t, 2.0, loaded.Context["v"])
}

func TestPauseStoreDelete(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Save("run-1", &core.PauseState{RunID: "run-1", GraphID: "g", PausedAt: "a"}))
	require.NoError(t, db.Delete("run-1"))

	loaded, err := db.Load("run-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Deleting again is a no-op.
	require.NoError(t, db.Delete("run-1"))
}

func storedTest(id, goalID string, status core.TestStatus) *core.Test {
	now := time.Now().UTC().Truncate(time.Second)
	return &core.Test{
		ID:               id,
		GoalID:           goalID,
		Type:             core.TestConstraint,
		Status:           status,
		Name:             "test_" + id,
		ParentCriteriaID: "c1",
		Input:            map[string]any{"k": "v"},
		Expected:         map[string]any{"ok": true},
		Confidence:       0.8,
		Created:          now,
		Updated:          now,
	}
}

func TestTestStoreCRUD(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(storedTest("t1", "goal-1", core.TestPending)))

	got, err := db.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, "test_t1", got.Name)
	assert.Equal(t, "v", got.Input["k"])
	assert.Equal(t, true, got.Expected["ok"])
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)

	got.Status = core.TestApproved
	got.Updated = time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.Update(got))

	updated, err := db.Get("t1")
	require.NoError(t, err)
	assert.Equal(t, core.TestApproved, updated.Status)

	require.NoError(t, db.Delete("t1"))
	_, err = db.Get("t1")
	assert.ErrorIs(t, err, core.ErrTestNotFound)
}

func TestTestStoreUpdateUnknown(t *testing.T) {
	db := openTestDB(t)
	err := db.Update(storedTest("ghost", "goal-1", core.TestPending))
	assert.ErrorIs(t, err, core.ErrTestNotFound)
}

func TestTestStoreListFilters(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.Create(storedTest("t3", "goal-1", core.TestPending)))
	require.NoError(t, db.Create(storedTest("t1", "goal-1", core.TestApproved)))
	require.NoError(t, db.Create(storedTest("t2", "goal-1", core.TestModified)))
	require.NoError(t, db.Create(storedTest("t4", "goal-2", core.TestApproved)))

	all, err := db.List("goal-1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"t1", "t2", "t3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	runnable, err := db.List("goal-1", core.TestApproved, core.TestModified)
	require.NoError(t, err)
	require.Len(t, runnable, 2)
	assert.Equal(t, "t1", runnable[0].ID)
	assert.Equal(t, "t2", runnable[1].ID)
}

func TestRunStoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	rec := &core.RunRecord{
		ID:         "run-1",
		GraphID:    "graph-1",
		GoalID:     "goal-1",
		Status:     core.RunCompleted,
		Steps:      4,
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
	}
	require.NoError(t, db.SaveRun(rec))

	got, err := db.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, core.RunCompleted, got.Status)
	assert.Equal(t, 4, got.Steps)
	assert.Equal(t, now, got.FinishedAt)

	_, err = db.GetRun("no-such-run")
	assert.ErrorIs(t, err, core.ErrRunNotFound)
}

func TestRunStoreListNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		require.NoError(t, db.SaveRun(&core.RunRecord{
			ID:         string(rune('a' + i)),
			GraphID:    "g",
			Status:     core.RunCompleted,
			StartedAt:  base,
			FinishedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	runs, err := db.ListRuns(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
}
