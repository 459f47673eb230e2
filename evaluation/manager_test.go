package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
)

func testGoal() *core.Goal {
	return &core.Goal{
		ID:          "goal-1",
		Name:        "refund-agent",
		Description: "Handle refund requests",
		Constraints: []core.Constraint{
			{ID: "c1", Description: "never refund above 500 without approval", Type: core.ConstraintHard},
		},
		SuccessCriteria: []core.SuccessCriterion{
			{ID: "s1", Description: "resolves refund requests", Metric: "resolution_rate", Weight: 1.0},
		},
	}
}

func TestManagerGeneratePersistsPendingTests(t *testing.T) {
	m := NewManager()

	tests, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)
	require.Len(t, tests, 1)

	stored, err := m.List("goal-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, core.TestPending, stored[0].Status)
	assert.Equal(t, core.TestConstraint, stored[0].Type)
	assert.Equal(t, "goal-1", stored[0].GoalID)
	assert.NotEmpty(t, stored[0].ID)
}

func TestManagerGenerateUnknownStage(t *testing.T) {
	m := NewManager()
	_, err := m.Generate(context.Background(), testGoal(), nil, core.GenerationStage("deploy"))
	assert.ErrorContains(t, err, "unknown stage")
}

func TestManagerApprove(t *testing.T) {
	m := NewManager()
	tests, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)

	approved, err := m.Approve(tests[0].ID, Decision{Action: ActionApprove})
	require.NoError(t, err)
	assert.Equal(t, core.TestApproved, approved.Status)
}

func TestManagerRejectRequiresReason(t *testing.T) {
	m := NewManager()
	tests, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)

	_, err = m.Approve(tests[0].ID, Decision{Action: ActionReject})
	assert.ErrorContains(t, err, "reason is required")

	rejected, err := m.Approve(tests[0].ID, Decision{Action: ActionReject, Reason: "not testable"})
	require.NoError(t, err)
	assert.Equal(t, core.TestRejected, rejected.Status)
	assert.Equal(t, "not testable", rejected.Reason)
}

func TestManagerModifyRequiresPayload(t *testing.T) {
	m := NewManager()
	tests, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)

	_, err = m.Approve(tests[0].ID, Decision{Action: ActionModify})
	assert.ErrorContains(t, err, "replacement payload is required")

	modified, err := m.Approve(tests[0].ID, Decision{
		Action:   ActionModify,
		Input:    map[string]any{"amount": 600},
		Expected: map[string]any{"escalated": true},
	})
	require.NoError(t, err)
	assert.Equal(t, core.TestModified, modified.Status)
	assert.Equal(t, 600, modified.Input["amount"])
	assert.Equal(t, true, modified.Expected["escalated"])
}

func TestManagerTerminalStatusesRejectFurtherDecisions(t *testing.T) {
	decisions := map[string]Decision{
		"approved": {Action: ActionApprove},
		"modified": {Action: ActionModify, Input: map[string]any{"k": "v"}},
		"rejected": {Action: ActionReject, Reason: "nope"},
	}

	for name, first := range decisions {
		t.Run(name, func(t *testing.T) {
			m := NewManager()
			tests, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
			require.NoError(t, err)
			id := tests[0].ID

			_, err = m.Approve(id, first)
			require.NoError(t, err)

			for _, second := range decisions {
				_, err := m.Approve(id, second)
				var approvalErr *core.ApprovalError
				require.ErrorAs(t, err, &approvalErr)
				assert.Equal(t, id, approvalErr.TestID)
				assert.ErrorIs(t, err, core.ErrInvalidTransition)
			}
		})
	}
}

func TestManagerApproveUnknownTest(t *testing.T) {
	m := NewManager()
	_, err := m.Approve("no-such-test", Decision{Action: ActionApprove})
	assert.ErrorIs(t, err, core.ErrTestNotFound)
}

func TestManagerUnknownAction(t *testing.T) {
	m := NewManager()
	tests, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)

	_, err = m.Approve(tests[0].ID, Decision{Action: Action("defer")})
	assert.ErrorContains(t, err, "unknown action")
}

func TestManagerRunnable(t *testing.T) {
	m := NewManager()
	goal := testGoal()
	goal.Constraints = append(goal.Constraints,
		core.Constraint{ID: "c2", Description: "respond politely", Type: core.ConstraintSoft},
		core.Constraint{ID: "c3", Description: "log every refund", Type: core.ConstraintHard},
	)

	tests, err := m.Generate(context.Background(), goal, nil, core.StageGoal)
	require.NoError(t, err)
	require.Len(t, tests, 3)

	_, err = m.Approve(tests[0].ID, Decision{Action: ActionApprove})
	require.NoError(t, err)
	_, err = m.Approve(tests[1].ID, Decision{Action: ActionModify, Input: map[string]any{"tone": "rude"}})
	require.NoError(t, err)
	// tests[2] stays pending.

	runnable, err := m.Runnable("goal-1")
	require.NoError(t, err)
	require.Len(t, runnable, 2)
	for _, r := range runnable {
		assert.True(t, r.Status.Runnable())
	}
}

func TestManagerRegenerate(t *testing.T) {
	m := NewManager()
	tests, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)
	oldID := tests[0].ID

	_, err = m.Approve(oldID, Decision{Action: ActionReject, Reason: "too vague"})
	require.NoError(t, err)

	fresh, err := m.Regenerate(context.Background(), testGoal(), nil, oldID)
	require.NoError(t, err)
	assert.NotEqual(t, oldID, fresh.ID)
	assert.Equal(t, core.TestPending, fresh.Status)
	assert.Equal(t, "c1", fresh.ParentCriteriaID)

	_, err = m.Get(oldID)
	assert.ErrorIs(t, err, core.ErrTestNotFound)
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, *core.Goal, *core.GraphSpec, core.GenerationStage) ([]*core.Test, error) {
	return nil, errors.New("model unavailable")
}

func TestManagerGenerateSurfacesGeneratorError(t *testing.T) {
	m := NewManager(func(o *ManagerOptions) { o.Generator = failingGenerator{} })
	_, err := m.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	assert.ErrorContains(t, err, "model unavailable")
}
