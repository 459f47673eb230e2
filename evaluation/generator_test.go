package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/model"
)

func TestTemplateGeneratorStages(t *testing.T) {
	g := NewTemplateGenerator()
	goal := testGoal()

	constraint, err := g.Generate(context.Background(), goal, nil, core.StageGoal)
	require.NoError(t, err)
	require.Len(t, constraint, 1)
	assert.Equal(t, "c1", constraint[0].ParentCriteriaID)

	criteria, err := g.Generate(context.Background(), goal, nil, core.StageBuild)
	require.NoError(t, err)
	require.Len(t, criteria, 1)
	assert.Equal(t, "s1", criteria[0].ParentCriteriaID)

	edge, err := g.Generate(context.Background(), goal, nil, core.StageDebug)
	require.NoError(t, err)
	require.Len(t, edge, 3)
	for _, e := range edge {
		assert.Equal(t, "edge_cases", e.ParentCriteriaID)
	}
}

func TestModelGeneratorCollectsSubmittedTests(t *testing.T) {
	m := model.NewMockModel("gen-test")
	m.AddTurns(
		model.MockTurn{Calls: []core.FunctionCall{
			{ID: "c1", Name: SubmitTestTool, Arguments: `{
				"parent_id": "c1",
				"test_name": "refund_cap_happy_path",
				"description": "refund below cap succeeds",
				"input": {"amount": 100},
				"expected_output": {"approved": true},
				"confidence": 0.9
			}`},
			{ID: "c2", Name: SubmitTestTool, Arguments: `{
				"parent_id": "c1",
				"test_name": "refund_cap_violation",
				"input": {"amount": 900},
				"expected_output": {"escalated": true}
			}`},
		}},
		model.MockTurn{Text: "All tests submitted."},
	)

	g := NewModelGenerator(m)
	tests, err := g.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)
	require.Len(t, tests, 2)

	assert.Equal(t, "refund_cap_happy_path", tests[0].Name)
	assert.Equal(t, "c1", tests[0].ParentCriteriaID)
	assert.InDelta(t, 0.9, tests[0].Confidence, 1e-9)
	assert.Equal(t, "refund_cap_violation", tests[1].Name)
}

func TestModelGeneratorRejectsMalformedSubmissions(t *testing.T) {
	m := model.NewMockModel("gen-test")
	m.AddTurns(
		model.MockTurn{Calls: []core.FunctionCall{
			{ID: "c1", Name: SubmitTestTool, Arguments: `{"input": {}}`},
			{ID: "c2", Name: SubmitTestTool, Arguments: `{"test_name": "ok_test", "parent_id": "c1", "input": {}, "expected_output": {}}`},
		}},
		model.MockTurn{Text: "done"},
	)

	g := NewModelGenerator(m)
	tests, err := g.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "ok_test", tests[0].Name)
}

func TestModelGeneratorNoSubmissionsIsAnError(t *testing.T) {
	m := model.NewMockModel("gen-test")
	m.AddTurns(model.MockTurn{Text: "I have no tests to propose."})

	g := NewModelGenerator(m)
	_, err := g.Generate(context.Background(), testGoal(), nil, core.StageGoal)
	assert.ErrorContains(t, err, "submitted no tests")
}
