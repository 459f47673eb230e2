package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/model"
)

func TestExpectationJudge(t *testing.T) {
	j := NewExpectationJudge()

	tests := []struct {
		name       string
		test       *core.Test
		result     *core.ExecutionResult
		wantPassed bool
	}{
		{
			name:       "no expectations pass on success",
			test:       &core.Test{ID: "t1"},
			result:     &core.ExecutionResult{Success: true, Output: map[string]any{}},
			wantPassed: true,
		},
		{
			name:       "failed run fails regardless of expectations",
			test:       &core.Test{ID: "t1"},
			result:     &core.ExecutionResult{Success: false, Err: errors.New("boom")},
			wantPassed: false,
		},
		{
			name:       "matching values pass",
			test:       &core.Test{ID: "t1", Expected: map[string]any{"status": "resolved"}},
			result:     &core.ExecutionResult{Success: true, Output: map[string]any{"status": "resolved", "extra": 1}},
			wantPassed: true,
		},
		{
			name:       "missing key fails",
			test:       &core.Test{ID: "t1", Expected: map[string]any{"status": "resolved"}},
			result:     &core.ExecutionResult{Success: true, Output: map[string]any{}},
			wantPassed: false,
		},
		{
			name:       "mismatched value fails",
			test:       &core.Test{ID: "t1", Expected: map[string]any{"status": "resolved"}},
			result:     &core.ExecutionResult{Success: true, Output: map[string]any{"status": "open"}},
			wantPassed: false,
		},
		{
			name:       "int matches float",
			test:       &core.Test{ID: "t1", Expected: map[string]any{"amount": 100}},
			result:     &core.ExecutionResult{Success: true, Output: map[string]any{"amount": 100.0}},
			wantPassed: true,
		},
		{
			name:       "numeric mismatch fails",
			test:       &core.Test{ID: "t1", Expected: map[string]any{"amount": 100}},
			result:     &core.ExecutionResult{Success: true, Output: map[string]any{"amount": 101.0}},
			wantPassed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := j.Judge(context.Background(), tt.test, tt.result)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPassed, verdict.Passed, verdict.Explanation)
		})
	}
}

func TestModelJudgePasses(t *testing.T) {
	m := model.NewMockModel("judge-test")
	m.AddTurns(model.MockTurn{Text: `{"passes": true, "explanation": "summary covers all points"}`})

	j := NewModelJudge(m)
	verdict, err := j.Judge(context.Background(), &core.Test{ID: "t1", Name: "summary_quality"},
		&core.ExecutionResult{Success: true, Output: map[string]any{"summary": "..."}})
	require.NoError(t, err)
	assert.True(t, verdict.Passed)
	assert.Equal(t, "summary covers all points", verdict.Explanation)
}

func TestModelJudgeStripsCodeFences(t *testing.T) {
	m := model.NewMockModel("judge-test")
	m.AddTurns(model.MockTurn{Text: "```json\n{\"passes\": false, \"explanation\": \"tone is off\"}\n```"})

	j := NewModelJudge(m)
	verdict, err := j.Judge(context.Background(), &core.Test{ID: "t1"},
		&core.ExecutionResult{Success: true, Output: map[string]any{}})
	require.NoError(t, err)
	assert.False(t, verdict.Passed)
	assert.Equal(t, "tone is off", verdict.Explanation)
}

func TestModelJudgeFailsClosed(t *testing.T) {
	t.Run("model error", func(t *testing.T) {
		m := model.NewMockModel("judge-test")
		m.AddTurns(model.MockTurn{Err: errors.New("api down")})

		j := NewModelJudge(m)
		verdict, err := j.Judge(context.Background(), &core.Test{ID: "t1"},
			&core.ExecutionResult{Success: true, Output: map[string]any{}})
		require.NoError(t, err)
		assert.False(t, verdict.Passed)
		assert.Contains(t, verdict.Explanation, "judge model error")
	})

	t.Run("unparseable reply", func(t *testing.T) {
		m := model.NewMockModel("judge-test")
		m.AddTurns(model.MockTurn{Text: "looks good to me!"})

		j := NewModelJudge(m)
		verdict, err := j.Judge(context.Background(), &core.Test{ID: "t1"},
			&core.ExecutionResult{Success: true, Output: map[string]any{}})
		require.NoError(t, err)
		assert.False(t, verdict.Passed)
		assert.Contains(t, verdict.Explanation, "unparseable judge reply")
	})
}
