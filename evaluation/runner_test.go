package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/goalflow/core"
)

// fakeGraphRunner scripts per-test outcomes keyed by an input marker.
type fakeGraphRunner struct {
	calls atomic.Int64
	run   func(ctx context.Context, input map[string]any) (*core.ExecutionResult, error)
}

func (f *fakeGraphRunner) Execute(ctx context.Context, _ *core.GraphSpec, _ *core.Goal, input map[string]any) (*core.ExecutionResult, error) {
	f.calls.Add(1)
	return f.run(ctx, input)
}

func passingRunner() *fakeGraphRunner {
	return &fakeGraphRunner{run: func(_ context.Context, input map[string]any) (*core.ExecutionResult, error) {
		return &core.ExecutionResult{Success: true, Output: core.CloneContext(input)}, nil
	}}
}

func approvedTest(id, parent string, input map[string]any) *core.Test {
	return &core.Test{
		ID:               id,
		GoalID:           "goal-1",
		Type:             core.TestConstraint,
		Status:           core.TestApproved,
		Name:             id,
		ParentCriteriaID: parent,
		Input:            input,
		Expected:         map[string]any{},
	}
}

// deadlineJudge records whether the context it was judged under carried a
// deadline.
type deadlineJudge struct {
	sawDeadline atomic.Bool
	calls       atomic.Int64
}

func (j *deadlineJudge) Judge(ctx context.Context, _ *core.Test, _ *core.ExecutionResult) (Verdict, error) {
	_, ok := ctx.Deadline()
	j.sawDeadline.Store(ok)
	j.calls.Add(1)
	return Verdict{Passed: true}, nil
}

func TestRunnerJudgeRunsInsideTestBudget(t *testing.T) {
	judge := &deadlineJudge{}
	r := NewRunner(passingRunner(), func(o *RunnerOptions) { o.Judge = judge })

	report, err := r.Run(context.Background(), nil, testGoal(), []*core.Test{
		approvedTest("t1", "c1", nil),
	}, RunConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	assert.True(t, report.OverallPassed)
	require.Equal(t, int64(1), judge.calls.Load())
	assert.True(t, judge.sawDeadline.Load(), "judging shares the per-test timeout")
}

func TestRunnerAllPass(t *testing.T) {
	r := NewRunner(passingRunner())

	tests := []*core.Test{
		approvedTest("t1", "c1", map[string]any{"k": "v"}),
		approvedTest("t2", "c1", nil),
		approvedTest("t3", "c2", nil),
	}

	report, err := r.Run(context.Background(), nil, testGoal(), tests, RunConfig{Workers: 2})
	require.NoError(t, err)
	assert.True(t, report.OverallPassed)
	assert.Equal(t, 3, report.Summary.Total)
	assert.Equal(t, 3, report.Summary.Passed)
	assert.Equal(t, 0, report.Summary.Failed)
	assert.InDelta(t, 1.0, report.Summary.PassRate, 1e-9)
	assert.Empty(t, report.Violations)
}

func TestRunnerResultsSortedByTestID(t *testing.T) {
	r := NewRunner(passingRunner())

	var tests []*core.Test
	for i := 9; i >= 0; i-- {
		tests = append(tests, approvedTest(fmt.Sprintf("t%02d", i), fmt.Sprintf("c%d", i%3), nil))
	}

	report, err := r.Run(context.Background(), nil, testGoal(), tests, RunConfig{Workers: 4})
	require.NoError(t, err)
	require.Len(t, report.Results, 10)
	for i := 1; i < len(report.Results); i++ {
		assert.Less(t, report.Results[i-1].TestID, report.Results[i].TestID)
	}
}

func TestRunnerNonRunnableBecomeViolations(t *testing.T) {
	r := NewRunner(passingRunner())

	pending := approvedTest("t-pending", "c1", nil)
	pending.Status = core.TestPending
	rejected := approvedTest("t-rejected", "c1", nil)
	rejected.Status = core.TestRejected

	report, err := r.Run(context.Background(), nil, testGoal(), []*core.Test{
		approvedTest("t-ok", "c1", nil),
		pending,
		rejected,
	}, RunConfig{})
	require.NoError(t, err)

	// Gated tests never execute and never appear in results.
	require.Len(t, report.Results, 1)
	assert.Equal(t, "t-ok", report.Results[0].TestID)

	require.Len(t, report.Violations, 2)
	for _, v := range report.Violations {
		assert.ErrorIs(t, v, core.ErrInvalidTransition)
	}

	// Gating is reported, not counted: the only executed test passed.
	assert.True(t, report.OverallPassed)
	assert.Equal(t, 1, report.Summary.Passed)
	assert.Equal(t, 0, report.Summary.Failed)
}

func TestRunnerPendingTestsDoNotGateOverall(t *testing.T) {
	r := NewRunner(passingRunner())

	pending := approvedTest("t3-pending", "c2", nil)
	pending.Status = core.TestPending

	report, err := r.Run(context.Background(), nil, testGoal(), []*core.Test{
		approvedTest("t1", "c1", nil),
		approvedTest("t2", "c1", nil),
		pending,
	}, RunConfig{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Summary.Passed)
	assert.Equal(t, 0, report.Summary.Failed)
	require.Len(t, report.Violations, 1)
	assert.True(t, report.OverallPassed, "an undecided test must not fail a green run")
}

func TestRunnerFailureCategorized(t *testing.T) {
	failing := &fakeGraphRunner{run: func(_ context.Context, _ map[string]any) (*core.ExecutionResult, error) {
		return nil, errors.New("constraint violated: refund cap exceeded")
	}}
	r := NewRunner(failing)

	report, err := r.Run(context.Background(), nil, testGoal(), []*core.Test{
		approvedTest("t1", "c1", nil),
	}, RunConfig{})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	res := report.Results[0]
	assert.False(t, res.Passed)
	assert.Equal(t, core.CategoryLogicError, res.Category)
	assert.False(t, report.OverallPassed)
}

func TestRunnerTimeoutIsFailedTest(t *testing.T) {
	hanging := &fakeGraphRunner{run: func(ctx context.Context, input map[string]any) (*core.ExecutionResult, error) {
		if input["hang"] == true {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &core.ExecutionResult{Success: true, Output: map[string]any{}}, nil
	}}
	r := NewRunner(hanging)

	var tests []*core.Test
	for i := 0; i < 10; i++ {
		tests = append(tests, approvedTest(fmt.Sprintf("t%02d", i), fmt.Sprintf("c%d", i), nil))
	}
	tests[4].Input = map[string]any{"hang": true}

	report, err := r.Run(context.Background(), nil, testGoal(), tests, RunConfig{
		Workers: 2,
		Timeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, report.Summary.Total)
	assert.Equal(t, 9, report.Summary.Passed)
	assert.Equal(t, 1, report.Summary.Failed)

	timedOut := report.Results[4]
	assert.Equal(t, "t04", timedOut.TestID)
	assert.False(t, timedOut.Passed)
	assert.Contains(t, timedOut.Error, "exceeded timeout")
	assert.Equal(t, core.CategoryImplementationError, timedOut.Category)
}

func TestRunnerFailFastStopsSchedulingGroups(t *testing.T) {
	failing := &fakeGraphRunner{run: func(_ context.Context, _ map[string]any) (*core.ExecutionResult, error) {
		return nil, errors.New("boom")
	}}
	r := NewRunner(failing)

	var tests []*core.Test
	for i := 0; i < 20; i++ {
		tests = append(tests, approvedTest(fmt.Sprintf("t%02d", i), fmt.Sprintf("c%02d", i), nil))
	}

	report, err := r.Run(context.Background(), nil, testGoal(), tests, RunConfig{
		Workers:  1,
		FailFast: true,
	})
	require.NoError(t, err)

	assert.False(t, report.OverallPassed)
	// With one worker and group-granular fail-fast, later groups never start.
	assert.Less(t, len(report.Results), 20)
	assert.Less(t, failing.calls.Load(), int64(20))
}

func TestRunnerExpectationMismatchFails(t *testing.T) {
	r := NewRunner(&fakeGraphRunner{run: func(_ context.Context, _ map[string]any) (*core.ExecutionResult, error) {
		return &core.ExecutionResult{Success: true, Output: map[string]any{"status": "open"}}, nil
	}})

	test := approvedTest("t1", "c1", nil)
	test.Expected = map[string]any{"status": "resolved"}

	report, err := r.Run(context.Background(), nil, testGoal(), []*core.Test{test}, RunConfig{})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.False(t, report.Results[0].Passed)
	assert.Contains(t, report.Results[0].Error, `expected resolved, got open`)
}

func TestRunnerEmptyBatch(t *testing.T) {
	r := NewRunner(passingRunner())
	report, err := r.Run(context.Background(), nil, testGoal(), nil, RunConfig{})
	require.NoError(t, err)
	assert.True(t, report.OverallPassed, "no failures means no failure")
	assert.Equal(t, 0, report.Summary.Total)
	assert.Zero(t, report.Summary.PassRate)
}
