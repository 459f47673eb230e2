package evaluation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/logging"
)

// GraphRunner executes a graph for one test input. The executor satisfies
// this interface.
type GraphRunner interface {
	Execute(ctx context.Context, g *core.GraphSpec, goal *core.Goal, input map[string]any) (*core.ExecutionResult, error)
}

// RunConfig tunes one runner invocation.
type RunConfig struct {
	// Workers is the number of concurrent test groups. Defaults to 4.
	Workers int
	// Timeout is the per-test budget. Defaults to 30s.
	Timeout time.Duration
	// FailFast stops scheduling new groups after the first failure.
	// In-flight groups run to completion.
	FailFast bool
}

const (
	defaultWorkers     = 4
	defaultTestTimeout = 30 * time.Second
)

func (c *RunConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTestTimeout
	}
}

// Summary aggregates a report's counts.
type Summary struct {
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	PassRate float64       `json:"pass_rate"`
	Duration time.Duration `json:"duration"`
}

// Report is the outcome of one runner invocation. Results covers only the
// tests that executed; tests that were not runnable appear in Violations and
// never contribute to the summary. OverallPassed tracks executed tests alone:
// it is true exactly when no executed test failed, while gated tests stay
// visible through Violations.
type Report struct {
	OverallPassed bool                  `json:"overall_passed"`
	Summary       Summary               `json:"summary"`
	Results       []*core.TestRunResult `json:"results"`
	// Violations lists the tests skipped because their status is not
	// runnable, each as an ApprovalError.
	Violations []*core.ApprovalError `json:"violations,omitempty"`
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	// Judge decides pass/fail of a completed run. Defaults to the
	// deterministic ExpectationJudge.
	Judge Judge
	// Categorizer classifies failures. Defaults to the built-in tables.
	Categorizer *Categorizer
	// Logger receives run logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// Runner executes runnable tests against a graph. Tests sharing a parent
// criterion form one group; groups run concurrently on a bounded worker
// pool while the tests inside a group run sequentially, so checks on the
// same requirement never race each other.
type Runner struct {
	graphRunner GraphRunner
	judge       Judge
	categorizer *Categorizer
	logger      logging.Logger
}

// NewRunner creates a test runner over a graph executor.
func NewRunner(graphRunner GraphRunner, optFns ...func(o *RunnerOptions)) *Runner {
	opts := RunnerOptions{
		Judge:       NewExpectationJudge(),
		Categorizer: NewCategorizer(),
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Judge == nil {
		opts.Judge = NewExpectationJudge()
	}
	if opts.Categorizer == nil {
		opts.Categorizer = NewCategorizer()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Runner{
		graphRunner: graphRunner,
		judge:       opts.Judge,
		categorizer: opts.Categorizer,
		logger:      opts.Logger,
	}
}

// Run executes every runnable test in the batch and reports the outcome.
// Non-runnable tests (pending or rejected) are never executed; they are
// surfaced as violations so a caller cannot mistake a gated batch for a
// green one. Results are ordered by test id regardless of completion order.
func (r *Runner) Run(ctx context.Context, g *core.GraphSpec, goal *core.Goal, tests []*core.Test, cfg RunConfig) (*Report, error) {
	if r.graphRunner == nil {
		return nil, fmt.Errorf("evaluation: runner requires a graph runner")
	}
	cfg.applyDefaults()

	report := &Report{}
	var runnable []*core.Test
	for _, t := range tests {
		if !t.Status.Runnable() {
			report.Violations = append(report.Violations, &core.ApprovalError{TestID: t.ID, Status: t.Status, Op: "run"})
			continue
		}
		runnable = append(runnable, t)
	}

	start := time.Now()
	results := r.runGroups(ctx, g, goal, groupByParent(runnable), cfg)

	sort.Slice(results, func(i, j int) bool { return results[i].TestID < results[j].TestID })
	report.Results = results

	for _, res := range results {
		if res.Passed {
			report.Summary.Passed++
		} else {
			report.Summary.Failed++
		}
	}
	report.Summary.Total = len(results)
	report.Summary.Duration = time.Since(start)
	if report.Summary.Total > 0 {
		report.Summary.PassRate = float64(report.Summary.Passed) / float64(report.Summary.Total)
	}
	report.OverallPassed = report.Summary.Failed == 0

	r.logger.Info("Test run finished",
		"goal_id", goal.ID,
		"total", report.Summary.Total,
		"passed", report.Summary.Passed,
		"failed", report.Summary.Failed,
		"violations", len(report.Violations),
	)
	return report, nil
}

// testGroup is the unit of scheduling: all tests sharing a parent criterion.
type testGroup struct {
	parentID string
	tests    []*core.Test
}

func groupByParent(tests []*core.Test) []testGroup {
	byParent := make(map[string][]*core.Test)
	for _, t := range tests {
		byParent[t.ParentCriteriaID] = append(byParent[t.ParentCriteriaID], t)
	}

	groups := make([]testGroup, 0, len(byParent))
	for parentID, grouped := range byParent {
		sort.Slice(grouped, func(i, j int) bool { return grouped[i].ID < grouped[j].ID })
		groups = append(groups, testGroup{parentID: parentID, tests: grouped})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].parentID < groups[j].parentID })
	return groups
}

func (r *Runner) runGroups(ctx context.Context, g *core.GraphSpec, goal *core.Goal, groups []testGroup, cfg RunConfig) []*core.TestRunResult {
	groupCh := make(chan testGroup)
	resultCh := make(chan *core.TestRunResult)

	var failed sync.Once
	stop := make(chan struct{})

	var wg sync.WaitGroup
	workers := cfg.Workers
	if workers > len(groups) && len(groups) > 0 {
		workers = len(groups)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for grp := range groupCh {
				for _, t := range grp.tests {
					res := r.runOne(ctx, g, goal, t, cfg.Timeout)
					if !res.Passed && cfg.FailFast {
						failed.Do(func() { close(stop) })
					}
					resultCh <- res
				}
			}
		}()
	}

	go func() {
		defer close(groupCh)
		for _, grp := range groups {
			if cfg.FailFast {
				select {
				case <-stop:
					return
				default:
				}
			}
			select {
			case groupCh <- grp:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var results []*core.TestRunResult
	for res := range resultCh {
		results = append(results, res)
	}
	return results
}

// runOne executes a single test with its timeout budget. A timed-out run is
// a failed test with an implementation-error category, never a runner crash;
// the underlying execution goroutine is cancelled through the context.
func (r *Runner) runOne(ctx context.Context, g *core.GraphSpec, goal *core.Goal, t *core.Test, timeout time.Duration) *core.TestRunResult {
	result := &core.TestRunResult{TestID: t.ID, StartedAt: time.Now().UTC()}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		res *core.ExecutionResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.graphRunner.Execute(runCtx, g, goal, core.CloneContext(t.Input))
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-runCtx.Done():
		timeoutErr := &core.TestTimeoutError{TestID: t.ID, Timeout: timeout}
		result.Duration = time.Since(result.StartedAt)
		result.Error = timeoutErr.Error()
		// A hung run is a bug in the graph, not a boundary condition.
		result.Category = core.CategoryImplementationError
		r.logger.Warn("Test timed out", "test_id", t.ID, "timeout", timeout.String())
		return result
	case out := <-done:
		result.Duration = time.Since(result.StartedAt)
		if out.err != nil {
			result.Error = out.err.Error()
			result.Category = r.categorizer.Categorize(result.Error)
			return result
		}

		verdict, err := r.judge.Judge(runCtx, t, out.res)
		if err != nil {
			result.Error = fmt.Sprintf("judge error: %v", err)
			result.Category = r.categorizer.Categorize(result.Error)
			return result
		}
		result.Passed = verdict.Passed
		result.Explanation = verdict.Explanation
		if !verdict.Passed {
			result.Error = verdict.Explanation
			result.Category = r.categorizer.Categorize(result.Error)
		}
		return result
	}
}
