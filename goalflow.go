// Package goalflow provides a high-level façade over the graph executor and
// the evaluation pipeline, enabling goal-driven agent workflows with a
// human-gated test loop. Most applications interact with this package by:
//  1. Creating an Engine via New() (optionally overriding default in-memory stores)
//  2. Registering tools and node functions
//  3. Executing graphs (Execute/Resume) and driving the test lifecycle
//     (GenerateTests, ApproveTest, RunTests)
//
// The façade delegates graph walking to executor.Executor and the test
// lifecycle to evaluation.Manager/Runner while keeping setup ergonomics
// concise. All defaults are safe for local development and testing;
// production deployments typically supply the SQLite-backed store and a
// structured logger.
package goalflow

import (
	"context"
	"fmt"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/evaluation"
	"github.com/hupe1980/goalflow/executor"
	"github.com/hupe1980/goalflow/graph"
	"github.com/hupe1980/goalflow/invoke"
	"github.com/hupe1980/goalflow/logging"
	"github.com/hupe1980/goalflow/model"
	"github.com/hupe1980/goalflow/tool"
)

// Options configures the Engine.
type Options struct {
	// Model backs llm_generate, llm_tool_use and model-routed router nodes.
	// Optional; graphs made of function nodes run without one.
	Model model.Model

	// Stores (default to in-memory implementations if not provided).
	PauseStore core.PauseStore
	RunStore   core.RunStore
	TestStore  core.TestStore

	// Generator produces tests; defaults to the deterministic template
	// generator. Supply evaluation.NewModelGenerator for model-proposed tests.
	Generator evaluation.Generator
	// Judge decides test pass/fail; defaults to exact expectation matching.
	Judge evaluation.Judge

	// EventSink, when set, receives execution lifecycle events.
	EventSink core.EventSink
	// Callbacks hook user code into node boundaries and pauses.
	Callbacks executor.Callbacks
	// MaxSteps bounds node invocations per run. Zero uses the executor default.
	MaxSteps int
	// MaxToolTurns bounds the tool loop inside one llm_tool_use invocation.
	MaxToolTurns int

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Engine is the high-level façade aggregating the executor and the
// evaluation pipeline.
type Engine struct {
	opts        Options
	invoker     *invoke.ModelInvoker
	executor    *executor.Executor
	manager     *evaluation.Manager
	runner      *evaluation.Runner
	categorizer *evaluation.Categorizer
	logger      logging.Logger
}

// New creates an Engine with optional overrides. Any unset store is
// initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	invoker := invoke.New(opts.Model, func(o *invoke.Options) {
		o.MaxToolTurns = opts.MaxToolTurns
		o.Logger = opts.Logger
	})

	exec := executor.New(invoker, func(o *executor.Options) {
		o.PauseStore = opts.PauseStore
		o.RunStore = opts.RunStore
		o.EventSink = opts.EventSink
		o.Callbacks = opts.Callbacks
		o.MaxSteps = opts.MaxSteps
		o.Logger = opts.Logger
	})

	manager := evaluation.NewManager(func(o *evaluation.ManagerOptions) {
		o.Store = opts.TestStore
		o.Generator = opts.Generator
		o.Logger = opts.Logger
	})

	runner := evaluation.NewRunner(exec, func(o *evaluation.RunnerOptions) {
		o.Judge = opts.Judge
		o.Logger = opts.Logger
	})

	return &Engine{
		opts:        opts,
		invoker:     invoker,
		executor:    exec,
		manager:     manager,
		runner:      runner,
		categorizer: evaluation.NewCategorizer(),
		logger:      opts.Logger,
	}
}

// RegisterTools adds tools to the invoker's registry, making them available
// to llm_tool_use nodes that declare them.
func (e *Engine) RegisterTools(tools ...tool.Tool) {
	for _, t := range tools {
		e.invoker.Registry().Register(t)
	}
}

// RegisterFunc binds a Go function to a function node, matched by node id or
// name.
func (e *Engine) RegisterFunc(name string, fn invoke.Func) {
	e.invoker.RegisterFunc(name, fn)
}

// RegisterRouter binds a routing function to a router node, matched by node
// id or name.
func (e *Engine) RegisterRouter(name string, fn invoke.RouterFunc) {
	e.invoker.RegisterRouter(name, fn)
}

// Validate runs the structural checks on a graph without executing it.
func (e *Engine) Validate(g *core.GraphSpec) *graph.ValidationResult {
	return graph.Validate(g)
}

// Execute starts a fresh run of the graph with the given input context.
func (e *Engine) Execute(ctx context.Context, g *core.GraphSpec, goal *core.Goal, input map[string]any) (*core.ExecutionResult, error) {
	return e.executor.Execute(ctx, g, goal, input)
}

// Resume continues a paused run with external input.
func (e *Engine) Resume(ctx context.Context, g *core.GraphSpec, goal *core.Goal, runID string, input map[string]any) (*core.ExecutionResult, error) {
	return e.executor.Resume(ctx, g, goal, runID, input)
}

// Abandon discards a paused run's snapshot without resuming it.
func (e *Engine) Abandon(runID string) error {
	return e.executor.Abandon(runID)
}

// GenerateTests produces and stores the stage's tests for the goal, all
// pending until approved.
func (e *Engine) GenerateTests(ctx context.Context, goal *core.Goal, g *core.GraphSpec, stage core.GenerationStage) ([]*core.Test, error) {
	return e.manager.Generate(ctx, goal, g, stage)
}

// ApproveTest applies one terminal decision to a pending test.
func (e *Engine) ApproveTest(id string, d evaluation.Decision) (*core.Test, error) {
	return e.manager.Approve(id, d)
}

// RegenerateTest replaces a test with a fresh pending one for the same
// parent criterion.
func (e *Engine) RegenerateTest(ctx context.Context, goal *core.Goal, g *core.GraphSpec, id string) (*core.Test, error) {
	return e.manager.Regenerate(ctx, goal, g, id)
}

// ListTests returns the goal's tests, optionally restricted to statuses.
func (e *Engine) ListTests(goalID string, statuses ...core.TestStatus) ([]*core.Test, error) {
	return e.manager.List(goalID, statuses...)
}

// RunTests executes the goal's runnable tests against the graph and reports
// the outcome. Pending and rejected tests are surfaced as violations.
func (e *Engine) RunTests(ctx context.Context, g *core.GraphSpec, goal *core.Goal, cfg evaluation.RunConfig) (*evaluation.Report, error) {
	tests, err := e.manager.List(goal.ID)
	if err != nil {
		return nil, fmt.Errorf("goalflow: list tests for goal %s: %w", goal.ID, err)
	}
	return e.runner.Run(ctx, g, goal, tests, cfg)
}

// DebugTest runs one test on its own and returns its result plus, when it
// fails, the categorized guidance for where to take the failure. Unlike
// RunTests it targets a single test id, so a non-runnable status is an
// immediate ApprovalError.
func (e *Engine) DebugTest(ctx context.Context, g *core.GraphSpec, goal *core.Goal, testID string, cfg evaluation.RunConfig) (*core.TestRunResult, *core.Guidance, error) {
	t, err := e.manager.Get(testID)
	if err != nil {
		return nil, nil, fmt.Errorf("goalflow: debug test %s: %w", testID, err)
	}
	if !t.Status.Runnable() {
		return nil, nil, &core.ApprovalError{TestID: testID, Status: t.Status, Op: "debug"}
	}

	report, err := e.runner.Run(ctx, g, goal, []*core.Test{t}, cfg)
	if err != nil {
		return nil, nil, err
	}
	if len(report.Results) != 1 {
		return nil, nil, fmt.Errorf("goalflow: debug test %s: no result produced", testID)
	}

	res := report.Results[0]
	if res.Passed {
		return res, nil, nil
	}
	guidance := e.categorizer.Guidance(res.Category)
	return res, &guidance, nil
}

// Manager exposes the test lifecycle manager for advanced wiring.
func (e *Engine) Manager() *evaluation.Manager { return e.manager }

// PauseStore exposes the store holding pause snapshots.
func (e *Engine) PauseStore() core.PauseStore { return e.executor.PauseStore() }
