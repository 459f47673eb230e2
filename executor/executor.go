package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/goalflow/condition"
	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/graph"
	"github.com/hupe1980/goalflow/logging"
	"github.com/hupe1980/goalflow/session"
)

// DefaultMaxSteps bounds runs that configure no explicit step budget.
const DefaultMaxSteps = 100

// Options configures an Executor.
type Options struct {
	// PauseStore persists pause snapshots of suspended runs. Defaults to a
	// volatile in-memory store.
	PauseStore core.PauseStore
	// RunStore, when set, receives a summary record for every finished run,
	// including paused and failed ones.
	RunStore core.RunStore
	// EventSink, when set, receives lifecycle events. Emission is synchronous
	// on the run goroutine; sinks must not block.
	EventSink core.EventSink
	// Callbacks hook user code into node boundaries and pauses.
	Callbacks Callbacks
	// MaxSteps bounds node invocations per run as loop protection. Zero or
	// negative falls back to DefaultMaxSteps.
	MaxSteps int
	// Logger receives structured execution logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// Executor walks a graph node by node: it invokes the current node through
// the configured NodeInvoker, merges outputs into the run context, and picks
// the next edge from the node's outcome. A run ends by reaching a terminal
// node, pausing for external input, or failing.
//
// The executor holds no per-run state; all of it lives in the
// core.ExecutionState threaded through a run. A single Executor may serve
// many concurrent runs.
type Executor struct {
	invoker    core.NodeInvoker
	pauseStore core.PauseStore
	runStore   core.RunStore
	sink       core.EventSink
	callbacks  Callbacks
	maxSteps   int
	evaluator  *condition.Evaluator
	logger     logging.Logger
}

// New creates an Executor that invokes nodes through the given invoker.
func New(invoker core.NodeInvoker, optFns ...func(o *Options)) *Executor {
	opts := Options{
		PauseStore: session.NewInMemoryStore(),
		MaxSteps:   DefaultMaxSteps,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.PauseStore == nil {
		opts.PauseStore = session.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Executor{
		invoker:    invoker,
		pauseStore: opts.PauseStore,
		runStore:   opts.RunStore,
		sink:       opts.EventSink,
		callbacks:  opts.Callbacks,
		maxSteps:   opts.MaxSteps,
		evaluator:  condition.NewEvaluator(func(o *condition.Options) { o.Logger = opts.Logger }),
		logger:     opts.Logger,
	}
}

// PauseStore exposes the store holding pause snapshots, so callers can wire
// the same store into inspection tooling.
func (e *Executor) PauseStore() core.PauseStore { return e.pauseStore }

// Execute starts a fresh run of the graph with the given input context. The
// graph is validated first; structural defects abort before any node runs.
//
// The returned result is always non-nil. For runtime failures the returned
// error mirrors result.Err, so callers can branch on either. A paused run
// returns a nil error; check result.Paused().
func (e *Executor) Execute(ctx context.Context, g *core.GraphSpec, goal *core.Goal, input map[string]any) (*core.ExecutionResult, error) {
	runID := core.NewID()
	if err := graph.Validate(g).Err(graphID(g)); err != nil {
		return &core.ExecutionResult{RunID: runID, Err: err}, err
	}

	st := core.NewExecutionState(runID, g.EntryNode, input)
	e.logger.Info("Run started", "run_id", runID, "graph_id", g.ID, "entry_node", g.EntryNode)
	e.emit(core.NewEvent(runID, core.EventRunStarted, g.EntryNode))

	return e.run(ctx, g, goal, st)
}

// Resume continues a paused run. The pause snapshot is loaded by run id,
// consumed, and the run restarts at the entry point matching the snapshot's
// resume label with the provided input merged into the restored context.
// A run that pauses again writes a fresh snapshot under the same run id.
func (e *Executor) Resume(ctx context.Context, g *core.GraphSpec, goal *core.Goal, runID string, input map[string]any) (*core.ExecutionResult, error) {
	if err := graph.Validate(g).Err(graphID(g)); err != nil {
		return &core.ExecutionResult{RunID: runID, Err: err}, err
	}

	ps, err := e.pauseStore.Load(runID)
	if err != nil {
		err = fmt.Errorf("executor: load pause snapshot %s: %w", runID, err)
		return &core.ExecutionResult{RunID: runID, Err: err}, err
	}
	if ps == nil {
		err = fmt.Errorf("executor: resume %s: %w", runID, core.ErrRunNotFound)
		return &core.ExecutionResult{RunID: runID, Err: err}, err
	}
	if ps.GraphID != g.ID {
		err = fmt.Errorf("executor: resume %s: snapshot belongs to graph %q, not %q", runID, ps.GraphID, g.ID)
		return &core.ExecutionResult{RunID: runID, Err: err}, err
	}

	start, err := resumeTarget(g, ps)
	if err != nil {
		return &core.ExecutionResult{RunID: runID, Err: err}, err
	}

	// The snapshot is consumed on resume; pausing again writes a new one.
	if err := e.pauseStore.Delete(runID); err != nil {
		err = fmt.Errorf("executor: consume pause snapshot %s: %w", runID, err)
		return &core.ExecutionResult{RunID: runID, Err: err}, err
	}

	st := core.ResumeExecutionState(ps, start, input)
	e.logger.Info("Run resumed", "run_id", runID, "graph_id", g.ID, "resume_node", start)
	e.emit(core.NewEvent(runID, core.EventRunResumed, start))

	return e.run(ctx, g, goal, st)
}

// Abandon discards the pause snapshot of a paused run, making it
// unresumable. When a run store is configured the run's record is updated to
// abandoned.
func (e *Executor) Abandon(runID string) error {
	ps, err := e.pauseStore.Load(runID)
	if err != nil {
		return fmt.Errorf("executor: load pause snapshot %s: %w", runID, err)
	}
	if ps == nil {
		return fmt.Errorf("executor: abandon %s: %w", runID, core.ErrRunNotFound)
	}
	if err := e.pauseStore.Delete(runID); err != nil {
		return fmt.Errorf("executor: delete pause snapshot %s: %w", runID, err)
	}
	e.logger.Info("Run abandoned", "run_id", runID, "paused_at", ps.PausedAt)

	if e.runStore != nil {
		rec, err := e.runStore.GetRun(runID)
		if err != nil || rec == nil {
			rec = &core.RunRecord{ID: runID, GraphID: ps.GraphID, StartedAt: ps.Created, PausedAt: ps.PausedAt}
		}
		rec.Status = core.RunAbandoned
		rec.FinishedAt = time.Now().UTC()
		if err := e.runStore.SaveRun(rec); err != nil {
			e.logger.Error("Run record save failed", "run_id", runID, "error", err)
		}
	}
	return nil
}

// run drives the node loop until the run terminates, pauses or fails.
func (e *Executor) run(ctx context.Context, g *core.GraphSpec, goal *core.Goal, st *core.ExecutionState) (*core.ExecutionResult, error) {
	started := time.Now()
	limiter := core.NewStepLimiter(e.maxSteps)

	newResult := func(success bool, err error) *core.ExecutionResult {
		return &core.ExecutionResult{
			RunID:         st.RunID,
			Success:       success,
			StepsExecuted: limiter.Count(),
			Output:        core.CloneContext(st.Context),
			Err:           err,
			Visited:       append([]string(nil), st.Visited...),
		}
	}

	finish := func(res *core.ExecutionResult) (*core.ExecutionResult, error) {
		res.Duration = time.Since(started)
		e.record(g, goal, res, started)
		return res, res.Err
	}

	fail := func(err error) (*core.ExecutionResult, error) {
		e.logger.Error("Run failed", "run_id", st.RunID, "node_id", st.CurrentNode, "error", err)
		ev := core.NewEvent(st.RunID, core.EventRunFailed, st.CurrentNode)
		ev.Data = map[string]any{"error": err.Error()}
		e.emit(ev)
		return finish(newResult(false, err))
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("executor: run %s: %w", st.RunID, err))
		}

		node, ok := g.Node(st.CurrentNode)
		if !ok {
			return fail(core.NewStructuralError(g.ID, fmt.Sprintf("current node %q is not defined", st.CurrentNode)))
		}

		if err := limiter.Increment(); err != nil {
			return fail(&core.StepLimitError{GraphID: g.ID, MaxSteps: e.maxSteps})
		}

		if e.callbacks.BeforeNode != nil {
			if err := e.callbacks.BeforeNode(ctx, node, st); err != nil {
				return fail(fmt.Errorf("executor: before node %s: %w", node.ID, err))
			}
		}

		st.RecordVisit(node.ID)

		res, invErr := e.invokeWithRetries(ctx, node, st)

		if e.callbacks.AfterNode != nil {
			e.callbacks.AfterNode(ctx, node, res, invErr)
		}

		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("executor: run %s: %w", st.RunID, err))
		}

		if invErr == nil {
			st.Merge(res.Outputs)

			if res.AwaitingInput {
				if g.IsPauseNode(node.ID) {
					return finish(e.pause(ctx, g, node, st, res, newResult))
				}
				e.logger.Warn("Input requested outside a pause node; signal ignored", "run_id", st.RunID, "node_id", node.ID)
			}
		}

		if g.IsTerminal(node.ID) {
			if invErr != nil {
				return fail(invErr)
			}
			e.logger.Info("Run completed", "run_id", st.RunID, "terminal_node", node.ID, "steps", limiter.Count())
			e.emit(core.NewEvent(st.RunID, core.EventRunCompleted, node.ID))
			return finish(newResult(true, nil))
		}

		outcome := condition.Outcome{Success: invErr == nil, Context: st.Context}
		edge, found := e.evaluator.Select(g.OutgoingEdges(node.ID), outcome)
		if !found {
			if invErr != nil {
				return fail(invErr)
			}
			return fail(&core.StuckExecutionError{GraphID: g.ID, NodeID: node.ID, Visited: append([]string(nil), st.Visited...)})
		}

		e.logger.Debug("Edge selected", "run_id", st.RunID, "edge_id", edge.ID, "from", node.ID, "to", edge.Target)
		st.CurrentNode = edge.Target
	}
}

// invokeWithRetries runs one node invocation round. The input snapshot is
// taken once so every retry re-submits identical inputs. Retry counters live
// in run state per node id and accumulate across revisits, so cyclic graphs
// cannot burn unbounded attempts on one flaky node.
func (e *Executor) invokeWithRetries(ctx context.Context, node core.NodeSpec, st *core.ExecutionState) (*core.InvocationResult, error) {
	input := inputSnapshot(node, st)

	for {
		attempt := st.RetryCount(node.ID) + 1
		e.emit(nodeEvent(st.RunID, core.EventNodeStarted, node.ID, attempt, nil))

		res, err := e.invoker.Invoke(ctx, core.Invocation{
			RunID:   st.RunID,
			Node:    node,
			Input:   input,
			Attempt: attempt,
		})
		if err == nil {
			if res == nil {
				res = &core.InvocationResult{}
			}
			e.logger.Debug("Node invocation succeeded", "run_id", st.RunID, "node_id", node.ID, "attempt", attempt)
			e.emit(nodeEvent(st.RunID, core.EventNodeCompleted, node.ID, attempt, nil))
			return res, nil
		}

		if ctx.Err() != nil {
			return nil, &core.NodeInvocationError{NodeID: node.ID, Attempts: attempt, Err: err}
		}

		if st.IncrementRetry(node.ID) > node.MaxRetries {
			e.logger.Error("Node invocation failed", "run_id", st.RunID, "node_id", node.ID, "attempts", attempt, "error", err)
			e.emit(nodeEvent(st.RunID, core.EventNodeFailed, node.ID, attempt, err))
			return nil, &core.NodeInvocationError{NodeID: node.ID, Attempts: attempt, Err: err}
		}

		e.logger.Warn("Node invocation failed; retrying", "run_id", st.RunID, "node_id", node.ID, "attempt", attempt, "error", err)
		e.emit(nodeEvent(st.RunID, core.EventNodeRetrying, node.ID, attempt, err))
	}
}

// pause persists a snapshot of the suspended run. A snapshot that cannot be
// persisted fails the run instead of silently losing it.
func (e *Executor) pause(ctx context.Context, g *core.GraphSpec, node core.NodeSpec, st *core.ExecutionState, res *core.InvocationResult, newResult func(bool, error) *core.ExecutionResult) *core.ExecutionResult {
	label := res.ResumeLabel
	if label == "" {
		label = node.ResumeLabel
	}

	ps := st.Pause(g.ID, label)
	if err := e.pauseStore.Save(st.RunID, ps); err != nil {
		err = fmt.Errorf("executor: persist pause snapshot %s: %w", st.RunID, err)
		e.logger.Error("Pause snapshot save failed", "run_id", st.RunID, "node_id", node.ID, "error", err)
		ev := core.NewEvent(st.RunID, core.EventRunFailed, node.ID)
		ev.Data = map[string]any{"error": err.Error()}
		e.emit(ev)
		return newResult(false, err)
	}

	if e.callbacks.OnPause != nil {
		e.callbacks.OnPause(ctx, ps)
	}

	e.logger.Info("Run paused", "run_id", st.RunID, "node_id", node.ID, "resume_label", label)
	ev := core.NewEvent(st.RunID, core.EventRunPaused, node.ID)
	if label != "" {
		ev.Data = map[string]any{"resume_label": label}
	}
	e.emit(ev)

	out := newResult(false, nil)
	out.PausedAt = node.ID
	out.ResumeLabel = label
	return out
}

func (e *Executor) emit(ev core.Event) {
	if e.sink != nil {
		e.sink.Emit(ev)
	}
}

// record writes the run summary when a run store is configured. Recording
// failures are logged, never surfaced; the run result stands on its own.
func (e *Executor) record(g *core.GraphSpec, goal *core.Goal, res *core.ExecutionResult, started time.Time) {
	if e.runStore == nil {
		return
	}
	rec := &core.RunRecord{
		ID:         res.RunID,
		GraphID:    g.ID,
		GoalID:     g.GoalID,
		Status:     res.Status(),
		Steps:      res.StepsExecuted,
		PausedAt:   res.PausedAt,
		StartedAt:  started.UTC(),
		FinishedAt: time.Now().UTC(),
	}
	if rec.GoalID == "" && goal != nil {
		rec.GoalID = goal.ID
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if err := e.runStore.SaveRun(rec); err != nil {
		e.logger.Error("Run record save failed", "run_id", res.RunID, "error", err)
	}
}

// resumeTarget resolves where a resumed run restarts. A snapshot label must
// resolve through the graph's entry points. Snapshots without a label try
// the "default" entry point and finally fall back to the node that paused,
// which re-invokes it with the resume input already in context.
func resumeTarget(g *core.GraphSpec, ps *core.PauseState) (string, error) {
	if ps.ResumeLabel != "" {
		if id, ok := g.ResumeNode(ps.ResumeLabel); ok {
			return id, nil
		}
		return "", core.NewStructuralError(g.ID, fmt.Sprintf("no entry point matches resume label %q", ps.ResumeLabel))
	}
	if id, ok := g.ResumeNode("default"); ok {
		return id, nil
	}
	if _, ok := g.Node(ps.PausedAt); ok {
		return ps.PausedAt, nil
	}
	return "", core.NewStructuralError(g.ID, fmt.Sprintf("paused node %q is not defined", ps.PausedAt))
}

// inputSnapshot builds the invocation input: the full context, or the subset
// named by the node's input keys when declared. Missing keys are omitted
// rather than sent as nulls.
func inputSnapshot(node core.NodeSpec, st *core.ExecutionState) map[string]any {
	if len(node.InputKeys) == 0 {
		return core.CloneContext(st.Context)
	}
	out := make(map[string]any, len(node.InputKeys))
	for _, k := range node.InputKeys {
		if v, ok := st.Get(k); ok {
			out[k] = v
		}
	}
	return core.CloneContext(out)
}

func nodeEvent(runID string, typ core.EventType, nodeID string, attempt int, err error) core.Event {
	ev := core.NewEvent(runID, typ, nodeID)
	ev.Attempt = attempt
	if err != nil {
		ev.Data = map[string]any{"error": err.Error()}
	}
	return ev
}

func graphID(g *core.GraphSpec) string {
	if g == nil {
		return ""
	}
	return g.ID
}
