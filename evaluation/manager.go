package evaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/goalflow/core"
	"github.com/hupe1980/goalflow/logging"
)

// Action is one operator decision on a pending test.
type Action string

const (
	// ActionApprove accepts the test as generated.
	ActionApprove Action = "approve"
	// ActionReject declines the test; a reason is required.
	ActionReject Action = "reject"
	// ActionModify accepts the test with a replacement payload.
	ActionModify Action = "modify"
)

// Decision carries one action and its payload. Reason is required for
// reject; at least one of Input/Expected/Code is required for modify.
type Decision struct {
	Action   Action
	Reason   string
	Input    map[string]any
	Expected map[string]any
	Code     string
}

// validTransitions defines the legal status transitions. Approved, modified
// and rejected are all terminal; the only way out is regeneration, which is
// a delete + recreate, not a transition.
var validTransitions = map[core.TestStatus]map[core.TestStatus]bool{
	core.TestPending: {
		core.TestApproved: true,
		core.TestModified: true,
		core.TestRejected: true,
	},
}

// IsValidTransition checks whether a status transition is legal.
func IsValidTransition(from, to core.TestStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Store holds the tests. Defaults to a volatile in-memory store.
	Store core.TestStore
	// Generator produces tests for a goal and stage. Defaults to the
	// deterministic TemplateGenerator.
	Generator Generator
	// Logger receives lifecycle logs. Defaults to a no-op logger.
	Logger logging.Logger
}

// Manager owns the test approval lifecycle: it generates pending tests,
// applies exactly one terminal decision per test, lists by goal and status,
// and regenerates on request. All state lives in the injected TestStore.
type Manager struct {
	store     core.TestStore
	generator Generator
	logger    logging.Logger
}

// NewManager creates a test lifecycle manager.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Store:     NewInMemoryStore(),
		Generator: NewTemplateGenerator(),
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Store == nil {
		opts.Store = NewInMemoryStore()
	}
	if opts.Generator == nil {
		opts.Generator = NewTemplateGenerator()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Manager{store: opts.Store, generator: opts.Generator, logger: opts.Logger}
}

// Store exposes the backing test store for wiring into the runner and CLI.
func (m *Manager) Store() core.TestStore { return m.store }

// Generate produces the stage's tests for the goal and persists them, all
// pending. The graph is optional context for generators that inspect node
// and tool names.
func (m *Manager) Generate(ctx context.Context, goal *core.Goal, g *core.GraphSpec, stage core.GenerationStage) ([]*core.Test, error) {
	if goal == nil {
		return nil, fmt.Errorf("evaluation: generate: goal is required")
	}
	if !stage.Valid() {
		return nil, fmt.Errorf("evaluation: generate: unknown stage %q", stage)
	}

	tests, err := m.generator.Generate(ctx, goal, g, stage)
	if err != nil {
		return nil, fmt.Errorf("evaluation: generate %s tests for goal %s: %w", stage, goal.ID, err)
	}

	now := time.Now().UTC()
	for _, t := range tests {
		if t.ID == "" {
			t.ID = core.NewID()
		}
		t.GoalID = goal.ID
		t.Type = stage.TestType()
		t.Status = core.TestPending
		t.Created = now
		t.Updated = now
		if err := m.store.Create(t); err != nil {
			return nil, fmt.Errorf("evaluation: store test %s: %w", t.ID, err)
		}
	}

	m.logger.Info("Tests generated", "goal_id", goal.ID, "stage", string(stage), "count", len(tests))
	return tests, nil
}

// Approve applies exactly one decision to a pending test. Every action is
// terminal: once a test is approved, modified or rejected, any further
// decision fails with an ApprovalError wrapping core.ErrInvalidTransition.
func (m *Manager) Approve(id string, d Decision) (*core.Test, error) {
	t, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("evaluation: approve %s: %w", id, err)
	}

	target, err := targetStatus(d)
	if err != nil {
		return nil, err
	}
	if !IsValidTransition(t.Status, target) {
		return nil, &core.ApprovalError{TestID: id, Status: t.Status, Op: string(d.Action)}
	}

	switch d.Action {
	case ActionReject:
		if d.Reason == "" {
			return nil, fmt.Errorf("evaluation: reject %s: a reason is required", id)
		}
		t.Reason = d.Reason
	case ActionModify:
		if d.Input == nil && d.Expected == nil && d.Code == "" {
			return nil, fmt.Errorf("evaluation: modify %s: a replacement payload is required", id)
		}
		if d.Input != nil {
			t.Input = core.CloneContext(d.Input)
		}
		if d.Expected != nil {
			t.Expected = core.CloneContext(d.Expected)
		}
		if d.Code != "" {
			t.Code = d.Code
		}
	}

	t.Status = target
	t.Updated = time.Now().UTC()
	if err := m.store.Update(t); err != nil {
		return nil, fmt.Errorf("evaluation: update test %s: %w", id, err)
	}

	m.logger.Info("Test decided", "test_id", id, "action", string(d.Action), "status", string(t.Status))
	return t, nil
}

// List returns the goal's tests, optionally restricted to the given statuses,
// in ascending id order.
func (m *Manager) List(goalID string, statuses ...core.TestStatus) ([]*core.Test, error) {
	return m.store.List(goalID, statuses...)
}

// Get returns one test by id.
func (m *Manager) Get(id string) (*core.Test, error) {
	return m.store.Get(id)
}

// Runnable returns the goal's tests the runner may execute.
func (m *Manager) Runnable(goalID string) ([]*core.Test, error) {
	return m.store.List(goalID, core.TestApproved, core.TestModified)
}

// Regenerate deletes the test and generates a fresh pending replacement for
// the same parent criterion. This is a distinct operation, not a status
// transition, and it is the only way to revisit a terminal test.
func (m *Manager) Regenerate(ctx context.Context, goal *core.Goal, g *core.GraphSpec, id string) (*core.Test, error) {
	old, err := m.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("evaluation: regenerate %s: %w", id, err)
	}

	stage := stageFor(old.Type)
	tests, err := m.generator.Generate(ctx, goal, g, stage)
	if err != nil {
		return nil, fmt.Errorf("evaluation: regenerate %s: %w", id, err)
	}

	replacement := pickReplacement(tests, old.ParentCriteriaID)
	if replacement == nil {
		return nil, fmt.Errorf("evaluation: regenerate %s: generator produced no replacement for criterion %q", id, old.ParentCriteriaID)
	}

	if err := m.store.Delete(id); err != nil {
		return nil, fmt.Errorf("evaluation: regenerate %s: delete: %w", id, err)
	}

	now := time.Now().UTC()
	replacement.ID = core.NewID()
	replacement.GoalID = goal.ID
	replacement.Type = old.Type
	replacement.Status = core.TestPending
	replacement.Created = now
	replacement.Updated = now
	if err := m.store.Create(replacement); err != nil {
		return nil, fmt.Errorf("evaluation: regenerate %s: store replacement: %w", id, err)
	}

	m.logger.Info("Test regenerated", "old_test_id", id, "new_test_id", replacement.ID)
	return replacement, nil
}

func targetStatus(d Decision) (core.TestStatus, error) {
	switch d.Action {
	case ActionApprove:
		return core.TestApproved, nil
	case ActionReject:
		return core.TestRejected, nil
	case ActionModify:
		return core.TestModified, nil
	}
	return "", fmt.Errorf("evaluation: unknown action %q", d.Action)
}

func stageFor(tt core.TestType) core.GenerationStage {
	switch tt {
	case core.TestConstraint:
		return core.StageGoal
	case core.TestSuccessCriteria:
		return core.StageBuild
	default:
		return core.StageDebug
	}
}

func pickReplacement(tests []*core.Test, parentID string) *core.Test {
	for _, t := range tests {
		if t.ParentCriteriaID == parentID {
			return t
		}
	}
	if len(tests) > 0 {
		return tests[0]
	}
	return nil
}
