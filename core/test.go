package core

import "time"

// TestType classifies what a generated test checks.
type TestType string

const (
	// TestConstraint checks that a goal constraint is honored.
	TestConstraint TestType = "constraint"
	// TestSuccessCriteria checks that a success criterion is met.
	TestSuccessCriteria TestType = "success_criteria"
	// TestEdgeCase probes boundaries and unusual inputs.
	TestEdgeCase TestType = "edge_case"
)

// TestStatus is the approval state of a generated test. Transitions are
// one-way: pending may move to approved, modified or rejected; all three
// are terminal. Regeneration (delete + recreate) is a distinct operation,
// not a transition.
type TestStatus string

const (
	// TestPending awaits a human decision and must never execute.
	TestPending TestStatus = "pending"
	// TestApproved was accepted as generated.
	TestApproved TestStatus = "approved"
	// TestModified was accepted with an operator-supplied replacement
	// payload. Runnable, but no further transitions are permitted.
	TestModified TestStatus = "modified"
	// TestRejected was declined and must never execute.
	TestRejected TestStatus = "rejected"
)

// Runnable reports whether the test runner may select a test in this status.
func (s TestStatus) Runnable() bool {
	return s == TestApproved || s == TestModified
}

// GenerationStage names the point in the agent lifecycle a batch of tests
// is generated at. Each stage produces one test type.
type GenerationStage string

const (
	// StageGoal generates constraint tests when the goal is authored.
	StageGoal GenerationStage = "goal"
	// StageBuild generates success-criteria tests once a graph is built.
	StageBuild GenerationStage = "build"
	// StageDebug generates edge-case tests while iterating on failures.
	StageDebug GenerationStage = "debug"
)

// TestType returns the test type produced at this stage.
func (s GenerationStage) TestType() TestType {
	switch s {
	case StageGoal:
		return TestConstraint
	case StageBuild:
		return TestSuccessCriteria
	case StageDebug:
		return TestEdgeCase
	default:
		return TestEdgeCase
	}
}

// Valid reports whether s is a recognized generation stage.
func (s GenerationStage) Valid() bool {
	switch s {
	case StageGoal, StageBuild, StageDebug:
		return true
	}
	return false
}

// Test is a generated check validating a built graph against its goal.
// Created by generation, mutated only through the approval state machine,
// and consumed read-only by the runner.
type Test struct {
	ID     string     `json:"id"`
	GoalID string     `json:"goal_id"`
	Type   TestType   `json:"type"`
	Status TestStatus `json:"status"`
	Name   string     `json:"name"`
	// Description explains what the test verifies and why.
	Description string `json:"description,omitempty"`
	// ParentCriteriaID links the test to the criterion or constraint it
	// checks; tests sharing it are grouped for execution.
	ParentCriteriaID string `json:"parent_criteria_id,omitempty"`
	// Input is the context the graph is executed with.
	Input map[string]any `json:"input"`
	// Expected are the key/value expectations judged against the final
	// context.
	Expected map[string]any `json:"expected"`
	// Code is an optional scripted payload, replaced when an operator
	// modifies the test.
	Code string `json:"code,omitempty"`
	// Confidence is the generator's self-assessed confidence in [0,1].
	Confidence float64 `json:"confidence,omitempty"`
	// Reason records why a rejected test was declined.
	Reason  string    `json:"reason,omitempty"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// Clone returns a deep copy safe to hand across goroutines.
func (t *Test) Clone() *Test {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Input = CloneContext(t.Input)
	cp.Expected = CloneContext(t.Expected)
	return &cp
}

// TestRunResult is the outcome of executing one test against a graph.
type TestRunResult struct {
	TestID    string        `json:"test_id"`
	Passed    bool          `json:"passed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	// Error is the raw failure text; empty when the test passed.
	Error string `json:"error,omitempty"`
	// Category is present iff the test failed.
	Category ErrorCategory `json:"category,omitempty"`
	// Explanation carries the judge's reasoning when available.
	Explanation string `json:"explanation,omitempty"`
}

// ErrorCategory is the root-cause classification of a failing test.
type ErrorCategory string

const (
	// CategoryLogicError means the goal's criteria or constraints are
	// inconsistent with observed behavior; fixing it requires revisiting
	// the goal itself.
	CategoryLogicError ErrorCategory = "LOGIC_ERROR"
	// CategoryImplementationError means the graph's nodes or edges are
	// buggy; fixable without restarting from the goal.
	CategoryImplementationError ErrorCategory = "IMPLEMENTATION_ERROR"
	// CategoryEdgeCase means an unhandled boundary condition surfaced;
	// evaluation continues with a new edge-case test.
	CategoryEdgeCase ErrorCategory = "EDGE_CASE"
)

// Guidance tells the operator where to take a categorized failure.
type Guidance struct {
	Category ErrorCategory `json:"category"`
	// TargetStage is the lifecycle stage to revisit.
	TargetStage string `json:"target_stage"`
	// RestartRequired reports whether iteration must restart from the goal.
	RestartRequired bool   `json:"restart_required"`
	Action          string `json:"action"`
}
