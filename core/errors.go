package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrTestNotFound is returned by TestStore implementations when no test
// exists for the requested id.
var ErrTestNotFound = errors.New("test not found")

// ErrRunNotFound is returned by RunStore implementations when no run record
// exists for the requested id.
var ErrRunNotFound = errors.New("run not found")

// ErrInvalidTransition rejects a test status change outside the one-way
// state machine. Wrapped by ApprovalError with the concrete details.
var ErrInvalidTransition = errors.New("invalid test status transition")

// StructuralError reports a malformed graph. It is fatal and surfaced
// before any execution attempt; the validator aggregates every issue it
// finds into one error.
type StructuralError struct {
	GraphID string
	Issues  []string
}

// NewStructuralError constructs a StructuralError for the given graph.
func NewStructuralError(graphID string, issues ...string) *StructuralError {
	return &StructuralError{GraphID: graphID, Issues: issues}
}

func (e *StructuralError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("graph %s: %s", e.GraphID, e.Issues[0])
	}
	return fmt.Sprintf("graph %s: %d structural problems: %s", e.GraphID, len(e.Issues), strings.Join(e.Issues, "; "))
}

// NodeInvocationError reports a node capability call that failed after
// exhausting its retry budget. Routed via on_failure edges when any exist.
type NodeInvocationError struct {
	NodeID   string
	Attempts int
	Err      error
}

func (e *NodeInvocationError) Error() string {
	return fmt.Sprintf("node %s failed after %d attempt(s): %v", e.NodeID, e.Attempts, e.Err)
}

// Unwrap exposes the underlying capability error to errors.Is/As.
func (e *NodeInvocationError) Unwrap() error { return e.Err }

// StuckExecutionError reports a run that stopped on a non-terminal node
// with no eligible outgoing edge. The validator cannot rule this out in
// general because conditional edges depend on runtime context.
type StuckExecutionError struct {
	GraphID string
	NodeID  string
	Visited []string
}

func (e *StuckExecutionError) Error() string {
	return fmt.Sprintf("run stuck at non-terminal node %s in graph %s: no eligible outgoing edge", e.NodeID, e.GraphID)
}

// StepLimitError reports a run that exceeded its configured step budget,
// usually a cycle the graph's conditions never exit.
type StepLimitError struct {
	GraphID  string
	MaxSteps int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("run in graph %s exceeded max steps (%d)", e.GraphID, e.MaxSteps)
}

// TestTimeoutError records a test that exceeded its per-test budget. It is
// a failed test, never a runner crash.
type TestTimeoutError struct {
	TestID  string
	Timeout time.Duration
}

func (e *TestTimeoutError) Error() string {
	return fmt.Sprintf("test %s exceeded timeout of %s", e.TestID, e.Timeout)
}

// ApprovalError rejects an operation that would violate the human-in-the-
// loop gate: running a pending/rejected test, or transitioning a test out
// of a terminal status.
type ApprovalError struct {
	TestID string
	Status TestStatus
	Op     string
}

func (e *ApprovalError) Error() string {
	return fmt.Sprintf("cannot %s test %s in status %q", e.Op, e.TestID, e.Status)
}

// Unwrap lets callers match the transition class via errors.Is.
func (e *ApprovalError) Unwrap() error { return ErrInvalidTransition }
