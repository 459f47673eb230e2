package core

import "context"

// Invocation is one attempt to execute a node. The executor builds it from
// the current cursor; Input is the context restricted to the node's declared
// input keys (or the full context when none are declared).
type Invocation struct {
	RunID string
	Node  NodeSpec
	Input map[string]any
	// Attempt is 1 for the first try and increments with each retry.
	Attempt int
}

// InvocationResult carries the observable effects of a successful node
// attempt. A failed attempt is reported through the error return of
// NodeInvoker.Invoke instead.
type InvocationResult struct {
	// Outputs are merged into the run context under the executor's control.
	Outputs map[string]any
	// AwaitingInput signals that the node cannot proceed without external
	// input. On a pause node this suspends the run.
	AwaitingInput bool
	// ResumeLabel optionally overrides the node's resume entry label.
	ResumeLabel string
}

// NodeInvoker is the opaque capability contract the executor drives. How a
// node does its work (model calls, tool loops, routing, plain functions) is
// entirely the invoker's concern; the executor only sequences attempts and
// consumes results.
//
// Invoke returns an error when the attempt failed; the executor applies the
// node's retry policy before routing via on_failure edges.
type NodeInvoker interface {
	Invoke(ctx context.Context, inv Invocation) (*InvocationResult, error)
}

// InvokerFunc adapts a plain function to the NodeInvoker interface.
type InvokerFunc func(ctx context.Context, inv Invocation) (*InvocationResult, error)

// Invoke implements NodeInvoker.
func (f InvokerFunc) Invoke(ctx context.Context, inv Invocation) (*InvocationResult, error) {
	return f(ctx, inv)
}
