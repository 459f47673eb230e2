package executor

import (
	"context"

	"github.com/hupe1980/goalflow/core"
)

// Callbacks hook user code into run progress. Every field is optional.
// Callbacks run synchronously on the run goroutine; long or blocking work
// belongs behind the event sink instead.
type Callbacks struct {
	// BeforeNode runs before each node invocation round. Returning an error
	// aborts the run before the node is invoked.
	BeforeNode func(ctx context.Context, node core.NodeSpec, st *core.ExecutionState) error

	// AfterNode runs after each node invocation round with the node's result
	// or its final error after retries.
	AfterNode func(ctx context.Context, node core.NodeSpec, res *core.InvocationResult, err error)

	// OnPause runs after a pause snapshot was persisted, before the run
	// returns its paused result.
	OnPause func(ctx context.Context, ps *core.PauseState)
}
