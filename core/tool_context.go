package core

import (
	"context"
	"sort"

	"github.com/hupe1980/goalflow/logging"
)

// ToolContext provides a constrained, auditable surface for tool
// implementations invoked during a node attempt. Reads see the node's
// working context; writes accumulate in a delta the invoker merges into the
// node's outputs rather than mutating run state directly.
type ToolContext struct {
	ctx    context.Context
	runID  string
	nodeID string
	callID string
	state  map[string]any
	delta  map[string]any

	awaitingInput bool
	resumeLabel   string

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to one function call.
// The state map is the node's working context; the tool context never
// aliases it for writes.
func NewToolContext(ctx context.Context, logger logging.Logger, runID, nodeID, callID string, state map[string]any) *ToolContext {
	return &ToolContext{
		ctx:           ctx,
		runID:         runID,
		nodeID:        nodeID,
		callID:        callID,
		state:         state,
		delta:         map[string]any{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run the tool call belongs to.
func (tc *ToolContext) RunID() string { return tc.runID }

// NodeID returns the node whose invocation triggered the tool call.
func (tc *ToolContext) NodeID() string { return tc.nodeID }

// FunctionCallID returns the unique id of this tool call.
func (tc *ToolContext) FunctionCallID() string { return tc.callID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// GetValue retrieves a context value, preferring uncommitted writes.
func (tc *ToolContext) GetValue(key string) (any, bool) {
	if v, ok := tc.delta[key]; ok {
		return v, true
	}
	v, ok := tc.state[key]
	return v, ok
}

// SetValue records a context write in the local delta.
func (tc *ToolContext) SetValue(key string, value any) {
	tc.delta[key] = value
}

// Keys returns the sorted union of context keys visible to the tool.
func (tc *ToolContext) Keys() []string {
	seen := map[string]struct{}{}
	for k := range tc.state {
		seen[k] = struct{}{}
	}
	for k := range tc.delta {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Delta returns the accumulated writes for the invoker to merge.
func (tc *ToolContext) Delta() map[string]any { return tc.delta }

// RequestUserInput signals that the node cannot proceed without external
// input. On a pause node this suspends the run; label optionally names the
// resume entry point (empty keeps the node's configured label).
func (tc *ToolContext) RequestUserInput(label string) {
	tc.awaitingInput = true
	tc.resumeLabel = label
	tc.LogInfo("tool.pause.request", "run_id", tc.runID, "node_id", tc.nodeID, "resume_label", label)
}

// AwaitingInput reports whether a pause was requested and with which label.
func (tc *ToolContext) AwaitingInput() (bool, string) {
	return tc.awaitingInput, tc.resumeLabel
}
