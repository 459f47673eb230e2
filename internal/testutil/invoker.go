package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/goalflow/core"
)

// ScriptStep is one canned node invocation outcome.
type ScriptStep struct {
	Outputs     map[string]any
	Err         error
	AwaitInput  bool
	ResumeLabel string
}

// Succeed returns a step that completes with the given outputs.
func Succeed(outputs map[string]any) ScriptStep {
	return ScriptStep{Outputs: outputs}
}

// Fail returns a step that fails with err.
func Fail(err error) ScriptStep {
	return ScriptStep{Err: err}
}

// AwaitInput returns a step that signals the run should pause for external
// input, resuming via the given label.
func AwaitInput(label string) ScriptStep {
	return ScriptStep{AwaitInput: true, ResumeLabel: label}
}

// ScriptedInvoker is a canned core.NodeInvoker for executor tests. Each node
// id maps to a queue of steps consumed in invocation order; once a queue is
// exhausted its last step repeats. Nodes without a script succeed with no
// outputs. All invocations are recorded for later assertions.
// Example:
//
//	inv := NewScriptedInvoker().
//		On("a", Fail(errors.New("boom")), Succeed(map[string]any{"ok": true})).
//		On("b", Succeed(nil))
type ScriptedInvoker struct {
	mu      sync.Mutex
	scripts map[string][]ScriptStep
	cursor  map[string]int
	calls   []core.Invocation
}

// NewScriptedInvoker creates an empty scripted invoker.
func NewScriptedInvoker() *ScriptedInvoker {
	return &ScriptedInvoker{scripts: map[string][]ScriptStep{}, cursor: map[string]int{}}
}

// On scripts the given steps for a node id (chainable).
func (s *ScriptedInvoker) On(nodeID string, steps ...ScriptStep) *ScriptedInvoker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[nodeID] = append(s.scripts[nodeID], steps...)
	return s
}

// Invoke implements core.NodeInvoker.
func (s *ScriptedInvoker) Invoke(ctx context.Context, inv core.Invocation) (*core.InvocationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, inv)
	steps, ok := s.scripts[inv.Node.ID]
	var step ScriptStep
	if ok && len(steps) > 0 {
		i := s.cursor[inv.Node.ID]
		if i >= len(steps) {
			i = len(steps) - 1
		} else {
			s.cursor[inv.Node.ID] = i + 1
		}
		step = steps[i]
	}
	s.mu.Unlock()

	if step.Err != nil {
		return nil, step.Err
	}
	return &core.InvocationResult{
		Outputs:       core.CloneContext(step.Outputs),
		AwaitingInput: step.AwaitInput,
		ResumeLabel:   step.ResumeLabel,
	}, nil
}

// Calls returns every recorded invocation in order.
func (s *ScriptedInvoker) Calls() []core.Invocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Invocation, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallIDs returns the node ids of recorded invocations in order.
func (s *ScriptedInvoker) CallIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Node.ID
	}
	return out
}

// CallCount reports how often the given node was invoked.
func (s *ScriptedInvoker) CallCount(nodeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Node.ID == nodeID {
			n++
		}
	}
	return n
}
