package core

import "time"

// ExecutionState is the runtime cursor of one in-flight run. It is owned
// exclusively by a single executor loop and is never shared across
// goroutines, so access is unsynchronized by design.
type ExecutionState struct {
	RunID       string
	CurrentNode string
	// Context is the working key/value context threaded through the run.
	Context map[string]any
	// Visited is the ordered sequence of node ids whose invocation was
	// attempted. A retried node appears once, at its first attempt.
	Visited []string
	// Retries counts failed attempts per node id.
	Retries map[string]int
}

// NewExecutionState creates a fresh cursor positioned at the given node.
func NewExecutionState(runID, startNode string, input map[string]any) *ExecutionState {
	return &ExecutionState{
		RunID:       runID,
		CurrentNode: startNode,
		Context:     CloneContext(input),
		Visited:     []string{},
		Retries:     map[string]int{},
	}
}

// ResumeExecutionState reconstructs a cursor from a pause snapshot, merging
// the saved context under the new input (new input wins on key collisions).
func ResumeExecutionState(ps *PauseState, startNode string, input map[string]any) *ExecutionState {
	ctx := CloneContext(ps.Context)
	for k, v := range input {
		ctx[k] = v
	}
	return &ExecutionState{
		RunID:       ps.RunID,
		CurrentNode: startNode,
		Context:     ctx,
		Visited:     append([]string{}, ps.Visited...),
		Retries:     map[string]int{},
	}
}

// Set stores a context value.
func (s *ExecutionState) Set(key string, value any) {
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	s.Context[key] = value
}

// Get returns a context value.
func (s *ExecutionState) Get(key string) (any, bool) {
	v, ok := s.Context[key]
	return v, ok
}

// Merge overlays the given values onto the context.
func (s *ExecutionState) Merge(values map[string]any) {
	if len(values) == 0 {
		return
	}
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	for k, v := range values {
		s.Context[k] = v
	}
}

// RecordVisit appends the node to the visited path. Callers record one
// visit per invocation round; retries within a round are a single visit,
// while cycles and resumed re-entries append again.
func (s *ExecutionState) RecordVisit(nodeID string) {
	s.Visited = append(s.Visited, nodeID)
}

// RetryCount returns the number of failed attempts recorded for the node.
func (s *ExecutionState) RetryCount(nodeID string) int {
	return s.Retries[nodeID]
}

// IncrementRetry records a failed attempt for the node and returns the new count.
func (s *ExecutionState) IncrementRetry(nodeID string) int {
	if s.Retries == nil {
		s.Retries = map[string]int{}
	}
	s.Retries[nodeID]++
	return s.Retries[nodeID]
}

// Pause snapshots the cursor into a serializable PauseState.
func (s *ExecutionState) Pause(graphID, resumeLabel string) *PauseState {
	return &PauseState{
		RunID:       s.RunID,
		GraphID:     graphID,
		PausedAt:    s.CurrentNode,
		ResumeLabel: resumeLabel,
		Context:     CloneContext(s.Context),
		Visited:     append([]string{}, s.Visited...),
		Created:     time.Now().UTC(),
	}
}

// PauseState is the durable snapshot of a suspended run. It is created when
// the executor reaches a pause node and destroyed on successful resume or
// explicit abandonment. Everything needed to reconstruct a cursor lives
// here; nothing about the suspended run survives in process memory.
type PauseState struct {
	RunID       string         `json:"run_id"`
	GraphID     string         `json:"graph_id"`
	PausedAt    string         `json:"paused_at"`
	ResumeLabel string         `json:"resume_label"`
	Context     map[string]any `json:"context"`
	Visited     []string       `json:"visited"`
	Created     time.Time      `json:"created"`
}

// Clone returns a deep copy safe for concurrent readers.
func (p *PauseState) Clone() *PauseState {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Context = CloneContext(p.Context)
	cp.Visited = append([]string{}, p.Visited...)
	return &cp
}

// ExecutionResult is the outcome of one run. Exactly one of normal
// completion (Success), pause (PausedAt non-empty) or fatal error (Err
// non-nil) holds.
type ExecutionResult struct {
	RunID         string
	Success       bool
	StepsExecuted int
	// Output is the final context after the last executed node.
	Output map[string]any
	Err    error
	// PausedAt carries the pause node id when the run suspended.
	PausedAt    string
	ResumeLabel string
	Visited     []string
	Duration    time.Duration
}

// Paused reports whether the run suspended awaiting external input.
func (r *ExecutionResult) Paused() bool { return r.PausedAt != "" }

// Failed reports whether the run aborted with a fatal error.
func (r *ExecutionResult) Failed() bool { return r.Err != nil }

// RunStatus describes the recorded outcome of a run.
type RunStatus string

const (
	// RunCompleted marks a run that reached a terminal node.
	RunCompleted RunStatus = "completed"
	// RunPaused marks a run suspended at a pause node.
	RunPaused RunStatus = "paused"
	// RunFailed marks a run aborted by a fatal error.
	RunFailed RunStatus = "failed"
	// RunAbandoned marks a paused run that was explicitly discarded.
	RunAbandoned RunStatus = "abandoned"
)

// Status derives the run status from the result invariant.
func (r *ExecutionResult) Status() RunStatus {
	switch {
	case r.Paused():
		return RunPaused
	case r.Failed():
		return RunFailed
	default:
		return RunCompleted
	}
}

// CloneContext returns a deep copy of a context mapping. Nested maps and
// slices are copied; scalar values are shared (they are immutable in
// practice since context values round-trip through JSON).
func CloneContext(ctx map[string]any) map[string]any {
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return CloneContext(tv)
	case []any:
		cp := make([]any, len(tv))
		for i, e := range tv {
			cp[i] = cloneValue(e)
		}
		return cp
	default:
		return v
	}
}
