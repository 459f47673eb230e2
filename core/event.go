package core

import "time"

// EventType identifies a point in the run lifecycle.
type EventType string

const (
	// EventRunStarted is emitted once when a fresh run begins.
	EventRunStarted EventType = "run_started"
	// EventRunResumed is emitted once when a paused run is reconstructed.
	EventRunResumed EventType = "run_resumed"
	// EventNodeStarted is emitted before each node attempt.
	EventNodeStarted EventType = "node_started"
	// EventNodeCompleted is emitted after a successful node attempt.
	EventNodeCompleted EventType = "node_completed"
	// EventNodeRetrying is emitted when a failed attempt will be retried.
	EventNodeRetrying EventType = "node_retrying"
	// EventNodeFailed is emitted when a node exhausted its retries.
	EventNodeFailed EventType = "node_failed"
	// EventRunPaused is emitted when the run suspends at a pause node.
	EventRunPaused EventType = "run_paused"
	// EventRunCompleted is emitted when the run reaches a terminal node.
	EventRunCompleted EventType = "run_completed"
	// EventRunFailed is emitted when the run aborts with a fatal error.
	EventRunFailed EventType = "run_failed"
)

// Event is an immutable observability record emitted by the executor.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Type      EventType      `json:"type"`
	NodeID    string         `json:"node_id,omitempty"`
	Attempt   int            `json:"attempt,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// NewEvent constructs an event with a fresh id and timestamp.
func NewEvent(runID string, typ EventType, nodeID string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Type:      typ,
		NodeID:    nodeID,
		Timestamp: time.Now().UTC(),
	}
}

// EventSink consumes executor events. Implementations must be safe for
// concurrent use when shared across test-runner workers and must not block
// for long; the executor emits synchronously.
type EventSink interface {
	Emit(ev Event)
}

// EventSinkFunc adapts a plain function to the EventSink interface.
type EventSinkFunc func(ev Event)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ev Event) { f(ev) }
