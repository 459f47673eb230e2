package core

import "time"

// RunRecord is the durable trace of one run outcome, kept for listing and
// inspection. The executor writes one record per Execute/Resume when a
// RunStore is configured.
type RunRecord struct {
	ID         string    `json:"id"`
	GraphID    string    `json:"graph_id"`
	GoalID     string    `json:"goal_id"`
	Status     RunStatus `json:"status"`
	Steps      int       `json:"steps"`
	PausedAt   string    `json:"paused_at,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// RunStore records run outcomes. Get returns ErrRunNotFound when no record
// exists for the id.
type RunStore interface {
	SaveRun(rec *RunRecord) error
	GetRun(id string) (*RunRecord, error)
	// ListRuns returns the most recent records, newest first.
	ListRuns(limit int) ([]*RunRecord, error)
}
