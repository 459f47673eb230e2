// Package store provides SQLite-backed persistence for goalflow: paused run
// snapshots, generated tests and run records, all in one database file. The
// in-memory equivalents live next to the components that default to them;
// this package is for deployments that must survive a restart.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/goalflow/core"
)

// schemaV1 defines the initial database schema. Context and payload columns
// hold JSON; everything queried by a WHERE clause gets its own column.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS pauses (
	run_id        TEXT PRIMARY KEY,
	graph_id      TEXT NOT NULL,
	paused_at     TEXT NOT NULL,
	resume_label  TEXT NOT NULL DEFAULT '',
	context_json  TEXT NOT NULL DEFAULT '{}',
	visited_json  TEXT NOT NULL DEFAULT '[]',
	created_unix  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tests (
	id            TEXT PRIMARY KEY,
	goal_id       TEXT NOT NULL,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	parent_id     TEXT NOT NULL DEFAULT '',
	input_json    TEXT NOT NULL DEFAULT '{}',
	expected_json TEXT NOT NULL DEFAULT '{}',
	code          TEXT NOT NULL DEFAULT '',
	confidence    REAL NOT NULL DEFAULT 0.0,
	reason        TEXT NOT NULL DEFAULT '',
	created_unix  INTEGER NOT NULL DEFAULT 0,
	updated_unix  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_tests_goal_status ON tests(goal_id, status);

CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	graph_id      TEXT NOT NULL,
	goal_id       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	steps         INTEGER NOT NULL DEFAULT 0,
	paused_at     TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	started_unix  INTEGER NOT NULL DEFAULT 0,
	finished_unix INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_unix);
`

// DB wraps the SQLite handle and implements core.PauseStore, core.TestStore
// and core.RunStore over it.
type DB struct {
	db *sql.DB
}

var (
	_ core.PauseStore = (*DB)(nil)
	_ core.TestStore  = (*DB)(nil)
	_ core.RunStore   = (*DB)(nil)
)

// Open opens (or creates) the database at the given path with recommended
// pragmas and runs the schema migration.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database handle.
func (s *DB) Close() error { return s.db.Close() }

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}

// Save implements core.PauseStore with last-writer-wins per run id.
func (s *DB) Save(runID string, state *core.PauseState) error {
	contextJSON, err := json.Marshal(state.Context)
	if err != nil {
		return fmt.Errorf("encode pause context: %w", err)
	}
	visitedJSON, err := json.Marshal(state.Visited)
	if err != nil {
		return fmt.Errorf("encode pause visited: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO pauses (run_id, graph_id, paused_at, resume_label, context_json, visited_json, created_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			graph_id = excluded.graph_id,
			paused_at = excluded.paused_at,
			resume_label = excluded.resume_label,
			context_json = excluded.context_json,
			visited_json = excluded.visited_json,
			created_unix = excluded.created_unix`,
		runID, state.GraphID, state.PausedAt, state.ResumeLabel,
		string(contextJSON), string(visitedJSON), state.Created.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save pause for run %s: %w", runID, err)
	}
	return nil
}

// Load implements core.PauseStore. A missing snapshot is (nil, nil).
func (s *DB) Load(runID string) (*core.PauseState, error) {
	row := s.db.QueryRow(`
		SELECT graph_id, paused_at, resume_label, context_json, visited_json, created_unix
		FROM pauses WHERE run_id = ?`, runID)

	var (
		ps          = core.PauseState{RunID: runID}
		contextJSON string
		visitedJSON string
		createdUnix int64
	)
	err := row.Scan(&ps.GraphID, &ps.PausedAt, &ps.ResumeLabel, &contextJSON, &visitedJSON, &createdUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pause for run %s: %w", runID, err)
	}

	if err := json.Unmarshal([]byte(contextJSON), &ps.Context); err != nil {
		return nil, fmt.Errorf("decode pause context for run %s: %w", runID, err)
	}
	if err := json.Unmarshal([]byte(visitedJSON), &ps.Visited); err != nil {
		return nil, fmt.Errorf("decode pause visited for run %s: %w", runID, err)
	}
	ps.Created = time.Unix(createdUnix, 0).UTC()
	return &ps, nil
}

// Delete implements core.PauseStore. Deleting an unknown run id is a no-op.
func (s *DB) Delete(runID string) error {
	if _, err := s.db.Exec(`DELETE FROM pauses WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete pause for run %s: %w", runID, err)
	}
	return nil
}

// Create implements core.TestStore with last-writer-wins per test id.
func (s *DB) Create(t *core.Test) error {
	inputJSON, expectedJSON, err := encodeTestPayload(t)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO tests (id, goal_id, type, status, name, description, parent_id,
			input_json, expected_json, code, confidence, reason, created_unix, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			goal_id = excluded.goal_id,
			type = excluded.type,
			status = excluded.status,
			name = excluded.name,
			description = excluded.description,
			parent_id = excluded.parent_id,
			input_json = excluded.input_json,
			expected_json = excluded.expected_json,
			code = excluded.code,
			confidence = excluded.confidence,
			reason = excluded.reason,
			created_unix = excluded.created_unix,
			updated_unix = excluded.updated_unix`,
		t.ID, t.GoalID, string(t.Type), string(t.Status), t.Name, t.Description, t.ParentCriteriaID,
		inputJSON, expectedJSON, t.Code, t.Confidence, t.Reason, t.Created.Unix(), t.Updated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create test %s: %w", t.ID, err)
	}
	return nil
}

// Get implements core.TestStore.
func (s *DB) Get(id string) (*core.Test, error) {
	row := s.db.QueryRow(testSelect+` WHERE id = ?`, id)
	t, err := scanTest(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrTestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test %s: %w", id, err)
	}
	return t, nil
}

// Update implements core.TestStore.
func (s *DB) Update(t *core.Test) error {
	inputJSON, expectedJSON, err := encodeTestPayload(t)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE tests SET goal_id = ?, type = ?, status = ?, name = ?, description = ?,
			parent_id = ?, input_json = ?, expected_json = ?, code = ?, confidence = ?,
			reason = ?, updated_unix = ?
		WHERE id = ?`,
		t.GoalID, string(t.Type), string(t.Status), t.Name, t.Description,
		t.ParentCriteriaID, inputJSON, expectedJSON, t.Code, t.Confidence,
		t.Reason, t.Updated.Unix(), t.ID,
	)
	if err != nil {
		return fmt.Errorf("update test %s: %w", t.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update test %s: %w", t.ID, err)
	}
	if affected == 0 {
		return core.ErrTestNotFound
	}
	return nil
}

// List implements core.TestStore, in ascending id order.
func (s *DB) List(goalID string, statuses ...core.TestStatus) ([]*core.Test, error) {
	query := testSelect + ` WHERE goal_id = ?`
	args := []any{goalID}
	if len(statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tests for goal %s: %w", goalID, err)
	}
	defer rows.Close()

	var out []*core.Test
	for rows.Next() {
		t, err := scanTest(rows)
		if err != nil {
			return nil, fmt.Errorf("list tests for goal %s: %w", goalID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveRun implements core.RunStore with last-writer-wins per run id.
func (s *DB) SaveRun(rec *core.RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, graph_id, goal_id, status, steps, paused_at, error, started_unix, finished_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			graph_id = excluded.graph_id,
			goal_id = excluded.goal_id,
			status = excluded.status,
			steps = excluded.steps,
			paused_at = excluded.paused_at,
			error = excluded.error,
			started_unix = excluded.started_unix,
			finished_unix = excluded.finished_unix`,
		rec.ID, rec.GraphID, rec.GoalID, string(rec.Status), rec.Steps,
		rec.PausedAt, rec.Error, rec.StartedAt.Unix(), rec.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun implements core.RunStore.
func (s *DB) GetRun(id string) (*core.RunRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, graph_id, goal_id, status, steps, paused_at, error, started_unix, finished_unix
		FROM runs WHERE id = ?`, id)

	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns implements core.RunStore, newest first.
func (s *DB) ListRuns(limit int) ([]*core.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, graph_id, goal_id, status, steps, paused_at, error, started_unix, finished_unix
		FROM runs ORDER BY finished_unix DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*core.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const testSelect = `
	SELECT id, goal_id, type, status, name, description, parent_id,
		input_json, expected_json, code, confidence, reason, created_unix, updated_unix
	FROM tests`

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTest(row scanner) (*core.Test, error) {
	var (
		t            core.Test
		typ, status  string
		inputJSON    string
		expectedJSON string
		createdUnix  int64
		updatedUnix  int64
	)
	err := row.Scan(&t.ID, &t.GoalID, &typ, &status, &t.Name, &t.Description, &t.ParentCriteriaID,
		&inputJSON, &expectedJSON, &t.Code, &t.Confidence, &t.Reason, &createdUnix, &updatedUnix)
	if err != nil {
		return nil, err
	}

	t.Type = core.TestType(typ)
	t.Status = core.TestStatus(status)
	if err := json.Unmarshal([]byte(inputJSON), &t.Input); err != nil {
		return nil, fmt.Errorf("decode input for test %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(expectedJSON), &t.Expected); err != nil {
		return nil, fmt.Errorf("decode expected for test %s: %w", t.ID, err)
	}
	t.Created = time.Unix(createdUnix, 0).UTC()
	t.Updated = time.Unix(updatedUnix, 0).UTC()
	return &t, nil
}

func scanRun(row scanner) (*core.RunRecord, error) {
	var (
		rec          core.RunRecord
		status       string
		startedUnix  int64
		finishedUnix int64
	)
	err := row.Scan(&rec.ID, &rec.GraphID, &rec.GoalID, &status, &rec.Steps,
		&rec.PausedAt, &rec.Error, &startedUnix, &finishedUnix)
	if err != nil {
		return nil, err
	}
	rec.Status = core.RunStatus(status)
	rec.StartedAt = time.Unix(startedUnix, 0).UTC()
	rec.FinishedAt = time.Unix(finishedUnix, 0).UTC()
	return &rec, nil
}

func encodeTestPayload(t *core.Test) (inputJSON, expectedJSON string, err error) {
	in, err := json.Marshal(orEmpty(t.Input))
	if err != nil {
		return "", "", fmt.Errorf("encode input for test %s: %w", t.ID, err)
	}
	exp, err := json.Marshal(orEmpty(t.Expected))
	if err != nil {
		return "", "", fmt.Errorf("encode expected for test %s: %w", t.ID, err)
	}
	return string(in), string(exp), nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
