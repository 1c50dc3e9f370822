// Package store persists reasoning cycle traces to SQLite so runs can be
// inspected after the fact.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"bdiagent/internal/agent"
	"bdiagent/internal/logging"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("trace store is closed")

// TraceStore records one row per reasoning cycle, grouped into runs.
// Safe for concurrent use.
type TraceStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	runID  string
	closed bool
}

// Run describes one recorded execution of a multi-agent system.
type Run struct {
	ID        string
	Label     string
	StartedAt time.Time
	Cycles    int64
}

// CycleRecord is a persisted agent.CycleTrace.
type CycleRecord struct {
	ID         int64
	RunID      string
	Agent      string
	Cycle      int64
	Time       int64
	Event      string
	Plan       string
	Goal       string
	Intention  string
	Outcome    string
	EnvEffects int
	Message    string
	RecordedAt time.Time
}

// Filter narrows Cycles. Zero fields match everything.
type Filter struct {
	RunID   string
	Agent   string
	Outcome string
	Limit   int
}

// Open creates (or reuses) the trace database at path.
func Open(path string) (*TraceStore, error) {
	if path == "" {
		return nil, fmt.Errorf("trace database path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps in-memory
	// databases coherent.
	db.SetMaxOpenConns(1)

	ts := &TraceStore{db: db, dbPath: path}
	if err := ts.ensureSchema(); err != nil {
		db.Close()
		logging.Get(logging.CategoryStore).Error("Failed to ensure trace schema: %v", err)
		return nil, fmt.Errorf("failed to ensure trace schema: %w", err)
	}

	logging.Store("TraceStore opened at %s", path)
	return ts, nil
}

func (ts *TraceStore) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS cycles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		agent TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		time INTEGER NOT NULL,
		event TEXT,
		plan TEXT,
		goal TEXT,
		intention TEXT,
		outcome TEXT NOT NULL,
		env_effects INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		recorded_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cycles_run ON cycles(run_id);
	CREATE INDEX IF NOT EXISTS idx_cycles_agent ON cycles(agent);
	CREATE INDEX IF NOT EXISTS idx_cycles_outcome ON cycles(outcome);
	`
	_, err := ts.db.Exec(schema)
	return err
}

// StartRun opens a new run; subsequent cycles are recorded under it.
func (ts *TraceStore) StartRun(label string) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.startRunLocked(label)
}

func (ts *TraceStore) startRunLocked(label string) (string, error) {
	if ts.closed {
		return "", ErrClosed
	}
	id := uuid.NewString()
	if _, err := ts.db.Exec(`INSERT INTO runs (id, label, started_at) VALUES (?, ?, ?)`,
		id, label, time.Now().UnixMilli()); err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	ts.runID = id
	logging.StoreDebug("started run %s (%s)", id, label)
	return id, nil
}

// RunID returns the current run, or "" before the first StartRun.
func (ts *TraceStore) RunID() string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.runID
}

// RecordCycle persists one trace. A run is started implicitly when none is
// active.
func (ts *TraceStore) RecordCycle(tr agent.CycleTrace) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.closed {
		return ErrClosed
	}
	if ts.runID == "" {
		if _, err := ts.startRunLocked(""); err != nil {
			return err
		}
	}

	_, err := ts.db.Exec(`
		INSERT INTO cycles
		(run_id, agent, cycle, time, event, plan, goal, intention, outcome, env_effects, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.runID, tr.AgentName, tr.Cycle, int64(tr.Time), tr.Event, tr.Plan, tr.Goal,
		tr.Intention, tr.Outcome, tr.EnvEffects, tr.Message, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle %d of %s: %w", tr.Cycle, tr.AgentName, err)
	}
	return nil
}

// Cycles returns recorded cycles in insertion order.
func (ts *TraceStore) Cycles(f Filter) ([]CycleRecord, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.closed {
		return nil, ErrClosed
	}

	var where []string
	var args []interface{}
	if f.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Agent != "" {
		where = append(where, "agent = ?")
		args = append(args, f.Agent)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}

	query := `SELECT id, run_id, agent, cycle, time, event, plan, goal, intention,
		outcome, env_effects, message, recorded_at FROM cycles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()
	return scanCycles(rows)
}

func scanCycles(rows *sql.Rows) ([]CycleRecord, error) {
	var out []CycleRecord
	for rows.Next() {
		var r CycleRecord
		var event, plan, goal, intention, message sql.NullString
		var recorded int64
		if err := rows.Scan(&r.ID, &r.RunID, &r.Agent, &r.Cycle, &r.Time, &event, &plan, &goal,
			&intention, &r.Outcome, &r.EnvEffects, &message, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		r.Event, r.Plan, r.Goal = event.String, plan.String, goal.String
		r.Intention, r.Message = intention.String, message.String
		r.RecordedAt = time.UnixMilli(recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists recorded runs, newest first.
func (ts *TraceStore) Runs() ([]Run, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.closed {
		return nil, ErrClosed
	}

	rows, err := ts.db.Query(`
		SELECT r.id, r.label, r.started_at, COUNT(c.id)
		FROM runs r LEFT JOIN cycles c ON c.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.Label, &started, &r.Cycles); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// OutcomeCounts tallies cycle outcomes for a run ("" means every run).
func (ts *TraceStore) OutcomeCounts(runID string) (map[string]int64, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.closed {
		return nil, ErrClosed
	}

	query := `SELECT outcome, COUNT(*) FROM cycles`
	var args []interface{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` GROUP BY outcome`

	rows, err := ts.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Count returns the number of recorded cycles across every run.
func (ts *TraceStore) Count() (int64, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.closed {
		return 0, ErrClosed
	}
	var n int64
	err := ts.db.QueryRow(`SELECT COUNT(*) FROM cycles`).Scan(&n)
	return n, err
}

// Path returns the database location.
func (ts *TraceStore) Path() string {
	return ts.dbPath
}

// Close releases the database. Further calls return ErrClosed.
func (ts *TraceStore) Close() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.closed {
		return nil
	}
	ts.closed = true
	logging.StoreDebug("closing TraceStore at %s", ts.dbPath)
	return ts.db.Close()
}
