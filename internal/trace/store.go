package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"htnplan/internal/logging"
	"htnplan/internal/planner"
)

// Supported database/sql driver names.
const (
	DriverPure = "sqlite"  // modernc.org/sqlite, no cgo
	DriverCgo  = "sqlite3" // github.com/mattn/go-sqlite3
)

// ErrUnknownRun is returned for a run id the store has never seen.
var ErrUnknownRun = errors.New("unknown trace run")

// Store persists planner event streams in SQLite, one run per search.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
	driver string
}

// RunInfo describes one recorded search.
type RunInfo struct {
	ID         string    `json:"id"`
	Planner    string    `json:"planner"`
	Domain     string    `json:"domain"`
	Problem    string    `json:"problem"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Plans      int       `json:"plans"`
	Steps      uint64    `json:"steps"`
	Events     int       `json:"events"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Run statuses.
const (
	StatusRunning   = "running"
	StatusExhausted = "exhausted"
	StatusStopped   = "stopped"
	StatusLimit     = "limit"
	StatusFailed    = "failed"
)

// StatusOf classifies the end of a search: an error ends it as limit or
// failed, otherwise it either ran out of work or was stopped early.
func StatusOf(err error, exhausted bool) string {
	switch {
	case errors.Is(err, planner.ErrRecursionLimit):
		return StatusLimit
	case err != nil:
		return StatusFailed
	case exhausted:
		return StatusExhausted
	}
	return StatusStopped
}

// OpenStore opens or creates the trace database at path. An empty driver
// selects DriverPure. The path ":memory:" keeps everything in memory.
func OpenStore(path, driver string) (*Store, error) {
	if driver == "" {
		driver = DriverPure
	}
	if driver != DriverPure && driver != DriverCgo {
		return nil, fmt.Errorf("unsupported trace driver %q", driver)
	}
	logging.Get(logging.CategoryTrace).Debug("opening trace store: path=%s driver=%s", path, driver)

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if driver == DriverCgo {
			dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	// A memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dbPath: path, driver: driver}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		logging.TraceError("failed to ensure trace schema: %v", err)
		return nil, fmt.Errorf("failed to ensure trace schema: %w", err)
	}
	logging.Trace("trace store ready at %s", path)
	return s, nil
}

func (s *Store) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trace_runs (
		id TEXT PRIMARY KEY,
		planner TEXT NOT NULL,
		domain TEXT NOT NULL,
		problem TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		plans INTEGER NOT NULL DEFAULT 0,
		steps INTEGER NOT NULL DEFAULT 0,
		events INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS trace_events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		depth INTEGER NOT NULL,
		task TEXT,
		payload TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_trace_events_kind ON trace_events(run_id, kind);
	CREATE INDEX IF NOT EXISTS idx_trace_runs_started ON trace_runs(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database path.
func (s *Store) Path() string { return s.dbPath }

// Run is an open recording. It implements planner.EventSink and buffers
// events, writing them in batches.
type Run struct {
	store  *Store
	id     string
	buf    []planner.Event
	events int
	err    error
}

const runBatch = 256

// Begin registers a new run and returns its recorder. plannerID may be filled
// in later by the first event.
func (s *Store) Begin(ctx context.Context, plannerID, domain, problem string) (*Run, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trace_runs (id, planner, domain, problem, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, plannerID, domain, problem, StatusRunning, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to begin trace run: %w", err)
	}
	logging.Get(logging.CategoryTrace).Debug("trace run %s started for %s/%s", id, domain, problem)
	return &Run{store: s, id: id}, nil
}

// ID returns the run id.
func (r *Run) ID() string { return r.id }

// Emit implements planner.EventSink. A write failure is kept and reported
// by Finish; later events are dropped.
func (r *Run) Emit(e planner.Event) {
	if r.err != nil {
		return
	}
	r.buf = append(r.buf, e)
	if len(r.buf) >= runBatch {
		r.err = r.flush(context.Background())
	}
}

func (r *Run) flush(ctx context.Context) error {
	if len(r.buf) == 0 {
		return nil
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events (run_id, seq, kind, depth, task, payload)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare trace insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range r.buf {
		payload, err := json.Marshal(e)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode event %d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, r.id, e.Seq, e.Kind.String(), e.Depth, e.Task, string(payload)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to store event %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace events: %w", err)
	}
	r.events += len(r.buf)
	r.buf = r.buf[:0]
	return nil
}

// Finish writes any buffered events and closes the run with its outcome.
func (r *Run) Finish(ctx context.Context, status, plannerID string, plans int, steps uint64, searchErr error) error {
	if r.err == nil {
		r.err = r.flush(ctx)
	}
	errText := ""
	if searchErr != nil {
		errText = searchErr.Error()
	}
	if r.err != nil {
		status = StatusFailed
		errText = r.err.Error()
	}

	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE trace_runs
		SET planner = CASE WHEN ? = '' THEN planner ELSE ? END,
		    status = ?, error = ?, plans = ?, steps = ?, events = ?, finished_at = ?
		WHERE id = ?`,
		plannerID, plannerID, status, errText, plans, steps, r.events, time.Now().UTC(), r.id)
	if err != nil {
		return fmt.Errorf("failed to finish trace run: %w", err)
	}
	logging.Trace("trace run %s finished: status=%s events=%d", r.id, status, r.events)
	return r.err
}

// Events loads the events of a run in sequence order, optionally restricted
// to some kinds.
func (s *Store) Events(ctx context.Context, runID string, kinds ...planner.EventKind) ([]planner.Event, error) {
	if _, err := s.Run(ctx, runID); err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		allowed[k.String()] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, payload FROM trace_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace events: %w", err)
	}
	defer rows.Close()

	var out []planner.Event
	for rows.Next() {
		var kind, payload string
		if err := rows.Scan(&kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan trace event: %w", err)
		}
		if len(allowed) > 0 && !allowed[kind] {
			continue
		}
		var e planner.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("failed to decode trace event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Run returns one run.
func (s *Store) Run(ctx context.Context, runID string) (RunInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, planner, domain, problem, status, COALESCE(error, ''), plans, steps, events, started_at, finished_at
		FROM trace_runs WHERE id = ?`, runID)
	ri, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return ri, err
}

// Runs lists recorded runs, newest first. limit < 1 means all.
func (s *Store) Runs(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit < 1 {
		limit = -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, planner, domain, problem, status, COALESCE(error, ''), plans, steps, events, started_at, finished_at
		FROM trace_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace runs: %w", err)
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		ri, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ri)
	}
	return out, rows.Err()
}

// Delete removes a run and its events.
func (s *Store) Delete(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trace_events WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("failed to delete trace events: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM trace_runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete trace run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunInfo, error) {
	var ri RunInfo
	var finished sql.NullTime
	err := sc.Scan(&ri.ID, &ri.Planner, &ri.Domain, &ri.Problem, &ri.Status, &ri.Error,
		&ri.Plans, &ri.Steps, &ri.Events, &ri.StartedAt, &finished)
	if err != nil {
		return RunInfo{}, err
	}
	if finished.Valid {
		ri.FinishedAt = finished.Time
	}
	return ri, nil
}
