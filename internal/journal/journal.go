// Package journal keeps the history of migration runs: one row per run and
// one row per transferred table. The default backend is a local SQLite file;
// a postgres:// URL stores the history in PostgreSQL instead.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	_ "modernc.org/sqlite"             // SQLite driver

	"github.com/allyourbase/oraclone/internal/tables"
)

// Run states.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Run is one migration run.
type Run struct {
	ID       string     `json:"id"`
	Database string     `json:"database"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	Status   string     `json:"status"`
	Message  string     `json:"message,omitempty"`
	Tables   int        `json:"tables"`
	Rows     int64      `json:"rows"`
}

// Table is one table transfer of a run.
type Table struct {
	Schema  string        `json:"schema"`
	Table   string        `json:"table"`
	Rows    int64         `json:"rows"`
	Status  string        `json:"status"`
	Elapsed time.Duration `json:"elapsed"`
	Error   string        `json:"error,omitempty"`
}

var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id       TEXT PRIMARY KEY,
		database TEXT NOT NULL,
		started  TEXT NOT NULL,
		finished TEXT,
		status   TEXT NOT NULL,
		message  TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS run_tables (
		run_id     TEXT NOT NULL REFERENCES runs(id),
		schema     TEXT NOT NULL,
		table_name TEXT NOT NULL,
		rows       BIGINT NOT NULL,
		status     TEXT NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		error      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS run_tables_run ON run_tables(run_id)`,
}

// Journal is the run history store.
type Journal struct {
	db       *sql.DB
	postgres bool
	logger   *slog.Logger
}

// Open opens (and creates if needed) the history at path. A path starting
// with postgres:// or postgresql:// is opened through pgx.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	driver, pg := "sqlite", false
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		driver, pg = "pgx", true
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	stmts := schemaSQL
	if !pg {
		// One connection per handle; other processes wait for the lock.
		db.SetMaxOpenConns(1)
		stmts = append([]string{"PRAGMA busy_timeout = 5000"}, stmts...)
	}
	j := &Journal{db: db, postgres: pg, logger: logger}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating journal schema: %w", err)
		}
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (j *Journal) rebind(query string) string {
	if !j.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// StartRun records a new running run.
func (j *Journal) StartRun(ctx context.Context, id, database string, started time.Time) error {
	_, err := j.db.ExecContext(ctx, j.rebind(
		`INSERT INTO runs (id, database, started, status) VALUES (?, ?, ?, ?)`),
		id, database, formatTime(started), StatusRunning)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", id, err)
	}
	return nil
}

// FinishRun closes a run with its final status.
func (j *Journal) FinishRun(ctx context.Context, id string, finished time.Time, runErr error) error {
	status, message := StatusSuccess, ""
	if runErr != nil {
		status, message = StatusFailed, runErr.Error()
	}
	res, err := j.db.ExecContext(ctx, j.rebind(
		`UPDATE runs SET finished = ?, status = ?, message = ? WHERE id = ?`),
		formatTime(finished), status, message, id)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %s: run not found", id)
	}
	return nil
}

// RecordTable stores one table result of a run.
func (j *Journal) RecordTable(ctx context.Context, runID string, r tables.Result) error {
	var msg string
	if r.Err != nil {
		msg = r.Err.Error()
	}
	_, err := j.db.ExecContext(ctx, j.rebind(
		`INSERT INTO run_tables (run_id, schema, table_name, rows, status, elapsed_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		runID, r.Schema, r.Table, int64(r.Rows), string(r.Status), r.Elapsed.Milliseconds(), msg)
	if err != nil {
		return fmt.Errorf("recording table %s.%s: %w", r.Schema, r.Table, err)
	}
	return nil
}

// Runs returns the most recent runs first, with their table and row totals.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, j.rebind(
		`SELECT r.id, r.database, r.started, r.finished, r.status, r.message,
		        COUNT(t.run_id), COALESCE(SUM(t.rows), 0)
		 FROM runs r LEFT JOIN run_tables t ON t.run_id = r.id
		 GROUP BY r.id, r.database, r.started, r.finished, r.status, r.message
		 ORDER BY r.started DESC
		 LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Database, &started, &finished, &r.Status, &r.Message, &r.Tables, &r.Rows); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if r.Started, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			t, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			r.Finished = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Tables returns the table results of one run ordered by schema and table.
func (j *Journal) Tables(ctx context.Context, runID string) ([]Table, error) {
	rows, err := j.db.QueryContext(ctx, j.rebind(
		`SELECT schema, table_name, rows, status, elapsed_ms, error
		 FROM run_tables WHERE run_id = ? ORDER BY schema, table_name`), runID)
	if err != nil {
		return nil, fmt.Errorf("querying tables of run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		var (
			t  Table
			ms int64
		)
		if err := rows.Scan(&t.Schema, &t.Table, &t.Rows, &t.Status, &ms, &t.Error); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		t.Elapsed = time.Duration(ms) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}

// Recorder returns a table observer that writes every result of runID.
// Write failures are logged; the first one is kept for Err.
func (j *Journal) Recorder(ctx context.Context, runID string) *Recorder {
	return &Recorder{j: j, ctx: ctx, runID: runID}
}

// Recorder stores table results as the pipeline reports them.
type Recorder struct {
	j     *Journal
	ctx   context.Context
	runID string

	mu  sync.Mutex
	err error
}

func (r *Recorder) TableDone(res tables.Result) {
	if err := r.j.RecordTable(r.ctx, r.runID, res); err != nil {
		r.j.logger.Warn("journal write failed", "run", r.runID, "error", err)
		r.mu.Lock()
		if r.err == nil {
			r.err = err
		}
		r.mu.Unlock()
	}
}

// Err returns the first write failure.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.New("journal: bad timestamp " + strconv.Quote(s))
	}
	return t, nil
}
