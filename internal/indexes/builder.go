// Package indexes builds primary keys and secondary indexes of loaded tables
// on a worker goroutine with its own destination session, off the path of
// the row transfer.
package indexes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/tables"
)

// Dialer opens the builder's own destination session.
type Dialer func(ctx context.Context) (oci.Conn, error)

// ErrorLog receives non-fatal failures.
type ErrorLog interface {
	Error(msg string)
}

// Config holds builder parameters.
type Config struct {
	// QueueSize bounds the submissions waiting for the worker.
	QueueSize  int
	Tablespace string
}

// DefaultConfig returns the builder defaults.
func DefaultConfig() Config {
	return Config{QueueSize: 600, Tablespace: "GRAND_INDEX"}
}

type task struct {
	schema string
	table  tables.Table
}

// Stats counts what the worker did.
type Stats struct {
	PrimaryKeys int64
	Indexes     int64
	Failed      int64
}

// Builder consumes submitted tables in order. Close must be called after
// the last Submit; it waits until the queue is drained.
type Builder struct {
	dial   Dialer
	errs   ErrorLog
	logger *slog.Logger
	cfg    Config

	queue     chan task
	wg        sync.WaitGroup
	closeOnce sync.Once

	primaryKeys atomic.Int64
	indexes     atomic.Int64
	failed      atomic.Int64
}

func NewBuilder(dial Dialer, errs ErrorLog, logger *slog.Logger, cfg Config) *Builder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Builder{
		dial:   dial,
		errs:   errs,
		logger: logger,
		cfg:    cfg,
		queue:  make(chan task, cfg.QueueSize),
	}
}

// Start launches the worker. A failed connection is logged once and every
// submission is then discarded.
func (b *Builder) Start(ctx context.Context) {
	b.wg.Add(1)
	go b.run(ctx)
	b.logger.Info("index builder started", "queue", b.cfg.QueueSize)
}

// Submit queues t of schema. It blocks while the queue is full.
func (b *Builder) Submit(schema string, t tables.Table) {
	b.queue <- task{schema: schema, table: t}
}

// Close signals that no more tables follow and waits for the worker to
// finish the queued ones.
func (b *Builder) Close() {
	b.closeOnce.Do(func() { close(b.queue) })
	b.wg.Wait()
	b.logger.Info("index builder stopped",
		"primary_keys", b.primaryKeys.Load(),
		"indexes", b.indexes.Load(),
		"failed", b.failed.Load(),
	)
}

// Stats returns the counters so far.
func (b *Builder) Stats() Stats {
	return Stats{PrimaryKeys: b.primaryKeys.Load(), Indexes: b.indexes.Load(), Failed: b.failed.Load()}
}

func (b *Builder) run(ctx context.Context) {
	defer b.wg.Done()
	conn, err := b.dial(ctx)
	if err != nil {
		b.errs.Error(fmt.Sprintf("can not connect to destination from index builder, error: %v", err))
		for range b.queue {
		}
		return
	}
	defer conn.Close()

	for t := range b.queue {
		b.build(ctx, conn, t)
	}
}

// build creates the primary key, then every secondary index. A failure is
// logged and the remaining statements still run.
func (b *Builder) build(ctx context.Context, conn oci.Conn, t task) {
	if pk := t.table.PK; pk != nil {
		sql := PrimaryKeySQL(t.schema, t.table, b.cfg.Tablespace)
		err := oci.Exec(ctx, conn, sql)
		switch {
		case err == nil:
			b.primaryKeys.Add(1)
		case tolerated(err):
		default:
			b.failed.Add(1)
			b.errs.Error(fmt.Sprintf("can not create primary key: %s.%s with error: %v\n   sql: %s", t.schema, pk.Name, err, sql))
		}
	}
	for _, idx := range t.table.Indexes {
		sql := IndexSQL(t.schema, t.table.Name, idx, t.table.Temporary, b.cfg.Tablespace)
		err := oci.Exec(ctx, conn, sql)
		switch {
		case err == nil:
			b.indexes.Add(1)
		case tolerated(err):
		default:
			b.failed.Add(1)
			b.errs.Error(fmt.Sprintf("can not create index: %s.%s with error: %v\n   sql: %s", t.schema, idx.Name, err, sql))
		}
	}
}

// tolerated reports the codes that mean the key or index is already there.
func tolerated(err error) bool {
	switch oci.Code(err) {
	case oci.ErrIndexColumnsIndexed, oci.ErrConstraintNameInUse, oci.ErrNameInUse:
		return true
	}
	return false
}

// PrimaryKeySQL renders the primary key constraint of t.
func PrimaryKeySQL(schema string, t tables.Table, tablespace string) string {
	sql := fmt.Sprintf("alter table %s.%s add constraint %s primary key (%s)",
		schema, t.Name, t.PK.Name, strings.Join(t.PK.Columns, ","))
	if !t.Temporary {
		sql += " using index tablespace " + tablespace
	}
	return sql
}

// IndexSQL renders a secondary index of table. Indexes of regular tables
// go to tablespace without redo logging.
func IndexSQL(schema, table string, idx tables.Index, temporary bool, tablespace string) string {
	var b strings.Builder
	b.WriteString("create ")
	if idx.Unique {
		b.WriteString("unique ")
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = `"` + c.Name + `"`
		if c.Desc {
			cols[i] += " DESC"
		}
	}
	fmt.Fprintf(&b, "index %s.%s on %s.%s(%s)", schema, idx.Name, schema, table, strings.Join(cols, ","))
	if !temporary {
		b.WriteString(" tablespace " + tablespace + " NOLOGGING")
	}
	return b.String()
}
