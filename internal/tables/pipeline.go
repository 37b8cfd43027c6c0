package tables

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/runlog"
)

// ProgressLog receives the per-table progress line.
type ProgressLog interface {
	Print(text string)
	Newline()
	Flush()
}

// ErrorLog receives non-fatal failures.
type ErrorLog interface {
	Error(msg string)
}

// Granter copies the privileges of one object.
type Granter interface {
	Grant(ctx context.Context, owner, object string) error
}

// IndexSubmitter takes a loaded table whose keys and indexes are still to
// be built.
type IndexSubmitter interface {
	Submit(schema string, t Table)
}

// Options tune the transfer.
type Options struct {
	// BufferSize is the byte budget of one batch, indicators included.
	BufferSize   int
	LobChunkSize int
	// LunaCalc restricts tables with a LUNA_CALC column when positive.
	LunaCalc       int
	DataTablespace string
	IOTMaxRows     int
	IOTMaxColumns  int
	// BindCharset tags character binds on the destination insert.
	BindCharset oci.Charset
}

// DefaultOptions returns the transfer defaults.
func DefaultOptions() Options {
	return Options{
		BufferSize:     16 << 20,
		LobChunkSize:   1 << 20,
		DataTablespace: "DATA",
		IOTMaxRows:     5000,
		IOTMaxColumns:  6,
		BindCharset:    oci.CharsetEE8ISO8859P2,
	}
}

// Status is the outcome of one table.
type Status string

const (
	StatusCopied      Status = "copied"
	StatusCreated     Status = "created"
	StatusExists      Status = "exists"
	StatusUnsupported Status = "unsupported"
	StatusFailed      Status = "failed"
)

// Result reports one table.
type Result struct {
	Schema  string
	Table   string
	Status  Status
	Rows    int
	IOT     bool
	Elapsed time.Duration
	Err     error
}

// Config wires a Pipeline.
type Config struct {
	Source      oci.Conn
	Destination oci.Conn
	Grants      Granter
	Indexes     IndexSubmitter
	Progress    ProgressLog
	Errors      ErrorLog
	Logger      *slog.Logger
	Options     Options
	// OnTable, when set, is called after every table.
	OnTable func(Result)
}

// Pipeline recreates and loads the tables of a schema, one table at a time.
type Pipeline struct {
	cfg     Config
	catalog *Catalog
	chunk   []byte
}

// NewPipeline prepares the source catalog queries.
func NewPipeline(ctx context.Context, cfg Config) (*Pipeline, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options.BufferSize <= 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", cfg.Options.BufferSize)
	}
	if cfg.Options.LobChunkSize <= 0 {
		return nil, fmt.Errorf("LOB chunk size must be positive, got %d", cfg.Options.LobChunkSize)
	}
	catalog, err := NewCatalog(ctx, cfg.Source)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, catalog: catalog, chunk: make([]byte, cfg.Options.LobChunkSize)}, nil
}

// Close releases the catalog queries.
func (p *Pipeline) Close() error { return p.catalog.Close() }

// Run transfers every table of schema except the excluded ones. Table
// failures are logged and the run goes on; only a catalog failure is
// returned.
func (p *Pipeline) Run(ctx context.Context, schema string, exclusions []string) ([]Result, error) {
	tables, err := p.catalog.Load(ctx, schema, exclusions)
	if err != nil {
		return nil, err
	}
	p.cfg.Logger.Info("transferring tables", "schema", schema, "tables", len(tables))
	results := make([]Result, 0, len(tables))
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := p.Transfer(ctx, schema, t)
		results = append(results, res)
		if p.cfg.OnTable != nil {
			p.cfg.OnTable(res)
		}
	}
	if err := p.cfg.Destination.Commit(ctx, oci.CommitImmediate); err != nil {
		return results, fmt.Errorf("can not commit schema %s: %w", schema, err)
	}
	return results, nil
}

// Transfer recreates and loads one table, prints its progress line, grants
// its privileges and hands it to the index builder.
func (p *Pipeline) Transfer(ctx context.Context, schema string, t Table) Result {
	res := Result{Schema: schema, Table: t.Name, IOT: t.IOT}
	p.info(t)
	start := time.Now()

	switch {
	case t.Unsupported:
		res.Status = StatusUnsupported
		p.cfg.Progress.Newline()
		return res
	case t.Temporary:
		res.Status = StatusCreated
		if err := p.create(ctx, schema, t, false); err != nil {
			if oci.Code(err) == oci.ErrNameInUse {
				res.Status = StatusExists
			} else {
				res.Status, res.Err = StatusFailed, err
				p.cfg.Errors.Error(err.Error())
			}
		}
	default:
		rows, iot, exists, err := p.copy(ctx, schema, t)
		res.Rows, res.IOT = rows, iot
		res.Elapsed = time.Since(start)
		switch {
		case err != nil:
			res.Status, res.Err = StatusFailed, err
			_ = p.cfg.Destination.Rollback(ctx)
			p.cfg.Progress.Newline()
			p.cfg.Errors.Error(err.Error())
			p.cfg.Logger.Warn("table transfer failed", "schema", schema, "table", t.Name, "rows", rows, "error", err)
			return res
		case exists:
			res.Status = StatusExists
			p.cfg.Progress.Print(" allready exists")
		default:
			res.Status = StatusCopied
			p.cfg.Progress.Print(runlog.LPad(fmt.Sprintf(" %d rows", rows), 15) + runlog.Elapsed(res.Elapsed))
		}
	}
	p.cfg.Progress.Newline()

	if res.Status == StatusFailed {
		return res
	}
	if p.cfg.Grants != nil {
		if err := p.cfg.Grants.Grant(ctx, schema, t.Name); err != nil {
			p.cfg.Errors.Error(fmt.Sprintf("can not load grants for table: %s.%s with error: %v", schema, t.Name, err))
		}
	}
	if !res.IOT && res.Status != StatusExists && p.cfg.Indexes != nil {
		p.cfg.Indexes.Submit(schema, t.Clone())
	}
	return res
}

// info prints the start of the progress line: the name and a marker for
// temporary, unsupported, primary-keyed or filtered tables.
func (p *Pipeline) info(t Table) {
	marker := " "
	switch {
	case t.Temporary:
		marker = "  temporary"
	case t.Unsupported:
		marker = "unsupported"
	case t.PK != nil:
		marker = "P"
	case t.LunaCalc:
		marker = "L"
	}
	p.cfg.Progress.Print("  " + runlog.RPad(t.Name, 40) + marker)
	p.cfg.Progress.Flush()
}

func (p *Pipeline) create(ctx context.Context, schema string, t Table, iot bool) error {
	err := oci.Exec(ctx, p.cfg.Destination, CreateTableSQL(schema, t, iot, p.cfg.Options.DataTablespace))
	if err == nil {
		return nil
	}
	switch oci.Code(err) {
	case oci.ErrNameInUse:
		return err
	case oci.ErrUserNotFound:
		return fmt.Errorf("can not create table: %s because user %s does not exists: %w", t.Name, schema, err)
	}
	return fmt.Errorf("can not create table: %s with error: %w", t.Name, err)
}

// copy streams the rows of t. The destination table is created after the
// first batch, once its size is known for the index-organized heuristic;
// an existing table is left alone.
func (p *Pipeline) copy(ctx context.Context, schema string, t Table) (total int, iot, exists bool, err error) {
	o := p.cfg.Options
	src, dst := p.cfg.Source, p.cfg.Destination
	iot = t.IOT

	reader, err := src.Prepare(ctx, ReadSQL(schema, t, o.LunaCalc))
	if err != nil {
		return 0, iot, false, fmt.Errorf("can not create reader for table: %s with error: %w", t.Name, err)
	}
	defer reader.Close()
	writer, err := dst.Prepare(ctx, WriteSQL(schema, t))
	if err != nil {
		return 0, iot, false, fmt.Errorf("can not create writer for table: %s with error: %w", t.Name, err)
	}
	defer writer.Close()

	rows := PrefetchRows(t, o.BufferSize)
	buf, err := NewTransferBuffer(ctx, t, rows, src, dst)
	if err != nil {
		return 0, iot, false, fmt.Errorf("can not bind reader/writer for table: %s with error: %w", t.Name, err)
	}
	defer buf.Free(ctx)
	if err := buf.Bind(t, reader, writer, o.BindCharset); err != nil {
		return 0, iot, false, fmt.Errorf("can not bind reader/writer for table: %s with error: %w", t.Name, err)
	}
	if err := reader.SetAttr(oci.AttrPrefetchRows, uint32(rows)); err != nil {
		return 0, iot, false, fmt.Errorf("can not set prefetch for table: %s with error: %w", t.Name, err)
	}
	if err := reader.SetAttr(oci.AttrPrefetchMemory, uint32(o.BufferSize/8)); err != nil {
		return 0, iot, false, fmt.Errorf("can not set prefetch for table: %s with error: %w", t.Name, err)
	}
	if err := reader.Execute(ctx, 0); err != nil {
		return 0, iot, false, fmt.Errorf("can not execute reader for table: %s with error: %w", t.Name, err)
	}

	first := true
	for {
		ferr := reader.Fetch(ctx, rows)
		if ferr != nil && !oci.IsNoData(ferr) {
			return total, iot, false, fmt.Errorf("can not fetch from table: %s with error: %w", t.Name, ferr)
		}
		done := ferr != nil
		fetched, err := reader.Attr(oci.AttrRowsFetched)
		if err != nil {
			return total, iot, false, fmt.Errorf("can not fetch from table: %s with error: %w", t.Name, err)
		}
		n := int(fetched)

		if first {
			iot = t.qualifiesForIOT(n, o)
			if err := p.create(ctx, schema, t, iot); err != nil {
				if oci.Code(err) == oci.ErrNameInUse {
					return total, iot, true, nil
				}
				return total, iot, false, err
			}
		}

		if n > 0 {
			if err := buf.CheckLengths(t, n); err != nil {
				return total, iot, false, fmt.Errorf("can not write to table: %s with error: %w", t.Name, err)
			}
			if t.HasLob {
				if err := buf.CopyLobs(ctx, t, p.chunk); err != nil {
					return total, iot, false, fmt.Errorf("can not copy LOB for table: %s with error: %w", t.Name, err)
				}
			}
			if err := writer.Execute(ctx, n); err != nil {
				return total, iot, false, fmt.Errorf("can not write to table: %s %d row with error: %w, prefetch: %d rows, first_chunk: %t",
					t.Name, total+n, err, rows, first)
			}
			if err := dst.Commit(ctx, oci.CommitNowait); err != nil {
				return total, iot, false, fmt.Errorf("can not commit table: %s with error: %w", t.Name, err)
			}
			total += n
		}
		first = false
		if done || n == 0 {
			return total, iot, false, nil
		}
	}
}
