package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allyourbase/oraclone/internal/grants"
	"github.com/allyourbase/oraclone/internal/indexes"
	"github.com/allyourbase/oraclone/internal/objects"
	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/replicate"
	"github.com/allyourbase/oraclone/internal/schemas"
	"github.com/allyourbase/oraclone/internal/tables"
)

// Phase names in run order.
const (
	PhaseDrop              = "Drop schemas"
	PhaseCreate            = "Create schemas"
	PhaseTables            = "Tables"
	PhaseIndexes           = "Indexes"
	PhaseForeignKeys       = "Foreign keys"
	PhaseObjects           = "Objects"
	PhaseMaterializedViews = "Materialized views"
	PhaseTriggers          = "Triggers"
	PhaseCompile           = "Compile"
)

var phases = []string{
	PhaseDrop, PhaseCreate, PhaseTables, PhaseIndexes, PhaseForeignKeys,
	PhaseObjects, PhaseMaterializedViews, PhaseTriggers, PhaseCompile,
}

// Dialer opens one database session.
type Dialer func(ctx context.Context) (oci.Conn, error)

// Log is the line-oriented progress log.
type Log interface {
	Print(text string)
	Println(text string)
	Newline()
	Flush()
}

// ErrorLog receives non-fatal failures.
type ErrorLog interface {
	Error(msg string)
}

// Config wires a Migrator.
type Config struct {
	RunID string
	// Source and Destination open the two main sessions; the index builder
	// dials Destination once more for its own session.
	Source      Dialer
	Destination Dialer
	Schemas     []schemas.Schema

	Tables         tables.Options
	Indexes        indexes.Config
	TempTablespace string

	Progress Log
	Errors   ErrorLog
	Reporter ProgressReporter
	Logger   *slog.Logger
}

// Summary is the outcome of one run.
type Summary struct {
	RunID             string
	Started           time.Time
	Finished          time.Time
	Tables            []tables.Result
	Failed            []string
	Indexes           indexes.Stats
	Sequences         replicate.Result
	ForeignKeys       replicate.Result
	Objects           objects.Result
	MaterializedViews replicate.Result
	Triggers          replicate.Result
	Errors            int
	Err               error
}

// Rows returns the number of rows copied.
func (s *Summary) Rows() int64 {
	var n int64
	for _, t := range s.Tables {
		n += int64(t.Rows)
	}
	return n
}

// Migrator runs the phases of a migration in order.
type Migrator struct {
	cfg Config
	now func() time.Time
}

func NewMigrator(cfg Config) (*Migrator, error) {
	if cfg.Source == nil || cfg.Destination == nil {
		return nil, fmt.Errorf("source and destination dialers are required")
	}
	if cfg.Progress == nil || cfg.Errors == nil {
		return nil, fmt.Errorf("progress and error logs are required")
	}
	if cfg.Reporter == nil {
		cfg.Reporter = NopReporter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TempTablespace == "" {
		cfg.TempTablespace = "TEMP"
	}
	return &Migrator{cfg: cfg, now: time.Now}, nil
}

// Migrate runs every phase and writes the final outcome line. Phases after
// the index drain run only when the schema and table phases succeeded.
func (m *Migrator) Migrate(ctx context.Context) (*Summary, error) {
	sum := &Summary{RunID: m.cfg.RunID, Started: m.now()}
	err := m.run(ctx, sum)
	if err != nil {
		sum.Err = err
		m.cfg.Errors.Error("migration error: " + err.Error())
		m.cfg.Logger.Error("migration failed", "run", m.cfg.RunID, "error", err)
	} else {
		m.cfg.Progress.Println("migration success")
		m.cfg.Logger.Info("migration finished", "run", m.cfg.RunID, "tables", len(sum.Tables), "rows", sum.Rows())
	}
	sum.Finished = m.now()
	if c, ok := m.cfg.Errors.(interface{ Count() int }); ok {
		sum.Errors = c.Count()
	}
	return sum, err
}

func (m *Migrator) phase(name string, items int, fn func() (int, error)) error {
	p := Phase{Name: name, Total: len(phases)}
	for i, n := range phases {
		if n == name {
			p.Index = i + 1
		}
	}
	start := m.now()
	m.cfg.Reporter.StartPhase(p, items)
	done, err := fn()
	if err != nil {
		m.cfg.Reporter.Warn(fmt.Sprintf("%s: %v", name, err))
		return err
	}
	m.cfg.Reporter.CompletePhase(p, done, m.now().Sub(start))
	return nil
}

func (m *Migrator) run(ctx context.Context, sum *Summary) error {
	src, err := m.cfg.Source(ctx)
	if err != nil {
		return fmt.Errorf("can not connect to source with error: %w", err)
	}
	defer src.Close()
	dst, err := m.cfg.Destination(ctx)
	if err != nil {
		return fmt.Errorf("can not connect to destination with error: %w", err)
	}
	defer dst.Close()

	list := schemas.Filter(m.cfg.Schemas)
	names := schemas.Names(list)
	var recreated []schemas.Schema
	for _, s := range list {
		if !s.AssumeExists {
			recreated = append(recreated, s)
		}
	}
	users := schemas.NewManager(dst, m.cfg.Progress, m.cfg.Logger, m.cfg.Tables.DataTablespace, m.cfg.TempTablespace)

	err = m.phase(PhaseDrop, len(recreated), func() (int, error) {
		for i, s := range recreated {
			m.cfg.Progress.Println("drop " + s.Name)
			if err := users.Drop(ctx, s.Name); err != nil {
				return i, err
			}
		}
		return len(recreated), nil
	})
	if err != nil {
		return err
	}
	err = m.phase(PhaseCreate, len(recreated), func() (int, error) {
		for i, s := range recreated {
			m.cfg.Progress.Println("create " + s.Name)
			if err := users.Create(ctx, s); err != nil {
				return i, err
			}
		}
		return len(recreated), nil
	})
	if err != nil {
		return err
	}

	propagator, err := grants.New(ctx, src, dst, m.cfg.Errors, m.cfg.Logger)
	if err != nil {
		return err
	}
	defer propagator.Close()
	rep := replicate.New(src, dst, propagator, m.cfg.Errors, m.cfg.Logger)

	builder := indexes.NewBuilder(indexes.Dialer(m.cfg.Destination), m.cfg.Errors, m.cfg.Logger, m.cfg.Indexes)
	builder.Start(ctx)

	loadErr := m.phase(PhaseTables, len(list), func() (int, error) {
		return m.load(ctx, src, dst, list, propagator, builder, rep, sum)
	})

	m.cfg.Progress.Println("wait for INDEXES...")
	_ = m.phase(PhaseIndexes, 0, func() (int, error) {
		builder.Close()
		sum.Indexes = builder.Stats()
		return int(sum.Indexes.PrimaryKeys + sum.Indexes.Indexes), nil
	})
	if loadErr != nil {
		return loadErr
	}
	return m.accessories(ctx, src, dst, list, names, propagator, rep, users, sum)
}

func (m *Migrator) load(ctx context.Context, src, dst oci.Conn, list []schemas.Schema, propagator *grants.Propagator, builder *indexes.Builder, rep *replicate.Replicator, sum *Summary) (int, error) {
	observer, _ := m.cfg.Reporter.(TableObserver)
	pipeline, err := tables.NewPipeline(ctx, tables.Config{
		Source:      src,
		Destination: dst,
		Grants:      propagator,
		Indexes:     builder,
		Progress:    m.cfg.Progress,
		Errors:      m.cfg.Errors,
		Logger:      m.cfg.Logger,
		Options:     m.cfg.Tables,
		OnTable: func(res tables.Result) {
			sum.Tables = append(sum.Tables, res)
			if res.Status == tables.StatusFailed {
				sum.Failed = append(sum.Failed, res.Schema+"."+res.Table)
			}
			if observer != nil {
				observer.TableDone(res)
			}
		},
	})
	if err != nil {
		return 0, err
	}
	defer pipeline.Close()

	for i, s := range list {
		m.cfg.Progress.Newline()
		m.cfg.Progress.Println(fmt.Sprintf("schema [ %s ]", s.Name))
		if _, err := pipeline.Run(ctx, s.Name, s.Exclusions); err != nil {
			return i, err
		}
		m.cfg.Progress.Newline()
		m.cfg.Progress.Println("  SEQUENCES...")
		res, err := rep.Sequences(ctx, s.Name)
		add(&sum.Sequences, res)
		if err != nil {
			return i, err
		}
		m.cfg.Reporter.Progress(Phase{Name: PhaseTables, Index: 3, Total: len(phases)}, i+1, len(list))
	}
	m.cfg.Progress.Newline()
	return len(list), nil
}

func (m *Migrator) accessories(ctx context.Context, src, dst oci.Conn, list []schemas.Schema, names []string, propagator *grants.Propagator, rep *replicate.Replicator, users *schemas.Manager, sum *Summary) error {
	_ = m.phase(PhaseForeignKeys, 0, func() (int, error) {
		m.cfg.Progress.Println("FOREIGN KEYS...")
		res, err := rep.ForeignKeys(ctx, names)
		sum.ForeignKeys = res
		if err != nil {
			m.cfg.Errors.Error(err.Error())
		}
		return res.Created, nil
	})

	err := m.phase(PhaseObjects, 0, func() (int, error) {
		m.cfg.Progress.Println("ACCESSORIES...")
		res, err := objects.NewMigrator(src, dst, propagator, m.cfg.Errors, m.cfg.Logger).Run(ctx, names, schemas.Existing(list))
		sum.Objects = res
		return res.Created + res.Existing, err
	})
	if err != nil {
		return err
	}

	err = m.phase(PhaseMaterializedViews, 0, func() (int, error) {
		m.cfg.Progress.Println("SNAPSHOTS...")
		res, err := rep.MaterializedViews(ctx, names)
		sum.MaterializedViews = res
		return res.Created, err
	})
	if err != nil {
		return err
	}

	err = m.phase(PhaseTriggers, 0, func() (int, error) {
		m.cfg.Progress.Println("TRIGGERS...")
		res, err := rep.Triggers(ctx, names)
		sum.Triggers = res
		return res.Created, err
	})
	if err != nil {
		return err
	}

	m.cfg.Progress.Newline()
	return m.phase(PhaseCompile, len(names), func() (int, error) {
		for i, s := range names {
			m.cfg.Progress.Println("compile " + s)
			if err := users.Compile(ctx, s); err != nil {
				return i, err
			}
		}
		return len(names), nil
	})
}

func add(dst *replicate.Result, r replicate.Result) {
	dst.Created += r.Created
	dst.Skipped += r.Skipped
	dst.Failed += r.Failed
}
