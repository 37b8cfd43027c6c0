package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/allyourbase/oraclone/internal/archive"
	"github.com/allyourbase/oraclone/internal/cli/ui"
	"github.com/allyourbase/oraclone/internal/config"
	"github.com/allyourbase/oraclone/internal/journal"
	"github.com/allyourbase/oraclone/internal/migrate"
	"github.com/allyourbase/oraclone/internal/notify"
	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/oci/ocisql"
	"github.com/allyourbase/oraclone/internal/runlog"
	"github.com/allyourbase/oraclone/internal/schemas"
	"github.com/allyourbase/oraclone/internal/status"
)

// overrideFlags are the flags config.Load accepts as overrides.
var overrideFlags = []string{"source-uri", "destination-uri", "buffer-size", "luna-calc", "log-dir", "status-addr"}

func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().String("source-uri", "", "Source connect string (host:port/service)")
	cmd.Flags().String("destination-uri", "", "Destination connect string (host:port/service)")
	cmd.Flags().Int("buffer-size", 0, "Transfer buffer size in MB")
	cmd.Flags().Int("luna-calc", 0, "Skip LUNA_CALC rows below this value (0 disables)")
	cmd.Flags().String("log-dir", "", "Directory for migrate.log, errors.log and oraclone.jsonl")
	cmd.Flags().String("status-addr", "", "Serve /health and /status on this address")
}

// loadConfig resolves the config file of db and applies changed flags.
func loadConfig(cmd *cobra.Command, db string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = filepath.Join(config.Dir(db), config.DefaultFile)
	}
	flags := map[string]string{}
	for _, name := range overrideFlags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			flags[name] = f.Value.String()
		}
	}
	return config.Load(path, flags)
}

// logDir places relative log directories inside the database directory.
func logDir(cfg *config.Config, db string) string {
	dir := cfg.Logging.Dir
	if db != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(config.Dir(db), dir)
	}
	return dir
}

// dialer opens one Oracle session per call.
type dialer func(ctx context.Context, addr ocisql.Addr, logger *slog.Logger) (oci.Conn, error)

func openOracle(ctx context.Context, addr ocisql.Addr, logger *slog.Logger) (oci.Conn, error) {
	conn, err := ocisql.Open(ctx, addr, logger)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// runner executes one migration run with its bookkeeping.
type runner struct {
	cfg    *config.Config
	db     string
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
	status *status.Server
	dial   dialer
	// interactive enables the phase reporter and step spinners on stderr.
	interactive bool
}

// journalReporter feeds table results to the journal.
type journalReporter struct {
	migrate.NopReporter
	*journal.Recorder
}

func (r *runner) run(ctx context.Context) (*migrate.Summary, error) {
	runID := uuid.NewString()
	dir := logDir(r.cfg, r.db)
	started := time.Now()

	progress, err := runlog.New(dir, "migrate.log", r.stdout)
	if err != nil {
		return nil, err
	}
	errs, err := runlog.NewErrorLog(dir, "errors.log", r.stdout, r.logger)
	if err != nil {
		progress.Close()
		return nil, err
	}

	tracker := migrate.NewTracker(runID, started)
	if r.status != nil {
		r.status.Track(tracker)
	}
	reporters := migrate.Reporters{tracker}
	if r.interactive {
		reporters = append(reporters, migrate.NewCLIReporter(r.stderr))
	}

	// Bookkeeping outlives a cancelled run.
	bg := context.WithoutCancel(ctx)
	var jr *journal.Journal
	if r.cfg.Journal.Enabled {
		jr, err = journal.Open(bg, r.cfg.Journal.Path, r.logger)
		if err != nil {
			r.logger.Warn("journal unavailable", "error", err)
		} else if err := jr.StartRun(bg, runID, r.db, started); err != nil {
			r.logger.Warn("journal unavailable", "error", err)
			jr.Close()
			jr = nil
		} else {
			reporters = append(reporters, journalReporter{Recorder: jr.Recorder(bg, runID)})
		}
	}

	m, err := migrate.NewMigrator(migrate.Config{
		RunID:          runID,
		Source:         r.connect(r.cfg.Source.Addr()),
		Destination:    r.connect(r.cfg.Destination.Addr()),
		Schemas:        r.cfg.SchemaList(),
		Tables:         r.cfg.TableOptions(),
		Indexes:        r.cfg.IndexConfig(),
		TempTablespace: r.cfg.Transfer.TempTablespace,
		Progress:       progress,
		Errors:         errs,
		Reporter:       reporters,
		Logger:         r.logger.With("run", runID),
	})
	if err != nil {
		progress.Close()
		errs.Close()
		return nil, err
	}

	sum, runErr := m.Migrate(ctx)
	if err := progress.Close(); err != nil {
		r.logger.Warn("closing progress log", "error", err)
	}
	if err := errs.Close(); err != nil {
		r.logger.Warn("closing error log", "error", err)
	}
	sum.PrintSummary(r.stderr)

	if jr != nil {
		if err := jr.FinishRun(bg, runID, sum.Finished, runErr); err != nil {
			r.logger.Warn("journal write failed", "run", runID, "error", err)
		}
		jr.Close()
	}
	r.afterRun(bg, sum, dir)
	return sum, runErr
}

func (r *runner) connect(addr ocisql.Addr) migrate.Dialer {
	dial := r.dial
	if dial == nil {
		dial = openOracle
	}
	return func(ctx context.Context) (oci.Conn, error) {
		return dial(ctx, addr, r.logger)
	}
}

// afterRun archives the logs and sends notifications. Failures are logged
// and never change the result of the run.
func (r *runner) afterRun(ctx context.Context, sum *migrate.Summary, dir string) {
	ns := r.notifiers(ctx)
	total := 0
	if r.cfg.Archive.Enabled {
		total++
	}
	if len(ns) > 0 {
		total++
	}
	if total == 0 {
		return
	}
	steps := ui.NewSteps(r.stderr, total, r.interactive)

	if r.cfg.Archive.Enabled {
		err := steps.Run("Archiving logs", func() error {
			up, err := archive.New(ctx, archive.Config{
				Endpoint:  r.cfg.Archive.Endpoint,
				Bucket:    r.cfg.Archive.Bucket,
				AccessKey: r.cfg.Archive.AccessKey,
				SecretKey: r.cfg.Archive.SecretKey,
				UseSSL:    r.cfg.Archive.UseSSL,
				Prefix:    r.cfg.Archive.Prefix,
			}, r.logger)
			if err != nil {
				return err
			}
			_, err = up.Upload(ctx, sum.RunID,
				filepath.Join(dir, "migrate.log"),
				filepath.Join(dir, "errors.log"),
				filepath.Join(dir, "oraclone.jsonl"),
			)
			return err
		})
		if err != nil {
			r.logger.Warn("log archive failed", "error", err)
		}
	}

	if len(ns) == 0 {
		return
	}
	err := steps.Run(fmt.Sprintf("Sending %d notification(s)", len(ns)), func() error {
		return ns.Notify(ctx, notify.FromSummary(r.db, sum))
	})
	if err != nil {
		r.logger.Warn("notification failed", "error", err)
	}
}

func (r *runner) notifiers(ctx context.Context) notify.Notifiers {
	var ns notify.Notifiers
	n := r.cfg.Notify
	if n.SNSTopicARN != "" {
		pub, err := notify.NewSNSPublisher(ctx, n.SNSRegion)
		if err != nil {
			r.logger.Warn("sns notifications disabled", "error", err)
		} else {
			ns = append(ns, notify.NewSNS(pub, n.SNSTopicARN))
		}
	}
	if n.SMTPHost != "" {
		m, err := notify.NewMail(notify.MailConfig{
			Host:     n.SMTPHost,
			Port:     n.SMTPPort,
			Username: n.SMTPUsername,
			Password: n.SMTPPassword,
			From:     n.From,
			To:       n.To,
		})
		if err != nil {
			r.logger.Warn("mail notifications disabled", "error", err)
		} else {
			ns = append(ns, m)
		}
	}
	return ns
}

// plan describes what a run of cfg would do.
func plan(cfg *config.Config) *migrate.Plan {
	p := &migrate.Plan{Source: cfg.Source.URI, Destination: cfg.Destination.URI}
	all := cfg.SchemaList()
	kept := schemas.Filter(all)
	for _, s := range kept {
		if s.AssumeExists {
			p.Existing = append(p.Existing, s.Name)
		} else {
			p.Recreated = append(p.Recreated, s.Name)
		}
		p.Excluded += len(s.Exclusions)
	}
	if len(kept) < len(all) {
		p.Warnings = append(p.Warnings, fmt.Sprintf("%d system schema(s) listed and never migrated", len(all)-len(kept)))
	}
	if cfg.Transfer.LunaCalc > 0 {
		p.Warnings = append(p.Warnings, fmt.Sprintf("LUNA_CALC rows below %d are not copied", cfg.Transfer.LunaCalc))
	}
	return p
}
