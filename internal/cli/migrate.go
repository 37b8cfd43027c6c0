package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/allyourbase/oraclone/internal/cli/ui"
	"github.com/allyourbase/oraclone/internal/config"
	"github.com/allyourbase/oraclone/internal/journal"
	"github.com/allyourbase/oraclone/internal/status"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate [db]",
	Short: "Run one migration",
	Long: `Drop and recreate the configured schemas on the destination, copy their
tables, then rebuild indexes, sequences, grants, foreign keys, views,
synonyms, stored code, materialized views and triggers.

With a db argument the configuration is read from config/<db>/oraclone.toml
and the logs are written to that directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMigrate,
}

func init() {
	addOverrideFlags(migrateCmd)
	migrateCmd.Flags().Bool("dry-run", false, "Print the migration plan and exit")
}

func dbArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db := dbArg(args)
	cfg, err := loadConfig(cmd, db)
	if err != nil {
		return err
	}
	if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
		plan(cfg).PrintReport(cmd.OutOrStdout())
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog := newLogger(cfg.Logging.Level, cfg.Logging.Format, logDir(cfg, db))
	defer closeLog()

	r := &runner{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		stdout:      cmd.OutOrStdout(),
		stderr:      cmd.ErrOrStderr(),
		interactive: ui.ColorEnabled(),
	}
	return withStatus(ctx, cfg, r, func(ctx context.Context) error {
		_, err := r.run(ctx)
		return err
	})
}

// withStatus runs fn, serving the status endpoint next to it when
// configured. The server stops when fn returns.
func withStatus(ctx context.Context, cfg *config.Config, r *runner, fn func(context.Context) error) error {
	if cfg.Status.Addr == "" {
		return fn(ctx)
	}

	var history status.History
	if cfg.Journal.Enabled {
		jr, err := journal.Open(ctx, cfg.Journal.Path, r.logger)
		if err != nil {
			r.logger.Warn("run history unavailable", "error", err)
		} else {
			defer jr.Close()
			history = jr
		}
	}
	r.status = status.New(cfg.Status.Addr, history, r.logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The migration keeps running without its status endpoint.
		if err := r.status.Run(gctx); err != nil {
			r.logger.Error("status server stopped", "address", cfg.Status.Addr, "error", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}
