package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/allyourbase/oraclone/internal/cli/ui"
	"github.com/allyourbase/oraclone/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule [db]",
	Short: "Run migrations on a cron schedule",
	Long: `Wait for each tick of a cron expression and run a full migration.
Runs never overlap; the command stops on interrupt.

  oraclone schedule --cron "0 2 * * *" cds`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSchedule,
}

func init() {
	addOverrideFlags(scheduleCmd)
	scheduleCmd.Flags().String("cron", "", "Cron expression (required)")
	scheduleCmd.Flags().String("timezone", "", "Timezone of the cron expression (default UTC)")
	_ = scheduleCmd.MarkFlagRequired("cron")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	db := dbArg(args)
	expr, _ := cmd.Flags().GetString("cron")
	tz, _ := cmd.Flags().GetString("timezone")
	if _, err := schedule.NextTime(expr, tz, time.Now()); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, db)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog := newLogger(cfg.Logging.Level, cfg.Logging.Format, logDir(cfg, db))
	defer closeLog()

	sched, err := schedule.New(expr, tz, logger)
	if err != nil {
		return err
	}

	r := &runner{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		stdout:      cmd.OutOrStdout(),
		stderr:      cmd.ErrOrStderr(),
		interactive: ui.ColorEnabled(),
	}
	return withStatus(ctx, cfg, r, func(ctx context.Context) error {
		sched.OnNext = func(next time.Time) {
			if r.status != nil {
				r.status.SetNextRun(next)
			}
		}
		return sched.Run(ctx, func(ctx context.Context) error {
			_, err := r.run(ctx)
			return err
		})
	})
}
