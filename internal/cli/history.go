package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/allyourbase/oraclone/internal/cli/ui"
	"github.com/allyourbase/oraclone/internal/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history [db]",
	Short: "List recent migration runs",
	Long: `List the runs recorded in the journal, newest first.
With --run, list the tables of one run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().Int("limit", 20, "Number of runs to list")
	historyCmd.Flags().String("run", "", "Show the tables of this run")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, dbArg(args))
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		return fmt.Errorf("the journal is disabled; set journal.enabled = true to record runs")
	}
	logger, closeLog := newLogger(cfg.Logging.Level, cfg.Logging.Format, "")
	defer closeLog()

	jr, err := journal.Open(cmd.Context(), cfg.Journal.Path, logger)
	if err != nil {
		return err
	}
	defer jr.Close()

	out := cmd.OutOrStdout()
	format := outputFormat(cmd)
	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		list, err := jr.Tables(cmd.Context(), runID)
		if err != nil {
			return err
		}
		return printTables(out, format, list)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := jr.Runs(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printRuns(out, format, runs, ui.ColorEnabled())
}

func printRuns(w io.Writer, format string, runs []journal.Run, color bool) error {
	cols := []string{"RUN", "DATABASE", "STARTED", "DURATION", "STATUS", "TABLES", "ROWS"}
	rows := make([][]string, len(runs))
	for i, r := range runs {
		duration := ""
		if r.Finished != nil {
			duration = r.Finished.Sub(r.Started).Round(time.Second).String()
		}
		rows[i] = []string{
			r.ID, r.Database, r.Started.Format(time.RFC3339), duration, r.Status,
			strconv.Itoa(r.Tables), strconv.FormatInt(r.Rows, 10),
		}
	}

	switch format {
	case "json":
		if runs == nil {
			runs = []journal.Run{}
		}
		return json.NewEncoder(w).Encode(runs)
	case "csv":
		return writeCSV(w, cols, rows)
	}

	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for i, row := range rows {
		row[4] = ui.RunStatus(runs[i].Status, color)
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func printTables(w io.Writer, format string, list []journal.Table) error {
	cols := []string{"SCHEMA", "TABLE", "STATUS", "ROWS", "ELAPSED", "ERROR"}
	rows := make([][]string, len(list))
	for i, t := range list {
		rows[i] = []string{t.Schema, t.Table, t.Status, strconv.FormatInt(t.Rows, 10), t.Elapsed.String(), t.Error}
	}

	switch format {
	case "json":
		if list == nil {
			list = []journal.Table{}
		}
		return json.NewEncoder(w).Encode(list)
	case "csv":
		return writeCSV(w, cols, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
