package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/allyourbase/oraclone/internal/config"
	"github.com/allyourbase/oraclone/internal/journal"
	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/oci/ocisql"
	"github.com/allyourbase/oraclone/internal/testutil"
)

// execute runs the root command with args and returns its output. Flags
// are reset afterwards since cobra keeps their values between runs.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		resetFlags(rootCmd)
	}()
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, config.DefaultFile)
	content := `[source]
uri = "src:1521/ORCL"
user = "system"
password = "manager"

[destination]
uri = "dst:1521/ORCL"
user = "system"
password = "manager"

[[schemas]]
name = "SYS"

[[schemas]]
name = "APP"

[[schemas]]
name = "LEGACY"
assume_exists = true
exclusions = ["AUDIT_LOG", "TMP_LOAD"]
` + extra
	testutil.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3", "abc123", "2026-01-01")
	defer SetVersion("dev", "none", "unknown")
	testutil.Equal(t, "1.2.3", buildVersion)
	testutil.Equal(t, "abc123", buildCommit)
	testutil.Equal(t, "2026-01-01", buildDate)
}

func TestVersionCommand(t *testing.T) {
	SetVersion("0.1.0", "deadbeef", "2026-02-07")
	defer SetVersion("dev", "none", "unknown")

	out, err := execute(t, "version")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "oraclone 0.1.0 (commit: deadbeef")

	out, err = execute(t, "version", "--json")
	testutil.NoError(t, err)
	var v map[string]string
	testutil.NoError(t, json.Unmarshal([]byte(out), &v))
	testutil.Equal(t, "0.1.0", v["version"])
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "cds", config.DefaultFile)

	out, err := execute(t, "config", "init", "--config", path)
	testutil.NoError(t, err)
	testutil.Contains(t, out, "wrote "+path)

	_, err = execute(t, "config", "init", "--config", path)
	testutil.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--config", path, "--force")
	testutil.NoError(t, err)

	out, err = execute(t, "config", "show", "--config", path)
	testutil.NoError(t, err)
	testutil.Contains(t, out, "source-host:1521/ORCL")
	testutil.Contains(t, out, "GRAND_INDEX")
}

func TestConfigShowMasksPasswords(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	out, err := execute(t, "config", "show", "--config", path)
	testutil.NoError(t, err)
	testutil.False(t, strings.Contains(out, "manager"))
	testutil.Contains(t, out, "********")
}

func TestMigrateDryRun(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	out, err := execute(t, "migrate", "--config", path, "--dry-run", "--source-uri", "other:1521/ORCL")
	testutil.NoError(t, err)
	testutil.Contains(t, out, "Migration plan: other:1521/ORCL -> dst:1521/ORCL")
	testutil.Contains(t, out, "Recreated schemas: APP")
	testutil.Contains(t, out, "Existing schemas:  LEGACY")
	testutil.Contains(t, out, "Excluded tables:   2")
	testutil.Contains(t, out, "1 system schema(s) listed and never migrated")
}

func TestMigrateRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	_, err := execute(t, "migrate", "--config", path, "--buffer-size", "0", "--dry-run")
	testutil.ErrorContains(t, err, "transfer.buffer_size_mb must be at least 1, got 0")

	bad := filepath.Join(t.TempDir(), config.DefaultFile)
	testutil.NoError(t, os.WriteFile(bad, []byte("[transfer]\nbuffer_size_mb = 8\n"), 0o644))
	_, err = execute(t, "migrate", "--config", bad)
	testutil.ErrorContains(t, err, "config validation: source.uri is required")
}

func TestScheduleRequiresCron(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	_, err := execute(t, "schedule", "--config", path)
	testutil.ErrorContains(t, err, `required flag(s) "cron" not set`)

	_, err = execute(t, "schedule", "--config", path, "--cron", "every night")
	testutil.ErrorContains(t, err, "invalid cron expression")
}

func TestLogDir(t *testing.T) {
	cfg := config.Default()
	testutil.Equal(t, ".", logDir(cfg, ""))
	testutil.Equal(t, filepath.Join("config", "cds"), logDir(cfg, "cds"))
	cfg.Logging.Dir = "/var/log/oraclone"
	testutil.Equal(t, "/var/log/oraclone", logDir(cfg, "cds"))
}

func TestRunnerRecordsFailedRun(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Source.URI, cfg.Source.User = "src:1521/ORCL", "system"
	cfg.Destination.URI, cfg.Destination.User = "dst:1521/ORCL", "system"
	cfg.Schemas = []config.SchemaConfig{{Name: "APP"}}
	cfg.Logging.Dir = dir
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(dir, "oraclone.db")

	var stdout, stderr bytes.Buffer
	var dialed []string
	r := &runner{
		cfg:    cfg,
		db:     "cds",
		logger: testutil.DiscardLogger(),
		stdout: &stdout,
		stderr: &stderr,
		dial: func(_ context.Context, addr ocisql.Addr, _ *slog.Logger) (oci.Conn, error) {
			dialed = append(dialed, addr.URI)
			return nil, errors.New("ORA-12541: TNS:no listener")
		},
	}
	sum, err := r.run(context.Background())
	testutil.ErrorContains(t, err, "can not connect to source with error: ORA-12541")
	testutil.Equal(t, 1, sum.Errors)
	testutil.Equal(t, "src:1521/ORCL", dialed[0])

	errLog, rerr := os.ReadFile(filepath.Join(dir, "errors.log"))
	testutil.NoError(t, rerr)
	testutil.Contains(t, string(errLog), "migration error: can not connect to source")
	testutil.Contains(t, string(errLog), "TOTAL: 0 hours")
	progress, rerr := os.ReadFile(filepath.Join(dir, "migrate.log"))
	testutil.NoError(t, rerr)
	testutil.True(t, strings.HasPrefix(string(progress), "migration start at "))
	testutil.Contains(t, stderr.String(), "Logged errors: 1")

	jr, jerr := journal.Open(context.Background(), cfg.Journal.Path, testutil.DiscardLogger())
	testutil.NoError(t, jerr)
	defer jr.Close()
	runs, jerr := jr.Runs(context.Background(), 5)
	testutil.NoError(t, jerr)
	testutil.SliceLen(t, runs, 1)
	testutil.Equal(t, sum.RunID, runs[0].ID)
	testutil.Equal(t, journal.StatusFailed, runs[0].Status)
	testutil.Equal(t, "cds", runs[0].Database)
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "oraclone.db")
	path := writeConfig(t, dir, "\n[journal]\nenabled = true\npath = \""+dbPath+"\"\n")

	ctx := context.Background()
	jr, err := journal.Open(ctx, dbPath, testutil.DiscardLogger())
	testutil.NoError(t, err)
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	testutil.NoError(t, jr.StartRun(ctx, "run-1", "cds", started))
	testutil.NoError(t, jr.FinishRun(ctx, "run-1", started.Add(90*time.Second), nil))
	jr.Close()

	out, err := execute(t, "history", "--config", path)
	testutil.NoError(t, err)
	testutil.Contains(t, out, "RUN")
	testutil.Contains(t, out, "run-1")
	testutil.Contains(t, out, "1m30s")
	testutil.Contains(t, out, "success")

	out, err = execute(t, "history", "--config", path, "--json")
	testutil.NoError(t, err)
	var runs []journal.Run
	testutil.NoError(t, json.Unmarshal([]byte(out), &runs))
	testutil.SliceLen(t, runs, 1)

	out, err = execute(t, "history", "--config", path, "--output", "csv", "--run", "run-1")
	testutil.NoError(t, err)
	testutil.Equal(t, "SCHEMA,TABLE,STATUS,ROWS,ELAPSED,ERROR\n", out)
}

func TestHistoryNeedsJournal(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "")
	_, err := execute(t, "history", "--config", path)
	testutil.ErrorContains(t, err, "the journal is disabled")
}

func TestMultiHandlerFansOut(t *testing.T) {
	var text, js bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(&text, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&js, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}
	logger := slog.New(h).With("run", "run-1")
	logger.Info("table copied", "table", "APP.T")
	logger.Warn("migration error", "error", "boom")

	testutil.False(t, strings.Contains(text.String(), "table copied"))
	testutil.Contains(t, text.String(), "migration error")
	testutil.Contains(t, js.String(), `"msg":"table copied"`)
	testutil.Contains(t, js.String(), `"run":"run-1"`)
}

func TestNewLoggerWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, closeLog := newLogger("error", "text", dir)
	logger.Debug("only in the file")
	closeLog()

	data, err := os.ReadFile(filepath.Join(dir, "oraclone.jsonl"))
	testutil.NoError(t, err)
	testutil.Contains(t, string(data), "only in the file")
}

func TestWithStatusSurvivesBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	testutil.NoError(t, err)
	defer ln.Close()

	cfg := config.Default()
	cfg.Status.Addr = ln.Addr().String()
	r := &runner{cfg: cfg, logger: testutil.DiscardLogger()}

	ran := false
	err = withStatus(context.Background(), cfg, r, func(ctx context.Context) error {
		// Give the status server time to fail its listen.
		time.Sleep(100 * time.Millisecond)
		ran = true
		return ctx.Err()
	})
	testutil.NoError(t, err)
	testutil.True(t, ran)
}

func TestWithStatusReturnsMigrationError(t *testing.T) {
	cfg := config.Default()
	cfg.Status.Addr = "127.0.0.1:0"
	r := &runner{cfg: cfg, logger: testutil.DiscardLogger()}

	boom := errors.New("migration error: boom")
	err := withStatus(context.Background(), cfg, r, func(context.Context) error { return boom })
	testutil.ErrorIs(t, err, boom)
}
