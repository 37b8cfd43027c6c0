package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/allyourbase/oraclone/internal/tables"
	"github.com/allyourbase/oraclone/internal/testutil"
)

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "oraclone.db"), testutil.DiscardLogger())
	testutil.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	testutil.NoError(t, j.StartRun(ctx, "run-1", "cds", started))
	testutil.NoError(t, j.RecordTable(ctx, "run-1", tables.Result{
		Schema: "APP", Table: "ORDERS", Status: tables.StatusCopied, Rows: 120, Elapsed: 2500 * time.Millisecond,
	}))
	testutil.NoError(t, j.RecordTable(ctx, "run-1", tables.Result{
		Schema: "APP", Table: "BROKEN", Status: tables.StatusFailed, Rows: 3, Err: errors.New("ORA-01401"),
	}))
	testutil.NoError(t, j.FinishRun(ctx, "run-1", started.Add(time.Minute), nil))

	runs, err := j.Runs(ctx, 10)
	testutil.NoError(t, err)
	testutil.SliceLen(t, runs, 1)
	r := runs[0]
	testutil.Equal(t, "run-1", r.ID)
	testutil.Equal(t, "cds", r.Database)
	testutil.Equal(t, StatusSuccess, r.Status)
	testutil.True(t, r.Started.Equal(started))
	testutil.NotNil(t, r.Finished)
	testutil.True(t, r.Finished.Equal(started.Add(time.Minute)))
	testutil.Equal(t, 2, r.Tables)
	testutil.Equal(t, int64(123), r.Rows)

	list, err := j.Tables(ctx, "run-1")
	testutil.NoError(t, err)
	testutil.SliceLen(t, list, 2)
	testutil.Equal(t, "BROKEN", list[0].Table)
	testutil.Equal(t, "ORA-01401", list[0].Error)
	testutil.Equal(t, "failed", list[0].Status)
	testutil.Equal(t, 2500*time.Millisecond, list[1].Elapsed)
}

func TestFailedRunAndOrdering(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	testutil.NoError(t, j.StartRun(ctx, "old", "", base))
	testutil.NoError(t, j.StartRun(ctx, "new", "", base.Add(time.Hour)))
	testutil.NoError(t, j.FinishRun(ctx, "new", base.Add(2*time.Hour), errors.New("can not drop user: APP what is currently connected")))

	runs, err := j.Runs(ctx, 0)
	testutil.NoError(t, err)
	testutil.SliceLen(t, runs, 2)
	testutil.Equal(t, "new", runs[0].ID)
	testutil.Equal(t, StatusFailed, runs[0].Status)
	testutil.Contains(t, runs[0].Message, "currently connected")
	testutil.Equal(t, StatusRunning, runs[1].Status)
	testutil.True(t, runs[1].Finished == nil)

	runs, err = j.Runs(ctx, 1)
	testutil.NoError(t, err)
	testutil.SliceLen(t, runs, 1)
}

func TestFinishUnknownRun(t *testing.T) {
	j := openTemp(t)
	err := j.FinishRun(context.Background(), "missing", time.Now(), nil)
	testutil.ErrorContains(t, err, "run not found")
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	testutil.NoError(t, j.StartRun(ctx, "run-1", "", time.Now()))

	rec := j.Recorder(ctx, "run-1")
	rec.TableDone(tables.Result{Schema: "APP", Table: "T", Status: tables.StatusCreated})
	testutil.NoError(t, rec.Err())

	list, err := j.Tables(ctx, "run-1")
	testutil.NoError(t, err)
	testutil.SliceLen(t, list, 1)
	testutil.Equal(t, "created", list[0].Status)

	j.Close()
	rec.TableDone(tables.Result{Schema: "APP", Table: "U", Status: tables.StatusCopied})
	testutil.ErrorContains(t, rec.Err(), "recording table APP.U")
}

func TestRebind(t *testing.T) {
	pg := &Journal{postgres: true}
	testutil.Equal(t, "VALUES ($1, $2, $3)", pg.rebind("VALUES (?, ?, ?)"))
	lite := &Journal{}
	testutil.Equal(t, "VALUES (?, ?)", lite.rebind("VALUES (?, ?)"))
}
