package migrate

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/allyourbase/oraclone/internal/indexes"
	"github.com/allyourbase/oraclone/internal/replicate"
	"github.com/allyourbase/oraclone/internal/tables"
	"github.com/allyourbase/oraclone/internal/testutil"
)

func TestCLIReporter(t *testing.T) {
	t.Run("complete phase output", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewCLIReporter(&buf)

		phase := Phase{Name: "Tables", Index: 3, Total: 9}
		r.StartPhase(phase, 10)
		r.CompletePhase(phase, 10, 200*time.Millisecond)

		output := buf.String()
		testutil.Contains(t, output, "[3/9]")
		testutil.Contains(t, output, "Tables")
		testutil.Contains(t, output, "10 items")
		testutil.Contains(t, output, "200ms")
	})

	t.Run("zero items shows skipped", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewCLIReporter(&buf)

		phase := Phase{Name: "Drop schemas", Index: 1, Total: 9}
		r.StartPhase(phase, 0)
		r.CompletePhase(phase, 0, 5*time.Millisecond)

		testutil.Contains(t, buf.String(), "skipped")
	})

	t.Run("seconds formatting", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewCLIReporter(&buf)

		r.CompletePhase(Phase{Name: "Indexes", Index: 4, Total: 9}, 5000, 2500*time.Millisecond)
		testutil.Contains(t, buf.String(), "2.5s")
	})

	t.Run("progress needs a total", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewCLIReporter(&buf)

		r.Progress(Phase{Name: "Tables", Index: 3, Total: 9}, 1, 0)
		testutil.Equal(t, "", buf.String())
		r.Progress(Phase{Name: "Tables", Index: 3, Total: 9}, 1, 2)
		testutil.Contains(t, buf.String(), "1/2")
	})

	t.Run("warn output", func(t *testing.T) {
		var buf bytes.Buffer
		r := NewCLIReporter(&buf)

		r.Warn("Tables: can not load table struct")
		testutil.Contains(t, buf.String(), "Warning: Tables: can not load table struct")
	})
}

func TestNopReporter(t *testing.T) {
	// NopReporter should not panic on any method call.
	r := NopReporter{}
	phase := Phase{Name: "Tables", Index: 1, Total: 1}
	r.StartPhase(phase, 100)
	r.Progress(phase, 50, 100)
	r.CompletePhase(phase, 100, time.Second)
	r.Warn("test warning")
}

func TestTracker(t *testing.T) {
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tr := NewTracker("run-1", started)
	var reporter ProgressReporter = Reporters{NopReporter{}, tr}

	tables1 := Phase{Name: PhaseTables, Index: 3, Total: 9}
	reporter.StartPhase(tables1, 2)
	testutil.Equal(t, PhaseTables, tr.Snapshot().Phase)

	obs := reporter.(TableObserver)
	obs.TableDone(tables.Result{Schema: "APP", Table: "A", Status: tables.StatusCopied, Rows: 10})
	obs.TableDone(tables.Result{Schema: "APP", Table: "B", Status: tables.StatusFailed, Rows: 3})
	obs.TableDone(tables.Result{Schema: "RPT", Table: "C", Status: tables.StatusCreated})
	reporter.Warn("slow")
	reporter.CompletePhase(tables1, 2, time.Second)

	snap := tr.Snapshot()
	testutil.Equal(t, "run-1", snap.RunID)
	testutil.Equal(t, "", snap.Phase)
	testutil.SliceLen(t, snap.Completed, 1)
	testutil.Equal(t, int64(13), snap.Rows)
	testutil.Equal(t, SchemaCounts{Copied: 1, Failed: 1, Rows: 13}, snap.Schemas["APP"])
	testutil.Equal(t, SchemaCounts{Created: 1}, snap.Schemas["RPT"])
	testutil.Equal(t, 1, snap.Warnings)

	snap.Schemas["APP"] = SchemaCounts{}
	testutil.Equal(t, 1, tr.Snapshot().Schemas["APP"].Copied)
}

func TestPlanReport(t *testing.T) {
	var buf bytes.Buffer
	p := &Plan{
		Source:      "src.example:1521/ORCL",
		Destination: "dst.example:1521/ORCL",
		Recreated:   []string{"APP", "RPT"},
		Existing:    []string{"LEGACY"},
		Excluded:    3,
		Warnings:    []string{"schema SYS is never migrated"},
	}
	p.PrintReport(&buf)

	out := buf.String()
	testutil.Contains(t, out, "Migration plan: src.example:1521/ORCL -> dst.example:1521/ORCL")
	testutil.Contains(t, out, "Recreated schemas: APP, RPT")
	testutil.Contains(t, out, "Existing schemas:  LEGACY")
	testutil.Contains(t, out, "Excluded tables:   3")
	testutil.Contains(t, out, "- schema SYS is never migrated")

	buf.Reset()
	(&Plan{}).PrintReport(&buf)
	testutil.Contains(t, buf.String(), "Recreated schemas: none")
}

func TestPrintSummary(t *testing.T) {
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := &Summary{
		Started:  started,
		Finished: started.Add(1500 * time.Millisecond),
		Tables: []tables.Result{
			{Schema: "APP", Table: "A", Status: tables.StatusCopied, Rows: 7},
			{Schema: "APP", Table: "B", Status: tables.StatusFailed, Err: errors.New("boom")},
		},
		Failed:    []string{"APP.B"},
		Indexes:   indexes.Stats{PrimaryKeys: 1, Indexes: 2},
		Sequences: replicate.Result{Created: 4, Skipped: 1},
		Errors:    2,
	}
	var buf bytes.Buffer
	s.PrintSummary(&buf)

	out := buf.String()
	testutil.Contains(t, out, "Rows copied: 7 in 1.5s")
	testutil.Contains(t, out, "Logged errors: 2")
	testutil.Contains(t, out, "- APP.B")
	testutil.Equal(t, int64(7), s.Rows())
}
