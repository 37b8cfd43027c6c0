// Package migrate runs a full schema migration: user lifecycle, table
// transfer, background indexes, and the objects that depend on them.
package migrate

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/allyourbase/oraclone/internal/tables"
)

// Phase represents a named migration phase (e.g., "Tables", "Triggers").
type Phase struct {
	Name  string
	Index int // 1-based index (1 of 9)
	Total int
}

// ProgressReporter receives progress updates from a migrator.
type ProgressReporter interface {
	// StartPhase is called when a new migration phase begins.
	StartPhase(phase Phase, totalItems int)
	// Progress is called as items are processed within a phase.
	Progress(phase Phase, completed int, totalItems int)
	// CompletePhase is called when a phase finishes.
	CompletePhase(phase Phase, totalItems int, elapsed time.Duration)
	// Warn reports a non-fatal warning.
	Warn(msg string)
}

// TableObserver is implemented by reporters that want every table result.
type TableObserver interface {
	TableDone(res tables.Result)
}

// CLIReporter prints progress to a terminal writer.
type CLIReporter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewCLIReporter creates a reporter that writes to w.
func NewCLIReporter(w io.Writer) *CLIReporter {
	return &CLIReporter{w: w}
}

func (r *CLIReporter) StartPhase(phase Phase, totalItems int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "  [%d/%d] %-20s", phase.Index, phase.Total, phase.Name)
}

func (r *CLIReporter) Progress(phase Phase, completed int, totalItems int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if totalItems > 0 {
		fmt.Fprintf(r.w, "\r  [%d/%d] %-20s %d/%d",
			phase.Index, phase.Total, phase.Name, completed, totalItems)
	}
}

func (r *CLIReporter) CompletePhase(phase Phase, totalItems int, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := fmt.Sprintf("%d items", totalItems)
	if totalItems == 0 {
		label = "skipped"
	}
	fmt.Fprintf(r.w, "\r  [%d/%d] %-20s %-20s done  (%s)\n",
		phase.Index, phase.Total, phase.Name, label, formatDuration(elapsed))
}

func (r *CLIReporter) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "  Warning: %s\n", msg)
}

// NopReporter discards all progress updates (used in tests and --json mode).
type NopReporter struct{}

func (NopReporter) StartPhase(Phase, int)                   {}
func (NopReporter) Progress(Phase, int, int)                {}
func (NopReporter) CompletePhase(Phase, int, time.Duration) {}
func (NopReporter) Warn(string)                             {}

// Reporters fans every update out to each reporter in order.
type Reporters []ProgressReporter

func (rs Reporters) StartPhase(phase Phase, totalItems int) {
	for _, r := range rs {
		r.StartPhase(phase, totalItems)
	}
}

func (rs Reporters) Progress(phase Phase, completed int, totalItems int) {
	for _, r := range rs {
		r.Progress(phase, completed, totalItems)
	}
}

func (rs Reporters) CompletePhase(phase Phase, totalItems int, elapsed time.Duration) {
	for _, r := range rs {
		r.CompletePhase(phase, totalItems, elapsed)
	}
}

func (rs Reporters) Warn(msg string) {
	for _, r := range rs {
		r.Warn(msg)
	}
}

func (rs Reporters) TableDone(res tables.Result) {
	for _, r := range rs {
		if o, ok := r.(TableObserver); ok {
			o.TableDone(res)
		}
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// SchemaCounts counts the tables of one schema by outcome.
type SchemaCounts struct {
	Copied  int   `json:"copied"`
	Created int   `json:"created"`
	Exists  int   `json:"exists"`
	Skipped int   `json:"skipped"`
	Failed  int   `json:"failed"`
	Rows    int64 `json:"rows"`
}

// Snapshot is the live state of a run.
type Snapshot struct {
	RunID     string                  `json:"runId"`
	Phase     string                  `json:"phase"`
	Completed []string                `json:"completedPhases"`
	Schemas   map[string]SchemaCounts `json:"schemas"`
	Rows      int64                   `json:"rows"`
	Warnings  int                     `json:"warnings"`
	Started   time.Time               `json:"started"`
}

// Tracker records the progress of a run for the status endpoint.
type Tracker struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewTracker returns a tracker for runID.
func NewTracker(runID string, started time.Time) *Tracker {
	return &Tracker{snap: Snapshot{RunID: runID, Started: started, Schemas: map[string]SchemaCounts{}}}
}

func (t *Tracker) StartPhase(phase Phase, _ int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Phase = phase.Name
}

func (t *Tracker) Progress(Phase, int, int) {}

func (t *Tracker) CompletePhase(phase Phase, _ int, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Completed = append(t.snap.Completed, phase.Name)
	if t.snap.Phase == phase.Name {
		t.snap.Phase = ""
	}
}

func (t *Tracker) Warn(string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Warnings++
}

func (t *Tracker) TableDone(res tables.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.snap.Schemas[res.Schema]
	switch res.Status {
	case tables.StatusCopied:
		c.Copied++
	case tables.StatusCreated:
		c.Created++
	case tables.StatusExists:
		c.Exists++
	case tables.StatusUnsupported:
		c.Skipped++
	case tables.StatusFailed:
		c.Failed++
	}
	c.Rows += int64(res.Rows)
	t.snap.Schemas[res.Schema] = c
	t.snap.Rows += int64(res.Rows)
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.snap
	s.Completed = append([]string(nil), t.snap.Completed...)
	s.Schemas = make(map[string]SchemaCounts, len(t.snap.Schemas))
	for k, v := range t.snap.Schemas {
		s.Schemas[k] = v
	}
	return s
}

// Plan summarizes what a migration will do, shown before proceeding.
type Plan struct {
	Source      string   `json:"source"`
	Destination string   `json:"destination"`
	Recreated   []string `json:"recreated"`
	Existing    []string `json:"existing"`
	Excluded    int      `json:"excludedTables"`
	Warnings    []string `json:"warnings,omitempty"`
}

// PrintReport writes a formatted pre-flight report to w.
func (p *Plan) PrintReport(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Migration plan: %s -> %s\n", p.Source, p.Destination)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Recreated schemas: %s\n", joinOrNone(p.Recreated))
	if len(p.Existing) > 0 {
		fmt.Fprintf(w, "  Existing schemas:  %s\n", strings.Join(p.Existing, ", "))
	}
	if p.Excluded > 0 {
		fmt.Fprintf(w, "  Excluded tables:   %d\n", p.Excluded)
	}
	fmt.Fprintln(w)

	if len(p.Warnings) > 0 {
		fmt.Fprintln(w, "  Warnings:")
		for _, w2 := range p.Warnings {
			fmt.Fprintf(w, "    - %s\n", w2)
		}
		fmt.Fprintln(w)
	}
}

func joinOrNone(list []string) string {
	if len(list) == 0 {
		return "none"
	}
	return strings.Join(list, ", ")
}

// PrintSummary writes the per-kind outcome of a run to w.
func (s *Summary) PrintSummary(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Migration Summary")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-20s %8s %8s %8s\n", "", "created", "skipped", "failed")
	fmt.Fprintf(w, "  %-20s %8s %8s %8s\n", strings.Repeat("-", 16), "-------", "-------", "------")

	copied, failed, existing := 0, 0, 0
	var rows int64
	for _, t := range s.Tables {
		switch t.Status {
		case tables.StatusCopied, tables.StatusCreated:
			copied++
		case tables.StatusFailed:
			failed++
		case tables.StatusExists, tables.StatusUnsupported:
			existing++
		}
		rows += int64(t.Rows)
	}
	fmt.Fprintf(w, "  %-20s %8d %8d %8d\n", "tables", copied, existing, failed)
	fmt.Fprintf(w, "  %-20s %8d %8d %8d\n", "indexes", s.Indexes.PrimaryKeys+s.Indexes.Indexes, 0, s.Indexes.Failed)
	fmt.Fprintf(w, "  %-20s %8d %8d %8d\n", "sequences", s.Sequences.Created, s.Sequences.Skipped, s.Sequences.Failed)
	fmt.Fprintf(w, "  %-20s %8d %8d %8d\n", "foreign keys", s.ForeignKeys.Created, s.ForeignKeys.Skipped, s.ForeignKeys.Failed)
	fmt.Fprintf(w, "  %-20s %8d %8d %8d\n", "objects", s.Objects.Created, s.Objects.Existing, s.Objects.Failed)
	fmt.Fprintf(w, "  %-20s %8d %8d %8d\n", "materialized views", s.MaterializedViews.Created, s.MaterializedViews.Skipped, s.MaterializedViews.Failed)
	fmt.Fprintf(w, "  %-20s %8d %8d %8d\n", "triggers", s.Triggers.Created, s.Triggers.Skipped, s.Triggers.Failed)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Rows copied: %d in %s\n", rows, formatDuration(s.Finished.Sub(s.Started)))
	if s.Errors > 0 {
		fmt.Fprintf(w, "  Logged errors: %d\n", s.Errors)
	}
	if len(s.Failed) > 0 {
		names := append([]string(nil), s.Failed...)
		sort.Strings(names)
		fmt.Fprintln(w, "  Failed tables:")
		for _, n := range names {
			fmt.Fprintf(w, "    - %s\n", n)
		}
	}
	fmt.Fprintln(w)
}
