// Package notify sends a completion message for each migration run to an
// SNS topic and/or by mail.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/allyourbase/oraclone/internal/migrate"
)

// Event describes a finished run.
type Event struct {
	RunID    string
	Database string
	Started  time.Time
	Finished time.Time
	Tables   int
	Failed   []string
	Rows     int64
	Errors   int
	Err      error
}

// FromSummary builds the event of a run summary.
func FromSummary(database string, s *migrate.Summary) Event {
	return Event{
		RunID:    s.RunID,
		Database: database,
		Started:  s.Started,
		Finished: s.Finished,
		Tables:   len(s.Tables),
		Failed:   s.Failed,
		Rows:     s.Rows(),
		Errors:   s.Errors,
		Err:      s.Err,
	}
}

func (e Event) status() string {
	if e.Err != nil {
		return "failed"
	}
	return "succeeded"
}

// Subject is the one-line title of the message.
func (e Event) Subject() string {
	name := e.Database
	if name == "" {
		name = "migration"
	}
	return fmt.Sprintf("oraclone %s %s", name, e.status())
}

// Body is the plain text message.
func (e Event) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run:      %s\n", e.RunID)
	if e.Database != "" {
		fmt.Fprintf(&b, "Database: %s\n", e.Database)
	}
	fmt.Fprintf(&b, "Status:   %s\n", e.status())
	fmt.Fprintf(&b, "Started:  %s\n", e.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "Duration: %s\n", e.Finished.Sub(e.Started).Round(time.Second))
	fmt.Fprintf(&b, "Tables:   %d (%d rows)\n", e.Tables, e.Rows)
	fmt.Fprintf(&b, "Errors:   %d\n", e.Errors)
	if e.Err != nil {
		fmt.Fprintf(&b, "\nmigration error: %v\n", e.Err)
	}
	if len(e.Failed) > 0 {
		b.WriteString("\nFailed tables:\n")
		for _, t := range e.Failed {
			fmt.Fprintf(&b, "  %s\n", t)
		}
	}
	return b.String()
}

// Notifier delivers run events.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Notifiers sends to every notifier and joins the failures.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
