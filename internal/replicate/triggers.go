package replicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

// Trigger is a table trigger.
type Trigger struct {
	Owner string
	Table string
	Name  string
	// Type is the catalog trigger type, e.g. "BEFORE EACH ROW".
	Type  string
	Event string
	Body  string
	// Truncated is set when Body was clipped at rowcodec.LongTextSize.
	Truncated bool
}

var triggerShape = rowcodec.Shape[Trigger]{
	Columns: []rowcodec.Meta{
		rowcodec.String(128), rowcodec.String(128), rowcodec.String(128),
		rowcodec.String(16), rowcodec.String(246), rowcodec.LongString(),
	},
	Decode: func(r rowcodec.Row) Trigger {
		return Trigger{
			Owner:     r.Cell(0).String(),
			Table:     r.Cell(1).String(),
			Name:      r.Cell(2).String(),
			Type:      r.Cell(3).String(),
			Event:     r.Cell(4).String(),
			Body:      r.Cell(5).String(),
			Truncated: r.Cell(5).Truncated(),
		}
	},
}

// splitType separates the timing point of a trigger type from its row
// scope: "BEFORE EACH ROW" gives "BEFORE" and "for EACH ROW".
func splitType(typ string) (timing, scope string) {
	fields := strings.Fields(typ)
	if len(fields) >= 2 && fields[0] == "INSTEAD" && fields[1] == "OF" {
		return "INSTEAD OF", ""
	}
	if len(fields) == 0 {
		return "", ""
	}
	timing = fields[0]
	if len(fields) >= 3 {
		scope = "for " + strings.Join(fields[1:3], " ")
	}
	return timing, scope
}

// TriggerSQL renders the DDL of t.
func TriggerSQL(t Trigger) string {
	timing, scope := splitType(t.Type)
	return fmt.Sprintf("create or replace trigger %s.%s\n %s %s on %s.%s\n %s\n%s",
		t.Owner, t.Name, timing, t.Event, t.Owner, t.Table, scope, t.Body)
}

// selfLinked reports a trigger that reaches its own table over a database
// link; such triggers are not recreated.
func selfLinked(t Trigger) bool {
	return strings.Contains(strings.ToUpper(t.Body), t.Table+"@")
}

// Triggers recreates the table triggers of schemas. Failures are logged;
// a trigger created with compilation errors gets a short line.
func (r *Replicator) Triggers(ctx context.Context, schemas []string) (Result, error) {
	var res Result
	if len(schemas) == 0 {
		return res, nil
	}
	sql := fmt.Sprintf("select owner, table_name, trigger_name, trigger_type, triggering_event, trigger_body from sys.all_triggers where owner in (%s)", inList(schemas))
	triggers, err := queryAll(ctx, r.src, sql, triggerShape, "triggers")
	if err != nil {
		return res, err
	}
	for _, t := range triggers {
		if t.Table == "" || selfLinked(t) {
			res.Skipped++
			continue
		}
		if t.Truncated {
			res.Failed++
			r.errs.Error(fmt.Sprintf("can not create trigger: %s.%s on %s body longer than %d bytes", t.Owner, t.Name, t.Table, rowcodec.LongTextSize))
			continue
		}
		ddl := TriggerSQL(t)
		if err := oci.Exec(ctx, r.dst, ddl); err != nil {
			res.Failed++
			if oci.Code(err) == oci.ErrCompilation {
				r.errs.Error(fmt.Sprintf("create trigger: %s.%s on %s: compilation with error", t.Owner, t.Name, t.Table))
			} else {
				r.errs.Error(fmt.Sprintf("can not create trigger: %s.%s on %s with error: %v, sql: %s", t.Owner, t.Name, t.Table, err, ddl))
			}
			continue
		}
		res.Created++
	}
	return res, nil
}
