package replicate

import (
	"context"
	"fmt"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

type mviewRow struct {
	owner, name, query string
	truncated          bool
}

var mviewShape = rowcodec.Shape[mviewRow]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(128), rowcodec.LongString()},
	Decode: func(r rowcodec.Row) mviewRow {
		return mviewRow{r.Cell(0).String(), r.Cell(1).String(), r.Cell(2).String(), r.Cell(2).Truncated()}
	},
}

// MaterializedViews recreates the materialized views of schemas, built
// immediately from their defining query. Failures are logged.
func (r *Replicator) MaterializedViews(ctx context.Context, schemas []string) (Result, error) {
	var res Result
	if len(schemas) == 0 {
		return res, nil
	}
	sql := fmt.Sprintf("select owner, mview_name, query from sys.all_mviews where owner in (%s)", inList(schemas))
	rows, err := queryAll(ctx, r.src, sql, mviewShape, "materialized views")
	if err != nil {
		return res, err
	}
	for _, m := range rows {
		if m.truncated {
			res.Failed++
			r.errs.Error(fmt.Sprintf("can not create materialized view: %s.%s query longer than %d bytes", m.owner, m.name, rowcodec.LongTextSize))
			continue
		}
		ddl := fmt.Sprintf("create materialized view %s.%s build immediate as %s", m.owner, m.name, m.query)
		if err := oci.Exec(ctx, r.dst, ddl); err != nil {
			res.Failed++
			r.errs.Error(fmt.Sprintf("can not create materialized view: %s.%s with error: %v, sql: %s", m.owner, m.name, err, ddl))
			continue
		}
		res.Created++
		if err := r.grant(ctx, m.owner, m.name); err != nil {
			return res, err
		}
	}
	return res, nil
}
