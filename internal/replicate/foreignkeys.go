package replicate

import (
	"context"
	"fmt"
	"strings"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

// ForeignKey is an enabled referential constraint.
type ForeignKey struct {
	Owner         string
	Table         string
	Name          string
	Columns       []string
	RefOwner      string
	RefTable      string
	RefColumns    []string
	refConstraint string
}

var foreignKeyShape = rowcodec.Shape[ForeignKey]{
	Columns: []rowcodec.Meta{
		rowcodec.String(128), rowcodec.String(128), rowcodec.String(128),
		rowcodec.String(128), rowcodec.String(128),
	},
	Decode: func(r rowcodec.Row) ForeignKey {
		return ForeignKey{
			Owner:         r.Cell(0).String(),
			Table:         r.Cell(1).String(),
			Name:          r.Cell(2).String(),
			RefOwner:      r.Cell(3).String(),
			refConstraint: r.Cell(4).String(),
		}
	},
}

// ForeignKeySQL renders the constraint DDL of fk.
func ForeignKeySQL(fk ForeignKey) string {
	return fmt.Sprintf("alter table %s.%s add constraint %s foreign key (%s) references %s.%s (%s)",
		fk.Owner, fk.Table, fk.Name, strings.Join(fk.Columns, ","),
		fk.RefOwner, fk.RefTable, strings.Join(fk.RefColumns, ","))
}

const consColumnsSQL = "select column_name from sys.all_cons_columns where owner = :owner and table_name = :table_name and constraint_name = :constraint order by position"

// ForeignKeys recreates the enabled foreign keys of schemas. Keys whose
// referenced primary key cannot be found are skipped. Existing constraints
// are tolerated; other DDL failures are logged.
func (r *Replicator) ForeignKeys(ctx context.Context, schemas []string) (Result, error) {
	var res Result
	if len(schemas) == 0 {
		return res, nil
	}
	sql := fmt.Sprintf("select owner, table_name, constraint_name, r_owner, r_constraint_name from sys.all_constraints where owner in (%s) and constraint_type = 'R' and status = 'ENABLED'", inList(schemas))
	fks, err := queryAll(ctx, r.src, sql, foreignKeyShape, "foreign keys")
	if err != nil {
		return res, err
	}
	cols, err := newLookup(ctx, r.src, consColumnsSQL, rowcodec.StringShape(4000), "foreign key columns", "owner", "table_name", "constraint")
	if err != nil {
		return res, err
	}
	defer cols.close()
	refTable, err := newLookup(ctx, r.src,
		"select table_name from sys.all_constraints where owner = :owner and constraint_name = :constraint and constraint_type = 'P'",
		rowcodec.StringShape(128), "foreign key reference table", "owner", "constraint")
	if err != nil {
		return res, err
	}
	defer refTable.close()

	for _, fk := range fks {
		if fk.Columns, err = cols.all(ctx, fk.Owner, fk.Table, fk.Name); err != nil {
			return res, fmt.Errorf("can not fetch columns for foreign key: %w, owner: %s, table: %s, fk: %s", err, fk.Owner, fk.Table, fk.Name)
		}
		tables, err := refTable.all(ctx, fk.RefOwner, fk.refConstraint)
		if err != nil {
			return res, fmt.Errorf("can not fetch ref table name for foreign key: %w", err)
		}
		if len(tables) == 0 {
			res.Skipped++
			continue
		}
		fk.RefTable = tables[0]
		if fk.RefColumns, err = cols.all(ctx, fk.RefOwner, fk.RefTable, fk.refConstraint); err != nil {
			return res, fmt.Errorf("can not fetch ref columns for foreign key: %w", err)
		}

		sql := ForeignKeySQL(fk)
		if err := oci.Exec(ctx, r.dst, sql); err != nil {
			switch oci.Code(err) {
			case oci.ErrConstraintNameInUse, oci.ErrSingleKeyExists:
				res.Skipped++
			default:
				res.Failed++
				r.errs.Error(fmt.Sprintf("can not create foreign key: %v, sql: %s", err, sql))
			}
			continue
		}
		res.Created++
	}
	return res, nil
}

// lookup is a prepared query with positional-order named string binds.
type lookup[T any] struct {
	q     *rowcodec.Query[T]
	binds []*rowcodec.Binding[string]
}

func newLookup[T any](ctx context.Context, conn oci.Conn, sql string, shape rowcodec.Shape[T], what string, names ...string) (*lookup[T], error) {
	q, err := rowcodec.Prepare(ctx, conn, sql, shape, rowcodec.DefaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("can not prepare query for %s info: %w", what, err)
	}
	l := &lookup[T]{q: q}
	for _, n := range names {
		b, err := rowcodec.BindName[string](q, n, rowcodec.String(128))
		if err != nil {
			q.Close()
			return nil, fmt.Errorf("can not prepare query for %s info: %w", what, err)
		}
		l.binds = append(l.binds, b)
	}
	return l, nil
}

func (l *lookup[T]) all(ctx context.Context, values ...string) ([]T, error) {
	for i, v := range values {
		if err := l.binds[i].Set(v); err != nil {
			return nil, err
		}
	}
	return l.q.All(ctx)
}

func (l *lookup[T]) close() { l.q.Close() }
