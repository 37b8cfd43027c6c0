package tables

import (
	"context"
	"fmt"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

type tableRow struct {
	name      string
	temporary bool
	iot       bool
	backedUp  bool
}

var tableShape = rowcodec.Shape[tableRow]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(1), rowcodec.String(12), rowcodec.String(1)},
	Decode: func(r rowcodec.Row) tableRow {
		return tableRow{
			name:      r.Cell(0).String(),
			temporary: r.Cell(1).String() == "Y",
			iot:       r.Cell(2).String() == "IOT",
			backedUp:  r.Cell(3).String() == "Y",
		}
	},
}

var columnShape = rowcodec.Shape[Column]{
	Columns: []rowcodec.Meta{
		rowcodec.String(128), rowcodec.String(106), rowcodec.Int64(),
		rowcodec.String(1), rowcodec.Int64(), rowcodec.Int64(),
	},
	Decode: func(r rowcodec.Row) Column {
		return MapColumn(
			r.Cell(0).String(),
			r.Cell(1).String(),
			r.Cell(2).Int(),
			r.Cell(3).String() == "Y",
			r.Cell(5).OptInt64(),
			r.Cell(4).OptInt64(),
		)
	},
}

var indexShape = rowcodec.Shape[Index]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(9)},
	Decode: func(r rowcodec.Row) Index {
		return Index{Name: r.Cell(0).String(), Unique: r.Cell(1).String() == "UNIQUE"}
	},
}

var indexColumnShape = rowcodec.Shape[IndexColumn]{
	Columns: []rowcodec.Meta{rowcodec.String(4000), rowcodec.String(4)},
	Decode: func(r rowcodec.Row) IndexColumn {
		return IndexColumn{Name: r.Cell(0).String(), Desc: r.Cell(1).String() != "ASC"}
	},
}

const (
	tablesSQL = `select table_name, temporary, iot_type, backed_up
from sys.all_tables
where owner = :owner
and table_name in (
  select table_name from sys.all_tables where owner = :owner
  minus
  select mview_name from sys.all_mviews where owner = :owner
) order by table_name`
	columnsSQL      = "select column_name, data_type, data_length, nullable, data_scale, data_precision from sys.all_tab_columns where owner = :owner and table_name = :table_name order by column_id"
	pkSQL           = "select constraint_name from sys.all_constraints where owner = :owner and constraint_type = 'P' and status = 'ENABLED' and table_name = :table_name"
	pkColumnsSQL    = "select column_name from sys.all_cons_columns where owner = :owner and table_name = :table_name and constraint_name = :constraint order by position"
	indexesSQL      = "select index_name, uniqueness from sys.all_indexes where table_owner = :owner and table_name = :table_name"
	indexColumnsSQL = "select column_name, descend from sys.all_ind_columns where index_owner = :owner and index_name = :index_name order by column_position"
)

// params are the named string bindings of one prepared catalog query.
type params map[string]*rowcodec.Binding[string]

func bindParams(b rowcodec.Binder, names ...string) (params, error) {
	p := params{}
	for _, n := range names {
		bind, err := rowcodec.BindName[string](b, n, rowcodec.String(128))
		if err != nil {
			return nil, err
		}
		p[n] = bind
	}
	return p, nil
}

func (p params) set(values map[string]string) error {
	for name, v := range values {
		b, ok := p[name]
		if !ok {
			continue
		}
		if err := b.Set(v); err != nil {
			return err
		}
	}
	return nil
}

type prepared[T any] struct {
	q *rowcodec.Query[T]
	p params
}

func prepare[T any](ctx context.Context, conn oci.Conn, sql string, shape rowcodec.Shape[T], what string, names ...string) (prepared[T], error) {
	q, err := rowcodec.Prepare(ctx, conn, sql, shape, rowcodec.DefaultPrefetch)
	if err != nil {
		return prepared[T]{}, fmt.Errorf("can not prepare query for %s info: %w", what, err)
	}
	p, err := bindParams(q, names...)
	if err != nil {
		q.Close()
		return prepared[T]{}, fmt.Errorf("can not prepare query for %s info: %w", what, err)
	}
	return prepared[T]{q: q, p: p}, nil
}

func (p prepared[T]) all(ctx context.Context, values map[string]string) ([]T, error) {
	if err := p.p.set(values); err != nil {
		return nil, err
	}
	return p.q.All(ctx)
}

func (p prepared[T]) close() error {
	if p.q == nil {
		return nil
	}
	return p.q.Close()
}

// Catalog reads table structure from the source data dictionary. Its
// queries are prepared once and executed per schema and table.
type Catalog struct {
	tables       prepared[tableRow]
	columns      prepared[Column]
	pk           prepared[string]
	pkColumns    prepared[string]
	indexes      prepared[Index]
	indexColumns prepared[IndexColumn]
}

// NewCatalog prepares the dictionary queries on conn.
func NewCatalog(ctx context.Context, conn oci.Conn) (*Catalog, error) {
	c := &Catalog{}
	var err error
	if c.tables, err = prepare(ctx, conn, tablesSQL, tableShape, "table", "owner"); err != nil {
		return nil, err
	}
	if c.columns, err = prepare(ctx, conn, columnsSQL, columnShape, "columns", "owner", "table_name"); err != nil {
		c.Close()
		return nil, err
	}
	if c.pk, err = prepare(ctx, conn, pkSQL, rowcodec.StringShape(128), "primary key", "owner", "table_name"); err != nil {
		c.Close()
		return nil, err
	}
	if c.pkColumns, err = prepare(ctx, conn, pkColumnsSQL, rowcodec.StringShape(4000), "primary key columns", "owner", "table_name", "constraint"); err != nil {
		c.Close()
		return nil, err
	}
	if c.indexes, err = prepare(ctx, conn, indexesSQL, indexShape, "indexes", "owner", "table_name"); err != nil {
		c.Close()
		return nil, err
	}
	if c.indexColumns, err = prepare(ctx, conn, indexColumnsSQL, indexColumnShape, "index columns", "owner", "index_name"); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close releases every prepared query.
func (c *Catalog) Close() error {
	var first error
	for _, err := range []error{
		c.tables.close(), c.columns.close(), c.pk.close(),
		c.pkColumns.close(), c.indexes.close(), c.indexColumns.close(),
	} {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Load returns the tables of schema in name order, skipping materialized
// view containers and the excluded table names.
func (c *Catalog) Load(ctx context.Context, schema string, exclusions []string) ([]Table, error) {
	rows, err := c.tables.all(ctx, map[string]string{"owner": schema})
	if err != nil {
		return nil, fmt.Errorf("can not load table struct with error: %w", err)
	}
	skip := make(map[string]bool, len(exclusions))
	for _, e := range exclusions {
		skip[e] = true
	}
	out := make([]Table, 0, len(rows))
	for _, r := range rows {
		if skip[r.name] {
			continue
		}
		t, err := c.table(ctx, schema, r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *Catalog) table(ctx context.Context, schema string, r tableRow) (Table, error) {
	args := map[string]string{"owner": schema, "table_name": r.name}
	cols, err := c.columns.all(ctx, args)
	if err != nil {
		return Table{}, fmt.Errorf("can not load columns info for table: %s with error: %w", r.name, err)
	}
	pk, err := c.primaryKey(ctx, args)
	if err != nil {
		return Table{}, fmt.Errorf("can not load primary key info for table: %s with error: %w", r.name, err)
	}
	indexes, err := c.secondaryIndexes(ctx, schema, args, pk)
	if err != nil {
		return Table{}, fmt.Errorf("can not load indexes info for table: %s with error: %w", r.name, err)
	}
	return NewTable(r.name, r.temporary, r.iot, r.backedUp, cols, pk, indexes), nil
}

func (c *Catalog) primaryKey(ctx context.Context, args map[string]string) (*PrimaryKey, error) {
	names, err := c.pk.all(ctx, args)
	if err != nil || len(names) == 0 {
		return nil, err
	}
	colArgs := map[string]string{"owner": args["owner"], "table_name": args["table_name"], "constraint": names[0]}
	cols, err := c.pkColumns.all(ctx, colArgs)
	if err != nil {
		return nil, err
	}
	return &PrimaryKey{Name: names[0], Columns: cols}, nil
}

// secondaryIndexes skips the index that backs the primary key.
func (c *Catalog) secondaryIndexes(ctx context.Context, schema string, args map[string]string, pk *PrimaryKey) ([]Index, error) {
	all, err := c.indexes.all(ctx, args)
	if err != nil {
		return nil, err
	}
	var out []Index
	for _, idx := range all {
		if pk != nil && idx.Name == pk.Name {
			continue
		}
		cols, err := c.indexColumns.all(ctx, map[string]string{"owner": schema, "index_name": idx.Name})
		if err != nil {
			return nil, err
		}
		idx.Columns = cols
		out = append(out, idx)
	}
	return out, nil
}
