package objects

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

// ErrorLog receives non-fatal failures.
type ErrorLog interface {
	Error(msg string)
}

// Granter copies the privileges of one object.
type Granter interface {
	Grant(ctx context.Context, owner, object string) error
}

// Result counts what a run did.
type Result struct {
	Created  int
	Existing int
	Failed   int
}

// Migrator recreates the objects of a schema set on the destination.
type Migrator struct {
	src    oci.Conn
	dst    oci.Conn
	grants Granter
	errs   ErrorLog
	logger *slog.Logger
}

func NewMigrator(src, dst oci.Conn, grants Granter, errs ErrorLog, logger *slog.Logger) *Migrator {
	return &Migrator{src: src, dst: dst, grants: grants, errs: errs, logger: logger}
}

// Run loads every object of schemas and replays them on the destination.
// Objects that already exist in one of the existing schemas only get their
// grants. DDL failures are logged and counted; catalog failures abort.
func (m *Migrator) Run(ctx context.Context, schemas, existing []string) (Result, error) {
	var res Result
	if len(schemas) == 0 {
		return res, nil
	}
	loader, err := NewLoader(ctx, m.src, schemas)
	if err != nil {
		return res, err
	}
	defer loader.Close()

	objs, err := loader.Load(ctx)
	if err != nil {
		return res, err
	}
	for _, k := range loader.Truncated {
		res.Failed++
		m.errs.Error(fmt.Sprintf("can not create %s: %s text longer than %d bytes", k.Kind, k, rowcodec.LongTextSize))
	}
	have, err := ExistingObjects(ctx, m.dst, existing)
	if err != nil {
		return res, err
	}
	m.logger.Info("replaying objects", "objects", len(objs), "schemas", len(schemas))

	err = Replay(objs, func(o Object) error {
		if have[o.Key] {
			res.Existing++
			return m.grants.Grant(ctx, o.Owner, o.Name)
		}
		if err := oci.Exec(ctx, m.dst, o.SQL); err != nil {
			res.Failed++
			m.errs.Error(fmt.Sprintf("can not create %s: %s %s", o.Kind, o, Reason(err, o.SQL)))
			return nil
		}
		res.Created++
		return m.grants.Grant(ctx, o.Owner, o.Name)
	})
	return res, err
}

var objectKeyShape = rowcodec.Shape[Key]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(128), rowcodec.String(23)},
	Decode: func(r rowcodec.Row) Key {
		return Key{Owner: r.Cell(0).String(), Name: r.Cell(1).String(), Kind: ParseKind(r.Cell(2).String())}
	},
}

// ExistingObjects returns the keys of the views, synonyms and stored code
// already present in schemas on conn.
func ExistingObjects(ctx context.Context, conn oci.Conn, schemas []string) (map[Key]bool, error) {
	out := map[Key]bool{}
	if len(schemas) == 0 {
		return out, nil
	}
	sql := fmt.Sprintf(`select owner, object_name, object_type from sys.all_objects
where owner in (%s) and object_type in ('VIEW','SYNONYM','PROCEDURE','FUNCTION','PACKAGE','PACKAGE BODY','TYPE')`, inList(schemas))
	keys, err := queryAll(ctx, conn, sql, objectKeyShape, "existing objects")
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}
