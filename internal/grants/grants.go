// Package grants copies object privileges from the source catalog onto the
// recreated objects in the destination.
package grants

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

const grantsSQL = "select grantee, privilege, grantable from sys.dba_tab_privs where owner = :owner and table_name = :object"

// ErrorLog receives non-fatal failures.
type ErrorLog interface {
	Error(msg string)
}

// Grant is one object privilege.
type Grant struct {
	Grantee   string
	Privilege string
	Grantable bool
}

var grantShape = rowcodec.Shape[Grant]{
	Columns: []rowcodec.Meta{rowcodec.String(200), rowcodec.String(200), rowcodec.String(3)},
	Decode: func(r rowcodec.Row) Grant {
		return Grant{
			Grantee:   r.Cell(0).String(),
			Privilege: r.Cell(1).String(),
			Grantable: r.Cell(2).String() == "YES" || r.Cell(2).String() == "Y",
		}
	},
}

// SQL renders the statement granting g on owner.object.
func SQL(owner, object string, g Grant) string {
	option := ""
	if g.Grantable {
		option = " with grant option"
	}
	return fmt.Sprintf("grant %s on %s.%s to %s%s", g.Privilege, owner, object, g.Grantee, option)
}

// Propagator reads grants from the source once prepared and replays them
// on the destination.
type Propagator struct {
	dst    oci.Conn
	query  *rowcodec.Query[Grant]
	owner  *rowcodec.Binding[string]
	object *rowcodec.Binding[string]
	errs   ErrorLog
	logger *slog.Logger
}

// New prepares the grant lookup on src.
func New(ctx context.Context, src, dst oci.Conn, errs ErrorLog, logger *slog.Logger) (*Propagator, error) {
	q, err := rowcodec.Prepare(ctx, src, grantsSQL, grantShape, rowcodec.DefaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("can not prepare query for grants info: %w", err)
	}
	owner, err := rowcodec.BindName[string](q, "owner", rowcodec.String(128))
	if err != nil {
		q.Close()
		return nil, err
	}
	object, err := rowcodec.BindName[string](q, "object", rowcodec.String(200))
	if err != nil {
		q.Close()
		return nil, err
	}
	return &Propagator{dst: dst, query: q, owner: owner, object: object, errs: errs, logger: logger}, nil
}

// Grant copies every privilege on owner.object. A failing grant statement
// is logged and skipped; only the catalog lookup fails the call.
func (p *Propagator) Grant(ctx context.Context, owner, object string) error {
	if err := p.owner.Set(owner); err != nil {
		return err
	}
	if err := p.object.Set(object); err != nil {
		return err
	}
	grants, err := p.query.All(ctx)
	if err != nil {
		return fmt.Errorf("can not load grants for %s.%s: %w", owner, object, err)
	}
	for _, g := range grants {
		stmt := SQL(owner, object, g)
		if err := oci.Exec(ctx, p.dst, stmt); err != nil {
			p.errs.Error(fmt.Sprintf("can not grant on %s.%s to %s: %v", owner, object, g.Grantee, err))
			continue
		}
		p.logger.Debug("granted", "object", owner+"."+object, "grantee", g.Grantee, "privilege", g.Privilege)
	}
	return nil
}

// Close releases the prepared lookup.
func (p *Propagator) Close() error {
	return p.query.Close()
}
