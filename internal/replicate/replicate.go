// Package replicate copies the smaller object kinds that follow the table
// load: sequences, foreign keys, materialized views and triggers.
package replicate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

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

// Result counts what one replicator did.
type Result struct {
	Created int
	Skipped int
	Failed  int
}

// Replicator holds the sessions and sinks shared by every object kind.
type Replicator struct {
	src    oci.Conn
	dst    oci.Conn
	grants Granter
	errs   ErrorLog
	logger *slog.Logger
}

func New(src, dst oci.Conn, grants Granter, errs ErrorLog, logger *slog.Logger) *Replicator {
	return &Replicator{src: src, dst: dst, grants: grants, errs: errs, logger: logger}
}

func (r *Replicator) grant(ctx context.Context, owner, name string) error {
	if r.grants == nil {
		return nil
	}
	return r.grants.Grant(ctx, owner, name)
}

func inList(schemas []string) string {
	quoted := make([]string, len(schemas))
	for i, s := range schemas {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}

func queryAll[T any](ctx context.Context, conn oci.Conn, sql string, shape rowcodec.Shape[T], what string) ([]T, error) {
	q, err := rowcodec.Prepare(ctx, conn, sql, shape, rowcodec.DefaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("can not prepare query for %s info: %w", what, err)
	}
	defer q.Close()
	rows, err := q.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("can not execute query for %s info: %w", what, err)
	}
	return rows, nil
}
