package rowcodec

import (
	"context"
	"fmt"

	"github.com/allyourbase/oraclone/internal/oci"
)

// DefaultPrefetch is the fetch batch of catalog queries.
const DefaultPrefetch = 100

// Query is a statement prepared once and executed many times, each
// execution yielding rows decoded into T.
type Query[T any] struct {
	conn  oci.Conn
	stmt  oci.Stmt
	shape Shape[T]
	arena *Arena
}

// Prepare parses text on conn and allocates a fetch area of prefetch rows
// for shape.
func Prepare[T any](ctx context.Context, conn oci.Conn, text string, shape Shape[T], prefetch int) (*Query[T], error) {
	if prefetch < 1 {
		prefetch = DefaultPrefetch
	}
	arena, err := NewArena(shape.Columns, prefetch)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", text, err)
	}
	stmt, err := conn.Prepare(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query %q: prepare: %w", text, err)
	}
	return &Query[T]{conn: conn, stmt: stmt, shape: shape, arena: arena}, nil
}

func (q *Query[T]) bind(name string, pos int, col *oci.Column) (oci.Bind, error) {
	if name != "" {
		return q.stmt.BindName(name, col)
	}
	return q.stmt.BindPos(pos, col)
}

func (q *Query[T]) charset() oci.Charset { return q.conn.Charset() }

// Text returns the statement text.
func (q *Query[T]) Text() string { return q.stmt.Text() }

// Close releases the statement.
func (q *Query[T]) Close() error { return q.stmt.Close() }

// Iter executes the query with the current binding values.
func (q *Query[T]) Iter(ctx context.Context) (*Iterator[T], error) {
	if err := q.stmt.Execute(ctx, 0); err != nil {
		return nil, fmt.Errorf("query %q: execute: %w", q.Text(), err)
	}
	for i, col := range q.arena.Columns() {
		if col.Type.IsLob() {
			for r := range col.Lobs {
				if col.Lobs[r] != nil {
					continue
				}
				kind := oci.LobClob
				if col.Type == oci.TypeBlob {
					kind = oci.LobBlob
				}
				l, err := q.conn.NewLob(ctx, kind, false)
				if err != nil {
					return nil, fmt.Errorf("query %q: locator: %w", q.Text(), err)
				}
				col.Lobs[r] = l
			}
		}
		if err := q.stmt.Define(i+1, col); err != nil {
			return nil, fmt.Errorf("query %q: define %d: %w", q.Text(), i+1, err)
		}
	}
	return &Iterator[T]{ctx: ctx, q: q}, nil
}

// All collects every row.
func (q *Query[T]) All(ctx context.Context) ([]T, error) {
	var out []T
	err := q.ForEach(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// One returns the first row; ok is false when there is none.
func (q *Query[T]) One(ctx context.Context) (v T, ok bool, err error) {
	it, err := q.Iter(ctx)
	if err != nil {
		return v, false, err
	}
	if it.Next() {
		return it.Value(), true, nil
	}
	return v, false, it.Err()
}

// ForEach calls fn for every row, stopping at the first error.
func (q *Query[T]) ForEach(ctx context.Context, fn func(T) error) error {
	it, err := q.Iter(ctx)
	if err != nil {
		return err
	}
	for it.Next() {
		if err := fn(it.Value()); err != nil {
			return err
		}
	}
	return it.Err()
}

// Iterator yields the rows of one execution. Running out of rows ends the
// iteration without an error.
type Iterator[T any] struct {
	ctx     context.Context
	q       *Query[T]
	fetched int
	pos     int
	done    bool
	err     error
	cur     T
}

func (it *Iterator[T]) Next() bool {
	for {
		if it.pos < it.fetched {
			it.cur = it.q.shape.Decode(it.q.arena.Row(it.pos, it.q.charset()))
			it.pos++
			return true
		}
		if it.done || it.err != nil {
			return false
		}
		it.fetch()
	}
}

func (it *Iterator[T]) fetch() {
	stmt := it.q.stmt
	err := stmt.Fetch(it.ctx, it.q.arena.Rows())
	if err != nil && !oci.IsNoData(err) {
		it.err = fmt.Errorf("query %q: fetch: %w", stmt.Text(), err)
		return
	}
	it.done = err != nil
	n, aerr := stmt.Attr(oci.AttrRowsFetched)
	if aerr != nil {
		it.err = fmt.Errorf("query %q: rows fetched: %w", stmt.Text(), aerr)
		return
	}
	it.fetched = int(n)
	it.pos = 0
	if it.fetched == 0 {
		it.done = true
	}
}

// Value returns the row produced by the last successful Next.
func (it *Iterator[T]) Value() T { return it.cur }

// Err returns the fetch failure that ended the iteration, if any.
func (it *Iterator[T]) Err() error { return it.err }
