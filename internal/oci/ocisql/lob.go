package ocisql

import (
	"context"

	"github.com/allyourbase/oraclone/internal/oci"
)

// lob is a client-side locator. Fetched LOB values are materialized by the
// driver, so a source locator is a cursor over those bytes; a temporary
// locator accumulates pieces until it is bound.
type lob struct {
	kind      oci.LobKind
	temporary bool
	data      []byte
	pos       int
	freed     bool
}

func (l *lob) load(b []byte) {
	l.data = append(l.data[:0], b...)
	l.pos = 0
}

func (l *lob) bytes() []byte { return l.data }

func (l *lob) Len(context.Context) (int, error) {
	if l.freed {
		return 0, oci.NewError(22275, "invalid LOB locator specified", "lob length")
	}
	return len(l.data), nil
}

func (l *lob) Read(_ context.Context, _ int, buf []byte) (int, bool, error) {
	if l.freed {
		return 0, true, oci.NewError(22275, "invalid LOB locator specified", "lob read")
	}
	n := copy(buf, l.data[l.pos:])
	l.pos += n
	return n, l.pos >= len(l.data), nil
}

func (l *lob) Write(_ context.Context, _ int, piece oci.Piece, data []byte) error {
	if l.freed {
		return oci.NewError(22275, "invalid LOB locator specified", "lob write")
	}
	if piece == oci.PieceOne || piece == oci.PieceFirst {
		l.data = l.data[:0]
	}
	l.data = append(l.data, data...)
	return nil
}

func (l *lob) Trim(_ context.Context, length int) error {
	if length < 0 || length > len(l.data) {
		return oci.NewError(22926, "specified trim length is greater than current LOB value's length", "lob trim")
	}
	l.data = l.data[:length]
	return nil
}

func (l *lob) Free(context.Context) error {
	l.freed = true
	l.data = nil
	return nil
}
