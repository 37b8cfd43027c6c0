package ocitest

import (
	"context"
	"sync"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Lob is an in-memory locator. Reads stream from the start of the value;
// writes append and record their piece markers; a One or First piece
// starts a new value.
type Lob struct {
	Kind      oci.LobKind
	Temporary bool

	mu      sync.Mutex
	data    []byte
	readPos int
	pieces  []oci.Piece
	trims   []int
	freed   bool
}

// NewLob returns a non-temporary locator holding data, as a fetched source
// value would.
func NewLob(kind oci.LobKind, data []byte) *Lob {
	return &Lob{Kind: kind, data: append([]byte(nil), data...)}
}

func (l *Lob) setData(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data[:0], b...)
	l.readPos = 0
}

// Data returns a copy of the current content.
func (l *Lob) Data() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]byte(nil), l.data...)
}

// Pieces returns the piece markers of every write, in order.
func (l *Lob) Pieces() []oci.Piece {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]oci.Piece(nil), l.pieces...)
}

// Trims returns the lengths passed to Trim, in order.
func (l *Lob) Trims() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.trims...)
}

// Freed reports whether Free was called.
func (l *Lob) Freed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.freed
}

func (l *Lob) Len(context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.data), nil
}

func (l *Lob) Read(_ context.Context, _ int, buf []byte) (int, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := copy(buf, l.data[l.readPos:])
	l.readPos += n
	return n, l.readPos >= len(l.data), nil
}

func (l *Lob) Write(_ context.Context, _ int, piece oci.Piece, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if piece == oci.PieceFirst || piece == oci.PieceOne {
		l.data = l.data[:0]
	}
	l.data = append(l.data, data...)
	l.pieces = append(l.pieces, piece)
	if piece == oci.PieceFirst || piece == oci.PieceNext {
		return oci.NewError(int(oci.StatusNeedData), "Need data", "lob write")
	}
	return nil
}

func (l *Lob) Trim(_ context.Context, length int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.trims = append(l.trims, length)
	if length < len(l.data) {
		l.data = l.data[:length]
	}
	return nil
}

func (l *Lob) Free(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.freed = true
	return nil
}
