package tables

import (
	"context"
	"errors"
	"fmt"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

// indicatorCost is the bytes of indicator and length bookkeeping one cell
// takes out of the buffer budget.
const indicatorCost = 16

// PrefetchRows returns the batch size of t for a buffer budget of the given
// bytes. The batch fits both the value budget and the indicator budget.
// Tables with LOB columns are copied one row at a time.
func PrefetchRows(t Table, budget int) int {
	if t.HasLob || len(t.Columns) == 0 {
		return 1
	}
	n := (budget/indicatorCost)/len(t.Columns) - 1
	if w := t.RowWidth(); w > 0 {
		n = min(n, budget/w-1)
	}
	return max(n, 1)
}

// lobPair is the locator pair of one LOB column; the transfer copies one
// row at a time, so one pair serves the whole table.
type lobPair struct {
	column int
	read   *oci.Column
	src    oci.Lob
	dst    oci.Lob
}

// TransferBuffer holds the cells of one batch. Every non-LOB column is a
// single region that the source query fetches into and the destination
// insert reads from. LOB columns are fetched into source locators and
// written from temporary destination locators sharing the same indicator.
type TransferBuffer struct {
	arena *rowcodec.Arena
	write []*oci.Column
	lobs  []lobPair
}

func metaOf(c Column) rowcodec.Meta {
	if c.Type.IsLob() {
		return rowcodec.Meta{Align: 1, Type: c.Native}
	}
	return rowcodec.Meta{Size: c.BufferLen, Align: 1, Type: c.Native}
}

func lobKind(t oci.DataType) oci.LobKind {
	if t == oci.TypeBlob {
		return oci.LobBlob
	}
	return oci.LobClob
}

// NewTransferBuffer lays out rows cells for every column of t and allocates
// the LOB locator pairs.
func NewTransferBuffer(ctx context.Context, t Table, rows int, src, dst oci.Conn) (*TransferBuffer, error) {
	metas := make([]rowcodec.Meta, len(t.Columns))
	for i, c := range t.Columns {
		metas[i] = metaOf(c)
	}
	arena, err := rowcodec.NewArena(metas, rows)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", t.Name, err)
	}
	b := &TransferBuffer{arena: arena, write: make([]*oci.Column, len(t.Columns))}
	for i, c := range t.Columns {
		col := arena.Column(i)
		if !c.Type.IsLob() {
			b.write[i] = col
			continue
		}
		s, err := src.NewLob(ctx, oci.LobDefault, false)
		if err != nil {
			b.Free(ctx)
			return nil, fmt.Errorf("can not allocate LOB locator for column %s: %w", c.Name, err)
		}
		d, err := dst.NewLob(ctx, lobKind(c.Native), true)
		if err != nil {
			_ = s.Free(ctx)
			b.Free(ctx)
			return nil, fmt.Errorf("can not allocate temporary LOB for column %s: %w", c.Name, err)
		}
		for r := range col.Lobs {
			col.Lobs[r] = s
		}
		w := &oci.Column{Type: c.Native, Indicators: col.Indicators, Lobs: make([]oci.Lob, rows)}
		for r := range w.Lobs {
			w.Lobs[r] = d
		}
		b.write[i] = w
		b.lobs = append(b.lobs, lobPair{column: i, read: col, src: s, dst: d})
	}
	return b, nil
}

// Rows returns the batch capacity.
func (b *TransferBuffer) Rows() int { return b.arena.Rows() }

// Bytes returns the size of the value storage.
func (b *TransferBuffer) Bytes() int { return b.arena.Bytes() }

// Bind defines every column on reader and binds it on writer. Character
// binds are tagged with bindCharset, so bytes fetched in the source
// character set are stored as the destination character set.
func (b *TransferBuffer) Bind(t Table, reader, writer oci.Stmt, bindCharset oci.Charset) error {
	for i, c := range t.Columns {
		if err := reader.Define(i+1, b.arena.Column(i)); err != nil {
			return fmt.Errorf("can not define column %s: %w", c.Name, err)
		}
		h, err := writer.BindPos(i+1, b.write[i])
		if err != nil {
			return fmt.Errorf("can not bind column %s: %w", c.Name, err)
		}
		if c.Type == Varchar || c.Type == Long {
			if err := h.SetAttr(oci.AttrCharsetID, uint32(bindCharset)); err != nil {
				return fmt.Errorf("can not set charset of column %s: %w", c.Name, err)
			}
		}
	}
	return nil
}

// CheckLengths fails when a fetched character or LONG value is longer than
// its column's transfer buffer, which would otherwise be truncated.
func (b *TransferBuffer) CheckLengths(t Table, rows int) error {
	for i, c := range t.Columns {
		if c.Type != Varchar && c.Type != Long {
			continue
		}
		col := b.arena.Column(i)
		for r := 0; r < rows; r++ {
			if col.IsNull(r) {
				continue
			}
			if n := int(col.Lengths[r]); n > c.BufferLen {
				return fmt.Errorf("actual len %d of column %s > declared len %d, row %d", n, c.Name, c.BufferLen, r)
			}
		}
	}
	return nil
}

// CopyLobs copies the LOB values of row 0 from the source locators to the
// destination locators, using chunk as the read buffer.
func (b *TransferBuffer) CopyLobs(ctx context.Context, t Table, chunk []byte) error {
	for _, p := range b.lobs {
		if p.read.IsNull(0) {
			if err := p.dst.Trim(ctx, 0); err != nil {
				return fmt.Errorf("can not trim LOB of column %s: %w", t.Columns[p.column].Name, err)
			}
			continue
		}
		if _, err := CopyLob(ctx, p.src, p.dst, chunk); err != nil {
			return fmt.Errorf("can not copy LOB of column %s: %w", t.Columns[p.column].Name, err)
		}
	}
	return nil
}

// Free releases the LOB locators.
func (b *TransferBuffer) Free(ctx context.Context) error {
	var errs []error
	for _, p := range b.lobs {
		if p.dst != nil {
			errs = append(errs, p.dst.Free(ctx))
		}
		if p.src != nil {
			errs = append(errs, p.src.Free(ctx))
		}
	}
	b.lobs = nil
	return errors.Join(errs...)
}

// CopyLob streams src into dst chunk by chunk and trims dst to the copied
// length. A failed or empty read ends the copy.
func CopyLob(ctx context.Context, src, dst oci.Lob, chunk []byte) (int, error) {
	total := 0
	first := true
	for {
		n, done, err := src.Read(ctx, 1, chunk)
		if err != nil || n == 0 {
			break
		}
		piece := oci.PieceNext
		switch {
		case done && first:
			piece = oci.PieceOne
		case done:
			piece = oci.PieceLast
		case first:
			piece = oci.PieceFirst
		}
		if err := dst.Write(ctx, 1, piece, chunk[:n]); err != nil {
			if !(oci.IsNeedData(err) && (piece == oci.PieceFirst || piece == oci.PieceNext)) {
				return total, fmt.Errorf("write %s piece: %w", piece, err)
			}
		}
		total += n
		first = false
		if done {
			break
		}
	}
	if err := dst.Trim(ctx, total); err != nil {
		return total, fmt.Errorf("trim to %d: %w", total, err)
	}
	return total, nil
}
