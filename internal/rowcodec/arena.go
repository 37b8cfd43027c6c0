package rowcodec

import (
	"fmt"
	"math/bits"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Arena owns the column-major buffers for a fixed number of rows. All value
// storage lives in one allocation; each column is a checked view into it
// starting at an offset aligned for the column's Meta.
type Arena struct {
	rows    int
	metas   []Meta
	offsets []int
	buf     []byte
	cols    []*oci.Column
}

// NewArena lays out rows cells for every column. Layout is validated here
// once; the views it hands out need no further bounds checks.
func NewArena(metas []Meta, rows int) (*Arena, error) {
	if rows < 1 {
		return nil, fmt.Errorf("arena needs at least one row, got %d", rows)
	}
	offsets := make([]int, len(metas))
	total := 0
	for i, m := range metas {
		align := m.Align
		if align == 0 {
			align = 1
		}
		if bits.OnesCount(uint(align)) != 1 || align > 8 {
			return nil, fmt.Errorf("column %d: alignment %d is not a power of two up to 8", i+1, m.Align)
		}
		if m.Type.IsLob() {
			offsets[i] = total
			continue
		}
		if m.Size <= 0 {
			return nil, fmt.Errorf("column %d: size must be positive, got %d", i+1, m.Size)
		}
		if m.Size%align != 0 {
			return nil, fmt.Errorf("column %d: size %d is not a multiple of alignment %d", i+1, m.Size, align)
		}
		total = (total + align - 1) &^ (align - 1)
		offsets[i] = total
		total += m.Size * rows
	}

	a := &Arena{
		rows:    rows,
		metas:   metas,
		offsets: offsets,
		buf:     make([]byte, total),
		cols:    make([]*oci.Column, len(metas)),
	}
	for i, m := range metas {
		col := &oci.Column{
			Type:       m.Type,
			Size:       m.Size,
			Indicators: make([]int16, rows),
		}
		if m.Type.IsLob() {
			col.Lobs = make([]oci.Lob, rows)
		} else {
			end := offsets[i] + m.Size*rows
			col.Values = a.buf[offsets[i]:end:end]
			col.Lengths = make([]uint16, rows)
		}
		a.cols[i] = col
	}
	return a, nil
}

// Rows returns the row capacity.
func (a *Arena) Rows() int { return a.rows }

// Len returns the number of columns.
func (a *Arena) Len() int { return len(a.cols) }

// Column returns the view of column i.
func (a *Arena) Column(i int) *oci.Column { return a.cols[i] }

// Columns returns all column views in order.
func (a *Arena) Columns() []*oci.Column { return a.cols }

// Offset returns the byte offset of column i within the arena.
func (a *Arena) Offset(i int) int { return a.offsets[i] }

// RowWidth is the sum of the value sizes of one row.
func (a *Arena) RowWidth() int {
	w := 0
	for _, m := range a.metas {
		w += m.Size
	}
	return w
}

// Bytes returns the size of the value storage.
func (a *Arena) Bytes() int { return len(a.buf) }

// Row returns a view of row r, decoding text in cs.
func (a *Arena) Row(r int, cs oci.Charset) Row {
	return Row{cols: a.cols, row: r, charset: cs}
}

// Reset marks every cell NULL.
func (a *Arena) Reset() {
	for _, c := range a.cols {
		for r := range c.Indicators {
			c.SetNull(r)
		}
	}
}
