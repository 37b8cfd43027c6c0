package rowcodec

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Row is a view of one fetched row.
type Row struct {
	cols    []*oci.Column
	row     int
	charset oci.Charset
}

// Len returns the number of cells in the row.
func (r Row) Len() int { return len(r.cols) }

// Cell returns the cell of column i.
func (r Row) Cell(i int) Cell {
	return Cell{col: r.cols[i], row: r.row, charset: r.charset}
}

// Cell is one column value of a row: value bytes, an indicator and the
// actual length reported by the driver.
//
// Accessors never fail. NULL reads as the zero value of the accessor's type
// (empty string for text); the Opt accessors report NULL as nil.
type Cell struct {
	col     *oci.Column
	row     int
	charset oci.Charset
}

// IsNull reports whether the driver delivered NULL.
func (c Cell) IsNull() bool { return c.col.IsNull(c.row) }

// Len returns the actual length the driver reported for the value, which
// may exceed the buffer when the value was truncated.
func (c Cell) Len() int {
	if c.col.Lengths == nil {
		return c.col.Size
	}
	return int(c.col.Lengths[c.row])
}

// Truncated reports a non-NULL value longer than the buffer it was fetched
// into; Bytes and String then hold only its first part.
func (c Cell) Truncated() bool {
	return !c.IsNull() && c.col.Values != nil && c.Len() > c.col.Size
}

// Bytes returns the stored value bytes, clipped to the buffer.
func (c Cell) Bytes() []byte {
	if c.IsNull() || c.col.Values == nil {
		return nil
	}
	return c.col.Cell(c.row)[:min(c.Len(), c.col.Size)]
}

// Lob returns the locator of a LOB cell.
func (c Cell) Lob() oci.Lob {
	if c.col.Lobs == nil {
		return nil
	}
	return c.col.Lobs[c.row]
}

func (c Cell) value() any {
	if c.IsNull() || c.col.Type.IsLob() {
		return nil
	}
	v, err := oci.Value(c.col, c.row, c.charset, time.Local)
	if err != nil {
		return nil
	}
	return v
}

func (c Cell) String() string {
	switch v := c.value().(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.DateTime)
	}
	return ""
}

// OptString returns nil for NULL.
func (c Cell) OptString() *string {
	if c.IsNull() {
		return nil
	}
	s := c.String()
	return &s
}

func (c Cell) Int64() int64 {
	switch v := c.value().(type) {
	case int64:
		return v
	case uint64:
		if v > math.MaxInt64 {
			return math.MaxInt64
		}
		return int64(v)
	case float64:
		return int64(v)
	case string:
		whole, _, _ := strings.Cut(strings.TrimSpace(v), ".")
		n, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// OptInt64 returns nil for NULL.
func (c Cell) OptInt64() *int64 {
	if c.IsNull() {
		return nil
	}
	n := c.Int64()
	return &n
}

func (c Cell) Int() int { return int(c.Int64()) }

func (c Cell) Uint32() uint32 {
	n := c.Int64()
	if n < 0 || n > math.MaxUint32 {
		return 0
	}
	return uint32(n)
}

func (c Cell) Float64() float64 {
	switch v := c.value().(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// Time returns the zero time for NULL.
func (c Cell) Time() time.Time {
	if t, ok := c.value().(time.Time); ok {
		return t
	}
	return time.Time{}
}

// Bool reads Y/YES/TRUE/1 style flags.
func (c Cell) Bool() bool {
	switch strings.ToUpper(strings.TrimSpace(c.String())) {
	case "Y", "YES", "TRUE", "1", "ENABLED":
		return true
	}
	return false
}
