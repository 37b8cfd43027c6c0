// Package rowcodec maps native fetch buffers onto Go values: row shapes that
// describe how a record is laid out in the driver's column buffers, an arena
// that owns those buffers, typed parameter bindings, and a query iterator
// that refetches transparently until the cursor is exhausted.
package rowcodec

import (
	"github.com/allyourbase/oraclone/internal/oci"
)

// Meta describes the buffer of one column: bytes per cell, alignment of the
// column region and the native type the driver converts into.
type Meta struct {
	Size  int
	Align int
	Type  oci.DataType
}

func Uint32() Meta  { return Meta{Size: 4, Align: 4, Type: oci.TypeUint} }
func Int32() Meta   { return Meta{Size: 4, Align: 4, Type: oci.TypeInt} }
func Uint64() Meta  { return Meta{Size: 8, Align: 8, Type: oci.TypeUint} }
func Int64() Meta   { return Meta{Size: 8, Align: 8, Type: oci.TypeInt} }
func Float64() Meta { return Meta{Size: 8, Align: 8, Type: oci.TypeFloat} }

// Number holds an internal NUMBER verbatim, for values wider than 64 bits.
func Number() Meta { return Meta{Size: oci.NumberSize, Align: 1, Type: oci.TypeNumeric} }

func Date() Meta      { return Meta{Size: oci.DateSize, Align: 1, Type: oci.TypeDate} }
func Timestamp() Meta { return Meta{Size: oci.TimestampSize, Align: 1, Type: oci.TypeTimestamp} }

// String holds up to capacity bytes of character data.
func String(capacity int) Meta { return Meta{Size: capacity, Align: 1, Type: oci.TypeChar} }

// LongTextSize is the buffer of LongString cells. Longer LONG values are
// clipped and flagged by Cell.Truncated.
const LongTextSize = 32760

// LongString holds the text of LONG catalog columns such as view and
// trigger bodies.
func LongString() Meta { return Meta{Size: LongTextSize, Align: 1, Type: oci.TypeLong} }

func Clob() Meta { return Meta{Align: 1, Type: oci.TypeClob} }
func Blob() Meta { return Meta{Align: 1, Type: oci.TypeBlob} }

// Shape is the row layout of T together with its decoder. Columns are in
// select-list order.
type Shape[T any] struct {
	Columns []Meta
	Decode  func(Row) T
}

// Scalar shapes for single-column queries.
var (
	StringShape = func(capacity int) Shape[string] {
		return Shape[string]{
			Columns: []Meta{String(capacity)},
			Decode:  func(r Row) string { return r.Cell(0).String() },
		}
	}
	Int64Shape = Shape[int64]{
		Columns: []Meta{Int64()},
		Decode:  func(r Row) int64 { return r.Cell(0).Int64() },
	}
)
