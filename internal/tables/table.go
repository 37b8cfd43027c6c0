// Package tables recreates tables on the destination and streams their rows
// from the source. Rows travel through one buffer that is defined on the
// source query and bound on the destination insert at the same time; LOB
// columns are copied out of band through locator pairs.
package tables

import (
	"github.com/allyourbase/oraclone/internal/oci"
)

// ColumnType is the logical type a catalog column maps to.
type ColumnType int

const (
	Unsupported ColumnType = iota
	Varchar
	Long
	DateTime
	Int32
	Int64
	Float64
	Blob
	Clob
)

var columnTypeNames = [...]string{"Unsupported", "Varchar", "Long", "DateTime", "Int32", "Int64", "Float64", "Blob", "Clob"}

func (c ColumnType) String() string {
	if int(c) < len(columnTypeNames) {
		return columnTypeNames[c]
	}
	return "Unsupported"
}

// IsLob reports whether values of the type are copied through locators.
func (c ColumnType) IsLob() bool { return c == Blob || c == Clob }

// LongBufferLen is the transfer width of LONG columns, which are recreated as
// VARCHAR2(4000).
const LongBufferLen = 4000

// Column describes one table column.
type Column struct {
	Name      string
	Type      ColumnType
	TypeName  string
	Length    int
	Nullable  bool
	Precision int
	Scale     int
	Native    oci.DataType
	BufferLen int
}

// MapColumn derives the logical type, native wire type and transfer buffer
// length of a catalog column. precision and scale are nil when the catalog
// has NULL for them.
//
// NUMBER with scale 0 becomes Int64 when the precision is absent or wider
// than 7 digits, Int32 otherwise. A NUMBER with scale 0 and no precision is
// recreated as INTEGER. Every other NUMBER travels as Float64.
func MapColumn(name, typeName string, length int, nullable bool, precision, scale *int64) Column {
	c := Column{Name: name, TypeName: typeName, Length: length, Nullable: nullable}
	if precision != nil {
		c.Precision = int(*precision)
	}
	if scale != nil {
		c.Scale = int(*scale)
	}
	switch typeName {
	case "CHAR", "VARCHAR2":
		c.Type, c.Native, c.BufferLen = Varchar, oci.TypeChar, length
	case "LONG":
		c.Type, c.Native, c.BufferLen = Long, oci.TypeChar, LongBufferLen
	case "DATE":
		c.Type, c.Native, c.BufferLen = DateTime, oci.TypeTimestamp, oci.TimestampSize
	case "NUMBER":
		c.Native, c.BufferLen = oci.TypeNumeric, oci.NumberSize
		switch {
		case scale != nil && *scale == 0 && precision == nil:
			c.Type, c.TypeName = Int64, "INTEGER"
		case scale != nil && *scale == 0 && *precision > 7:
			c.Type = Int64
		case scale != nil && *scale == 0:
			c.Type = Int32
		default:
			c.Type = Float64
		}
	case "BLOB":
		c.Type, c.Native = Blob, oci.TypeBlob
	case "CLOB":
		c.Type, c.Native = Clob, oci.TypeClob
	default:
		c.Type = Unsupported
	}
	return c
}

// IndexColumn is one key column of an index.
type IndexColumn struct {
	Name string
	Desc bool
}

// Index is a secondary index.
type Index struct {
	Name    string
	Unique  bool
	Columns []IndexColumn
}

// PrimaryKey is a named primary key constraint.
type PrimaryKey struct {
	Name    string
	Columns []string
}

// Table is everything needed to recreate and load one table. It is built
// from the source catalog and not modified afterwards.
type Table struct {
	Name      string
	Temporary bool
	IOT       bool
	BackedUp  bool
	Columns   []Column
	PK        *PrimaryKey
	Indexes   []Index

	Unsupported bool
	NoIOT       bool
	LunaCalc    bool
	HasLob      bool
}

// LunaCalcColumn is the column the partial copy filter reads.
const LunaCalcColumn = "LUNA_CALC"

// noIOTBufferLen is the widest column an index-organized table may carry.
const noIOTBufferLen = 1000

// NewTable builds a table and derives its flags from the columns.
func NewTable(name string, temporary, iot, backedUp bool, cols []Column, pk *PrimaryKey, indexes []Index) Table {
	t := Table{
		Name:      name,
		Temporary: temporary,
		IOT:       iot,
		BackedUp:  backedUp,
		Columns:   cols,
		PK:        pk,
		Indexes:   indexes,
	}
	for _, c := range cols {
		if c.BufferLen > noIOTBufferLen {
			t.NoIOT = true
		}
		if c.Type == Unsupported {
			t.Unsupported = true
		}
		if c.Type.IsLob() {
			t.HasLob = true
		}
		if c.Name == LunaCalcColumn && !temporary && !iot {
			t.LunaCalc = true
		}
	}
	return t
}

// RowWidth is the sum of the transfer buffer lengths of one row.
func (t Table) RowWidth() int {
	w := 0
	for _, c := range t.Columns {
		w += c.BufferLen
	}
	return w
}

// Clone returns a deep copy, safe to hand to another goroutine.
func (t Table) Clone() Table {
	c := t
	c.Columns = append([]Column(nil), t.Columns...)
	if t.PK != nil {
		pk := PrimaryKey{Name: t.PK.Name, Columns: append([]string(nil), t.PK.Columns...)}
		c.PK = &pk
	}
	c.Indexes = make([]Index, len(t.Indexes))
	for i, idx := range t.Indexes {
		idx.Columns = append([]IndexColumn(nil), idx.Columns...)
		c.Indexes[i] = idx
	}
	return c
}

// qualifiesForIOT applies the index-organized heuristic to the size of the
// first fetched batch.
func (t Table) qualifiesForIOT(firstBatch int, o Options) bool {
	if t.IOT {
		return true
	}
	return !t.NoIOT && !t.Temporary && !t.Unsupported && !t.HasLob &&
		t.PK != nil && len(t.Indexes) == 0 &&
		len(t.Columns) < o.IOTMaxColumns && firstBatch < o.IOTMaxRows
}
