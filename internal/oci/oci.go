// Package oci defines the boundary to the native Oracle call interface: the
// statement, bind, and LOB primitives the migration engine is built on, the
// fixed type codes and status codes of the driver ABI, and the wire formats
// of the values the driver places into caller-owned buffers.
//
// Implementations live in sub-packages: ocisql drives a real database through
// database/sql, ocitest is a scripted in-memory double for tests.
package oci

import (
	"context"
	"fmt"
)

// DataType is a native external data type code (SQLT_*).
type DataType uint16

const (
	TypeUnsupported DataType = 0
	TypeChar        DataType = 1   // SQLT_CHR
	TypeNumeric     DataType = 2   // SQLT_NUM, 22 byte internal NUMBER
	TypeInt         DataType = 3   // SQLT_INT
	TypeFloat       DataType = 4   // SQLT_FLT
	TypeLong        DataType = 8   // SQLT_LNG
	TypeDate        DataType = 12  // SQLT_DAT, 7 bytes
	TypeUint        DataType = 68  // SQLT_UIN
	TypeClob        DataType = 112 // SQLT_CLOB
	TypeBlob        DataType = 113 // SQLT_BLOB
	TypeTimestamp   DataType = 180 // SQLT_TIMESTAMP, 11 bytes
)

func (t DataType) String() string {
	switch t {
	case TypeChar:
		return "CHR"
	case TypeNumeric:
		return "NUM"
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLT"
	case TypeLong:
		return "LNG"
	case TypeDate:
		return "DAT"
	case TypeUint:
		return "UIN"
	case TypeClob:
		return "CLOB"
	case TypeBlob:
		return "BLOB"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return fmt.Sprintf("SQLT(%d)", uint16(t))
	}
}

// IsLob reports whether values of this type travel through locators instead
// of the row buffer.
func (t DataType) IsLob() bool {
	return t == TypeClob || t == TypeBlob
}

// Byte widths fixed by the driver ABI.
const (
	NumberSize    = 22
	DateSize      = 7
	TimestampSize = 11
)

// CommitMode is the mode flag passed to a transaction commit.
type CommitMode uint32

const (
	CommitDefault   CommitMode = 0
	CommitBatch     CommitMode = 1
	CommitImmediate CommitMode = 2
	CommitWait      CommitMode = 4
	CommitNowait    CommitMode = 8
)

// Piece marks a chunk of a piecewise LOB write.
type Piece uint8

const (
	PieceOne   Piece = 0
	PieceFirst Piece = 1
	PieceNext  Piece = 2
	PieceLast  Piece = 3
)

func (p Piece) String() string {
	switch p {
	case PieceOne:
		return "one"
	case PieceFirst:
		return "first"
	case PieceNext:
		return "next"
	case PieceLast:
		return "last"
	default:
		return fmt.Sprintf("piece(%d)", uint8(p))
	}
}

// LobKind selects the kind of a temporary LOB.
type LobKind uint8

const (
	LobDefault LobKind = 0
	LobBlob    LobKind = 1
	LobClob    LobKind = 2
)

// Attribute identifies a handle attribute.
type Attribute uint32

const (
	AttrPrefetchRows   Attribute = 11
	AttrPrefetchMemory Attribute = 13
	AttrCharsetID      Attribute = 31
	AttrRowsFetched    Attribute = 197
)

// Column is a caller-owned buffer region backing one select-list item or one
// bind position. It holds Rows() cells: Size bytes of value, one indicator
// (negative means NULL) and one actual length per cell. LOB columns carry a
// locator per cell in Lobs instead of values.
//
// The same Column may be defined on a query and bound on a DML statement at
// once; the driver reads and writes the slices in place.
type Column struct {
	Type       DataType
	Size       int
	Values     []byte
	Indicators []int16
	Lengths    []uint16
	Lobs       []Lob
}

// Rows returns the number of cells in the column.
func (c *Column) Rows() int {
	return len(c.Indicators)
}

// Cell returns the value bytes of the cell at row.
func (c *Column) Cell(row int) []byte {
	return c.Values[row*c.Size : (row+1)*c.Size]
}

// IsNull reports whether the cell at row holds NULL.
func (c *Column) IsNull(row int) bool {
	return c.Indicators[row] < 0
}

// SetNull marks the cell at row as NULL.
func (c *Column) SetNull(row int) {
	c.Indicators[row] = -1
	if c.Lengths != nil {
		c.Lengths[row] = 0
	}
}

// Conn is one session. A Conn is used by a single goroutine at a time.
type Conn interface {
	// Prepare parses text into a statement. The text doubles as the
	// statement cache key.
	Prepare(ctx context.Context, text string) (Stmt, error)
	Commit(ctx context.Context, mode CommitMode) error
	Rollback(ctx context.Context) error
	// NewLob allocates a LOB locator. Temporary locators are created on the
	// server with the given kind and freed by Lob.Free.
	NewLob(ctx context.Context, kind LobKind, temporary bool) (Lob, error)
	// Charset is the client character set text cells are exchanged in.
	Charset() Charset
	Close() error
}

// Stmt is a prepared statement. Columns handed to Define and Bind must stay
// valid until the statement is closed.
type Stmt interface {
	Text() string
	// Define attaches an output buffer to the 1-based select-list position.
	Define(pos int, col *Column) error
	// BindPos attaches an input buffer to the 1-based placeholder position.
	BindPos(pos int, col *Column) (Bind, error)
	// BindName attaches an input buffer to the named placeholder.
	BindName(name string, col *Column) (Bind, error)
	SetAttr(attr Attribute, value uint32) error
	Attr(attr Attribute) (uint32, error)
	// Execute runs the statement. For queries iters is 0 and only opens the
	// cursor; for DML it is the number of bound rows to apply.
	Execute(ctx context.Context, iters int) error
	// Fetch fills up to rows cells of every defined column. It returns an
	// *Error with StatusNoData when the cursor is exhausted; AttrRowsFetched
	// holds the count of the last fetch in both cases.
	Fetch(ctx context.Context, rows int) error
	Close() error
}

// Bind is the handle of one parameter binding.
type Bind interface {
	SetAttr(attr Attribute, value uint32) error
}

// Lob is a LOB locator.
type Lob interface {
	Len(ctx context.Context) (int, error)
	// Read copies the next chunk into buf. done reports that the chunk
	// reached the end of the value.
	Read(ctx context.Context, offset int, buf []byte) (n int, done bool, err error)
	// Write appends data tagged with piece. A First or Next piece may
	// return an *Error with StatusNeedData, which means "send more".
	Write(ctx context.Context, offset int, piece Piece, data []byte) error
	Trim(ctx context.Context, length int) error
	Free(ctx context.Context) error
}

// Exec prepares and runs a single statement, the shape of every DDL call.
func Exec(ctx context.Context, conn Conn, text string) error {
	stmt, err := conn.Prepare(ctx, text)
	if err != nil {
		return err
	}
	defer stmt.Close()
	return stmt.Execute(ctx, 1)
}
