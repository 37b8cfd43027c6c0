package rowcodec

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/oci/ocitest"
	"github.com/allyourbase/oraclone/internal/testutil"
)

type column struct {
	Name      string
	Length    int64
	Nullable  bool
	Precision *int64
	Created   time.Time
}

var columnShape = Shape[column]{
	Columns: []Meta{String(128), Int64(), String(1), Int64(), Date()},
	Decode: func(r Row) column {
		return column{
			Name:      r.Cell(0).String(),
			Length:    r.Cell(1).Int64(),
			Nullable:  r.Cell(2).Bool(),
			Precision: r.Cell(3).OptInt64(),
			Created:   r.Cell(4).Time(),
		}
	},
}

func TestNewArenaLayout(t *testing.T) {
	a, err := NewArena([]Meta{String(3), Int64(), Date(), Uint32()}, 4)
	testutil.NoError(t, err)
	testutil.Equal(t, 4, a.Rows())
	testutil.Equal(t, 0, a.Offset(0))
	testutil.Equal(t, 16, a.Offset(1)) // 12 rounded up to 8
	testutil.Equal(t, 48, a.Offset(2))
	testutil.Equal(t, 76, a.Offset(3))
	testutil.Equal(t, 92, a.Bytes())
	testutil.Equal(t, 3+8+7+4, a.RowWidth())
	testutil.Equal(t, 4*3, len(a.Column(0).Values))
}

func TestNewArenaRejectsBadLayout(t *testing.T) {
	tests := []struct {
		name  string
		metas []Meta
		rows  int
		want  string
	}{
		{"no rows", []Meta{Int64()}, 0, "at least one row"},
		{"zero size", []Meta{{Size: 0, Align: 1, Type: oci.TypeChar}}, 1, "size must be positive"},
		{"odd alignment", []Meta{{Size: 6, Align: 3, Type: oci.TypeChar}}, 1, "power of two"},
		{"misaligned size", []Meta{{Size: 6, Align: 4, Type: oci.TypeInt}}, 1, "not a multiple"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewArena(tt.metas, tt.rows)
			testutil.ErrorContains(t, err, tt.want)
		})
	}
}

func TestCellNullConventions(t *testing.T) {
	a, err := NewArena([]Meta{String(8), Int64(), Float64(), Date(), Number()}, 1)
	testutil.NoError(t, err)
	a.Reset()
	row := a.Row(0, oci.CharsetAL32UTF8)
	testutil.Equal(t, "", row.Cell(0).String())
	testutil.Nil(t, row.Cell(0).OptString())
	testutil.Equal(t, int64(0), row.Cell(1).Int64())
	testutil.Nil(t, row.Cell(1).OptInt64())
	testutil.Equal(t, 0.0, row.Cell(2).Float64())
	testutil.True(t, row.Cell(3).Time().IsZero())
	testutil.Equal(t, "", row.Cell(4).String())
	testutil.False(t, row.Cell(0).Bool())
}

func TestCellRoundTrip(t *testing.T) {
	a, err := NewArena([]Meta{String(8), Int64(), Float64(), Timestamp(), Number(), Uint32()}, 2)
	testutil.NoError(t, err)
	ts := time.Date(2024, time.May, 1, 8, 30, 0, 250, time.Local)
	values := []any{"abc", int64(-9), 0.25, ts, "12345678901234567890123", uint32(7)}
	for i, v := range values {
		testutil.NoError(t, oci.PutValue(a.Column(i), 1, v, oci.CharsetAL32UTF8))
	}
	row := a.Row(1, oci.CharsetAL32UTF8)
	testutil.Equal(t, "abc", row.Cell(0).String())
	testutil.Equal(t, 3, row.Cell(0).Len())
	testutil.Equal(t, int64(-9), row.Cell(1).Int64())
	testutil.Equal(t, 0.25, row.Cell(2).Float64())
	testutil.True(t, ts.Equal(row.Cell(3).Time()))
	testutil.Equal(t, "12345678901234567890123", row.Cell(4).String())
	testutil.Equal(t, uint32(7), row.Cell(5).Uint32())
}

func TestQueryIteratesAcrossFetches(t *testing.T) {
	conn := ocitest.New()
	created := time.Date(2001, time.February, 3, 4, 5, 6, 0, time.Local)
	var rows [][]any
	for i := 0; i < 7; i++ {
		var precision any
		if i%2 == 0 {
			precision = int64(i)
		}
		rows = append(rows, []any{fmt.Sprintf("COL%d", i), int64(i * 10), "Y", precision, created})
	}
	conn.OnQuery("from sys.all_tab_columns", func(args map[string]any) [][]any {
		if args["owner"] != "SCOTT" {
			return nil
		}
		return rows
	})

	ctx := context.Background()
	q, err := Prepare(ctx, conn, "select column_name, data_length, nullable, data_precision, created from sys.all_tab_columns where owner = :owner", columnShape, 3)
	testutil.NoError(t, err)
	defer q.Close()
	owner, err := BindName[string](q, "owner", String(128))
	testutil.NoError(t, err)

	testutil.NoError(t, owner.Set("SCOTT"))
	got, err := q.All(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, got, 7)
	testutil.Equal(t, "COL6", got[6].Name)
	testutil.Equal(t, int64(60), got[6].Length)
	testutil.True(t, got[6].Nullable)
	testutil.NotNil(t, got[0].Precision)
	testutil.Nil(t, got[1].Precision)
	testutil.True(t, created.Equal(got[3].Created))

	// Rebinding reuses the prepared statement.
	testutil.NoError(t, owner.Set("OTHER"))
	got, err = q.All(ctx)
	testutil.NoError(t, err)
	testutil.SliceLen(t, got, 0)
}

func TestQueryOne(t *testing.T) {
	conn := ocitest.New()
	conn.Rows("from dual", []any{int64(42)}, []any{int64(43)})
	ctx := context.Background()
	q, err := Prepare(ctx, conn, "select 42 from dual", Int64Shape, 0)
	testutil.NoError(t, err)
	v, ok, err := q.One(ctx)
	testutil.NoError(t, err)
	testutil.True(t, ok)
	testutil.Equal(t, int64(42), v)
}

func TestQueryErrorsCarryStatement(t *testing.T) {
	conn := ocitest.New()
	ctx := context.Background()
	q, err := Prepare(ctx, conn, "select x from missing_view", StringShape(10), 1)
	testutil.NoError(t, err)
	_, err = q.All(ctx)
	testutil.ErrorContains(t, err, "select x from missing_view")
	testutil.Equal(t, 942, oci.Code(err))
}

func TestBindingRejectsOverflow(t *testing.T) {
	conn := ocitest.New()
	ctx := context.Background()
	q, err := Prepare(ctx, conn, "select 1 from dual where :name is not null", Int64Shape, 1)
	testutil.NoError(t, err)
	name, err := BindName[string](q, "name", String(4))
	testutil.NoError(t, err)
	testutil.NoError(t, name.Set("ABCD"))
	testutil.ErrorContains(t, name.Set("ABCDE"), "exceeds capacity 4")
}

func TestCellTruncated(t *testing.T) {
	a, err := NewArena([]Meta{String(4)}, 3)
	testutil.NoError(t, err)
	a.Reset()
	testutil.NoError(t, oci.PutValue(a.Column(0), 0, "abcd", oci.CharsetAL32UTF8))
	testutil.NoError(t, oci.PutValue(a.Column(0), 1, "abcdef", oci.CharsetAL32UTF8))

	fits := a.Row(0, oci.CharsetAL32UTF8).Cell(0)
	testutil.False(t, fits.Truncated())
	testutil.Equal(t, "abcd", fits.String())

	clipped := a.Row(1, oci.CharsetAL32UTF8).Cell(0)
	testutil.True(t, clipped.Truncated())
	testutil.Equal(t, 6, clipped.Len())
	testutil.Equal(t, "abcd", clipped.String())

	testutil.False(t, a.Row(2, oci.CharsetAL32UTF8).Cell(0).Truncated())
}
