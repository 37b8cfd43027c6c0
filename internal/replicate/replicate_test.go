package replicate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/oci/ocitest"
	"github.com/allyourbase/oraclone/internal/rowcodec"
	"github.com/allyourbase/oraclone/internal/testutil"
	"github.com/stretchr/testify/assert"
)

type errorLog struct{ lines []string }

func (e *errorLog) Error(msg string) { e.lines = append(e.lines, msg) }

type granter struct {
	granted []string
	err     error
}

func (g *granter) Grant(_ context.Context, owner, object string) error {
	g.granted = append(g.granted, owner+"."+object)
	return g.err
}

func fixture() (*ocitest.Conn, *ocitest.Conn, *granter, *errorLog, *Replicator) {
	src, dst := ocitest.New(), ocitest.New()
	g, errs := &granter{}, &errorLog{}
	return src, dst, g, errs, New(src, dst, g, errs, testutil.DiscardLogger())
}

func TestSequenceSQL(t *testing.T) {
	s := Sequence{Name: "SEQ_ORDERS", MinValue: "1", MaxValue: "9999999999999999999999999999", IncrementBy: "1", LastNumber: "41"}
	testutil.Equal(t,
		"create sequence APP.SEQ_ORDERS minvalue 1 maxvalue 9999999999999999999999999999 increment by 1 nocycle start with 41",
		SequenceSQL("APP", s))
	s.Cycle = true
	testutil.Contains(t, SequenceSQL("APP", s), " cycle start with 41")
}

func TestSequences(t *testing.T) {
	src, dst, g, _, r := fixture()
	src.Rows("from sys.all_sequences",
		[]any{"SEQ_A", 1, 1000, 1, "N", 17},
		[]any{"SEQ_B", 1, 50, 5, "Y", 6},
	)
	dst.Fail("APP.SEQ_B", oci.ErrNameInUse)

	res, err := r.Sequences(context.Background(), "APP")
	testutil.NoError(t, err)
	testutil.Equal(t, Result{Created: 1, Skipped: 1}, res)
	assert.Equal(t, []string{"create sequence APP.SEQ_A minvalue 1 maxvalue 1000 increment by 1 nocycle start with 17"}, dst.Executed()[:1])
	testutil.SliceLen(t, g.granted, 1)
	testutil.Equal(t, "APP.SEQ_A", g.granted[0])
}

func TestSequencesStopOnFailure(t *testing.T) {
	src, dst, g, _, r := fixture()
	src.Rows("from sys.all_sequences",
		[]any{"SEQ_A", 1, 1000, 1, "N", 17},
		[]any{"SEQ_B", 1, 50, 5, "Y", 6},
	)
	dst.Fail("APP.SEQ_A", oci.ErrInsufficientPrivilege)

	res, err := r.Sequences(context.Background(), "APP")
	testutil.ErrorContains(t, err, "can not create sequence: APP.SEQ_A")
	testutil.Equal(t, 1, res.Failed)
	testutil.SliceLen(t, dst.Executed(), 0)
	testutil.SliceLen(t, g.granted, 0)
}

func TestSequencesGrantFailure(t *testing.T) {
	src, _, g, _, r := fixture()
	src.Rows("from sys.all_sequences", []any{"SEQ_A", 1, 1000, 1, "N", 17})
	g.err = errors.New("boom")

	_, err := r.Sequences(context.Background(), "APP")
	testutil.ErrorContains(t, err, "boom")
}

func scriptForeignKeys(src *ocitest.Conn) {
	src.Rows("constraint_type = 'R'",
		[]any{"APP", "LINES", "FK_LINES_ORDER", "APP", "PK_ORDERS"},
		[]any{"APP", "LINES", "FK_LINES_ITEM", "CAT", "PK_ITEMS"},
		[]any{"APP", "NOTES", "FK_NOTES_GONE", "APP", "PK_GONE"},
	)
	src.OnQuery("constraint_type = 'P'", func(args map[string]any) [][]any {
		switch args["constraint"] {
		case "PK_ORDERS":
			return [][]any{{"ORDERS"}}
		case "PK_ITEMS":
			if args["owner"] == "CAT" {
				return [][]any{{"ITEMS"}}
			}
		}
		return nil
	})
	src.OnQuery("from sys.all_cons_columns", func(args map[string]any) [][]any {
		switch args["constraint"] {
		case "FK_LINES_ORDER":
			return [][]any{{"ORDER_ID"}}
		case "FK_LINES_ITEM":
			return [][]any{{"ITEM_ID"}, {"ITEM_REV"}}
		case "PK_ORDERS":
			return [][]any{{"ID"}}
		case "PK_ITEMS":
			return [][]any{{"ID"}, {"REV"}}
		}
		return [][]any{{"X"}}
	})
}

func TestForeignKeys(t *testing.T) {
	src, dst, _, errs, r := fixture()
	scriptForeignKeys(src)

	res, err := r.ForeignKeys(context.Background(), []string{"APP"})
	testutil.NoError(t, err)
	testutil.Equal(t, Result{Created: 2, Skipped: 1}, res)
	assert.Equal(t, []string{
		"alter table APP.LINES add constraint FK_LINES_ORDER foreign key (ORDER_ID) references APP.ORDERS (ID)",
		"alter table APP.LINES add constraint FK_LINES_ITEM foreign key (ITEM_ID,ITEM_REV) references CAT.ITEMS (ID,REV)",
	}, dst.Executed())
	testutil.SliceLen(t, errs.lines, 0)
}

func TestForeignKeysFailures(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		skipped int
		failed  int
	}{
		{"name in use", oci.ErrConstraintNameInUse, 2, 0},
		{"key exists", oci.ErrSingleKeyExists, 2, 0},
		{"other", oci.ErrInvalidIdentifier, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, dst, _, errs, r := fixture()
			scriptForeignKeys(src)
			dst.Fail("FK_LINES_ORDER", tt.code)

			res, err := r.ForeignKeys(context.Background(), []string{"APP"})
			testutil.NoError(t, err)
			testutil.Equal(t, Result{Created: 1, Skipped: tt.skipped, Failed: tt.failed}, res)
			testutil.SliceLen(t, errs.lines, tt.failed)
			if tt.failed > 0 {
				testutil.True(t, strings.HasPrefix(errs.lines[0], "can not create foreign key: "))
				testutil.Contains(t, errs.lines[0], "sql: alter table APP.LINES add constraint FK_LINES_ORDER")
			}
			testutil.SliceLen(t, dst.ExecutedMatching("FK_LINES_ITEM"), 1)
		})
	}
}

func TestEmptySchemaListQueriesNothing(t *testing.T) {
	src, _, _, _, r := fixture()
	ctx := context.Background()
	for _, run := range []func(context.Context, []string) (Result, error){r.ForeignKeys, r.MaterializedViews, r.Triggers} {
		res, err := run(ctx, nil)
		testutil.NoError(t, err)
		testutil.Equal(t, Result{}, res)
	}
	testutil.SliceLen(t, src.Queried(), 0)
}

func TestMaterializedViews(t *testing.T) {
	src, dst, g, errs, r := fixture()
	src.Rows("from sys.all_mviews",
		[]any{"APP", "MV_TOTALS", "select id, sum(qty) q from APP.LINES group by id"},
		[]any{"APP", "MV_BROKEN", "select nope from APP.GONE"},
	)
	dst.Fail("MV_BROKEN", 942)

	res, err := r.MaterializedViews(context.Background(), []string{"APP", "RPT"})
	testutil.NoError(t, err)
	testutil.Equal(t, Result{Created: 1, Failed: 1}, res)
	testutil.Contains(t, src.Queried()[0], "where owner in ('APP','RPT')")
	assert.Equal(t, []string{
		"create materialized view APP.MV_TOTALS build immediate as select id, sum(qty) q from APP.LINES group by id",
	}, dst.Executed())
	assert.Equal(t, []string{"APP.MV_TOTALS"}, g.granted)
	testutil.SliceLen(t, errs.lines, 1)
	testutil.True(t, strings.HasPrefix(errs.lines[0], "can not create materialized view: APP.MV_BROKEN with error: "))
}

func TestSplitType(t *testing.T) {
	tests := []struct {
		typ, timing, scope string
	}{
		{"BEFORE EACH ROW", "BEFORE", "for EACH ROW"},
		{"AFTER STATEMENT", "AFTER", ""},
		{"INSTEAD OF", "INSTEAD OF", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			timing, scope := splitType(tt.typ)
			testutil.Equal(t, tt.timing, timing)
			testutil.Equal(t, tt.scope, scope)
		})
	}
}

func TestTriggerSQL(t *testing.T) {
	tr := Trigger{Owner: "APP", Table: "ORDERS", Name: "TRG_ORDERS_BI", Type: "BEFORE EACH ROW", Event: "INSERT", Body: "begin null; end;"}
	testutil.Equal(t,
		"create or replace trigger APP.TRG_ORDERS_BI\n BEFORE INSERT on APP.ORDERS\n for EACH ROW\nbegin null; end;",
		TriggerSQL(tr))
}

func TestTriggers(t *testing.T) {
	src, dst, g, errs, r := fixture()
	src.Rows("from sys.all_triggers",
		[]any{"APP", "ORDERS", "TRG_OK", "BEFORE EACH ROW", "INSERT", "begin null; end;"},
		[]any{"APP", "ORDERS", "TRG_LINK", "AFTER EACH ROW", "UPDATE", "begin insert into orders@remote values (1); end;"},
		[]any{"APP", "ORDERS", "TRG_BAD", "AFTER STATEMENT", "DELETE", "begin oops; end;"},
		[]any{"APP", "ORDERS", "TRG_GONE", "AFTER STATEMENT", "DELETE", "begin null; end;"},
	)
	dst.Fail("TRG_BAD", oci.ErrCompilation)
	dst.Fail("TRG_GONE", 942)

	res, err := r.Triggers(context.Background(), []string{"APP"})
	testutil.NoError(t, err)
	testutil.Equal(t, Result{Created: 1, Skipped: 1, Failed: 2}, res)
	testutil.SliceLen(t, dst.Executed(), 1)
	testutil.Contains(t, dst.Executed()[0], "TRG_OK")
	testutil.SliceLen(t, g.granted, 0)
	testutil.SliceLen(t, errs.lines, 2)
	testutil.Equal(t, "create trigger: APP.TRG_BAD on ORDERS: compilation with error", errs.lines[0])
	testutil.True(t, strings.HasPrefix(errs.lines[1], "can not create trigger: APP.TRG_GONE on ORDERS with error: "))
}

func TestLongTextIsNotClipped(t *testing.T) {
	long := "begin " + strings.Repeat("null; ", rowcodec.LongTextSize/6) + "end;"

	t.Run("trigger", func(t *testing.T) {
		src, dst, _, errs, r := fixture()
		src.Rows("from sys.all_triggers",
			[]any{"APP", "ORDERS", "TRG_BIG", "BEFORE EACH ROW", "INSERT", long},
			[]any{"APP", "ORDERS", "TRG_OK", "BEFORE EACH ROW", "INSERT", "begin null; end;"},
		)
		res, err := r.Triggers(context.Background(), []string{"APP"})
		testutil.NoError(t, err)
		testutil.Equal(t, Result{Created: 1, Failed: 1}, res)
		testutil.SliceLen(t, dst.Executed(), 1)
		testutil.Contains(t, dst.Executed()[0], "TRG_OK")
		testutil.SliceEqual(t, []string{
			fmt.Sprintf("can not create trigger: APP.TRG_BIG on ORDERS body longer than %d bytes", rowcodec.LongTextSize),
		}, errs.lines)
	})

	t.Run("materialized view", func(t *testing.T) {
		src, dst, g, errs, r := fixture()
		src.Rows("from sys.all_mviews", []any{"APP", "MV_BIG", "select " + long + " from dual"})
		res, err := r.MaterializedViews(context.Background(), []string{"APP"})
		testutil.NoError(t, err)
		testutil.Equal(t, Result{Failed: 1}, res)
		testutil.SliceLen(t, dst.Executed(), 0)
		testutil.SliceLen(t, g.granted, 0)
		testutil.SliceEqual(t, []string{
			fmt.Sprintf("can not create materialized view: APP.MV_BIG query longer than %d bytes", rowcodec.LongTextSize),
		}, errs.lines)
	})
}
