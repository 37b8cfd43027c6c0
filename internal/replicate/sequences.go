package replicate

import (
	"context"
	"fmt"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

// Sequence is a sequence as the source catalog reports it. Bounds are kept
// as decimal text; the default maximum has 28 digits.
type Sequence struct {
	Name        string
	MinValue    string
	MaxValue    string
	IncrementBy string
	Cycle       bool
	LastNumber  string
}

var sequenceShape = rowcodec.Shape[Sequence]{
	Columns: []rowcodec.Meta{
		rowcodec.String(128), rowcodec.Number(), rowcodec.Number(),
		rowcodec.Number(), rowcodec.String(1), rowcodec.Number(),
	},
	Decode: func(r rowcodec.Row) Sequence {
		return Sequence{
			Name:        r.Cell(0).String(),
			MinValue:    r.Cell(1).String(),
			MaxValue:    r.Cell(2).String(),
			IncrementBy: r.Cell(3).String(),
			Cycle:       r.Cell(4).String() == "Y",
			LastNumber:  r.Cell(5).String(),
		}
	},
}

// SequenceSQL renders the DDL that recreates s in schema, continuing at the
// source's last number.
func SequenceSQL(schema string, s Sequence) string {
	cycle := "nocycle"
	if s.Cycle {
		cycle = "cycle"
	}
	return fmt.Sprintf("create sequence %s.%s minvalue %s maxvalue %s increment by %s %s start with %s",
		schema, s.Name, s.MinValue, s.MaxValue, s.IncrementBy, cycle, s.LastNumber)
}

// Sequences recreates the sequences of schema. An existing sequence is
// skipped without grants; any other failure ends the phase for the schema.
func (r *Replicator) Sequences(ctx context.Context, schema string) (Result, error) {
	var res Result
	q, err := rowcodec.Prepare(ctx, r.src,
		"select sequence_name, min_value, max_value, increment_by, cycle_flag, last_number from sys.all_sequences where sequence_owner = :owner",
		sequenceShape, rowcodec.DefaultPrefetch)
	if err != nil {
		return res, fmt.Errorf("can not prepare query for sequences info: %w", err)
	}
	defer q.Close()
	owner, err := rowcodec.BindName[string](q, "owner", rowcodec.String(128))
	if err != nil {
		return res, err
	}
	if err := owner.Set(schema); err != nil {
		return res, err
	}
	seqs, err := q.All(ctx)
	if err != nil {
		return res, fmt.Errorf("can not load sequences struct with error: %w", err)
	}
	for _, s := range seqs {
		if err := oci.Exec(ctx, r.dst, SequenceSQL(schema, s)); err != nil {
			if oci.Code(err) == oci.ErrNameInUse {
				res.Skipped++
				continue
			}
			res.Failed++
			return res, fmt.Errorf("can not create sequence: %s.%s with error: %w", schema, s.Name, err)
		}
		res.Created++
		if err := r.grant(ctx, schema, s.Name); err != nil {
			return res, err
		}
	}
	r.logger.Debug("sequences replicated", "schema", schema, "created", res.Created, "skipped", res.Skipped)
	return res, nil
}
