package oci

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"
)

// PutValue stores the Go value v into the cell at row the way the driver
// would after a fetch. Text is encoded in cs. The recorded length of a text
// cell is the full encoded length even when it exceeds Size, so callers can
// detect truncation; only Size bytes are copied.
func PutValue(col *Column, row int, v any, cs Charset) error {
	if v == nil {
		col.SetNull(row)
		return nil
	}
	cell := col.Cell(row)
	n := 0
	switch col.Type {
	case TypeChar, TypeLong:
		var b []byte
		switch x := v.(type) {
		case []byte:
			b = x
		case string:
			enc, err := cs.Encode(x)
			if err != nil {
				return err
			}
			b = enc
		default:
			enc, err := cs.Encode(fmt.Sprint(x))
			if err != nil {
				return err
			}
			b = enc
		}
		copy(cell, b)
		n = min(len(b), math.MaxUint16)
	case TypeNumeric:
		s, err := decimalText(v)
		if err != nil {
			return err
		}
		if n, err = EncodeNumber(cell, s); err != nil {
			return err
		}
	case TypeInt:
		i, err := toInt64(v)
		if err != nil {
			return err
		}
		switch col.Size {
		case 4:
			if i < math.MinInt32 || i > math.MaxInt32 {
				return fmt.Errorf("value %d overflows int32", i)
			}
			binary.LittleEndian.PutUint32(cell, uint32(int32(i)))
		case 8:
			binary.LittleEndian.PutUint64(cell, uint64(i))
		default:
			return fmt.Errorf("unsupported int width %d", col.Size)
		}
		n = col.Size
	case TypeUint:
		i, err := toInt64(v)
		if err != nil {
			return err
		}
		if i < 0 {
			return fmt.Errorf("value %d is negative", i)
		}
		switch col.Size {
		case 4:
			if i > math.MaxUint32 {
				return fmt.Errorf("value %d overflows uint32", i)
			}
			binary.LittleEndian.PutUint32(cell, uint32(i))
		case 8:
			binary.LittleEndian.PutUint64(cell, uint64(i))
		default:
			return fmt.Errorf("unsupported uint width %d", col.Size)
		}
		n = col.Size
	case TypeFloat:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		switch col.Size {
		case 4:
			binary.LittleEndian.PutUint32(cell, math.Float32bits(float32(f)))
		case 8:
			binary.LittleEndian.PutUint64(cell, math.Float64bits(f))
		default:
			return fmt.Errorf("unsupported float width %d", col.Size)
		}
		n = col.Size
	case TypeDate, TypeTimestamp:
		t, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("cannot store %T as %s", v, col.Type)
		}
		if col.Type == TypeDate {
			EncodeDate(cell, t)
			n = DateSize
		} else {
			EncodeTimestamp(cell, t)
			n = TimestampSize
		}
	default:
		return fmt.Errorf("cannot store value in %s column", col.Type)
	}
	col.Indicators[row] = 0
	if col.Lengths != nil {
		col.Lengths[row] = uint16(n)
	}
	return nil
}

// Value reads the cell at row back into a Go value: nil for NULL, string for
// text and NUMBER, int64 or uint64 for integers, float64 and time.Time.
func Value(col *Column, row int, cs Charset, loc *time.Location) (any, error) {
	if col.IsNull(row) {
		return nil, nil
	}
	cell := col.Cell(row)
	length := col.Size
	if col.Lengths != nil {
		length = min(int(col.Lengths[row]), col.Size)
	}
	switch col.Type {
	case TypeChar, TypeLong:
		return cs.Decode(cell[:length])
	case TypeNumeric:
		return DecodeNumber(cell[:length])
	case TypeInt:
		if col.Size == 4 {
			return int64(int32(binary.LittleEndian.Uint32(cell))), nil
		}
		return int64(binary.LittleEndian.Uint64(cell)), nil
	case TypeUint:
		if col.Size == 4 {
			return uint64(binary.LittleEndian.Uint32(cell)), nil
		}
		return binary.LittleEndian.Uint64(cell), nil
	case TypeFloat:
		if col.Size == 4 {
			return float64(math.Float32frombits(binary.LittleEndian.Uint32(cell))), nil
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(cell)), nil
	case TypeDate:
		return DecodeDate(cell, loc), nil
	case TypeTimestamp:
		return DecodeTimestamp(cell, loc), nil
	}
	return nil, fmt.Errorf("cannot read value from %s column", col.Type)
}

func decimalText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", fmt.Errorf("cannot store %T as NUMBER", v)
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", x)
		}
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	}
	return 0, fmt.Errorf("cannot store %T as integer", v)
}

func toFloat64(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	}
	return 0, fmt.Errorf("cannot store %T as float", v)
}

// NewColumn allocates a column of rows cells of the given type and width.
// LOB columns get a locator slot per cell and no value storage.
func NewColumn(t DataType, size, rows int) *Column {
	col := &Column{
		Type:       t,
		Size:       size,
		Indicators: make([]int16, rows),
	}
	if t.IsLob() {
		col.Lobs = make([]Lob, rows)
		return col
	}
	col.Values = make([]byte, size*rows)
	col.Lengths = make([]uint16, rows)
	return col
}
