package ocitest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/allyourbase/oraclone/internal/oci"
)

type bind struct {
	col     *oci.Column
	charset oci.Charset
	hasCS   bool
}

func (b *bind) SetAttr(attr oci.Attribute, value uint32) error {
	if attr == oci.AttrCharsetID {
		b.charset = oci.Charset(value)
		b.hasCS = true
	}
	return nil
}

// Stmt is a fake prepared statement.
type Stmt struct {
	conn    *Conn
	text    string
	defines map[int]*oci.Column
	binds   map[string]*bind
	attrs   map[oci.Attribute]uint32

	rows    [][]any
	cursor  int
	fetched int
	closed  bool
}

func (s *Stmt) Text() string { return s.text }

func (s *Stmt) Define(pos int, col *oci.Column) error {
	if pos < 1 {
		return oci.NewError(1007, fmt.Sprintf("invalid define position %d", pos), "define")
	}
	s.defines[pos] = col
	return nil
}

func (s *Stmt) BindPos(pos int, col *oci.Column) (oci.Bind, error) {
	b := &bind{col: col}
	s.binds[strconv.Itoa(pos)] = b
	return b, nil
}

func (s *Stmt) BindName(name string, col *oci.Column) (oci.Bind, error) {
	b := &bind{col: col}
	s.binds[strings.TrimPrefix(name, ":")] = b
	return b, nil
}

func (s *Stmt) SetAttr(attr oci.Attribute, value uint32) error {
	if s.attrs == nil {
		s.attrs = map[oci.Attribute]uint32{}
	}
	s.attrs[attr] = value
	return nil
}

func (s *Stmt) Attr(attr oci.Attribute) (uint32, error) {
	if attr == oci.AttrRowsFetched {
		return uint32(s.fetched), nil
	}
	return s.attrs[attr], nil
}

func (s *Stmt) Execute(_ context.Context, iters int) error {
	if s.closed {
		return oci.NewError(int(oci.StatusInvalidHandle), "Invalid handle", "execute")
	}
	if IsQuery(s.text) {
		fn, ok := s.conn.lookup(s.text)
		if !ok {
			return oci.NewError(942, "table or view does not exist: "+s.text, "execute")
		}
		args, err := s.args(0)
		if err != nil {
			return err
		}
		s.rows = fn(args)
		s.cursor = 0
		s.fetched = 0
		return nil
	}
	if err := s.conn.run(s.text); err != nil {
		return err
	}
	if table, ok := insertTarget(s.text); ok {
		rows := make([][]any, 0, iters)
		for r := 0; r < iters; r++ {
			row, err := s.positional(r)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		s.conn.insert(table, rows)
	}
	return nil
}

func (s *Stmt) Fetch(ctx context.Context, n int) error {
	if s.rows == nil && s.cursor == 0 && s.fetched == 0 && !IsQuery(s.text) {
		return oci.NewError(1002, "fetch out of sequence", "fetch")
	}
	cs := s.conn.Charset()
	got := 0
	for got < n && s.cursor < len(s.rows) {
		row := s.rows[s.cursor]
		for pos, col := range s.defines {
			if pos-1 >= len(row) {
				return oci.NewError(1007, fmt.Sprintf("variable %d not in select list", pos), "fetch")
			}
			if err := s.put(ctx, col, got, row[pos-1], cs); err != nil {
				return err
			}
		}
		s.cursor++
		got++
	}
	s.fetched = got
	if got < n {
		return oci.NewError(int(oci.StatusNoData), "No data", "fetch")
	}
	return nil
}

func (s *Stmt) put(ctx context.Context, col *oci.Column, row int, v any, cs oci.Charset) error {
	if !col.Type.IsLob() {
		if c, ok := v.(Clob); ok {
			v = string(c)
		}
		return oci.PutValue(col, row, v, cs)
	}
	if v == nil {
		col.SetNull(row)
		return nil
	}
	l, ok := col.Lobs[row].(*Lob)
	if !ok {
		return oci.NewError(22275, "invalid LOB locator specified", "fetch")
	}
	switch x := v.(type) {
	case Clob:
		l.setData([]byte(x))
	case string:
		l.setData([]byte(x))
	case []byte:
		l.setData(x)
	default:
		return fmt.Errorf("ocitest: cannot deliver %T through a LOB", v)
	}
	col.Indicators[row] = 0
	return nil
}

func (s *Stmt) Close() error {
	s.closed = true
	return nil
}

func (s *Stmt) decode(b *bind, row int) (any, error) {
	col := b.col
	if col.IsNull(row) {
		return nil, nil
	}
	if col.Type.IsLob() {
		l, ok := col.Lobs[row].(*Lob)
		if !ok || l == nil {
			return nil, nil
		}
		if col.Type == oci.TypeClob {
			return string(l.Data()), nil
		}
		return l.Data(), nil
	}
	cs := s.conn.Charset()
	if b.hasCS {
		cs = b.charset
	}
	return oci.Value(col, row, cs, s.conn.location())
}

func (s *Stmt) args(row int) (map[string]any, error) {
	args := make(map[string]any, len(s.binds))
	for name, b := range s.binds {
		v, err := s.decode(b, row)
		if err != nil {
			return nil, err
		}
		args[name] = v
	}
	return args, nil
}

func (s *Stmt) positional(row int) ([]any, error) {
	var positions []int
	for name := range s.binds {
		if p, err := strconv.Atoi(name); err == nil {
			positions = append(positions, p)
		}
	}
	sort.Ints(positions)
	out := make([]any, 0, len(positions))
	for _, p := range positions {
		v, err := s.decode(s.binds[strconv.Itoa(p)], row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// insertTarget extracts the table name following "into".
func insertTarget(text string) (string, bool) {
	lower := strings.ToLower(text)
	if !strings.HasPrefix(strings.TrimSpace(lower), "insert") {
		return "", false
	}
	i := strings.Index(lower, " into ")
	if i < 0 {
		return "", false
	}
	rest := strings.TrimSpace(text[i+len(" into "):])
	end := strings.IndexAny(rest, " (")
	if end < 0 {
		return rest, true
	}
	return rest[:end], true
}
