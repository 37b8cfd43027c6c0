package ocisql

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/godror/godror"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/allyourbase/oraclone/internal/oci"
)

type bind struct {
	name    string
	pos     int
	col     *oci.Column
	charset oci.Charset
}

func (b *bind) SetAttr(attr oci.Attribute, value uint32) error {
	if attr == oci.AttrCharsetID {
		b.charset = oci.Charset(value)
	}
	return nil
}

// Stmt runs one statement text on the pinned session. Queries stream
// through *sql.Rows into the defined columns; DML is prepared once per
// Execute and applied row by row inside the session transaction.
type Stmt struct {
	conn    *Conn
	text    string
	kind    kind
	defines map[int]*oci.Column
	binds   []*bind
	attrs   map[oci.Attribute]uint32
	rows    *sql.Rows
	width   int
	fetched int
}

func (s *Stmt) Text() string { return s.text }

func (s *Stmt) Define(pos int, col *oci.Column) error {
	if pos < 1 {
		return oci.NewError(1007, fmt.Sprintf("variable %d not in select list", pos), "define")
	}
	s.defines[pos] = col
	return nil
}

func (s *Stmt) BindPos(pos int, col *oci.Column) (oci.Bind, error) {
	b := &bind{pos: pos, col: col, charset: s.conn.charset}
	s.binds = append(s.binds, b)
	return b, nil
}

func (s *Stmt) BindName(name string, col *oci.Column) (oci.Bind, error) {
	b := &bind{name: strings.TrimPrefix(name, ":"), col: col, charset: s.conn.charset}
	s.binds = append(s.binds, b)
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

func (s *Stmt) Execute(ctx context.Context, iters int) error {
	switch s.kind {
	case kindQuery:
		return s.open(ctx)
	case kindDML:
		return s.executeRows(ctx, iters)
	}
	args, err := s.args(0)
	if err != nil {
		return err
	}
	if _, err := s.conn.execer().ExecContext(ctx, s.text, args...); err != nil {
		return classify(err, "execute")
	}
	return nil
}

// executeRows runs the DML once per bound row through one prepared
// statement of the session transaction. Neither driver takes LOB columns in
// a slice bind, and the chunk commits or rolls back as a unit either way.
func (s *Stmt) executeRows(ctx context.Context, iters int) error {
	if err := s.conn.begin(ctx); err != nil {
		return err
	}
	prepared, err := s.conn.execer().PrepareContext(ctx, s.text)
	if err != nil {
		return classify(err, "prepare")
	}
	defer prepared.Close()
	for r := 0; r < iters; r++ {
		args, err := s.args(r)
		if err != nil {
			return err
		}
		if _, err := prepared.ExecContext(ctx, args...); err != nil {
			return classify(err, "execute")
		}
	}
	return nil
}

func (s *Stmt) open(ctx context.Context) error {
	if s.rows != nil {
		s.rows.Close()
		s.rows = nil
	}
	args, err := s.args(0)
	if err != nil {
		return err
	}
	if n := int(s.attrs[oci.AttrPrefetchRows]); n > 0 && s.conn.driver == DriverGodror {
		args = append(args, godror.PrefetchCount(n), godror.FetchArraySize(n))
	}
	rows, err := s.conn.execer().QueryContext(ctx, s.text, args...)
	if err != nil {
		return classify(err, "execute")
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return classify(err, "describe")
	}
	s.rows = rows
	s.width = len(cols)
	s.fetched = 0
	return nil
}

func (s *Stmt) Fetch(_ context.Context, n int) error {
	if s.rows == nil {
		return oci.NewError(1002, "fetch out of sequence", "fetch")
	}
	dest := make([]any, s.width)
	for i := range dest {
		dest[i] = scanTarget(s.defines[i+1])
	}
	got := 0
	for got < n && s.rows.Next() {
		if err := s.rows.Scan(dest...); err != nil {
			return classify(err, "fetch")
		}
		for pos, col := range s.defines {
			if pos > s.width {
				return oci.NewError(1007, fmt.Sprintf("variable %d not in select list", pos), "fetch")
			}
			if err := s.store(col, got, dest[pos-1]); err != nil {
				return err
			}
		}
		got++
	}
	s.fetched = got
	if err := s.rows.Err(); err != nil {
		return classify(err, "fetch")
	}
	if got < n {
		s.rows.Close()
		s.rows = nil
		return oci.NewError(int(oci.StatusNoData), "No data", "fetch")
	}
	return nil
}

func scanTarget(col *oci.Column) any {
	if col == nil {
		return new(any)
	}
	switch col.Type {
	case oci.TypeDate, oci.TypeTimestamp:
		return new(sql.NullTime)
	case oci.TypeBlob:
		return new([]byte)
	}
	return new(sql.NullString)
}

func (s *Stmt) store(col *oci.Column, row int, src any) error {
	switch v := src.(type) {
	case *sql.NullTime:
		if !v.Valid {
			col.SetNull(row)
			return nil
		}
		return oci.PutValue(col, row, v.Time.In(s.conn.loc), s.conn.charset)
	case *[]byte:
		return storeLob(col, row, *v, *v == nil)
	case *sql.NullString:
		if col.Type.IsLob() {
			return storeLob(col, row, []byte(v.String), !v.Valid)
		}
		if !v.Valid {
			col.SetNull(row)
			return nil
		}
		return oci.PutValue(col, row, v.String, s.conn.charset)
	}
	return nil
}

func storeLob(col *oci.Column, row int, data []byte, null bool) error {
	if null {
		col.SetNull(row)
		return nil
	}
	l, ok := col.Lobs[row].(*lob)
	if !ok {
		return oci.NewError(22275, "invalid LOB locator specified", "fetch")
	}
	l.load(data)
	col.Indicators[row] = 0
	return nil
}

// args renders the binds of row as driver arguments: positional binds in
// position order, then named binds.
func (s *Stmt) args(row int) ([]any, error) {
	binds := append([]*bind(nil), s.binds...)
	sort.SliceStable(binds, func(i, j int) bool {
		if (binds[i].name == "") != (binds[j].name == "") {
			return binds[i].name == ""
		}
		return binds[i].pos < binds[j].pos
	})
	out := make([]any, 0, len(binds))
	for _, b := range binds {
		v, err := s.argValue(b, row)
		if err != nil {
			return nil, err
		}
		if b.name != "" {
			out = append(out, sql.Named(b.name, v))
		} else {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Stmt) argValue(b *bind, row int) (any, error) {
	col := b.col
	if col.IsNull(row) {
		return nil, nil
	}
	if col.Type.IsLob() {
		l, ok := col.Lobs[row].(*lob)
		if !ok {
			return nil, oci.NewError(22275, "invalid LOB locator specified", "bind")
		}
		data := l.bytes()
		clob := col.Type == oci.TypeClob
		if s.conn.driver == DriverGoOra {
			if clob {
				return go_ora.Clob{String: string(data), Valid: true}, nil
			}
			return data, nil
		}
		return godror.Lob{Reader: bytes.NewReader(data), IsClob: clob}, nil
	}
	v, err := oci.Value(col, row, b.charset, s.conn.loc)
	if err != nil {
		return nil, fmt.Errorf("bind %d: %w", b.pos, err)
	}
	return v, nil
}

func (s *Stmt) Close() error {
	if s.rows != nil {
		err := s.rows.Close()
		s.rows = nil
		return err
	}
	return nil
}
