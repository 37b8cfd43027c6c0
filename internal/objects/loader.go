package objects

import (
	"context"
	"fmt"
	"strings"

	"github.com/allyourbase/oraclone/internal/oci"
	"github.com/allyourbase/oraclone/internal/rowcodec"
)

type refRow struct{ owner, name, kind string }

var refShape = rowcodec.Shape[refRow]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(128), rowcodec.String(20)},
	Decode: func(r rowcodec.Row) refRow {
		return refRow{r.Cell(0).String(), r.Cell(1).String(), r.Cell(2).String()}
	},
}

type viewRow struct {
	owner, name, text string
	truncated         bool
}

var viewShape = rowcodec.Shape[viewRow]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(128), rowcodec.LongString()},
	Decode: func(r rowcodec.Row) viewRow {
		return viewRow{r.Cell(0).String(), r.Cell(1).String(), r.Cell(2).String(), r.Cell(2).Truncated()}
	},
}

type synonymRow struct{ owner, name, tableOwner, tableName string }

var synonymShape = rowcodec.Shape[synonymRow]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(128), rowcodec.String(128), rowcodec.String(128)},
	Decode: func(r rowcodec.Row) synonymRow {
		return synonymRow{r.Cell(0).String(), r.Cell(1).String(), r.Cell(2).String(), r.Cell(3).String()}
	},
}

type sourceRow struct {
	owner, name, kind string
	line              uint32
	text              string
}

var sourceShape = rowcodec.Shape[sourceRow]{
	Columns: []rowcodec.Meta{rowcodec.String(128), rowcodec.String(128), rowcodec.String(12), rowcodec.Uint32(), rowcodec.LongString()},
	Decode: func(r rowcodec.Row) sourceRow {
		return sourceRow{
			owner: r.Cell(0).String(),
			name:  r.Cell(1).String(),
			kind:  r.Cell(2).String(),
			line:  r.Cell(3).Uint32(),
			text:  r.Cell(4).String(),
		}
	},
}

// Loader reads views, synonyms and stored code of a schema set together
// with each object's references into the same set.
type Loader struct {
	src     oci.Conn
	schemas string
	refs    *rowcodec.Query[refRow]
	owner   *rowcodec.Binding[string]
	name    *rowcodec.Binding[string]
	kind    *rowcodec.Binding[string]

	// Truncated lists the views whose text did not fit LongTextSize; they
	// are left out of Load.
	Truncated []Key
}

// NewLoader prepares the dependency lookup for schemas on src.
func NewLoader(ctx context.Context, src oci.Conn, schemas []string) (*Loader, error) {
	list := inList(schemas)
	sql := fmt.Sprintf(`select referenced_owner, referenced_name, referenced_type
from sys.all_dependencies
where referenced_owner in (%s) and owner = :owner and name = :name and type = :type
and referenced_type in ('VIEW','PROCEDURE','FUNCTION','PACKAGE','PACKAGE BODY','SYNONYM','TYPE')`, list)
	q, err := rowcodec.Prepare(ctx, src, sql, refShape, rowcodec.DefaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("can not prepare query for dependencies info: %w", err)
	}
	l := &Loader{src: src, schemas: list, refs: q}
	if l.owner, err = rowcodec.BindName[string](q, "owner", rowcodec.String(128)); err != nil {
		q.Close()
		return nil, err
	}
	if l.name, err = rowcodec.BindName[string](q, "name", rowcodec.String(128)); err != nil {
		q.Close()
		return nil, err
	}
	if l.kind, err = rowcodec.BindName[string](q, "type", rowcodec.String(20)); err != nil {
		q.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the prepared dependency lookup.
func (l *Loader) Close() error { return l.refs.Close() }

// References returns the tracked objects owner.name of the given catalog
// type refers to.
func (l *Loader) References(ctx context.Context, owner, name, kind string) ([]Key, error) {
	for _, set := range []struct {
		b *rowcodec.Binding[string]
		v string
	}{{l.owner, owner}, {l.name, name}, {l.kind, kind}} {
		if err := set.b.Set(set.v); err != nil {
			return nil, err
		}
	}
	rows, err := l.refs.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("can not load dependencies info for object: %s.%s with error: %w", owner, name, err)
	}
	keys := make([]Key, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, Key{Owner: r.owner, Name: r.name, Kind: ParseKind(r.kind)})
	}
	return keys, nil
}

// Load returns views, then synonyms, then stored code. A later object with
// the key of an earlier one replaces it in place.
func (l *Loader) Load(ctx context.Context) ([]Object, error) {
	var out []Object
	index := map[Key]int{}
	add := func(o Object) {
		if i, ok := index[o.Key]; ok {
			out[i] = o
			return
		}
		index[o.Key] = len(out)
		out = append(out, o)
	}
	for _, load := range []func(context.Context, func(Object)) error{l.views, l.synonyms, l.sources} {
		if err := load(ctx, add); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *Loader) views(ctx context.Context, add func(Object)) error {
	sql := fmt.Sprintf("select owner, view_name, text from sys.all_views where owner in (%s)", l.schemas)
	rows, err := queryAll(ctx, l.src, sql, viewShape, "views")
	if err != nil {
		return err
	}
	for _, v := range rows {
		if v.truncated {
			l.Truncated = append(l.Truncated, Key{Owner: v.owner, Name: v.name, Kind: View})
			continue
		}
		refs, err := l.References(ctx, v.owner, v.name, "VIEW")
		if err != nil {
			return err
		}
		add(Object{
			Key:        Key{Owner: v.owner, Name: v.name, Kind: View},
			SQL:        fmt.Sprintf("create or replace view %s.%s as %s", v.owner, v.name, v.text),
			References: refs,
		})
	}
	return nil
}

func (l *Loader) synonyms(ctx context.Context, add func(Object)) error {
	sql := fmt.Sprintf("select owner, synonym_name, table_owner, table_name from sys.all_synonyms where owner in (%s)", l.schemas)
	rows, err := queryAll(ctx, l.src, sql, synonymShape, "synonyms")
	if err != nil {
		return err
	}
	for _, s := range rows {
		refs, err := l.References(ctx, s.owner, s.name, "SYNONYM")
		if err != nil {
			return err
		}
		add(Object{
			Key:        Key{Owner: s.owner, Name: s.name, Kind: Synonym},
			SQL:        fmt.Sprintf("create synonym %s.%s for %s.%s", s.owner, s.name, s.tableOwner, s.tableName),
			References: refs,
		})
	}
	return nil
}

// sources assembles stored code from its lines. Line 1 starts an object;
// its header is upper-cased and the object name qualified with the owner.
func (l *Loader) sources(ctx context.Context, add func(Object)) error {
	sql := fmt.Sprintf("select owner, name, type, line, text from sys.all_source where owner in (%s) order by owner, name, type, line", l.schemas)
	rows, err := queryAll(ctx, l.src, sql, sourceShape, "sources")
	if err != nil {
		return err
	}
	var cur *Object
	var body strings.Builder
	nameAt := -1
	flush := func() {
		if cur == nil || cur.Kind == Unsupported {
			return
		}
		cur.SQL = sourceDDL(*cur, body.String(), nameAt)
		add(*cur)
	}
	for _, r := range rows {
		if r.line != 1 {
			body.WriteString(r.text)
			continue
		}
		flush()
		refs, err := l.References(ctx, r.owner, r.name, r.kind)
		if err != nil {
			return err
		}
		cur = &Object{Key: Key{Owner: r.owner, Name: r.name, Kind: ParseKind(r.kind)}, References: refs}
		body.Reset()
		var header string
		header, nameAt = qualifyHeader(r.owner, r.name, r.text)
		body.WriteString(header)
	}
	flush()
	return nil
}

// headerPrefixes may precede the kind keyword of a source header.
var headerPrefixes = map[string]bool{
	"CREATE": true, "OR": true, "REPLACE": true, "EDITIONABLE": true, "NONEDITIONABLE": true,
}

var headerKinds = map[string]bool{
	"FUNCTION": true, "PROCEDURE": true, "PACKAGE": true, "TYPE": true, "TRIGGER": true,
}

// qualifyHeader upper-cases the first source line, drops any CREATE OR
// REPLACE prefix and qualifies the object name that follows the kind
// keyword with owner. It returns the header and
// the offset of the (qualified) name in it, or -1 when the header does not
// name the object where expected; such a header is returned unchanged.
func qualifyHeader(owner, name, text string) (string, int) {
	header := strings.ToUpper(strings.TrimLeft(text, " \t\r\n"))
	start, end := nextToken(header, 0)
	for headerPrefixes[header[start:end]] {
		start, end = nextToken(header, end)
	}
	header, end = header[start:], end-start
	start = 0
	if !headerKinds[header[start:end]] {
		return header, -1
	}
	kind := header[start:end]
	start, end = nextToken(header, end)
	if (kind == "PACKAGE" || kind == "TYPE") && header[start:end] == "BODY" {
		// A package may itself be called BODY.
		if s, e := nextToken(header, end); qualified(header, e) || isName(header[s:e], name) {
			start, end = s, e
		}
	}
	if start == end {
		return header, -1
	}
	if qualified(header, end) {
		return header, start
	}
	if !isName(header[start:end], name) {
		return header, -1
	}
	return header[:start] + owner + "." + header[start:], start
}

func qualified(header string, end int) bool {
	return end < len(header) && header[end] == '.'
}

func isName(token, name string) bool {
	return token != "" && strings.Trim(token, `"`) == strings.ToUpper(name)
}

// nextToken returns the bounds of the identifier or quoted identifier
// starting at the first non-blank byte at or after i. Any other byte is a
// token of its own; start == end at the end of s.
func nextToken(s string, i int) (start, end int) {
	for i < len(s) && strings.IndexByte(" \t\r\n", s[i]) >= 0 {
		i++
	}
	if i == len(s) {
		return i, i
	}
	if s[i] == '"' {
		if j := strings.IndexByte(s[i+1:], '"'); j >= 0 {
			return i, i + j + 2
		}
		return i, len(s)
	}
	j := i
	for j < len(s) && isIdentByte(s[j]) {
		j++
	}
	if j == i {
		j++
	}
	return i, j
}

func isIdentByte(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' || c == '$' || c == '#'
}

// sourceDDL renders the create statement of stored code. A type header is
// rewritten from its name on so modifiers ahead of TYPE are dropped.
func sourceDDL(o Object, text string, nameAt int) string {
	if o.Kind == Type && nameAt >= 0 {
		return "create or replace type " + text[nameAt:]
	}
	return "create or replace " + text
}

func queryAll[T any](ctx context.Context, conn oci.Conn, sql string, shape rowcodec.Shape[T], what string) ([]T, error) {
	q, err := rowcodec.Prepare(ctx, conn, sql, shape, rowcodec.DefaultPrefetch)
	if err != nil {
		return nil, fmt.Errorf("can not prepare query for %s info: %w", what, err)
	}
	defer q.Close()
	rows, err := q.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("can not execute query for %s info: %w", what, err)
	}
	return rows, nil
}
