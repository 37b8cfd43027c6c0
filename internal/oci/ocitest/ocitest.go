// Package ocitest provides a scripted in-memory oci.Conn for tests.
//
// Queries are answered by handlers registered against a fragment of the
// statement text. Every other statement is recorded; inserts keep the rows
// they applied so tests can inspect what reached the "destination". Failures
// are injected per statement fragment as native error codes.
package ocitest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Clob marks a query value that is delivered through a CLOB locator.
type Clob string

// QueryFunc produces the rows of a query given its bound arguments. Named
// binds are keyed by name, positional binds by their 1-based position.
type QueryFunc func(args map[string]any) [][]any

type queryRule struct {
	fragment string
	fn       QueryFunc
}

type failRule struct {
	fragment string
	code     int
	message  string
}

// Conn is a fake session. The zero value is not usable; call New.
type Conn struct {
	mu       sync.Mutex
	charset  oci.Charset
	queries  []queryRule
	failures []failRule
	executed []string
	queried  []string
	inserted map[string][][]any
	commits  []oci.CommitMode
	lobs     []*Lob
	closed   bool
}

// New returns an empty fake session exchanging text in UTF-8.
func New() *Conn {
	return &Conn{charset: oci.CharsetAL32UTF8, inserted: map[string][][]any{}}
}

// WithCharset sets the session character set.
func (c *Conn) WithCharset(cs oci.Charset) *Conn {
	c.charset = cs
	return c
}

// OnQuery answers every query containing fragment with fn. The first
// matching registration wins.
func (c *Conn) OnQuery(fragment string, fn QueryFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, queryRule{fragment: fragment, fn: fn})
}

// Rows answers every query containing fragment with the fixed rows.
func (c *Conn) Rows(fragment string, rows ...[]any) {
	c.OnQuery(fragment, func(map[string]any) [][]any { return rows })
}

// Fail makes every non-query statement containing fragment fail with code.
func (c *Conn) Fail(fragment string, code int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, failRule{fragment: fragment, code: code, message: fmt.Sprintf("injected failure %d", code)})
}

// Executed returns the texts of all non-query statements that ran
// successfully, in order.
func (c *Conn) Executed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.executed...)
}

// Queried returns the texts of all queries that were opened.
func (c *Conn) Queried() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queried...)
}

// ExecutedMatching returns the executed statements containing fragment.
func (c *Conn) ExecutedMatching(fragment string) []string {
	var out []string
	for _, s := range c.Executed() {
		if strings.Contains(s, fragment) {
			out = append(out, s)
		}
	}
	return out
}

// Inserted returns the rows applied by inserts into table (as written after
// "into" in the statement).
func (c *Conn) Inserted(table string) [][]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserted[table]
}

// Commits returns the commit modes used, in order.
func (c *Conn) Commits() []oci.CommitMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]oci.CommitMode(nil), c.commits...)
}

// Lobs returns every locator allocated through NewLob.
func (c *Conn) Lobs() []*Lob {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Lob(nil), c.lobs...)
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) Prepare(_ context.Context, text string) (oci.Stmt, error) {
	return &Stmt{conn: c, text: text, defines: map[int]*oci.Column{}, binds: map[string]*bind{}}, nil
}

func (c *Conn) Commit(_ context.Context, mode oci.CommitMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits = append(c.commits, mode)
	return nil
}

func (c *Conn) Rollback(context.Context) error { return nil }

func (c *Conn) NewLob(_ context.Context, kind oci.LobKind, temporary bool) (oci.Lob, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := &Lob{Kind: kind, Temporary: temporary}
	c.lobs = append(c.lobs, l)
	return l, nil
}

func (c *Conn) Charset() oci.Charset { return c.charset }

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Conn) lookup(text string) (QueryFunc, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queried = append(c.queried, text)
	for _, q := range c.queries {
		if strings.Contains(text, q.fragment) {
			return q.fn, true
		}
	}
	return nil, false
}

func (c *Conn) run(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.failures {
		if strings.Contains(text, f.fragment) {
			return oci.NewError(f.code, f.message, "execute")
		}
	}
	c.executed = append(c.executed, text)
	return nil
}

func (c *Conn) insert(table string, rows [][]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserted[table] = append(c.inserted[table], rows...)
}

func (c *Conn) location() *time.Location { return time.Local }

// IsQuery reports whether text is a query rather than DML or DDL.
func IsQuery(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(t, "select") || strings.HasPrefix(t, "with")
}
