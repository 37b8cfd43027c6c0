// Package ocisql implements the oci primitives over database/sql, with godror
// as the default driver and go-ora as the pure Go alternative. Each Conn pins
// one pooled session so statements, transactions and commit modes apply to
// the same server session, the way a native service context would.
package ocisql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/godror/godror"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Driver names accepted in Addr.Driver.
const (
	DriverGodror = "godror"
	DriverGoOra  = "go-ora"
)

// Addr identifies a database and the client character set text is exchanged in.
type Addr struct {
	Driver   string
	URI      string
	User     string
	Password string
	Charset  oci.Charset
}

// Conn is one pinned session.
type Conn struct {
	db      *sql.DB
	conn    *sql.Conn
	tx      *sql.Tx
	driver  string
	charset oci.Charset
	loc     *time.Location
	logger  *slog.Logger
}

// DSN renders the driver data source name for addr.
func DSN(addr Addr) (string, error) {
	switch addr.Driver {
	case "", DriverGodror:
		params, err := godror.ParseDSN(fmt.Sprintf("user=%q password=%q connectString=%q", addr.User, addr.Password, addr.URI))
		if err != nil {
			return "", fmt.Errorf("parsing DSN: %w", err)
		}
		params.Timezone = time.Local
		params.SessionTimeout = 60 * time.Second
		params.WaitTimeout = 30 * time.Second
		params.MaxSessions = 4
		params.MinSessions = 1
		params.SessionIncrement = 1
		params.Charset = "UTF-8"
		return params.StringWithPassword(), nil
	case DriverGoOra:
		return go_ora.BuildJDBC(addr.User, addr.Password, addr.URI, map[string]string{"TIMEOUT": "0"}), nil
	}
	return "", fmt.Errorf("unknown driver %q (want %s or %s)", addr.Driver, DriverGodror, DriverGoOra)
}

func sqlDriverName(driver string) string {
	if driver == DriverGoOra {
		return "oracle"
	}
	return "godror"
}

// Open connects to addr and pins a session.
func Open(ctx context.Context, addr Addr, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn, err := DSN(addr)
	if err != nil {
		return nil, err
	}
	driver := addr.Driver
	if driver == "" {
		driver = DriverGodror
	}
	db, err := sql.Open(sqlDriverName(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", addr.URI, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s as %s: %w", addr.URI, addr.User, classify(err, "connect"))
	}
	c, err := newConn(ctx, db, driver, addr.Charset, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("oracle session opened", "uri", addr.URI, "user", addr.User, "driver", driver, "charset", c.charset.String())
	return c, nil
}

// newConn pins a session of db. Text travels in cs, AL32UTF8 when zero.
func newConn(ctx context.Context, db *sql.DB, driver string, cs oci.Charset, logger *slog.Logger) (*Conn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pinning session: %w", err)
	}
	if cs == 0 {
		cs = oci.CharsetAL32UTF8
	}
	return &Conn{db: db, conn: conn, driver: driver, charset: cs, loc: time.Local, logger: logger}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (c *Conn) execer() execer {
	if c.tx != nil {
		return c.tx
	}
	return c.conn
}

func (c *Conn) begin(ctx context.Context) error {
	if c.tx != nil {
		return nil
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin")
	}
	c.tx = tx
	return nil
}

func (c *Conn) Prepare(_ context.Context, text string) (oci.Stmt, error) {
	return &Stmt{conn: c, text: text, kind: statementKind(text), defines: map[int]*oci.Column{}}, nil
}

// Commit ends the open transaction with the given commit mode.
func (c *Conn) Commit(ctx context.Context, mode oci.CommitMode) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if stmt := commitSQL(mode); stmt != "" {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return classify(err, "commit")
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err, "commit")
	}
	return nil
}

func commitSQL(mode oci.CommitMode) string {
	switch mode {
	case oci.CommitNowait:
		return "COMMIT WRITE NOWAIT"
	case oci.CommitImmediate:
		return "COMMIT WRITE IMMEDIATE"
	case oci.CommitBatch:
		return "COMMIT WRITE BATCH"
	case oci.CommitWait:
		return "COMMIT WRITE WAIT"
	}
	return ""
}

func (c *Conn) Rollback(context.Context) error {
	if c.tx == nil {
		return nil
	}
	tx := c.tx
	c.tx = nil
	if err := tx.Rollback(); err != nil {
		return classify(err, "rollback")
	}
	return nil
}

func (c *Conn) NewLob(_ context.Context, kind oci.LobKind, temporary bool) (oci.Lob, error) {
	return &lob{kind: kind, temporary: temporary}, nil
}

func (c *Conn) Charset() oci.Charset { return c.charset }

func (c *Conn) Close() error {
	var errs []string
	if c.tx != nil {
		if err := c.tx.Rollback(); err != nil {
			errs = append(errs, fmt.Sprintf("rollback: %v", err))
		}
		c.tx = nil
	}
	if err := c.conn.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("session: %v", err))
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("pool: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing connection: %s", strings.Join(errs, "; "))
	}
	return nil
}

type kind int

const (
	kindDDL kind = iota
	kindQuery
	kindDML
)

func statementKind(text string) kind {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case strings.HasPrefix(t, "select"), strings.HasPrefix(t, "with"):
		return kindQuery
	case strings.HasPrefix(t, "insert"), strings.HasPrefix(t, "update"),
		strings.HasPrefix(t, "delete"), strings.HasPrefix(t, "merge"):
		return kindDML
	}
	return kindDDL
}
