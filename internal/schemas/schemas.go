// Package schemas manages the destination users that receive migrated
// schemas: drop, create with the standard privilege set, and compile.
package schemas

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Schema is one schema to migrate.
type Schema struct {
	Name string
	// Password defaults to the schema name when empty.
	Password     string
	AssumeExists bool
	Exclusions   []string
}

// Privileges are granted to every created user, in this order.
var Privileges = []string{
	"CONNECT, RESOURCE, UNLIMITED TABLESPACE",
	"CREATE TABLE",
	"CREATE VIEW",
	"CREATE MATERIALIZED VIEW",
	"EXECUTE ON SYS.DBMS_AQ",
	"EXECUTE ON SYS.DBMS_AQADM",
	"DEBUG CONNECT SESSION",
	"DEBUG ANY PROCEDURE",
}

// Filter drops the dictionary owners, which are never migrated.
func Filter(list []Schema) []Schema {
	out := make([]Schema, 0, len(list))
	for _, s := range list {
		if s.Name == "SYS" || s.Name == "SYSTEM" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Names returns the schema names of list.
func Names(list []Schema) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Name
	}
	return out
}

// Existing returns the names of the schemas marked as already present.
func Existing(list []Schema) []string {
	var out []string
	for _, s := range list {
		if s.AssumeExists {
			out = append(out, s.Name)
		}
	}
	return out
}

// Progress receives informational lines.
type Progress interface {
	Println(text string)
}

// Manager runs user DDL on the destination.
type Manager struct {
	conn        oci.Conn
	progress    Progress
	logger      *slog.Logger
	dataTS      string
	temporaryTS string
}

func NewManager(conn oci.Conn, progress Progress, logger *slog.Logger, dataTablespace, tempTablespace string) *Manager {
	return &Manager{conn: conn, progress: progress, logger: logger, dataTS: dataTablespace, temporaryTS: tempTablespace}
}

// Drop removes the user and everything it owns. A missing user is fine;
// a connected user cannot be dropped.
func (m *Manager) Drop(ctx context.Context, schema string) error {
	err := oci.Exec(ctx, m.conn, fmt.Sprintf("DROP USER %s CASCADE", schema))
	if err == nil {
		return nil
	}
	switch oci.Code(err) {
	case oci.ErrUserNotFound:
		m.progress.Println("  user does not exists")
		return nil
	case oci.ErrUserConnected:
		return fmt.Errorf("can not drop user: %s what is currently connected", schema)
	default:
		return fmt.Errorf("can not drop user: %s with error: %w", schema, err)
	}
}

// CreateSQL renders the CREATE USER statement for s.
func (m *Manager) CreateSQL(s Schema) string {
	pw := s.Password
	if pw == "" {
		pw = s.Name
	}
	return fmt.Sprintf("CREATE USER %s IDENTIFIED BY %s DEFAULT TABLESPACE %q TEMPORARY TABLESPACE %q",
		s.Name, pw, m.dataTS, m.temporaryTS)
}

// Create adds the user and grants it Privileges.
func (m *Manager) Create(ctx context.Context, s Schema) error {
	if err := oci.Exec(ctx, m.conn, m.CreateSQL(s)); err != nil {
		return fmt.Errorf("can not create user: %s with error: %w", s.Name, err)
	}
	for _, p := range Privileges {
		if err := oci.Exec(ctx, m.conn, fmt.Sprintf("GRANT %s TO %s", p, s.Name)); err != nil {
			return fmt.Errorf("can not grant %s to user: %s with error: %w", p, s.Name, err)
		}
	}
	m.logger.Debug("user created", "schema", s.Name)
	return nil
}

// Compile recompiles every invalid object of schema.
func (m *Manager) Compile(ctx context.Context, schema string) error {
	if err := oci.Exec(ctx, m.conn, fmt.Sprintf("BEGIN DBMS_UTILITY.COMPILE_SCHEMA('%s'); END;", schema)); err != nil {
		return fmt.Errorf("can not compile schema: %s with error: %w", schema, err)
	}
	return nil
}
