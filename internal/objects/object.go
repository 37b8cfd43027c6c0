// Package objects recreates stored code, views and synonyms in dependency
// order. The catalog gives no creation order for these objects, so each one
// carries the references it has into the migrated schema set and objects
// are replayed in passes, each pass creating what its references allow.
package objects

import (
	"fmt"
	"strings"

	"github.com/allyourbase/oraclone/internal/oci"
)

// Kind is the kind of a tracked object.
type Kind int

const (
	Unsupported Kind = iota
	View
	Package
	PackageBody
	Procedure
	Function
	Type
	Synonym
)

var kindNames = map[Kind]string{
	View:        "View",
	Package:     "Package",
	PackageBody: "PackageBody",
	Procedure:   "Procedure",
	Function:    "Function",
	Type:        "Type",
	Synonym:     "Synonym",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "Unsupported"
}

// ParseKind maps a catalog object type such as "PACKAGE BODY".
func ParseKind(s string) Kind {
	switch s {
	case "FUNCTION":
		return Function
	case "PACKAGE":
		return Package
	case "PACKAGE BODY":
		return PackageBody
	case "PROCEDURE":
		return Procedure
	case "SYNONYM":
		return Synonym
	case "TYPE":
		return Type
	case "VIEW":
		return View
	}
	return Unsupported
}

// Key identifies an object.
type Key struct {
	Owner string
	Name  string
	Kind  Kind
}

func (k Key) String() string { return k.Owner + "." + k.Name }

// Object is a loaded object with its creation DDL and the keys it references.
type Object struct {
	Key
	SQL        string
	References []Key
}

// ready reports whether every reference has been processed.
func (o Object) ready(processed map[Key]bool) bool {
	for _, r := range o.References {
		if !processed[r] {
			return false
		}
	}
	return true
}

// Reason renders a short explanation for a DDL failure code. Unknown codes
// fall back to the raw error and the statement.
func Reason(err error, sql string) string {
	switch oci.Code(err) {
	case oci.ErrInvalidIdentifier:
		return "invalid identifier"
	case oci.ErrTableNotFound:
		return "table or view does not exists"
	case oci.ErrNameInUse:
		return "name is already being used by existing object"
	case oci.ErrSynonymInvalid:
		return "synonym translation is no longer valid"
	case oci.ErrSynonymIdentifier:
		return "missing or invalid synonym identifier"
	case oci.ErrInsufficientPrivilege:
		return "insufficient privileges"
	case oci.ErrRemoteNotFound:
		return "connection description for remote database not found"
	case oci.ErrInvalidState:
		return "package or function is in an invalid state"
	case oci.ErrCompilation:
		return "compilation errors"
	}
	return fmt.Sprintf("with error: %v, sql: %s", err, sql)
}

// inList renders schemas as a quoted SQL IN list.
func inList(schemas []string) string {
	quoted := make([]string, len(schemas))
	for i, s := range schemas {
		quoted[i] = "'" + strings.ReplaceAll(s, "'", "''") + "'"
	}
	return strings.Join(quoted, ",")
}
