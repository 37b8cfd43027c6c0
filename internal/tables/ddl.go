package tables

import (
	"fmt"
	"strings"
)

// columnDDL renders one column of a CREATE TABLE statement.
func columnDDL(c Column) string {
	var typ string
	switch c.TypeName {
	case "CHAR", "VARCHAR2":
		typ = fmt.Sprintf("%s(%d)", c.TypeName, c.Length)
	case "LONG":
		typ = fmt.Sprintf("VARCHAR2(%d)", LongBufferLen)
	case "NUMBER":
		if c.Precision > 0 {
			typ = fmt.Sprintf("NUMBER(%d,%d)", c.Precision, c.Scale)
		} else {
			typ = "NUMBER"
		}
	default:
		typ = c.TypeName
	}
	s := quote(c.Name) + " " + typ
	if !c.Nullable {
		s += " not null"
	}
	return s
}

// CreateTableSQL renders the destination DDL of t in schema. iot selects
// index-organized storage, which needs a primary key.
func CreateTableSQL(schema string, t Table, iot bool, tablespace string) string {
	var b strings.Builder
	b.WriteString("create ")
	if t.Temporary {
		b.WriteString("global temporary ")
	}
	fmt.Fprintf(&b, "table %s.%s (", schema, t.Name)
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(columnDDL(c))
		b.WriteString("\n")
	}
	switch {
	case iot && t.PK != nil:
		fmt.Fprintf(&b, ", constraint %s primary key (%s)\n) organization index", t.PK.Name, strings.Join(t.PK.Columns, ","))
	case t.Temporary:
		if t.BackedUp {
			b.WriteString(") on commit preserve rows")
		} else {
			b.WriteString(") on commit delete rows")
		}
	default:
		b.WriteString(") tablespace " + quote(tablespace))
	}
	return b.String()
}

func quote(name string) string { return `"` + name + `"` }

func quotedColumns(t Table) string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = quote(c.Name)
	}
	return strings.Join(names, ",")
}

// ReadSQL renders the source query of t. A positive lunaCalc threshold
// restricts tables carrying the LUNA_CALC column.
func ReadSQL(schema string, t Table, lunaCalc int) string {
	s := fmt.Sprintf("select /*+ ALL_ROWS */ %s from %s.%s", quotedColumns(t), schema, t.Name)
	if t.LunaCalc && lunaCalc > 0 {
		s += fmt.Sprintf(" where luna_calc is null or luna_calc >= %d", lunaCalc)
	}
	return s
}

// WriteSQL renders the destination insert of t with one positional
// placeholder per column.
func WriteSQL(schema string, t Table) string {
	params := make([]string, len(t.Columns))
	for i := range t.Columns {
		params[i] = fmt.Sprintf(":%d", i+1)
	}
	return fmt.Sprintf("insert /*+ APPEND_VALUES */ into %s.%s (%s) values (%s)", schema, t.Name, quotedColumns(t), strings.Join(params, ","))
}
