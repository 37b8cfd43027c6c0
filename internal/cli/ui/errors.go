package ui

import (
	"fmt"
	"strings"
)

// FormatError returns a styled error message with optional fix suggestions.
func FormatError(msg string, suggestions ...string) string {
	var b strings.Builder

	prefix := StyleBoldRed.Render("Error:")
	b.WriteString(fmt.Sprintf("%s %s\n", prefix, msg))

	if len(suggestions) > 0 {
		b.WriteString("\n")
		b.WriteString(StyleHint.Render("  Try:") + "\n")
		for _, s := range suggestions {
			b.WriteString(fmt.Sprintf("    %s %s\n", StyleHint.Render(SymbolArrow), s))
		}
	}

	return b.String()
}

var hints = []struct {
	match string
	hint  string
}{
	{"source.uri is required", "oraclone config init"},
	{"at least one schema is required", "add a [[schemas]] entry or set schemas_file"},
	{"what is currently connected", "disconnect the sessions of that user on the destination and run again"},
	{"can not connect to", "check the uri, user and password of the database in oraclone.toml"},
	{"the journal is disabled", "set journal.enabled = true in oraclone.toml"},
}

// Suggestions returns the fix hints known for an error message.
func Suggestions(msg string) []string {
	var out []string
	for _, h := range hints {
		if strings.Contains(msg, h.match) {
			out = append(out, h.hint)
		}
	}
	return out
}
