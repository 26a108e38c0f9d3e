package query

import (
	"fmt"
	"strings"
)

// FormatTable renders a result as a markdown table.
func FormatTable(r Result) string {
	if len(r.Rows) == 0 {
		return "No results found."
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(r.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(r.Columns)) + "\n")
	for _, row := range r.Rows {
		cells := make([]string, len(r.Columns))
		for i, c := range r.Columns {
			cells[i] = cell(row[c])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if r.Truncated {
		fmt.Fprintf(&b, "\n_%d rows shown; more matched._\n", len(r.Rows))
	}
	return strings.TrimRight(b.String(), "\n")
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, len(x))
		for i, p := range x {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ", ")
	default:
		return strings.ReplaceAll(fmt.Sprint(x), "|", `\|`)
	}
}
