package query

import (
	"fmt"
	"strings"
)

// Statement is a single parameterized SELECT.
type Statement struct {
	SQL  string
	Args []any
}

// Compile renders a validated plan. Identifiers are quoted, literals are
// bound, and the limit is raised by one so callers can detect truncation.
func Compile(p Plan) (Statement, error) {
	if len(p.Columns) == 0 {
		return Statement{}, fmt.Errorf("compile: plan for %s has no columns", p.Table)
	}
	if p.Limit <= 0 {
		return Statement{}, fmt.Errorf("compile: plan for %s has no limit", p.Table)
	}

	var b strings.Builder
	var args []any

	b.WriteString("SELECT ")
	for i, c := range p.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(quoteIdent(c.Name))
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(p.Table))

	if p.Where != nil {
		b.WriteString(" WHERE ")
		compilePredicate(&b, &args, *p.Where)
	}
	if p.OrderBy != nil {
		b.WriteString(" ORDER BY ")
		b.WriteString(quoteIdent(p.OrderBy.Column))
		if p.OrderBy.Desc {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	b.WriteString(" LIMIT ?")
	args = append(args, p.Limit+1)

	return Statement{SQL: b.String(), Args: args}, nil
}

func compilePredicate(b *strings.Builder, args *[]any, p Predicate) {
	switch {
	case len(p.And) > 0:
		compileGroup(b, args, p.And, " AND ")
	case len(p.Or) > 0:
		compileGroup(b, args, p.Or, " OR ")
	case p.Leaf != nil:
		compileLeaf(b, args, *p.Leaf)
	}
}

func compileGroup(b *strings.Builder, args *[]any, children []Predicate, sep string) {
	b.WriteString("(")
	for i, c := range children {
		if i > 0 {
			b.WriteString(sep)
		}
		compilePredicate(b, args, c)
	}
	b.WriteString(")")
}

// compileLeaf renders one comparison. Containment is a case-insensitive
// substring test through instr, so % and _ in the value match literally.
func compileLeaf(b *strings.Builder, args *[]any, c Comparison) {
	col := quoteIdent(c.Column.Name)
	*args = append(*args, c.Value)

	if c.Column.Type == TypeList {
		switch c.Op {
		case OpNe:
			fmt.Fprintf(b, "instr(lower(%s), lower(?)) = 0", col)
		default:
			fmt.Fprintf(b, "instr(lower(%s), lower(?)) > 0", col)
		}
		return
	}

	switch c.Op {
	case OpContains:
		fmt.Fprintf(b, "instr(lower(%s), lower(?)) > 0", col)
	case OpLike:
		fmt.Fprintf(b, "%s LIKE ?", col)
	default:
		fmt.Fprintf(b, "%s %s ?", col, c.Op)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
