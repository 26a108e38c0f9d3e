package query

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/config"
)

// Limits bounds what a plan may ask for and how long it may run.
type Limits struct {
	DefaultLimit   int
	MaxLimit       int
	MaxDepth       int
	MaxLeaves      int
	ExecTimeout    time.Duration
	GroundTimeout  time.Duration
	MaxResultBytes int
}

// DefaultLimits returns the stock bounds.
func DefaultLimits() Limits {
	return Limits{
		DefaultLimit:   50,
		MaxLimit:       200,
		MaxDepth:       8,
		MaxLeaves:      32,
		ExecTimeout:    5 * time.Second,
		GroundTimeout:  20 * time.Second,
		MaxResultBytes: 256 * 1024,
	}
}

// LimitsFromConfig overlays configured values on DefaultLimits.
func LimitsFromConfig(cfg config.QueryConfig) Limits {
	l := DefaultLimits()
	if cfg.DefaultLimit > 0 {
		l.DefaultLimit = cfg.DefaultLimit
	}
	if cfg.MaxLimit > 0 {
		l.MaxLimit = cfg.MaxLimit
	}
	if cfg.ExecTimeout > 0 {
		l.ExecTimeout = cfg.ExecTimeout.Std()
	}
	if cfg.GroundTimeout > 0 {
		l.GroundTimeout = cfg.GroundTimeout.Std()
	}
	if cfg.MaxResultBytes > 0 {
		l.MaxResultBytes = cfg.MaxResultBytes
	}
	return l
}

var writeVerbRe = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|replace|attach|detach|pragma|exec|execute|truncate|vacuum|reindex|grant|revoke)\b`)

var commentSeqs = []string{"--", "/*", "*/"}

// Validate runs the shape and bounds gates over a draft. On success the
// returned Plan is the only thing later stages use.
func Validate(d Draft, s Schema, lim Limits) (Plan, error) {
	plan, err := validateShape(d, s, lim)
	if err != nil {
		return Plan{}, err
	}
	if err := checkBounds(d, &plan, lim); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func validateShape(d Draft, s Schema, lim Limits) (Plan, error) {
	action := strings.ToLower(strings.TrimSpace(d.Action))
	if action != "select" {
		return Plan{}, reject(StageShape, "action %q is not select", d.Action)
	}
	for _, ident := range draftIdentifiers(d) {
		if writeVerbRe.MatchString(ident) {
			return Plan{}, reject(StageShape, "write verb in identifier %q", ident)
		}
	}

	table, ok := s.Table(d.Table)
	if !ok {
		return Plan{}, reject(StageShape, "unknown table %q", d.Table)
	}
	plan := Plan{Table: table.Name}

	if len(d.Columns) == 0 || (len(d.Columns) == 1 && d.Columns[0] == "*") {
		plan.Columns = append([]Column(nil), table.Columns...)
	} else {
		seen := map[string]bool{}
		for _, name := range d.Columns {
			col, ok := table.Column(name)
			if !ok {
				return Plan{}, reject(StageShape, "unknown column %q on %s", name, table.Name)
			}
			if !seen[col.Name] {
				seen[col.Name] = true
				plan.Columns = append(plan.Columns, col)
			}
		}
	}

	if d.Where != nil {
		leaves := 0
		p, err := buildPredicate(*d.Where, table, lim, 1, &leaves)
		if err != nil {
			return Plan{}, err
		}
		plan.Where = &p
	}

	if d.OrderBy != nil {
		col, ok := table.Column(d.OrderBy.Column)
		if !ok {
			return Plan{}, reject(StageShape, "unknown order column %q", d.OrderBy.Column)
		}
		plan.OrderBy = &Order{Column: col.Name, Desc: d.OrderBy.Desc}
	}

	plan.Limit = d.Limit
	return plan, nil
}

func buildPredicate(w DraftWhere, table Table, lim Limits, depth int, leaves *int) (Predicate, error) {
	if lim.MaxDepth > 0 && depth > lim.MaxDepth {
		return Predicate{}, reject(StageBounds, "predicate deeper than %d", lim.MaxDepth)
	}

	kinds := 0
	if len(w.And) > 0 {
		kinds++
	}
	if len(w.Or) > 0 {
		kinds++
	}
	if w.Column != "" || w.Op != "" || w.Value != nil {
		kinds++
	}
	if kinds != 1 {
		return Predicate{}, reject(StageShape, "predicate node must be exactly one of and, or, comparison")
	}

	build := func(children []DraftWhere) ([]Predicate, error) {
		out := make([]Predicate, 0, len(children))
		for _, c := range children {
			p, err := buildPredicate(c, table, lim, depth+1, leaves)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	}

	switch {
	case len(w.And) > 0:
		children, err := build(w.And)
		return Predicate{And: children}, err
	case len(w.Or) > 0:
		children, err := build(w.Or)
		return Predicate{Or: children}, err
	}

	*leaves++
	if lim.MaxLeaves > 0 && *leaves > lim.MaxLeaves {
		return Predicate{}, reject(StageBounds, "more than %d comparisons", lim.MaxLeaves)
	}

	col, ok := table.Column(w.Column)
	if !ok {
		return Predicate{}, reject(StageShape, "unknown column %q on %s", w.Column, table.Name)
	}
	op := Op(strings.ToLower(strings.TrimSpace(w.Op)))
	if !knownOps[op] {
		return Predicate{}, reject(StageShape, "operator %q not allowed", w.Op)
	}
	if op.ordering() && !col.Type.Numeric() {
		return Predicate{}, reject(StageShape, "operator %s needs a numeric column, %s is %s", op, col.Name, col.Type)
	}
	if (op == OpContains || op == OpLike) && col.Type.Numeric() {
		return Predicate{}, reject(StageShape, "operator %s needs a text column, %s is %s", op, col.Name, col.Type)
	}
	val, err := literal(col, w.Value)
	if err != nil {
		return Predicate{}, err
	}
	return Predicate{Leaf: &Comparison{Column: col, Op: op, Value: val}}, nil
}

// literal coerces a draft value to the column's Go type or rejects it.
func literal(col Column, v any) (any, error) {
	switch col.Type {
	case TypeText, TypeList:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeInteger:
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
		case float64:
			// int64 covers [-2^63, 2^63).
			if n == math.Trunc(n) && n >= -(1<<63) && n < 1<<63 {
				return int64(n), nil
			}
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		}
	case TypeReal:
		switch n := v.(type) {
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, nil
			}
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	}
	return nil, reject(StageShape, "literal %v does not match %s column %s", v, col.Type, col.Name)
}

func checkBounds(d Draft, plan *Plan, lim Limits) error {
	for _, s := range draftStrings(d) {
		if strings.Contains(s, ";") {
			return reject(StageBounds, "statement separator present")
		}
	}
	for _, s := range draftLiterals(d.Where) {
		for _, seq := range commentSeqs {
			if strings.Contains(s, seq) {
				return reject(StageBounds, "comment sequence %q in literal", seq)
			}
		}
	}

	switch {
	case plan.Limit <= 0:
		plan.Limit = lim.DefaultLimit
	case lim.MaxLimit > 0 && plan.Limit > lim.MaxLimit:
		plan.Limit = lim.MaxLimit
	}
	return nil
}

func draftIdentifiers(d Draft) []string {
	out := []string{d.Table}
	out = append(out, d.Columns...)
	if d.OrderBy != nil {
		out = append(out, d.OrderBy.Column)
	}
	var walk func(*DraftWhere)
	walk = func(w *DraftWhere) {
		if w == nil {
			return
		}
		if w.Column != "" {
			out = append(out, w.Column)
		}
		for i := range w.And {
			walk(&w.And[i])
		}
		for i := range w.Or {
			walk(&w.Or[i])
		}
	}
	walk(d.Where)
	return out
}

func draftLiterals(w *DraftWhere) []string {
	if w == nil {
		return nil
	}
	var out []string
	if s, ok := w.Value.(string); ok {
		out = append(out, s)
	}
	for i := range w.And {
		out = append(out, draftLiterals(&w.And[i])...)
	}
	for i := range w.Or {
		out = append(out, draftLiterals(&w.Or[i])...)
	}
	return out
}

func draftStrings(d Draft) []string {
	out := append([]string{d.Action}, draftIdentifiers(d)...)
	var ops func(*DraftWhere)
	ops = func(w *DraftWhere) {
		if w == nil {
			return
		}
		if w.Op != "" {
			out = append(out, w.Op)
		}
		for i := range w.And {
			ops(&w.And[i])
		}
		for i := range w.Or {
			ops(&w.Or[i])
		}
	}
	ops(d.Where)
	return append(out, draftLiterals(d.Where)...)
}
