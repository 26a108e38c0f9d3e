package query

import (
	"errors"
	"fmt"

	"github.com/soyeahso/maestro/internal/domain"
)

// Op is a comparison operator from the closed set the pipeline accepts.
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpLt       Op = "<"
	OpLe       Op = "<="
	OpGt       Op = ">"
	OpGe       Op = ">="
	OpContains Op = "contains"
	OpLike     Op = "like"
)

var knownOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true,
	OpGt: true, OpGe: true, OpContains: true, OpLike: true,
}

func (o Op) ordering() bool {
	return o == OpLt || o == OpLe || o == OpGt || o == OpGe
}

// Draft is the unvalidated plan as produced by grounding or built by a
// caller. Nothing in a Draft is trusted.
type Draft struct {
	Action  string      `json:"action"`
	Table   string      `json:"table"`
	Columns []string    `json:"columns,omitempty"`
	Where   *DraftWhere `json:"where,omitempty"`
	OrderBy *DraftOrder `json:"order_by,omitempty"`
	Limit   int         `json:"limit,omitempty"`
}

// DraftWhere is one predicate node: exactly one of And, Or or a leaf
// (Column, Op, Value).
type DraftWhere struct {
	And    []DraftWhere `json:"and,omitempty"`
	Or     []DraftWhere `json:"or,omitempty"`
	Column string       `json:"column,omitempty"`
	Op     string       `json:"op,omitempty"`
	Value  any          `json:"value,omitempty"`
}

// DraftOrder is an ORDER BY request.
type DraftOrder struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc,omitempty"`
}

// Plan is a validated, bounded query. Identifiers come from the Schema,
// never from the draft text, and every literal binds as a parameter.
type Plan struct {
	Table   string
	Columns []Column
	Where   *Predicate
	OrderBy *Order
	Limit   int
}

// Predicate is a node of the WHERE tree: a conjunction, a disjunction or a
// single comparison.
type Predicate struct {
	And  []Predicate
	Or   []Predicate
	Leaf *Comparison
}

// Comparison compares a column against a bound literal.
type Comparison struct {
	Column Column
	Op     Op
	Value  any // string, int64 or float64
}

// Order is a validated ORDER BY.
type Order struct {
	Column string
	Desc   bool
}

// Clone returns a deep copy so executors cannot alias the validated plan.
func (p Plan) Clone() Plan {
	out := p
	out.Columns = append([]Column(nil), p.Columns...)
	if p.Where != nil {
		w := p.Where.clone()
		out.Where = &w
	}
	if p.OrderBy != nil {
		o := *p.OrderBy
		out.OrderBy = &o
	}
	return out
}

func (p Predicate) clone() Predicate {
	out := Predicate{}
	for _, c := range p.And {
		out.And = append(out.And, c.clone())
	}
	for _, c := range p.Or {
		out.Or = append(out.Or, c.clone())
	}
	if p.Leaf != nil {
		l := *p.Leaf
		out.Leaf = &l
	}
	return out
}

// ListColumns returns the list-typed columns used in the predicate, in
// first-use order.
func (p Plan) ListColumns() []string {
	var out []string
	seen := map[string]bool{}
	var walk func(Predicate)
	walk = func(n Predicate) {
		if n.Leaf != nil && n.Leaf.Column.Type == TypeList && !seen[n.Leaf.Column.Name] {
			seen[n.Leaf.Column.Name] = true
			out = append(out, n.Leaf.Column.Name)
		}
		for _, c := range n.And {
			walk(c)
		}
		for _, c := range n.Or {
			walk(c)
		}
	}
	if p.Where != nil {
		walk(*p.Where)
	}
	return out
}

// Pipeline stages, as reported in RejectError.
const (
	StageGrounding = "grounding"
	StageShape     = "shape"
	StageBounds    = "bounds"
)

// RejectError is a terminal gate failure. Its detail is for logs only and
// must never reach the user.
type RejectError struct {
	Stage  string
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("query rejected at %s: %s", e.Stage, e.Reason)
}

func (e *RejectError) Unwrap() error { return domain.ErrUnsafeQuery }

func reject(stage, format string, args ...any) error {
	return &RejectError{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err is a gate failure and returns it.
func IsRejected(err error) (*RejectError, bool) {
	var re *RejectError
	ok := errors.As(err, &re)
	return re, ok
}
