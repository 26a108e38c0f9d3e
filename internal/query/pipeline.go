package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
)

// Executor runs a validated plan read-only and returns rows in plan column
// order. It must fetch at most Limit+1 rows.
type Executor interface {
	Execute(ctx context.Context, p Plan) ([][]any, error)
}

// Result is the outcome of a successful pipeline run.
type Result struct {
	Columns     []string         `json:"columns"`
	Rows        []map[string]any `json:"rows"`
	Count       int              `json:"count"`
	Truncated   bool             `json:"truncated,omitempty"`
	Approximate bool             `json:"approximate,omitempty"`
	Notes       []string         `json:"notes,omitempty"`

	Plan  Plan      `json:"-"`
	Usage llm.Usage `json:"-"`
}

// Pipeline is the grounding → shape → bounds → execution chain. Each stage
// is a hard gate; a rejected plan never reaches the Executor.
type Pipeline struct {
	gen      llm.Generator
	exec     Executor
	limits   Limits
	log      *logging.Logger
	onReject func(*RejectError)
}

// NewPipeline creates a query pipeline.
func NewPipeline(gen llm.Generator, exec Executor, limits Limits, log *logging.Logger) *Pipeline {
	return &Pipeline{
		gen:    gen,
		exec:   exec,
		limits: limits,
		log:    log.Sub("query"),
	}
}

// OnReject registers a callback invoked for every gate failure.
func (p *Pipeline) OnReject(fn func(*RejectError)) {
	p.onReject = fn
}

// Limits returns the pipeline bounds.
func (p *Pipeline) Limits() Limits { return p.limits }

// CompileAndRun grounds a natural-language request against the schema and
// runs the resulting plan.
func (p *Pipeline) CompileAndRun(ctx context.Context, nl string, s Schema) (Result, error) {
	draft, usage, err := p.Ground(ctx, nl, s)
	if err != nil {
		return Result{}, p.rejected(err)
	}
	res, err := p.Run(ctx, draft, s)
	res.Usage = usage
	return res, err
}

// Run applies validation, bounds and execution to a caller-built draft.
func (p *Pipeline) Run(ctx context.Context, d Draft, s Schema) (Result, error) {
	plan, err := Validate(d, s, p.limits)
	if err != nil {
		return Result{}, p.rejected(err)
	}

	var notes []string
	switch {
	case d.Limit <= 0:
		notes = append(notes, fmt.Sprintf("no limit requested, using %d", plan.Limit))
	case d.Limit != plan.Limit:
		notes = append(notes, fmt.Sprintf("limit %d clamped to %d", d.Limit, plan.Limit))
	}

	res, err := p.execute(ctx, plan)
	if err != nil {
		return Result{}, err
	}

	if lists := plan.ListColumns(); len(lists) > 0 {
		res.Approximate = true
		notes = append(notes, fmt.Sprintf("%s matched by substring containment; results are approximate", strings.Join(lists, ", ")))
	}
	res.Notes = append(notes, res.Notes...)
	return res, nil
}

func (p *Pipeline) execute(ctx context.Context, plan Plan) (Result, error) {
	execCtx := ctx
	if p.limits.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, p.limits.ExecTimeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := p.exec.Execute(execCtx, plan.Clone())
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			p.log.Warn().Str("table", plan.Table).Dur("after", time.Since(start)).Msg("query execution timed out")
			return Result{}, fmt.Errorf("execute %s: %w", plan.Table, domain.ErrStorageTimeout)
		}
		return Result{}, fmt.Errorf("execute %s: %w", plan.Table, err)
	}

	res := Result{Plan: plan}
	for _, c := range plan.Columns {
		res.Columns = append(res.Columns, c.Name)
	}

	if len(raw) > plan.Limit {
		raw = raw[:plan.Limit]
		res.Truncated = true
		res.Notes = append(res.Notes, fmt.Sprintf("showing the first %d rows", plan.Limit))
	}

	budget := p.limits.MaxResultBytes
	used := 0
	for _, values := range raw {
		row := make(map[string]any, len(plan.Columns))
		size := 0
		for i, c := range plan.Columns {
			if i >= len(values) {
				break
			}
			v := decodeValue(c, values[i])
			row[c.Name] = v
			size += len(c.Name) + len(fmt.Sprint(v))
		}
		if budget > 0 && used+size > budget {
			res.Truncated = true
			res.Notes = append(res.Notes, fmt.Sprintf("result exceeded %d bytes; showing %d rows", budget, len(res.Rows)))
			break
		}
		used += size
		res.Rows = append(res.Rows, row)
	}
	res.Count = len(res.Rows)

	p.log.Debug().
		Str("table", plan.Table).
		Int("rows", res.Count).
		Bool("truncated", res.Truncated).
		Int64("durationMs", time.Since(start).Milliseconds()).
		Msg("query executed")
	return res, nil
}

// decodeValue turns driver values into JSON-friendly ones. List columns are
// parsed back into slices when they hold valid JSON.
func decodeValue(c Column, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if c.Type == TypeList {
		if s, ok := v.(string); ok {
			var list []any
			if err := json.Unmarshal([]byte(s), &list); err == nil {
				return list
			}
		}
	}
	return v
}

func (p *Pipeline) rejected(err error) error {
	if re, ok := IsRejected(err); ok {
		p.log.Warn().Str("stage", re.Stage).Str("reason", re.Reason).Msg("query rejected")
		if p.onReject != nil {
			p.onReject(re)
		}
	}
	return err
}

const groundingPrompt = `You translate questions about a guitar knowledge base into a JSON query plan.
Reply with exactly one JSON object and nothing else.

Tables (column name and type):
%s
Plan format:
{"action":"select","table":"<table>","columns":["<column>",...],
 "where":{"and":[{"column":"<column>","op":"<op>","value":<literal>}, ...]},
 "order_by":{"column":"<column>","desc":false},"limit":<n>}

Rules:
- action is always "select".
- op is one of = != < <= > >= contains like.
- "where" is optional; a node is {"and":[...]}, {"or":[...]} or a single comparison.
- list columns hold JSON arrays; use "contains" to search them.
- omit "limit" unless the user asks for a specific number of rows.`

var jsonFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")

// Ground asks the generator for a draft plan.
func (p *Pipeline) Ground(ctx context.Context, nl string, s Schema) (Draft, llm.Usage, error) {
	if strings.TrimSpace(nl) == "" {
		return Draft{}, llm.Usage{}, reject(StageGrounding, "empty request")
	}

	gctx := ctx
	if p.limits.GroundTimeout > 0 {
		var cancel context.CancelFunc
		gctx, cancel = context.WithTimeout(ctx, p.limits.GroundTimeout)
		defer cancel()
	}

	gen, err := p.gen.Generate(gctx, llm.Prompt{
		System:    fmt.Sprintf(groundingPrompt, s.Describe()),
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: nl}},
		MaxTokens: 512,
	})
	if err != nil {
		return Draft{}, llm.Usage{}, fmt.Errorf("query grounding: %w: %w", domain.ErrResponderUnavailable, err)
	}

	d, err := ParseDraft(gen.Text)
	return d, gen.Usage, err
}

// ParseDraft extracts one JSON plan from generated text, from a ```json
// fence when present. Unknown fields and trailing data are rejected.
func ParseDraft(text string) (Draft, error) {
	body := strings.TrimSpace(text)
	if m := jsonFenceRe.FindStringSubmatch(body); m != nil {
		body = m[1]
	} else if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
		body = body[i : j+1]
	} else {
		return Draft{}, reject(StageGrounding, "no JSON object in response")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	var d Draft
	if err := dec.Decode(&d); err != nil {
		return Draft{}, reject(StageGrounding, "malformed plan: %v", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Draft{}, reject(StageGrounding, "more than one plan in response")
	}
	return d, nil
}
