package query

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func testSchema() Schema {
	return Schema{Tables: []Table{
		{Name: "chords", Columns: []Column{
			{Name: "name", Type: TypeText},
			{Name: "chord_type", Type: TypeText},
			{Name: "intervals", Type: TypeList},
			{Name: "difficulty", Type: TypeInteger},
			{Name: "tags", Type: TypeList},
		}},
		{Name: "jazz_standards", Columns: []Column{
			{Name: "title", Type: TypeText},
			{Name: "year", Type: TypeInteger},
			{Name: "tempo", Type: TypeReal},
		}},
	}}
}

type fakeExecutor struct {
	mu    sync.Mutex
	plans []Plan
	rows  [][]any
	err   error
	delay time.Duration
}

func (f *fakeExecutor) Execute(ctx context.Context, p Plan) ([][]any, error) {
	f.mu.Lock()
	f.plans = append(f.plans, p)
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if len(f.rows) > p.Limit+1 {
		return f.rows[:p.Limit+1], nil
	}
	return f.rows, nil
}

func (f *fakeExecutor) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plans)
}

func staticGen(text string) llm.Generator {
	return llm.GeneratorFunc(func(ctx context.Context, p llm.Prompt) (llm.Generation, error) {
		return llm.Generation{Text: text, Usage: llm.Usage{InputTokens: 40, OutputTokens: 20}}, nil
	})
}

func newPipeline(gen llm.Generator, exec Executor) *Pipeline {
	return NewPipeline(gen, exec, DefaultLimits(), silentLog())
}

// --- Validation ---

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		draft Draft
		stage string
	}{
		{"non-select action", Draft{Action: "delete", Table: "chords"}, StageShape},
		{"unknown table", Draft{Action: "select", Table: "users"}, StageShape},
		{"unknown column", Draft{Action: "select", Table: "chords", Columns: []string{"password"}}, StageShape},
		{"write verb in identifier", Draft{Action: "select", Table: "chords; DROP TABLE chords"}, StageShape},
		{"separator in literal", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "name", Op: "=", Value: "Cmaj7'; DELETE FROM chords",
		}}, StageBounds},
		{"comment in literal", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "name", Op: "=", Value: "x' --",
		}}, StageBounds},
		{"block comment in literal", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "name", Op: "=", Value: "/* hi */",
		}}, StageBounds},
		{"unknown op", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "name", Op: "IN", Value: "x",
		}}, StageShape},
		{"ordering on text", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "name", Op: ">", Value: "a",
		}}, StageShape},
		{"ordering on list", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "tags", Op: "<", Value: "a",
		}}, StageShape},
		{"contains on integer", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "contains", Value: json.Number("3"),
		}}, StageShape},
		{"string literal on integer", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "=", Value: "3 OR 1=1",
		}}, StageShape},
		{"fractional integer", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "=", Value: 2.5,
		}}, StageShape},
		{"integer beyond int64", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "=", Value: 1e30,
		}}, StageShape},
		{"integer below int64", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "=", Value: -1e30,
		}}, StageShape},
		{"integer at 2^63", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "=", Value: 9223372036854775808.0,
		}}, StageShape},
		{"infinite integer", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "=", Value: math.Inf(1),
		}}, StageShape},
		{"mixed node", Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "name", Op: "=", Value: "x", And: []DraftWhere{{Column: "name", Op: "=", Value: "y"}},
		}}, StageShape},
		{"empty node", Draft{Action: "select", Table: "chords", Where: &DraftWhere{}}, StageShape},
		{"unknown order column", Draft{Action: "select", Table: "chords", OrderBy: &DraftOrder{Column: "rowid"}}, StageShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate(tt.draft, testSchema(), DefaultLimits())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrUnsafeQuery)
			re, ok := IsRejected(err)
			require.True(t, ok)
			assert.Equal(t, tt.stage, re.Stage)
		})
	}
}

func TestValidateWholeFloatIntegers(t *testing.T) {
	for _, v := range []float64{3, -3, -(1 << 63)} {
		plan, err := Validate(Draft{Action: "select", Table: "chords", Where: &DraftWhere{
			Column: "difficulty", Op: "=", Value: v,
		}}, testSchema(), DefaultLimits())
		require.NoError(t, err, "value %v", v)
		require.NotNil(t, plan.Where)
		require.NotNil(t, plan.Where.Leaf)
		assert.Equal(t, int64(v), plan.Where.Leaf.Value)
	}
}

func TestValidateCanonicalizesIdentifiers(t *testing.T) {
	plan, err := Validate(Draft{
		Action:  " SELECT ",
		Table:   "CHORDS",
		Columns: []string{"Name", "name", "TAGS"},
		Where:   &DraftWhere{Column: "Difficulty", Op: ">=", Value: json.Number("3")},
		OrderBy: &DraftOrder{Column: "DIFFICULTY", Desc: true},
		Limit:   10,
	}, testSchema(), DefaultLimits())
	require.NoError(t, err)

	want := Plan{
		Table:   "chords",
		Columns: []Column{{Name: "name", Type: TypeText}, {Name: "tags", Type: TypeList}},
		Where: &Predicate{Leaf: &Comparison{
			Column: Column{Name: "difficulty", Type: TypeInteger}, Op: OpGe, Value: int64(3),
		}},
		OrderBy: &Order{Column: "difficulty", Desc: true},
		Limit:   10,
	}
	if diff := cmp.Diff(want, plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestValidateAllColumnsByDefault(t *testing.T) {
	plan, err := Validate(Draft{Action: "select", Table: "jazz_standards"}, testSchema(), DefaultLimits())
	require.NoError(t, err)
	assert.Len(t, plan.Columns, 3)
}

func TestLimitBounds(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"missing", 0, 50},
		{"negative", -4, 50},
		{"within", 25, 25},
		{"at max", 200, 200},
		{"clamped", 10000, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Validate(Draft{Action: "select", Table: "chords", Limit: tt.limit}, testSchema(), DefaultLimits())
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Limit)
		})
	}
}

func TestPredicateDepthAndLeafBounds(t *testing.T) {
	leaf := DraftWhere{Column: "name", Op: "=", Value: "x"}

	deep := leaf
	for range 8 {
		deep = DraftWhere{And: []DraftWhere{deep}}
	}
	_, err := Validate(Draft{Action: "select", Table: "chords", Where: &deep}, testSchema(), DefaultLimits())
	re, ok := IsRejected(err)
	require.True(t, ok)
	assert.Equal(t, StageBounds, re.Stage)

	wide := DraftWhere{}
	for range 33 {
		wide.Or = append(wide.Or, leaf)
	}
	_, err = Validate(Draft{Action: "select", Table: "chords", Where: &wide}, testSchema(), DefaultLimits())
	re, ok = IsRejected(err)
	require.True(t, ok)
	assert.Contains(t, re.Reason, "comparisons")
}

// --- Compile ---

func TestCompileParameterizes(t *testing.T) {
	plan, err := Validate(Draft{
		Action:  "select",
		Table:   "chords",
		Columns: []string{"name"},
		Where: &DraftWhere{And: []DraftWhere{
			{Column: "name", Op: "contains", Value: "maj"},
			{Or: []DraftWhere{
				{Column: "difficulty", Op: "<", Value: json.Number("3")},
				{Column: "tags", Op: "=", Value: "b9"},
			}},
		}},
		OrderBy: &DraftOrder{Column: "name"},
	}, testSchema(), DefaultLimits())
	require.NoError(t, err)

	stmt, err := Compile(plan)
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "name" FROM "chords" WHERE (instr(lower("name"), lower(?)) > 0 AND ("difficulty" < ? OR instr(lower("tags"), lower(?)) > 0)) ORDER BY "name" ASC LIMIT ?`,
		stmt.SQL)
	assert.Equal(t, []any{"maj", int64(3), "b9", 51}, stmt.Args)
}

func TestCompileListNotEqual(t *testing.T) {
	plan, err := Validate(Draft{Action: "select", Table: "chords", Columns: []string{"name"},
		Where: &DraftWhere{Column: "tags", Op: "!=", Value: "basic"}}, testSchema(), DefaultLimits())
	require.NoError(t, err)
	stmt, err := Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `instr(lower("tags"), lower(?)) = 0`)
}

func TestCompileLiteralNeverInSQL(t *testing.T) {
	plan, err := Validate(Draft{Action: "select", Table: "chords",
		Where: &DraftWhere{Column: "name", Op: "=", Value: "Robert') OR 1=1"}}, testSchema(), Limits{DefaultLimit: 5})
	require.NoError(t, err)
	stmt, err := Compile(plan)
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "Robert")
	assert.Equal(t, []any{"Robert') OR 1=1", 6}, stmt.Args)
}

func TestCompileRequiresLimit(t *testing.T) {
	_, err := Compile(Plan{Table: "chords", Columns: []Column{{Name: "name"}}})
	assert.Error(t, err)
}

// --- Grounding ---

func TestParseDraft(t *testing.T) {
	fenced := "Here you go:\n```json\n{\"action\":\"select\",\"table\":\"chords\",\"limit\":5}\n```"
	d, err := ParseDraft(fenced)
	require.NoError(t, err)
	assert.Equal(t, "chords", d.Table)
	assert.Equal(t, 5, d.Limit)

	bare := `{"action":"select","table":"chords","where":{"column":"tags","op":"contains","value":"b9"}}`
	d, err = ParseDraft(bare)
	require.NoError(t, err)
	require.NotNil(t, d.Where)
	assert.Equal(t, "b9", d.Where.Value)
}

func TestParseDraftRejects(t *testing.T) {
	for name, text := range map[string]string{
		"no json":        "I cannot help with that",
		"unknown field":  `{"action":"select","table":"chords","sql":"DROP TABLE chords"}`,
		"trailing plan":  `{"action":"select","table":"chords"} {"action":"select","table":"scales"}`,
		"malformed json": `{"action":"select",`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDraft(text)
			re, ok := IsRejected(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, StageGrounding, re.Stage)
		})
	}
}

// --- Pipeline ---

func TestCompileAndRunHappyPath(t *testing.T) {
	exec := &fakeExecutor{rows: [][]any{
		{"C7b9", `["dominant","b9"]`},
		{"A7b9", []byte(`["b9"]`)},
	}}
	var prompt llm.Prompt
	gen := llm.GeneratorFunc(func(ctx context.Context, p llm.Prompt) (llm.Generation, error) {
		prompt = p
		return llm.Generation{
			Text:  `{"action":"select","table":"chords","columns":["name","tags"],"where":{"column":"tags","op":"contains","value":"b9"}}`,
			Usage: llm.Usage{InputTokens: 30, OutputTokens: 12},
		}, nil
	})

	res, err := newPipeline(gen, exec).CompileAndRun(context.Background(), "find chords tagged b9", testSchema())
	require.NoError(t, err)

	assert.Contains(t, prompt.System, "chords:")
	assert.Contains(t, prompt.System, "tags list")
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"name", "tags"}, res.Columns)
	assert.Equal(t, []any{"dominant", "b9"}, res.Rows[0]["tags"])
	assert.Equal(t, []any{"b9"}, res.Rows[1]["tags"])
	assert.True(t, res.Approximate)
	assert.False(t, res.Truncated)
	assert.Equal(t, 30, res.Usage.InputTokens)
	assert.Equal(t, 50, exec.plans[0].Limit)
	require.Len(t, res.Notes, 2)
	assert.Contains(t, res.Notes[1], "approximate")
}

func TestRejectedPlanNeverExecutes(t *testing.T) {
	exec := &fakeExecutor{}
	var rejected []*RejectError
	p := newPipeline(staticGen(`{"action":"select","table":"users"}`), exec)
	p.OnReject(func(re *RejectError) { rejected = append(rejected, re) })

	_, err := p.CompileAndRun(context.Background(), "show me all users", testSchema())
	assert.ErrorIs(t, err, domain.ErrUnsafeQuery)
	assert.Equal(t, 0, exec.calls())
	require.Len(t, rejected, 1)
	assert.Equal(t, StageShape, rejected[0].Stage)
}

func TestRunClampsAndNotes(t *testing.T) {
	exec := &fakeExecutor{}
	res, err := newPipeline(staticGen(""), exec).Run(context.Background(),
		Draft{Action: "select", Table: "jazz_standards", Limit: 10000}, testSchema())
	require.NoError(t, err)
	require.Equal(t, 1, exec.calls())
	assert.Equal(t, 200, exec.plans[0].Limit)
	assert.Equal(t, []string{"limit 10000 clamped to 200"}, res.Notes)
}

func TestTruncationByLimit(t *testing.T) {
	var rows [][]any
	for i := range 8 {
		rows = append(rows, []any{"tune", int64(1950 + i), 120.0})
	}
	exec := &fakeExecutor{rows: rows}
	res, err := newPipeline(staticGen(""), exec).Run(context.Background(),
		Draft{Action: "select", Table: "jazz_standards", Limit: 5}, testSchema())
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 5, res.Count)
}

func TestTruncationByBytes(t *testing.T) {
	exec := &fakeExecutor{rows: [][]any{
		{strings.Repeat("a", 40), int64(1), 1.0},
		{strings.Repeat("b", 40), int64(2), 1.0},
	}}
	lim := DefaultLimits()
	lim.MaxResultBytes = 70
	p := NewPipeline(staticGen(""), exec, lim, silentLog())
	res, err := p.Run(context.Background(), Draft{Action: "select", Table: "jazz_standards"}, testSchema())
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.Equal(t, 1, res.Count)
}

func TestExecutionTimeout(t *testing.T) {
	exec := &fakeExecutor{delay: time.Second}
	lim := DefaultLimits()
	lim.ExecTimeout = 20 * time.Millisecond
	p := NewPipeline(staticGen(""), exec, lim, silentLog())

	_, err := p.Run(context.Background(), Draft{Action: "select", Table: "chords"}, testSchema())
	assert.ErrorIs(t, err, domain.ErrStorageTimeout)
	assert.NotErrorIs(t, err, domain.ErrUnsafeQuery)
}

func TestExecutorErrorPassesThrough(t *testing.T) {
	boom := errors.New("disk on fire")
	_, err := newPipeline(staticGen(""), &fakeExecutor{err: boom}).Run(context.Background(),
		Draft{Action: "select", Table: "chords"}, testSchema())
	assert.ErrorIs(t, err, boom)
}

func TestGroundingFailureIsUnavailable(t *testing.T) {
	gen := llm.GeneratorFunc(func(ctx context.Context, p llm.Prompt) (llm.Generation, error) {
		return llm.Generation{}, errors.New("backend down")
	})
	exec := &fakeExecutor{}
	_, err := newPipeline(gen, exec).CompileAndRun(context.Background(), "list chords", testSchema())
	assert.ErrorIs(t, err, domain.ErrResponderUnavailable)
	assert.Equal(t, 0, exec.calls())
}

func TestExecutorGetsCopy(t *testing.T) {
	exec := &fakeExecutor{}
	p := newPipeline(staticGen(""), exec)
	res, err := p.Run(context.Background(), Draft{Action: "select", Table: "chords",
		Where: &DraftWhere{Column: "name", Op: "=", Value: "C7"}}, testSchema())
	require.NoError(t, err)

	exec.plans[0].Where.Leaf.Value = "mutated"
	exec.plans[0].Columns[0].Name = "mutated"
	assert.Equal(t, "C7", res.Plan.Where.Leaf.Value)
	assert.Equal(t, "name", res.Plan.Columns[0].Name)
}

// --- Formatting ---

func TestFormatTable(t *testing.T) {
	out := FormatTable(Result{
		Columns: []string{"name", "tags"},
		Rows: []map[string]any{
			{"name": "C7b9", "tags": []any{"dominant", "b9"}},
			{"name": "a|b", "tags": nil},
		},
	})
	assert.Equal(t, "| name | tags |\n| --- | --- |\n| C7b9 | dominant, b9 |\n| a\\|b |  |", out)
	assert.Equal(t, "No results found.", FormatTable(Result{}))
}

func TestSchemaLookup(t *testing.T) {
	s := testSchema()
	_, ok := s.Table("Chords")
	assert.True(t, ok)
	assert.Equal(t, []string{"chords", "jazz_standards"}, s.TableNames())
	assert.True(t, TypeReal.Numeric())
	assert.False(t, TypeList.Numeric())
}
