package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/query"
	"github.com/soyeahso/maestro/internal/responder"
	"github.com/soyeahso/maestro/internal/routing"
	"github.com/soyeahso/maestro/internal/store"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func makeReq(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type fakeChat struct {
	got routing.Request
	err error
}

func (f *fakeChat) Handle(_ context.Context, req routing.Request) (routing.Response, error) {
	f.got = req
	if f.err != nil {
		return routing.Response{}, f.err
	}
	return routing.Response{
		SessionID: "s1",
		Outcome: domain.Outcome{
			Text:        "Dorian is the second mode of the major scale.",
			Attribution: domain.Attribution{Kind: domain.AttributionSingle, Responder: "jazz_teacher"},
			Suggestions: []string{"Try a Dorian exercise"},
			Meta:        domain.OutcomeMeta{Pattern: domain.PatternSingle},
		},
	}, nil
}

type catalog []responder.Info

func (c catalog) Infos() []responder.Info { return c }

func TestAskTool(t *testing.T) {
	chat := &fakeChat{}
	tool := NewAskTool(chat, silentLog())

	def := tool.Definition()
	assert.Equal(t, "ask", def.Name)
	assert.Contains(t, def.InputSchema.Required, "message")

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{
		"message":     "what is dorian?",
		"session_id":  "s1",
		"skill_level": "beginner",
	}))
	require.NoError(t, err)
	assert.False(t, res.IsError)

	text := resultText(res)
	assert.Contains(t, text, "second mode")
	assert.Contains(t, text, "session: s1 | responder: jazz_teacher | pattern: single")
	assert.Contains(t, text, "- Try a Dorian exercise")
	assert.Equal(t, routing.Request{Message: "what is dorian?", SessionID: "s1", SkillLevel: "beginner"}, chat.got)
}

func TestAskTool_Errors(t *testing.T) {
	tool := NewAskTool(&fakeChat{}, silentLog())
	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"message": "  "}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: unknown skill level", routing.ErrInvalidRequest), "invalid request: unknown skill level"},
		{&domain.ConflictError{SessionID: "s1", RetryAfter: 1500 * time.Millisecond}, "Retry in 2 seconds."},
		{errors.New("sqlite: disk I/O error"), "The request could not be completed. Please try again."},
	}
	for _, tt := range tests {
		tool := NewAskTool(&fakeChat{err: tt.err}, silentLog())
		res, err := tool.Handle(context.Background(), makeReq(map[string]any{"message": "hi"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
		assert.Contains(t, resultText(res), tt.want)
	}
}

func knowledgeResponder(t *testing.T, reply string) domain.Responder {
	t.Helper()
	db, err := store.Open(":memory:", silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.Seed(context.Background())
	require.NoError(t, err)
	schema, err := db.Describe(context.Background())
	require.NoError(t, err)

	gen := llm.GeneratorFunc(func(context.Context, llm.Prompt) (llm.Generation, error) {
		return llm.Generation{Text: reply}, nil
	})
	p := query.NewPipeline(gen, store.NewKnowledgeExecutor(db), query.DefaultLimits(), silentLog())
	return responder.NewSQLExpert(p, schema, silentLog())
}

func TestQueryTool(t *testing.T) {
	tool := NewQueryTool(knowledgeResponder(t,
		`{"action":"select","table":"chords","columns":["name","tags"],"where":{"column":"tags","op":"contains","value":"b9"}}`))
	assert.Equal(t, "query_knowledge", tool.Definition().Name)

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"request": "chords with a b9"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(res), "Found 3 results in chords.")
	assert.Contains(t, resultText(res), "| name | tags |")
}

func TestQueryTool_Rejects(t *testing.T) {
	tool := NewQueryTool(knowledgeResponder(t, `{"action":"delete","table":"chords"}`))

	res, err := tool.Handle(context.Background(), makeReq(map[string]any{"request": "remove every chord"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(res), "I can't run that data request")
	assert.NotContains(t, resultText(res), "delete")

	res, err = tool.Handle(context.Background(), makeReq(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestListRespondersTool(t *testing.T) {
	tool := NewListRespondersTool(catalog{{ID: "jazz_teacher", Label: "Jazz Teacher", Examples: []string{"What is a ii-V-I?"}}})

	res, err := tool.Handle(context.Background(), makeReq(nil))
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"id":"jazz_teacher","label":"Jazz Teacher","description":"","examples":["What is a ii-V-I?"]}]`,
		resultText(res))
}

func TestNewRegistersTools(t *testing.T) {
	knowledge := knowledgeResponder(t, `{}`)
	require.NotNil(t, New(&fakeChat{}, catalog{}, knowledge, silentLog()))

	var names []string
	for _, tl := range newTools(&fakeChat{}, catalog{}, knowledge, silentLog()) {
		names = append(names, tl.Definition().Name)
	}
	assert.Equal(t, []string{"ask", "query_knowledge", "list_responders"}, names)
}
