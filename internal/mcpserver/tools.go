package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/routing"
)

// AskTool handles the ask tool.
type AskTool struct {
	chat Chat
	log  *logging.Logger
}

func NewAskTool(chat Chat, log *logging.Logger) *AskTool {
	return &AskTool{chat: chat, log: log}
}

func (t *AskTool) Definition() mcp.Tool {
	return mcp.NewTool("ask",
		mcp.WithDescription("Ask the guitar tutor a question. The request is routed to the best specialist "+
			"(luthier historian, jazz teacher, data expert, dev PM) or to several of them."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The question, up to 5000 characters")),
		mcp.WithString("session_id", mcp.Description("Continue an existing conversation")),
		mcp.WithString("responder", mcp.Description("Force a specific responder id")),
		mcp.WithString("skill_level", mcp.Description("beginner, intermediate or advanced"),
			mcp.Enum(domain.SkillBeginner, domain.SkillIntermediate, domain.SkillAdvanced)),
	)
}

func (t *AskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := req.GetString("message", "")
	if strings.TrimSpace(message) == "" {
		return mcp.NewToolResultError("'message' is required"), nil
	}

	resp, err := t.chat.Handle(ctx, routing.Request{
		Message:            message,
		SessionID:          req.GetString("session_id", ""),
		PreferredResponder: req.GetString("responder", ""),
		SkillLevel:         req.GetString("skill_level", ""),
	})
	if err != nil {
		t.log.Debug().Err(err).Msg("ask failed")
		return mcp.NewToolResultError(failureText(err)), nil
	}

	var b strings.Builder
	b.WriteString(resp.Outcome.Text)
	fmt.Fprintf(&b, "\n\n---\nsession: %s | responder: %s | pattern: %s",
		resp.SessionID, resp.Outcome.Attribution.Responder, resp.Outcome.Meta.Pattern)
	if len(resp.Outcome.Suggestions) > 0 {
		b.WriteString("\n\nYou could also ask:")
		for _, s := range resp.Outcome.Suggestions {
			b.WriteString("\n- " + s)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

// failureText is the client-safe message for a request error.
func failureText(err error) string {
	var conflict *domain.ConflictError
	switch {
	case errors.Is(err, routing.ErrInvalidRequest):
		return err.Error()
	case errors.As(err, &conflict):
		return fmt.Sprintf("This session is busy with another request. Retry in %d seconds.",
			int(math.Ceil(conflict.RetryAfter.Seconds())))
	case errors.Is(err, context.DeadlineExceeded):
		return "The request took too long. Please try again."
	default:
		return "The request could not be completed. Please try again."
	}
}

// QueryTool handles query_knowledge by going straight to the data
// responder, skipping classification.
type QueryTool struct {
	knowledge domain.Responder
}

func NewQueryTool(knowledge domain.Responder) *QueryTool {
	return &QueryTool{knowledge: knowledge}
}

func (t *QueryTool) Definition() mcp.Tool {
	return mcp.NewTool("query_knowledge",
		mcp.WithDescription("Answer a data question from the guitar knowledge base: chords, scales, techniques, "+
			"jazz standards and guitar history. The request is checked before anything runs; only bounded reads are allowed."),
		mcp.WithString("request", mcp.Required(),
			mcp.Description("Natural-language request, e.g. 'chords with difficulty 4 or higher'")),
	)
}

func (t *QueryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := strings.TrimSpace(req.GetString("request", ""))
	if text == "" {
		return mcp.NewToolResultError("'request' is required"), nil
	}

	out, err := t.knowledge.Respond(ctx, domain.Request{Text: text, Session: domain.NewSession("mcp")})
	if err != nil {
		return mcp.NewToolResultError("The knowledge base could not answer that right now."), nil
	}
	if out.Meta.ErrorKind != "" {
		return mcp.NewToolResultError(out.Text), nil
	}
	return mcp.NewToolResultText(out.Text), nil
}

// ListRespondersTool handles list_responders.
type ListRespondersTool struct {
	catalog Catalog
}

func NewListRespondersTool(catalog Catalog) *ListRespondersTool {
	return &ListRespondersTool{catalog: catalog}
}

func (t *ListRespondersTool) Definition() mcp.Tool {
	return mcp.NewTool("list_responders",
		mcp.WithDescription("List the specialists with their descriptions and example questions."),
	)
}

func (t *ListRespondersTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(t.catalog.Infos(), "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode responders: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
