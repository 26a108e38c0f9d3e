// Package mcpserver exposes maestro to MCP clients over stdio.
//
// Each tool is a struct with its dependencies injected, a Definition that
// returns the mcp.Tool schema and a Handle method. Tool failures are
// reported as error results, never as protocol errors.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/responder"
	"github.com/soyeahso/maestro/internal/routing"
	"github.com/soyeahso/maestro/internal/version"
)

// Chat runs one conversational turn.
type Chat interface {
	Handle(ctx context.Context, req routing.Request) (routing.Response, error)
}

// Catalog lists the available responders.
type Catalog interface {
	Infos() []responder.Info
}

type tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// New builds the MCP server with the ask, query_knowledge and
// list_responders tools.
func New(chat Chat, catalog Catalog, knowledge domain.Responder, log *logging.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"maestro",
		version.Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Guitar tutor. Use ask for questions about theory, technique, history or practice; "+
			"query_knowledge for lists and counts from the knowledge base; list_responders to see the specialists."),
	)

	for _, t := range newTools(chat, catalog, knowledge, log.Sub("mcp")) {
		s.AddTool(t.Definition(), t.Handle)
	}
	return s
}

func newTools(chat Chat, catalog Catalog, knowledge domain.Responder, log *logging.Logger) []tool {
	return []tool{
		NewAskTool(chat, log),
		NewQueryTool(knowledge),
		NewListRespondersTool(catalog),
	}
}

// Serve runs s on stdin/stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
