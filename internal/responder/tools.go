package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/soyeahso/maestro/internal/domain"
)

// Tool is a capability a responder can invoke while answering.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns a human-readable description for the model.
	Description() string

	// InputSchema returns the JSON Schema for the tool's input.
	InputSchema() string

	// Execute runs the tool with the given JSON input.
	Execute(ctx context.Context, input string) (ToolResult, error)
}

// ToolResult is a tool's output plus any session hints it produced.
type ToolResult struct {
	Output   string // JSON fed back to the model
	Data     any    // structured payload surfaced on the outcome
	Topic    *string
	Activity *domain.Activity
}

// FuncTool adapts a typed handler to Tool.
type FuncTool struct {
	ToolName string
	ToolDesc string
	Schema   string
	Handler  func(ctx context.Context, raw json.RawMessage) (ToolResult, error)
}

func (f *FuncTool) Name() string        { return f.ToolName }
func (f *FuncTool) Description() string { return f.ToolDesc }
func (f *FuncTool) InputSchema() string { return f.Schema }

func (f *FuncTool) Execute(ctx context.Context, input string) (ToolResult, error) {
	if input == "" {
		input = "{}"
	}
	return f.Handler(ctx, json.RawMessage(input))
}

// jsonResult marshals v as the tool output and keeps it as the data payload.
func jsonResult(v any) (ToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ToolResult{}, fmt.Errorf("encode tool output: %w", err)
	}
	return ToolResult{Output: string(b), Data: v}, nil
}

// decodeInput unmarshals tool input into dst.
func decodeInput(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}

// ToolRegistry holds the tools available to one responder.
type ToolRegistry struct {
	tools map[string]Tool
}

// NewToolRegistry creates a registry holding the given tools.
func NewToolRegistry(tools ...Tool) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool, replacing one with the same name.
func (r *ToolRegistry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.tools) }

// Definitions returns tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDef {
	defs := make([]ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ToolDef is a serializable tool definition for the prompt.
type ToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema string `json:"inputSchema"`
}
