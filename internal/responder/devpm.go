package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/store"
)

const devPMPersona = `You are the senior full stack developer and project manager of the
guitar tutoring service.

## Responsibilities
- Track progress at each development benchmark.
- Document failures with problem, root cause and solution.
- Report system health and component status.

## Response Style
- Systematic and structured.
- Track metrics such as token cost, latency and error rates.
- Always provide actionable next steps.`

// BenchmarkLog records and lists development milestones.
type BenchmarkLog interface {
	Log(ctx context.Context, phase, description, status, notes string) (*store.Benchmark, error)
	List(ctx context.Context, phase string, limit int) ([]store.Benchmark, error)
	StatusCounts(ctx context.Context) (map[string]int, error)
}

var _ BenchmarkLog = (*store.BenchmarkStore)(nil)

// StatusFunc reports component health for the system_status tool.
type StatusFunc func(ctx context.Context) (map[string]any, error)

// NewDevPM creates the dev_pm responder. status may be nil.
func NewDevPM(bench BenchmarkLog, status StatusFunc, gen llm.Generator, log *logging.Logger) *Agent {
	tools := NewToolRegistry(
		&FuncTool{
			ToolName: "log_benchmark",
			ToolDesc: "Log a development benchmark. status is one of started, in_progress, completed, failed; completed and failed close the open benchmark of the phase.",
			Schema:   `{"type":"object","properties":{"phase":{"type":"string"},"description":{"type":"string"},"status":{"type":"string","enum":["started","in_progress","completed","failed"]},"notes":{"type":"string"}},"required":["phase","description","status"]}`,
			Handler: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
				var in struct {
					Phase       string `json:"phase"`
					Description string `json:"description"`
					Status      string `json:"status"`
					Notes       string `json:"notes"`
				}
				if err := decodeInput(raw, &in); err != nil {
					return ToolResult{}, err
				}
				b, err := bench.Log(ctx, in.Phase, in.Description, in.Status, in.Notes)
				if err != nil {
					return ToolResult{}, fmt.Errorf("log_benchmark: %w", err)
				}
				return jsonResult(b)
			},
		},
		&FuncTool{
			ToolName: "list_benchmarks",
			ToolDesc: "List recent benchmarks, newest first, optionally for one phase.",
			Schema:   `{"type":"object","properties":{"phase":{"type":"string"},"limit":{"type":"integer"}}}`,
			Handler: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
				var in struct {
					Phase string `json:"phase"`
					Limit int    `json:"limit"`
				}
				if err := decodeInput(raw, &in); err != nil {
					return ToolResult{}, err
				}
				list, err := bench.List(ctx, in.Phase, in.Limit)
				if err != nil {
					return ToolResult{}, fmt.Errorf("list_benchmarks: %w", err)
				}
				counts, err := bench.StatusCounts(ctx)
				if err != nil {
					return ToolResult{}, fmt.Errorf("list_benchmarks: %w", err)
				}
				return jsonResult(map[string]any{"benchmarks": list, "statusCounts": counts})
			},
		},
		&FuncTool{
			ToolName: "system_status",
			ToolDesc: "Check the health of the database, responders and language backend.",
			Schema:   `{"type":"object","properties":{}}`,
			Handler: func(ctx context.Context, _ json.RawMessage) (ToolResult, error) {
				if status == nil {
					return jsonResult(map[string]any{"status": "unknown"})
				}
				st, err := status(ctx)
				if err != nil {
					return ToolResult{}, fmt.Errorf("system_status: %w", err)
				}
				return jsonResult(st)
			},
		},
	)
	return NewAgent(Profile{
		Info: Info{
			ID:          "dev_pm",
			Label:       "Developer & Project Manager",
			Description: "Development benchmarks, failure logs, system status and project progress.",
			Examples: []string{
				"What's the benchmark status?",
				"Log that phase 7 is completed",
				"Run a system health check",
			},
		},
		Persona:     devPMPersona,
		MaxTokens:   2000,
		Temperature: 0.2,
	}, gen, tools, devPMSuggestions, log)
}

func devPMSuggestions(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	if strings.Contains(lower, "fail") || strings.Contains(lower, "error") {
		out = append(out, "Want me to log the root cause and solution?")
	}
	if strings.Contains(lower, "benchmark") || strings.Contains(lower, "phase") {
		out = append(out, "Show all benchmarks for this phase")
	}
	if len(out) == 0 {
		out = []string{"Run a system health check", "What's the benchmark status?"}
	}
	return out
}
