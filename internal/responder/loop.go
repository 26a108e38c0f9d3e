package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
)

// maxToolIterations limits how many tool call rounds one answer may take.
const maxToolIterations = 5

// toolCall is a parsed tool invocation from model output.
type toolCall struct {
	Tool  string          `json:"tool"`
	Input json.RawMessage `json:"input"`
}

// toolOutcome holds the output from executing a tool.
type toolOutcome struct {
	Tool   string
	Result ToolResult
	Err    error
}

// loopResult is the final text of a tool loop plus what the tools produced.
type loopResult struct {
	Text      string
	Model     string
	Usage     llm.Usage
	ToolsUsed []string
	Data      map[string]any
	Topic     *string
	Activity  *domain.Activity
}

// toolCallRe matches ```tool_call\n{...}\n``` blocks in model output.
var toolCallRe = regexp.MustCompile("(?s)```tool_call\\s*\n(\\{.*?\\})\n\\s*```")

// xmlFuncCallRe matches <function_calls>...</function_calls> blocks some
// models emit instead of the fenced form.
var xmlFuncCallRe = regexp.MustCompile(`(?s)<function_calls>.*?</function_calls>`)

var (
	whitespaceLineRe    = regexp.MustCompile(`(?m)^[ \t]+$`)
	blankLineCollapseRe = regexp.MustCompile(`\n{3,}`)
)

// runToolLoop calls the generator until it answers without tool calls or
// the iteration limit is reached.
func runToolLoop(ctx context.Context, gen llm.Generator, p llm.Prompt, tools *ToolRegistry, log *logging.Logger) (loopResult, error) {
	var res loopResult
	var last string

	for i := 0; i < maxToolIterations; i++ {
		g, err := gen.Generate(ctx, p)
		if err != nil {
			return res, fmt.Errorf("generate: %w", err)
		}
		res.Model = g.Model
		res.Usage.InputTokens += g.Usage.InputTokens
		res.Usage.OutputTokens += g.Usage.OutputTokens
		last = g.Text

		calls := parseToolCalls(g.Text)
		if len(calls) == 0 || tools == nil {
			break
		}

		log.Debug().Int("toolCalls", len(calls)).Int("round", i+1).Msg("executing tool calls")
		outs := executeToolCalls(ctx, tools, calls, log)
		for _, o := range outs {
			if o.Err != nil {
				continue
			}
			res.ToolsUsed = append(res.ToolsUsed, o.Tool)
			if o.Result.Data != nil {
				if res.Data == nil {
					res.Data = make(map[string]any)
				}
				res.Data[o.Tool] = o.Result.Data
			}
			if o.Result.Topic != nil {
				res.Topic = o.Result.Topic
			}
			if o.Result.Activity != nil {
				res.Activity = o.Result.Activity
			}
		}

		p.Messages = append(p.Messages,
			llm.Message{Role: llm.RoleAssistant, Content: g.Text},
			llm.Message{Role: llm.RoleUser, Content: formatToolResults(outs)},
		)
	}

	res.Text = stripToolCalls(last)
	return res, nil
}

// parseToolCalls extracts tool_call blocks from model output.
func parseToolCalls(text string) []toolCall {
	var calls []toolCall
	for _, m := range toolCallRe.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		var tc toolCall
		if err := json.Unmarshal([]byte(m[1]), &tc); err != nil {
			continue
		}
		if tc.Tool != "" {
			calls = append(calls, tc)
		}
	}
	return calls
}

func executeToolCalls(ctx context.Context, tools *ToolRegistry, calls []toolCall, log *logging.Logger) []toolOutcome {
	outs := make([]toolOutcome, 0, len(calls))
	for _, tc := range calls {
		tool, ok := tools.Get(tc.Tool)
		if !ok {
			outs = append(outs, toolOutcome{Tool: tc.Tool, Err: fmt.Errorf("unknown tool: %s", tc.Tool)})
			continue
		}
		r, err := tool.Execute(ctx, string(tc.Input))
		if err != nil {
			log.Warn().Err(err).Str("tool", tc.Tool).Msg("tool failed")
		}
		outs = append(outs, toolOutcome{Tool: tc.Tool, Result: r, Err: err})
	}
	return outs
}

// formatToolResults renders tool results for the next model turn.
func formatToolResults(outs []toolOutcome) string {
	var b strings.Builder
	b.WriteString("Tool execution results:\n\n")
	for _, o := range outs {
		fmt.Fprintf(&b, "### %s\n", o.Tool)
		if o.Err != nil {
			fmt.Fprintf(&b, "Error: %s\n", o.Err)
		} else {
			b.WriteString(o.Result.Output)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// stripToolCalls removes tool call blocks from model output, leaving the
// surrounding prose.
func stripToolCalls(text string) string {
	cleaned := toolCallRe.ReplaceAllString(text, "\n\n")
	cleaned = xmlFuncCallRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = whitespaceLineRe.ReplaceAllString(cleaned, "")
	cleaned = blankLineCollapseRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
