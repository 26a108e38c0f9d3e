package responder

import (
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
)

// PromptConfig controls system prompt generation.
type PromptConfig struct {
	Label      string
	Persona    string
	Tools      []ToolDef
	SkillLevel string
	Topic      *string
	Activity   *domain.Activity
	Prior      []domain.Outcome
	Now        time.Time
}

// BuildSystemPrompt constructs the system prompt for one responder call.
func BuildSystemPrompt(cfg PromptConfig) string {
	var b strings.Builder

	b.WriteString(strings.TrimSpace(cfg.Persona))
	b.WriteString("\n\n")

	now := cfg.Now
	if now.IsZero() {
		now = time.Now()
	}
	b.WriteString("## Current Context\n")
	fmt.Fprintf(&b, "- Current date: %s\n", now.Format("2006-01-02"))
	level := cfg.SkillLevel
	if level == "" {
		level = domain.SkillIntermediate
	}
	fmt.Fprintf(&b, "- User skill level: %s\n", level)
	if cfg.Topic != nil && *cfg.Topic != "" {
		fmt.Fprintf(&b, "- Current topic: %s\n", *cfg.Topic)
	}
	if cfg.Activity != nil {
		fmt.Fprintf(&b, "- Active %s: %s\n", cfg.Activity.Kind, cfg.Activity.Ref)
	}

	if len(cfg.Prior) > 0 {
		b.WriteString("\n## Earlier Findings\n")
		b.WriteString("Other specialists already answered part of this request. Build on their findings:\n\n")
		for _, o := range cfg.Prior {
			who := o.Attribution.Responder
			if who == "" {
				who = "specialist"
			}
			fmt.Fprintf(&b, "### %s\n%s\n\n", who, strings.TrimSpace(o.Text))
		}
	}

	if len(cfg.Tools) > 0 {
		b.WriteString("\n## Available Tools\n\n")
		b.WriteString("You can call tools by outputting a fenced code block with the language tag `tool_call`:\n\n")
		b.WriteString("```tool_call\n{\"tool\": \"tool_name\", \"input\": {\"param\": \"value\"}}\n```\n\n")
		b.WriteString("After a tool is executed, the result will be provided. You may call several tools before giving your final answer.\n\n")
		for _, t := range cfg.Tools {
			fmt.Fprintf(&b, "### %s\n%s\n", t.Name, t.Description)
			if t.InputSchema != "" {
				fmt.Fprintf(&b, "Input schema: %s\n", t.InputSchema)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
