// Package responder implements the domain responders and their registry.
package responder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
)

// maxSuggestions caps per-responder follow-up suggestions.
const maxSuggestions = 3

// Info describes a responder for listings.
type Info struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Examples    []string `json:"examples"`
}

// Profile configures an Agent.
type Profile struct {
	Info
	Persona       string
	MaxTokens     int
	Temperature   float64
	HistoryWindow int
}

// SuggestFunc proposes follow-ups for a finished answer.
type SuggestFunc func(text string) []string

// Agent is a model-backed responder with a tool loop.
type Agent struct {
	profile Profile
	gen     llm.Generator
	tools   *ToolRegistry
	suggest SuggestFunc
	log     *logging.Logger
}

// NewAgent creates an Agent. tools and suggest may be nil.
func NewAgent(p Profile, gen llm.Generator, tools *ToolRegistry, suggest SuggestFunc, log *logging.Logger) *Agent {
	if tools == nil {
		tools = NewToolRegistry()
	}
	return &Agent{
		profile: p,
		gen:     gen,
		tools:   tools,
		suggest: suggest,
		log:     log.Sub("responder." + p.ID),
	}
}

func (a *Agent) ID() string    { return a.profile.ID }
func (a *Agent) Label() string { return a.profile.Label }

// Describe returns the listing entry.
func (a *Agent) Describe() Info { return a.profile.Info }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// Respond runs the tool loop over the session history and the request text.
func (a *Agent) Respond(ctx context.Context, req domain.Request) (domain.Outcome, error) {
	start := time.Now()

	var messages []llm.Message
	cfg := PromptConfig{
		Label:   a.profile.Label,
		Persona: a.profile.Persona,
		Tools:   a.tools.Definitions(),
		Prior:   req.Prior,
	}
	if s := req.Session; s != nil {
		cfg.SkillLevel = s.SkillLevel
		cfg.Topic = s.Topic
		cfg.Activity = s.Activity
		for _, t := range s.RecentTurns(a.profile.HistoryWindow) {
			if t.Text == "" || (t.Role != domain.RoleUser && t.Role != domain.RoleAssistant) {
				continue
			}
			messages = append(messages, llm.Message{Role: t.Role, Content: t.Text})
		}
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Text})

	p := llm.Prompt{
		System:    BuildSystemPrompt(cfg),
		Messages:  messages,
		MaxTokens: a.profile.MaxTokens,
	}
	if a.profile.Temperature > 0 {
		t := a.profile.Temperature
		p.Temperature = &t
	}

	lr, err := runToolLoop(ctx, a.gen, p, a.tools, a.log)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("%s: %w: %w", a.profile.ID, domain.ErrResponderUnavailable, err)
	}

	out := domain.Outcome{
		Text:         lr.Text,
		Attribution:  domain.Attribution{Kind: domain.AttributionSingle, Responder: a.profile.ID},
		Data:         lr.Data,
		TopicHint:    lr.Topic,
		ActivityHint: lr.Activity,
		Meta: domain.OutcomeMeta{
			LatencyMs:  time.Since(start).Milliseconds(),
			TokensIn:   lr.Usage.InputTokens,
			TokensOut:  lr.Usage.OutputTokens,
			Confidence: estimateConfidence(lr.Text, lr.ToolsUsed),
		},
	}
	if a.suggest != nil {
		out.Suggestions = capSuggestions(a.suggest(lr.Text))
	}

	a.log.Info().
		Str("model", lr.Model).
		Strs("tools", lr.ToolsUsed).
		Int("tokensIn", lr.Usage.InputTokens).
		Int("tokensOut", lr.Usage.OutputTokens).
		Int64("durationMs", out.Meta.LatencyMs).
		Msg("responded")
	return out, nil
}

var hedgingPhrases = []string{
	"i'm not sure", "i think", "might be", "possibly",
	"i don't know", "not certain", "may not be accurate",
}

// estimateConfidence starts at 0.8, adds 0.1 when tools backed the answer
// and subtracts 0.15 once for hedging language.
func estimateConfidence(text string, toolsUsed []string) float64 {
	c := 0.8
	if len(toolsUsed) > 0 {
		c += 0.1
	}
	lower := strings.ToLower(text)
	for _, h := range hedgingPhrases {
		if strings.Contains(lower, h) {
			c -= 0.15
			break
		}
	}
	return max(0.1, min(1.0, round2(c)))
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func capSuggestions(s []string) []string {
	if len(s) > maxSuggestions {
		return s[:maxSuggestions]
	}
	return s
}
