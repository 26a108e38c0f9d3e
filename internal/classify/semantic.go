package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/maestro/internal/llm"
)

// SemanticClassifier picks one label for text from a fixed label set.
type SemanticClassifier interface {
	Categorize(ctx context.Context, text string, labels []string) (string, error)
}

// CategorizerFunc adapts a function to SemanticClassifier.
type CategorizerFunc func(ctx context.Context, text string, labels []string) (string, error)

func (f CategorizerFunc) Categorize(ctx context.Context, text string, labels []string) (string, error) {
	return f(ctx, text, labels)
}

// LLMCategorizer asks a generator for a single category label.
type LLMCategorizer struct {
	gen llm.Generator
}

// NewLLMCategorizer creates a categorizer backed by gen.
func NewLLMCategorizer(gen llm.Generator) *LLMCategorizer {
	return &LLMCategorizer{gen: gen}
}

func (l *LLMCategorizer) Categorize(ctx context.Context, text string, labels []string) (string, error) {
	temp := 0.0
	g, err := l.gen.Generate(ctx, llm.Prompt{
		System: "You route questions for a guitar tutoring service. " +
			"Reply with exactly one label from this list and nothing else: " +
			strings.Join(labels, ", ") + ".",
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: text}},
		MaxTokens:   16,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("categorize: %w", err)
	}
	return parseLabel(g.Text, labels)
}

// parseLabel returns the label that appears first in reply.
func parseLabel(reply string, labels []string) (string, error) {
	r := strings.ToLower(reply)
	best, at := "", -1
	for _, l := range labels {
		if i := strings.Index(r, l); i >= 0 && (at < 0 || i < at) {
			best, at = l, i
		}
	}
	if best == "" {
		return "", fmt.Errorf("no label in reply %q", strings.TrimSpace(reply))
	}
	return best, nil
}
