package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/logging"
)

// Prompt is the provider-neutral input to Generate.
type Prompt struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

// Generation is generated text plus its cost and latency.
type Generation struct {
	Text    string
	Model   string
	Usage   Usage
	Latency time.Duration
}

// Generator is the language-generation backend contract.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (Generation, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, p Prompt) (Generation, error)

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) (Generation, error) { return f(ctx, p) }

// FailoverGenerator resolves models through a Registry, bounds every call
// with a timeout and falls back to other models on retryable errors.
type FailoverGenerator struct {
	registry  *Registry
	primary   string
	fallbacks []string
	timeout   time.Duration
	maxTokens int
	log       *logging.Logger
}

// GeneratorConfig configures a FailoverGenerator.
type GeneratorConfig struct {
	Primary   string
	Fallbacks []string
	Timeout   time.Duration // per attempt; 0 means no extra bound
	MaxTokens int
}

// NewGenerator creates a generator that tries the primary model first,
// then the fallbacks on retryable errors (401, 429, 5xx).
func NewGenerator(registry *Registry, cfg GeneratorConfig, log *logging.Logger) *FailoverGenerator {
	return &FailoverGenerator{
		registry:  registry,
		primary:   cfg.Primary,
		fallbacks: cfg.Fallbacks,
		timeout:   cfg.Timeout,
		maxTokens: cfg.MaxTokens,
		log:       log.Sub("llm.generator"),
	}
}

// Generate runs the prompt against the first model that succeeds.
func (g *FailoverGenerator) Generate(ctx context.Context, p Prompt) (Generation, error) {
	models := append([]string{g.primary}, g.fallbacks...)
	req := CompletionRequest{
		System:      p.System,
		Messages:    p.Messages,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.maxTokens
	}

	var lastErr error
	for _, model := range models {
		client, err := g.registry.Resolve(model)
		if err != nil {
			g.log.Debug().Str("model", model).Err(err).Msg("no provider for model, skipping")
			lastErr = err
			continue
		}

		req.Model = model
		start := time.Now()
		resp, err := g.complete(ctx, client, req)
		if err == nil {
			return Generation{
				Text:    resp.Content,
				Model:   resp.Model,
				Usage:   resp.Usage,
				Latency: time.Since(start),
			}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return Generation{}, fmt.Errorf("generate: %w", ctx.Err())
		}
		if isRetryable(err) {
			g.log.Warn().Str("model", model).Err(err).Msg("retryable error, trying next provider")
			continue
		}
		return Generation{}, err
	}

	if lastErr == nil {
		lastErr = errors.New("no models configured")
	}
	return Generation{}, lastErr
}

func (g *FailoverGenerator) complete(ctx context.Context, client Client, req CompletionRequest) (*CompletionResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return client.Complete(ctx, req)
}

// isRetryable checks if the error suggests trying another provider.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		switch provErr.Code {
		case 401, 403, 429, 500, 502, 503, 529:
			return true
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := err.Error()
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "capacity")
}
