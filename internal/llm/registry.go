package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/logging"
)

// ProviderError is returned when an LLM provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.)
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Registry manages LLM provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name to a provider, e.g. Alias("sonnet", "claude").
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewRegistryFromConfig builds a Registry for the configured provider.
// The "mock" provider echoes a canned reply and needs no credentials.
func NewRegistryFromConfig(cfg config.LLMConfig, log *logging.Logger) *Registry {
	reg := NewRegistry(log)

	switch cfg.Provider {
	case "claude":
		if cfg.APIKey != "" && cfg.Model != "" {
			reg.Register("claude", NewClaudeAPIClient(cfg.APIKey, cfg.Model))
			reg.SetFallback("claude")
			for _, alias := range []string{"sonnet", "opus", "haiku"} {
				reg.Alias(alias, "claude")
			}
		}
	case "ollama":
		if cfg.Model != "" {
			reg.Register("ollama", NewOllamaAPIClient(cfg.Endpoint, cfg.Model))
			reg.SetFallback("ollama")
			for _, alias := range []string{"llama3", "mistral"} {
				reg.Alias(alias, "ollama")
			}
		}
	case "mock":
		reg.Register("mock", &MockClient{ProviderName: "mock"})
		reg.SetFallback("mock")
	}

	if len(reg.List()) == 0 {
		log.Warn().Str("provider", cfg.Provider).Msg("no LLM provider could be configured")
	}
	return reg
}
