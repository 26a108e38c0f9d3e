package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.LLM.APIKey = "sk-test"
	cfg.LLM.Model = "claude-sonnet"
	return cfg
}

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidateDefaultsWithCredentials(t *testing.T) {
	cfg := validConfig()
	assert.Empty(t, Validate(&cfg))
}

func TestValidateMockProviderNeedsNothing(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Provider = "mock"
	assert.Empty(t, Validate(&cfg))
}

func TestValidateIssues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"bad auth mode", func(c *Config) { c.Gateway.Auth.Mode = "oauth" }, "gateway.auth.mode"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "gemini" }, "llm.provider"},
		{"claude without key", func(c *Config) { c.LLM.APIKey = "" }, "llm.apiKey"},
		{"ollama without model", func(c *Config) { c.LLM.Provider = "ollama"; c.LLM.Model = "" }, "llm.model"},
		{"unknown default responder", func(c *Config) { c.Routing.DefaultResponder = "poet" }, "routing.defaultResponder"},
		{"threshold above one", func(c *Config) { c.Routing.FallbackThreshold = 1.5 }, "routing.fallbackThreshold"},
		{"zero max responders", func(c *Config) { c.Coordinator.MaxResponders = 0 }, "coordinator.maxResponders"},
		{"responder timeout over request", func(c *Config) {
			c.Coordinator.ResponderTimeout = Duration(2 * time.Minute)
		}, "coordinator.responderTimeout"},
		{"default limit above max", func(c *Config) { c.Query.DefaultLimit = 500 }, "query.defaultLimit"},
		{"bad store", func(c *Config) { c.Session.Store = "redis" }, "session.store"},
		{"bad conflict", func(c *Config) { c.Session.Conflict = "merge" }, "session.conflict"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad console style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Contains(t, issuePaths(Validate(&cfg)), tt.path)
		})
	}
}

func TestValidationIssueString(t *testing.T) {
	i := ValidationIssue{Path: "query.maxLimit", Message: "must be at least 1"}
	assert.Equal(t, "query.maxLimit: must be at least 1", i.String())
}
