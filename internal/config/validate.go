package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// KnownResponders lists responder ids accepted in routing.defaultResponder.
var KnownResponders = []string{"luthier_historian", "jazz_teacher", "sql_expert", "dev_pm"}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password"})
	if cfg.Gateway.MaxMessageLen < 0 {
		add("gateway.maxMessageLen", "must not be negative")
	}

	// LLM
	oneOf("llm.provider", cfg.LLM.Provider, []string{"claude", "ollama", "mock"})
	if cfg.LLM.Provider == "claude" && cfg.LLM.APIKey == "" {
		add("llm.apiKey", "required when provider is claude")
	}
	if (cfg.LLM.Provider == "claude" || cfg.LLM.Provider == "ollama") && cfg.LLM.Model == "" {
		add("llm.model", "required when provider is %s", cfg.LLM.Provider)
	}

	// Routing
	oneOf("routing.defaultResponder", cfg.Routing.DefaultResponder, KnownResponders)
	if cfg.Routing.FallbackThreshold < 0 || cfg.Routing.FallbackThreshold > 1 {
		add("routing.fallbackThreshold", "must be within [0,1], got %v", cfg.Routing.FallbackThreshold)
	}
	if cfg.Routing.FallbackConfidence < 0 || cfg.Routing.FallbackConfidence > 1 {
		add("routing.fallbackConfidence", "must be within [0,1], got %v", cfg.Routing.FallbackConfidence)
	}

	// Coordinator
	if cfg.Coordinator.MaxResponders < 1 {
		add("coordinator.maxResponders", "must be at least 1, got %d", cfg.Coordinator.MaxResponders)
	}
	if cfg.Coordinator.ResponderTimeout < 0 || cfg.Coordinator.RequestTimeout < 0 {
		add("coordinator", "timeouts must not be negative")
	}
	if cfg.Coordinator.RequestTimeout > 0 && cfg.Coordinator.ResponderTimeout > cfg.Coordinator.RequestTimeout {
		add("coordinator.responderTimeout", "must not exceed requestTimeout")
	}

	// Query
	if cfg.Query.MaxLimit < 1 {
		add("query.maxLimit", "must be at least 1, got %d", cfg.Query.MaxLimit)
	}
	if cfg.Query.DefaultLimit < 1 || cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		add("query.defaultLimit", "must be within [1, maxLimit], got %d", cfg.Query.DefaultLimit)
	}

	// Session
	oneOf("session.store", cfg.Session.Store, []string{"sqlite", "memory"})
	oneOf("session.conflict", cfg.Session.Conflict, []string{"queue", "reject"})

	// Logging
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	oneOf("logging.level", cfg.Logging.Level, validLogLevels)
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	return issues
}
