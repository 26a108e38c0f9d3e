package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Gateway.MaxMessageLen == 0 {
		cfg.Gateway.MaxMessageLen = 5000
	}

	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "claude"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 2048
	}

	if cfg.Routing.DefaultResponder == "" {
		cfg.Routing.DefaultResponder = "jazz_teacher"
	}
	if cfg.Routing.FallbackThreshold == 0 {
		cfg.Routing.FallbackThreshold = 0.4
	}
	if cfg.Routing.FallbackConfidence == 0 {
		cfg.Routing.FallbackConfidence = 0.5
	}
	if cfg.Routing.FallbackTimeout == 0 {
		cfg.Routing.FallbackTimeout = Duration(5 * time.Second)
	}

	if cfg.Coordinator.ResponderTimeout == 0 {
		cfg.Coordinator.ResponderTimeout = Duration(30 * time.Second)
	}
	if cfg.Coordinator.RequestTimeout == 0 {
		cfg.Coordinator.RequestTimeout = Duration(60 * time.Second)
	}
	if cfg.Coordinator.MaxResponders == 0 {
		cfg.Coordinator.MaxResponders = 3
	}

	if cfg.Query.DefaultLimit == 0 {
		cfg.Query.DefaultLimit = 50
	}
	if cfg.Query.MaxLimit == 0 {
		cfg.Query.MaxLimit = 200
	}
	if cfg.Query.ExecTimeout == 0 {
		cfg.Query.ExecTimeout = Duration(5 * time.Second)
	}
	if cfg.Query.GroundTimeout == 0 {
		cfg.Query.GroundTimeout = Duration(20 * time.Second)
	}
	if cfg.Query.MaxResultBytes == 0 {
		cfg.Query.MaxResultBytes = 256 * 1024
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "sqlite"
	}
	if cfg.Session.Conflict == "" {
		cfg.Session.Conflict = "queue"
	}
	if cfg.Session.RetryAfter == 0 {
		cfg.Session.RetryAfter = Duration(2 * time.Second)
	}
	if cfg.Session.HistoryWindow == 0 {
		cfg.Session.HistoryWindow = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}
