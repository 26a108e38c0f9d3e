package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for maestro.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
	LLM         LLMConfig         `yaml:"llm,omitempty"`
	Routing     RoutingConfig     `yaml:"routing,omitempty"`
	Coordinator CoordinatorConfig `yaml:"coordinator,omitempty"`
	Query       QueryConfig       `yaml:"query,omitempty"`
	Session     SessionConfig     `yaml:"session,omitempty"`
	Database    DatabaseConfig    `yaml:"database,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Hooks       HooksConfig       `yaml:"hooks,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
	MaxMessageLen  int         `yaml:"maxMessageLen,omitempty"`
}

// GatewayAuth configures WebSocket authentication.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// LLMConfig selects the language-generation backend.
type LLMConfig struct {
	Provider  string   `yaml:"provider,omitempty"` // "claude" | "ollama" | "mock"
	APIKey    string   `yaml:"apiKey,omitempty"`
	Model     string   `yaml:"model,omitempty"`
	Endpoint  string   `yaml:"endpoint,omitempty"` // Ollama base URL
	Fallbacks []string `yaml:"fallbacks,omitempty"`
	MaxTokens int      `yaml:"maxTokens,omitempty"`
}

// RoutingConfig tunes the intent classifier.
type RoutingConfig struct {
	DefaultResponder   string   `yaml:"defaultResponder,omitempty"`
	FallbackThreshold  float64  `yaml:"fallbackThreshold,omitempty"`
	FallbackConfidence float64  `yaml:"fallbackConfidence,omitempty"`
	FallbackTimeout    Duration `yaml:"fallbackTimeout,omitempty"`
	DisableFallback    bool     `yaml:"disableFallback,omitempty"`
}

// CoordinatorConfig bounds dispatch.
type CoordinatorConfig struct {
	ResponderTimeout Duration `yaml:"responderTimeout,omitempty"`
	RequestTimeout   Duration `yaml:"requestTimeout,omitempty"`
	MaxResponders    int      `yaml:"maxResponders,omitempty"`
}

// QueryConfig bounds the query safety pipeline.
type QueryConfig struct {
	DefaultLimit   int      `yaml:"defaultLimit,omitempty"`
	MaxLimit       int      `yaml:"maxLimit,omitempty"`
	ExecTimeout    Duration `yaml:"execTimeout,omitempty"`
	GroundTimeout  Duration `yaml:"groundTimeout,omitempty"`
	MaxResultBytes int      `yaml:"maxResultBytes,omitempty"`
}

// SessionConfig defines session storage and serialization.
type SessionConfig struct {
	Store         string   `yaml:"store,omitempty"`    // "sqlite" | "memory"
	Conflict      string   `yaml:"conflict,omitempty"` // "queue" | "reject"
	RetryAfter    Duration `yaml:"retryAfter,omitempty"`
	HistoryWindow int      `yaml:"historyWindow,omitempty"`
}

// DatabaseConfig locates the SQLite file. Empty path means <data>/maestro.db.
type DatabaseConfig struct {
	Path string `yaml:"path,omitempty"`
	Seed bool   `yaml:"seed,omitempty"` // seed knowledge fixtures when tables are empty
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// HooksConfig maps lifecycle events to shell commands.
type HooksConfig struct {
	RequestReceived []HookEntry `yaml:"requestReceived,omitempty"`
	BeforeDispatch  []HookEntry `yaml:"beforeDispatch,omitempty"`
	AfterDispatch   []HookEntry `yaml:"afterDispatch,omitempty"`
	ResponderFailed []HookEntry `yaml:"responderFailed,omitempty"`
	QueryRejected   []HookEntry `yaml:"queryRejected,omitempty"`
	GatewayStart    []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop     []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// Duration is a time.Duration that reads and writes YAML strings like "30s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML accepts a duration string or a bare integer of milliseconds.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var ms int64
	if err := node.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return &ConfigError{Message: "invalid duration " + s}
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
