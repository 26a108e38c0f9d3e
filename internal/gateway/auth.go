package gateway

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/soyeahso/maestro/internal/config"
)

// Environment fallbacks for gateway credentials.
const (
	EnvGatewayToken    = "MAESTRO_GATEWAY_TOKEN"
	EnvGatewayPassword = "MAESTRO_GATEWAY_PASSWORD"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the effective gateway credentials.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth resolves credentials from config, then the environment.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, Password: cfg.Password}
	if auth.Token == "" {
		auth.Token = os.Getenv(EnvGatewayToken)
	}
	if auth.Password == "" {
		auth.Password = os.Getenv(EnvGatewayPassword)
	}
	if auth.Mode == "" {
		auth.Mode = "token"
		if auth.Password != "" {
			auth.Mode = "password"
		}
	}
	return auth
}

// Configured reports whether the active mode has a secret to check against.
func (a ResolvedAuth) Configured() bool {
	switch a.Mode {
	case "token":
		return a.Token != ""
	case "password":
		return a.Password != ""
	}
	return false
}

// Authorize checks client credentials against the server's.
func Authorize(server ResolvedAuth, client *ConnectAuth) AuthResult {
	if client == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	var want, got string
	switch server.Mode {
	case "token":
		want, got = server.Token, client.Token
	case "password":
		want, got = server.Password, client.Password
	default:
		return AuthResult{Reason: "unknown auth mode: " + server.Mode}
	}
	switch {
	case want == "":
		return AuthResult{Reason: "server " + server.Mode + " not configured"}
	case got == "":
		return AuthResult{Reason: server.Mode + " required"}
	case !safeEqual(got, want):
		return AuthResult{Reason: server.Mode + "_mismatch"}
	}
	return AuthResult{OK: true, Method: server.Mode}
}

// authorizeHTTP reads a bearer credential and checks it in the server's
// mode, so one secret serves both HTTP and WebSocket clients.
func authorizeHTTP(server ResolvedAuth, r *http.Request) AuthResult {
	h := r.Header.Get("Authorization")
	secret, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || secret == "" {
		return AuthResult{Reason: "bearer credential required"}
	}
	return Authorize(server, &ConnectAuth{Token: secret, Password: secret})
}

// safeEqual compares in constant time without leaking the secret length.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}
