package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/maestro/internal/config"
)

func TestSafeEqual(t *testing.T) {
	assert.True(t, safeEqual("secret", "secret"))
	assert.True(t, safeEqual("", ""))
	assert.False(t, safeEqual("secret", "wrong"))
	assert.False(t, safeEqual("short", "longer-string"))
	assert.False(t, safeEqual("secret", ""))
}

func TestResolveAuth(t *testing.T) {
	t.Setenv(EnvGatewayToken, "")
	t.Setenv(EnvGatewayPassword, "")

	auth := ResolveAuth(config.GatewayAuth{Mode: "token", Token: "abc"})
	assert.Equal(t, ResolvedAuth{Mode: "token", Token: "abc"}, auth)

	assert.Equal(t, "token", ResolveAuth(config.GatewayAuth{}).Mode)
	assert.Equal(t, "password", ResolveAuth(config.GatewayAuth{Password: "pw"}).Mode)
}

func TestResolveAuth_Env(t *testing.T) {
	t.Setenv(EnvGatewayToken, "env-token")
	t.Setenv(EnvGatewayPassword, "env-pw")

	auth := ResolveAuth(config.GatewayAuth{Mode: "token"})
	assert.Equal(t, "env-token", auth.Token)
	assert.Equal(t, "env-pw", auth.Password)

	auth = ResolveAuth(config.GatewayAuth{Mode: "token", Token: "cfg-token"})
	assert.Equal(t, "cfg-token", auth.Token, "config wins over env")
}

func TestConfigured(t *testing.T) {
	assert.True(t, ResolvedAuth{Mode: "token", Token: "x"}.Configured())
	assert.False(t, ResolvedAuth{Mode: "token", Password: "x"}.Configured())
	assert.True(t, ResolvedAuth{Mode: "password", Password: "x"}.Configured())
	assert.False(t, ResolvedAuth{Mode: "none"}.Configured())
}

func TestAuthorize(t *testing.T) {
	tokenAuth := ResolvedAuth{Mode: "token", Token: "tok"}
	pwAuth := ResolvedAuth{Mode: "password", Password: "pw"}

	tests := []struct {
		name   string
		server ResolvedAuth
		client *ConnectAuth
		ok     bool
		reason string
	}{
		{"token ok", tokenAuth, &ConnectAuth{Token: "tok"}, true, ""},
		{"token mismatch", tokenAuth, &ConnectAuth{Token: "nope"}, false, "token_mismatch"},
		{"token missing", tokenAuth, &ConnectAuth{Password: "tok"}, false, "token required"},
		{"token unconfigured", ResolvedAuth{Mode: "token"}, &ConnectAuth{Token: "tok"}, false, "server token not configured"},
		{"password ok", pwAuth, &ConnectAuth{Password: "pw"}, true, ""},
		{"password mismatch", pwAuth, &ConnectAuth{Password: "x"}, false, "password_mismatch"},
		{"password unconfigured", ResolvedAuth{Mode: "password"}, &ConnectAuth{Password: "pw"}, false, "server password not configured"},
		{"nil credentials", tokenAuth, nil, false, "no credentials provided"},
		{"unknown mode", ResolvedAuth{Mode: "oauth"}, &ConnectAuth{Token: "tok"}, false, "unknown auth mode: oauth"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Authorize(tt.server, tt.client)
			assert.Equal(t, tt.ok, res.OK)
			assert.Equal(t, tt.reason, res.Reason)
			if tt.ok {
				assert.Equal(t, tt.server.Mode, res.Method)
			}
		})
	}
}

func TestAuthorizeHTTP(t *testing.T) {
	server := ResolvedAuth{Mode: "password", Password: "pw"}

	r := httptest.NewRequest(http.MethodGet, "/v1/responders", nil)
	assert.False(t, authorizeHTTP(server, r).OK)

	r.Header.Set("Authorization", "Basic pw")
	assert.False(t, authorizeHTTP(server, r).OK)

	r.Header.Set("Authorization", "Bearer pw")
	assert.True(t, authorizeHTTP(server, r).OK)
}

func TestAuthLimiter(t *testing.T) {
	l := newAuthLimiter()
	assert.True(t, l.allow("192.168.1.1:12345"))

	for range authRateMaxFails - 1 {
		l.recordFailure("192.168.1.1:12345")
	}
	assert.True(t, l.allow("192.168.1.1:999"), "ports are ignored")

	l.recordFailure("192.168.1.1:1")
	assert.False(t, l.allow("192.168.1.1:12345"))
	assert.True(t, l.allow("192.168.1.2:12345"))

	for range authRateMaxFails {
		l.recordFailure("10.0.0.1")
	}
	assert.False(t, l.allow("10.0.0.1"))
}

func TestAuthLimiter_Expiry(t *testing.T) {
	l := newAuthLimiter()
	now := time.Now()
	l.now = func() time.Time { return now }

	for range authRateMaxFails {
		l.recordFailure("192.168.1.1:1")
	}
	assert.False(t, l.allow("192.168.1.1:1"))

	now = now.Add(authRateWindow + time.Second)
	l.sweep()
	assert.Empty(t, l.failures)
	assert.True(t, l.allow("192.168.1.1:1"))
}

func TestAuthLimiter_RunStopsWithContext(t *testing.T) {
	l := newAuthLimiter()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.run(ctx, time.Millisecond)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("limiter sweep did not stop")
	}
}

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestCheckWebSocketOrigin(t *testing.T) {
	assert.True(t, checkWebSocketOrigin(nil)(originRequest("")))
	assert.False(t, checkWebSocketOrigin(nil)(originRequest("http://evil.com")))
	assert.True(t, checkWebSocketOrigin([]string{"*"})(originRequest("http://anything.com")))

	check := checkWebSocketOrigin([]string{"http://one.com", "http://two.com"})
	assert.True(t, check(originRequest("http://one.com")))
	assert.True(t, check(originRequest("http://two.com")))
	assert.False(t, check(originRequest("http://three.com")))
}
