package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/hooks"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/responder"
	"github.com/soyeahso/maestro/internal/routing"
)

const testToken = "test-token-123"

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

type fakeChat struct {
	mu       sync.Mutex
	reqs     []routing.Request
	err      error
	sessions map[string]*domain.Session
}

func (f *fakeChat) Handle(_ context.Context, req routing.Request) (routing.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return routing.Response{}, f.err
	}
	id := req.SessionID
	if id == "" {
		id = "generated"
	}
	return routing.Response{
		Outcome:   domain.Outcome{Text: "echo: " + req.Message},
		SessionID: id,
		Trail:     []string{"jazz_teacher"},
	}, nil
}

func (f *fakeChat) Session(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		return s.Snapshot(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

type fakeCatalog []responder.Info

func (c fakeCatalog) Infos() []responder.Info { return c }

type harness struct {
	srv  *Server
	ts   *httptest.Server
	chat *fakeChat
}

func newHarness(t *testing.T, edit ...func(*config.GatewayConfig)) *harness {
	t.Helper()
	cfg := config.Defaults().Gateway
	cfg.Auth = config.GatewayAuth{Mode: "token", Token: testToken}
	for _, e := range edit {
		e(&cfg)
	}

	sess := domain.NewSession("s1")
	sess.AppendTurn(domain.Turn{Role: domain.RoleUser, Text: "hi"})
	sess.RecordRouting("jazz_teacher")
	chat := &fakeChat{sessions: map[string]*domain.Session{"s1": sess}}
	catalog := fakeCatalog{
		{ID: "jazz_teacher", Label: "Jazz Teacher", Examples: []string{"What is a ii-V-I?"}},
		{ID: "luthier_historian", Label: "Luthier Historian"},
	}

	srv := New(cfg, chat, catalog, testLog())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{srv: srv, ts: ts, chat: chat}
}

func (h *harness) do(t *testing.T, method, path, body string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorShape {
	t.Helper()
	var body struct{ Error ErrorShape }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(2), body["responders"])
}

func TestNotFoundEndpoint(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/nonexistent", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTPChat_RequiresAuth(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/v1/chat", `{"message":"hi"}`, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))
	assert.Equal(t, CodeUnauthorized, decodeError(t, resp).Code)
	assert.Zero(t, h.chat.calls())
}

func TestHTTPChat(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodPost, "/v1/chat",
		`{"message":"what is a tritone sub?","sessionId":"abc","skillLevel":"beginner"}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var out routing.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "echo: what is a tritone sub?", out.Outcome.Text)
	assert.Equal(t, "abc", out.SessionID)

	require.Equal(t, 1, h.chat.calls())
	assert.Equal(t, domain.SkillBeginner, h.chat.reqs[0].SkillLevel)
}

func TestHTTPChat_BadBodies(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodPost, "/v1/chat", `{"message":`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	big := `{"message":"` + strings.Repeat("a", maxChatBodyBytes) + `"}`
	resp = h.do(t, http.MethodPost, "/v1/chat", big, true)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Zero(t, h.chat.calls())
}

func TestHTTPChat_GatewayMessageLimit(t *testing.T) {
	h := newHarness(t, func(c *config.GatewayConfig) { c.MaxMessageLen = 10 })

	resp := h.do(t, http.MethodPost, "/v1/chat", `{"message":"0123456789a"}`, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, CodeInvalidRequest, decodeError(t, resp).Code)
	assert.Zero(t, h.chat.calls())

	resp = h.do(t, http.MethodPost, "/v1/chat", `{"message":"  0123456789  "}`, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "surrounding space does not count")
}

func TestHTTPChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"invalid", fmt.Errorf("%w: message is required", routing.ErrInvalidRequest), http.StatusBadRequest, CodeInvalidRequest, ""},
		{"conflict", &domain.ConflictError{SessionID: "s1", RetryAfter: 1500 * time.Millisecond}, http.StatusConflict, CodeSessionConflict, "2"},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout, CodeTimeout, ""},
		{"internal", errors.New("save session s1: disk I/O error at /var/lib/maestro"), http.StatusInternalServerError, CodeInternal, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.chat.err = tt.err

			resp := h.do(t, http.MethodPost, "/v1/chat", `{"message":"hi"}`, true)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.retryAfter, resp.Header.Get("Retry-After"))

			shape := decodeError(t, resp)
			assert.Equal(t, tt.code, shape.Code)
			assert.NotContains(t, shape.Message, "/var/lib")
		})
	}
}

func TestHTTPResponders(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, http.MethodGet, "/v1/responders", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct{ Responders []responder.Info }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Responders, 2)
	assert.Equal(t, "jazz_teacher", body.Responders[0].ID)
	assert.Equal(t, []string{"What is a ii-V-I?"}, body.Responders[0].Examples)
}

func TestHTTPSession(t *testing.T) {
	h := newHarness(t)

	resp := h.do(t, http.MethodGet, "/v1/sessions/s1", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sum domain.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	assert.Equal(t, "s1", sum.ID)
	assert.Equal(t, 1, sum.Turns)
	assert.Equal(t, []string{"jazz_teacher"}, sum.RecentResponders)

	resp = h.do(t, http.MethodGet, "/v1/sessions/missing", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, CodeNotFound, decodeError(t, resp).Code)
}

func TestHTTPRateLimitsFailedAuth(t *testing.T) {
	h := newHarness(t)
	for range authRateMaxFails {
		h.do(t, http.MethodGet, "/v1/responders", "", false)
	}
	resp := h.do(t, http.MethodGet, "/v1/responders", "", true)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

// --- WebSocket ---

func dial(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, FrameTypeEvent, challenge.Type)
	require.Equal(t, EventChallenge, challenge.Event)
	return conn
}

func connect(t *testing.T, conn *websocket.Conn, token string) Frame {
	t.Helper()
	req, err := NewRequest("auth-req", MethodConnect, ConnectParams{
		MinProtocol: 1, MaxProtocol: 1,
		Client: ClientInfo{ID: "test-client", Version: "1.0.0", Platform: "linux"},
		Auth:   &ConnectAuth{Token: token},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	return resp
}

func authenticated(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	conn := dial(t, h)
	hello := connect(t, conn, testToken)
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK)
	return conn
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, id, resp.ID)
	return resp
}

func TestWebSocketHandshake(t *testing.T) {
	h := newHarness(t)
	conn := dial(t, h)
	resp := connect(t, conn, testToken)

	assert.Equal(t, FrameTypeResponse, resp.Type)
	assert.Equal(t, "auth-req", resp.ID)
	require.NotNil(t, resp.OK)
	assert.True(t, *resp.OK)

	var hello HelloOK
	require.NoError(t, json.Unmarshal(resp.Payload, &hello))
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, []string{MethodChatSend, MethodHealth, MethodRespondersList, MethodSessionGet}, hello.Methods)
	assert.Equal(t, 5000, hello.Policy.MaxMessageLen)

	assert.Eventually(t, func() bool { return h.srv.clients.Count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketHandshakeWrongToken(t *testing.T) {
	h := newHarness(t)
	conn := dial(t, h)
	resp := connect(t, conn, "wrong-token")

	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)
	assert.Eventually(t, func() bool {
		h.srv.limiter.mu.Lock()
		defer h.srv.limiter.mu.Unlock()
		return len(h.srv.limiter.failures["127.0.0.1"]) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWebSocketHandshakeExpectsConnect(t *testing.T) {
	h := newHarness(t)
	conn := dial(t, h)
	req, _ := NewRequest("r1", MethodHealth, nil)
	require.NoError(t, conn.WriteJSON(req))

	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeProtocolError, resp.Error.Code)
}

func TestWebSocketRPCHealth(t *testing.T) {
	h := newHarness(t)
	conn := authenticated(t, h)

	resp := call(t, conn, "h1", MethodHealth, nil)
	require.True(t, *resp.OK)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Payload, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["clients"])
}

func TestWebSocketRPCUnknownMethod(t *testing.T) {
	h := newHarness(t)
	conn := authenticated(t, h)

	resp := call(t, conn, "u1", "config.get", nil)
	require.False(t, *resp.OK)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestChatSendRPC(t *testing.T) {
	h := newHarness(t)
	conn := authenticated(t, h)

	resp := call(t, conn, "c1", MethodChatSend, routing.Request{Message: "hello", SessionID: "s9"})
	require.True(t, *resp.OK, "error: %+v", resp.Error)

	var out routing.Response
	require.NoError(t, json.Unmarshal(resp.Payload, &out))
	assert.Equal(t, "echo: hello", out.Outcome.Text)
	assert.Equal(t, "s9", out.SessionID)
}

func TestChatSendRPC_Conflict(t *testing.T) {
	h := newHarness(t)
	h.chat.err = fmt.Errorf("acquire: %w", &domain.ConflictError{SessionID: "s1", RetryAfter: 2 * time.Second})
	conn := authenticated(t, h)

	resp := call(t, conn, "c1", MethodChatSend, routing.Request{Message: "hello", SessionID: "s1"})
	require.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeSessionConflict, resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
	assert.Equal(t, int64(2000), resp.Error.RetryAfter)
}

func TestChatSendRPC_HidesInternalErrors(t *testing.T) {
	h := newHarness(t)
	h.chat.err = errors.New("load session s1: sqlite: database is locked")
	conn := authenticated(t, h)

	resp := call(t, conn, "c1", MethodChatSend, routing.Request{Message: "hello"})
	require.False(t, *resp.OK)
	assert.Equal(t, CodeInternal, resp.Error.Code)
	assert.Equal(t, "internal error", resp.Error.Message)
}

func TestChatSendRPC_BadParams(t *testing.T) {
	h := newHarness(t)
	conn := authenticated(t, h)

	resp := call(t, conn, "c1", MethodChatSend, []int{1, 2})
	require.False(t, *resp.OK)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
	assert.Zero(t, h.chat.calls())
}

func TestRespondersListRPC(t *testing.T) {
	h := newHarness(t)
	conn := authenticated(t, h)

	resp := call(t, conn, "r1", MethodRespondersList, nil)
	require.True(t, *resp.OK)
	var body struct{ Responders []responder.Info }
	require.NoError(t, json.Unmarshal(resp.Payload, &body))
	assert.Len(t, body.Responders, 2)
}

func TestSessionGetRPC(t *testing.T) {
	h := newHarness(t)
	conn := authenticated(t, h)

	resp := call(t, conn, "g1", MethodSessionGet, SessionParams{SessionID: "s1"})
	require.True(t, *resp.OK)
	var sum domain.Summary
	require.NoError(t, json.Unmarshal(resp.Payload, &sum))
	assert.Equal(t, "s1", sum.ID)

	resp = call(t, conn, "g2", MethodSessionGet, SessionParams{SessionID: "nope"})
	require.False(t, *resp.OK)
	assert.Equal(t, CodeNotFound, resp.Error.Code)

	resp = call(t, conn, "g3", MethodSessionGet, nil)
	require.False(t, *resp.OK)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestServerStart(t *testing.T) {
	cfg := config.Defaults().Gateway
	cfg.Port = 0
	cfg.Auth.Token = testToken

	hm := hooks.NewManager(testLog())
	started := make(chan string, 1)
	stopped := make(chan struct{}, 1)
	hm.On(hooks.EventGatewayStart, "test", func(_ context.Context, p hooks.Payload) error {
		started <- p.Data["addr"].(string)
		return nil
	})
	hm.On(hooks.EventGatewayStop, "test", func(context.Context, hooks.Payload) error {
		stopped <- struct{}{}
		return nil
	})

	srv := New(cfg, &fakeChat{}, fakeCatalog{}, testLog(), WithHooks(hm))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	var addr string
	select {
	case addr = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not start")
	}

	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://" + addr + "/health")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-errCh)
	select {
	case <-stopped:
	default:
		t.Fatal("gateway_stop not emitted")
	}
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		bind, host string
		port       int
		want       string
	}{
		{"loopback", "", 18790, "127.0.0.1:18790"},
		{"lan", "", 9999, "0.0.0.0:9999"},
		{"auto", "", 8080, "0.0.0.0:8080"},
		{"custom", "", 3000, "0.0.0.0:3000"},
		{"custom", "10.0.0.1", 3000, "10.0.0.1:3000"},
		{"custom", "::1", 3000, "[::1]:3000"},
		{"whatever", "", 5000, "127.0.0.1:5000"},
		{"", "", 5000, "127.0.0.1:5000"},
	}
	for _, tt := range tests {
		cfg := config.GatewayConfig{Bind: tt.bind, Port: tt.port, CustomBindHost: tt.host}
		assert.Equal(t, tt.want, resolveBindAddr(cfg), "bind=%q host=%q", tt.bind, tt.host)
	}
}

func TestClientRegistry(t *testing.T) {
	reg := NewClientRegistry(testLog())
	reg.Add(&Client{ConnID: "conn-1", Info: ClientInfo{ID: "client-1"}})
	reg.Add(&Client{ConnID: "conn-2", closed: true})
	assert.Equal(t, 2, reg.Count())

	got, ok := reg.Get("conn-1")
	require.True(t, ok)
	assert.Equal(t, "client-1", got.Info.ID)

	reg.Remove("conn-1")
	reg.Remove("nonexistent")
	_, ok = reg.Get("conn-1")
	assert.False(t, ok)

	reg.CloseAll()
	assert.Zero(t, reg.Count())
	assert.ErrorIs(t, (&Client{closed: true}).Send(Frame{}), ErrClientClosed)
}

func TestFrames(t *testing.T) {
	req, err := NewRequest("r1", MethodChatSend, map[string]string{"message": "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"req","id":"r1","method":"chat.send","params":{"message":"hi"}}`, string(mustJSON(t, req)))

	res, err := NewResponse("r1", map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"res","id":"r1","ok":true,"payload":{"n":1}}`, string(mustJSON(t, res)))

	fail := NewErrorResponse("r1", ErrorShape{Code: CodeSessionConflict, Message: "busy", Retryable: true, RetryAfter: 2000})
	assert.JSONEq(t, `{"type":"res","id":"r1","ok":false,"error":{"code":"session_conflict","message":"busy","retryable":true,"retryAfterMs":2000}}`,
		string(mustJSON(t, fail)))

	ev, err := NewEvent(EventChallenge, nil, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"event","event":"connect.challenge","payload":null}`, string(mustJSON(t, ev)))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(v))
	return buf.Bytes()
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, "1", retryAfterSeconds(0))
	assert.Equal(t, "1", retryAfterSeconds(1000))
	assert.Equal(t, "2", retryAfterSeconds(1001))
}
