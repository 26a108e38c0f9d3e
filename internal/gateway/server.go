// Package gateway serves the chat surface over HTTP and a WebSocket RPC
// protocol.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/hooks"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/responder"
	"github.com/soyeahso/maestro/internal/routing"
	"github.com/soyeahso/maestro/internal/version"
)

const (
	maxFrameBytes    = 1 << 20
	maxChatBodyBytes = 64 << 10
	handshakeTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
	limiterSweep     = time.Minute
)

// Chat is the request surface the gateway exposes.
type Chat interface {
	Handle(ctx context.Context, req routing.Request) (routing.Response, error)
	Session(ctx context.Context, id string) (*domain.Session, error)
}

// Catalog lists the available responders.
type Catalog interface {
	Infos() []responder.Info
}

// Server is the maestro HTTP + WebSocket gateway.
type Server struct {
	cfg      config.GatewayConfig
	auth     ResolvedAuth
	chat     Chat
	catalog  Catalog
	hooks    *hooks.Manager
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	limiter  *authLimiter
	upgrader websocket.Upgrader

	startedAt  time.Time
	httpServer *http.Server
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for gateway lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// New creates a gateway server.
func New(cfg config.GatewayConfig, chat Chat, catalog Catalog, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      ResolveAuth(cfg.Auth),
		chat:      chat,
		catalog:   catalog,
		log:       log.Sub("gateway"),
		clients:   NewClientRegistry(log.Sub("clients")),
		handlers:  make(map[string]RequestHandler),
		limiter:   newAuthLimiter(),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRPCHandlers()
	return s
}

// Methods returns the registered RPC methods, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	slices.Sort(methods)
	return methods
}

// Handler returns the full HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// Start serves until ctx is cancelled, then shuts down and returns.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.startedAt = time.Now()

	if !s.auth.Configured() {
		s.log.Warn().Str("mode", s.auth.Mode).Msg("no gateway credential configured; all clients will be refused")
	}
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("auth", s.auth.Mode).
		Strs("methods", s.Methods()).
		Msg("gateway listening")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": ln.Addr().String()})

	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go s.limiter.run(limiterCtx, limiterSweep)

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.clients.CloseAll()
	err = s.httpServer.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	s.hooks.Emit(shutdownCtx, hooks.EventGatewayStop, nil)
	return err
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.limiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()
	s.readLoop(r.Context(), client)
}

// handshake sends a challenge, reads the connect request and answers
// HelloOK when the credentials check out.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{"ts": time.Now().UnixMilli()}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("send challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("read connect: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != MethodConnect {
		refuse(conn, frame.ID, CodeProtocolError, "expected connect request")
		return nil, fmt.Errorf("expected connect, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		refuse(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parse connect params: %w", err)
	}
	if params.MaxProtocol != 0 && params.MaxProtocol < ProtocolVersion {
		refuse(conn, frame.ID, CodeProtocolError, "unsupported protocol version")
		return nil, fmt.Errorf("client protocol %d..%d unsupported", params.MinProtocol, params.MaxProtocol)
	}

	auth := Authorize(s.auth, params.Auth)
	if !auth.OK {
		refuse(conn, frame.ID, CodeUnauthorized, auth.Reason)
		return nil, fmt.Errorf("auth failed: %s", auth.Reason)
	}
	conn.SetReadDeadline(time.Time{})

	client := NewClient(conn, params.Client, auth)
	hello, err := NewResponse(frame.ID, HelloOK{
		Protocol: ProtocolVersion,
		Server:   ServerInfo{Version: version.Version, Commit: version.Short(), ConnID: client.ConnID},
		Methods:  s.Methods(),
		Policy:   ServerPolicy{MaxPayload: maxFrameBytes, MaxMessageLen: s.maxMessageLen()},
	})
	if err != nil {
		return nil, err
	}
	if err := client.Send(hello); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("authMethod", auth.Method).
		Msg("client authenticated")
	return client, nil
}

func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read ended")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		s.dispatch(ctx, client, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, ErrorShape{Code: CodeMethodNotFound, Message: "unknown method: " + frame.Method})
		return
	}
	rc := &RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s}
	defer func() {
		if p := recover(); p != nil {
			s.log.Error().Interface("panic", p).Str("method", frame.Method).Msg("rpc handler panic")
			rc.RespondError(ErrorShape{Code: CodeInternal, Message: "internal error"})
		}
	}()
	handler(rc)
}

// refuse answers the connect request with an error and closes politely.
func refuse(conn *websocket.Conn, id, code, message string) {
	conn.WriteJSON(NewErrorResponse(id, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}

func (s *Server) maxMessageLen() int {
	if s.cfg.MaxMessageLen > 0 {
		return min(s.cfg.MaxMessageLen, routing.MaxMessageLen)
	}
	return routing.MaxMessageLen
}
