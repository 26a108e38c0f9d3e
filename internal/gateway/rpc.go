package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/soyeahso/maestro/internal/routing"
	"github.com/soyeahso/maestro/internal/version"
)

// RequestHandler serves one RPC method.
type RequestHandler func(rc *RequestContext)

// RequestContext is the state of one RPC request.
type RequestContext struct {
	Ctx    context.Context
	Client *Client
	Frame  Frame
	Server *Server
}

// Params decodes the request params into v. Empty params leave v as is.
func (rc *RequestContext) Params(v any) error {
	if len(rc.Frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, v)
}

func (rc *RequestContext) Respond(payload any) {
	if err := rc.Client.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Debug().Err(err).Str("connId", rc.Client.ConnID).Msg("respond failed")
	}
}

func (rc *RequestContext) RespondError(shape ErrorShape) {
	if err := rc.Client.RespondError(rc.Frame.ID, shape); err != nil {
		rc.Server.log.Debug().Err(err).Str("connId", rc.Client.ConnID).Msg("respond failed")
	}
}

// Fail maps err onto a client-safe error shape.
func (rc *RequestContext) Fail(err error) {
	_, shape := errorShape(err)
	rc.RespondError(shape)
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, h RequestHandler) {
	s.handlers[method] = h
}

func (s *Server) registerRPCHandlers() {
	s.Handle(MethodHealth, func(rc *RequestContext) {
		rc.Respond(s.health())
	})

	s.Handle(MethodChatSend, func(rc *RequestContext) {
		var req routing.Request
		if err := rc.Params(&req); err != nil {
			rc.RespondError(ErrorShape{Code: CodeInvalidParams, Message: "invalid chat.send params"})
			return
		}
		resp, err := s.send(rc.Ctx, req)
		if err != nil {
			rc.Fail(err)
			return
		}
		rc.Respond(resp)
	})

	s.Handle(MethodRespondersList, func(rc *RequestContext) {
		rc.Respond(map[string]any{"responders": s.catalog.Infos()})
	})

	s.Handle(MethodSessionGet, func(rc *RequestContext) {
		var p SessionParams
		if err := rc.Params(&p); err != nil || strings.TrimSpace(p.SessionID) == "" {
			rc.RespondError(ErrorShape{Code: CodeInvalidParams, Message: "sessionId is required"})
			return
		}
		sess, err := s.chat.Session(rc.Ctx, p.SessionID)
		if err != nil {
			rc.Fail(err)
			return
		}
		rc.Respond(sess.Summary())
	})
}

// send applies the gateway's message limit, which may be tighter than the
// router's, then hands the request to the router.
func (s *Server) send(ctx context.Context, req routing.Request) (routing.Response, error) {
	if limit := s.maxMessageLen(); utf8.RuneCountInString(strings.TrimSpace(req.Message)) > limit {
		return routing.Response{}, fmt.Errorf("%w: message longer than %d characters", routing.ErrInvalidRequest, limit)
	}
	return s.chat.Handle(ctx, req)
}

func (s *Server) health() map[string]any {
	return map[string]any{
		"status":     "ok",
		"version":    version.Version,
		"uptimeMs":   time.Since(s.startedAt).Milliseconds(),
		"clients":    s.clients.Count(),
		"responders": len(s.catalog.Infos()),
	}
}
