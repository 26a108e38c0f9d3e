package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/soyeahso/maestro/internal/routing"
)

func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.health())
	})
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.Handle("POST /v1/chat", s.requireAuth(http.HandlerFunc(s.handleChat)))
	mux.Handle("GET /v1/responders", s.requireAuth(http.HandlerFunc(s.handleResponders)))
	mux.Handle("GET /v1/sessions/{id}", s.requireAuth(http.HandlerFunc(s.handleSession)))
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(r.RemoteAddr) {
			writeJSON(w, http.StatusTooManyRequests, errorBody(ErrorShape{Code: CodeUnauthorized, Message: "too many failed attempts"}))
			return
		}
		if res := authorizeHTTP(s.auth, r); !res.OK {
			s.limiter.recordFailure(r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Bearer realm="maestro"`)
			writeJSON(w, http.StatusUnauthorized, errorBody(ErrorShape{Code: CodeUnauthorized, Message: res.Reason}))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req routing.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(ErrorShape{Code: CodeInvalidRequest, Message: "request body too large"}))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody(ErrorShape{Code: CodeInvalidRequest, Message: "invalid JSON body"}))
		return
	}

	resp, err := s.send(r.Context(), req)
	if err != nil {
		s.log.Debug().Err(err).Str("requestId", RequestID(r.Context())).Msg("chat request failed")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResponders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"responders": s.catalog.Infos()})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.chat.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Summary())
}

func errorBody(shape ErrorShape) map[string]any {
	return map[string]any{"error": shape}
}

// writeError writes the client-safe rendition of err. Conflicts carry a
// Retry-After header in whole seconds.
func writeError(w http.ResponseWriter, err error) {
	status, shape := errorShape(err)
	if status == http.StatusConflict {
		w.Header().Set("Retry-After", retryAfterSeconds(shape.RetryAfter))
	}
	writeJSON(w, status, errorBody(shape))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
