// Package routing is the serialized entry point for chat requests: it
// takes the session slot, classifies, dispatches and persists.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/hooks"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/session"
)

// MaxMessageLen is the longest accepted message, in characters.
const MaxMessageLen = 5000

// ErrInvalidRequest marks requests rejected before any session work.
var ErrInvalidRequest = errors.New("invalid request")

// Classifier produces routing decisions.
type Classifier interface {
	Classify(ctx context.Context, text string, snap *domain.Session) domain.RoutingDecision
	Override(responder string) domain.RoutingDecision
}

// Dispatcher runs a decision and mutates the session with the result.
type Dispatcher interface {
	Dispatch(ctx context.Context, d domain.RoutingDecision, text string, sess *domain.Session) domain.Outcome
}

// Directory reports which responder ids exist.
type Directory interface {
	Has(id string) bool
}

// Request is one chat turn from any surface.
type Request struct {
	Message            string `json:"message"`
	SessionID          string `json:"sessionId,omitempty"`
	PreferredResponder string `json:"preferredResponder,omitempty"`
	SkillLevel         string `json:"skillLevel,omitempty"`
}

// Response is the aggregated answer plus the session state after the turn.
type Response struct {
	Outcome   domain.Outcome         `json:"outcome"`
	SessionID string                 `json:"sessionId"`
	Trail     []string               `json:"trail"`
	Routing   domain.RoutingDecision `json:"routing"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
}

// Router serializes requests per session.
type Router struct {
	classifier Classifier
	dispatcher Dispatcher
	directory  Directory
	store      session.Store
	locker     *session.Locker
	hooks      *hooks.Manager
	log        *logging.Logger
}

// Deps are the collaborators of a Router. Hooks may be nil.
type Deps struct {
	Classifier Classifier
	Dispatcher Dispatcher
	Directory  Directory
	Store      session.Store
	Locker     *session.Locker
	Hooks      *hooks.Manager
}

// NewRouter creates a router. A nil Locker queues conflicting requests.
func NewRouter(d Deps, log *logging.Logger) *Router {
	if d.Locker == nil {
		d.Locker = session.NewLocker(session.ModeQueue, 0)
	}
	return &Router{
		classifier: d.Classifier,
		dispatcher: d.Dispatcher,
		directory:  d.Directory,
		store:      d.Store,
		locker:     d.Locker,
		hooks:      d.Hooks,
		log:        log.Sub("routing"),
	}
}

func validSkill(s string) bool {
	switch s {
	case domain.SkillBeginner, domain.SkillIntermediate, domain.SkillAdvanced:
		return true
	}
	return false
}

func (r *Router) validate(req *Request) error {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLen {
		return fmt.Errorf("%w: message longer than %d characters", ErrInvalidRequest, MaxMessageLen)
	}
	if req.SkillLevel != "" && !validSkill(req.SkillLevel) {
		return fmt.Errorf("%w: unknown skill level %q", ErrInvalidRequest, req.SkillLevel)
	}
	if req.PreferredResponder != "" && !r.directory.Has(req.PreferredResponder) {
		return fmt.Errorf("%w: %w: %s", ErrInvalidRequest, domain.ErrUnknownResponder, req.PreferredResponder)
	}
	id, err := ResolveSessionID(req.SessionID)
	if err != nil {
		return err
	}
	req.SessionID = id
	return nil
}

// Handle runs one request. Errors are ErrInvalidRequest, a
// *domain.ConflictError in reject mode, context errors while queued, or
// session store failures. Responder failures are degraded outcomes.
func (r *Router) Handle(ctx context.Context, req Request) (Response, error) {
	if err := r.validate(&req); err != nil {
		return Response{}, err
	}
	start := time.Now()

	r.hooks.Emit(ctx, hooks.EventRequestReceived, map[string]any{
		"sessionId": req.SessionID,
		"message":   req.Message,
	})

	release, err := r.locker.Acquire(ctx, req.SessionID)
	if err != nil {
		r.log.Info().Err(err).Str("sessionId", req.SessionID).Msg("session busy")
		return Response{}, err
	}
	defer release()

	sess, err := r.load(ctx, req.SessionID)
	if err != nil {
		return Response{}, err
	}
	if req.SkillLevel != "" {
		sess.SkillLevel = req.SkillLevel
	}

	var d domain.RoutingDecision
	if req.PreferredResponder != "" {
		d = r.classifier.Override(req.PreferredResponder)
	} else {
		d = r.classifier.Classify(ctx, req.Message, sess.Snapshot())
	}
	if d.Ambiguous {
		r.log.Debug().Str("sessionId", sess.ID).Str("responder", d.Top().Responder).
			Msg("classification ambiguous")
	}

	r.hooks.Emit(ctx, hooks.EventBeforeDispatch, map[string]any{
		"sessionId": sess.ID,
		"responder": d.Top().Responder,
		"category":  d.Category,
		"source":    d.Source,
	})

	out := r.dispatcher.Dispatch(ctx, d, req.Message, sess)

	// The exchange happened; persist it even if the caller went away.
	if err := r.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		return Response{}, fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	r.hooks.EmitAsync(ctx, hooks.EventAfterDispatch, map[string]any{
		"sessionId":  sess.ID,
		"responder":  d.Top().Responder,
		"pattern":    out.Meta.Pattern,
		"degraded":   out.Meta.Degraded,
		"durationMs": time.Since(start).Milliseconds(),
	})

	r.log.Info().
		Str("sessionId", sess.ID).
		Str("responder", d.Top().Responder).
		Str("pattern", out.Meta.Pattern).
		Str("source", d.Source).
		Int64("durationMs", time.Since(start).Milliseconds()).
		Msg("request handled")

	return Response{
		Outcome:   out,
		SessionID: sess.ID,
		Trail:     append([]string(nil), sess.Trail...),
		Routing:   d,
		Metadata:  sess.Snapshot().Metadata,
	}, nil
}

func (r *Router) load(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := r.store.Get(ctx, id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.NewSession(id), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return sess, nil
}

// Session returns a snapshot of a stored session.
func (r *Router) Session(ctx context.Context, id string) (*domain.Session, error) {
	return r.store.Get(ctx, id)
}

// Hooks returns the router's hook manager, which may be nil.
func (r *Router) Hooks() *hooks.Manager { return r.hooks }
