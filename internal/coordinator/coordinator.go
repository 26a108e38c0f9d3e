// Package coordinator runs routed requests through one or more responders,
// merges their outcomes and applies the resulting session changes.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/hooks"
	"github.com/soyeahso/maestro/internal/logging"
)

// Responders looks up registered responders. *responder.Registry
// satisfies it.
type Responders interface {
	Get(id string) (domain.Responder, bool)
	Index(id string) int
}

// Config bounds dispatch.
type Config struct {
	ResponderTimeout time.Duration
	RequestTimeout   time.Duration
	MaxResponders    int
}

// DefaultConfig returns 30s per responder, 60s per request and at most
// three responders.
func DefaultConfig() Config {
	return Config{
		ResponderTimeout: 30 * time.Second,
		RequestTimeout:   60 * time.Second,
		MaxResponders:    3,
	}
}

// ConfigFrom maps the coordinator config section, keeping defaults for
// unset values.
func ConfigFrom(c config.CoordinatorConfig) Config {
	out := DefaultConfig()
	if c.ResponderTimeout > 0 {
		out.ResponderTimeout = c.ResponderTimeout.Std()
	}
	if c.RequestTimeout > 0 {
		out.RequestTimeout = c.RequestTimeout.Std()
	}
	if c.MaxResponders > 0 {
		out.MaxResponders = c.MaxResponders
	}
	return out
}

// Coordinator dispatches routing decisions. It is safe for concurrent use
// across sessions; callers serialize requests within one session.
type Coordinator struct {
	responders Responders
	cfg        Config
	hooks      *hooks.Manager
	log        *logging.Logger
}

// New creates a coordinator. hooks may be nil.
func New(rs Responders, cfg Config, hm *hooks.Manager, log *logging.Logger) *Coordinator {
	if cfg.MaxResponders <= 0 {
		cfg.MaxResponders = DefaultConfig().MaxResponders
	}
	return &Coordinator{responders: rs, cfg: cfg, hooks: hm, log: log.Sub("coordinator")}
}

// unit is one responder invocation.
type unit struct {
	id      string
	label   string
	outcome domain.Outcome
	err     error
	ran     bool
}

// Pattern picks the dispatch pattern and the responders for a decision.
// Ids that are not registered are dropped; the result is empty only when
// none of the candidates is registered.
func (c *Coordinator) Pattern(d domain.RoutingDecision) (string, []string) {
	var ids []string
	for _, id := range d.Implicated(c.cfg.MaxResponders) {
		if _, ok := c.responders.Get(id); ok {
			ids = append(ids, id)
		}
	}
	if !d.MultiDomain || len(ids) < 2 {
		if len(ids) > 1 {
			ids = ids[:1]
		}
		return domain.PatternSingle, ids
	}
	slices.SortStableFunc(ids, func(a, b string) int {
		return c.responders.Index(a) - c.responders.Index(b)
	})
	if d.Dependent {
		return domain.PatternSequential, ids
	}
	return domain.PatternParallel, ids
}

// Dispatch runs the decision against sess and returns the aggregated
// outcome. Responder failures become degraded outcomes, never errors.
// Dispatch mutates sess: the turn pair, trail, topic, activity and counters.
func (c *Coordinator) Dispatch(ctx context.Context, d domain.RoutingDecision, text string, sess *domain.Session) domain.Outcome {
	start := time.Now()
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	pattern, ids := c.Pattern(d)
	snap := sess.Snapshot()

	var (
		out   domain.Outcome
		units []*unit
	)
	switch {
	case len(ids) == 0:
		out = apology(unknownText, domain.Attribution{Kind: domain.AttributionSingle, Responder: d.Top().Responder})
	case pattern == domain.PatternSingle:
		u := c.invoke(ctx, ids[0], domain.Request{Text: text, Session: snap})
		units = []*unit{u}
		out = single(u)
	case pattern == domain.PatternSequential:
		units = c.sequential(ctx, ids, text, snap)
		out = synthesize(units, d.Top().Responder)
	default:
		units = c.parallel(ctx, ids, text, snap)
		out = merge(units, d.Top().Responder)
	}

	out.Meta.Pattern = pattern
	out.Meta.LatencyMs = time.Since(start).Milliseconds()
	apply(sess, text, out, units)

	for _, u := range units {
		if u.ran && u.err != nil {
			c.hooks.Emit(ctx, hooks.EventResponderFailed, map[string]any{
				"sessionId": sess.ID,
				"responder": u.id,
				"kind":      domain.ErrorKind(u.err),
			})
		}
	}

	c.log.Info().
		Str("sessionId", sess.ID).
		Str("responder", d.Top().Responder).
		Str("pattern", pattern).
		Strs("responders", ids).
		Bool("degraded", out.Meta.Degraded).
		Int64("durationMs", out.Meta.LatencyMs).
		Msg("dispatched")
	return out
}

func (c *Coordinator) sequential(ctx context.Context, ids []string, text string, snap *domain.Session) []*unit {
	units := make([]*unit, 0, len(ids))
	var prior []domain.Outcome
	for _, id := range ids {
		u := c.invoke(ctx, id, domain.Request{Text: text, Session: snap, Prior: slices.Clone(prior)})
		units = append(units, u)
		if u.err != nil {
			break
		}
		prior = append(prior, u.outcome)
	}
	return units
}

func (c *Coordinator) parallel(ctx context.Context, ids []string, text string, snap *domain.Session) []*unit {
	units := make([]*unit, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		// Each branch gets its own copy so no two responders share memory.
		req := domain.Request{Text: text, Session: snap.Snapshot()}
		g.Go(func() error {
			units[i] = c.invoke(gctx, id, req)
			return nil
		})
	}
	_ = g.Wait()
	return units
}

// invoke calls one responder under its own timeout. A panic, error or
// deadline becomes ErrResponderUnavailable on the unit.
func (c *Coordinator) invoke(ctx context.Context, id string, req domain.Request) *unit {
	r, _ := c.responders.Get(id)
	u := &unit{id: id, label: r.Label(), ran: true}

	if c.cfg.ResponderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ResponderTimeout)
		defer cancel()
	}

	type result struct {
		out domain.Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		out, err := r.Respond(ctx, req)
		done <- result{out: out, err: err}
	}()

	start := time.Now()
	select {
	case res := <-done:
		u.outcome, u.err = res.out, res.err
	case <-ctx.Done():
		u.err = ctx.Err()
	}

	if u.err != nil {
		if !errors.Is(u.err, domain.ErrResponderUnavailable) {
			u.err = fmt.Errorf("%s: %w: %w", id, domain.ErrResponderUnavailable, u.err)
		}
		c.log.Warn().Err(u.err).
			Str("responder", id).
			Dur("after", time.Since(start)).
			Msg("responder failed")
	}
	return u
}
