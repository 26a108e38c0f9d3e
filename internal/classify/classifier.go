// Package classify maps request text to a ranked routing decision.
package classify

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/config"
	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/logging"
)

// Config tunes a Classifier.
type Config struct {
	Rules      []Rule
	Entities   []EntityOverride
	Responders []string // declaration order, used for tie-breaks
	Default    string

	FallbackThreshold  float64
	FallbackConfidence float64
	OverrideConfidence float64
	FallbackTimeout    time.Duration
}

// DefaultConfig returns the built-in rule table with default thresholds.
func DefaultConfig() Config {
	return Config{
		Rules:              DefaultRules(),
		Entities:           DefaultEntities(),
		Responders:         DefaultResponders(),
		Default:            JazzTeacher,
		FallbackThreshold:  0.4,
		FallbackConfidence: 0.5,
		OverrideConfidence: 0.75,
		FallbackTimeout:    5 * time.Second,
	}
}

// ConfigFromRouting applies routing settings on top of DefaultConfig.
func ConfigFromRouting(rc config.RoutingConfig) Config {
	c := DefaultConfig()
	if rc.DefaultResponder != "" {
		c.Default = rc.DefaultResponder
	}
	if rc.FallbackThreshold > 0 {
		c.FallbackThreshold = rc.FallbackThreshold
	}
	if rc.FallbackConfidence > 0 {
		c.FallbackConfidence = rc.FallbackConfidence
	}
	if rc.FallbackTimeout > 0 {
		c.FallbackTimeout = rc.FallbackTimeout.Std()
	}
	return c
}

// Classifier is safe for concurrent use.
type Classifier struct {
	cfg      Config
	entities []compiledEntity
	order    map[string]int
	fallback SemanticClassifier
	log      *logging.Logger
}

// New creates a classifier. A nil fallback disables the semantic tier.
func New(cfg Config, fallback SemanticClassifier, log *logging.Logger) *Classifier {
	c := &Classifier{
		cfg:      cfg,
		order:    make(map[string]int, len(cfg.Responders)),
		fallback: fallback,
		log:      log.Sub("classify"),
	}
	for i, id := range cfg.Responders {
		c.order[id] = i
	}
	for _, e := range cfg.Entities {
		c.entities = append(c.entities, compileEntity(e))
	}
	return c
}

// Default returns the default responder id.
func (c *Classifier) Default() string { return c.cfg.Default }

type tally struct {
	id       string
	score    float64
	priority int
	category string
	hits     int
}

// Classify ranks responders for text. It never fails: a low-confidence
// result that the fallback tier could not improve is marked Ambiguous.
func (c *Classifier) Classify(ctx context.Context, text string, snap *domain.Session) domain.RoutingDecision {
	if strings.TrimSpace(text) == "" {
		return domain.RoutingDecision{
			Candidates: []domain.Candidate{{Responder: c.cfg.Default}},
			Category:   domain.CategoryGeneral,
			Source:     domain.SourceDeterministic,
			Ambiguous:  true,
			Reasoning:  "empty request",
		}
	}

	tallies := map[string]*tally{}
	get := func(id string) *tally {
		t, ok := tallies[id]
		if !ok {
			t = &tally{id: id, priority: math.MaxInt}
			tallies[id] = t
		}
		return t
	}

	for _, r := range c.cfg.Rules {
		n := 0
		for _, re := range r.Patterns {
			if re.MatchString(text) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		t := get(r.Responder)
		t.score += float64(n) * r.Weight
		t.hits += n
		if r.Priority < t.priority {
			t.priority = r.Priority
			t.category = r.Category
		}
	}

	var forced, entity string
	for _, e := range c.entities {
		if name, ok := e.match(text); ok {
			get(e.Responder).score += e.Weight
			forced, entity = e.Responder, name
			break
		}
	}

	ranked := make([]*tally, 0, len(tallies))
	for _, t := range tallies {
		ranked = append(ranked, t)
	}
	slices.SortFunc(ranked, func(a, b *tally) int {
		switch {
		case a.score != b.score:
			if a.score > b.score {
				return -1
			}
			return 1
		case a.priority != b.priority:
			if a.priority < b.priority {
				return -1
			}
			return 1
		case c.rank(a.id) != c.rank(b.id):
			return c.rank(a.id) - c.rank(b.id)
		default:
			return strings.Compare(a.id, b.id)
		}
	})
	if forced != "" {
		i := slices.IndexFunc(ranked, func(t *tally) bool { return t.id == forced })
		if i > 0 {
			f := ranked[i]
			copy(ranked[1:i+1], ranked[:i])
			ranked[0] = f
		}
	}

	d := domain.RoutingDecision{Source: domain.SourceDeterministic}
	lower := strings.ToLower(text)
	for _, m := range multiDomainMarkers {
		if strings.Contains(lower, m) {
			d.MultiDomain = true
		}
	}
	d.Dependent = dependencyRe.MatchString(text)

	if len(ranked) == 0 {
		d.Candidates = []domain.Candidate{{Responder: c.cfg.Default}}
		d.Category = domain.CategoryGeneral
		d.Reasoning = "no rule matched"
		if cont, ok := c.continueActivity(snap); ok {
			return cont
		}
		return c.maybeFallback(ctx, text, d)
	}

	top := ranked[0]
	var second float64
	if len(ranked) > 1 {
		second = ranked[1].score
	}
	conf := 1.0
	if len(ranked) > 1 {
		conf = max(0, (top.score-second)/top.score)
	}
	if forced != "" {
		conf = max(conf, c.cfg.OverrideConfidence)
	}
	if len(ranked) > 1 && second > 0 && second >= 0.6*top.score {
		d.MultiDomain = true
	}

	prev := conf
	for i, t := range ranked {
		cc := conf
		if i > 0 {
			cc = conf * t.score / top.score
			if cc >= conf {
				cc = conf * 0.9
			}
			cc = min(cc, prev)
		}
		prev = cc
		d.Candidates = append(d.Candidates, domain.Candidate{Responder: t.id, Confidence: round(cc), Score: t.score})
	}
	if !slices.ContainsFunc(d.Candidates, func(cd domain.Candidate) bool { return cd.Responder == c.cfg.Default }) {
		d.Candidates = append(d.Candidates, domain.Candidate{Responder: c.cfg.Default})
	}

	d.Category = top.category
	if d.Category == "" {
		d.Category = c.categoryOf(top.id)
	}
	d.Reasoning = fmt.Sprintf("%s scored %.1f over %d pattern(s)", top.id, top.score, top.hits)
	if entity != "" {
		d.Reasoning += fmt.Sprintf("; entity %q", entity)
		return d
	}
	return c.maybeFallback(ctx, text, d)
}

// Override builds a decision for an explicitly requested responder.
func (c *Classifier) Override(responder string) domain.RoutingDecision {
	return domain.RoutingDecision{
		Candidates: []domain.Candidate{{Responder: responder, Confidence: 1}},
		Category:   c.categoryOf(responder),
		Source:     domain.SourceOverride,
		Reasoning:  "responder requested explicitly",
	}
}

// continueActivity keeps a signal-free follow-up, like a quiz answer, with
// the responder that started the active activity.
func (c *Classifier) continueActivity(snap *domain.Session) (domain.RoutingDecision, bool) {
	if snap == nil || snap.Activity == nil || len(snap.Trail) == 0 {
		return domain.RoutingDecision{}, false
	}
	last := snap.Trail[len(snap.Trail)-1]
	d := domain.RoutingDecision{
		Candidates: []domain.Candidate{{Responder: last, Confidence: c.cfg.FallbackConfidence}},
		Category:   c.categoryOf(last),
		Source:     domain.SourceDeterministic,
		Reasoning:  "continuing active " + snap.Activity.Kind,
	}
	if last != c.cfg.Default {
		d.Candidates = append(d.Candidates, domain.Candidate{Responder: c.cfg.Default})
	}
	return d, true
}

func (c *Classifier) maybeFallback(ctx context.Context, text string, d domain.RoutingDecision) domain.RoutingDecision {
	if d.Top().Confidence >= c.cfg.FallbackThreshold {
		return d
	}
	if c.fallback == nil {
		d.Ambiguous = true
		return d
	}

	fctx, cancel := context.WithTimeout(ctx, c.cfg.FallbackTimeout)
	defer cancel()

	start := time.Now()
	label, err := c.fallback.Categorize(fctx, text, Labels())
	if err == nil && !slices.Contains(Labels(), label) {
		err = fmt.Errorf("unknown label %q", label)
	}
	if err != nil {
		c.log.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("fallback classification failed")
		d.Ambiguous = true
		return d
	}

	id, ok := categoryResponders[label]
	if !ok {
		id = c.cfg.Default
	}
	fc := c.cfg.FallbackConfidence
	out := domain.RoutingDecision{
		Category:    label,
		Source:      domain.SourceFallback,
		MultiDomain: d.MultiDomain,
		Dependent:   d.Dependent,
		Reasoning:   "semantic fallback chose " + label,
	}
	var score float64
	for _, cd := range d.Candidates {
		if cd.Responder == id {
			score = cd.Score
		}
	}
	out.Candidates = append(out.Candidates, domain.Candidate{Responder: id, Confidence: fc, Score: score})
	for _, cd := range d.Candidates {
		if cd.Responder == id {
			continue
		}
		cd.Confidence = min(cd.Confidence, fc)
		out.Candidates = append(out.Candidates, cd)
	}
	c.log.Debug().Str("label", label).Str("responder", id).Msg("fallback classification")
	return out
}

func (c *Classifier) rank(id string) int {
	if i, ok := c.order[id]; ok {
		return i
	}
	return len(c.order)
}

func (c *Classifier) categoryOf(id string) string {
	for _, r := range c.cfg.Rules {
		if r.Responder == id {
			return r.Category
		}
	}
	return domain.CategoryGeneral
}

func round(f float64) float64 { return math.Round(f*1000) / 1000 }
