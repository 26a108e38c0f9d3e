package domain

import "context"

// Attribution kinds.
const (
	AttributionSingle   = "single"
	AttributionCombined = "combined"
)

// Dispatch patterns recorded on outcome metadata.
const (
	PatternSingle     = "single"
	PatternSequential = "sequential"
	PatternParallel   = "parallel"
)

// Attribution names who produced an outcome.
type Attribution struct {
	Kind         string   `json:"kind"`
	Responder    string   `json:"responder,omitempty"`
	Contributors []string `json:"contributors,omitempty"`
}

// OutcomeMeta carries cost, latency and status flags for an outcome.
type OutcomeMeta struct {
	LatencyMs   int64   `json:"latencyMs"`
	TokensIn    int     `json:"tokensIn"`
	TokensOut   int     `json:"tokensOut"`
	Confidence  float64 `json:"confidence"`
	Pattern     string  `json:"pattern,omitempty"`
	Degraded    bool    `json:"degraded,omitempty"`
	Truncated   bool    `json:"truncated,omitempty"`
	Approximate bool    `json:"approximate,omitempty"`
	Retryable   bool    `json:"retryable,omitempty"`
	ErrorKind   string  `json:"errorKind,omitempty"`
}

// Outcome is what a responder returns, and what the coordinator returns
// after aggregation. For combined outcomes Data is keyed by responder id.
type Outcome struct {
	Text        string         `json:"text"`
	Attribution Attribution    `json:"attribution"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Meta        OutcomeMeta    `json:"meta"`

	// Hints the coordinator applies to the session. Responders never
	// touch the session directly.
	TopicHint    *string   `json:"-"`
	ActivityHint *Activity `json:"-"`
}

// Request is the input to a responder.
type Request struct {
	Text    string
	Session *Session  // read-only snapshot
	Prior   []Outcome // completed outcomes of earlier sequential steps
}

// Responder answers requests for one domain.
type Responder interface {
	// ID returns the stable responder id used in routing.
	ID() string

	// Label returns the display label used to prefix merged sections.
	Label() string

	// Respond produces an outcome. It must not mutate req.Session.
	Respond(ctx context.Context, req Request) (Outcome, error)
}
