package domain

import (
	"maps"
	"time"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Skill levels carried on a session.
const (
	SkillBeginner     = "beginner"
	SkillIntermediate = "intermediate"
	SkillAdvanced     = "advanced"
)

// DefaultHistoryWindow is how many recent turns responders see by default.
const DefaultHistoryWindow = 10

// Turn is a single entry in a session's history.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Responder string    `json:"responder,omitempty"` // set on assistant turns
	Timestamp time.Time `json:"timestamp"`
}

// Activity references a structured activity in progress, like an exercise or quiz.
type Activity struct {
	Kind   string `json:"kind"` // "exercise" | "quiz" | "lesson"
	Ref    string `json:"ref"`
	Detail string `json:"detail,omitempty"`
}

// Session is the per-session conversation context. It is owned by a single
// writer at a time; callers serialize access per session id.
type Session struct {
	ID         string         `json:"id"`
	SkillLevel string         `json:"skillLevel"`
	Turns      []Turn         `json:"turns"`
	Topic      *string        `json:"topic,omitempty"`
	Activity   *Activity      `json:"activity,omitempty"`
	Trail      []string       `json:"trail"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		SkillLevel: SkillIntermediate,
		Metadata:   make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AppendTurn adds a turn to the end of the history.
func (s *Session) AppendTurn(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	s.Turns = append(s.Turns, t)
	s.UpdatedAt = t.Timestamp
}

// SetTopic overwrites the current topic. A nil topic clears it.
func (s *Session) SetTopic(topic *string) {
	if topic == nil {
		s.Topic = nil
		return
	}
	v := *topic
	s.Topic = &v
}

// SetActiveActivity overwrites the active activity. A nil activity clears it.
func (s *Session) SetActiveActivity(a *Activity) {
	if a == nil {
		s.Activity = nil
		return
	}
	v := *a
	s.Activity = &v
}

// RecordRouting appends a responder id to the routing trail.
func (s *Session) RecordRouting(responderID string) {
	s.Trail = append(s.Trail, responderID)
}

// AddCounter increments a numeric metadata counter.
func (s *Session) AddCounter(key string, delta int64) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	switch v := s.Metadata[key].(type) {
	case int64:
		s.Metadata[key] = v + delta
	case int:
		s.Metadata[key] = int64(v) + delta
	case float64: // counters decoded from JSON
		s.Metadata[key] = int64(v) + delta
	default:
		s.Metadata[key] = delta
	}
}

// Counter returns a numeric metadata counter, or 0.
func (s *Session) Counter(key string) int64 {
	switch v := s.Metadata[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// RecentTurns returns the last n turns. n <= 0 uses DefaultHistoryWindow.
func (s *Session) RecentTurns(n int) []Turn {
	if n <= 0 {
		n = DefaultHistoryWindow
	}
	if len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}

// Snapshot returns a deep copy of the session. Responders receive
// snapshots so they can never mutate the owning session.
func (s *Session) Snapshot() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	c.Trail = append([]string(nil), s.Trail...)
	c.Metadata = maps.Clone(s.Metadata)
	if c.Metadata == nil {
		c.Metadata = make(map[string]any)
	}
	if s.Topic != nil {
		t := *s.Topic
		c.Topic = &t
	}
	if s.Activity != nil {
		a := *s.Activity
		c.Activity = &a
	}
	return &c
}

// Summary is a compact view of a session for API responses.
type Summary struct {
	ID               string         `json:"id"`
	SkillLevel       string         `json:"skillLevel"`
	Turns            int            `json:"turns"`
	Topic            *string        `json:"topic,omitempty"`
	Activity         *Activity      `json:"activity,omitempty"`
	RecentResponders []string       `json:"recentResponders"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Summary returns a compact view with the last five routing trail entries.
func (s *Session) Summary() Summary {
	recent := s.Trail
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	snap := s.Snapshot()
	return Summary{
		ID:               s.ID,
		SkillLevel:       s.SkillLevel,
		Turns:            len(s.Turns),
		Topic:            snap.Topic,
		Activity:         snap.Activity,
		RecentResponders: append([]string(nil), recent...),
		Metadata:         snap.Metadata,
	}
}
