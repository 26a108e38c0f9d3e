package domain

// Decision sources.
const (
	SourceDeterministic = "deterministic"
	SourceFallback      = "fallback"
	SourceOverride      = "override"
)

// Intent categories produced by the classifier.
const (
	CategoryGuitarHistory = "guitar_history"
	CategoryGuitarSetup   = "guitar_setup"
	CategoryMusicTheory   = "music_theory"
	CategoryDataQuery     = "data_query"
	CategorySystem        = "system"
	CategoryGeneral       = "general"
)

// Candidate is one ranked responder in a routing decision.
type Candidate struct {
	Responder  string  `json:"responder"`
	Confidence float64 `json:"confidence"`
	Score      float64 `json:"score,omitempty"`
}

// RoutingDecision is the classifier's output. Candidates are never empty and
// their confidences are non-increasing in rank order.
type RoutingDecision struct {
	Candidates  []Candidate `json:"candidates"`
	Category    string      `json:"category"`
	Source      string      `json:"source"`
	MultiDomain bool        `json:"multiDomain,omitempty"`
	Dependent   bool        `json:"dependent,omitempty"`
	Ambiguous   bool        `json:"ambiguous,omitempty"`
	Reasoning   string      `json:"reasoning,omitempty"`
}

// Top returns the highest-ranked candidate.
func (d RoutingDecision) Top() Candidate {
	if len(d.Candidates) == 0 {
		return Candidate{}
	}
	return d.Candidates[0]
}

// Implicated returns candidate ids that carry any signal, in rank order,
// capped at max. The top candidate is always included.
func (d RoutingDecision) Implicated(max int) []string {
	var ids []string
	for i, c := range d.Candidates {
		if i > 0 && c.Confidence <= 0 && c.Score <= 0 {
			continue
		}
		ids = append(ids, c.Responder)
		if max > 0 && len(ids) == max {
			break
		}
	}
	return ids
}
