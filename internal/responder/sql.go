package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/logging"
	"github.com/soyeahso/maestro/internal/query"
)

// Fixed user-facing texts. Rejections never echo the query or the reason.
const (
	declineText = "I can't run that data request. Try asking for chords, scales, techniques, jazz standards or guitar history entries, for example \"show me all chords with difficulty 4 or higher\"."
	busyText    = "The knowledge store is busy right now. Please try that request again in a moment."
)

// SQLExpert answers data questions through the query safety pipeline.
type SQLExpert struct {
	pipeline *query.Pipeline
	schema   query.Schema
	log      *logging.Logger
}

// NewSQLExpert creates the sql_expert responder. The schema is fixed for
// the responder's lifetime.
func NewSQLExpert(p *query.Pipeline, schema query.Schema, log *logging.Logger) *SQLExpert {
	return &SQLExpert{pipeline: p, schema: schema, log: log.Sub("responder.sql_expert")}
}

func (s *SQLExpert) ID() string    { return "sql_expert" }
func (s *SQLExpert) Label() string { return "SQL & Data Expert" }

func (s *SQLExpert) Describe() Info {
	return Info{
		ID:          s.ID(),
		Label:       s.Label(),
		Description: "Natural-language questions answered from the knowledge base: counts, lists and filters over chords, scales, techniques, standards and history.",
		Examples: []string{
			"Show me all chords with difficulty 4 or higher",
			"How many scales are in the database?",
			"List all jazz standards in the key of Bb",
		},
	}
}

// Respond grounds the request into a plan and runs it. Unsafe plans and
// storage timeouts become outcomes; grounding failures are errors.
func (s *SQLExpert) Respond(ctx context.Context, req domain.Request) (domain.Outcome, error) {
	start := time.Now()
	attr := domain.Attribution{Kind: domain.AttributionSingle, Responder: s.ID()}

	res, err := s.pipeline.CompileAndRun(ctx, req.Text, s.schema)
	switch {
	case errors.Is(err, domain.ErrUnsafeQuery):
		return domain.Outcome{
			Text:        declineText,
			Attribution: attr,
			Suggestions: s.Describe().Examples[:2],
			Meta: domain.OutcomeMeta{
				LatencyMs:  time.Since(start).Milliseconds(),
				Confidence: 0.1,
				ErrorKind:  domain.KindUnsafeQuery,
			},
		}, nil
	case errors.Is(err, domain.ErrStorageTimeout):
		return domain.Outcome{
			Text:        busyText,
			Attribution: attr,
			Meta: domain.OutcomeMeta{
				LatencyMs: time.Since(start).Milliseconds(),
				Retryable: true,
				ErrorKind: domain.KindTimeout,
			},
		}, nil
	case err != nil:
		if !errors.Is(err, domain.ErrResponderUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrResponderUnavailable, err)
		}
		return domain.Outcome{}, fmt.Errorf("sql_expert: %w", err)
	}

	var b strings.Builder
	noun := "results"
	if res.Count == 1 {
		noun = "result"
	}
	fmt.Fprintf(&b, "Found %d %s in %s.\n\n", res.Count, noun, res.Plan.Table)
	b.WriteString(query.FormatTable(res))
	for _, n := range res.Notes {
		fmt.Fprintf(&b, "\n\n_Note: %s._", n)
	}

	conf := estimateConfidence("", []string{"query"})
	if res.Approximate {
		conf -= 0.15
	}

	out := domain.Outcome{
		Text:        b.String(),
		Attribution: attr,
		Data: map[string]any{
			"table":   res.Plan.Table,
			"columns": res.Columns,
			"rows":    res.Rows,
			"count":   res.Count,
			"notes":   res.Notes,
		},
		Suggestions: sqlSuggestions(res),
		Meta: domain.OutcomeMeta{
			LatencyMs:   time.Since(start).Milliseconds(),
			TokensIn:    res.Usage.InputTokens,
			TokensOut:   res.Usage.OutputTokens,
			Confidence:  round2(conf),
			Truncated:   res.Truncated,
			Approximate: res.Approximate,
		},
	}
	s.log.Info().
		Str("table", res.Plan.Table).
		Int("rows", res.Count).
		Bool("truncated", res.Truncated).
		Int64("durationMs", out.Meta.LatencyMs).
		Msg("responded")
	return out, nil
}

func sqlSuggestions(r query.Result) []string {
	var out []string
	if r.Truncated {
		out = append(out, "Narrow this down with a filter, like a difficulty or category")
	}
	switch r.Plan.Table {
	case "chords", "scales":
		out = append(out, "Want a practice exercise using these?")
	case "jazz_standards":
		out = append(out, "Want me to analyze the changes of one of these tunes?")
	case "guitar_history":
		out = append(out, "Want the full story behind one of these entries?")
	}
	return capSuggestions(out)
}
