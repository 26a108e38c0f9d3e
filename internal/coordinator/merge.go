package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/maestro/internal/domain"
)

const (
	unknownText     = "I'm sorry, I couldn't find the right expert to help with that. Could you rephrase your question?"
	errorText       = "I encountered an error processing your request. Please try again."
	timeoutText     = "The request took too long. Please try a simpler question or try again."
	noResponseText  = "I couldn't get a response. Please try again."
	unavailableText = "_This specialist is unavailable right now._"

	sectionSep     = "\n\n---\n\n"
	maxSuggestions = 5
)

// Session metadata counters maintained by the coordinator.
const (
	CounterRequests  = "requests"
	CounterDegraded  = "degraded"
	CounterTokensIn  = "tokensIn"
	CounterTokensOut = "tokensOut"
)

func apology(text string, attr domain.Attribution) domain.Outcome {
	return domain.Outcome{
		Text:        text,
		Attribution: attr,
		Meta: domain.OutcomeMeta{
			Degraded:  true,
			ErrorKind: domain.KindUnavailable,
		},
	}
}

func failureText(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutText
	}
	return errorText
}

func single(u *unit) domain.Outcome {
	attr := domain.Attribution{Kind: domain.AttributionSingle, Responder: u.id}
	if u.err != nil {
		out := apology(failureText(u.err), attr)
		out.Meta.Retryable = errors.Is(u.err, context.DeadlineExceeded)
		return out
	}
	out := u.outcome
	out.Attribution = attr
	out.Suggestions = dedupe(out.Suggestions)
	return out
}

// synthesize folds sequential steps into one outcome. Steps after a failure
// never ran and are not part of the result.
func synthesize(units []*unit, primary string) domain.Outcome {
	attr := domain.Attribution{Kind: domain.AttributionCombined, Responder: primary}
	if units[0].err != nil {
		return apology(failureText(units[0].err), attr)
	}

	var (
		sections []string
		acc      accumulator
	)
	for i, u := range units {
		if u.err != nil {
			sections = append(sections, fmt.Sprintf("_Step %d (%s) could not be completed._", i+1, u.label))
			acc.degraded = true
			continue
		}
		sections = append(sections, fmt.Sprintf("**Step %d: %s**\n%s", i+1, u.label, strings.TrimSpace(u.outcome.Text)))
		acc.add(u)
	}
	return acc.outcome(strings.Join(sections, "\n\n"), attr)
}

// merge joins parallel branches in declared order. A failed branch keeps
// its section as a placeholder and contributes no data.
func merge(units []*unit, primary string) domain.Outcome {
	attr := domain.Attribution{Kind: domain.AttributionCombined, Responder: primary}

	var (
		sections []string
		acc      accumulator
	)
	for _, u := range units {
		if u.err != nil {
			sections = append(sections, fmt.Sprintf("**%s:**\n%s", u.label, unavailableText))
			acc.degraded = true
			continue
		}
		sections = append(sections, fmt.Sprintf("**%s:**\n%s", u.label, strings.TrimSpace(u.outcome.Text)))
		acc.add(u)
	}
	if len(acc.contributors) == 0 {
		return apology(noResponseText, attr)
	}
	return acc.outcome(strings.Join(sections, sectionSep), attr)
}

type accumulator struct {
	contributors []string
	data         map[string]any
	suggestions  []string
	meta         domain.OutcomeMeta
	degraded     bool
}

func (a *accumulator) add(u *unit) {
	o := u.outcome
	if len(a.contributors) == 0 || o.Meta.Confidence < a.meta.Confidence {
		a.meta.Confidence = o.Meta.Confidence
	}
	a.contributors = append(a.contributors, u.id)
	if o.Data != nil {
		if a.data == nil {
			a.data = make(map[string]any)
		}
		a.data[u.id] = o.Data
	}
	a.suggestions = append(a.suggestions, o.Suggestions...)
	a.meta.TokensIn += o.Meta.TokensIn
	a.meta.TokensOut += o.Meta.TokensOut
	a.meta.Truncated = a.meta.Truncated || o.Meta.Truncated
	a.meta.Approximate = a.meta.Approximate || o.Meta.Approximate
	a.degraded = a.degraded || o.Meta.Degraded
}

func (a *accumulator) outcome(text string, attr domain.Attribution) domain.Outcome {
	attr.Contributors = a.contributors
	meta := a.meta
	meta.Degraded = a.degraded
	return domain.Outcome{
		Text:        text,
		Attribution: attr,
		Data:        a.data,
		Suggestions: dedupe(a.suggestions),
		Meta:        meta,
	}
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, min(len(in), maxSuggestions))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// apply records the finished exchange on the session. Units are in
// invocation order, which equals declared order for both multi patterns.
func apply(sess *domain.Session, text string, out domain.Outcome, units []*unit) {
	sess.AppendTurn(domain.Turn{Role: domain.RoleUser, Text: text})
	sess.AppendTurn(domain.Turn{Role: domain.RoleAssistant, Text: out.Text, Responder: out.Attribution.Responder})

	var (
		topic    *string
		activity *domain.Activity
	)
	for _, u := range units {
		if !u.ran {
			continue
		}
		sess.RecordRouting(u.id)
		if u.err != nil {
			continue
		}
		if u.outcome.TopicHint != nil {
			topic = u.outcome.TopicHint
		}
		if u.outcome.ActivityHint != nil {
			activity = u.outcome.ActivityHint
		}
	}
	if topic != nil {
		sess.SetTopic(topic)
	}
	if activity != nil {
		sess.SetActiveActivity(activity)
	}

	sess.AddCounter(CounterRequests, 1)
	sess.AddCounter(CounterTokensIn, int64(out.Meta.TokensIn))
	sess.AddCounter(CounterTokensOut, int64(out.Meta.TokensOut))
	if out.Meta.Degraded {
		sess.AddCounter(CounterDegraded, 1)
	}
}
