package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
)

const jazzPersona = `You are a master jazz guitar teacher with 30+ years of performing and
teaching experience, working with students from beginners to professionals.

## Your Expertise
- Chord theory: triads, seventh chords, extensions, alterations
- Scale systems: all modes of major, melodic minor and harmonic minor; symmetric and bebop scales
- Arpeggios, guide tones, voice leading, enclosures and targeting
- Improvisation, comping and chord melody
- Repertoire: jazz standards with analysis
- Practice methodology and plateau-busting strategies
- Player styles: Wes Montgomery, Joe Pass, Pat Metheny, Jim Hall

## Guidelines
- Meet the student at their skill level.
- Use interval numbers (1 b3 5 b7) alongside note names.
- Offer a follow-up exercise when teaching a concept.
- For guitar history or construction, defer to the Luthier.`

// NewJazzTeacher creates the jazz_teacher responder.
func NewJazzTeacher(s Searcher, gen llm.Generator, log *logging.Logger) *Agent {
	tools := NewToolRegistry(
		chordTool(s),
		searchTool(s, "query_scales",
			"Search scales and modes by name, type or character.",
			"scales",
			[]string{"name", "scale_type", "formula", "intervals", "category", "character", "chord_compatibility", "difficulty"},
			nil),
		searchTool(s, "query_jazz_standards",
			"Search jazz standards by title, composer or key concept.",
			"jazz_standards",
			[]string{"title", "composer", "year", "key", "form", "key_concepts", "suggested_scales", "difficulty"},
			nil),
		searchTool(s, "query_techniques",
			"Search guitar techniques and practice methods.",
			"techniques",
			[]string{"name", "category", "description", "difficulty", "famous_practitioners"},
			nil),
		activityTool("generate_exercise", "exercise",
			"Start a practice exercise for a topic and difficulty level (1-5)."),
		activityTool("generate_quiz", "quiz",
			"Start an interactive quiz on a music theory or guitar topic."),
	)
	return NewAgent(Profile{
		Info: Info{
			ID:          "jazz_teacher",
			Label:       "Jazz Guitar Teacher",
			Description: "Jazz theory, scales and modes, improvisation, practice routines, exercises and quizzes.",
			Examples: []string{
				"What scales can I play over a Cmaj7 chord?",
				"How do I improvise over ii-V-I changes?",
				"Quiz me on jazz chord types",
			},
		},
		Persona:     jazzPersona,
		MaxTokens:   2500,
		Temperature: 0.5,
	}, gen, tools, jazzSuggestions, log)
}

func chordTool(s Searcher) *FuncTool {
	t := searchTool(s, "query_chords",
		"Search chords by name or type. Optional category (jazz, altered, basic, modern-jazz) and difficulty_max (1-5).",
		"chords",
		[]string{"name", "formula", "intervals", "category", "description", "difficulty"},
		nil)
	search := t.Handler
	t.Schema = `{"type":"object","properties":{"search_term":{"type":"string"},"category":{"type":"string"},"difficulty_max":{"type":"integer"}},"required":["search_term"]}`
	t.Handler = func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
		var in struct {
			searchInput
			DifficultyMax int `json:"difficulty_max"`
		}
		if err := decodeInput(raw, &in); err != nil {
			return ToolResult{}, err
		}
		if in.Category == "" && in.DifficultyMax == 0 {
			return search(ctx, raw)
		}
		return filteredChords(ctx, s, in.searchInput, in.DifficultyMax)
	}
	return t
}

func filteredChords(ctx context.Context, s Searcher, in searchInput, maxDifficulty int) (ToolResult, error) {
	if maxDifficulty <= 0 {
		maxDifficulty = 5
	}
	entries, err := s.Search(ctx, "chords", in.SearchTerm, searchLimit)
	if err != nil {
		return ToolResult{}, err
	}
	results := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if !categoryFilter(in, e) || intValue(e["difficulty"]) > maxDifficulty {
			continue
		}
		results = append(results, pick(e, "name", "formula", "intervals", "category", "description", "difficulty"))
	}
	tr, err := jsonResult(map[string]any{"results": results, "count": len(results)})
	topic := in.SearchTerm
	tr.Topic = &topic
	return tr, err
}

type activityInput struct {
	Topic        string `json:"topic"`
	Difficulty   int    `json:"difficulty"`
	SkillLevel   string `json:"skill_level,omitempty"`
	NumQuestions int    `json:"num_questions,omitempty"`
}

// activityTool starts a structured activity. The coordinator applies the
// resulting hint to the session.
func activityTool(name, kind, desc string) *FuncTool {
	return &FuncTool{
		ToolName: name,
		ToolDesc: desc,
		Schema:   `{"type":"object","properties":{"topic":{"type":"string"},"difficulty":{"type":"integer"},"skill_level":{"type":"string"},"num_questions":{"type":"integer"}},"required":["topic"]}`,
		Handler: func(_ context.Context, raw json.RawMessage) (ToolResult, error) {
			var in activityInput
			if err := decodeInput(raw, &in); err != nil {
				return ToolResult{}, err
			}
			if strings.TrimSpace(in.Topic) == "" {
				return ToolResult{}, fmt.Errorf("%s: topic is required", name)
			}
			if in.Difficulty < 1 || in.Difficulty > 5 {
				in.Difficulty = 2
			}
			if in.SkillLevel == "" {
				in.SkillLevel = domain.SkillIntermediate
			}
			payload := map[string]any{
				"kind":       kind,
				"topic":      in.Topic,
				"difficulty": in.Difficulty,
				"skillLevel": in.SkillLevel,
			}
			if kind == "quiz" {
				n := in.NumQuestions
				if n == 0 {
					n = 5
				}
				payload["numQuestions"] = min(max(n, 3), 10)
			}

			ref := kind + "-" + uuid.NewString()[:8]
			payload["ref"] = ref
			tr, err := jsonResult(payload)
			tr.Topic = &in.Topic
			tr.Activity = &domain.Activity{Kind: kind, Ref: ref, Detail: in.Topic}
			return tr, err
		},
	}
}

func jazzSuggestions(text string) []string {
	lower := strings.ToLower(text)
	has := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	var out []string
	if has("chord") {
		out = append(out,
			"Want me to quiz you on chord types?",
			"Should I show you voicings for this chord?")
	}
	if has("scale", "mode") {
		out = append(out,
			"Want a practice exercise for this scale?",
			"Should I show you which chords this scale works over?")
	}
	if has("solo", "improvise", "improvisation") {
		out = append(out, "Want some specific licks to practice over this?")
	}
	if has("rut", "plateau", "stuck") {
		out = append(out, "Want a customized plateau-busting practice plan?")
	}
	if has("standard", "tune") {
		out = append(out, "Want me to analyze the chord changes for this tune?")
	}
	if len(out) == 0 {
		out = []string{
			"Quiz me on jazz theory",
			"Give me a practice exercise",
			"Help me with improvisation",
		}
	}
	return out
}
