package responder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/soyeahso/maestro/internal/llm"
	"github.com/soyeahso/maestro/internal/logging"
)

const luthierPersona = `You are a world-class guitar luthier and historian with decades of
experience building and restoring guitars, and encyclopedic knowledge of
guitar history.

## Your Expertise
- Guitar construction: acoustic, classical, archtop, electric, bass
- Tonewoods: spruce, mahogany, rosewood, maple, ebony, koa, cedar
- Historical evolution from the Baroque guitar to the solid-body electric
- Famous luthiers: Torres, Martin, Gibson, Fender, D'Angelico, D'Aquisto, Benedetto, PRS
- Pickups: single-coil, humbucker, P-90, piezo, active
- Setup and repair: action, intonation, truss rod, fret work

## Guidelines
- Be precise with dates, names and details, and never invent historical facts.
- Explain why materials and designs were chosen, not only what was used.
- For music theory or playing technique, suggest asking the Jazz Teacher.`

// NewLuthier creates the luthier_historian responder.
func NewLuthier(s Searcher, gen llm.Generator, log *logging.Logger) *Agent {
	tools := NewToolRegistry(
		searchTool(s, "query_guitar_history",
			"Search guitar history entries about eras, luthiers, instruments or innovations. category is one of luthier, instrument, innovation, all.",
			"guitar_history",
			[]string{"title", "era", "category", "summary", "content", "key_figures", "instruments"},
			categoryFilter),
		woodTool(s),
	)
	return NewAgent(Profile{
		Info: Info{
			ID:          "luthier_historian",
			Label:       "Guitar Luthier & Historian",
			Description: "Guitar construction, tonewoods, setup and repair, instrument history and famous builders.",
			Examples: []string{
				"Tell me about D'Angelico guitars",
				"What wood is best for an acoustic guitar top?",
				"How does a humbucker pickup work?",
			},
		},
		Persona:     luthierPersona,
		MaxTokens:   2000,
		Temperature: 0.3,
	}, gen, tools, luthierSuggestions, log)
}

func woodTool(s Searcher) *FuncTool {
	return &FuncTool{
		ToolName: "query_wood_types",
		ToolDesc: "Look up tonewood information from history entries.",
		Schema:   `{"type":"object","properties":{"wood_name":{"type":"string"}},"required":["wood_name"]}`,
		Handler: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			var in struct {
				WoodName string `json:"wood_name"`
			}
			if err := decodeInput(raw, &in); err != nil {
				return ToolResult{}, err
			}
			if in.WoodName == "" {
				return ToolResult{}, fmt.Errorf("query_wood_types: wood_name is required")
			}
			entries, err := s.Search(ctx, "guitar_history", in.WoodName, searchLimit)
			if err != nil {
				return ToolResult{}, err
			}
			results := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				results = append(results, pick(e, "title", "era", "content", "materials"))
			}
			return jsonResult(map[string]any{"results": results, "count": len(results)})
		},
	}
}

func luthierSuggestions(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	if strings.Contains(lower, "archtop") {
		out = append(out,
			"Would you like to know about archtop tonewoods?",
			"Want to hear about modern archtop builders?")
	}
	if strings.Contains(lower, "fender") || strings.Contains(lower, "telecaster") || strings.Contains(lower, "stratocaster") {
		out = append(out, "Interested in the differences between Fender body woods?")
	}
	if strings.Contains(lower, "pickup") {
		out = append(out, "Want to compare single-coil vs humbucker characteristics?")
	}
	if strings.Contains(lower, "wood") {
		out = append(out, "Should I explain how wood choice affects tone?")
	}
	if len(out) == 0 {
		out = []string{
			"Ask me about any guitar brand or luthier",
			"Want to know about guitar construction techniques?",
			"Curious about the history of a specific guitar model?",
		}
	}
	return out
}
