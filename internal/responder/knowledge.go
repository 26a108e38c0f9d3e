package responder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/soyeahso/maestro/internal/store"
)

// Searcher finds knowledge entries by free text.
type Searcher interface {
	Search(ctx context.Context, table, term string, limit int) ([]store.Entry, error)
}

var _ Searcher = (*store.DB)(nil)

const searchLimit = 10

type searchInput struct {
	SearchTerm string `json:"search_term"`
	Category   string `json:"category,omitempty"`
}

// pick copies the named fields of an entry, decoding JSON list columns and
// cutting long text.
func pick(e store.Entry, fields ...string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		v, ok := e[f]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if l := listValue(s); l != nil {
				out[f] = l
				continue
			}
			if len(s) > 500 {
				s = s[:500]
			}
			v = s
		}
		out[f] = v
	}
	return out
}

func listValue(s string) []string {
	if len(s) < 2 || s[0] != '[' {
		return nil
	}
	var l []string
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return nil
	}
	if l == nil {
		l = []string{}
	}
	return l
}

func intValue(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// searchTool builds a tool that searches one knowledge table and returns the
// listed fields of each hit.
func searchTool(s Searcher, name, desc, table string, fields []string, filter func(searchInput, store.Entry) bool) *FuncTool {
	return &FuncTool{
		ToolName: name,
		ToolDesc: desc,
		Schema:   `{"type":"object","properties":{"search_term":{"type":"string"},"category":{"type":"string"}},"required":["search_term"]}`,
		Handler: func(ctx context.Context, raw json.RawMessage) (ToolResult, error) {
			var in searchInput
			if err := decodeInput(raw, &in); err != nil {
				return ToolResult{}, err
			}
			if in.SearchTerm == "" {
				return ToolResult{}, fmt.Errorf("%s: search_term is required", name)
			}
			entries, err := s.Search(ctx, table, in.SearchTerm, searchLimit)
			if err != nil {
				return ToolResult{}, err
			}
			results := make([]map[string]any, 0, len(entries))
			for _, e := range entries {
				if filter != nil && !filter(in, e) {
					continue
				}
				results = append(results, pick(e, fields...))
			}
			tr, err := jsonResult(map[string]any{"results": results, "count": len(results)})
			topic := in.SearchTerm
			tr.Topic = &topic
			return tr, err
		},
	}
}

func categoryFilter(in searchInput, e store.Entry) bool {
	if in.Category == "" || in.Category == "all" {
		return true
	}
	c, _ := e["category"].(string)
	return c == in.Category
}
