package responder

import (
	"fmt"

	"github.com/soyeahso/maestro/internal/domain"
)

// Describer is implemented by responders that can list themselves.
type Describer interface {
	Describe() Info
}

// Registry is the static, ordered set of responders. Declaration order
// drives sequential dispatch and the parallel merge. It is read-only after
// construction.
type Registry struct {
	order []domain.Responder
	byID  map[string]int
}

// NewRegistry creates a registry in the given declaration order. Duplicate
// ids are an error.
func NewRegistry(rs ...domain.Responder) (*Registry, error) {
	r := &Registry{byID: make(map[string]int, len(rs))}
	for _, x := range rs {
		if _, dup := r.byID[x.ID()]; dup {
			return nil, fmt.Errorf("duplicate responder %q", x.ID())
		}
		r.byID[x.ID()] = len(r.order)
		r.order = append(r.order, x)
	}
	return r, nil
}

// Get returns a responder by id.
func (r *Registry) Get(id string) (domain.Responder, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.order[i], true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs returns responder ids in declaration order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	for i, x := range r.order {
		ids[i] = x.ID()
	}
	return ids
}

// Index returns the declaration position of id, or -1.
func (r *Registry) Index(id string) int {
	if i, ok := r.byID[id]; ok {
		return i
	}
	return -1
}

// Label returns the display label for id, or the id itself.
func (r *Registry) Label(id string) string {
	if x, ok := r.Get(id); ok {
		return x.Label()
	}
	return id
}

// Infos lists every responder in declaration order.
func (r *Registry) Infos() []Info {
	out := make([]Info, 0, len(r.order))
	for _, x := range r.order {
		if d, ok := x.(Describer); ok {
			out = append(out, d.Describe())
			continue
		}
		out = append(out, Info{ID: x.ID(), Label: x.Label()})
	}
	return out
}
