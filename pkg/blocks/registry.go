package blocks

import (
	"sort"
	"sync"
)

// Registry maps block type identifiers to descriptors. Registration
// overwrites by type, last wins, which is how plugins override built-ins.
// Lookups are safe for concurrent use with registration, though writes are
// expected only at startup and provider attach time.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]*Descriptor)}
}

// Register inserts or overwrites a descriptor by its type.
func (r *Registry) Register(d *Descriptor) {
	if d == nil || d.Type == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[d.Type] = d
}

// Lookup returns the descriptor for a block type.
func (r *Registry) Lookup(blockType string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byType[blockType]
	return d, ok
}

// All returns every descriptor, sorted by type.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.byType))
	for _, d := range r.byType {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// ByCategory returns the descriptors in one category, sorted by type.
func (r *Registry) ByCategory(category string) []*Descriptor {
	var out []*Descriptor
	for _, d := range r.All() {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (r *Registry) Categories() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for _, d := range r.byType {
		seen[d.Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered block types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType)
}
