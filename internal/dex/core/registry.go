package core

import "sync"

// Registry maps provider names to providers.
type Registry struct {
	mu sync.RWMutex
	m  map[string]LadderProvider
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]LadderProvider, 4)}
}

func (r *Registry) Register(p LadderProvider) {
	r.mu.Lock()
	r.m[p.Name()] = p
	r.mu.Unlock()
}

func (r *Registry) Get(name string) LadderProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[name]
}

// Enabled returns the registered providers in the order of names, which is
// their fallback rank. Unknown names are skipped.
func (r *Registry) Enabled(names []string) []LadderProvider {
	out := make([]LadderProvider, 0, len(names))
	for _, n := range names {
		if p := r.Get(n); p != nil {
			out = append(out, p)
		}
	}
	return out
}
