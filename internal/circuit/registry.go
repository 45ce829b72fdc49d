package circuit

import (
	"sort"
	"sync"
)

// Registry hands out one Breaker per dependency name, so every caller of
// the same dependency shares its state. Breakers live for the process.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	opts     []Option
	breakers map[string]*Breaker
}

// NewRegistry creates a registry whose breakers share settings and options.
func NewRegistry(s Settings, opts ...Option) *Registry {
	return &Registry{
		settings: s,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.breakers[name]
	if !ok {
		b = New(name, r.settings, r.opts...)
		r.breakers[name] = b
	}
	return b
}

// Reset closes the named breaker. It reports false for unknown names.
func (r *Registry) Reset(name string) bool {
	r.mu.Lock()
	b, ok := r.breakers[name]
	r.mu.Unlock()

	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Snapshots returns the state of every breaker, sorted by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
