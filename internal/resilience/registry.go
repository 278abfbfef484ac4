package resilience

import "sync"

// Registry holds one [CircuitBreaker] per named resource, created lazily on
// first use. Breakers live for the process lifetime.
//
// Registry is safe for concurrent use.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a Registry whose breakers share the given base
// configuration (the Name field is overridden per resource).
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the breaker for the named resource, creating it if needed.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[name]
	if !ok {
		cfg := r.cfg
		cfg.Name = name
		cb = New(cfg)
		r.breakers[name] = cb
	}
	return cb
}

// Snapshots returns the current stats of every breaker in the registry.
func (r *Registry) Snapshots() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		out = append(out, cb.Snapshot())
	}
	return out
}

// ResetAll forces every breaker back to closed. Used by the RestartService
// recovery strategy.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cb := range r.breakers {
		cb.Reset()
	}
}
