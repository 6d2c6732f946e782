package backend

import (
	"fmt"
	"sync"
)

// Registry maps methods to their adapters. The method set is closed, so
// the registry is a lookup table populated once at startup; the mutex
// only guards against misuse, not a dynamic plugin surface.
type Registry struct {
	mu       sync.RWMutex
	adapters map[Method]Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Method]Adapter)}
}

// Register adds an adapter under its own method tag. Registering a
// second adapter for the same method is a programming error and fails.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("cannot register nil adapter")
	}
	m, err := ParseMethod(a.Method().String())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.adapters[m]; exists {
		return fmt.Errorf("adapter already registered for method %q", m)
	}
	r.adapters[m] = a
	return nil
}

// Get returns the adapter for a method.
func (r *Registry) Get(m Method) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, m)
	}
	return a, nil
}

// Registered returns the registered methods in canonical order.
func (r *Registry) Registered() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Method
	for _, m := range AllMethods() {
		if _, ok := r.adapters[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
