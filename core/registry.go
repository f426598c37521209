package core

import (
	"sync"
)

// Registry is an execution's private key-value store. The fork's Register
// action and the controller's initializers seed it before the first segment;
// segments read and write it afterwards. It lives exactly as long as its
// execution.
type Registry struct {
	mu     sync.Mutex
	values map[string]any
}

func NewRegistry() *Registry {
	return &Registry{
		values: make(map[string]any),
	}
}

// Put stores value under key, replacing any previous value.
func (r *Registry) Put(key string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = value
}

// Get returns the value stored under key and whether it was present.
func (r *Registry) Get(key string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.values[key]
	return v, ok
}

// Delete removes key from the registry.
func (r *Registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.values, key)
}

// Len returns the number of stored entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Snapshot returns a copy of the current entries.
func (r *Registry) Snapshot() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}
