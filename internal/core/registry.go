package core

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps operation ids to handler factories. It is filled once at
// startup and read on every step.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for operation.
// Panics if the operation is already registered or the factory is nil.
func (r *Registry) Register(operation string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f == nil {
		panic(fmt.Sprintf("nil factory for operation: %s", operation))
	}
	if _, exists := r.factories[operation]; exists {
		panic(fmt.Sprintf("operation already registered: %s", operation))
	}
	r.factories[operation] = f
}

// Lookup builds a handler for operation.
// Returns ErrUnknownOperation if nothing is registered under that id.
func (r *Registry) Lookup(operation string) (Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[operation]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
	return f(), nil
}

// Operations returns the registered operation ids, sorted.
func (r *Registry) Operations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ops := make([]string, 0, len(r.factories))
	for op := range r.factories {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}
