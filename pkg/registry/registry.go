// Package registry provides the generic named-collection base shared by the
// tool and node registries. Sets are assembled once at startup and then read
// concurrently by request handlers, so reads take the cheap path and listing
// is deterministic.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a named collection with register-once semantics.
type Registry[T any] interface {
	Register(name string, item T) error
	Get(name string) (T, bool)
	Names() []string
	List() []T
	Count() int
}

// BaseRegistry is the map-backed Registry used throughout the codebase.
type BaseRegistry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

func NewBaseRegistry[T any]() *BaseRegistry[T] {
	return &BaseRegistry[T]{
		items: make(map[string]T),
	}
}

// Register adds item under name. Names are unique; registering a duplicate
// is a programming error and fails loudly.
func (r *BaseRegistry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("registry: name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("registry: %q already registered", name)
	}

	r.items[name] = item
	return nil
}

// MustRegister is Register for startup wiring, where a duplicate name means
// the binary is miswired and should not come up.
func (r *BaseRegistry[T]) MustRegister(name string, item T) {
	if err := r.Register(name, item); err != nil {
		panic(err)
	}
}

func (r *BaseRegistry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

// Names returns the registered names in sorted order.
func (r *BaseRegistry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the registered items ordered by name, so prompt and schema
// assembly see a stable order across processes.
func (r *BaseRegistry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]T, 0, len(names))
	for _, name := range names {
		items = append(items, r.items[name])
	}
	return items
}

func (r *BaseRegistry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}
