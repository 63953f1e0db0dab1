package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// ErrUnknown is returned when a plugin ID has no registered factory.
// It surfaces at track-configuration time, never mid-render.
var ErrUnknown = fmt.Errorf("unknown plugin id")

// Factory constructs a fresh processor instance.
type Factory func() Processor

// Registry maps plugin IDs to factories. Metadata is validated once at
// registration and cached, so repeated resolution never re-inspects the
// plugin and the same ID always yields the same implementation.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	metadata  map[string]Metadata
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		metadata:  make(map[string]Metadata),
	}
}

// Register validates the factory's metadata and adds it under its ID.
func (r *Registry) Register(factory Factory) error {
	md := factory().Metadata()
	if err := md.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[md.ID]; dup {
		return fmt.Errorf("plugin %s: already registered", md.ID)
	}
	r.factories[md.ID] = factory
	r.metadata[md.ID] = md
	return nil
}

// Resolve returns a new instance of the plugin with the given ID. Stateful
// effects get one instance per track slot, so instances are not shared.
func (r *Registry) Resolve(id string) (Processor, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return factory(), nil
}

// Metadata returns the cached metadata for the given ID.
func (r *Registry) Metadata(id string) (Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.metadata[id]
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %q", ErrUnknown, id)
	}
	return md, nil
}

// Has reports whether an ID is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[id]
	return ok
}

// IDs returns all registered plugin IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for id := range r.factories {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IDsByCategory returns registered IDs in one category, sorted.
func (r *Registry) IDsByCategory(cat Category) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.metadata))
	for id, md := range r.metadata {
		if md.Category == cat {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
