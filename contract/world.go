package contract

import (
	"fmt"
	"sort"
)

// World is a named set of interfaces a component imports from, and exports
// to, its host.
type World struct {
	Name    string
	Version string
	Imports []InterfaceRef
	Exports []InterfaceRef
}

// MissingExports returns the world exports that no entry in provided satisfies.
func (w World) MissingExports(provided []InterfaceRef) []InterfaceRef {
	var missing []InterfaceRef
	for _, want := range w.Exports {
		if _, ok := BestMatch(want, provided); !ok {
			missing = append(missing, want)
		}
	}
	return missing
}

// Allows reports whether ref is compatible with one of the world's imports.
func (w World) Allows(ref InterfaceRef) bool {
	_, ok := BestMatch(ref, w.Imports)
	return ok
}

// BestMatch picks the most preferred compatible provider for want from candidates.
func BestMatch(want InterfaceRef, candidates []InterfaceRef) (InterfaceRef, bool) {
	var best InterfaceRef
	found := false
	for _, c := range candidates {
		if !Compatible(want, c) {
			continue
		}
		if !found || Prefer(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

// Registry is an immutable set of worlds. Once created via NewRegistry,
// worlds cannot be added or removed, so lookups need no locking.
type Registry struct {
	worlds map[string]World
	names  []string
}

type registryBuilder struct {
	worlds map[string]World
	errors []error
}

// RegistryOption configures a Registry during construction.
type RegistryOption func(*registryBuilder)

// NewRegistry creates an immutable Registry. Returns an error if a world
// name is registered twice.
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	b := &registryBuilder{worlds: make(map[string]World)}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	names := make([]string, 0, len(b.worlds))
	for name := range b.worlds {
		names = append(names, name)
	}
	sort.Strings(names)

	return &Registry{worlds: b.worlds, names: names}, nil
}

// WithWorld registers a world.
func WithWorld(w World) RegistryOption {
	return func(b *registryBuilder) {
		if w.Name == "" {
			b.errors = append(b.errors, fmt.Errorf("world name cannot be empty"))
			return
		}
		if _, exists := b.worlds[w.Name]; exists {
			b.errors = append(b.errors, fmt.Errorf("duplicate world: %q", w.Name))
			return
		}
		b.worlds[w.Name] = w
	}
}

// WithDefaultWorlds registers the built-in worlds at their current versions.
func WithDefaultWorlds() RegistryOption {
	return func(b *registryBuilder) {
		for _, w := range DefaultWorlds() {
			WithWorld(w)(b)
		}
	}
}

// World returns the named world.
func (r *Registry) World(name string) (World, bool) {
	w, ok := r.worlds[name]
	return w, ok
}

// Names returns the sorted world names.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
