package pipeline

import (
	"fmt"
	"sort"
)

// Factory produces one Stage instance. Factories run during compilation,
// before the service accepts traffic, so a failing factory aborts start-up.
type Factory func() (Stage, error)

type registryEntry struct {
	factory     Factory
	capability  Capability
	placeholder bool
}

// Registry maps step names to stage factories. It is populated once during
// start-up and read-only afterwards, so lookups need no locking.
//
// Every capability that can appear in a chain keeps at least a placeholder
// registration, guaranteeing the service is runnable no matter which real
// backends were linked into the binary.
type Registry struct {
	entries map[string]registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// RegisterPlaceholder installs the labeled fallback for a step name. It
// never displaces a real implementation registered under the same name.
func (r *Registry) RegisterPlaceholder(name string, capability Capability, factory Factory) {
	if existing, ok := r.entries[name]; ok && !existing.placeholder {
		return
	}
	r.entries[name] = registryEntry{factory: factory, capability: capability, placeholder: true}
}

// Register installs a real implementation, taking priority over any
// placeholder already registered under the same name.
func (r *Registry) Register(name string, capability Capability, factory Factory) {
	r.entries[name] = registryEntry{factory: factory, capability: capability}
}

// Resolve looks a step name up by exact match.
func (r *Registry) Resolve(name string) (Factory, Capability, bool) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, "", false
	}
	return entry.factory, entry.capability, true
}

// IsPlaceholder reports whether the registration behind name is the labeled
// fallback rather than a real backend.
func (r *Registry) IsPlaceholder(name string) bool {
	entry, ok := r.entries[name]
	return ok && entry.placeholder
}

// Names returns the registered step names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) build(name string) (Stage, Capability, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, "", NewError(KindUnknownStep, "unknown pipeline step %q", name)
	}
	stage, err := entry.factory()
	if err != nil {
		return nil, "", fmt.Errorf("build pipeline step %q: %w", name, err)
	}
	return stage, entry.capability, nil
}
