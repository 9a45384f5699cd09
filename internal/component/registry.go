// Package component tracks UI components contributed by plugins.
package component

import (
	"sync"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// Metadata describes a registered component.
type Metadata struct {
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Entry is a component together with its optional metadata.
type Entry struct {
	Component any
	Metadata  *Metadata
}

// Registry maps component names to components. Names are unique and
// entries cannot be removed.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
	log     *logging.Logger
}

// NewRegistry creates an empty component registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		log:     log.Sub("components"),
	}
}

// Register stores component under name.
func (r *Registry) Register(name string, component any, meta *Metadata) error {
	if name == "" {
		return fault.New(fault.KindInvalidArgument, "component name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(name, component, meta)
}

// add stores an entry. r.mu must be held.
func (r *Registry) add(name string, component any, meta *Metadata) error {
	if _, exists := r.entries[name]; exists {
		return fault.New(fault.KindDuplicateRegistration,
			"component already registered: "+name, fault.WithSubject(name))
	}
	r.entries[name] = Entry{Component: component, Metadata: copyMetadata(meta)}
	r.order = append(r.order, name)
	r.log.Debug().Str("component", name).Msg("component registered")
	return nil
}

// Get returns the component registered under name.
func (r *Registry) Get(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.Component, ok
}

// Metadata returns a copy of the metadata registered with name, or nil.
func (r *Registry) Metadata(name string) *Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyMetadata(r.entries[name].Metadata)
}

// All returns every registered component keyed by name.
func (r *Registry) All() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.Component
	}
	return out
}

// Names returns component names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered components.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// remove deletes name and reports whether it was present. Callers hold mu.
func (r *Registry) remove(name string) (Entry, bool) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, true
}

func copyMetadata(m *Metadata) *Metadata {
	if m == nil {
		return nil
	}
	c := *m
	if m.Tags != nil {
		c.Tags = append([]string(nil), m.Tags...)
	}
	return &c
}
