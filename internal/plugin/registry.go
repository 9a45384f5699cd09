package plugin

import (
	"slices"
	"sync"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// Registry is the source of truth for which plugins exist and their status.
// A plugin has no status until the first SetPluginState call.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
	states  map[string]Status
	order   []string // registration order
	log     *logging.Logger
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin),
		states:  make(map[string]Status),
		log:     log.Sub("plugins"),
	}
}

// Register adds a plugin without initializing it.
func (r *Registry) Register(p *Plugin) error {
	if p == nil || p.ID == "" {
		return fault.New(fault.KindInvalidArgument, "plugin id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID]; exists {
		return fault.New(fault.KindDuplicateRegistration,
			"plugin already registered: "+p.ID, fault.WithSubject(p.ID))
	}

	r.plugins[p.ID] = p
	r.order = append(r.order, p.ID)

	r.log.Info().
		Str("id", p.ID).
		Str("name", p.Name).
		Str("version", p.Version).
		Msg("plugin registered")

	return nil
}

// Unregister removes a plugin and its status.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[id]; !exists {
		return notRegistered(id)
	}
	delete(r.plugins, id)
	delete(r.states, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })

	r.log.Info().Str("id", id).Msg("plugin unregistered")
	return nil
}

// Plugin returns a plugin by id.
func (r *Registry) Plugin(id string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// HasPlugin reports whether id is registered.
func (r *Registry) HasPlugin(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[id]
	return ok
}

// Plugins returns all registered plugins in registration order.
func (r *Registry) Plugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// PluginState returns id's status. ok is false when the plugin is unknown or
// has never had a status set.
func (r *Registry) PluginState(id string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[id]
	return s, ok
}

// SetPluginState records id's status.
func (r *Registry) SetPluginState(id string, s Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[id]; !exists {
		return notRegistered(id)
	}
	prev := r.states[id]
	r.states[id] = s
	r.log.Debug().Str("id", id).Str("from", string(prev)).Str("to", string(s)).Msg("plugin status changed")
	return nil
}

// ActivePlugins returns the plugins whose status is ACTIVE, in registration order.
func (r *Registry) ActivePlugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Plugin
	for _, id := range r.order {
		if r.states[id] == StatusActive {
			out = append(out, r.plugins[id])
		}
	}
	return out
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Clear drops every plugin and status.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = make(map[string]*Plugin)
	r.states = make(map[string]Status)
	r.order = nil
}

// Info returns summary information about all registered plugins.
func (r *Registry) Info() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		p := r.plugins[id]
		infos = append(infos, Info{
			ID:      p.ID,
			Name:    p.Name,
			Version: p.Version,
			Status:  string(r.states[id]),
			Active:  r.states[id] == StatusActive,
		})
	}
	return infos
}

func notRegistered(id string) error {
	return fault.New(fault.KindNotFound, "plugin not registered: "+id, fault.WithSubject(id))
}
