// Package route holds the routes contributed by each plugin.
package route

import (
	"strings"
	"sync"

	"github.com/soyeahso/trellis/internal/logging"
)

// Route maps a path to a component name.
type Route struct {
	Path      string         `json:"path" yaml:"path"`
	Component string         `json:"component" yaml:"component"`
	Meta      map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Middleware filters routes. A route is visible only if every middleware accepts it.
type Middleware func(Route) bool

// Registry stores route lists keyed by plugin id.
type Registry struct {
	mu         sync.RWMutex
	routes     map[string][]Route
	order      []string // plugin ids in first-registration order
	middleware []Middleware
	log        *logging.Logger
}

// NewRegistry creates an empty route registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		routes: make(map[string][]Route),
		log:    log.Sub("routes"),
	}
}

// RegisterPluginRoutes replaces the route list for pluginID.
func (r *Registry) RegisterPluginRoutes(pluginID string, routes []Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[pluginID]; !exists {
		r.order = append(r.order, pluginID)
	}
	r.routes[pluginID] = append([]Route(nil), routes...)
	r.log.Debug().Str("plugin", pluginID).Int("routes", len(routes)).Msg("plugin routes registered")
}

// UnregisterPluginRoutes drops every route of pluginID.
func (r *Registry) UnregisterPluginRoutes(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[pluginID]; !exists {
		return
	}
	delete(r.routes, pluginID)
	for i, id := range r.order {
		if id == pluginID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Debug().Str("plugin", pluginID).Msg("plugin routes unregistered")
}

// AddMiddleware appends a global route filter.
func (r *Registry) AddMiddleware(m Middleware) {
	if m == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, m)
}

// AllRoutes returns every route, grouped by plugin in registration order.
func (r *Registry) AllRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flatten()
}

// FilteredRoutes returns the routes accepted by every middleware.
func (r *Registry) FilteredRoutes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Route
	for _, rt := range r.flatten() {
		if r.accepts(rt) {
			out = append(out, rt)
		}
	}
	return out
}

// PluginRoutes returns the routes registered by pluginID, or an empty list.
func (r *Registry) PluginRoutes(pluginID string) []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Route{}, r.routes[pluginID]...)
}

// PluginIDs returns the ids of plugins with registered routes.
func (r *Registry) PluginIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Match resolves path against the filtered routes. Route segments starting
// with ':' capture the corresponding path segment.
func (r *Registry) Match(path string) (Route, map[string]string, bool) {
	for _, rt := range r.FilteredRoutes() {
		if params, ok := matchPath(rt.Path, path); ok {
			return rt, params, true
		}
	}
	return Route{}, nil, false
}

func (r *Registry) flatten() []Route {
	var out []Route
	for _, id := range r.order {
		out = append(out, r.routes[id]...)
	}
	return out
}

func (r *Registry) accepts(rt Route) bool {
	for _, m := range r.middleware {
		if !m(rt) {
			return false
		}
	}
	return true
}

func matchPath(pattern, path string) (map[string]string, bool) {
	ps := splitPath(pattern)
	xs := splitPath(path)
	if len(ps) != len(xs) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range ps {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			params[seg[1:]] = xs[i]
			continue
		}
		if seg != xs[i] {
			return nil, false
		}
	}
	return params, true
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
