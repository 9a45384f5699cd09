package component

import (
	"sort"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// UIRegistry is a Registry that also indexes components by category and
// supports removal.
type UIRegistry struct {
	*Registry
	categories map[string]map[string]struct{}
}

// NewUIRegistry creates an empty UI component registry.
func NewUIRegistry(log *logging.Logger) *UIRegistry {
	return &UIRegistry{
		Registry:   NewRegistry(log),
		categories: make(map[string]map[string]struct{}),
	}
}

// Register stores component under name and indexes its category.
func (u *UIRegistry) Register(name string, component any, meta *Metadata) error {
	if name == "" {
		return fault.New(fault.KindInvalidArgument, "component name is required")
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.add(name, component, meta); err != nil {
		return err
	}
	if meta == nil || meta.Category == "" {
		return nil
	}
	set, ok := u.categories[meta.Category]
	if !ok {
		set = make(map[string]struct{})
		u.categories[meta.Category] = set
	}
	set[name] = struct{}{}
	return nil
}

// Unregister removes name. It returns a NotFound error if name is unknown.
func (u *UIRegistry) Unregister(name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.remove(name)
	if !ok {
		return fault.New(fault.KindNotFound, "component not registered: "+name, fault.WithSubject(name))
	}
	if e.Metadata != nil && e.Metadata.Category != "" {
		set := u.categories[e.Metadata.Category]
		delete(set, name)
		if len(set) == 0 {
			delete(u.categories, e.Metadata.Category)
		}
	}
	u.log.Debug().Str("component", name).Msg("component unregistered")
	return nil
}

// ByCategory returns the names of components in category, in registration order.
func (u *UIRegistry) ByCategory(category string) []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	set := u.categories[category]
	out := make([]string, 0, len(set))
	for _, name := range u.order {
		if _, ok := set[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Categories returns all known categories sorted by name.
func (u *UIRegistry) Categories() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make([]string, 0, len(u.categories))
	for c := range u.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
