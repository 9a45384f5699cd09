package plugin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
)

// Manager installs, initializes and removes plugins. It keeps no plugin map
// of its own: the Registry decides what is installed, the Manager only
// tracks which installed plugins it has initialized.
//
// Mutating operations are serialized, so a dependency check and the change
// that relies on it happen as one step. Hooks run while the operation is in
// progress and must not call back into the Manager.
type Manager struct {
	opMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	active      map[string]struct{}
	api         *API
	log         *logging.Logger
}

// NewManager creates a Manager acting through api. A Registry is created
// when api has none.
func NewManager(api *API, log *logging.Logger) *Manager {
	if api == nil {
		api = &API{}
	}
	if api.Registry == nil {
		api.Registry = NewRegistry(log)
	}
	if api.Log == nil {
		api.Log = log
	}
	return &Manager{
		active: make(map[string]struct{}),
		api:    api,
		log:    log.Sub("manager"),
	}
}

// Registry returns the registry the manager acts on.
func (m *Manager) Registry() *Registry { return m.api.Registry }

// API returns the services handed to plugin hooks.
func (m *Manager) API() *API { return m.api }

// Initialize makes the manager accept plugin operations. Calling it twice
// only logs a warning.
func (m *Manager) Initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		m.log.Warn().Msg("plugin manager already initialized")
		return
	}
	m.initialized = true
	m.log.Info().Msg("plugin manager initialized")
}

// IsInitialized reports whether Initialize has been called.
func (m *Manager) IsInitialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// RegisterPlugin installs p: checks identity and required dependencies,
// stores it in the Registry, then registers its components, routes and
// theme.
func (m *Manager) RegisterPlugin(ctx context.Context, p *Plugin) error {
	if err := m.register(p); err != nil {
		return err
	}
	m.api.Emit(ctx, eventbus.ChannelPlugin, eventbus.PluginRegistered, map[string]any{
		"id":      p.ID,
		"name":    p.Name,
		"version": p.Version,
	}, "manager")
	return nil
}

func (m *Manager) register(p *Plugin) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.requireInitialized(); err != nil {
		return err
	}
	if p == nil || p.ID == "" || p.Name == "" {
		return fault.New(fault.KindInvalidArgument, "plugin id and name are required")
	}

	reg := m.api.Registry
	if reg.HasPlugin(p.ID) {
		return fault.New(fault.KindDuplicateRegistration,
			"plugin already installed: "+p.ID, fault.WithSubject(p.ID))
	}
	if dep, missing := FirstMissing(reg, p.Metadata.Dependencies); missing {
		return fault.New(fault.KindMissingDependency,
			"plugin "+p.ID+" requires missing dependency: "+dep.ID,
			fault.WithSubject(dep.ID))
	}

	if err := reg.Register(p); err != nil {
		return err
	}
	if err := m.registerComponents(p); err != nil {
		_ = reg.Unregister(p.ID)
		return err
	}
	if m.api.Routes != nil && len(p.Routes) > 0 {
		m.api.Routes.RegisterPluginRoutes(p.ID, p.Routes)
	}
	if m.api.Themes != nil && p.Theme != nil {
		m.api.Themes.ExtendTheme(*p.Theme)
	}

	m.log.Info().
		Str("id", p.ID).
		Str("name", p.Name).
		Str("version", p.Version).
		Int("components", len(p.Components)).
		Int("routes", len(p.Routes)).
		Msg("plugin installed")
	return nil
}

// InstallPlugin is RegisterPlugin.
func (m *Manager) InstallPlugin(ctx context.Context, p *Plugin) error {
	return m.RegisterPlugin(ctx, p)
}

// UninstallPlugin removes a plugin. It is refused while another installed
// plugin requires it. A failing Teardown hook aborts the uninstall.
func (m *Manager) UninstallPlugin(ctx context.Context, id string) error {
	if err := m.uninstall(ctx, id); err != nil {
		return err
	}
	m.api.Emit(ctx, eventbus.ChannelPlugin, eventbus.PluginUninstalled, map[string]any{"id": id}, "manager")
	return nil
}

func (m *Manager) uninstall(ctx context.Context, id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.requireInitialized(); err != nil {
		return err
	}
	reg := m.api.Registry
	p, ok := reg.Plugin(id)
	if !ok {
		return notInstalled(id)
	}

	for _, other := range reg.Plugins() {
		for _, dep := range other.Metadata.Dependencies {
			if dep.ID == id {
				return fault.New(fault.KindDependentsExist,
					"plugin "+id+" is required by "+other.ID, fault.WithSubject(other.ID))
			}
		}
	}

	if p.Hooks.Teardown != nil {
		if err := p.Hooks.Teardown(ctx, m.api.forPlugin(id)); err != nil {
			m.log.Error().Err(err).Str("id", id).Msg("plugin teardown failed")
			return err
		}
	}

	m.unregisterComponents(p)
	if m.api.Routes != nil {
		m.api.Routes.UnregisterPluginRoutes(id)
	}
	if err := reg.Unregister(id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	m.log.Info().Str("id", id).Msg("plugin uninstalled")
	return nil
}

// InitializePlugin runs the plugin's Initialize then OnInit hooks. A plugin
// that is already active is left alone.
func (m *Manager) InitializePlugin(ctx context.Context, id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.requireInitialized(); err != nil {
		return err
	}
	p, ok := m.api.Registry.Plugin(id)
	if !ok {
		return notInstalled(id)
	}
	if m.IsPluginActive(id) {
		m.log.Warn().Str("id", id).Msg("plugin already initialized")
		return nil
	}

	api := m.api.forPlugin(id)
	for _, hook := range []HookFunc{p.Hooks.Initialize, p.Hooks.OnInit} {
		if hook == nil {
			continue
		}
		if err := hook(ctx, api); err != nil {
			m.api.setStatus(id, StatusError)
			m.log.Error().Err(err).Str("id", id).Msg("plugin initialization failed")
			return err
		}
	}

	if _, set := m.api.Registry.PluginState(id); !set {
		m.api.setStatus(id, StatusInactive)
	}
	m.mu.Lock()
	m.active[id] = struct{}{}
	m.mu.Unlock()

	m.log.Info().Str("id", id).Msg("plugin initialized")
	return nil
}

// EnablePlugin runs the Start then OnEnable hooks of an initialized plugin.
func (m *Manager) EnablePlugin(ctx context.Context, id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	p, err := m.initializedPlugin(id)
	if err != nil {
		return err
	}
	api := m.api.forPlugin(id)
	for _, hook := range []HookFunc{p.Hooks.Start, p.Hooks.OnEnable} {
		if hook == nil {
			continue
		}
		if err := hook(ctx, api); err != nil {
			m.log.Error().Err(err).Str("id", id).Msg("plugin enable failed")
			return err
		}
	}
	m.api.setStatus(id, StatusActive)
	m.log.Info().Str("id", id).Msg("plugin enabled")
	return nil
}

// DisablePlugin runs the OnDisable then Stop hooks of an initialized plugin.
func (m *Manager) DisablePlugin(ctx context.Context, id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	p, err := m.initializedPlugin(id)
	if err != nil {
		return err
	}
	api := m.api.forPlugin(id)
	for _, hook := range []HookFunc{p.Hooks.OnDisable, p.Hooks.Stop} {
		if hook == nil {
			continue
		}
		if err := hook(ctx, api); err != nil {
			m.log.Error().Err(err).Str("id", id).Msg("plugin disable failed")
			return err
		}
	}
	m.api.setStatus(id, StatusInactive)
	m.log.Info().Str("id", id).Msg("plugin disabled")
	return nil
}

// GetPluginMetrics asks a plugin for its metrics. A nil range means the last
// 24 hours.
func (m *Manager) GetPluginMetrics(ctx context.Context, id string, tr *TimeRange) (Metrics, error) {
	p, ok := m.api.Registry.Plugin(id)
	if !ok {
		return nil, notInstalled(id)
	}
	if p.Metrics == nil {
		return nil, fault.New(fault.KindUnsupported,
			"plugin does not report metrics: "+id, fault.WithSubject(id))
	}
	r := TimeRange{To: time.Now()}
	r.From = r.To.Add(-24 * time.Hour)
	if tr != nil {
		r = *tr
	}
	return p.Metrics(ctx, r)
}

// IsPluginInstalled reports whether id is in the Registry.
func (m *Manager) IsPluginInstalled(id string) bool {
	return m.api.Registry.HasPlugin(id)
}

// IsPluginActive reports whether id has been initialized through the manager.
func (m *Manager) IsPluginActive(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}

// Plugin returns an installed plugin.
func (m *Manager) Plugin(id string) (*Plugin, bool) {
	return m.api.Registry.Plugin(id)
}

// Plugins returns installed plugins in install order.
func (m *Manager) Plugins() []*Plugin {
	return m.api.Registry.Plugins()
}

// Reset forgets every plugin and returns the manager to uninitialized.
// Hooks are not run.
func (m *Manager) Reset() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	for _, p := range m.api.Registry.Plugins() {
		m.unregisterComponents(p)
		if m.api.Routes != nil {
			m.api.Routes.UnregisterPluginRoutes(p.ID)
		}
	}
	m.api.Registry.Clear()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = false
	m.active = make(map[string]struct{})
}

func (m *Manager) requireInitialized() error {
	if !m.IsInitialized() {
		return fault.New(fault.KindNotInitialized, "plugin manager not initialized")
	}
	return nil
}

func (m *Manager) initializedPlugin(id string) (*Plugin, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	p, ok := m.api.Registry.Plugin(id)
	if !ok {
		return nil, notInstalled(id)
	}
	if !m.IsPluginActive(id) {
		return nil, fault.New(fault.KindNotInitialized,
			"plugin not initialized: "+id, fault.WithSubject(id))
	}
	return p, nil
}

// registerComponents adds p's components in name order and removes the
// ones already added if any fails.
func (m *Manager) registerComponents(p *Plugin) error {
	if m.api.Components == nil || len(p.Components) == 0 {
		return nil
	}
	names := make([]string, 0, len(p.Components))
	for name := range p.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		entry := p.Components[name]
		if err := m.api.Components.Register(name, entry.Component, entry.Metadata); err != nil {
			for _, done := range names[:i] {
				_ = m.api.Components.Unregister(done)
			}
			return err
		}
	}
	return nil
}

func (m *Manager) unregisterComponents(p *Plugin) {
	if m.api.Components == nil {
		return
	}
	for name := range p.Components {
		if err := m.api.Components.Unregister(name); err != nil {
			m.log.Debug().Err(err).Str("component", name).Msg("component already gone")
		}
	}
}

func notInstalled(id string) error {
	return fault.New(fault.KindNotFound, "plugin not installed: "+id, fault.WithSubject(id))
}
