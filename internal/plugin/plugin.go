// Package plugin holds the plugin descriptor, the registry that owns plugin
// status, the Base lifecycle embedded by concrete plugins, and the Manager
// that installs and removes them.
package plugin

import (
	"context"
	"time"

	"github.com/soyeahso/trellis/internal/component"
	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
	"github.com/soyeahso/trellis/internal/pluginconfig"
	"github.com/soyeahso/trellis/internal/route"
	"github.com/soyeahso/trellis/internal/theme"
)

// Status is the lifecycle status the Registry tracks per plugin.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusError    Status = "ERROR"
	StatusDisabled Status = "DISABLED"
)

func (s Status) String() string { return string(s) }

// Dependency names another plugin and the version range it must satisfy.
type Dependency struct {
	ID      string `json:"id" yaml:"id"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// Metadata is descriptive data plus declared dependencies. Dependencies are
// checked in declaration order.
type Metadata struct {
	Author               string       `json:"author,omitempty"`
	License              string       `json:"license,omitempty"`
	Homepage             string       `json:"homepage,omitempty"`
	Dependencies         []Dependency `json:"dependencies,omitempty"`
	OptionalDependencies []Dependency `json:"optionalDependencies,omitempty"`
}

// HookFunc is a lifecycle callback. A nil hook is skipped.
type HookFunc func(ctx context.Context, api *API) error

// Hooks are the optional lifecycle callbacks a descriptor may carry.
type Hooks struct {
	Initialize HookFunc
	Start      HookFunc
	Stop       HookFunc
	Teardown   HookFunc
	OnInit     HookFunc
	OnEnable   HookFunc
	OnDisable  HookFunc
}

// TimeRange bounds a metrics query.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Metrics are named numeric measurements reported by a plugin.
type Metrics map[string]float64

// MetricsFunc reports a plugin's metrics over a time range.
type MetricsFunc func(ctx context.Context, tr TimeRange) (Metrics, error)

// Plugin describes an installable plugin.
type Plugin struct {
	ID          string
	Name        string
	Version     string
	Description string
	Metadata    Metadata

	// Components are registered into the UI registry on install and
	// removed on uninstall.
	Components map[string]component.Entry
	Routes     []route.Route
	// Theme is merged into the current theme on install.
	Theme *theme.Theme

	Hooks   Hooks
	Metrics MetricsFunc
}

// Info is a summary of a plugin for listings.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Active  bool   `json:"active"`
}

// Lookup answers questions about installed plugins.
type Lookup interface {
	HasPlugin(id string) bool
	Plugin(id string) (*Plugin, bool)
}

// API is the set of services handed to plugin hooks.
type API struct {
	// Plugins resolves dependencies. Falls back to Registry when nil.
	Plugins    Lookup
	Registry   *Registry
	Events     *eventbus.Bus
	Components *component.UIRegistry
	Routes     *route.Registry
	Themes     *theme.Manager
	Config     *pluginconfig.Manager
	Log        *logging.Logger
}

// Emit publishes an event on channel. Delivery problems are logged, not
// returned; emitting on a stopped bus is silently skipped.
func (a *API) Emit(ctx context.Context, channel, eventType string, data any, source string) {
	if a == nil || a.Events == nil || !a.Events.IsRunning() {
		return
	}
	status, err := a.Events.Emit(ctx, eventbus.NewEvent(channel, eventType, data, source))
	switch {
	case fault.IsKind(err, fault.KindNotFound):
		a.logger().Debug().Str("channel", channel).Str("type", eventType).Msg("event channel not registered")
	case err != nil:
		a.logger().Warn().Err(err).Str("type", eventType).Msg("event not emitted")
	case status != eventbus.StatusSuccess:
		a.logger().Warn().Str("type", eventType).Str("status", status.String()).Msg("event not delivered to every subscriber")
	}
}

func (a *API) lookup() Lookup {
	switch {
	case a == nil:
		return emptyLookup{}
	case a.Plugins != nil:
		return a.Plugins
	case a.Registry != nil:
		return a.Registry
	default:
		return emptyLookup{}
	}
}

func (a *API) logger() *logging.Logger {
	if a == nil || a.Log == nil {
		return logging.Nop()
	}
	return a.Log
}

// forPlugin returns a copy of a whose logger is tagged with the plugin id.
func (a *API) forPlugin(id string) *API {
	if a == nil {
		return &API{Log: logging.Nop().With("plugin", id)}
	}
	cp := *a
	cp.Log = a.logger().With("plugin", id)
	return &cp
}

func (a *API) setStatus(id string, s Status) {
	if a == nil || a.Registry == nil || !a.Registry.HasPlugin(id) {
		return
	}
	if err := a.Registry.SetPluginState(id, s); err != nil {
		a.logger().Warn().Err(err).Str("id", id).Msg("status not recorded")
	}
}

type emptyLookup struct{}

func (emptyLookup) HasPlugin(string) bool         { return false }
func (emptyLookup) Plugin(string) (*Plugin, bool) { return nil, false }
