// Package calendar is the builtin calendar plugin. It contributes calendar
// views, routes and theme colors, and keeps the data sources and events the
// views render.
package calendar

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/trellis/internal/component"
	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/plugin"
	"github.com/soyeahso/trellis/internal/pluginconfig"
	"github.com/soyeahso/trellis/internal/route"
	"github.com/soyeahso/trellis/internal/theme"
)

const (
	ID      = "calendar"
	Name    = "Calendar"
	Version = "1.0.0"

	// Category groups the plugin's components in the UI registry.
	Category = "calendar"
)

// Event types emitted on the plugin channel.
const (
	EventAdded        = "calendar:event-added"
	DataSourceAdded   = "calendar:source-added"
	DataSourceRemoved = "calendar:source-removed"
)

// DataSource is a feed of calendar events.
type DataSource struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Event is a single calendar entry.
type Event struct {
	ID       string    `json:"id"`
	SourceID string    `json:"sourceId"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// View is the component value registered for each calendar view.
type View struct {
	Name  string
	Props []string
}

// Schema is the calendar's config schema.
func Schema() pluginconfig.Schema {
	return pluginconfig.Schema{
		"apiKey": {
			Type:        pluginconfig.TypeString,
			Sensitive:   true,
			Description: "key for the remote calendar provider",
		},
		"weekStart": {
			Type:    pluginconfig.TypeString,
			Default: "monday",
			Validate: func(v any) bool {
				s, _ := v.(string)
				return s == "monday" || s == "sunday"
			},
		},
		"defaultView": {
			Type:    pluginconfig.TypeString,
			Default: "month",
			Validate: func(v any) bool {
				return slices.Contains([]string{"month", "week", "day"}, v.(string))
			},
		},
		"maxEvents": {Type: pluginconfig.TypeNumber, Default: 500},
	}
}

// Components returns the views the plugin contributes.
func Components() map[string]component.Entry {
	return map[string]component.Entry{
		"CalendarGrid": {
			Component: View{Name: "CalendarGrid", Props: []string{"view", "weekStart"}},
			Metadata:  &component.Metadata{Category: Category, Description: "month, week and day grid", Tags: []string{"grid"}},
		},
		"EventList": {
			Component: View{Name: "EventList", Props: []string{"sourceId"}},
			Metadata:  &component.Metadata{Category: Category, Description: "chronological event list", Tags: []string{"list"}},
		},
	}
}

// Routes returns the pages the plugin contributes.
func Routes() []route.Route {
	return []route.Route{
		{Path: "/calendar", Component: "CalendarGrid", Meta: map[string]any{"title": "Calendar"}},
		{Path: "/calendar/:id", Component: "EventList", Meta: map[string]any{"title": "Events"}},
	}
}

// Colors are merged into the current theme.
func Colors() map[string]string {
	return map[string]string{
		"calendarToday":   "#1e88e5",
		"calendarEvent":   "#43a047",
		"calendarWeekend": "#f5f5f5",
	}
}

// Plugin is the calendar plugin.
type Plugin struct {
	*plugin.Base

	mu        sync.RWMutex
	sources   []DataSource
	events    []Event
	weekStart string
	subID     string
}

// New creates an uninitialized calendar plugin.
func New() *Plugin {
	p := &Plugin{weekStart: "monday"}
	p.Base = plugin.NewBase(ID, Name, Version, plugin.Metadata{
		Author:  "trellis",
		License: "MIT",
	}, p)
	return p
}

// OnInitialize registers the plugin's schema, views, routes and colors.
func (p *Plugin) OnInitialize(ctx context.Context, api *plugin.API) error {
	if api.Config != nil {
		err := api.Config.RegisterSchema(ID, Schema())
		if err != nil && !fault.IsKind(err, fault.KindDuplicateRegistration) {
			return err
		}
	}

	if api.Components != nil {
		names := make([]string, 0, 2)
		for name, entry := range Components() {
			if err := api.Components.Register(name, entry.Component, entry.Metadata); err != nil {
				for _, n := range names {
					_ = api.Components.Unregister(n)
				}
				return err
			}
			names = append(names, name)
		}
	}

	if api.Routes != nil {
		api.Routes.RegisterPluginRoutes(ID, Routes())
	}
	if api.Themes != nil {
		api.Themes.ExtendTheme(theme.Theme{Colors: Colors()})
	}

	if api.Events != nil && api.Events.IsRunning() && api.Events.HasChannel(eventbus.ChannelConfig) {
		id, err := api.Events.Subscribe(eventbus.ChannelConfig, p.onConfigEvent)
		if err != nil {
			return err
		}
		p.mu.Lock()
		p.subID = id
		p.mu.Unlock()
	}

	p.applyConfig(api)
	return nil
}

// OnTeardown removes everything OnInitialize registered.
func (p *Plugin) OnTeardown(context.Context) error {
	api := p.API()
	if api == nil {
		return nil
	}
	if api.Components != nil {
		for name := range Components() {
			_ = api.Components.Unregister(name)
		}
	}
	if api.Routes != nil {
		api.Routes.UnregisterPluginRoutes(ID)
	}

	p.mu.Lock()
	subID := p.subID
	p.subID = ""
	p.mu.Unlock()
	if subID != "" && api.Events != nil {
		api.Events.Unsubscribe(subID)
	}
	return nil
}

// Metrics reports source and event counts. "events" counts events starting
// within tr.
func (p *Plugin) Metrics(_ context.Context, tr plugin.TimeRange) (plugin.Metrics, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	inRange := 0
	for _, ev := range p.events {
		if !ev.Start.Before(tr.From) && ev.Start.Before(tr.To) {
			inRange++
		}
	}
	return plugin.Metrics{
		"sources":     float64(len(p.sources)),
		"events":      float64(inRange),
		"eventsTotal": float64(len(p.events)),
	}, nil
}

// WeekStart returns the configured first day of the week.
func (p *Plugin) WeekStart() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.weekStart
}

// AddDataSource adds a feed. IDs must be unique.
func (p *Plugin) AddDataSource(ctx context.Context, ds DataSource) error {
	if ds.ID == "" || ds.Name == "" {
		return fault.New(fault.KindInvalidArgument, "data source id and name are required")
	}
	p.mu.Lock()
	if p.sourceIndex(ds.ID) >= 0 {
		p.mu.Unlock()
		return fault.New(fault.KindDuplicateRegistration,
			"data source already added: "+ds.ID, fault.WithSubject(ds.ID))
	}
	p.sources = append(p.sources, ds)
	p.mu.Unlock()

	p.API().Emit(ctx, eventbus.ChannelPlugin, DataSourceAdded, map[string]any{"id": ds.ID}, ID)
	return nil
}

// RemoveDataSource removes a feed and its events.
func (p *Plugin) RemoveDataSource(ctx context.Context, id string) error {
	p.mu.Lock()
	i := p.sourceIndex(id)
	if i < 0 {
		p.mu.Unlock()
		return fault.New(fault.KindNotFound, "no data source: "+id, fault.WithSubject(id))
	}
	p.sources = slices.Delete(p.sources, i, i+1)
	p.events = slices.DeleteFunc(p.events, func(ev Event) bool { return ev.SourceID == id })
	p.mu.Unlock()

	p.API().Emit(ctx, eventbus.ChannelPlugin, DataSourceRemoved, map[string]any{"id": id}, ID)
	return nil
}

// DataSources returns the feeds in the order they were added.
func (p *Plugin) DataSources() []DataSource {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.sources)
}

// AddEvent records an event on an existing source. An empty ID is filled in.
func (p *Plugin) AddEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.End.Before(ev.Start) {
		return Event{}, fault.New(fault.KindInvalidArgument, "event ends before it starts")
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	p.mu.Lock()
	if p.sourceIndex(ev.SourceID) < 0 {
		p.mu.Unlock()
		return Event{}, fault.New(fault.KindNotFound, "no data source: "+ev.SourceID, fault.WithSubject(ev.SourceID))
	}
	p.events = append(p.events, ev)
	p.mu.Unlock()

	p.API().Emit(ctx, eventbus.ChannelPlugin, EventAdded, map[string]any{
		"id":       ev.ID,
		"sourceId": ev.SourceID,
	}, ID)
	return ev, nil
}

// EventsBetween returns events starting in [from, to), ordered by start.
func (p *Plugin) EventsBetween(from, to time.Time) []Event {
	p.mu.RLock()
	var out []Event
	for _, ev := range p.events {
		if !ev.Start.Before(from) && ev.Start.Before(to) {
			out = append(out, ev)
		}
	}
	p.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (p *Plugin) sourceIndex(id string) int {
	return slices.IndexFunc(p.sources, func(ds DataSource) bool { return ds.ID == id })
}

func (p *Plugin) onConfigEvent(_ context.Context, ev eventbus.Event) error {
	if ev.Type != eventbus.ConfigChanged {
		return nil
	}
	data, ok := ev.Data.(map[string]any)
	if !ok || data["plugin"] != ID {
		return nil
	}
	if api := p.API(); api != nil {
		p.applyConfig(api)
	}
	return nil
}

func (p *Plugin) applyConfig(api *plugin.API) {
	if api.Config == nil {
		return
	}
	cfg, ok := api.Config.GetConfig(ID)
	if !ok {
		return
	}
	if ws, ok := cfg["weekStart"].(string); ok {
		p.mu.Lock()
		p.weekStart = ws
		p.mu.Unlock()
	}
}
