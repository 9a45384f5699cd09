package plugin

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/statekit"

	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/fault"
)

// Phase is a Base plugin's local lifecycle position.
type Phase string

const (
	stateUninitialized = "uninitialized"
	stateInitialized   = "initialized"
	stateStarted       = "started"
	stateTornDown      = "torn_down"
)

const (
	PhaseUninitialized Phase = stateUninitialized
	PhaseInitialized   Phase = stateInitialized
	PhaseStarted       Phase = stateStarted
	PhaseTornDown      Phase = stateTornDown
)

// Lifecycle machine events.
const (
	evInitialize = "INITIALIZE"
	evStart      = "START"
	evStop       = "STOP"
	evTeardown   = "TEARDOWN"
)

// Behavior is what a concrete plugin supplies to Base.
type Behavior interface {
	OnInitialize(ctx context.Context, api *API) error
	OnTeardown(ctx context.Context) error
}

// Starter is implemented by behaviors that need to act on start.
type Starter interface {
	OnStart(ctx context.Context) error
}

// Stopper is implemented by behaviors that need to act on stop.
type Stopper interface {
	OnStop(ctx context.Context) error
}

// MetricsProvider is implemented by behaviors that report metrics.
type MetricsProvider interface {
	Metrics(ctx context.Context, tr TimeRange) (Metrics, error)
}

type lifecycle struct{}

// Base runs the shared lifecycle: dependency checks, status transitions
// through the Registry, and plugin:* events. Concrete plugins embed it.
type Base struct {
	id       string
	name     string
	version  string
	meta     Metadata
	behavior Behavior

	opMu   sync.Mutex // serializes lifecycle operations
	mu     sync.RWMutex
	interp *statekit.Interpreter[lifecycle]
	api    *API
}

// NewBase creates a Base for behavior.
func NewBase(id, name, version string, meta Metadata, behavior Behavior) *Base {
	machine, err := statekit.NewMachine[lifecycle]("plugin-lifecycle").
		WithInitial(stateUninitialized).
		WithContext(lifecycle{}).
		State(stateUninitialized).
		On(evInitialize).Target(stateInitialized).Done().
		State(stateInitialized).
		On(evStart).Target(stateStarted).
		On(evTeardown).Target(stateTornDown).Done().
		State(stateStarted).
		On(evStop).Target(stateInitialized).
		On(evTeardown).Target(stateTornDown).Done().
		State(stateTornDown).
		On(evInitialize).Target(stateInitialized).Done().
		Build()
	if err != nil {
		// The machine is static; a build error is a programming mistake.
		panic("plugin: lifecycle machine: " + err.Error())
	}

	interp := statekit.NewInterpreter(machine)
	interp.Start()

	return &Base{
		id:       id,
		name:     name,
		version:  version,
		meta:     meta,
		behavior: behavior,
		interp:   interp,
	}
}

func (b *Base) ID() string         { return b.id }
func (b *Base) Name() string       { return b.name }
func (b *Base) Version() string    { return b.version }
func (b *Base) Metadata() Metadata { return b.meta }

// Phase returns the local lifecycle phase.
func (b *Base) Phase() Phase {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Phase(b.interp.State().Value)
}

// Initialized reports whether the plugin is initialized or started.
func (b *Base) Initialized() bool {
	p := b.Phase()
	return p == PhaseInitialized || p == PhaseStarted
}

// API returns the services passed to Initialize, or nil before that.
func (b *Base) API() *API {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.api
}

// Initialize checks dependencies and runs the behavior's setup. Required
// dependencies fail fast on the first one missing; optional ones only warn.
// On failure the plugin stays uninitialized and may be initialized again.
func (b *Base) Initialize(ctx context.Context, api *API) error {
	emit, err := b.initialize(ctx, api)
	emit(ctx)
	return err
}

func (b *Base) initialize(ctx context.Context, api *API) (pending, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if b.Initialized() {
		return nothing, fault.New(fault.KindAlreadyInitialized,
			"plugin already initialized: "+b.id, fault.WithSubject(b.id))
	}
	if api == nil {
		api = &API{}
	}
	log := api.logger()
	lookup := api.lookup()

	if dep, missing := FirstMissing(lookup, b.meta.Dependencies); missing {
		return nothing, fault.New(fault.KindMissingDependency,
			"plugin "+b.id+" requires missing dependency: "+dep.ID,
			fault.WithSubject(dep.ID))
	}
	for _, dep := range b.meta.OptionalDependencies {
		if !DependencySatisfied(lookup, dep) {
			log.Warn().Str("id", b.id).Str("dependency", dep.ID).Msg("optional dependency not available")
		}
	}

	if err := b.behavior.OnInitialize(ctx, api); err != nil {
		log.Error().Err(err).Str("id", b.id).Msg("plugin initialization failed")
		api.setStatus(b.id, StatusError)
		return b.held(api, eventbus.PluginError, map[string]any{"error": err.Error()}), err
	}

	b.mu.Lock()
	b.api = api
	b.interp.Send(statekit.Event{Type: evInitialize})
	b.mu.Unlock()

	api.setStatus(b.id, StatusInactive)
	log.Info().Str("id", b.id).Msg("plugin initialized")
	return b.held(api, eventbus.PluginInitialized, nil), nil
}

// Start moves an initialized plugin to ACTIVE. Starting a started plugin
// does nothing.
func (b *Base) Start(ctx context.Context) error {
	emit, err := b.start(ctx)
	emit(ctx)
	return err
}

func (b *Base) start(ctx context.Context) (pending, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	switch b.Phase() {
	case PhaseStarted:
		return nothing, nil
	case PhaseInitialized:
	default:
		return nothing, fault.New(fault.KindNotInitialized,
			"plugin not initialized: "+b.id, fault.WithSubject(b.id))
	}

	if s, ok := b.behavior.(Starter); ok {
		if err := s.OnStart(ctx); err != nil {
			return nothing, err
		}
	}
	b.transition(evStart)

	api := b.API()
	api.setStatus(b.id, StatusActive)
	api.logger().Info().Str("id", b.id).Msg("plugin started")
	return b.held(api, eventbus.PluginStarted, nil), nil
}

// Stop moves the plugin back to INACTIVE. Stopping an uninitialized plugin
// does nothing.
func (b *Base) Stop(ctx context.Context) error {
	emit, err := b.stop(ctx)
	emit(ctx)
	return err
}

func (b *Base) stop(ctx context.Context) (pending, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	phase := b.Phase()
	if phase != PhaseInitialized && phase != PhaseStarted {
		return nothing, nil
	}

	if s, ok := b.behavior.(Stopper); ok {
		if err := s.OnStop(ctx); err != nil {
			return nothing, err
		}
	}
	if phase == PhaseStarted {
		b.transition(evStop)
	}

	api := b.API()
	api.setStatus(b.id, StatusInactive)
	api.logger().Info().Str("id", b.id).Msg("plugin stopped")
	return b.held(api, eventbus.PluginStopped, nil), nil
}

// Teardown releases the plugin and marks it DISABLED. Tearing down an
// uninitialized plugin does nothing.
func (b *Base) Teardown(ctx context.Context) error {
	emit, err := b.teardown(ctx)
	emit(ctx)
	return err
}

func (b *Base) teardown(ctx context.Context) (pending, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	if !b.Initialized() {
		return nothing, nil
	}
	if err := b.behavior.OnTeardown(ctx); err != nil {
		return nothing, err
	}
	b.transition(evTeardown)

	api := b.API()
	api.setStatus(b.id, StatusDisabled)
	api.logger().Info().Str("id", b.id).Msg("plugin torn down")
	return b.held(api, eventbus.PluginTeardown, nil), nil
}

// pending is a lifecycle event held back until opMu is released, so
// subscribers may drive the same plugin.
type pending func(ctx context.Context)

func nothing(context.Context) {}

func (b *Base) held(api *API, event string, extra map[string]any) pending {
	data := b.eventData(extra)
	return func(ctx context.Context) {
		api.Emit(ctx, eventbus.ChannelPlugin, event, data, b.id)
	}
}

// Descriptor returns a Plugin whose hooks drive this Base, so it can be
// installed through a Manager.
func (b *Base) Descriptor() *Plugin {
	p := &Plugin{
		ID:       b.id,
		Name:     b.name,
		Version:  b.version,
		Metadata: b.meta,
		Hooks: Hooks{
			Initialize: b.Initialize,
			Start:      func(ctx context.Context, _ *API) error { return b.Start(ctx) },
			Stop:       func(ctx context.Context, _ *API) error { return b.Stop(ctx) },
			Teardown:   func(ctx context.Context, _ *API) error { return b.Teardown(ctx) },
		},
	}
	if mp, ok := b.behavior.(MetricsProvider); ok {
		p.Metrics = mp.Metrics
	}
	return p
}

func (b *Base) transition(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interp.Send(statekit.Event{Type: statekit.EventType(event)})
}

func (b *Base) eventData(extra map[string]any) map[string]any {
	data := map[string]any{
		"id":      b.id,
		"name":    b.name,
		"version": b.version,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
