package plugin

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/trellis/internal/eventbus"
	"github.com/soyeahso/trellis/internal/logging"
)

func silent() *logging.Logger { return logging.New(nil, "silent") }

func testRegistry() *Registry { return NewRegistry(silent()) }

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) handle(_ context.Context, ev eventbus.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, ev.Type)
	return nil
}

func (l *eventLog) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.types...)
}

func runningBus(t *testing.T) (*eventbus.Bus, *eventLog) {
	t.Helper()
	bus := eventbus.New(eventbus.Config{MaxRetries: 1}, silent())
	require.NoError(t, bus.RegisterChannel(eventbus.ChannelPlugin))
	bus.Start()
	events := &eventLog{}
	_, err := bus.Subscribe(eventbus.ChannelPlugin, events.handle)
	require.NoError(t, err)
	return bus, events
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ACTIVE", StatusActive.String())
	assert.Equal(t, "DISABLED", StatusDisabled.String())
}

func TestAPIEmit_NilAndStoppedBus(t *testing.T) {
	var nilAPI *API
	nilAPI.Emit(context.Background(), eventbus.ChannelPlugin, "x", nil, "test")

	bus := eventbus.New(eventbus.DefaultConfig(), silent())
	api := &API{Events: bus}
	api.Emit(context.Background(), eventbus.ChannelPlugin, "x", nil, "test")
}

func TestAPIEmit_UnregisteredChannelIsQuiet(t *testing.T) {
	bus := eventbus.New(eventbus.DefaultConfig(), silent())
	bus.Start()
	api := &API{Events: bus, Log: silent()}
	api.Emit(context.Background(), "nowhere", "x", nil, "test")
}

func TestAPILookupFallback(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&Plugin{ID: "a", Name: "A", Version: "1.0.0"}))

	assert.True(t, (&API{Registry: reg}).lookup().HasPlugin("a"))
	assert.False(t, (&API{}).lookup().HasPlugin("a"))

	var nilAPI *API
	assert.False(t, nilAPI.lookup().HasPlugin("a"))
}
