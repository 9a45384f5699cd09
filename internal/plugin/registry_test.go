package plugin

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/trellis/internal/fault"
)

func TestRegistry_Register(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&Plugin{ID: "test", Name: "Test Plugin", Version: "1.0.0"}))
	assert.Equal(t, 1, reg.Count())
	assert.True(t, reg.HasPlugin("test"))
}

func TestRegistry_Register_Invalid(t *testing.T) {
	reg := testRegistry()
	assert.True(t, fault.IsKind(reg.Register(nil), fault.KindInvalidArgument))
	assert.True(t, fault.IsKind(reg.Register(&Plugin{Name: "no id"}), fault.KindInvalidArgument))
}

func TestRegistry_UniquenessAcrossUnregister(t *testing.T) {
	reg := testRegistry()
	p := &Plugin{ID: "test", Name: "Test", Version: "1.0.0"}

	require.NoError(t, reg.Register(p))
	err := reg.Register(p)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindDuplicateRegistration))
	assert.Contains(t, err.Error(), "already registered")

	require.NoError(t, reg.Unregister("test"))
	require.NoError(t, reg.Register(p))

	reg.Clear()
	require.NoError(t, reg.Register(p))
}

func TestRegistry_Unregister_Unknown(t *testing.T) {
	reg := testRegistry()
	err := reg.Unregister("ghost")
	assert.True(t, fault.IsKind(err, fault.KindNotFound))
	assert.Equal(t, "ghost", fault.SubjectOf(err))
}

func TestRegistry_StatusAbsentUntilSet(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&Plugin{ID: "a", Name: "A"}))

	_, ok := reg.PluginState("a")
	assert.False(t, ok)

	require.NoError(t, reg.SetPluginState("a", StatusInactive))
	s, ok := reg.PluginState("a")
	assert.True(t, ok)
	assert.Equal(t, StatusInactive, s)
}

func TestRegistry_SetPluginState_Unknown(t *testing.T) {
	reg := testRegistry()
	assert.True(t, fault.IsKind(reg.SetPluginState("ghost", StatusActive), fault.KindNotFound))
}

func TestRegistry_UnregisterDropsStatus(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&Plugin{ID: "a", Name: "A"}))
	require.NoError(t, reg.SetPluginState("a", StatusActive))
	require.NoError(t, reg.Unregister("a"))
	require.NoError(t, reg.Register(&Plugin{ID: "a", Name: "A"}))

	_, ok := reg.PluginState("a")
	assert.False(t, ok)
}

func TestRegistry_OrderAndActive(t *testing.T) {
	reg := testRegistry()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, reg.Register(&Plugin{ID: id, Name: id}))
	}
	require.NoError(t, reg.SetPluginState("b", StatusActive))
	require.NoError(t, reg.SetPluginState("c", StatusActive))
	require.NoError(t, reg.SetPluginState("a", StatusError))

	var ids []string
	for _, p := range reg.Plugins() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	ids = nil
	for _, p := range reg.ActivePlugins() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "b"}, ids)

	require.NoError(t, reg.Unregister("a"))
	ids = nil
	for _, p := range reg.Plugins() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "b"}, ids)
}

func TestRegistry_Info(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&Plugin{ID: "a", Name: "Alpha", Version: "1.0.0"}))
	require.NoError(t, reg.Register(&Plugin{ID: "b", Name: "Beta", Version: "2.0.0"}))
	require.NoError(t, reg.SetPluginState("b", StatusActive))

	infos := reg.Info()
	require.Len(t, infos, 2)
	assert.Equal(t, Info{ID: "a", Name: "Alpha", Version: "1.0.0"}, infos[0])
	assert.Equal(t, Info{ID: "b", Name: "Beta", Version: "2.0.0", Status: "ACTIVE", Active: true}, infos[1])
}

func TestRegistry_Clear(t *testing.T) {
	reg := testRegistry()
	require.NoError(t, reg.Register(&Plugin{ID: "a", Name: "A"}))
	require.NoError(t, reg.SetPluginState("a", StatusActive))
	reg.Clear()

	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.Plugins())
	_, ok := reg.PluginState("a")
	assert.False(t, ok)
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := testRegistry()

	var wg sync.WaitGroup
	for i := range 32 {
		id := fmt.Sprintf("p%02d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, reg.Register(&Plugin{ID: id, Name: id, Version: "1.0.0"}))
			assert.NoError(t, reg.SetPluginState(id, StatusActive))
			if i%4 == 0 {
				assert.NoError(t, reg.Unregister(id))
			}
		}()
		go func() {
			defer wg.Done()
			_ = reg.Info()
			_ = reg.ActivePlugins()
			_, _ = reg.PluginState(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 24, reg.Count())
	assert.Len(t, reg.ActivePlugins(), 24)
}
