package component

import (
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/soyeahso/trellis/internal/fault"
	"github.com/soyeahso/trellis/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct{ label string }

func testLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(testLog())
	require.NoError(t, r.Register("Grid", widget{"grid"}, &Metadata{Category: "calendar"}))

	c, ok := r.Get("Grid")
	require.True(t, ok)
	assert.Equal(t, widget{"grid"}, c)
	assert.Equal(t, "calendar", r.Metadata("Grid").Category)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_Register_Duplicate(t *testing.T) {
	r := NewRegistry(testLog())
	require.NoError(t, r.Register("Grid", widget{}, nil))

	err := r.Register("Grid", widget{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fault.ErrDuplicateRegistration)
	assert.Contains(t, err.Error(), "Grid")
}

func TestRegistry_Register_EmptyName(t *testing.T) {
	r := NewRegistry(testLog())
	assert.ErrorIs(t, r.Register("", widget{}, nil), fault.ErrInvalidArgument)
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry(testLog())
	c, ok := r.Get("nope")
	assert.False(t, ok)
	assert.Nil(t, c)
	assert.Nil(t, r.Metadata("nope"))
}

func TestRegistry_MetadataIsCopied(t *testing.T) {
	r := NewRegistry(testLog())
	meta := &Metadata{Category: "a", Tags: []string{"x"}}
	require.NoError(t, r.Register("W", widget{}, meta))

	meta.Tags[0] = "changed"
	got := r.Metadata("W")
	assert.Equal(t, []string{"x"}, got.Tags)

	got.Category = "b"
	assert.Equal(t, "a", r.Metadata("W").Category)
}

func TestRegistry_AllAndNames(t *testing.T) {
	r := NewRegistry(testLog())
	require.NoError(t, r.Register("B", widget{"b"}, nil))
	require.NoError(t, r.Register("A", widget{"a"}, nil))

	assert.Equal(t, []string{"B", "A"}, r.Names())
	all := r.All()
	assert.Len(t, all, 2)
	assert.Equal(t, widget{"a"}, all["A"])
}

func TestUIRegistry_Categories(t *testing.T) {
	u := NewUIRegistry(testLog())
	require.NoError(t, u.Register("Grid", widget{}, &Metadata{Category: "calendar"}))
	require.NoError(t, u.Register("List", widget{}, &Metadata{Category: "calendar"}))
	require.NoError(t, u.Register("Chart", widget{}, &Metadata{Category: "analytics"}))
	require.NoError(t, u.Register("Plain", widget{}, nil))

	assert.Equal(t, []string{"analytics", "calendar"}, u.Categories())
	assert.Equal(t, []string{"Grid", "List"}, u.ByCategory("calendar"))
	assert.Empty(t, u.ByCategory("missing"))
}

func TestUIRegistry_Unregister(t *testing.T) {
	u := NewUIRegistry(testLog())
	require.NoError(t, u.Register("Chart", widget{}, &Metadata{Category: "analytics"}))

	require.NoError(t, u.Unregister("Chart"))
	_, ok := u.Get("Chart")
	assert.False(t, ok)
	assert.Empty(t, u.Categories())
	assert.Empty(t, u.Names())

	err := u.Unregister("Chart")
	assert.ErrorIs(t, err, fault.ErrNotFound)
}

func TestUIRegistry_ReRegisterAfterUnregister(t *testing.T) {
	u := NewUIRegistry(testLog())
	require.NoError(t, u.Register("Grid", widget{"v1"}, nil))
	require.NoError(t, u.Unregister("Grid"))
	require.NoError(t, u.Register("Grid", widget{"v2"}, nil))

	c, ok := u.Get("Grid")
	require.True(t, ok)
	assert.Equal(t, widget{"v2"}, c)
}

func TestUIRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	u := NewUIRegistry(testLog())

	var wg sync.WaitGroup
	for i := range 64 {
		name := fmt.Sprintf("Widget%02d", i)
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, u.Register(name, widget{}, &Metadata{Category: "grid"}))
		}()
		go func() {
			defer wg.Done()
			for u.Unregister(name) != nil {
				runtime.Gosched()
			}
			_ = u.ByCategory("grid")
		}()
	}
	wg.Wait()

	assert.Empty(t, u.Names())
	assert.Empty(t, u.Categories())
	assert.Empty(t, u.ByCategory("grid"))
}
