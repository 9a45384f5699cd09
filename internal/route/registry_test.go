package route

import (
	"testing"

	"github.com/soyeahso/trellis/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	return NewRegistry(logging.New(nil, "silent"))
}

func TestRegisterPluginRoutes_Replaces(t *testing.T) {
	r := testRegistry()
	r1 := Route{Path: "/one", Component: "One"}
	r2 := Route{Path: "/two", Component: "Two"}

	r.RegisterPluginRoutes("cal", []Route{r1})
	r.RegisterPluginRoutes("cal", []Route{r2})

	assert.Equal(t, []Route{r2}, r.PluginRoutes("cal"))
	assert.Equal(t, []string{"cal"}, r.PluginIDs())
}

func TestRegisterPluginRoutes_CopiesInput(t *testing.T) {
	r := testRegistry()
	routes := []Route{{Path: "/a", Component: "A"}}
	r.RegisterPluginRoutes("p", routes)

	routes[0].Path = "/changed"
	assert.Equal(t, "/a", r.PluginRoutes("p")[0].Path)
}

func TestPluginRoutes_Missing(t *testing.T) {
	r := testRegistry()
	got := r.PluginRoutes("nope")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestAllRoutes_Order(t *testing.T) {
	r := testRegistry()
	r.RegisterPluginRoutes("b", []Route{{Path: "/b1"}, {Path: "/b2"}})
	r.RegisterPluginRoutes("a", []Route{{Path: "/a1"}})
	r.RegisterPluginRoutes("b", []Route{{Path: "/b3"}})

	var paths []string
	for _, rt := range r.AllRoutes() {
		paths = append(paths, rt.Path)
	}
	assert.Equal(t, []string{"/b3", "/a1"}, paths)
}

func TestUnregisterPluginRoutes(t *testing.T) {
	r := testRegistry()
	r.RegisterPluginRoutes("a", []Route{{Path: "/a"}})
	r.UnregisterPluginRoutes("a")
	r.UnregisterPluginRoutes("a")
	r.UnregisterPluginRoutes("never")

	assert.Empty(t, r.AllRoutes())
	assert.Empty(t, r.PluginIDs())
}

func TestFilteredRoutes(t *testing.T) {
	r := testRegistry()
	r.RegisterPluginRoutes("a", []Route{
		{Path: "/public", Component: "P"},
		{Path: "/admin", Component: "A", Meta: map[string]any{"requiresAuth": true}},
	})
	r.AddMiddleware(func(rt Route) bool { return rt.Meta["requiresAuth"] != true })
	r.AddMiddleware(nil)

	filtered := r.FilteredRoutes()
	require.Len(t, filtered, 1)
	assert.Equal(t, "/public", filtered[0].Path)
	assert.Len(t, r.AllRoutes(), 2)
}

func TestFilteredRoutes_AllMiddlewareMustAccept(t *testing.T) {
	r := testRegistry()
	r.RegisterPluginRoutes("a", []Route{{Path: "/x"}})
	r.AddMiddleware(func(Route) bool { return true })
	r.AddMiddleware(func(Route) bool { return false })

	assert.Empty(t, r.FilteredRoutes())
}

func TestMatch(t *testing.T) {
	r := testRegistry()
	r.RegisterPluginRoutes("cal", []Route{
		{Path: "/calendar", Component: "CalendarGrid"},
		{Path: "/calendar/:id", Component: "EventList"},
	})

	rt, params, ok := r.Match("/calendar/42")
	require.True(t, ok)
	assert.Equal(t, "EventList", rt.Component)
	assert.Equal(t, map[string]string{"id": "42"}, params)

	rt, params, ok = r.Match("/calendar/")
	require.True(t, ok)
	assert.Equal(t, "CalendarGrid", rt.Component)
	assert.Empty(t, params)

	_, _, ok = r.Match("/other")
	assert.False(t, ok)
}
