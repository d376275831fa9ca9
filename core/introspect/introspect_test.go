package introspect

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/registry"
	"github.com/yrest-dev/yrest/core/tree"
)

type Site struct {
	tree.Base
	tree.Named
	Pages   []string `json:"pages,omitempty" bson:"pages,omitempty" model:"Page"`
	Drafts  []string `json:"drafts,omitempty" bson:"drafts,omitempty" model:"Page"`
	Authors []string `json:"authors,omitempty" bson:"authors,omitempty" model:"Author"`
}

type Page struct {
	tree.Base
	tree.Named
	tree.Recursive
	Pages []string `json:"pages,omitempty" bson:"pages,omitempty" model:"Page"`
}

type Author struct {
	tree.Base
	tree.Named
}

type Login struct {
	Email tree.Email `json:"email"`
}

func noop(_ context.Context, _ *Call) (any, error) { return nil, nil }

func newFixture(t *testing.T) (*registry.Registry, *Set) {
	t.Helper()
	reg := registry.New()
	reg.MustRegister(&Site{})
	reg.MustRegister(&Page{})
	reg.MustRegister(&Author{})
	reg.MustRegister(&Login{})

	set := NewSet()
	set.Handle("Site", "index", &Handler{Func: noop, Produces: []string{"Site"}})
	set.Handle("Site", "auth", &Handler{Func: noop, Consumes: "Login"})
	set.Handle("Site", "stats", &Handler{Func: noop})
	set.Handle("Site", "create_page", &Handler{Func: noop, Consumes: "Page"})
	set.Handle("Page", "index", &Handler{Func: noop, Produces: []string{"Page"}})
	set.Handle("Page", "update", &Handler{Func: noop, Consumes: "Page", Produces: []string{"Page"}})
	set.Handle("Page", "remove", &Handler{Func: noop})
	set.Handle("Author", "index", &Handler{Func: noop, Produces: []string{"Author"}})
	return reg, set
}

func TestIntrospectWalksTheTypeGraph(t *testing.T) {
	reg, set := newFixture(t)
	table, err := Introspect(reg, set, "Site")
	require.NoError(t, err)

	assert.Len(t, table, 3)
	assert.Contains(t, table, "Site")
	assert.Contains(t, table, "Page")
	assert.Contains(t, table, "Author")

	// factories are deduplicated across child-list fields
	assert.Equal(t, []string{"Page", "Author"}, table["Site"].Factories)
	assert.Equal(t, []string{"Page"}, table["Page"].Factories)
	assert.Empty(t, table["Author"].Factories)
}

func TestClassification(t *testing.T) {
	reg, set := newFixture(t)
	table, err := Introspect(reg, set, "Site")
	require.NoError(t, err)

	// index registers under "call" and gets the bare root url
	index, ok := table.Handler("Site", "index")
	require.True(t, ok)
	assert.Equal(t, http.MethodGet, index.Verb)
	assert.Equal(t, []string{"/"}, index.URLs)

	// plain members are GET routes
	stats, _ := table.Handler("Site", "stats")
	assert.Equal(t, http.MethodGet, stats.Verb)
	assert.Equal(t, []string{"/stats"}, stats.URLs)

	// auth consumes but stays a POST
	auth, _ := table.Handler("Site", "auth")
	assert.Equal(t, http.MethodPost, auth.Verb)
	assert.Equal(t, []string{"/auth"}, auth.URLs)

	// create_<model> is the factory POST
	factory, _ := table.Handler("Site", "create_page")
	assert.Equal(t, http.MethodPost, factory.Verb)
	assert.Equal(t, []string{"/new/page"}, factory.URLs)

	// non-root types are routed through path templates
	pageIndex, _ := table.Handler("Page", "index")
	assert.Equal(t, http.MethodGet, pageIndex.Verb)
	assert.Equal(t, []string{"/{Page_Path}/"}, pageIndex.URLs)

	update, _ := table.Handler("Page", "update")
	assert.Equal(t, http.MethodPut, update.Verb)
	assert.Equal(t, []string{"/{Page_Path}/update"}, update.URLs)

	remove, _ := table.Handler("Page", "remove")
	assert.Equal(t, http.MethodDelete, remove.Verb)
	assert.Equal(t, []string{"/{Page_Path}/"}, remove.URLs)
}

// a recursive root gets both the bare and the pathed templates
func TestClassificationRecursiveRoot(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(&Page{})

	set := NewSet()
	set.Handle("Page", "index", &Handler{Func: noop, Produces: []string{"Page"}})

	table, err := Introspect(reg, set, "Page")
	require.NoError(t, err)

	index, _ := table.Handler("Page", "index")
	assert.Equal(t, []string{"/", "/{Page_Path}/"}, index.URLs)
}

// the table is a pure function of the registrations
func TestIntrospectIsDeterministic(t *testing.T) {
	reg, set := newFixture(t)
	first, err := Introspect(reg, set, "Site")
	require.NoError(t, err)
	second, err := Introspect(reg, set, "Site")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestIntrospectRejectsBrokenWiring(t *testing.T) {
	reg := registry.New()
	reg.MustRegister(&Author{})

	set := NewSet()
	_, err := Introspect(reg, set, "Site")
	assert.Error(t, err)

	set.Handle("Author", "login", &Handler{Func: noop, Consumes: "Login"})
	_, err = Introspect(reg, set, "Author")
	assert.Error(t, err, "consumed type is not registered")

	assert.Panics(t, func() {
		NewSet().Handle("Author", "index", &Handler{})
	})
}

func TestCrashes(t *testing.T) {
	crashes := Crashes(core.KindNotFound, core.KindUnauthorized)

	notFound := crashes["NotFound"]
	assert.Equal(t, http.StatusNotFound, notFound.Code)
	assert.Equal(t, "ErrorMessage", notFound.Returns)
	assert.Equal(t, "Raises when not found", notFound.Description)

	unauthorized := crashes["Unauthorized"]
	assert.Equal(t, http.StatusUnauthorized, unauthorized.Code)
}
