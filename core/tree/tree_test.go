package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secretive struct {
	Base
	Named
	Token string `json:"token"`
}

func (s *secretive) Exclude() []string { return []string{"token"} }

func TestBaseURL(t *testing.T) {
	root := &Base{Path: ""}
	assert.Equal(t, "/", root.URL())
	assert.True(t, root.IsRoot())

	node := &Base{Path: "/users", Slug: "bob"}
	assert.Equal(t, "/users/bob", node.URL())
	assert.False(t, node.IsRoot())
}

func TestNamedSlugSource(t *testing.T) {
	n := &Named{Name: "Alice"}
	assert.Equal(t, []string{"name"}, n.SlugFields())
	assert.Equal(t, "Alice", n.SlugSource(nil))
	assert.Equal(t, "Bob", n.SlugSource(map[string]any{"name": "Bob"}))
	assert.Equal(t, "Alice", n.SlugSource(map[string]any{"name": 42}))
}

func TestToPlainMap(t *testing.T) {
	s := &secretive{Token: "hunter2"}
	s.Name = "Alice"
	s.Path = "/"
	s.Slug = "alice"
	s.Type = "secretive"

	plain, err := ToPlainMap(s)
	require.NoError(t, err)

	assert.Equal(t, "Alice", plain["name"])
	assert.Equal(t, "/", plain["path"])
	assert.Equal(t, "alice", plain["slug"])
	assert.NotContains(t, plain, "token")
	assert.NotContains(t, plain, "_id")
}
