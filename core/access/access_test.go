package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yrest-dev/yrest/core/tree"
)

type actor struct {
	tree.Base
	roles []string
}

func (a *actor) ActorRoles() []string { return a.roles }

func node(path, slug string) *tree.Base {
	return &tree.Base{Path: path, Slug: slug}
}

func TestRuleAllows(t *testing.T) {
	target := node("/projects", "alpha")

	testCases := []struct {
		name    string
		roles   []string
		actor   tree.Node
		allowed bool
	}{
		{"everybody, anonymous", []string{"everybody"}, nil, true},
		{"authenticated, anonymous", []string{"authenticated"}, nil, false},
		{"authenticated, with actor", []string{"authenticated"}, &actor{}, true},
		{"owner, not the owner", []string{"owner"}, &actor{roles: []string{"owner@/other"}}, false},
		{"owner, the owner", []string{"owner"}, &actor{roles: []string{"owner@/projects/alpha"}}, true},
		{"literal role match", []string{"admin"}, &actor{roles: []string{"admin"}}, true},
		{"literal role miss", []string{"admin"}, &actor{roles: []string{"viewer"}}, false},
		{"first of several suffices", []string{"owner", "admin"}, &actor{roles: []string{"admin"}}, true},
		{"no roles at all", nil, &actor{roles: []string{"admin"}}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rule := &Rule{Roles: tc.roles}
			allowed, err := rule.Allows(context.Background(), tc.actor, target)
			require.NoError(t, err)
			assert.Equal(t, tc.allowed, allowed)
		})
	}
}

func TestRuleSlug(t *testing.T) {
	rule := &Rule{Context: "Project", Name: "update"}
	assert.Equal(t, []string{"context", "name"}, rule.SlugFields())
	assert.Equal(t, "Project update", rule.SlugSource(nil))
	assert.Equal(t, "Task update", rule.SlugSource(map[string]any{"context": "Task"}))
}

func TestOwnerRole(t *testing.T) {
	role := OwnerRole("/projects/alpha")
	assert.Equal(t, "owner@/projects/alpha", role)

	url, ok := IsOwnerRole(role)
	assert.True(t, ok)
	assert.Equal(t, "/projects/alpha", url)

	_, ok = IsOwnerRole("admin")
	assert.False(t, ok)
}
