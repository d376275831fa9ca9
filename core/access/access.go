/*Package access provides the permission contract the dispatcher
authorizes against, plus a stored role-based rule implementation.

A permission is looked up by (context, name): the type of the resolved
node and the handler member the request addresses ("call" substitutes
for "index"). Whether an anonymous actor is acceptable is entirely the
rule's decision; the dispatcher only supplies a nil actor when the
bearer token is missing or invalid.
*/
package access

import (
	"context"
	"strings"

	"github.com/yrest-dev/yrest/core/tree"
)

// Permission is the contract a stored rule node must satisfy.
type Permission interface {
	Allows(ctx context.Context, actor, node tree.Node) (bool, error)
}

// Roled exposes an actor's roles to permission rules.
type Roled interface {
	ActorRoles() []string
}

// Rule is a stored permission: the roles allowed to invoke handler
// "name" on nodes of type "context".
//
// Role semantics:
//   - "everybody" allows any caller, including anonymous ones
//   - "authenticated" allows any caller with a resolved actor
//   - "owner" allows actors carrying the "owner@<node url>" role
//   - any other entry must literally appear in the actor's roles
type Rule struct {
	tree.Base
	Context string   `json:"context" bson:"context"`
	Name    string   `json:"name" bson:"name"`
	Roles   []string `json:"roles" bson:"roles"`
}

// SlugFields names the slug sources of a rule.
func (r *Rule) SlugFields() []string { return []string{"context", "name"} }

// SlugSource derives the rule slug from its context and name.
func (r *Rule) SlugSource(patch map[string]any) string {
	context, name := r.Context, r.Name
	if v, ok := patch["context"].(string); ok {
		context = v
	}
	if v, ok := patch["name"].(string); ok {
		name = v
	}
	return context + " " + name
}

// Allows implements Permission.
func (r *Rule) Allows(_ context.Context, actor, node tree.Node) (bool, error) {
	var roles []string
	if ra, ok := actor.(Roled); ok && actor != nil {
		roles = ra.ActorRoles()
	}

	for _, allowed := range r.Roles {
		switch allowed {
		case "everybody":
			return true, nil
		case "authenticated":
			if actor != nil {
				return true, nil
			}
		case "owner":
			if node != nil && hasRole(roles, OwnerRole(node.Tree().URL())) {
				return true, nil
			}
		default:
			if hasRole(roles, allowed) {
				return true, nil
			}
		}
	}
	return false, nil
}

// OwnerRole is the role granted to the creator of a node.
func OwnerRole(url string) string {
	return "owner@" + url
}

// IsOwnerRole reports whether the role is an ownership role and, if so,
// for which url.
func IsOwnerRole(role string) (string, bool) {
	url, found := strings.CutPrefix(role, "owner@")
	if !found {
		return "", false
	}
	return url, true
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
