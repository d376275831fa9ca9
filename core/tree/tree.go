/*Package tree defines the node data model of the yrest backend and the
identity algebra that maps nodes to URLs.

Every stored entity embeds Base, which carries the document identity:
the parent's url in Path, the url-safe Slug and the concrete Type name
used for polymorphic reconstruction. A node's own url is fully derived
from Path and Slug, there is no stored url field.
*/
package tree

import (
	"github.com/goccy/go-json"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Node is any stored tree element.
type Node interface {
	Tree() *Base
}

// Base is the common part of every node document.
type Base struct {
	ID   primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	Path string             `json:"path" bson:"path"`
	Slug string             `json:"slug,omitempty" bson:"slug,omitempty"`
	Type string             `json:"type,omitempty" bson:"type,omitempty"`
}

// Tree gives generic code access to the node identity.
func (b *Base) Tree() *Base { return b }

// URL returns the node's address under the rules of URL().
func (b *Base) URL() string { return URL(b.Path, b.Slug) }

// IsRoot reports whether the node is the tree root, the single node
// with an empty path.
func (b *Base) IsRoot() bool { return b.Path == "" }

// Named is the default slug feature: the slug derives from a single
// "name" field. Types with a different slug source implement Sluger
// themselves.
type Named struct {
	Name string `json:"name" bson:"name"`
}

// SlugFields names the fields that feed slug derivation.
func (n *Named) SlugFields() []string { return []string{"name"} }

// SlugSource returns the raw slug source with patch overrides applied.
func (n *Named) SlugSource(patch map[string]any) string {
	if v, ok := patch["name"].(string); ok {
		return v
	}
	return n.Name
}

// Sluger produces the slug source of a node. Changing any of the
// SlugFields re-derives the slug.
type Sluger interface {
	SlugFields() []string
	SlugSource(patch map[string]any) string
}

// Recursive marks a type whose child lists may contain the type itself.
// A recursive root is routed with path templates like any other type.
type Recursive struct{}

// IsRecursive marks the embedding type as self-referential.
func (Recursive) IsRecursive() bool { return true }

// Excluder lets a node hide fields from its wire representation,
// typically password hashes.
type Excluder interface {
	Exclude() []string
}

// Typed scalars carried into the JSON-schema projection as formats.
type (
	// Email is a string with format "email".
	Email string
	// Phone is a string with format "phone".
	Phone string
	// Password is a string with format "password".
	Password string
	// URLString is a string with format "url".
	URLString string
	// File is a base64 encoded string with format "byte".
	File string
)

// ToPlainMap converts a node to its wire representation: a JSON object
// with excluded fields removed.
func ToPlainMap(n Node) (map[string]any, error) {
	raw, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	// omitempty never fires for the fixed-size ObjectID
	if n.Tree().ID.IsZero() {
		delete(result, "_id")
	}
	if ex, ok := n.(Excluder); ok {
		for _, key := range ex.Exclude() {
			delete(result, key)
		}
	}
	return result, nil
}
