package core

import (
	"context"
	"net/http"

	"github.com/yrest-dev/yrest/core/tree"
)

// SortField is one component of a query sort order.
type SortField struct {
	Key  string
	Desc bool
}

// Query addresses nodes in the store. All set members are combined by
// equality; URL is decomposed into path and slug before matching. Path
// is a pointer because the root node is addressed by the empty path.
type Query struct {
	ID     any
	URL    string
	Path   *string
	Slug   string
	Type   string // overrides the type filter injected by GetOne/GetMany
	Filter map[string]any
	Sort   []SortField
}

// ChildOptions controls CreateChild. As names the parent's child-list
// field; when empty the unique field accepting the child's type is
// chosen. Indexer is "slug" or "_id" and defaults per the field's
// element type.
type ChildOptions struct {
	As      string
	Indexer string
}

// ChildrenQuery refines a Children call. Both maps are keyed by child
// type name; the empty key applies to every child list.
type ChildrenQuery struct {
	Sort  map[string][]SortField
	Extra map[string]map[string]any
}

// Store is the persistence protocol of the node tree.
//
// GetOne and ResolvePath report misses differently on purpose: GetOne
// returns (nil, nil) like the absent marker of a plain lookup, while
// ResolvePath fails with a NotFound error because the dispatcher maps
// it straight to a 404.
type Store interface {
	// GetOne returns the unique node matching the query, or nil. The
	// query is restricted to typeName unless overridden.
	GetOne(ctx context.Context, typeName string, q Query) (tree.Node, error)
	// GetMany returns all matching nodes, ordered by q.Sort.
	GetMany(ctx context.Context, typeName string, q Query) ([]tree.Node, error)
	// Create inserts the node and assigns its id. A (path, slug)
	// collision fails with a DuplicateKey error.
	Create(ctx context.Context, n tree.Node) error
	// Update applies the patch transactionally, re-deriving the slug
	// and rewriting descendant paths and the parent child-list when the
	// patch renames or moves the node.
	Update(ctx context.Context, n tree.Node, patch map[string]any) error
	// Delete removes the node and its whole subtree transactionally and
	// drops the node from the parent child-list.
	Delete(ctx context.Context, n tree.Node) error
	// CreateChild inserts child under parent and appends it to the
	// parent's child-list in one transaction.
	CreateChild(ctx context.Context, parent, child tree.Node, opt ChildOptions) error
	// Parent returns the immediate parent, or nil for the root.
	Parent(ctx context.Context, n tree.Node) (tree.Node, error)
	// Ancestors returns the ancestor chain root-first.
	Ancestors(ctx context.Context, n tree.Node) ([]tree.Node, error)
	// Children returns the nodes of every child-list field, keyed by
	// field name, in the parent's declared order unless sorted.
	Children(ctx context.Context, n tree.Node, q *ChildrenQuery) (map[string][]tree.Node, error)
	// ResolvePath resolves a url to a node, walking up to tolerance
	// extra steps toward the root when the exact url misses.
	ResolvePath(ctx context.Context, url string, tolerance int) (tree.Node, error)
}

// Notifier dispatches named notifications, e.g. "forgot_password".
type Notifier interface {
	Notify(ctx context.Context, r *http.Request, name string, args map[string]any) error
}

// Backend is the server context passed to every handler. There is no
// ambient application state.
type Backend interface {
	Store() Store
	Secret() string
	UserType() string
	Debug() bool
	Notifier
}
