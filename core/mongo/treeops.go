package mongo

import (
	"context"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/registry"
	"github.com/yrest-dev/yrest/core/tree"
)

// Update implements core.Store. A patch that touches a slug-source
// field or the path renames or moves the node: the slug is re-derived,
// every descendant path gets its leading prefix rewritten and the
// parent's child-list entry is replaced, all in one transaction.
func (s *Store) Update(ctx context.Context, n tree.Node, patch map[string]any) error {
	models, patch, err := s.updateModels(ctx, n, patch)
	if err != nil {
		return err
	}
	if err := s.transact(ctx, func(sc mongo.SessionContext) error {
		_, err := s.collection.BulkWrite(sc, models)
		return err
	}); err != nil {
		return err
	}
	return applyPatch(n, patch)
}

// updateModels builds the batched write for a patch: the node's own
// $set first, then one path rewrite per descendant, then the parent
// child-list fix-up.
func (s *Store) updateModels(ctx context.Context, n tree.Node, patch map[string]any) ([]mongo.WriteModel, map[string]any, error) {
	d, err := s.descriptorOf(n)
	if err != nil {
		return nil, nil, err
	}

	// The caller's map stays untouched.
	kwargs := make(map[string]any, len(patch)+1)
	for key, value := range patch {
		kwargs[key] = value
	}
	indexer := "slug"
	if v, ok := kwargs["indexer"].(string); ok {
		indexer = v
		delete(kwargs, "indexer")
	}

	var models []mongo.WriteModel
	if touchesIdentity(d, kwargs) {
		if source, ok := registry.SlugSource(n, kwargs); ok {
			kwargs["slug"] = tree.Slugify(source)
		}

		b := n.Tree()
		oldURL := b.URL()
		newPath := b.Path
		if v, ok := kwargs["path"].(string); ok {
			newPath = v
		}
		newSlug := b.Slug
		if v, ok := kwargs["slug"].(string); ok {
			newSlug = v
		}
		newURL := tree.URL(newPath, newSlug)

		descendants, err := s.pathRewrites(ctx, oldURL, newURL)
		if err != nil {
			return nil, nil, err
		}

		parentFix, err := s.parentListRewrite(ctx, n, indexer, kwargs)
		if err != nil {
			return nil, nil, err
		}

		models = append(models, descendants...)
		if parentFix != nil {
			models = append(models, parentFix)
		}
	}

	self := mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": n.Tree().ID}).
		SetUpdate(bson.M{"$set": kwargs})
	return append([]mongo.WriteModel{self}, models...), kwargs, nil
}

func touchesIdentity(d *registry.Descriptor, patch map[string]any) bool {
	if _, ok := patch["path"]; ok {
		return true
	}
	for _, field := range d.SlugFields {
		if _, ok := patch[field]; ok {
			return true
		}
	}
	return false
}

// pathRewrites scans the subtree under oldURL and rewrites the leading
// prefix of every descendant path, once, exactly.
func (s *Store) pathRewrites(ctx context.Context, oldURL, newURL string) ([]mongo.WriteModel, error) {
	if oldURL == newURL {
		return nil, nil
	}
	cursor, err := s.collection.Find(ctx, bson.M{"path": bson.M{"$regex": "^" + regexp.QuoteMeta(oldURL)}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var models []mongo.WriteModel
	for cursor.Next(ctx) {
		var doc struct {
			ID   any    `bson:"_id"`
			Path string `bson:"path"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetUpdate(bson.M{"$set": bson.M{"path": strings.Replace(doc.Path, oldURL, newURL, 1)}}))
	}
	return models, cursor.Err()
}

// parentListRewrite replaces the node's entry in every child-list field
// of the parent that stores this node's type. Id-indexed lists keep
// their entry, the id never changes on a rename.
func (s *Store) parentListRewrite(ctx context.Context, n tree.Node, indexer string, kwargs map[string]any) (mongo.WriteModel, error) {
	parent, err := s.Parent(ctx, n)
	if err != nil || parent == nil {
		return nil, err
	}
	pd, err := s.descriptorOf(parent)
	if err != nil {
		return nil, err
	}

	update := bson.M{}
	for _, cf := range pd.ChildrenFor(n.Tree().Type) {
		if cf.Mode == registry.ByID {
			continue
		}
		var oldKey any = n.Tree().Slug
		if indexer == "_id" {
			oldKey = n.Tree().ID
		}
		newKey, ok := kwargs[indexer]
		if !ok {
			continue
		}
		siblings, err := pd.List(parent, cf.Name)
		if err != nil {
			return nil, err
		}
		for i, sibling := range siblings {
			if sibling == oldKey {
				siblings[i] = newKey
				update[cf.Name] = siblings
				break
			}
		}
	}
	if len(update) == 0 {
		return nil, nil
	}
	return mongo.NewUpdateOneModel().
		SetFilter(bson.M{"_id": parent.Tree().ID}).
		SetUpdate(bson.M{"$set": update}), nil
}

// Delete implements core.Store: the node, its whole subtree and the
// parent's child-list entry go in one transaction.
func (s *Store) Delete(ctx context.Context, n tree.Node) error {
	b := n.Tree()

	var parentFix mongo.WriteModel
	parent, err := s.Parent(ctx, n)
	if err != nil {
		return err
	}
	if parent != nil {
		pd, err := s.descriptorOf(parent)
		if err != nil {
			return err
		}
		update := bson.M{}
		for _, cf := range pd.ChildrenFor(b.Type) {
			var key any = b.Slug
			if cf.Mode == registry.ByID {
				key = b.ID
			}
			siblings, err := pd.List(parent, cf.Name)
			if err != nil {
				return err
			}
			for i, sibling := range siblings {
				if sibling == key {
					update[cf.Name] = append(siblings[:i], siblings[i+1:]...)
					break
				}
			}
		}
		if len(update) > 0 {
			parentFix = mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": parent.Tree().ID}).
				SetUpdate(bson.M{"$set": update})
		}
	}

	models := []mongo.WriteModel{
		mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": b.ID}),
		mongo.NewDeleteManyModel().SetFilter(bson.M{"path": bson.M{"$regex": "^" + regexp.QuoteMeta(b.URL())}}),
	}
	if parentFix != nil {
		models = append(models, parentFix)
	}

	if err := s.transact(ctx, func(sc mongo.SessionContext) error {
		_, err := s.collection.BulkWrite(sc, models)
		return err
	}); err != nil {
		return err
	}
	b.ID = primitive.NilObjectID
	return nil
}

// CreateChild implements core.Store. When opt.As is empty the child's
// type must match exactly one child-list field of the parent; zero or
// several matches fail with the candidates in the message.
func (s *Store) CreateChild(ctx context.Context, parent, child tree.Node, opt core.ChildOptions) error {
	pd, err := s.descriptorOf(parent)
	if err != nil {
		return err
	}
	childType := child.Tree().Type
	if childType == "" {
		if cd, err := s.descriptorOf(child); err == nil {
			childType = cd.Name
		}
	}

	as, indexer := opt.As, opt.Indexer
	if as == "" {
		candidates := pd.ChildrenFor(childType)
		if len(candidates) != 1 {
			names := make([]string, len(candidates))
			for i, cf := range candidates {
				names[i] = cf.Name
			}
			return core.ChildAmbiguity(pd.Name, parent.Tree().Slug, childType, names)
		}
		as = candidates[0].Name
		if candidates[0].Mode == registry.ByID && indexer == "" {
			indexer = "_id"
		}
	}

	child.Tree().Path = parent.Tree().URL()

	var patch map[string]any
	if err := s.transact(ctx, func(sc mongo.SessionContext) error {
		if err := s.Create(sc, child); err != nil {
			return err
		}

		siblings, err := pd.List(parent, as)
		if err != nil {
			return err
		}
		var key any = child.Tree().Slug
		if indexer == "_id" {
			key = child.Tree().ID
		}
		patch = map[string]any{as: append(siblings, key)}

		models, built, err := s.updateModels(sc, parent, patch)
		if err != nil {
			return err
		}
		patch = built
		_, err = s.collection.BulkWrite(sc, models)
		return err
	}); err != nil {
		return err
	}
	return applyPatch(parent, patch)
}

// Parent implements core.Store: the immediate ancestor, nil for the
// root.
func (s *Store) Parent(ctx context.Context, n tree.Node) (tree.Node, error) {
	chain, err := s.ancestors(ctx, n, true)
	if err != nil || len(chain) == 0 {
		return nil, err
	}
	return chain[0], nil
}

// Ancestors implements core.Store: the full chain, root first.
func (s *Store) Ancestors(ctx context.Context, n tree.Node) ([]tree.Node, error) {
	chain, err := s.ancestors(ctx, n, false)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// ancestors issues a single $or query over the precomputed parent
// addresses, deepest first.
func (s *Store) ancestors(ctx context.Context, n tree.Node, parentOnly bool) ([]tree.Node, error) {
	url := n.Tree().URL()
	if url == "/" {
		return nil, nil
	}
	pairs := tree.Parents(url)
	if parentOnly {
		pairs = pairs[:1]
	}

	or := make([]bson.M, len(pairs))
	for i, pair := range pairs {
		if pair.Path == "" {
			or[i] = bson.M{"path": ""}
		} else {
			or[i] = bson.M{"path": pair.Path, "slug": pair.Slug}
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "path", Value: -1}})
	cursor, err := s.collection.Find(ctx, bson.M{"$or": or}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	return s.decodeAll(ctx, cursor)
}

// Children implements core.Store: one aggregation per child-list field.
// Without a caller sort the results are re-ordered to the parent's
// declared order via $indexOfArray.
func (s *Store) Children(ctx context.Context, n tree.Node, q *core.ChildrenQuery) (map[string][]tree.Node, error) {
	d, err := s.descriptorOf(n)
	if err != nil {
		return nil, err
	}
	url := n.Tree().URL()

	results := map[string][]tree.Node{}
	for _, cf := range d.ChildFields {
		indexes, err := d.List(n, cf.Name)
		if err != nil {
			return nil, err
		}

		var match bson.M
		indexerExpr := "$slug"
		if cf.Mode == registry.ByID {
			match = bson.M{"_id": bson.M{"$in": indexes}}
			indexerExpr = "$_id"
		} else {
			match = bson.M{"type": cf.Model, "path": url}
		}
		for key, value := range childExtra(q, cf.Model) {
			match[key] = value
		}

		pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
		if sort := childSort(q, cf.Model); sort != nil {
			pipeline = append(pipeline, bson.D{{Key: "$sort", Value: sortDoc(sort)}})
		} else {
			pipeline = append(pipeline,
				bson.D{{Key: "$addFields", Value: bson.M{
					"__order": bson.M{"$indexOfArray": bson.A{indexes, indexerExpr}},
				}}},
				bson.D{{Key: "$sort", Value: bson.M{"__order": 1}}},
			)
		}

		cursor, err := s.collection.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, err
		}
		nodes, err := s.decodeAll(ctx, cursor)
		cursor.Close(ctx)
		if err != nil {
			return nil, err
		}
		results[cf.Name] = nodes
	}
	return results, nil
}

func childSort(q *core.ChildrenQuery, model string) []core.SortField {
	if q == nil {
		return nil
	}
	if sort, ok := q.Sort[model]; ok {
		return sort
	}
	return q.Sort[""]
}

func childExtra(q *core.ChildrenQuery, model string) map[string]any {
	if q == nil {
		return nil
	}
	if extra, ok := q.Extra[model]; ok {
		return extra
	}
	return q.Extra[""]
}

// ResolvePath implements core.Store: resolve a url to a node, walking
// toward the root up to tolerance extra steps so a trailing member name
// can be recovered by the caller.
func (s *Store) ResolvePath(ctx context.Context, url string, tolerance int) (tree.Node, error) {
	if url == "/" {
		return s.rootNode(ctx, url)
	}

	current := url
	for steps := 0; ; steps++ {
		n, err := s.GetOne(ctx, "", core.Query{URL: current})
		if err != nil {
			return nil, err
		}
		if n != nil {
			return n, nil
		}
		if steps >= tolerance {
			break
		}
		current, _ = tree.Decompose(current)
		if current == "/" {
			return s.rootNode(ctx, url)
		}
	}
	return nil, core.Errorf(core.KindNotFound, "%s not found", url)
}

func (s *Store) rootNode(ctx context.Context, url string) (tree.Node, error) {
	root, err := s.GetOne(ctx, s.root, core.Query{Path: rootPath()})
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, core.Errorf(core.KindNotFound, "%s not found", url)
	}
	return root, nil
}
