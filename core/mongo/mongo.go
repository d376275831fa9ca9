/*Package mongo implements the persistence protocol of the node tree on
a single MongoDB collection of heterogeneous documents.

Structural mutations (update, delete, create-child) batch all their
writes and run them in one multi-document transaction on one session,
so the tree invariants are never observable half-applied. The unique
(path, slug) index is the only cross-request serialization point;
concurrent conflicting creates surface as duplicate-key errors.
*/
package mongo

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/auth"
	"github.com/yrest-dev/yrest/core/logger"
	"github.com/yrest-dev/yrest/core/pointers"
	"github.com/yrest-dev/yrest/core/registry"
	"github.com/yrest-dev/yrest/core/tree"
)

// Builder wires a Store.
type Builder struct {
	// URI is the MongoDB connection string. Mandatory.
	URI string
	// Database is the database name. Mandatory.
	Database string
	// Collection is the node collection; defaults to the database name.
	Collection string
	// GridFS opens a GridFS bucket on the database.
	GridFS bool
	// Registry is the node schema registry. Mandatory.
	Registry *registry.Registry
	// Root is the root model's type name. Mandatory.
	Root string
}

// Store is the tree store. It implements core.Store.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	bucket     *gridfs.Bucket
	registry   *registry.Registry
	root       string
}

var _ core.Store = (*Store)(nil)

// Open connects the store and ensures its indexes. It panics on broken
// builder wiring and returns an error for connection failures.
func Open(ctx context.Context, b *Builder) (*Store, error) {
	if b.URI == "" || b.Database == "" {
		panic("mongo: URI and Database are mandatory")
	}
	if b.Registry == nil {
		panic("mongo: Registry is mandatory")
	}
	if b.Root == "" {
		panic("mongo: Root is mandatory")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(b.URI))
	if err != nil {
		return nil, err
	}
	db := client.Database(b.Database)

	collection := b.Collection
	if collection == "" {
		collection = b.Database
	}

	s := &Store{
		client:     client,
		collection: db.Collection(collection),
		registry:   b.Registry,
		root:       b.Root,
	}
	if b.GridFS {
		s.bucket, err = gridfs.NewBucket(db)
		if err != nil {
			return nil, err
		}
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	if root, err := s.GetOne(ctx, s.root, core.Query{Path: rootPath()}); err == nil && root != nil {
		logger.Default().Infof("tree root %q is seeded", s.root)
	}
	return s, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Bucket returns the GridFS bucket, or nil when not configured.
func (s *Store) Bucket() *gridfs.Bucket { return s.bucket }

// Registry returns the schema registry the store decodes with.
func (s *Store) Registry() *registry.Registry { return s.registry }

// RootType returns the root model's type name.
func (s *Store) RootType() string { return s.root }

func rootPath() *string {
	return pointers.String("")
}

// ensureIndexes creates the unique (path, slug) identity index, the
// TTL expiry for password-reset tokens and the type index.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "path", Value: 1}, {Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(auth.ResetTokenTTL / time.Second)),
		},
		{
			Keys: bson.D{{Key: "type", Value: 1}},
		},
	})
	return err
}

// filter translates a query into a concrete match document. The type
// restriction is injected unless the query overrides it.
func filter(typeName string, q core.Query) bson.M {
	f := bson.M{}
	for key, value := range q.Filter {
		f[key] = value
	}
	if q.URL != "" {
		path, slug := tree.Decompose(q.URL)
		f["path"] = path
		if slug != "" {
			f["slug"] = slug
		}
	}
	if q.Path != nil {
		f["path"] = *q.Path
	}
	if q.Slug != "" {
		f["slug"] = q.Slug
	}
	if q.ID != nil {
		f["_id"] = q.ID
	}
	if q.Type != "" {
		f["type"] = q.Type
	} else if typeName != "" {
		if _, overridden := f["type"]; !overridden {
			f["type"] = typeName
		}
	}
	return f
}

func sortDoc(fields []core.SortField) bson.D {
	sort := make(bson.D, 0, len(fields))
	for _, f := range fields {
		order := 1
		if f.Desc {
			order = -1
		}
		sort = append(sort, bson.E{Key: f.Key, Value: order})
	}
	return sort
}

// GetOne implements core.Store. A miss is (nil, nil).
func (s *Store) GetOne(ctx context.Context, typeName string, q core.Query) (tree.Node, error) {
	opts := options.FindOne()
	if len(q.Sort) > 0 {
		opts.SetSort(sortDoc(q.Sort))
	}
	raw, err := s.collection.FindOne(ctx, filter(typeName, q), opts).Raw()
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.registry.Decode(raw)
}

// GetMany implements core.Store.
func (s *Store) GetMany(ctx context.Context, typeName string, q core.Query) ([]tree.Node, error) {
	opts := options.Find()
	if len(q.Sort) > 0 {
		opts.SetSort(sortDoc(q.Sort))
	}
	cursor, err := s.collection.Find(ctx, filter(typeName, q), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	return s.decodeAll(ctx, cursor)
}

func (s *Store) decodeAll(ctx context.Context, cursor *mongo.Cursor) ([]tree.Node, error) {
	var nodes []tree.Node
	for cursor.Next(ctx) {
		n, err := s.registry.Decode(bson.Raw(cursor.Current))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, cursor.Err()
}

// Create implements core.Store: it fixes the node's type and slug and
// inserts the document.
func (s *Store) Create(ctx context.Context, n tree.Node) error {
	b := n.Tree()
	if b.Type == "" {
		b.Type = reflect.TypeOf(n).Elem().Name()
	}
	if b.Slug == "" {
		if source, ok := registry.SlugSource(n, nil); ok {
			b.Slug = tree.Slugify(source)
		}
	}

	result, err := s.collection.InsertOne(ctx, n)
	if mongo.IsDuplicateKeyError(err) {
		return core.Errorf(core.KindDuplicateKey, "%s already exists", b.URL())
	}
	if err != nil {
		return err
	}
	if id, ok := result.InsertedID.(primitive.ObjectID); ok {
		b.ID = id
	}
	return nil
}

// transact runs fn inside a single multi-document transaction on one
// session. The transaction commits or aborts as a unit even when the
// request is cancelled mid-flight.
func (s *Store) transact(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	})
	if mongo.IsDuplicateKeyError(err) {
		return core.Errorf(core.KindDuplicateKey, "%v", err)
	}
	return err
}

// applyPatch mirrors a committed patch into the in-memory node.
func applyPatch(n tree.Node, patch map[string]any) error {
	raw, err := bson.Marshal(patch)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, n)
}

func (s *Store) descriptorOf(n tree.Node) (*registry.Descriptor, error) {
	name := n.Tree().Type
	if name == "" {
		name = reflect.TypeOf(n).Elem().Name()
	}
	d, ok := s.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("mongo: unregistered node type %q", name)
	}
	return d, nil
}
