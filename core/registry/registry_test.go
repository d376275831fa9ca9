package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yrest-dev/yrest/core/tree"
)

type folder struct {
	tree.Base
	tree.Named
	tree.Recursive
	Folders   []string             `json:"folders,omitempty" bson:"folders,omitempty" model:"folder"`
	Documents []primitive.ObjectID `json:"documents,omitempty" bson:"documents,omitempty" model:"document"`
	Pinned    *string              `json:"pinned,omitempty" bson:"pinned,omitempty"`
	Size      int                  `json:"size" bson:"size" schema:"minimum=0"`
}

type document struct {
	tree.Base
	tree.Named
	Body string `json:"body" bson:"body"`
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	r.MustRegister(&folder{})
	r.MustRegister(&document{})
	return r
}

func TestDescriptorComposition(t *testing.T) {
	r := newTestRegistry(t)
	d, ok := r.Lookup("folder")
	require.True(t, ok)

	assert.Equal(t, []string{"folder", "Base", "Named", "Recursive"}, d.Features)
	assert.True(t, d.IsNode())
	assert.True(t, d.Recursive)
	assert.Equal(t, []string{"name"}, d.SlugFields)
}

func TestDescriptorChildFields(t *testing.T) {
	r := newTestRegistry(t)
	d, _ := r.Lookup("folder")

	folders, ok := d.Child("folders")
	require.True(t, ok)
	assert.Equal(t, "folder", folders.Model)
	assert.Equal(t, BySlug, folders.Mode)

	documents, ok := d.Child("documents")
	require.True(t, ok)
	assert.Equal(t, "document", documents.Model)
	assert.Equal(t, ByID, documents.Mode)

	assert.Len(t, d.ChildrenFor("document"), 1)
	assert.Empty(t, d.ChildrenFor("unknown"))
}

func TestDescriptorLists(t *testing.T) {
	r := newTestRegistry(t)
	d, _ := r.Lookup("folder")

	f := &folder{Folders: []string{"a", "b"}}
	values, err := d.List(f, "folders")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, values)

	require.NoError(t, d.SetList(f, "folders", []any{"c"}))
	assert.Equal(t, []string{"c"}, f.Folders)

	assert.Error(t, d.SetList(f, "folders", []any{42}))
	_, err = d.List(f, "nope")
	assert.Error(t, err)
}

func TestDescriptorRequiredFields(t *testing.T) {
	r := newTestRegistry(t)
	d, _ := r.Lookup("folder")

	required := map[string]bool{}
	for _, f := range d.Fields {
		required[f.Name] = f.Required
	}
	// identity fields and optional fields are never required
	assert.False(t, required["_id"])
	assert.False(t, required["path"])
	assert.False(t, required["slug"])
	assert.False(t, required["folders"])
	assert.False(t, required["pinned"])
	assert.True(t, required["name"])
	assert.True(t, required["size"])
}

func TestSchemaProjection(t *testing.T) {
	r := newTestRegistry(t)
	d, _ := r.Lookup("folder")

	schema := d.Schema()
	assert.Equal(t, "object", schema["type"])

	properties := schema["properties"].(map[string]any)
	size := properties["size"].(map[string]any)
	assert.Equal(t, "integer", size["type"])
	assert.Equal(t, float64(0), size["minimum"])

	folders := properties["folders"].(map[string]any)
	assert.Equal(t, "array", folders["type"])

	assert.Contains(t, schema["required"], "name")
	assert.Contains(t, schema["required"], "size")
}

func TestValidate(t *testing.T) {
	r := newTestRegistry(t)

	assert.NoError(t, r.Validate("document", []byte(`{"name":"readme","body":"hello"}`)))

	err := r.Validate("document", []byte(`{"name":"readme"}`))
	require.Error(t, err)

	err = r.Validate("folder", []byte(`{"name":"stuff","size":-1}`))
	require.Error(t, err)

	assert.Error(t, r.Validate("unknown", []byte(`{}`)))
}

func TestDecode(t *testing.T) {
	r := newTestRegistry(t)

	raw, err := bson.Marshal(bson.M{
		"type": "document",
		"path": "/stuff",
		"slug": "readme",
		"name": "readme",
		"body": "hello",
	})
	require.NoError(t, err)

	n, err := r.Decode(raw)
	require.NoError(t, err)
	doc, ok := n.(*document)
	require.True(t, ok)
	assert.Equal(t, "hello", doc.Body)
	assert.Equal(t, "/stuff/readme", doc.Tree().URL())

	raw, _ = bson.Marshal(bson.M{"type": "unknown"})
	_, err = r.Decode(raw)
	assert.Error(t, err)

	raw, _ = bson.Marshal(bson.M{"path": "/"})
	_, err = r.Decode(raw)
	assert.Error(t, err)
}

func TestMustRegisterRejectsValues(t *testing.T) {
	r := New()
	assert.Panics(t, func() { r.MustRegister(folder{}) })
	assert.Panics(t, func() { r.MustRegister(42) })
}

func TestMountTree(t *testing.T) {
	r := newTestRegistry(t)

	elements := []map[string]any{
		{"type": "folder", "path": "/", "slug": "sub", "name": "sub", "folders": []any{}},
		{"type": "document", "path": "/sub", "slug": "readme", "name": "readme", "body": "hi"},
	}
	root := map[string]any{
		"type": "folder", "path": "", "slug": "", "name": "top",
		"folders": []any{"sub"},
	}

	mounted := r.MountTree(&elements, root)

	folders := mounted["folders"].([]any)
	sub := folders[0].(map[string]any)
	assert.Equal(t, "sub", sub["name"])
	assert.Contains(t, mounted["lists"], "folders")

	// consumed elements are removed from the flat list
	assert.Len(t, elements, 1)
}
