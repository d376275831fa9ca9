/*Package registry is the node schema registry. It computes, once per
registered type, the metadata the engine needs at runtime: the field
list with its JSON-schema projection, the child-list fields with their
index mode and permitted child type, the slug-source tuple, the feature
composition chain and a constructor for polymorphic reconstruction.

Types register a prototype at boot; reflection happens only here, the
way encoding/json caches struct metadata, and the resulting descriptors
are read-only afterwards.
*/
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yrest-dev/yrest/core/tree"
)

// IndexMode tells how a child-list field references its children.
type IndexMode string

const (
	// BySlug lists children by slug; elements are strings.
	BySlug IndexMode = "slug"
	// ByID lists children by document id; elements are ObjectIDs.
	ByID IndexMode = "_id"
)

// ChildField describes one child-list field of a node type.
type ChildField struct {
	// Name is the wire name of the field.
	Name string
	// Model is the permitted child type.
	Model string
	// Mode is inferred from the element type.
	Mode IndexMode

	index []int
}

// Field describes one wire field of a registered type.
type Field struct {
	// Name is the wire name.
	Name string
	// Schema is the field's JSON-schema projection.
	Schema map[string]any
	// Model is set for child-list fields.
	Model string
	// Required marks fields the type cannot be built without.
	Required bool
}

// Descriptor is the cached metadata of one registered type.
type Descriptor struct {
	// Name is the type name, which doubles as the stored "type" value.
	Name string
	// SlugFields is the tuple of fields that feed slug derivation.
	SlugFields []string
	// ChildFields lists the child-list fields in declaration order.
	ChildFields []ChildField
	// Features is the ordered composition chain, the type itself first.
	Features []string
	// Recursive marks types whose child lists may contain themselves.
	Recursive bool
	// Fields lists the wire fields in declaration order.
	Fields []Field

	rtype  reflect.Type
	isNode bool
}

// New returns a new instance of the described type.
func (d *Descriptor) New() any {
	return reflect.New(d.rtype).Interface()
}

// IsNode reports whether the described type is a tree node, as opposed
// to a plain wire model.
func (d *Descriptor) IsNode() bool { return d.isNode }

// NewNode returns a new node instance with the type name set.
func (d *Descriptor) NewNode() (tree.Node, error) {
	if !d.isNode {
		return nil, fmt.Errorf("%s is not a tree node", d.Name)
	}
	n := d.New().(tree.Node)
	n.Tree().Type = d.Name
	return n, nil
}

// Child returns the child-list field with the given name.
func (d *Descriptor) Child(name string) (ChildField, bool) {
	for _, cf := range d.ChildFields {
		if cf.Name == name {
			return cf, true
		}
	}
	return ChildField{}, false
}

// ChildrenFor lists the child-list fields that accept the given child
// type.
func (d *Descriptor) ChildrenFor(childType string) []ChildField {
	var matches []ChildField
	for _, cf := range d.ChildFields {
		if cf.Model == childType {
			matches = append(matches, cf)
		}
	}
	return matches
}

// List reads the values of a child-list field.
func (d *Descriptor) List(n tree.Node, field string) ([]any, error) {
	cf, ok := d.Child(field)
	if !ok {
		return nil, fmt.Errorf("%s has no child field %s", d.Name, field)
	}
	v := reflect.ValueOf(n).Elem().FieldByIndex(cf.index)
	values := make([]any, v.Len())
	for i := range values {
		values[i] = v.Index(i).Interface()
	}
	return values, nil
}

// SetList replaces the values of a child-list field. Elements must be
// strings for slug-indexed fields and ObjectIDs for id-indexed ones.
func (d *Descriptor) SetList(n tree.Node, field string, values []any) error {
	cf, ok := d.Child(field)
	if !ok {
		return fmt.Errorf("%s has no child field %s", d.Name, field)
	}
	v := reflect.ValueOf(n).Elem().FieldByIndex(cf.index)
	out := reflect.MakeSlice(v.Type(), len(values), len(values))
	for i, value := range values {
		rv := reflect.ValueOf(value)
		if !rv.Type().AssignableTo(v.Type().Elem()) {
			return fmt.Errorf("%s.%s cannot hold %T", d.Name, field, value)
		}
		out.Index(i).Set(rv)
	}
	v.Set(out)
	return nil
}

// SlugSource resolves the slug source of a node with patch overrides
// applied. Types opt in by implementing tree.Sluger.
func SlugSource(n tree.Node, patch map[string]any) (string, bool) {
	s, ok := n.(tree.Sluger)
	if !ok {
		return "", false
	}
	return s.SlugSource(patch), true
}

// Registry holds the descriptors of all registered types.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*Descriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// MustRegister computes and caches the descriptor for the prototype's
// type. It panics on structurally broken types; registration happens at
// boot where broken wiring must not go unnoticed.
func (r *Registry) MustRegister(prototype any) *Descriptor {
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("registry: prototype must be a struct pointer, got %T", prototype))
	}
	st := t.Elem()
	name := st.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.types[name]; ok {
		return d
	}

	_, isNode := prototype.(tree.Node)
	d := &Descriptor{
		Name:     name,
		Features: []string{name},
		rtype:    st,
		isNode:   isNode,
	}

	collectFields(st, nil, d)

	if s, ok := prototype.(tree.Sluger); ok {
		d.SlugFields = s.SlugFields()
	}
	if rec, ok := prototype.(interface{ IsRecursive() bool }); ok && rec.IsRecursive() {
		d.Recursive = true
	}
	for _, cf := range d.ChildFields {
		if cf.Model == name {
			d.Recursive = true
		}
	}

	r.types[name] = d
	return d
}

// Lookup returns the descriptor of a registered type.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.types[name]
	return d, ok
}

// Names returns the registered type names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Decode rebuilds a node from a raw document, dispatching on its stored
// type name.
func (r *Registry) Decode(raw bson.Raw) (tree.Node, error) {
	typeName, err := raw.LookupErr("type")
	if err != nil {
		return nil, fmt.Errorf("document has no type: %w", err)
	}
	name, ok := typeName.StringValueOK()
	if !ok {
		return nil, fmt.Errorf("document type is not a string")
	}
	d, found := r.Lookup(name)
	if !found {
		return nil, fmt.Errorf("unknown node type %q", name)
	}
	n, err := d.NewNode()
	if err != nil {
		return nil, err
	}
	if err := bson.Unmarshal(raw, n); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return n, nil
}

// collectFields walks the struct depth-first, promoting embedded
// fields, recording the composition chain and the per-field metadata.
func collectFields(st reflect.Type, index []int, d *Descriptor) {
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		fieldIndex := append(append([]int(nil), index...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Tag.Get("json") == "" {
			d.Features = append(d.Features, f.Type.Name())
			collectFields(f.Type, fieldIndex, d)
			continue
		}

		name, omitted, skip := wireName(f)
		if skip {
			continue
		}

		field := Field{
			Name:     name,
			Schema:   fieldSchema(f),
			Required: !omitted && f.Type.Kind() != reflect.Ptr && !isIdentityField(name),
		}

		if model := f.Tag.Get("model"); model != "" {
			mode, err := indexModeOf(f.Type)
			if err != nil {
				panic(fmt.Sprintf("registry: %s.%s: %v", d.Name, f.Name, err))
			}
			field.Model = model
			d.ChildFields = append(d.ChildFields, ChildField{
				Name:  name,
				Model: model,
				Mode:  mode,
				index: fieldIndex,
			})
		}

		d.Fields = append(d.Fields, field)
	}
}

func wireName(f reflect.StructField) (name string, omitted, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitted = true
		}
	}
	return name, omitted, false
}

func isIdentityField(name string) bool {
	switch name {
	case "_id", "path", "slug", "type":
		return true
	}
	return false
}

func indexModeOf(t reflect.Type) (IndexMode, error) {
	if t.Kind() != reflect.Slice {
		return "", fmt.Errorf("child-list fields must be slices, got %s", t)
	}
	switch t.Elem() {
	case reflect.TypeOf(""):
		return BySlug, nil
	case reflect.TypeOf(primitive.ObjectID{}):
		return ByID, nil
	}
	return "", fmt.Errorf("child-list elements must be slugs or ids, got %s", t.Elem())
}
