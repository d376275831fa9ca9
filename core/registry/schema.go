package registry

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/yrest-dev/yrest/core"
	"github.com/yrest-dev/yrest/core/tree"
)

var (
	timeType     = reflect.TypeOf(time.Time{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	objectIDType = reflect.TypeOf(primitive.ObjectID{})

	formats = map[reflect.Type]string{
		reflect.TypeOf(tree.Email("")):     "email",
		reflect.TypeOf(tree.Phone("")):     "phone",
		reflect.TypeOf(tree.Password("")):  "password",
		reflect.TypeOf(tree.URLString("")): "url",
		reflect.TypeOf(tree.File("")):      "byte",
	}
)

// Schema returns the JSON-schema projection of the type: an object
// schema with per-field properties and the required tuple.
func (d *Descriptor) Schema() map[string]any {
	properties := map[string]any{}
	var required []string
	for _, f := range d.Fields {
		properties[f.Name] = f.Schema
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Schemas returns the schemas of every registered type, keyed by name.
func (r *Registry) Schemas() map[string]any {
	schemas := map[string]any{}
	for _, name := range r.Names() {
		d, _ := r.Lookup(name)
		schemas[name] = d.Schema()
	}
	return schemas
}

// Validate checks a JSON document against the schema of the named type.
// Shape failures come back as a ValidationError listing every violation.
func (r *Registry) Validate(typeName string, document []byte) error {
	d, ok := r.Lookup(typeName)
	if !ok {
		return fmt.Errorf("unknown type %q", typeName)
	}

	// The per-field projections may carry $refs into the component set,
	// so validation runs against a document that embeds all of them.
	root := map[string]any{
		"$ref":       "#/components/schemas/" + d.Name,
		"components": map[string]any{"schemas": r.Schemas()},
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(root))
	if err != nil {
		return err
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return core.Errorf(core.KindValidation, "invalid json: %v", err)
	}
	if result.Valid() {
		return nil
	}
	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return core.Errorf(core.KindValidation, "validation error: %s", strings.Join(violations, "; "))
}

// fieldSchema projects one struct field to JSON schema. The schema tag
// may add numeric and length bounds, e.g. `schema:"minimum=0,maxLength=64"`.
func fieldSchema(f reflect.StructField) map[string]any {
	schema := typeSchema(f.Type)
	for _, pair := range strings.Split(f.Tag.Get("schema"), ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			schema[key] = n
		} else {
			schema[key] = value
		}
	}
	return schema
}

func typeSchema(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Ptr {
		return typeSchema(t.Elem())
	}
	if format, ok := formats[t]; ok {
		return map[string]any{"type": "string", "format": format}
	}
	switch t {
	case timeType:
		return map[string]any{"type": "string", "format": "date-time"}
	case uuidType:
		return map[string]any{"type": "string", "format": "uuid"}
	case objectIDType:
		return map[string]any{"type": "string"}
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": typeSchema(t.Elem())}
	case reflect.Map:
		return map[string]any{"type": "object"}
	case reflect.Struct:
		if t.Name() != "" {
			return map[string]any{"$ref": "#/components/schemas/" + t.Name()}
		}
		return map[string]any{"type": "object"}
	default:
		return map[string]any{}
	}
}
