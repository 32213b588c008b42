package shapely

import (
	"reflect"

	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const (
	// maxInferDepth truncates the converted tree; deeper nodes become Any.
	maxInferDepth = 32
	// maxTypeVisits bounds how often one struct type is expanded, which stops the reflector
	// on self-referential types (it inlines everything with DoNotReference).
	maxTypeVisits = 64
)

func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
		Anonymous:                 true,
	}
}

// inferTypeSchema derives a structural schema from t's exported fields. Nested structs recurse,
// slices infer their element, interface fields become Any and time.Time becomes Date.
// Field types with their own binding reuse the bound schema.
func inferTypeSchema(t reflect.Type) *Schema {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == typeTime {
		return Date()
	}
	if t.Kind() == reflect.Interface {
		return Any()
	}
	r := newReflector()
	visits := make(map[reflect.Type]int)
	r.Mapper = func(ft reflect.Type) *jsonschema.Schema {
		if ft != t {
			if _, ok := lookupBinding(ft); ok {
				// Placeholder; convertReflected swaps in the bound schema via its Title.
				return &jsonschema.Schema{Title: boundTitle(ft)}
			}
		}
		if ft.Kind() == reflect.Struct && ft != typeTime {
			visits[ft]++
			if visits[ft] > maxTypeVisits {
				return &jsonschema.Schema{}
			}
		}
		return nil
	}
	return convertReflected(r.ReflectFromType(t), 0)
}

const boundTitlePrefix = "shapely-bound:"

func boundTitle(t reflect.Type) string {
	return boundTitlePrefix + t.PkgPath() + "." + t.String()
}

func boundByTitle(title string) (*Schema, bool) {
	bindingsMu.RLock()
	defer bindingsMu.RUnlock()
	for t, b := range bindings {
		if boundTitle(t) == title {
			return b.schema, true
		}
	}
	return nil, false
}

// convertReflected maps an invopop schema onto the canonical representation.
func convertReflected(js *jsonschema.Schema, depth int) *Schema {
	if js == nil || depth > maxInferDepth {
		return Any()
	}
	if js.Title != "" {
		if s, ok := boundByTitle(js.Title); ok {
			return s
		}
	}
	out := convertReflectedNode(js, depth)
	if js.Description != "" && (out.Description == "" || out.Kind == KindDate) {
		return out.Describe(js.Description)
	}
	return out
}

func convertReflectedNode(js *jsonschema.Schema, depth int) *Schema {
	if len(js.Enum) > 0 {
		return Enum(js.Enum...)
	}
	if variants := append(append([]*jsonschema.Schema(nil), js.AnyOf...), js.OneOf...); len(variants) > 0 {
		return unionOfReflected(variants, depth)
	}
	switch js.Type {
	case "string":
		if js.Format == "date-time" || js.Format == "date" {
			return Date()
		}
		return String()
	case "number":
		return Number()
	case "integer":
		return Integer()
	case "boolean":
		return Boolean()
	case "array":
		return Array(convertReflected(js.Items, depth+1))
	case "object":
		if js.Properties == nil || js.Properties.Len() == 0 {
			return Any()
		}
		return Object(reflectedFields(js.Properties, depth)...)
	}
	return Any()
}

func unionOfReflected(variants []*jsonschema.Schema, depth int) *Schema {
	out := make([]*Schema, 0, len(variants))
	for _, v := range variants {
		// Pointer fields surface as {null | T}; null carries no shape of its own.
		if v != nil && v.Type == "null" {
			continue
		}
		out = append(out, convertReflected(v, depth+1))
	}
	if len(out) == 1 {
		return out[0]
	}
	return Union(out...)
}

func reflectedFields(props *orderedmap.OrderedMap[string, *jsonschema.Schema], depth int) []Field {
	fields := make([]Field, 0, props.Len())
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		fields = append(fields, Prop(pair.Key, convertReflected(pair.Value, depth+1)))
	}
	return fields
}
