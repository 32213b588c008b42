package shapely

import (
	"fmt"
	"slices"
)

// Kind identifies the variant of a canonical Schema node.
type Kind int

const (
	KindString Kind = iota + 1
	KindNumber
	KindInteger
	KindBoolean
	KindDate
	KindAny
	KindArray
	KindObject
	KindUnion
	KindEnum
)

var kindNames = map[Kind]string{
	KindString:  "string",
	KindNumber:  "number",
	KindInteger: "integer",
	KindBoolean: "boolean",
	KindDate:    "date",
	KindAny:     "any",
	KindArray:   "array",
	KindObject:  "object",
	KindUnion:   "union",
	KindEnum:    "enum",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DateFormatHint is attached to every Date schema so the model knows which textual layout to produce.
const DateFormatHint = "date string in the format dd/MM/yyyy:HH:mm:ss"

// Schema is the canonical, recursive description of an expected value.
// Schemas are immutable once built and are shared by pointer; Describe returns a copy.
type Schema struct {
	Kind        Kind
	Description string
	Elem        *Schema   // KindArray
	Fields      []Field   // KindObject, in declaration order
	Variants    []*Schema // KindUnion
	Values      []any     // KindEnum
}

// Field is a named member of an Object schema.
type Field struct {
	Name   string
	Schema *Schema
}

// Prop builds an object Field.
func Prop(name string, s *Schema) Field { return Field{Name: name, Schema: s} }

// String returns a String leaf schema.
func String() *Schema { return &Schema{Kind: KindString} }

// Number returns a Number leaf schema (float64 on unwrap).
func Number() *Schema { return &Schema{Kind: KindNumber} }

// Integer returns an Integer leaf schema (int on unwrap).
func Integer() *Schema { return &Schema{Kind: KindInteger} }

// Boolean returns a Boolean leaf schema.
func Boolean() *Schema { return &Schema{Kind: KindBoolean} }

// Any returns a schema accepting any JSON value, rendered as {}.
func Any() *Schema { return &Schema{Kind: KindAny} }

// Date returns a Date schema carrying DateFormatHint.
func Date() *Schema { return &Schema{Kind: KindDate, Description: DateFormatHint} }

// Array returns an Array schema. A nil element means Any.
func Array(elem *Schema) *Schema {
	if elem == nil {
		elem = Any()
	}
	return &Schema{Kind: KindArray, Elem: elem}
}

// Object returns an Object schema with fields in the given order.
func Object(fields ...Field) *Schema {
	return &Schema{Kind: KindObject, Fields: slices.Clone(fields)}
}

// Union returns a schema accepting any of variants (anyOf).
func Union(variants ...*Schema) *Schema {
	return &Schema{Kind: KindUnion, Variants: slices.Clone(variants)}
}

// Enum returns a schema restricted to values.
func Enum(values ...any) *Schema {
	return &Schema{Kind: KindEnum, Values: slices.Clone(values)}
}

// Describe returns a copy of s with the given description. For Date schemas the text is
// prepended to DateFormatHint rather than replacing it.
func (s *Schema) Describe(text string) *Schema {
	c := *s
	if s.Kind == KindDate {
		if text == "" {
			c.Description = DateFormatHint
		} else {
			c.Description = text + ", " + DateFormatHint
		}
		return &c
	}
	c.Description = text
	return &c
}

// Field returns the schema of the named object field.
func (s *Schema) Field(name string) (*Schema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Schema, true
		}
	}
	return nil, false
}

// JSONSchema renders s as a JSON Schema map suitable for a function-calling parameter set.
// A fresh map is built on every call; callers may mutate it.
func (s *Schema) JSONSchema() map[string]any {
	out := map[string]any{}
	switch s.Kind {
	case KindString, KindDate:
		out["type"] = "string"
	case KindNumber:
		out["type"] = "number"
	case KindInteger:
		out["type"] = "integer"
	case KindBoolean:
		out["type"] = "boolean"
	case KindAny:
	case KindArray:
		out["type"] = "array"
		out["items"] = s.Elem.JSONSchema()
	case KindObject:
		props := make(map[string]any, len(s.Fields))
		required := make([]any, 0, len(s.Fields))
		for _, f := range s.Fields {
			props[f.Name] = f.Schema.JSONSchema()
			// Any admits an absent value, so it is never required.
			if f.Schema.Kind != KindAny {
				required = append(required, f.Name)
			}
		}
		out["type"] = "object"
		out["properties"] = props
		if len(required) > 0 {
			out["required"] = required
		}
	case KindUnion:
		variants := make([]any, len(s.Variants))
		for i, v := range s.Variants {
			variants[i] = v.JSONSchema()
		}
		out["anyOf"] = variants
	case KindEnum:
		out["enum"] = slices.Clone(s.Values)
		allStrings := len(s.Values) > 0
		for _, v := range s.Values {
			if _, ok := v.(string); !ok {
				allStrings = false
				break
			}
		}
		if allStrings {
			out["type"] = "string"
		}
	}
	if s.Description != "" {
		out["description"] = s.Description
	}
	return out
}

// walkSchema recursively visits every map node in a JSON Schema tree.
func walkSchema(schemaMap map[string]any, visit func(map[string]any)) {
	if schemaMap == nil {
		return
	}
	visit(schemaMap)
	for _, val := range schemaMap {
		switch v := val.(type) {
		case map[string]any:
			walkSchema(v, visit)
		case []any:
			for _, item := range v {
				if m2, ok := item.(map[string]any); ok {
					walkSchema(m2, visit)
				}
			}
		}
	}
}

// applyStrictMode sets additionalProperties: false and marks every property required
// on each object node (OpenAI Structured Outputs).
func applyStrictMode(schemaMap map[string]any) {
	walkSchema(schemaMap, func(n map[string]any) {
		props, ok := n["properties"].(map[string]any)
		if !ok {
			return
		}
		n["additionalProperties"] = false
		keys := make([]string, 0, len(props))
		for k := range props {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		required := make([]any, len(keys))
		for i, k := range keys {
			required[i] = k
		}
		if len(required) > 0 {
			n["required"] = required
		}
	})
}
