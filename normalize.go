package shapely

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Normalize converts any shape descriptor into a canonical Schema. It never fails:
// ambiguous or malformed input resolves to a best-effort String or Any schema.
func Normalize(d Descriptor) *Schema {
	switch d.kind {
	case descCanonical:
		if d.schema == nil {
			return Any()
		}
		return d.schema
	case descPrimitive:
		return normalizePrimitive(d.primitive)
	case descSequence:
		return normalizeSequence(d.items)
	case descType:
		return normalizeType(d)
	case descCapability:
		if d.capability == nil {
			return Any()
		}
		return d.capability.Schema()
	case descTemplate:
		fields := make([]Field, len(d.entries))
		for i, e := range d.entries {
			fields[i] = Prop(e.Name, Normalize(e.Shape))
		}
		return Object(fields...)
	case descText:
		return parseShapeText(d.text)
	case descOpaque:
		return Any().Describe(stringifyOpaque(d.value))
	}
	// Zero Descriptor.
	return Any()
}

func normalizePrimitive(p Primitive) *Schema {
	switch p {
	case PrimString:
		return String()
	case PrimNumber:
		return Number()
	case PrimBoolean:
		return Boolean()
	case PrimDate:
		return Date()
	}
	return Any().Describe(fmt.Sprintf("primitive(%d)", int(p)))
}

// normalizeSequence applies the length rule: zero or one item is a plain array,
// two or more become an array of their union.
func normalizeSequence(items []Descriptor) *Schema {
	switch len(items) {
	case 0:
		return Array(Any())
	case 1:
		return Array(Normalize(items[0]))
	}
	variants := make([]*Schema, len(items))
	for i, item := range items {
		variants[i] = Normalize(item)
	}
	return Array(Union(variants...))
}

func normalizeType(d Descriptor) *Schema {
	if d.typ == nil {
		return Any()
	}
	if b, ok := lookupBinding(d.typ); ok {
		return b.schema
	}
	return inferTypeSchema(d.typ)
}

func stringifyOpaque(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}

// shapeKeywords are matched case-insensitively at the start of a textual descriptor.
var shapeKeywords = []struct {
	word string
	make func() *Schema
}{
	{"string", String},
	{"number", Number},
	{"boolean", Boolean},
	{"date", Date},
	{"any", Any},
}

// parseShapeText reads the textual mini-DSL: a leading keyword followed by an optional
// description. Text without a known keyword becomes a String described by the whole text.
func parseShapeText(text string) *Schema {
	for _, kw := range shapeKeywords {
		if len(text) < len(kw.word) || !strings.EqualFold(text[:len(kw.word)], kw.word) {
			continue
		}
		desc := strings.TrimSpace(strings.TrimLeft(text[len(kw.word):], " \t:-,"))
		s := kw.make()
		if desc == "" {
			return s
		}
		return s.Describe(desc)
	}
	return String().Describe(text)
}
