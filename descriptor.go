package shapely

import (
	"reflect"
	"slices"
	"time"
)

// Primitive is a marker for one of the primitive leaf shapes.
type Primitive int

const (
	PrimString Primitive = iota + 1
	PrimNumber
	PrimBoolean
	PrimDate
)

type descriptorKind int

const (
	descCanonical descriptorKind = iota + 1
	descPrimitive
	descSequence
	descType
	descCapability
	descTemplate
	descText
	descOpaque
)

// Descriptor is a shape descriptor: one of the supported ways of stating what a value
// should look like. The variant is fixed at construction so Normalize never has to guess.
type Descriptor struct {
	kind       descriptorKind
	schema     *Schema
	primitive  Primitive
	items      []Descriptor
	typ        reflect.Type
	capability *Capability
	entries    []TemplateEntry
	text       string
	value      any
}

// TemplateEntry is one keyed member of a literal object template.
type TemplateEntry struct {
	Name  string
	Shape Descriptor
}

// Entry builds a TemplateEntry; shape is passed through Of.
func Entry(name string, shape any) TemplateEntry {
	return TemplateEntry{Name: name, Shape: Of(shape)}
}

// Canonical wraps an already-canonical schema.
func Canonical(s *Schema) Descriptor { return Descriptor{kind: descCanonical, schema: s} }

// PrimitiveOf is the descriptor for a primitive marker.
func PrimitiveOf(p Primitive) Descriptor { return Descriptor{kind: descPrimitive, primitive: p} }

// Sequence is a literal sequence of element shapes.
func Sequence(items ...Descriptor) Descriptor {
	return Descriptor{kind: descSequence, items: slices.Clone(items)}
}

// TypeFor is a class-like descriptor for a Go type.
func TypeFor(t reflect.Type) Descriptor { return Descriptor{kind: descType, typ: t} }

// TypeOf is the class-like descriptor for T.
func TypeOf[T any]() Descriptor { return TypeFor(reflect.TypeFor[T]()) }

// CapabilityShape reuses the parameter schema bound to a capability.
func CapabilityShape(c *Capability) Descriptor { return Descriptor{kind: descCapability, capability: c} }

// Template is a literal object template; entries keep their order.
func Template(entries ...TemplateEntry) Descriptor {
	return Descriptor{kind: descTemplate, entries: slices.Clone(entries)}
}

// Text is a textual mini-DSL descriptor such as "number the age in years".
func Text(s string) Descriptor { return Descriptor{kind: descText, text: s} }

// Opaque is a value with no structural meaning; it normalizes to Any described by its text.
func Opaque(v any) Descriptor { return Descriptor{kind: descOpaque, value: v} }

var typeTime = reflect.TypeFor[time.Time]()

// Of classifies an arbitrary Go value into a Descriptor. Map keys are visited in sorted
// order because Go maps carry none; use Template to control field order.
func Of(v any) Descriptor {
	switch x := v.(type) {
	case nil:
		return Canonical(Any())
	case Descriptor:
		return x
	case *Schema:
		if x == nil {
			return Canonical(Any())
		}
		return Canonical(x)
	case Primitive:
		return PrimitiveOf(x)
	case string:
		return Text(x)
	case *Capability:
		return CapabilityShape(x)
	case reflect.Type:
		return TypeFor(x)
	case []Descriptor:
		return Sequence(x...)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		entries := make([]TemplateEntry, len(keys))
		for i, k := range keys {
			entries[i] = Entry(k, x[k])
		}
		return Template(entries...)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]Descriptor, rv.Len())
		for i := range rv.Len() {
			items[i] = Of(rv.Index(i).Interface())
		}
		return Sequence(items...)
	case reflect.Struct:
		return TypeFor(rv.Type())
	case reflect.Pointer:
		if rv.Type().Elem().Kind() == reflect.Struct {
			return TypeFor(rv.Type().Elem())
		}
	}
	return Opaque(v)
}
