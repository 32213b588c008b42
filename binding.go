package shapely

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// typeBinding is a side-table entry attaching a schema and an optional result factory to a Go type.
type typeBinding struct {
	schema     *Schema
	fromResult func(any) (any, error)
}

var (
	bindingsMu sync.RWMutex
	bindings   = make(map[reflect.Type]typeBinding)
)

// BindSchema attaches the normalized shape to T so that TypeOf[T]() (and any struct value of type T
// passed to Of) normalizes to it. fromResult, when non-nil, rebuilds a T from the validated answer
// in Decode; it receives the value produced for shape (e.g. map[string]any for an object template).
// Call BindSchema at startup, before the first request that uses T. The returned Descriptor is TypeOf[T]().
func BindSchema[T any](shape any, fromResult func(value any) (T, error)) Descriptor {
	t := reflect.TypeFor[T]()
	b := typeBinding{schema: Normalize(Of(shape))}
	if fromResult != nil {
		b.fromResult = func(v any) (any, error) { return fromResult(v) }
	}
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	if bindings == nil {
		bindings = make(map[reflect.Type]typeBinding)
	}
	bindings[t] = b
	return TypeFor(t)
}

// UnbindSchema removes the binding for T, if any.
func UnbindSchema[T any]() {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	delete(bindings, reflect.TypeFor[T]())
}

func lookupBinding(t reflect.Type) (typeBinding, bool) {
	bindingsMu.RLock()
	defer bindingsMu.RUnlock()
	b, ok := bindings[t]
	if !ok && t.Kind() == reflect.Pointer {
		b, ok = bindings[t.Elem()]
	}
	return b, ok
}

// Decode turns a validated answer into a T. A bound result factory wins; otherwise the value is
// used directly when it already is a T, or converted through a JSON round trip.
func Decode[T any](value any) (T, error) {
	var zero T
	if b, ok := lookupBinding(reflect.TypeFor[T]()); ok && b.fromResult != nil {
		out, err := b.fromResult(value)
		if err != nil {
			return zero, err
		}
		t, ok := out.(T)
		if !ok {
			return zero, fmt.Errorf("result factory returned %T, want %T", out, zero)
		}
		return t, nil
	}
	if t, ok := value.(T); ok {
		return t, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return zero, fmt.Errorf("encode answer: %w", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, &ParseError{Message: "json parse error: " + err.Error(), Err: ErrValidation}
	}
	return out, nil
}
