package shapely

import (
	"encoding/json"
	"reflect"
)

// Extractor derives the schema for T and turns validated answers into T with two-layer
// validation (schema + Validatable), without binding to a capability. Use it in custom
// orchestrators that need schema export and typed parsing.
type Extractor[T any] struct {
	args *argSpec
}

// NewExtractor creates an Extractor for T. The schema is TypeOf[T]() normalized, so a bound
// schema for T is honored.
func NewExtractor[T any]() (*Extractor[T], error) {
	args, err := newArgSpec(Normalize(TypeOf[T]()))
	if err != nil {
		return nil, err
	}
	return &Extractor[T]{args: args}, nil
}

// Schema returns the normalized schema for T.
func (e *Extractor[T]) Schema() *Schema { return e.args.schema }

// Parameters returns the wire JSON Schema (object form) for T.
func (e *Extractor[T]) Parameters() map[string]any { return e.args.wire.JSONSchema() }

// ParseAndValidate validates raw JSON arguments against the wire schema and decodes them into T.
// Returns ParseError for invalid JSON or validation failures so the caller can pass the message
// to the model for self-correction.
func (e *Extractor[T]) ParseAndValidate(raw string) (T, error) {
	var zero T
	v, err := e.args.parse(raw)
	if err != nil {
		return zero, err
	}
	return e.Decode(v)
}

// Decode converts an already-validated value into T and runs Layer 2 (Validatable).
func (e *Extractor[T]) Decode(v any) (T, error) {
	var zero T
	args, ok := v.(T)
	if !ok {
		data, err := json.Marshal(v)
		if err != nil {
			return zero, wrapJSONParseError(err)
		}
		if err := json.Unmarshal(data, &args); err != nil {
			return zero, wrapJSONParseError(err)
		}
	}
	if err := runLayer2Validation(args); err != nil {
		if IsParseError(err) {
			return zero, err
		}
		return zero, &ParseError{Message: err.Error(), Err: ErrValidation}
	}
	return args, nil
}

// runLayer2Validation runs Validatable.Validate() on args; if args does not implement Validatable,
// it tries &args for value types (pointer receiver). Never calls Validate twice for the same receiver.
func runLayer2Validation[T any](args T) error {
	if err := validateCustom(any(args)); err != nil {
		return err
	}
	if _, ok := any(args).(Validatable); ok {
		return nil
	}
	typ := reflect.TypeOf(args)
	if typ == nil || typ.Kind() == reflect.Pointer {
		return nil
	}
	return validateCustom(any(&args))
}
