package shapely

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validatable is implemented by typed capability arguments that need business validation.
// Called after schema validation and decoding.
type Validatable interface {
	Validate() error
}

// schemaValidator validates a JSON-like value decoded by jsonschema.UnmarshalJSON.
// *jsonschema.Schema implements it.
type schemaValidator interface {
	Validate(v any) error
}

const schemaResource = "shapely-parameters.json"

// compileRawSchema compiles a JSON Schema map into a validator. The map is not mutated.
func compileRawSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	data, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaResource, doc); err != nil {
		return nil, err
	}
	return c.Compile(schemaResource)
}

// argSpec is a parameter schema ready for the wire: the caller's shape, its top-level
// object form, and the compiled validator for that form.
type argSpec struct {
	schema   *Schema
	wire     *Schema
	wrapped  bool
	params   map[string]any
	compiled schemaValidator
}

func newArgSpec(s *Schema) (*argSpec, error) {
	wire, wrapped := WrapResponse(s)
	params := wire.JSONSchema()
	compiled, err := compileRawSchema(params)
	if err != nil {
		return nil, fmt.Errorf("compile parameter schema: %w", err)
	}
	return &argSpec{
		schema:   s,
		wire:     wire,
		wrapped:  wrapped,
		params:   params,
		compiled: compiled,
	}, nil
}

// parse decodes raw function-call arguments, validates them against the wire schema and returns
// the unwrapped, materialized value. Errors are *ParseError without a capability name.
func (a *argSpec) parse(raw string) (any, error) {
	raw = strings.ReplaceAll(raw, "\n", " ")
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, wrapJSONParseError(err)
	}
	if err := validateAgainstSchema(a.compiled, inst); err != nil {
		return nil, err
	}
	// inst keeps numbers as json.Number; materialize converts them without losing precision.
	return UnwrapResponse(a.schema, a.wrapped, inst)
}

// validateAgainstSchema runs schema validation on an already-decoded value.
func validateAgainstSchema(validate schemaValidator, v any) error {
	if err := validate.Validate(v); err != nil {
		return &ParseError{Message: err.Error(), Err: ErrValidation}
	}
	return nil
}

// validateCustom runs Validatable if args implements it.
func validateCustom(args any) error {
	if v, ok := args.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
