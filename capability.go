package shapely

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
)

// Invoker runs a capability with validated, unwrapped arguments. The result may be any value
// or an Outcome / *Outcome carrying loop mutations.
type Invoker func(ctx context.Context, args any) (any, error)

// Capability is a named, schema-described unit the model may choose to call.
// It is immutable once built.
type Capability struct {
	name        string
	description string
	args        *argSpec
	invoke      Invoker
	opts        capabilityOptions
}

// NewDynamicCapability binds a plain callable to a shape descriptor (anything Of accepts).
// An empty name gets a generated unique one. fn receives the validated value for shape:
// a map[string]any for objects, or the bare value for primitives, arrays and dates.
func NewDynamicCapability(name, description string, shape any, fn Invoker, opts ...CapabilityOption) (*Capability, error) {
	if fn == nil {
		return nil, errors.New("capability handler must not be nil")
	}
	var o capabilityOptions
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" {
		name = generatedName()
	}
	args, err := newArgSpec(Normalize(Of(shape)))
	if err != nil {
		return nil, fmt.Errorf("capability %s: %w", name, err)
	}
	return &Capability{
		name:        name,
		description: description,
		args:        args,
		invoke:      fn,
		opts:        o,
	}, nil
}

// NewCapability builds a capability from a typed function. The shape is derived from T and
// validated arguments are decoded into T by an Extractor (schema, then Validatable).
func NewCapability[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...CapabilityOption,
) (*Capability, error) {
	if fn == nil {
		return nil, errors.New("capability handler must not be nil")
	}
	ext, err := NewExtractor[T]()
	if err != nil {
		return nil, err
	}
	return NewDynamicCapability(name, description, Canonical(ext.Schema()), func(ctx context.Context, v any) (any, error) {
		args, err := ext.Decode(v)
		if err != nil {
			return nil, err
		}
		return fn(ctx, args)
	}, opts...)
}

func generatedName() string {
	return "capability_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// newReturnCapability builds the synthetic return capability over target.
func newReturnCapability(target *Schema) (*Capability, error) {
	return NewDynamicCapability(ReturnCapability, returnDescription, Canonical(target), func(_ context.Context, v any) (any, error) {
		return v, nil
	})
}

func (c *Capability) Name() string        { return c.name }
func (c *Capability) Description() string { return c.description }

// Schema returns the normalized (unwrapped) parameter schema.
func (c *Capability) Schema() *Schema { return c.args.schema }

// Parameters returns a shallow copy of the wire JSON Schema (top-level keys only).
// Nested maps are shared; callers must not mutate them.
func (c *Capability) Parameters() map[string]any { return maps.Clone(c.args.params) }

// FunctionSchema describes c for the chat model.
func (c *Capability) FunctionSchema() FunctionSchema {
	return FunctionSchema{Name: c.name, Description: c.description, Parameters: c.Parameters()}
}

// ParseArguments validates raw JSON arguments and returns the value the handler receives.
// Errors are *ParseError attributed to c.
func (c *Capability) ParseArguments(raw string) (any, error) {
	v, err := c.args.parse(raw)
	if err != nil {
		return nil, attribute(err, c.name)
	}
	return v, nil
}

// Invoke runs the handler with already-validated arguments, honoring WithTimeout.
func (c *Capability) Invoke(ctx context.Context, args any) (any, error) {
	if c.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.timeout)
		defer cancel()
	}
	return c.invoke(ctx, args)
}

// withInvoker returns a copy of c running fn instead of its handler; used by middleware.
func (c *Capability) withInvoker(fn Invoker) *Capability {
	out := *c
	out.invoke = fn
	return &out
}

// findCapability returns the first capability named name, in iteration order.
func findCapability(caps []*Capability, name string) (*Capability, bool) {
	for _, c := range caps {
		if c != nil && c.name == name {
			return c, true
		}
	}
	return nil, false
}

// narrow keeps only the forced capability when the directive names one.
func narrow(caps []*Capability, call ForcedCall) []*Capability {
	if !call.Forces() {
		return caps
	}
	out := make([]*Capability, 0, 1)
	for _, c := range caps {
		if c != nil && c.name == call.Name {
			out = append(out, c)
		}
	}
	return out
}
