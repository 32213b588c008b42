package shapely

import (
	"fmt"
	"slices"
	"sync"
)

// Registry holds a named set of capabilities with registry-wide middleware. It is the usual
// source of the capability slice handed to Engine.Call and Engine.Run.
type Registry struct {
	mu          sync.RWMutex
	caps        map[string]*Capability // wrapped with middlewares
	raw         map[string]*Capability // unwrapped, used by Use to re-apply middlewares from scratch
	order       []string
	middlewares []Middleware
}

// NewRegistry creates a Registry holding caps.
func NewRegistry(caps ...*Capability) (*Registry, error) {
	r := &Registry{
		caps: make(map[string]*Capability),
		raw:  make(map[string]*Capability),
	}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c. Stored middlewares (see Use) are applied before registration. A capability
// with the same name is replaced in place, keeping its position.
func (r *Registry) Register(c *Capability) error {
	if c == nil {
		return fmt.Errorf("register: nil capability")
	}
	if c.Name() == ReturnCapability {
		return fmt.Errorf("register: %q is reserved", ReturnCapability)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.Name()
	if _, ok := r.raw[name]; !ok {
		r.order = append(r.order, name)
	}
	r.raw[name] = c
	r.caps[name] = Wrap(c, r.middlewares...)
	return nil
}

// Use appends middlewares and re-wraps every registered capability.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, middlewares...)
	for name, c := range r.raw {
		r.caps[name] = Wrap(c, r.middlewares...)
	}
}

// Get returns the capability named name, wrapped with the registry middleware.
func (r *Registry) Get(name string) (*Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// Capabilities returns the registered capabilities in registration order.
func (r *Registry) Capabilities() []*Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name])
	}
	return out
}

// Select returns the named capabilities in the order given. Unknown names are an error
// wrapping ErrCapabilityNotFound.
func (r *Registry) Select(names ...string) ([]*Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Capability, 0, len(names))
	for _, name := range names {
		c, ok := r.caps[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrCapabilityNotFound, name)
		}
		out = append(out, c)
	}
	return out, nil
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Clone(r.order)
	slices.Sort(names)
	return names
}

// FunctionSchemas describes every registered capability for a chat model.
func (r *Registry) FunctionSchemas() []FunctionSchema {
	caps := r.Capabilities()
	out := make([]FunctionSchema, len(caps))
	for i, c := range caps {
		out[i] = c.FunctionSchema()
	}
	return out
}
