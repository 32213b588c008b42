package shapely

import (
	"context"
	"log/slog"
	"time"
)

// capabilityOptions hold optional capability settings.
type capabilityOptions struct {
	timeout time.Duration
}

// CapabilityOption configures a capability (e.g. WithTimeout).
type CapabilityOption func(*capabilityOptions)

// WithTimeout bounds each invocation of the capability.
func WithTimeout(d time.Duration) CapabilityOption {
	return func(o *capabilityOptions) {
		o.timeout = d
	}
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	maxRetries    int
	maxNudges     int
	returnRetries int
	strict        bool
	recoverPanics bool
	logger        *slog.Logger
	middlewares   []Middleware
	onModelCall   func(context.Context, ModelCall)
	onCapability  func(context.Context, CapabilityExecution)
	onRetry       func(context.Context, RetryEvent)
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		maxRetries:    DefaultMaxRetries,
		maxNudges:     Unbounded,
		returnRetries: 0,
		recoverPanics: true,
	}
}

// WithMaxRetries sets how many corrective retries ask and call modes make after the first
// attempt. Pass Unbounded (-1) to retry until the model complies.
func WithMaxRetries(n int) Option {
	return func(o *engineOptions) {
		o.maxRetries = n
	}
}

// WithMaxNudges bounds how many malformed turns (no call, wrong call, unknown capability) run
// mode feeds back before giving up with ErrNudgesExhausted. Default Unbounded.
func WithMaxNudges(n int) Option {
	return func(o *engineOptions) {
		o.maxNudges = n
	}
}

// WithReturnRetries lets run mode feed an invalid return call back to the model up to n times
// instead of failing on the first one. Default 0: the return call is validated exactly once.
func WithReturnRetries(n int) Option {
	return func(o *engineOptions) {
		o.returnRetries = n
	}
}

// WithStrictSchemas advertises every parameter schema with additionalProperties: false and all
// properties required (OpenAI Structured Outputs).
func WithStrictSchemas() Option {
	return func(o *engineOptions) {
		o.strict = true
	}
}

// WithRecoverPanics turns capability panics into SystemError instead of crashing the run.
func WithRecoverPanics(enable bool) Option {
	return func(o *engineOptions) {
		o.recoverPanics = enable
	}
}

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithMiddleware wraps every capability the engine invokes (onion order: first is outermost).
func WithMiddleware(middlewares ...Middleware) Option {
	return func(o *engineOptions) {
		o.middlewares = append(o.middlewares, middlewares...)
	}
}

// WithOnModelCall adds a hook called after each chat model round trip. Hooks run in the
// order they were given.
func WithOnModelCall(fn func(context.Context, ModelCall)) Option {
	return func(o *engineOptions) {
		o.onModelCall = chain(o.onModelCall, fn)
	}
}

// WithOnCapability adds a hook called after each capability invocation.
func WithOnCapability(fn func(context.Context, CapabilityExecution)) Option {
	return func(o *engineOptions) {
		o.onCapability = chain(o.onCapability, fn)
	}
}

// WithOnRetry adds a hook called whenever a failure is fed back to the model.
func WithOnRetry(fn func(context.Context, RetryEvent)) Option {
	return func(o *engineOptions) {
		o.onRetry = chain(o.onRetry, fn)
	}
}

func chain[E any](prev, next func(context.Context, E)) func(context.Context, E) {
	if prev == nil || next == nil {
		if next == nil {
			return prev
		}
		return next
	}
	return func(ctx context.Context, ev E) {
		prev(ctx, ev)
		next(ctx, ev)
	}
}
