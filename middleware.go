package shapely

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a Capability with cross-cutting behavior (logging, recovery, timeout).
// The returned capability keeps the name and schema of next.
type Middleware func(next *Capability) *Capability

// Wrap applies middlewares to c in onion order: the first middleware is outermost.
func Wrap(c *Capability, middlewares ...Middleware) *Capability {
	for i := len(middlewares) - 1; i >= 0; i-- {
		c = middlewares[i](c)
	}
	return c
}

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next *Capability) *Capability {
		return next.withInvoker(func(ctx context.Context, args any) (any, error) {
			logger.InfoContext(ctx, "capability start", "capability", next.Name())
			start := time.Now()
			res, err := next.Invoke(ctx, args)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "capability error", "capability", next.Name(), "duration", dur, "error", err)
				return nil, err
			}
			logger.InfoContext(ctx, "capability end", "capability", next.Name(), "duration", dur)
			return res, nil
		})
	}
}

// WithRecovery returns a middleware that recovers panics and returns SystemError.
func WithRecovery() Middleware {
	return func(next *Capability) *Capability {
		return next.withInvoker(func(ctx context.Context, args any) (res any, err error) {
			defer func() {
				if p := recover(); p != nil {
					res = nil
					err = &SystemError{Err: &panicError{p: p}}
				}
			}()
			return next.Invoke(ctx, args)
		})
	}
}

// WithTimeoutMiddleware returns a middleware that bounds the invocation. Named with the
// "Middleware" suffix to avoid collision with the CapabilityOption WithTimeout; when both apply
// the shorter deadline wins.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(next *Capability) *Capability {
		return next.withInvoker(func(ctx context.Context, args any) (any, error) {
			if d <= 0 {
				return next.Invoke(ctx, args)
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Invoke(ctx, args)
		})
	}
}
