package shapely

import (
	"context"
)

const (
	// DefaultMaxRetries is the number of corrective retries after the first attempt.
	DefaultMaxRetries = 3
	// Unbounded disables a retry or nudge bound.
	Unbounded = -1
)

// Retry runs work until it succeeds. A *ParseError failure is handed to onError (which, in the
// engine, appends a corrective message) and work runs again, at most maxRetries extra times;
// Unbounded retries forever. Any other error is returned at once, as is ctx cancellation between
// attempts. When the bound is exceeded the last error is returned unchanged.
func Retry[T any](ctx context.Context, maxRetries int, work func(ctx context.Context, attempt int) (T, error), onError func(attempt int, err error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		res, err := work(ctx, attempt)
		if err == nil {
			return res, nil
		}
		if !IsParseError(err) {
			return zero, err
		}
		if maxRetries != Unbounded && attempt >= maxRetries {
			return zero, err
		}
		if onError != nil {
			onError(attempt, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
	}
}
