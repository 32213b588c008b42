package shapely

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEngineOptions_Defaults(t *testing.T) {
	t.Parallel()
	e := NewEngine(nil)
	assert.Equal(t, DefaultMaxRetries, e.opts.maxRetries)
	assert.Equal(t, Unbounded, e.opts.maxNudges)
	assert.Equal(t, 0, e.opts.returnRetries)
	assert.False(t, e.opts.strict)
	assert.True(t, e.opts.recoverPanics)
	assert.Same(t, slog.Default(), e.logger)
}

func TestEngineOptions_Combined(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.DiscardHandler)
	e := NewEngine(nil,
		WithMaxRetries(Unbounded),
		WithMaxNudges(2),
		WithReturnRetries(1),
		WithStrictSchemas(),
		WithRecoverPanics(false),
		WithLogger(logger),
		WithMiddleware(WithRecovery()),
		WithMiddleware(WithTimeoutMiddleware(time.Second)),
	)
	assert.Equal(t, Unbounded, e.opts.maxRetries)
	assert.Equal(t, 2, e.opts.maxNudges)
	assert.Equal(t, 1, e.opts.returnRetries)
	assert.True(t, e.opts.strict)
	assert.False(t, e.opts.recoverPanics)
	assert.Same(t, logger, e.logger)
	assert.Len(t, e.opts.middlewares, 2)
}
