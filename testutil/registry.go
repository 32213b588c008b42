package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/skosovsky/shapely"
)

// NewTestEngine returns an Engine over model that logs at debug level to t and never retries
// forever: malformed run-mode turns are bounded by a small nudge limit. opts are applied last.
func NewTestEngine(t testing.TB, model shapely.ChatModel, opts ...shapely.Option) *shapely.Engine {
	t.Helper()
	base := []shapely.Option{
		shapely.WithLogger(slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelDebug}))),
		shapely.WithMaxNudges(10),
		shapely.WithRecoverPanics(true),
	}
	return shapely.NewEngine(model, append(base, opts...)...)
}

// NewTestRegistry returns a Registry holding caps with panic recovery applied, failing t on error.
func NewTestRegistry(t testing.TB, caps ...*shapely.Capability) *shapely.Registry {
	t.Helper()
	reg, err := shapely.NewRegistry(caps...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	reg.Use(shapely.WithRecovery())
	return reg
}

// testWriter forwards log output to t.Log.
type testWriter struct{ t testing.TB }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}

var _ io.Writer = testWriter{}
