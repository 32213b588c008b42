// Command shapely asks a chat model for structured values from the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skosovsky/shapely"
	"github.com/skosovsky/shapely/metrics"
	"github.com/skosovsky/shapely/provider/openai"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	configPath string
	verbose    bool

	cfg     *Config
	logger  *zap.Logger
	metrics *metrics.Collector
	// model overrides the configured provider; tests set it.
	model shapely.ChatModel
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "shapely",
		Short: "Structured output and function calling on top of chat models",
		Long: `shapely turns loosely specified shapes into JSON Schemas and makes a chat model
answer in exactly that shape.

Shapes are written in a tiny DSL: a leading keyword (string, number, boolean, date, any)
followed by an optional description, e.g. "number the age in years".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./shapely.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newAskCmd(a), newSchemaCmd(a), newBlackboardCmd(a))
	return root
}

func (a *app) init() error {
	zc := zap.NewProductionConfig()
	if a.verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(cfg.Metrics.Namespace)
	}
	return nil
}

// client builds the engine from configuration. Engine events are logged through zap hooks
// and, when enabled, counted by the metrics collector.
func (a *app) client() *shapely.Client {
	model := a.model
	if model == nil {
		model = openai.New(a.cfg.LLM.APIKey,
			openai.WithBaseURL(a.cfg.LLM.BaseURL),
			openai.WithModel(a.cfg.LLM.Model),
			openai.WithTemperature(a.cfg.LLM.Temperature),
			openai.WithMaxTokens(a.cfg.LLM.MaxTokens),
			openai.WithMaxRetries(a.cfg.LLM.MaxRetries),
			openai.WithHTTPClient(&http.Client{Timeout: a.cfg.LLM.Timeout}),
			openai.WithLogger(slog.New(slog.DiscardHandler)),
		)
	}

	opts := []shapely.Option{
		shapely.WithLogger(slog.New(slog.DiscardHandler)),
		shapely.WithMaxRetries(a.cfg.Engine.MaxRetries),
		shapely.WithMaxNudges(a.cfg.Engine.MaxNudges),
		shapely.WithReturnRetries(a.cfg.Engine.ReturnRetries),
		shapely.WithRecoverPanics(true),
		shapely.WithOnModelCall(func(_ context.Context, mc shapely.ModelCall) {
			fields := []zap.Field{
				zap.String("mode", string(mc.Mode)),
				zap.Strings("functions", mc.Functions),
				zap.Stringer("call", mc.Call),
				zap.Duration("duration", mc.Duration),
			}
			if mc.Error != nil {
				a.logger.Warn("Chat completion failed", append(fields, zap.Error(mc.Error))...)
				return
			}
			if mc.Response.Call != nil {
				fields = append(fields, zap.String("called", mc.Response.Call.Name))
			}
			a.logger.Debug("Chat completion", fields...)
		}),
		shapely.WithOnCapability(func(_ context.Context, ce shapely.CapabilityExecution) {
			a.logger.Debug("Capability executed",
				zap.String("capability", ce.Name),
				zap.String("result", ce.Result),
				zap.Duration("duration", ce.Duration),
				zap.Error(ce.Error))
		}),
		shapely.WithOnRetry(func(_ context.Context, ev shapely.RetryEvent) {
			a.logger.Info("Feeding failure back to the model",
				zap.String("mode", string(ev.Mode)),
				zap.Int("attempt", ev.Attempt),
				zap.Error(ev.Err))
		}),
	}
	if a.cfg.Engine.StrictSchemas {
		opts = append(opts, shapely.WithStrictSchemas())
	}
	if a.metrics != nil {
		opts = append(opts, a.metrics.Options()...)
	}

	var copts []shapely.ClientOption
	if a.cfg.Engine.Context != "" {
		copts = append(copts, shapely.WithSystemContext(a.cfg.Engine.Context))
	}
	return shapely.NewClient(shapely.NewEngine(model, opts...), copts...)
}

// serveMetrics exposes the collector on metrics.addr until ctx is done. The returned function
// shuts the server down.
func (a *app) serveMetrics(ctx context.Context) (func(), error) {
	if a.metrics == nil {
		return func() {}, nil
	}
	handler, err := a.metrics.Handler()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", a.cfg.Metrics.Addr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("Metrics server stopped", zap.Error(err))
		}
	}()
	a.logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-done
	}, nil
}
