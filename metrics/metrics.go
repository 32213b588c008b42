// Package metrics exports shapely engine activity as Prometheus metrics. A Collector is fed
// through the engine hooks returned by Options.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skosovsky/shapely"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Collector counts model round trips, corrective retries and capability invocations.
// It implements prometheus.Collector.
type Collector struct {
	modelCalls         *prometheus.CounterVec
	modelDuration      *prometheus.HistogramVec
	retries            *prometheus.CounterVec
	capabilityCalls    *prometheus.CounterVec
	capabilityDuration *prometheus.HistogramVec
}

// New creates a Collector whose metrics are prefixed with namespace (default "shapely").
func New(namespace string) *Collector {
	if namespace == "" {
		namespace = "shapely"
	}
	return &Collector{
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Chat model round trips by engine mode and status.",
		}, []string{"mode", "status"}),
		modelDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "Chat model round trip latency by engine mode.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"mode"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Failures fed back to the model by engine mode.",
		}, []string{"mode"}),
		capabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_invocations_total",
			Help:      "Capability invocations by capability and status.",
		}, []string{"capability", "status"}),
		capabilityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_duration_seconds",
			Help:      "Capability invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"capability"}),
	}
}

// Options returns the engine hooks that feed c.
func (c *Collector) Options() []shapely.Option {
	return []shapely.Option{
		shapely.WithOnModelCall(c.observeModelCall),
		shapely.WithOnCapability(c.observeCapability),
		shapely.WithOnRetry(c.observeRetry),
	}
}

func (c *Collector) observeModelCall(_ context.Context, mc shapely.ModelCall) {
	mode := string(mc.Mode)
	c.modelCalls.WithLabelValues(mode, status(mc.Error)).Inc()
	c.modelDuration.WithLabelValues(mode).Observe(mc.Duration.Seconds())
}

func (c *Collector) observeCapability(_ context.Context, ce shapely.CapabilityExecution) {
	c.capabilityCalls.WithLabelValues(ce.Name, status(ce.Error)).Inc()
	c.capabilityDuration.WithLabelValues(ce.Name).Observe(ce.Duration.Seconds())
}

func (c *Collector) observeRetry(_ context.Context, ev shapely.RetryEvent) {
	c.retries.WithLabelValues(string(ev.Mode)).Inc()
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.modelCalls.Describe(ch)
	c.modelDuration.Describe(ch)
	c.retries.Describe(ch)
	c.capabilityCalls.Describe(ch)
	c.capabilityDuration.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.modelCalls.Collect(ch)
	c.modelDuration.Collect(ch)
	c.retries.Collect(ch)
	c.capabilityCalls.Collect(ch)
	c.capabilityDuration.Collect(ch)
}

// Handler returns an HTTP handler exposing c (and nothing else) in the Prometheus text format.
func (c *Collector) Handler() (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

var _ prometheus.Collector = (*Collector)(nil)
