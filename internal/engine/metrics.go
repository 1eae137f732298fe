package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "docbridge"

// Metrics holds the engine's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	compiles     *prometheus.CounterVec
	ops          *prometheus.CounterVec
	fanOut       prometheus.Histogram
	storeSeconds *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		compiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "compile_total",
			Help:      "Statements compiled, by statement kind and outcome.",
		}, []string{"statement", "outcome"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ops_total",
			Help:      "Document ops executed, by op kind and outcome.",
		}, []string{"kind", "outcome"}),
		fanOut: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fanout_ops",
			Help:      "Fan-out ops issued per write statement.",
			Buckets:   []float64{0, 1, 2, 5, 10, 50, 100, 500, 1000},
		}),
		storeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "store_seconds",
			Help:      "Latency of document store calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call"}),
	}
	m.registry.MustRegister(m.compiles, m.ops, m.fanOut, m.storeSeconds)
	return m
}

// Registry exposes the registry for scraping or export.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric in the text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}

func (m *Metrics) compiled(statement string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = CodeOf(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	m.compiles.WithLabelValues(statement, outcome).Inc()
}

func (m *Metrics) op(kind, outcome string) {
	m.ops.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) storeCall(call string, start time.Time) {
	m.storeSeconds.WithLabelValues(call).Observe(time.Since(start).Seconds())
}
