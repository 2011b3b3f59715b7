// Package metrics exposes write outcomes and writer slot usage to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/crashdb/internal/core"
)

const namespace = "crashdb"

// Recorder implements core.Recorder on its own registry, so tests and
// multiple services never collide on the global one.
type Recorder struct {
	registry *prometheus.Registry
	writes   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with Go runtime and process collectors
// already registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Record writes by entity, operation and outcome.",
		}, []string{"entity", "op", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Write latency including the wait for a write slot.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"entity", "op", "outcome"}),
	}
	r.registry.MustRegister(
		r.writes,
		r.latency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveWrite counts one finished write and records its latency.
func (r *Recorder) ObserveWrite(entity core.Entity, op, outcome string, elapsed time.Duration) {
	r.writes.WithLabelValues(string(entity), op, outcome).Inc()
	r.latency.WithLabelValues(string(entity), op, outcome).Observe(elapsed.Seconds())
}

// WriterStatusFunc reports the current write slot usage.
type WriterStatusFunc func() core.WriterStatus

// RegisterWriter exports writer slot gauges read from status at scrape
// time.
func (r *Recorder) RegisterWriter(status WriterStatusFunc) {
	r.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writer_active_slots",
			Help:      "Write slots currently held.",
		}, func() float64 { return float64(status().Active) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "writer_max_slots",
			Help:      "Configured number of write slots.",
		}, func() float64 { return float64(status().MaxConcurrent) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
