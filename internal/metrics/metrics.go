// Package metrics exposes Prometheus instruments for mirrors, writes and
// external lookups. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lifelog"

// Write outcomes.
const (
	OutcomeAccepted  = "accepted"
	OutcomeConfirmed = "confirmed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

type Metrics struct {
	Registry *prometheus.Registry

	SnapshotsApplied *prometheus.CounterVec
	SnapshotsDropped *prometheus.CounterVec
	ListenerErrors   *prometheus.CounterVec
	Writes           *prometheus.CounterVec
	MirrorSize       *prometheus.GaugeVec
	Lookups          *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	RateLimited      *prometheus.CounterVec
}

// New registers every instrument on a fresh registry together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		SnapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_applied_total",
			Help:      "Listener snapshots applied to a mirror.",
		}, []string{"collection"}),
		SnapshotsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_dropped_total",
			Help:      "Snapshots discarded because they belong to a previous identity.",
		}, []string{"collection"}),
		ListenerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listener_errors_total",
			Help:      "Errors reported by store listeners.",
		}, []string{"collection"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Store writes by operation and outcome.",
		}, []string{"collection", "op", "outcome"}),
		MirrorSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mirror_documents",
			Help:      "Documents currently held by a mirror.",
		}, []string{"collection"}),
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_lookups_total",
			Help:      "Holiday and weather lookups by source and outcome.",
		}, []string{"source", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"path"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SnapshotsApplied,
		m.SnapshotsDropped,
		m.ListenerErrors,
		m.Writes,
		m.MirrorSize,
		m.Lookups,
		m.HTTPRequests,
		m.HTTPDuration,
		m.RateLimited,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) SnapshotApplied(collection string, size int) {
	if m == nil {
		return
	}
	m.SnapshotsApplied.WithLabelValues(collection).Inc()
	m.MirrorSize.WithLabelValues(collection).Set(float64(size))
}

func (m *Metrics) SnapshotDropped(collection string) {
	if m == nil {
		return
	}
	m.SnapshotsDropped.WithLabelValues(collection).Inc()
}

func (m *Metrics) ListenerError(collection string) {
	if m == nil {
		return
	}
	m.ListenerErrors.WithLabelValues(collection).Inc()
}

// MirrorCleared resets the size gauge of collection.
func (m *Metrics) MirrorCleared(collection string) {
	if m == nil {
		return
	}
	m.MirrorSize.WithLabelValues(collection).Set(0)
}

func (m *Metrics) Write(collection, op, outcome string) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(collection, op, outcome).Inc()
}

func (m *Metrics) Lookup(source, outcome string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Request(method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) Limited(path string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(path).Inc()
}
