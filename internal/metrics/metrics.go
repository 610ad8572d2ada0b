// Package metrics provides Prometheus-based metrics collection for scanhub.
// It covers scan session lifecycle, progress event fan-out, schedule firings,
// and the HTTP API surface.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "scanhub"

	subsystemScan      = "scan"
	subsystemBroadcast = "broadcast"
	subsystemScheduler = "scheduler"
	subsystemAPI       = "api"
)

// Metrics holds all Prometheus metric collectors.
type Metrics struct {
	// Scan metrics
	scansStarted   prometheus.Counter
	scansFinished  *prometheus.CounterVec
	scanDuration   *prometheus.HistogramVec
	activeSessions prometheus.Gauge

	// Broadcast metrics
	eventsPublished  *prometheus.CounterVec
	eventsDropped    prometheus.Counter
	websocketClients prometheus.Gauge

	// Scheduler metrics
	scheduleFirings *prometheus.CounterVec
	activeSchedules prometheus.Gauge

	// API metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a metrics instance with all collectors registered on a
// dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		scansStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "started_total",
			Help:      "Total number of scan sessions started",
		}),
		scansFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "finished_total",
			Help:      "Total number of scan sessions finished by terminal status",
		}, []string{"status"}),
		scanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of scan sessions in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0, 600.0, 1800.0},
		}, []string{"preset"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "sessions_active",
			Help:      "Number of currently running scan sessions",
		}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemBroadcast,
			Name:      "events_published_total",
			Help:      "Total number of progress events published by event type",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemBroadcast,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped because a subscriber buffer was full",
		}),
		websocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemBroadcast,
			Name:      "websocket_clients",
			Help:      "Number of currently connected websocket clients",
		}),
		scheduleFirings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScheduler,
			Name:      "firings_total",
			Help:      "Total number of schedule firings by outcome",
		}, []string{"status"}),
		activeSchedules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScheduler,
			Name:      "schedules_active",
			Help:      "Number of active schedules",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemAPI,
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		}, []string{"method", "path"}),
	}

	registry.MustRegister(
		m.scansStarted,
		m.scansFinished,
		m.scanDuration,
		m.activeSessions,
		m.eventsPublished,
		m.eventsDropped,
		m.websocketClients,
		m.scheduleFirings,
		m.activeSchedules,
		m.httpRequests,
		m.httpDuration,
	)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the Prometheus registry backing this instance.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ScanStarted records a new scan session.
func (m *Metrics) ScanStarted() {
	m.scansStarted.Inc()
	m.activeSessions.Inc()
}

// ScanFinished records a terminal scan outcome.
func (m *Metrics) ScanFinished(status, preset string, duration time.Duration) {
	m.scansFinished.WithLabelValues(status).Inc()
	m.scanDuration.WithLabelValues(preset).Observe(duration.Seconds())
	m.activeSessions.Dec()
}

// EventPublished records a progress event fan-out.
func (m *Metrics) EventPublished(eventType string) {
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// EventDropped records an event discarded due to a full subscriber buffer.
func (m *Metrics) EventDropped() {
	m.eventsDropped.Inc()
}

// ClientConnected records a websocket client connecting.
func (m *Metrics) ClientConnected() {
	m.websocketClients.Inc()
}

// ClientDisconnected records a websocket client disconnecting.
func (m *Metrics) ClientDisconnected() {
	m.websocketClients.Dec()
}

// ScheduleFired records a schedule firing outcome.
func (m *Metrics) ScheduleFired(status string) {
	m.scheduleFirings.WithLabelValues(status).Inc()
}

// SetActiveSchedules sets the active schedule gauge.
func (m *Metrics) SetActiveSchedules(count int) {
	m.activeSchedules.Set(float64(count))
}

// HTTPRequest records a completed HTTP request.
func (m *Metrics) HTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Global returns the process-wide metrics instance.
func Global() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = New()
	})
	return globalMetrics
}
