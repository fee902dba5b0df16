// Package metrics exposes Prometheus instrumentation for the alert pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"emergency-service/internal/models"
)

const namespace = "emergency"

// Metrics holds every collector. All methods are no-ops on a nil *Metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	attemptsTotal    *prometheus.CounterVec
	attemptDuration  *prometheus.HistogramVec
	batchesTotal     *prometheus.CounterVec
	dispatchDuration prometheus.Histogram

	eventsCreated    *prometheus.CounterVec
	statusChanges    *prometheus.CounterVec
	enrichmentsTotal *prometheus.CounterVec
	tasksDropped     prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	streamClients       prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		attemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "attempts_total",
				Help:      "Notification attempts by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		attemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "attempt_duration_seconds",
				Help:      "Provider call latency in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"channel"},
		),
		batchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "batches_total",
				Help:      "Alert batches by rollup: all, partial or none notified",
			},
			[]string{"rollup"},
		),
		dispatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "dispatch_duration_seconds",
				Help:      "Wall time of a whole alert batch",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),

		eventsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "created_total",
				Help:      "Emergency events created by type",
			},
			[]string{"type"},
		),
		statusChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "events",
				Name:      "status_changes_total",
				Help:      "Emergency event status transitions by target status",
			},
			[]string{"status"},
		),
		enrichmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enrichment",
				Name:      "total",
				Help:      "Completed location enrichments by address source",
			},
			[]string{"source"},
		),
		tasksDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "enrichment",
				Name:      "tasks_dropped_total",
				Help:      "Enrichment tasks dropped because the queue was full",
			},
		),

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		streamClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "stream",
				Name:      "clients",
				Help:      "Connected event stream websockets",
			},
		),
	}
}

// ObserveAttempt records one notification attempt.
func (m *Metrics) ObserveAttempt(channel models.Channel, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.attemptsTotal.WithLabelValues(string(channel), outcome).Inc()
	m.attemptDuration.WithLabelValues(string(channel)).Observe(elapsed.Seconds())
}

// ObserveBatch records the rollup and duration of one alert batch.
func (m *Metrics) ObserveBatch(total, notified int, elapsed time.Duration) {
	if m == nil {
		return
	}
	rollup := "partial"
	switch {
	case notified == 0:
		rollup = "none"
	case notified == total:
		rollup = "all"
	}
	m.batchesTotal.WithLabelValues(rollup).Inc()
	m.dispatchDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) EventCreated(t models.EventType) {
	if m == nil {
		return
	}
	m.eventsCreated.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) StatusChanged(to models.EventStatus) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(string(to)).Inc()
}

func (m *Metrics) Enriched(source string) {
	if m == nil {
		return
	}
	m.enrichmentsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) TaskDropped() {
	if m == nil {
		return
	}
	m.tasksDropped.Inc()
}

// ObserveHTTP records one served request. path should be the route template.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

func (m *Metrics) StreamClientsChanged(delta int) {
	if m == nil {
		return
	}
	m.streamClients.Add(float64(delta))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
