// Package metrics provides Prometheus metrics for the MMDVM state monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager holds the Prometheus collectors used across the service.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	// Log ingestion
	linesRead     prometheus.Counter
	linesMatched  prometheus.Counter
	linesIgnored  prometheus.Counter
	parseFailures prometheus.Counter
	rotations     prometheus.Counter
	readErrors    prometheus.Counter

	// QSO lifecycle
	qsosStarted   prometheus.Counter
	qsosFinalized *prometheus.CounterVec
	activeQSOs    prometheus.Gauge
	historySize   prometheus.Gauge

	// Event fan-out
	eventsPublished prometheus.Counter
	eventsDropped   prometheus.Counter
	subscribers     prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var (
	customRegistry = prometheus.NewRegistry()
	globalManager  = NewManager(customRegistry)
)

// NewManager registers all collectors on the given registry.
func NewManager(reg *prometheus.Registry) *Manager {
	m := &Manager{
		namespace: "mmdvmstate",
		registry:  reg,
	}
	auto := promauto.With(reg)

	m.linesRead = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "log_lines_read_total",
		Help:      "Complete log lines read from monitored files.",
	})
	m.linesMatched = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "log_lines_matched_total",
		Help:      "Log lines that matched a known pattern.",
	})
	m.linesIgnored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "log_lines_ignored_total",
		Help:      "Log lines matching no known pattern (normal operation).",
	})
	m.parseFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "log_parse_failures_total",
		Help:      "Lines that matched a pattern but had malformed fields.",
	})
	m.rotations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "log_rotations_total",
		Help:      "Detected log file rotations or truncations.",
	})
	m.readErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "log_read_errors_total",
		Help:      "Transient read errors while tailing log files.",
	})

	m.qsosStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "qsos_started_total",
		Help:      "QSOs created by the tracker.",
	})
	m.qsosFinalized = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "qsos_finalized_total",
		Help:      "QSOs moved to a terminal status, by outcome.",
	}, []string{"outcome"})
	m.activeQSOs = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "active_qsos",
		Help:      "QSOs currently in the active set.",
	})
	m.historySize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "history_size",
		Help:      "QSOs currently retained in the bounded history.",
	})

	m.eventsPublished = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "events_published_total",
		Help:      "Events published to the bus.",
	})
	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "events_dropped_total",
		Help:      "Events dropped from slow subscriber queues.",
	})
	m.subscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "subscribers",
		Help:      "Currently registered event subscribers.",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"endpoint", "method", "status"})

	return m
}

// Package-level recorders operating on the global manager.

func RecordLineRead()     { globalManager.linesRead.Inc() }
func RecordLineMatched()  { globalManager.linesMatched.Inc() }
func RecordLineIgnored()  { globalManager.linesIgnored.Inc() }
func RecordParseFailure() { globalManager.parseFailures.Inc() }
func RecordRotation()     { globalManager.rotations.Inc() }
func RecordReadError()    { globalManager.readErrors.Inc() }

func RecordQSOStarted() { globalManager.qsosStarted.Inc() }

// RecordQSOFinalized counts a terminal transition by outcome
// (completed, timeout or error).
func RecordQSOFinalized(outcome string) {
	globalManager.qsosFinalized.WithLabelValues(outcome).Inc()
}

func UpdateActiveQSOs(n int)  { globalManager.activeQSOs.Set(float64(n)) }
func UpdateHistorySize(n int) { globalManager.historySize.Set(float64(n)) }

func RecordEventPublished()   { globalManager.eventsPublished.Inc() }
func RecordEventDropped()     { globalManager.eventsDropped.Inc() }
func UpdateSubscribers(n int) { globalManager.subscribers.Set(float64(n)) }

// RecordHTTPRequest counts an HTTP request and its latency.
func RecordHTTPRequest(endpoint, method, status string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

// GetRegistry returns the custom Prometheus registry used by the service.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
