package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "terminal"

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive    prometheus.Gauge
	SessionsTotal     *prometheus.CounterVec
	ProvisionDuration *prometheus.HistogramVec
	TeardownErrors    *prometheus.CounterVec

	// Filter metrics
	FilterDenials *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time
	gatherer  prometheus.Gatherer

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON health endpoint.
type Snapshot struct {
	ActiveSessions    int64   `json:"active_sessions"`
	TotalSessions     int64   `json:"total_sessions"`
	ActiveConnections int64   `json:"active_connections"`
	Denials           int64   `json:"denials"`
	TeardownErrors    int64   `json:"teardown_errors"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
}

// NewMetrics registers all collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),
		gatherer:  reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of registered terminal sessions",
			},
		),
		SessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Terminal sessions started, by execution mode",
			},
			[]string{"mode"},
		),
		ProvisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sandbox_provision_seconds",
				Help:      "Sandbox provisioning duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		),
		TeardownErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "teardown_errors_total",
				Help:      "Failed teardown steps",
			},
			[]string{"step"},
		),

		FilterDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filter_denials_total",
				Help:      "Command lines rejected by the filter, by rule",
			},
			[]string{"rule"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ws_connections",
				Help:      "Number of open terminal WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the registered metrics in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SessionCreated counts a newly registered session.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveSessions++
	m.mu.Unlock()
}

// SessionDestroyed counts a session leaving the registry.
func (m *Metrics) SessionDestroyed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveSessions--
	m.mu.Unlock()
}

// SessionStarted records the execution mode a session settled on.
func (m *Metrics) SessionStarted(mode string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(mode).Inc()
	m.mu.Lock()
	m.snapshot.TotalSessions++
	m.mu.Unlock()
}

// RecordProvision records how long a sandbox took to provision.
func (m *Metrics) RecordProvision(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProvisionDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordTeardownError counts a failed teardown step.
func (m *Metrics) RecordTeardownError(step string) {
	if m == nil {
		return
	}
	m.TeardownErrors.WithLabelValues(step).Inc()
	m.mu.Lock()
	m.snapshot.TeardownErrors++
	m.mu.Unlock()
}

// RecordDenial counts a command line rejected by the filter.
func (m *Metrics) RecordDenial(rule string) {
	if m == nil {
		return
	}
	m.FilterDenials.WithLabelValues(rule).Inc()
	m.mu.Lock()
	m.snapshot.Denials++
	m.mu.Unlock()
}

// RecordWSMessage records a WebSocket message.
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections.
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections.
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
