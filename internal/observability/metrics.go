package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "academy_hub"

// Metrics holds the Prometheus collectors for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	Logins          *prometheus.CounterVec
	Elevations      *prometheus.CounterVec
	GuardDecisions  *prometheus.CounterVec
	RulesRequests   *prometheus.CounterVec
	LiveConnections prometheus.Gauge
}

// NewMetrics creates and registers the collectors with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),

		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_logins_total",
			Help:      "Identity token to session cookie exchanges by outcome",
		}, []string{"outcome"}),

		Elevations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_elevation_requests_total",
			Help:      "Super-admin password update requests by response status",
		}, []string{"status"}),

		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_guard_decisions_total",
			Help:      "Dashboard guard decisions by required role and outcome",
		}, []string{"role", "decision"}),

		RulesRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_rules_requests_total",
			Help:      "Security rules drafting requests by outcome",
		}, []string{"outcome"}),

		LiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_live_connections",
			Help:      "Open auth-context WebSocket connections",
		}),
	}
}

// ObserveRequest records one completed HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// LoginOutcome records a session exchange result, e.g. "success", "bad_request", "failure"
func (m *Metrics) LoginOutcome(outcome string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(outcome).Inc()
}

// ElevationStatus records the status code of a role-elevation request
func (m *Metrics) ElevationStatus(status int) {
	if m == nil {
		return
	}
	m.Elevations.WithLabelValues(strconv.Itoa(status)).Inc()
}

// GuardDecision records a dashboard guard outcome
func (m *Metrics) GuardDecision(role, decision string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(role, decision).Inc()
}

// RulesOutcome records a security-rules drafting result
func (m *Metrics) RulesOutcome(outcome string) {
	if m == nil {
		return
	}
	m.RulesRequests.WithLabelValues(outcome).Inc()
}

// LiveConnectionOpened and LiveConnectionClosed track open WebSocket feeds
func (m *Metrics) LiveConnectionOpened() {
	if m != nil {
		m.LiveConnections.Inc()
	}
}

func (m *Metrics) LiveConnectionClosed() {
	if m != nil {
		m.LiveConnections.Dec()
	}
}
