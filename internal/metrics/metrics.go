// Package metrics provides Prometheus metrics for the proxy.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Default histogram buckets for dial and admin request latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Connection lifetimes range from milliseconds (single relay) to hours (tunnels).
var connectionBuckets = []float64{.01, .05, .1, .5, 1, 5, 30, 60, 300, 1800, 3600}

// Relay directions.
const (
	DirectionUpstream   = "upstream"   // client to remote
	DirectionDownstream = "downstream" // remote to client
)

// Metrics holds all Prometheus metric collectors for the proxy.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsTotal    *prometheus.CounterVec
	ConnectionsInFlight prometheus.Gauge
	ConnectionDuration  *prometheus.HistogramVec
	RelayBytes          *prometheus.CounterVec
	DialDuration        *prometheus.HistogramVec
	AcceptErrors        prometheus.Counter

	AdminRequestsTotal   *prometheus.CounterVec
	AdminRequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rserver_connections_total",
			Help: "Total handled client connections by strategy and result.",
		}, []string{"strategy", "result"}),

		ConnectionsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rserver_connections_in_flight",
			Help: "Number of client connections currently being handled.",
		}),

		ConnectionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rserver_connection_duration_seconds",
			Help:    "Client connection handling time in seconds.",
			Buckets: connectionBuckets,
		}, []string{"strategy"}),

		RelayBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rserver_relay_bytes_total",
			Help: "Bytes relayed by direction.",
		}, []string{"direction"}),

		DialDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rserver_dial_duration_seconds",
			Help:    "Outbound connect latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"result"}),

		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rserver_accept_errors_total",
			Help: "Total errors returned by the listener's accept call.",
		}),

		AdminRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rserver_admin_http_requests_total",
			Help: "Total admin HTTP requests.",
		}, []string{"method", "status_code", "path"}),

		AdminRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rserver_admin_http_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path"}),
	}

	reg.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsInFlight,
		m.ConnectionDuration,
		m.RelayBytes,
		m.DialDuration,
		m.AcceptErrors,
		m.AdminRequestsTotal,
		m.AdminRequestDuration,
	)

	return m
}

// AddRelayBytes records n bytes relayed in direction. Non-positive counts are ignored.
func (m *Metrics) AddRelayBytes(direction string, n int64) {
	if n > 0 {
		m.RelayBytes.WithLabelValues(direction).Add(float64(n))
	}
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPaths lists the allowed admin path label values.
var knownPaths = []string{"/healthz", "/proxy/status", "/metrics"}

// NormalizePath returns a bounded path label for the admin surface. The
// configured metrics path is accepted in addition to the fixed routes.
func NormalizePath(path, metricsPath string) string {
	if metricsPath != "" && path == metricsPath {
		return "/metrics"
	}
	for _, prefix := range knownPaths {
		if path == prefix || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}
