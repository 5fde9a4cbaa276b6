// Package metrics provides Prometheus metrics for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every metric the relay core and its admin surface emit.
type Metrics struct {
	PacketsTotal   *prometheus.CounterVec
	BytesForwarded prometheus.Counter

	ActiveSessions prometheus.Gauge
	ActiveGroups   prometheus.Gauge

	SessionsEstablishedTotal prometheus.Counter
	SessionsExpiredTotal     *prometheus.CounterVec
	SendErrorsTotal          prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PanicsTotal         prometheus.Counter
	RateLimitHits       prometheus.Counter

	registry *prometheus.Registry
}

// Outcome labels used on PacketsTotal.
const (
	OutcomeForwarded        = "forwarded"
	OutcomeDroppedMalformed = "dropped_malformed"
	OutcomeDroppedMAC       = "dropped_mac_mismatch"
	OutcomeDroppedCollision = "dropped_index_collision"
	OutcomeDroppedPolicy    = "dropped_policy_violation"
	OutcomeDroppedUnknown   = "dropped_unknown_receiver"
	OutcomeDroppedTimedOut  = "dropped_peer_timed_out"
)

// Expiry-reason labels used on SessionsExpiredTotal.
const (
	ReasonInitiatorTimeout   = "initiator_timeout"
	ReasonBrokenPairing      = "broken_pairing"
	ReasonEstablishedTimeout = "established_timeout"
	ReasonHalfTimeout        = "half_timeout"
)

// New creates and registers every relay metric.
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		PacketsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packets_total",
				Help:      "Total datagrams processed by the dispatcher, by outcome.",
			},
			[]string{"type", "outcome"},
		),

		BytesForwarded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_forwarded_total",
				Help:      "Total bytes forwarded to peers.",
			},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Number of sessions currently tracked.",
			},
		),

		ActiveGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_groups",
				Help:      "Number of configured key groups.",
			},
		),

		SessionsEstablishedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_established_total",
				Help:      "Total sessions that completed a handshake.",
			},
		),

		SessionsExpiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_expired_total",
				Help:      "Total sessions removed or half-timed-out by the expiry sweep, by reason.",
			},
			[]string{"reason"},
		),

		SendErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "send_errors_total",
				Help:      "Total sendto failures.",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_http_requests_total",
				Help:      "Total requests to the admin/metrics HTTP surface.",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "admin_http_request_duration_seconds",
				Help:      "Admin HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		PanicsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_panics_total",
				Help:      "Total panics recovered in the admin HTTP surface.",
			},
		),

		RateLimitHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admin_rate_limit_hits_total",
				Help:      "Total requests rejected by the admin surface rate limiter.",
			},
		),
	}

	registry.MustRegister(
		m.PacketsTotal,
		m.BytesForwarded,
		m.ActiveSessions,
		m.ActiveGroups,
		m.SessionsEstablishedTotal,
		m.SessionsExpiredTotal,
		m.SendErrorsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PanicsTotal,
		m.RateLimitHits,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
