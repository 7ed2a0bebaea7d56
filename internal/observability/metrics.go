package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the relay's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	requests          *prometheus.CounterVec
	errors            *prometheus.CounterVec
	credentialRefresh *prometheus.CounterVec
	credentialHits    prometheus.Counter
	callbackOutcomes  *prometheus.CounterVec
	upstreamDuration  *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "HTTP requests served, by route, method and status",
		}, []string{"path", "method", "status"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_http_errors_total",
			Help: "HTTP requests that ended in a domain error, by code",
		}, []string{"path", "method", "code"}),
		credentialRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_credential_refresh_total",
			Help: "Access credential refresh attempts by result",
		}, []string{"result"}),
		credentialHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_credential_cache_hits_total",
			Help: "Access credential lookups served from the local cache",
		}),
		callbackOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_callback_events_total",
			Help: "Callback deliveries by binding outcome",
		}, []string{"outcome"}),
		upstreamDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_upstream_request_duration_seconds",
			Help:    "Latency of Official Account API calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"endpoint"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordCredentialRefresh counts a refresh attempt; result is "issued", "shared" or "failed".
func (m *Metrics) RecordCredentialRefresh(result string) {
	if m == nil {
		return
	}
	m.credentialRefresh.WithLabelValues(result).Inc()
}

// RecordCredentialHit counts a cache hit.
func (m *Metrics) RecordCredentialHit() {
	if m == nil {
		return
	}
	m.credentialHits.Inc()
}

// RecordCallback counts a processed callback delivery.
func (m *Metrics) RecordCallback(outcome string) {
	if m == nil {
		return
	}
	m.callbackOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the duration of a platform call started at start.
func (m *Metrics) ObserveUpstream(endpoint string, start time.Time) {
	if m == nil {
		return
	}
	m.upstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
