// Package metrics holds the Prometheus collectors diarysync records into.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "diarysync"

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	TokenRefreshes  *prometheus.CounterVec
	RequestsTotal   *prometheus.CounterVec
	UploadAttempts  *prometheus.CounterVec
	UploadBytes     prometheus.Counter
	CacheFallbacks  *prometheus.CounterVec
	PollFetches     *prometheus.CounterVec
	CircuitOpenings *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses a private registry so
// several clients can coexist in one process.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		TokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "token_refreshes_total",
				Help:      "Token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "API requests by method and status class",
			},
			[]string{"method", "status"},
		),
		UploadAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfer",
				Name:      "attempts_total",
				Help:      "Upload attempts by outcome",
			},
			[]string{"outcome"},
		),
		UploadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfer",
				Name:      "bytes_sent_total",
				Help:      "Bytes streamed to upload destinations",
			},
		),
		CacheFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "repository",
				Name:      "cache_fallbacks_total",
				Help:      "Reads served from the local cache after a connectivity failure",
			},
			[]string{"resource"},
		),
		PollFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poll",
				Name:      "fetches_total",
				Help:      "Status fetches issued by pollers",
			},
			[]string{"resource"},
		),
		CircuitOpenings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "circuit_openings_total",
				Help:      "Circuit breaker transitions to open by host",
			},
			[]string{"host"},
		),
	}
}

// RecordRefresh counts a refresh outcome ("success", "failure", "reused").
func (m *Metrics) RecordRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// RecordRequest counts an API call.
func (m *Metrics) RecordRequest(method, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordUploadAttempt counts one transfer attempt.
func (m *Metrics) RecordUploadAttempt(outcome string) {
	if m == nil {
		return
	}
	m.UploadAttempts.WithLabelValues(outcome).Inc()
}

// AddUploadBytes adds n streamed bytes.
func (m *Metrics) AddUploadBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.UploadBytes.Add(float64(n))
}

// RecordCacheFallback counts a stale read for resource.
func (m *Metrics) RecordCacheFallback(resource string) {
	if m == nil {
		return
	}
	m.CacheFallbacks.WithLabelValues(resource).Inc()
}

// RecordPollFetch counts a poller fetch for resource.
func (m *Metrics) RecordPollFetch(resource string) {
	if m == nil {
		return
	}
	m.PollFetches.WithLabelValues(resource).Inc()
}

// RecordCircuitOpen counts a breaker opening for host.
func (m *Metrics) RecordCircuitOpen(host string) {
	if m == nil {
		return
	}
	m.CircuitOpenings.WithLabelValues(host).Inc()
}
