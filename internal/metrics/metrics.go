// Package metrics holds the Prometheus collectors shared by the gateway,
// the response cache and the HTTP layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg prometheus.Gatherer

	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	ResponseCache    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statehub",
			Name:      "upstream_requests_total",
			Help:      "Outbound datausa requests by query and outcome.",
		}, []string{"query", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "statehub",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of outbound datausa requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "statehub",
			Name:      "circuit_breaker_state",
			Help:      "0 closed, 1 half-open, 2 open.",
		}, []string{"name"}),
		ResponseCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statehub",
			Name:      "graphql_response_cache_total",
			Help:      "GraphQL response cache lookups by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statehub",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.BreakerState,
		m.ResponseCache,
		m.HTTPRequests,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
