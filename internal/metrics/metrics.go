// Package metrics owns the portal's Prometheus collectors. A nil *Collectors
// is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collectors struct {
	registry      *prometheus.Registry
	scopedQueries *prometheus.CounterVec
	decisions     *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the portal collectors plus the Go runtime and process
// collectors on a private registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		scopedQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_scoped_queries_total",
			Help: "Scoped list queries by collection and execution path (server, memory, empty).",
		}, []string{"collection", "path"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_proposal_decisions_total",
			Help: "Proposal decisions by outcome and result.",
		}, []string{"outcome", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.scopedQueries,
		c.decisions,
		c.httpRequests,
		c.httpDuration,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collectors) ObserveQuery(collection, path string) {
	if c == nil {
		return
	}
	c.scopedQueries.WithLabelValues(collection, path).Inc()
}

func (c *Collectors) ObserveDecision(outcome, result string) {
	if c == nil {
		return
	}
	c.decisions.WithLabelValues(outcome, result).Inc()
}

func (c *Collectors) ObserveRequest(method string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ScopedQueries exposes the counter for tests.
func (c *Collectors) ScopedQueries() *prometheus.CounterVec { return c.scopedQueries }

// Decisions exposes the counter for tests.
func (c *Collectors) Decisions() *prometheus.CounterVec { return c.decisions }
