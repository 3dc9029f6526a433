// Package metrics exposes the Prometheus counters and histograms the cache
// emits: hit/miss/store/purge, request timing, and upstream health.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so multiple instances (and tests) never
// collide on the process-global default.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheStores prometheus.Counter
	CachePurges prometheus.Counter
	CacheSize   prometheus.Gauge

	RequestsTotal   prometheus.Counter
	RequestDuration prometheus.Histogram

	ArtifactsStored  prometheus.Counter
	ArtifactsExpired prometheus.Counter

	UpstreamRequests prometheus.Counter
	UpstreamFailures prometheus.Counter
	UpstreamLatency  prometheus.Histogram
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_cache_hits_total",
			Help: "Total number of cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_cache_misses_total",
			Help: "Total number of cache misses",
		}),
		CacheStores: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_cache_stores_total",
			Help: "Total number of cache stores",
		}),
		CachePurges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_cache_purges_total",
			Help: "Total number of cache records purged",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scedge_cache_size",
			Help: "Current number of cached artifacts",
		}),

		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_requests_total",
			Help: "Total number of HTTP requests",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scedge_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0},
		}),

		ArtifactsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_artifacts_stored_total",
			Help: "Total number of artifacts stored",
		}),
		ArtifactsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_artifacts_expired_total",
			Help: "Total number of artifacts expired",
		}),

		UpstreamRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_upstream_requests_total",
			Help: "Total number of upstream hydration requests",
		}),
		UpstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scedge_upstream_failures_total",
			Help: "Total number of upstream failures",
		}),
		UpstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scedge_upstream_latency_seconds",
			Help:    "Upstream lookup latency in seconds",
			Buckets: []float64{0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0},
		}),
	}

	m.registry.MustRegister(
		m.CacheHits, m.CacheMisses, m.CacheStores, m.CachePurges, m.CacheSize,
		m.RequestsTotal, m.RequestDuration,
		m.ArtifactsStored, m.ArtifactsExpired,
		m.UpstreamRequests, m.UpstreamFailures, m.UpstreamLatency,
	)
	return m
}

func (m *Metrics) RecordCacheHit()  { m.CacheHits.Inc() }
func (m *Metrics) RecordCacheMiss() { m.CacheMisses.Inc() }

func (m *Metrics) RecordCacheStore() {
	m.CacheStores.Inc()
	m.ArtifactsStored.Inc()
}

// RecordCachePurge adds the number of records removed by one purge.
func (m *Metrics) RecordCachePurge(count int) {
	m.CachePurges.Add(float64(count))
}

func (m *Metrics) RecordArtifactExpired() { m.ArtifactsExpired.Inc() }
func (m *Metrics) UpdateCacheSize(n int)  { m.CacheSize.Set(float64(n)) }

func (m *Metrics) RecordUpstreamRequest() { m.UpstreamRequests.Inc() }
func (m *Metrics) RecordUpstreamFailure() { m.UpstreamFailures.Inc() }

func (m *Metrics) ObserveUpstreamLatency(seconds float64) {
	m.UpstreamLatency.Observe(seconds)
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(duration time.Duration) {
	m.RequestsTotal.Inc()
	m.RequestDuration.Observe(duration.Seconds())
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
