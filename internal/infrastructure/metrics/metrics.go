// Package metrics exports Prometheus metrics for the core: permission
// resolutions, filter compilations, HTTP traffic and cache performance.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tesserahq/tessera/pkg/cache"
)

// Collector holds the Prometheus collectors for the process.
type Collector struct {
	resolves        *prometheus.CounterVec
	resolveDuration prometheus.Histogram
	filterCompiles  *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	cacheHits       prometheus.Gauge
	cacheMisses     prometheus.Gauge
	cacheHitRate    prometheus.Gauge

	decisionCache cache.Cache
}

// NewCollector registers the collectors with the default registry.
// decisionCache may be nil when caching is disabled.
func NewCollector(decisionCache cache.Cache) *Collector {
	return &Collector{
		resolves: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_permission_resolves_total",
			Help: "Total number of single-row permission resolutions",
		}, []string{"outcome"}),
		resolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "tessera_permission_resolve_duration_seconds",
			Help:    "Duration of single-row permission resolutions",
			Buckets: prometheus.DefBuckets,
		}),
		filterCompiles: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_filter_compiles_total",
			Help: "Total number of filter descriptor compilations",
		}, []string{"outcome"}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "tessera_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "status"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tessera_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		cacheHits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tessera_decision_cache_hits_total",
			Help: "Total decision cache hits",
		}),
		cacheMisses: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tessera_decision_cache_misses_total",
			Help: "Total decision cache misses",
		}),
		cacheHitRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "tessera_decision_cache_hit_rate",
			Help: "Decision cache hit rate",
		}),
		decisionCache: decisionCache,
	}
}

// ObserveResolve records one permission resolution.
func (c *Collector) ObserveResolve(allowed bool, d time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	c.resolves.WithLabelValues(outcome).Inc()
	c.resolveDuration.Observe(d.Seconds())
}

// ObserveFilterCompile records one filter compilation.
func (c *Collector) ObserveFilterCompile(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.filterCompiles.WithLabelValues(outcome).Inc()
}

// refreshCacheMetrics copies cache statistics into the gauges.
func (c *Collector) refreshCacheMetrics() {
	if c.decisionCache == nil {
		return
	}
	m := c.decisionCache.Metrics()
	c.cacheHits.Set(float64(m.Hits))
	c.cacheMisses.Set(float64(m.Misses))
	c.cacheHitRate.Set(m.HitRate())
}

// statusRecorder captures the response status for the request counter.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware instruments HTTP handlers.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics endpoint, refreshing cache gauges on scrape.
func (c *Collector) Handler() http.Handler {
	promHandler := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.refreshCacheMetrics()
		promHandler.ServeHTTP(w, r)
	})
}
