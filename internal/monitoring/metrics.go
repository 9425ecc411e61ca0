package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the service's Prometheus instrumentation.
type Metrics struct {
	// HTTP metrics
	requestDuration *prometheus.HistogramVec
	requestCount    *prometheus.CounterVec

	// Engine metrics
	optimizationDuration *prometheus.HistogramVec
	optimizationCount    *prometheus.CounterVec
	universeSize         prometheus.Histogram

	// Cache metrics
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics creates a metrics collector registered on the default
// registry.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"handler", "method", "status"},
		),

		requestCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		optimizationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "optimization_duration_seconds",
				Help:      "Duration of optimization runs",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"tolerance", "status"},
		),

		optimizationCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "optimizations_total",
				Help:      "Total number of optimization runs",
			},
			[]string{"tolerance", "status"},
		),

		universeSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "optimization_universe_size",
				Help:      "Number of assets per optimization run",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		cacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_hits_total",
				Help:      "Optimization results served from cache",
			},
		),

		cacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "result_cache_misses_total",
				Help:      "Optimization requests not found in cache",
			},
		),
	}
}

// ObserveOptimization records one optimization run.
func (m *Metrics) ObserveOptimization(tolerance string, assetCount int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.optimizationDuration.WithLabelValues(tolerance, status).Observe(duration.Seconds())
	m.optimizationCount.WithLabelValues(tolerance, status).Inc()
	m.universeSize.Observe(float64(assetCount))
}

// ObserveCache records a cache lookup outcome.
func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument wraps an HTTP handler with request metrics.
func (m *Metrics) Instrument(name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		m.requestDuration.WithLabelValues(name, r.Method, status).Observe(time.Since(start).Seconds())
		m.requestCount.WithLabelValues(name, r.Method, status).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
