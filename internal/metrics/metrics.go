package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: how many times a cache group served a fresh entry.
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusapi_cache_hits_total",
			Help: "Total number of cache hits, per cache group.",
		},
		[]string{"group"},
	)

	// Counter: how many times a lookup missed and went upstream.
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusapi_cache_misses_total",
			Help: "Total number of cache misses, per cache group.",
		},
		[]string{"group"},
	)

	// Counter: callers that shared an in-flight fetch instead of starting
	// their own.
	CacheCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statusapi_cache_coalesced_total",
			Help: "Total number of callers coalesced onto an in-flight fetch, per cache group.",
		},
		[]string{"group"},
	)

	// Histogram: upstream request latency in seconds, per upstream name.
	UpstreamRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statusapi_upstream_request_seconds",
			Help:    "Latency of upstream API requests in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"upstream"},
	)

	// Histogram: HTTP request latency in seconds.
	HTTPRequestSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statusapi_http_request_seconds",
			Help:    "HTTP request latency for the status API in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheHitsTotal,
		CacheMissesTotal,
		CacheCoalescedTotal,
		UpstreamRequestSeconds,
		HTTPRequestSeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures request latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		path := r.URL.Path
		method := r.Method
		status := strconv.Itoa(rec.statusCode)

		HTTPRequestSeconds.
			WithLabelValues(path, method, status).
			Observe(duration)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
