package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildInfo is set once at startup from ldflags values.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "perfdash_api_build_info",
		Help: "Build information for the running API binary",
	}, []string{"version", "commit", "date"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perfdash_api_http_requests_total",
		Help: "HTTP requests by method, route pattern, and status code",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "perfdash_api_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	storeQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "perfdash_api_store_queries_total",
		Help: "Store queries by outcome",
	}, []string{"status"})

	storeQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "perfdash_api_store_query_duration_seconds",
		Help:    "Store query latency",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordStoreQuery records the duration and outcome of one store query.
func RecordStoreQuery(d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeQueriesTotal.WithLabelValues(status).Inc()
	storeQueryDuration.Observe(d.Seconds())
}

// Middleware records request counts and latency labeled by the chi route
// pattern, falling back to the raw path when no pattern matched.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
