package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weekcal_http_requests_total",
		Help: "Total number of HTTP requests processed.",
	}, []string{"method", "route"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weekcal_http_request_duration_seconds",
		Help:    "Histogram of latencies for HTTP requests.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weekcal_refresh_total",
		Help: "Total number of source refresh runs by outcome.",
	}, []string{"outcome"})

	parsedEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "weekcal_parsed_events",
		Help: "Number of events parsed from each source at the last refresh.",
	}, []string{"source"})

	cacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weekcal_source_cache_hits_total",
		Help: "Total number of source loads served from the disk cache.",
	}, []string{"source"})
)

// statusRecorder captures the response status for labeling.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// knownRoutes is the fixed path set this service serves. Requests for
// anything else (scanner noise, typos) fold into one "other" label so
// path label cardinality stays bounded.
var knownRoutes = map[string]bool{
	"/health":         true,
	"/api/schedule":   true,
	"/api/events":     true,
	"/api/export.ics": true,
	"/api/refresh":    true,
	"/metrics":        true,
}

func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// Middleware records request count and latency per route, labeled by
// URL path with unknown paths folded into "other".
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := routeLabel(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, route).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRefresh counts one refresh run. Outcomes: "ok", "partial"
// (some sources failed), "error" (no source loaded).
func ObserveRefresh(outcome string) {
	refreshTotal.WithLabelValues(outcome).Inc()
}

// SetParsedEvents records how many events the given source parsed into
// at the last refresh.
func SetParsedEvents(source string, n int) {
	parsedEvents.WithLabelValues(source).Set(float64(n))
}

// ObserveCacheHit counts one source load served from the disk cache.
func ObserveCacheHit(source string) {
	cacheHitsTotal.WithLabelValues(source).Inc()
}
