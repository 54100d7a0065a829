// Package metrics holds the Prometheus collectors exported by mcp-authgate.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultNotFound = "not_found"
	ResultDenied   = "denied"
	ResultSkipped  = "skipped"
)

var (
	AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_auth_attempts_total",
			Help: "Credential validation attempts by result.",
		},
		[]string{"result"},
	)

	SecretLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_secret_lookups_total",
			Help: "Secret backend lookups by backend and result.",
		},
		[]string{"backend", "result"},
	)

	TokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_token_refresh_total",
			Help: "Token refresh attempts by result.",
		},
		[]string{"result"},
	)

	ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_tool_calls_total",
			Help: "Downstream MCP tool calls by service and result.",
		},
		[]string{"service", "result"},
	)

	TokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_token_validations_total",
			Help: "Stored token checks against the issuing service by service and result.",
		},
		[]string{"service", "result"},
	)

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "authgate_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			AuthAttempts,
			SecretLookups,
			TokenRefreshes,
			ToolCalls,
			TokenValidations,
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
		)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight count, totals and latency per route.
// Routes are taken from the ServeMux pattern so path parameters do not
// explode label cardinality.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		sw := &StatusWriter{ResponseWriter: w, Code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.Code)
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// StatusWriter remembers the response code written by a handler
type StatusWriter struct {
	http.ResponseWriter
	Code int
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Code = code
	w.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *StatusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
