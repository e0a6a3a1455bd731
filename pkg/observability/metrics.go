package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Auth metrics
	SignupsTotal       prometheus.Counter
	LoginsTotal        *prometheus.CounterVec
	TokenDecodesFailed prometheus.Counter

	// Authorization metrics
	PermissionChecksTotal *prometheus.CounterVec

	// File metrics
	FileUploadsTotal   *prometheus.CounterVec
	FileDownloadsTotal *prometheus.CounterVec
	FileUploadBytes    prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gatehouse_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SignupsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_signups_total",
				Help: "Total number of successful signups",
			},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_logins_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"},
		),
		TokenDecodesFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_token_decode_failures_total",
				Help: "Total number of rejected session tokens",
			},
		),

		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_permission_checks_total",
				Help: "Total number of permission checks",
			},
			[]string{"result"},
		),

		FileUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_file_uploads_total",
				Help: "Total number of file uploads",
			},
			[]string{"status"},
		),
		FileDownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatehouse_file_downloads_total",
				Help: "Total number of file downloads",
			},
			[]string{"status"},
		),
		FileUploadBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gatehouse_file_upload_bytes_total",
				Help: "Total bytes accepted through uploads",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gatehouse_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SignupsTotal,
		m.LoginsTotal,
		m.TokenDecodesFailed,
		m.PermissionChecksTotal,
		m.FileUploadsTotal,
		m.FileDownloadsTotal,
		m.FileUploadBytes,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel returns the route template rather than the raw URL so path
// parameters do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
