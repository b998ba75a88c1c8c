package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing, so services can run without it.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Identity metrics
	AuthEventsTotal       *prometheus.CounterVec
	PermissionChecksTotal *prometheus.CounterVec
	SAMLLoginsTotal       *prometheus.CounterVec
	RateLimitedTotal      *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_auth_events_total",
				Help: "Authentication and signup events by outcome",
			},
			[]string{"event", "outcome"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_permission_checks_total",
				Help: "Permission checks by mode and decision",
			},
			[]string{"mode", "allowed"},
		),
		SAMLLoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_saml_logins_total",
				Help: "SAML login attempts by terminal state",
			},
			[]string{"state"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantgate_rate_limited_total",
				Help: "Requests rejected by the distributed rate limiter",
			},
			[]string{"limiter"},
		),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantgate_db_connections_open",
			Help: "Number of open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantgate_db_connections_in_use",
			Help: "Number of database connections in use",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tenantgate_db_connections_idle",
			Help: "Number of idle database connections",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthEventsTotal,
		m.PermissionChecksTotal,
		m.SAMLLoginsTotal,
		m.RateLimitedTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordAuthEvent counts a signup, sign-in, refresh or approval outcome
func (m *Metrics) RecordAuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEventsTotal.WithLabelValues(event, outcome).Inc()
}

// RecordPermissionCheck counts an evaluation of the permission engine
func (m *Metrics) RecordPermissionCheck(mode string, allowed bool) {
	if m == nil {
		return
	}
	m.PermissionChecksTotal.WithLabelValues(mode, strconv.FormatBool(allowed)).Inc()
}

// RecordSAMLLogin counts a SAML login attempt that reached state
func (m *Metrics) RecordSAMLLogin(state string) {
	if m == nil {
		return
	}
	m.SAMLLoginsTotal.WithLabelValues(state).Inc()
}

// RecordRateLimited counts a request rejected by limiter
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// RecordDBStats copies connection pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel uses the mux route template to keep label cardinality bounded
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
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
