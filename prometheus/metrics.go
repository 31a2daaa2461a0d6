package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_login_total",
			Help: "Total number of login attempts",
		},
	)

	RegisterCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_register_total",
			Help: "Total number of tenant registrations",
		},
	)

	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"}, // "invalid_token", "permission_denied", "account_locked", ...
	)

	TenantErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_tenant_errors_total",
			Help: "Total number of tenant resolution errors",
		},
		[]string{"type"}, // "not_identified", "trial_expired", "status_suspended", ...
	)

	TenantOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_tenant_operations_total",
			Help: "Total number of tenant administration operations",
		},
		[]string{"operation"}, // "create", "suspend", "activate", "update", "delete"
	)

	LeadConversionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_lead_conversions_total",
			Help: "Total number of leads converted into clients",
		},
	)

	QuotaRejectionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_quota_rejections_total",
			Help: "Total number of operations rejected by a user quota",
		},
		[]string{"owner"}, // "tenant" or "company"
	)

	HTTPRequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_http_requests_total",
			Help: "Total number of HTTP requests by endpoint and status",
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Histogram metrics
var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "query", "insert", "update", "delete"
	)
)

// Gauge metrics
var (
	ActiveTenantsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_active_tenants",
			Help: "Number of currently active tenants",
		},
	)

	UsersPerTenantGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crm_users_per_tenant",
			Help: "Number of users per tenant",
		},
		[]string{"tenant_id", "tenant_name"},
	)

	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crm_info",
			Help: "Information about the CRM service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(RegisterCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(TenantErrorCounter)
	prometheus.MustRegister(TenantOperationCounter)
	prometheus.MustRegister(LeadConversionCounter)
	prometheus.MustRegister(QuotaRejectionCounter)
	prometheus.MustRegister(HTTPRequestCounter)

	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(ActiveTenantsGauge)
	prometheus.MustRegister(UsersPerTenantGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthError increments the auth error counter for the given type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTenantError increments the tenant error counter for the given type
func RecordTenantError(errorType string) {
	TenantErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTenantOperation increments the tenant operation counter
func RecordTenantOperation(operation string) {
	TenantOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordQuotaRejection increments the quota rejection counter
func RecordQuotaRejection(owner string) {
	QuotaRejectionCounter.With(prometheus.Labels{"owner": owner}).Inc()
}

// TrackDBOperation measures database operation durations
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		duration := time.Since(startTime).Seconds()
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(duration)
	}
}

// MetricsMiddleware returns an Echo middleware recording request counts
// and durations
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			labels := prometheus.Labels{
				"endpoint": c.Path(),
				"method":   c.Request().Method,
				"status":   status,
			}
			HTTPRequestCounter.With(labels).Inc()
			RequestDuration.With(labels).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
