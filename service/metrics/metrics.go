package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal    *prometheus.CounterVec
	solanaRPCCallDuration  *prometheus.HistogramVec
	solanaRPCRateLimitHits *prometheus.CounterVec
	solanaRPCRetries       *prometheus.CounterVec

	// Verification Metrics
	verificationsTotal   *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec

	// Purchase Metrics
	purchasesTotal        *prometheus.CounterVec
	purchaseDuration      *prometheus.HistogramVec
	artifactIssueDuration *prometheus.HistogramVec
	ipfsUploadsTotal      *prometheus.CounterVec

	// Notification Metrics
	notificationsTotal     *prometheus.CounterVec
	notificationQueueDepth prometheus.Gauge
	emailWorkflowDuration  *prometheus.HistogramVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),

		// Verification Metrics
		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_verifications_total",
				Help: "Total number of payment verifications by result code",
			},
			[]string{"code"},
		),
		verificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_verification_duration_seconds",
				Help:    "Duration of payment verification in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
			},
			[]string{"valid"},
		),

		// Purchase Metrics
		purchasesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchases_total",
				Help: "Total number of purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		purchaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "purchase_duration_seconds",
				Help:    "End-to-end duration of purchase requests in seconds",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		artifactIssueDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "artifact_issue_duration_seconds",
				Help:    "Duration of artifact generation and upload in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"status"},
		),
		ipfsUploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ipfs_uploads_total",
				Help: "Total number of IPFS uploads by content kind and status",
			},
			[]string{"kind", "status"},
		),

		// Notification Metrics
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_total",
				Help: "Total number of purchase notifications by channel and status",
			},
			[]string{"channel", "status"},
		),
		notificationQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "notification_queue_depth",
				Help: "Number of notifications waiting for a dispatch worker",
			},
		),
		emailWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "email_activity_duration_seconds",
				Help:    "Duration of purchase email activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"status"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// Verification metric helpers

// RecordVerification records a verification outcome. code is empty for valid payments.
func (m *Metrics) RecordVerification(code string, valid bool, duration float64) {
	if code == "" {
		code = "valid"
	}
	m.verificationsTotal.WithLabelValues(code).Inc()
	validLabel := "false"
	if valid {
		validLabel = "true"
	}
	m.verificationDuration.WithLabelValues(validLabel).Observe(duration)
}

// Purchase metric helpers

// RecordPurchase records the outcome of a purchase request ("success" or an error kind).
func (m *Metrics) RecordPurchase(outcome string, duration float64) {
	m.purchasesTotal.WithLabelValues(outcome).Inc()
	m.purchaseDuration.WithLabelValues(outcome).Observe(duration)
}

// RecordArtifactIssue records artifact generation duration.
func (m *Metrics) RecordArtifactIssue(status string, duration float64) {
	m.artifactIssueDuration.WithLabelValues(status).Observe(duration)
}

// RecordIPFSUpload records an upload of an artifact image or metadata document.
func (m *Metrics) RecordIPFSUpload(kind, status string) {
	m.ipfsUploadsTotal.WithLabelValues(kind, status).Inc()
}

// Notification metric helpers

// RecordNotification records a notification delivery attempt on a channel.
func (m *Metrics) RecordNotification(channel, status string) {
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

// SetNotificationQueueDepth records the current dispatcher backlog.
func (m *Metrics) SetNotificationQueueDepth(depth int) {
	m.notificationQueueDepth.Set(float64(depth))
}

// RecordEmailActivity records a purchase email activity execution.
func (m *Metrics) RecordEmailActivity(status string, duration float64) {
	m.emailWorkflowDuration.WithLabelValues(status).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
