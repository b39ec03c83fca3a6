package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordVerification(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordVerification("", true, 0.2)
	m.RecordVerification("no_transfer", false, 0.1)
	m.RecordVerification("no_transfer", false, 0.1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.verificationsTotal.WithLabelValues("valid")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.verificationsTotal.WithLabelValues("no_transfer")))
}

func TestRecordPurchase(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordPurchase("success", 1.5)
	m.RecordPurchase("duplicate_submission", 0.3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.purchasesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.purchasesTotal.WithLabelValues("duplicate_submission")))
}

func TestNotificationQueueDepth(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetNotificationQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.notificationQueueDepth))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m, "/verify-payment")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusInternalServerError) // ignored, first status wins
	}))

	req := httptest.NewRequest(http.MethodPost, "/verify-payment", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/verify-payment", "POST", "4xx")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/verify-payment", "POST", "5xx")))
}

func TestHTTPMetricsMiddleware_NilMetrics(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
}

func TestStatusCodeToString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToString(200))
	assert.Equal(t, "3xx", statusCodeToString(302))
	assert.Equal(t, "4xx", statusCodeToString(409))
	assert.Equal(t, "5xx", statusCodeToString(503))
	assert.Equal(t, "unknown", statusCodeToString(99))
}
