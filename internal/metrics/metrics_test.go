package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusBucket(tt.code), "code %d", tt.code)
	}
}

func TestRecorderObservePrediction(t *testing.T) {
	r := NewRecorder()
	result := &models.PredictionResult{
		FraudProbability: 0.94,
		RiskLevel:        models.RiskLevelHigh,
		Decision:         models.DecisionBlock,
		FraudType:        models.FraudTypeHighAmount,
		PatternAlerts: []models.PatternAlert{
			{Pattern: models.PatternRapidSwitching, Severity: models.SeverityMedium, Score: 60},
		},
	}

	blocked := PredictionsTotal.WithLabelValues("BLOCK", "HIGH")
	highAmount := FraudTypesTotal.WithLabelValues("high_amount")
	rapid := PatternAlertsTotal.WithLabelValues(models.PatternRapidSwitching, "MEDIUM")
	beforeBlocked := testutil.ToFloat64(blocked)
	beforeType := testutil.ToFloat64(highAmount)
	beforeRapid := testutil.ToFloat64(rapid)

	r.ObservePrediction(result, 2*time.Millisecond)

	assert.Equal(t, beforeBlocked+1, testutil.ToFloat64(blocked))
	assert.Equal(t, beforeType+1, testutil.ToFloat64(highAmount))
	assert.Equal(t, beforeRapid+1, testutil.ToFloat64(rapid))
}

func TestRecorderFailures(t *testing.T) {
	r := NewRecorder()

	stage := PredictionErrorsTotal.WithLabelValues("inference")
	detector := DetectorFailuresTotal.WithLabelValues("broken")
	beforeStage := testutil.ToFloat64(stage)
	beforeDetector := testutil.ToFloat64(detector)
	beforeAudit := testutil.ToFloat64(AuditFailuresTotal)

	r.ObservePredictionError("inference")
	r.ObserveDetectorFailure("broken")
	r.ObserveAuditFailure()

	assert.Equal(t, beforeStage+1, testutil.ToFloat64(stage))
	assert.Equal(t, beforeDetector+1, testutil.ToFloat64(detector))
	assert.Equal(t, beforeAudit+1, testutil.ToFloat64(AuditFailuresTotal))
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/metrics", Handler())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	ObserveStreamMessage("scored")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "upi_fraud_stream_messages_total")
	assert.Contains(t, body, `upi_fraud_http_requests_total{method="GET",path="/ping",status="2xx"}`)
	assert.Contains(t, body, "upi_fraud_audit_failures_total")
}
