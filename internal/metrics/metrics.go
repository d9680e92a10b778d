// Package metrics provides Prometheus instrumentation for the fraud engine.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

const namespace = "upi_fraud"

var (
	// PredictionsTotal counts scored transactions by decision and risk level.
	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Total scored transactions by decision and risk level.",
		},
		[]string{"decision", "risk_level"},
	)

	// FraudTypesTotal counts verdicts by fraud archetype.
	FraudTypesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fraud_types_total",
			Help:      "Total verdicts by assigned fraud type.",
		},
		[]string{"fraud_type"},
	)

	// PatternAlertsTotal counts raised pattern alerts.
	PatternAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_alerts_total",
			Help:      "Total pattern alerts by pattern and severity.",
		},
		[]string{"pattern", "severity"},
	)

	// PredictionErrorsTotal counts failed predictions by pipeline stage.
	PredictionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Total failed predictions by stage.",
		},
		[]string{"stage"},
	)

	// DetectorFailuresTotal counts detectors that errored or panicked.
	DetectorFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_failures_total",
			Help:      "Total detector failures by detector.",
		},
		[]string{"detector"},
	)

	// AuditFailuresTotal counts audit records that could not be written.
	AuditFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_failures_total",
		Help:      "Total audit write failures.",
	})

	// PredictionDuration observes end-to-end scoring latency.
	PredictionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "prediction_duration_seconds",
		Help:      "Transaction scoring latency in seconds.",
		Buckets:   []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	})

	// FraudProbability observes the distribution of model outputs.
	FraudProbability = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fraud_probability",
		Help:      "Distribution of fraud probabilities.",
		Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// StreamMessagesTotal counts stream worker outcomes.
	StreamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Total scoring requests consumed from the stream by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		PredictionsTotal,
		FraudTypesTotal,
		PatternAlertsTotal,
		PredictionErrorsTotal,
		DetectorFailuresTotal,
		AuditFailuresTotal,
		PredictionDuration,
		FraudProbability,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		StreamMessagesTotal,
	)
}

// Recorder feeds engine observations into the package collectors
type Recorder struct{}

// NewRecorder returns a Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// ObservePrediction records a successful prediction
func (*Recorder) ObservePrediction(result *models.PredictionResult, latency time.Duration) {
	PredictionsTotal.WithLabelValues(string(result.Decision), string(result.RiskLevel)).Inc()
	FraudTypesTotal.WithLabelValues(string(result.FraudType)).Inc()
	FraudProbability.Observe(result.FraudProbability)
	PredictionDuration.Observe(latency.Seconds())
	for _, alert := range result.PatternAlerts {
		PatternAlertsTotal.WithLabelValues(alert.Pattern, string(alert.Severity)).Inc()
	}
}

// ObservePredictionError records a failed prediction
func (*Recorder) ObservePredictionError(stage string) {
	PredictionErrorsTotal.WithLabelValues(stage).Inc()
}

// ObserveDetectorFailure records a skipped detector
func (*Recorder) ObserveDetectorFailure(detector string) {
	DetectorFailuresTotal.WithLabelValues(detector).Inc()
}

// ObserveAuditFailure records a swallowed audit error
func (*Recorder) ObserveAuditFailure() {
	AuditFailuresTotal.Inc()
}

// ObserveStreamMessage records the outcome of a consumed stream message
func ObserveStreamMessage(result string) {
	StreamMessagesTotal.WithLabelValues(result).Inc()
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, path))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
