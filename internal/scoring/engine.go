// Package scoring turns normalized transactions into fraud verdicts.
package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/upi-fraud-engine/internal/audit"
	"github.com/enterprise/upi-fraud-engine/internal/classifier"
	"github.com/enterprise/upi-fraud-engine/internal/features"
	"github.com/enterprise/upi-fraud-engine/internal/history"
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// Recorder receives engine observations, e.g. metrics.Metrics
type Recorder interface {
	ObservePrediction(result *models.PredictionResult, latency time.Duration)
	ObservePredictionError(stage string)
	ObserveDetectorFailure(detector string)
	ObserveAuditFailure()
}

type nopRecorder struct{}

func (nopRecorder) ObservePrediction(*models.PredictionResult, time.Duration) {}
func (nopRecorder) ObservePredictionError(string)                             {}
func (nopRecorder) ObserveDetectorFailure(string)                             {}
func (nopRecorder) ObserveAuditFailure()                                      {}

// Engine produces prediction results. It is safe for concurrent use; the
// history store is the only shared mutable state.
type Engine struct {
	normalizer    *features.Normalizer
	classifier    classifier.Classifier
	history       history.Store
	detectors     []Detector
	vulnerability VulnerabilityScorer
	fraudTypes    *FraudTypeClassifier
	thresholds    ThresholdTable
	audit         audit.Sink
	experiments   *ExperimentManager
	recorder      Recorder
	now           func() time.Time
	modelTimeout  time.Duration
	logger        zerolog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithThresholds sets the risk level table
func WithThresholds(t ThresholdTable) Option {
	return func(e *Engine) { e.thresholds = t }
}

// WithDetectors replaces the default detector set
func WithDetectors(detectors ...Detector) Option {
	return func(e *Engine) { e.detectors = detectors }
}

// WithAuditSink sets the audit sink
func WithAuditSink(sink audit.Sink) Option {
	return func(e *Engine) { e.audit = sink }
}

// WithExperiments enables shadow threshold experiments
func WithExperiments(m *ExperimentManager) Option {
	return func(e *Engine) { e.experiments = m }
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithModelTimeout bounds the time spent in model inference
func WithModelTimeout(d time.Duration) Option {
	return func(e *Engine) { e.modelTimeout = d }
}

// WithLogger sets the logger; the global logger is used otherwise
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a decision engine. The classifier's feature schema must
// be covered by the normalizer's output.
func NewEngine(normalizer *features.Normalizer, clf classifier.Classifier, store history.Store, opts ...Option) (*Engine, error) {
	if normalizer == nil || clf == nil || store == nil {
		return nil, fmt.Errorf("normalizer, classifier and history store are required")
	}

	e := &Engine{
		normalizer: normalizer,
		classifier: clf,
		history:    store,
		detectors:  DefaultDetectors(),
		fraudTypes: NewFraudTypeClassifier(),
		thresholds: CanonicalThresholds,
		audit:      audit.Discard{},
		recorder:   nopRecorder{},
		now:        time.Now,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.thresholds.Validate(); err != nil {
		return nil, err
	}
	if err := checkSchema(clf.FeatureNames()); err != nil {
		return nil, err
	}
	return e, nil
}

// checkSchema rejects model schemas the normalizer cannot produce
func checkSchema(names []string) error {
	fields := features.Fields(&models.NormalizedTransaction{})
	var missing []string
	for _, name := range names {
		if _, ok := fields[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &features.FeatureMismatchError{Missing: missing, Reason: "model requires features the normalizer does not produce"}
	}
	return nil
}

// ModelVersion returns the loaded model version
func (e *Engine) ModelVersion() string {
	return e.classifier.Version()
}

// Thresholds returns the active threshold table
func (e *Engine) Thresholds() ThresholdTable {
	return e.thresholds
}

// Experiments returns the experiment manager, nil when disabled
func (e *Engine) Experiments() *ExperimentManager {
	return e.experiments
}

// History returns the engine's history store
func (e *Engine) History() history.Store {
	return e.history
}

// Predict scores a single transaction record
func (e *Engine) Predict(ctx context.Context, rec *models.TransactionRecord) (*models.PredictionResult, error) {
	return e.predict(ctx, rec, true)
}

// PredictBatch scores records in order. History is updated after each
// record so later records see earlier ones. Per-record failures are
// returned alongside the results; a failed record has a nil result.
func (e *Engine) PredictBatch(ctx context.Context, recs []*models.TransactionRecord) ([]*models.PredictionResult, []error) {
	results := make([]*models.PredictionResult, len(recs))
	errs := make([]error, len(recs))
	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}
		results[i], errs[i] = e.Predict(ctx, rec)
	}
	return results, errs
}

func (e *Engine) predict(ctx context.Context, rec *models.TransactionRecord, sideEffects bool) (*models.PredictionResult, error) {
	start := e.now()

	tx, err := e.normalizer.Normalize(rec)
	if err != nil {
		return nil, e.fail(StageNormalize, err)
	}

	vec, err := features.BuildVector(tx, e.classifier.FeatureNames())
	if err != nil {
		return nil, e.fail(StageFeatures, err)
	}

	probability, err := e.score(ctx, vec)
	if err != nil {
		return nil, e.fail(StageInference, err)
	}

	riskLevel := e.thresholds.RiskLevel(probability)
	recent := e.recentHistory(ctx)

	result := &models.PredictionResult{
		PredictionID:       uuid.New(),
		IsFraud:            probability >= FraudProbabilityCutoff,
		FraudProbability:   probability,
		RiskLevel:          riskLevel,
		Decision:           DecisionFor(riskLevel),
		Explanation:        Explain(tx),
		FraudType:          e.fraudTypes.Classify(tx, probability),
		VulnerabilityScore: e.vulnerability.Score(tx),
		UserType:           UserType(tx),
		PatternAlerts:      e.runDetectors(tx, recent),
		BalanceChanges:     BalanceChanges(tx),
		ModelVersion:       e.classifier.Version(),
		ScoredAt:           start,
	}

	if sideEffects {
		e.appendHistory(ctx, tx, start)
		e.writeAudit(ctx, tx, result)
		if e.experiments != nil {
			e.experiments.Observe(e.thresholds, tx.DeviceID, probability)
		}
	}

	latency := e.now().Sub(start)
	e.recorder.ObservePrediction(result, latency)

	e.logger.Info().
		Str("prediction_id", result.PredictionID.String()).
		Str("device_id", tx.DeviceID).
		Float64("fraud_probability", probability).
		Str("risk_level", string(result.RiskLevel)).
		Str("decision", string(result.Decision)).
		Str("fraud_type", string(result.FraudType)).
		Int("vulnerability_score", result.VulnerabilityScore).
		Int("alerts", len(result.PatternAlerts)).
		Dur("latency", latency).
		Msg("Transaction scored")

	return result, nil
}

func (e *Engine) fail(stage string, err error) error {
	e.recorder.ObservePredictionError(stage)
	return &PredictionError{Stage: stage, Err: err}
}

// score runs inference, bounded by the model timeout
func (e *Engine) score(ctx context.Context, vec features.Vector) (float64, error) {
	if e.modelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.modelTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p, err := e.classifier.Score(vec)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("model inference exceeded deadline: %w", err)
	}
	return p, nil
}

func (e *Engine) recentHistory(ctx context.Context) []models.HistoryEntry {
	recent, err := e.history.Recent(ctx, HistoryWindow)
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to read transaction history")
		return nil
	}
	return recent
}

func (e *Engine) runDetectors(tx *models.NormalizedTransaction, recent []models.HistoryEntry) []models.PatternAlert {
	alerts := make([]models.PatternAlert, 0, len(e.detectors))
	for _, d := range e.detectors {
		detection, err := e.runDetector(d, tx, recent)
		if err != nil {
			e.recorder.ObserveDetectorFailure(d.Name())
			e.logger.Warn().Err(err).Str("detector", d.Name()).Msg("Detector failed, skipping")
			continue
		}
		if !detection.Detected {
			continue
		}
		alerts = append(alerts, models.PatternAlert{
			Pattern:  d.Name(),
			Severity: d.Severity(detection.Score),
			Score:    detection.Score,
			Details:  detection.Details,
		})
	}
	return alerts
}

func (e *Engine) runDetector(d Detector, tx *models.NormalizedTransaction, recent []models.HistoryEntry) (detection Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector panicked: %v", r)
		}
	}()
	return d.Detect(tx, recent)
}

func (e *Engine) appendHistory(ctx context.Context, tx *models.NormalizedTransaction, ts time.Time) {
	entry := models.HistoryEntry{
		Amount:      tx.Amount,
		DeviceID:    tx.DeviceID,
		Timestamp:   ts,
		IsNewDevice: tx.IsNewDevice,
	}
	if err := e.history.Append(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("device_id", tx.DeviceID).Msg("Failed to append transaction history")
	}
}

func (e *Engine) writeAudit(ctx context.Context, tx *models.NormalizedTransaction, result *models.PredictionResult) {
	if err := e.audit.Write(ctx, audit.NewRecord(tx, result)); err != nil {
		e.recorder.ObserveAuditFailure()
		e.logger.Warn().Err(err).Str("prediction_id", result.PredictionID.String()).Msg("Failed to write audit record")
	}
}
