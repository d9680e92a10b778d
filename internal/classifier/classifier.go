package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/enterprise/upi-fraud-engine/internal/features"
)

// ErrInvalidScore is returned when a model produces a non-finite output
var ErrInvalidScore = errors.New("model produced a non-finite score")

// Classifier turns an ordered feature vector into a fraud probability
type Classifier interface {
	Score(v features.Vector) (float64, error)
	FeatureNames() []string
	Version() string
}

// schema carries the trained feature order shared by every model family
type schema struct {
	names   []string
	scaler  *Scaler
	version string
}

func (s schema) FeatureNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

func (s schema) Version() string {
	return s.version
}

// prepare validates the vector against the trained order and applies scaling
func (s schema) prepare(v features.Vector) ([]float64, error) {
	if err := features.CheckOrder(s.names, v.Names); err != nil {
		return nil, err
	}
	if len(v.Values) != len(s.names) {
		return nil, &features.FeatureMismatchError{
			Expected: s.names,
			Got:      v.Names,
			Reason:   fmt.Sprintf("expected %d values, got %d", len(s.names), len(v.Values)),
		}
	}

	x := make([]float64, len(v.Values))
	copy(x, v.Values)
	if s.scaler != nil {
		for i := range x {
			x[i] = (x[i] - s.scaler.Mean[i]) / s.scaler.Scale[i]
		}
	}
	return x, nil
}

// probabilityModel is a model whose raw output is already P(fraud)
type probabilityModel interface {
	probability(x []float64) float64
}

// ProbabilityClassifier scores with a model that outputs P(fraud) directly
type ProbabilityClassifier struct {
	schema
	model probabilityModel
}

// Score returns the fraud probability for the vector
func (c *ProbabilityClassifier) Score(v features.Vector) (float64, error) {
	x, err := c.prepare(v)
	if err != nil {
		return 0, err
	}
	return clampProbability(c.model.probability(x))
}

// AnomalyScorer scores with an unbounded anomaly model. Lower scores are
// more anomalous and are mapped to a probability as 1 / (1 + e^score).
type AnomalyScorer struct {
	schema
	forest *IsolationParams
}

// Score returns the fraud probability for the vector
func (c *AnomalyScorer) Score(v features.Vector) (float64, error) {
	x, err := c.prepare(v)
	if err != nil {
		return 0, err
	}
	return clampProbability(1 / (1 + math.Exp(c.forest.scoreSample(x))))
}

// AnomalyScore returns the raw anomaly score for the vector
func (c *AnomalyScorer) AnomalyScore(v features.Vector) (float64, error) {
	x, err := c.prepare(v)
	if err != nil {
		return 0, err
	}
	return c.forest.scoreSample(x), nil
}

func clampProbability(p float64) (float64, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, ErrInvalidScore
	}
	return math.Max(0, math.Min(1, p)), nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
