// Package classifier wraps trained fraud model artifacts behind a single
// probability-scoring contract.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/enterprise/upi-fraud-engine/assets"
)

// Family identifies how a model's raw output maps to a fraud probability
type Family string

// Supported model families
const (
	FamilyClassifier Family = "classifier"
	FamilyAnomaly    Family = "anomaly"
)

// Artifact is the model document exported by the training pipeline
type Artifact struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Family       Family   `json:"family"`
	FeatureNames []string `json:"feature_names"`
	Scaler       *Scaler  `json:"scaler,omitempty"`

	Logistic        *LogisticParams  `json:"logistic,omitempty"`
	Forest          *ForestParams    `json:"forest,omitempty"`
	IsolationForest *IsolationParams `json:"isolation_forest,omitempty"`
}

// Scaler standardizes features as (x - mean) / scale before scoring
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// ModelLoadError is returned when an artifact cannot be read or is malformed
type ModelLoadError struct {
	Source string
	Err    error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("failed to load model from %s: %v", e.Source, e.Err)
}

func (e *ModelLoadError) Unwrap() error {
	return e.Err
}

// Load reads a model artifact from disk and builds its classifier
func Load(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ModelLoadError{Source: path, Err: err}
	}
	return build(path, data)
}

// LoadBytes builds a classifier from an in-memory artifact
func LoadBytes(data []byte) (Classifier, error) {
	return build("bytes", data)
}

// Default returns the reference model bundled with the engine
func Default() (Classifier, error) {
	return build("embedded:fraud_model.json", assets.DefaultModel)
}

func build(source string, data []byte) (Classifier, error) {
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, &ModelLoadError{Source: source, Err: fmt.Errorf("decode artifact: %w", err)}
	}

	c, err := New(&art)
	if err != nil {
		return nil, &ModelLoadError{Source: source, Err: err}
	}
	return c, nil
}

// New builds a classifier from a decoded artifact
func New(art *Artifact) (Classifier, error) {
	if art == nil {
		return nil, errors.New("artifact is nil")
	}
	s, err := newSchema(art)
	if err != nil {
		return nil, err
	}

	switch art.Family {
	case FamilyClassifier:
		switch {
		case art.Logistic != nil:
			if err := art.Logistic.validate(len(art.FeatureNames)); err != nil {
				return nil, err
			}
			return &ProbabilityClassifier{schema: s, model: art.Logistic}, nil
		case art.Forest != nil:
			if err := art.Forest.validate(len(art.FeatureNames)); err != nil {
				return nil, err
			}
			return &ProbabilityClassifier{schema: s, model: art.Forest}, nil
		default:
			return nil, errors.New("classifier artifact has neither logistic nor forest parameters")
		}
	case FamilyAnomaly:
		if art.IsolationForest == nil {
			return nil, errors.New("anomaly artifact has no isolation_forest parameters")
		}
		if err := art.IsolationForest.validate(len(art.FeatureNames)); err != nil {
			return nil, err
		}
		return &AnomalyScorer{schema: s, forest: art.IsolationForest}, nil
	default:
		return nil, fmt.Errorf("unknown model family %q", art.Family)
	}
}

func newSchema(art *Artifact) (schema, error) {
	if len(art.FeatureNames) == 0 {
		return schema{}, errors.New("artifact has no feature names")
	}
	seen := make(map[string]bool, len(art.FeatureNames))
	for _, name := range art.FeatureNames {
		if name == "" {
			return schema{}, errors.New("artifact contains an empty feature name")
		}
		if seen[name] {
			return schema{}, fmt.Errorf("duplicate feature name %q", name)
		}
		seen[name] = true
	}

	if art.Scaler != nil {
		n := len(art.FeatureNames)
		if len(art.Scaler.Mean) != n || len(art.Scaler.Scale) != n {
			return schema{}, fmt.Errorf("scaler expects %d features, has %d means and %d scales",
				n, len(art.Scaler.Mean), len(art.Scaler.Scale))
		}
		for i, s := range art.Scaler.Scale {
			if s == 0 {
				return schema{}, fmt.Errorf("scaler scale for %q is zero", art.FeatureNames[i])
			}
		}
	}

	version := art.Version
	if art.Name != "" {
		version = art.Name + "-" + art.Version
	}

	names := make([]string, len(art.FeatureNames))
	copy(names, art.FeatureNames)
	return schema{names: names, scaler: art.Scaler, version: version}, nil
}
