package scoring

import "fmt"

// Prediction stages reported in PredictionError
const (
	StageNormalize = "normalize"
	StageFeatures  = "features"
	StageInference = "inference"
)

// PredictionError aborts a prediction. It wraps the underlying failure,
// e.g. *features.FeatureMismatchError or models.ErrInvalidTransaction.
type PredictionError struct {
	Stage string
	Err   error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("prediction failed at %s: %v", e.Stage, e.Err)
}

func (e *PredictionError) Unwrap() error {
	return e.Err
}
