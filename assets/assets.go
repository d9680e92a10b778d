// Package assets bundles the reference model artifact.
package assets

import _ "embed"

// DefaultModel is the reference logistic fraud model exported by the
// training pipeline. Deployments normally point MODEL_PATH at a newer artifact.
//
//go:embed fraud_model.json
var DefaultModel []byte
