package scoring

import (
	"fmt"
	"math"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// Threshold profile names accepted in configuration
const (
	ThresholdProfileCanonical = "canonical"
	ThresholdProfileLegacy    = "legacy"
)

// FraudProbabilityCutoff is the probability at which a transaction is
// reported as fraud and assigned a fraud archetype.
const FraudProbabilityCutoff = 0.5

// ThresholdTable maps a fraud probability to a risk level. Boundaries are
// inclusive lower bounds.
type ThresholdTable struct {
	High   float64 `json:"high"`
	Medium float64 `json:"medium"`
}

// CanonicalThresholds is the default table: HIGH at 0.55, MEDIUM at 0.3
var CanonicalThresholds = ThresholdTable{High: 0.55, Medium: 0.3}

// LegacyThresholds reproduces the earlier 0.8/0.5 table
var LegacyThresholds = ThresholdTable{High: 0.8, Medium: 0.5}

// ThresholdsForProfile resolves a configured profile name
func ThresholdsForProfile(profile string) (ThresholdTable, error) {
	switch profile {
	case "", ThresholdProfileCanonical:
		return CanonicalThresholds, nil
	case ThresholdProfileLegacy:
		return LegacyThresholds, nil
	default:
		return ThresholdTable{}, fmt.Errorf("unknown threshold profile %q", profile)
	}
}

// Validate checks the boundaries are ordered and inside [0,1]
func (t ThresholdTable) Validate() error {
	if math.IsNaN(t.Medium) || math.IsNaN(t.High) || t.Medium < 0 || t.High > 1 || t.Medium >= t.High {
		return fmt.Errorf("invalid threshold table: medium=%.2f high=%.2f", t.Medium, t.High)
	}
	return nil
}

// RiskLevel determines the risk level for a probability
func (t ThresholdTable) RiskLevel(p float64) models.RiskLevel {
	switch {
	case p >= t.High:
		return models.RiskLevelHigh
	case p >= t.Medium:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// DecisionFor maps a risk level to the action taken
func DecisionFor(level models.RiskLevel) models.Decision {
	switch level {
	case models.RiskLevelHigh:
		return models.DecisionBlock
	case models.RiskLevelMedium:
		return models.DecisionWarn
	default:
		return models.DecisionAllow
	}
}
