package features

import (
	"fmt"
	"strings"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// Vector is an ordered feature vector paired with the names it was built for
type Vector struct {
	Names  []string
	Values []float64
}

// Len returns the number of features in the vector
func (v Vector) Len() int {
	return len(v.Values)
}

// FeatureMismatchError reports a disagreement between the normalized fields
// and the feature schema recorded at training time.
type FeatureMismatchError struct {
	Missing  []string
	Expected []string
	Got      []string
	Reason   string
}

func (e *FeatureMismatchError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("feature mismatch: missing %s", strings.Join(e.Missing, ", "))
	}
	if e.Reason != "" {
		return "feature mismatch: " + e.Reason
	}
	return fmt.Sprintf("feature mismatch: expected %d features, got %d", len(e.Expected), len(e.Got))
}

// CheckOrder verifies that got matches expected exactly, name by name
func CheckOrder(expected, got []string) error {
	if len(expected) != len(got) {
		return &FeatureMismatchError{
			Expected: expected,
			Got:      got,
			Reason:   fmt.Sprintf("expected %d features, got %d", len(expected), len(got)),
		}
	}
	for i := range expected {
		if expected[i] != got[i] {
			return &FeatureMismatchError{
				Expected: expected,
				Got:      got,
				Reason:   fmt.Sprintf("position %d: expected %q, got %q", i, expected[i], got[i]),
			}
		}
	}
	return nil
}

// Feature names produced by the normalizer. device_id is a correlation key
// and never a model feature.
const (
	FeatureAmount                    = "amount"
	FeatureTimeSlot                  = "time_slot"
	FeatureIsNewDevice               = "is_new_device"
	FeatureIsNewBeneficiary          = "is_new_beneficiary"
	FeatureLocationChange            = "location_change"
	FeatureTransactionFrequency      = "transaction_frequency"
	FeaturePastFraudFlag             = "past_fraud_flag"
	FeatureAmountDeviation           = "amount_deviation"
	FeatureBeneficiaryTrustScore     = "beneficiary_trust_score"
	FeatureDeviceAgeDays             = "device_age_days"
	FeatureAccountAgeDays            = "account_age_days"
	FeatureIsSmallVerification       = "is_small_verification"
	FeatureIsFirstTimeUser           = "is_first_time_user"
	FeatureBeneficiaryChangeVelocity = "beneficiary_change_velocity"
	FeatureIsRuralUser               = "is_rural_user"
	FeatureRapidTransactions1h       = "rapid_transactions_1h"
	FeatureUPIPinFailedAttempts      = "upi_pin_failed_attempts"
	FeatureAccountReports            = "account_reports"
	FeatureLocation                  = "location"
	FeaturePayeeBalanceBefore        = "payee_balance_before"
	FeaturePayeeBalanceAfter         = "payee_balance_after"
	FeatureBeneficiaryBalanceBefore  = "beneficiary_balance_before"
	FeatureBeneficiaryBalanceAfter   = "beneficiary_balance_after"

	FeatureNightRisk       = "night_risk"
	FeatureNewDeviceRisk   = "new_device_risk"
	FeatureHighAmountRisk  = "high_amount_risk"
	FeatureSuspiciousCombo = "suspicious_combo"
	FeatureLowTrustRisk    = "low_trust_risk"
	FeatureRapidTransRisk  = "rapid_trans_risk"
	FeaturePinFailureRisk  = "pin_failure_risk"
	FeatureVelocityRisk    = "velocity_risk"
)

// RiskFeatureNames lists the derived features in training order
var RiskFeatureNames = []string{
	FeatureNightRisk,
	FeatureNewDeviceRisk,
	FeatureHighAmountRisk,
	FeatureSuspiciousCombo,
	FeatureLowTrustRisk,
	FeatureRapidTransRisk,
	FeaturePinFailureRisk,
	FeatureVelocityRisk,
}

// Fields returns every normalized field keyed by feature name
func Fields(tx *models.NormalizedTransaction) map[string]float64 {
	return map[string]float64{
		FeatureAmount:                    tx.Amount,
		FeatureTimeSlot:                  float64(tx.TimeSlot),
		FeatureIsNewDevice:               boolFloat(tx.IsNewDevice),
		FeatureIsNewBeneficiary:          boolFloat(tx.IsNewBeneficiary),
		FeatureLocationChange:            boolFloat(tx.LocationChange),
		FeatureTransactionFrequency:      float64(tx.TransactionFrequency),
		FeaturePastFraudFlag:             boolFloat(tx.PastFraudFlag),
		FeatureAmountDeviation:           tx.AmountDeviation,
		FeatureBeneficiaryTrustScore:     tx.BeneficiaryTrustScore,
		FeatureDeviceAgeDays:             float64(tx.DeviceAgeDays),
		FeatureAccountAgeDays:            float64(tx.AccountAgeDays),
		FeatureIsSmallVerification:       boolFloat(tx.IsSmallVerification),
		FeatureIsFirstTimeUser:           boolFloat(tx.IsFirstTimeUser),
		FeatureBeneficiaryChangeVelocity: float64(tx.BeneficiaryChangeVelocity),
		FeatureIsRuralUser:               boolFloat(tx.IsRuralUser),
		FeatureRapidTransactions1h:       float64(tx.RapidTransactions1h),
		FeatureUPIPinFailedAttempts:      float64(tx.UPIPinFailedAttempts),
		FeatureAccountReports:            float64(tx.AccountReports),
		FeatureLocation:                  float64(tx.Location),
		FeaturePayeeBalanceBefore:        tx.PayeeBalanceBefore,
		FeaturePayeeBalanceAfter:         tx.PayeeBalanceAfter,
		FeatureBeneficiaryBalanceBefore:  tx.BeneficiaryBalanceBefore,
		FeatureBeneficiaryBalanceAfter:   tx.BeneficiaryBalanceAfter,

		FeatureNightRisk:       tx.Risk.NightRisk,
		FeatureNewDeviceRisk:   tx.Risk.NewDeviceRisk,
		FeatureHighAmountRisk:  tx.Risk.HighAmountRisk,
		FeatureSuspiciousCombo: tx.Risk.SuspiciousCombo,
		FeatureLowTrustRisk:    tx.Risk.LowTrustRisk,
		FeatureRapidTransRisk:  tx.Risk.RapidTransRisk,
		FeaturePinFailureRisk:  tx.Risk.PinFailureRisk,
		FeatureVelocityRisk:    tx.Risk.VelocityRisk,
	}
}

// BuildVector orders the normalized fields by the trained feature names.
// Every name must be covered, otherwise a FeatureMismatchError is returned.
func BuildVector(tx *models.NormalizedTransaction, names []string) (Vector, error) {
	fields := Fields(tx)

	values := make([]float64, len(names))
	var missing []string
	for i, name := range names {
		v, ok := fields[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		values[i] = v
	}
	if len(missing) > 0 {
		return Vector{}, &FeatureMismatchError{Missing: missing, Expected: names}
	}

	ordered := make([]string, len(names))
	copy(ordered, names)
	return Vector{Names: ordered, Values: values}, nil
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
