// Package features turns raw transaction records into the ordered feature
// vectors consumed by the fraud model.
package features

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// Defaults lists every optional transaction field and the value substituted
// when a record omits it.
type Defaults struct {
	IsSmallVerification       bool
	IsFirstTimeUser           bool
	BeneficiaryChangeVelocity int
	IsRuralUser               bool
	RapidTransactions1h       int
	UPIPinFailedAttempts      int
	AccountReports            int
	Location                  int
	DeviceID                  string
	PayeeBalanceBefore        float64
	BeneficiaryBalanceBefore  float64
}

// DefaultDefaults returns the documented default set
func DefaultDefaults() Defaults {
	return Defaults{
		BeneficiaryChangeVelocity: 1,
		Location:                  0,
		DeviceID:                  "UNKNOWN_DEVICE",
		PayeeBalanceBefore:        10000.0,
		BeneficiaryBalanceBefore:  0,
	}
}

// Validate checks the defaults once so per-call normalization cannot fail on them
func (d Defaults) Validate() error {
	switch {
	case d.BeneficiaryChangeVelocity < 0:
		return fmt.Errorf("beneficiary_change_velocity default must be non-negative, got %d", d.BeneficiaryChangeVelocity)
	case d.RapidTransactions1h < 0:
		return fmt.Errorf("rapid_transactions_1h default must be non-negative, got %d", d.RapidTransactions1h)
	case d.UPIPinFailedAttempts < 0:
		return fmt.Errorf("upi_pin_failed_attempts default must be non-negative, got %d", d.UPIPinFailedAttempts)
	case d.AccountReports < 0:
		return fmt.Errorf("account_reports default must be non-negative, got %d", d.AccountReports)
	case d.Location < 0:
		return fmt.Errorf("location default must be non-negative, got %d", d.Location)
	case d.DeviceID == "":
		return fmt.Errorf("device_id default must not be empty")
	case d.PayeeBalanceBefore < 0 || math.IsNaN(d.PayeeBalanceBefore):
		return fmt.Errorf("payee_balance_before default must be non-negative")
	case d.BeneficiaryBalanceBefore < 0 || math.IsNaN(d.BeneficiaryBalanceBefore):
		return fmt.Errorf("beneficiary_balance_before default must be non-negative")
	}
	return nil
}

// Normalizer merges defaults into raw records and derives risk features.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	defaults Defaults
}

// NewNormalizer creates a normalizer after validating the defaults
func NewNormalizer(defaults Defaults) (*Normalizer, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature defaults: %w", err)
	}
	return &Normalizer{defaults: defaults}, nil
}

// Defaults returns the configured default set
func (n *Normalizer) Defaults() Defaults {
	return n.defaults
}

// Normalize validates the record, fills optional fields and computes the
// derived risk features.
func (n *Normalizer) Normalize(rec *models.TransactionRecord) (*models.NormalizedTransaction, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	d := n.defaults
	tx := &models.NormalizedTransaction{
		Amount:                rec.Amount,
		TimeSlot:              rec.TimeSlot,
		IsNewDevice:           bool(rec.IsNewDevice),
		IsNewBeneficiary:      bool(rec.IsNewBeneficiary),
		LocationChange:        bool(rec.LocationChange),
		TransactionFrequency:  rec.TransactionFrequency,
		PastFraudFlag:         bool(rec.PastFraudFlag),
		AmountDeviation:       rec.AmountDeviation,
		BeneficiaryTrustScore: rec.BeneficiaryTrustScore,
		DeviceAgeDays:         rec.DeviceAgeDays,
		AccountAgeDays:        rec.AccountAgeDays,

		IsSmallVerification:       flagOr(rec.IsSmallVerification, d.IsSmallVerification),
		IsFirstTimeUser:           flagOr(rec.IsFirstTimeUser, d.IsFirstTimeUser),
		BeneficiaryChangeVelocity: intOr(rec.BeneficiaryChangeVelocity, d.BeneficiaryChangeVelocity),
		IsRuralUser:               flagOr(rec.IsRuralUser, d.IsRuralUser),
		RapidTransactions1h:       intOr(rec.RapidTransactions1h, d.RapidTransactions1h),
		UPIPinFailedAttempts:      intOr(rec.UPIPinFailedAttempts, d.UPIPinFailedAttempts),
		AccountReports:            intOr(rec.AccountReports, d.AccountReports),
		Location:                  intOr(rec.Location, d.Location),
		DeviceID:                  d.DeviceID,
		PayeeBalanceBefore:        floatOr(rec.PayeeBalanceBefore, d.PayeeBalanceBefore),
		BeneficiaryBalanceBefore:  floatOr(rec.BeneficiaryBalanceBefore, d.BeneficiaryBalanceBefore),
	}
	if rec.DeviceID != nil && *rec.DeviceID != "" {
		tx.DeviceID = *rec.DeviceID
	} else {
		tx.DeviceDefaulted = true
	}

	amount := decimal.NewFromFloat(tx.Amount)

	// Unset or zero "after" balances are implied by the transfer itself
	tx.PayeeBalanceAfter = floatOr(rec.PayeeBalanceAfter, 0)
	if tx.PayeeBalanceAfter == 0 {
		tx.PayeeBalanceAfter = decimal.NewFromFloat(tx.PayeeBalanceBefore).Sub(amount).Round(2).InexactFloat64()
	}
	tx.BeneficiaryBalanceAfter = floatOr(rec.BeneficiaryBalanceAfter, 0)
	if tx.BeneficiaryBalanceAfter == 0 {
		tx.BeneficiaryBalanceAfter = decimal.NewFromFloat(tx.BeneficiaryBalanceBefore).Add(amount).Round(2).InexactFloat64()
	}

	tx.Risk = DeriveRiskFeatures(tx)
	return tx, nil
}

// DeriveRiskFeatures computes the eight derived features from a normalized
// transaction. It is a pure function of its input.
func DeriveRiskFeatures(tx *models.NormalizedTransaction) models.RiskFeatures {
	night := tx.TimeSlot >= models.TimeSlotEvening

	var rf models.RiskFeatures
	if night {
		rf.NightRisk = 4
	}
	if tx.IsNewDevice {
		rf.NewDeviceRisk = 5
	}
	if tx.Amount > 20000 {
		rf.HighAmountRisk = 3
	}
	if night && tx.IsNewDevice && tx.Amount > 15000 {
		rf.SuspiciousCombo = 8
	}
	if tx.BeneficiaryTrustScore < 0.3 {
		rf.LowTrustRisk = 3
	}
	if tx.RapidTransactions1h > 10 {
		rf.RapidTransRisk = 3
	}
	if tx.UPIPinFailedAttempts > 0 {
		rf.PinFailureRisk = 3
	}
	if tx.BeneficiaryChangeVelocity > 5 {
		rf.VelocityRisk = 2
	}
	return rf
}

func flagOr(v *models.Flag, def bool) bool {
	if v == nil {
		return def
	}
	return bool(*v)
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
