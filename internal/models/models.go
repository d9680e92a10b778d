package models

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Flag is a boolean transaction attribute. The training pipeline encodes
// flags as 0/1, so both numeric and boolean JSON forms are accepted.
type Flag bool

// UnmarshalJSON accepts 0, 1, true, false and null
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "1", `"1"`, `"true"`:
		*f = true
		return nil
	case "false", "0", `"0"`, `"false"`, "null":
		*f = false
		return nil
	}

	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("invalid flag value %s", data)
	}
	*f = v != 0
	return nil
}

// MarshalJSON encodes the flag in the 0/1 form used by the model artifact
func (f Flag) MarshalJSON() ([]byte, error) {
	if f {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}

// Float returns 1 for a set flag and 0 otherwise
func (f Flag) Float() float64 {
	if f {
		return 1
	}
	return 0
}

// FlagPtr is a helper for building records with optional flags
func FlagPtr(v bool) *Flag {
	f := Flag(v)
	return &f
}

// IntPtr is a helper for building records with optional counters
func IntPtr(v int) *int { return &v }

// FloatPtr is a helper for building records with optional amounts
func FloatPtr(v float64) *float64 { return &v }

// StringPtr is a helper for building records with optional identifiers
func StringPtr(v string) *string { return &v }

// Time slot ordinals
const (
	TimeSlotMorning   = 0
	TimeSlotAfternoon = 1
	TimeSlotEvening   = 2
	TimeSlotNight     = 3
	TimeSlotLateNight = 4
)

var timeSlotNames = map[int]string{
	TimeSlotMorning:   "Morning",
	TimeSlotAfternoon: "Afternoon",
	TimeSlotEvening:   "Evening",
	TimeSlotNight:     "Night",
	TimeSlotLateNight: "Late Night",
}

// TimeSlotName returns the display name for a time slot ordinal
func TimeSlotName(slot int) string {
	if name, ok := timeSlotNames[slot]; ok {
		return name
	}
	return fmt.Sprintf("Slot %d", slot)
}

// TransactionRecord is the raw transaction submitted for scoring.
// Extended fields are optional; nil means "not supplied" and the
// normalizer substitutes the configured default.
type TransactionRecord struct {
	Amount                float64 `json:"amount" validate:"gt=0"`
	TimeSlot              int     `json:"time_slot" validate:"gte=0,lte=4"`
	IsNewDevice           Flag    `json:"is_new_device"`
	IsNewBeneficiary      Flag    `json:"is_new_beneficiary"`
	LocationChange        Flag    `json:"location_change"`
	TransactionFrequency  int     `json:"transaction_frequency" validate:"gte=0"`
	PastFraudFlag         Flag    `json:"past_fraud_flag"`
	AmountDeviation       float64 `json:"amount_deviation" validate:"gte=0"`
	BeneficiaryTrustScore float64 `json:"beneficiary_trust_score" validate:"gte=0,lte=1"`
	DeviceAgeDays         int     `json:"device_age_days" validate:"gte=0"`
	AccountAgeDays        int     `json:"account_age_days" validate:"gte=0"`

	// Extended fields
	IsSmallVerification       *Flag    `json:"is_small_verification,omitempty"`
	IsFirstTimeUser           *Flag    `json:"is_first_time_user,omitempty"`
	BeneficiaryChangeVelocity *int     `json:"beneficiary_change_velocity,omitempty" validate:"omitempty,gte=0"`
	IsRuralUser               *Flag    `json:"is_rural_user,omitempty"`
	RapidTransactions1h       *int     `json:"rapid_transactions_1h,omitempty" validate:"omitempty,gte=0"`
	UPIPinFailedAttempts      *int     `json:"upi_pin_failed_attempts,omitempty" validate:"omitempty,gte=0"`
	AccountReports            *int     `json:"account_reports,omitempty" validate:"omitempty,gte=0"`
	Location                  *int     `json:"location,omitempty" validate:"omitempty,gte=0"`
	DeviceID                  *string  `json:"device_id,omitempty" validate:"omitempty,max=128"`
	PayeeBalanceBefore        *float64 `json:"payee_balance_before,omitempty"`
	PayeeBalanceAfter         *float64 `json:"payee_balance_after,omitempty"`
	BeneficiaryBalanceBefore  *float64 `json:"beneficiary_balance_before,omitempty"`
	BeneficiaryBalanceAfter   *float64 `json:"beneficiary_balance_after,omitempty"`
}

// NormalizedTransaction is a transaction with every optional field resolved
// and the derived risk features computed.
type NormalizedTransaction struct {
	Amount                float64 `json:"amount"`
	TimeSlot              int     `json:"time_slot"`
	IsNewDevice           bool    `json:"is_new_device"`
	IsNewBeneficiary      bool    `json:"is_new_beneficiary"`
	LocationChange        bool    `json:"location_change"`
	TransactionFrequency  int     `json:"transaction_frequency"`
	PastFraudFlag         bool    `json:"past_fraud_flag"`
	AmountDeviation       float64 `json:"amount_deviation"`
	BeneficiaryTrustScore float64 `json:"beneficiary_trust_score"`
	DeviceAgeDays         int     `json:"device_age_days"`
	AccountAgeDays        int     `json:"account_age_days"`

	IsSmallVerification       bool    `json:"is_small_verification"`
	IsFirstTimeUser           bool    `json:"is_first_time_user"`
	BeneficiaryChangeVelocity int     `json:"beneficiary_change_velocity"`
	IsRuralUser               bool    `json:"is_rural_user"`
	RapidTransactions1h       int     `json:"rapid_transactions_1h"`
	UPIPinFailedAttempts      int     `json:"upi_pin_failed_attempts"`
	AccountReports            int     `json:"account_reports"`
	Location                  int     `json:"location"`
	DeviceID                  string  `json:"device_id"`
	DeviceDefaulted           bool    `json:"device_defaulted,omitempty"`
	PayeeBalanceBefore        float64 `json:"payee_balance_before"`
	PayeeBalanceAfter         float64 `json:"payee_balance_after"`
	BeneficiaryBalanceBefore  float64 `json:"beneficiary_balance_before"`
	BeneficiaryBalanceAfter   float64 `json:"beneficiary_balance_after"`

	Risk RiskFeatures `json:"risk_features"`
}

// RiskFeatures are the eight derived features the model was trained on
type RiskFeatures struct {
	NightRisk       float64 `json:"night_risk"`
	NewDeviceRisk   float64 `json:"new_device_risk"`
	HighAmountRisk  float64 `json:"high_amount_risk"`
	SuspiciousCombo float64 `json:"suspicious_combo"`
	LowTrustRisk    float64 `json:"low_trust_risk"`
	RapidTransRisk  float64 `json:"rapid_trans_risk"`
	PinFailureRisk  float64 `json:"pin_failure_risk"`
	VelocityRisk    float64 `json:"velocity_risk"`
}

// HistoryEntry is the reduced projection of a scored transaction kept in
// the history window for cross-transaction correlation.
type HistoryEntry struct {
	Amount      float64   `json:"amount"`
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	IsNewDevice bool      `json:"is_new_device"`
}

// RiskLevel is the coarse risk bucket derived from fraud probability
type RiskLevel string

// RiskLevel enum values
const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Decision is the action taken on a transaction
type Decision string

// Decision enum values
const (
	DecisionAllow Decision = "ALLOW"
	DecisionWarn  Decision = "WARN"
	DecisionBlock Decision = "BLOCK"
)

// FraudType is the fraud archetype assigned to likely-fraudulent transactions
type FraudType string

// FraudType enum values, in tie-break order
const (
	FraudTypeLegitimate  FraudType = "legitimate"
	FraudTypeHighAmount  FraudType = "high_amount"
	FraudTypeNewDevice   FraudType = "new_device"
	FraudTypeNightRush   FraudType = "night_rush"
	FraudTypeMultipleNew FraudType = "multiple_new"
)

// Severity classifies a pattern alert
type Severity string

// Severity enum values
const (
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Pattern names reported in alerts
const (
	PatternVerificationAttack  = "verification_attack"
	PatternRapidSwitching      = "rapid_switching"
	PatternVulnerableUserNight = "vulnerable_user_night"
)

// User types reported alongside the vulnerability score
const (
	UserTypeVulnerable = "vulnerable"
	UserTypeStandard   = "standard"
)

// PatternAlert is a suspicious behavioural pattern reported by a detector
type PatternAlert struct {
	Pattern  string   `json:"pattern"`
	Severity Severity `json:"severity"`
	Score    int      `json:"score"`
	Details  string   `json:"details"`
}

// BalanceChanges holds the balance movements implied by the transaction
type BalanceChanges struct {
	PayeeDelta          float64 `json:"payee_delta"`
	BeneficiaryDelta    float64 `json:"beneficiary_delta"`
	PayeeDeltaPct       float64 `json:"payee_delta_pct"`
	BeneficiaryDeltaPct float64 `json:"beneficiary_delta_pct"`
}

// PredictionResult is the verdict returned for a scored transaction
type PredictionResult struct {
	PredictionID       uuid.UUID      `json:"prediction_id"`
	IsFraud            bool           `json:"is_fraud"`
	FraudProbability   float64        `json:"fraud_probability"`
	RiskLevel          RiskLevel      `json:"risk_level"`
	Decision           Decision       `json:"decision"`
	Explanation        string         `json:"explanation"`
	FraudType          FraudType      `json:"fraud_type"`
	VulnerabilityScore int            `json:"vulnerability_score"`
	UserType           string         `json:"user_type"`
	PatternAlerts      []PatternAlert `json:"pattern_alerts"`
	BalanceChanges     BalanceChanges `json:"balance_changes"`
	ModelVersion       string         `json:"model_version"`
	ScoredAt           time.Time      `json:"scored_at"`
}

// AuditRecord is the line written to the audit log for every prediction
type AuditRecord struct {
	ID        uuid.UUID   `json:"prediction_id"`
	Timestamp time.Time   `json:"timestamp"`
	Input     AuditInput  `json:"input"`
	Output    AuditOutput `json:"output"`
}

// AuditInput is the restricted subset of input fields kept in the audit log
type AuditInput struct {
	Amount           float64 `json:"amount"`
	TimeSlot         int     `json:"time_slot"`
	IsNewDevice      bool    `json:"is_new_device"`
	IsNewBeneficiary bool    `json:"is_new_beneficiary"`
	LocationChange   bool    `json:"location_change"`
	DeviceID         string  `json:"device_id"`
}

// AuditOutput holds the key outputs of a prediction
type AuditOutput struct {
	FraudProbability float64   `json:"fraud_probability"`
	RiskLevel        RiskLevel `json:"risk_level"`
	Decision         Decision  `json:"decision"`
	FraudType        FraudType `json:"fraud_type"`
}

// HourlyVolume is the prediction volume for one hour of the day
type HourlyVolume struct {
	Hour        int     `json:"hour"`
	Count       int     `json:"count"`
	Blocked     int     `json:"blocked"`
	TotalAmount float64 `json:"total_amount"`
}

// ScoringRequest is the event consumed from the scoring stream
type ScoringRequest struct {
	RequestID   string            `json:"request_id"`
	Transaction TransactionRecord `json:"transaction"`
	Timestamp   time.Time         `json:"timestamp"`
}

// ScoringResponse is the event published to the results stream
type ScoringResponse struct {
	RequestID string            `json:"request_id"`
	Result    *PredictionResult `json:"result"`
	Timestamp time.Time         `json:"timestamp"`
}
