package scoring

import (
	"fmt"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// HistoryWindow is the number of recent history entries passed to detectors
const HistoryWindow = 20

// Detection is the outcome of a single detector run
type Detection struct {
	Detected bool
	Score    int
	Details  string
}

// Detector is an independent pattern policy. History is most-recent-first
// and excludes the transaction being scored.
type Detector interface {
	Name() string
	Detect(tx *models.NormalizedTransaction, history []models.HistoryEntry) (Detection, error)
	Severity(score int) models.Severity
}

// DefaultDetectors returns the three detectors in alert order
func DefaultDetectors() []Detector {
	return []Detector{
		VerificationAttackDetector{},
		RapidSwitchingDetector{},
		VulnerableUserNightDetector{},
	}
}

// VerificationAttackDetector flags a small test transfer followed by a
// large drain from the same device. Transactions without a device id are
// never correlated with history.
type VerificationAttackDetector struct{}

const (
	verificationProbeMax   = 10.0
	verificationDrainMin   = 20000.0
	verificationScore      = 95
	verificationNewDevice  = 100
	verificationPrecursor  = 60
	criticalSeverityCutoff = 90
)

func (VerificationAttackDetector) Name() string { return models.PatternVerificationAttack }

func (VerificationAttackDetector) Detect(tx *models.NormalizedTransaction, history []models.HistoryEntry) (Detection, error) {
	if len(history) > HistoryWindow {
		history = history[:HistoryWindow]
	}

	var probe *models.HistoryEntry
	if tx.DeviceDefaulted {
		history = nil
	}
	for i := range history {
		if history[i].DeviceID == tx.DeviceID && history[i].Amount <= verificationProbeMax {
			probe = &history[i]
			break
		}
	}

	switch {
	case probe != nil && tx.Amount > verificationDrainMin:
		score := verificationScore
		if tx.IsNewDevice {
			score = verificationNewDevice
		}
		return Detection{
			Detected: true,
			Score:    score,
			Details: fmt.Sprintf("Test transaction of %s on device %s followed by %s",
				formatRupees(probe.Amount), tx.DeviceID, formatRupees(tx.Amount)),
		}, nil
	case tx.Amount <= verificationProbeMax && tx.IsNewDevice:
		return Detection{
			Detected: true,
			Score:    verificationPrecursor,
			Details:  fmt.Sprintf("Small test transaction of %s from a new device", formatRupees(tx.Amount)),
		}, nil
	}
	return Detection{}, nil
}

func (VerificationAttackDetector) Severity(score int) models.Severity {
	if score >= criticalSeverityCutoff {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

// RapidSwitchingDetector flags rapid changes of beneficiary towards
// untrusted recipients.
type RapidSwitchingDetector struct{}

const rapidSwitchingThreshold = 50

func (RapidSwitchingDetector) Name() string { return models.PatternRapidSwitching }

func (RapidSwitchingDetector) Detect(tx *models.NormalizedTransaction, _ []models.HistoryEntry) (Detection, error) {
	score := 0
	switch {
	case tx.BeneficiaryChangeVelocity > 5:
		score += 40
	case tx.BeneficiaryChangeVelocity > 3:
		score += 20
	}
	if tx.IsNewBeneficiary {
		score += 25
	}
	switch {
	case tx.BeneficiaryTrustScore < 0.3:
		score += 35
	case tx.BeneficiaryTrustScore < 0.5:
		score += 20
	}

	if score < rapidSwitchingThreshold {
		return Detection{Score: score}, nil
	}
	return Detection{
		Detected: true,
		Score:    score,
		Details: fmt.Sprintf("%d beneficiary changes, trust score %.2f",
			tx.BeneficiaryChangeVelocity, tx.BeneficiaryTrustScore),
	}, nil
}

func (RapidSwitchingDetector) Severity(score int) models.Severity {
	if score >= 70 {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// VulnerableUserNightDetector flags large night-time transfers by
// vulnerable users. Detection requires all three conditions; the weighted
// score only drives severity.
type VulnerableUserNightDetector struct{}

const nightLargeAmount = 10000.0

func (VulnerableUserNightDetector) Name() string { return models.PatternVulnerableUserNight }

func (VulnerableUserNightDetector) Detect(tx *models.NormalizedTransaction, _ []models.HistoryEntry) (Detection, error) {
	vulnerable := isVulnerableUser(tx)
	night := tx.TimeSlot >= models.TimeSlotNight
	large := tx.Amount > nightLargeAmount
	if !vulnerable || !night || !large {
		return Detection{}, nil
	}

	var vulnerability, nightPart, amountPart int
	if tx.IsRuralUser {
		vulnerability += 30
	}
	if tx.IsFirstTimeUser {
		vulnerability += 25
	}
	if tx.AccountAgeDays < 90 {
		vulnerability += 20
	}
	vulnerability = min(vulnerability, 40)

	nightPart = 20
	if tx.TimeSlot >= models.TimeSlotLateNight {
		nightPart += 10
	}

	amountPart = 20
	if tx.Amount > 30000 {
		amountPart += 10
	}
	if tx.Amount > 50000 {
		amountPart += 10
	}
	amountPart = min(amountPart, 30)

	return Detection{
		Detected: true,
		Score:    min(vulnerability+nightPart+amountPart, 100),
		Details: fmt.Sprintf("Vulnerable user transferring %s at %s",
			formatRupees(tx.Amount), models.TimeSlotName(tx.TimeSlot)),
	}, nil
}

func (VulnerableUserNightDetector) Severity(score int) models.Severity {
	if score >= criticalSeverityCutoff {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

// isVulnerableUser reports whether the user profile is considered vulnerable
func isVulnerableUser(tx *models.NormalizedTransaction) bool {
	return tx.IsRuralUser || tx.IsFirstTimeUser || tx.AccountAgeDays < 90
}

// UserType classifies the user as vulnerable or standard
func UserType(tx *models.NormalizedTransaction) string {
	if isVulnerableUser(tx) {
		return models.UserTypeVulnerable
	}
	return models.UserTypeStandard
}
