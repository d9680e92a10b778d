package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

func scenarioOneTx() *models.NormalizedTransaction {
	tx := baseTx()
	tx.Amount = 45000
	tx.TimeSlot = models.TimeSlotNight
	tx.IsNewDevice = true
	tx.IsNewBeneficiary = true
	tx.LocationChange = true
	tx.TransactionFrequency = 15
	tx.AmountDeviation = 1.2
	tx.BeneficiaryTrustScore = 0.1
	tx.DeviceAgeDays = 0
	tx.AccountAgeDays = 200
	return tx
}

func TestThresholdTable(t *testing.T) {
	tests := []struct {
		p        float64
		level    models.RiskLevel
		decision models.Decision
	}{
		{0.9, models.RiskLevelHigh, models.DecisionBlock},
		{0.55, models.RiskLevelHigh, models.DecisionBlock},
		{0.4, models.RiskLevelMedium, models.DecisionWarn},
		{0.3, models.RiskLevelMedium, models.DecisionWarn},
		{0.1, models.RiskLevelLow, models.DecisionAllow},
		{0, models.RiskLevelLow, models.DecisionAllow},
	}
	for _, tt := range tests {
		level := CanonicalThresholds.RiskLevel(tt.p)
		assert.Equal(t, tt.level, level, "p=%v", tt.p)
		assert.Equal(t, tt.decision, DecisionFor(level), "p=%v", tt.p)
	}
}

func TestThresholdTable_Monotonic(t *testing.T) {
	rank := map[models.RiskLevel]int{models.RiskLevelLow: 0, models.RiskLevelMedium: 1, models.RiskLevelHigh: 2}
	for _, table := range []ThresholdTable{CanonicalThresholds, LegacyThresholds} {
		prev := -1
		for p := 0.0; p <= 1.0; p += 0.01 {
			r := rank[table.RiskLevel(p)]
			assert.GreaterOrEqual(t, r, prev)
			prev = r
		}
	}
}

func TestThresholdsForProfile(t *testing.T) {
	table, err := ThresholdsForProfile("legacy")
	assert.NoError(t, err)
	assert.Equal(t, models.RiskLevelMedium, table.RiskLevel(0.6))
	assert.Equal(t, models.RiskLevelHigh, table.RiskLevel(0.8))

	table, err = ThresholdsForProfile("")
	assert.NoError(t, err)
	assert.Equal(t, CanonicalThresholds, table)

	_, err = ThresholdsForProfile("aggressive")
	assert.Error(t, err)

	assert.Error(t, ThresholdTable{High: 0.3, Medium: 0.5}.Validate())
}

func TestThresholdTable_ValidateRejectsNaN(t *testing.T) {
	assert.Error(t, ThresholdTable{High: math.NaN(), Medium: 0.3}.Validate())
	assert.Error(t, ThresholdTable{High: 0.55, Medium: math.NaN()}.Validate())
	assert.NoError(t, CanonicalThresholds.Validate())
	assert.NoError(t, LegacyThresholds.Validate())
}

func TestVulnerabilityScorer(t *testing.T) {
	s := VulnerabilityScorer{}

	clean := baseTx()
	clean.BeneficiaryTrustScore = 1
	assert.Equal(t, 0, s.Score(clean))

	worst := baseTx()
	worst.IsFirstTimeUser = true
	worst.DeviceAgeDays = 0
	worst.RapidTransactions1h = 20
	worst.UPIPinFailedAttempts = 5
	worst.AccountReports = 3
	worst.PastFraudFlag = true
	worst.BeneficiaryTrustScore = 0
	worst.IsRuralUser = true
	worst.LocationChange = true
	assert.Equal(t, 100, s.Score(worst))

	b := s.Breakdown(scenarioOneTx())
	assert.Equal(t, 5.0, b.AccountAge)
	assert.Equal(t, 15.0, b.DeviceAge)
	assert.Equal(t, 0.0, b.Behaviour)
	assert.InDelta(t, 9.0, b.Beneficiary, 1e-9)
	assert.Equal(t, 5.0, b.Location)
	assert.Equal(t, 34, b.Total())
}

func TestVulnerabilityScorer_Tiers(t *testing.T) {
	s := VulnerabilityScorer{}
	for _, tt := range []struct {
		accountAge int
		want       float64
	}{{10, 20}, {60, 15}, {120, 10}, {300, 5}, {400, 0}} {
		tx := baseTx()
		tx.AccountAgeDays = tt.accountAge
		assert.Equal(t, tt.want, s.Breakdown(tx).AccountAge, "account age %d", tt.accountAge)
	}
	for _, tt := range []struct {
		deviceAge int
		want      float64
	}{{3, 15}, {10, 10}, {60, 5}, {100, 0}} {
		tx := baseTx()
		tx.DeviceAgeDays = tt.deviceAge
		assert.Equal(t, tt.want, s.Breakdown(tx).DeviceAge, "device age %d", tt.deviceAge)
	}
}

func TestFraudType_LegitimateBelowCutoff(t *testing.T) {
	c := NewFraudTypeClassifier()
	tx := scenarioOneTx()
	for _, p := range []float64{0, 0.1, 0.3, 0.49, 0.4999} {
		assert.Equal(t, models.FraudTypeLegitimate, c.Classify(tx, p))
	}
}

func TestFraudType_TieGoesToFirstArchetype(t *testing.T) {
	c := NewFraudTypeClassifier()
	tx := scenarioOneTx()

	scores := c.Scores(tx)
	assert.Equal(t, 6, scores[models.FraudTypeHighAmount])
	assert.Equal(t, 6, scores[models.FraudTypeNewDevice])
	assert.Equal(t, models.FraudTypeHighAmount, c.Classify(tx, 0.94))
}

func TestFraudType_Archetypes(t *testing.T) {
	c := NewFraudTypeClassifier()

	device := baseTx()
	device.IsNewDevice = true
	device.DeviceAgeDays = 0
	device.UPIPinFailedAttempts = 1
	assert.Equal(t, models.FraudTypeNewDevice, c.Classify(device, 0.7))

	night := baseTx()
	night.TimeSlot = models.TimeSlotLateNight
	night.RapidTransactions1h = 12
	night.TransactionFrequency = 20
	assert.Equal(t, models.FraudTypeNightRush, c.Classify(night, 0.7))

	multi := baseTx()
	multi.IsSmallVerification = true
	multi.IsNewDevice = true
	multi.IsNewBeneficiary = true
	multi.LocationChange = true
	multi.DeviceAgeDays = 30
	multi.BeneficiaryTrustScore = 0.5
	assert.Equal(t, models.FraudTypeMultipleNew, c.Classify(multi, 0.7))
}

func TestFormatRupees(t *testing.T) {
	tests := []struct {
		amount float64
		want   string
	}{
		{5, "₹5.00"},
		{999.5, "₹999.50"},
		{45000, "₹45,000.00"},
		{123456.78, "₹1,23,456.78"},
		{12345678, "₹1,23,45,678.00"},
		{-35000, "-₹35,000.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatRupees(tt.amount))
	}
}

func TestExplain(t *testing.T) {
	assert.Equal(t, NormalExplanation, Explain(baseTx()))

	got := Explain(scenarioOneTx())
	parts := strings.Split(got, " | ")
	assert.Equal(t, []string{
		"High transaction amount (₹45,000.00)",
		"Transaction at night (Night)",
		"New device detected",
		"New beneficiary",
		"Location change detected",
		"High transaction frequency (15 in 24h)",
		"Amount deviates from user pattern (1.20)",
		"Low beneficiary trust score (0.10)",
		"Very new device (0 days old)",
	}, parts)
}

func TestExplain_ExtendedConditionsInOrder(t *testing.T) {
	tx := baseTx()
	tx.IsSmallVerification = true
	tx.UPIPinFailedAttempts = 2
	tx.RapidTransactions1h = 11
	tx.AccountReports = 1
	tx.BeneficiaryChangeVelocity = 6
	tx.IsFirstTimeUser = true
	tx.IsRuralUser = true
	tx.PastFraudFlag = true

	parts := strings.Split(Explain(tx), " | ")
	assert.Equal(t, []string{
		"Past fraud activity detected",
		"Small verification transaction",
		"UPI PIN failed attempts (2)",
		"Rapid transactions (11 in 1h)",
		"Account reported (1 reports)",
		"High beneficiary change velocity (6)",
		"First-time UPI user",
		"Rural user",
	}, parts)
}

func TestBalanceChanges(t *testing.T) {
	tx := baseTx()
	tx.Amount = 1234.56
	tx.PayeeBalanceBefore = 5000
	tx.PayeeBalanceAfter = 3765.44
	tx.BeneficiaryBalanceBefore = 0
	tx.BeneficiaryBalanceAfter = 1234.56

	got := BalanceChanges(tx)
	assert.Equal(t, -1234.56, got.PayeeDelta)
	assert.Equal(t, 1234.56, got.BeneficiaryDelta)
	assert.Equal(t, -24.69, got.PayeeDeltaPct)
	assert.Equal(t, 0.0, got.BeneficiaryDeltaPct)
}
