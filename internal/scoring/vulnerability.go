package scoring

import (
	"math"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// VulnerabilityScorer measures how exploitable the account, device and user
// profile are, independent of the current fraud probability.
type VulnerabilityScorer struct{}

// VulnerabilityBreakdown holds the per-bucket contributions
type VulnerabilityBreakdown struct {
	AccountAge  float64 `json:"account_age"`
	DeviceAge   float64 `json:"device_age"`
	Behaviour   float64 `json:"behaviour"`
	Reputation  float64 `json:"reputation"`
	Beneficiary float64 `json:"beneficiary"`
	Location    float64 `json:"location"`
}

// Total sums the buckets, capped at 100
func (b VulnerabilityBreakdown) Total() int {
	sum := b.AccountAge + b.DeviceAge + b.Behaviour + b.Reputation + b.Beneficiary + b.Location
	return int(math.Round(math.Min(sum, 100)))
}

// Score returns the vulnerability score in [0,100]
func (s VulnerabilityScorer) Score(tx *models.NormalizedTransaction) int {
	return s.Breakdown(tx).Total()
}

// Breakdown computes every bucket
func (VulnerabilityScorer) Breakdown(tx *models.NormalizedTransaction) VulnerabilityBreakdown {
	var b VulnerabilityBreakdown

	switch {
	case tx.IsFirstTimeUser || tx.AccountAgeDays < 30:
		b.AccountAge = 20
	case tx.AccountAgeDays < 90:
		b.AccountAge = 15
	case tx.AccountAgeDays < 180:
		b.AccountAge = 10
	case tx.AccountAgeDays < 365:
		b.AccountAge = 5
	}

	switch {
	case tx.DeviceAgeDays < 7:
		b.DeviceAge = 15
	case tx.DeviceAgeDays < 30:
		b.DeviceAge = 10
	case tx.DeviceAgeDays < 90:
		b.DeviceAge = 5
	}

	switch {
	case tx.RapidTransactions1h > 10:
		b.Behaviour += 15
	case tx.RapidTransactions1h > 5:
		b.Behaviour += 8
	}
	switch {
	case tx.UPIPinFailedAttempts >= 3:
		b.Behaviour += 10
	case tx.UPIPinFailedAttempts >= 1:
		b.Behaviour += 5
	}
	b.Behaviour = math.Min(b.Behaviour, 25)

	b.Reputation = math.Min(float64(tx.AccountReports)*5, 10)
	if tx.PastFraudFlag {
		b.Reputation += 10
	}
	b.Reputation = math.Min(b.Reputation, 20)

	trust := math.Max(0, math.Min(tx.BeneficiaryTrustScore, 1))
	b.Beneficiary = (1 - trust) * 10

	if tx.IsRuralUser {
		b.Location += 5
	}
	if tx.LocationChange {
		b.Location += 5
	}

	return b
}
