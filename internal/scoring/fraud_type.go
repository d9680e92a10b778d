package scoring

import (
	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// indicator is a weighted archetype signal
type indicator struct {
	ID       string
	Weight   int
	Evaluate func(tx *models.NormalizedTransaction) bool
}

// archetype groups the indicators scored for one fraud type
type archetype struct {
	Type       models.FraudType
	Indicators []indicator
}

// FraudTypeClassifier assigns the fraud archetype with the highest
// indicator score. Ties go to the archetype listed first.
type FraudTypeClassifier struct {
	archetypes []archetype
}

// NewFraudTypeClassifier creates the classifier with the built-in archetypes
func NewFraudTypeClassifier() *FraudTypeClassifier {
	c := &FraudTypeClassifier{}
	c.initializeArchetypes()
	return c
}

func (c *FraudTypeClassifier) initializeArchetypes() {
	c.archetypes = []archetype{
		{
			Type: models.FraudTypeHighAmount,
			Indicators: []indicator{
				{ID: "AMOUNT_ABOVE_20K", Weight: 3, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.Amount > 20000
				}},
				{ID: "AMOUNT_ABOVE_10K", Weight: 2, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.Amount > 10000 && tx.Amount <= 20000
				}},
				{ID: "AMOUNT_DEVIATION", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.AmountDeviation >= 0.7
				}},
				{ID: "NEW_BENEFICIARY", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.IsNewBeneficiary
				}},
				{ID: "LOW_TRUST", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.BeneficiaryTrustScore < 0.3
				}},
				{ID: "PAST_FRAUD", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.PastFraudFlag
				}},
			},
		},
		{
			Type: models.FraudTypeNewDevice,
			Indicators: []indicator{
				{ID: "NEW_DEVICE", Weight: 3, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.IsNewDevice
				}},
				{ID: "DEVICE_AGE_1D", Weight: 2, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.DeviceAgeDays <= 1
				}},
				{ID: "LOCATION_CHANGE", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.LocationChange
				}},
				{ID: "PIN_FAILURE", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.UPIPinFailedAttempts >= 1
				}},
			},
		},
		{
			Type: models.FraudTypeNightRush,
			Indicators: []indicator{
				{ID: "NIGHT_SLOT", Weight: 3, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.TimeSlot >= models.TimeSlotNight
				}},
				{ID: "HIGH_FREQUENCY", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.TransactionFrequency >= 10
				}},
				{ID: "RAPID_TRANSACTIONS", Weight: 2, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.RapidTransactions1h >= 10
				}},
				{ID: "BENEFICIARY_VELOCITY", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.BeneficiaryChangeVelocity >= 8
				}},
			},
		},
		{
			Type: models.FraudTypeMultipleNew,
			Indicators: []indicator{
				{ID: "ALL_NEW", Weight: 2, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.IsNewDevice && tx.IsNewBeneficiary && tx.LocationChange
				}},
				{ID: "SMALL_VERIFICATION", Weight: 3, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.IsSmallVerification
				}},
				{ID: "VERY_LOW_TRUST", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.BeneficiaryTrustScore < 0.2
				}},
				{ID: "ACCOUNT_REPORTS", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.AccountReports > 0
				}},
				{ID: "REPEATED_PIN_FAILURE", Weight: 1, Evaluate: func(tx *models.NormalizedTransaction) bool {
					return tx.UPIPinFailedAttempts >= 2
				}},
			},
		},
	}
}

// Scores returns the indicator score of every archetype
func (c *FraudTypeClassifier) Scores(tx *models.NormalizedTransaction) map[models.FraudType]int {
	scores := make(map[models.FraudType]int, len(c.archetypes))
	for _, a := range c.archetypes {
		scores[a.Type] = a.score(tx)
	}
	return scores
}

// Classify returns the fraud archetype for a transaction with the given
// fraud probability. Below the fraud cutoff it is always legitimate.
func (c *FraudTypeClassifier) Classify(tx *models.NormalizedTransaction, probability float64) models.FraudType {
	if probability < FraudProbabilityCutoff {
		return models.FraudTypeLegitimate
	}

	best := c.archetypes[0].Type
	bestScore := -1
	for _, a := range c.archetypes {
		if s := a.score(tx); s > bestScore {
			best, bestScore = a.Type, s
		}
	}
	return best
}

func (a archetype) score(tx *models.NormalizedTransaction) int {
	total := 0
	for _, ind := range a.Indicators {
		if ind.Evaluate(tx) {
			total += ind.Weight
		}
	}
	return total
}
