package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

var hundred = decimal.NewFromInt(100)

// BalanceChanges computes the payee and beneficiary balance movements.
// Percentages are relative to the balance before the transfer and are 0
// when that balance is 0.
func BalanceChanges(tx *models.NormalizedTransaction) models.BalanceChanges {
	payeeDelta, payeePct := delta(tx.PayeeBalanceBefore, tx.PayeeBalanceAfter)
	benDelta, benPct := delta(tx.BeneficiaryBalanceBefore, tx.BeneficiaryBalanceAfter)
	return models.BalanceChanges{
		PayeeDelta:          payeeDelta,
		BeneficiaryDelta:    benDelta,
		PayeeDeltaPct:       payeePct,
		BeneficiaryDeltaPct: benPct,
	}
}

func delta(before, after float64) (float64, float64) {
	b := decimal.NewFromFloat(before)
	d := decimal.NewFromFloat(after).Sub(b).Round(2)

	pct := decimal.Zero
	if !b.IsZero() {
		pct = d.Div(b).Mul(hundred).Round(2)
	}
	return d.InexactFloat64(), pct.InexactFloat64()
}
