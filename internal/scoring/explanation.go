package scoring

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/enterprise/upi-fraud-engine/internal/models"
)

// NormalExplanation is returned when no checklist condition holds
const NormalExplanation = "Transaction appears normal based on user patterns"

const explanationSeparator = " | "

// reason is one entry of the explanation checklist
type reason struct {
	Applies  func(tx *models.NormalizedTransaction) bool
	Describe func(tx *models.NormalizedTransaction) string
}

func fixed(text string) func(*models.NormalizedTransaction) string {
	return func(*models.NormalizedTransaction) string { return text }
}

var explanationChecklist = []reason{
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.Amount > 20000 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("High transaction amount (%s)", formatRupees(tx.Amount))
		},
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.TimeSlot >= models.TimeSlotNight },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("Transaction at night (%s)", models.TimeSlotName(tx.TimeSlot))
		},
	},
	{
		Applies:  func(tx *models.NormalizedTransaction) bool { return tx.IsNewDevice },
		Describe: fixed("New device detected"),
	},
	{
		Applies:  func(tx *models.NormalizedTransaction) bool { return tx.IsNewBeneficiary },
		Describe: fixed("New beneficiary"),
	},
	{
		Applies:  func(tx *models.NormalizedTransaction) bool { return tx.LocationChange },
		Describe: fixed("Location change detected"),
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.TransactionFrequency > 10 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("High transaction frequency (%d in 24h)", tx.TransactionFrequency)
		},
	},
	{
		Applies:  func(tx *models.NormalizedTransaction) bool { return tx.PastFraudFlag },
		Describe: fixed("Past fraud activity detected"),
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.AmountDeviation > 0.7 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("Amount deviates from user pattern (%.2f)", tx.AmountDeviation)
		},
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.BeneficiaryTrustScore < 0.4 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("Low beneficiary trust score (%.2f)", tx.BeneficiaryTrustScore)
		},
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.DeviceAgeDays < 7 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("Very new device (%d days old)", tx.DeviceAgeDays)
		},
	},
	{
		Applies:  func(tx *models.NormalizedTransaction) bool { return tx.IsSmallVerification },
		Describe: fixed("Small verification transaction"),
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.UPIPinFailedAttempts > 0 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("UPI PIN failed attempts (%d)", tx.UPIPinFailedAttempts)
		},
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.RapidTransactions1h > 10 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("Rapid transactions (%d in 1h)", tx.RapidTransactions1h)
		},
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.AccountReports > 0 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("Account reported (%d reports)", tx.AccountReports)
		},
	},
	{
		Applies: func(tx *models.NormalizedTransaction) bool { return tx.BeneficiaryChangeVelocity > 5 },
		Describe: func(tx *models.NormalizedTransaction) string {
			return fmt.Sprintf("High beneficiary change velocity (%d)", tx.BeneficiaryChangeVelocity)
		},
	},
	{
		Applies:  func(tx *models.NormalizedTransaction) bool { return tx.IsFirstTimeUser },
		Describe: fixed("First-time UPI user"),
	},
	{
		Applies:  func(tx *models.NormalizedTransaction) bool { return tx.IsRuralUser },
		Describe: fixed("Rural user"),
	},
}

// Explain builds the explanation for a transaction from the fixed checklist
func Explain(tx *models.NormalizedTransaction) string {
	var reasons []string
	for _, r := range explanationChecklist {
		if r.Applies(tx) {
			reasons = append(reasons, r.Describe(tx))
		}
	}
	if len(reasons) == 0 {
		return NormalExplanation
	}
	return strings.Join(reasons, explanationSeparator)
}

// formatRupees renders an amount with Indian digit grouping, e.g. ₹12,34,567.00
func formatRupees(amount float64) string {
	s := decimal.NewFromFloat(amount).StringFixed(2)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(whole) > 3 {
		head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		whole = strings.Join(groups, ",") + "," + tail
	}
	return sign + "₹" + whole + "." + frac
}
