// Package ledger holds the pure fee-ledger arithmetic: balance and status
// derivation, the credit allocation policy, and recurring period math. It
// performs no I/O; repositories feed it rows and persist its decisions.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// Epsilon absorbs decimal rounding at comparison boundaries. It is never
// used during accumulation.
var Epsilon = decimal.New(1, -2)

// Credited sums all credits regardless of type.
func Credited(credits []models.Credit) decimal.Decimal {
	total := decimal.Zero
	for _, c := range credits {
		total = total.Add(c.Amount)
	}
	return total
}

// CreditedByType sums credits of the given type.
func CreditedByType(credits []models.Credit, t models.CreditType) decimal.Decimal {
	total := decimal.Zero
	for _, c := range credits {
		if c.Type == t {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// Balance derives the remaining amount owed on a fee.
func Balance(fee models.FeeWithCredits) decimal.Decimal {
	return fee.Amount.Sub(Credited(fee.Credits))
}

// Settled reports whether the fee's balance is within Epsilon of zero.
func Settled(fee models.FeeWithCredits) bool {
	return Balance(fee).LessThanOrEqual(Epsilon)
}

// Status derives the settlement state of a fee at the given instant.
func Status(fee models.FeeWithCredits, now time.Time) models.FeeStatus {
	if Settled(fee) {
		return models.FeeStatusSettled
	}
	if fee.DueDate.Before(now) {
		return models.FeeStatusOverdue
	}
	return models.FeeStatusPending
}

// Outstanding sums the positive balances across the given fees. Settled and
// overcredited fees contribute nothing.
func Outstanding(fees []models.FeeWithCredits) decimal.Decimal {
	total := decimal.Zero
	for _, f := range fees {
		if b := Balance(f); b.GreaterThan(Epsilon) {
			total = total.Add(b)
		}
	}
	return total
}

// Detail attaches the derived figures to a fee for read-side views.
func Detail(fee models.FeeWithCredits, now time.Time) models.FeeDetail {
	return models.FeeDetail{
		Fee:        fee.Fee,
		Paid:       CreditedByType(fee.Credits, models.CreditTypePayment),
		Discounted: CreditedByType(fee.Credits, models.CreditTypeDiscount),
		Balance:    Balance(fee),
		Status:     Status(fee, now),
		Credits:    fee.Credits,
	}
}
