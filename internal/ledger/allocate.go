package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// Draft is a credit the allocation policy decided to create. Drafts carry no
// identity or date; the caller stamps those when persisting.
type Draft struct {
	FeeID  string
	Type   models.CreditType
	Amount decimal.Decimal
}

// OverallocationError reports a requested credit total that exceeds the
// available ceiling, carrying both figures for the caller to render.
type OverallocationError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
	Targeted  bool
}

func (e *OverallocationError) Error() string {
	if e.Targeted {
		return fmt.Sprintf("credit %s exceeds remaining fee amount %s", e.Requested, e.Available)
	}
	return fmt.Sprintf("credit %s exceeds total outstanding balance %s", e.Requested, e.Available)
}

// AllocateTargeted plans credits against a single fee. The full amount and
// discount land on that fee; the request is rejected when their sum exceeds
// the fee's remaining balance by more than Epsilon.
func AllocateTargeted(fee models.FeeWithCredits, amount, discount decimal.Decimal) ([]Draft, error) {
	requested := amount.Add(discount)
	remaining := Balance(fee)
	if requested.GreaterThan(remaining.Add(Epsilon)) {
		return nil, &OverallocationError{Requested: requested, Available: remaining, Targeted: true}
	}

	var drafts []Draft
	if discount.IsPositive() {
		drafts = append(drafts, Draft{FeeID: fee.ID, Type: models.CreditTypeDiscount, Amount: discount})
	}
	if amount.IsPositive() {
		drafts = append(drafts, Draft{FeeID: fee.ID, Type: models.CreditTypePayment, Amount: amount})
	}
	return drafts, nil
}

// Allocate distributes a payment and discount across the student's
// outstanding fees, earliest due date first. On each fee the discount pool is
// drained before the payment pool, so a single fee can receive both a
// DISCOUNT and a PAYMENT draft. The request is rejected when the combined
// total exceeds the sum of outstanding balances; a successful plan therefore
// allocates the requested total exactly.
func Allocate(fees []models.FeeWithCredits, amount, discount decimal.Decimal) ([]Draft, error) {
	outstanding := make([]models.FeeWithCredits, 0, len(fees))
	for _, f := range fees {
		if Balance(f).GreaterThan(Epsilon) {
			outstanding = append(outstanding, f)
		}
	}
	sort.SliceStable(outstanding, func(i, j int) bool {
		if !outstanding[i].DueDate.Equal(outstanding[j].DueDate) {
			return outstanding[i].DueDate.Before(outstanding[j].DueDate)
		}
		return outstanding[i].ID < outstanding[j].ID
	})

	requested := amount.Add(discount)
	available := Outstanding(outstanding)
	if requested.GreaterThan(available) {
		return nil, &OverallocationError{Requested: requested, Available: available}
	}

	amountPool := amount
	discountPool := discount
	var drafts []Draft
	for _, f := range outstanding {
		if !amountPool.IsPositive() && !discountPool.IsPositive() {
			break
		}
		balance := Balance(f)

		applied := decimal.Min(discountPool, balance)
		if applied.IsPositive() {
			drafts = append(drafts, Draft{FeeID: f.ID, Type: models.CreditTypeDiscount, Amount: applied})
			discountPool = discountPool.Sub(applied)
			balance = balance.Sub(applied)
		}

		applied = decimal.Min(amountPool, balance)
		if applied.IsPositive() {
			drafts = append(drafts, Draft{FeeID: f.ID, Type: models.CreditTypePayment, Amount: applied})
			amountPool = amountPool.Sub(applied)
		}
	}
	return drafts, nil
}

// Total sums the draft amounts.
func Total(drafts []Draft) decimal.Decimal {
	total := decimal.Zero
	for _, d := range drafts {
		total = total.Add(d.Amount)
	}
	return total
}
