package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func fee(id string, amount string, due time.Time, credits ...models.Credit) models.FeeWithCredits {
	return models.FeeWithCredits{
		Fee:     models.Fee{ID: id, StudentID: "stu-1", Type: "Tuition", Amount: d(amount), DueDate: due},
		Credits: credits,
	}
}

func credit(amount string, t models.CreditType) models.Credit {
	return models.Credit{ID: "cr", FeeID: "fee", Amount: d(amount), Type: t, Date: time.Now()}
}

func TestAllocateEarliestDueFirst(t *testing.T) {
	jan := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC)
	fees := []models.FeeWithCredits{
		fee("fee-feb", "50", feb),
		fee("fee-jan", "100", jan),
	}

	drafts, err := Allocate(fees, d("120"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, "fee-jan", drafts[0].FeeID)
	assert.True(t, drafts[0].Amount.Equal(d("100")), "january settled in full, got %s", drafts[0].Amount)
	assert.Equal(t, "fee-feb", drafts[1].FeeID)
	assert.True(t, drafts[1].Amount.Equal(d("20")))

	remaining := fees[0].Amount.Sub(drafts[1].Amount)
	assert.True(t, remaining.Equal(d("30")), "february balance left at %s", remaining)
}

func TestAllocateDiscountBeforePayment(t *testing.T) {
	due := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	fees := []models.FeeWithCredits{fee("fee-1", "100", due)}

	drafts, err := Allocate(fees, d("30"), d("20"))
	require.NoError(t, err)
	require.Len(t, drafts, 2)

	assert.Equal(t, models.CreditTypeDiscount, drafts[0].Type)
	assert.True(t, drafts[0].Amount.Equal(d("20")))
	assert.Equal(t, models.CreditTypePayment, drafts[1].Type)
	assert.True(t, drafts[1].Amount.Equal(d("30")))
}

func TestAllocateConservesRequestedTotal(t *testing.T) {
	base := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	fees := []models.FeeWithCredits{
		fee("fee-1", "33.33", base),
		fee("fee-2", "66.67", base.AddDate(0, 1, 0)),
		fee("fee-3", "10.50", base.AddDate(0, 2, 0), credit("5.25", models.CreditTypePayment)),
	}

	amount, discount := d("70.10"), d("12.15")
	drafts, err := Allocate(fees, amount, discount)
	require.NoError(t, err)

	assert.True(t, Total(drafts).Equal(amount.Add(discount)),
		"allocated %s, requested %s", Total(drafts), amount.Add(discount))
}

func TestAllocateRejectsOverTotalOutstanding(t *testing.T) {
	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	fees := []models.FeeWithCredits{
		fee("fee-1", "100", due, credit("40", models.CreditTypePayment)),
		fee("fee-2", "50", due.AddDate(0, 1, 0)),
	}

	_, err := Allocate(fees, d("111"), decimal.Zero)
	var overErr *OverallocationError
	require.ErrorAs(t, err, &overErr)
	assert.True(t, overErr.Requested.Equal(d("111")))
	assert.True(t, overErr.Available.Equal(d("110")))
	assert.False(t, overErr.Targeted)

	drafts, err := Allocate(fees, d("110"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, Total(drafts).Equal(d("110")))
}

func TestAllocateSkipsSettledFees(t *testing.T) {
	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	fees := []models.FeeWithCredits{
		fee("fee-settled", "100", due, credit("100", models.CreditTypePayment)),
		fee("fee-open", "80", due.AddDate(0, 1, 0)),
	}

	drafts, err := Allocate(fees, d("80"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "fee-open", drafts[0].FeeID)
}

func TestAllocateStableTieBreakOnDueDate(t *testing.T) {
	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	fees := []models.FeeWithCredits{
		fee("fee-b", "50", due),
		fee("fee-a", "50", due),
	}

	drafts, err := Allocate(fees, d("50"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "fee-a", drafts[0].FeeID)
}

func TestAllocateNoOverpaymentAcrossSequence(t *testing.T) {
	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	open := []models.FeeWithCredits{
		fee("fee-1", "100", due),
		fee("fee-2", "60", due.AddDate(0, 1, 0)),
	}

	// apply three successive allocations, replaying each plan into the fees
	for _, step := range []struct{ amount, discount string }{
		{"45.50", "0"},
		{"30", "14.50"},
		{"60", "10"},
	} {
		drafts, err := Allocate(open, d(step.amount), d(step.discount))
		require.NoError(t, err)
		for _, draft := range drafts {
			for i := range open {
				if open[i].ID == draft.FeeID {
					open[i].Credits = append(open[i].Credits, models.Credit{FeeID: draft.FeeID, Amount: draft.Amount, Type: draft.Type})
				}
			}
		}
	}

	for _, f := range open {
		assert.True(t, Credited(f.Credits).LessThanOrEqual(f.Amount.Add(Epsilon)),
			"fee %s overpaid: credited %s against %s", f.ID, Credited(f.Credits), f.Amount)
	}
	assert.True(t, Outstanding(open).IsZero())
}

func TestAllocateTargetedExactBoundary(t *testing.T) {
	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	target := fee("fee-1", "150", due)

	_, err := AllocateTargeted(target, d("151"), decimal.Zero)
	var overErr *OverallocationError
	require.ErrorAs(t, err, &overErr)
	assert.True(t, overErr.Targeted)
	assert.True(t, overErr.Available.Equal(d("150")))

	drafts, err := AllocateTargeted(target, d("150"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, drafts, 1)

	target.Credits = append(target.Credits, models.Credit{FeeID: "fee-1", Amount: drafts[0].Amount, Type: drafts[0].Type})
	assert.True(t, Balance(target).IsZero())
	assert.Equal(t, models.FeeStatusSettled, Status(target, due.AddDate(0, 1, 0)))
}

func TestAllocateTargetedWithinEpsilon(t *testing.T) {
	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	target := fee("fee-1", "100", due, credit("50.005", models.CreditTypePayment))

	// remaining is 49.995; a rounded 50.00 request stays within epsilon
	drafts, err := AllocateTargeted(target, d("50.00"), decimal.Zero)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
}

func TestAllocateTargetedBothCreditTypes(t *testing.T) {
	due := time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)
	target := fee("fee-1", "100", due)

	drafts, err := AllocateTargeted(target, d("30"), d("20"))
	require.NoError(t, err)
	require.Len(t, drafts, 2)
	assert.Equal(t, models.CreditTypeDiscount, drafts[0].Type)
	assert.Equal(t, models.CreditTypePayment, drafts[1].Type)

	for _, draft := range drafts {
		target.Credits = append(target.Credits, models.Credit{FeeID: draft.FeeID, Amount: draft.Amount, Type: draft.Type})
	}
	assert.True(t, Balance(target).Equal(d("50")))
}
