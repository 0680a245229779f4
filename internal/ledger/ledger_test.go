package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

func TestBalanceDerivation(t *testing.T) {
	due := time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC)
	f := fee("fee-1", "100", due,
		credit("25", models.CreditTypePayment),
		credit("15", models.CreditTypeDiscount),
	)

	assert.True(t, Balance(f).Equal(d("60")))
	assert.True(t, CreditedByType(f.Credits, models.CreditTypePayment).Equal(d("25")))
	assert.True(t, CreditedByType(f.Credits, models.CreditTypeDiscount).Equal(d("15")))
}

func TestStatusOverdueWhenUnsettledPastDue(t *testing.T) {
	now := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	f := fee("fee-1", "100", now.AddDate(0, 0, -1), credit("40", models.CreditTypePayment))

	assert.True(t, Balance(f).Equal(d("60")))
	assert.Equal(t, models.FeeStatusOverdue, Status(f, now))
}

func TestStatusSettledRegardlessOfDueDate(t *testing.T) {
	now := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	f := fee("fee-1", "100", now.AddDate(0, 0, -1), credit("100", models.CreditTypePayment))

	assert.Equal(t, models.FeeStatusSettled, Status(f, now))
}

func TestStatusPendingBeforeDueDate(t *testing.T) {
	now := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	f := fee("fee-1", "100", now.AddDate(0, 0, 7))

	assert.Equal(t, models.FeeStatusPending, Status(f, now))
}

func TestSettledWithinEpsilon(t *testing.T) {
	due := time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC)
	f := fee("fee-1", "100", due, credit("99.995", models.CreditTypePayment))

	assert.True(t, Settled(f))
}

func TestOutstandingIgnoresSettledFees(t *testing.T) {
	due := time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC)
	fees := []models.FeeWithCredits{
		fee("fee-1", "100", due, credit("100", models.CreditTypePayment)),
		fee("fee-2", "75", due),
		fee("fee-3", "20", due, credit("5", models.CreditTypeDiscount)),
	}

	assert.True(t, Outstanding(fees).Equal(d("90")))
}

func TestDetailAttachesDerivedFigures(t *testing.T) {
	now := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	f := fee("fee-1", "100", now.AddDate(0, 0, -5),
		credit("30", models.CreditTypePayment),
		credit("10", models.CreditTypeDiscount),
	)

	detail := Detail(f, now)
	assert.True(t, detail.Paid.Equal(d("30")))
	assert.True(t, detail.Discounted.Equal(d("10")))
	assert.True(t, detail.Balance.Equal(d("60")))
	assert.Equal(t, models.FeeStatusOverdue, detail.Status)
}
