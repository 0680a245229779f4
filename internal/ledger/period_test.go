package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

func TestPeriodStartMonthly(t *testing.T) {
	now := time.Date(2025, time.March, 17, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), PeriodStart(models.RecurrenceMonthly, now))
}

func TestPeriodStartYearly(t *testing.T) {
	now := time.Date(2025, time.August, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), PeriodStart(models.RecurrenceYearly, now))
}

func TestPeriodStartOnceIsZero(t *testing.T) {
	assert.True(t, PeriodStart(models.RecurrenceOnce, time.Now()).IsZero())
}

func TestDueDateMonthEnd(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC), time.Date(2025, time.January, 31, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, time.February, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DueDate(tc.in))
	}
}

func TestShouldGenerateNeverGenerated(t *testing.T) {
	now := time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC)
	assert.True(t, ShouldGenerate(models.RecurrenceMonthly, nil, now))
	assert.True(t, ShouldGenerate(models.RecurrenceYearly, nil, now))
}

func TestShouldGenerateSamePeriodIsNoOp(t *testing.T) {
	now := time.Date(2025, time.March, 20, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, ShouldGenerate(models.RecurrenceMonthly, &last, now))

	lastYear := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, ShouldGenerate(models.RecurrenceYearly, &lastYear, now))
}

func TestShouldGenerateEarlierPeriod(t *testing.T) {
	now := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, ShouldGenerate(models.RecurrenceMonthly, &last, now))

	lastYear := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, ShouldGenerate(models.RecurrenceYearly, &lastYear, now))
}

func TestShouldGenerateOnceNever(t *testing.T) {
	now := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, ShouldGenerate(models.RecurrenceOnce, nil, now))
}
