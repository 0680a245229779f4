package ledger

import (
	"time"

	"github.com/noah-isme/sma-fees-api/internal/models"
)

// PeriodStart truncates the instant to the start of its billing period:
// first day of the month for MONTHLY, January 1 for YEARLY. ONCE structures
// have no period and map to the zero time.
func PeriodStart(recurrence models.Recurrence, t time.Time) time.Time {
	switch recurrence {
	case models.RecurrenceMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.RecurrenceYearly:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// DueDate returns the last day of the instant's month. Both monthly and
// yearly obligations fall due at month end.
func DueDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// ShouldGenerate decides whether a subscription is owed an obligation for
// the period containing now. A subscription that fell behind by several
// periods still generates at most one obligation per pass.
func ShouldGenerate(recurrence models.Recurrence, lastGeneratedFor *time.Time, now time.Time) bool {
	switch recurrence {
	case models.RecurrenceMonthly, models.RecurrenceYearly:
	default:
		return false
	}
	if lastGeneratedFor == nil {
		return true
	}
	return PeriodStart(recurrence, *lastGeneratedFor).Before(PeriodStart(recurrence, now))
}
