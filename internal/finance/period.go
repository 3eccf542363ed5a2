package finance

import (
	"time"

	"smartbudget/internal/core"
)

// PeriodStart returns the inclusive lower bound of period relative to now,
// anchored at local midnight in now's location. Weeks start on Sunday.
// The zero time is returned for PeriodAll and unknown periods.
func PeriodStart(period core.Period, now time.Time) time.Time {
	y, m, d := now.Date()
	loc := now.Location()

	switch period {
	case core.PeriodDay:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	case core.PeriodWeek:
		return time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, loc)
	case core.PeriodMonth:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case core.PeriodYear:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Time{}
	}
}

// FilterByPeriod keeps transactions dated on or after the start of period.
// There is no upper bound, so future-dated transactions always pass.
// PeriodAll returns txs unchanged.
func FilterByPeriod(txs []core.Transaction, period core.Period, now time.Time) []core.Transaction {
	if period == core.PeriodAll || period == "" {
		return txs
	}

	threshold := PeriodStart(period, now)
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Date.Before(threshold) {
			out = append(out, tx)
		}
	}
	return out
}
