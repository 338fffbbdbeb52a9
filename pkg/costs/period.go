package costs

import "time"

// periodLayout formats a UTC calendar day, the fixed budget period
// granularity. Rollover is implicit: the first write under a new key
// creates a fresh zero counter.
const periodLayout = "2006-01-02"

// PeriodKey returns the budget period key for the given instant under
// the fixed UTC timezone policy.
func PeriodKey(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// CurrentPeriodKey returns the period key for the current instant.
func CurrentPeriodKey() string {
	return PeriodKey(time.Now())
}
