package rules

import "time"

// Default monthly allotments per feature type. The live values come
// from config; these back the config defaults and tests.
const (
	DefaultCompatibilityPerMonth = 2
	DefaultBirthChartPerMonth    = 2
	DefaultMoonReadingPerMonth   = 4
)

// NextMonthStart returns the first instant of the calendar month after
// now, in UTC. Credit periods are exclusive at the upper bound: a
// balance with reset_at == T is stale at any instant >= T.
func NextMonthStart(now time.Time) time.Time {
	t := now.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// PeriodExpired reports whether a balance with the given reset_at needs
// a rollover before it can be read or consumed.
func PeriodExpired(now, resetAt time.Time) bool {
	return !now.UTC().Before(resetAt.UTC())
}

// DaysUntil returns the whole number of days until the given reset
// boundary, rounded up, never negative. Display only.
func DaysUntil(now, resetAt time.Time) int {
	d := resetAt.UTC().Sub(now.UTC())
	if d <= 0 {
		return 0
	}
	days := int((d + 24*time.Hour - 1) / (24 * time.Hour))
	return days
}
