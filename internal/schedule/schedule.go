// Package schedule computes the next due date for recurring tasks.
package schedule

import "time"

// Frequency values accepted on recurring tasks.
const (
	Daily    = "daily"
	Weekly   = "weekly"
	Biweekly = "biweekly"
	Monthly  = "monthly"
)

// Valid reports whether f is a recognized recurrence frequency.
func Valid(f string) bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

// Next returns the occurrence after t for the given frequency. Monthly uses
// calendar months, so Jan 31 rolls to the day AddDate normalizes to.
// An unknown frequency returns the zero time.
func Next(t time.Time, frequency string) time.Time {
	switch frequency {
	case Daily:
		return t.AddDate(0, 0, 1)
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Biweekly:
		return t.AddDate(0, 0, 14)
	case Monthly:
		return t.AddDate(0, 1, 0)
	}
	return time.Time{}
}
