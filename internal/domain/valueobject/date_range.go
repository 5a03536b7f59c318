package valueobject

import (
	"errors"
	"time"
)

// Day truncates t to its calendar date in UTC. Snapshots are keyed by the
// value this returns.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateRange is an inclusive calendar-date range (Value Object).
type DateRange struct {
	start time.Time
	end   time.Time
}

// NewDateRange creates a DateRange with validation. Inputs are truncated to
// calendar dates.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, errors.New("start and end dates cannot be zero")
	}

	start, end = Day(start), Day(end)
	if start.After(end) {
		return DateRange{}, errors.New("start date must not be after end date")
	}

	return DateRange{start: start, end: end}, nil
}

// NewDateRangeFromDays covers the trailing N days up to today (inclusive).
func NewDateRangeFromDays(days int) (DateRange, error) {
	if days <= 0 {
		return DateRange{}, errors.New("days must be positive")
	}

	end := Day(time.Now())
	return DateRange{start: end.AddDate(0, 0, -(days - 1)), end: end}, nil
}

func (r DateRange) Start() time.Time {
	return r.start
}

func (r DateRange) End() time.Time {
	return r.end
}

// Days returns the number of calendar dates covered, inclusive of both ends.
func (r DateRange) Days() int {
	return int(r.end.Sub(r.start).Hours()/24) + 1
}

// Contains reports whether the given time's calendar date falls in the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(r.start) && !d.After(r.end)
}
