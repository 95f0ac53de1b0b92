/*
timegrid.go - Interval normalization and half-open overlap

PURPOSE:
  Canonicalizes applicant suitability windows and unit availability
  windows into discrete weekday/time-of-day intervals at the round's
  minimum granularity, and decides whether two intervals overlap.

HALF-OPEN SEMANTICS:
  Every interval is [start, end). This convention is load-bearing:
  a slot ending at 10:00 and one starting at 10:00 never conflict.

NORMALIZATION:
  Begin snaps DOWN to the grid, end snaps UP. A 15-minute grid turns
  9:10-9:50 into 9:00-10:00. Zero or negative length is rejected with
  ErrInvalidInterval before any snapping.

SEE ALSO:
  - conflict.go: uses Overlaps for the double-booking predicate
  - allocator.go: uses Normalize on suitable time ranges
*/
package allocation

import "time"

// =============================================================================
// TIME GRID
// =============================================================================

// TimeGrid snaps intervals to the round's minimum addressable interval.
type TimeGrid struct {
	granularity TimeOfDay
}

// MinGranularity is the smallest start interval the engine supports.
const MinGranularity = 5 * time.Minute

// NewTimeGrid creates a grid for the given granularity. The granularity
// must be at least MinGranularity and divide a day evenly.
func NewTimeGrid(granularity time.Duration) (*TimeGrid, error) {
	g := TimeOfDay(granularity / time.Minute)
	if granularity < MinGranularity || granularity%time.Minute != 0 {
		return nil, &InvalidIntervalError{Reason: "granularity must be a whole number of minutes >= 5"}
	}
	if MinutesPerDay%int(g) != 0 {
		return nil, &InvalidIntervalError{Reason: "granularity must divide 24 hours evenly"}
	}
	return &TimeGrid{granularity: g}, nil
}

// Granularity returns the grid step as a duration.
func (tg *TimeGrid) Granularity() time.Duration {
	return time.Duration(tg.granularity) * time.Minute
}

// Interval is a normalized half-open [Start, End) span on one weekday.
type Interval struct {
	Weekday Weekday
	Start   TimeOfDay
	End     TimeOfDay
}

// Normalize canonicalizes (weekday, begin, end) onto the grid.
// Begin snaps down, end snaps up. Zero-length and negative-length inputs,
// out-of-range times and invalid weekdays are rejected.
func (tg *TimeGrid) Normalize(weekday Weekday, begin, end TimeOfDay) (Interval, error) {
	switch {
	case !weekday.Valid():
		return Interval{}, &InvalidIntervalError{Weekday: weekday, Begin: begin, End: end, Reason: "invalid weekday"}
	case begin < 0 || end > EndOfDay:
		return Interval{}, &InvalidIntervalError{Weekday: weekday, Begin: begin, End: end, Reason: "time of day out of range"}
	case end <= begin:
		return Interval{}, &InvalidIntervalError{Weekday: weekday, Begin: begin, End: end, Reason: "end must be after begin"}
	}

	g := tg.granularity
	start := (begin / g) * g
	stop := ((end + g - 1) / g) * g
	return Interval{Weekday: weekday, Start: start, End: stop}, nil
}

// Duration returns the interval's length.
func (iv Interval) Duration() time.Duration {
	return time.Duration(iv.End-iv.Start) * time.Minute
}

// Overlaps reports whether two normalized intervals intersect under
// half-open semantics: [a.Start, a.End) ∩ [b.Start, b.End) ≠ ∅.
// Intervals on different weekdays never overlap.
func (iv Interval) Overlaps(other Interval) bool {
	if iv.Weekday != other.Weekday {
		return false
	}
	return iv.Start < other.End && other.Start < iv.End
}
