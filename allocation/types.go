/*
Package allocation provides the seasonal application allocation engine.

PURPOSE:
  This package contains the domain types and algorithms for matching
  applicants, each requesting a recurring weekly time budget across a
  season, to concrete reservable time slots on shared reservation units
  without double-booking any underlying physical resource.

KEY CONCEPTS IN THIS FILE (types.go):
  - Application/ApplicationSection: the applicant's declared need
  - ReservationUnitOption: section-to-unit binding with preference order
  - SuitableTimeRange: acceptable weekday/time window with a priority tier
  - AllocatedTimeSlot: the engine's committed output
  - RoundTimeSlot: per-unit availability configuration

DESIGN PRINCIPLES:
  1. Closed enums: every status field is a typed constant set, never a
     free-form string.
  2. Derived state: section status is always computed from options and
     slots, never stored.
  3. Opaque identifiers: the relational store keys everything by int64.
  4. Determinism: all orderings are declared, never map-iteration order.

SEE ALSO:
  - timegrid.go: interval normalization and half-open overlap
  - hierarchy.go: which units compete for physical capacity
  - allocator.go: the placement control loop
  - ledger.go: rejection/restoration bookkeeping
*/
package allocation

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	RoundID       int64
	ApplicationID int64
	SectionID     int64
	OptionID      int64
	SlotID        int64
	UnitID        int64
	SpaceID       int64
	ResourceID    int64
)

// =============================================================================
// ENUMERATIONS - Closed sets, never free-form strings
// =============================================================================

type ApplicantType string

const (
	ApplicantIndividual  ApplicantType = "individual"
	ApplicantCompany     ApplicantType = "company"
	ApplicantAssociation ApplicantType = "association"
	ApplicantCommunity   ApplicantType = "community"
)

type ApplicationStatus string

const (
	ApplicationDraft        ApplicationStatus = "draft"
	ApplicationReceived     ApplicationStatus = "received"
	ApplicationInAllocation ApplicationStatus = "in_allocation"
	ApplicationHandled      ApplicationStatus = "handled"
	ApplicationResultsSent  ApplicationStatus = "results_sent"
	ApplicationCancelled    ApplicationStatus = "cancelled"
	ApplicationExpired      ApplicationStatus = "expired"
)

// SectionStatus is always derived from option/slot state; see status.go.
type SectionStatus string

const (
	SectionUnallocated        SectionStatus = "unallocated"
	SectionInAllocation       SectionStatus = "in_allocation"
	SectionPartiallyAllocated SectionStatus = "partially_allocated"
	SectionAllocated          SectionStatus = "allocated"
	SectionHandled            SectionStatus = "handled"
	SectionRejected           SectionStatus = "rejected"
)

// Priority is the tier of a suitable time range. Primary ranges are always
// attempted before secondary ones.
type Priority string

const (
	PriorityPrimary   Priority = "primary"
	PrioritySecondary Priority = "secondary"
)

// Weekday is Monday-first, matching the allocation iteration order.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [...]string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "invalid"
	}
	return weekdayNames[d]
}

func (d Weekday) Valid() bool { return d >= Monday && d <= Sunday }

// ParseWeekday parses a lowercase weekday name.
func ParseWeekday(s string) (Weekday, bool) {
	for i, n := range weekdayNames {
		if n == s {
			return Weekday(i), true
		}
	}
	return 0, false
}

// =============================================================================
// TIME OF DAY - Minutes from midnight
// =============================================================================

// TimeOfDay is a clock time expressed as minutes from midnight.
// 24:00 (1440) is a legal end-of-day boundary for interval ends.
type TimeOfDay int

const (
	MinutesPerDay           = 24 * 60
	EndOfDay      TimeOfDay = MinutesPerDay
)

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseTimeOfDay parses "15:04". "24:00" is accepted as end-of-day.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "24:00" {
		return EndOfDay, nil
	}
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, &InvalidIntervalError{Reason: "malformed time of day: " + s}
	}
	return NewTimeOfDay(parsed.Hour(), parsed.Minute()), nil
}

// =============================================================================
// APPLICATION ROUND - Bounded allocation period
// =============================================================================

type RoundStatus string

const (
	RoundOpen         RoundStatus = "open"
	RoundInAllocation RoundStatus = "in_allocation"
	RoundHandled      RoundStatus = "handled"
)

// ApplicationRound is a bounded period during which applications are
// accepted and later allocated.
type ApplicationRound struct {
	ID     RoundID
	Name   string
	Status RoundStatus

	// Reservations produced by this round fall inside [Begin, End].
	Begin time.Time
	End   time.Time

	// Granularity is the minimum addressable interval (e.g. 15/30/60 min).
	Granularity time.Duration

	// TopologyVersion is bumped whenever the space/resource/unit topology
	// changes, invalidating any cached hierarchy index for the round.
	TopologyVersion int64
}

// Ended reports whether the round's reservation period is over.
func (r ApplicationRound) Ended(now time.Time) bool {
	return now.After(r.End)
}

// =============================================================================
// APPLICATION - One applicant's submission for one round
// =============================================================================

type Application struct {
	ID            ApplicationID
	RoundID       RoundID
	ApplicantName string
	ApplicantType ApplicantType
	Status        ApplicationStatus
	WorkingMemo   string

	CreatedAt time.Time
	SentAt    *time.Time
}

// Editable reports whether the applicant may still mutate content.
// After send, only staff fields (status, working memo) change.
func (a Application) Editable() bool {
	return a.Status == ApplicationDraft
}

// =============================================================================
// APPLICATION SECTION - One named recurring need
// =============================================================================

type ApplicationSection struct {
	ID            SectionID
	ApplicationID ApplicationID
	Name          string

	// SlotsPerWeek is the desired number of weekly reservations (>= 1).
	SlotsPerWeek int

	// Duration bounds for a single reservation.
	MinDuration time.Duration
	MaxDuration time.Duration

	// Reservations may only occur inside [Begin, End].
	Begin time.Time
	End   time.Time

	ParticipantCount int
	AgeGroup         string
	Purpose          string
}

// SuitableTimeRange is an applicant-declared acceptable weekday/time window.
type SuitableTimeRange struct {
	ID        int64
	SectionID SectionID
	Priority  Priority
	Weekday   Weekday
	Begin     TimeOfDay
	End       TimeOfDay
}

// ReservationUnitOption binds a section to one candidate reservation unit.
//
// INVARIANTS:
//   - An option with Rejected=true must never gain an allocated time slot
//     while the flag holds.
//   - Locked is independent of Rejected: a locked option is skipped by
//     future allocator passes but keeps any slot it already holds.
type ReservationUnitOption struct {
	ID        OptionID
	SectionID SectionID
	UnitID    UnitID

	// PreferenceOrder is the applicant's ranking among their chosen units.
	// Lower is more preferred.
	PreferenceOrder int

	Locked   bool
	Rejected bool
}

// AllocatedTimeSlot is the engine's committed output: one concrete
// weekday/time assignment bound to exactly one option.
type AllocatedTimeSlot struct {
	ID       SlotID
	OptionID OptionID
	Weekday  Weekday
	Begin    TimeOfDay
	End      TimeOfDay
}

// =============================================================================
// ROUND TIME SLOT - Per-unit availability configuration
// =============================================================================

// RoundTimeSlot bounds what the allocator may ever propose for one unit on
// one weekday. Configuration, not engine output. A missing RoundTimeSlot for
// a weekday means the unit is not reservable that day.
type RoundTimeSlot struct {
	ID      int64
	RoundID RoundID
	UnitID  UnitID
	Weekday Weekday
	Closed  bool
	Windows []TimeWindow
}

// TimeWindow is one contiguous open span within a round time slot.
type TimeWindow struct {
	Begin TimeOfDay
	End   TimeOfDay
}

// Admits reports whether the half-open interval [begin, end) falls entirely
// inside one of the slot's open windows.
func (rts RoundTimeSlot) Admits(begin, end TimeOfDay) bool {
	if rts.Closed {
		return false
	}
	for _, w := range rts.Windows {
		if begin >= w.Begin && end <= w.End {
			return true
		}
	}
	return false
}

// =============================================================================
// TOPOLOGY - Spaces, resources, units
// =============================================================================

// Space is a physical space. Spaces nest under a single parent.
type Space struct {
	ID       SpaceID
	Name     string
	ParentID *SpaceID
}

// Resource is a bookable resource usable by multiple spaces.
type Resource struct {
	ID      ResourceID
	Name    string
	SpaceID *SpaceID
}

// ReservationUnit occupies one or more spaces and zero or more resources.
type ReservationUnit struct {
	ID          UnitID
	Name        string
	SpaceIDs    []SpaceID
	ResourceIDs []ResourceID
}
