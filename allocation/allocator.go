/*
allocator.go - The placement control loop

PURPOSE:
  Walks unresolved sections of one application round in a defined order,
  attempts to place each against its preferred units and times, and
  records the outcome: allocated slots, or a section left under its
  weekly target (a normal, reportable result, never a fault).

ALGORITHM (greedy, first-fit, priority-and-preference order):
  For one section:
    1. Iterate reservation unit options in applicant preference order,
       skipping rejected and locked options.
    2. For each option, iterate the section's suitable time ranges
       ordered primary-before-secondary, then weekday, then begin time.
    3. For each range, the candidate is [begin, begin+minDuration) on the
       grid. It must fit inside the range, fall inside the unit's open
       round time slot for that weekday, and pass the conflict detector.
    4. On the first fit, commit the slot and decrement the remaining
       weekly need; continue across remaining ranges until the need is
       satisfied or everything is exhausted.

  Ties are broken purely by declared order, never by arrival time or
  identifier generation, so re-running on unchanged input is idempotent.
  A section receives at most one slot per weekday.

CONSISTENCY:
  The whole run works on one snapshot and commits all-or-nothing in a
  single store transaction, under a round-scoped lock. Interleaved runs
  on the same round would each look conflict-free against a stale
  snapshot, so concurrent acquisition fails with
  ErrConcurrentModification instead.

SEE ALSO:
  - conflict.go: the go/no-go predicate
  - status.go: derived section status after the run
  - report.go: round summary over the run's outcome
*/
package allocation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocator runs request-triggered allocation batches over one round.
type Allocator struct {
	Store   TxStore
	Locks   *RoundLocks
	Indexes *IndexCache
	Logger  zerolog.Logger

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewAllocator(store TxStore, locks *RoundLocks, indexes *IndexCache, logger zerolog.Logger) *Allocator {
	return &Allocator{
		Store:   store,
		Locks:   locks,
		Indexes: indexes,
		Logger:  logger,
		Now:     time.Now,
	}
}

// AllocateRound executes one allocation batch for the round.
// The run either commits whole or fails atomically; partial commits are
// never visible. Returns the run record either way.
func (a *Allocator) AllocateRound(ctx context.Context, roundID RoundID) (*AllocationRun, error) {
	release, err := a.Locks.TryAcquire(roundID)
	if err != nil {
		return nil, err
	}
	defer release()

	run := AllocationRun{
		ID:        uuid.NewString(),
		RoundID:   roundID,
		Status:    RunRunning,
		StartedAt: a.Now(),
	}
	if err := a.Store.SaveRun(ctx, run); err != nil {
		return nil, err
	}

	outcome, err := a.allocate(ctx, roundID)
	now := a.Now()
	run.CompletedAt = &now
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		if saveErr := a.Store.SaveRun(ctx, run); saveErr != nil {
			a.Logger.Error().Err(saveErr).Str("run", run.ID).Msg("failed to record failed run")
		}
		return &run, err
	}

	run.Status = RunCompleted
	run.SectionsTotal = outcome.sectionsTotal
	run.SectionsAllocated = outcome.sectionsAllocated
	run.SectionsPartial = outcome.sectionsPartial
	run.SlotsCreated = len(outcome.newSlots)
	if err := a.Store.SaveRun(ctx, run); err != nil {
		return &run, err
	}

	a.Logger.Info().
		Str("run", run.ID).
		Int64("round", int64(roundID)).
		Int("sections", run.SectionsTotal).
		Int("slots_created", run.SlotsCreated).
		Msg("allocation run completed")
	return &run, nil
}

type runOutcome struct {
	newSlots          []AllocatedTimeSlot
	sectionsTotal     int
	sectionsAllocated int
	sectionsPartial   int
}

func (a *Allocator) allocate(ctx context.Context, roundID RoundID) (*runOutcome, error) {
	snap, err := a.Store.LoadRoundSnapshot(ctx, roundID)
	if err != nil {
		return nil, err
	}

	index, err := a.Indexes.IndexFor(ctx, snap.Round)
	if err != nil {
		// A hierarchy cycle blocks all allocation for the round.
		return nil, err
	}

	grid, err := NewTimeGrid(snap.Round.Granularity)
	if err != nil {
		return nil, err
	}

	plan, err := planRound(snap, index, grid)
	if err != nil {
		return nil, err
	}

	// Commit everything in one transaction: new slots plus the status
	// bump for applications entering allocation.
	err = a.Store.WithTx(ctx, func(tx Store) error {
		if len(plan.newSlots) > 0 {
			if _, err := tx.AppendSlots(ctx, plan.newSlots); err != nil {
				return err
			}
		}
		for _, appID := range plan.appsEnteringAllocation {
			if err := tx.SetApplicationStatus(ctx, appID, ApplicationInAllocation); err != nil {
				return err
			}
		}
		if snap.Round.Status == RoundOpen {
			if err := tx.SetRoundStatus(ctx, roundID, RoundInAllocation); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &plan.runOutcome, nil
}

// =============================================================================
// PLANNING - Pure placement over the snapshot, no I/O
// =============================================================================

type roundPlan struct {
	runOutcome
	appsEnteringAllocation []ApplicationID
}

// planRound computes the full set of new slots for the snapshot.
func planRound(snap *RoundSnapshot, index *HierarchyIndex, grid *TimeGrid) (*roundPlan, error) {
	detector := NewConflictDetector(index, snap.Slots, snap.OptionUnits())

	sections := allocatableSections(snap)
	optionsBySection := groupOptions(snap.Options)
	rangesBySection := groupRanges(snap.SuitableRanges)
	roundSlots := groupRoundSlots(snap.RoundTimeSlots)
	slotsBySection := groupSlotsBySection(snap)

	plan := &roundPlan{}
	plan.sectionsTotal = len(sections)
	plan.appsEnteringAllocation = appsEnteringAllocation(snap)

	for _, section := range sections {
		existing := slotsBySection[section.ID]
		placed, err := planSection(sectionPlanInput{
			section:    section,
			options:    optionsBySection[section.ID],
			ranges:     rangesBySection[section.ID],
			roundSlots: roundSlots,
			existing:   existing,
			detector:   detector,
			grid:       grid,
		})
		if err != nil {
			return nil, err
		}

		total := len(existing) + len(placed)
		switch {
		case total >= section.SlotsPerWeek:
			plan.sectionsAllocated++
		case total > 0:
			plan.sectionsPartial++
		}
		plan.newSlots = append(plan.newSlots, placed...)
	}
	return plan, nil
}

type sectionPlanInput struct {
	section    ApplicationSection
	options    []ReservationUnitOption
	ranges     []SuitableTimeRange
	roundSlots map[UnitID]map[Weekday]RoundTimeSlot
	existing   []AllocatedTimeSlot
	detector   *ConflictDetector
	grid       *TimeGrid
}

// planSection places as many slots as the section still needs.
func planSection(in sectionPlanInput) ([]AllocatedTimeSlot, error) {
	remaining := in.section.SlotsPerWeek - len(in.existing)
	if remaining <= 0 {
		return nil, nil
	}

	// One slot per weekday: a weekly recurring need maps to at most one
	// reservation on any given day.
	taken := make(map[Weekday]bool, len(in.existing))
	for _, s := range in.existing {
		taken[s.Weekday] = true
	}

	minLen := TimeOfDay(in.section.MinDuration / time.Minute)
	if rem := minLen % TimeOfDay(in.grid.Granularity()/time.Minute); rem != 0 {
		minLen += TimeOfDay(in.grid.Granularity()/time.Minute) - rem
	}

	var placed []AllocatedTimeSlot

	for _, opt := range sortedOptions(in.options) {
		if remaining == 0 {
			break
		}
		if opt.Rejected || opt.Locked {
			continue
		}

		for _, r := range sortedRanges(in.ranges) {
			if remaining == 0 {
				break
			}
			if taken[r.Weekday] {
				continue
			}

			iv, err := in.grid.Normalize(r.Weekday, r.Begin, r.End)
			if err != nil {
				// Malformed ranges are rejected at input validation;
				// one slipping through must not sink the whole round.
				continue
			}

			begin := iv.Start
			end := begin + minLen
			if end > iv.End {
				continue // range shorter than the minimum duration
			}

			// No round time slot for this weekday: the option simply
			// contributes nothing here. Not an error.
			daySlot, ok := in.roundSlots[opt.UnitID][r.Weekday]
			if !ok || !daySlot.Admits(begin, end) {
				continue
			}

			if in.detector.HasConflict(opt.UnitID, r.Weekday, begin, end, NoExclusion) {
				continue
			}

			slot := AllocatedTimeSlot{
				OptionID: opt.ID,
				Weekday:  r.Weekday,
				Begin:    begin,
				End:      end,
			}
			placed = append(placed, slot)
			in.detector.Extend(slot, opt.UnitID)
			taken[r.Weekday] = true
			remaining--
		}
	}
	return placed, nil
}

// =============================================================================
// ORDERING - Deterministic, declared, never storage iteration order
// =============================================================================

// allocatableSections returns the round's sections in (application ID,
// section ID) order, restricted to applications that take part in
// allocation.
func allocatableSections(snap *RoundSnapshot) []ApplicationSection {
	eligible := make(map[ApplicationID]bool, len(snap.Applications))
	for _, app := range snap.Applications {
		if app.Status == ApplicationReceived || app.Status == ApplicationInAllocation {
			eligible[app.ID] = true
		}
	}

	var sections []ApplicationSection
	for _, s := range snap.Sections {
		if eligible[s.ApplicationID] {
			sections = append(sections, s)
		}
	}
	sort.Slice(sections, func(i, j int) bool {
		if sections[i].ApplicationID != sections[j].ApplicationID {
			return sections[i].ApplicationID < sections[j].ApplicationID
		}
		return sections[i].ID < sections[j].ID
	})
	return sections
}

func appsEnteringAllocation(snap *RoundSnapshot) []ApplicationID {
	var ids []ApplicationID
	for _, app := range snap.Applications {
		if app.Status == ApplicationReceived {
			ids = append(ids, app.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedOptions(options []ReservationUnitOption) []ReservationUnitOption {
	out := append([]ReservationUnitOption(nil), options...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].PreferenceOrder != out[j].PreferenceOrder {
			return out[i].PreferenceOrder < out[j].PreferenceOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sortedRanges orders primary before secondary, then weekday, then begin
// time, then ID as the final tiebreak.
func sortedRanges(ranges []SuitableTimeRange) []SuitableTimeRange {
	out := append([]SuitableTimeRange(nil), ranges...)
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].Priority, out[j].Priority
		if pi != pj {
			return pi == PriorityPrimary
		}
		if out[i].Weekday != out[j].Weekday {
			return out[i].Weekday < out[j].Weekday
		}
		if out[i].Begin != out[j].Begin {
			return out[i].Begin < out[j].Begin
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// GROUPING HELPERS
// =============================================================================

func groupOptions(options []ReservationUnitOption) map[SectionID][]ReservationUnitOption {
	m := make(map[SectionID][]ReservationUnitOption)
	for _, o := range options {
		m[o.SectionID] = append(m[o.SectionID], o)
	}
	return m
}

func groupRanges(ranges []SuitableTimeRange) map[SectionID][]SuitableTimeRange {
	m := make(map[SectionID][]SuitableTimeRange)
	for _, r := range ranges {
		m[r.SectionID] = append(m[r.SectionID], r)
	}
	return m
}

func groupRoundSlots(slots []RoundTimeSlot) map[UnitID]map[Weekday]RoundTimeSlot {
	m := make(map[UnitID]map[Weekday]RoundTimeSlot)
	for _, s := range slots {
		if m[s.UnitID] == nil {
			m[s.UnitID] = make(map[Weekday]RoundTimeSlot)
		}
		m[s.UnitID][s.Weekday] = s
	}
	return m
}

func groupSlotsBySection(snap *RoundSnapshot) map[SectionID][]AllocatedTimeSlot {
	optionSection := make(map[OptionID]SectionID, len(snap.Options))
	for _, o := range snap.Options {
		optionSection[o.ID] = o.SectionID
	}
	m := make(map[SectionID][]AllocatedTimeSlot)
	for _, s := range snap.Slots {
		sec, ok := optionSection[s.OptionID]
		if !ok {
			continue
		}
		m[sec] = append(m[sec], s)
	}
	return m
}
