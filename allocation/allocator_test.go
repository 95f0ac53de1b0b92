package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varaus/allocation-engine/allocation"
	"github.com/varaus/allocation-engine/allocation/store"
)

// =============================================================================
// FIXTURE - Sports hall with two courts, evening availability Mon-Fri
// =============================================================================

const (
	unitFullHall allocation.UnitID = 1
	unitCourtA   allocation.UnitID = 2
	unitCourtB   allocation.UnitID = 3
)

type fixture struct {
	store *store.Memory
	locks *allocation.RoundLocks
	alloc *allocation.Allocator

	nextID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	m := store.NewMemory()
	hall := allocation.SpaceID(1)
	m.PutTopology(allocation.Topology{
		Spaces: []allocation.Space{
			{ID: 1, Name: "Main hall"},
			{ID: 2, Name: "Court A", ParentID: &hall},
			{ID: 3, Name: "Court B", ParentID: &hall},
		},
		Units: []allocation.ReservationUnit{
			{ID: unitFullHall, Name: "Full hall", SpaceIDs: []allocation.SpaceID{1}},
			{ID: unitCourtA, Name: "Court A", SpaceIDs: []allocation.SpaceID{2}},
			{ID: unitCourtB, Name: "Court B", SpaceIDs: []allocation.SpaceID{3}},
		},
	})

	begin := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	m.PutRound(allocation.ApplicationRound{
		ID:              1,
		Name:            "Winter season",
		Status:          allocation.RoundOpen,
		Begin:           begin,
		End:             begin.AddDate(0, 9, 0),
		Granularity:     30 * time.Minute,
		TopologyVersion: 1,
	})

	evening := []allocation.TimeWindow{{
		Begin: allocation.NewTimeOfDay(16, 0),
		End:   allocation.NewTimeOfDay(22, 0),
	}}
	id := int64(1)
	for _, unit := range []allocation.UnitID{unitFullHall, unitCourtA, unitCourtB} {
		for wd := allocation.Monday; wd <= allocation.Friday; wd++ {
			m.PutRoundTimeSlot(allocation.RoundTimeSlot{
				ID: id, RoundID: 1, UnitID: unit, Weekday: wd, Windows: evening,
			})
			id++
		}
	}

	locks := allocation.NewRoundLocks()
	indexes := allocation.NewIndexCache(m, time.Minute)
	return &fixture{
		store:  m,
		locks:  locks,
		alloc:  allocation.NewAllocator(m, locks, indexes, zerolog.Nop()),
		nextID: 100,
	}
}

func (f *fixture) id() int64 {
	f.nextID++
	return f.nextID
}

type sectionSpec struct {
	appID        allocation.ApplicationID
	slotsPerWeek int
	minDuration  time.Duration
	ranges       []allocation.SuitableTimeRange
	options      []allocation.ReservationUnitOption
}

// addSection seeds an application (if new) and one section with its
// ranges and options. Range and option IDs are filled in automatically
// unless set.
func (f *fixture) addSection(t *testing.T, spec sectionSpec) allocation.SectionID {
	t.Helper()

	f.store.PutApplication(allocation.Application{
		ID:            spec.appID,
		RoundID:       1,
		ApplicantName: "Club",
		ApplicantType: allocation.ApplicantAssociation,
		Status:        allocation.ApplicationReceived,
		CreatedAt:     time.Now(),
	})

	secID := allocation.SectionID(f.id())
	f.store.PutSection(allocation.ApplicationSection{
		ID:            secID,
		ApplicationID: spec.appID,
		Name:          "Training",
		SlotsPerWeek:  spec.slotsPerWeek,
		MinDuration:   spec.minDuration,
		MaxDuration:   spec.minDuration,
	})
	for _, r := range spec.ranges {
		if r.ID == 0 {
			r.ID = f.id()
		}
		r.SectionID = secID
		f.store.PutSuitableRange(r)
	}
	for _, o := range spec.options {
		if o.ID == 0 {
			o.ID = allocation.OptionID(f.id())
		}
		o.SectionID = secID
		f.store.PutOption(o)
	}
	return secID
}

func (f *fixture) run(t *testing.T) *allocation.AllocationRun {
	t.Helper()
	run, err := f.alloc.AllocateRound(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, allocation.RunCompleted, run.Status)
	return run
}

func (f *fixture) slots(t *testing.T) []allocation.AllocatedTimeSlot {
	t.Helper()
	snap, err := f.store.LoadRoundSnapshot(context.Background(), 1)
	require.NoError(t, err)
	return snap.Slots
}

func primaryRange(wd allocation.Weekday, beginH, endH int) allocation.SuitableTimeRange {
	return allocation.SuitableTimeRange{
		Priority: allocation.PriorityPrimary,
		Weekday:  wd,
		Begin:    allocation.NewTimeOfDay(beginH, 0),
		End:      allocation.NewTimeOfDay(endH, 0),
	}
}

func secondaryRange(wd allocation.Weekday, beginH, endH int) allocation.SuitableTimeRange {
	r := primaryRange(wd, beginH, endH)
	r.Priority = allocation.PrioritySecondary
	return r
}

// =============================================================================
// PLACEMENT
// =============================================================================

func TestAllocatePlacesSlotAtRangeStart(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: 90 * time.Minute,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 20)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	run := f.run(t)
	assert.Equal(t, 1, run.SlotsCreated)
	assert.Equal(t, 1, run.SectionsAllocated)

	slots := f.slots(t)
	require.Len(t, slots, 1)
	assert.Equal(t, allocation.Monday, slots[0].Weekday)
	assert.Equal(t, allocation.NewTimeOfDay(17, 0), slots[0].Begin)
	assert.Equal(t, allocation.NewTimeOfDay(18, 30), slots[0].End)
}

func TestAllocateSharedHierarchy(t *testing.T) {
	// Application 1 asks for the full hall, application 2 for court A at
	// the same time. Court A is inside the hall, so only one can hold
	// Monday evening; the later section falls back to its secondary range.
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: 2 * time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{{UnitID: unitFullHall, PreferenceOrder: 1}},
	})
	f.addSection(t, sectionSpec{
		appID: 2, slotsPerWeek: 1, minDuration: 2 * time.Hour,
		ranges: []allocation.SuitableTimeRange{
			primaryRange(allocation.Monday, 17, 19),
			secondaryRange(allocation.Tuesday, 17, 19),
		},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	run := f.run(t)
	assert.Equal(t, 2, run.SlotsCreated)

	slots := f.slots(t)
	require.Len(t, slots, 2)

	byWeekday := map[allocation.Weekday]allocation.AllocatedTimeSlot{}
	for _, s := range slots {
		byWeekday[s.Weekday] = s
	}
	// Lower application ID wins the contested Monday.
	require.Contains(t, byWeekday, allocation.Monday)
	require.Contains(t, byWeekday, allocation.Tuesday)
}

func TestAllocateSiblingCourtsShareEvening(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: 2 * time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})
	f.addSection(t, sectionSpec{
		appID: 2, slotsPerWeek: 1, minDuration: 2 * time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtB, PreferenceOrder: 1}},
	})

	run := f.run(t)
	assert.Equal(t, 2, run.SlotsCreated)

	for _, s := range f.slots(t) {
		assert.Equal(t, allocation.Monday, s.Weekday)
		assert.Equal(t, allocation.NewTimeOfDay(17, 0), s.Begin)
	}
}

func TestAllocateNoDoubleBooking(t *testing.T) {
	// Three sections all want the same court at the same time; only the
	// first in order can have it.
	f := newFixture(t)
	for app := allocation.ApplicationID(1); app <= 3; app++ {
		f.addSection(t, sectionSpec{
			appID: app, slotsPerWeek: 1, minDuration: 2 * time.Hour,
			ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Wednesday, 18, 20)},
			options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
		})
	}

	run := f.run(t)
	assert.Equal(t, 1, run.SlotsCreated)
	assert.Equal(t, 1, run.SectionsAllocated)
	assert.Equal(t, 3, run.SectionsTotal)
}

func TestAllocateOneSlotPerWeekday(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 2, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{
			primaryRange(allocation.Monday, 16, 18),
			primaryRange(allocation.Monday, 19, 21),
			primaryRange(allocation.Thursday, 16, 18),
		},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	run := f.run(t)
	assert.Equal(t, 2, run.SlotsCreated)

	days := map[allocation.Weekday]int{}
	for _, s := range f.slots(t) {
		days[s.Weekday]++
	}
	assert.Equal(t, 1, days[allocation.Monday])
	assert.Equal(t, 1, days[allocation.Thursday])
}

// =============================================================================
// ORDERING
// =============================================================================

func TestAllocatePreferenceOrder(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{
			{ID: 201, UnitID: unitCourtB, PreferenceOrder: 2},
			{ID: 202, UnitID: unitCourtA, PreferenceOrder: 1},
		},
	})

	f.run(t)
	slots := f.slots(t)
	require.Len(t, slots, 1)
	// The more preferred court A option wins even though it was declared
	// second.
	assert.Equal(t, allocation.OptionID(202), slots[0].OptionID)
}

func TestAllocatePrimaryBeforeSecondary(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{
			secondaryRange(allocation.Monday, 17, 19),
			primaryRange(allocation.Friday, 17, 19),
		},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	f.run(t)
	slots := f.slots(t)
	require.Len(t, slots, 1)
	// Friday primary beats Monday secondary despite the later weekday.
	assert.Equal(t, allocation.Friday, slots[0].Weekday)
}

// =============================================================================
// EXCLUSIONS AND GATES
// =============================================================================

func TestAllocateSkipsRejectedOptions(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{
			{ID: 301, UnitID: unitCourtA, PreferenceOrder: 1, Rejected: true},
			{ID: 302, UnitID: unitCourtB, PreferenceOrder: 2},
		},
	})

	run := f.run(t)
	assert.Equal(t, 1, run.SlotsCreated)

	slots := f.slots(t)
	require.Len(t, slots, 1)
	assert.Equal(t, allocation.OptionID(302), slots[0].OptionID)
}

func TestAllocateSkipsLockedOptions(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{
			{UnitID: unitCourtA, PreferenceOrder: 1, Locked: true},
		},
	})

	run := f.run(t)
	assert.Equal(t, 0, run.SlotsCreated)
	assert.Empty(t, f.slots(t))
}

func TestAllocateRespectsRoundTimeSlots(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{
			// Saturday has no round time slot at all; the morning range
			// falls outside the evening windows.
			primaryRange(allocation.Saturday, 17, 19),
			primaryRange(allocation.Monday, 9, 11),
		},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	run := f.run(t)
	assert.Equal(t, 0, run.SlotsCreated)
}

func TestAllocateRangeShorterThanMinDuration(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: 2 * time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 18)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	run := f.run(t)
	assert.Equal(t, 0, run.SlotsCreated)
	assert.Equal(t, 0, run.SectionsAllocated)
	assert.Equal(t, 1, run.SectionsTotal)
}

// =============================================================================
// IDEMPOTENCE AND CONCURRENCY
// =============================================================================

func TestAllocateRerunIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 2, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{
			primaryRange(allocation.Monday, 17, 19),
			primaryRange(allocation.Wednesday, 17, 19),
		},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	first := f.run(t)
	assert.Equal(t, 2, first.SlotsCreated)
	before := f.slots(t)

	second := f.run(t)
	assert.Equal(t, 0, second.SlotsCreated)
	assert.Equal(t, before, f.slots(t))
}

func TestAllocateConcurrentRunRejected(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	release, err := f.locks.TryAcquire(1)
	require.NoError(t, err)

	_, err = f.alloc.AllocateRound(context.Background(), 1)
	assert.ErrorIs(t, err, allocation.ErrConcurrentModification)
	assert.True(t, allocation.IsRetryable(err))

	release()
	f.run(t)
}

// =============================================================================
// STATUS AND AUDIT
// =============================================================================

func TestAllocateMovesStatusesForward(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	f.run(t)

	snap, err := f.store.LoadRoundSnapshot(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, allocation.RoundInAllocation, snap.Round.Status)
	require.Len(t, snap.Applications, 1)
	assert.Equal(t, allocation.ApplicationInAllocation, snap.Applications[0].Status)
}

func TestAllocateRecordsRuns(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 1, minDuration: time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Monday, 17, 19)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})

	run := f.run(t)

	runs, err := f.store.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, allocation.RunCompleted, runs[0].Status)
	require.NotNil(t, runs[0].CompletedAt)
}

func TestAllocateUnknownRound(t *testing.T) {
	f := newFixture(t)
	_, err := f.alloc.AllocateRound(context.Background(), 42)
	assert.ErrorIs(t, err, allocation.ErrRoundNotFound)
}

func TestBuildRoundReport(t *testing.T) {
	f := newFixture(t)
	f.addSection(t, sectionSpec{
		appID: 1, slotsPerWeek: 2, minDuration: time.Hour,
		ranges: []allocation.SuitableTimeRange{
			primaryRange(allocation.Monday, 17, 19),
			primaryRange(allocation.Tuesday, 17, 19),
		},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtA, PreferenceOrder: 1}},
	})
	f.addSection(t, sectionSpec{
		appID: 2, slotsPerWeek: 2, minDuration: time.Hour,
		ranges:  []allocation.SuitableTimeRange{primaryRange(allocation.Wednesday, 17, 19)},
		options: []allocation.ReservationUnitOption{{UnitID: unitCourtB, PreferenceOrder: 1}},
	})

	f.run(t)

	snap, err := f.store.LoadRoundSnapshot(context.Background(), 1)
	require.NoError(t, err)
	report := allocation.BuildRoundReport(snap)

	assert.Equal(t, 2, report.SectionsTotal)
	assert.Equal(t, 1, report.SectionsAllocated)
	assert.Equal(t, 1, report.SectionsPartial)
	assert.Equal(t, 3, report.SlotsAllocated)
	assert.Equal(t, 4, report.SlotsDesired)
	assert.Equal(t, "75", report.AllocationRate.String())
	assert.Equal(t, "50", report.SectionFillRate.String())
}
