package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHallDetector(t *testing.T, slots []AllocatedTimeSlot, optionUnits map[OptionID]UnitID) *ConflictDetector {
	t.Helper()
	idx, err := BuildHierarchyIndex(hallTopology())
	require.NoError(t, err)
	return NewConflictDetector(idx, slots, optionUnits)
}

func TestHasConflictAcrossHierarchy(t *testing.T) {
	// Court A holds Monday 17:00-19:00 through option 10.
	slots := []AllocatedTimeSlot{
		{ID: 1, OptionID: 10, Weekday: Monday, Begin: NewTimeOfDay(17, 0), End: NewTimeOfDay(19, 0)},
	}
	cd := newHallDetector(t, slots, map[OptionID]UnitID{10: 2})

	// The full hall contains court A, so the same time conflicts.
	assert.True(t, cd.HasConflict(1, Monday, NewTimeOfDay(18, 0), NewTimeOfDay(20, 0), NoExclusion))

	// Court B is a sibling: free to book the same time.
	assert.False(t, cd.HasConflict(3, Monday, NewTimeOfDay(17, 0), NewTimeOfDay(19, 0), NoExclusion))

	// Same unit, adjacent interval: half-open boundary, no conflict.
	assert.False(t, cd.HasConflict(2, Monday, NewTimeOfDay(19, 0), NewTimeOfDay(21, 0), NoExclusion))

	// Same unit, another weekday.
	assert.False(t, cd.HasConflict(2, Tuesday, NewTimeOfDay(17, 0), NewTimeOfDay(19, 0), NoExclusion))
}

func TestHasConflictExcludesSlot(t *testing.T) {
	slots := []AllocatedTimeSlot{
		{ID: 7, OptionID: 10, Weekday: Monday, Begin: NewTimeOfDay(17, 0), End: NewTimeOfDay(19, 0)},
	}
	cd := newHallDetector(t, slots, map[OptionID]UnitID{10: 2})

	// A slot re-evaluated against the round must not conflict with itself.
	assert.True(t, cd.HasConflict(2, Monday, NewTimeOfDay(17, 0), NewTimeOfDay(19, 0), NoExclusion))
	assert.False(t, cd.HasConflict(2, Monday, NewTimeOfDay(17, 0), NewTimeOfDay(19, 0), 7))
}

func TestAffectingSlots(t *testing.T) {
	slots := []AllocatedTimeSlot{
		{ID: 1, OptionID: 10, Weekday: Monday, Begin: NewTimeOfDay(17, 0), End: NewTimeOfDay(19, 0)},
		{ID: 2, OptionID: 11, Weekday: Monday, Begin: NewTimeOfDay(18, 0), End: NewTimeOfDay(20, 0)},
		{ID: 3, OptionID: 12, Weekday: Monday, Begin: NewTimeOfDay(17, 0), End: NewTimeOfDay(19, 0)},
	}
	// Option 10 on court A, 11 on the full hall, 12 on the annex.
	cd := newHallDetector(t, slots, map[OptionID]UnitID{10: 2, 11: 1, 12: 4})

	affecting := cd.AffectingSlots(2, Monday, NewTimeOfDay(18, 30), NewTimeOfDay(19, 30))
	require.Len(t, affecting, 2)
	assert.Equal(t, SlotID(1), affecting[0].ID)
	assert.Equal(t, SlotID(2), affecting[1].ID)
}

func TestDetectorSkipsOrphanSlots(t *testing.T) {
	slots := []AllocatedTimeSlot{
		{ID: 1, OptionID: 99, Weekday: Monday, Begin: NewTimeOfDay(17, 0), End: NewTimeOfDay(19, 0)},
	}
	cd := newHallDetector(t, slots, map[OptionID]UnitID{})

	assert.False(t, cd.HasConflict(2, Monday, NewTimeOfDay(17, 0), NewTimeOfDay(19, 0), NoExclusion))
}

func TestExtendMakesSlotVisible(t *testing.T) {
	cd := newHallDetector(t, nil, map[OptionID]UnitID{})

	assert.False(t, cd.HasConflict(2, Monday, NewTimeOfDay(17, 0), NewTimeOfDay(19, 0), NoExclusion))

	cd.Extend(AllocatedTimeSlot{
		OptionID: 10, Weekday: Monday, Begin: NewTimeOfDay(17, 0), End: NewTimeOfDay(19, 0),
	}, 2)

	assert.True(t, cd.HasConflict(2, Monday, NewTimeOfDay(17, 0), NewTimeOfDay(19, 0), NoExclusion))
	assert.True(t, cd.HasConflict(1, Monday, NewTimeOfDay(18, 0), NewTimeOfDay(20, 0), NoExclusion))
}
