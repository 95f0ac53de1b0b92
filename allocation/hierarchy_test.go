package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spaceRef(id SpaceID) *SpaceID { return &id }

// hallTopology models a sports hall divided into two courts, a separate
// annex room, plus a shared scoreboard resource used by both courts.
func hallTopology() Topology {
	return Topology{
		Spaces: []Space{
			{ID: 1, Name: "Main hall"},
			{ID: 2, Name: "Court A", ParentID: spaceRef(1)},
			{ID: 3, Name: "Court B", ParentID: spaceRef(1)},
			{ID: 4, Name: "Annex"},
		},
		Resources: []Resource{
			{ID: 1, Name: "Scoreboard"},
		},
		Units: []ReservationUnit{
			{ID: 1, Name: "Full hall", SpaceIDs: []SpaceID{1}},
			{ID: 2, Name: "Court A", SpaceIDs: []SpaceID{2}},
			{ID: 3, Name: "Court B", SpaceIDs: []SpaceID{3}},
			{ID: 4, Name: "Annex", SpaceIDs: []SpaceID{4}},
			{ID: 5, Name: "Court A with scoreboard", SpaceIDs: []SpaceID{2}, ResourceIDs: []ResourceID{1}},
			{ID: 6, Name: "Court B with scoreboard", SpaceIDs: []SpaceID{3}, ResourceIDs: []ResourceID{1}},
		},
	}
}

func TestHierarchyConflicts(t *testing.T) {
	idx, err := BuildHierarchyIndex(hallTopology())
	require.NoError(t, err)

	tests := []struct {
		name     string
		a, b     UnitID
		conflict bool
	}{
		{"unit conflicts with itself", 2, 2, true},
		{"parent space conflicts with child", 1, 2, true},
		{"child space conflicts with parent", 2, 1, true},
		{"sibling courts do not conflict", 2, 3, false},
		{"unrelated spaces do not conflict", 2, 4, false},
		{"whole hall does not reach the annex", 1, 4, false},
		{"shared resource conflicts across siblings", 5, 6, true},
		{"resource-less sibling unaffected by scoreboard", 2, 6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.conflict, idx.ConflictsWith(tt.a, tt.b))
			// Conflict is symmetric.
			assert.Equal(t, tt.conflict, idx.ConflictsWith(tt.b, tt.a))
		})
	}
}

func TestHierarchyDeepNesting(t *testing.T) {
	// building > wing > room: the room competes with every ancestor.
	topo := Topology{
		Spaces: []Space{
			{ID: 1, Name: "Building"},
			{ID: 2, Name: "Wing", ParentID: spaceRef(1)},
			{ID: 3, Name: "Room", ParentID: spaceRef(2)},
		},
		Units: []ReservationUnit{
			{ID: 1, SpaceIDs: []SpaceID{1}},
			{ID: 2, SpaceIDs: []SpaceID{2}},
			{ID: 3, SpaceIDs: []SpaceID{3}},
		},
	}
	idx, err := BuildHierarchyIndex(topo)
	require.NoError(t, err)

	assert.True(t, idx.ConflictsWith(1, 3))
	assert.True(t, idx.ConflictsWith(3, 1))
	assert.True(t, idx.ConflictsWith(2, 3))
}

func TestHierarchyCycleIsFatal(t *testing.T) {
	topo := Topology{
		Spaces: []Space{
			{ID: 1, ParentID: spaceRef(2)},
			{ID: 2, ParentID: spaceRef(1)},
		},
		Units: []ReservationUnit{{ID: 1, SpaceIDs: []SpaceID{1}}},
	}

	_, err := BuildHierarchyIndex(topo)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHierarchyCycle)
}

func TestHierarchyKnows(t *testing.T) {
	idx, err := BuildHierarchyIndex(hallTopology())
	require.NoError(t, err)

	assert.True(t, idx.Knows(1))
	assert.False(t, idx.Knows(99))
}
