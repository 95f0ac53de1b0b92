/*
hierarchy.go - Resource hierarchy index

PURPOSE:
  Answers one question: do reservation units A and B ever compete for the
  same physical capacity at the same time? A unit occupies one or more
  spaces; spaces nest under a single parent; a bookable resource may be
  shared by several spaces. Two units conflict when a space of one
  contains (or is contained by, or equals) a space of the other, or when
  they share a resource.

LIFECYCLE:
  Built once per round from the topology, then static. Rebuilding is
  triggered only by topology changes (see ApplicationRound.TopologyVersion),
  never by allocation activity.

FAILURE MODE:
  A cycle in the space containment tree fails the build fatally rather
  than silently truncating. Cycles indicate a data-integrity bug upstream,
  not a recoverable state.

SEE ALSO:
  - conflict.go: consults ConflictsWith for every candidate slot
  - types.go: Space, Resource, ReservationUnit
*/
package allocation

// =============================================================================
// HIERARCHY INDEX
// =============================================================================

// HierarchyIndex precomputes, per reservation unit:
//   - own: the spaces the unit directly occupies
//   - closure: own plus every ancestor and descendant of an own space
//   - resources: explicit resource links plus resources attached to an
//     own space
//
// Units a and b conflict iff closure(a) intersects own(b) or their
// resource sets intersect. Comparing closure against own (rather than
// closure against closure) keeps sibling spaces under a shared parent
// from conflicting through that parent.
type HierarchyIndex struct {
	own       map[UnitID]map[SpaceID]struct{}
	closure   map[UnitID]map[SpaceID]struct{}
	resources map[UnitID]map[ResourceID]struct{}
}

// Topology is the raw input for an index build.
type Topology struct {
	Spaces    []Space
	Resources []Resource
	Units     []ReservationUnit
}

// BuildHierarchyIndex constructs the index from the topology.
// Returns a HierarchyCycleError if the space containment tree has a cycle.
func BuildHierarchyIndex(topo Topology) (*HierarchyIndex, error) {
	parents := make(map[SpaceID]*SpaceID, len(topo.Spaces))
	children := make(map[SpaceID][]SpaceID, len(topo.Spaces))
	for _, sp := range topo.Spaces {
		parents[sp.ID] = sp.ParentID
		if sp.ParentID != nil {
			children[*sp.ParentID] = append(children[*sp.ParentID], sp.ID)
		}
	}

	if err := detectCycle(parents); err != nil {
		return nil, err
	}

	spaceResources := make(map[SpaceID][]ResourceID)
	for _, res := range topo.Resources {
		if res.SpaceID != nil {
			spaceResources[*res.SpaceID] = append(spaceResources[*res.SpaceID], res.ID)
		}
	}

	idx := &HierarchyIndex{
		own:       make(map[UnitID]map[SpaceID]struct{}, len(topo.Units)),
		closure:   make(map[UnitID]map[SpaceID]struct{}, len(topo.Units)),
		resources: make(map[UnitID]map[ResourceID]struct{}, len(topo.Units)),
	}

	for _, unit := range topo.Units {
		own := make(map[SpaceID]struct{}, len(unit.SpaceIDs))
		closure := make(map[SpaceID]struct{})
		resources := make(map[ResourceID]struct{}, len(unit.ResourceIDs))

		for _, sid := range unit.SpaceIDs {
			own[sid] = struct{}{}
			collectAncestors(sid, parents, closure)
			collectDescendants(sid, children, closure)
			for _, rid := range spaceResources[sid] {
				resources[rid] = struct{}{}
			}
		}
		for _, rid := range unit.ResourceIDs {
			resources[rid] = struct{}{}
		}

		idx.own[unit.ID] = own
		idx.closure[unit.ID] = closure
		idx.resources[unit.ID] = resources
	}

	return idx, nil
}

// ConflictsWith reports whether two units can compete for the same
// physical capacity. Symmetric, and reflexive-true for a == b.
func (idx *HierarchyIndex) ConflictsWith(a, b UnitID) bool {
	if a == b {
		return true
	}
	if intersects(idx.closure[a], idx.own[b]) {
		return true
	}
	return intersects(idx.resources[a], idx.resources[b])
}

// Knows reports whether the unit was part of the topology the index was
// built from.
func (idx *HierarchyIndex) Knows(unit UnitID) bool {
	_, ok := idx.own[unit]
	return ok
}

// =============================================================================
// INTERNALS
// =============================================================================

func collectAncestors(id SpaceID, parents map[SpaceID]*SpaceID, out map[SpaceID]struct{}) {
	for {
		out[id] = struct{}{}
		p := parents[id]
		if p == nil {
			return
		}
		id = *p
		if _, seen := out[id]; seen {
			return
		}
	}
}

func collectDescendants(id SpaceID, children map[SpaceID][]SpaceID, out map[SpaceID]struct{}) {
	out[id] = struct{}{}
	for _, child := range children[id] {
		if _, seen := out[child]; !seen {
			collectDescendants(child, children, out)
		}
	}
}

// detectCycle walks every space's parent chain. The chain must terminate
// at a root before revisiting a space.
func detectCycle(parents map[SpaceID]*SpaceID) error {
	for start := range parents {
		seen := map[SpaceID]struct{}{start: {}}
		id := start
		for {
			p, ok := parents[id]
			if !ok || p == nil {
				break
			}
			id = *p
			if _, dup := seen[id]; dup {
				return &HierarchyCycleError{SpaceID: id}
			}
			seen[id] = struct{}{}
		}
	}
	return nil
}

func intersects[K comparable](a, b map[K]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
