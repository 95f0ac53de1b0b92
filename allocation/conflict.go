/*
conflict.go - Double-booking detection

PURPOSE:
  Given a candidate (reservation unit, weekday, start, end), decide
  whether it collides with an already-allocated slot anywhere in the
  resource hierarchy reachable from that unit, within the round's period.

DESIGN:
  The detector operates on a pre-loaded snapshot of the round's allocated
  slots. No I/O happens inside the hot conflict-check loop; the slot set
  is fetched once per run, not re-fetched per candidate.

  The same hierarchy/overlap primitive serves two read paths:
  - HasConflict: the allocator's go/no-go predicate (short-circuits)
  - AffectingSlots: the ad-hoc lookup exposed for direct reservation
    conflict checks

CONCURRENCY:
  Safe for concurrent readers. Callers whose unit sets intersect in the
  hierarchy must serialize through the round lock (see allocator.go).

SEE ALSO:
  - hierarchy.go: ConflictsWith
  - timegrid.go: Overlaps
*/
package allocation

// =============================================================================
// CONFLICT DETECTOR
// =============================================================================

// ConflictDetector tests candidates against a fixed snapshot of allocated
// slots for one round.
type ConflictDetector struct {
	index *HierarchyIndex

	// slots maps each allocated slot to the unit it occupies.
	slots []slotEntry
}

type slotEntry struct {
	slot AllocatedTimeSlot
	unit UnitID
}

// NoExclusion is passed as excludeSlot when no slot should be excluded.
const NoExclusion SlotID = 0

// NewConflictDetector builds a detector over the given slot snapshot.
// optionUnits maps every option that owns a slot to its reservation unit.
func NewConflictDetector(index *HierarchyIndex, slots []AllocatedTimeSlot, optionUnits map[OptionID]UnitID) *ConflictDetector {
	entries := make([]slotEntry, 0, len(slots))
	for _, s := range slots {
		unit, ok := optionUnits[s.OptionID]
		if !ok {
			continue // orphan slot, cannot attribute a unit
		}
		entries = append(entries, slotEntry{slot: s, unit: unit})
	}
	return &ConflictDetector{index: index, slots: entries}
}

// HasConflict reports whether the candidate interval on the candidate
// unit collides with any allocated slot on a conflicting unit. Returns
// true on the first hit. excludeSlot lets a re-allocation pass evaluate
// a slot against the rest of the round without self-conflicting.
func (cd *ConflictDetector) HasConflict(unit UnitID, weekday Weekday, start, end TimeOfDay, excludeSlot SlotID) bool {
	candidate := Interval{Weekday: weekday, Start: start, End: end}
	for _, e := range cd.slots {
		if e.slot.ID == excludeSlot && excludeSlot != NoExclusion {
			continue
		}
		if !cd.index.ConflictsWith(unit, e.unit) {
			continue
		}
		taken := Interval{Weekday: e.slot.Weekday, Start: e.slot.Begin, End: e.slot.End}
		if candidate.Overlaps(taken) {
			return true
		}
	}
	return false
}

// AffectingSlots returns every allocated slot that would collide with the
// candidate interval. This is the detector's read path exposed for ad-hoc
// conflict queries; it shares the predicate with HasConflict rather than
// duplicating overlap logic.
func (cd *ConflictDetector) AffectingSlots(unit UnitID, weekday Weekday, start, end TimeOfDay) []AllocatedTimeSlot {
	candidate := Interval{Weekday: weekday, Start: start, End: end}
	var affecting []AllocatedTimeSlot
	for _, e := range cd.slots {
		if !cd.index.ConflictsWith(unit, e.unit) {
			continue
		}
		taken := Interval{Weekday: e.slot.Weekday, Start: e.slot.Begin, End: e.slot.End}
		if candidate.Overlaps(taken) {
			affecting = append(affecting, e.slot)
		}
	}
	return affecting
}

// Extend adds a freshly committed slot to the snapshot so later
// candidates in the same run see it.
func (cd *ConflictDetector) Extend(slot AllocatedTimeSlot, unit UnitID) {
	cd.slots = append(cd.slots, slotEntry{slot: slot, unit: unit})
}
