/*
status.go - Derived statuses

PURPOSE:
  Section status is never stored as free-form state; it is always
  computed from the round, the section's options and its allocated
  slots. This file is the single place that computation lives.

STATE MACHINE:
  unallocated -> (placement) -> partially_allocated | allocated
              -> handled once the round closes
  rejected is reachable from any non-terminal state via the ledger and
  sticky until explicitly restored.
*/
package allocation

// DeriveSectionStatus computes a section's status from surrounding state.
//
// Precedence: a closed round makes every section handled; a section whose
// options are all rejected is rejected; otherwise the allocated slot
// count against the weekly target decides.
func DeriveSectionStatus(round ApplicationRound, section ApplicationSection, options []ReservationUnitOption, slots []AllocatedTimeSlot) SectionStatus {
	if round.Status == RoundHandled {
		return SectionHandled
	}

	if len(options) > 0 && allRejected(options) {
		return SectionRejected
	}

	switch n := len(slots); {
	case n == 0 && round.Status == RoundInAllocation:
		return SectionInAllocation
	case n == 0:
		return SectionUnallocated
	case n < section.SlotsPerWeek:
		return SectionPartiallyAllocated
	default:
		return SectionAllocated
	}
}

func allRejected(options []ReservationUnitOption) bool {
	for _, o := range options {
		if !o.Rejected {
			return false
		}
	}
	return true
}

// DeriveApplicationStatus rolls section outcomes up to the application.
// Staff-owned lifecycle states (draft, cancelled, expired, results_sent)
// pass through untouched; the engine only moves an application between
// received, in_allocation and handled.
func DeriveApplicationStatus(app Application, round ApplicationRound, sectionStatuses []SectionStatus) ApplicationStatus {
	switch app.Status {
	case ApplicationDraft, ApplicationCancelled, ApplicationExpired, ApplicationResultsSent:
		return app.Status
	}

	if round.Status == RoundHandled {
		return ApplicationHandled
	}

	for _, s := range sectionStatuses {
		if s == SectionInAllocation || s == SectionPartiallyAllocated || s == SectionAllocated {
			return ApplicationInAllocation
		}
	}
	return app.Status
}
