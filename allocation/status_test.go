package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveSectionStatus(t *testing.T) {
	section := ApplicationSection{ID: 1, SlotsPerWeek: 2}
	open := ApplicationRound{Status: RoundOpen}
	inAlloc := ApplicationRound{Status: RoundInAllocation}
	handled := ApplicationRound{Status: RoundHandled}

	options := []ReservationUnitOption{{ID: 1}, {ID: 2}}
	allRejected := []ReservationUnitOption{{ID: 1, Rejected: true}, {ID: 2, Rejected: true}}
	oneSlot := []AllocatedTimeSlot{{ID: 1}}
	twoSlots := []AllocatedTimeSlot{{ID: 1}, {ID: 2}}

	tests := []struct {
		name    string
		round   ApplicationRound
		options []ReservationUnitOption
		slots   []AllocatedTimeSlot
		want    SectionStatus
	}{
		{"open round, no slots", open, options, nil, SectionUnallocated},
		{"round in allocation, no slots", inAlloc, options, nil, SectionInAllocation},
		{"under weekly target", inAlloc, options, oneSlot, SectionPartiallyAllocated},
		{"target met", inAlloc, options, twoSlots, SectionAllocated},
		{"all options rejected", inAlloc, allRejected, nil, SectionRejected},
		{"rejection outranks slot count", inAlloc, allRejected, twoSlots, SectionRejected},
		{"closed round outranks everything", handled, allRejected, nil, SectionHandled},
		{"no options is not rejected", open, nil, nil, SectionUnallocated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveSectionStatus(tt.round, section, tt.options, tt.slots)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveApplicationStatus(t *testing.T) {
	inAlloc := ApplicationRound{Status: RoundInAllocation}
	handled := ApplicationRound{Status: RoundHandled}

	tests := []struct {
		name     string
		app      Application
		round    ApplicationRound
		sections []SectionStatus
		want     ApplicationStatus
	}{
		{"draft passes through", Application{Status: ApplicationDraft}, inAlloc, nil, ApplicationDraft},
		{"cancelled passes through", Application{Status: ApplicationCancelled}, inAlloc, nil, ApplicationCancelled},
		{"results sent passes through", Application{Status: ApplicationResultsSent}, handled, nil, ApplicationResultsSent},
		{"closed round handles received", Application{Status: ApplicationReceived}, handled, nil, ApplicationHandled},
		{
			"active section pulls application into allocation",
			Application{Status: ApplicationReceived}, inAlloc,
			[]SectionStatus{SectionUnallocated, SectionAllocated},
			ApplicationInAllocation,
		},
		{
			"no active sections leaves status alone",
			Application{Status: ApplicationReceived}, inAlloc,
			[]SectionStatus{SectionUnallocated, SectionRejected},
			ApplicationReceived,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveApplicationStatus(tt.app, tt.round, tt.sections)
			assert.Equal(t, tt.want, got)
		})
	}
}
