/*
dto.go - Request/response data structures

PURPOSE:
  JSON shapes for the HTTP surface. Domain types stay in the allocation
  package; these structs only exist to keep wire formats stable and
  explicit.
*/
package api

import (
	"time"

	"github.com/varaus/allocation-engine/allocation"
)

// =============================================================================
// RESPONSES
// =============================================================================

type RunDTO struct {
	ID                string  `json:"id"`
	RoundID           int64   `json:"round_id"`
	Status            string  `json:"status"`
	SectionsTotal     int     `json:"sections_total"`
	SectionsAllocated int     `json:"sections_allocated"`
	SectionsPartial   int     `json:"sections_partial"`
	SlotsCreated      int     `json:"slots_created"`
	Error             string  `json:"error,omitempty"`
	StartedAt         string  `json:"started_at"`
	CompletedAt       *string `json:"completed_at,omitempty"`
}

func toRunDTO(run allocation.AllocationRun) RunDTO {
	dto := RunDTO{
		ID:                run.ID,
		RoundID:           int64(run.RoundID),
		Status:            string(run.Status),
		SectionsTotal:     run.SectionsTotal,
		SectionsAllocated: run.SectionsAllocated,
		SectionsPartial:   run.SectionsPartial,
		SlotsCreated:      run.SlotsCreated,
		Error:             run.Error,
		StartedAt:         run.StartedAt.Format(time.RFC3339),
	}
	if run.CompletedAt != nil {
		s := run.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &s
	}
	return dto
}

type SlotDTO struct {
	ID       int64  `json:"id"`
	OptionID int64  `json:"option_id"`
	Weekday  string `json:"weekday"`
	Begin    string `json:"begin"`
	End      string `json:"end"`
}

func toSlotDTO(s allocation.AllocatedTimeSlot) SlotDTO {
	return SlotDTO{
		ID:       int64(s.ID),
		OptionID: int64(s.OptionID),
		Weekday:  s.Weekday.String(),
		Begin:    s.Begin.String(),
		End:      s.End.String(),
	}
}

type SectionResultDTO struct {
	SectionID    int64     `json:"section_id"`
	Name         string    `json:"name"`
	SlotsPerWeek int       `json:"slots_per_week"`
	Status       string    `json:"status"`
	Slots        []SlotDTO `json:"slots"`
}

type ResultsDTO struct {
	RoundID  int64              `json:"round_id"`
	Sections []SectionResultDTO `json:"sections"`
}

type ReportDTO struct {
	RoundID             int64  `json:"round_id"`
	SectionsTotal       int    `json:"sections_total"`
	SectionsAllocated   int    `json:"sections_allocated"`
	SectionsPartial     int    `json:"sections_partial"`
	SectionsUnallocated int    `json:"sections_unallocated"`
	SectionsRejected    int    `json:"sections_rejected"`
	SlotsAllocated      int    `json:"slots_allocated"`
	SlotsDesired        int    `json:"slots_desired"`
	AllocationRate      string `json:"allocation_rate_percent"`
	SectionFillRate     string `json:"section_fill_rate_percent"`
}

func toReportDTO(r allocation.RoundReport) ReportDTO {
	return ReportDTO{
		RoundID:             int64(r.RoundID),
		SectionsTotal:       r.SectionsTotal,
		SectionsAllocated:   r.SectionsAllocated,
		SectionsPartial:     r.SectionsPartial,
		SectionsUnallocated: r.SectionsUnallocated,
		SectionsRejected:    r.SectionsRejected,
		SlotsAllocated:      r.SlotsAllocated,
		SlotsDesired:        r.SlotsDesired,
		AllocationRate:      r.AllocationRate.StringFixed(2),
		SectionFillRate:     r.SectionFillRate.StringFixed(2),
	}
}

type ChangedDTO struct {
	Changed int `json:"changed"`
}

type ApplicationDTO struct {
	ID            int64  `json:"id"`
	RoundID       int64  `json:"round_id"`
	ApplicantName string `json:"applicant_name"`
	ApplicantType string `json:"applicant_type"`
	Status        string `json:"status"`
	WorkingMemo   string `json:"working_memo,omitempty"`
}

type ErrorDTO struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
