/*
report.go - Round allocation summary

PURPOSE:
  Aggregates a round snapshot into the numbers staff review after a run:
  how many sections met their weekly target, how many fell short, how
  many slots exist, and the overall allocation rate.

  Rates are decimal, not float: a report that says 66.67% must say the
  same 66.67% on every run.
*/
package allocation

import (
	"github.com/shopspring/decimal"
)

// RoundReport summarizes the allocation state of one round.
type RoundReport struct {
	RoundID RoundID

	SectionsTotal       int
	SectionsAllocated   int
	SectionsPartial     int
	SectionsUnallocated int
	SectionsRejected    int

	SlotsAllocated  int
	SlotsDesired    int
	AllocationRate  decimal.Decimal // allocated slots / desired slots, percent
	SectionFillRate decimal.Decimal // fully allocated sections / total, percent
}

// BuildRoundReport computes the summary for a snapshot.
func BuildRoundReport(snap *RoundSnapshot) RoundReport {
	optionsBySection := groupOptions(snap.Options)
	slotsBySection := groupSlotsBySection(snap)

	report := RoundReport{RoundID: snap.Round.ID}

	for _, section := range allocatableSections(snap) {
		report.SectionsTotal++
		report.SlotsDesired += section.SlotsPerWeek

		slots := slotsBySection[section.ID]
		report.SlotsAllocated += len(slots)

		status := DeriveSectionStatus(snap.Round, section, optionsBySection[section.ID], slots)
		switch status {
		case SectionAllocated, SectionHandled:
			report.SectionsAllocated++
		case SectionPartiallyAllocated:
			report.SectionsPartial++
		case SectionRejected:
			report.SectionsRejected++
		default:
			report.SectionsUnallocated++
		}
	}

	report.AllocationRate = percent(report.SlotsAllocated, report.SlotsDesired)
	report.SectionFillRate = percent(report.SectionsAllocated, report.SectionsTotal)
	return report
}

func percent(part, whole int) decimal.Decimal {
	if whole == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(whole))).
		Round(2)
}
