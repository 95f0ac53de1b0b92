/*
seed.go - Fixture inserts and the demo scenario

PURPOSE:
  Exported insert helpers for populating a database outside the engine's
  own write paths (the engine only ever writes slots, flags, ledger
  entries and run records). Used by tests and by the -demo server flag.
*/
package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/varaus/allocation-engine/allocation"
)

// =============================================================================
// FIXTURE INSERTS
// =============================================================================

func (s *Store) SeedRound(ctx context.Context, r allocation.ApplicationRound) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rounds (id, name, status, begin_date, end_date, granularity_minutes, topology_version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Status, r.Begin.Format(dateFormat), r.End.Format(dateFormat),
		int(r.Granularity/time.Minute), r.TopologyVersion)
	return err
}

func (s *Store) SeedSpace(ctx context.Context, sp allocation.Space) error {
	var parent any
	if sp.ParentID != nil {
		parent = int64(*sp.ParentID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spaces (id, name, parent_id) VALUES (?, ?, ?)`,
		sp.ID, sp.Name, parent)
	return err
}

func (s *Store) SeedResource(ctx context.Context, r allocation.Resource) error {
	var space any
	if r.SpaceID != nil {
		space = int64(*r.SpaceID)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resources (id, name, space_id) VALUES (?, ?, ?)`,
		r.ID, r.Name, space)
	return err
}

func (s *Store) SeedUnit(ctx context.Context, u allocation.ReservationUnit) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO units (id, name) VALUES (?, ?)`, u.ID, u.Name); err != nil {
		return err
	}
	for _, sid := range u.SpaceIDs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO unit_spaces (unit_id, space_id) VALUES (?, ?)`, u.ID, sid); err != nil {
			return err
		}
	}
	for _, rid := range u.ResourceIDs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO unit_resources (unit_id, resource_id) VALUES (?, ?)`, u.ID, rid); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SeedApplication(ctx context.Context, a allocation.Application) error {
	var sentAt any
	if a.SentAt != nil {
		sentAt = a.SentAt.Format(time.RFC3339)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, round_id, applicant_name, applicant_type, status, working_memo, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RoundID, a.ApplicantName, a.ApplicantType, a.Status, a.WorkingMemo,
		a.CreatedAt.Format(time.RFC3339), sentAt)
	return err
}

func (s *Store) SeedSection(ctx context.Context, sec allocation.ApplicationSection) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (id, application_id, name, slots_per_week, min_duration_minutes,
			max_duration_minutes, begin_date, end_date, participant_count, age_group, purpose)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sec.ID, sec.ApplicationID, sec.Name, sec.SlotsPerWeek,
		int(sec.MinDuration/time.Minute), int(sec.MaxDuration/time.Minute),
		sec.Begin.Format(dateFormat), sec.End.Format(dateFormat),
		sec.ParticipantCount, sec.AgeGroup, sec.Purpose)
	return err
}

func (s *Store) SeedSuitableRange(ctx context.Context, r allocation.SuitableTimeRange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suitable_time_ranges (id, section_id, priority, weekday, begin_minutes, end_minutes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.SectionID, r.Priority, r.Weekday, r.Begin, r.End)
	return err
}

func (s *Store) SeedOption(ctx context.Context, o allocation.ReservationUnitOption) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO options (id, section_id, unit_id, preference_order, locked, rejected)
		VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.SectionID, o.UnitID, o.PreferenceOrder, o.Locked, o.Rejected)
	return err
}

func (s *Store) SeedRoundTimeSlot(ctx context.Context, rts allocation.RoundTimeSlot) error {
	windows, err := json.Marshal(rts.Windows)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO round_time_slots (id, round_id, unit_id, weekday, closed, windows_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rts.ID, rts.RoundID, rts.UnitID, rts.Weekday, rts.Closed, string(windows))
	return err
}

// =============================================================================
// DEMO SCENARIO
// =============================================================================

// LoadDemo seeds a small sports-hall scenario: a hall unit over two
// nested court spaces, per-court units, two clubs applying for evening
// training slots. Enough to exercise allocation, hierarchy conflicts and
// the ledger from a fresh database.
func LoadDemo(ctx context.Context, s *Store) error {
	spaceID := func(id int64) *allocation.SpaceID { v := allocation.SpaceID(id); return &v }

	begin := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := begin.AddDate(0, 9, 0)

	if err := s.SeedRound(ctx, allocation.ApplicationRound{
		ID: 1, Name: "Winter season 2026/27", Status: allocation.RoundOpen,
		Begin: begin, End: end,
		Granularity:     30 * time.Minute,
		TopologyVersion: 1,
	}); err != nil {
		return err
	}

	spaces := []allocation.Space{
		{ID: 1, Name: "Main hall"},
		{ID: 2, Name: "Court A", ParentID: spaceID(1)},
		{ID: 3, Name: "Court B", ParentID: spaceID(1)},
	}
	for _, sp := range spaces {
		if err := s.SeedSpace(ctx, sp); err != nil {
			return err
		}
	}

	units := []allocation.ReservationUnit{
		{ID: 1, Name: "Full hall", SpaceIDs: []allocation.SpaceID{1}},
		{ID: 2, Name: "Court A", SpaceIDs: []allocation.SpaceID{2}},
		{ID: 3, Name: "Court B", SpaceIDs: []allocation.SpaceID{3}},
	}
	for _, u := range units {
		if err := s.SeedUnit(ctx, u); err != nil {
			return err
		}
	}

	evening := []allocation.TimeWindow{{Begin: allocation.NewTimeOfDay(16, 0), End: allocation.NewTimeOfDay(22, 0)}}
	rtsID := int64(1)
	for _, u := range units {
		for wd := allocation.Monday; wd <= allocation.Friday; wd++ {
			if err := s.SeedRoundTimeSlot(ctx, allocation.RoundTimeSlot{
				ID: rtsID, RoundID: 1, UnitID: u.ID, Weekday: wd, Windows: evening,
			}); err != nil {
				return err
			}
			rtsID++
		}
	}

	apps := []allocation.Application{
		{ID: 1, RoundID: 1, ApplicantName: "FC North", ApplicantType: allocation.ApplicantAssociation,
			Status: allocation.ApplicationReceived, CreatedAt: begin},
		{ID: 2, RoundID: 1, ApplicantName: "Volley South", ApplicantType: allocation.ApplicantAssociation,
			Status: allocation.ApplicationReceived, CreatedAt: begin},
	}
	for _, a := range apps {
		if err := s.SeedApplication(ctx, a); err != nil {
			return err
		}
	}

	sections := []allocation.ApplicationSection{
		{ID: 1, ApplicationID: 1, Name: "Juniors training", SlotsPerWeek: 2,
			MinDuration: 90 * time.Minute, MaxDuration: 2 * time.Hour,
			Begin: begin, End: end, ParticipantCount: 18, AgeGroup: "12-15", Purpose: "training"},
		{ID: 2, ApplicationID: 2, Name: "Adults practice", SlotsPerWeek: 1,
			MinDuration: 2 * time.Hour, MaxDuration: 2 * time.Hour,
			Begin: begin, End: end, ParticipantCount: 12, AgeGroup: "18+", Purpose: "training"},
	}
	for _, sec := range sections {
		if err := s.SeedSection(ctx, sec); err != nil {
			return err
		}
	}

	ranges := []allocation.SuitableTimeRange{
		{ID: 1, SectionID: 1, Priority: allocation.PriorityPrimary, Weekday: allocation.Monday,
			Begin: allocation.NewTimeOfDay(17, 0), End: allocation.NewTimeOfDay(20, 0)},
		{ID: 2, SectionID: 1, Priority: allocation.PrioritySecondary, Weekday: allocation.Wednesday,
			Begin: allocation.NewTimeOfDay(17, 0), End: allocation.NewTimeOfDay(20, 0)},
		{ID: 3, SectionID: 2, Priority: allocation.PriorityPrimary, Weekday: allocation.Monday,
			Begin: allocation.NewTimeOfDay(18, 0), End: allocation.NewTimeOfDay(21, 0)},
	}
	for _, r := range ranges {
		if err := s.SeedSuitableRange(ctx, r); err != nil {
			return err
		}
	}

	options := []allocation.ReservationUnitOption{
		{ID: 1, SectionID: 1, UnitID: 2, PreferenceOrder: 1},
		{ID: 2, SectionID: 1, UnitID: 1, PreferenceOrder: 2},
		{ID: 3, SectionID: 2, UnitID: 1, PreferenceOrder: 1},
		{ID: 4, SectionID: 2, UnitID: 3, PreferenceOrder: 2},
	}
	for _, o := range options {
		if err := s.SeedOption(ctx, o); err != nil {
			return err
		}
	}
	return nil
}
