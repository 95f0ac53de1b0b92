/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements allocation.Store and allocation.TxStore using SQLite. The
  same patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  rounds:               application rounds and their grid granularity
  spaces/resources:     the physical topology
  units:                reservation units plus their space/resource links
  applications:         one row per applicant submission
  sections:             recurring needs within an application
  suitable_time_ranges: applicant weekday/time windows with priority
  options:              section-to-unit bindings with lock/reject flags
  round_time_slots:     per-unit per-weekday availability windows
  allocated_time_slots: the engine's output
  rejection_entries:    provenance for bulk reject/restore
  allocation_runs:      one audit row per engine invocation

INDEXES:
  The hot path is LoadRoundSnapshot: slots by round, options and ranges
  by section, sections by application, applications by round. Each has a
  covering index.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): multiple readers
  don't block, a single writer at a time, better crash recovery.

SEE ALSO:
  - allocation/store.go: interface definitions
  - allocation/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/varaus/allocation-engine/allocation"
)

// Store implements allocation.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rounds (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		begin_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		granularity_minutes INTEGER NOT NULL DEFAULT 30,
		topology_version INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS spaces (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id INTEGER REFERENCES spaces(id)
	);

	CREATE TABLE IF NOT EXISTS resources (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		space_id INTEGER REFERENCES spaces(id)
	);

	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS unit_spaces (
		unit_id INTEGER NOT NULL REFERENCES units(id),
		space_id INTEGER NOT NULL REFERENCES spaces(id),
		PRIMARY KEY (unit_id, space_id)
	);

	CREATE TABLE IF NOT EXISTS unit_resources (
		unit_id INTEGER NOT NULL REFERENCES units(id),
		resource_id INTEGER NOT NULL REFERENCES resources(id),
		PRIMARY KEY (unit_id, resource_id)
	);

	CREATE TABLE IF NOT EXISTS applications (
		id INTEGER PRIMARY KEY,
		round_id INTEGER NOT NULL REFERENCES rounds(id),
		applicant_name TEXT NOT NULL,
		applicant_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		working_memo TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		sent_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_applications_round ON applications(round_id);

	CREATE TABLE IF NOT EXISTS sections (
		id INTEGER PRIMARY KEY,
		application_id INTEGER NOT NULL REFERENCES applications(id),
		name TEXT NOT NULL,
		slots_per_week INTEGER NOT NULL,
		min_duration_minutes INTEGER NOT NULL,
		max_duration_minutes INTEGER NOT NULL,
		begin_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		participant_count INTEGER NOT NULL DEFAULT 0,
		age_group TEXT NOT NULL DEFAULT '',
		purpose TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_sections_application ON sections(application_id);

	CREATE TABLE IF NOT EXISTS suitable_time_ranges (
		id INTEGER PRIMARY KEY,
		section_id INTEGER NOT NULL REFERENCES sections(id),
		priority TEXT NOT NULL,
		weekday INTEGER NOT NULL,
		begin_minutes INTEGER NOT NULL,
		end_minutes INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ranges_section ON suitable_time_ranges(section_id);

	CREATE TABLE IF NOT EXISTS options (
		id INTEGER PRIMARY KEY,
		section_id INTEGER NOT NULL REFERENCES sections(id),
		unit_id INTEGER NOT NULL REFERENCES units(id),
		preference_order INTEGER NOT NULL,
		locked INTEGER NOT NULL DEFAULT 0,
		rejected INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_options_section ON options(section_id);

	CREATE TABLE IF NOT EXISTS round_time_slots (
		id INTEGER PRIMARY KEY,
		round_id INTEGER NOT NULL REFERENCES rounds(id),
		unit_id INTEGER NOT NULL REFERENCES units(id),
		weekday INTEGER NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0,
		windows_json TEXT NOT NULL DEFAULT '[]',
		UNIQUE (round_id, unit_id, weekday)
	);
	CREATE INDEX IF NOT EXISTS idx_round_time_slots_round ON round_time_slots(round_id);

	CREATE TABLE IF NOT EXISTS allocated_time_slots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		option_id INTEGER NOT NULL REFERENCES options(id),
		weekday INTEGER NOT NULL,
		begin_minutes INTEGER NOT NULL,
		end_minutes INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_slots_option ON allocated_time_slots(option_id);

	CREATE TABLE IF NOT EXISTS rejection_entries (
		id TEXT PRIMARY KEY,
		scope_kind TEXT NOT NULL,
		scope_id INTEGER NOT NULL,
		changed_option_ids TEXT NOT NULL,
		created_at TEXT NOT NULL,
		restored INTEGER NOT NULL DEFAULT 0,
		restored_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_rejection_scope
		ON rejection_entries(scope_kind, scope_id, restored);

	CREATE TABLE IF NOT EXISTS allocation_runs (
		id TEXT PRIMARY KEY,
		round_id INTEGER NOT NULL REFERENCES rounds(id),
		status TEXT NOT NULL,
		sections_total INTEGER NOT NULL DEFAULT 0,
		sections_allocated INTEGER NOT NULL DEFAULT 0,
		sections_partial INTEGER NOT NULL DEFAULT 0,
		slots_created INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_round ON allocation_runs(round_id, started_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERYER - Shared implementation over *sql.DB and *sql.Tx
// =============================================================================

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements allocation.Store over either the database handle or
// an open transaction.
type queries struct {
	q queryer
}

func (s *Store) view() *queries { return &queries{q: s.db} }

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(allocation.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&queries{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Forward the Store interface from *Store to the non-transactional view.

func (s *Store) GetRound(ctx context.Context, id allocation.RoundID) (*allocation.ApplicationRound, error) {
	return s.view().GetRound(ctx, id)
}
func (s *Store) ListRounds(ctx context.Context) ([]allocation.ApplicationRound, error) {
	return s.view().ListRounds(ctx)
}
func (s *Store) LoadTopology(ctx context.Context) (allocation.Topology, error) {
	return s.view().LoadTopology(ctx)
}
func (s *Store) GetApplication(ctx context.Context, id allocation.ApplicationID) (*allocation.Application, error) {
	return s.view().GetApplication(ctx, id)
}
func (s *Store) LoadRoundSnapshot(ctx context.Context, id allocation.RoundID) (*allocation.RoundSnapshot, error) {
	return s.view().LoadRoundSnapshot(ctx, id)
}
func (s *Store) AppendSlots(ctx context.Context, slots []allocation.AllocatedTimeSlot) ([]allocation.AllocatedTimeSlot, error) {
	return s.view().AppendSlots(ctx, slots)
}
func (s *Store) DeleteSlot(ctx context.Context, id allocation.SlotID) (bool, error) {
	return s.view().DeleteSlot(ctx, id)
}
func (s *Store) GetOption(ctx context.Context, id allocation.OptionID) (*allocation.ReservationUnitOption, error) {
	return s.view().GetOption(ctx, id)
}
func (s *Store) OptionsInScope(ctx context.Context, kind allocation.LedgerScopeKind, scopeID int64) ([]allocation.ReservationUnitOption, error) {
	return s.view().OptionsInScope(ctx, kind, scopeID)
}
func (s *Store) SetOptionsRejected(ctx context.Context, ids []allocation.OptionID, rejected bool) (int, error) {
	return s.view().SetOptionsRejected(ctx, ids, rejected)
}
func (s *Store) SetOptionLocked(ctx context.Context, id allocation.OptionID, locked bool) (int, error) {
	return s.view().SetOptionLocked(ctx, id, locked)
}
func (s *Store) AppendRejectionEntry(ctx context.Context, entry allocation.RejectionEntry) error {
	return s.view().AppendRejectionEntry(ctx, entry)
}
func (s *Store) LatestOpenRejectionEntry(ctx context.Context, kind allocation.LedgerScopeKind, scopeID int64) (*allocation.RejectionEntry, error) {
	return s.view().LatestOpenRejectionEntry(ctx, kind, scopeID)
}
func (s *Store) MarkRejectionRestored(ctx context.Context, entryID string, at time.Time) error {
	return s.view().MarkRejectionRestored(ctx, entryID, at)
}
func (s *Store) SaveRun(ctx context.Context, run allocation.AllocationRun) error {
	return s.view().SaveRun(ctx, run)
}
func (s *Store) ListRuns(ctx context.Context, id allocation.RoundID) ([]allocation.AllocationRun, error) {
	return s.view().ListRuns(ctx, id)
}
func (s *Store) SetApplicationStatus(ctx context.Context, id allocation.ApplicationID, status allocation.ApplicationStatus) error {
	return s.view().SetApplicationStatus(ctx, id, status)
}
func (s *Store) SetRoundStatus(ctx context.Context, id allocation.RoundID, status allocation.RoundStatus) error {
	return s.view().SetRoundStatus(ctx, id, status)
}

// =============================================================================
// ROUNDS AND TOPOLOGY
// =============================================================================

const dateFormat = "2006-01-02"

func (v *queries) GetRound(ctx context.Context, id allocation.RoundID) (*allocation.ApplicationRound, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT id, name, status, begin_date, end_date, granularity_minutes, topology_version
		FROM rounds WHERE id = ?`, id)

	var (
		r           allocation.ApplicationRound
		begin, end  string
		granularity int
	)
	err := row.Scan(&r.ID, &r.Name, &r.Status, &begin, &end, &granularity, &r.TopologyVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, allocation.ErrRoundNotFound
	}
	if err != nil {
		return nil, err
	}
	if r.Begin, err = time.Parse(dateFormat, begin); err != nil {
		return nil, err
	}
	if r.End, err = time.Parse(dateFormat, end); err != nil {
		return nil, err
	}
	r.Granularity = time.Duration(granularity) * time.Minute
	return &r, nil
}

func (v *queries) ListRounds(ctx context.Context) ([]allocation.ApplicationRound, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, name, status, begin_date, end_date, granularity_minutes, topology_version
		FROM rounds ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.ApplicationRound
	for rows.Next() {
		var (
			r           allocation.ApplicationRound
			begin, end  string
			granularity int
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Status, &begin, &end, &granularity, &r.TopologyVersion); err != nil {
			return nil, err
		}
		if r.Begin, err = time.Parse(dateFormat, begin); err != nil {
			return nil, err
		}
		if r.End, err = time.Parse(dateFormat, end); err != nil {
			return nil, err
		}
		r.Granularity = time.Duration(granularity) * time.Minute
		out = append(out, r)
	}
	return out, rows.Err()
}

func (v *queries) GetApplication(ctx context.Context, id allocation.ApplicationID) (*allocation.Application, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT id, round_id, applicant_name, applicant_type, status, working_memo, created_at, sent_at
		FROM applications WHERE id = ?`, id)

	var a allocation.Application
	var createdAt string
	var sentAt sql.NullString
	err := row.Scan(&a.ID, &a.RoundID, &a.ApplicantName, &a.ApplicantType, &a.Status, &a.WorkingMemo, &createdAt, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, allocation.ErrApplicationNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	if sentAt.Valid {
		t, err := time.Parse(time.RFC3339, sentAt.String)
		if err != nil {
			return nil, err
		}
		a.SentAt = &t
	}
	return &a, nil
}

func (v *queries) LoadTopology(ctx context.Context) (allocation.Topology, error) {
	var topo allocation.Topology

	if err := v.loadSpaces(ctx, &topo); err != nil {
		return topo, err
	}
	if err := v.loadResources(ctx, &topo); err != nil {
		return topo, err
	}
	return topo, v.loadUnits(ctx, &topo)
}

func (v *queries) loadSpaces(ctx context.Context, topo *allocation.Topology) error {
	rows, err := v.q.QueryContext(ctx, `SELECT id, name, parent_id FROM spaces ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var sp allocation.Space
		var parent sql.NullInt64
		if err := rows.Scan(&sp.ID, &sp.Name, &parent); err != nil {
			return err
		}
		if parent.Valid {
			pid := allocation.SpaceID(parent.Int64)
			sp.ParentID = &pid
		}
		topo.Spaces = append(topo.Spaces, sp)
	}
	return rows.Err()
}

func (v *queries) loadResources(ctx context.Context, topo *allocation.Topology) error {
	rows, err := v.q.QueryContext(ctx, `SELECT id, name, space_id FROM resources ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var res allocation.Resource
		var space sql.NullInt64
		if err := rows.Scan(&res.ID, &res.Name, &space); err != nil {
			return err
		}
		if space.Valid {
			sid := allocation.SpaceID(space.Int64)
			res.SpaceID = &sid
		}
		topo.Resources = append(topo.Resources, res)
	}
	return rows.Err()
}

func (v *queries) loadUnits(ctx context.Context, topo *allocation.Topology) error {
	units := make(map[allocation.UnitID]*allocation.ReservationUnit)
	var order []allocation.UnitID

	rows, err := v.q.QueryContext(ctx, `SELECT id, name FROM units ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var u allocation.ReservationUnit
		if err := rows.Scan(&u.ID, &u.Name); err != nil {
			return err
		}
		units[u.ID] = &u
		order = append(order, u.ID)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	spaceRows, err := v.q.QueryContext(ctx, `SELECT unit_id, space_id FROM unit_spaces ORDER BY unit_id, space_id`)
	if err != nil {
		return err
	}
	defer spaceRows.Close()
	for spaceRows.Next() {
		var uid allocation.UnitID
		var sid allocation.SpaceID
		if err := spaceRows.Scan(&uid, &sid); err != nil {
			return err
		}
		if u, ok := units[uid]; ok {
			u.SpaceIDs = append(u.SpaceIDs, sid)
		}
	}
	if err := spaceRows.Err(); err != nil {
		return err
	}

	resRows, err := v.q.QueryContext(ctx, `SELECT unit_id, resource_id FROM unit_resources ORDER BY unit_id, resource_id`)
	if err != nil {
		return err
	}
	defer resRows.Close()
	for resRows.Next() {
		var uid allocation.UnitID
		var rid allocation.ResourceID
		if err := resRows.Scan(&uid, &rid); err != nil {
			return err
		}
		if u, ok := units[uid]; ok {
			u.ResourceIDs = append(u.ResourceIDs, rid)
		}
	}
	if err := resRows.Err(); err != nil {
		return err
	}

	for _, id := range order {
		topo.Units = append(topo.Units, *units[id])
	}
	return nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func (v *queries) LoadRoundSnapshot(ctx context.Context, id allocation.RoundID) (*allocation.RoundSnapshot, error) {
	round, err := v.GetRound(ctx, id)
	if err != nil {
		return nil, err
	}
	snap := &allocation.RoundSnapshot{Round: *round}

	if err := v.loadApplications(ctx, id, snap); err != nil {
		return nil, err
	}
	if err := v.loadSections(ctx, id, snap); err != nil {
		return nil, err
	}
	if err := v.loadRanges(ctx, id, snap); err != nil {
		return nil, err
	}
	if err := v.loadOptions(ctx, id, snap); err != nil {
		return nil, err
	}
	if err := v.loadRoundTimeSlots(ctx, id, snap); err != nil {
		return nil, err
	}
	if err := v.loadSlots(ctx, id, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (v *queries) loadApplications(ctx context.Context, id allocation.RoundID, snap *allocation.RoundSnapshot) error {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, round_id, applicant_name, applicant_type, status, working_memo, created_at, sent_at
		FROM applications WHERE round_id = ? ORDER BY id`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a allocation.Application
		var createdAt string
		var sentAt sql.NullString
		if err := rows.Scan(&a.ID, &a.RoundID, &a.ApplicantName, &a.ApplicantType, &a.Status, &a.WorkingMemo, &createdAt, &sentAt); err != nil {
			return err
		}
		if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return err
		}
		if sentAt.Valid {
			t, err := time.Parse(time.RFC3339, sentAt.String)
			if err != nil {
				return err
			}
			a.SentAt = &t
		}
		snap.Applications = append(snap.Applications, a)
	}
	return rows.Err()
}

func (v *queries) loadSections(ctx context.Context, id allocation.RoundID, snap *allocation.RoundSnapshot) error {
	rows, err := v.q.QueryContext(ctx, `
		SELECT s.id, s.application_id, s.name, s.slots_per_week, s.min_duration_minutes,
		       s.max_duration_minutes, s.begin_date, s.end_date, s.participant_count,
		       s.age_group, s.purpose
		FROM sections s JOIN applications a ON a.id = s.application_id
		WHERE a.round_id = ? ORDER BY s.id`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s allocation.ApplicationSection
		var minDur, maxDur int
		var begin, end string
		if err := rows.Scan(&s.ID, &s.ApplicationID, &s.Name, &s.SlotsPerWeek, &minDur, &maxDur,
			&begin, &end, &s.ParticipantCount, &s.AgeGroup, &s.Purpose); err != nil {
			return err
		}
		s.MinDuration = time.Duration(minDur) * time.Minute
		s.MaxDuration = time.Duration(maxDur) * time.Minute
		if s.Begin, err = time.Parse(dateFormat, begin); err != nil {
			return err
		}
		if s.End, err = time.Parse(dateFormat, end); err != nil {
			return err
		}
		snap.Sections = append(snap.Sections, s)
	}
	return rows.Err()
}

func (v *queries) loadRanges(ctx context.Context, id allocation.RoundID, snap *allocation.RoundSnapshot) error {
	rows, err := v.q.QueryContext(ctx, `
		SELECT r.id, r.section_id, r.priority, r.weekday, r.begin_minutes, r.end_minutes
		FROM suitable_time_ranges r
		JOIN sections s ON s.id = r.section_id
		JOIN applications a ON a.id = s.application_id
		WHERE a.round_id = ? ORDER BY r.id`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var r allocation.SuitableTimeRange
		if err := rows.Scan(&r.ID, &r.SectionID, &r.Priority, &r.Weekday, &r.Begin, &r.End); err != nil {
			return err
		}
		snap.SuitableRanges = append(snap.SuitableRanges, r)
	}
	return rows.Err()
}

func (v *queries) loadOptions(ctx context.Context, id allocation.RoundID, snap *allocation.RoundSnapshot) error {
	rows, err := v.q.QueryContext(ctx, `
		SELECT o.id, o.section_id, o.unit_id, o.preference_order, o.locked, o.rejected
		FROM options o
		JOIN sections s ON s.id = o.section_id
		JOIN applications a ON a.id = s.application_id
		WHERE a.round_id = ? ORDER BY o.id`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var o allocation.ReservationUnitOption
		if err := rows.Scan(&o.ID, &o.SectionID, &o.UnitID, &o.PreferenceOrder, &o.Locked, &o.Rejected); err != nil {
			return err
		}
		snap.Options = append(snap.Options, o)
	}
	return rows.Err()
}

func (v *queries) loadRoundTimeSlots(ctx context.Context, id allocation.RoundID, snap *allocation.RoundSnapshot) error {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, round_id, unit_id, weekday, closed, windows_json
		FROM round_time_slots WHERE round_id = ? ORDER BY id`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var rts allocation.RoundTimeSlot
		var windowsJSON string
		if err := rows.Scan(&rts.ID, &rts.RoundID, &rts.UnitID, &rts.Weekday, &rts.Closed, &windowsJSON); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(windowsJSON), &rts.Windows); err != nil {
			return fmt.Errorf("bad windows for round time slot %d: %w", rts.ID, err)
		}
		snap.RoundTimeSlots = append(snap.RoundTimeSlots, rts)
	}
	return rows.Err()
}

func (v *queries) loadSlots(ctx context.Context, id allocation.RoundID, snap *allocation.RoundSnapshot) error {
	rows, err := v.q.QueryContext(ctx, `
		SELECT t.id, t.option_id, t.weekday, t.begin_minutes, t.end_minutes
		FROM allocated_time_slots t
		JOIN options o ON o.id = t.option_id
		JOIN sections s ON s.id = o.section_id
		JOIN applications a ON a.id = s.application_id
		WHERE a.round_id = ? ORDER BY t.id`, id)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var t allocation.AllocatedTimeSlot
		if err := rows.Scan(&t.ID, &t.OptionID, &t.Weekday, &t.Begin, &t.End); err != nil {
			return err
		}
		snap.Slots = append(snap.Slots, t)
	}
	return rows.Err()
}

// =============================================================================
// SLOTS AND OPTIONS
// =============================================================================

func (v *queries) AppendSlots(ctx context.Context, slots []allocation.AllocatedTimeSlot) ([]allocation.AllocatedTimeSlot, error) {
	out := make([]allocation.AllocatedTimeSlot, 0, len(slots))
	for _, s := range slots {
		opt, err := v.GetOption(ctx, s.OptionID)
		if err != nil {
			return nil, err
		}
		if opt.Rejected {
			return nil, fmt.Errorf("option %d: %w", s.OptionID, allocation.ErrOptionRejected)
		}

		res, err := v.q.ExecContext(ctx, `
			INSERT INTO allocated_time_slots (option_id, weekday, begin_minutes, end_minutes)
			VALUES (?, ?, ?, ?)`,
			s.OptionID, s.Weekday, s.Begin, s.End)
		if err != nil {
			return nil, err
		}
		lastID, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		s.ID = allocation.SlotID(lastID)
		out = append(out, s)
	}
	return out, nil
}

func (v *queries) DeleteSlot(ctx context.Context, id allocation.SlotID) (bool, error) {
	res, err := v.q.ExecContext(ctx, `DELETE FROM allocated_time_slots WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (v *queries) GetOption(ctx context.Context, id allocation.OptionID) (*allocation.ReservationUnitOption, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT id, section_id, unit_id, preference_order, locked, rejected
		FROM options WHERE id = ?`, id)

	var o allocation.ReservationUnitOption
	err := row.Scan(&o.ID, &o.SectionID, &o.UnitID, &o.PreferenceOrder, &o.Locked, &o.Rejected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, allocation.ErrOptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (v *queries) OptionsInScope(ctx context.Context, kind allocation.LedgerScopeKind, scopeID int64) ([]allocation.ReservationUnitOption, error) {
	var query string
	switch kind {
	case allocation.ScopeSection:
		query = `
			SELECT id, section_id, unit_id, preference_order, locked, rejected
			FROM options WHERE section_id = ? ORDER BY id`
	case allocation.ScopeApplication:
		query = `
			SELECT o.id, o.section_id, o.unit_id, o.preference_order, o.locked, o.rejected
			FROM options o JOIN sections s ON s.id = o.section_id
			WHERE s.application_id = ? ORDER BY o.id`
	default:
		return nil, fmt.Errorf("unknown ledger scope %q", kind)
	}

	rows, err := v.q.QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.ReservationUnitOption
	for rows.Next() {
		var o allocation.ReservationUnitOption
		if err := rows.Scan(&o.ID, &o.SectionID, &o.UnitID, &o.PreferenceOrder, &o.Locked, &o.Rejected); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (v *queries) SetOptionsRejected(ctx context.Context, ids []allocation.OptionID, rejected bool) (int, error) {
	changed := 0
	for _, id := range ids {
		res, err := v.q.ExecContext(ctx,
			`UPDATE options SET rejected = ? WHERE id = ? AND rejected != ?`,
			rejected, id, rejected)
		if err != nil {
			return changed, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return changed, err
		}
		changed += int(n)
	}
	return changed, nil
}

func (v *queries) SetOptionLocked(ctx context.Context, id allocation.OptionID, locked bool) (int, error) {
	if _, err := v.GetOption(ctx, id); err != nil {
		return 0, err
	}
	res, err := v.q.ExecContext(ctx,
		`UPDATE options SET locked = ? WHERE id = ? AND locked != ?`,
		locked, id, locked)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// =============================================================================
// REJECTION ENTRIES AND RUNS
// =============================================================================

func (v *queries) AppendRejectionEntry(ctx context.Context, entry allocation.RejectionEntry) error {
	ids, err := json.Marshal(entry.ChangedOptionIDs)
	if err != nil {
		return err
	}
	_, err = v.q.ExecContext(ctx, `
		INSERT INTO rejection_entries (id, scope_kind, scope_id, changed_option_ids, created_at, restored)
		VALUES (?, ?, ?, ?, ?, 0)`,
		entry.ID, entry.ScopeKind, entry.ScopeID, string(ids), entry.CreatedAt.Format(time.RFC3339))
	return err
}

func (v *queries) LatestOpenRejectionEntry(ctx context.Context, kind allocation.LedgerScopeKind, scopeID int64) (*allocation.RejectionEntry, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT id, scope_kind, scope_id, changed_option_ids, created_at
		FROM rejection_entries
		WHERE scope_kind = ? AND scope_id = ? AND restored = 0
		ORDER BY created_at DESC, id DESC LIMIT 1`, kind, scopeID)

	var e allocation.RejectionEntry
	var idsJSON, createdAt string
	err := row.Scan(&e.ID, &e.ScopeKind, &e.ScopeID, &idsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &e.ChangedOptionIDs); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func (v *queries) MarkRejectionRestored(ctx context.Context, entryID string, at time.Time) error {
	_, err := v.q.ExecContext(ctx,
		`UPDATE rejection_entries SET restored = 1, restored_at = ? WHERE id = ?`,
		at.Format(time.RFC3339), entryID)
	return err
}

func (v *queries) SaveRun(ctx context.Context, run allocation.AllocationRun) error {
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.Format(time.RFC3339)
	}
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO allocation_runs
			(id, round_id, status, sections_total, sections_allocated, sections_partial,
			 slots_created, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			sections_total = excluded.sections_total,
			sections_allocated = excluded.sections_allocated,
			sections_partial = excluded.sections_partial,
			slots_created = excluded.slots_created,
			error = excluded.error,
			completed_at = excluded.completed_at`,
		run.ID, run.RoundID, run.Status, run.SectionsTotal, run.SectionsAllocated,
		run.SectionsPartial, run.SlotsCreated, run.Error,
		run.StartedAt.Format(time.RFC3339), completedAt)
	return err
}

func (v *queries) ListRuns(ctx context.Context, id allocation.RoundID) ([]allocation.AllocationRun, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, round_id, status, sections_total, sections_allocated, sections_partial,
		       slots_created, error, started_at, completed_at
		FROM allocation_runs WHERE round_id = ?
		ORDER BY started_at DESC, id DESC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []allocation.AllocationRun
	for rows.Next() {
		var r allocation.AllocationRun
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.RoundID, &r.Status, &r.SectionsTotal, &r.SectionsAllocated,
			&r.SectionsPartial, &r.SlotsCreated, &r.Error, &startedAt, &completedAt); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			t, err := time.Parse(time.RFC3339, completedAt.String)
			if err != nil {
				return nil, err
			}
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (v *queries) SetApplicationStatus(ctx context.Context, id allocation.ApplicationID, status allocation.ApplicationStatus) error {
	res, err := v.q.ExecContext(ctx, `UPDATE applications SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return allocation.ErrApplicationNotFound
	}
	return nil
}

func (v *queries) SetRoundStatus(ctx context.Context, id allocation.RoundID, status allocation.RoundStatus) error {
	res, err := v.q.ExecContext(ctx, `UPDATE rounds SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return allocation.ErrRoundNotFound
	}
	return nil
}
