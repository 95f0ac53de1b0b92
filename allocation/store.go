/*
store.go - Persistence interface for the allocation engine

PURPOSE:
  Defines the interface between the engine and the relational store.
  Different implementations can use SQLite, PostgreSQL, or in-memory
  storage.

KEY INTERFACES:
  Store:   snapshot loads, slot/option writes, ledger entries, run records
  TxStore: atomic multi-table writes (all-or-nothing allocation commits)

SNAPSHOT CONTRACT:
  LoadRoundSnapshot returns everything one allocator run needs in a single
  consistent read: applications, sections, suitable ranges, options, round
  time slots and already-allocated slots. The engine never re-fetches
  inside the conflict-check loop.

ORDERING CONTRACT:
  All list loads return records in ascending primary-key order. The engine
  must never depend on map/set iteration order from its storage layer.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite
  - allocation/store: in-memory for testing

SEE ALSO:
  - allocator.go: the only creator of allocated time slots
  - ledger.go: the only deleter of allocated time slots
*/
package allocation

import (
	"context"
	"time"
)

// =============================================================================
// SNAPSHOT - One consistent read of a round's allocation state
// =============================================================================

// RoundSnapshot is the bounded record set one engine invocation works on.
type RoundSnapshot struct {
	Round          ApplicationRound
	Applications   []Application
	Sections       []ApplicationSection
	SuitableRanges []SuitableTimeRange
	Options        []ReservationUnitOption
	RoundTimeSlots []RoundTimeSlot
	Slots          []AllocatedTimeSlot
}

// OptionUnits maps every option in the snapshot to its reservation unit.
func (s *RoundSnapshot) OptionUnits() map[OptionID]UnitID {
	m := make(map[OptionID]UnitID, len(s.Options))
	for _, o := range s.Options {
		m[o.ID] = o.UnitID
	}
	return m
}

// =============================================================================
// LEDGER ENTRIES - Provenance for bulk reject/restore
// =============================================================================

// LedgerScopeKind says whether a bulk operation targeted a section or a
// whole application.
type LedgerScopeKind string

const (
	ScopeSection     LedgerScopeKind = "section"
	ScopeApplication LedgerScopeKind = "application"
)

// RejectionEntry records exactly which options one RejectAll changed, so
// the matching RestoreAll compensates those options and no others.
type RejectionEntry struct {
	ID               string // uuid
	ScopeKind        LedgerScopeKind
	ScopeID          int64
	ChangedOptionIDs []OptionID
	CreatedAt        time.Time

	// Restored is set once a RestoreAll has compensated this entry.
	Restored   bool
	RestoredAt *time.Time
}

// =============================================================================
// ALLOCATION RUNS - One record per engine invocation
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// AllocationRun is the audit record of one allocator invocation.
type AllocationRun struct {
	ID      string // uuid
	RoundID RoundID
	Status  RunStatus

	SectionsTotal     int
	SectionsAllocated int
	SectionsPartial   int
	SlotsCreated      int

	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence for the engine. Writes to allocated slots go
// through AppendSlots/DeleteSlot only; option content is immutable except
// the Locked/Rejected flags.
type Store interface {
	// GetRound returns the round, or ErrRoundNotFound.
	GetRound(ctx context.Context, id RoundID) (*ApplicationRound, error)

	// ListRounds returns every round, ascending by ID.
	ListRounds(ctx context.Context) ([]ApplicationRound, error)

	// LoadTopology returns the full space/resource/unit topology.
	LoadTopology(ctx context.Context) (Topology, error)

	// LoadRoundSnapshot returns one consistent view of the round's
	// allocation state, all lists in ascending primary-key order.
	LoadRoundSnapshot(ctx context.Context, id RoundID) (*RoundSnapshot, error)

	// AppendSlots persists freshly allocated slots and assigns their IDs.
	// Fails with ErrOptionRejected if any target option is rejected.
	AppendSlots(ctx context.Context, slots []AllocatedTimeSlot) ([]AllocatedTimeSlot, error)

	// DeleteSlot removes a slot. Idempotent: deleting a missing slot
	// returns deleted=false with no error, and option flags are never
	// touched.
	DeleteSlot(ctx context.Context, id SlotID) (deleted bool, err error)

	// GetApplication returns one application, or ErrApplicationNotFound.
	GetApplication(ctx context.Context, id ApplicationID) (*Application, error)

	// GetOption returns one option, or ErrOptionNotFound.
	GetOption(ctx context.Context, id OptionID) (*ReservationUnitOption, error)

	// OptionsInScope returns the options of one section or of every
	// section of one application, ascending by ID.
	OptionsInScope(ctx context.Context, kind LedgerScopeKind, scopeID int64) ([]ReservationUnitOption, error)

	// SetOptionsRejected flips the rejected flag on the given options.
	// Returns the number of rows actually changed.
	SetOptionsRejected(ctx context.Context, ids []OptionID, rejected bool) (int, error)

	// SetOptionLocked flips the locked flag on one option. Returns the
	// number of rows actually changed (0 when already in that state).
	SetOptionLocked(ctx context.Context, id OptionID, locked bool) (int, error)

	// AppendRejectionEntry records the provenance of one RejectAll.
	AppendRejectionEntry(ctx context.Context, entry RejectionEntry) error

	// LatestOpenRejectionEntry returns the most recent non-restored entry
	// for the scope, or nil.
	LatestOpenRejectionEntry(ctx context.Context, kind LedgerScopeKind, scopeID int64) (*RejectionEntry, error)

	// MarkRejectionRestored marks an entry as compensated.
	MarkRejectionRestored(ctx context.Context, entryID string, at time.Time) error

	// SaveRun inserts or updates an allocation run record.
	SaveRun(ctx context.Context, run AllocationRun) error

	// ListRuns returns the round's runs, newest first.
	ListRuns(ctx context.Context, id RoundID) ([]AllocationRun, error)

	// SetApplicationStatus updates staff-owned application state.
	SetApplicationStatus(ctx context.Context, id ApplicationID, status ApplicationStatus) error

	// SetRoundStatus updates the round's lifecycle state.
	SetRoundStatus(ctx context.Context, id RoundID, status RoundStatus) error
}

// TxStore wraps Store with transaction support. Use this when a unit of
// work must commit all-or-nothing (one allocator run, one bulk ledger
// operation).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
