// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/varaus/allocation-engine/allocation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	rounds       map[allocation.RoundID]allocation.ApplicationRound
	topology     allocation.Topology
	applications map[allocation.ApplicationID]allocation.Application
	sections     map[allocation.SectionID]allocation.ApplicationSection
	ranges       []allocation.SuitableTimeRange
	options      map[allocation.OptionID]allocation.ReservationUnitOption
	roundSlots   []allocation.RoundTimeSlot
	slots        map[allocation.SlotID]allocation.AllocatedTimeSlot
	entries      []allocation.RejectionEntry
	runs         map[string]allocation.AllocationRun

	nextSlotID allocation.SlotID
}

func NewMemory() *Memory {
	return &Memory{
		rounds:       make(map[allocation.RoundID]allocation.ApplicationRound),
		applications: make(map[allocation.ApplicationID]allocation.Application),
		sections:     make(map[allocation.SectionID]allocation.ApplicationSection),
		options:      make(map[allocation.OptionID]allocation.ReservationUnitOption),
		slots:        make(map[allocation.SlotID]allocation.AllocatedTimeSlot),
		runs:         make(map[string]allocation.AllocationRun),
		nextSlotID:   1,
	}
}

// =============================================================================
// SEEDING - Test/dev fixture setup
// =============================================================================

func (m *Memory) PutRound(r allocation.ApplicationRound) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.ID] = r
}

func (m *Memory) PutTopology(t allocation.Topology) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.topology = t
}

func (m *Memory) PutApplication(a allocation.Application) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications[a.ID] = a
}

func (m *Memory) PutSection(s allocation.ApplicationSection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[s.ID] = s
}

func (m *Memory) PutSuitableRange(r allocation.SuitableTimeRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges = append(m.ranges, r)
}

func (m *Memory) PutOption(o allocation.ReservationUnitOption) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[o.ID] = o
}

func (m *Memory) PutRoundTimeSlot(s allocation.RoundTimeSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roundSlots = append(m.roundSlots, s)
}

// =============================================================================
// STORE IMPLEMENTATION
// =============================================================================

func (m *Memory) GetRound(_ context.Context, id allocation.RoundID) (*allocation.ApplicationRound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, allocation.ErrRoundNotFound
	}
	return &r, nil
}

func (m *Memory) ListRounds(_ context.Context) ([]allocation.ApplicationRound, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]allocation.ApplicationRound, 0, len(m.rounds))
	for _, r := range m.rounds {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetApplication(_ context.Context, id allocation.ApplicationID) (*allocation.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.applications[id]
	if !ok {
		return nil, allocation.ErrApplicationNotFound
	}
	return &a, nil
}

func (m *Memory) LoadTopology(_ context.Context) (allocation.Topology, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.topology, nil
}

func (m *Memory) LoadRoundSnapshot(_ context.Context, id allocation.RoundID) (*allocation.RoundSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	round, ok := m.rounds[id]
	if !ok {
		return nil, allocation.ErrRoundNotFound
	}

	snap := &allocation.RoundSnapshot{Round: round}

	appIDs := make(map[allocation.ApplicationID]bool)
	for _, a := range m.applications {
		if a.RoundID == id {
			snap.Applications = append(snap.Applications, a)
			appIDs[a.ID] = true
		}
	}
	sort.Slice(snap.Applications, func(i, j int) bool { return snap.Applications[i].ID < snap.Applications[j].ID })

	sectionIDs := make(map[allocation.SectionID]bool)
	for _, s := range m.sections {
		if appIDs[s.ApplicationID] {
			snap.Sections = append(snap.Sections, s)
			sectionIDs[s.ID] = true
		}
	}
	sort.Slice(snap.Sections, func(i, j int) bool { return snap.Sections[i].ID < snap.Sections[j].ID })

	for _, r := range m.ranges {
		if sectionIDs[r.SectionID] {
			snap.SuitableRanges = append(snap.SuitableRanges, r)
		}
	}
	sort.Slice(snap.SuitableRanges, func(i, j int) bool { return snap.SuitableRanges[i].ID < snap.SuitableRanges[j].ID })

	optionIDs := make(map[allocation.OptionID]bool)
	for _, o := range m.options {
		if sectionIDs[o.SectionID] {
			snap.Options = append(snap.Options, o)
			optionIDs[o.ID] = true
		}
	}
	sort.Slice(snap.Options, func(i, j int) bool { return snap.Options[i].ID < snap.Options[j].ID })

	for _, s := range m.roundSlots {
		if s.RoundID == id {
			snap.RoundTimeSlots = append(snap.RoundTimeSlots, s)
		}
	}
	sort.Slice(snap.RoundTimeSlots, func(i, j int) bool { return snap.RoundTimeSlots[i].ID < snap.RoundTimeSlots[j].ID })

	for _, s := range m.slots {
		if optionIDs[s.OptionID] {
			snap.Slots = append(snap.Slots, s)
		}
	}
	sort.Slice(snap.Slots, func(i, j int) bool { return snap.Slots[i].ID < snap.Slots[j].ID })

	return snap, nil
}

func (m *Memory) AppendSlots(_ context.Context, slots []allocation.AllocatedTimeSlot) ([]allocation.AllocatedTimeSlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rejected-option backstop: the allocator never proposes such a
	// slot, but the invariant is enforced here regardless.
	for _, s := range slots {
		opt, ok := m.options[s.OptionID]
		if !ok {
			return nil, allocation.ErrOptionNotFound
		}
		if opt.Rejected {
			return nil, allocation.ErrOptionRejected
		}
	}

	out := make([]allocation.AllocatedTimeSlot, 0, len(slots))
	for _, s := range slots {
		s.ID = m.nextSlotID
		m.nextSlotID++
		m.slots[s.ID] = s
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) DeleteSlot(_ context.Context, id allocation.SlotID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return false, nil
	}
	delete(m.slots, id)
	return true, nil
}

func (m *Memory) GetOption(_ context.Context, id allocation.OptionID) (*allocation.ReservationUnitOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.options[id]
	if !ok {
		return nil, allocation.ErrOptionNotFound
	}
	return &o, nil
}

func (m *Memory) OptionsInScope(_ context.Context, kind allocation.LedgerScopeKind, scopeID int64) ([]allocation.ReservationUnitOption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inScope := func(o allocation.ReservationUnitOption) bool {
		switch kind {
		case allocation.ScopeSection:
			return o.SectionID == allocation.SectionID(scopeID)
		case allocation.ScopeApplication:
			sec, ok := m.sections[o.SectionID]
			return ok && sec.ApplicationID == allocation.ApplicationID(scopeID)
		}
		return false
	}

	var out []allocation.ReservationUnitOption
	for _, o := range m.options {
		if inScope(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SetOptionsRejected(_ context.Context, ids []allocation.OptionID, rejected bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := 0
	for _, id := range ids {
		o, ok := m.options[id]
		if !ok {
			return changed, allocation.ErrOptionNotFound
		}
		if o.Rejected != rejected {
			o.Rejected = rejected
			m.options[id] = o
			changed++
		}
	}
	return changed, nil
}

func (m *Memory) SetOptionLocked(_ context.Context, id allocation.OptionID, locked bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.options[id]
	if !ok {
		return 0, allocation.ErrOptionNotFound
	}
	if o.Locked == locked {
		return 0, nil
	}
	o.Locked = locked
	m.options[id] = o
	return 1, nil
}

func (m *Memory) AppendRejectionEntry(_ context.Context, entry allocation.RejectionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *Memory) LatestOpenRejectionEntry(_ context.Context, kind allocation.LedgerScopeKind, scopeID int64) (*allocation.RejectionEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.ScopeKind == kind && e.ScopeID == scopeID && !e.Restored {
			out := e
			out.ChangedOptionIDs = append([]allocation.OptionID(nil), e.ChangedOptionIDs...)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *Memory) MarkRejectionRestored(_ context.Context, entryID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].ID == entryID {
			m.entries[i].Restored = true
			m.entries[i].RestoredAt = &at
			return nil
		}
	}
	return nil
}

func (m *Memory) SaveRun(_ context.Context, run allocation.AllocationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) ListRuns(_ context.Context, id allocation.RoundID) ([]allocation.AllocationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []allocation.AllocationRun
	for _, r := range m.runs {
		if r.RoundID == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) SetApplicationStatus(_ context.Context, id allocation.ApplicationID, status allocation.ApplicationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.applications[id]
	if !ok {
		return allocation.ErrApplicationNotFound
	}
	a.Status = status
	m.applications[id] = a
	return nil
}

func (m *Memory) SetRoundStatus(_ context.Context, id allocation.RoundID, status allocation.RoundStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rounds[id]
	if !ok {
		return allocation.ErrRoundNotFound
	}
	r.Status = status
	m.rounds[id] = r
	return nil
}

// =============================================================================
// TRANSACTIONS - Snapshot and rollback
// =============================================================================

// WithTx executes fn against the store, restoring a full snapshot of the
// mutable state if fn fails. Good enough for a single-process test store.
func (m *Memory) WithTx(ctx context.Context, fn func(allocation.Store) error) error {
	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	applications map[allocation.ApplicationID]allocation.Application
	options      map[allocation.OptionID]allocation.ReservationUnitOption
	slots        map[allocation.SlotID]allocation.AllocatedTimeSlot
	entries      []allocation.RejectionEntry
	rounds       map[allocation.RoundID]allocation.ApplicationRound
	nextSlotID   allocation.SlotID
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		applications: make(map[allocation.ApplicationID]allocation.Application, len(m.applications)),
		options:      make(map[allocation.OptionID]allocation.ReservationUnitOption, len(m.options)),
		slots:        make(map[allocation.SlotID]allocation.AllocatedTimeSlot, len(m.slots)),
		entries:      append([]allocation.RejectionEntry(nil), m.entries...),
		rounds:       make(map[allocation.RoundID]allocation.ApplicationRound, len(m.rounds)),
		nextSlotID:   m.nextSlotID,
	}
	for k, v := range m.applications {
		s.applications[k] = v
	}
	for k, v := range m.options {
		s.options[k] = v
	}
	for k, v := range m.slots {
		s.slots[k] = v
	}
	for k, v := range m.rounds {
		s.rounds[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applications = s.applications
	m.options = s.options
	m.slots = s.slots
	m.entries = s.entries
	m.rounds = s.rounds
	m.nextSlotID = s.nextSlotID
}
