/*
handlers.go - HTTP request handlers

PURPOSE:
  Maps the HTTP surface onto the allocation engine: triggering allocation
  runs, the bulk reject/restore operations, option locking, slot deletion
  and the read endpoints staff use to review a round.

ERROR MAPPING:
  not found            -> 404
  concurrent run       -> 409
  hierarchy cycle      -> 422
  invalid input        -> 400
  anything else        -> 500

SEE ALSO:
  - server.go: route registration
  - dto.go: wire formats
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/varaus/allocation-engine/allocation"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds the engine components the HTTP layer drives.
type Handler struct {
	Store     allocation.TxStore
	Allocator *allocation.Allocator
	Ledger    *allocation.Ledger
	Indexes   *allocation.IndexCache
	Logger    zerolog.Logger
}

func NewHandler(store allocation.TxStore, alloc *allocation.Allocator, ledger *allocation.Ledger, indexes *allocation.IndexCache, logger zerolog.Logger) *Handler {
	return &Handler{
		Store:     store,
		Allocator: alloc,
		Ledger:    ledger,
		Indexes:   indexes,
		Logger:    logger,
	}
}

// =============================================================================
// ALLOCATION
// =============================================================================

// AllocateRound runs one allocation batch for the round.
// POST /api/rounds/{id}/allocate
func (h *Handler) AllocateRound(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	run, err := h.Allocator.AllocateRound(r.Context(), allocation.RoundID(roundID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// ListRuns returns the round's allocation runs, newest first.
// GET /api/rounds/{id}/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.Store.GetRound(r.Context(), allocation.RoundID(roundID)); err != nil {
		h.writeError(w, err)
		return
	}
	runs, err := h.Store.ListRuns(r.Context(), allocation.RoundID(roundID))
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]RunDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

// RejectSection rejects every option of one section.
// POST /api/sections/{id}/reject-all
func (h *Handler) RejectSection(w http.ResponseWriter, r *http.Request) {
	h.ledgerOp(w, r, allocation.ScopeSection, h.Ledger.RejectAll)
}

// RestoreSection compensates the latest bulk rejection of one section.
// POST /api/sections/{id}/restore-all
func (h *Handler) RestoreSection(w http.ResponseWriter, r *http.Request) {
	h.ledgerOp(w, r, allocation.ScopeSection, h.Ledger.RestoreAll)
}

// RejectApplication rejects every option across the application's sections.
// POST /api/applications/{id}/reject-all
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	h.ledgerOp(w, r, allocation.ScopeApplication, h.Ledger.RejectAll)
}

// RestoreApplication compensates the latest bulk rejection of one application.
// POST /api/applications/{id}/restore-all
func (h *Handler) RestoreApplication(w http.ResponseWriter, r *http.Request) {
	h.ledgerOp(w, r, allocation.ScopeApplication, h.Ledger.RestoreAll)
}

func (h *Handler) ledgerOp(
	w http.ResponseWriter,
	r *http.Request,
	kind allocation.LedgerScopeKind,
	op func(ctx context.Context, kind allocation.LedgerScopeKind, scopeID int64) (int, error),
) {
	scopeID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	changed, err := op(r.Context(), kind, scopeID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

// LockOption marks one option as locked.
// POST /api/options/{id}/lock
func (h *Handler) LockOption(w http.ResponseWriter, r *http.Request) {
	h.optionFlagOp(w, r, h.Ledger.Lock)
}

// UnlockOption clears the locked flag on one option.
// POST /api/options/{id}/unlock
func (h *Handler) UnlockOption(w http.ResponseWriter, r *http.Request) {
	h.optionFlagOp(w, r, h.Ledger.Unlock)
}

func (h *Handler) optionFlagOp(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id allocation.OptionID) (int, error),
) {
	optionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	changed, err := op(r.Context(), allocation.OptionID(optionID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

// DeleteSlot removes one allocated time slot. Idempotent.
// DELETE /api/slots/{id}
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	changed, err := h.Ledger.DeleteSlot(r.Context(), allocation.SlotID(slotID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ChangedDTO{Changed: changed})
}

// =============================================================================
// READ ENDPOINTS
// =============================================================================

// RoundResults returns per-section allocation results with derived status.
// GET /api/rounds/{id}/results
func (h *Handler) RoundResults(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	snap, err := h.Store.LoadRoundSnapshot(r.Context(), allocation.RoundID(roundID))
	if err != nil {
		h.writeError(w, err)
		return
	}

	optionsBySection := make(map[allocation.SectionID][]allocation.ReservationUnitOption)
	optionSection := make(map[allocation.OptionID]allocation.SectionID)
	for _, o := range snap.Options {
		optionsBySection[o.SectionID] = append(optionsBySection[o.SectionID], o)
		optionSection[o.ID] = o.SectionID
	}
	slotsBySection := make(map[allocation.SectionID][]allocation.AllocatedTimeSlot)
	for _, s := range snap.Slots {
		sec, known := optionSection[s.OptionID]
		if !known {
			continue
		}
		slotsBySection[sec] = append(slotsBySection[sec], s)
	}

	result := ResultsDTO{RoundID: roundID, Sections: []SectionResultDTO{}}
	for _, section := range snap.Sections {
		slots := slotsBySection[section.ID]
		status := allocation.DeriveSectionStatus(snap.Round, section, optionsBySection[section.ID], slots)

		dto := SectionResultDTO{
			SectionID:    int64(section.ID),
			Name:         section.Name,
			SlotsPerWeek: section.SlotsPerWeek,
			Status:       string(status),
			Slots:        []SlotDTO{},
		}
		for _, s := range slots {
			dto.Slots = append(dto.Slots, toSlotDTO(s))
		}
		result.Sections = append(result.Sections, dto)
	}
	writeJSON(w, http.StatusOK, result)
}

// RoundReport returns the round's aggregate allocation summary.
// GET /api/rounds/{id}/report
func (h *Handler) RoundReport(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	snap, err := h.Store.LoadRoundSnapshot(r.Context(), allocation.RoundID(roundID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(allocation.BuildRoundReport(snap)))
}

// AffectingSlots returns allocated slots that would collide with an ad-hoc
// candidate interval on one reservation unit.
// GET /api/rounds/{id}/affecting-slots?unit=&weekday=&begin=&end=
func (h *Handler) AffectingSlots(w http.ResponseWriter, r *http.Request) {
	roundID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	q := r.URL.Query()
	unitID, err := strconv.ParseInt(q.Get("unit"), 10, 64)
	if err != nil {
		h.writeBadRequest(w, "invalid unit id")
		return
	}
	weekday, wdOK := allocation.ParseWeekday(q.Get("weekday"))
	if !wdOK {
		h.writeBadRequest(w, "invalid weekday")
		return
	}
	begin, err := allocation.ParseTimeOfDay(q.Get("begin"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	end, err := allocation.ParseTimeOfDay(q.Get("end"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if begin >= end {
		h.writeBadRequest(w, "begin must precede end")
		return
	}

	snap, err := h.Store.LoadRoundSnapshot(r.Context(), allocation.RoundID(roundID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	index, err := h.Indexes.IndexFor(r.Context(), snap.Round)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !index.Knows(allocation.UnitID(unitID)) {
		h.writeError(w, allocation.ErrUnitNotFound)
		return
	}

	detector := allocation.NewConflictDetector(index, snap.Slots, snap.OptionUnits())
	slots := detector.AffectingSlots(allocation.UnitID(unitID), weekday, begin, end)

	out := make([]SlotDTO, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetApplication returns one application with its derived status.
// GET /api/applications/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	appID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	app, err := h.Store.GetApplication(r.Context(), allocation.ApplicationID(appID))
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, err := h.Store.LoadRoundSnapshot(r.Context(), app.RoundID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	optionsBySection := make(map[allocation.SectionID][]allocation.ReservationUnitOption)
	optionSection := make(map[allocation.OptionID]allocation.SectionID)
	for _, o := range snap.Options {
		optionsBySection[o.SectionID] = append(optionsBySection[o.SectionID], o)
		optionSection[o.ID] = o.SectionID
	}
	slotsBySection := make(map[allocation.SectionID][]allocation.AllocatedTimeSlot)
	for _, s := range snap.Slots {
		if sec, known := optionSection[s.OptionID]; known {
			slotsBySection[sec] = append(slotsBySection[sec], s)
		}
	}

	var sectionStatuses []allocation.SectionStatus
	for _, section := range snap.Sections {
		if section.ApplicationID != app.ID {
			continue
		}
		sectionStatuses = append(sectionStatuses, allocation.DeriveSectionStatus(
			snap.Round, section, optionsBySection[section.ID], slotsBySection[section.ID]))
	}

	status := allocation.DeriveApplicationStatus(*app, snap.Round, sectionStatuses)
	writeJSON(w, http.StatusOK, ApplicationDTO{
		ID:            int64(app.ID),
		RoundID:       int64(app.RoundID),
		ApplicantName: app.ApplicantName,
		ApplicantType: string(app.ApplicantType),
		Status:        string(status),
		WorkingMemo:   app.WorkingMemo,
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid " + param})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: msg})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case allocation.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorDTO{Error: "not found", Details: err.Error()})
	case errors.Is(err, allocation.ErrConcurrentModification):
		writeJSON(w, http.StatusConflict, ErrorDTO{Error: "allocation already in progress", Details: err.Error()})
	case errors.Is(err, allocation.ErrHierarchyCycle):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorDTO{Error: "hierarchy cycle", Details: err.Error()})
	case allocation.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid request", Details: err.Error()})
	default:
		h.Logger.Error().Err(err).Msg("internal error")
		writeJSON(w, http.StatusInternalServerError, ErrorDTO{Error: "internal error"})
	}
}
