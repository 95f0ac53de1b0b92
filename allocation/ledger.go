/*
ledger.go - Rejection/restoration bookkeeping

PURPOSE:
  Idempotent bulk operations over reservation unit options: reject all
  options in a scope (one section, or every section of an application),
  restore exactly what a prior reject changed, and lock/unlock single
  options. Plus slot deletion, the only sanctioned way to remove an
  allocated time slot.

PROVENANCE, NOT HEURISTICS:
  RejectAll appends an entry recording exactly which options it flipped.
  RestoreAll compensates the most recent open entry for the scope,
  clearing those options and no others. An option a staff member rejected
  individually before the bulk reject stays rejected after the restore.

IDEMPOTENCE:
  Calling either bulk operation twice in a row is observably identical to
  calling it once. A second RejectAll changes zero options and appends no
  entry; a second RestoreAll finds no open entry and changes nothing.
  Zero changed records is success, not an error.

SEE ALSO:
  - store.go: RejectionEntry, the persisted provenance record
  - allocator.go: skips rejected and locked options on its next pass
*/
package allocation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger executes the bulk rejection/restoration operations and slot
// deletion. Every operation reports the number of records it changed.
type Ledger struct {
	Store  TxStore
	Logger zerolog.Logger

	Now func() time.Time
}

func NewLedger(store TxStore, logger zerolog.Logger) *Ledger {
	return &Ledger{Store: store, Logger: logger, Now: time.Now}
}

// RejectAll sets rejected on every currently-non-rejected option in the
// scope. Existing allocated slots are left untouched. Returns the number
// of options changed; zero is success.
func (l *Ledger) RejectAll(ctx context.Context, kind LedgerScopeKind, scopeID int64) (int, error) {
	var changed int
	err := l.Store.WithTx(ctx, func(tx Store) error {
		options, err := tx.OptionsInScope(ctx, kind, scopeID)
		if err != nil {
			return err
		}

		var ids []OptionID
		for _, o := range options {
			if !o.Rejected {
				ids = append(ids, o.ID)
			}
		}
		if len(ids) == 0 {
			return nil // already fully rejected: idempotent no-op
		}

		n, err := tx.SetOptionsRejected(ctx, ids, true)
		if err != nil {
			return err
		}
		changed = n

		return tx.AppendRejectionEntry(ctx, RejectionEntry{
			ID:               uuid.NewString(),
			ScopeKind:        kind,
			ScopeID:          scopeID,
			ChangedOptionIDs: ids,
			CreatedAt:        l.Now(),
		})
	})
	if err != nil {
		return 0, err
	}

	l.Logger.Info().
		Str("scope", string(kind)).
		Int64("scope_id", scopeID).
		Int("changed", changed).
		Msg("reject all")
	return changed, nil
}

// RestoreAll clears rejected on exactly the options the most recent
// uncompensated RejectAll for the scope changed, skipping any option a
// human has locked. Returns the number of options changed.
func (l *Ledger) RestoreAll(ctx context.Context, kind LedgerScopeKind, scopeID int64) (int, error) {
	var changed int
	err := l.Store.WithTx(ctx, func(tx Store) error {
		entry, err := tx.LatestOpenRejectionEntry(ctx, kind, scopeID)
		if err != nil {
			return err
		}
		if entry == nil {
			return nil // nothing to compensate: idempotent no-op
		}

		var ids []OptionID
		for _, id := range entry.ChangedOptionIDs {
			opt, err := tx.GetOption(ctx, id)
			if err != nil {
				return err
			}
			if opt.Rejected && !opt.Locked {
				ids = append(ids, id)
			}
		}

		if len(ids) > 0 {
			n, err := tx.SetOptionsRejected(ctx, ids, false)
			if err != nil {
				return err
			}
			changed = n
		}
		return tx.MarkRejectionRestored(ctx, entry.ID, l.Now())
	})
	if err != nil {
		return 0, err
	}

	l.Logger.Info().
		Str("scope", string(kind)).
		Int64("scope_id", scopeID).
		Int("changed", changed).
		Msg("restore all")
	return changed, nil
}

// Lock marks one option as locked: future allocator passes skip it, but
// any slot it already holds stays. Idempotent.
func (l *Ledger) Lock(ctx context.Context, id OptionID) (int, error) {
	return l.Store.SetOptionLocked(ctx, id, true)
}

// Unlock clears the locked flag. Idempotent.
func (l *Ledger) Unlock(ctx context.Context, id OptionID) (int, error) {
	return l.Store.SetOptionLocked(ctx, id, false)
}

// DeleteSlot removes one allocated time slot. Idempotent: a missing slot
// reports zero changes. Option flags are never touched, so deletion can
// never resurrect a rejected option.
func (l *Ledger) DeleteSlot(ctx context.Context, id SlotID) (int, error) {
	deleted, err := l.Store.DeleteSlot(ctx, id)
	if err != nil {
		return 0, err
	}
	if !deleted {
		return 0, nil
	}
	l.Logger.Info().Int64("slot", int64(id)).Msg("allocated time slot deleted")
	return 1, nil
}
