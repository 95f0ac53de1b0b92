/*
worker.go - Background round-close worker

PURPOSE:
  Periodically sweeps rounds whose reservation period has ended and moves
  them, plus their active applications, to handled. Derived section
  statuses then read as handled without any per-section writes.

LIFECYCLE:
  Start launches one goroutine. Stop signals it and blocks until the
  in-flight sweep finishes.
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/varaus/allocation-engine/allocation"
)

// =============================================================================
// ROUND CLOSE WORKER
// =============================================================================

type RoundCloseWorker struct {
	Store    allocation.TxStore
	Logger   zerolog.Logger
	Interval time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time

	stop chan struct{}
	done sync.WaitGroup
}

func NewRoundCloseWorker(store allocation.TxStore, logger zerolog.Logger, interval time.Duration) *RoundCloseWorker {
	return &RoundCloseWorker{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep loop. One sweep runs immediately.
func (w *RoundCloseWorker) Start() {
	w.done.Add(1)
	go func() {
		defer w.done.Done()

		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()

		w.sweep(context.Background())
		for {
			select {
			case <-w.stop:
				return
			case <-ticker.C:
				w.sweep(context.Background())
			}
		}
	}()
}

// Stop signals the loop and waits for it to exit.
func (w *RoundCloseWorker) Stop() {
	close(w.stop)
	w.done.Wait()
}

// sweep closes every ended, not-yet-handled round.
func (w *RoundCloseWorker) sweep(ctx context.Context) {
	rounds, err := w.Store.ListRounds(ctx)
	if err != nil {
		w.Logger.Error().Err(err).Msg("round sweep: list rounds")
		return
	}

	now := w.Now()
	for _, round := range rounds {
		if round.Status == allocation.RoundHandled || !round.Ended(now) {
			continue
		}
		if err := w.closeRound(ctx, round.ID); err != nil {
			w.Logger.Error().Err(err).Int64("round", int64(round.ID)).Msg("round sweep: close round")
			continue
		}
		w.Logger.Info().Int64("round", int64(round.ID)).Msg("round closed")
	}
}

// closeRound marks the round handled and rolls its active applications
// over to handled in the same transaction.
func (w *RoundCloseWorker) closeRound(ctx context.Context, id allocation.RoundID) error {
	return w.Store.WithTx(ctx, func(tx allocation.Store) error {
		snap, err := tx.LoadRoundSnapshot(ctx, id)
		if err != nil {
			return err
		}
		for _, app := range snap.Applications {
			switch app.Status {
			case allocation.ApplicationReceived, allocation.ApplicationInAllocation:
				if err := tx.SetApplicationStatus(ctx, app.ID, allocation.ApplicationHandled); err != nil {
					return err
				}
			}
		}
		return tx.SetRoundStatus(ctx, id, allocation.RoundHandled)
	})
}
