package allocation

import "sync"

// =============================================================================
// ROUND LOCKS - Mutual exclusion per application round
// =============================================================================

// RoundLocks serializes engine runs per round. Two runs for the same
// round could each look conflict-free against a stale snapshot yet
// conflict with each other, so they must never interleave. Runs for
// different rounds proceed in parallel.
type RoundLocks struct {
	mu    sync.Mutex
	locks map[RoundID]*sync.Mutex
}

func NewRoundLocks() *RoundLocks {
	return &RoundLocks{locks: make(map[RoundID]*sync.Mutex)}
}

func (rl *RoundLocks) lockFor(id RoundID) *sync.Mutex {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.locks[id]
	if !ok {
		l = &sync.Mutex{}
		rl.locks[id] = l
	}
	return l
}

// TryAcquire attempts to take the round's lock without blocking.
// Returns ErrConcurrentModification when another run holds it; the
// caller decides whether to retry.
func (rl *RoundLocks) TryAcquire(id RoundID) (release func(), err error) {
	l := rl.lockFor(id)
	if !l.TryLock() {
		return nil, ErrConcurrentModification
	}
	return l.Unlock, nil
}
