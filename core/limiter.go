package core

import "sync"

// TurnLimiter enforces the maximum number of turns of one run.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a new limiter. If max <= 0, unlimited turns are allowed.
func NewTurnLimiter(max int) *TurnLimiter {
	return &TurnLimiter{max: max}
}

// Increment starts a new turn and returns *MaxTurnsExceededError if the limit
// would be exceeded. The counter is not advanced past the limit.
func (tl *TurnLimiter) Increment() error {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max > 0 && tl.count >= tl.max {
		return &MaxTurnsExceededError{MaxTurns: tl.max}
	}

	tl.count++

	return nil
}

// Count returns the number of turns started.
func (tl *TurnLimiter) Count() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	return tl.count
}

// Remaining returns how many turns are left before hitting the limit.
func (tl *TurnLimiter) Remaining() int {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.max <= 0 {
		return -1 // unlimited
	}

	return tl.max - tl.count
}
