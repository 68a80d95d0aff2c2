package strategy

import "time"

// TurnScheduler rate-limits direction changes. Strategies embed it to avoid
// flipping a position back and forth on every crossing tick.
type TurnScheduler struct {
	minInterval time.Duration
	lastTurn    time.Time
}

// NewTurnScheduler allows at most one turn per interval.
func NewTurnScheduler(minInterval time.Duration) *TurnScheduler {
	return &TurnScheduler{minInterval: minInterval}
}

// CanTurn reports whether enough time has passed since the last turn.
func (t *TurnScheduler) CanTurn() bool {
	return t.lastTurn.IsZero() || time.Since(t.lastTurn) >= t.minInterval
}

// MarkTurn records a direction change.
func (t *TurnScheduler) MarkTurn() { t.lastTurn = time.Now() }
