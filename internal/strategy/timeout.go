package strategy

import "time"

// TimeoutTracker is a cooperative, poll-based countdown. Strategies embed it
// to fire an action when a position sits too long without the price moving
// in their favor. The countdown restarts whenever the observed rate improves
// on the best seen so far; it is checked on each tick, so firing is bounded
// by tick frequency, not a hard timer.
type TimeoutTracker struct {
	timeout   time.Duration
	started   time.Time
	bestRate  float64
	onTimeout func()
	active    bool
}

// NewTimeoutTracker creates a tracker firing handler after timeout elapses
// without a favorable price move.
func NewTimeoutTracker(timeout time.Duration, handler func()) *TimeoutTracker {
	return &TimeoutTracker{timeout: timeout, onTimeout: handler}
}

// Start arms the countdown at the given reference rate.
func (t *TimeoutTracker) Start(rate float64) {
	t.started = time.Now()
	t.bestRate = rate
	t.active = true
}

// Stop disarms the countdown.
func (t *TimeoutTracker) Stop() { t.active = false }

// Active reports whether the countdown is armed.
func (t *TimeoutTracker) Active() bool { return t.active }

// Check updates the countdown with the current rate. favorableAbove states
// whether higher rates count as improvement (true for long positions).
// Fires the handler and disarms once the timeout elapses.
func (t *TimeoutTracker) Check(rate float64, favorableAbove bool) {
	if !t.active || t.timeout <= 0 {
		return
	}
	improved := (favorableAbove && rate > t.bestRate) || (!favorableAbove && rate < t.bestRate)
	if improved {
		t.bestRate = rate
		t.started = time.Now()
		return
	}
	if time.Since(t.started) >= t.timeout {
		t.active = false
		if t.onTimeout != nil {
			t.onTimeout()
		}
	}
}
