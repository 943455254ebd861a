// Package tracker implements the per-camera health state machine: the
// HEALTHY / FAILING / OFFLINE states and the discrete backoff multiplier
// that governs how often an OFFLINE camera is retried.
package tracker

import (
	"sync"
	"time"
)

// State is one of the three states a camera can be in.
type State string

const (
	Healthy State = "HEALTHY"
	Failing State = "FAILING"
	Offline State = "OFFLINE"
)

// offlineStrikeThreshold is the number of consecutive failures required
// before a camera is considered OFFLINE rather than merely FAILING.
const offlineStrikeThreshold = 3

// multiplierSequence is the closed set of backoff multipliers applied to the
// camera's configured capture interval while OFFLINE. It intentionally does
// not continue doubling past 12 - an unattended multi-day outage should not
// push retries out to hours.
var multiplierSequence = []int{1, 2, 4, 8, 12}

// Tracker holds the mutable state for a single camera.
type Tracker struct {
	mu                  sync.Mutex
	cameraID            string
	state               State
	consecutiveFailures int
	multiplierIdx       int
	lastSuccess         time.Time
	lastFailure         time.Time
	lastError           error
	nextAttempt         time.Time
}

// New creates a tracker starting in the HEALTHY state.
func New(cameraID string) *Tracker {
	return &Tracker{
		cameraID: cameraID,
		state:    Healthy,
	}
}

// Snapshot is an immutable view of tracker state, safe to serialize.
type Snapshot struct {
	CameraID            string
	State               State
	ConsecutiveFailures int
	Multiplier          int
	LastSuccess         time.Time
	LastFailure         time.Time
	LastError           string
	NextAttempt         time.Time
}

// Get returns a point-in-time snapshot of the tracker.
func (t *Tracker) Get() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lastErr string
	if t.lastError != nil {
		lastErr = t.lastError.Error()
	}

	return Snapshot{
		CameraID:            t.cameraID,
		State:               t.state,
		ConsecutiveFailures: t.consecutiveFailures,
		Multiplier:          multiplierSequence[t.multiplierIdx],
		LastSuccess:         t.lastSuccess,
		LastFailure:         t.lastFailure,
		LastError:           lastErr,
		NextAttempt:         t.nextAttempt,
	}
}

// RecordSuccess transitions the camera back to HEALTHY and resets the
// backoff multiplier to 1, regardless of how deep into backoff it was.
func (t *Tracker) RecordSuccess(now time.Time, baseInterval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = Healthy
	t.consecutiveFailures = 0
	t.multiplierIdx = 0
	t.lastSuccess = now
	t.lastError = nil
	t.nextAttempt = now.Add(baseInterval)
}

// RecordFailure registers a capture failure. The camera moves to FAILING on
// the first failure and to OFFLINE once offlineStrikeThreshold consecutive
// failures have accumulated; each additional failure while OFFLINE advances
// the multiplier one step further along the closed sequence.
func (t *Tracker) RecordFailure(now time.Time, baseInterval time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.consecutiveFailures++
	t.lastFailure = now
	t.lastError = err

	switch {
	case t.consecutiveFailures < offlineStrikeThreshold:
		t.state = Failing
		t.nextAttempt = now.Add(baseInterval)
	default:
		if t.state != Offline {
			t.multiplierIdx = 0
		} else if t.multiplierIdx < len(multiplierSequence)-1 {
			t.multiplierIdx++
		}
		t.state = Offline
		mult := multiplierSequence[t.multiplierIdx]
		t.nextAttempt = now.Add(time.Duration(mult) * baseInterval)
	}
}

// ShouldAttempt reports whether enough time has passed to try a capture (or
// a keep-alive probe) again.
func (t *Tracker) ShouldAttempt(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextAttempt.IsZero() || !now.Before(t.nextAttempt)
}

// IsOffline reports whether the camera is currently in the OFFLINE state.
func (t *Tracker) IsOffline() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == Offline
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
