package routing

import (
	"sync"
	"time"
)

// DefaultFailureWindow is how long a failed model is skipped before it
// becomes eligible again
const DefaultFailureWindow = time.Hour

// ModelHealth is a point-in-time view of one chain entry's failure state
type ModelHealth struct {
	Ref                 ModelRef      `json:"ref"`
	Available           bool          `json:"available"`
	LastFailure         *time.Time    `json:"last_failure,omitempty"`
	LastError           string        `json:"last_error,omitempty"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	CooldownRemaining   time.Duration `json:"cooldown_remaining"`
	TotalFailures       int           `json:"total_failures"`
	TotalSuccesses      int           `json:"total_successes"`
}

type modelState struct {
	lastFailure         time.Time
	lastError           string
	consecutiveFailures int
	totalFailures       int
	totalSuccesses      int
}

// HealthTracker keeps per-model failure bookkeeping for the fallback chain.
// A model that failed within the failure window is reported unavailable;
// once the window elapses the model is eligible again and the next live
// request acts as the probe.
type HealthTracker struct {
	mu            sync.RWMutex
	failureWindow time.Duration
	states        map[string]*modelState
	now           func() time.Time
}

// NewHealthTracker creates a tracker with the given failure window.
// A zero or negative window falls back to DefaultFailureWindow.
func NewHealthTracker(failureWindow time.Duration) *HealthTracker {
	if failureWindow <= 0 {
		failureWindow = DefaultFailureWindow
	}
	return &HealthTracker{
		failureWindow: failureWindow,
		states:        make(map[string]*modelState),
		now:           time.Now,
	}
}

// RecordFailure stamps a failure for the model at the current time
func (t *HealthTracker) RecordFailure(ref ModelRef, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(ref)
	state.lastFailure = t.now()
	state.consecutiveFailures++
	state.totalFailures++
	if err != nil {
		state.lastError = err.Error()
	}
}

// RecordSuccess clears the model's failure state
func (t *HealthTracker) RecordSuccess(ref ModelRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(ref)
	state.lastFailure = time.Time{}
	state.lastError = ""
	state.consecutiveFailures = 0
	state.totalSuccesses++
}

// Available reports whether the model is outside its failure cooldown
func (t *HealthTracker) Available(ref ModelRef) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.states[ref.Key()]
	if !ok || state.lastFailure.IsZero() {
		return true
	}
	return t.now().Sub(state.lastFailure) >= t.failureWindow
}

// Reset clears all recorded state for the model
func (t *HealthTracker) Reset(ref ModelRef) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.states, ref.Key())
}

// Health returns the current view for one model
func (t *HealthTracker) Health(ref ModelRef) ModelHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.healthLocked(ref)
}

// Snapshot returns the current view for the given chain, in chain order
func (t *HealthTracker) Snapshot(chain []ModelRef) []ModelHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snapshot := make([]ModelHealth, len(chain))
	for i, ref := range chain {
		snapshot[i] = t.healthLocked(ref)
	}
	return snapshot
}

// FailureWindow returns the configured cooldown duration
func (t *HealthTracker) FailureWindow() time.Duration {
	return t.failureWindow
}

func (t *HealthTracker) healthLocked(ref ModelRef) ModelHealth {
	health := ModelHealth{Ref: ref, Available: true}

	state, ok := t.states[ref.Key()]
	if !ok {
		return health
	}

	health.ConsecutiveFailures = state.consecutiveFailures
	health.TotalFailures = state.totalFailures
	health.TotalSuccesses = state.totalSuccesses
	health.LastError = state.lastError

	if !state.lastFailure.IsZero() {
		failure := state.lastFailure
		health.LastFailure = &failure

		elapsed := t.now().Sub(state.lastFailure)
		if elapsed < t.failureWindow {
			health.Available = false
			health.CooldownRemaining = t.failureWindow - elapsed
		}
	}

	return health
}

// state returns the entry for ref, creating it if needed. Callers hold the lock.
func (t *HealthTracker) state(ref ModelRef) *modelState {
	key := ref.Key()
	state, ok := t.states[key]
	if !ok {
		state = &modelState{}
		t.states[key] = state
	}
	return state
}
