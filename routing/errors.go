package routing

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrEmptyChain is returned when a router is built without chain entries
	ErrEmptyChain = errors.New("fallback chain is empty")

	// ErrModelNotInChain is returned when a request names a model that is
	// not part of the fallback chain
	ErrModelNotInChain = errors.New("model not in fallback chain")
)

// SkipReason explains why a chain entry was not attempted
type SkipReason string

const (
	// SkipCooldown means the model failed within the failure window
	SkipCooldown SkipReason = "cooldown"

	// SkipThrottled means the provider's client-side rate limit was hit
	SkipThrottled SkipReason = "throttled"
)

// Attempt records the outcome for one chain entry during a completion
type Attempt struct {
	Ref        ModelRef      `json:"ref"`
	Skipped    bool          `json:"skipped"`
	SkipReason SkipReason    `json:"skip_reason,omitempty"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency,omitempty"`
}

// AllFailedError is returned when every entry in the fallback chain was
// skipped or failed
type AllFailedError struct {
	Attempts []Attempt
}

// Error implements the error interface
func (e *AllFailedError) Error() string {
	var b strings.Builder
	b.WriteString("all models failed or are cooling down")
	for _, attempt := range e.Attempts {
		b.WriteString("; ")
		b.WriteString(attempt.Ref.Key())
		if attempt.Skipped {
			fmt.Fprintf(&b, " skipped (%s)", attempt.SkipReason)
		} else if attempt.Err != nil {
			b.WriteString(": ")
			b.WriteString(attempt.Err.Error())
		}
	}
	return b.String()
}

// OnlyThrottled reports whether every entry was skipped by rate limiting.
// The gateway maps this to 503 rather than 502.
func (e *AllFailedError) OnlyThrottled() bool {
	if len(e.Attempts) == 0 {
		return false
	}
	for _, attempt := range e.Attempts {
		if !attempt.Skipped || attempt.SkipReason != SkipThrottled {
			return false
		}
	}
	return true
}
