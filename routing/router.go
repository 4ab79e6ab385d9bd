// Package routing implements the fallback call router: a preference-ordered
// chain of provider/model pairs, walked in order for every completion, with
// per-model failure cooldowns deciding which entries are eligible.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/llmfallback/llmfallback/providers"
	"go.uber.org/zap"
)

// ModelRef identifies one entry in the fallback chain
type ModelRef struct {
	// Provider is the registered provider name (e.g., "openai")
	Provider string `json:"provider" yaml:"provider"`

	// Model is the provider-specific model identifier
	Model string `json:"model" yaml:"model"`
}

// Key returns the canonical "provider/model" form
func (r ModelRef) Key() string {
	return r.Provider + "/" + r.Model
}

// ModelAuto requests routing across the whole chain instead of pinning a model
const ModelAuto = "auto"

// Limiter gates dispatch to a provider. A throttled provider is treated as
// unavailable for the current attempt and the router falls through.
type Limiter interface {
	Allow(provider string) bool
}

// Config holds router tuning
type Config struct {
	// FailureWindow is how long a failed model is skipped (default 1h)
	FailureWindow time.Duration

	// AttemptTimeout bounds each individual provider call. Zero means the
	// request context alone bounds the call.
	AttemptTimeout time.Duration
}

// Result is the outcome of a routed completion
type Result struct {
	// Response is the successful completion
	Response *providers.ChatResponse

	// Served is the chain entry that produced the response
	Served ModelRef

	// Attempts lists every chain entry considered, in order, including
	// the successful one
	Attempts []Attempt
}

// Router walks a preference-ordered model chain and redirects failed calls
// to the next entry
type Router struct {
	chain    []ModelRef
	registry *providers.Registry
	tracker  *HealthTracker
	limiter  Limiter
	config   Config
	logger   *zap.Logger
}

// NewRouter creates a router over the given chain. Every chain entry must
// resolve to a registered provider that supports the entry's model.
func NewRouter(chain []ModelRef, registry *providers.Registry, config Config, logger *zap.Logger) (*Router, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}
	if registry == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, ref := range chain {
		provider, err := registry.GetProvider(ref.Provider)
		if err != nil {
			return nil, fmt.Errorf("chain entry %s: %w", ref.Key(), err)
		}
		if err := provider.ValidateModel(ref.Model); err != nil {
			return nil, fmt.Errorf("chain entry %s: %w", ref.Key(), err)
		}
	}

	return &Router{
		chain:    chain,
		registry: registry,
		tracker:  NewHealthTracker(config.FailureWindow),
		config:   config,
		logger:   logger,
	}, nil
}

// SetLimiter installs a client-side rate limiter consulted before dispatch
func (r *Router) SetLimiter(limiter Limiter) {
	r.limiter = limiter
}

// Chain returns a copy of the preference-ordered chain
func (r *Router) Chain() []ModelRef {
	chain := make([]ModelRef, len(r.chain))
	copy(chain, r.chain)
	return chain
}

// Tracker exposes the health tracker for the admin surface
func (r *Router) Tracker() *HealthTracker {
	return r.tracker
}

// Health returns the chain's current failure state, in preference order
func (r *Router) Health() []ModelHealth {
	return r.tracker.Snapshot(r.chain)
}

// Completion routes a chat completion through the fallback chain.
//
// When req.Model is empty or "auto" the walk starts at the most-preferred
// entry; when it names a chain model the walk starts there and continues
// with the less-preferred entries. Entries inside their failure cooldown or
// throttled by the limiter are skipped. A failed call marks the entry and
// the walk continues; a request fault (the request itself is invalid, e.g.
// upstream 400) aborts immediately since replaying it elsewhere is futile.
func (r *Router) Completion(ctx context.Context, req *providers.ChatRequest) (*Result, error) {
	start, err := r.startIndex(req.Model)
	if err != nil {
		return nil, err
	}

	attempts := make([]Attempt, 0, len(r.chain)-start)

	for _, ref := range r.chain[start:] {
		if r.limiter != nil && !r.limiter.Allow(ref.Provider) {
			r.logger.Warn("provider throttled, falling through",
				zap.String("model", ref.Key()))
			attempts = append(attempts, Attempt{Ref: ref, Skipped: true, SkipReason: SkipThrottled})
			continue
		}

		if !r.tracker.Available(ref) {
			r.logger.Debug("model cooling down, falling through",
				zap.String("model", ref.Key()))
			attempts = append(attempts, Attempt{Ref: ref, Skipped: true, SkipReason: SkipCooldown})
			continue
		}

		resp, attempt := r.dispatch(ctx, ref, req)
		attempts = append(attempts, attempt)

		if attempt.Err == nil {
			r.tracker.RecordSuccess(ref)
			return &Result{Response: resp, Served: ref, Attempts: attempts}, nil
		}

		if isRequestFault(attempt.Err) {
			r.logger.Warn("request fault, aborting fallback",
				zap.String("model", ref.Key()),
				zap.Error(attempt.Err))
			return nil, attempt.Err
		}

		r.tracker.RecordFailure(ref, attempt.Err)
		r.logger.Warn("model call failed, falling through",
			zap.String("model", ref.Key()),
			zap.Duration("latency", attempt.Latency),
			zap.Error(attempt.Err))

		if ctx.Err() != nil {
			// The caller is gone; walking the rest of the chain would
			// fail the same way
			return nil, ctx.Err()
		}
	}

	return nil, &AllFailedError{Attempts: attempts}
}

// dispatch issues one provider call and returns its attempt record
func (r *Router) dispatch(ctx context.Context, ref ModelRef, req *providers.ChatRequest) (*providers.ChatResponse, Attempt) {
	attempt := Attempt{Ref: ref}

	provider, err := r.registry.GetProvider(ref.Provider)
	if err != nil {
		attempt.Err = err
		attempt.Error = err.Error()
		return nil, attempt
	}

	callCtx := ctx
	if r.config.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.config.AttemptTimeout)
		defer cancel()
	}

	// Reissue the same logical request against this entry's model
	callReq := *req
	callReq.Model = ref.Model

	callStart := time.Now()
	resp, err := provider.ChatCompletion(callCtx, &callReq)
	attempt.Latency = time.Since(callStart)

	if err != nil {
		attempt.Err = err
		attempt.Error = err.Error()
		return nil, attempt
	}

	return resp, attempt
}

// startIndex resolves the requested model to a chain position
func (r *Router) startIndex(model string) (int, error) {
	if model == "" || model == ModelAuto {
		return 0, nil
	}

	for i, ref := range r.chain {
		if ref.Model == model {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %s", ErrModelNotInChain, model)
}

// isRequestFault reports whether the error means the request itself is
// invalid. Provider faults (outages, rate limits, auth) are not request
// faults: a different backend may still serve the call.
func isRequestFault(err error) bool {
	var provErr *providers.ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode == http.StatusBadRequest
	}
	return false
}
