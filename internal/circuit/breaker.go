// Package circuit implements a Closed / Open / HalfOpen circuit breaker
// with bounded half-open probe concurrency. One Breaker instance guards
// one call site; the connection pool keeps one Breaker per endpoint.
package circuit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Config bundles the breaker's thresholds.
type Config struct {
	FailureThreshold      int
	SuccessThreshold      int
	ResetTimeout          time.Duration
	HalfOpenMaxConcurrent int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		ResetTimeout:          30 * time.Second,
		HalfOpenMaxConcurrent: 3,
	}
}

// Breaker is safe for concurrent use. failureCount/successCount/
// halfOpenInFlight and the lifetime counters are atomics; state and
// openedAt are guarded together by mu since a transition must move both
// at once.
type Breaker struct {
	cfg Config

	mu       sync.Mutex
	state    State
	openedAt time.Time

	failureCount     atomic.Int64
	successCount     atomic.Int64
	halfOpenInFlight atomic.Int64

	totalCalls      atomic.Int64
	totalFailures   atomic.Int64
	totalRejections atomic.Int64
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg}
}

// State returns the current state, lazily performing the Open->HalfOpen
// transition if ResetTimeout has elapsed since opening.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransitionToHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeTransitionToHalfOpenLocked() {
	if b.state == Open && time.Since(b.openedAt) >= b.cfg.ResetTimeout {
		b.state = HalfOpen
		b.successCount.Store(0)
		b.halfOpenInFlight.Store(0)
	}
}

// canExecuteLocked is the admission rule: Closed always admits, Open never
// does, HalfOpen admits while in-flight probes stay under the cap. Must be
// called with mu held.
func (b *Breaker) canExecuteLocked() bool {
	b.maybeTransitionToHalfOpenLocked()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		return b.halfOpenInFlight.Load() < int64(b.cfg.HalfOpenMaxConcurrent)
	default: // Open
		return false
	}
}

// Call runs op under the breaker's admission rule, recording the outcome.
// Returns CircuitOpenError if the call is not admitted.
func Call[T any](ctx context.Context, b *Breaker, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b.totalCalls.Add(1)

	b.mu.Lock()
	if !b.canExecuteLocked() {
		b.mu.Unlock()
		b.totalRejections.Add(1)
		return zero, errs.NewCircuitOpenError(b.retryAfterLocked())
	}
	isHalfOpen := b.state == HalfOpen
	if isHalfOpen {
		b.halfOpenInFlight.Add(1)
	}
	b.mu.Unlock()

	if isHalfOpen {
		defer b.halfOpenInFlight.Add(-1)
	}

	result, err := op(ctx)
	if err != nil {
		b.onFailure()
		return zero, err
	}
	b.onSuccess()
	return result, nil
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failureCount.Store(0)
	case HalfOpen:
		if b.successCount.Add(1) >= int64(b.cfg.SuccessThreshold) {
			b.state = Closed
			b.failureCount.Store(0)
			b.successCount.Store(0)
			b.halfOpenInFlight.Store(0)
			b.openedAt = time.Time{}
		}
	case Open:
		b.failureCount.Store(0)
	}
}

func (b *Breaker) onFailure() {
	b.totalFailures.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		if b.failureCount.Add(1) >= int64(b.cfg.FailureThreshold) {
			b.openLocked()
		}
	case HalfOpen:
		b.openLocked()
	case Open:
		// already open
	}
}

func (b *Breaker) openLocked() {
	b.state = Open
	b.openedAt = time.Now()
	b.failureCount.Store(0)
	b.successCount.Store(0)
	b.halfOpenInFlight.Store(0)
}

func (b *Breaker) retryAfterLocked() time.Duration {
	remaining := b.cfg.ResetTimeout - time.Since(b.openedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset forces the breaker back to Closed and zeroes the failure, success
// and half-open in-flight counters; the lifetime totals are kept.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.openedAt = time.Time{}
	b.failureCount.Store(0)
	b.successCount.Store(0)
	b.halfOpenInFlight.Store(0)
}

func (b *Breaker) TotalCalls() int64      { return b.totalCalls.Load() }
func (b *Breaker) TotalFailures() int64   { return b.totalFailures.Load() }
func (b *Breaker) TotalRejections() int64 { return b.totalRejections.Load() }

func (b *Breaker) FailureRate() float64 {
	calls := b.totalCalls.Load()
	if calls == 0 {
		return 0
	}
	return float64(b.totalFailures.Load()) / float64(calls)
}
