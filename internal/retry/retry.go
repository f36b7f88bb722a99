// Package retry implements the retry engine: a pluggable retryability
// predicate crossed with a pluggable backoff strategy and an overall
// deadline, generic over the wrapped operation's result type.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

// BackoffKind is the closed set of backoff strategies.
type BackoffKind int

const (
	BackoffNone BackoffKind = iota
	BackoffFixed
	BackoffLinear
	BackoffExponential
)

// Backoff is a tagged variant: exactly the fields relevant to Kind are
// consulted by Delay. A struct with a tag keeps the preset strategies and
// the builder-style constructors without an interface per strategy.
type Backoff struct {
	Kind BackoffKind

	// Fixed
	Fixed time.Duration

	// Linear
	LinearInitial time.Duration
	LinearStep    time.Duration
	LinearMax     time.Duration

	// Exponential
	ExpInitial time.Duration
	ExpMult    float64
	ExpMax     time.Duration
	ExpJitter  bool
}

func NoBackoff() Backoff { return Backoff{Kind: BackoffNone} }

func FixedBackoff(d time.Duration) Backoff {
	return Backoff{Kind: BackoffFixed, Fixed: d}
}

func LinearBackoff(initial, step, max time.Duration) Backoff {
	return Backoff{Kind: BackoffLinear, LinearInitial: initial, LinearStep: step, LinearMax: max}
}

func ExponentialBackoff(initial time.Duration, mult float64, max time.Duration, jitter bool) Backoff {
	return Backoff{Kind: BackoffExponential, ExpInitial: initial, ExpMult: mult, ExpMax: max, ExpJitter: jitter}
}

// Delay computes the sleep duration before the given zero-based attempt
// number. The exponential jitter term is a deterministic function of the
// attempt number so tests can reproduce exact delays without mocking a
// clock or an RNG.
func (b Backoff) Delay(attempt int) time.Duration {
	switch b.Kind {
	case BackoffFixed:
		return b.Fixed
	case BackoffLinear:
		d := b.LinearInitial + b.LinearStep*time.Duration(attempt)
		if d > b.LinearMax {
			return b.LinearMax
		}
		return d
	case BackoffExponential:
		base := float64(b.ExpInitial) * math.Pow(b.ExpMult, float64(attempt))
		max := float64(b.ExpMax)
		if base > max {
			base = max
		}
		if b.ExpJitter {
			jitter := math.Abs(math.Sin(float64(attempt)*0.1)) * 0.25 * base
			base += jitter
			if base > max {
				base = max
			}
		}
		return time.Duration(base)
	default:
		return 0
	}
}

// PolicyKind is the closed set of retryability predicates.
type PolicyKind int

const (
	PolicyDefault PolicyKind = iota
	PolicyNever
	PolicyCustom
)

// Policy decides, given a classified error Kind, whether an attempt may be
// retried.
type Policy struct {
	Kind PolicyKind

	// Custom: the set of Kinds considered retryable.
	RetryableKinds map[errs.Kind]bool
}

func DefaultPolicy() Policy { return Policy{Kind: PolicyDefault} }

func NeverRetryPolicy() Policy { return Policy{Kind: PolicyNever} }

func CustomPolicy(retryable ...errs.Kind) Policy {
	set := make(map[errs.Kind]bool, len(retryable))
	for _, k := range retryable {
		set[k] = true
	}
	return Policy{Kind: PolicyCustom, RetryableKinds: set}
}

// defaultRetryableKinds: transport failures (which cover unavailable,
// deadline-exceeded, resource-exhausted and aborted statuses), pool
// exhaustion, and unclassified errors are retryable; everything else
// (including CircuitOpen) is terminal, so a tripped breaker
// short-circuits quickly.
var defaultRetryableKinds = map[errs.Kind]bool{
	errs.KindTransport:  true,
	errs.KindUnknown:    true,
	errs.KindConnection: true,
}

// Allow reports whether err may be retried under p.
func (p Policy) Allow(err error) bool {
	switch p.Kind {
	case PolicyNever:
		return false
	case PolicyCustom:
		return p.RetryableKinds[errs.Classify(err)]
	default:
		return defaultRetryableKinds[errs.Classify(err)]
	}
}

// Config bundles the retry loop's knobs.
type Config struct {
	MaxRetries    int
	Policy        Policy
	Backoff       Backoff
	TotalDeadline time.Duration // zero means unset
}

// Do runs fn, retrying per cfg until it succeeds, a non-retryable error is
// hit, MaxRetries is exhausted, or TotalDeadline elapses. At most
// MaxRetries+1 attempts are made. A context cancellation abandons the
// pending backoff sleep without counting the abandoned attempt as a
// failure.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	var zero T

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if !cfg.Policy.Allow(err) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			return zero, err
		}
		if cfg.TotalDeadline > 0 && time.Since(start) >= cfg.TotalDeadline {
			return zero, err
		}

		delay := cfg.Backoff.Delay(attempt)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// DoVoid is Do for operations with no result value.
func DoVoid(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
