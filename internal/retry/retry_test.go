package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

func TestExponentialBackoffWithoutJitter(t *testing.T) {
	b := ExponentialBackoff(100*time.Millisecond, 2.0, 10*time.Second, false)

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for attempt, w := range want {
		assert.Equal(t, w, b.Delay(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, 10*time.Second, b.Delay(7), "capped at max")
}

func TestExponentialBackoffJitterIsDeterministic(t *testing.T) {
	b := ExponentialBackoff(100*time.Millisecond, 2.0, 10*time.Second, true)
	first := b.Delay(3)
	second := b.Delay(3)
	assert.Equal(t, first, second, "jitter must be a pure function of the attempt number")
	assert.Greater(t, first, 800*time.Millisecond, "jitter only adds delay")
}

func TestLinearBackoffCapsAtMax(t *testing.T) {
	b := LinearBackoff(10*time.Millisecond, 10*time.Millisecond, 25*time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, b.Delay(0))
	assert.Equal(t, 20*time.Millisecond, b.Delay(1))
	assert.Equal(t, 25*time.Millisecond, b.Delay(2), "capped")
}

func TestDoRetriesTransientErrorsAndSucceeds(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 3, Policy: DefaultPolicy(), Backoff: NoBackoff()}

	result, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errs.NewTransportError("10.0.0.1:50000", assertErr)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestDoExhaustsOnPermanentError(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 3, Policy: DefaultPolicy(), Backoff: NoBackoff()}

	_, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		return "", errs.NewValidationError("arg", "bad value")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "a terminal error is never retried")
}

func TestDoMaxRetriesZeroMeansOneAttempt(t *testing.T) {
	attempts := 0
	cfg := Config{MaxRetries: 0, Policy: DefaultPolicy(), Backoff: NoBackoff()}

	_, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		attempts++
		return "", errs.NewTransportError("x", assertErr)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoRespectsTotalDeadline(t *testing.T) {
	cfg := Config{
		MaxRetries:    100,
		Policy:        DefaultPolicy(),
		Backoff:       FixedBackoff(5 * time.Millisecond),
		TotalDeadline: 30 * time.Millisecond,
	}

	start := time.Now()
	_, err := Do(context.Background(), cfg, func(ctx context.Context) (string, error) {
		return "", errs.NewTransportError("x", assertErr)
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestDoAbandonsSleepOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 5, Policy: DefaultPolicy(), Backoff: FixedBackoff(time.Hour)}

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, cfg, func(ctx context.Context) (string, error) {
		return "", errs.NewTransportError("x", assertErr)
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestCustomPolicyOverridesRetryableSet(t *testing.T) {
	p := CustomPolicy(errs.KindValidation)
	assert.True(t, p.Allow(errs.NewValidationError("f", "r")))
	assert.False(t, p.Allow(errs.NewTransportError("x", assertErr)))
}

func TestNeverRetryPolicy(t *testing.T) {
	p := NeverRetryPolicy()
	assert.False(t, p.Allow(errs.NewTransportError("x", assertErr)))
}

func TestCircuitOpenIsTerminalByDefault(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.Allow(errs.NewCircuitOpenError(time.Second)))
}

var assertErr = context.DeadlineExceeded
