package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessAfterFailureResetsConsecutiveFailures(t *testing.T) {
	h := NewEndpointHealth("10.0.0.1:50000", 3)
	h.RecordFailure()
	h.RecordFailure()
	h.RecordSuccess()
	assert.Equal(t, int64(0), h.ConsecutiveFailures())
	assert.Equal(t, StatusHealthy, h.Status())
}

func TestNthConsecutiveFailureMarksUnhealthy(t *testing.T) {
	h := NewEndpointHealth("10.0.0.1:50000", 3)
	h.RecordFailure()
	h.RecordFailure()
	assert.Equal(t, StatusUnknown, h.Status())
	h.RecordFailure()
	assert.Equal(t, StatusUnhealthy, h.Status())
}

func TestFailureThresholdOneUnhealthyOnFirstFailure(t *testing.T) {
	h := NewEndpointHealth("x", 1)
	h.RecordFailure()
	assert.Equal(t, StatusUnhealthy, h.Status())
}

func TestFailureRateZeroWithNoRequests(t *testing.T) {
	h := NewEndpointHealth("x", 3)
	assert.Equal(t, 0.0, h.FailureRate())
}

func TestFailureRateComputation(t *testing.T) {
	h := NewEndpointHealth("x", 100)
	h.RecordSuccess()
	h.RecordFailure()
	h.RecordFailure()
	assert.InDelta(t, 2.0/3.0, h.FailureRate(), 0.0001)
}

func TestRoundRobinSelectsInOrder(t *testing.T) {
	a, b, c := NewEndpointHealth("a", 3), NewEndpointHealth("b", 3), NewEndpointHealth("c", 3)
	sel := NewRoundRobinSelector()
	healthy := []*EndpointHealth{a, b, c}

	first, _ := sel.Select(healthy)
	second, _ := sel.Select(healthy)
	third, _ := sel.Select(healthy)
	fourth, _ := sel.Select(healthy)

	assert.Equal(t, a, first)
	assert.Equal(t, b, second)
	assert.Equal(t, c, third)
	assert.Equal(t, a, fourth, "wraps around")
}

func TestLeastFailuresPicksArgminWithTieBreakByOrder(t *testing.T) {
	a := NewEndpointHealth("a", 100)
	b := NewEndpointHealth("b", 100)
	a.RecordFailure()
	a.RecordSuccess()
	b.RecordFailure()
	b.RecordSuccess()
	// identical failure rates: tie broken by first occurrence
	sel := NewLeastFailuresSelector()
	picked, err := sel.Select([]*EndpointHealth{a, b})
	require.NoError(t, err)
	assert.Equal(t, a, picked)
}

func TestFailoverAlwaysPicksFirst(t *testing.T) {
	a, b := NewEndpointHealth("a", 3), NewEndpointHealth("b", 3)
	sel := NewFailoverSelector()
	for i := 0; i < 3; i++ {
		picked, err := sel.Select([]*EndpointHealth{a, b})
		require.NoError(t, err)
		assert.Equal(t, a, picked)
	}
}

func TestSelectorsRejectEmptyHealthySlice(t *testing.T) {
	for _, sel := range []Selector{NewRoundRobinSelector(), NewRandomSelector(), NewLeastFailuresSelector(), NewFailoverSelector()} {
		_, err := sel.Select(nil)
		require.Error(t, err, sel.Name())
	}
}

func TestFactoryCreatesRegisteredStrategies(t *testing.T) {
	f := NewFactory()
	for _, name := range []string{PolicyRoundRobin, PolicyRandom, PolicyLeastFailures, PolicyFailover} {
		sel, err := f.Create(name)
		require.NoError(t, err)
		assert.Equal(t, name, sel.Name())
	}
	_, err := f.Create("nonexistent")
	require.Error(t, err)
}
