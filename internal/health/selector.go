package health

import (
	"fmt"
	"math/rand"
	"sync/atomic"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

// Selector picks one endpoint among a slice of healthy candidates.
type Selector interface {
	Name() string
	Select(healthy []*EndpointHealth) (*EndpointHealth, error)
}

const (
	PolicyRoundRobin    = "round-robin"
	PolicyRandom        = "random"
	PolicyLeastFailures = "least-failures"
	PolicyFailover      = "failover"
)

func noHealthyEndpoints() error {
	return errs.NewConnectionError("no healthy endpoints")
}

// RoundRobinSelector cycles endpoints[(cursor++) mod len] over the Healthy
// slice in the slice's current order.
type RoundRobinSelector struct {
	cursor atomic.Uint64
}

func NewRoundRobinSelector() *RoundRobinSelector { return &RoundRobinSelector{} }

func (s *RoundRobinSelector) Name() string { return PolicyRoundRobin }

func (s *RoundRobinSelector) Select(healthy []*EndpointHealth) (*EndpointHealth, error) {
	if len(healthy) == 0 {
		return nil, noHealthyEndpoints()
	}
	idx := s.cursor.Add(1) - 1
	return healthy[idx%uint64(len(healthy))], nil
}

// RandomSelector picks uniformly over the Healthy slice.
type RandomSelector struct{}

func NewRandomSelector() *RandomSelector { return &RandomSelector{} }

func (s *RandomSelector) Name() string { return PolicyRandom }

func (s *RandomSelector) Select(healthy []*EndpointHealth) (*EndpointHealth, error) {
	if len(healthy) == 0 {
		return nil, noHealthyEndpoints()
	}
	return healthy[rand.Intn(len(healthy))], nil //nolint:gosec // load-balancing, not security sensitive
}

// LeastFailuresSelector picks argmin(failureRate), ties broken by
// first-occurrence in the Healthy slice.
type LeastFailuresSelector struct{}

func NewLeastFailuresSelector() *LeastFailuresSelector { return &LeastFailuresSelector{} }

func (s *LeastFailuresSelector) Name() string { return PolicyLeastFailures }

func (s *LeastFailuresSelector) Select(healthy []*EndpointHealth) (*EndpointHealth, error) {
	if len(healthy) == 0 {
		return nil, noHealthyEndpoints()
	}
	best := healthy[0]
	bestRate := best.FailureRate()
	for _, e := range healthy[1:] {
		if rate := e.FailureRate(); rate < bestRate {
			best, bestRate = e, rate
		}
	}
	return best, nil
}

// FailoverSelector always returns Healthy[0] — first in enumeration order,
// deterministic.
type FailoverSelector struct{}

func NewFailoverSelector() *FailoverSelector { return &FailoverSelector{} }

func (s *FailoverSelector) Name() string { return PolicyFailover }

func (s *FailoverSelector) Select(healthy []*EndpointHealth) (*EndpointHealth, error) {
	if len(healthy) == 0 {
		return nil, noHealthyEndpoints()
	}
	return healthy[0], nil
}

// Factory is a name->constructor registry for selectors, so callers can
// pick a policy from configuration by name.
type Factory struct {
	creators map[string]func() Selector
}

func NewFactory() *Factory {
	f := &Factory{creators: make(map[string]func() Selector)}
	f.Register(PolicyRoundRobin, func() Selector { return NewRoundRobinSelector() })
	f.Register(PolicyRandom, func() Selector { return NewRandomSelector() })
	f.Register(PolicyLeastFailures, func() Selector { return NewLeastFailuresSelector() })
	f.Register(PolicyFailover, func() Selector { return NewFailoverSelector() })
	return f
}

func (f *Factory) Register(name string, creator func() Selector) {
	f.creators[name] = creator
}

func (f *Factory) Create(name string) (Selector, error) {
	creator, ok := f.creators[name]
	if !ok {
		return nil, fmt.Errorf("unknown load balancer policy: %s", name)
	}
	return creator(), nil
}

func (f *Factory) AvailableStrategies() []string {
	names := make([]string, 0, len(f.creators))
	for name := range f.creators {
		names = append(names, name)
	}
	return names
}
