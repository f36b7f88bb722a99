// Package pool maintains one Channel per reachable endpoint, a
// per-endpoint EndpointHealth, and endpoint selection via a pluggable
// load-balancing Selector. Two locks split the traffic: a short mutex
// serialises the reconnect/shutdown writer path, an RWMutex covers the
// hot client map.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/xmv-solutions/talos-client-go/internal/circuit"
	"github.com/xmv-solutions/talos-client-go/internal/errs"
	"github.com/xmv-solutions/talos-client-go/internal/health"
	"github.com/xmv-solutions/talos-client-go/internal/metrics"
	"github.com/xmv-solutions/talos-client-go/internal/transport"
)

// Config bundles the pool's endpoint list, load-balancer policy, health
// thresholds, and the base transport configuration shared by every
// endpoint's channel.
type Config struct {
	Endpoints         []string
	LoadBalancer      string // health.PolicyRoundRobin | PolicyRandom | PolicyLeastFailures | PolicyFailover
	FailureThreshold  int
	RecoveryThreshold int // reserved for a strict recovery discipline; currently inert
	Base              transport.Config
	Breaker           circuit.Config     // applied to every endpoint's Breaker
	Metrics           *metrics.Collector // optional; nil disables pool gauges
}

// Pool owns one Channel per reachable endpoint, one EndpointHealth per
// configured endpoint (never removed, even if the endpoint never
// connects), and a selector implementing the configured load-balancer
// policy.
type Pool struct {
	cfg Config

	endpoints []string
	health    map[string]*health.EndpointHealth
	breakers  map[string]*circuit.Breaker
	selector  health.Selector

	clientsMu sync.RWMutex
	clients   map[string]transport.Channel

	reconnectMu sync.Mutex // serialises the reconnect-all writer path

	shutdown      atomic.Bool
	lastSelected  atomic.Pointer[string]
	failoverTotal atomic.Int64
}

// New connects to every configured endpoint, recording health per
// connection outcome, and succeeds if at least one endpoint connected.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errs.NewConfigError("pool.New", "at least one endpoint is required", nil)
	}

	factory := health.NewFactory()
	selector, err := factory.Create(cfg.LoadBalancer)
	if err != nil {
		return nil, errs.NewConfigError("pool.New", err.Error(), err)
	}

	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = health.DefaultFailureThreshold
	}

	breakerCfg := cfg.Breaker
	if breakerCfg == (circuit.Config{}) {
		breakerCfg = circuit.DefaultConfig()
	}

	healthMap := make(map[string]*health.EndpointHealth, len(cfg.Endpoints))
	breakerMap := make(map[string]*circuit.Breaker, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		healthMap[ep] = health.NewEndpointHealth(ep, failureThreshold)
		breakerMap[ep] = circuit.New(breakerCfg)
	}

	p := &Pool{
		cfg:       cfg,
		endpoints: append([]string(nil), cfg.Endpoints...),
		health:    healthMap,
		breakers:  breakerMap,
		selector:  selector,
		clients:   make(map[string]transport.Channel),
	}

	if err := p.connectAll(ctx); err != nil {
		return nil, err
	}
	p.reportGauges()
	return p, nil
}

// connectAll attempts to (re)connect every endpoint, recording health per
// outcome. Succeeds if at least one endpoint connected.
func (p *Pool) connectAll(ctx context.Context) error {
	p.reconnectMu.Lock()
	defer p.reconnectMu.Unlock()

	connected := false
	var lastErr error

	for _, ep := range p.endpoints {
		cfg := p.cfg.Base
		cfg.Endpoint = ep

		ch, err := transport.Build(ctx, cfg)
		if err != nil {
			p.health[ep].RecordFailure()
			lastErr = err
			continue
		}

		p.clientsMu.Lock()
		if old, ok := p.clients[ep]; ok {
			_ = old.Close()
		}
		p.clients[ep] = ch
		p.clientsMu.Unlock()

		p.health[ep].RecordSuccess()
		connected = true
	}

	if !connected {
		if lastErr != nil {
			return lastErr
		}
		return errs.NewConnectionError("failed to connect to any endpoint")
	}
	return nil
}

// healthySlice returns the EndpointHealth records currently Healthy, in
// p.endpoints order — the "Healthy slice" every Selector picks from.
func (p *Pool) healthySlice() []*health.EndpointHealth {
	healthy := make([]*health.EndpointHealth, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		if h := p.health[ep]; h != nil && h.Status() == health.StatusHealthy {
			healthy = append(healthy, h)
		}
	}
	return healthy
}

// Get returns a Channel for a Healthy endpoint chosen per the configured
// load-balancer policy. If none are Healthy, it attempts one synchronous
// reconnect sweep before giving up.
func (p *Pool) Get(ctx context.Context) (transport.Channel, error) {
	healthy := p.healthySlice()
	if len(healthy) == 0 {
		if err := p.connectAll(ctx); err != nil {
			return nil, err
		}
		healthy = p.healthySlice()
		if len(healthy) == 0 {
			return nil, errs.NewConnectionError("no healthy endpoints")
		}
	}

	chosen, err := p.selector.Select(healthy)
	if err != nil {
		return nil, err
	}

	p.recordFailoverIfChanged(chosen.Endpoint)

	p.clientsMu.RLock()
	ch, ok := p.clients[chosen.Endpoint]
	p.clientsMu.RUnlock()
	if !ok {
		return nil, errs.NewConnectionError("no connected channel for endpoint " + chosen.Endpoint)
	}
	p.reportGauges()
	return ch, nil
}

// recordFailoverIfChanged increments the pool_failovers_total counter
// each time a selection moves away from the previously selected endpoint.
func (p *Pool) recordFailoverIfChanged(endpoint string) {
	prev := p.lastSelected.Swap(&endpoint)
	if prev != nil && *prev != endpoint {
		p.failoverTotal.Add(1)
		if p.cfg.Metrics != nil {
			p.cfg.Metrics.IncPoolFailovers()
		}
	}
}

// RecordSuccess and RecordFailure are external hooks for callers
// (typically the retry engine) that execute outside the pool's own
// connect/probe paths. The health signal is about the endpoint, not the
// caller's outcome, so failures are recorded even when a retry later
// absorbs them.
func (p *Pool) RecordSuccess(endpoint string) {
	if h, ok := p.health[endpoint]; ok {
		h.RecordSuccess()
	}
}

func (p *Pool) RecordFailure(endpoint string) {
	if h, ok := p.health[endpoint]; ok {
		h.RecordFailure()
	}
}

// HealthCheck reconnects a single endpoint and records the outcome,
// replacing its pooled channel on success.
func (p *Pool) HealthCheck(ctx context.Context, endpoint string) error {
	h, ok := p.health[endpoint]
	if !ok {
		return errs.NewConfigError("pool.HealthCheck", "unknown endpoint "+endpoint, nil)
	}

	cfg := p.cfg.Base
	cfg.Endpoint = endpoint
	ch, err := transport.Build(ctx, cfg)
	if err != nil {
		h.RecordHealthCheck()
		h.RecordFailure()
		return err
	}

	p.clientsMu.Lock()
	if old, ok := p.clients[endpoint]; ok {
		_ = old.Close()
	}
	p.clients[endpoint] = ch
	p.clientsMu.Unlock()

	h.RecordHealthCheck()
	h.RecordSuccess()
	return nil
}

// HealthCheckAll sweeps every configured endpoint serially.
func (p *Pool) HealthCheckAll(ctx context.Context) {
	if p.shutdown.Load() {
		return
	}
	for _, ep := range p.endpoints {
		_ = p.HealthCheck(ctx, ep)
	}
	p.reportGauges()
}

// Health returns the EndpointHealth record for one endpoint, or nil.
func (p *Pool) Health(endpoint string) *health.EndpointHealth { return p.health[endpoint] }

// Breaker returns the circuit.Breaker guarding calls to one endpoint, or
// nil for an endpoint this Pool wasn't configured with. The breaker is a
// call-site guard independent of EndpointHealth: a caller wraps its RPC
// in circuit.Call(ctx, pool.Breaker(ep), ...) rather than the Pool
// enforcing it internally, since not every caller wants the same trip
// policy.
func (p *Pool) Breaker(endpoint string) *circuit.Breaker { return p.breakers[endpoint] }

// AllHealth returns every endpoint's EndpointHealth record, keyed by
// endpoint.
func (p *Pool) AllHealth() map[string]*health.EndpointHealth {
	out := make(map[string]*health.EndpointHealth, len(p.health))
	for k, v := range p.health {
		out[k] = v
	}
	return out
}

// Endpoints returns the pool's configured endpoint list, in order.
func (p *Pool) Endpoints() []string { return append([]string(nil), p.endpoints...) }

// FailoverCount reports how many selections moved away from the
// previously selected endpoint.
func (p *Pool) FailoverCount() int64 { return p.failoverTotal.Load() }

// Shutdown is idempotent. After Shutdown, no new background probes are
// scheduled; in-flight Get() calls may still succeed.
func (p *Pool) Shutdown() error {
	if !p.shutdown.CompareAndSwap(false, true) {
		return nil
	}
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	var firstErr error
	for ep, ch := range p.clients {
		if err := ch.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.clients, ep)
	}
	return firstErr
}

func (p *Pool) reportGauges() {
	if p.cfg.Metrics == nil {
		return
	}
	healthyCount := 0
	for _, h := range p.health {
		if h.Status() == health.StatusHealthy {
			healthyCount++
		}
	}
	p.cfg.Metrics.SetPoolHealthyEndpoints(healthyCount)
	p.cfg.Metrics.SetPoolTotalEndpoints(len(p.endpoints))
}
