// Package metrics is the client's observability surface: a per-(method,
// endpoint, status) request counter, a request-duration histogram with
// configurable buckets rendered as Prometheus text exposition,
// circuit-breaker/pool gauges, and an independent Span lifecycle that
// needs no external tracing backend to be useful.
//
// The registry is hand-rolled rather than built on
// prometheus/client_golang: the exposition rules here (label omission,
// not empty-string, when a label is disabled; the +Inf bucket equalling
// the count line) don't map cleanly onto that library's Desc/Collector
// machinery.
package metrics

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
)

const (
	StatusSuccess = "success"
	StatusFailure = "error"
)

// DefaultBuckets covers sub-millisecond through multi-second RPC latency.
var DefaultBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Config controls the namespace, bucket boundaries, and label set of the
// exposed metrics.
type Config struct {
	Namespace     string
	Buckets       []float64
	EndpointLabel bool
	MethodLabel   bool
}

func DefaultConfig() Config {
	return Config{
		Namespace:     "talos_client",
		Buckets:       DefaultBuckets,
		EndpointLabel: true,
		MethodLabel:   true,
	}
}

// requestCounterKey identifies one (method, endpoint, status) counter.
type requestCounterKey struct {
	method   string
	endpoint string
	status   string
}

// histogramKey identifies one (method, endpoint) histogram.
type histogramKey struct {
	method   string
	endpoint string
}

// Collector is the observability sink of this module: the Pool reports
// endpoint gauges and failovers through it, and pkg/talosclient's Client
// records per-request counters, durations, circuit-breaker state and
// rejections. Safe for concurrent use.
type Collector struct {
	cfg Config

	requestCounters *xsync.Map[requestCounterKey, *atomic.Int64]
	histograms      *xsync.Map[histogramKey, *Histogram]

	circuitState      atomic.Int64
	circuitRejections atomic.Int64
	poolHealthy       atomic.Int64
	poolTotal         atomic.Int64
	poolFailovers     atomic.Int64

	startedAt time.Time
}

func NewCollector(cfg Config) *Collector {
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = DefaultBuckets
	}
	return &Collector{
		cfg:             cfg,
		requestCounters: xsync.NewMap[requestCounterKey, *atomic.Int64](),
		histograms:      xsync.NewMap[histogramKey, *Histogram](),
		startedAt:       time.Now(),
	}
}

func (c *Collector) labelKey(method, endpoint string) (m, e string) {
	if c.cfg.MethodLabel {
		m = method
	}
	if c.cfg.EndpointLabel {
		e = endpoint
	}
	return m, e
}

// RecordRequest increments the <ns>_requests_total counter for
// (method, endpoint, status) and observes duration into the matching
// histogram. Callers pass StatusSuccess or StatusFailure.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m, e := c.labelKey(method, endpoint)

	ckey := requestCounterKey{method: m, endpoint: e, status: status}
	counter, _ := c.requestCounters.LoadOrCompute(ckey, func() (*atomic.Int64, bool) {
		return &atomic.Int64{}, false
	})
	counter.Add(1)

	hkey := histogramKey{method: m, endpoint: e}
	hist, _ := c.histograms.LoadOrCompute(hkey, func() (*Histogram, bool) {
		return NewHistogram(c.cfg.Buckets), false
	})
	hist.Observe(duration.Seconds())
}

// SetCircuitBreakerState records the breaker's current state as a gauge:
// 0=Closed, 1=HalfOpen, 2=Open.
func (c *Collector) SetCircuitBreakerState(state int) { c.circuitState.Store(int64(state)) }

func (c *Collector) IncCircuitRejections() { c.circuitRejections.Add(1) }

func (c *Collector) SetPoolHealthyEndpoints(n int) { c.poolHealthy.Store(int64(n)) }
func (c *Collector) SetPoolTotalEndpoints(n int)   { c.poolTotal.Store(int64(n)) }
func (c *Collector) IncPoolFailovers()             { c.poolFailovers.Add(1) }

// ToPrometheusText renders every counter, histogram and gauge in
// Prometheus text exposition format, with HELP/TYPE headers and the
// configured label set. Label omission (not empty-string) is load-bearing:
// disabling a label removes it from the label set entirely.
func (c *Collector) ToPrometheusText() string {
	var b strings.Builder
	ns := c.cfg.Namespace

	fmt.Fprintf(&b, "# HELP %s_requests_total total number of RPC attempts\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_requests_total counter\n", ns)
	c.requestCounters.Range(func(k requestCounterKey, v *atomic.Int64) bool {
		fmt.Fprintf(&b, "%s_requests_total%s %d\n", ns, labelSet(c.cfg, k.method, k.endpoint, k.status), v.Load())
		return true
	})

	fmt.Fprintf(&b, "# HELP %s_request_duration_seconds RPC attempt duration in seconds\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_request_duration_seconds histogram\n", ns)
	c.histograms.Range(func(k histogramKey, h *Histogram) bool {
		h.writePrometheus(&b, ns, labelPairs(c.cfg, k.method, k.endpoint))
		return true
	})

	fmt.Fprintf(&b, "# HELP %s_circuit_breaker_state current circuit breaker state (0=closed,1=half-open,2=open)\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_circuit_breaker_state gauge\n", ns)
	fmt.Fprintf(&b, "%s_circuit_breaker_state %d\n", ns, c.circuitState.Load())

	fmt.Fprintf(&b, "# HELP %s_circuit_breaker_rejections_total calls rejected by the circuit breaker\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_circuit_breaker_rejections_total counter\n", ns)
	fmt.Fprintf(&b, "%s_circuit_breaker_rejections_total %d\n", ns, c.circuitRejections.Load())

	fmt.Fprintf(&b, "# HELP %s_pool_healthy_endpoints count of endpoints currently Healthy\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_pool_healthy_endpoints gauge\n", ns)
	fmt.Fprintf(&b, "%s_pool_healthy_endpoints %d\n", ns, c.poolHealthy.Load())

	fmt.Fprintf(&b, "# HELP %s_pool_total_endpoints count of endpoints configured in the pool\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_pool_total_endpoints gauge\n", ns)
	fmt.Fprintf(&b, "%s_pool_total_endpoints %d\n", ns, c.poolTotal.Load())

	fmt.Fprintf(&b, "# HELP %s_pool_failovers_total count of selections that moved away from the previously selected endpoint\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_pool_failovers_total counter\n", ns)
	fmt.Fprintf(&b, "%s_pool_failovers_total %d\n", ns, c.poolFailovers.Load())

	fmt.Fprintf(&b, "# HELP %s_uptime_seconds seconds since the collector was created\n", ns)
	fmt.Fprintf(&b, "# TYPE %s_uptime_seconds gauge\n", ns)
	fmt.Fprintf(&b, "%s_uptime_seconds %f\n", ns, time.Since(c.startedAt).Seconds())

	return b.String()
}

func labelPairs(cfg Config, method, endpoint string) []string {
	var pairs []string
	if cfg.MethodLabel && method != "" {
		pairs = append(pairs, fmt.Sprintf(`method=%q`, method))
	}
	if cfg.EndpointLabel && endpoint != "" {
		pairs = append(pairs, fmt.Sprintf(`endpoint=%q`, endpoint))
	}
	return pairs
}

func labelSet(cfg Config, method, endpoint, status string) string {
	pairs := labelPairs(cfg, method, endpoint)
	pairs = append(pairs, fmt.Sprintf(`status=%q`, status))
	return "{" + strings.Join(pairs, ",") + "}"
}

// Histogram is a cumulative-bucket latency histogram: Observe(v)
// increments every bucket whose boundary is >= v, so the bucket counts
// are monotonically non-decreasing by construction and the +Inf bucket
// always equals the total observation count.
type Histogram struct {
	bounds []float64
	counts []atomic.Int64

	mu    sync.Mutex
	sum   float64
	total int64
}

func NewHistogram(bounds []float64) *Histogram {
	sorted := append([]float64(nil), bounds...)
	return &Histogram{bounds: sorted, counts: make([]atomic.Int64, len(sorted))}
}

func (h *Histogram) Observe(v float64) {
	for i, bound := range h.bounds {
		if v <= bound {
			h.counts[i].Add(1)
		}
	}
	h.mu.Lock()
	h.sum += v
	h.total++
	h.mu.Unlock()
}

func (h *Histogram) writePrometheus(b *strings.Builder, ns string, labels []string) {
	h.mu.Lock()
	sum, total := h.sum, h.total
	h.mu.Unlock()

	for i, bound := range h.bounds {
		le := append(append([]string(nil), labels...), fmt.Sprintf(`le=%q`, strconv.FormatFloat(bound, 'f', -1, 64)))
		fmt.Fprintf(b, "%s_request_duration_seconds_bucket{%s} %d\n", ns, strings.Join(le, ","), h.counts[i].Load())
	}
	leInf := append(append([]string(nil), labels...), `le="+Inf"`)
	fmt.Fprintf(b, "%s_request_duration_seconds_bucket{%s} %d\n", ns, strings.Join(leInf, ","), total)

	labelStr := ""
	if len(labels) > 0 {
		labelStr = "{" + strings.Join(labels, ",") + "}"
	}
	fmt.Fprintf(b, "%s_request_duration_seconds_sum%s %f\n", ns, labelStr, sum)
	fmt.Fprintf(b, "%s_request_duration_seconds_count%s %d\n", ns, labelStr, total)
}
