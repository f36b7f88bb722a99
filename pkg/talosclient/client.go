// Package talosclient is the public façade over the resilience fabric:
// channel building, connection pooling, circuit breaking, retry, cluster
// discovery, and the typed RPC adapter catalog. One constructor wires
// every internal piece into a single struct; Close plus an explicit
// health check the caller invokes on its own schedule replace a daemon's
// Start/Stop lifecycle.
package talosclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc/metadata"

	"github.com/xmv-solutions/talos-client-go/internal/adapters"
	"github.com/xmv-solutions/talos-client-go/internal/circuit"
	"github.com/xmv-solutions/talos-client-go/internal/config"
	"github.com/xmv-solutions/talos-client-go/internal/discovery"
	"github.com/xmv-solutions/talos-client-go/internal/errs"
	"github.com/xmv-solutions/talos-client-go/internal/health"
	"github.com/xmv-solutions/talos-client-go/internal/logger"
	"github.com/xmv-solutions/talos-client-go/internal/metrics"
	"github.com/xmv-solutions/talos-client-go/internal/pool"
	"github.com/xmv-solutions/talos-client-go/internal/retry"
	"github.com/xmv-solutions/talos-client-go/internal/rpcproto"
	"github.com/xmv-solutions/talos-client-go/internal/runtimeconfig"
	"github.com/xmv-solutions/talos-client-go/internal/stream"
	"github.com/xmv-solutions/talos-client-go/internal/transport"
)

// Config is the caller-facing connection configuration. Leave
// ProfilePath/ContextName empty to use the TALOSCONFIG/TALOS_CONTEXT
// env-var/default precedence internal/config implements; set Endpoints
// directly to skip the profile file entirely (e.g. for tests or ad hoc
// connections).
type Config struct {
	ProfilePath string // explicit talosconfig path; "" uses env/default
	ContextName string // overrides the profile file's active context

	Endpoints []string // overrides the resolved context's endpoints
	Insecure  bool

	LoadBalancer     string // health.Policy*; "" defaults to round-robin
	FailureThreshold int
	Breaker          circuit.Config // zero value uses circuit.DefaultConfig()
	Retry            *retry.Config  // nil uses runtimeconfig's default retry policy

	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration

	Metrics *metrics.Collector // nil disables metrics recording
	Logger  *slog.Logger       // nil builds a default JSON logger
}

// resolve turns Config plus the on-disk profile (if any) into the
// concrete endpoint list, TLS material, and runtime defaults New needs.
func (c Config) resolve() (endpoints []string, ctx *config.Context, err error) {
	if len(c.Endpoints) > 0 {
		return c.Endpoints, &config.Context{Endpoints: c.Endpoints}, nil
	}

	pf, err := config.LoadWithEnv(c.ProfilePath)
	if err != nil {
		return nil, nil, err
	}
	if c.ContextName != "" {
		pf.Context = c.ContextName
	}
	active := pf.ActiveContext()
	if active == nil || len(active.Endpoints) == 0 {
		return nil, nil, errs.NewConfigError("talosclient.New", "no endpoints resolved from profile or Config.Endpoints", nil)
	}
	return active.Endpoints, active, nil
}

// Client is a resilient typed client for one Talos cluster: a connection
// pool of endpoints, each guarded by its own circuit breaker, a shared
// retry policy, and the typed adapter catalog wired through
// internal/rpcproto.Invoker.
type Client struct {
	pool       *pool.Pool
	retryCfg   retry.Config
	metrics    *metrics.Collector
	log        *slog.Logger
	discovery  *discovery.Service
	nodeTarget config.NodeTarget
}

// WithNodeTarget returns a ctx that routes the calls made with it to the
// given nodes via the x-talos-node header, overriding the client's
// default target for those calls.
func WithNodeTarget(ctx context.Context, nodes ...string) context.Context {
	return config.MultipleTargets(nodes...).ApplyToOutgoingContext(ctx)
}

// New resolves Config into a connected Pool and returns a ready Client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	endpoints, profileCtx, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		var cleanup func()
		log, cleanup, err = logger.New(&logger.Config{Level: logger.LogLevelInfo})
		if err != nil {
			return nil, err
		}
		_ = cleanup // no file output is configured, so there is nothing to release
	}

	coll := cfg.Metrics
	if coll == nil {
		coll = metrics.NewCollector(metrics.DefaultConfig())
	}

	loadBalancer := cfg.LoadBalancer
	if loadBalancer == "" {
		loadBalancer = health.PolicyRoundRobin
	}

	base := transport.Config{
		Insecure:          cfg.Insecure,
		ConnectTimeout:    cfg.ConnectTimeout,
		RequestTimeout:    cfg.RequestTimeout,
		KeepaliveInterval: cfg.KeepaliveInterval,
		KeepaliveTimeout:  cfg.KeepaliveTimeout,
	}
	// A talosconfig context carries its TLS material inline, not as paths.
	if profileCtx != nil {
		base.CAPEM = profileCtx.CA
		base.CrtPEM = profileCtx.Crt
		base.KeyPEM = profileCtx.Key
	}

	p, err := pool.New(ctx, pool.Config{
		Endpoints:        endpoints,
		LoadBalancer:     loadBalancer,
		FailureThreshold: cfg.FailureThreshold,
		Base:             base,
		Breaker:          cfg.Breaker,
		Metrics:          coll,
	})
	if err != nil {
		return nil, err
	}

	retryCfg := runtimeconfig.DefaultConfig().Retry.ToRetryConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}

	disc := discovery.NewService(endpoints[0], base, adaptEtcdLister, adaptVersionProbe, adaptHostnameProbe, nil)

	// The profile context's nodes become the default target for every
	// call; WithNodeTarget overrides per call.
	var target config.NodeTarget
	if profileCtx != nil {
		target = config.MultipleTargets(profileCtx.Nodes...)
	}

	log.Info("talosclient connected", "endpoints", len(endpoints), "load_balancer", loadBalancer)

	return &Client{pool: p, retryCfg: retryCfg, metrics: coll, log: log, discovery: disc, nodeTarget: target}, nil
}

func adaptEtcdLister(ctx context.Context, invoker rpcproto.Invoker) ([]discovery.EtcdMember, error) {
	resp, err := adapters.EtcdMemberList(ctx, invoker)
	if err != nil {
		return nil, err
	}
	out := make([]discovery.EtcdMember, 0, len(resp.Members))
	for _, m := range resp.Members {
		out = append(out, discovery.EtcdMember{Hostname: m.Hostname, ClientURLs: m.ClientURLs})
	}
	return out, nil
}

func adaptVersionProbe(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
	resp, err := adapters.SystemVersion(ctx, invoker)
	if err != nil {
		return "", err
	}
	return resp.Tag, nil
}

func adaptHostnameProbe(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
	resp, err := adapters.SystemHostname(ctx, invoker)
	if err != nil {
		return "", err
	}
	return resp.Hostname, nil
}

// invoke runs fn against a pooled channel: the Pool selects an endpoint,
// the Breaker for that endpoint gates the call, and the Retry engine
// wraps the whole attempt, re-selecting a (possibly different) endpoint
// on each retry.
func (c *Client) invoke(ctx context.Context, method string, fn func(ctx context.Context, invoker rpcproto.Invoker, endpoint string) error) error {
	if md, ok := metadata.FromOutgoingContext(ctx); !ok || len(md.Get(config.NodeMetadataKey)) == 0 {
		ctx = c.nodeTarget.ApplyToOutgoingContext(ctx)
	}
	return retry.DoVoid(ctx, c.retryCfg, func(ctx context.Context) error {
		ch, err := c.pool.Get(ctx)
		if err != nil {
			return err
		}
		endpoint := ch.Endpoint()
		breaker := c.pool.Breaker(endpoint)
		span := metrics.NewSpan(adapters.ServiceMachine, method, endpoint)

		_, callErr := circuit.Call(ctx, breaker, func(ctx context.Context) (struct{}, error) {
			invoker := rpcproto.NewGRPCInvoker(ch)
			return struct{}{}, fn(ctx, invoker, endpoint)
		})
		span.End(statusCode(callErr), callErr)
		c.log.Debug("rpc finished", span.Fields()...)
		duration := time.Duration(span.DurationMS * float64(time.Millisecond))

		if callErr != nil {
			c.pool.RecordFailure(endpoint)
			if c.metrics != nil {
				c.metrics.RecordRequest(method, endpoint, metrics.StatusFailure, duration)
				c.metrics.SetCircuitBreakerState(int(breaker.State()))
				if errs.Classify(callErr) == errs.KindCircuitOpen {
					c.metrics.IncCircuitRejections()
				}
			}
			return callErr
		}
		c.pool.RecordSuccess(endpoint)
		if c.metrics != nil {
			c.metrics.RecordRequest(method, endpoint, metrics.StatusSuccess, duration)
			c.metrics.SetCircuitBreakerState(int(breaker.State()))
		}
		return nil
	})
}

// statusCode maps an error to the gRPC status code recorded on a span: the
// server's own code for ApiError, Unavailable for transport trouble,
// Unknown otherwise.
func statusCode(err error) uint32 {
	if err == nil {
		return 0
	}
	var api *errs.ApiError
	if stderrors.As(err, &api) {
		return api.Code
	}
	switch errs.Classify(err) {
	case errs.KindTransport, errs.KindConnection:
		return 14 // unavailable
	default:
		return 2 // unknown
	}
}

// Bootstrap initialises the etcd cluster on the first control-plane
// node. Must only be called once per cluster.
func (c *Client) Bootstrap(ctx context.Context, req adapters.BootstrapRequest) (adapters.BootstrapResponse, error) {
	var resp adapters.BootstrapResponse
	err := c.invoke(ctx, "Bootstrap", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.Bootstrap(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

// ApplyConfiguration pushes a machine configuration document to the
// connected node.
func (c *Client) ApplyConfiguration(ctx context.Context, req adapters.ApplyConfigurationRequest) (adapters.ApplyConfigurationResponse, error) {
	var resp adapters.ApplyConfigurationResponse
	err := c.invoke(ctx, "ApplyConfiguration", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.ApplyConfiguration(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

// StreamLogs assembles a service's logs into one result.
func (c *Client) StreamLogs(ctx context.Context, req adapters.LogsRequest) (stream.Result, error) {
	var resp stream.Result
	err := c.invoke(ctx, "Logs", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.StreamLogs(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

// StreamDmesg assembles a node's kernel message buffer into one result.
func (c *Client) StreamDmesg(ctx context.Context, req adapters.DmesgRequest) (stream.Result, error) {
	var resp stream.Result
	err := c.invoke(ctx, "Dmesg", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.StreamDmesg(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

// Reset wipes and (optionally) reboots the connected node. Destructive;
// typically invoked once per node being decommissioned.
func (c *Client) Reset(ctx context.Context, req adapters.ResetRequest) (adapters.ResetResponse, error) {
	var resp adapters.ResetResponse
	err := c.invoke(ctx, "Reset", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.Reset(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

// Kubeconfig retrieves the cluster's admin kubeconfig, assembled from the
// node's streamed reply.
func (c *Client) Kubeconfig(ctx context.Context) (stream.Result, error) {
	var resp stream.Result
	err := c.invoke(ctx, "GenerateConfiguration", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.Kubeconfig(ctx, invoker)
		resp = r
		return err
	})
	return resp, err
}

// ServiceStart, ServiceStop and ServiceRestart control one OS-level
// service on the connected node.
func (c *Client) ServiceStart(ctx context.Context, req adapters.ServiceStartRequest) (adapters.ServiceResponse, error) {
	var resp adapters.ServiceResponse
	err := c.invoke(ctx, "ServiceStart", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.ServiceStart(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

func (c *Client) ServiceStop(ctx context.Context, req adapters.ServiceStopRequest) (adapters.ServiceResponse, error) {
	var resp adapters.ServiceResponse
	err := c.invoke(ctx, "ServiceStop", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.ServiceStop(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

func (c *Client) ServiceRestart(ctx context.Context, req adapters.ServiceRestartRequest) (adapters.ServiceResponse, error) {
	var resp adapters.ServiceResponse
	err := c.invoke(ctx, "ServiceRestart", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.ServiceRestart(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

// ImageList lists container images in the given containerd namespace.
func (c *Client) ImageList(ctx context.Context, req adapters.ImageListRequest) (adapters.ImageListResponse, error) {
	var resp adapters.ImageListResponse
	err := c.invoke(ctx, "ImageList", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.ImageList(ctx, invoker, req)
		resp = r
		return err
	})
	return resp, err
}

// SystemVersion reports the connected node's Talos version.
func (c *Client) SystemVersion(ctx context.Context) (adapters.SystemVersionResponse, error) {
	var resp adapters.SystemVersionResponse
	err := c.invoke(ctx, "Version", func(ctx context.Context, invoker rpcproto.Invoker, _ string) error {
		r, err := adapters.SystemVersion(ctx, invoker)
		resp = r
		return err
	})
	return resp, err
}

// DiscoverMembers lists the cluster's control-plane peers, derived from
// the connected seed's etcd member list.
func (c *Client) DiscoverMembers(ctx context.Context) ([]discovery.Member, error) {
	return c.discovery.DiscoverMembers(ctx)
}

// ClusterHealth probes every discovered member and aggregates the
// result.
func (c *Client) ClusterHealth(ctx context.Context) (discovery.ClusterHealth, error) {
	return c.discovery.CheckClusterHealth(ctx)
}

// HealthCheckAll sweeps every pooled endpoint, reconnecting and
// refreshing health state.
func (c *Client) HealthCheckAll(ctx context.Context) {
	c.pool.HealthCheckAll(ctx)
}

// EndpointHealth returns the current EndpointHealth for every pooled
// endpoint.
func (c *Client) EndpointHealth() map[string]*health.EndpointHealth {
	return c.pool.AllHealth()
}

// Metrics renders the accumulated observability state as Prometheus text
// exposition; users attach their own HTTP surface.
func (c *Client) Metrics() string {
	if c.metrics == nil {
		return ""
	}
	return c.metrics.ToPrometheusText()
}

// Close releases every pooled connection. Safe to call more than once.
func (c *Client) Close() error {
	if err := c.pool.Shutdown(); err != nil {
		return fmt.Errorf("talosclient: closing pool: %w", err)
	}
	return nil
}
