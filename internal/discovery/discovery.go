// Package discovery derives peer endpoints from a seed node's etcd member
// list and probes each of them with a two-step (version, then hostname)
// health check.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xmv-solutions/talos-client-go/internal/logger"
	"github.com/xmv-solutions/talos-client-go/internal/rpcproto"
	"github.com/xmv-solutions/talos-client-go/internal/transport"
)

// NodeRole classifies a discovered cluster member. Discovery via the etcd
// member list only ever yields RoleControlPlane; the other values exist
// for worker-node discovery paths callers may add.
type NodeRole int

const (
	RoleControlPlane NodeRole = iota
	RoleWorker
	RoleUnknown
)

func (r NodeRole) String() string {
	switch r {
	case RoleControlPlane:
		return "controlplane"
	case RoleWorker:
		return "worker"
	default:
		return "unknown"
	}
}

// Member is one discovered cluster peer.
type Member struct {
	Name         string
	Endpoint     string
	Role         NodeRole
	IsEtcdMember bool
}

// EtcdMember is one entry of the server-returned etcd member list: a
// hostname and its client URLs.
type EtcdMember struct {
	Hostname   string
	ClientURLs []string
}

// rewriteEtcdEndpoint converts an etcd client URL into the Talos API
// endpoint it's colocated with: port 2379 becomes 50000, scheme http
// becomes https.
func rewriteEtcdEndpoint(clientURL string) string {
	rewritten := strings.Replace(clientURL, ":2379", ":50000", 1)
	rewritten = strings.Replace(rewritten, "http://", "https://", 1)
	return rewritten
}

// DeriveMembers maps each etcd member to a peer endpoint: its first
// client URL (rewritten), falling back to seedEndpoint when the member
// reports none.
func DeriveMembers(members []EtcdMember, seedEndpoint string) []Member {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		endpoint := seedEndpoint
		if len(m.ClientURLs) > 0 {
			endpoint = rewriteEtcdEndpoint(m.ClientURLs[0])
		}
		out = append(out, Member{
			Name:         m.Hostname,
			Endpoint:     endpoint,
			Role:         RoleControlPlane,
			IsEtcdMember: true,
		})
	}
	return out
}

// NodeHealth is one probed member's outcome.
type NodeHealth struct {
	Name           string
	Endpoint       string
	IsHealthy      bool
	Version        string
	Error          string
	ResponseTimeMS int64
}

// ClusterHealth is the aggregate over every probed member: healthy iff
// the member list is non-empty and every member probed healthy.
type ClusterHealth struct {
	Nodes     []NodeHealth
	IsHealthy bool
}

// FromNodes builds the aggregate: healthy iff nodes is non-empty and
// every entry is healthy.
func FromNodes(nodes []NodeHealth) ClusterHealth {
	healthy := len(nodes) > 0
	for _, n := range nodes {
		if !n.IsHealthy {
			healthy = false
			break
		}
	}
	return ClusterHealth{Nodes: nodes, IsHealthy: healthy}
}

func (c ClusterHealth) HealthyCount() int {
	n := 0
	for _, node := range c.Nodes {
		if node.IsHealthy {
			n++
		}
	}
	return n
}

func (c ClusterHealth) TotalCount() int { return len(c.Nodes) }

func (c ClusterHealth) HealthyNodes() []NodeHealth {
	out := make([]NodeHealth, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.IsHealthy {
			out = append(out, n)
		}
	}
	return out
}

func (c ClusterHealth) UnhealthyNodes() []NodeHealth {
	out := make([]NodeHealth, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		if !n.IsHealthy {
			out = append(out, n)
		}
	}
	return out
}

// AvgResponseTimeMS averages response time across Healthy nodes only,
// returning (0, false) when none have a measured time.
func (c ClusterHealth) AvgResponseTimeMS() (int64, bool) {
	var sum, count int64
	for _, n := range c.Nodes {
		if n.IsHealthy {
			sum += n.ResponseTimeMS
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / count, true
}

// EtcdLister is the opaque "etcd member list" RPC: given a connected
// channel's invoker, return the member list.
type EtcdLister func(ctx context.Context, invoker rpcproto.Invoker) ([]EtcdMember, error)

// VersionProbe and HostnameProbe are the two opaque RPCs the health probe
// calls, in order.
type VersionProbe func(ctx context.Context, invoker rpcproto.Invoker) (string, error)
type HostnameProbe func(ctx context.Context, invoker rpcproto.Invoker) (string, error)

// Service runs cluster discovery and health probing from a single seed
// endpoint.
type Service struct {
	seedEndpoint string
	baseConfig   transport.Config

	listMembers   EtcdLister
	probeVersion  VersionProbe
	probeHostname HostnameProbe

	logger *logger.StyledLogger
}

// NewService builds a discovery Service. listMembers/probeVersion/
// probeHostname are the opaque RPC seams: internal/adapters wires the
// real ones, tests wire fakes. log may be nil.
func NewService(seedEndpoint string, baseConfig transport.Config, listMembers EtcdLister, probeVersion VersionProbe, probeHostname HostnameProbe, log *logger.StyledLogger) *Service {
	return &Service{
		seedEndpoint:  seedEndpoint,
		baseConfig:    baseConfig,
		listMembers:   listMembers,
		probeVersion:  probeVersion,
		probeHostname: probeHostname,
		logger:        log,
	}
}

func (s *Service) connect(ctx context.Context, endpoint string) (transport.Channel, error) {
	cfg := s.baseConfig
	cfg.Endpoint = endpoint
	return transport.Build(ctx, cfg)
}

// DiscoverMembers connects to the seed, lists etcd members, and derives a
// peer endpoint per member.
func (s *Service) DiscoverMembers(ctx context.Context) ([]Member, error) {
	ch, err := s.connect(ctx, s.seedEndpoint)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ch.Close() }()

	invoker := rpcproto.NewGRPCInvoker(ch)
	members, err := s.listMembers(ctx, invoker)
	if err != nil {
		return nil, err
	}
	derived := DeriveMembers(members, s.seedEndpoint)
	if s.logger != nil {
		s.logger.InfoWithCount("discovered cluster members", len(derived), "seed", s.seedEndpoint)
	}
	return derived, nil
}

// CheckEndpointHealth is the two-step fallback probe: version RPC first,
// hostname RPC on failure, unhealthy if both fail. Some deployments don't
// implement the version RPC but do implement hostname; the fallback keeps
// the probe meaningful there.
func (s *Service) CheckEndpointHealth(ctx context.Context, name, endpoint string) NodeHealth {
	start := time.Now()

	ch, err := s.connect(ctx, endpoint)
	if err != nil {
		return NodeHealth{Name: name, Endpoint: endpoint, IsHealthy: false, Error: err.Error()}
	}
	defer func() { _ = ch.Close() }()

	invoker := rpcproto.NewGRPCInvoker(ch)

	version, versionErr := s.probeVersion(ctx, invoker)
	if versionErr == nil {
		elapsed := time.Since(start).Milliseconds()
		return NodeHealth{Name: name, Endpoint: endpoint, IsHealthy: true, Version: version, ResponseTimeMS: elapsed}
	}

	if s.logger != nil {
		s.logger.WarnWithEndpoint("version probe failed, trying hostname", endpoint, "error", versionErr)
	}

	hostname, hostnameErr := s.probeHostname(ctx, invoker)
	if hostnameErr == nil {
		elapsed := time.Since(start).Milliseconds()
		return NodeHealth{
			Name:           name,
			Endpoint:       endpoint,
			IsHealthy:      true,
			Version:        fmt.Sprintf("(hostname: %s)", hostname),
			ResponseTimeMS: elapsed,
		}
	}

	return NodeHealth{Name: name, Endpoint: endpoint, IsHealthy: false, Error: versionErr.Error()}
}

// CheckMembersHealth probes a known member list serially.
func (s *Service) CheckMembersHealth(ctx context.Context, members []Member) ClusterHealth {
	nodes := make([]NodeHealth, 0, len(members))
	for _, m := range members {
		nodes = append(nodes, s.CheckEndpointHealth(ctx, m.Name, m.Endpoint))
	}
	return FromNodes(nodes)
}

// CheckClusterHealth discovers members then probes every one.
func (s *Service) CheckClusterHealth(ctx context.Context) (ClusterHealth, error) {
	members, err := s.DiscoverMembers(ctx)
	if err != nil {
		return ClusterHealth{}, err
	}
	return s.CheckMembersHealth(ctx, members), nil
}

// Refresh re-runs discovery against the seed endpoint. The pool itself
// does not self-refresh; a caller may schedule Refresh if it wants
// periodic re-discovery.
func (s *Service) Refresh(ctx context.Context) ([]Member, error) {
	return s.DiscoverMembers(ctx)
}
