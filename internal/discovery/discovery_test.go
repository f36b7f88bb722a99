package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xmv-solutions/talos-client-go/internal/rpcproto"
	"github.com/xmv-solutions/talos-client-go/internal/transport"
)

func TestRewriteEtcdEndpoint(t *testing.T) {
	assert.Equal(t, "https://10.0.0.2:50000", rewriteEtcdEndpoint("http://10.0.0.2:2379"))
}

func TestDeriveMembersUsesFirstClientURL(t *testing.T) {
	members := []EtcdMember{
		{Hostname: "cp-1", ClientURLs: []string{"http://10.0.0.2:2379", "http://10.0.0.2:2380"}},
	}
	out := DeriveMembers(members, "https://seed:50000")
	require.Len(t, out, 1)
	assert.Equal(t, "cp-1", out[0].Name)
	assert.Equal(t, "https://10.0.0.2:50000", out[0].Endpoint)
	assert.Equal(t, RoleControlPlane, out[0].Role)
	assert.True(t, out[0].IsEtcdMember)
}

func TestDeriveMembersFallsBackToSeedWhenNoClientURLs(t *testing.T) {
	members := []EtcdMember{{Hostname: "cp-2"}}
	out := DeriveMembers(members, "https://seed:50000")
	require.Len(t, out, 1)
	assert.Equal(t, "https://seed:50000", out[0].Endpoint)
}

func TestFromNodesHealthyRequiresNonEmptyAndAllHealthy(t *testing.T) {
	assert.False(t, FromNodes(nil).IsHealthy)
	assert.True(t, FromNodes([]NodeHealth{{IsHealthy: true}}).IsHealthy)
	assert.False(t, FromNodes([]NodeHealth{{IsHealthy: true}, {IsHealthy: false}}).IsHealthy)
}

func TestClusterHealthAccessors(t *testing.T) {
	ch := FromNodes([]NodeHealth{
		{Name: "a", IsHealthy: true, ResponseTimeMS: 10},
		{Name: "b", IsHealthy: true, ResponseTimeMS: 30},
		{Name: "c", IsHealthy: false},
	})
	assert.Equal(t, 2, ch.HealthyCount())
	assert.Equal(t, 3, ch.TotalCount())
	assert.Len(t, ch.HealthyNodes(), 2)
	require.Len(t, ch.UnhealthyNodes(), 1)
	assert.Equal(t, "c", ch.UnhealthyNodes()[0].Name)

	avg, ok := ch.AvgResponseTimeMS()
	require.True(t, ok)
	assert.Equal(t, int64(20), avg)
}

func TestAvgResponseTimeMSNoHealthyNodes(t *testing.T) {
	ch := FromNodes([]NodeHealth{{IsHealthy: false}})
	_, ok := ch.AvgResponseTimeMS()
	assert.False(t, ok)
}

func newTestService(listMembers EtcdLister, probeVersion VersionProbe, probeHostname HostnameProbe) *Service {
	return NewService("http://seed.invalid:50000", transport.Config{}, listMembers, probeVersion, probeHostname, nil)
}

func TestDiscoverMembersReturnsDerivedPeers(t *testing.T) {
	lister := func(ctx context.Context, invoker rpcproto.Invoker) ([]EtcdMember, error) {
		return []EtcdMember{{Hostname: "cp-1", ClientURLs: []string{"http://10.0.0.2:2379"}}}, nil
	}
	s := newTestService(lister, nil, nil)

	members, err := s.DiscoverMembers(context.Background())
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "https://10.0.0.2:50000", members[0].Endpoint)
}

func TestDiscoverMembersPropagatesListError(t *testing.T) {
	wantErr := errors.New("list failed")
	lister := func(ctx context.Context, invoker rpcproto.Invoker) ([]EtcdMember, error) {
		return nil, wantErr
	}
	s := newTestService(lister, nil, nil)

	_, err := s.DiscoverMembers(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestCheckEndpointHealthUsesVersionFirst(t *testing.T) {
	probeVersion := func(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
		return "v1.7.0", nil
	}
	probeHostname := func(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
		t.Fatal("hostname probe should not run when version succeeds")
		return "", nil
	}
	s := newTestService(nil, probeVersion, probeHostname)

	h := s.CheckEndpointHealth(context.Background(), "cp-1", "http://cp-1.invalid:50000")
	assert.True(t, h.IsHealthy)
	assert.Equal(t, "v1.7.0", h.Version)
}

func TestCheckEndpointHealthFallsBackToHostname(t *testing.T) {
	probeVersion := func(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
		return "", errors.New("version rpc unimplemented")
	}
	probeHostname := func(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
		return "cp-1.local", nil
	}
	s := newTestService(nil, probeVersion, probeHostname)

	h := s.CheckEndpointHealth(context.Background(), "cp-1", "http://cp-1.invalid:50000")
	assert.True(t, h.IsHealthy)
	assert.Contains(t, h.Version, "cp-1.local")
}

func TestCheckEndpointHealthUnhealthyWhenBothProbesFail(t *testing.T) {
	probeVersion := func(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
		return "", errors.New("version failed")
	}
	probeHostname := func(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
		return "", errors.New("hostname failed")
	}
	s := newTestService(nil, probeVersion, probeHostname)

	h := s.CheckEndpointHealth(context.Background(), "cp-1", "http://cp-1.invalid:50000")
	assert.False(t, h.IsHealthy)
	assert.Contains(t, h.Error, "version failed")
}

func TestCheckClusterHealthAggregatesDiscoveryAndProbes(t *testing.T) {
	lister := func(ctx context.Context, invoker rpcproto.Invoker) ([]EtcdMember, error) {
		return []EtcdMember{
			{Hostname: "cp-1", ClientURLs: []string{"http://10.0.0.2:2379"}},
			{Hostname: "cp-2", ClientURLs: []string{"http://10.0.0.3:2379"}},
		}, nil
	}
	probeVersion := func(ctx context.Context, invoker rpcproto.Invoker) (string, error) {
		return "v1.7.0", nil
	}
	// Discovered members are rewritten to https, so the probe config has to
	// be valid for TLS without client material: Insecure allows that.
	s := NewService("http://seed.invalid:50000", transport.Config{Insecure: true}, lister, probeVersion, nil, nil)

	ch, err := s.CheckClusterHealth(context.Background())
	require.NoError(t, err)
	assert.True(t, ch.IsHealthy)
	assert.Equal(t, 2, ch.HealthyCount())
}

func TestRefreshRediscoversFromSeed(t *testing.T) {
	calls := 0
	lister := func(ctx context.Context, invoker rpcproto.Invoker) ([]EtcdMember, error) {
		calls++
		return []EtcdMember{{Hostname: "cp-1"}}, nil
	}
	s := newTestService(lister, nil, nil)

	_, err := s.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestNodeRoleString(t *testing.T) {
	assert.Equal(t, "controlplane", RoleControlPlane.String())
	assert.Equal(t, "worker", RoleWorker.String())
	assert.Equal(t, "unknown", RoleUnknown.String())
}
