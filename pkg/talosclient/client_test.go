package talosclient

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/xmv-solutions/talos-client-go/internal/config"
	"github.com/xmv-solutions/talos-client-go/internal/rpcproto"
)

// encodeLengthPrefixed mirrors internal/adapters' own wire framing (a
// uint32 length-prefixed string) well enough to build fixtures here
// without exporting the adapters package's private encoder.
func encodeLengthPrefixed(s string) []byte {
	buf := make([]byte, 4, 4+len(s))
	binary.BigEndian.PutUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func encodeStringFixture(s string) []byte {
	return encodeLengthPrefixed(s)
}

func encodeSingleMemberFixture(hostname, clientURL string) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, 1) // member count
	buf = append(buf, encodeLengthPrefixed(hostname)...)

	urlCount := make([]byte, 4)
	binary.BigEndian.PutUint32(urlCount, 1)
	buf = append(buf, urlCount...)
	buf = append(buf, encodeLengthPrefixed(clientURL)...)
	return buf
}

func plaintextEndpoints() []string {
	return []string{"http://node-a.invalid:50000", "http://node-b.invalid:50000"}
}

func TestConfigResolveUsesExplicitEndpoints(t *testing.T) {
	cfg := Config{Endpoints: plaintextEndpoints()}
	endpoints, ctx, err := cfg.resolve()
	require.NoError(t, err)
	assert.Equal(t, plaintextEndpoints(), endpoints)
	assert.Equal(t, plaintextEndpoints(), ctx.Endpoints)
}

func TestConfigResolveErrorsWithoutProfileOrEndpoints(t *testing.T) {
	t.Setenv(config.EnvProfilePath, "/nonexistent/path/does/not/exist/config")
	cfg := Config{}
	_, _, err := cfg.resolve()
	assert.Error(t, err)
}

func TestNewConnectsAndClosesCleanly(t *testing.T) {
	client, err := New(context.Background(), Config{Endpoints: plaintextEndpoints()})
	require.NoError(t, err)
	require.NotNil(t, client)

	health := client.EndpointHealth()
	assert.Len(t, health, 2)

	assert.NotEmpty(t, client.Metrics())

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestNewRequiresAtLeastOneEndpoint(t *testing.T) {
	t.Setenv(config.EnvProfilePath, "/nonexistent/path/does/not/exist/config")
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestHealthCheckAllSweepsPooledEndpoints(t *testing.T) {
	client, err := New(context.Background(), Config{Endpoints: plaintextEndpoints()})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	client.HealthCheckAll(context.Background())
	for _, h := range client.EndpointHealth() {
		assert.NotNil(t, h)
	}
}

func TestWithNodeTargetSetsHeader(t *testing.T) {
	ctx := WithNodeTarget(context.Background(), "10.0.0.3", "10.0.0.4")
	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	require.Len(t, md.Get(config.NodeMetadataKey), 1)
	assert.Equal(t, "10.0.0.3,10.0.0.4", md.Get(config.NodeMetadataKey)[0])
}

func TestAdaptEtcdListerTranslatesMembers(t *testing.T) {
	invoker := rpcproto.NewMockInvoker()
	invoker.OnInvoke("machine.MachineService", "EtcdMemberList", rpcproto.MockResponse{Bytes: encodeSingleMemberFixture("cp-1", "http://10.0.0.2:2379")})

	members, err := adaptEtcdLister(context.Background(), invoker)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "cp-1", members[0].Hostname)
}

func TestAdaptVersionAndHostnameProbes(t *testing.T) {
	invoker := rpcproto.NewMockInvoker()
	invoker.OnInvoke("machine.MachineService", "Version", rpcproto.MockResponse{Bytes: encodeStringFixture("v1.7.0")})
	invoker.OnInvoke("machine.MachineService", "Hostname", rpcproto.MockResponse{Bytes: []byte("cp-1")})

	version, err := adaptVersionProbe(context.Background(), invoker)
	require.NoError(t, err)
	assert.Equal(t, "v1.7.0", version)

	hostname, err := adaptHostnameProbe(context.Background(), invoker)
	require.NoError(t, err)
	assert.Equal(t, "cp-1", hostname)
}
