package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
context: my-cluster
contexts:
  my-cluster:
    endpoints:
      - 10.0.0.2
      - 10.0.0.3
    ca: |
      -----BEGIN CERTIFICATE-----
      MIIBcDCCARegAwIBAgIRAMK1...
      -----END CERTIFICATE-----
  another-cluster:
    endpoints:
      - 192.168.1.10
    nodes:
      - 192.168.1.11
      - 192.168.1.12
`

func TestFromYAMLParsesContexts(t *testing.T) {
	pf, err := FromYAML([]byte(sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "my-cluster", pf.Context)
	assert.Len(t, pf.Contexts, 2)
}

func TestActiveContext(t *testing.T) {
	pf, err := FromYAML([]byte(sampleConfig))
	require.NoError(t, err)
	active := pf.ActiveContext()
	require.NotNil(t, active)
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3"}, active.Endpoints)
	assert.NotEmpty(t, active.CA)
}

func TestFirstEndpointAndNode(t *testing.T) {
	pf, err := FromYAML([]byte(sampleConfig))
	require.NoError(t, err)
	ctx := pf.Contexts["another-cluster"]
	require.NotNil(t, ctx)
	assert.Equal(t, "192.168.1.10", ctx.FirstEndpoint())
	assert.Equal(t, "192.168.1.11", ctx.FirstNode())
}

func TestMinimalConfigHasNoActiveContext(t *testing.T) {
	pf, err := FromYAML([]byte("contexts:\n  minimal:\n    endpoints:\n      - 127.0.0.1:50000\n"))
	require.NoError(t, err)
	assert.Equal(t, "", pf.Context)
	assert.Nil(t, pf.ActiveContext())
	assert.Equal(t, []string{"127.0.0.1:50000"}, pf.Contexts["minimal"].Endpoints)
}

func TestLoadDefaultMissingFileYieldsEmptyConfig(t *testing.T) {
	t.Setenv(EnvProfilePath, "/nonexistent/path/does/not/exist/config")
	pf, err := LoadDefault()
	require.NoError(t, err)
	assert.Empty(t, pf.Context)
	assert.Empty(t, pf.Contexts)
}

func TestRoundTripYAML(t *testing.T) {
	pf, err := FromYAML([]byte(sampleConfig))
	require.NoError(t, err)

	serialized, err := pf.ToYAML()
	require.NoError(t, err)

	reparsed, err := FromYAML(serialized)
	require.NoError(t, err)
	assert.Equal(t, pf.Context, reparsed.Context)
	assert.Equal(t, pf.Contexts, reparsed.Contexts)
}
