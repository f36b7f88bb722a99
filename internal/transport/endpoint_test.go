package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostPortAppliesDefaultPort(t *testing.T) {
	dialAddr, hostname, err := hostPort("https://10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:50000", dialAddr)
	assert.Equal(t, "10.0.0.5", hostname)
}

func TestHostPortKeepsExplicitPort(t *testing.T) {
	dialAddr, hostname, err := hostPort("10.0.0.5:6443")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5:6443", dialAddr)
	assert.Equal(t, "10.0.0.5", hostname)
}

func TestHostPortRejectsEmptyHost(t *testing.T) {
	_, _, err := hostPort("https://:50000")
	require.Error(t, err)
}

func TestSplitScheme(t *testing.T) {
	scheme, rest := splitScheme("http://10.0.0.5:50000")
	assert.Equal(t, "http", scheme)
	assert.Equal(t, "10.0.0.5:50000", rest)

	scheme, rest = splitScheme("10.0.0.5:50000")
	assert.Equal(t, "", scheme)
	assert.Equal(t, "10.0.0.5:50000", rest)
}

func TestConfigModePlaintext(t *testing.T) {
	cfg := Config{Endpoint: "http://10.0.0.5:50000"}
	assert.Equal(t, Plaintext, cfg.Mode())
}

func TestConfigModeAnonymousTLS(t *testing.T) {
	cfg := Config{Endpoint: "https://10.0.0.5:50000", Insecure: true}
	assert.Equal(t, AnonymousTLS, cfg.Mode())
}

func TestConfigModeMutualTLSByDefault(t *testing.T) {
	cfg := Config{Endpoint: "10.0.0.5:50000"}
	assert.Equal(t, MutualTLS, cfg.Mode())
}
