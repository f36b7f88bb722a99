package transport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClientIdentityStandardKey(t *testing.T) {
	cert, err := loadClientIdentity([]byte(certOnlyPEM), []byte(pkcs8ED25519PEM))
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
}

func TestLoadClientIdentityNonStandardLabelFallsBack(t *testing.T) {
	cert, err := loadClientIdentity([]byte(certOnlyPEM), []byte(nonStandardPKCS8DERPEM))
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
	assert.NotNil(t, cert.PrivateKey)
}

func TestBuildTLSConfigMissingKeyFileIsConfigError(t *testing.T) {
	crt := writeFixture(t, "crt.pem", certOnlyPEM)
	cfg := Config{
		Endpoint: "https://talos.internal:50000",
		CrtPath:  crt,
		KeyPath:  filepath.Join(t.TempDir(), "missing.pem"),
	}
	_, err := buildTLSConfig(cfg, "talos.internal")
	require.Error(t, err)
}

func TestBuildTLSConfigAcceptsInlinePEM(t *testing.T) {
	cfg := Config{
		Endpoint: "https://talos.internal:50000",
		CAPEM:    certOnlyPEM,
		CrtPEM:   certOnlyPEM,
		KeyPEM:   pkcs8ED25519PEM,
	}
	tlsCfg, err := buildTLSConfig(cfg, "talos.internal")
	require.NoError(t, err)
	assert.NotNil(t, tlsCfg.RootCAs)
	assert.Len(t, tlsCfg.Certificates, 1)
}

func TestValidateRejectsCertPathsOnPlaintext(t *testing.T) {
	cfg := Config{Endpoint: "http://10.0.0.5:50000", CAPath: "/tmp/ca.pem"}
	require.Error(t, cfg.Validate())
}

func TestValidateMutualTLSRequiresIdentityOrCA(t *testing.T) {
	noMaterial := Config{Endpoint: "https://10.0.0.5:50000"}
	require.Error(t, noMaterial.Validate())

	caOnly := Config{Endpoint: "https://10.0.0.5:50000", CAPath: "/tmp/ca.pem"}
	require.NoError(t, caOnly.Validate(), "CA alone degrades to server-trust-only")

	insecure := Config{Endpoint: "https://10.0.0.5:50000", Insecure: true}
	require.NoError(t, insecure.Validate())
}

func TestBuildTLSConfigInsecureSkipsVerification(t *testing.T) {
	cfg := Config{Endpoint: "https://example.invalid:50000", Insecure: true}
	tlsCfg, err := buildTLSConfig(cfg, "example.invalid")
	require.NoError(t, err)
	assert.True(t, tlsCfg.InsecureSkipVerify)
	assert.Equal(t, "example.invalid", tlsCfg.ServerName)
}

func TestBuildTLSConfigLoadsCABundle(t *testing.T) {
	ca := writeFixture(t, "ca.pem", certOnlyPEM)
	cfg := Config{Endpoint: "talos.internal:50000", CAPath: ca}
	tlsCfg, err := buildTLSConfig(cfg, "talos.internal")
	require.NoError(t, err)
	assert.NotNil(t, tlsCfg.RootCAs)
}

func TestBuildTLSConfigRejectsMissingCABundle(t *testing.T) {
	cfg := Config{Endpoint: "talos.internal:50000", CAPath: filepath.Join(t.TempDir(), "missing.pem")}
	_, err := buildTLSConfig(cfg, "talos.internal")
	require.Error(t, err)
}

// TestBuildTimesOutAgainstAnUnreachableEndpoint exercises the ConnectTimeout
// path without any real Talos cluster: dialing a loopback port nothing is
// listening on must leave the conn stuck outside connectivity.Ready, so
// Build surfaces a TransportError once ConnectTimeout elapses.
func TestBuildTimesOutAgainstAnUnreachableEndpoint(t *testing.T) {
	cfg := Config{
		Endpoint:       "http://127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Build(ctx, cfg)
	require.Error(t, err)
}
