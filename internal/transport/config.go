// Package transport turns a Config into a connected gRPC Channel, with
// three TLS modes, ordered private-key parsing including a non-standard
// PEM label fallback, and hostname-derived SNI.
package transport

import (
	"time"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

// TLSMode selects one of the three transport variants.
type TLSMode int

const (
	Plaintext TLSMode = iota
	AnonymousTLS
	MutualTLS
)

// DefaultPort is the Talos apid port, used when an endpoint URL omits one.
const DefaultPort = "50000"

// Config is an immutable connection profile for one endpoint.
type Config struct {
	Endpoint string // "host:port" or "scheme://host:port"
	Insecure bool   // AnonymousTLS when true and scheme is https

	// TLS material, either as file paths or as inline PEM blocks (the
	// form a talosconfig context carries). Inline wins when both are set.
	CAPath  string
	CrtPath string
	KeyPath string
	CAPEM   string
	CrtPEM  string
	KeyPEM  string

	ConnectTimeout    time.Duration // zero = disabled
	RequestTimeout    time.Duration
	KeepaliveInterval time.Duration
	KeepaliveTimeout  time.Duration
}

// Mode resolves which of the three TLS variants this Config selects: an
// http scheme means plaintext, https with Insecure set skips server
// verification, https otherwise is full mTLS.
func (c Config) Mode() TLSMode {
	scheme, _ := splitScheme(c.Endpoint)
	if scheme == "http" {
		return Plaintext
	}
	if c.Insecure {
		return AnonymousTLS
	}
	return MutualTLS
}

func (c Config) hasCA() bool { return c.CAPath != "" || c.CAPEM != "" }

func (c Config) hasIdentity() bool {
	return (c.CrtPath != "" || c.CrtPEM != "") && (c.KeyPath != "" || c.KeyPEM != "")
}

// Validate enforces the mode/material pairing rules: plaintext forbids any
// certificate material, and mutual TLS with an incomplete client identity
// degrades to server-trust-only when a CA is present but fails otherwise.
func (c Config) Validate() error {
	switch c.Mode() {
	case Plaintext:
		if c.hasCA() || c.CrtPath != "" || c.CrtPEM != "" || c.KeyPath != "" || c.KeyPEM != "" {
			return errs.NewConfigError("transport.Validate", "certificate material is not allowed with a plaintext endpoint", nil)
		}
	case MutualTLS:
		if !c.hasIdentity() && !c.hasCA() {
			return errs.NewConfigError("transport.Validate", "mutual TLS requires a client certificate and key, or at least a CA bundle for server-trust-only mode", nil)
		}
	}
	return nil
}
