package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

// Channel is an opaque, cheaply-cloneable established transport. Multiple
// callers may share the same *grpc.ClientConn concurrently.
type Channel interface {
	Conn() *grpc.ClientConn
	Endpoint() string
	Close() error
}

type channel struct {
	conn     *grpc.ClientConn
	endpoint string
}

func (c *channel) Conn() *grpc.ClientConn { return c.conn }
func (c *channel) Endpoint() string       { return c.endpoint }
func (c *channel) Close() error           { return c.conn.Close() }

// Build turns a Config into a connected Channel: scheme-based mode
// selection, TLS config assembly (trust roots, client identity, ALPN,
// insecure-mode verifier), timeout/keepalive application, and
// hostname-derived SNI via a custom dial target.
func Build(ctx context.Context, cfg Config) (Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialAddr, hostname, err := hostPort(cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	var creds credentials.TransportCredentials
	switch cfg.Mode() {
	case Plaintext:
		creds = insecure.NewCredentials()
	default:
		tlsCfg, tlsErr := buildTLSConfig(cfg, hostname)
		if tlsErr != nil {
			return nil, tlsErr
		}
		creds = credentials.NewTLS(tlsCfg)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, grpc.WithUnaryInterceptor(requestTimeoutInterceptor(cfg.RequestTimeout)))
	}
	if cfg.KeepaliveInterval > 0 {
		opts = append(opts, grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:    cfg.KeepaliveInterval,
			Timeout: cfg.KeepaliveTimeout,
		}))
	}

	conn, err := grpc.NewClient(dialAddr, opts...)
	if err != nil {
		return nil, errs.NewTransportError(cfg.Endpoint, err)
	}
	// grpc.NewClient is lazy; force the first connection attempt now and
	// wait up to ConnectTimeout for it to leave the initial idle/connecting
	// states, so construction-time failures surface as a TransportError
	// rather than being deferred to the first RPC.
	conn.Connect()
	if cfg.ConnectTimeout > 0 {
		connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		if err := waitUntilReady(connectCtx, conn); err != nil {
			_ = conn.Close()
			return nil, errs.NewTransportError(cfg.Endpoint, err)
		}
	}

	return &channel{conn: conn, endpoint: cfg.Endpoint}, nil
}

// requestTimeoutInterceptor bounds each unary attempt. Streaming calls are
// left unbounded here: a log follow may legitimately outlive any
// per-request budget, so stream deadlines stay with the caller's ctx.
func requestTimeoutInterceptor(timeout time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func waitUntilReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

// buildTLSConfig assembles trust roots, client identity (with the ordered
// key-parsing fallback), ALPN, and the insecure-mode verifier override.
func buildTLSConfig(cfg Config, hostname string) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		ServerName: hostname,
		NextProtos: []string{"h2"},
		MinVersion: tls.VersionTLS12,
	}

	if cfg.hasCA() {
		caBytes, err := materialBytes(cfg.CAPEM, cfg.CAPath, "CA bundle")
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errs.NewConfigError("transport.buildTLSConfig", "no certificates found in CA bundle", nil)
		}
		tlsCfg.RootCAs = pool
	}

	if cfg.hasIdentity() {
		certBytes, err := materialBytes(cfg.CrtPEM, cfg.CrtPath, "client certificate")
		if err != nil {
			return nil, err
		}
		keyBytes, err := materialBytes(cfg.KeyPEM, cfg.KeyPath, "client key")
		if err != nil {
			return nil, err
		}
		cert, err := loadClientIdentity(certBytes, keyBytes)
		if err != nil {
			return nil, err
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.Mode() == AnonymousTLS {
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.CipherSuites = nil // allow the full default set, including ED25519-capable suites
	}

	return tlsCfg, nil
}

// materialBytes resolves one piece of TLS material, preferring the inline
// PEM form over a file path.
func materialBytes(inline, path, what string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewConfigError("transport.buildTLSConfig", "reading "+what, err)
	}
	return data, nil
}

// loadClientIdentity parses the certificate with the stdlib's PEM/X.509
// decoder and the private key with parsePrivateKey's ordered fallback
// chain, then pairs them into a tls.Certificate.
func loadClientIdentity(certBytes, keyBytes []byte) (tls.Certificate, error) {
	if cert, err := tls.X509KeyPair(certBytes, keyBytes); err == nil {
		return cert, nil
	}

	// tls.X509KeyPair's own key parsing doesn't know the non-standard
	// ED25519 label; fall back to our ordered parser and assemble the
	// tls.Certificate by hand.
	key, err := parsePrivateKey(keyBytes)
	if err != nil {
		return tls.Certificate{}, err
	}
	certDER, err := decodeCertificateChain(certBytes)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: certDER, PrivateKey: key}, nil
}

// decodeCertificateChain decodes every CERTIFICATE block in a PEM-encoded
// file into the DER chain tls.Certificate expects.
func decodeCertificateChain(pemBytes []byte) ([][]byte, error) {
	var chain [][]byte
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			chain = append(chain, block.Bytes)
		}
		if len(rest) == 0 {
			break
		}
	}
	if len(chain) == 0 {
		return nil, errs.NewConfigError("transport.decodeCertificateChain", "no certificate found", nil)
	}
	if _, err := x509.ParseCertificate(chain[0]); err != nil {
		return nil, errs.NewConfigError("transport.decodeCertificateChain", "invalid certificate", err)
	}
	return chain, nil
}
