package transport

import (
	"fmt"
	"net"
	"strings"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

// splitScheme separates an optional "scheme://" prefix from the rest of
// the endpoint string. Returns scheme="" when none is present (a bare
// "host:port" is treated as https, matching talosctl's own convention).
func splitScheme(endpoint string) (scheme, rest string) {
	if idx := strings.Index(endpoint, "://"); idx >= 0 {
		return endpoint[:idx], endpoint[idx+3:]
	}
	return "", endpoint
}

// hostPort resolves the "host:port" pair used to dial and the bare
// hostname used as the TLS server name, applying DefaultPort when the
// endpoint omits one. SNI must carry the hostname, not the socket
// address, or mTLS certificate verification fails.
func hostPort(endpoint string) (dialAddr, hostname string, err error) {
	_, rest := splitScheme(endpoint)
	host, port, splitErr := net.SplitHostPort(rest)
	if splitErr != nil {
		// No port present at all.
		host = rest
		port = DefaultPort
	}
	if host == "" {
		return "", "", errs.NewConfigError("transport.hostPort", fmt.Sprintf("invalid endpoint %q", endpoint), nil)
	}
	return net.JoinHostPort(host, port), host, nil
}
