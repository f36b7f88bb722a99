package transport

import (
	"crypto"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"

	"github.com/xmv-solutions/talos-client-go/internal/errs"
)

// nonStandardED25519Label is the PEM label some Talos cert issuers use for
// an ED25519 private key that is, underneath, plain PKCS#8 DER. Go's
// standard library never emits or expects this label, so it is tried only
// after every standard parser has failed.
const nonStandardED25519Label = "ED25519 PRIVATE KEY"

// parsePrivateKey tries the standard encodings in order — PKCS#1 RSA, then
// PKCS#8, then SEC1 EC — and, if none match, scans the PEM text for the
// non-standard ED25519 label, decoding its body as PKCS#8 DER.
func parsePrivateKey(pemBytes []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.NewConfigError("transport.parsePrivateKey", "no private key found", nil)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	if key, ok := parseNonStandardED25519(pemBytes); ok {
		return key, nil
	}

	return nil, errs.NewConfigError("transport.parsePrivateKey", "no private key found", nil)
}

func parseNonStandardED25519(pemBytes []byte) (crypto.PrivateKey, bool) {
	rest := pemBytes
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, false
		}
		if strings.EqualFold(block.Type, nonStandardED25519Label) {
			der := block.Bytes
			// Some issuers PEM-wrap an already-base64 body rather than
			// raw DER; try both.
			if decoded, err := base64.StdEncoding.DecodeString(string(der)); err == nil {
				if key, err := x509.ParsePKCS8PrivateKey(decoded); err == nil {
					return key, true
				}
			}
			if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
				return key, true
			}
			if len(der) == ed25519.SeedSize {
				return ed25519.NewKeyFromSeed(der), true
			}
		}
		if len(rest) == 0 {
			return nil, false
		}
	}
}
