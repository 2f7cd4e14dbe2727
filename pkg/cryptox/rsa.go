package cryptox

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// ParseRSAPrivateKeyPEM parses a PEM-encoded RSA private key in either PKCS1
// ("RSA PRIVATE KEY") or PKCS8 ("PRIVATE KEY") form. Connected-app
// certificates are distributed in both shapes depending on how they were
// generated.
func ParseRSAPrivateKeyPEM(pemData []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("cryptox: no PEM block found")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse PKCS1 key: %w", err)
		}
		return key, nil

	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("cryptox: failed to parse PKCS8 key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("cryptox: PKCS8 key is not RSA")
		}
		return rsaKey, nil

	default:
		return nil, fmt.Errorf("cryptox: unsupported PEM block type %q", block.Type)
	}
}
