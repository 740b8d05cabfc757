// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-javacard.
//
// go-javacard is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package testutil provides certificate fixtures for tests of the metrics
// endpoint's TLS setup.
package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"path"
	"time"

	"github.com/spf13/afero"
)

// Usage selects the extended key usage of an issued certificate.
type Usage int

const (
	ServerAuth Usage = iota
	ClientAuth
)

// Certificate is a generated certificate with its PEM encodings.
type Certificate struct {
	Cert    *x509.Certificate
	Key     *ecdsa.PrivateKey
	CertPEM []byte
	KeyPEM  []byte
}

// CA is a self-signed certificate authority valid for one day.
type CA struct {
	Certificate
}

// NewCA generates a P-256 certificate authority.
func NewCA() (*CA, error) {
	tmpl := template("Test CA")
	tmpl.IsCA = true
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign
	c, err := create(tmpl, nil, nil)
	if err != nil {
		return nil, err
	}
	return &CA{Certificate: *c}, nil
}

// Issue signs a leaf certificate. names become the subject CN and, for
// server certificates, the DNS SANs.
func (ca *CA) Issue(usage Usage, names ...string) (*Certificate, error) {
	if len(names) == 0 {
		names = []string{"localhost"}
	}
	tmpl := template(names[0])
	tmpl.KeyUsage = x509.KeyUsageDigitalSignature
	switch usage {
	case ServerAuth:
		tmpl.DNSNames = names
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	case ClientAuth:
		tmpl.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	default:
		return nil, fmt.Errorf("unknown usage %d", usage)
	}
	return create(tmpl, ca.Cert, ca.Key)
}

// WriteFiles stores the certificate and key as name.crt and name.key in
// dir on fs and returns both paths.
func (c *Certificate) WriteFiles(fs afero.Fs, dir, name string) (string, string, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	certPath := path.Join(dir, name+".crt")
	keyPath := path.Join(dir, name+".key")
	if err := afero.WriteFile(fs, certPath, c.CertPEM, 0o644); err != nil {
		return "", "", err
	}
	if err := afero.WriteFile(fs, keyPath, c.KeyPEM, 0o600); err != nil {
		return "", "", err
	}
	return certPath, keyPath, nil
}

func template(cn string) *x509.Certificate {
	now := time.Now()
	return &x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"go-javacard tests"}, CommonName: cn},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(24 * time.Hour),
		BasicConstraintsValid: true,
	}
}

// create signs tmpl with parentKey, or self-signs when parent is nil.
func create(tmpl, parent *x509.Certificate, parentKey *ecdsa.PrivateKey) (*Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	tmpl.SerialNumber = serial
	if parent == nil {
		parent, parentKey = tmpl, key
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &key.PublicKey, parentKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key: %w", err)
	}
	return &Certificate{
		Cert:    cert,
		Key:     key,
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
	}, nil
}
