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

package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/spf13/afero"
)

// TLSConfig enables HTTPS on the metrics endpoint
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	CAFile     string `yaml:"ca_file"`     // client CA, enables mTLS
	MinVersion string `yaml:"min_version"` // TLS1.2, TLS1.3
}

// Validate checks the required files are named.
func (cfg *TLSConfig) Validate() error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.CertFile == "" {
		return fmt.Errorf("TLS cert_file is required when TLS is enabled")
	}
	if cfg.KeyFile == "" {
		return fmt.Errorf("TLS key_file is required when TLS is enabled")
	}
	if _, err := parseTLSVersion(cfg.MinVersion); err != nil {
		return err
	}
	return nil
}

// LoadTLSConfig reads the certificate files from fs. It returns nil when
// TLS is disabled.
func (cfg *TLSConfig) LoadTLSConfig(fs afero.Fs) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	certPEM, err := afero.ReadFile(fs, cfg.CertFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	keyPEM, err := afero.ReadFile(fs, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	minVersion, err := parseTLSVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}
	// #nosec G402 - MinVersion defaults to TLS 1.2
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
	}

	if cfg.CAFile != "" {
		caPEM, err := afero.ReadFile(fs, cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", cfg.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate from %s", cfg.CAFile)
		}
		tlsConfig.ClientCAs = pool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return tlsConfig, nil
}

// parseTLSVersion converts a string to a tls version constant
func parseTLSVersion(version string) (uint16, error) {
	switch version {
	case "", "TLS1.2":
		return tls.VersionTLS12, nil
	case "TLS1.3":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported TLS min_version: %s", version)
}
