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

// Package security implements the card's keys and cryptographic services:
// key building and generation, message digests, signatures and MACs,
// random data, key agreement, checksums and key derivation.
//
// The primitives come from the Go standard library, golang.org/x/crypto
// and github.com/jacobsa/crypto. This package translates between the
// card's key objects and those libraries and reports failures with the
// card's crypto reason codes.
package security

import (
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

var (
	// ErrIllegalValue is returned for an unexpected parameter, or a key
	// that does not match the algorithm.
	ErrIllegalValue = jcerr.New(jcerr.KindCrypto, jcerr.CryptoIllegalValue)

	// ErrUninitializedKey is returned when a key has no value.
	ErrUninitializedKey = jcerr.New(jcerr.KindCrypto, jcerr.CryptoUninitKey)

	// ErrNoSuchAlgorithm is returned for unsupported algorithms and key sizes.
	ErrNoSuchAlgorithm = jcerr.New(jcerr.KindCrypto, jcerr.CryptoNoSuchAlg)

	// ErrInvalidInit is returned when an object is used before Init, or
	// in the wrong mode.
	ErrInvalidInit = jcerr.New(jcerr.KindCrypto, jcerr.CryptoInvalidInit)

	// ErrIllegalUse is returned for input the algorithm cannot process,
	// such as unpadded data or a corrupt cryptogram.
	ErrIllegalUse = jcerr.New(jcerr.KindCrypto, jcerr.CryptoIllegalUse)
)

// Mode selects the direction of a signature or cipher.
type Mode uint8

const (
	ModeSign    Mode = 1
	ModeVerify  Mode = 2
	ModeDecrypt Mode = 1
	ModeEncrypt Mode = 2
)

// Record reports a cryptographic operation to the metrics registry.
func Record(op, alg string, err error) {
	metrics.RecordCrypto(op, alg, err)
}
