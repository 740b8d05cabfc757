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

package security

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// KDFAlgorithm identifies a key derivation function.
type KDFAlgorithm uint8

const (
	KDFHKDFSHA256 KDFAlgorithm = 1
	KDFHKDFSHA384 KDFAlgorithm = 2
	KDFHKDFSHA512 KDFAlgorithm = 3
)

var kdfHashes = map[KDFAlgorithm]func() hash.Hash{
	KDFHKDFSHA256: sha256.New,
	KDFHKDFSHA384: sha512.New384,
	KDFHKDFSHA512: sha512.New,
}

// String returns the algorithm name.
func (a KDFAlgorithm) String() string {
	switch a {
	case KDFHKDFSHA256:
		return "hkdf_sha256"
	case KDFHKDFSHA384:
		return "hkdf_sha384"
	case KDFHKDFSHA512:
		return "hkdf_sha512"
	}
	return "unknown"
}

// KDF derives key material from a shared secret with HKDF (RFC 5869).
type KDF struct {
	alg  KDFAlgorithm
	hash func() hash.Hash
}

// NewKDF creates a derivation function for alg.
func NewKDF(alg KDFAlgorithm) (*KDF, error) {
	h, ok := kdfHashes[alg]
	if !ok {
		return nil, ErrNoSuchAlgorithm.WithMsg("kdf %d", alg)
	}
	return &KDF{alg: alg, hash: h}, nil
}

// Algorithm returns the KDF algorithm.
func (k *KDF) Algorithm() KDFAlgorithm {
	return k.alg
}

// DeriveBytes returns n bytes derived from secret, salt and info.
func (k *KDF) DeriveBytes(secret, salt, info []byte, n int) ([]byte, error) {
	out, err := k.derive(secret, salt, info, n)
	Record(metrics.OpDerive, k.alg.String(), err)
	return out, err
}

func (k *KDF) derive(secret, salt, info []byte, n int) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrIllegalValue.WithMsg("empty secret")
	}
	if n <= 0 || n > 255*k.hash().Size() {
		return nil, ErrIllegalValue.WithMsg("cannot derive %d bytes", n)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.New(k.hash, secret, salt, info), out); err != nil {
		return nil, ErrIllegalUse.WithMsg("%v", err)
	}
	return out, nil
}

// DeriveKey fills a symmetric key with Size/8 derived bytes.
func (k *KDF) DeriveKey(secret, salt, info []byte, key *SymmetricKey) error {
	if key == nil {
		return ErrIllegalValue.WithMsg("nil key")
	}
	material, err := k.DeriveBytes(secret, salt, info, key.Size()/8)
	if err != nil {
		return err
	}
	defer clear(material)
	return key.SetKey(material)
}
