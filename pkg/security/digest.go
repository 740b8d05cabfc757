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
	"crypto"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// DigestAlgorithm identifies a message digest.
type DigestAlgorithm uint8

const (
	DigestSHA1      DigestAlgorithm = 1
	DigestMD5       DigestAlgorithm = 2
	DigestRIPEMD160 DigestAlgorithm = 3
	DigestSHA256    DigestAlgorithm = 4
	DigestSHA384    DigestAlgorithm = 5
	DigestSHA512    DigestAlgorithm = 6
	DigestSHA224    DigestAlgorithm = 7
	DigestSHA3_224  DigestAlgorithm = 8
	DigestSHA3_256  DigestAlgorithm = 9
	DigestSHA3_384  DigestAlgorithm = 10
	DigestSHA3_512  DigestAlgorithm = 11
)

type digestInfo struct {
	name string
	new  func() hash.Hash
	hash crypto.Hash
}

var digests = map[DigestAlgorithm]digestInfo{
	DigestSHA1:      {"sha1", sha1.New, crypto.SHA1},
	DigestMD5:       {"md5", md5.New, crypto.MD5},
	DigestRIPEMD160: {"ripemd160", ripemd160.New, crypto.RIPEMD160},
	DigestSHA256:    {"sha256", sha256.New, crypto.SHA256},
	DigestSHA384:    {"sha384", sha512.New384, crypto.SHA384},
	DigestSHA512:    {"sha512", sha512.New, crypto.SHA512},
	DigestSHA224:    {"sha224", sha256.New224, crypto.SHA224},
	DigestSHA3_224:  {"sha3_224", sha3.New224, crypto.SHA3_224},
	DigestSHA3_256:  {"sha3_256", sha3.New256, crypto.SHA3_256},
	DigestSHA3_384:  {"sha3_384", sha3.New384, crypto.SHA3_384},
	DigestSHA3_512:  {"sha3_512", sha3.New512, crypto.SHA3_512},
}

// String returns the algorithm name.
func (a DigestAlgorithm) String() string {
	if d, ok := digests[a]; ok {
		return d.name
	}
	return "unknown"
}

// MessageDigest computes a hash over data supplied in pieces.
type MessageDigest struct {
	alg DigestAlgorithm
	h   hash.Hash
}

// NewMessageDigest creates a digest for alg.
func NewMessageDigest(alg DigestAlgorithm) (*MessageDigest, error) {
	d, ok := digests[alg]
	if !ok {
		return nil, ErrNoSuchAlgorithm.WithMsg("digest %d", alg)
	}
	return &MessageDigest{alg: alg, h: d.new()}, nil
}

// Algorithm returns the digest algorithm.
func (m *MessageDigest) Algorithm() DigestAlgorithm {
	return m.alg
}

// Length returns the digest length in bytes.
func (m *MessageDigest) Length() int {
	return m.h.Size()
}

// Update hashes data.
func (m *MessageDigest) Update(data []byte) {
	m.h.Write(data)
}

// DoFinal hashes data, returns the digest and resets the object.
func (m *MessageDigest) DoFinal(data []byte) []byte {
	m.h.Write(data)
	out := m.h.Sum(nil)
	m.h.Reset()
	Record(metrics.OpDigest, m.alg.String(), nil)
	return out
}

// Reset discards hashed data.
func (m *MessageDigest) Reset() {
	m.h.Reset()
}
