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
	"crypto/rand"
	"crypto/sha256"
	mrand "math/rand/v2"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// RandomAlgorithm identifies a random number generator.
type RandomAlgorithm uint8

const (
	RandomPseudo        RandomAlgorithm = 1
	RandomSecure        RandomAlgorithm = 2
	RandomTRNG          RandomAlgorithm = 3
	RandomPreseededDRBG RandomAlgorithm = 4
	RandomFast          RandomAlgorithm = 5
	RandomKeyGeneration RandomAlgorithm = 6
)

var randomNames = map[RandomAlgorithm]string{
	RandomPseudo:        "pseudo",
	RandomSecure:        "secure",
	RandomTRNG:          "trng",
	RandomPreseededDRBG: "preseeded_drbg",
	RandomFast:          "fast",
	RandomKeyGeneration: "keygeneration",
}

// String returns the algorithm name.
func (a RandomAlgorithm) String() string {
	if n, ok := randomNames[a]; ok {
		return n
	}
	return "unknown"
}

// RandomData generates random bytes. The pseudo, fast and preseeded
// generators are deterministic once seeded; the others draw from the
// operating system.
type RandomData struct {
	alg    RandomAlgorithm
	stream *mrand.ChaCha8
}

// NewRandomData creates a generator for alg.
func NewRandomData(alg RandomAlgorithm) (*RandomData, error) {
	if _, ok := randomNames[alg]; !ok {
		return nil, ErrNoSuchAlgorithm.WithMsg("random %d", alg)
	}
	r := &RandomData{alg: alg}
	if r.deterministic() {
		var seed [32]byte
		if _, err := rand.Read(seed[:]); err != nil {
			return nil, err
		}
		r.stream = mrand.NewChaCha8(seed)
	}
	return r, nil
}

func (r *RandomData) deterministic() bool {
	return r.alg == RandomPseudo || r.alg == RandomFast || r.alg == RandomPreseededDRBG
}

// Algorithm returns the generator algorithm.
func (r *RandomData) Algorithm() RandomAlgorithm {
	return r.alg
}

// Generate fills out with random bytes.
func (r *RandomData) Generate(out []byte) error {
	var err error
	if r.stream != nil {
		_, err = r.stream.Read(out)
	} else {
		_, err = rand.Read(out)
	}
	Record(metrics.OpRandom, r.alg.String(), err)
	return err
}

// SetSeed reseeds a deterministic generator. Equal seeds produce equal
// output. Seeding a system generator has no effect.
func (r *RandomData) SetSeed(seed []byte) {
	if r.stream == nil {
		return
	}
	r.stream.Seed(sha256.Sum256(seed))
}
