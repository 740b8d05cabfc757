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
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"math/big"
	"slices"

	"golang.org/x/crypto/curve25519"

	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// KeyBuilder creates keys. Transient key types allocate their storage
// from the arena.
type KeyBuilder struct {
	arena *memory.Arena
}

// NewKeyBuilder creates a key builder. arena may be nil when no transient
// keys are built.
func NewKeyBuilder(arena *memory.Arena) *KeyBuilder {
	return &KeyBuilder{arena: arena}
}

// BuildKey creates an uninitialized key of the given type and length.
func (b *KeyBuilder) BuildKey(t KeyType, bits int) (Key, error) {
	switch t {
	case TypeDES, TypeDESTransientReset, TypeDESTransientDeselect:
		if bits != LengthDES && bits != LengthDES3_2Key && bits != LengthDES3_3Key {
			return nil, ErrNoSuchAlgorithm.WithMsg("DES key of %d bits", bits)
		}
		return b.symmetric(t, bits)
	case TypeAES, TypeAESTransientReset, TypeAESTransientDeselect:
		if bits != LengthAES128 && bits != LengthAES192 && bits != LengthAES256 {
			return nil, ErrNoSuchAlgorithm.WithMsg("AES key of %d bits", bits)
		}
		return b.symmetric(t, bits)
	case TypeHMAC, TypeHMACTransientReset, TypeHMACTransientDeselect:
		if bits <= 0 || bits%8 != 0 || bits > 8*0x400 {
			return nil, ErrNoSuchAlgorithm.WithMsg("HMAC key of %d bits", bits)
		}
		return b.symmetric(t, bits)
	case TypeRSAPublic, TypeRSAPrivate, TypeRSACRTPrivate:
		if !slices.Contains(rsaLengths, bits) {
			return nil, ErrNoSuchAlgorithm.WithMsg("RSA key of %d bits", bits)
		}
		switch t {
		case TypeRSAPublic:
			return &RSAPublicKey{size: bits}, nil
		case TypeRSAPrivate:
			return &RSAPrivateKey{size: bits}, nil
		default:
			return &RSAPrivateCrtKey{size: bits}, nil
		}
	case TypeECFPPublic, TypeECFPPrivate:
		curve, err := curveFor(bits)
		if err != nil {
			return nil, err
		}
		if t == TypeECFPPublic {
			return &ECPublicKey{size: bits, curve: curve}, nil
		}
		return &ECPrivateKey{size: bits, curve: curve}, nil
	case TypeX25519Public, TypeX25519Private:
		if bits != LengthX25519 && bits != 255 {
			return nil, ErrNoSuchAlgorithm.WithMsg("X25519 key of %d bits", bits)
		}
		return &XECKey{typ: t}, nil
	}
	return nil, ErrNoSuchAlgorithm.WithMsg("key type %d", t)
}

func (b *KeyBuilder) symmetric(t KeyType, bits int) (Key, error) {
	k := &SymmetricKey{typ: t, size: bits}
	var class memory.Class
	switch t {
	case TypeDESTransientReset, TypeAESTransientReset, TypeHMACTransientReset:
		class = memory.ClearOnReset
	case TypeDESTransientDeselect, TypeAESTransientDeselect, TypeHMACTransientDeselect:
		class = memory.ClearOnDeselect
	default:
		k.data = make([]byte, bits/8)
		return k, nil
	}
	if b.arena == nil {
		return nil, ErrIllegalValue.WithMsg("transient key without arena")
	}
	cell, err := b.arena.NewByteArray(bits/8, class)
	if err != nil {
		return nil, err
	}
	state, err := b.arena.NewShortArray(1, class)
	if err != nil {
		return nil, err
	}
	k.cell = cell
	k.state = state
	return k, nil
}

// KeyPairAlgorithm selects the key pair family. KeyPairXEC is a simulator
// extension.
type KeyPairAlgorithm uint8

const (
	KeyPairRSA    KeyPairAlgorithm = 1
	KeyPairRSACRT KeyPairAlgorithm = 2
	KeyPairECFP   KeyPairAlgorithm = 5
	KeyPairXEC    KeyPairAlgorithm = 7
)

func (a KeyPairAlgorithm) String() string {
	switch a {
	case KeyPairRSA:
		return "rsa"
	case KeyPairRSACRT:
		return "rsa_crt"
	case KeyPairECFP:
		return "ec_fp"
	case KeyPairXEC:
		return "xec"
	}
	return "unknown"
}

// KeyPair holds a public and private key of one family.
type KeyPair struct {
	alg     KeyPairAlgorithm
	public  Key
	private Key
	rand    io.Reader
}

// NewKeyPair creates a key pair with freshly built, uninitialized keys.
func NewKeyPair(alg KeyPairAlgorithm, bits int) (*KeyPair, error) {
	b := NewKeyBuilder(nil)
	var pubType, privType KeyType
	switch alg {
	case KeyPairRSA:
		pubType, privType = TypeRSAPublic, TypeRSAPrivate
	case KeyPairRSACRT:
		pubType, privType = TypeRSAPublic, TypeRSACRTPrivate
	case KeyPairECFP:
		pubType, privType = TypeECFPPublic, TypeECFPPrivate
	case KeyPairXEC:
		pubType, privType = TypeX25519Public, TypeX25519Private
	default:
		return nil, ErrNoSuchAlgorithm.WithMsg("key pair algorithm %d", alg)
	}
	pub, err := b.BuildKey(pubType, bits)
	if err != nil {
		return nil, err
	}
	priv, err := b.BuildKey(privType, bits)
	if err != nil {
		return nil, err
	}
	return &KeyPair{alg: alg, public: pub, private: priv, rand: rand.Reader}, nil
}

// NewKeyPairFromKeys wraps existing keys. Their types must match alg.
func NewKeyPairFromKeys(alg KeyPairAlgorithm, public, private Key) (*KeyPair, error) {
	ok := false
	switch alg {
	case KeyPairRSA:
		ok = public.Type() == TypeRSAPublic && private.Type() == TypeRSAPrivate
	case KeyPairRSACRT:
		ok = public.Type() == TypeRSAPublic && private.Type() == TypeRSACRTPrivate
	case KeyPairECFP:
		ok = public.Type() == TypeECFPPublic && private.Type() == TypeECFPPrivate
	case KeyPairXEC:
		ok = public.Type() == TypeX25519Public && private.Type() == TypeX25519Private
	}
	if !ok || public.Size() != private.Size() {
		return nil, ErrIllegalValue.WithMsg("keys do not match %s key pair", alg)
	}
	return &KeyPair{alg: alg, public: public, private: private, rand: rand.Reader}, nil
}

// Public returns the public key.
func (kp *KeyPair) Public() Key { return kp.public }

// Private returns the private key.
func (kp *KeyPair) Private() Key { return kp.private }

// GenKeyPair generates fresh values for both keys.
func (kp *KeyPair) GenKeyPair() error {
	err := kp.generate()
	Record(metrics.OpKeyGen, kp.alg.String(), err)
	return err
}

func (kp *KeyPair) generate() error {
	switch kp.alg {
	case KeyPairRSA, KeyPairRSACRT:
		priv, err := rsa.GenerateKey(kp.rand, kp.public.Size())
		if err != nil {
			return ErrIllegalValue.WithMsg("%v", err)
		}
		pub := kp.public.(*RSAPublicKey)
		pub.n = priv.N.Bytes()
		pub.e = bigEndian(priv.E)
		if kp.alg == KeyPairRSA {
			k := kp.private.(*RSAPrivateKey)
			k.n = priv.N.Bytes()
			k.d = priv.D.Bytes()
			return nil
		}
		p, q := priv.Primes[0], priv.Primes[1]
		one := big.NewInt(1)
		k := kp.private.(*RSAPrivateCrtKey)
		k.p = p.Bytes()
		k.q = q.Bytes()
		k.dp = new(big.Int).Mod(priv.D, new(big.Int).Sub(p, one)).Bytes()
		k.dq = new(big.Int).Mod(priv.D, new(big.Int).Sub(q, one)).Bytes()
		k.qinv = new(big.Int).ModInverse(q, p).Bytes()
		return nil
	case KeyPairECFP:
		pub := kp.public.(*ECPublicKey)
		priv, err := ecdsa.GenerateKey(pub.curve, kp.rand)
		if err != nil {
			return ErrIllegalValue.WithMsg("%v", err)
		}
		w, err := priv.PublicKey.Bytes()
		if err != nil {
			return ErrIllegalValue.WithMsg("%v", err)
		}
		s, err := priv.Bytes()
		if err != nil {
			return ErrIllegalValue.WithMsg("%v", err)
		}
		pub.w = w
		kp.private.(*ECPrivateKey).s = s
		return nil
	case KeyPairXEC:
		scalar := make([]byte, curve25519.ScalarSize)
		if _, err := io.ReadFull(kp.rand, scalar); err != nil {
			return ErrIllegalValue.WithMsg("%v", err)
		}
		u, err := curve25519.X25519(scalar, curve25519.Basepoint)
		if err != nil {
			return ErrIllegalValue.WithMsg("%v", err)
		}
		kp.public.(*XECKey).data = u
		kp.private.(*XECKey).data = scalar
		return nil
	}
	return ErrNoSuchAlgorithm
}

func bigEndian(v int) []byte {
	var out []byte
	for v > 0 {
		out = append([]byte{byte(v)}, out...)
		v >>= 8
	}
	return out
}
