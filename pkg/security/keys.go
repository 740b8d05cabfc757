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
	"crypto/elliptic"
	"crypto/rsa"
	"math/big"
	"slices"

	"github.com/jeremyhahn/go-javacard/pkg/memory"
)

// KeyType identifies a key variant. Values follow the card's key builder
// constants; the X25519 types are simulator extensions.
type KeyType uint8

const (
	TypeDESTransientReset     KeyType = 1
	TypeDESTransientDeselect  KeyType = 2
	TypeDES                   KeyType = 3
	TypeRSAPublic             KeyType = 4
	TypeRSAPrivate            KeyType = 5
	TypeRSACRTPrivate         KeyType = 6
	TypeECFPPublic            KeyType = 11
	TypeECFPPrivate           KeyType = 12
	TypeAESTransientReset     KeyType = 13
	TypeAESTransientDeselect  KeyType = 14
	TypeAES                   KeyType = 15
	TypeHMACTransientReset    KeyType = 19
	TypeHMACTransientDeselect KeyType = 20
	TypeHMAC                  KeyType = 21
	TypeX25519Public          KeyType = 0x41
	TypeX25519Private         KeyType = 0x42
)

// Key lengths in bits.
const (
	LengthDES       = 64
	LengthDES3_2Key = 128
	LengthDES3_3Key = 192
	LengthAES128    = 128
	LengthAES192    = 192
	LengthAES256    = 256
	LengthRSA1024   = 1024
	LengthRSA2048   = 2048
	LengthRSA4096   = 4096
	LengthECFP224   = 224
	LengthECFP256   = 256
	LengthECFP384   = 384
	LengthECFP521   = 521
	LengthX25519    = 256
)

var rsaLengths = []int{512, 736, 768, 896, 1024, 1280, 1536, 1984, 2048, 3072, 4096}

// Key is implemented by every key variant.
type Key interface {
	// Type returns the key type.
	Type() KeyType

	// Size returns the key length in bits.
	Size() int

	// IsInitialized reports whether every component has a value.
	IsInitialized() bool

	// ClearKey erases the key value.
	ClearKey()
}

// SecretKey is a symmetric key.
type SecretKey interface {
	Key
	SetKey(data []byte) error
	Bytes() ([]byte, error)
}

// ModulusKey is an RSA key with a modulus.
type ModulusKey interface {
	Key
	SetModulus(n []byte) error
	Modulus() ([]byte, error)
}

// ExponentKey is an RSA key with a public or private exponent.
type ExponentKey interface {
	Key
	SetExponent(e []byte) error
	Exponent() ([]byte, error)
}

// CRTKey is an RSA private key in Chinese Remainder Theorem form.
type CRTKey interface {
	Key
	SetP(b []byte) error
	SetQ(b []byte) error
	SetDP1(b []byte) error
	SetDQ1(b []byte) error
	SetPQ(b []byte) error
}

// ECDomainKey is a key over a prime field curve.
type ECDomainKey interface {
	Key
	Curve() elliptic.Curve
}

// ECPointKey is an EC public key.
type ECPointKey interface {
	ECDomainKey
	SetW(point []byte) error
	W() ([]byte, error)
}

// ECScalarKey is an EC private key.
type ECScalarKey interface {
	ECDomainKey
	SetS(scalar []byte) error
	S() ([]byte, error)
}

// EncodedKey is a key with a fixed-size raw encoding.
type EncodedKey interface {
	Key
	SetEncoded(b []byte) error
	Encoded() ([]byte, error)
}

// SymmetricKey is a DES, AES or HMAC key. Transient keys keep their value
// in arena cells so the card's clear events uninitialize them.
type SymmetricKey struct {
	typ  KeyType
	size int

	data   []byte
	length int

	cell  *memory.ByteArray
	state *memory.ShortArray
}

// Type returns the key type.
func (k *SymmetricKey) Type() KeyType { return k.typ }

// Size returns the key length in bits.
func (k *SymmetricKey) Size() int { return k.size }

// IsDES reports whether k is a DES or triple DES key.
func (k *SymmetricKey) IsDES() bool {
	return k.typ == TypeDES || k.typ == TypeDESTransientReset || k.typ == TypeDESTransientDeselect
}

// IsAES reports whether k is an AES key.
func (k *SymmetricKey) IsAES() bool {
	return k.typ == TypeAES || k.typ == TypeAESTransientReset || k.typ == TypeAESTransientDeselect
}

// IsHMAC reports whether k is an HMAC key.
func (k *SymmetricKey) IsHMAC() bool {
	return k.typ == TypeHMAC || k.typ == TypeHMACTransientReset || k.typ == TypeHMACTransientDeselect
}

// IsTransient reports whether the key value lives in transient memory.
func (k *SymmetricKey) IsTransient() bool {
	return k.cell != nil
}

func (k *SymmetricKey) stored() int {
	if k.cell == nil {
		return k.length
	}
	n, err := k.state.Get(0)
	if err != nil {
		return 0
	}
	return int(n)
}

// IsInitialized reports whether the key has a value.
func (k *SymmetricKey) IsInitialized() bool {
	return k.stored() > 0
}

// ClearKey erases the key value.
func (k *SymmetricKey) ClearKey() {
	if k.cell == nil {
		clear(k.data)
		k.length = 0
		return
	}
	_ = k.cell.Fill(0, k.cell.Len(), 0)
	_ = k.state.Set(0, 0)
}

// SetKey sets the key value. DES and AES keys take the first Size/8
// bytes of data; HMAC keys take all of data, up to Size/8 bytes.
func (k *SymmetricKey) SetKey(data []byte) error {
	limit := k.size / 8
	n := limit
	if k.IsHMAC() {
		n = len(data)
		if n == 0 || n > limit {
			return ErrIllegalValue.WithMsg("HMAC key of %d bytes, limit %d", n, limit)
		}
	} else if len(data) < n {
		return ErrIllegalValue.WithMsg("key data of %d bytes, need %d", len(data), n)
	}
	if k.cell == nil {
		clear(k.data)
		copy(k.data, data[:n])
		k.length = n
		return nil
	}
	if err := k.cell.Write(0, data[:n]); err != nil {
		return err
	}
	return k.state.Set(0, int16(n))
}

// Bytes returns a copy of the key value.
func (k *SymmetricKey) Bytes() ([]byte, error) {
	n := k.stored()
	if n == 0 {
		return nil, ErrUninitializedKey
	}
	if k.cell == nil {
		return slices.Clone(k.data[:n]), nil
	}
	return k.cell.Read(0, n)
}

// RSAPublicKey is an RSA public key.
type RSAPublicKey struct {
	size int
	n    []byte
	e    []byte
}

// Type returns TypeRSAPublic.
func (k *RSAPublicKey) Type() KeyType { return TypeRSAPublic }

// Size returns the modulus length in bits.
func (k *RSAPublicKey) Size() int { return k.size }

// IsInitialized reports whether modulus and exponent are set.
func (k *RSAPublicKey) IsInitialized() bool { return k.n != nil && k.e != nil }

// ClearKey erases the key.
func (k *RSAPublicKey) ClearKey() { k.n, k.e = nil, nil }

// SetModulus sets the modulus.
func (k *RSAPublicKey) SetModulus(n []byte) error {
	b, err := component(n, k.size)
	if err != nil {
		return err
	}
	k.n = b
	return nil
}

// SetExponent sets the public exponent.
func (k *RSAPublicKey) SetExponent(e []byte) error {
	b, err := component(e, k.size)
	if err != nil {
		return err
	}
	k.e = b
	return nil
}

// Modulus returns the modulus.
func (k *RSAPublicKey) Modulus() ([]byte, error) { return get(k.n) }

// Exponent returns the public exponent.
func (k *RSAPublicKey) Exponent() ([]byte, error) { return get(k.e) }

// PublicKey converts the key for crypto/rsa.
func (k *RSAPublicKey) PublicKey() (*rsa.PublicKey, error) {
	if !k.IsInitialized() {
		return nil, ErrUninitializedKey
	}
	e := new(big.Int).SetBytes(k.e)
	if !e.IsInt64() || e.Int64() > 1<<31-1 || e.Int64() < 3 {
		return nil, ErrIllegalValue.WithMsg("unsupported public exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(k.n), E: int(e.Int64())}, nil
}

// RSAPrivateKey is an RSA private key given by modulus and private
// exponent.
type RSAPrivateKey struct {
	size int
	n    []byte
	d    []byte
}

// Type returns TypeRSAPrivate.
func (k *RSAPrivateKey) Type() KeyType { return TypeRSAPrivate }

// Size returns the modulus length in bits.
func (k *RSAPrivateKey) Size() int { return k.size }

// IsInitialized reports whether modulus and exponent are set.
func (k *RSAPrivateKey) IsInitialized() bool { return k.n != nil && k.d != nil }

// ClearKey erases the key.
func (k *RSAPrivateKey) ClearKey() { k.n, k.d = nil, nil }

// SetModulus sets the modulus.
func (k *RSAPrivateKey) SetModulus(n []byte) error {
	b, err := component(n, k.size)
	if err != nil {
		return err
	}
	k.n = b
	return nil
}

// SetExponent sets the private exponent.
func (k *RSAPrivateKey) SetExponent(d []byte) error {
	b, err := component(d, k.size)
	if err != nil {
		return err
	}
	k.d = b
	return nil
}

// Modulus returns the modulus.
func (k *RSAPrivateKey) Modulus() ([]byte, error) { return get(k.n) }

// Exponent returns the private exponent.
func (k *RSAPrivateKey) Exponent() ([]byte, error) { return get(k.d) }

// RSAPrivateCrtKey is an RSA private key in CRT form.
type RSAPrivateCrtKey struct {
	size int
	p    []byte
	q    []byte
	dp   []byte
	dq   []byte
	qinv []byte
}

// Type returns TypeRSACRTPrivate.
func (k *RSAPrivateCrtKey) Type() KeyType { return TypeRSACRTPrivate }

// Size returns the modulus length in bits.
func (k *RSAPrivateCrtKey) Size() int { return k.size }

// IsInitialized reports whether all five components are set.
func (k *RSAPrivateCrtKey) IsInitialized() bool {
	return k.p != nil && k.q != nil && k.dp != nil && k.dq != nil && k.qinv != nil
}

// ClearKey erases the key.
func (k *RSAPrivateCrtKey) ClearKey() {
	k.p, k.q, k.dp, k.dq, k.qinv = nil, nil, nil, nil, nil
}

func (k *RSAPrivateCrtKey) set(dst *[]byte, b []byte) error {
	v, err := component(b, k.size/2+8)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

// SetP sets the first prime.
func (k *RSAPrivateCrtKey) SetP(b []byte) error { return k.set(&k.p, b) }

// SetQ sets the second prime.
func (k *RSAPrivateCrtKey) SetQ(b []byte) error { return k.set(&k.q, b) }

// SetDP1 sets d mod (p-1).
func (k *RSAPrivateCrtKey) SetDP1(b []byte) error { return k.set(&k.dp, b) }

// SetDQ1 sets d mod (q-1).
func (k *RSAPrivateCrtKey) SetDQ1(b []byte) error { return k.set(&k.dq, b) }

// SetPQ sets q^-1 mod p.
func (k *RSAPrivateCrtKey) SetPQ(b []byte) error { return k.set(&k.qinv, b) }

// P returns the first prime.
func (k *RSAPrivateCrtKey) P() ([]byte, error) { return get(k.p) }

// Q returns the second prime.
func (k *RSAPrivateCrtKey) Q() ([]byte, error) { return get(k.q) }

// DP1 returns d mod (p-1).
func (k *RSAPrivateCrtKey) DP1() ([]byte, error) { return get(k.dp) }

// DQ1 returns d mod (q-1).
func (k *RSAPrivateCrtKey) DQ1() ([]byte, error) { return get(k.dq) }

// PQ returns q^-1 mod p.
func (k *RSAPrivateCrtKey) PQ() ([]byte, error) { return get(k.qinv) }

// PrivateKey converts the key for crypto/rsa. The public exponent is
// recovered from DP1, which holds for exponents below p-1.
func (k *RSAPrivateCrtKey) PrivateKey() (*rsa.PrivateKey, error) {
	if !k.IsInitialized() {
		return nil, ErrUninitializedKey
	}
	one := big.NewInt(1)
	p := new(big.Int).SetBytes(k.p)
	q := new(big.Int).SetBytes(k.q)
	dp := new(big.Int).SetBytes(k.dp)
	dq := new(big.Int).SetBytes(k.dq)
	p1 := new(big.Int).Sub(p, one)
	q1 := new(big.Int).Sub(q, one)

	e := new(big.Int).ModInverse(dp, p1)
	if e == nil || !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, ErrIllegalValue.WithMsg("inconsistent CRT components")
	}
	if new(big.Int).Mod(new(big.Int).Mul(e, dq), q1).Cmp(one) != 0 {
		return nil, ErrIllegalValue.WithMsg("inconsistent CRT components")
	}
	phi := new(big.Int).Mul(p1, q1)
	d := new(big.Int).ModInverse(e, phi)
	if d == nil {
		return nil, ErrIllegalValue.WithMsg("inconsistent CRT components")
	}
	priv := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: new(big.Int).Mul(p, q), E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	if err := priv.Validate(); err != nil {
		return nil, ErrIllegalValue.WithMsg("%v", err)
	}
	priv.Precompute()
	return priv, nil
}

// ECPublicKey is an EC public key over a NIST prime curve.
type ECPublicKey struct {
	size  int
	curve elliptic.Curve
	w     []byte
}

// Type returns TypeECFPPublic.
func (k *ECPublicKey) Type() KeyType { return TypeECFPPublic }

// Size returns the field length in bits.
func (k *ECPublicKey) Size() int { return k.size }

// Curve returns the domain curve.
func (k *ECPublicKey) Curve() elliptic.Curve { return k.curve }

// IsInitialized reports whether the point is set.
func (k *ECPublicKey) IsInitialized() bool { return k.w != nil }

// ClearKey erases the point.
func (k *ECPublicKey) ClearKey() { k.w = nil }

// SetW sets the public point in uncompressed form.
func (k *ECPublicKey) SetW(point []byte) error {
	if _, err := ecdsa.ParseUncompressedPublicKey(k.curve, point); err != nil {
		return ErrIllegalValue.WithMsg("invalid point: %v", err)
	}
	k.w = slices.Clone(point)
	return nil
}

// W returns the public point in uncompressed form.
func (k *ECPublicKey) W() ([]byte, error) { return get(k.w) }

// PublicKey converts the key for crypto/ecdsa.
func (k *ECPublicKey) PublicKey() (*ecdsa.PublicKey, error) {
	if k.w == nil {
		return nil, ErrUninitializedKey
	}
	pub, err := ecdsa.ParseUncompressedPublicKey(k.curve, k.w)
	if err != nil {
		return nil, ErrIllegalValue.WithMsg("%v", err)
	}
	return pub, nil
}

// ECPrivateKey is an EC private key over a NIST prime curve.
type ECPrivateKey struct {
	size  int
	curve elliptic.Curve
	s     []byte
}

// Type returns TypeECFPPrivate.
func (k *ECPrivateKey) Type() KeyType { return TypeECFPPrivate }

// Size returns the field length in bits.
func (k *ECPrivateKey) Size() int { return k.size }

// Curve returns the domain curve.
func (k *ECPrivateKey) Curve() elliptic.Curve { return k.curve }

// IsInitialized reports whether the scalar is set.
func (k *ECPrivateKey) IsInitialized() bool { return k.s != nil }

// ClearKey erases the scalar.
func (k *ECPrivateKey) ClearKey() { k.s = nil }

// SetS sets the private scalar. Shorter values are left padded.
func (k *ECPrivateKey) SetS(scalar []byte) error {
	size := (k.curve.Params().BitSize + 7) / 8
	if len(scalar) > size {
		return ErrIllegalValue.WithMsg("scalar of %d bytes, curve takes %d", len(scalar), size)
	}
	padded := make([]byte, size)
	copy(padded[size-len(scalar):], scalar)
	if _, err := ecdsa.ParseRawPrivateKey(k.curve, padded); err != nil {
		return ErrIllegalValue.WithMsg("invalid scalar: %v", err)
	}
	k.s = padded
	return nil
}

// S returns the private scalar.
func (k *ECPrivateKey) S() ([]byte, error) { return get(k.s) }

// PrivateKey converts the key for crypto/ecdsa.
func (k *ECPrivateKey) PrivateKey() (*ecdsa.PrivateKey, error) {
	if k.s == nil {
		return nil, ErrUninitializedKey
	}
	priv, err := ecdsa.ParseRawPrivateKey(k.curve, k.s)
	if err != nil {
		return nil, ErrIllegalValue.WithMsg("%v", err)
	}
	return priv, nil
}

// XECKey is an X25519 public or private key in its 32 byte encoding.
type XECKey struct {
	typ  KeyType
	data []byte
}

// Type returns the key type.
func (k *XECKey) Type() KeyType { return k.typ }

// Size returns LengthX25519.
func (k *XECKey) Size() int { return LengthX25519 }

// IsInitialized reports whether the key is set.
func (k *XECKey) IsInitialized() bool { return k.data != nil }

// ClearKey erases the key.
func (k *XECKey) ClearKey() { k.data = nil }

// SetEncoded sets the 32 byte key.
func (k *XECKey) SetEncoded(b []byte) error {
	if len(b) != 32 {
		return ErrIllegalValue.WithMsg("X25519 key of %d bytes", len(b))
	}
	k.data = slices.Clone(b)
	return nil
}

// Encoded returns the 32 byte key.
func (k *XECKey) Encoded() ([]byte, error) { return get(k.data) }

func component(b []byte, bits int) ([]byte, error) {
	if len(b) == 0 || len(b) > (bits+7)/8 {
		return nil, ErrIllegalValue.WithMsg("component of %d bytes for %d bit key", len(b), bits)
	}
	return slices.Clone(b), nil
}

func get(b []byte) ([]byte, error) {
	if b == nil {
		return nil, ErrUninitializedKey
	}
	return slices.Clone(b), nil
}

func curveFor(bits int) (elliptic.Curve, error) {
	switch bits {
	case LengthECFP224:
		return elliptic.P224(), nil
	case LengthECFP256:
		return elliptic.P256(), nil
	case LengthECFP384:
		return elliptic.P384(), nil
	case LengthECFP521:
		return elliptic.P521(), nil
	}
	return nil, ErrNoSuchAlgorithm.WithMsg("no curve of %d bits", bits)
}
