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
	"crypto/rsa"
	"math/big"
)

// DigestInfo prefixes for EMSA-PKCS1-v1_5, RFC 8017 section 9.2.
var digestInfoPrefix = map[crypto.Hash][]byte{
	crypto.MD5:       {0x30, 0x20, 0x30, 0x0c, 0x06, 0x08, 0x2a, 0x86, 0x48, 0x86, 0xf7, 0x0d, 0x02, 0x05, 0x05, 0x00, 0x04, 0x10},
	crypto.SHA1:      {0x30, 0x21, 0x30, 0x09, 0x06, 0x05, 0x2b, 0x0e, 0x03, 0x02, 0x1a, 0x05, 0x00, 0x04, 0x14},
	crypto.SHA224:    {0x30, 0x2d, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x04, 0x05, 0x00, 0x04, 0x1c},
	crypto.SHA256:    {0x30, 0x31, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x01, 0x05, 0x00, 0x04, 0x20},
	crypto.SHA384:    {0x30, 0x41, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x02, 0x05, 0x00, 0x04, 0x30},
	crypto.SHA512:    {0x30, 0x51, 0x30, 0x0d, 0x06, 0x09, 0x60, 0x86, 0x48, 0x01, 0x65, 0x03, 0x04, 0x02, 0x03, 0x05, 0x00, 0x04, 0x40},
	crypto.RIPEMD160: {0x30, 0x20, 0x30, 0x08, 0x06, 0x06, 0x28, 0xcf, 0x06, 0x03, 0x00, 0x31, 0x04, 0x14},
}

// RSAModulusLength returns the modulus length of an RSA key in bytes.
func RSAModulusLength(k Key) (int, error) {
	n, _, err := rsaParams(k)
	if err != nil {
		return 0, err
	}
	return (n.BitLen() + 7) / 8, nil
}

// RSARaw applies the bare RSA primitive with the key's exponent. The
// input must be exactly the modulus length and numerically below it.
func RSARaw(k Key, in []byte) ([]byte, error) {
	n, exp, err := rsaParams(k)
	if err != nil {
		return nil, err
	}
	size := (n.BitLen() + 7) / 8
	if len(in) != size {
		return nil, ErrIllegalUse.WithMsg("input of %d bytes, modulus is %d", len(in), size)
	}
	m := new(big.Int).SetBytes(in)
	if m.Cmp(n) >= 0 {
		return nil, ErrIllegalUse.WithMsg("input not below modulus")
	}
	return m.Exp(m, exp, n).FillBytes(make([]byte, size)), nil
}

// RSAPrivate returns the crypto/rsa form of a CRT private key. Plain
// modulus/exponent keys carry no primes and cannot be converted.
func RSAPrivate(k Key) (*rsa.PrivateKey, error) {
	crt, ok := k.(*RSAPrivateCrtKey)
	if !ok {
		return nil, ErrIllegalValue.WithMsg("operation needs an RSA CRT private key")
	}
	return crt.PrivateKey()
}

// RSAPublic returns the crypto/rsa form of a public key.
func RSAPublic(k Key) (*rsa.PublicKey, error) {
	pub, ok := k.(*RSAPublicKey)
	if !ok {
		return nil, ErrIllegalValue.WithMsg("operation needs an RSA public key")
	}
	return pub.PublicKey()
}

// IsRSA reports whether k is any RSA key.
func IsRSA(k Key) bool {
	switch k.(type) {
	case *RSAPublicKey, *RSAPrivateKey, *RSAPrivateCrtKey:
		return true
	}
	return false
}

func rsaParams(k Key) (n, exp *big.Int, err error) {
	if !k.IsInitialized() {
		return nil, nil, ErrUninitializedKey
	}
	switch k := k.(type) {
	case *RSAPublicKey:
		return new(big.Int).SetBytes(k.n), new(big.Int).SetBytes(k.e), nil
	case *RSAPrivateKey:
		return new(big.Int).SetBytes(k.n), new(big.Int).SetBytes(k.d), nil
	case *RSAPrivateCrtKey:
		priv, err := k.PrivateKey()
		if err != nil {
			return nil, nil, err
		}
		return priv.N, priv.D, nil
	}
	return nil, nil, ErrIllegalValue.WithMsg("not an RSA key")
}

// signPKCS1Raw produces an EMSA-PKCS1-v1_5 signature with a plain
// modulus/exponent key.
func signPKCS1Raw(k *RSAPrivateKey, h crypto.Hash, digest []byte) ([]byte, error) {
	prefix, ok := digestInfoPrefix[h]
	if !ok {
		return nil, ErrNoSuchAlgorithm.WithMsg("no DigestInfo for %v", h)
	}
	size, err := RSAModulusLength(k)
	if err != nil {
		return nil, err
	}
	tLen := len(prefix) + len(digest)
	if size < tLen+11 {
		return nil, ErrIllegalUse.WithMsg("modulus too short for digest")
	}
	em := make([]byte, size)
	em[1] = 0x01
	for i := 2; i < size-tLen-1; i++ {
		em[i] = 0xff
	}
	copy(em[size-tLen:], prefix)
	copy(em[size-len(digest):], digest)
	return RSARaw(k, em)
}

// DecryptPKCS1Raw removes EME-PKCS1-v1_5 padding after a raw private key
// operation.
func DecryptPKCS1Raw(k Key, ct []byte) ([]byte, error) {
	em, err := RSARaw(k, ct)
	if err != nil {
		return nil, err
	}
	if len(em) < 11 || em[0] != 0x00 || em[1] != 0x02 {
		return nil, ErrIllegalUse.WithMsg("invalid PKCS#1 padding")
	}
	for i := 2; i < len(em); i++ {
		if em[i] == 0x00 {
			if i < 10 {
				break
			}
			return em[i+1:], nil
		}
	}
	return nil, ErrIllegalUse.WithMsg("invalid PKCS#1 padding")
}
