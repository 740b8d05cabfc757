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
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"hash"

	"github.com/jacobsa/crypto/cmac"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// SignatureAlgorithm identifies a signature or MAC algorithm. Values
// follow the card's Signature constants.
type SignatureAlgorithm uint8

const (
	SigDESMAC4NoPad         SignatureAlgorithm = 1
	SigDESMAC8NoPad         SignatureAlgorithm = 2
	SigDESMAC4ISO9797M1     SignatureAlgorithm = 3
	SigDESMAC8ISO9797M1     SignatureAlgorithm = 4
	SigDESMAC4ISO9797M2     SignatureAlgorithm = 5
	SigDESMAC8ISO9797M2     SignatureAlgorithm = 6
	SigDESMAC4PKCS5         SignatureAlgorithm = 7
	SigDESMAC8PKCS5         SignatureAlgorithm = 8
	SigRSASHA1PKCS1         SignatureAlgorithm = 10
	SigRSAMD5PKCS1          SignatureAlgorithm = 11
	SigRSARIPEMD160PKCS1    SignatureAlgorithm = 13
	SigECDSASHA1            SignatureAlgorithm = 17
	SigAESMAC128NoPad       SignatureAlgorithm = 18
	SigDESMAC4ISO9797M2Alg3 SignatureAlgorithm = 19
	SigDESMAC8ISO9797M2Alg3 SignatureAlgorithm = 20
	SigRSASHA1PKCS1PSS      SignatureAlgorithm = 21
	SigRSAMD5PKCS1PSS       SignatureAlgorithm = 22
	SigRSARIPEMD160PKCS1PSS SignatureAlgorithm = 23
	SigHMACSHA1             SignatureAlgorithm = 24
	SigHMACSHA256           SignatureAlgorithm = 25
	SigHMACSHA384           SignatureAlgorithm = 26
	SigHMACSHA512           SignatureAlgorithm = 27
	SigHMACMD5              SignatureAlgorithm = 28
	SigHMACRIPEMD160        SignatureAlgorithm = 29
	SigECDSASHA256          SignatureAlgorithm = 33
	SigECDSASHA384          SignatureAlgorithm = 34
	SigAESMAC192NoPad       SignatureAlgorithm = 35
	SigAESMAC256NoPad       SignatureAlgorithm = 36
	SigECDSASHA224          SignatureAlgorithm = 37
	SigECDSASHA512          SignatureAlgorithm = 38
	SigRSASHA224PKCS1       SignatureAlgorithm = 39
	SigRSASHA256PKCS1       SignatureAlgorithm = 40
	SigRSASHA384PKCS1       SignatureAlgorithm = 41
	SigRSASHA512PKCS1       SignatureAlgorithm = 42
	SigRSASHA224PKCS1PSS    SignatureAlgorithm = 43
	SigRSASHA256PKCS1PSS    SignatureAlgorithm = 44
	SigAESCMAC128           SignatureAlgorithm = 49
)

type sigFamily uint8

const (
	familyDESMAC sigFamily = iota
	familyAESMAC
	familyCMAC
	familyHMAC
	familyRSAPKCS1
	familyRSAPSS
	familyECDSA
)

type sigSpec struct {
	name    string
	family  sigFamily
	digest  DigestAlgorithm
	pad     Padding
	macLen  int
	alg3    bool
	keyBits int
}

var signatures = map[SignatureAlgorithm]sigSpec{
	SigDESMAC4NoPad:         {name: "des_mac4_nopad", family: familyDESMAC, pad: PadNone, macLen: 4},
	SigDESMAC8NoPad:         {name: "des_mac8_nopad", family: familyDESMAC, pad: PadNone, macLen: 8},
	SigDESMAC4ISO9797M1:     {name: "des_mac4_iso9797_m1", family: familyDESMAC, pad: PadISO9797M1, macLen: 4},
	SigDESMAC8ISO9797M1:     {name: "des_mac8_iso9797_m1", family: familyDESMAC, pad: PadISO9797M1, macLen: 8},
	SigDESMAC4ISO9797M2:     {name: "des_mac4_iso9797_m2", family: familyDESMAC, pad: PadISO9797M2, macLen: 4},
	SigDESMAC8ISO9797M2:     {name: "des_mac8_iso9797_m2", family: familyDESMAC, pad: PadISO9797M2, macLen: 8},
	SigDESMAC4PKCS5:         {name: "des_mac4_pkcs5", family: familyDESMAC, pad: PadPKCS5, macLen: 4},
	SigDESMAC8PKCS5:         {name: "des_mac8_pkcs5", family: familyDESMAC, pad: PadPKCS5, macLen: 8},
	SigDESMAC4ISO9797M2Alg3: {name: "des_mac4_iso9797_1_m2_alg3", family: familyDESMAC, pad: PadISO9797M2, macLen: 4, alg3: true},
	SigDESMAC8ISO9797M2Alg3: {name: "des_mac8_iso9797_1_m2_alg3", family: familyDESMAC, pad: PadISO9797M2, macLen: 8, alg3: true},
	SigAESMAC128NoPad:       {name: "aes_mac128_nopad", family: familyAESMAC, pad: PadNone, macLen: 16, keyBits: 128},
	SigAESMAC192NoPad:       {name: "aes_mac192_nopad", family: familyAESMAC, pad: PadNone, macLen: 16, keyBits: 192},
	SigAESMAC256NoPad:       {name: "aes_mac256_nopad", family: familyAESMAC, pad: PadNone, macLen: 16, keyBits: 256},
	SigAESCMAC128:           {name: "aes_cmac128", family: familyCMAC, macLen: 16, keyBits: 128},
	SigHMACSHA1:             {name: "hmac_sha1", family: familyHMAC, digest: DigestSHA1},
	SigHMACSHA256:           {name: "hmac_sha256", family: familyHMAC, digest: DigestSHA256},
	SigHMACSHA384:           {name: "hmac_sha384", family: familyHMAC, digest: DigestSHA384},
	SigHMACSHA512:           {name: "hmac_sha512", family: familyHMAC, digest: DigestSHA512},
	SigHMACMD5:              {name: "hmac_md5", family: familyHMAC, digest: DigestMD5},
	SigHMACRIPEMD160:        {name: "hmac_ripemd160", family: familyHMAC, digest: DigestRIPEMD160},
	SigRSASHA1PKCS1:         {name: "rsa_sha1_pkcs1", family: familyRSAPKCS1, digest: DigestSHA1},
	SigRSAMD5PKCS1:          {name: "rsa_md5_pkcs1", family: familyRSAPKCS1, digest: DigestMD5},
	SigRSARIPEMD160PKCS1:    {name: "rsa_ripemd160_pkcs1", family: familyRSAPKCS1, digest: DigestRIPEMD160},
	SigRSASHA224PKCS1:       {name: "rsa_sha224_pkcs1", family: familyRSAPKCS1, digest: DigestSHA224},
	SigRSASHA256PKCS1:       {name: "rsa_sha256_pkcs1", family: familyRSAPKCS1, digest: DigestSHA256},
	SigRSASHA384PKCS1:       {name: "rsa_sha384_pkcs1", family: familyRSAPKCS1, digest: DigestSHA384},
	SigRSASHA512PKCS1:       {name: "rsa_sha512_pkcs1", family: familyRSAPKCS1, digest: DigestSHA512},
	SigRSASHA1PKCS1PSS:      {name: "rsa_sha1_pkcs1_pss", family: familyRSAPSS, digest: DigestSHA1},
	SigRSAMD5PKCS1PSS:       {name: "rsa_md5_pkcs1_pss", family: familyRSAPSS, digest: DigestMD5},
	SigRSARIPEMD160PKCS1PSS: {name: "rsa_ripemd160_pkcs1_pss", family: familyRSAPSS, digest: DigestRIPEMD160},
	SigRSASHA224PKCS1PSS:    {name: "rsa_sha224_pkcs1_pss", family: familyRSAPSS, digest: DigestSHA224},
	SigRSASHA256PKCS1PSS:    {name: "rsa_sha256_pkcs1_pss", family: familyRSAPSS, digest: DigestSHA256},
	SigECDSASHA1:            {name: "ecdsa_sha1", family: familyECDSA, digest: DigestSHA1},
	SigECDSASHA224:          {name: "ecdsa_sha224", family: familyECDSA, digest: DigestSHA224},
	SigECDSASHA256:          {name: "ecdsa_sha256", family: familyECDSA, digest: DigestSHA256},
	SigECDSASHA384:          {name: "ecdsa_sha384", family: familyECDSA, digest: DigestSHA384},
	SigECDSASHA512:          {name: "ecdsa_sha512", family: familyECDSA, digest: DigestSHA512},
}

// String returns the algorithm name.
func (a SignatureAlgorithm) String() string {
	if s, ok := signatures[a]; ok {
		return s.name
	}
	return "unknown"
}

// Signature computes and checks signatures and MACs. Data may be fed in
// pieces with Update; Sign and Verify finish the operation and return the
// object to the state it had right after Init.
type Signature struct {
	alg  SignatureAlgorithm
	spec sigSpec
	mode Mode
	key  Key
	iv   []byte

	buf []byte
	h   hash.Hash
}

// NewSignature creates an uninitialized signature object for alg.
func NewSignature(alg SignatureAlgorithm) (*Signature, error) {
	s, ok := signatures[alg]
	if !ok {
		return nil, ErrNoSuchAlgorithm.WithMsg("signature %d", alg)
	}
	return &Signature{alg: alg, spec: s}, nil
}

// Algorithm returns the signature algorithm.
func (s *Signature) Algorithm() SignatureAlgorithm {
	return s.alg
}

// Init prepares the object for signing or verifying with key.
func (s *Signature) Init(key Key, mode Mode) error {
	return s.InitWithIV(key, mode, nil)
}

// InitWithIV is Init with an initial chaining vector for the block
// cipher MACs.
func (s *Signature) InitWithIV(key Key, mode Mode, iv []byte) error {
	if mode != ModeSign && mode != ModeVerify {
		return ErrIllegalValue.WithMsg("signature mode %d", mode)
	}
	if key == nil {
		return ErrIllegalValue.WithMsg("nil key")
	}
	if err := s.checkKey(key, mode); err != nil {
		return err
	}
	if !key.IsInitialized() {
		return ErrUninitializedKey
	}
	if iv != nil {
		bs := 0
		switch s.spec.family {
		case familyDESMAC:
			bs = 8
		case familyAESMAC:
			bs = 16
		}
		if bs == 0 || len(iv) != bs {
			return ErrIllegalValue.WithMsg("IV of %d bytes for %s", len(iv), s.spec.name)
		}
		iv = append([]byte(nil), iv...)
	}
	s.key, s.mode, s.iv = key, mode, iv
	return s.reset()
}

func (s *Signature) checkKey(key Key, mode Mode) error {
	sk, _ := key.(*SymmetricKey)
	ok := false
	switch s.spec.family {
	case familyDESMAC:
		ok = sk != nil && sk.IsDES() && (!s.spec.alg3 || sk.Size() == LengthDES3_2Key)
	case familyAESMAC, familyCMAC:
		ok = sk != nil && sk.IsAES() && sk.Size() == s.spec.keyBits
	case familyHMAC:
		ok = sk != nil && sk.IsHMAC()
	case familyRSAPKCS1:
		if mode == ModeSign {
			_, crt := key.(*RSAPrivateCrtKey)
			_, plain := key.(*RSAPrivateKey)
			ok = crt || plain
		} else {
			_, ok = key.(*RSAPublicKey)
		}
	case familyRSAPSS:
		if mode == ModeSign {
			_, ok = key.(*RSAPrivateCrtKey)
		} else {
			_, ok = key.(*RSAPublicKey)
		}
	case familyECDSA:
		if mode == ModeSign {
			_, ok = key.(*ECPrivateKey)
		} else {
			_, ok = key.(*ECPublicKey)
		}
	}
	if !ok {
		return ErrIllegalValue.WithMsg("key type %d does not fit %s in mode %d", key.Type(), s.spec.name, mode)
	}
	return nil
}

func (s *Signature) reset() error {
	s.buf = s.buf[:0]
	switch s.spec.family {
	case familyRSAPKCS1, familyRSAPSS, familyECDSA:
		s.h = digests[s.spec.digest].new()
	case familyHMAC:
		raw, err := s.key.(*SymmetricKey).Bytes()
		if err != nil {
			return err
		}
		s.h = hmac.New(digests[s.spec.digest].new, raw)
	case familyCMAC:
		raw, err := s.key.(*SymmetricKey).Bytes()
		if err != nil {
			return err
		}
		h, err := cmac.New(raw)
		if err != nil {
			return ErrIllegalValue.WithMsg("%v", err)
		}
		s.h = h
	default:
		s.h = nil
	}
	return nil
}

// Length returns the signature length in bytes. For ECDSA it is the
// upper bound of the DER encoding.
func (s *Signature) Length() (int, error) {
	switch s.spec.family {
	case familyDESMAC, familyAESMAC, familyCMAC:
		return s.spec.macLen, nil
	case familyHMAC:
		return digests[s.spec.digest].new().Size(), nil
	}
	if s.key == nil {
		return 0, ErrInvalidInit
	}
	if s.spec.family == familyECDSA {
		size := (s.key.Size() + 7) / 8
		return 2*size + 9, nil
	}
	return RSAModulusLength(s.key)
}

// Update accumulates data.
func (s *Signature) Update(data []byte) error {
	if s.key == nil {
		return ErrInvalidInit
	}
	if s.h != nil {
		s.h.Write(data)
		return nil
	}
	s.buf = append(s.buf, data...)
	return nil
}

// Sign finishes the operation over data and returns the signature.
func (s *Signature) Sign(data []byte) ([]byte, error) {
	if s.key == nil || s.mode != ModeSign {
		return nil, ErrInvalidInit
	}
	out, err := s.final(data)
	if err == nil && (s.spec.family == familyRSAPKCS1 || s.spec.family == familyRSAPSS || s.spec.family == familyECDSA) {
		out, err = s.signDigest(out)
	}
	Record(metrics.OpSign, s.spec.name, err)
	if rerr := s.reset(); err == nil {
		err = rerr
	}
	return out, err
}

// Verify finishes the operation over data and reports whether sig is
// valid.
func (s *Signature) Verify(data, sig []byte) (bool, error) {
	if s.key == nil || s.mode != ModeVerify {
		return false, ErrInvalidInit
	}
	ok, err := s.verify(data, sig)
	Record(metrics.OpVerify, s.spec.name, err)
	if rerr := s.reset(); err == nil {
		err = rerr
	}
	return ok, err
}

func (s *Signature) verify(data, sig []byte) (bool, error) {
	sum, err := s.final(data)
	if err != nil {
		return false, err
	}
	h := digests[s.spec.digest].hash
	switch s.spec.family {
	case familyRSAPKCS1:
		pub, err := RSAPublic(s.key)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(pub, h, sum, sig) == nil, nil
	case familyRSAPSS:
		pub, err := RSAPublic(s.key)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPSS(pub, h, sum, sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}) == nil, nil
	case familyECDSA:
		pub, err := s.key.(*ECPublicKey).PublicKey()
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(pub, sum, sig), nil
	}
	return subtle.ConstantTimeCompare(sum, sig) == 1, nil
}

// final completes the MAC, or the message digest for the public key
// algorithms.
func (s *Signature) final(data []byte) ([]byte, error) {
	if !s.key.IsInitialized() {
		return nil, ErrUninitializedKey
	}
	if s.h != nil {
		s.h.Write(data)
		return s.h.Sum(nil), nil
	}
	msg := append(s.buf, data...)
	bs := 8
	if s.spec.family == familyAESMAC {
		bs = 16
	}
	padded, err := Pad(s.spec.pad, msg, bs)
	if err != nil {
		return nil, err
	}
	var mac []byte
	if s.spec.alg3 {
		raw, err := s.key.(*SymmetricKey).Bytes()
		if err != nil {
			return nil, err
		}
		if mac, err = retailMAC(raw, s.iv, padded); err != nil {
			return nil, err
		}
	} else {
		block, err := NewBlock(s.key)
		if err != nil {
			return nil, err
		}
		mac = cbcMAC(block, s.iv, padded)
	}
	return mac[:s.spec.macLen], nil
}

func (s *Signature) signDigest(sum []byte) ([]byte, error) {
	h := digests[s.spec.digest].hash
	switch k := s.key.(type) {
	case *RSAPrivateKey:
		return signPKCS1Raw(k, h, sum)
	case *RSAPrivateCrtKey:
		priv, err := k.PrivateKey()
		if err != nil {
			return nil, err
		}
		if s.spec.family == familyRSAPSS {
			return rsa.SignPSS(rand.Reader, priv, h, sum, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
		}
		return rsa.SignPKCS1v15(nil, priv, h, sum)
	case *ECPrivateKey:
		priv, err := k.PrivateKey()
		if err != nil {
			return nil, err
		}
		return ecdsa.SignASN1(rand.Reader, priv, sum)
	}
	return nil, ErrIllegalValue.WithMsg("key type %d cannot sign", s.key.Type())
}
