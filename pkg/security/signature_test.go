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
	"crypto/cipher"
	"crypto/des"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func newSignature(t *testing.T, alg SignatureAlgorithm, key Key, mode Mode) *Signature {
	t.Helper()
	s, err := NewSignature(alg)
	require.NoError(t, err)
	require.NoError(t, s.Init(key, mode))
	return s
}

func TestHMACSHA256KnownAnswer(t *testing.T) {
	key := buildSymmetric(t, TypeHMAC, 512, []byte("Jefe"))
	s := newSignature(t, SigHMACSHA256, key, ModeSign)

	require.NoError(t, s.Update([]byte("what do ya want ")))
	mac, err := s.Sign([]byte("for nothing?"))
	require.NoError(t, err)
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843", hex.EncodeToString(mac))

	// the object is ready for another message after Sign
	again, err := s.Sign([]byte("what do ya want for nothing?"))
	require.NoError(t, err)
	assert.Equal(t, mac, again)

	v := newSignature(t, SigHMACSHA256, key, ModeVerify)
	ok, err := v.Verify([]byte("what do ya want for nothing?"), mac)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAESCMACKnownAnswer(t *testing.T) {
	key := buildSymmetric(t, TypeAES, LengthAES128, unhex(t, "2b7e151628aed2a6abf7158809cf4f3c"))
	s := newSignature(t, SigAESCMAC128, key, ModeSign)

	mac, err := s.Sign(nil)
	require.NoError(t, err)
	assert.Equal(t, "bb1d6929e95937287fa37d129b756746", hex.EncodeToString(mac))

	mac, err = s.Sign(unhex(t, "6bc1bee22e409f96e93d7e117393172a"))
	require.NoError(t, err)
	assert.Equal(t, "070a16b46b4d4144f79bdd9dd04a287c", hex.EncodeToString(mac))
}

func TestDESMACMatchesCBC(t *testing.T) {
	raw := unhex(t, "0123456789abcdeffedcba9876543210")
	key := buildSymmetric(t, TypeDES, LengthDES3_2Key, raw)
	data := []byte("sixteen byte msg")

	s := newSignature(t, SigDESMAC8NoPad, key, ModeSign)
	mac, err := s.Sign(data)
	require.NoError(t, err)

	block, err := des.NewTripleDESCipher(append(append([]byte{}, raw...), raw[:8]...))
	require.NoError(t, err)
	ct := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, make([]byte, 8)).CryptBlocks(ct, data)
	assert.Equal(t, ct[len(ct)-8:], mac)

	s4 := newSignature(t, SigDESMAC4NoPad, key, ModeSign)
	mac4, err := s4.Sign(data)
	require.NoError(t, err)
	assert.Equal(t, mac[:4], mac4)
}

func TestDESMACNoPadRejectsUnaligned(t *testing.T) {
	key := buildSymmetric(t, TypeDES, LengthDES, unhex(t, "0123456789abcdef"))
	s := newSignature(t, SigDESMAC8NoPad, key, ModeSign)
	_, err := s.Sign([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrIllegalUse)
}

func TestRetailMAC(t *testing.T) {
	raw := unhex(t, "0123456789abcdeffedcba9876543210")
	key := buildSymmetric(t, TypeDES, LengthDES3_2Key, raw)
	data := []byte("retail")

	s := newSignature(t, SigDESMAC8ISO9797M2Alg3, key, ModeSign)
	mac, err := s.Sign(data)
	require.NoError(t, err)

	padded, err := Pad(PadISO9797M2, data, 8)
	require.NoError(t, err)
	k1, err := des.NewCipher(raw[:8])
	require.NoError(t, err)
	k2, err := des.NewCipher(raw[8:])
	require.NoError(t, err)
	want := make([]byte, 8)
	k1.Encrypt(want, padded)
	k2.Decrypt(want, want)
	k1.Encrypt(want, want)
	assert.Equal(t, want, mac)

	single := buildSymmetric(t, TypeDES, LengthDES, raw[:8])
	s, err = NewSignature(SigDESMAC8ISO9797M2Alg3)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Init(single, ModeSign), ErrIllegalValue)
}

func TestMACWithIV(t *testing.T) {
	key := buildSymmetric(t, TypeAES, LengthAES128, make([]byte, 16))
	s, err := NewSignature(SigAESMAC128NoPad)
	require.NoError(t, err)
	assert.ErrorIs(t, s.InitWithIV(key, ModeSign, make([]byte, 8)), ErrIllegalValue)

	require.NoError(t, s.InitWithIV(key, ModeSign, make([]byte, 16)))
	a, err := s.Sign(make([]byte, 16))
	require.NoError(t, err)

	iv := make([]byte, 16)
	iv[0] = 1
	require.NoError(t, s.InitWithIV(key, ModeSign, iv))
	b, err := s.Sign(make([]byte, 16))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRSAPKCS1SignVerify(t *testing.T) {
	for _, alg := range []KeyPairAlgorithm{KeyPairRSA, KeyPairRSACRT} {
		t.Run(alg.String(), func(t *testing.T) {
			kp, err := NewKeyPair(alg, LengthRSA1024)
			require.NoError(t, err)
			require.NoError(t, kp.GenKeyPair())

			s := newSignature(t, SigRSASHA256PKCS1, kp.Private(), ModeSign)
			n, err := s.Length()
			require.NoError(t, err)
			assert.Equal(t, 128, n)

			sig, err := s.Sign([]byte("message"))
			require.NoError(t, err)
			assert.Len(t, sig, 128)

			v := newSignature(t, SigRSASHA256PKCS1, kp.Public(), ModeVerify)
			ok, err := v.Verify([]byte("message"), sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = v.Verify([]byte("tampered"), sig)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRSAPSS(t *testing.T) {
	kp, err := NewKeyPair(KeyPairRSACRT, LengthRSA1024)
	require.NoError(t, err)
	require.NoError(t, kp.GenKeyPair())

	sig, err := newSignature(t, SigRSASHA256PKCS1PSS, kp.Private(), ModeSign).Sign([]byte("pss"))
	require.NoError(t, err)
	ok, err := newSignature(t, SigRSASHA256PKCS1PSS, kp.Public(), ModeVerify).Verify([]byte("pss"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	plain, err := NewKeyPair(KeyPairRSA, LengthRSA1024)
	require.NoError(t, err)
	require.NoError(t, plain.GenKeyPair())
	s, err := NewSignature(SigRSASHA256PKCS1PSS)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Init(plain.Private(), ModeSign), ErrIllegalValue)
}

func TestECDSASignVerify(t *testing.T) {
	kp, err := NewKeyPair(KeyPairECFP, LengthECFP256)
	require.NoError(t, err)
	require.NoError(t, kp.GenKeyPair())

	s := newSignature(t, SigECDSASHA256, kp.Private(), ModeSign)
	require.NoError(t, s.Update([]byte("hello ")))
	sig, err := s.Sign([]byte("card"))
	require.NoError(t, err)
	assert.Equal(t, byte(0x30), sig[0])
	n, err := s.Length()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(sig), n)

	v := newSignature(t, SigECDSASHA256, kp.Public(), ModeVerify)
	ok, err := v.Verify([]byte("hello card"), sig)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSignatureStateErrors(t *testing.T) {
	key := buildSymmetric(t, TypeHMAC, 256, []byte("k"))

	s, err := NewSignature(SigHMACSHA1)
	require.NoError(t, err)
	_, err = s.Sign(nil)
	assert.ErrorIs(t, err, ErrInvalidInit)
	assert.ErrorIs(t, s.Update([]byte{1}), ErrInvalidInit)

	require.NoError(t, s.Init(key, ModeSign))
	_, err = s.Verify(nil, nil)
	assert.ErrorIs(t, err, ErrInvalidInit)

	assert.ErrorIs(t, s.Init(key, Mode(7)), ErrIllegalValue)

	aes := buildSymmetric(t, TypeAES, LengthAES128, nil)
	assert.ErrorIs(t, s.Init(aes, ModeSign), ErrIllegalValue)

	uninit := buildSymmetric(t, TypeHMAC, 256, nil)
	assert.ErrorIs(t, s.Init(uninit, ModeSign), ErrUninitializedKey)

	_, err = NewSignature(SignatureAlgorithm(200))
	assert.ErrorIs(t, err, ErrNoSuchAlgorithm)
}

func TestSignFailsAfterKeyCleared(t *testing.T) {
	key := buildSymmetric(t, TypeDES, LengthDES, unhex(t, "0123456789abcdef"))
	s := newSignature(t, SigDESMAC8ISO9797M2, key, ModeSign)
	key.ClearKey()
	_, err := s.Sign([]byte("data"))
	assert.ErrorIs(t, err, ErrUninitializedKey)
}

func TestPadding(t *testing.T) {
	tests := []struct {
		name string
		pad  Padding
		in   []byte
		want []byte
	}{
		{"m1 empty", PadISO9797M1, nil, make([]byte, 8)},
		{"m1 aligned", PadISO9797M1, []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"m2", PadISO9797M2, []byte{1, 2}, []byte{1, 2, 0x80, 0, 0, 0, 0, 0}},
		{"pkcs5 aligned", PadPKCS5, []byte{1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8, 8, 8, 8, 8, 8, 8, 8, 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Pad(tt.pad, tt.in, 8)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	out, err := Unpad(PadISO9797M2, []byte{1, 2, 0x80, 0, 0, 0, 0, 0}, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, out)

	_, err = Unpad(PadPKCS5, []byte{1, 2, 3, 4, 5, 6, 7, 9}, 8)
	assert.ErrorIs(t, err, ErrIllegalUse)
	_, err = Unpad(PadISO9797M2, make([]byte, 8), 8)
	assert.ErrorIs(t, err, ErrIllegalUse)
}
