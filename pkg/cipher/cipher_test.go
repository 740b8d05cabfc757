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

package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-javacard/pkg/security"
)

func unhex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func symmetricKey(t *testing.T, typ security.KeyType, bits int, value []byte) *security.SymmetricKey {
	t.Helper()
	k, err := security.NewKeyBuilder(nil).BuildKey(typ, bits)
	require.NoError(t, err)
	sk := k.(*security.SymmetricKey)
	if value != nil {
		require.NoError(t, sk.SetKey(value))
	}
	return sk
}

func newCipher(t *testing.T, alg Algorithm, key security.Key, mode security.Mode, iv []byte) *Cipher {
	t.Helper()
	c, err := New(alg)
	require.NoError(t, err)
	require.NoError(t, c.InitWithIV(key, mode, iv))
	return c
}

func TestAESECBKnownAnswer(t *testing.T) {
	// FIPS 197 appendix C.1
	key := symmetricKey(t, security.TypeAES, security.LengthAES128, unhex(t, "000102030405060708090a0b0c0d0e0f"))
	c := newCipher(t, AESECBNoPad, key, security.ModeEncrypt, nil)
	out, err := c.DoFinal(unhex(t, "00112233445566778899aabbccddeeff"))
	require.NoError(t, err)
	assert.Equal(t, "69c4e0d86a7b0430d8cdb78070b4c55a", hex.EncodeToString(out))

	d := newCipher(t, AESECBNoPad, key, security.ModeDecrypt, nil)
	plain, err := d.DoFinal(out)
	require.NoError(t, err)
	assert.Equal(t, "00112233445566778899aabbccddeeff", hex.EncodeToString(plain))
}

func TestBlockCipherRoundTrip(t *testing.T) {
	des := symmetricKey(t, security.TypeDES, security.LengthDES3_3Key, unhex(t, "0123456789abcdeffedcba987654321089abcdef01234567"))
	aesKey := symmetricKey(t, security.TypeAES, security.LengthAES256, make([]byte, 32))
	msg := []byte("a message that spans several blocks!")

	for _, tt := range []struct {
		alg Algorithm
		key security.Key
	}{
		{DESCBCISO9797M2, des},
		{DESCBCPKCS5, des},
		{DESECBPKCS5, des},
		{AESCBCISO9797M2, aesKey},
		{AESCBCPKCS5, aesKey},
		{AESECBISO9797M2, aesKey},
		{AESCTR, aesKey},
	} {
		t.Run(tt.alg.String(), func(t *testing.T) {
			enc := newCipher(t, tt.alg, tt.key, security.ModeEncrypt, nil)
			part, err := enc.Update(msg[:10])
			require.NoError(t, err)
			rest, err := enc.DoFinal(msg[10:])
			require.NoError(t, err)
			ct := append(part, rest...)

			// DoFinal restores the initial state
			again, err := enc.DoFinal(msg)
			require.NoError(t, err)
			assert.Equal(t, ct, again)

			dec := newCipher(t, tt.alg, tt.key, security.ModeDecrypt, nil)
			var plain []byte
			for i := 0; i < len(ct); i += 7 {
				end := min(i+7, len(ct))
				out, err := dec.Update(ct[i:end])
				require.NoError(t, err)
				plain = append(plain, out...)
			}
			out, err := dec.DoFinal(nil)
			require.NoError(t, err)
			assert.Equal(t, msg, append(plain, out...))
		})
	}
}

func TestCBCMatchesStandardLibrary(t *testing.T) {
	raw := unhex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	iv := unhex(t, "000102030405060708090a0b0c0d0e0f")
	key := symmetricKey(t, security.TypeAES, security.LengthAES128, raw)
	data := make([]byte, 48)
	for i := range data {
		data[i] = byte(i)
	}

	c := newCipher(t, AESCBCNoPad, key, security.ModeEncrypt, iv)
	got, err := c.DoFinal(data)
	require.NoError(t, err)

	block, err := aes.NewCipher(raw)
	require.NoError(t, err)
	want := make([]byte, len(data))
	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(want, data)
	assert.Equal(t, want, got)
}

func TestCipherErrors(t *testing.T) {
	aesKey := symmetricKey(t, security.TypeAES, security.LengthAES128, make([]byte, 16))

	c, err := New(AESCBCNoPad)
	require.NoError(t, err)
	_, err = c.DoFinal(make([]byte, 16))
	assert.ErrorIs(t, err, security.ErrInvalidInit)

	require.NoError(t, c.Init(aesKey, security.ModeEncrypt))
	_, err = c.DoFinal(make([]byte, 15))
	assert.ErrorIs(t, err, security.ErrIllegalUse)

	assert.ErrorIs(t, c.InitWithIV(aesKey, security.ModeEncrypt, make([]byte, 8)), security.ErrIllegalValue)

	ecb, err := New(AESECBNoPad)
	require.NoError(t, err)
	assert.ErrorIs(t, ecb.InitWithIV(aesKey, security.ModeEncrypt, make([]byte, 16)), security.ErrIllegalValue)

	des := symmetricKey(t, security.TypeDES, security.LengthDES, nil)
	assert.ErrorIs(t, ecb.Init(des, security.ModeEncrypt), security.ErrIllegalValue)

	uninit := symmetricKey(t, security.TypeAES, security.LengthAES128, nil)
	assert.ErrorIs(t, ecb.Init(uninit, security.ModeEncrypt), security.ErrUninitializedKey)

	dec := newCipher(t, AESCBCPKCS5, aesKey, security.ModeDecrypt, nil)
	_, err = dec.DoFinal(make([]byte, 16))
	assert.ErrorIs(t, err, security.ErrIllegalUse)

	_, err = New(Algorithm(99))
	assert.ErrorIs(t, err, security.ErrNoSuchAlgorithm)
}

func genRSA(t *testing.T, alg security.KeyPairAlgorithm) *security.KeyPair {
	t.Helper()
	kp, err := security.NewKeyPair(alg, security.LengthRSA1024)
	require.NoError(t, err)
	require.NoError(t, kp.GenKeyPair())
	return kp
}

func TestRSACiphers(t *testing.T) {
	crt := genRSA(t, security.KeyPairRSACRT)
	plain := genRSA(t, security.KeyPairRSA)
	msg := []byte("wrapped key material")

	for _, tt := range []struct {
		name string
		alg  Algorithm
		kp   *security.KeyPair
	}{
		{"pkcs1 crt", RSAPKCS1, crt},
		{"pkcs1 plain", RSAPKCS1, plain},
		{"oaep crt", RSAPKCS1OAEP, crt},
	} {
		t.Run(tt.name, func(t *testing.T) {
			ct, err := newCipher(t, tt.alg, tt.kp.Public(), security.ModeEncrypt, nil).DoFinal(msg)
			require.NoError(t, err)
			assert.Len(t, ct, 128)

			out, err := newCipher(t, tt.alg, tt.kp.Private(), security.ModeDecrypt, nil).DoFinal(ct)
			require.NoError(t, err)
			assert.Equal(t, msg, out)
		})
	}

	oaep, err := New(RSAPKCS1OAEP)
	require.NoError(t, err)
	require.NoError(t, oaep.Init(plain.Private(), security.ModeDecrypt))
	_, err = oaep.DoFinal(make([]byte, 128))
	assert.ErrorIs(t, err, security.ErrIllegalValue)

	bad, err := newCipher(t, RSAPKCS1, crt.Private(), security.ModeDecrypt, nil).DoFinal(make([]byte, 128))
	assert.Nil(t, bad)
	assert.ErrorIs(t, err, security.ErrIllegalUse)

	_, err = newCipher(t, RSAPKCS1, crt.Public(), security.ModeEncrypt, nil).Update(msg)
	assert.ErrorIs(t, err, security.ErrIllegalUse)
}

func TestRSANoPad(t *testing.T) {
	kp := genRSA(t, security.KeyPairRSACRT)
	block := make([]byte, 128)
	block[127] = 0x2a

	ct, err := newCipher(t, RSANoPad, kp.Public(), security.ModeEncrypt, nil).DoFinal(block)
	require.NoError(t, err)
	out, err := newCipher(t, RSANoPad, kp.Private(), security.ModeDecrypt, nil).DoFinal(ct)
	require.NoError(t, err)
	assert.Equal(t, block, out)

	_, err = newCipher(t, RSANoPad, kp.Public(), security.ModeEncrypt, nil).DoFinal(block[:64])
	assert.ErrorIs(t, err, security.ErrIllegalUse)
}
