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

package cryptodemo

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"hash/crc32"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

var testKey = []byte("0123456789abcdef")

func newCard(t *testing.T) *simulator.Runtime {
	t.Helper()
	rt, err := simulator.New(nil)
	require.NoError(t, err)
	_, err = rt.Install(AID, lifecycle.AID{}, testKey, Install)
	require.NoError(t, err)
	require.True(t, rt.SelectApplet(AID).IsSuccess())
	return rt
}

func exchange(t *testing.T, rt *simulator.Runtime, ins, p1 byte, data []byte) *apdu.Response {
	t.Helper()
	cmd := &apdu.Command{CLA: CLA, INS: ins, P1: p1, Data: data, Ne: 256}
	resp, err := apdu.ParseResponse(rt.Transmit(cmd.Bytes()))
	require.NoError(t, err)
	return resp
}

func ok(t *testing.T, resp *apdu.Response) []byte {
	t.Helper()
	require.Equal(t, uint16(0x9000), resp.SW, "SW %04X", resp.SW)
	return resp.Data
}

func TestDigest(t *testing.T) {
	rt := newCard(t)
	sum := sha256.Sum256([]byte("abc"))
	assert.Equal(t, sum[:], ok(t, exchange(t, rt, InsDigest, 0, []byte("abc"))))
}

func TestRandom(t *testing.T) {
	rt := newCard(t)
	a := ok(t, exchange(t, rt, InsRandom, 32, nil))
	b := ok(t, exchange(t, rt, InsRandom, 32, nil))
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestEncryptDecrypt(t *testing.T) {
	rt := newCard(t)
	iv := bytes.Repeat([]byte{0x01}, 16)
	plain := []byte("attack at dawn")

	ct := ok(t, exchange(t, rt, InsEncrypt, 0, append(append([]byte{}, iv...), plain...)))
	require.Len(t, ct, 16)

	block, err := aes.NewCipher(testKey)
	require.NoError(t, err)
	want := append(append([]byte{}, plain...), bytes.Repeat([]byte{2}, 2)...)
	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(want, want)
	assert.Equal(t, want, ct)

	got := ok(t, exchange(t, rt, InsDecrypt, 0, append(append([]byte{}, iv...), ct...)))
	assert.Equal(t, plain, got)

	// a short input has no IV
	assert.Equal(t, uint16(0x6700), exchange(t, rt, InsEncrypt, 0, []byte{1, 2}).SW)
	// a ciphertext that is not block aligned is an illegal use
	assert.Equal(t, uint16(0x6F05), exchange(t, rt, InsDecrypt, 0, append(append([]byte{}, iv...), 1, 2, 3)).SW)
}

func TestMAC(t *testing.T) {
	rt := newCard(t)
	m := hmac.New(sha256.New, testKey)
	m.Write([]byte("message"))
	assert.Equal(t, m.Sum(nil), ok(t, exchange(t, rt, InsMAC, 0, []byte("message"))))
}

func TestSignVerify(t *testing.T) {
	rt := newCard(t)

	// no key pair yet
	assert.Equal(t, uint16(0x6F02), exchange(t, rt, InsSign, 0, []byte("msg")).SW)

	w := ok(t, exchange(t, rt, InsGenKeyPair, 0, nil))
	require.Len(t, w, 65)
	assert.Equal(t, byte(0x04), w[0])

	msg := []byte("sign me")
	sig := ok(t, exchange(t, rt, InsSign, 0, msg))

	pub, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), w)
	require.NoError(t, err)
	digest := sha256.Sum256(msg)
	assert.True(t, ecdsa.VerifyASN1(pub, digest[:], sig))

	valid := ok(t, exchange(t, rt, InsVerify, byte(len(sig)), append(append([]byte{}, sig...), msg...)))
	assert.Equal(t, []byte{0x01}, valid)
	forged := ok(t, exchange(t, rt, InsVerify, byte(len(sig)), append(append([]byte{}, sig...), []byte("other")...)))
	assert.Equal(t, []byte{0x00}, forged)

	assert.Equal(t, uint16(0x6A86), exchange(t, rt, InsVerify, 0, msg).SW)
}

func TestChecksum(t *testing.T) {
	rt := newCard(t)
	want := binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE([]byte("123456789")))
	assert.Equal(t, want, ok(t, exchange(t, rt, InsChecksum, 0, []byte("123456789"))))
}

func TestSealOpen(t *testing.T) {
	rt := newCard(t)
	sealed := ok(t, exchange(t, rt, InsSeal, 0, []byte("secret")))
	require.Len(t, sealed, nonceSize+len("secret")+tagSize)

	assert.Equal(t, []byte("secret"), ok(t, exchange(t, rt, InsOpen, 0, sealed)))

	sealed[nonceSize] ^= 0x01
	assert.Equal(t, uint16(0x6982), exchange(t, rt, InsOpen, 0, sealed).SW)
	assert.Equal(t, uint16(0x6700), exchange(t, rt, InsOpen, 0, sealed[:8]).SW)
}

func TestDerive(t *testing.T) {
	rt := newCard(t)
	want := make([]byte, 32)
	_, err := io.ReadFull(hkdf.New(sha256.New, testKey, nil, []byte("ctx")), want)
	require.NoError(t, err)
	assert.Equal(t, want, ok(t, exchange(t, rt, InsDerive, 32, []byte("ctx"))))
}

func TestClassAndInstruction(t *testing.T) {
	rt := newCard(t)
	resp, err := apdu.ParseResponse(rt.Transmit([]byte{0x00, InsDigest, 0x00, 0x00, 0x00}))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x6E00), resp.SW)
	assert.Equal(t, uint16(0x6D00), exchange(t, rt, 0xEE, 0, nil).SW)
}
