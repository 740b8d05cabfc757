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
	gocipher "crypto/cipher"
	"encoding/binary"
	"errors"
	"slices"
)

var (
	errCCMNonce  = errors.New("ccm: nonce must be 7 to 13 bytes")
	errCCMTag    = errors.New("ccm: tag must be 4 to 16 even bytes")
	errCCMLength = errors.New("ccm: message too long for nonce size")
)

// ccm implements AES-CCM (NIST SP 800-38C, RFC 3610) for a given tag
// length.
type ccm struct {
	block  gocipher.Block
	tagLen int
}

func newCCM(block gocipher.Block, tagLen int) (*ccm, error) {
	if tagLen < 4 || tagLen > 16 || tagLen%2 != 0 {
		return nil, errCCMTag
	}
	return &ccm{block: block, tagLen: tagLen}, nil
}

func checkCCMNonce(nonce []byte) error {
	if len(nonce) < 7 || len(nonce) > 13 {
		return errCCMNonce
	}
	return nil
}

// counter returns the counter block A_i.
func (c *ccm) counter(nonce []byte, i uint64) []byte {
	l := 15 - len(nonce)
	a := make([]byte, 16)
	a[0] = byte(l - 1)
	copy(a[1:], nonce)
	for j := 0; j < l && j < 8; j++ {
		a[15-j] = byte(i >> (8 * j))
	}
	return a
}

func (c *ccm) mac(nonce, plaintext, aad []byte) ([]byte, error) {
	l := 15 - len(nonce)
	if l < 8 && uint64(len(plaintext)) >= 1<<(8*l) {
		return nil, errCCMLength
	}
	b0 := make([]byte, 16)
	b0[0] = byte(8*((c.tagLen-2)/2) + (l - 1))
	if len(aad) > 0 {
		b0[0] |= 0x40
	}
	copy(b0[1:], nonce)
	n := uint64(len(plaintext))
	for j := 0; j < l && j < 8; j++ {
		b0[15-j] = byte(n >> (8 * j))
	}

	x := make([]byte, 16)
	c.block.Encrypt(x, b0)
	cbc := func(data []byte) {
		for off := 0; off < len(data); off += 16 {
			end := min(off+16, len(data))
			for i := off; i < end; i++ {
				x[i-off] ^= data[i]
			}
			c.block.Encrypt(x, x)
		}
	}
	if len(aad) > 0 {
		var enc []byte
		switch {
		case len(aad) < 0xFF00:
			enc = binary.BigEndian.AppendUint16(nil, uint16(len(aad)))
		case uint64(len(aad)) < 1<<32:
			enc = binary.BigEndian.AppendUint32([]byte{0xFF, 0xFE}, uint32(len(aad)))
		default:
			enc = binary.BigEndian.AppendUint64([]byte{0xFF, 0xFF}, uint64(len(aad)))
		}
		cbc(slices.Concat(enc, aad))
	}
	cbc(plaintext)
	return x[:c.tagLen], nil
}

func (c *ccm) ctr(nonce, dst, src []byte) {
	s := make([]byte, 16)
	for off, i := 0, uint64(1); off < len(src); off, i = off+16, i+1 {
		c.block.Encrypt(s, c.counter(nonce, i))
		end := min(off+16, len(src))
		for j := off; j < end; j++ {
			dst[j] = src[j] ^ s[j-off]
		}
	}
}

// seal returns the ciphertext and the encrypted tag.
func (c *ccm) seal(nonce, plaintext, aad []byte) (ct, tag []byte, err error) {
	if err := checkCCMNonce(nonce); err != nil {
		return nil, nil, err
	}
	t, err := c.mac(nonce, plaintext, aad)
	if err != nil {
		return nil, nil, err
	}
	ct = make([]byte, len(plaintext))
	c.ctr(nonce, ct, plaintext)
	s0 := make([]byte, 16)
	c.block.Encrypt(s0, c.counter(nonce, 0))
	tag = make([]byte, c.tagLen)
	for i := range tag {
		tag[i] = t[i] ^ s0[i]
	}
	return ct, tag, nil
}
