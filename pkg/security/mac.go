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
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"slices"
)

// NewBlock returns the block cipher for a DES or AES key. Two key triple
// DES is expanded to K1 K2 K1.
func NewBlock(k Key) (cipher.Block, error) {
	sk, ok := k.(*SymmetricKey)
	if !ok || !(sk.IsDES() || sk.IsAES()) {
		return nil, ErrIllegalValue.WithMsg("block cipher needs a DES or AES key")
	}
	raw, err := sk.Bytes()
	if err != nil {
		return nil, err
	}
	if sk.IsAES() {
		return aes.NewCipher(raw)
	}
	return desBlock(raw)
}

func desBlock(raw []byte) (cipher.Block, error) {
	switch len(raw) {
	case 8:
		return des.NewCipher(raw)
	case 16:
		return des.NewTripleDESCipher(slices.Concat(raw, raw[:8]))
	case 24:
		return des.NewTripleDESCipher(raw)
	}
	return nil, ErrIllegalValue.WithMsg("DES key of %d bytes", len(raw))
}

// cbcMAC returns the last block of the CBC encryption of data, which
// must be block aligned.
func cbcMAC(b cipher.Block, iv, data []byte) []byte {
	bs := b.BlockSize()
	chain := make([]byte, bs)
	if iv != nil {
		copy(chain, iv)
	}
	for off := 0; off < len(data); off += bs {
		for i := 0; i < bs; i++ {
			chain[i] ^= data[off+i]
		}
		b.Encrypt(chain, chain)
	}
	return chain
}

// retailMAC is ISO 9797-1 MAC algorithm 3: single DES CBC under K1, with
// the final block decrypted under K2 and encrypted again under K1.
func retailMAC(key, iv, data []byte) ([]byte, error) {
	if len(key) != 16 {
		return nil, ErrIllegalValue.WithMsg("MAC algorithm 3 needs a two key DES key")
	}
	k1, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, err
	}
	k2, err := des.NewCipher(key[8:16])
	if err != nil {
		return nil, err
	}
	mac := cbcMAC(k1, iv, data)
	k2.Decrypt(mac, mac)
	k1.Encrypt(mac, mac)
	return mac, nil
}
