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

// Package cipher implements the card's Cipher and AEADCipher objects on
// top of the Go block ciphers, crypto/rsa and golang.org/x/crypto.
package cipher

import (
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
	"github.com/jeremyhahn/go-javacard/pkg/security"
)

// Algorithm identifies a cipher. Values follow the card's Cipher
// constants.
type Algorithm uint8

const (
	DESCBCNoPad     Algorithm = 1
	DESCBCISO9797M1 Algorithm = 2
	DESCBCISO9797M2 Algorithm = 3
	DESCBCPKCS5     Algorithm = 4
	DESECBNoPad     Algorithm = 5
	DESECBISO9797M1 Algorithm = 6
	DESECBISO9797M2 Algorithm = 7
	DESECBPKCS5     Algorithm = 8
	RSAPKCS1        Algorithm = 10
	RSANoPad        Algorithm = 12
	AESCBCNoPad     Algorithm = 13
	AESECBNoPad     Algorithm = 14
	RSAPKCS1OAEP    Algorithm = 15
	AESCBCISO9797M1 Algorithm = 22
	AESCBCISO9797M2 Algorithm = 23
	AESCBCPKCS5     Algorithm = 24
	AESECBISO9797M1 Algorithm = 25
	AESECBISO9797M2 Algorithm = 26
	AESECBPKCS5     Algorithm = 27
	AESCTR          Algorithm = 29
)

type chaining uint8

const (
	modeECB chaining = iota
	modeCBC
	modeCTR
	modeRSA
)

type suite struct {
	name  string
	aes   bool
	chain chaining
	pad   security.Padding
	oaep  bool
	pkcs1 bool
}

var ciphers = map[Algorithm]suite{
	DESCBCNoPad:     {name: "des_cbc_nopad", chain: modeCBC, pad: security.PadNone},
	DESCBCISO9797M1: {name: "des_cbc_iso9797_m1", chain: modeCBC, pad: security.PadISO9797M1},
	DESCBCISO9797M2: {name: "des_cbc_iso9797_m2", chain: modeCBC, pad: security.PadISO9797M2},
	DESCBCPKCS5:     {name: "des_cbc_pkcs5", chain: modeCBC, pad: security.PadPKCS5},
	DESECBNoPad:     {name: "des_ecb_nopad", chain: modeECB, pad: security.PadNone},
	DESECBISO9797M1: {name: "des_ecb_iso9797_m1", chain: modeECB, pad: security.PadISO9797M1},
	DESECBISO9797M2: {name: "des_ecb_iso9797_m2", chain: modeECB, pad: security.PadISO9797M2},
	DESECBPKCS5:     {name: "des_ecb_pkcs5", chain: modeECB, pad: security.PadPKCS5},
	AESCBCNoPad:     {name: "aes_cbc_nopad", aes: true, chain: modeCBC, pad: security.PadNone},
	AESECBNoPad:     {name: "aes_ecb_nopad", aes: true, chain: modeECB, pad: security.PadNone},
	AESCBCISO9797M1: {name: "aes_cbc_iso9797_m1", aes: true, chain: modeCBC, pad: security.PadISO9797M1},
	AESCBCISO9797M2: {name: "aes_cbc_iso9797_m2", aes: true, chain: modeCBC, pad: security.PadISO9797M2},
	AESCBCPKCS5:     {name: "aes_cbc_pkcs5", aes: true, chain: modeCBC, pad: security.PadPKCS5},
	AESECBISO9797M1: {name: "aes_ecb_iso9797_m1", aes: true, chain: modeECB, pad: security.PadISO9797M1},
	AESECBISO9797M2: {name: "aes_ecb_iso9797_m2", aes: true, chain: modeECB, pad: security.PadISO9797M2},
	AESECBPKCS5:     {name: "aes_ecb_pkcs5", aes: true, chain: modeECB, pad: security.PadPKCS5},
	AESCTR:          {name: "aes_ctr", aes: true, chain: modeCTR},
	RSANoPad:        {name: "rsa_nopad", chain: modeRSA},
	RSAPKCS1:        {name: "rsa_pkcs1", chain: modeRSA, pkcs1: true},
	RSAPKCS1OAEP:    {name: "rsa_pkcs1_oaep", chain: modeRSA, oaep: true},
}

// String returns the algorithm name.
func (a Algorithm) String() string {
	if s, ok := ciphers[a]; ok {
		return s.name
	}
	return "unknown"
}

// Cipher encrypts and decrypts with a block cipher or RSA. Block modes
// accept data in pieces through Update; DoFinal completes the message and
// restores the state set by Init.
type Cipher struct {
	alg   Algorithm
	suite suite
	mode  security.Mode
	key   security.Key
	iv    []byte

	block  gocipher.Block
	cbc    gocipher.BlockMode
	stream gocipher.Stream
	buf    []byte
}

// New creates an uninitialized cipher for alg.
func New(alg Algorithm) (*Cipher, error) {
	s, ok := ciphers[alg]
	if !ok {
		return nil, security.ErrNoSuchAlgorithm.WithMsg("cipher %d", alg)
	}
	return &Cipher{alg: alg, suite: s}, nil
}

// Algorithm returns the cipher algorithm.
func (c *Cipher) Algorithm() Algorithm {
	return c.alg
}

// Init prepares the cipher with key. Chaining modes start from a zero IV.
func (c *Cipher) Init(key security.Key, mode security.Mode) error {
	return c.InitWithIV(key, mode, nil)
}

// InitWithIV prepares the cipher with key and an initial vector. ECB and
// RSA algorithms take no IV.
func (c *Cipher) InitWithIV(key security.Key, mode security.Mode, iv []byte) error {
	if mode != security.ModeEncrypt && mode != security.ModeDecrypt {
		return security.ErrIllegalValue.WithMsg("cipher mode %d", mode)
	}
	if key == nil {
		return security.ErrIllegalValue.WithMsg("nil key")
	}
	if c.suite.chain == modeRSA {
		if !security.IsRSA(key) {
			return security.ErrIllegalValue.WithMsg("%s needs an RSA key", c.suite.name)
		}
		if iv != nil {
			return security.ErrIllegalValue.WithMsg("%s takes no IV", c.suite.name)
		}
		if !key.IsInitialized() {
			return security.ErrUninitializedKey
		}
		c.key, c.mode, c.iv, c.block = key, mode, nil, nil
		c.buf = c.buf[:0]
		return nil
	}

	sk, ok := key.(*security.SymmetricKey)
	if !ok || (c.suite.aes && !sk.IsAES()) || (!c.suite.aes && !sk.IsDES()) {
		return security.ErrIllegalValue.WithMsg("key type %d does not fit %s", key.Type(), c.suite.name)
	}
	if !key.IsInitialized() {
		return security.ErrUninitializedKey
	}
	block, err := security.NewBlock(key)
	if err != nil {
		return err
	}
	bs := block.BlockSize()
	switch {
	case iv == nil:
		iv = make([]byte, bs)
	case c.suite.chain == modeECB:
		return security.ErrIllegalValue.WithMsg("%s takes no IV", c.suite.name)
	case len(iv) != bs:
		return security.ErrIllegalValue.WithMsg("IV of %d bytes, block is %d", len(iv), bs)
	default:
		iv = append([]byte(nil), iv...)
	}
	c.key, c.mode, c.iv, c.block = key, mode, iv, block
	c.restart()
	return nil
}

func (c *Cipher) restart() {
	c.buf = c.buf[:0]
	switch c.suite.chain {
	case modeCBC:
		if c.mode == security.ModeEncrypt {
			c.cbc = gocipher.NewCBCEncrypter(c.block, c.iv)
		} else {
			c.cbc = gocipher.NewCBCDecrypter(c.block, c.iv)
		}
	case modeCTR:
		c.stream = gocipher.NewCTR(c.block, c.iv)
	}
}

// Update processes data and returns the output available so far. When
// decrypting padded data the last block is held back for DoFinal.
func (c *Cipher) Update(in []byte) ([]byte, error) {
	if c.key == nil {
		return nil, security.ErrInvalidInit
	}
	if !c.key.IsInitialized() {
		return nil, security.ErrUninitializedKey
	}
	switch c.suite.chain {
	case modeRSA:
		return nil, security.ErrIllegalUse.WithMsg("%s processes a single block in DoFinal", c.suite.name)
	case modeCTR:
		out := make([]byte, len(in))
		c.stream.XORKeyStream(out, in)
		return out, nil
	}
	c.buf = append(c.buf, in...)
	bs := c.block.BlockSize()
	n := len(c.buf) - len(c.buf)%bs
	if c.mode == security.ModeDecrypt && c.suite.pad != security.PadNone && n == len(c.buf) {
		n -= bs
	}
	if n <= 0 {
		return nil, nil
	}
	out := c.crypt(c.buf[:n])
	c.buf = append(c.buf[:0], c.buf[n:]...)
	return out, nil
}

// DoFinal processes the remaining data, applying or removing padding.
func (c *Cipher) DoFinal(in []byte) ([]byte, error) {
	if c.key == nil {
		return nil, security.ErrInvalidInit
	}
	out, err := c.final(in)
	security.Record(metrics.OpCipher, c.suite.name, err)
	if c.suite.chain != modeRSA {
		c.restart()
	} else {
		c.buf = c.buf[:0]
	}
	return out, err
}

func (c *Cipher) final(in []byte) ([]byte, error) {
	if !c.key.IsInitialized() {
		return nil, security.ErrUninitializedKey
	}
	switch c.suite.chain {
	case modeRSA:
		return c.rsa(in)
	case modeCTR:
		out := make([]byte, len(in))
		c.stream.XORKeyStream(out, in)
		return out, nil
	}
	data := append(c.buf, in...)
	bs := c.block.BlockSize()
	if c.mode == security.ModeEncrypt {
		padded, err := security.Pad(c.suite.pad, data, bs)
		if err != nil {
			return nil, err
		}
		return c.crypt(padded), nil
	}
	if len(data)%bs != 0 {
		return nil, security.ErrIllegalUse.WithMsg("%d bytes not aligned to block size %d", len(data), bs)
	}
	return security.Unpad(c.suite.pad, c.crypt(data), bs)
}

func (c *Cipher) crypt(in []byte) []byte {
	out := make([]byte, len(in))
	if c.suite.chain == modeCBC {
		c.cbc.CryptBlocks(out, in)
		return out
	}
	bs := c.block.BlockSize()
	for off := 0; off < len(in); off += bs {
		if c.mode == security.ModeEncrypt {
			c.block.Encrypt(out[off:off+bs], in[off:off+bs])
		} else {
			c.block.Decrypt(out[off:off+bs], in[off:off+bs])
		}
	}
	return out
}

func (c *Cipher) rsa(in []byte) ([]byte, error) {
	switch {
	case !c.suite.pkcs1 && !c.suite.oaep:
		return security.RSARaw(c.key, in)
	case c.mode == security.ModeEncrypt:
		pub, err := security.RSAPublic(c.key)
		if err != nil {
			return nil, err
		}
		var out []byte
		if c.suite.oaep {
			out, err = rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, in, nil)
		} else {
			out, err = rsa.EncryptPKCS1v15(rand.Reader, pub, in)
		}
		if err != nil {
			return nil, security.ErrIllegalUse.WithMsg("%v", err)
		}
		return out, nil
	}
	if c.suite.pkcs1 {
		if _, plain := c.key.(*security.RSAPrivateKey); plain {
			return security.DecryptPKCS1Raw(c.key, in)
		}
	}
	priv, err := security.RSAPrivate(c.key)
	if err != nil {
		return nil, err
	}
	var out []byte
	if c.suite.oaep {
		out, err = rsa.DecryptOAEP(sha1.New(), nil, priv, in, nil)
	} else {
		out, err = rsa.DecryptPKCS1v15(nil, priv, in)
	}
	if err != nil {
		return nil, security.ErrIllegalUse.WithMsg("%v", err)
	}
	return out, nil
}
