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
	"crypto/subtle"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
	"github.com/jeremyhahn/go-javacard/pkg/security"
)

// AEADAlgorithm identifies an authenticated cipher. ChaCha20-Poly1305 is
// a simulator extension.
type AEADAlgorithm uint8

const (
	AEADAESGCM           AEADAlgorithm = 18
	AEADAESCCM           AEADAlgorithm = 19
	AEADChaCha20Poly1305 AEADAlgorithm = 0x40
)

// String returns the algorithm name.
func (a AEADAlgorithm) String() string {
	switch a {
	case AEADAESGCM:
		return "aes_gcm"
	case AEADAESCCM:
		return "aes_ccm"
	case AEADChaCha20Poly1305:
		return "chacha20_poly1305"
	}
	return "unknown"
}

// Unbounded marks an AAD or message length as not declared.
const Unbounded = -1

type aeadState uint8

const (
	stateIdle aeadState = iota
	stateAAD
	stateMessage
	stateDone
)

// engine seals a whole message. keystream returns the bytes XORed with
// the plaintext, which lets decryption release data before the tag is
// checked.
type engine interface {
	seal(nonce, plaintext, aad []byte) (ct, tag []byte, err error)
	keystream(nonce []byte, n int) ([]byte, error)
}

type stdEngine struct {
	aead gocipher.AEAD
}

func (e stdEngine) seal(nonce, plaintext, aad []byte) ([]byte, []byte, error) {
	out := e.aead.Seal(nil, nonce, plaintext, aad)
	cut := len(out) - e.aead.Overhead()
	return out[:cut], out[cut:], nil
}

func (e stdEngine) keystream(nonce []byte, n int) ([]byte, error) {
	out := e.aead.Seal(nil, nonce, make([]byte, n), nil)
	return out[:n], nil
}

type ccmEngine struct {
	*ccm
}

func (e ccmEngine) keystream(nonce []byte, n int) ([]byte, error) {
	if err := checkCCMNonce(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	e.ctr(nonce, out, out)
	return out, nil
}

// AEADCipher encrypts and authenticates a message with associated data.
//
// In offline mode the AAD and message lengths are declared at Init. All
// declared AAD must be supplied before message data, neither total may
// exceed its declaration, and both must be met exactly by DoFinal. CCM is
// always offline. Update buffers its input; the processed message is
// returned by DoFinal.
type AEADCipher struct {
	alg    AEADAlgorithm
	mode   security.Mode
	engine engine
	nonce  []byte
	tagLen int
	aadLen int
	msgLen int

	state aeadState
	aad   []byte
	msg   []byte
	tag   []byte
	ct    []byte
}

// NewAEAD creates an uninitialized authenticated cipher for alg.
func NewAEAD(alg AEADAlgorithm) (*AEADCipher, error) {
	switch alg {
	case AEADAESGCM, AEADAESCCM, AEADChaCha20Poly1305:
		return &AEADCipher{alg: alg}, nil
	}
	return nil, security.ErrNoSuchAlgorithm.WithMsg("aead %d", alg)
}

// Algorithm returns the AEAD algorithm.
func (c *AEADCipher) Algorithm() AEADAlgorithm {
	return c.alg
}

// Init prepares an online operation with a full length tag.
func (c *AEADCipher) Init(key security.Key, mode security.Mode, nonce []byte) error {
	if c.alg == AEADAESCCM {
		return security.ErrIllegalValue.WithMsg("CCM needs declared lengths")
	}
	return c.InitOffline(key, mode, nonce, Unbounded, Unbounded, 16)
}

// InitOffline prepares an operation with declared AAD and message
// lengths. Either may be Unbounded except for CCM.
func (c *AEADCipher) InitOffline(key security.Key, mode security.Mode, nonce []byte, aadLen, msgLen, tagLen int) error {
	if mode != security.ModeEncrypt && mode != security.ModeDecrypt {
		return security.ErrIllegalValue.WithMsg("cipher mode %d", mode)
	}
	if aadLen < Unbounded || msgLen < Unbounded {
		return security.ErrIllegalValue.WithMsg("negative declared length")
	}
	if c.alg == AEADAESCCM && (aadLen == Unbounded || msgLen == Unbounded) {
		return security.ErrIllegalValue.WithMsg("CCM needs declared lengths")
	}
	eng, err := c.newEngine(key, nonce, tagLen)
	if err != nil {
		return err
	}
	c.mode = mode
	c.engine = eng
	c.nonce = append([]byte(nil), nonce...)
	c.tagLen = tagLen
	c.aadLen = aadLen
	c.msgLen = msgLen
	c.state = stateAAD
	c.aad = c.aad[:0]
	c.msg = c.msg[:0]
	c.tag = nil
	c.ct = nil
	return nil
}

func (c *AEADCipher) newEngine(key security.Key, nonce []byte, tagLen int) (engine, error) {
	if key == nil {
		return nil, security.ErrIllegalValue.WithMsg("nil key")
	}
	sk, ok := key.(*security.SymmetricKey)
	if !ok || !sk.IsAES() {
		return nil, security.ErrIllegalValue.WithMsg("key type %d does not fit %s", key.Type(), c.alg)
	}
	raw, err := sk.Bytes()
	if err != nil {
		return nil, err
	}
	defer clear(raw)

	switch c.alg {
	case AEADChaCha20Poly1305:
		if tagLen != chacha20poly1305.Overhead {
			return nil, security.ErrIllegalValue.WithMsg("tag of %d bytes", tagLen)
		}
		if len(raw) != chacha20poly1305.KeySize {
			return nil, security.ErrIllegalValue.WithMsg("ChaCha20-Poly1305 needs a 256 bit key")
		}
		var aead gocipher.AEAD
		switch len(nonce) {
		case chacha20poly1305.NonceSize:
			aead, err = chacha20poly1305.New(raw)
		case chacha20poly1305.NonceSizeX:
			aead, err = chacha20poly1305.NewX(raw)
		default:
			return nil, security.ErrIllegalValue.WithMsg("nonce of %d bytes", len(nonce))
		}
		if err != nil {
			return nil, security.ErrIllegalValue.WithMsg("%v", err)
		}
		return stdEngine{aead: aead}, nil
	}

	block, err := security.NewBlock(key)
	if err != nil {
		return nil, err
	}
	if c.alg == AEADAESCCM {
		if err := checkCCMNonce(nonce); err != nil {
			return nil, security.ErrIllegalValue.WithMsg("%v", err)
		}
		m, err := newCCM(block, tagLen)
		if err != nil {
			return nil, security.ErrIllegalValue.WithMsg("%v", err)
		}
		return ccmEngine{m}, nil
	}
	if tagLen < 12 || tagLen > 16 {
		return nil, security.ErrIllegalValue.WithMsg("tag of %d bytes", tagLen)
	}
	if len(nonce) == 0 {
		return nil, security.ErrIllegalValue.WithMsg("empty nonce")
	}
	aead, err := gocipher.NewGCMWithNonceSize(block, len(nonce))
	if err != nil {
		return nil, security.ErrIllegalValue.WithMsg("%v", err)
	}
	return stdEngine{aead: aead}, nil
}

// UpdateAAD adds associated data. It must precede all message data.
func (c *AEADCipher) UpdateAAD(aad []byte) error {
	switch c.state {
	case stateIdle, stateDone:
		return security.ErrInvalidInit
	case stateMessage:
		return security.ErrIllegalUse.WithMsg("associated data after message data")
	}
	if c.aadLen != Unbounded && len(c.aad)+len(aad) > c.aadLen {
		return security.ErrIllegalUse.WithMsg("associated data exceeds declared %d bytes", c.aadLen)
	}
	c.aad = append(c.aad, aad...)
	return nil
}

// Update adds message data. The output is produced by DoFinal.
func (c *AEADCipher) Update(in []byte) ([]byte, error) {
	if err := c.accept(in); err != nil {
		return nil, err
	}
	c.msg = append(c.msg, in...)
	return nil, nil
}

func (c *AEADCipher) accept(in []byte) error {
	switch c.state {
	case stateIdle, stateDone:
		return security.ErrInvalidInit
	case stateAAD:
		if c.aadLen != Unbounded && len(c.aad) != c.aadLen {
			return security.ErrIllegalUse.WithMsg("%d of %d declared associated data bytes supplied", len(c.aad), c.aadLen)
		}
		c.state = stateMessage
	}
	if c.msgLen != Unbounded && len(c.msg)+len(in) > c.msgLen {
		return security.ErrIllegalUse.WithMsg("message exceeds declared %d bytes", c.msgLen)
	}
	return nil
}

// DoFinal completes the message and returns the ciphertext or plaintext.
// The tag is then available through RetrieveTag when encrypting, or
// checked with VerifyTag when decrypting.
func (c *AEADCipher) DoFinal(in []byte) ([]byte, error) {
	out, err := c.final(in)
	security.Record(metrics.OpAEAD, c.alg.String(), err)
	return out, err
}

func (c *AEADCipher) final(in []byte) ([]byte, error) {
	if err := c.accept(in); err != nil {
		return nil, err
	}
	c.msg = append(c.msg, in...)
	if c.msgLen != Unbounded && len(c.msg) != c.msgLen {
		return nil, security.ErrIllegalUse.WithMsg("%d of %d declared message bytes supplied", len(c.msg), c.msgLen)
	}
	c.state = stateDone

	if c.mode == security.ModeEncrypt {
		ct, tag, err := c.engine.seal(c.nonce, c.msg, c.aad)
		if err != nil {
			return nil, security.ErrIllegalUse.WithMsg("%v", err)
		}
		c.tag = tag[:c.tagLen]
		return ct, nil
	}
	ks, err := c.engine.keystream(c.nonce, len(c.msg))
	if err != nil {
		return nil, security.ErrIllegalUse.WithMsg("%v", err)
	}
	c.ct = append([]byte(nil), c.msg...)
	out := make([]byte, len(c.msg))
	subtle.XORBytes(out, c.msg, ks)
	return out, nil
}

// RetrieveTag returns the tag of an encrypted message.
func (c *AEADCipher) RetrieveTag() ([]byte, error) {
	if c.state != stateDone || c.mode != security.ModeEncrypt {
		return nil, security.ErrIllegalUse.WithMsg("no tag to retrieve")
	}
	return append([]byte(nil), c.tag...), nil
}

// VerifyTag reports whether tag authenticates the decrypted message.
func (c *AEADCipher) VerifyTag(tag []byte) (bool, error) {
	if c.state != stateDone || c.mode != security.ModeDecrypt {
		return false, security.ErrIllegalUse.WithMsg("no message to verify")
	}
	if len(tag) != c.tagLen {
		return false, security.ErrIllegalValue.WithMsg("tag of %d bytes, expected %d", len(tag), c.tagLen)
	}
	ks, err := c.engine.keystream(c.nonce, len(c.ct))
	if err != nil {
		return false, security.ErrIllegalUse.WithMsg("%v", err)
	}
	plain := make([]byte, len(c.ct))
	subtle.XORBytes(plain, c.ct, ks)
	_, want, err := c.engine.seal(c.nonce, plain, c.aad)
	if err != nil {
		return false, security.ErrIllegalUse.WithMsg("%v", err)
	}
	return subtle.ConstantTimeCompare(want[:c.tagLen], tag) == 1, nil
}
