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

// Package cryptodemo is an applet that exposes the card's cryptographic
// services over APDUs. Crypto failures are reported as SW 6Fxx, where xx
// is the crypto reason code.
package cryptodemo

import (
	"errors"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/cipher"
	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/security"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

// AID is the applet's default instance AID.
var AID = lifecycle.MustParseAID("A000000062030102")

// Instructions. The class byte is 0x80.
const (
	CLA byte = 0x80

	InsDigest     byte = 0x10
	InsRandom     byte = 0x12
	InsEncrypt    byte = 0x20
	InsDecrypt    byte = 0x22
	InsMAC        byte = 0x30
	InsGenKeyPair byte = 0x40
	InsSign       byte = 0x42
	InsVerify     byte = 0x44
	InsChecksum   byte = 0x50
	InsSeal       byte = 0x60
	InsOpen       byte = 0x62
	InsDerive     byte = 0x70
)

// Sizes.
const (
	nonceSize = 12
	tagSize   = 16
)

// Applet is the crypto demo applet.
type Applet struct {
	sys *simulator.System

	aes    *security.SymmetricKey
	hmac   *security.SymmetricKey
	pair   *security.KeyPair
	random *security.RandomData
	digest *security.MessageDigest
	crc    *security.Checksum
	kdf    *security.KDF
	cbc    *cipher.Cipher
	gcm    *cipher.AEADCipher
	mac    *security.Signature
	ecdsa  *security.Signature
}

// Install creates the applet. params, when 16 bytes long, are the AES and
// HMAC key; otherwise random keys are generated.
func Install(sys *simulator.System, params []byte) error {
	a := &Applet{sys: sys}
	if err := a.init(params); err != nil {
		return err
	}
	return sys.Register(a)
}

func (a *Applet) init(params []byte) error {
	var err error
	if a.random, err = security.NewRandomData(security.RandomSecure); err != nil {
		return err
	}
	keyBytes := params
	if len(keyBytes) != 16 {
		keyBytes = make([]byte, 16)
		if err := a.random.Generate(keyBytes); err != nil {
			return err
		}
	}

	kb := a.sys.KeyBuilder()
	k, err := kb.BuildKey(security.TypeAES, security.LengthAES128)
	if err != nil {
		return err
	}
	a.aes = k.(*security.SymmetricKey)
	if err := a.aes.SetKey(keyBytes); err != nil {
		return err
	}
	k, err = kb.BuildKey(security.TypeHMAC, 8*len(keyBytes))
	if err != nil {
		return err
	}
	a.hmac = k.(*security.SymmetricKey)
	if err := a.hmac.SetKey(keyBytes); err != nil {
		return err
	}

	if a.pair, err = security.NewKeyPair(security.KeyPairECFP, security.LengthECFP256); err != nil {
		return err
	}
	if a.digest, err = security.NewMessageDigest(security.DigestSHA256); err != nil {
		return err
	}
	if a.crc, err = security.NewChecksum(security.ChecksumCRC32); err != nil {
		return err
	}
	if a.kdf, err = security.NewKDF(security.KDFHKDFSHA256); err != nil {
		return err
	}
	if a.cbc, err = cipher.New(cipher.AESCBCPKCS5); err != nil {
		return err
	}
	if a.gcm, err = cipher.NewAEAD(cipher.AEADAESGCM); err != nil {
		return err
	}
	if a.mac, err = security.NewSignature(security.SigHMACSHA256); err != nil {
		return err
	}
	a.ecdsa, err = security.NewSignature(security.SigECDSASHA256)
	return err
}

// Process handles one command.
func (a *Applet) Process(ap *apdu.APDU) error {
	if a.sys.SelectingApplet() {
		return nil
	}
	if ap.CLA()&0xFC != CLA {
		return jcerr.ISO(iso7816.SWClaNotSupported)
	}
	buf := ap.Buffer()
	p1 := buf[iso7816.OffsetP1]
	data, err := readData(ap)
	if err != nil {
		return err
	}

	var out []byte
	switch ap.INS() {
	case InsDigest:
		out = a.digest.DoFinal(data)
	case InsRandom:
		out = make([]byte, p1)
		err = a.random.Generate(out)
	case InsEncrypt:
		out, err = a.encrypt(data, security.ModeEncrypt)
	case InsDecrypt:
		out, err = a.encrypt(data, security.ModeDecrypt)
	case InsMAC:
		if err = a.mac.Init(a.hmac, security.ModeSign); err == nil {
			out, err = a.mac.Sign(data)
		}
	case InsGenKeyPair:
		if err = a.pair.GenKeyPair(); err == nil {
			out, err = a.pair.Public().(*security.ECPublicKey).W()
		}
	case InsSign:
		if err = a.ecdsa.Init(a.pair.Private(), security.ModeSign); err == nil {
			out, err = a.ecdsa.Sign(data)
		}
	case InsVerify:
		out, err = a.verify(data, int(p1))
	case InsChecksum:
		out = a.crc.DoFinal(data)
	case InsSeal:
		out, err = a.seal(data)
	case InsOpen:
		out, err = a.open(data)
	case InsDerive:
		out, err = a.kdf.DeriveBytes(a.secret(), nil, data, int(p1))
	default:
		return jcerr.ISO(iso7816.SWInsNotSupported)
	}
	if err != nil {
		return statusOf(err)
	}
	return send(ap, out)
}

// encrypt runs AES-CBC with PKCS#5 padding. The first 16 bytes of data
// are the IV.
func (a *Applet) encrypt(data []byte, mode security.Mode) ([]byte, error) {
	if len(data) < 16 {
		return nil, jcerr.ISO(iso7816.SWWrongLength)
	}
	if err := a.cbc.InitWithIV(a.aes, mode, data[:16]); err != nil {
		return nil, err
	}
	return a.cbc.DoFinal(data[16:])
}

// verify checks an ECDSA signature. The first sigLen bytes of data are the
// signature, the rest the message. It returns 01 for a valid signature.
func (a *Applet) verify(data []byte, sigLen int) ([]byte, error) {
	if sigLen == 0 || sigLen > len(data) {
		return nil, jcerr.ISO(iso7816.SWIncorrectP1P2)
	}
	if err := a.ecdsa.Init(a.pair.Public(), security.ModeVerify); err != nil {
		return nil, err
	}
	ok, err := a.ecdsa.Verify(data[sigLen:], data[:sigLen])
	if err != nil {
		return nil, err
	}
	if ok {
		return []byte{0x01}, nil
	}
	return []byte{0x00}, nil
}

// seal encrypts data with AES-GCM under a random nonce and returns
// nonce || ciphertext || tag.
func (a *Applet) seal(data []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if err := a.random.Generate(nonce); err != nil {
		return nil, err
	}
	if err := a.gcm.Init(a.aes, security.ModeEncrypt, nonce); err != nil {
		return nil, err
	}
	ct, err := a.gcm.DoFinal(data)
	if err != nil {
		return nil, err
	}
	tag, err := a.gcm.RetrieveTag()
	if err != nil {
		return nil, err
	}
	out := append(nonce, ct...)
	return append(out, tag...), nil
}

// open reverses seal. A forged message yields SW 6982.
func (a *Applet) open(data []byte) ([]byte, error) {
	if len(data) < nonceSize+tagSize {
		return nil, jcerr.ISO(iso7816.SWWrongLength)
	}
	nonce, body := data[:nonceSize], data[nonceSize:]
	ct, tag := body[:len(body)-tagSize], body[len(body)-tagSize:]
	if err := a.gcm.Init(a.aes, security.ModeDecrypt, nonce); err != nil {
		return nil, err
	}
	plain, err := a.gcm.DoFinal(ct)
	if err != nil {
		return nil, err
	}
	ok, err := a.gcm.VerifyTag(tag)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, jcerr.ISO(iso7816.SWSecurityStatusNotSatisfied)
	}
	return plain, nil
}

func (a *Applet) secret() []byte {
	b, err := a.hmac.Bytes()
	if err != nil {
		return nil
	}
	return b
}

// statusOf maps crypto errors to SW 6Fxx. Other errors pass through.
func statusOf(err error) error {
	var e *jcerr.Error
	if errors.As(err, &e) && e.Kind == jcerr.KindCrypto {
		return jcerr.ISO(jcerr.SWUnknown|e.Reason).WithMsg("%v", err)
	}
	return err
}

func readData(ap *apdu.APDU) ([]byte, error) {
	var data []byte
	n, err := ap.SetIncomingAndReceive()
	for err == nil && n > 0 {
		data = append(data, ap.Buffer()[iso7816.OffsetCdata:iso7816.OffsetCdata+n]...)
		n, err = ap.ReceiveBytes(iso7816.OffsetCdata)
	}
	return data, err
}

func send(ap *apdu.APDU, data []byte) error {
	le, err := ap.SetOutgoing()
	if err != nil {
		return err
	}
	n := min(len(data), le, 255)
	if err := ap.SetOutgoingLength(n); err != nil {
		return err
	}
	return ap.SendBytesLong(data, 0, n)
}
