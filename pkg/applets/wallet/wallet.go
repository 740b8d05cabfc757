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

// Package wallet is the electronic purse applet. A PIN guards credit and
// debit; balance updates and the transaction counter change atomically.
package wallet

import (
	"crypto/subtle"
	"encoding/binary"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

// AID is the applet's default instance AID.
var AID = lifecycle.MustParseAID("A000000062030103")

// CLA is the wallet class byte.
const CLA byte = 0x80

// Instructions.
const (
	InsVerify     byte = 0x20
	InsCredit     byte = 0x30
	InsDebit      byte = 0x40
	InsGetBalance byte = 0x50
	InsGetCounter byte = 0x52
)

// Limits.
const (
	MaxBalance     = 0x7FFF
	MaxTransaction = 0x7F
	PINTryLimit    = 3
	MaxPINSize     = 8
)

// Status words.
const (
	SWVerificationFailed       uint16 = 0x6300
	SWPINVerificationRequired  uint16 = 0x6301
	SWPINBlocked               uint16 = 0x6983
	SWInvalidTransactionAmount uint16 = 0x6A83
	SWExceedMaximumBalance     uint16 = 0x6A84
	SWNegativeBalance          uint16 = 0x6A85
)

// DefaultPIN is used when the install parameters carry none.
var DefaultPIN = []byte{0x01, 0x02, 0x03, 0x04}

// Applet is the wallet applet.
type Applet struct {
	sys     *simulator.System
	pin     *PIN
	balance *memory.ShortArray
	counter *memory.ShortArray
}

// Install creates the wallet. params are the PIN, 1 to 8 bytes.
func Install(sys *simulator.System, params []byte) error {
	code := params
	if len(code) == 0 {
		code = DefaultPIN
	}
	if len(code) > MaxPINSize {
		return jcerr.ISO(iso7816.SWWrongData).WithMsg("PIN of %d bytes", len(code))
	}
	pin, err := NewPIN(sys, PINTryLimit, MaxPINSize)
	if err != nil {
		return err
	}
	if err := pin.Update(code); err != nil {
		return err
	}
	balance, err := sys.NewShortArray(1)
	if err != nil {
		return err
	}
	counter, err := sys.NewShortArray(1)
	if err != nil {
		return err
	}
	return sys.Register(&Applet{sys: sys, pin: pin, balance: balance, counter: counter})
}

// Select refuses selection once the PIN is blocked.
func (a *Applet) Select() bool {
	return a.pin.TriesRemaining() > 0
}

// Deselect drops the PIN validation.
func (a *Applet) Deselect() {
	a.pin.Reset()
}

// Process handles one command.
func (a *Applet) Process(ap *apdu.APDU) error {
	if a.sys.SelectingApplet() {
		return nil
	}
	if ap.CLA()&0xFC != CLA {
		return jcerr.ISO(iso7816.SWClaNotSupported)
	}
	switch ap.INS() {
	case InsVerify:
		return a.verify(ap)
	case InsCredit:
		return a.credit(ap)
	case InsDebit:
		return a.debit(ap)
	case InsGetBalance:
		return a.sendShort(ap, a.balance)
	case InsGetCounter:
		return a.sendShort(ap, a.counter)
	}
	return jcerr.ISO(iso7816.SWInsNotSupported)
}

func (a *Applet) verify(ap *apdu.APDU) error {
	n, err := ap.SetIncomingAndReceive()
	if err != nil {
		return err
	}
	buf := ap.Buffer()
	ok, err := a.pin.Check(buf[iso7816.OffsetCdata : iso7816.OffsetCdata+n])
	if err != nil {
		return err
	}
	if !ok {
		if a.pin.TriesRemaining() == 0 {
			return jcerr.ISO(SWPINBlocked)
		}
		return jcerr.ISO(SWVerificationFailed).WithMsg("%d tries remaining", a.pin.TriesRemaining())
	}
	return nil
}

// amount reads the one byte transaction amount.
func (a *Applet) amount(ap *apdu.APDU) (int16, error) {
	if !a.pin.IsValidated() {
		return 0, jcerr.ISO(SWPINVerificationRequired)
	}
	n, err := ap.SetIncomingAndReceive()
	if err != nil {
		return 0, err
	}
	if n != 1 || ap.IncomingLength() != 1 {
		return 0, jcerr.ISO(iso7816.SWWrongLength)
	}
	v := int16(int8(ap.Buffer()[iso7816.OffsetCdata]))
	if v > MaxTransaction || v < 0 {
		return 0, jcerr.ISO(SWInvalidTransactionAmount)
	}
	return v, nil
}

func (a *Applet) credit(ap *apdu.APDU) error {
	v, err := a.amount(ap)
	if err != nil {
		return err
	}
	bal, err := a.balance.Get(0)
	if err != nil {
		return err
	}
	if int(bal)+int(v) > MaxBalance {
		return jcerr.ISO(SWExceedMaximumBalance)
	}
	return a.apply(bal + v)
}

func (a *Applet) debit(ap *apdu.APDU) error {
	v, err := a.amount(ap)
	if err != nil {
		return err
	}
	bal, err := a.balance.Get(0)
	if err != nil {
		return err
	}
	if bal-v < 0 {
		return jcerr.ISO(SWNegativeBalance)
	}
	return a.apply(bal - v)
}

// apply stores the new balance and counts the transaction as one atomic
// update.
func (a *Applet) apply(balance int16) error {
	return a.sys.Atomic(func() error {
		if err := a.balance.Set(0, balance); err != nil {
			return err
		}
		n, err := a.counter.Get(0)
		if err != nil {
			return err
		}
		return a.counter.Set(0, n+1)
	})
}

func (a *Applet) sendShort(ap *apdu.APDU, cell *memory.ShortArray) error {
	v, err := cell.Get(0)
	if err != nil {
		return err
	}
	le, err := ap.SetOutgoing()
	if err != nil {
		return err
	}
	if le < 2 {
		return jcerr.ISO(iso7816.SWWrongLength)
	}
	if err := ap.SetOutgoingLength(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(ap.Buffer(), uint16(v))
	return ap.SendBytes(0, 2)
}

// PIN is an owner PIN with a try counter. The try counter is persistent;
// the validated flag is cleared by card reset.
type PIN struct {
	sys       *simulator.System
	limit     int
	code      *memory.ByteArray
	length    *memory.ByteArray
	tries     *memory.ByteArray
	validated *memory.BooleanArray
}

// NewPIN allocates a PIN of at most maxSize bytes allowing limit tries.
func NewPIN(sys *simulator.System, limit, maxSize int) (*PIN, error) {
	if limit < 1 || maxSize < 1 {
		return nil, memory.ErrIllegalValue.WithMsg("PIN limit %d size %d", limit, maxSize)
	}
	code, err := sys.NewByteArray(maxSize)
	if err != nil {
		return nil, err
	}
	length, err := sys.NewByteArray(1)
	if err != nil {
		return nil, err
	}
	tries, err := sys.NewByteArray(1)
	if err != nil {
		return nil, err
	}
	validated, err := sys.MakeTransientBooleanArray(1, memory.ClearOnReset)
	if err != nil {
		return nil, err
	}
	return &PIN{sys: sys, limit: limit, code: code, length: length, tries: tries, validated: validated}, nil
}

// Update sets a new PIN value and restores the try counter.
func (p *PIN) Update(code []byte) error {
	if len(code) > p.code.Len() {
		return memory.ErrIllegalValue.WithMsg("PIN of %d bytes", len(code))
	}
	return p.sys.Atomic(func() error {
		if err := p.code.Write(0, code); err != nil {
			return err
		}
		if err := p.length.Set(0, byte(len(code))); err != nil {
			return err
		}
		if err := p.tries.Set(0, byte(p.limit)); err != nil {
			return err
		}
		return p.validated.Set(0, false)
	})
}

// Check compares code with the PIN. The try counter is decremented before
// the comparison and restored on a match.
func (p *PIN) Check(code []byte) (bool, error) {
	if err := p.validated.Set(0, false); err != nil {
		return false, err
	}
	tries := p.TriesRemaining()
	if tries == 0 {
		return false, nil
	}
	if err := p.tries.Set(0, byte(tries-1)); err != nil {
		return false, err
	}
	n, err := p.length.Get(0)
	if err != nil {
		return false, err
	}
	stored, err := p.code.Read(0, int(n))
	if err != nil {
		return false, err
	}
	if subtle.ConstantTimeCompare(stored, code) != 1 {
		return false, nil
	}
	if err := p.tries.Set(0, byte(p.limit)); err != nil {
		return false, err
	}
	return true, p.validated.Set(0, true)
}

// TriesRemaining returns the tries left before the PIN blocks.
func (p *PIN) TriesRemaining() int {
	v, err := p.tries.Get(0)
	if err != nil {
		return 0
	}
	return int(v)
}

// IsValidated reports whether the PIN was presented since the last
// reset or deselect.
func (p *PIN) IsValidated() bool {
	v, err := p.validated.Get(0)
	return err == nil && v
}

// Reset drops the validation.
func (p *PIN) Reset() {
	_ = p.validated.Set(0, false)
}
