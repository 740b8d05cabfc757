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

// Package hello is the hello world applet. It greets, echoes command data
// and reports what the runtime tells it about the current command.
package hello

import (
	"encoding/binary"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

// AID is the applet's default instance AID.
var AID = lifecycle.MustParseAID("A0000000620301")

// Instructions.
const (
	InsHello   byte = 0x01
	InsEcho    byte = 0x02
	InsParams  byte = 0x03
	InsThrow   byte = 0x04
	InsChannel byte = 0x05
	InsCounter byte = 0x06
)

// Greeting is returned by InsHello without command data.
var Greeting = []byte("Hello world !")

// Applet is the hello world applet.
type Applet struct {
	sys    *simulator.System
	params []byte
	// hits counts InsCounter commands across selections and resets
	hits *memory.ShortArray
}

// Install creates and registers the applet. params are returned by
// InsParams.
func Install(sys *simulator.System, params []byte) error {
	hits, err := sys.NewShortArray(1)
	if err != nil {
		return err
	}
	return sys.Register(&Applet{sys: sys, params: params, hits: hits})
}

// SelectMulti accepts selection on any channel.
func (a *Applet) SelectMulti(bool) bool { return true }

// DeselectMulti has nothing to clean up.
func (a *Applet) DeselectMulti(bool) {}

// Process handles one command.
func (a *Applet) Process(ap *apdu.APDU) error {
	if a.sys.SelectingApplet() {
		return nil
	}
	buf := ap.Buffer()
	switch ap.INS() {
	case InsHello:
		data, err := readData(ap)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			data = Greeting
		}
		return send(ap, data)
	case InsEcho:
		data, err := readData(ap)
		if err != nil {
			return err
		}
		return send(ap, data)
	case InsParams:
		return send(ap, a.params)
	case InsThrow:
		sw := binary.BigEndian.Uint16(buf[iso7816.OffsetP1:])
		if sw == iso7816.SWNoError {
			return nil
		}
		return jcerr.ISO(sw)
	case InsChannel:
		buf[0] = byte(a.sys.AssignedChannel())
		return ap.SetOutgoingAndSend(0, 1)
	case InsCounter:
		v, err := a.hits.Get(0)
		if err != nil {
			return err
		}
		v++
		if err := a.sys.Atomic(func() error { return a.hits.Set(0, v) }); err != nil {
			return err
		}
		binary.BigEndian.PutUint16(buf, uint16(v))
		return ap.SetOutgoingAndSend(0, 2)
	}
	return jcerr.ISO(iso7816.SWInsNotSupported)
}

// readData receives the whole command data block by block.
func readData(ap *apdu.APDU) ([]byte, error) {
	var data []byte
	n, err := ap.SetIncomingAndReceive()
	for err == nil && n > 0 {
		data = append(data, ap.Buffer()[iso7816.OffsetCdata:iso7816.OffsetCdata+n]...)
		n, err = ap.ReceiveBytes(iso7816.OffsetCdata)
	}
	return data, err
}

// send returns data as the response, truncated to Le and to the longest
// short response.
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
