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

package apdu

import (
	"bytes"
	"errors"
	"fmt"

	skyapdu "github.com/skythen/apdu"

	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
)

var (
	// ErrMalformedCommand is returned for bytes that are not a short command APDU.
	ErrMalformedCommand = errors.New("apdu: malformed command")

	// ErrMalformedResponse is returned for bytes that are not a response APDU.
	ErrMalformedResponse = errors.New("apdu: malformed response")
)

// Command is a short command APDU. Ne is 0 when the command has no Le and
// 256 when the Le byte is zero.
type Command struct {
	CLA  byte
	INS  byte
	P1   byte
	P2   byte
	Data []byte
	Ne   int
}

// ParseCommand decodes a short command APDU of case 1, 2, 3 or 4.
// Extended length commands are rejected.
func ParseCommand(b []byte) (*Command, error) {
	if len(b) > skyapdu.OffsetLcExtended && b[skyapdu.OffsetLcStandard] == 0x00 {
		return nil, fmt.Errorf("%w: extended length not supported", ErrMalformedCommand)
	}
	c, err := skyapdu.ParseCapdu(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	if c.IsExtendedLength() {
		return nil, fmt.Errorf("%w: extended length not supported", ErrMalformedCommand)
	}
	return &Command{
		CLA:  c.Cla,
		INS:  c.Ins,
		P1:   c.P1,
		P2:   c.P2,
		Data: bytes.Clone(c.Data),
		Ne:   c.Ne,
	}, nil
}

// Case returns the ISO 7816-3 command case, 1 to 4.
func (c *Command) Case() int {
	switch {
	case len(c.Data) == 0 && c.Ne == 0:
		return 1
	case len(c.Data) == 0:
		return 2
	case c.Ne == 0:
		return 3
	default:
		return 4
	}
}

// Capdu converts the command to its skythen/apdu form.
func (c *Command) Capdu() skyapdu.Capdu {
	return skyapdu.Capdu{
		Cla:  c.CLA,
		Ins:  c.INS,
		P1:   c.P1,
		P2:   c.P2,
		Data: c.Data,
		Ne:   c.Ne,
	}
}

// Bytes encodes the command.
func (c *Command) Bytes() []byte {
	return c.Capdu().Bytes()
}

// OnChannel returns a copy of the command with its class byte addressing
// the given logical channel.
func (c *Command) OnChannel(channel int) *Command {
	out := *c
	switch {
	case channel < 4:
		out.CLA = c.CLA&^0x43 | byte(channel)
	default:
		out.CLA = c.CLA&^0x4F | 0x40 | byte(channel-4)&0x0F
	}
	return &out
}

// Response is a response APDU.
type Response struct {
	Data []byte
	SW   uint16
}

// ParseResponse splits response bytes into data and status word.
func ParseResponse(b []byte) (*Response, error) {
	r, err := skyapdu.ParseRapdu(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &Response{Data: bytes.Clone(r.Data), SW: uint16(r.SW1)<<8 | uint16(r.SW2)}, nil
}

// NewResponse builds a response from data and a status word.
func NewResponse(data []byte, sw uint16) *Response {
	return &Response{Data: data, SW: sw}
}

// Bytes encodes data followed by the status word.
func (r *Response) Bytes() []byte {
	return r.Rapdu().Bytes()
}

// Rapdu converts the response to its skythen/apdu form.
func (r *Response) Rapdu() skyapdu.Rapdu {
	return skyapdu.Rapdu{Data: r.Data, SW1: byte(r.SW >> 8), SW2: byte(r.SW)}
}

// IsSuccess reports whether the status word is 9000 or 61xx.
func (r *Response) IsSuccess() bool {
	return r.Rapdu().IsSuccess()
}

// String formats the response as hex data and status word name.
func (r *Response) String() string {
	return fmt.Sprintf("%X %04X (%s)", r.Data, r.SW, iso7816.StatusWordName(r.SW))
}
