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

// Package apdu drives a single ISO 7816-4 command/response exchange.
//
// An APDU moves monotonically through its states:
//
//	INITIAL -> PARTIAL_INCOMING -> FULL_INCOMING -> OUTGOING ->
//	OUTGOING_LENGTH_KNOWN -> PARTIAL_OUTGOING -> FULL_OUTGOING
//
// A transport failure moves it to one of the negative error states, after
// which every data transfer call fails with the matching error until the
// next Reset.
package apdu

import (
	"errors"
	"slices"

	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
)

// State is the exchange state of an APDU.
type State int8

const (
	StateInitial             State = 0
	StatePartialIncoming     State = 1
	StateFullIncoming        State = 2
	StateOutgoing            State = 3
	StateOutgoingLengthKnown State = 4
	StatePartialOutgoing     State = 5
	StateFullOutgoing        State = 6

	StateErrorNoT0GetResponse State = -1
	StateErrorT1IFDAbort      State = -2
	StateErrorIO              State = -3
	StateErrorNoT0Reissue     State = -4
)

var stateNames = map[State]string{
	StateInitial:              "INITIAL",
	StatePartialIncoming:      "PARTIAL_INCOMING",
	StateFullIncoming:         "FULL_INCOMING",
	StateOutgoing:             "OUTGOING",
	StateOutgoingLengthKnown:  "OUTGOING_LENGTH_KNOWN",
	StatePartialOutgoing:      "PARTIAL_OUTGOING",
	StateFullOutgoing:         "FULL_OUTGOING",
	StateErrorNoT0GetResponse: "ERROR_NO_T0_GETRESPONSE",
	StateErrorT1IFDAbort:      "ERROR_T1_IFD_ABORT",
	StateErrorIO:              "ERROR_IO",
	StateErrorNoT0Reissue:     "ERROR_NO_T0_REISSUE",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsError reports whether s is an error state.
func (s State) IsError() bool {
	return s < 0
}

// Transport protocols.
const (
	ProtocolT0 byte = 0
	ProtocolT1 byte = 1
)

const (
	// DefaultBufferSize is the APDU buffer size: a 5 byte header, 255 data
	// bytes and no Le.
	DefaultBufferSize = 260

	// MinBufferSize is the smallest buffer the platform permits.
	MinBufferSize = 133

	// DefaultBlockSize is the T=1 information field size.
	DefaultBlockSize = 254

	// maxShortLength is the largest Lc or Le a short APDU carries.
	maxShortLength = 256
)

var (
	ErrIllegalUse      = jcerr.New(jcerr.KindAPDU, jcerr.APDUIllegalUse)
	ErrBufferBounds    = jcerr.New(jcerr.KindAPDU, jcerr.APDUBufferBounds)
	ErrBadLength       = jcerr.New(jcerr.KindAPDU, jcerr.APDUBadLength)
	ErrIOError         = jcerr.New(jcerr.KindAPDU, jcerr.APDUIOError)
	ErrNoT0GetResponse = jcerr.New(jcerr.KindAPDU, jcerr.APDUNoT0GetResponse)
	ErrT1IFDAbort      = jcerr.New(jcerr.KindAPDU, jcerr.APDUT1IFDAbort)
	ErrNoT0Reissue     = jcerr.New(jcerr.KindAPDU, jcerr.APDUNoT0Reissue)
)

// APDU is the exchange state of one command. It is owned by the runtime
// and lent to the selected applet while it processes the command.
type APDU struct {
	buffer    []byte
	state     State
	protocol  byte
	blockSize int
	transport Transport

	// data is the command data not yet received into the buffer
	data       []byte
	dataOffset int
	lc         int
	// le is 0 when the command carries no Le
	le         int
	lr         int
	sent       int
	incoming   bool
	outgoing   bool
	lengthSet  bool
	noChaining bool
}

// Option configures an APDU
type Option func(*APDU)

// WithBufferSize sets the buffer size. Sizes below MinBufferSize are raised
// to it.
func WithBufferSize(n int) Option {
	return func(a *APDU) {
		a.buffer = make([]byte, max(n, MinBufferSize))
	}
}

// WithBlockSize sets the receive block size
func WithBlockSize(n int) Option {
	return func(a *APDU) {
		if n > 0 {
			a.blockSize = n
		}
	}
}

// WithProtocol sets the transport protocol
func WithProtocol(p byte) Option {
	return func(a *APDU) {
		a.protocol = p
	}
}

// New creates an APDU whose outgoing bytes are delivered to t.
func New(t Transport, opts ...Option) *APDU {
	a := &APDU{
		buffer:    make([]byte, DefaultBufferSize),
		blockSize: DefaultBlockSize,
		transport: t,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.transport == nil {
		a.transport = NewResponseCollector()
	}
	return a
}

// Reset zeroes the buffer and every counter, restoring INITIAL.
func (a *APDU) Reset() {
	clear(a.buffer)
	a.state = StateInitial
	a.data = nil
	a.lc = 0
	a.le = 0
	a.lr = 0
	a.sent = 0
	a.incoming = false
	a.outgoing = false
	a.lengthSet = false
	a.noChaining = false
	a.dataOffset = 0
}

// Load resets the APDU and stages a short command. The header is placed
// in the buffer; command data is delivered by SetIncomingAndReceive and
// ReceiveBytes. A malformed command yields SW_WRONG_LENGTH.
func (a *APDU) Load(protocol byte, command []byte) error {
	a.Reset()
	a.protocol = protocol
	cmd, err := ParseCommand(command)
	if err != nil {
		return jcerr.ISO(iso7816.SWWrongLength).WithMsg("%v", err)
	}
	a.buffer[iso7816.OffsetCLA] = cmd.CLA
	a.buffer[iso7816.OffsetINS] = cmd.INS
	a.buffer[iso7816.OffsetP1] = cmd.P1
	a.buffer[iso7816.OffsetP2] = cmd.P2
	switch {
	case len(cmd.Data) > 0:
		a.buffer[iso7816.OffsetLC] = byte(len(cmd.Data))
	case cmd.Ne > 0:
		a.buffer[iso7816.OffsetLC] = byte(cmd.Ne)
	}
	a.data = cmd.Data
	a.lc = len(cmd.Data)
	a.le = cmd.Ne
	return nil
}

// stateErr returns the error of the current error state, if any.
func (a *APDU) stateErr() error {
	switch a.state {
	case StateErrorNoT0GetResponse:
		return ErrNoT0GetResponse
	case StateErrorT1IFDAbort:
		return ErrT1IFDAbort
	case StateErrorIO:
		return ErrIOError
	case StateErrorNoT0Reissue:
		return ErrNoT0Reissue
	}
	return nil
}

// SetIncomingAndReceive switches to inbound mode and receives the first
// block of command data at OffsetCdata. It returns the number of bytes
// received.
func (a *APDU) SetIncomingAndReceive() (int, error) {
	if err := a.stateErr(); err != nil {
		return 0, err
	}
	if a.incoming || a.outgoing {
		return 0, ErrIllegalUse.WithMsg("incoming mode already set or outgoing chosen")
	}
	a.incoming = true
	a.state = StatePartialIncoming
	return a.receive(iso7816.OffsetCdata)
}

// ReceiveBytes receives the next block of command data at offset. It
// returns 0 once all data has been received.
func (a *APDU) ReceiveBytes(offset int) (int, error) {
	if err := a.stateErr(); err != nil {
		return 0, err
	}
	if !a.incoming || a.outgoing {
		return 0, ErrIllegalUse.WithMsg("not in incoming mode")
	}
	if remaining := len(a.data) - a.dataOffset; offset < 0 || offset+remaining > len(a.buffer) {
		return 0, ErrBufferBounds.WithMsg("offset %d with %d bytes remaining exceeds buffer of %d", offset, remaining, len(a.buffer))
	}
	return a.receive(offset)
}

func (a *APDU) receive(offset int) (int, error) {
	remaining := len(a.data) - a.dataOffset
	n := min(remaining, a.InBlockSize())
	if offset < 0 || offset+n > len(a.buffer) {
		return 0, ErrBufferBounds.WithMsg("offset %d with %d bytes exceeds buffer of %d", offset, n, len(a.buffer))
	}
	copy(a.buffer[offset:], a.data[a.dataOffset:a.dataOffset+n])
	a.dataOffset += n
	if a.dataOffset == len(a.data) {
		a.state = StateFullIncoming
	} else {
		a.state = StatePartialIncoming
	}
	return n, nil
}

// SetOutgoing switches to outbound mode and returns the expected response
// length. A header Le of zero, or a command without Le, yields 256.
func (a *APDU) SetOutgoing() (int, error) {
	return a.setOutgoing(false)
}

// SetOutgoingNoChaining is SetOutgoing for transports that cannot chain
// responses.
func (a *APDU) SetOutgoingNoChaining() (int, error) {
	return a.setOutgoing(true)
}

func (a *APDU) setOutgoing(noChaining bool) (int, error) {
	if err := a.stateErr(); err != nil {
		return 0, err
	}
	if a.outgoing {
		return 0, ErrIllegalUse.WithMsg("outgoing mode already set")
	}
	a.outgoing = true
	a.noChaining = noChaining
	a.state = StateOutgoing
	if a.le == 0 {
		return maxShortLength, nil
	}
	return a.le, nil
}

// SetOutgoingLength declares the number of response bytes.
func (a *APDU) SetOutgoingLength(length int) error {
	if err := a.stateErr(); err != nil {
		return err
	}
	if !a.outgoing || a.lengthSet {
		return ErrIllegalUse.WithMsg("outgoing mode not set or length already set")
	}
	if length < 0 || length > 255 {
		return ErrBadLength.WithMsg("length %d", length)
	}
	a.lengthSet = true
	a.lr = length
	a.state = StateOutgoingLengthKnown
	return nil
}

// SendBytes sends length bytes of the buffer starting at offset.
func (a *APDU) SendBytes(offset, length int) error {
	if err := a.stateErr(); err != nil {
		return err
	}
	if offset < 0 || length < 0 || offset+length > len(a.buffer) {
		return ErrBufferBounds.WithMsg("range [%d,%d) outside buffer of %d", offset, offset+length, len(a.buffer))
	}
	if !a.lengthSet {
		return ErrIllegalUse.WithMsg("outgoing length not set")
	}
	if a.state == StateFullOutgoing {
		return ErrIllegalUse.WithMsg("response already complete")
	}
	if a.sent+length > a.lr {
		return ErrIllegalUse.WithMsg("sending %d bytes exceeds declared length %d", a.sent+length, a.lr)
	}
	if err := a.transport.SendAPDU(a.buffer, offset, length); err != nil {
		a.state = errorState(err)
		return a.stateErr()
	}
	a.sent += length
	if a.sent == a.lr {
		a.state = StateFullOutgoing
	} else {
		a.state = StatePartialOutgoing
	}
	return nil
}

// SendBytesLong sends length bytes of data starting at offset, staging
// them through the buffer in chunks.
func (a *APDU) SendBytesLong(data []byte, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > len(data) {
		return ErrBufferBounds.WithMsg("range [%d,%d) outside source of %d", offset, offset+length, len(data))
	}
	for length > 0 {
		n := min(length, len(a.buffer))
		copy(a.buffer, data[offset:offset+n])
		if err := a.SendBytes(0, n); err != nil {
			return err
		}
		offset += n
		length -= n
	}
	return nil
}

// SetOutgoingAndSend sends length bytes of the buffer at offset as the
// complete response.
func (a *APDU) SetOutgoingAndSend(offset, length int) error {
	if _, err := a.SetOutgoing(); err != nil {
		return err
	}
	if err := a.SetOutgoingLength(length); err != nil {
		return err
	}
	return a.SendBytes(offset, length)
}

// WaitExtension requests more processing time from the terminal. It has
// no effect on the exchange.
func (a *APDU) WaitExtension() error {
	if err := a.stateErr(); err != nil {
		return err
	}
	if a.noChaining {
		return ErrIllegalUse.WithMsg("wait extension after no-chaining outgoing")
	}
	return nil
}

func errorState(err error) State {
	switch {
	case errors.Is(err, ErrNoT0GetResponse):
		return StateErrorNoT0GetResponse
	case errors.Is(err, ErrT1IFDAbort):
		return StateErrorT1IFDAbort
	case errors.Is(err, ErrNoT0Reissue):
		return StateErrorNoT0Reissue
	default:
		return StateErrorIO
	}
}

// Buffer returns the APDU buffer. Applets read the command from it and
// stage response data in it.
func (a *APDU) Buffer() []byte {
	return a.buffer
}

// CommandData returns a copy of the whole command data without changing
// the exchange state. The runtime reads SELECT names with it.
func (a *APDU) CommandData() []byte {
	return slices.Clone(a.data)
}

// CurrentState returns the exchange state.
func (a *APDU) CurrentState() State {
	return a.state
}

// IncomingLength returns Lc.
func (a *APDU) IncomingLength() int {
	return a.lc
}

// OffsetCdata returns the buffer offset of the command data.
func (a *APDU) OffsetCdata() int {
	return iso7816.OffsetCdata
}

// Protocol returns the transport protocol.
func (a *APDU) Protocol() byte {
	return a.protocol
}

// InBlockSize returns the receive block size. Command data arrives in
// chunks of this size under both protocols.
func (a *APDU) InBlockSize() int {
	return a.blockSize
}

// OutBlockSize returns the send block size.
func (a *APDU) OutBlockSize() int {
	if a.protocol == ProtocolT0 {
		return 258
	}
	return a.blockSize
}

// CLA returns the class byte of the command.
func (a *APDU) CLA() byte {
	return a.buffer[iso7816.OffsetCLA]
}

// INS returns the instruction byte of the command.
func (a *APDU) INS() byte {
	return a.buffer[iso7816.OffsetINS]
}

// CLAChannel returns the logical channel encoded in the class byte.
func (a *APDU) CLAChannel() int {
	return ChannelOf(a.CLA())
}

// IsCommandChainingCLA reports whether the class byte announces chaining.
func (a *APDU) IsCommandChainingCLA() bool {
	return a.CLA()&0x10 != 0
}

// IsSecureMessagingCLA reports whether the class byte announces secure
// messaging.
func (a *APDU) IsSecureMessagingCLA() bool {
	cla := a.CLA()
	if cla&0x40 == 0 {
		return cla&0x0C != 0
	}
	return cla&0x20 != 0
}

// IsISOInterindustryCLA reports whether the class byte is interindustry.
func (a *APDU) IsISOInterindustryCLA() bool {
	return a.CLA()&0x80 == 0
}

// ChannelOf returns the logical channel number encoded in cla.
func ChannelOf(cla byte) int {
	if cla&0x40 == 0 {
		return int(cla & 0x03)
	}
	return int(cla&0x0F) + 4
}
