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

package jcerr

// Reason codes, numbered as on the card.
const (
	APDUIllegalUse       uint16 = 1
	APDUBufferBounds     uint16 = 2
	APDUBadLength        uint16 = 3
	APDUIOError          uint16 = 4
	APDUNoT0GetResponse  uint16 = 0xAA
	APDUT1IFDAbort       uint16 = 0xAB
	APDUNoT0Reissue      uint16 = 0xAC
	TransInProgress      uint16 = 1
	TransNotInProgress   uint16 = 2
	TransBufferFull      uint16 = 3
	TransInternalFailure uint16 = 4
	TransIllegalUse      uint16 = 5
	SysIllegalValue      uint16 = 1
	SysNoTransientSpace  uint16 = 2
	SysIllegalTransient  uint16 = 3
	SysIllegalAID        uint16 = 4
	SysNoResource        uint16 = 5
	SysIllegalUse        uint16 = 6
	CryptoIllegalValue   uint16 = 1
	CryptoUninitKey      uint16 = 2
	CryptoNoSuchAlg      uint16 = 3
	CryptoInvalidInit    uint16 = 4
	CryptoIllegalUse     uint16 = 5
)

var reasonNames = map[Kind]map[uint16]string{
	KindAPDU: {
		APDUIllegalUse:      "ILLEGAL_USE",
		APDUBufferBounds:    "BUFFER_BOUNDS",
		APDUBadLength:       "BAD_LENGTH",
		APDUIOError:         "IO_ERROR",
		APDUNoT0GetResponse: "NO_T0_GETRESPONSE",
		APDUT1IFDAbort:      "T1_IFD_ABORT",
		APDUNoT0Reissue:     "NO_T0_REISSUE",
	},
	KindTransaction: {
		TransInProgress:      "IN_PROGRESS",
		TransNotInProgress:   "NOT_IN_PROGRESS",
		TransBufferFull:      "BUFFER_FULL",
		TransInternalFailure: "INTERNAL_FAILURE",
		TransIllegalUse:      "ILLEGAL_USE",
	},
	KindSystem: {
		SysIllegalValue:     "ILLEGAL_VALUE",
		SysNoTransientSpace: "NO_TRANSIENT_SPACE",
		SysIllegalTransient: "ILLEGAL_TRANSIENT",
		SysIllegalAID:       "ILLEGAL_AID",
		SysNoResource:       "NO_RESOURCE",
		SysIllegalUse:       "ILLEGAL_USE",
	},
	KindCrypto: {
		CryptoIllegalValue: "ILLEGAL_VALUE",
		CryptoUninitKey:    "UNINITIALIZED_KEY",
		CryptoNoSuchAlg:    "NO_SUCH_ALGORITHM",
		CryptoInvalidInit:  "INVALID_INIT",
		CryptoIllegalUse:   "ILLEGAL_USE",
	},
}

// reasonName returns the symbolic name of a reason code, or "".
func reasonName(kind Kind, reason uint16) string {
	return reasonNames[kind][reason]
}

// ReasonName returns the symbolic name of a reason code for kind, or ""
// when the code is not defined.
func ReasonName(kind Kind, reason uint16) string {
	return reasonName(kind, reason)
}
