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

// Package iso7816 holds the ISO 7816-4 wire constants shared by the
// simulator and applets: status words, header offsets and well-known
// instruction bytes. The values are a wire contract with external readers.
package iso7816

import (
	"fmt"

	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
)

// Status words.
const (
	SWNoError                     uint16 = 0x9000
	SWBytesRemaining00            uint16 = 0x6100
	SWWarningStateUnchanged       uint16 = 0x6200
	SWWrongLength                 uint16 = 0x6700
	SWLogicalChannelNotSupported  uint16 = 0x6881
	SWSecureMessagingNotSupported uint16 = 0x6882
	SWLastCommandExpected         uint16 = 0x6883
	SWCommandChainingNotSupported uint16 = 0x6884
	SWSecurityStatusNotSatisfied  uint16 = 0x6982
	SWFileInvalid                 uint16 = 0x6983
	SWDataInvalid                 uint16 = 0x6984
	SWConditionsNotSatisfied      uint16 = 0x6985
	SWCommandNotAllowed           uint16 = 0x6986
	SWAppletSelectFailed          uint16 = 0x6999
	SWWrongData                   uint16 = 0x6A80
	SWFuncNotSupported            uint16 = 0x6A81
	SWFileNotFound                uint16 = 0x6A82
	SWRecordNotFound              uint16 = 0x6A83
	SWFileFull                    uint16 = 0x6A84
	SWIncorrectP1P2               uint16 = 0x6A86
	SWWrongP1P2                   uint16 = 0x6B00
	SWCorrectLength00             uint16 = 0x6C00
	SWInsNotSupported             uint16 = 0x6D00
	SWClaNotSupported             uint16 = 0x6E00
	SWUnknown                     uint16 = 0x6F00
)

// APDU header offsets.
const (
	OffsetCLA      = 0
	OffsetINS      = 1
	OffsetP1       = 2
	OffsetP2       = 3
	OffsetLC       = 4
	OffsetCdata    = 5
	OffsetExtCdata = 7
)

// Class and instruction bytes.
const (
	ClaISO7816       byte = 0x00
	InsSelect        byte = 0xA4
	InsExternalAuth  byte = 0x82
	InsManageChannel byte = 0x70
	InsGetResponse   byte = 0xC0
)

// SELECT P1 value for selection by DF name (AID).
const SelectByDFName byte = 0x04

// MANAGE CHANNEL P1 values.
const (
	ManageChannelOpen  byte = 0x00
	ManageChannelClose byte = 0x80
)

var statusWordNames = map[uint16]string{
	SWNoError:                     "SW_NO_ERROR",
	SWBytesRemaining00:            "SW_BYTES_REMAINING_00",
	SWWarningStateUnchanged:       "SW_WARNING_STATE_UNCHANGED",
	SWWrongLength:                 "SW_WRONG_LENGTH",
	SWLogicalChannelNotSupported:  "SW_LOGICAL_CHANNEL_NOT_SUPPORTED",
	SWSecureMessagingNotSupported: "SW_SECURE_MESSAGING_NOT_SUPPORTED",
	SWLastCommandExpected:         "SW_LAST_COMMAND_EXPECTED",
	SWCommandChainingNotSupported: "SW_COMMAND_CHAINING_NOT_SUPPORTED",
	SWSecurityStatusNotSatisfied:  "SW_SECURITY_STATUS_NOT_SATISFIED",
	SWFileInvalid:                 "SW_FILE_INVALID",
	SWDataInvalid:                 "SW_DATA_INVALID",
	SWConditionsNotSatisfied:      "SW_CONDITIONS_NOT_SATISFIED",
	SWCommandNotAllowed:           "SW_COMMAND_NOT_ALLOWED",
	SWAppletSelectFailed:          "SW_APPLET_SELECT_FAILED",
	SWWrongData:                   "SW_WRONG_DATA",
	SWFuncNotSupported:            "SW_FUNC_NOT_SUPPORTED",
	SWFileNotFound:                "SW_FILE_NOT_FOUND",
	SWRecordNotFound:              "SW_RECORD_NOT_FOUND",
	SWFileFull:                    "SW_FILE_FULL",
	SWIncorrectP1P2:               "SW_INCORRECT_P1P2",
	SWWrongP1P2:                   "SW_WRONG_P1P2",
	SWCorrectLength00:             "SW_CORRECT_LENGTH_00",
	SWInsNotSupported:             "SW_INS_NOT_SUPPORTED",
	SWClaNotSupported:             "SW_CLA_NOT_SUPPORTED",
	SWUnknown:                     "SW_UNKNOWN",
}

// StatusWordName returns the symbolic name of sw. Status words whose low
// byte carries a length (61xx, 6Cxx) resolve to their 00 form.
func StatusWordName(sw uint16) string {
	if name, ok := statusWordNames[sw]; ok {
		return name
	}
	switch sw & 0xFF00 {
	case SWBytesRemaining00, SWCorrectLength00:
		return fmt.Sprintf("%s (0x%02X)", statusWordNames[sw&0xFF00], sw&0xFF)
	}
	return fmt.Sprintf("0x%04X", sw)
}

// Throw returns the ISO error for sw. Applets return it from Process to
// end the command with that status word.
func Throw(sw uint16) error {
	return jcerr.ISO(sw)
}
