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

// Package jcerr defines the card error taxonomy shared by every simulator
// package. Errors carry the exception kind and the reason code used on a
// real card, so applets can branch on the same constants they would on
// hardware and the runtime can translate any failure into a status word.
package jcerr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of card exception.
type Kind uint8

const (
	// KindISO carries an ISO 7816-4 status word as its reason.
	KindISO Kind = iota + 1
	// KindAPDU reports protocol-sequence errors of the APDU state machine.
	KindAPDU
	// KindTransaction reports transaction journal errors.
	KindTransaction
	// KindSystem reports memory, registration and resource errors.
	KindSystem
	// KindCrypto reports cryptographic adapter errors.
	KindCrypto
	// KindSecurity reports firewall violations. It has no reason code.
	KindSecurity
	// KindNullPointer reports access to a reference that no longer exists.
	KindNullPointer
	// KindIndexOutOfBounds reports an array access outside its bounds.
	KindIndexOutOfBounds
)

// String returns the Java Card exception name of the kind
func (k Kind) String() string {
	switch k {
	case KindISO:
		return "ISOException"
	case KindAPDU:
		return "APDUException"
	case KindTransaction:
		return "TransactionException"
	case KindSystem:
		return "SystemException"
	case KindCrypto:
		return "CryptoException"
	case KindSecurity:
		return "SecurityException"
	case KindNullPointer:
		return "NullPointerException"
	case KindIndexOutOfBounds:
		return "ArrayIndexOutOfBoundsException"
	default:
		return "UnknownException"
	}
}

// SWUnknown is the status word reported for every failure that is not an
// ISO error.
const SWUnknown uint16 = 0x6F00

// Error is a card exception value.
type Error struct {
	Kind   Kind
	Reason uint16
	// Msg is an optional human readable detail. It does not take part in
	// errors.Is comparisons.
	Msg string
}

// New creates an error of the given kind and reason
func New(kind Kind, reason uint16) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Error implements the error interface.
func (e *Error) Error() string {
	name := reasonName(e.Kind, e.Reason)
	switch {
	case e.Kind == KindISO:
		name = fmt.Sprintf("SW %04X", e.Reason)
	case name == "":
		name = fmt.Sprintf("reason %d", e.Reason)
	}
	if e.Kind == KindSecurity || e.Kind == KindNullPointer || e.Kind == KindIndexOutOfBounds {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
		}
		return e.Kind.String()
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, name, e.Msg)
	}
	return fmt.Sprintf("%s(%s)", e.Kind, name)
}

// Is reports whether target is a card error with the same kind and reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// WithMsg returns a copy of e carrying a detail message. The copy still
// matches e with errors.Is.
func (e *Error) WithMsg(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Msg: fmt.Sprintf(format, args...)}
}

// ISO returns an ISO error carrying the status word sw.
func ISO(sw uint16) *Error {
	return &Error{Kind: KindISO, Reason: sw}
}

// Security returns a security violation with a detail message
func Security(format string, args ...any) *Error {
	return &Error{Kind: KindSecurity, Msg: fmt.Sprintf(format, args...)}
}

// ErrSecurity matches any security violation.
var ErrSecurity = &Error{Kind: KindSecurity}

// ErrNullPointer matches any access to an invalidated reference.
var ErrNullPointer = &Error{Kind: KindNullPointer}

// ErrIndexOutOfBounds matches any out of range array access.
var ErrIndexOutOfBounds = &Error{Kind: KindIndexOutOfBounds}

// KindOf returns the kind of the first card error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusWord translates err into the status word returned to the reader.
// nil maps to 0x9000, ISO errors to their reason and everything else to
// 0x6F00.
func StatusWord(err error) uint16 {
	if err == nil {
		return 0x9000
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindISO {
		return e.Reason
	}
	return SWUnknown
}
