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

package lifecycle

import (
	"bytes"
	"encoding/hex"
	"strings"

	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
)

const (
	// MinAIDLength is the shortest valid AID, a bare RID.
	MinAIDLength = 5

	// MaxAIDLength is the longest valid AID.
	MaxAIDLength = 16

	ridLength = 5
)

// ErrIllegalAID is returned for malformed, duplicate or misplaced AIDs.
var ErrIllegalAID = jcerr.New(jcerr.KindSystem, jcerr.SysIllegalAID)

// AID is an ISO 7816-5 application identifier. The zero value is the
// empty AID and identifies no application.
type AID struct {
	b string
}

// NewAID validates b and returns it as an AID.
func NewAID(b []byte) (AID, error) {
	if len(b) < MinAIDLength || len(b) > MaxAIDLength {
		return AID{}, ErrIllegalAID.WithMsg("AID length %d outside %d..%d", len(b), MinAIDLength, MaxAIDLength)
	}
	return AID{b: string(b)}, nil
}

// ParseAID decodes a hex AID. Spaces and colons are ignored.
func ParseAID(s string) (AID, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return AID{}, ErrIllegalAID.WithMsg("invalid hex %q", s)
	}
	return NewAID(b)
}

// MustParseAID is ParseAID for constants; it panics on error.
func MustParseAID(s string) AID {
	aid, err := ParseAID(s)
	if err != nil {
		panic(err)
	}
	return aid
}

// Bytes returns a copy of the AID bytes.
func (a AID) Bytes() []byte {
	return []byte(a.b)
}

// Len returns the AID length.
func (a AID) Len() int {
	return len(a.b)
}

// IsZero reports whether a is the empty AID.
func (a AID) IsZero() bool {
	return a.b == ""
}

// Equals reports whether a and o are the same AID.
func (a AID) Equals(o AID) bool {
	return a.b == o.b
}

// EqualsBytes reports whether a equals the raw bytes b.
func (a AID) EqualsBytes(b []byte) bool {
	return a.b == string(b)
}

// PartialEquals reports whether b is a prefix of a. Used for SELECT with a
// partial DF name.
func (a AID) PartialEquals(b []byte) bool {
	return len(b) > 0 && len(b) <= len(a.b) && bytes.HasPrefix([]byte(a.b), b)
}

// RIDEquals reports whether a and o share the registered application
// provider identifier.
func (a AID) RIDEquals(o AID) bool {
	if a.IsZero() || o.IsZero() {
		return false
	}
	return a.b[:ridLength] == o.b[:ridLength]
}

// RID returns the first five bytes.
func (a AID) RID() []byte {
	if a.IsZero() {
		return nil
	}
	return []byte(a.b[:ridLength])
}

// PIX returns the proprietary extension following the RID.
func (a AID) PIX() []byte {
	if a.IsZero() {
		return nil
	}
	return []byte(a.b[ridLength:])
}

// String returns the AID as upper-case hex.
func (a AID) String() string {
	return strings.ToUpper(hex.EncodeToString([]byte(a.b)))
}
