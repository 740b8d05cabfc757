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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAID(t *testing.T) {
	_, err := NewAID([]byte{1, 2, 3, 4})
	assert.True(t, errors.Is(err, ErrIllegalAID))
	_, err = NewAID(make([]byte, 17))
	assert.True(t, errors.Is(err, ErrIllegalAID))

	aid, err := NewAID([]byte{0xA0, 0, 0, 0, 0x62, 0x03, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 7, aid.Len())
	assert.Equal(t, "A0000000620301", aid.String())
	assert.Equal(t, []byte{0xA0, 0, 0, 0, 0x62}, aid.RID())
	assert.Equal(t, []byte{0x03, 0x01}, aid.PIX())
}

func TestAIDImmutable(t *testing.T) {
	raw := []byte{0xA0, 0, 0, 0, 0x62, 0x03, 0x01}
	aid, err := NewAID(raw)
	require.NoError(t, err)
	raw[0] = 0xFF
	out := aid.Bytes()
	out[1] = 0xFF
	assert.Equal(t, "A0000000620301", aid.String())
}

func TestParseAID(t *testing.T) {
	aid, err := ParseAID("a0:00:00 00 62 03 01")
	require.NoError(t, err)
	assert.True(t, aid.Equals(MustParseAID("A0000000620301")))

	_, err = ParseAID("zz")
	assert.True(t, errors.Is(err, ErrIllegalAID))
	assert.Panics(t, func() { MustParseAID("01") })
}

func TestAIDComparisons(t *testing.T) {
	a := MustParseAID("A0000000620301")
	b := MustParseAID("A0000000629999")
	c := MustParseAID("A0000001510000")

	assert.True(t, a.RIDEquals(b))
	assert.False(t, a.RIDEquals(c))
	assert.False(t, a.Equals(b))
	assert.True(t, a.PartialEquals([]byte{0xA0, 0x00, 0x00, 0x00, 0x62}))
	assert.False(t, a.PartialEquals(nil))
	assert.False(t, a.PartialEquals(b.Bytes()))
	assert.True(t, a.EqualsBytes(a.Bytes()))

	var zero AID
	assert.True(t, zero.IsZero())
	assert.False(t, zero.RIDEquals(a))
	assert.Nil(t, zero.RID())
}
