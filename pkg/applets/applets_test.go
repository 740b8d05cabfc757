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

package applets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-javacard/pkg/applets/hello"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"cryptodemo", "hello", "wallet"}, Names())
	entries := Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "cryptodemo", entries[0].Name)
}

func TestLookup(t *testing.T) {
	e, err := Lookup("hello")
	require.NoError(t, err)
	assert.True(t, e.DefaultAID.Equals(hello.AID))
	assert.NotNil(t, e.Install)

	_, err = Lookup("nope")
	assert.ErrorIs(t, err, ErrUnknownApplet)
}

func TestInstall(t *testing.T) {
	rt, err := simulator.New(nil)
	require.NoError(t, err)

	for _, name := range Names() {
		ctx, err := Install(rt, name, lifecycle.AID{}, nil)
		require.NoError(t, err, name)
		e, _ := Lookup(name)
		assert.True(t, ctx.AID().Equals(e.DefaultAID))
	}

	custom := lifecycle.MustParseAID("A0000000620301AA")
	ctx, err := Install(rt, "hello", custom, nil)
	require.NoError(t, err)
	assert.True(t, ctx.AID().Equals(custom))
	assert.True(t, rt.SelectApplet(custom).IsSuccess())

	_, err = Install(rt, "nope", lifecycle.AID{}, nil)
	assert.ErrorIs(t, err, ErrUnknownApplet)
}
