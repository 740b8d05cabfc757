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

package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

var testPIN = []byte{0x01, 0x02, 0x03, 0x04, 0x05}

func newCard(t *testing.T) *simulator.Runtime {
	t.Helper()
	rt, err := simulator.New(nil)
	require.NoError(t, err)
	_, err = rt.Install(AID, lifecycle.AID{}, testPIN, Install)
	require.NoError(t, err)
	require.True(t, rt.SelectApplet(AID).IsSuccess())
	return rt
}

func send(t *testing.T, rt *simulator.Runtime, ins byte, data []byte) *apdu.Response {
	t.Helper()
	cmd := &apdu.Command{CLA: CLA, INS: ins, Data: data, Ne: 256}
	resp, err := apdu.ParseResponse(rt.Transmit(cmd.Bytes()))
	require.NoError(t, err)
	return resp
}

func balance(t *testing.T, rt *simulator.Runtime) []byte {
	t.Helper()
	resp := send(t, rt, InsGetBalance, nil)
	require.Equal(t, uint16(0x9000), resp.SW)
	return resp.Data
}

func TestCreditRequiresPIN(t *testing.T) {
	rt := newCard(t)

	assert.Equal(t, SWPINVerificationRequired, send(t, rt, InsCredit, []byte{10}).SW)
	assert.Equal(t, uint16(0x9000), send(t, rt, InsVerify, testPIN).SW)
	assert.Equal(t, uint16(0x9000), send(t, rt, InsCredit, []byte{10}).SW)
	assert.Equal(t, []byte{0x00, 0x0A}, balance(t, rt))
}

func TestCreditDebit(t *testing.T) {
	rt := newCard(t)
	require.Equal(t, uint16(0x9000), send(t, rt, InsVerify, testPIN).SW)

	assert.Equal(t, uint16(0x9000), send(t, rt, InsCredit, []byte{100}).SW)
	assert.Equal(t, uint16(0x9000), send(t, rt, InsDebit, []byte{30}).SW)
	assert.Equal(t, []byte{0x00, 70}, balance(t, rt))

	assert.Equal(t, SWNegativeBalance, send(t, rt, InsDebit, []byte{71}).SW)
	assert.Equal(t, SWInvalidTransactionAmount, send(t, rt, InsCredit, []byte{0x80}).SW)
	assert.Equal(t, uint16(0x6700), send(t, rt, InsCredit, []byte{1, 2}).SW)
	assert.Equal(t, []byte{0x00, 70}, balance(t, rt))

	resp := send(t, rt, InsGetCounter, nil)
	assert.Equal(t, []byte{0x00, 0x02}, resp.Data)
}

func TestMaximumBalance(t *testing.T) {
	rt := newCard(t)
	require.Equal(t, uint16(0x9000), send(t, rt, InsVerify, testPIN).SW)

	for i := 0; i < MaxBalance/MaxTransaction; i++ {
		require.Equal(t, uint16(0x9000), send(t, rt, InsCredit, []byte{MaxTransaction}).SW)
	}
	assert.Equal(t, SWExceedMaximumBalance, send(t, rt, InsCredit, []byte{MaxTransaction}).SW)
	assert.Equal(t, []byte{0x7F, 0xFE}, balance(t, rt))
}

func TestPINBlocks(t *testing.T) {
	rt := newCard(t)

	for range PINTryLimit - 1 {
		assert.Equal(t, SWVerificationFailed, send(t, rt, InsVerify, []byte{0x09}).SW)
	}
	assert.Equal(t, SWPINBlocked, send(t, rt, InsVerify, []byte{0x09}).SW)
	assert.Equal(t, SWPINBlocked, send(t, rt, InsVerify, testPIN).SW)

	// a blocked wallet refuses selection
	rt.Reset()
	assert.Equal(t, uint16(0x6999), rt.SelectApplet(AID).SW)
}

func TestPINTriesRestoredOnSuccess(t *testing.T) {
	rt := newCard(t)

	assert.Equal(t, SWVerificationFailed, send(t, rt, InsVerify, []byte{0x09}).SW)
	assert.Equal(t, SWVerificationFailed, send(t, rt, InsVerify, []byte{0x09}).SW)
	assert.Equal(t, uint16(0x9000), send(t, rt, InsVerify, testPIN).SW)
	for range PINTryLimit - 1 {
		assert.Equal(t, SWVerificationFailed, send(t, rt, InsVerify, []byte{0x09}).SW)
	}
	assert.Equal(t, uint16(0x9000), send(t, rt, InsVerify, testPIN).SW)
}

func TestValidationClearedOnReset(t *testing.T) {
	rt := newCard(t)
	require.Equal(t, uint16(0x9000), send(t, rt, InsVerify, testPIN).SW)
	require.Equal(t, uint16(0x9000), send(t, rt, InsCredit, []byte{5}).SW)

	rt.Reset()
	require.True(t, rt.SelectApplet(AID).IsSuccess())
	assert.Equal(t, SWPINVerificationRequired, send(t, rt, InsDebit, []byte{1}).SW)
	assert.Equal(t, []byte{0x00, 0x05}, balance(t, rt))
}

func TestDefaultPINAndInstallErrors(t *testing.T) {
	rt, err := simulator.New(nil)
	require.NoError(t, err)
	_, err = rt.Install(AID, lifecycle.AID{}, nil, Install)
	require.NoError(t, err)
	require.True(t, rt.SelectApplet(AID).IsSuccess())
	assert.Equal(t, uint16(0x9000), send(t, rt, InsVerify, DefaultPIN).SW)

	other := lifecycle.MustParseAID("A000000062030199")
	_, err = rt.Install(other, lifecycle.AID{}, make([]byte, MaxPINSize+1), Install)
	assert.Error(t, err)
}

func TestWrongClass(t *testing.T) {
	rt := newCard(t)
	resp, err := apdu.ParseResponse(rt.Transmit([]byte{0x00, InsGetBalance, 0x00, 0x00, 0x02}))
	require.NoError(t, err)
	assert.Equal(t, uint16(0x6E00), resp.SW)
	assert.Equal(t, uint16(0x6D00), send(t, rt, 0x7E, nil).SW)
}
