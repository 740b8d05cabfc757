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

package script

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/applets/hello"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

const helloScript = `
# select the hello applet and greet it
00A4040007 A0000000620301
expect 9000
00010000 00          # greeting
expect 9000 48656C6C6F20776F726C642021
00FF0000 00
expect 6D00

reset
select A0000000620301
expect 90xx
`

func newCard(t *testing.T) *simulator.Runtime {
	t.Helper()
	rt, err := simulator.New(nil)
	require.NoError(t, err)
	_, err = rt.Install(hello.AID, lifecycle.AID{}, nil, hello.Install)
	require.NoError(t, err)
	return rt
}

func TestParse(t *testing.T) {
	s, err := Parse("hello.apdu", strings.NewReader(helloScript))
	require.NoError(t, err)
	require.Len(t, s.Steps, 9)

	assert.Equal(t, OpCommand, s.Steps[0].Op)
	assert.Equal(t, 3, s.Steps[0].Line)
	assert.Equal(t, []byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xA0, 0x00, 0x00, 0x00, 0x62, 0x03, 0x01}, s.Steps[0].Command)
	assert.Equal(t, OpExpect, s.Steps[3].Op)
	assert.Equal(t, []byte("Hello world !"), s.Steps[3].Data)
	assert.Equal(t, OpReset, s.Steps[6].Op)
	// select expands to a SELECT by name
	assert.Equal(t, s.Steps[0].Command, s.Steps[7].Command)
	assert.Equal(t, "90XX", s.Steps[8].SW)
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"not hex":          "hello",
		"short command":    "00A4",
		"bad lc":           "00A4040005A000",
		"extended length":  "00A40400000200",
		"expect first":     "expect 9000",
		"bad status word":  "00A40400\nexpect 90",
		"status word text": "00A40400\nexpect 90GG",
		"bad data":         "00A40400\nexpect 9000 ZZ",
		"reset argument":   "reset now",
		"select no aid":    "select",
		"select bad aid":   "select A0",
	}
	for name, text := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("bad.apdu", strings.NewReader(text))
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scripts/hello.apdu", []byte(helloScript), 0o644))

	s, err := Load(fs, "/scripts/hello.apdu")
	require.NoError(t, err)
	assert.Equal(t, "/scripts/hello.apdu", s.Name)

	_, err = Load(fs, "/scripts/missing.apdu")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	s, err := Parse("hello.apdu", strings.NewReader(helloScript))
	require.NoError(t, err)

	report, err := s.Run(context.Background(), newCard(t))
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Len(t, report.Exchanges, 4)
	assert.Equal(t, 1, report.Resets)
	assert.Equal(t, uint16(0x6D00), report.Exchanges[2].Response.SW)
}

func TestRunFailures(t *testing.T) {
	text := "select A0000000620301\nexpect 6A82\n00FF0000\nexpect 6D00\n00FF0000\nexpect 9000 01\n"
	s, err := Parse("fail.apdu", strings.NewReader(text))
	require.NoError(t, err)

	report, err := s.Run(context.Background(), newCard(t))
	assert.ErrorIs(t, err, ErrExpectation)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, 2, report.Failures[0].Line)
	assert.Equal(t, 6, report.Failures[1].Line)
	assert.Len(t, report.Exchanges, 3)

	report, err = s.Run(context.Background(), newCard(t), StopOnFailure())
	assert.ErrorIs(t, err, ErrExpectation)
	assert.Len(t, report.Failures, 1)
	assert.Len(t, report.Exchanges, 1)
}

func TestRunCanceled(t *testing.T) {
	s, err := Parse("hello.apdu", strings.NewReader(helloScript))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := s.Run(ctx, newCard(t))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Exchanges)
}

func TestMatchSW(t *testing.T) {
	assert.True(t, MatchSW("9000", 0x9000))
	assert.True(t, MatchSW("61XX", 0x6110))
	assert.True(t, MatchSW("6x8x", 0x6A82))
	assert.False(t, MatchSW("6A82", 0x6A83))
	assert.False(t, MatchSW("900", 0x9000))
}

func TestParseStep(t *testing.T) {
	_, err := ParseStep("   # only a comment")
	assert.ErrorIs(t, err, ErrEmpty)

	step, err := ParseStep("expect 9000 0102 # trailing comment")
	require.NoError(t, err)
	assert.Equal(t, "0102 9000", step.Expectation())
	assert.True(t, step.Matches(apdu.NewResponse([]byte{0x01, 0x02}, 0x9000)))
	assert.False(t, step.Matches(apdu.NewResponse(nil, 0x9000)))

	step, err = ParseStep("00 a4 04 00 02 a0 01")
	require.NoError(t, err)
	assert.Equal(t, OpCommand, step.Op)
	assert.Equal(t, []byte{0x00, 0xA4, 0x04, 0x00, 0x02, 0xA0, 0x01}, step.Command)
}
