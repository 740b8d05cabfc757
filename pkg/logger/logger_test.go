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

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestHex(t *testing.T) {
	f := Hex("aid", []byte{0xA0, 0x00, 0x00, 0x00, 0x62})
	assert.Equal(t, "aid", f.Key)
	assert.Equal(t, "A000000062", f.Value)
	assert.Equal(t, "A4", Byte("ins", 0xA4).Value)
}

func TestSlogAdapter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Level: LevelDebug, JSON: true, Output: &buf})

	log.With(String("session", "abc")).Debug("command processed",
		Hex("ins", []byte{0xA4}), Int("sw", 0x9000), Bool("selecting", true), Error(errors.New("boom")))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "command processed", record["msg"])
	assert.Equal(t, "abc", record["session"])
	assert.Equal(t, "A4", record["ins"])
	assert.Equal(t, float64(0x9000), record["sw"])
	assert.Equal(t, true, record["selecting"])
	assert.Equal(t, "boom", record["error"])
}

func TestSlogAdapter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewSlogAdapter(&SlogConfig{Level: LevelWarn, Output: &buf})

	log.Debug("hidden")
	log.Info("hidden")
	assert.Empty(t, buf.String())

	log.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	log.Error("also shown")
	assert.Contains(t, buf.String(), "also shown")
}

func TestNoOp(t *testing.T) {
	log := NewNoOp()
	log.Debug("x")
	log.Info("x")
	log.Warn("x")
	log.Error("x")
	assert.Equal(t, log, log.With(String("k", "v")))
}
