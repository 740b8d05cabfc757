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

package simulator

import (
	"fmt"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/transaction"
)

// maxATRLength is the longest answer to reset ISO 7816-3 allows.
const maxATRLength = 33

// DefaultATR is the answer to reset reported when none is configured.
var DefaultATR = []byte{
	0x3B, 0xFA, 0x18, 0x00, 0x00, 0x81, 0x31, 0xFE, 0x45, 0x4A,
	0x43, 0x4F, 0x50, 0x33, 0x31, 0x56, 0x32, 0x33, 0x32, 0x98,
}

// Config configures a Runtime.
type Config struct {
	// Protocol is the transport protocol, apdu.ProtocolT0 or ProtocolT1.
	Protocol byte

	// BufferSize is the APDU buffer size in bytes.
	BufferSize int

	// BlockSize is the T=1 information field size. It bounds each
	// ReceiveBytes chunk.
	BlockSize int

	// MaxChannels is the number of logical channels including the basic
	// channel.
	MaxChannels int

	// CommitCapacity is the transaction commit buffer size in bytes.
	CommitCapacity int

	// TransientCapacity is the transient memory size in bytes.
	TransientCapacity int

	// ATR is the answer to reset.
	ATR []byte

	// Logger receives runtime, journal and lifecycle events.
	// If nil, logging is disabled.
	Logger logger.Logger
}

// DefaultConfig returns the default card configuration.
func DefaultConfig() *Config {
	return &Config{
		Protocol:          apdu.ProtocolT1,
		BufferSize:        apdu.DefaultBufferSize,
		BlockSize:         apdu.DefaultBlockSize,
		MaxChannels:       lifecycle.DefaultMaxChannels,
		CommitCapacity:    transaction.DefaultCapacity,
		TransientCapacity: memory.DefaultTransientCapacity,
		ATR:               DefaultATR,
	}
}

// Validate checks every value is in range.
func (c *Config) Validate() error {
	if c.Protocol != apdu.ProtocolT0 && c.Protocol != apdu.ProtocolT1 {
		return fmt.Errorf("%w: T=%d", ErrInvalidProtocol, c.Protocol)
	}
	if c.BufferSize < apdu.MinBufferSize {
		return fmt.Errorf("%w: buffer size %d below %d", ErrInvalidConfig, c.BufferSize, apdu.MinBufferSize)
	}
	if c.BlockSize < 1 || c.BlockSize > apdu.DefaultBlockSize {
		return fmt.Errorf("%w: block size %d outside 1..%d", ErrInvalidConfig, c.BlockSize, apdu.DefaultBlockSize)
	}
	if c.MaxChannels < 1 || c.MaxChannels > lifecycle.MaxChannels {
		return fmt.Errorf("%w: %d channels outside 1..%d", ErrInvalidConfig, c.MaxChannels, lifecycle.MaxChannels)
	}
	if c.CommitCapacity < 1 {
		return fmt.Errorf("%w: commit capacity %d", ErrInvalidConfig, c.CommitCapacity)
	}
	if c.TransientCapacity < 1 {
		return fmt.Errorf("%w: transient capacity %d", ErrInvalidConfig, c.TransientCapacity)
	}
	if len(c.ATR) < 2 || len(c.ATR) > maxATRLength {
		return fmt.Errorf("%w: length %d", ErrInvalidATR, len(c.ATR))
	}
	return nil
}
