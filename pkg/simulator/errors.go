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

import "errors"

var (
	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("simulator: invalid configuration")

	// ErrInvalidProtocol indicates an unsupported transport protocol.
	ErrInvalidProtocol = errors.New("simulator: invalid protocol")

	// ErrInvalidATR indicates a malformed answer to reset.
	ErrInvalidATR = errors.New("simulator: invalid ATR")

	// ErrAppletPanic is reported when an applet panics while processing a
	// command. The command completes with SW 6F00 unless the panic value
	// is a card error, which keeps its status word.
	ErrAppletPanic = errors.New("simulator: applet panic")
)
