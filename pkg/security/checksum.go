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

package security

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// ChecksumAlgorithm identifies a checksum.
type ChecksumAlgorithm uint8

const (
	ChecksumCRC16 ChecksumAlgorithm = 1
	ChecksumCRC32 ChecksumAlgorithm = 2
)

// String returns the algorithm name.
func (a ChecksumAlgorithm) String() string {
	switch a {
	case ChecksumCRC16:
		return "iso3309_crc16"
	case ChecksumCRC32:
		return "iso3309_crc32"
	}
	return "unknown"
}

const (
	crc16Poly = 0x8408
	crc16Init = 0xFFFF
)

// Checksum computes the ISO 3309 frame check sequences. CRC16 is the
// reflected x^16+x^12+x^5+1 code with all ones preset and complemented
// output; CRC32 is the IEEE code.
type Checksum struct {
	alg   ChecksumAlgorithm
	init  uint32
	state uint32
}

// NewChecksum creates a checksum for alg.
func NewChecksum(alg ChecksumAlgorithm) (*Checksum, error) {
	c := &Checksum{alg: alg}
	switch alg {
	case ChecksumCRC16:
		c.init = crc16Init
	case ChecksumCRC32:
		c.init = 0
	default:
		return nil, ErrNoSuchAlgorithm.WithMsg("checksum %d", alg)
	}
	c.state = c.init
	return c, nil
}

// Algorithm returns the checksum algorithm.
func (c *Checksum) Algorithm() ChecksumAlgorithm {
	return c.alg
}

// Length returns the checksum length in bytes.
func (c *Checksum) Length() int {
	if c.alg == ChecksumCRC16 {
		return 2
	}
	return 4
}

// Init sets the starting value, big-endian and exactly Length bytes.
// For CRC16 it is the shift register preset; for CRC32 it is a previous
// checksum to continue from.
func (c *Checksum) Init(value []byte) error {
	if len(value) != c.Length() {
		return ErrIllegalValue.WithMsg("initial value of %d bytes", len(value))
	}
	if c.alg == ChecksumCRC16 {
		c.init = uint32(binary.BigEndian.Uint16(value))
	} else {
		c.init = binary.BigEndian.Uint32(value)
	}
	c.state = c.init
	return nil
}

// Update adds data to the running checksum.
func (c *Checksum) Update(data []byte) {
	if c.alg == ChecksumCRC32 {
		c.state = crc32.Update(c.state, crc32.IEEETable, data)
		return
	}
	crc := uint16(c.state)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ crc16Poly
			} else {
				crc >>= 1
			}
		}
	}
	c.state = uint32(crc)
}

// DoFinal adds data, returns the big-endian checksum and restarts from
// the initial value.
func (c *Checksum) DoFinal(data []byte) []byte {
	c.Update(data)
	var out []byte
	if c.alg == ChecksumCRC16 {
		out = binary.BigEndian.AppendUint16(nil, ^uint16(c.state))
	} else {
		out = binary.BigEndian.AppendUint32(nil, c.state)
	}
	c.state = c.init
	Record(metrics.OpChecksum, c.alg.String(), nil)
	return out
}
