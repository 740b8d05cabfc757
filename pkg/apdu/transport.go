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

package apdu

// Transport delivers outgoing response bytes to the terminal.
type Transport interface {
	// SendAPDU sends length bytes of buf starting at offset. A failure
	// should be one of the APDU transport errors (ErrIOError,
	// ErrT1IFDAbort, ...); any other error is treated as ErrIOError.
	SendAPDU(buf []byte, offset, length int) error
}

// ResponseCollector is an in-memory Transport that accumulates response
// data.
type ResponseCollector struct {
	data []byte
}

// NewResponseCollector creates an empty collector.
func NewResponseCollector() *ResponseCollector {
	return &ResponseCollector{}
}

// SendAPDU appends the bytes to the collected response.
func (c *ResponseCollector) SendAPDU(buf []byte, offset, length int) error {
	c.data = append(c.data, buf[offset:offset+length]...)
	return nil
}

// Bytes returns a copy of the collected response data.
func (c *ResponseCollector) Bytes() []byte {
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// Len returns the number of collected bytes.
func (c *ResponseCollector) Len() int {
	return len(c.data)
}

// Reset discards the collected data.
func (c *ResponseCollector) Reset() {
	c.data = c.data[:0]
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(buf []byte, offset, length int) error

// SendAPDU calls f.
func (f TransportFunc) SendAPDU(buf []byte, offset, length int) error {
	return f(buf, offset, length)
}
