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

// Padding is a block padding method.
type Padding uint8

const (
	PadNone Padding = iota
	PadISO9797M1
	PadISO9797M2
	PadPKCS5
)

// Pad pads data to a multiple of blockSize. PadNone fails with
// ErrIllegalUse when data is not aligned.
func Pad(p Padding, data []byte, blockSize int) ([]byte, error) {
	out := make([]byte, len(data), len(data)+blockSize)
	copy(out, data)
	switch p {
	case PadNone:
		if len(data)%blockSize != 0 {
			return nil, ErrIllegalUse.WithMsg("%d bytes not aligned to block size %d", len(data), blockSize)
		}
	case PadISO9797M1:
		if len(out) == 0 || len(out)%blockSize != 0 {
			out = append(out, make([]byte, blockSize-len(out)%blockSize)...)
		}
	case PadISO9797M2:
		out = append(out, 0x80)
		if rem := len(out) % blockSize; rem != 0 {
			out = append(out, make([]byte, blockSize-rem)...)
		}
	case PadPKCS5:
		n := blockSize - len(out)%blockSize
		for i := 0; i < n; i++ {
			out = append(out, byte(n))
		}
	default:
		return nil, ErrIllegalValue.WithMsg("padding %d", p)
	}
	return out, nil
}

// Unpad removes padding added by Pad. ISO 9797 method 1 padding cannot be
// told apart from data and is left in place.
func Unpad(p Padding, data []byte, blockSize int) ([]byte, error) {
	if len(data)%blockSize != 0 {
		return nil, ErrIllegalUse.WithMsg("%d bytes not aligned to block size %d", len(data), blockSize)
	}
	switch p {
	case PadNone, PadISO9797M1:
		return data, nil
	case PadISO9797M2:
		for i := len(data) - 1; i >= 0 && i >= len(data)-blockSize; i-- {
			if data[i] == 0x80 {
				return data[:i], nil
			}
			if data[i] != 0x00 {
				break
			}
		}
		return nil, ErrIllegalUse.WithMsg("invalid ISO 9797 method 2 padding")
	case PadPKCS5:
		if len(data) == 0 {
			return nil, ErrIllegalUse.WithMsg("empty PKCS#5 input")
		}
		n := int(data[len(data)-1])
		if n == 0 || n > blockSize {
			return nil, ErrIllegalUse.WithMsg("invalid PKCS#5 padding")
		}
		for _, b := range data[len(data)-n:] {
			if int(b) != n {
				return nil, ErrIllegalUse.WithMsg("invalid PKCS#5 padding")
			}
		}
		return data[:len(data)-n], nil
	}
	return nil, ErrIllegalValue.WithMsg("padding %d", p)
}
