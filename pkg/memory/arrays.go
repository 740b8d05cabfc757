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

package memory

import (
	"encoding/binary"
)

// region is the journaled view of a cell's storage.
type region[T any] struct {
	data []T
	size int
}

func newRegion[T any](length, size int) *region[T] {
	return &region[T]{data: make([]T, length), size: size}
}

func (r *region[T]) Len() int {
	return len(r.data)
}

func (r *region[T]) ElementSize() int {
	return r.size
}

func (r *region[T]) Capture(offset, length int) any {
	img := make([]T, length)
	copy(img, r.data[offset:offset+length])
	return img
}

func (r *region[T]) Restore(offset int, image any) {
	copy(r.data[offset:], image.([]T))
}

func (r *region[T]) Store(offset int, data []T) {
	copy(r.data[offset:], data)
}

func (r *region[T]) zero() {
	clear(r.data)
}

// store writes vals at offset. Persistent cells go through the journal.
func store[T any](h *header, r *region[T], offset int, vals []T) error {
	if err := h.check(); err != nil {
		return err
	}
	if err := checkRange(offset, len(vals), len(r.data)); err != nil {
		return err
	}
	if h.class != Persistent {
		r.Store(offset, vals)
		return nil
	}
	return h.arena.journal.Update(r, offset, len(vals), func() {
		r.Store(offset, vals)
	})
}

func load[T any](h *header, r *region[T], offset, length int) ([]T, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if err := checkRange(offset, length, len(r.data)); err != nil {
		return nil, err
	}
	out := make([]T, length)
	copy(out, r.data[offset:offset+length])
	return out, nil
}

func get[T any](h *header, r *region[T], index int) (T, error) {
	var zero T
	if err := h.check(); err != nil {
		return zero, err
	}
	if err := checkRange(index, 1, len(r.data)); err != nil {
		return zero, err
	}
	return r.data[index], nil
}

// ByteArray is a byte array cell.
type ByteArray struct {
	header
	r *region[byte]
}

// Len returns the number of elements.
func (a *ByteArray) Len() int {
	return len(a.r.data)
}

// Get returns the byte at index.
func (a *ByteArray) Get(index int) (byte, error) {
	return get(&a.header, a.r, index)
}

// Set stores v at index.
func (a *ByteArray) Set(index int, v byte) error {
	return store(&a.header, a.r, index, []byte{v})
}

// Read returns a copy of length bytes starting at offset.
func (a *ByteArray) Read(offset, length int) ([]byte, error) {
	return load(&a.header, a.r, offset, length)
}

// Bytes returns a copy of the whole array.
func (a *ByteArray) Bytes() ([]byte, error) {
	return a.Read(0, a.Len())
}

// Write copies data into the array at offset.
func (a *ByteArray) Write(offset int, data []byte) error {
	return store(&a.header, a.r, offset, data)
}

// Fill sets length bytes starting at offset to v.
func (a *ByteArray) Fill(offset, length int, v byte) error {
	if length < 0 {
		return checkRange(offset, length, a.Len())
	}
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = v
	}
	return a.Write(offset, buf)
}

// GetShort reads a big-endian short at offset.
func (a *ByteArray) GetShort(offset int) (int16, error) {
	b, err := a.Read(offset, 2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

// SetShort writes v big-endian at offset.
func (a *ByteArray) SetShort(offset int, v int16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return a.Write(offset, b[:])
}

// ShortArray is a short array cell.
type ShortArray struct {
	header
	r *region[int16]
}

// Len returns the number of elements.
func (a *ShortArray) Len() int {
	return len(a.r.data)
}

// Get returns the short at index.
func (a *ShortArray) Get(index int) (int16, error) {
	return get(&a.header, a.r, index)
}

// Set stores v at index.
func (a *ShortArray) Set(index int, v int16) error {
	return store(&a.header, a.r, index, []int16{v})
}

// Read returns a copy of length shorts starting at offset.
func (a *ShortArray) Read(offset, length int) ([]int16, error) {
	return load(&a.header, a.r, offset, length)
}

// Write copies vals into the array at offset.
func (a *ShortArray) Write(offset int, vals []int16) error {
	return store(&a.header, a.r, offset, vals)
}

// BooleanArray is a boolean array cell.
type BooleanArray struct {
	header
	r *region[bool]
}

// Len returns the number of elements.
func (a *BooleanArray) Len() int {
	return len(a.r.data)
}

// Get returns the boolean at index.
func (a *BooleanArray) Get(index int) (bool, error) {
	return get(&a.header, a.r, index)
}

// Set stores v at index.
func (a *BooleanArray) Set(index int, v bool) error {
	return store(&a.header, a.r, index, []bool{v})
}

// ObjectArray is an array of object references. A slot holding a cell
// that is invalidated by an aborted transaction reads back as nil.
type ObjectArray struct {
	header
	r *region[any]
}

// Len returns the number of elements.
func (a *ObjectArray) Len() int {
	return len(a.r.data)
}

// Get returns the reference at index.
func (a *ObjectArray) Get(index int) (any, error) {
	return get(&a.header, a.r, index)
}

// Set stores v at index.
func (a *ObjectArray) Set(index int, v any) error {
	return store(&a.header, a.r, index, []any{v})
}

// dropInvalid nils every slot referencing an invalidated cell.
func (a *ObjectArray) dropInvalid() {
	for i, v := range a.r.data {
		if c, ok := v.(Cell); ok && !c.Valid() {
			a.r.data[i] = nil
		}
	}
}
