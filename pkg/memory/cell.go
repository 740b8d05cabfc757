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

// Package memory provides the card's typed memory cells.
//
// Every cell carries a persistence class and the context that allocated
// it. Persistent cells are written through the transaction journal;
// transient cells are zeroed by the arena when their clear event fires and
// are never journaled.
package memory

import (
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
)

// ContextID identifies an execution context.
type ContextID uint16

// JCRE is the runtime's own context. It may access every cell.
const JCRE ContextID = 0

// Class is the persistence class of a cell.
type Class uint8

const (
	// Persistent cells survive resets and deselection.
	Persistent Class = 0

	// ClearOnReset cells are zeroed on card reset.
	ClearOnReset Class = 1

	// ClearOnDeselect cells are zeroed when the owner is deselected and
	// on card reset.
	ClearOnDeselect Class = 2
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case Persistent:
		return "persistent"
	case ClearOnReset:
		return "clear_on_reset"
	case ClearOnDeselect:
		return "clear_on_deselect"
	default:
		return "unknown"
	}
}

// Transient reports whether c is a transient class.
func (c Class) Transient() bool {
	return c == ClearOnReset || c == ClearOnDeselect
}

// Element sizes used for transient space and commit buffer accounting.
const (
	sizeByte    = 1
	sizeShort   = 2
	sizeBoolean = 1
	sizeObject  = 2
)

// ContextTracker reports which contexts are active. The lifecycle manager
// implements it.
type ContextTracker interface {
	// CurrentContext returns the context whose code is executing.
	CurrentContext() ContextID

	// SelectedContext returns the context selected on the channel being
	// processed, or JCRE when none is.
	SelectedContext() ContextID
}

// Cell is implemented by every memory cell type.
type Cell interface {
	Class() Class
	Owner() ContextID
	Len() int
	Valid() bool

	base() *header
}

type header struct {
	arena   *Arena
	class   Class
	owner   ContextID
	invalid bool
}

func (h *header) base() *header {
	return h
}

// Class returns the persistence class.
func (h *header) Class() Class {
	return h.class
}

// Owner returns the allocating context.
func (h *header) Owner() ContextID {
	return h.owner
}

// Valid reports whether the cell is still reachable. Cells allocated in an
// aborted transaction are not.
func (h *header) Valid() bool {
	return !h.invalid
}

// check enforces reachability and the clear-on-deselect access rule.
func (h *header) check() error {
	if h.invalid {
		return jcerr.ErrNullPointer.WithMsg("cell allocated in aborted transaction")
	}
	if h.class != ClearOnDeselect {
		return nil
	}
	t := h.arena.tracker
	if t == nil || t.CurrentContext() == JCRE {
		return nil
	}
	if sel := t.SelectedContext(); sel != h.owner {
		return jcerr.Security("clear-on-deselect cell of context %d accessed while context %d selected", h.owner, sel)
	}
	return nil
}

func checkRange(offset, length, size int) error {
	if offset < 0 || length < 0 || offset+length > size {
		return jcerr.ErrIndexOutOfBounds.WithMsg("range [%d,%d) outside %d elements", offset, offset+length, size)
	}
	return nil
}

// ClassOf returns the persistence class of v, or Persistent when v is not
// a cell.
func ClassOf(v any) Class {
	if c, ok := v.(Cell); ok {
		return c.Class()
	}
	return Persistent
}
