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

// Package transaction implements the card's atomic transaction journal.
//
// Writes to persistent memory are applied in place. While a transaction is
// open the journal first captures the pre-image of every element range it
// has not seen yet, so Abort can replay the pre-images and restore the
// state as of Begin. Readers therefore always observe the latest value.
//
// The journal is bounded by a commit buffer capacity. A write whose
// pre-image would not fit fails with ErrBufferFull before anything is
// modified, and the transaction stays open.
package transaction

import (
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
)

// MaxReportable is the largest capacity value reported to applets, the
// maximum of a Java short.
const MaxReportable = 0x7FFF

// DefaultCapacity is the commit buffer size used when none is configured.
const DefaultCapacity = 512

var (
	// ErrInProgress is returned by Begin when a transaction is already open.
	ErrInProgress = jcerr.New(jcerr.KindTransaction, jcerr.TransInProgress)

	// ErrNotInProgress is returned by Commit and Abort when no transaction is open.
	ErrNotInProgress = jcerr.New(jcerr.KindTransaction, jcerr.TransNotInProgress)

	// ErrBufferFull is returned when a journaled write does not fit in the commit buffer.
	ErrBufferFull = jcerr.New(jcerr.KindTransaction, jcerr.TransBufferFull)

	// ErrInternalFailure is returned when the journal is found inconsistent.
	// It is unrecoverable until the card is reset.
	ErrInternalFailure = jcerr.New(jcerr.KindTransaction, jcerr.TransInternalFailure)

	// ErrIllegalUse is returned when the journal is used in a way the
	// platform does not permit.
	ErrIllegalUse = jcerr.New(jcerr.KindTransaction, jcerr.TransIllegalUse)
)

// Target is a region of memory whose updates can be journaled. Offsets and
// lengths are expressed in elements.
type Target interface {
	// Len returns the number of elements in the region.
	Len() int

	// ElementSize returns the commit buffer footprint of one element.
	ElementSize() int

	// Capture returns a copy of elements [offset, offset+length).
	Capture(offset, length int) any

	// Restore writes an image returned by Capture back at offset.
	Restore(offset int, image any)
}

// ByteTarget is a Target holding raw bytes.
type ByteTarget interface {
	Target

	// Store copies data into the region at offset.
	Store(offset int, data []byte)
}
