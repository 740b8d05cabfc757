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
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/metrics"
	"github.com/jeremyhahn/go-javacard/pkg/transaction"
)

// DefaultTransientCapacity is the transient memory size in bytes used when
// none is configured.
const DefaultTransientCapacity = 4096

// maxReportable is the largest memory size reported to applets.
const maxReportable = 0x7FFF

var (
	// ErrIllegalValue is returned for a negative length or unknown class.
	ErrIllegalValue = jcerr.New(jcerr.KindSystem, jcerr.SysIllegalValue)

	// ErrNoTransientSpace is returned when transient memory is exhausted.
	ErrNoTransientSpace = jcerr.New(jcerr.KindSystem, jcerr.SysNoTransientSpace)

	// ErrIllegalTransient is returned when a clear-on-deselect cell is
	// requested by a context that is not selected.
	ErrIllegalTransient = jcerr.New(jcerr.KindSystem, jcerr.SysIllegalTransient)
)

// Arena allocates cells and clears transient ones on card events.
type Arena struct {
	journal  *transaction.Journal
	tracker  ContextTracker
	capacity int
	used     int
	cells    []Cell
	pending  []Cell
	logger   logger.Logger
}

// Option configures an Arena
type Option func(*Arena)

// WithTransientCapacity sets the transient memory size in bytes
func WithTransientCapacity(n int) Option {
	return func(a *Arena) {
		if n > 0 {
			a.capacity = n
		}
	}
}

// WithLogger sets the arena logger
func WithLogger(l logger.Logger) Option {
	return func(a *Arena) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithTracker sets the context tracker
func WithTracker(t ContextTracker) Option {
	return func(a *Arena) {
		a.tracker = t
	}
}

// NewArena creates an arena whose persistent cells are journaled by j.
func NewArena(j *transaction.Journal, opts ...Option) *Arena {
	if j == nil {
		j = transaction.New(transaction.DefaultCapacity)
	}
	a := &Arena{
		journal:  j,
		capacity: DefaultTransientCapacity,
		logger:   logger.NewNoOp(),
	}
	for _, opt := range opts {
		opt(a)
	}
	j.OnCommit(a.commit)
	j.OnRollback(a.rollback)
	return a
}

// SetTracker sets the context tracker used for ownership and access checks.
func (a *Arena) SetTracker(t ContextTracker) {
	a.tracker = t
}

// Journal returns the transaction journal.
func (a *Arena) Journal() *transaction.Journal {
	return a.journal
}

// NewByteArray allocates a byte array of the given class.
func (a *Arena) NewByteArray(length int, class Class) (*ByteArray, error) {
	h, err := a.alloc(length, sizeByte, class)
	if err != nil {
		return nil, err
	}
	c := &ByteArray{header: h, r: newRegion[byte](length, sizeByte)}
	a.track(c)
	return c, nil
}

// NewShortArray allocates a short array of the given class.
func (a *Arena) NewShortArray(length int, class Class) (*ShortArray, error) {
	h, err := a.alloc(length, sizeShort, class)
	if err != nil {
		return nil, err
	}
	c := &ShortArray{header: h, r: newRegion[int16](length, sizeShort)}
	a.track(c)
	return c, nil
}

// NewBooleanArray allocates a boolean array of the given class.
func (a *Arena) NewBooleanArray(length int, class Class) (*BooleanArray, error) {
	h, err := a.alloc(length, sizeBoolean, class)
	if err != nil {
		return nil, err
	}
	c := &BooleanArray{header: h, r: newRegion[bool](length, sizeBoolean)}
	a.track(c)
	return c, nil
}

// NewObjectArray allocates an object reference array of the given class.
func (a *Arena) NewObjectArray(length int, class Class) (*ObjectArray, error) {
	h, err := a.alloc(length, sizeObject, class)
	if err != nil {
		return nil, err
	}
	c := &ObjectArray{header: h, r: newRegion[any](length, sizeObject)}
	a.track(c)
	return c, nil
}

func (a *Arena) alloc(length, size int, class Class) (header, error) {
	if length < 0 {
		return header{}, ErrIllegalValue.WithMsg("negative length %d", length)
	}
	if class > ClearOnDeselect {
		return header{}, ErrIllegalValue.WithMsg("unknown persistence class %d", class)
	}
	owner := a.current()
	if class == ClearOnDeselect && a.tracker != nil && owner != JCRE && a.tracker.SelectedContext() != owner {
		return header{}, ErrIllegalTransient.WithMsg("context %d is not selected", owner)
	}
	if class.Transient() {
		need := length * size
		if a.used+need > a.capacity {
			return header{}, ErrNoTransientSpace.WithMsg("need %d bytes, %d available", need, a.capacity-a.used)
		}
		a.used += need
	}
	return header{arena: a, class: class, owner: owner}, nil
}

func (a *Arena) track(c Cell) {
	a.cells = append(a.cells, c)
	if a.journal.InProgress() {
		a.pending = append(a.pending, c)
	}
}

func (a *Arena) current() ContextID {
	if a.tracker == nil {
		return JCRE
	}
	return a.tracker.CurrentContext()
}

func (a *Arena) commit() {
	a.pending = nil
}

// rollback invalidates cells allocated in the aborted transaction and
// drops every reference to them.
func (a *Arena) rollback() {
	if len(a.pending) == 0 {
		return
	}
	for _, c := range a.pending {
		h := c.base()
		h.invalid = true
		if h.class.Transient() {
			a.used -= c.Len() * elementSize(c)
		}
	}
	a.logger.Debug("invalidated cells of aborted transaction", logger.Int("count", len(a.pending)))
	a.pending = nil

	live := a.cells[:0]
	for _, c := range a.cells {
		if c.Valid() {
			live = append(live, c)
		}
	}
	clear(a.cells[len(live):])
	a.cells = live
	for _, c := range a.cells {
		if oa, ok := c.(*ObjectArray); ok {
			oa.dropInvalid()
		}
	}
}

// ClearOnCardReset zeroes every transient cell.
func (a *Arena) ClearOnCardReset() {
	n := 0
	for _, c := range a.cells {
		if c.Class().Transient() {
			zero(c)
			n++
		}
	}
	a.logger.Debug("cleared transient memory", logger.String("event", metrics.EventReset), logger.Int("cells", n))
	metrics.RecordTransientClear(metrics.EventReset)
}

// ClearOnDeselect zeroes the clear-on-deselect cells owned by the given
// contexts.
func (a *Arena) ClearOnDeselect(owners ...ContextID) {
	if len(owners) == 0 {
		return
	}
	n := 0
	for _, c := range a.cells {
		if c.Class() != ClearOnDeselect {
			continue
		}
		for _, o := range owners {
			if c.Owner() == o {
				zero(c)
				n++
				break
			}
		}
	}
	a.logger.Debug("cleared transient memory", logger.String("event", metrics.EventDeselect), logger.Int("cells", n))
	metrics.RecordTransientClear(metrics.EventDeselect)
}

// TransientUsed returns the transient memory bytes allocated.
func (a *Arena) TransientUsed() int {
	return a.used
}

// Available returns the free memory for class, clamped to 0x7FFF.
// Persistent memory is not bounded by the arena.
func (a *Arena) Available(class Class) int {
	if !class.Transient() {
		return maxReportable
	}
	return min(a.capacity-a.used, maxReportable)
}

// Cells returns the number of live cells.
func (a *Arena) Cells() int {
	return len(a.cells)
}

func zero(c Cell) {
	switch v := c.(type) {
	case *ByteArray:
		v.r.zero()
	case *ShortArray:
		v.r.zero()
	case *BooleanArray:
		v.r.zero()
	case *ObjectArray:
		v.r.zero()
	}
}

func elementSize(c Cell) int {
	switch c.(type) {
	case *ShortArray:
		return sizeShort
	case *ObjectArray:
		return sizeObject
	default:
		return sizeByte
	}
}
