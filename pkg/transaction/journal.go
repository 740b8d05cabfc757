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

package transaction

import (
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// entry is one captured pre-image.
type entry struct {
	target Target
	offset int
	length int
	image  any
	size   int
}

// Journal is the transaction state of one card. It is not safe for
// concurrent use; the runtime serializes access.
type Journal struct {
	capacity int
	used     int
	depth    int
	failed   bool
	entries  []entry
	captured map[Target][]bool

	commitHooks   []func()
	rollbackHooks []func()

	logger logger.Logger
}

// Option configures a Journal
type Option func(*Journal)

// WithLogger sets the journal logger
func WithLogger(l logger.Logger) Option {
	return func(j *Journal) {
		if l != nil {
			j.logger = l
		}
	}
}

// New creates a journal with the given commit buffer capacity in bytes.
// A capacity <= 0 selects DefaultCapacity.
func New(capacity int, opts ...Option) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	j := &Journal{
		capacity: capacity,
		captured: make(map[Target][]bool),
		logger:   logger.NewNoOp(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// OnCommit registers fn to run after every successful commit.
func (j *Journal) OnCommit(fn func()) {
	j.commitHooks = append(j.commitHooks, fn)
}

// OnRollback registers fn to run after every abort or rollback.
func (j *Journal) OnRollback(fn func()) {
	j.rollbackHooks = append(j.rollbackHooks, fn)
}

// Begin opens a transaction.
func (j *Journal) Begin() error {
	if j.failed {
		return ErrInternalFailure.WithMsg("journal unusable until card reset")
	}
	if j.depth != 0 {
		return ErrInProgress
	}
	j.depth = 1
	j.logger.Debug("transaction begin", logger.Int("capacity", j.capacity))
	return nil
}

// Commit closes the open transaction, keeping every write.
func (j *Journal) Commit() error {
	if j.depth == 0 {
		return ErrNotInProgress
	}
	used := j.used
	j.discard()
	j.logger.Debug("transaction commit", logger.Int("journal_bytes", used))
	metrics.RecordTransaction(metrics.OutcomeCommit, used)
	for _, fn := range j.commitHooks {
		fn()
	}
	return nil
}

// Abort closes the open transaction, undoing every write made since Begin.
func (j *Journal) Abort() error {
	if j.depth == 0 {
		return ErrNotInProgress
	}
	return j.undo(metrics.OutcomeAbort)
}

// Rollback undoes an open transaction, if any, and clears a failed journal.
// It is the card reset and tear path and never fails because no
// transaction is open.
func (j *Journal) Rollback() error {
	var err error
	if j.depth != 0 {
		err = j.undo(metrics.OutcomeRollback)
	}
	j.failed = false
	return err
}

func (j *Journal) undo(outcome string) error {
	used := j.used
	inconsistent := false
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if e.offset < 0 || e.offset+e.length > e.target.Len() {
			inconsistent = true
			continue
		}
		e.target.Restore(e.offset, e.image)
	}
	j.discard()
	j.logger.Debug("transaction "+outcome, logger.Int("journal_bytes", used))
	metrics.RecordTransaction(outcome, used)
	for _, fn := range j.rollbackHooks {
		fn()
	}
	if inconsistent {
		j.failed = true
		j.logger.Error("transaction journal inconsistent during undo")
		return ErrInternalFailure
	}
	return nil
}

func (j *Journal) discard() {
	j.entries = nil
	j.captured = make(map[Target][]bool)
	j.used = 0
	j.depth = 0
}

// Write applies data to t at offset, journaling the pre-image when a
// transaction is open.
func (j *Journal) Write(t ByteTarget, offset int, data []byte) error {
	return j.Update(t, offset, len(data), func() {
		t.Store(offset, data)
	})
}

// Update journals elements [offset, offset+length) of t if a transaction
// is open, then calls apply to perform the write. Element ranges already
// captured in this transaction are not captured again. When the new
// pre-images do not fit in the commit buffer, apply is not called and
// ErrBufferFull is returned.
func (j *Journal) Update(t Target, offset, length int, apply func()) error {
	if offset < 0 || length < 0 || offset+length > t.Len() {
		return jcerr.ErrIndexOutOfBounds.WithMsg("range [%d,%d) outside %d elements", offset, offset+length, t.Len())
	}
	if j.depth == 0 {
		apply()
		return nil
	}
	if j.failed {
		return ErrInternalFailure
	}

	seen := j.captured[t]
	runs := uncovered(seen, offset, length)
	need := 0
	for _, r := range runs {
		need += r[1] * t.ElementSize()
	}
	if j.used+need > j.capacity {
		return ErrBufferFull.WithMsg("need %d bytes, %d available", need, j.capacity-j.used)
	}

	if len(runs) > 0 && seen == nil {
		seen = make([]bool, t.Len())
		j.captured[t] = seen
	}
	for _, r := range runs {
		size := r[1] * t.ElementSize()
		j.entries = append(j.entries, entry{
			target: t,
			offset: r[0],
			length: r[1],
			image:  t.Capture(r[0], r[1]),
			size:   size,
		})
		for i := r[0]; i < r[0]+r[1]; i++ {
			seen[i] = true
		}
		j.used += size
	}
	apply()
	return nil
}

// uncovered returns the [offset, length] runs of [offset, offset+length)
// not marked in seen.
func uncovered(seen []bool, offset, length int) [][2]int {
	if length == 0 {
		return nil
	}
	if seen == nil {
		return [][2]int{{offset, length}}
	}
	var runs [][2]int
	start := -1
	for i := offset; i < offset+length; i++ {
		if !seen[i] {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			runs = append(runs, [2]int{start, i - start})
			start = -1
		}
	}
	if start >= 0 {
		runs = append(runs, [2]int{start, offset + length - start})
	}
	return runs
}

// Depth returns the transaction nesting depth, 0 or 1.
func (j *Journal) Depth() int {
	return j.depth
}

// InProgress reports whether a transaction is open.
func (j *Journal) InProgress() bool {
	return j.depth != 0
}

// Failed reports whether the journal hit an internal failure.
func (j *Journal) Failed() bool {
	return j.failed
}

// Used returns the commit buffer bytes used by the open transaction.
func (j *Journal) Used() int {
	return j.used
}

// UnusedCapacity returns the free commit buffer bytes, clamped to MaxReportable.
func (j *Journal) UnusedCapacity() int {
	return clamp(j.capacity - j.used)
}

// MaxCapacity returns the commit buffer size, clamped to MaxReportable.
func (j *Journal) MaxCapacity() int {
	return clamp(j.capacity)
}

func clamp(n int) int {
	if n > MaxReportable {
		return MaxReportable
	}
	return n
}

// Atomic runs fn inside a transaction. The transaction is committed when
// fn returns nil and aborted otherwise; fn's error is returned.
func (j *Journal) Atomic(fn func() error) error {
	if err := j.Begin(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		if j.depth != 0 {
			_ = j.Abort()
		}
		return err
	}
	if j.depth == 0 {
		return ErrNotInProgress.WithMsg("transaction closed inside atomic block")
	}
	return j.Commit()
}
