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
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/security"
)

// System is the card's service interface for applets. Its methods run in
// the runtime's goroutine while a command or install is in progress.
type System struct {
	rt   *Runtime
	keys *security.KeyBuilder
}

// BeginTransaction opens a transaction.
func (s *System) BeginTransaction() error {
	return s.rt.journal.Begin()
}

// CommitTransaction keeps every write since BeginTransaction.
func (s *System) CommitTransaction() error {
	return s.rt.journal.Commit()
}

// AbortTransaction undoes every write since BeginTransaction.
func (s *System) AbortTransaction() error {
	return s.rt.journal.Abort()
}

// TransactionDepth returns 1 inside a transaction and 0 otherwise.
func (s *System) TransactionDepth() int {
	return s.rt.journal.Depth()
}

// UnusedCommitCapacity returns the free commit buffer bytes.
func (s *System) UnusedCommitCapacity() int {
	return s.rt.journal.UnusedCapacity()
}

// MaxCommitCapacity returns the commit buffer size.
func (s *System) MaxCommitCapacity() int {
	return s.rt.journal.MaxCapacity()
}

// Atomic runs fn in a transaction that commits when fn returns nil.
func (s *System) Atomic(fn func() error) error {
	return s.rt.journal.Atomic(fn)
}

func transientOnly(class memory.Class) error {
	if !class.Transient() {
		return memory.ErrIllegalValue.WithMsg("class %s is not transient", class)
	}
	return nil
}

// MakeTransientByteArray allocates a transient byte array.
func (s *System) MakeTransientByteArray(length int, class memory.Class) (*memory.ByteArray, error) {
	if err := transientOnly(class); err != nil {
		return nil, err
	}
	return s.rt.arena.NewByteArray(length, class)
}

// MakeTransientShortArray allocates a transient short array.
func (s *System) MakeTransientShortArray(length int, class memory.Class) (*memory.ShortArray, error) {
	if err := transientOnly(class); err != nil {
		return nil, err
	}
	return s.rt.arena.NewShortArray(length, class)
}

// MakeTransientBooleanArray allocates a transient boolean array.
func (s *System) MakeTransientBooleanArray(length int, class memory.Class) (*memory.BooleanArray, error) {
	if err := transientOnly(class); err != nil {
		return nil, err
	}
	return s.rt.arena.NewBooleanArray(length, class)
}

// MakeTransientObjectArray allocates a transient object array.
func (s *System) MakeTransientObjectArray(length int, class memory.Class) (*memory.ObjectArray, error) {
	if err := transientOnly(class); err != nil {
		return nil, err
	}
	return s.rt.arena.NewObjectArray(length, class)
}

// NewByteArray allocates a persistent byte array.
func (s *System) NewByteArray(length int) (*memory.ByteArray, error) {
	return s.rt.arena.NewByteArray(length, memory.Persistent)
}

// NewShortArray allocates a persistent short array.
func (s *System) NewShortArray(length int) (*memory.ShortArray, error) {
	return s.rt.arena.NewShortArray(length, memory.Persistent)
}

// NewBooleanArray allocates a persistent boolean array.
func (s *System) NewBooleanArray(length int) (*memory.BooleanArray, error) {
	return s.rt.arena.NewBooleanArray(length, memory.Persistent)
}

// NewObjectArray allocates a persistent object array.
func (s *System) NewObjectArray(length int) (*memory.ObjectArray, error) {
	return s.rt.arena.NewObjectArray(length, memory.Persistent)
}

// IsTransient returns the persistence class of v. Values that are not
// cells are persistent.
func (s *System) IsTransient(v any) memory.Class {
	return memory.ClassOf(v)
}

// AvailableMemory returns the free memory of class, at most 0x7FFF.
func (s *System) AvailableMemory(class memory.Class) int {
	return s.rt.arena.Available(class)
}

// ArrayCopy writes src into dst at offset atomically. Inside a transaction
// the write joins it.
func (s *System) ArrayCopy(src []byte, dst *memory.ByteArray, offset int) error {
	if s.rt.journal.InProgress() {
		return dst.Write(offset, src)
	}
	return s.rt.journal.Atomic(func() error {
		return dst.Write(offset, src)
	})
}

// Register registers applet under its install AID.
func (s *System) Register(applet lifecycle.Applet) error {
	return s.rt.manager.Register(applet)
}

// RegisterWithAID registers applet under aid.
func (s *System) RegisterWithAID(applet lifecycle.Applet, aid []byte) error {
	return s.rt.manager.RegisterWithAID(applet, aid)
}

// AID returns the AID of the executing applet.
func (s *System) AID() lifecycle.AID {
	return s.rt.manager.CurrentAID()
}

// PreviousContextAID returns the AID of the applet that called into the
// executing one, or the zero AID when called by the runtime.
func (s *System) PreviousContextAID() lifecycle.AID {
	return s.rt.manager.PreviousContextAID()
}

// LookupAID returns the registered AID equal to b.
func (s *System) LookupAID(b []byte) (lifecycle.AID, bool) {
	c := s.rt.manager.LookupBytes(b)
	if c == nil {
		return lifecycle.AID{}, false
	}
	return c.AID(), true
}

// IsAppletActive reports whether aid is selected on any channel.
func (s *System) IsAppletActive(aid lifecycle.AID) bool {
	return s.rt.manager.IsAppletActive(aid)
}

// SelectingApplet reports whether the command being processed is the
// SELECT that activated the applet.
func (s *System) SelectingApplet() bool {
	return s.rt.manager.SelectingApplet()
}

// AssignedChannel returns the logical channel of the command being
// processed.
func (s *System) AssignedChannel() int {
	return s.rt.manager.CurrentlySelectedChannel()
}

// GetShareableInterfaceObject asks server for a shareable object.
func (s *System) GetShareableInterfaceObject(server lifecycle.AID, parameter byte) any {
	return s.rt.manager.GetShareableInterfaceObject(server, parameter)
}

// Invoke calls fn in server's context.
func (s *System) Invoke(server lifecycle.AID, fn func() error) error {
	return s.rt.manager.Invoke(server, fn)
}

// KeyBuilder returns the card's key builder.
func (s *System) KeyBuilder() *security.KeyBuilder {
	return s.keys
}

// Logger returns the runtime logger.
func (s *System) Logger() logger.Logger {
	return s.rt.logger
}
