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

package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/transaction"
)

type recordingApplet struct {
	refuse      bool
	selects     int
	deselects   int
	processed   int
	selecting   bool
	processedIn memory.ContextID
	m           *Manager
}

func (r *recordingApplet) Select() bool {
	r.selects++
	return !r.refuse
}

func (r *recordingApplet) Deselect() {
	r.deselects++
}

func (r *recordingApplet) Process(*apdu.APDU) error {
	r.processed++
	r.selecting = r.m.SelectingApplet()
	r.processedIn = r.m.CurrentContext()
	return nil
}

type multiApplet struct {
	recordingApplet
	alreadyActive []bool
	stillActive   []bool
}

func (a *multiApplet) SelectMulti(alreadyActive bool) bool {
	a.alreadyActive = append(a.alreadyActive, alreadyActive)
	return true
}

func (a *multiApplet) DeselectMulti(stillActive bool) {
	a.stillActive = append(a.stillActive, stillActive)
}

type server struct {
	recordingApplet
	allowed AID
	caller  AID
}

func (s *server) Shareable(client AID, parameter byte) any {
	if !client.Equals(s.allowed) {
		return nil
	}
	return parameter
}

func newManager(t *testing.T, opts ...Option) (*Manager, *memory.Arena) {
	t.Helper()
	arena := memory.NewArena(transaction.New(128))
	return NewManager(arena, opts...), arena
}

func install(t *testing.T, m *Manager, aid, pkg string, a Applet) *Context {
	t.Helper()
	p := AID{}
	if pkg != "" {
		p = MustParseAID(pkg)
	}
	require.NoError(t, m.BeginInstall(MustParseAID(aid), p))
	require.NoError(t, m.Register(a))
	ctx, err := m.EndInstall()
	require.NoError(t, err)
	return ctx
}

func TestRegisterOutsideWindow(t *testing.T) {
	m, _ := newManager(t)
	err := m.Register(&recordingApplet{})
	assert.True(t, errors.Is(err, ErrIllegalAID))
	err = m.RegisterWithAID(&recordingApplet{}, []byte{1, 2, 3, 4, 5})
	assert.True(t, errors.Is(err, ErrIllegalAID))
}

func TestRegisterTwice(t *testing.T) {
	m, _ := newManager(t)
	a := &recordingApplet{}
	require.NoError(t, m.BeginInstall(MustParseAID("A000000001"), AID{}))
	require.NoError(t, m.Register(a))
	err := m.RegisterWithAID(a, []byte{0xA0, 0, 0, 0, 2})
	assert.True(t, errors.Is(err, ErrIllegalAID))
	_, err = m.EndInstall()
	require.NoError(t, err)
	assert.Len(t, m.Contexts(), 1)
}

func TestRegisterDuplicateAndMalformed(t *testing.T) {
	m, _ := newManager(t)
	install(t, m, "A000000001", "", &recordingApplet{})

	require.NoError(t, m.BeginInstall(MustParseAID("A000000002"), AID{}))
	err := m.RegisterWithAID(&recordingApplet{}, []byte{0xA0, 0, 0, 0, 1})
	assert.True(t, errors.Is(err, ErrIllegalAID))
	err = m.RegisterWithAID(&recordingApplet{}, []byte{0xA0})
	assert.True(t, errors.Is(err, ErrIllegalAID))

	// the install fails because nothing registered
	_, err = m.EndInstall()
	assert.True(t, errors.Is(err, ErrIllegalAID))
	assert.Nil(t, m.Lookup(MustParseAID("A000000002")))
}

func TestInstallWindowMisuse(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.EndInstall()
	assert.True(t, errors.Is(err, ErrIllegalUse))

	require.NoError(t, m.BeginInstall(MustParseAID("A000000001"), AID{}))
	err = m.BeginInstall(MustParseAID("A000000002"), AID{})
	assert.True(t, errors.Is(err, ErrIllegalUse))
}

func TestAbortInstall(t *testing.T) {
	m, _ := newManager(t)
	assert.True(t, errors.Is(m.AbortInstall(), ErrIllegalUse))

	require.NoError(t, m.BeginInstall(MustParseAID("A000000001"), AID{}))
	require.NoError(t, m.Register(&recordingApplet{}))
	require.NoError(t, m.AbortInstall())

	assert.Nil(t, m.Lookup(MustParseAID("A000000001")))
	assert.Empty(t, m.Contexts())
	assert.Equal(t, memory.JCRE, m.CurrentContext())

	// the AID is free again
	install(t, m, "A000000001", "", &recordingApplet{})
	assert.Len(t, m.Contexts(), 1)
}

func TestInstallOwnsAllocations(t *testing.T) {
	m, arena := newManager(t)
	require.NoError(t, m.BeginInstall(MustParseAID("A000000001"), AID{}))
	cell, err := arena.NewByteArray(4, memory.Persistent)
	require.NoError(t, err)
	assert.Equal(t, "A000000001", m.CurrentAID().String())
	require.NoError(t, m.Register(&recordingApplet{}))
	ctx, err := m.EndInstall()
	require.NoError(t, err)

	assert.Equal(t, ctx.ID(), cell.Owner())
	assert.Equal(t, memory.JCRE, m.CurrentContext())
}

func TestSelectAndProcess(t *testing.T) {
	m, _ := newManager(t)
	a := &recordingApplet{m: m}
	ctx := install(t, m, "A0000000620301", "", a)
	assert.Equal(t, StateRegistered, ctx.State())

	require.NoError(t, m.Select(0, ctx.AID()))
	assert.Equal(t, StateSelected, ctx.State())
	assert.Equal(t, 1, a.selects)
	assert.Equal(t, ctx.ID(), m.SelectedContext())
	assert.True(t, m.IsAppletActive(ctx.AID()))

	require.NoError(t, m.Process(apdu.New(nil), true))
	assert.True(t, a.selecting)
	assert.Equal(t, ctx.ID(), a.processedIn)
	assert.False(t, m.SelectingApplet())
	assert.Equal(t, memory.JCRE, m.CurrentContext())
}

func TestSelectRefused(t *testing.T) {
	m, _ := newManager(t)
	a := &recordingApplet{refuse: true}
	ctx := install(t, m, "A000000001", "", a)

	err := m.Select(0, ctx.AID())
	assert.True(t, errors.Is(err, ErrSelectFailed))
	assert.Nil(t, m.Selected(0))
	assert.Equal(t, memory.JCRE, m.SelectedContext())
	assert.Equal(t, StateRegistered, ctx.State())
}

func TestSelectUnknown(t *testing.T) {
	m, _ := newManager(t)
	err := m.Select(0, MustParseAID("A000000009"))
	assert.Equal(t, uint16(0x6A82), jcerr.StatusWord(err))

	err = m.Process(apdu.New(nil), false)
	assert.True(t, errors.Is(err, ErrAppletNotFound))
}

func TestSelectDeselectsPrevious(t *testing.T) {
	m, _ := newManager(t)
	a := &recordingApplet{}
	b := &recordingApplet{}
	ca := install(t, m, "A000000001", "", a)
	cb := install(t, m, "A000000002", "", b)

	require.NoError(t, m.Select(0, ca.AID()))
	require.NoError(t, m.Select(0, cb.AID()))
	assert.Equal(t, 1, a.deselects)
	assert.Equal(t, StateDeselected, ca.State())
	assert.Equal(t, cb, m.Selected(0))

	// reselecting the active applet runs both hooks
	require.NoError(t, m.Select(0, cb.AID()))
	assert.Equal(t, 1, b.deselects)
	assert.Equal(t, 2, b.selects)
}

func TestResolvePartial(t *testing.T) {
	m, _ := newManager(t)
	ctx := install(t, m, "A0000000620301", "", &recordingApplet{})
	assert.Equal(t, ctx, m.Resolve([]byte{0xA0, 0, 0, 0, 0x62}))
	assert.Nil(t, m.Resolve([]byte{0xA1}))
}

func TestClearOnDeselect(t *testing.T) {
	m, arena := newManager(t)
	a := &recordingApplet{}
	ctx := install(t, m, "A000000001", "", a)
	b := &recordingApplet{}
	other := install(t, m, "A000000002", "", b)

	require.NoError(t, m.Select(0, ctx.AID()))
	m.SetChannel(0)
	m.push(ctx.ID())
	cod, err := arena.NewByteArray(2, memory.ClearOnDeselect)
	require.NoError(t, err)
	cor, err := arena.NewByteArray(2, memory.ClearOnReset)
	require.NoError(t, err)
	require.NoError(t, cod.Write(0, []byte{1, 2}))
	require.NoError(t, cor.Write(0, []byte{3, 4}))
	m.pop()

	require.NoError(t, m.Select(0, other.AID()))

	require.NoError(t, m.Select(0, ctx.AID()))
	got, err := cod.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, got)
	got, err = cor.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, got)

	require.NoError(t, m.OnCardReset())
	got, err = cor.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, got)
}

func TestCrossContextDenied(t *testing.T) {
	m, arena := newManager(t)
	ca := install(t, m, "A000000001", "", &recordingApplet{})
	cb := install(t, m, "A000000002", "", &recordingApplet{})

	require.NoError(t, m.Select(0, ca.AID()))
	m.push(ca.ID())
	cod, err := arena.NewByteArray(2, memory.ClearOnDeselect)
	require.NoError(t, err)
	m.pop()

	require.NoError(t, m.Select(0, cb.AID()))
	m.push(cb.ID())
	defer m.pop()
	_, err = cod.Get(0)
	assert.True(t, errors.Is(err, jcerr.ErrSecurity))
}

func TestDeferredPackageClear(t *testing.T) {
	m, arena := newManager(t)
	a := &multiApplet{}
	b := &multiApplet{}
	ca := install(t, m, "A00000000101", "A000000001", a)
	cb := install(t, m, "A00000000102", "A000000001", b)

	_, err := m.OpenChannel(1)
	require.NoError(t, err)

	require.NoError(t, m.Select(0, ca.AID()))
	m.push(ca.ID())
	cod, err := arena.NewByteArray(1, memory.ClearOnDeselect)
	require.NoError(t, err)
	require.NoError(t, cod.Set(0, 7))
	m.pop()

	require.NoError(t, m.Select(1, cb.AID()))
	assert.Equal(t, []bool{false}, a.alreadyActive)
	assert.Equal(t, []bool{true}, b.alreadyActive)

	// b's package sibling stays active, so a's memory survives
	m.Deselect(0)
	assert.Equal(t, []bool{true}, a.stillActive)
	v, err := cod.Get(0)
	require.NoError(t, err)
	assert.Equal(t, byte(7), v)

	m.Deselect(1)
	assert.Equal(t, []bool{false}, b.stillActive)
	v, err = cod.Get(0)
	require.NoError(t, err)
	assert.Equal(t, byte(0), v)
}

func TestNonMultiselectableOnTwoChannels(t *testing.T) {
	m, _ := newManager(t)
	ctx := install(t, m, "A000000001", "", &recordingApplet{})
	ch, err := m.OpenChannel(0)
	require.NoError(t, err)
	assert.Equal(t, 1, ch)

	require.NoError(t, m.Select(0, ctx.AID()))
	err = m.Select(ch, ctx.AID())
	assert.True(t, errors.Is(err, ErrConditionsNotSatisfied))
}

func TestChannels(t *testing.T) {
	m, _ := newManager(t, WithMaxChannels(2))
	assert.Equal(t, 1, m.OpenChannels())

	err := m.Select(1, MustParseAID("A000000001"))
	assert.True(t, errors.Is(err, ErrChannelNotSupported))

	ch, err := m.OpenChannel(0)
	require.NoError(t, err)
	assert.Equal(t, 1, ch)
	_, err = m.OpenChannel(0)
	assert.True(t, errors.Is(err, ErrChannelNotSupported))

	assert.True(t, errors.Is(m.CloseChannel(0), ErrFuncNotSupported))
	require.NoError(t, m.CloseChannel(1))
	assert.True(t, errors.Is(m.CloseChannel(1), ErrChannelNotSupported))
	assert.False(t, m.ChannelOpen(1))
}

func TestCardResetRunsNoHooks(t *testing.T) {
	m, arena := newManager(t)
	a := &recordingApplet{}
	ctx := install(t, m, "A000000001", "", a)
	_, err := m.OpenChannel(2)
	require.NoError(t, err)
	require.NoError(t, m.Select(2, ctx.AID()))

	j := arena.Journal()
	require.NoError(t, j.Begin())
	require.NoError(t, m.OnCardReset())

	assert.Equal(t, 0, a.deselects)
	assert.False(t, j.InProgress())
	assert.False(t, m.ChannelOpen(2))
	assert.Equal(t, 1, m.OpenChannels())
	assert.Equal(t, StateDeselected, ctx.State())
	assert.False(t, ctx.Active())
}

func TestShareable(t *testing.T) {
	m, _ := newManager(t)
	client := &recordingApplet{}
	cctx := install(t, m, "A000000001", "", client)
	srv := &server{allowed: cctx.AID()}
	sctx := install(t, m, "A000000002", "", srv)
	intruder := install(t, m, "A000000003", "", &recordingApplet{})

	m.push(cctx.ID())
	obj := m.GetShareableInterfaceObject(sctx.AID(), 0x42)
	assert.Equal(t, byte(0x42), obj)

	err := m.Invoke(sctx.AID(), func() error {
		srv.caller = m.PreviousContextAID()
		assert.Equal(t, sctx.ID(), m.CurrentContext())
		return nil
	})
	require.NoError(t, err)
	assert.True(t, srv.caller.Equals(cctx.AID()))
	m.pop()

	m.push(intruder.ID())
	assert.Nil(t, m.GetShareableInterfaceObject(sctx.AID(), 0x42))
	m.pop()

	assert.Nil(t, m.GetShareableInterfaceObject(MustParseAID("A000000009"), 0))
	err = m.Invoke(MustParseAID("A000000009"), func() error { return nil })
	assert.True(t, errors.Is(err, jcerr.ErrNullPointer))
}
