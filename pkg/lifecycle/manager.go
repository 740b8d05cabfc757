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

// Package lifecycle owns applet registration, selection and execution
// contexts.
//
// Each registered applet runs in its own context. The Manager tracks which
// context is selected on each logical channel and which context is
// executing, and it triggers transient memory clearing on deselect and
// card reset.
package lifecycle

import (
	"slices"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/metrics"
	"github.com/jeremyhahn/go-javacard/pkg/transaction"
)

const (
	// DefaultMaxChannels is the number of logical channels, including the
	// basic channel.
	DefaultMaxChannels = 4

	// MaxChannels is the largest number of logical channels ISO 7816-4
	// can address.
	MaxChannels = 20
)

var (
	// ErrIllegalUse is returned when the install window is misused.
	ErrIllegalUse = jcerr.New(jcerr.KindSystem, jcerr.SysIllegalUse)

	// ErrAppletNotFound is returned when no applet matches a SELECT.
	ErrAppletNotFound = jcerr.ISO(iso7816.SWFileNotFound)

	// ErrSelectFailed is returned when the selection hook refuses.
	ErrSelectFailed = jcerr.ISO(iso7816.SWAppletSelectFailed)

	// ErrConditionsNotSatisfied is returned when selecting an applet that
	// cannot be active on two channels at once.
	ErrConditionsNotSatisfied = jcerr.ISO(iso7816.SWConditionsNotSatisfied)

	// ErrChannelNotSupported is returned for closed or unavailable channels.
	ErrChannelNotSupported = jcerr.ISO(iso7816.SWLogicalChannelNotSupported)

	// ErrFuncNotSupported is returned when closing the basic channel.
	ErrFuncNotSupported = jcerr.ISO(iso7816.SWFuncNotSupported)
)

// State is the lifecycle state of a context.
type State uint8

const (
	StateRegistered State = iota + 1
	StateSelected
	StateDeselected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateSelected:
		return "selected"
	case StateDeselected:
		return "deselected"
	default:
		return "unregistered"
	}
}

// Context is the execution context of one applet instance.
type Context struct {
	id       memory.ContextID
	aid      AID
	pkg      AID
	applet   Applet
	state    State
	channels []int
}

// ID returns the context identifier.
func (c *Context) ID() memory.ContextID { return c.id }

// AID returns the instance AID.
func (c *Context) AID() AID { return c.aid }

// PackageAID returns the AID of the package the applet belongs to.
func (c *Context) PackageAID() AID { return c.pkg }

// Applet returns the applet instance.
func (c *Context) Applet() Applet { return c.applet }

// State returns the lifecycle state.
func (c *Context) State() State { return c.state }

// Channels returns the channels the context is selected on.
func (c *Context) Channels() []int { return slices.Clone(c.channels) }

// Active reports whether the context is selected on any channel.
func (c *Context) Active() bool { return len(c.channels) > 0 }

func (c *Context) activeOn(channel int) bool {
	return slices.Contains(c.channels, channel)
}

type channel struct {
	open     bool
	selected *Context
}

type installWindow struct {
	id         memory.ContextID
	aid        AID
	pkg        AID
	registered *Context
}

// Manager is the context and lifecycle manager of one card.
type Manager struct {
	journal *transaction.Journal
	arena   *memory.Arena
	logger  logger.Logger

	contexts []*Context
	nextID   memory.ContextID
	channels []channel
	current  int
	stack    []memory.ContextID
	install  *installWindow
	// deferred holds contexts whose clear-on-deselect memory is kept
	// until no context of their package is active.
	deferred  map[AID][]memory.ContextID
	selecting bool
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager logger
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMaxChannels sets the number of logical channels
func WithMaxChannels(n int) Option {
	return func(m *Manager) {
		if n >= 1 && n <= MaxChannels {
			m.channels = make([]channel, n)
		}
	}
}

// NewManager creates a manager and registers it as the arena's context
// tracker.
func NewManager(arena *memory.Arena, opts ...Option) *Manager {
	m := &Manager{
		journal:  arena.Journal(),
		arena:    arena,
		logger:   logger.NewNoOp(),
		nextID:   memory.JCRE + 1,
		channels: make([]channel, DefaultMaxChannels),
		deferred: make(map[AID][]memory.ContextID),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.channels[0].open = true
	arena.SetTracker(m)
	return m
}

// BeginInstall opens the install window for an applet instance. Until
// EndInstall, the instance's context is current so memory it allocates
// is owned by it.
func (m *Manager) BeginInstall(instanceAID, packageAID AID) error {
	if m.install != nil {
		return ErrIllegalUse.WithMsg("install of %s in progress", m.install.aid)
	}
	if instanceAID.IsZero() {
		return ErrIllegalAID.WithMsg("empty instance AID")
	}
	if packageAID.IsZero() {
		packageAID = instanceAID
	}
	m.install = &installWindow{id: m.nextID, aid: instanceAID, pkg: packageAID}
	m.nextID++
	m.push(m.install.id)
	return nil
}

// Register registers applet under the instance AID of the install window.
func (m *Manager) Register(applet Applet) error {
	if m.install == nil {
		return ErrIllegalAID.WithMsg("register outside install window")
	}
	return m.register(applet, m.install.aid)
}

// RegisterWithAID registers applet under the given AID bytes.
func (m *Manager) RegisterWithAID(applet Applet, aid []byte) error {
	if m.install == nil {
		return ErrIllegalAID.WithMsg("register outside install window")
	}
	a, err := NewAID(aid)
	if err != nil {
		return err
	}
	return m.register(applet, a)
}

func (m *Manager) register(applet Applet, aid AID) error {
	if m.install.registered != nil {
		return ErrIllegalAID.WithMsg("applet already registered as %s", m.install.registered.aid)
	}
	if m.Lookup(aid) != nil {
		return ErrIllegalAID.WithMsg("AID %s in use", aid)
	}
	ctx := &Context{
		id:     m.install.id,
		aid:    aid,
		pkg:    m.install.pkg,
		applet: applet,
		state:  StateRegistered,
	}
	m.contexts = append(m.contexts, ctx)
	m.install.registered = ctx
	m.logger.Debug("applet registered",
		logger.String("aid", aid.String()),
		logger.Int("context", int(ctx.id)))
	metrics.SetAppletsInstalled(len(m.contexts))
	return nil
}

// EndInstall closes the install window. It fails when the applet did not
// register, which makes the install fail.
func (m *Manager) EndInstall() (*Context, error) {
	if m.install == nil {
		return nil, ErrIllegalUse.WithMsg("no install in progress")
	}
	w := m.install
	m.install = nil
	m.pop()
	if w.registered == nil {
		m.logger.Warn("install failed, applet did not register", logger.String("aid", w.aid.String()))
		return nil, ErrIllegalAID.WithMsg("applet %s did not register", w.aid)
	}
	return w.registered, nil
}

// AbortInstall closes the install window and forgets any applet that
// registered in it. It is used when the install method fails after
// registering.
func (m *Manager) AbortInstall() error {
	if m.install == nil {
		return ErrIllegalUse.WithMsg("no install in progress")
	}
	w := m.install
	m.install = nil
	m.pop()
	if w.registered != nil {
		m.contexts = slices.DeleteFunc(m.contexts, func(c *Context) bool { return c == w.registered })
		metrics.SetAppletsInstalled(len(m.contexts))
	}
	m.logger.Warn("install aborted", logger.String("aid", w.aid.String()))
	return nil
}

// Lookup returns the context registered under aid, or nil.
func (m *Manager) Lookup(aid AID) *Context {
	for _, c := range m.contexts {
		if c.aid.Equals(aid) {
			return c
		}
	}
	return nil
}

// LookupBytes returns the context whose AID equals b, or nil.
func (m *Manager) LookupBytes(b []byte) *Context {
	for _, c := range m.contexts {
		if c.aid.EqualsBytes(b) {
			return c
		}
	}
	return nil
}

// Resolve returns the context selected by a SELECT DF name: an exact
// match first, then the first registered AID the name is a prefix of.
func (m *Manager) Resolve(name []byte) *Context {
	if c := m.LookupBytes(name); c != nil {
		return c
	}
	for _, c := range m.contexts {
		if c.aid.PartialEquals(name) {
			return c
		}
	}
	return nil
}

// Context returns the context with the given id, or nil.
func (m *Manager) Context(id memory.ContextID) *Context {
	for _, c := range m.contexts {
		if c.id == id {
			return c
		}
	}
	return nil
}

// Contexts returns the registered contexts in registration order.
func (m *Manager) Contexts() []*Context {
	return slices.Clone(m.contexts)
}

func (m *Manager) checkChannel(ch int) error {
	if ch < 0 || ch >= len(m.channels) || !m.channels[ch].open {
		return ErrChannelNotSupported.WithMsg("channel %d not open", ch)
	}
	return nil
}

// Select makes the context registered under aid the selected context of
// channel. The context currently selected on the channel is deselected
// first.
func (m *Manager) Select(ch int, aid AID) error {
	if err := m.checkChannel(ch); err != nil {
		return err
	}
	target := m.Lookup(aid)
	if target == nil {
		return ErrAppletNotFound.WithMsg("no applet %s", aid)
	}
	return m.SelectContext(ch, target)
}

// SelectContext is Select for a resolved context.
func (m *Manager) SelectContext(ch int, target *Context) error {
	if err := m.checkChannel(ch); err != nil {
		return err
	}
	_, isMulti := target.applet.(MultiSelectable)
	elsewhere := m.packageActiveElsewhere(target.pkg, ch)
	if elsewhere && !isMulti {
		return ErrConditionsNotSatisfied.WithMsg("applet %s package active on another channel", target.aid)
	}

	m.Deselect(ch)

	m.push(target.id)
	ok := true
	switch a := target.applet.(type) {
	case MultiSelectable:
		ok = a.SelectMulti(elsewhere)
	case Selectable:
		ok = a.Select()
	}
	m.pop()
	if !ok {
		m.logger.Debug("applet refused selection", logger.String("aid", target.aid.String()), logger.Int("channel", ch))
		return ErrSelectFailed.WithMsg("applet %s refused selection", target.aid)
	}

	m.channels[ch].selected = target
	target.channels = append(target.channels, ch)
	target.state = StateSelected
	m.logger.Debug("applet selected", logger.String("aid", target.aid.String()), logger.Int("channel", ch))
	return nil
}

// packageActiveElsewhere reports whether a context of pkg is selected on
// a channel other than ch.
func (m *Manager) packageActiveElsewhere(pkg AID, ch int) bool {
	for i, c := range m.channels {
		if i != ch && c.selected != nil && c.selected.pkg.Equals(pkg) {
			return true
		}
	}
	return false
}

// Deselect deselects the context selected on channel, if any, and clears
// its clear-on-deselect memory once no context of its package remains
// active.
func (m *Manager) Deselect(ch int) {
	if ch < 0 || ch >= len(m.channels) {
		return
	}
	ctx := m.channels[ch].selected
	if ctx == nil {
		return
	}
	stillActive := m.packageActiveElsewhere(ctx.pkg, ch)

	m.push(ctx.id)
	switch a := ctx.applet.(type) {
	case MultiSelectable:
		a.DeselectMulti(stillActive)
	case Deselectable:
		a.Deselect()
	}
	m.pop()

	m.channels[ch].selected = nil
	ctx.channels = slices.DeleteFunc(ctx.channels, func(c int) bool { return c == ch })
	if !ctx.Active() {
		ctx.state = StateDeselected
	}
	m.logger.Debug("applet deselected", logger.String("aid", ctx.aid.String()), logger.Int("channel", ch))

	if stillActive {
		if !ctx.Active() && !slices.Contains(m.deferred[ctx.pkg], ctx.id) {
			m.deferred[ctx.pkg] = append(m.deferred[ctx.pkg], ctx.id)
		}
		return
	}
	owners := append(m.deferred[ctx.pkg], ctx.id)
	delete(m.deferred, ctx.pkg)
	m.arena.ClearOnDeselect(owners...)
}

// OnCardReset models loss of power: any open transaction is rolled back,
// all transient memory is cleared, channels other than the basic channel
// are closed and every selection is forgotten without running hooks.
func (m *Manager) OnCardReset() error {
	err := m.journal.Rollback()
	m.arena.ClearOnCardReset()
	for i := range m.channels {
		m.channels[i].selected = nil
		m.channels[i].open = i == 0
	}
	for _, c := range m.contexts {
		c.channels = nil
		if c.state == StateSelected {
			c.state = StateDeselected
		}
	}
	clear(m.deferred)
	m.stack = m.stack[:0]
	m.install = nil
	m.current = 0
	m.selecting = false
	m.logger.Debug("card reset")
	return err
}

// OpenChannel opens a logical channel. ch 0 requests the lowest free
// channel; otherwise the given channel is opened. The opened channel
// number is returned.
func (m *Manager) OpenChannel(ch int) (int, error) {
	if ch == 0 {
		for i := 1; i < len(m.channels); i++ {
			if !m.channels[i].open {
				ch = i
				break
			}
		}
		if ch == 0 {
			return 0, ErrChannelNotSupported.WithMsg("no free channel")
		}
	}
	if ch < 1 || ch >= len(m.channels) || m.channels[ch].open {
		return 0, ErrChannelNotSupported.WithMsg("channel %d unavailable", ch)
	}
	m.channels[ch].open = true
	m.logger.Debug("channel opened", logger.Int("channel", ch))
	return ch, nil
}

// CloseChannel deselects the context on ch and closes it. The basic
// channel cannot be closed.
func (m *Manager) CloseChannel(ch int) error {
	if ch == 0 {
		return ErrFuncNotSupported.WithMsg("basic channel cannot be closed")
	}
	if err := m.checkChannel(ch); err != nil {
		return err
	}
	m.Deselect(ch)
	m.channels[ch].open = false
	m.logger.Debug("channel closed", logger.Int("channel", ch))
	return nil
}

// OpenChannels returns the number of open channels.
func (m *Manager) OpenChannels() int {
	n := 0
	for _, c := range m.channels {
		if c.open {
			n++
		}
	}
	return n
}

// ChannelOpen reports whether ch is open.
func (m *Manager) ChannelOpen(ch int) bool {
	return m.checkChannel(ch) == nil
}

// SetChannel sets the channel of the command being processed.
func (m *Manager) SetChannel(ch int) {
	m.current = ch
}

// CurrentlySelectedChannel returns the channel of the command being
// processed.
func (m *Manager) CurrentlySelectedChannel() int {
	return m.current
}

// Selected returns the context selected on ch, or nil.
func (m *Manager) Selected(ch int) *Context {
	if ch < 0 || ch >= len(m.channels) {
		return nil
	}
	return m.channels[ch].selected
}

// SelectedContext returns the context selected on the current channel,
// or JCRE.
func (m *Manager) SelectedContext() memory.ContextID {
	if c := m.Selected(m.current); c != nil {
		return c.id
	}
	return memory.JCRE
}

// CurrentContext returns the executing context.
func (m *Manager) CurrentContext() memory.ContextID {
	if len(m.stack) == 0 {
		return memory.JCRE
	}
	return m.stack[len(m.stack)-1]
}

// PreviousContext returns the context that was executing before the
// current one, or JCRE.
func (m *Manager) PreviousContext() memory.ContextID {
	if len(m.stack) < 2 {
		return memory.JCRE
	}
	return m.stack[len(m.stack)-2]
}

// PreviousContextAID returns the AID of the previous context. It is the
// zero AID for JCRE.
func (m *Manager) PreviousContextAID() AID {
	return m.aidOf(m.PreviousContext())
}

// CurrentAID returns the AID of the executing context.
func (m *Manager) CurrentAID() AID {
	return m.aidOf(m.CurrentContext())
}

func (m *Manager) aidOf(id memory.ContextID) AID {
	if id == memory.JCRE {
		return AID{}
	}
	if m.install != nil && m.install.id == id {
		return m.install.aid
	}
	if c := m.Context(id); c != nil {
		return c.aid
	}
	return AID{}
}

// SelectingApplet reports whether the command being processed is the
// SELECT that activated the applet.
func (m *Manager) SelectingApplet() bool {
	return m.selecting
}

// IsAppletActive reports whether the applet registered under aid is
// selected on any channel.
func (m *Manager) IsAppletActive(aid AID) bool {
	c := m.Lookup(aid)
	return c != nil && c.Active()
}

// Process hands the command to the applet selected on the current
// channel, running it in the applet's context. selecting marks the
// SELECT command that activated the applet.
func (m *Manager) Process(a *apdu.APDU, selecting bool) error {
	ctx := m.Selected(m.current)
	if ctx == nil {
		return ErrAppletNotFound.WithMsg("no applet selected on channel %d", m.current)
	}
	m.selecting = selecting
	m.push(ctx.id)
	defer func() {
		m.pop()
		m.selecting = false
	}()
	return ctx.applet.Process(a)
}

// GetShareableInterfaceObject asks the applet registered under server
// for a shareable object on behalf of the current context. It returns
// nil when the server is unknown or refuses.
func (m *Manager) GetShareableInterfaceObject(server AID, parameter byte) any {
	ctx := m.Lookup(server)
	if ctx == nil {
		return nil
	}
	p, ok := ctx.applet.(ShareableProvider)
	if !ok {
		return nil
	}
	client := m.CurrentAID()
	m.push(ctx.id)
	defer m.pop()
	return p.Shareable(client, parameter)
}

// Invoke runs fn in the context of the applet registered under server, as
// a call through a shareable interface. Inside fn, PreviousContextAID is
// the caller.
func (m *Manager) Invoke(server AID, fn func() error) error {
	ctx := m.Lookup(server)
	if ctx == nil {
		return jcerr.ErrNullPointer.WithMsg("no applet %s", server)
	}
	m.push(ctx.id)
	defer m.pop()
	return fn()
}

func (m *Manager) push(id memory.ContextID) {
	m.stack = append(m.stack, id)
}

func (m *Manager) pop() {
	if len(m.stack) > 0 {
		m.stack = m.stack[:len(m.stack)-1]
	}
}
