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
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/memory"
	"github.com/jeremyhahn/go-javacard/pkg/metrics"
	"github.com/jeremyhahn/go-javacard/pkg/security"
	"github.com/jeremyhahn/go-javacard/pkg/transaction"
)

// InstallFunc is an applet's install method. It allocates the applet's
// persistent state and registers it through sys.
type InstallFunc func(sys *System, params []byte) error

// Runtime is one simulated card.
type Runtime struct {
	mu      sync.Mutex
	config  *Config
	session string
	logger  logger.Logger

	journal *transaction.Journal
	arena   *memory.Arena
	manager *lifecycle.Manager
	out     *apdu.ResponseCollector
	apdu    *apdu.APDU
	system  *System

	defaultAID lifecycle.AID
	lastReset  time.Time
	// needsReset is set at power up and when the journal failed; the next
	// command resets the card first.
	needsReset bool
}

// New creates a powered-off card. The first command powers it up.
func New(config *Config) (*Runtime, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	base := config.Logger
	if base == nil {
		base = logger.NewNoOp()
	}
	session := uuid.NewString()
	log := base.With(logger.String("session", session))

	journal := transaction.New(config.CommitCapacity, transaction.WithLogger(log))
	arena := memory.NewArena(journal,
		memory.WithTransientCapacity(config.TransientCapacity),
		memory.WithLogger(log))
	manager := lifecycle.NewManager(arena,
		lifecycle.WithLogger(log),
		lifecycle.WithMaxChannels(config.MaxChannels))
	out := apdu.NewResponseCollector()

	r := &Runtime{
		config:  config,
		session: session,
		logger:  log,
		journal: journal,
		arena:   arena,
		manager: manager,
		out:     out,
		apdu: apdu.New(out,
			apdu.WithBufferSize(config.BufferSize),
			apdu.WithBlockSize(config.BlockSize),
			apdu.WithProtocol(config.Protocol)),
		needsReset: true,
	}
	r.system = &System{rt: r, keys: security.NewKeyBuilder(arena)}
	log.Debug("runtime created",
		logger.Int("protocol", int(config.Protocol)),
		logger.Int("channels", config.MaxChannels))
	return r, nil
}

// Session returns the runtime's session ID.
func (r *Runtime) Session() string {
	return r.session
}

// System returns the applet services of this card.
func (r *Runtime) System() *System {
	return r.system
}

// Manager returns the lifecycle manager.
func (r *Runtime) Manager() *lifecycle.Manager {
	return r.manager
}

// ATR returns the answer to reset.
func (r *Runtime) ATR() []byte {
	return slices.Clone(r.config.ATR)
}

// Protocol returns the transport protocol.
func (r *Runtime) Protocol() byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.config.Protocol
}

// SetProtocol changes the transport protocol used for later commands.
func (r *Runtime) SetProtocol(p byte) error {
	if p != apdu.ProtocolT0 && p != apdu.ProtocolT1 {
		return fmt.Errorf("%w: T=%d", ErrInvalidProtocol, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Protocol = p
	return nil
}

// Install runs fn as the install method of a new applet instance. The
// applet must register exactly once; otherwise the install fails and the
// instance is forgotten. A zero packageAID puts the instance in a package
// of its own.
func (r *Runtime) Install(instanceAID, packageAID lifecycle.AID, params []byte, fn InstallFunc) (*lifecycle.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.manager.BeginInstall(instanceAID, packageAID); err != nil {
		return nil, err
	}
	if err := r.runInstall(fn, params); err != nil {
		_ = r.manager.AbortInstall()
		r.logger.Warn("applet install failed",
			logger.String("aid", instanceAID.String()),
			logger.Error(err))
		return nil, err
	}
	ctx, err := r.manager.EndInstall()
	if err != nil {
		return nil, err
	}
	r.logger.Info("applet installed",
		logger.String("aid", ctx.AID().String()),
		logger.String("package", ctx.PackageAID().String()))
	return ctx, nil
}

func (r *Runtime) runInstall(fn InstallFunc, params []byte) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = recovered(v)
		}
	}()
	return fn(r.system, slices.Clone(params))
}

// SetDefaultApplet makes aid the applet selected on the basic channel
// after reset and on channels opened from it.
func (r *Runtime) SetDefaultApplet(aid lifecycle.AID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.manager.Lookup(aid) == nil {
		return lifecycle.ErrAppletNotFound.WithMsg("no applet %s", aid)
	}
	r.defaultAID = aid
	return nil
}

// DefaultApplet returns the default applet AID, or the zero AID.
func (r *Runtime) DefaultApplet() lifecycle.AID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.defaultAID
}

// Reset models a card reset: open transactions roll back, transient
// memory is cleared, logical channels close and the default applet, if
// any, is selected on the basic channel.
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reset()
}

func (r *Runtime) reset() error {
	err := r.manager.OnCardReset()
	r.apdu.Reset()
	r.out.Reset()
	r.lastReset = time.Now()
	r.needsReset = false
	if err != nil {
		r.logger.Error("rollback failed during reset", logger.Error(err))
	}
	if !r.defaultAID.IsZero() {
		if serr := r.manager.Select(0, r.defaultAID); serr != nil {
			r.logger.Warn("default applet not selected",
				logger.String("aid", r.defaultAID.String()),
				logger.Error(serr))
		}
	}
	r.logger.Debug("card reset", logger.Hex("atr", r.config.ATR))
	return err
}

// Transmit processes one command APDU and returns the response data
// followed by the two status bytes.
func (r *Runtime) Transmit(command []byte) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transmit(command)
}

// TransmitContext is Transmit that gives up before dispatch when ctx is
// done.
func (r *Runtime) TransmitContext(ctx context.Context, command []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.transmit(command), nil
}

// SelectApplet sends SELECT by DF name for aid on the basic channel and
// returns the response.
func (r *Runtime) SelectApplet(aid lifecycle.AID) *apdu.Response {
	cmd := &apdu.Command{
		CLA:  0x00,
		INS:  iso7816.InsSelect,
		P1:   iso7816.SelectByDFName,
		Data: aid.Bytes(),
	}
	resp, err := apdu.ParseResponse(r.Transmit(cmd.Bytes()))
	if err != nil {
		return apdu.NewResponse(nil, jcerr.SWUnknown)
	}
	return resp
}

func (r *Runtime) transmit(command []byte) []byte {
	if r.needsReset {
		_ = r.reset()
	}
	start := time.Now()
	r.out.Reset()

	err := r.apdu.Load(r.config.Protocol, command)
	if err == nil {
		err = r.dispatch()
	}

	sw := jcerr.StatusWord(err)
	var data []byte
	if err == nil {
		data = r.out.Bytes()
	} else {
		metrics.RecordError(jcerr.KindOf(err).String())
	}

	if r.journal.InProgress() {
		r.logger.Debug("aborting transaction left open by command")
		if aerr := r.journal.Abort(); aerr != nil {
			r.logger.Error("abort failed", logger.Error(aerr))
		}
	}
	if r.journal.Failed() {
		r.needsReset = true
	}

	cla, ins := r.apdu.CLA(), r.apdu.INS()
	ch := r.manager.CurrentlySelectedChannel()
	r.apdu.Reset()
	r.out.Reset()

	metrics.RecordCommand(fmt.Sprintf("%02X", ins), fmt.Sprintf("%04X", sw), time.Since(start).Seconds())
	fields := []logger.Field{
		logger.Byte("cla", cla),
		logger.Byte("ins", ins),
		logger.String("sw", fmt.Sprintf("%04X", sw)),
		logger.Int("channel", ch),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	r.logger.Debug("command processed", fields...)

	return binary.BigEndian.AppendUint16(data, sw)
}

// dispatch runs the loaded command, converting an applet panic into an
// error.
func (r *Runtime) dispatch() (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = recovered(v)
			r.logger.Error("applet panicked", logger.Error(err))
		}
	}()
	return r.handle()
}

// recovered turns a recovered panic value into an error. Card errors keep
// their status word.
func recovered(v any) error {
	if e, ok := v.(error); ok {
		return fmt.Errorf("%w: %w", ErrAppletPanic, e)
	}
	return fmt.Errorf("%w: %v", ErrAppletPanic, v)
}

// Snapshot returns the card state for the metrics collector.
func (r *Runtime) Snapshot() metrics.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return metrics.Snapshot{
		AppletsInstalled: len(r.manager.Contexts()),
		OpenChannels:     r.manager.OpenChannels(),
		TransientBytes:   r.arena.TransientUsed(),
		LastReset:        r.lastReset,
	}
}
