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
	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
	"github.com/jeremyhahn/go-javacard/pkg/jcerr"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
)

// handle routes the loaded command to the runtime's own commands or to
// the applet selected on its channel.
func (r *Runtime) handle() error {
	a := r.apdu
	ch := apdu.ChannelOf(a.CLA())
	if !r.manager.ChannelOpen(ch) {
		return lifecycle.ErrChannelNotSupported.WithMsg("channel %d not open", ch)
	}
	r.manager.SetChannel(ch)

	if a.IsISOInterindustryCLA() {
		buf := a.Buffer()
		switch a.INS() {
		case iso7816.InsSelect:
			if buf[iso7816.OffsetP1] == iso7816.SelectByDFName {
				return r.selectByName(ch)
			}
		case iso7816.InsManageChannel:
			return r.manageChannel(ch)
		}
	}
	return r.manager.Process(a, false)
}

// selectByName handles SELECT by DF name on ch.
func (r *Runtime) selectByName(ch int) error {
	name := r.apdu.CommandData()
	target := r.manager.Resolve(name)
	if target == nil {
		if r.manager.Selected(ch) != nil {
			// not an applet name; the selected applet may know it as a file
			return r.manager.Process(r.apdu, false)
		}
		return lifecycle.ErrAppletNotFound.WithMsg("no applet matches %X", name)
	}
	if err := r.manager.SelectContext(ch, target); err != nil {
		return err
	}
	return r.manager.Process(r.apdu, true)
}

// manageChannel handles MANAGE CHANNEL issued on origin.
func (r *Runtime) manageChannel(origin int) error {
	buf := r.apdu.Buffer()
	p1, p2 := buf[iso7816.OffsetP1], buf[iso7816.OffsetP2]
	switch p1 {
	case iso7816.ManageChannelOpen:
		ch, err := r.manager.OpenChannel(int(p2))
		if err != nil {
			return err
		}
		if err := r.selectOnOpen(origin, ch); err != nil {
			_ = r.manager.CloseChannel(ch)
			return err
		}
		r.logger.Debug("logical channel opened", logger.Int("channel", ch), logger.Int("origin", origin))
		if p2 != 0 {
			return nil
		}
		buf[0] = byte(ch)
		return r.apdu.SetOutgoingAndSend(0, 1)
	case iso7816.ManageChannelClose:
		ch := int(p2)
		if ch == 0 {
			ch = origin
		}
		return r.manager.CloseChannel(ch)
	}
	return jcerr.ISO(iso7816.SWIncorrectP1P2).WithMsg("MANAGE CHANNEL P1 %02X", p1)
}

// selectOnOpen selects the applet a new channel starts with: the default
// applet when opened from the basic channel, otherwise the applet active
// on the origin channel.
func (r *Runtime) selectOnOpen(origin, ch int) error {
	var target *lifecycle.Context
	if origin == 0 {
		if !r.defaultAID.IsZero() {
			target = r.manager.Lookup(r.defaultAID)
		}
	} else {
		target = r.manager.Selected(origin)
	}
	if target == nil {
		return nil
	}
	return r.manager.SelectContext(ch, target)
}
