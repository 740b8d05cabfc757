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

// Package simulator runs Java Card applets without a card.
//
// # Overview
//
// A Runtime owns one simulated card: the transaction journal, the memory
// arena, the lifecycle manager that tracks applets and logical channels,
// and the APDU exchange state. Runtimes share no state, so tests can run
// any number of them in parallel.
//
// # Commands
//
// Transmit drives one command APDU to completion and returns the response
// data followed by the status word. The runtime handles two commands
// itself:
//
//   - SELECT by DF name (00 A4 04 xx) resolves an applet by full or
//     partial AID, selects it on the command's logical channel and passes
//     the SELECT to it. A SELECT that matches no applet is forwarded to
//     the applet already selected on the channel, if any.
//   - MANAGE CHANNEL (00 70 00|80 xx) opens and closes logical channels.
//
// Every other command goes to the applet selected on the channel. An error
// returned by the applet is translated into exactly one status word, any
// transaction left open is aborted and the APDU is reset before the next
// command is accepted.
//
// # Basic Usage
//
//	rt, err := simulator.New(simulator.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	aid := lifecycle.MustParseAID("A0000000620301")
//	_, err = rt.Install(aid, lifecycle.AID{}, nil, func(sys *simulator.System, params []byte) error {
//	    return sys.Register(myApplet{})
//	})
//	resp := rt.Transmit([]byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xA0, 0x00, 0x00, 0x00, 0x62, 0x03, 0x01})
//
// # Applet Services
//
// Applets reach the card's services through the System passed to their
// install function: transactions, transient and persistent arrays,
// registration, context queries, shareable objects and the key builder.
package simulator
