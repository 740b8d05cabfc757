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

// Package applets lists the applets bundled with the simulator so they can
// be installed by name from configuration or the command line.
package applets

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jeremyhahn/go-javacard/pkg/applets/cryptodemo"
	"github.com/jeremyhahn/go-javacard/pkg/applets/hello"
	"github.com/jeremyhahn/go-javacard/pkg/applets/wallet"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

// ErrUnknownApplet is returned by Lookup for a name that is not bundled.
var ErrUnknownApplet = errors.New("applets: unknown applet")

// Entry describes a bundled applet.
type Entry struct {
	Name        string
	Description string
	DefaultAID  lifecycle.AID
	Install     simulator.InstallFunc
}

var registry = map[string]Entry{
	"hello": {
		Name:        "hello",
		Description: "greeting, echo and counter",
		DefaultAID:  hello.AID,
		Install:     hello.Install,
	},
	"cryptodemo": {
		Name:        "cryptodemo",
		Description: "digest, cipher, MAC and signature services",
		DefaultAID:  cryptodemo.AID,
		Install:     cryptodemo.Install,
	},
	"wallet": {
		Name:        "wallet",
		Description: "PIN protected electronic purse",
		DefaultAID:  wallet.AID,
		Install:     wallet.Install,
	},
}

// Lookup returns the bundled applet called name.
func Lookup(name string) (Entry, error) {
	e, ok := registry[name]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownApplet, name)
	}
	return e, nil
}

// Names returns the bundled applet names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all bundled applets sorted by name.
func Entries() []Entry {
	out := make([]Entry, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name])
	}
	return out
}

// Install installs the named applet. A zero aid installs it under its
// default AID.
func Install(rt *simulator.Runtime, name string, aid lifecycle.AID, params []byte) (*lifecycle.Context, error) {
	e, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if aid.IsZero() {
		aid = e.DefaultAID
	}
	return rt.Install(aid, lifecycle.AID{}, params, e.Install)
}
