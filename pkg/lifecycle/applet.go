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
	"github.com/jeremyhahn/go-javacard/pkg/apdu"
)

// Applet is an installed card application.
type Applet interface {
	// Process handles one command APDU, including the SELECT that
	// activated the applet. An error is translated to a status word.
	Process(a *apdu.APDU) error
}

// Selectable applets are notified before they become active. Returning
// false refuses the selection.
type Selectable interface {
	Select() bool
}

// Deselectable applets are notified before they become inactive.
type Deselectable interface {
	Deselect()
}

// MultiSelectable applets may be active on more than one logical channel,
// and may share a package with applets active on other channels.
type MultiSelectable interface {
	// SelectMulti is called instead of Select. alreadyActive is true when
	// an applet of the same package is active on another channel.
	SelectMulti(alreadyActive bool) bool

	// DeselectMulti is called instead of Deselect. stillActive is true
	// when an applet of the same package stays active on another channel.
	DeselectMulti(stillActive bool)
}

// ShareableProvider applets expose objects to other contexts.
type ShareableProvider interface {
	// Shareable returns the object offered to the client, or nil to refuse.
	Shareable(client AID, parameter byte) any
}
