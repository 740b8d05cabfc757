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

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fixedSource struct {
	snap Snapshot
}

func (f fixedSource) Snapshot() Snapshot {
	return f.snap
}

func TestCollectOnce(t *testing.T) {
	Enable()
	src := fixedSource{snap: Snapshot{
		AppletsInstalled: 3,
		OpenChannels:     2,
		TransientBytes:   128,
		LastReset:        time.Now().Add(-time.Minute),
	}}

	CollectOnce(src)

	assert.Equal(t, float64(3), testutil.ToFloat64(AppletsInstalled))
	assert.Equal(t, float64(2), testutil.ToFloat64(OpenChannels))
	assert.Equal(t, float64(128), testutil.ToFloat64(TransientBytes))
	assert.GreaterOrEqual(t, testutil.ToFloat64(CardUptime), float64(60))
}

func TestCollectOnceDisabled(t *testing.T) {
	Enable()
	CollectOnce(fixedSource{snap: Snapshot{OpenChannels: 1}})

	Disable()
	defer Enable()
	CollectOnce(fixedSource{snap: Snapshot{OpenChannels: 4}})

	assert.Equal(t, float64(1), testutil.ToFloat64(OpenChannels))
}

func TestStateCollectorStop(t *testing.T) {
	Enable()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewStateCollector(ctx, fixedSource{snap: Snapshot{TransientBytes: 7}}, 10*time.Millisecond)
	done := make(chan struct{})
	go func() {
		c.Start()
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.Equal(t, float64(7), testutil.ToFloat64(TransientBytes))
}
