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
	"time"
)

// Snapshot is a point-in-time view of card state.
type Snapshot struct {
	AppletsInstalled int
	OpenChannels     int
	TransientBytes   int
	LastReset        time.Time
}

// StateSource provides card state snapshots to the collector.
type StateSource interface {
	Snapshot() Snapshot
}

// StateCollector periodically samples a StateSource into gauges.
type StateCollector struct {
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	source   StateSource
}

// NewStateCollector creates a new card state collector.
func NewStateCollector(ctx context.Context, source StateSource, interval time.Duration) *StateCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	return &StateCollector{
		ctx:      collectorCtx,
		cancel:   cancel,
		interval: interval,
		source:   source,
	}
}

// Start begins sampling. It blocks until the context is cancelled or Stop
// is called.
func (sc *StateCollector) Start() {
	ticker := time.NewTicker(sc.interval)
	defer ticker.Stop()

	// Collect initial metrics immediately
	sc.collect()

	for {
		select {
		case <-sc.ctx.Done():
			return
		case <-ticker.C:
			sc.collect()
		}
	}
}

// Stop stops the collector.
func (sc *StateCollector) Stop() {
	sc.cancel()
}

func (sc *StateCollector) collect() {
	CollectOnce(sc.source)
}

// CollectOnce samples source a single time.
func CollectOnce(source StateSource) {
	if !IsEnabled() {
		return
	}

	snap := source.Snapshot()
	AppletsInstalled.Set(float64(snap.AppletsInstalled))
	OpenChannels.Set(float64(snap.OpenChannels))
	TransientBytes.Set(float64(snap.TransientBytes))
	if !snap.LastReset.IsZero() {
		CardUptime.Set(time.Since(snap.LastReset).Seconds())
	}
}

// StartStateCollector starts a collector in a new goroutine and returns it.
func StartStateCollector(ctx context.Context, source StateSource, interval time.Duration) *StateCollector {
	collector := NewStateCollector(ctx, source, interval)
	go collector.Start()
	return collector
}
