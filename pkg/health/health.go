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

// Package health reports whether a simulated card is usable. Checks are
// served next to the metrics endpoint as liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is operating normally.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the component is not functioning.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the component works with reduced capacity.
	StatusDegraded Status = "degraded"
)

// CheckResult represents the result of a single health check.
type CheckResult struct {
	Name    string        `json:"name"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) CheckResult

// Checker runs named checks.
type Checker struct {
	mu        sync.RWMutex
	startTime time.Time
	checks    map[string]CheckFunc
}

// NewChecker creates a new health checker.
func NewChecker() *Checker {
	return &Checker{
		checks:    make(map[string]CheckFunc),
		startTime: time.Now(),
	}
}

// RegisterCheck adds a health check with the given name, replacing any
// check of the same name.
func (c *Checker) RegisterCheck(name string, check CheckFunc) {
	if check == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Live reports the process is running.
func (c *Checker) Live(ctx context.Context) CheckResult {
	return CheckResult{
		Name:    "liveness",
		Status:  StatusHealthy,
		Message: fmt.Sprintf("up %s", c.Uptime().Round(time.Second)),
	}
}

// Ready runs every registered check, sorted by name.
func (c *Checker) Ready(ctx context.Context) []CheckResult {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()
	sort.Strings(names)

	results := make([]CheckResult, 0, len(names))
	for _, name := range names {
		start := time.Now()
		result := checks[name](ctx)
		result.Latency = time.Since(start)
		if result.Name == "" {
			result.Name = name
		}
		results = append(results, result)
	}
	return results
}

// Uptime returns how long the checker has existed.
func (c *Checker) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// AggregateStatus returns the worst status among results.
func AggregateStatus(results []CheckResult) Status {
	status := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

type response struct {
	Status Status        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

// LiveHandler serves the liveness probe.
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := c.Live(r.Context())
		write(w, response{Status: result.Status, Checks: []CheckResult{result}})
	})
}

// ReadyHandler serves the readiness probe. It answers 503 when any check
// is unhealthy.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := c.Ready(r.Context())
		write(w, response{Status: AggregateStatus(results), Checks: results})
	})
}

func write(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// UsageCheck reports degraded once used exceeds threshold of capacity and
// unhealthy when nothing is left.
func UsageCheck(name string, threshold float64, usage func() (used, capacity int)) CheckFunc {
	return func(ctx context.Context) CheckResult {
		used, capacity := usage()
		result := CheckResult{
			Name:    name,
			Status:  StatusHealthy,
			Message: fmt.Sprintf("%d of %d bytes used", used, capacity),
		}
		switch {
		case capacity <= 0 || used >= capacity:
			result.Status = StatusUnhealthy
		case float64(used) > threshold*float64(capacity):
			result.Status = StatusDegraded
		}
		return result
	}
}
