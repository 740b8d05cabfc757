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

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReadyRunsChecksInOrder(t *testing.T) {
	checker := NewChecker()
	checker.RegisterCheck("b", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	checker.RegisterCheck("a", func(ctx context.Context) CheckResult {
		return CheckResult{Name: "custom", Status: StatusDegraded}
	})
	checker.RegisterCheck("ignored", nil)

	results := checker.Ready(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "custom" || results[1].Name != "b" {
		t.Errorf("unexpected order: %s, %s", results[0].Name, results[1].Name)
	}
	if got := AggregateStatus(results); got != StatusDegraded {
		t.Errorf("AggregateStatus = %s, want degraded", got)
	}
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name    string
		results []CheckResult
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"healthy", []CheckResult{{Status: StatusHealthy}}, StatusHealthy},
		{"degraded", []CheckResult{{Status: StatusHealthy}, {Status: StatusDegraded}}, StatusDegraded},
		{"unhealthy wins", []CheckResult{{Status: StatusDegraded}, {Status: StatusUnhealthy}}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateStatus(tt.results); got != tt.want {
				t.Errorf("AggregateStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestUsageCheck(t *testing.T) {
	tests := []struct {
		used, capacity int
		want           Status
	}{
		{10, 100, StatusHealthy},
		{95, 100, StatusDegraded},
		{100, 100, StatusUnhealthy},
		{0, 0, StatusUnhealthy},
	}
	for _, tt := range tests {
		check := UsageCheck("transient", 0.9, func() (int, int) { return tt.used, tt.capacity })
		result := check(context.Background())
		if result.Status != tt.want {
			t.Errorf("%d/%d: status %s, want %s", tt.used, tt.capacity, result.Status, tt.want)
		}
		if result.Name != "transient" {
			t.Errorf("name %q", result.Name)
		}
	}
}

func TestHandlers(t *testing.T) {
	checker := NewChecker()

	rec := httptest.NewRecorder()
	checker.LiveHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("live: status %d", rec.Code)
	}

	checker.RegisterCheck("card", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Message: "no applets"}
	})
	rec = httptest.NewRecorder()
	checker.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ready: status %d, want 503", rec.Code)
	}
	var resp struct {
		Status Status        `json:"status"`
		Checks []CheckResult `json:"checks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != StatusUnhealthy || len(resp.Checks) != 1 || resp.Checks[0].Message != "no applets" {
		t.Errorf("unexpected body: %+v", resp)
	}
}
