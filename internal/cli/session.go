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

package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-javacard/internal/config"
	"github.com/jeremyhahn/go-javacard/pkg/health"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/metrics"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

// session is a card plus the services running alongside it for one
// command.
type session struct {
	rt      *simulator.Runtime
	logger  logger.Logger
	metrics *metricsServer
}

// openSession loads configuration, builds the card and starts the metrics
// endpoint when enabled. close must be called when done.
func (c *Config) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.Load()
	if err != nil {
		return nil, err
	}
	rt, log, err := c.NewRuntime(cfg)
	if err != nil {
		return nil, err
	}
	s := &session{rt: rt, logger: log}
	if cfg.Metrics.Enabled {
		s.metrics, err = c.startMetrics(ctx, cfg, rt, log)
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *session) close() {
	if s.metrics != nil {
		s.metrics.stop()
	}
}

// metricsServer serves the Prometheus registry and keeps the card state
// gauges current.
type metricsServer struct {
	addr      string
	server    *http.Server
	collector *metrics.StateCollector
	logger    logger.Logger
}

func (c *Config) startMetrics(ctx context.Context, cfg *config.Config, rt *simulator.Runtime, log logger.Logger) (*metricsServer, error) {
	tlsConfig, err := cfg.Metrics.TLS.LoadTLSConfig(c.Fs)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", cfg.Metrics.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Metrics.Address, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	metrics.Enable()
	checker := newHealthChecker(cfg, rt)
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	mux.Handle("/healthz", checker.LiveHandler())
	mux.Handle("/readyz", checker.ReadyHandler())
	m := &metricsServer{
		addr:      ln.Addr().String(),
		server:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		collector: metrics.StartStateCollector(ctx, rt, cfg.Metrics.Interval),
		logger:    log,
	}
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", logger.Error(err))
		}
	}()
	log.Info("serving metrics",
		logger.String("address", m.addr),
		logger.String("path", cfg.Metrics.Path),
		logger.Bool("tls", tlsConfig != nil))
	return m, nil
}

// newHealthChecker registers the card readiness checks.
func newHealthChecker(cfg *config.Config, rt *simulator.Runtime) *health.Checker {
	checker := health.NewChecker()
	checker.RegisterCheck("applets", func(ctx context.Context) health.CheckResult {
		n := rt.Snapshot().AppletsInstalled
		if n == 0 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "no applets installed"}
		}
		return health.CheckResult{Status: health.StatusHealthy, Message: fmt.Sprintf("%d applets installed", n)}
	})
	checker.RegisterCheck("transient_memory", health.UsageCheck("transient_memory", 0.9, func() (int, int) {
		return rt.Snapshot().TransientBytes, cfg.Card.TransientCapacity
	}))
	return checker
}

func (m *metricsServer) stop() {
	m.collector.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Warn("metrics server shutdown", logger.Error(err))
	}
}
