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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-javacard/internal/config"
	"github.com/jeremyhahn/go-javacard/pkg/applets"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

// Config holds global CLI configuration
type Config struct {
	// ConfigFile is the path to the simulator configuration file
	ConfigFile string

	// OutputFormat controls output formatting (json, text)
	OutputFormat string

	// Verbose enables debug logging
	Verbose bool

	// MetricsAddr serves Prometheus metrics on this address when set
	MetricsAddr string

	// Applets are installed in addition to the configured ones, written
	// as name[@aid][:params] with hex aid and params
	Applets []string

	// Fs is the filesystem scripts, configuration and certificates are
	// read from
	Fs afero.Fs
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		OutputFormat: "text",
		Fs:           afero.NewOsFs(),
	}
}

// Load returns the simulator configuration: the config file when one is
// given, otherwise the defaults, with the command line flags applied.
func (c *Config) Load() (*config.Config, error) {
	path := c.ConfigFile
	if path == "" {
		path = os.Getenv(config.EnvPrefix + "CONFIG")
	}
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.LoadFs(c.Fs, path)
		if err != nil {
			return nil, err
		}
	}
	if c.Verbose {
		cfg.Logging.Level = "debug"
	}
	if c.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = c.MetricsAddr
	}
	for _, spec := range c.Applets {
		a, err := parseAppletFlag(spec)
		if err != nil {
			return nil, err
		}
		cfg.Applets = append(cfg.Applets, a)
	}
	if len(cfg.Applets) == 0 {
		for _, name := range applets.Names() {
			cfg.Applets = append(cfg.Applets, config.AppletConfig{Name: name, Default: name == "hello"})
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewRuntime builds a card with every configured applet installed.
func (c *Config) NewRuntime(cfg *config.Config) (*simulator.Runtime, logger.Logger, error) {
	log := cfg.NewLogger()
	sim, err := cfg.ToSimulator(log)
	if err != nil {
		return nil, nil, err
	}
	rt, err := simulator.New(sim)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create card: %w", err)
	}
	if err := cfg.Install(rt); err != nil {
		return nil, nil, err
	}
	return rt, log.With(logger.String("session", rt.Session())), nil
}

// parseAppletFlag parses name[@aid][:params].
func parseAppletFlag(s string) (config.AppletConfig, error) {
	var a config.AppletConfig
	rest := s
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		a.Params = rest[i+1:]
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '@'); i >= 0 {
		a.AID = rest[i+1:]
		rest = rest[:i]
	}
	a.Name = rest
	if a.Name == "" {
		return a, fmt.Errorf("invalid applet %q: missing name", s)
	}
	return a, nil
}

