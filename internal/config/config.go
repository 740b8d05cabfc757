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

package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/applets"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
	"github.com/jeremyhahn/go-javacard/pkg/simulator"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "JCSIM_"

// Config represents the complete simulator configuration
type Config struct {
	Card    CardConfig     `yaml:"card"`
	Applets []AppletConfig `yaml:"applets"`
	Logging LoggingConfig  `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// CardConfig contains the simulated card's resources
type CardConfig struct {
	Protocol          string `yaml:"protocol"` // T=0, T=1
	APDUBufferSize    int    `yaml:"apdu_buffer_size"`
	BlockSize         int    `yaml:"block_size"`
	MaxChannels       int    `yaml:"max_channels"`
	CommitCapacity    int    `yaml:"commit_capacity"`
	TransientCapacity int    `yaml:"transient_capacity"`
	ATR               string `yaml:"atr"` // hex
}

// AppletConfig installs one bundled applet at startup
type AppletConfig struct {
	Name       string `yaml:"name"`
	AID        string `yaml:"aid"`         // hex, defaults to the applet's AID
	PackageAID string `yaml:"package_aid"` // hex, optional
	Params     string `yaml:"params"`      // hex install parameters
	Default    bool   `yaml:"default"`     // selected on channel 0 after reset
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
	TLS      TLSConfig     `yaml:"tls"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Card: CardConfig{
			Protocol:          "T=1",
			APDUBufferSize:    apdu.DefaultBufferSize,
			BlockSize:         apdu.DefaultBlockSize,
			MaxChannels:       lifecycle.DefaultMaxChannels,
			CommitCapacity:    simulator.DefaultConfig().CommitCapacity,
			TransientCapacity: simulator.DefaultConfig().TransientCapacity,
			ATR:               hex.EncodeToString(simulator.DefaultATR),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Address:  "127.0.0.1:9464",
			Path:     "/metrics",
			Interval: 15 * time.Second,
		},
	}
}

// Load reads configuration from a YAML file on the OS filesystem.
func Load(path string) (*Config, error) {
	return LoadFs(afero.NewOsFs(), path)
}

// LoadFs reads configuration from a YAML file on fs, layering it over
// Default and applying environment variable overrides.
func LoadFs(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "PROTOCOL"); v != "" {
		cfg.Card.Protocol = v
	}
	envInt(EnvPrefix+"APDU_BUFFER_SIZE", &cfg.Card.APDUBufferSize)
	envInt(EnvPrefix+"MAX_CHANNELS", &cfg.Card.MaxChannels)
	envInt(EnvPrefix+"COMMIT_CAPACITY", &cfg.Card.CommitCapacity)
	envInt(EnvPrefix+"TRANSIENT_CAPACITY", &cfg.Card.TransientCapacity)
	if v := os.Getenv(EnvPrefix + "ATR"); v != "" {
		cfg.Card.ATR = v
	}

	// Logging
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Metrics
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		cfg.Metrics.Address = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv(EnvPrefix + "METRICS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			log.Printf("Warning: invalid %sMETRICS_ENABLED value %q, using %t: %v",
				EnvPrefix, v, cfg.Metrics.Enabled, err)
		} else {
			cfg.Metrics.Enabled = enabled
		}
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid %s value %q, using %d: %v", name, v, *dst, err)
		return
	}
	*dst = n
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	sim, err := c.ToSimulator(nil)
	if err != nil {
		return err
	}
	if err := sim.Validate(); err != nil {
		return err
	}

	defaults := 0
	for i, a := range c.Applets {
		if _, err := applets.Lookup(a.Name); err != nil {
			return fmt.Errorf("applet %d: %w", i, err)
		}
		if _, err := a.InstanceAID(); err != nil {
			return fmt.Errorf("applet %d: %w", i, err)
		}
		if _, err := parseAID(a.PackageAID); err != nil {
			return fmt.Errorf("applet %d: invalid package_aid: %w", i, err)
		}
		if _, err := hex.DecodeString(a.Params); err != nil {
			return fmt.Errorf("applet %d: invalid params: %w", i, err)
		}
		if a.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("%d applets marked default, at most one allowed", defaults)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return fmt.Errorf("metrics address is required when metrics are enabled")
		}
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return fmt.Errorf("invalid metrics path: %q", c.Metrics.Path)
		}
		if c.Metrics.Interval <= 0 {
			return fmt.Errorf("invalid metrics interval: %s", c.Metrics.Interval)
		}
		if err := c.Metrics.TLS.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ParseProtocol converts "T=0" or "T=1" (also "t0", "1", ...) to the
// protocol byte.
func ParseProtocol(s string) (byte, error) {
	switch strings.ToUpper(strings.NewReplacer("=", "", " ", "").Replace(s)) {
	case "T0", "0":
		return apdu.ProtocolT0, nil
	case "T1", "1", "":
		return apdu.ProtocolT1, nil
	}
	return 0, fmt.Errorf("invalid protocol: %q (must be T=0 or T=1)", s)
}

// ToSimulator converts the card section to a runtime configuration.
func (c *Config) ToSimulator(log logger.Logger) (*simulator.Config, error) {
	protocol, err := ParseProtocol(c.Card.Protocol)
	if err != nil {
		return nil, err
	}
	atr := simulator.DefaultATR
	if c.Card.ATR != "" {
		atr, err = hex.DecodeString(c.Card.ATR)
		if err != nil {
			return nil, fmt.Errorf("invalid atr: %w", err)
		}
	}
	return &simulator.Config{
		Protocol:          protocol,
		BufferSize:        c.Card.APDUBufferSize,
		BlockSize:         c.Card.BlockSize,
		MaxChannels:       c.Card.MaxChannels,
		CommitCapacity:    c.Card.CommitCapacity,
		TransientCapacity: c.Card.TransientCapacity,
		ATR:               atr,
		Logger:            log,
	}, nil
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger() logger.Logger {
	return logger.NewSlogAdapter(&logger.SlogConfig{
		Level: logger.ParseLevel(c.Logging.Level),
		JSON:  strings.EqualFold(c.Logging.Format, "json"),
	})
}

// InstanceAID returns the configured AID, or the bundled applet's default.
func (a AppletConfig) InstanceAID() (lifecycle.AID, error) {
	aid, err := parseAID(a.AID)
	if err != nil {
		return lifecycle.AID{}, fmt.Errorf("invalid aid: %w", err)
	}
	if aid.IsZero() {
		e, err := applets.Lookup(a.Name)
		if err != nil {
			return lifecycle.AID{}, err
		}
		return e.DefaultAID, nil
	}
	return aid, nil
}

// Install installs every configured applet into rt and selects the default
// one, if any.
func (c *Config) Install(rt *simulator.Runtime) error {
	for _, a := range c.Applets {
		e, err := applets.Lookup(a.Name)
		if err != nil {
			return err
		}
		aid, err := a.InstanceAID()
		if err != nil {
			return err
		}
		pkg, err := parseAID(a.PackageAID)
		if err != nil {
			return err
		}
		params, err := hex.DecodeString(a.Params)
		if err != nil {
			return fmt.Errorf("invalid params for %s: %w", a.Name, err)
		}
		if _, err := rt.Install(aid, pkg, params, e.Install); err != nil {
			return fmt.Errorf("failed to install %s: %w", a.Name, err)
		}
		if a.Default {
			if err := rt.SetDefaultApplet(aid); err != nil {
				return err
			}
		}
	}
	return nil
}

// parseAID parses a hex AID. An empty string is the zero AID.
func parseAID(s string) (lifecycle.AID, error) {
	if s == "" {
		return lifecycle.AID{}, nil
	}
	return lifecycle.ParseAID(s)
}
