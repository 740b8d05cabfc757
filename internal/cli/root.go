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
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// Option configures the command tree.
type Option func(*Config)

// WithFs reads scripts, configuration and certificates from fs.
func WithFs(fs afero.Fs) Option {
	return func(c *Config) {
		c.Fs = fs
	}
}

// NewRootCommand builds the jcsim command tree. Each call returns an
// independent tree with its own flag values.
func NewRootCommand(opts ...Option) *cobra.Command {
	cfg := NewConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	rootCmd := &cobra.Command{
		Use:   "jcsim",
		Short: "go-javacard - Java Card runtime simulator",
		Long: `jcsim runs Java Card style applets on a simulated card and exchanges
command APDUs with them.

Bundled applets:
  - hello:      greeting, echo and counter
  - cryptodemo: digest, cipher, MAC and signature services
  - wallet:     PIN protected electronic purse`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).Validate()
		},
	}

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "",
		"simulator config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false,
		"debug logging")
	rootCmd.PersistentFlags().StringVar(&cfg.MetricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringArrayVarP(&cfg.Applets, "applet", "a", nil,
		"install an applet, name[@aid][:params]")

	rootCmd.AddCommand(newVersionCommand(cfg))
	rootCmd.AddCommand(newAppletsCommand(cfg))
	rootCmd.AddCommand(newStatusCommand(cfg))
	rootCmd.AddCommand(newSendCommand(cfg))
	rootCmd.AddCommand(newRunCommand(cfg))
	rootCmd.AddCommand(newShellCommand(cfg))
	return rootCmd
}

// Execute runs the root command with ctx and prints any error
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		format, _ := rootCmd.PersistentFlags().GetString("output")
		_ = NewPrinter(format, os.Stderr).PrintError(err)
	}
	return err
}

// printVerbose prints a message if verbose mode is enabled
func (c *Config) printVerbose(cmd *cobra.Command, format string, args ...interface{}) {
	if c.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "[VERBOSE] "+format+"\n", args...)
	}
}
