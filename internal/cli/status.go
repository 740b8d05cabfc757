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
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-javacard/pkg/applets"
)

func newAppletsCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "applets",
		Short: "List the bundled applets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintApplets(applets.Entries())
		},
	}
}

func newStatusCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status <sw>...",
		Short: "Explain status words",
		Long:  `Print the ISO 7816-4 meaning of each status word, given as four hex digits`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(cfg.OutputFormat, cmd.OutOrStdout())
			for _, arg := range args {
				sw, err := parseStatusWord(arg)
				if err != nil {
					return err
				}
				if err := printer.PrintStatusWord(sw); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func parseStatusWord(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 4 {
		return 0, fmt.Errorf("invalid status word %q: want 4 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid status word %q: %w", s, err)
	}
	return uint16(v), nil
}
