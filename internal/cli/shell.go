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
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-javacard/internal/script"
	"github.com/jeremyhahn/go-javacard/pkg/apdu"
)

func newShellCommand(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Exchange APDUs interactively",
		Long: `Read script lines from standard input and execute them one at a time
against a single card. 'quit' or end of input ends the session. Failed
expectations are reported and the session continues.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := cfg.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			printer := NewPrinter(cfg.OutputFormat, cmd.OutOrStdout())
			out := cmd.OutOrStdout()
			var last *apdu.Response
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				line := strings.TrimSpace(sc.Text())
				if line == "quit" || line == "exit" {
					return nil
				}
				step, err := script.ParseStep(line)
				if errors.Is(err, script.ErrEmpty) {
					continue
				}
				if err != nil {
					_ = printer.PrintError(err)
					continue
				}
				switch step.Op {
				case script.OpReset:
					if err := s.rt.Reset(); err != nil {
						return err
					}
					last = nil
					fmt.Fprintf(out, "ATR %X\n", s.rt.ATR())
				case script.OpCommand:
					raw, err := s.rt.TransmitContext(cmd.Context(), step.Command)
					if err != nil {
						return err
					}
					last, err = apdu.ParseResponse(raw)
					if err != nil {
						return err
					}
					if err := printer.PrintExchange(step.Command, last); err != nil {
						return err
					}
				case script.OpExpect:
					switch {
					case last == nil:
						_ = printer.PrintError(errors.New("no response to check"))
					case !step.Matches(last):
						_ = printer.PrintError(fmt.Errorf("%w: expected %s, got %s", script.ErrExpectation, step.Expectation(), last))
					}
				}
			}
			return sc.Err()
		},
	}
}
