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
	"errors"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-javacard/internal/script"
)

func newRunCommand(cfg *Config) *cobra.Command {
	var stopOnFailure bool
	cmd := &cobra.Command{
		Use:   "run <script>...",
		Short: "Run APDU scripts",
		Long: `Run APDU scripts against a card with the configured applets. Each
script starts on a freshly reset card. Script lines are hex command APDUs,
'reset', 'select <aid>' and 'expect <sw> [data]' assertions; '#' starts a
comment.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scripts := make([]*script.Script, 0, len(args))
			for _, path := range args {
				s, err := script.Load(cfg.Fs, path)
				if err != nil {
					return err
				}
				scripts = append(scripts, s)
			}

			s, err := cfg.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			opts := []script.Option{script.WithLogger(s.logger)}
			if stopOnFailure {
				opts = append(opts, script.StopOnFailure())
			}
			printer := NewPrinter(cfg.OutputFormat, cmd.OutOrStdout())
			var failed error
			for _, sc := range scripts {
				cfg.printVerbose(cmd, "running %s", sc.Name)
				if err := s.rt.Reset(); err != nil {
					return err
				}
				report, err := sc.Run(cmd.Context(), s.rt, opts...)
				if perr := printer.PrintReport(report); perr != nil {
					return perr
				}
				switch {
				case errors.Is(err, script.ErrExpectation):
					failed = errors.Join(failed, err)
				case err != nil:
					return err
				}
			}
			return failed
		},
	}
	cmd.Flags().BoolVar(&stopOnFailure, "stop-on-failure", false, "end a script at its first failed expectation")
	return cmd
}
