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
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
)

func newSendCommand(cfg *Config) *cobra.Command {
	var selectAID string
	cmd := &cobra.Command{
		Use:   "send <hex-apdu>...",
		Short: "Send command APDUs to a fresh card",
		Long: `Power up a card with the configured applets, send each command APDU in
order and print the responses. The default applet is selected on the basic
channel after reset.`,
		Example: `  jcsim send 00A4040007A0000000620301 0001000000`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			commands := make([][]byte, 0, len(args)+1)
			if selectAID != "" {
				aid, err := lifecycle.ParseAID(selectAID)
				if err != nil {
					return err
				}
				commands = append(commands, (&apdu.Command{INS: 0xA4, P1: 0x04, Data: aid.Bytes()}).Bytes())
			}
			for _, arg := range args {
				b, err := hex.DecodeString(strings.NewReplacer(" ", "", ":", "").Replace(arg))
				if err != nil {
					return fmt.Errorf("invalid command %q: %w", arg, err)
				}
				if _, err := apdu.ParseCommand(b); err != nil {
					return err
				}
				commands = append(commands, b)
			}

			s, err := cfg.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			printer := NewPrinter(cfg.OutputFormat, cmd.OutOrStdout())
			for _, c := range commands {
				cfg.printVerbose(cmd, "sending %X", c)
				raw, err := s.rt.TransmitContext(cmd.Context(), c)
				if err != nil {
					return err
				}
				resp, err := apdu.ParseResponse(raw)
				if err != nil {
					return err
				}
				if err := printer.PrintExchange(c, resp); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&selectAID, "select", "s", "", "select this AID (hex) before the commands")
	return cmd
}
