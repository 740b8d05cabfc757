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
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-javacard/internal/script"
	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/applets"
	"github.com/jeremyhahn/go-javacard/pkg/iso7816"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// Validate rejects unknown formats before any command runs.
func (p *Printer) Validate() error {
	switch p.format {
	case OutputFormatText, OutputFormatJSON:
		return nil
	}
	return fmt.Errorf("unknown output format: %s", p.format)
}

func exchangeJSON(command []byte, resp *apdu.Response) map[string]interface{} {
	return map[string]interface{}{
		"command": fmt.Sprintf("%X", command),
		"data":    fmt.Sprintf("%X", resp.Data),
		"sw":      fmt.Sprintf("%04X", resp.SW),
		"sw_name": iso7816.StatusWordName(resp.SW),
		"success": resp.IsSuccess(),
	}
}

// PrintExchange prints one command and its response
func (p *Printer) PrintExchange(command []byte, resp *apdu.Response) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(exchangeJSON(command, resp))
	case OutputFormatText:
		fmt.Fprintf(p.writer, "> %X\n", command)
		fmt.Fprintf(p.writer, "< %s\n", resp)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintReport prints the outcome of a script run
func (p *Printer) PrintReport(report *script.Report) error {
	switch p.format {
	case OutputFormatJSON:
		exchanges := make([]map[string]interface{}, len(report.Exchanges))
		for i, ex := range report.Exchanges {
			exchanges[i] = exchangeJSON(ex.Command, ex.Response)
			exchanges[i]["line"] = ex.Line
			exchanges[i]["duration_us"] = ex.Duration.Microseconds()
		}
		failures := make([]string, len(report.Failures))
		for i, f := range report.Failures {
			failures[i] = f.String()
		}
		return p.printJSON(map[string]interface{}{
			"script":    report.Script,
			"passed":    report.Passed(),
			"resets":    report.Resets,
			"exchanges": exchanges,
			"failures":  failures,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Script: %s\n", report.Script)
		for _, ex := range report.Exchanges {
			fmt.Fprintf(p.writer, "%4d > %X\n", ex.Line, ex.Command)
			fmt.Fprintf(p.writer, "     < %s\n", ex.Response)
		}
		for _, f := range report.Failures {
			fmt.Fprintf(p.writer, "FAIL %s\n", f)
		}
		status := "PASS"
		if !report.Passed() {
			status = "FAIL"
		}
		fmt.Fprintf(p.writer, "%s: %d commands, %d resets, %d failures\n",
			status, len(report.Exchanges), report.Resets, len(report.Failures))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintStatusWord prints the meaning of a status word
func (p *Printer) PrintStatusWord(sw uint16) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"sw":      fmt.Sprintf("%04X", sw),
			"name":    iso7816.StatusWordName(sw),
			"success": apdu.NewResponse(nil, sw).IsSuccess(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "%04X %s\n", sw, iso7816.StatusWordName(sw))
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintApplets prints the bundled applets
func (p *Printer) PrintApplets(entries []applets.Entry) error {
	switch p.format {
	case OutputFormatJSON:
		list := make([]map[string]interface{}, len(entries))
		for i, e := range entries {
			list[i] = map[string]interface{}{
				"name":        e.Name,
				"aid":         e.DefaultAID.String(),
				"description": e.Description,
			}
		}
		return p.printJSON(map[string]interface{}{
			"applets": list,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, "Bundled Applets:")
		for _, e := range entries {
			fmt.Fprintf(p.writer, "  - %-12s %-18s %s\n", e.Name, e.DefaultAID, e.Description)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
