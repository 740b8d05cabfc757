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

// Package script parses and runs APDU scripts.
//
// A script is a text file with one step per line:
//
//	# comment
//	reset                         power cycle the card
//	select A0000000620301         SELECT by DF name
//	00A4040007A0000000620301      any command APDU in hex
//	expect 9000                   check the previous status word
//	expect 9000 48656C6C6F        ... and the response data
//	expect 61xx                   x matches any nibble
//
// Whitespace inside hex strings is ignored. Text after a '#' is a comment.
package script

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	skyapdu "github.com/skythen/apdu"
	"github.com/spf13/afero"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/lifecycle"
)

var (
	// ErrSyntax is returned for a line that is not a valid step.
	ErrSyntax = errors.New("script: syntax error")

	// ErrEmpty is returned by ParseStep for a blank or comment line.
	ErrEmpty = errors.New("script: empty line")

	// ErrExpectation is returned when a response does not match an expect
	// step.
	ErrExpectation = errors.New("script: expectation failed")
)

// Op is the kind of a step.
type Op int

const (
	OpCommand Op = iota
	OpReset
	OpExpect
)

func (o Op) String() string {
	switch o {
	case OpCommand:
		return "command"
	case OpReset:
		return "reset"
	case OpExpect:
		return "expect"
	}
	return "unknown"
}

// Step is one parsed script line.
type Step struct {
	Line    int
	Op      Op
	Command []byte
	// SW is a four character pattern; 'x' matches any nibble.
	SW   string
	Data []byte
}

// Script is a parsed APDU script.
type Script struct {
	Name  string
	Steps []Step
}

// Load reads and parses the script at path on fs.
func Load(fs afero.Fs, path string) (*Script, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open script %s: %w", path, err)
	}
	defer f.Close()
	return Parse(path, f)
}

// Parse reads a script from r. name is used in error messages.
func Parse(name string, r io.Reader) (*Script, error) {
	s := &Script{Name: name}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		step, err := ParseStep(sc.Text())
		if errors.Is(err, ErrEmpty) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		if step.Op == OpExpect && !s.hasCommand() {
			return nil, fmt.Errorf("%s:%d: %w: expect before any command", name, line, ErrSyntax)
		}
		step.Line = line
		s.Steps = append(s.Steps, step)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", name, err)
	}
	return s, nil
}

func (s *Script) hasCommand() bool {
	for _, st := range s.Steps {
		if st.Op == OpCommand {
			return true
		}
	}
	return false
}

// ParseStep parses a single script line.
func ParseStep(text string) (Step, error) {
	if i := strings.IndexByte(text, '#'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Step{}, ErrEmpty
	}
	fields := strings.Fields(text)
	switch strings.ToLower(fields[0]) {
	case "reset":
		if len(fields) != 1 {
			return Step{}, fmt.Errorf("%w: reset takes no arguments", ErrSyntax)
		}
		return Step{Op: OpReset}, nil
	case "select":
		if len(fields) < 2 {
			return Step{}, fmt.Errorf("%w: select needs an AID", ErrSyntax)
		}
		aid, err := lifecycle.ParseAID(strings.Join(fields[1:], ""))
		if err != nil {
			return Step{}, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
		cmd := &apdu.Command{INS: 0xA4, P1: 0x04, Data: aid.Bytes()}
		return Step{Op: OpCommand, Command: cmd.Bytes()}, nil
	case "expect":
		return parseExpect(fields[1:])
	}
	c, err := skyapdu.ParseCapduHexString(strings.Join(fields, ""))
	if err != nil {
		return Step{}, fmt.Errorf("%w: %q is neither a keyword nor a command APDU: %v", ErrSyntax, text, err)
	}
	if c.IsExtendedLength() {
		return Step{}, fmt.Errorf("%w: %w: extended length not supported", ErrSyntax, apdu.ErrMalformedCommand)
	}
	return Step{Op: OpCommand, Command: c.Bytes()}, nil
}

func parseExpect(args []string) (Step, error) {
	if len(args) == 0 {
		return Step{}, fmt.Errorf("%w: expect needs a status word", ErrSyntax)
	}
	sw := strings.ToUpper(args[0])
	if len(sw) != 4 {
		return Step{}, fmt.Errorf("%w: status word %q is not 4 hex digits", ErrSyntax, args[0])
	}
	for _, c := range sw {
		if !strings.ContainsRune("0123456789ABCDEFX", c) {
			return Step{}, fmt.Errorf("%w: status word %q is not hex", ErrSyntax, args[0])
		}
	}
	step := Step{Op: OpExpect, SW: sw}
	if len(args) > 1 {
		data, err := hex.DecodeString(strings.Join(args[1:], ""))
		if err != nil {
			return Step{}, fmt.Errorf("%w: expected data is not hex", ErrSyntax)
		}
		step.Data = data
	}
	return step, nil
}

// MatchSW reports whether sw matches the pattern. 'X' matches any nibble.
func MatchSW(pattern string, sw uint16) bool {
	got := fmt.Sprintf("%04X", sw)
	if len(pattern) != len(got) {
		return false
	}
	for i := range got {
		if pattern[i] != 'X' && pattern[i] != 'x' && pattern[i] != got[i] {
			return false
		}
	}
	return true
}
