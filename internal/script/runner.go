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

package script

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-javacard/pkg/apdu"
	"github.com/jeremyhahn/go-javacard/pkg/logger"
)

// Card is the device a script runs against. *simulator.Runtime satisfies
// it.
type Card interface {
	TransmitContext(ctx context.Context, command []byte) ([]byte, error)
	Reset() error
}

// Exchange is one command and the card's answer.
type Exchange struct {
	Line     int
	Command  []byte
	Response *apdu.Response
	Duration time.Duration
}

// Failure records an expect step that did not match.
type Failure struct {
	Line     int
	Expected string
	Got      *apdu.Response
}

func (f Failure) String() string {
	return fmt.Sprintf("line %d: expected %s, got %X %04X", f.Line, f.Expected, f.Got.Data, f.Got.SW)
}

// Report is the outcome of a script run.
type Report struct {
	Script    string
	Exchanges []Exchange
	Resets    int
	Failures  []Failure
}

// Passed reports whether every expectation matched.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Option configures a Run.
type Option func(*runner)

// WithLogger logs each exchange at debug level.
func WithLogger(l logger.Logger) Option {
	return func(r *runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// StopOnFailure ends the run at the first failed expectation.
func StopOnFailure() Option {
	return func(r *runner) {
		r.stop = true
	}
}

type runner struct {
	logger logger.Logger
	stop   bool
}

// Run executes the script against card. The returned error is non-nil when
// the card fails, ctx ends, or an expectation fails; the report holds
// everything done up to that point.
func (s *Script) Run(ctx context.Context, card Card, opts ...Option) (*Report, error) {
	r := &runner{logger: logger.NewNoOp()}
	for _, opt := range opts {
		opt(r)
	}
	report := &Report{Script: s.Name}
	var last *apdu.Response
	for _, step := range s.Steps {
		switch step.Op {
		case OpReset:
			if err := card.Reset(); err != nil {
				return report, fmt.Errorf("%s:%d: reset: %w", s.Name, step.Line, err)
			}
			report.Resets++
			last = nil
		case OpCommand:
			start := time.Now()
			raw, err := card.TransmitContext(ctx, step.Command)
			if err != nil {
				return report, fmt.Errorf("%s:%d: %w", s.Name, step.Line, err)
			}
			resp, err := apdu.ParseResponse(raw)
			if err != nil {
				return report, fmt.Errorf("%s:%d: %w", s.Name, step.Line, err)
			}
			report.Exchanges = append(report.Exchanges, Exchange{
				Line:     step.Line,
				Command:  step.Command,
				Response: resp,
				Duration: time.Since(start),
			})
			r.logger.Debug("script exchange",
				logger.Int("line", step.Line),
				logger.Hex("command", step.Command),
				logger.Hex("response", raw))
			last = resp
		case OpExpect:
			if last == nil {
				return report, fmt.Errorf("%s:%d: %w: no response since last reset", s.Name, step.Line, ErrSyntax)
			}
			if step.Matches(last) {
				continue
			}
			f := Failure{Line: step.Line, Expected: step.Expectation(), Got: last}
			report.Failures = append(report.Failures, f)
			r.logger.Warn("script expectation failed", logger.String("failure", f.String()))
			if r.stop {
				return report, fmt.Errorf("%s: %w: %s", s.Name, ErrExpectation, f)
			}
		}
	}
	if !report.Passed() {
		return report, fmt.Errorf("%s: %w: %d expectations failed", s.Name, ErrExpectation, len(report.Failures))
	}
	return report, nil
}

// Matches reports whether resp satisfies an expect step.
func (s Step) Matches(resp *apdu.Response) bool {
	if !MatchSW(s.SW, resp.SW) {
		return false
	}
	return s.Data == nil || bytes.Equal(s.Data, resp.Data)
}

// Expectation formats an expect step as written in a script.
func (s Step) Expectation() string {
	if s.Data == nil {
		return s.SW
	}
	return fmt.Sprintf("%X %s", s.Data, s.SW)
}
