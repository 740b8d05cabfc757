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

// Package metrics provides Prometheus instrumentation for the card
// simulator. It exposes command counters, transaction outcomes, transient
// memory clears and cryptographic operation counters.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace for all simulator metrics
	Namespace = "jcsim"

	// Label names
	LabelInstruction = "ins"
	LabelStatusWord  = "sw"
	LabelOutcome     = "outcome"
	LabelEvent       = "event"
	LabelOperation   = "operation"
	LabelAlgorithm   = "algorithm"
	LabelStatus      = "status"
	LabelErrorKind   = "kind"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Transaction outcomes
	OutcomeCommit   = "commit"
	OutcomeAbort    = "abort"
	OutcomeRollback = "rollback"

	// Clear events
	EventReset    = "reset"
	EventDeselect = "deselect"

	// Crypto operation names
	OpCipher    = "cipher"
	OpAEAD      = "aead"
	OpSign      = "sign"
	OpVerify    = "verify"
	OpDigest    = "digest"
	OpAgreement = "key_agreement"
	OpKeyGen    = "keygen"
	OpRandom    = "random"
	OpChecksum  = "checksum"
	OpDerive    = "derive"
)

var (
	// CommandsTotal counts processed command APDUs by instruction and status word.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "commands_total",
			Help:      "Total number of command APDUs processed by instruction and status word",
		},
		[]string{LabelInstruction, LabelStatusWord},
	)

	// CommandDuration tracks how long the card took to answer a command.
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command APDU processing in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
		[]string{LabelInstruction},
	)

	// TransactionsTotal counts closed transactions by outcome.
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transactions_total",
			Help:      "Total number of transactions closed, by outcome",
		},
		[]string{LabelOutcome},
	)

	// JournalBytes is the commit buffer usage of the last closed transaction.
	JournalBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "journal_bytes",
			Help:      "Commit buffer bytes used by the most recently closed transaction",
		},
	)

	// TransientClearsTotal counts transient memory sweeps by event.
	TransientClearsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "transient_clears_total",
			Help:      "Total number of transient memory clear sweeps by event",
		},
		[]string{LabelEvent},
	)

	// CryptoOperationsTotal counts cryptographic adapter calls.
	CryptoOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "crypto_operations_total",
			Help:      "Total number of cryptographic operations by type, algorithm and status",
		},
		[]string{LabelOperation, LabelAlgorithm, LabelStatus},
	)

	// ErrorsTotal counts card errors that ended a command, by exception kind.
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of card errors that ended a command, by exception kind",
		},
		[]string{LabelErrorKind},
	)

	// AppletsInstalled is the number of registered applet instances.
	AppletsInstalled = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "applets_installed",
			Help:      "Number of registered applet instances",
		},
	)

	// OpenChannels is the number of open logical channels.
	OpenChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "open_channels",
			Help:      "Number of open logical channels",
		},
	)

	// TransientBytes is the transient memory in use.
	TransientBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "transient_bytes",
			Help:      "Transient memory bytes allocated",
		},
	)

	// CardUptime is the time since the last card reset.
	CardUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "card_uptime_seconds",
			Help:      "Seconds since the last card reset",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCommand records one processed command APDU.
func RecordCommand(ins, sw string, duration float64) {
	if !enabled.Load() {
		return
	}
	CommandsTotal.WithLabelValues(ins, sw).Inc()
	CommandDuration.WithLabelValues(ins).Observe(duration)
}

// RecordTransaction records a closed transaction and the journal bytes it used.
func RecordTransaction(outcome string, journalBytes int) {
	if !enabled.Load() {
		return
	}
	TransactionsTotal.WithLabelValues(outcome).Inc()
	JournalBytes.Set(float64(journalBytes))
}

// RecordTransientClear records a transient memory sweep.
func RecordTransientClear(event string) {
	if !enabled.Load() {
		return
	}
	TransientClearsTotal.WithLabelValues(event).Inc()
}

// RecordCrypto records a cryptographic operation. err decides the status label.
func RecordCrypto(operation, algorithm string, err error) {
	if !enabled.Load() {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	CryptoOperationsTotal.WithLabelValues(operation, algorithm, status).Inc()
}

// RecordError records a card error by its exception kind.
func RecordError(kind string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(kind).Inc()
}

// SetAppletsInstalled sets the number of registered applets.
func SetAppletsInstalled(count int) {
	if !enabled.Load() {
		return
	}
	AppletsInstalled.Set(float64(count))
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
