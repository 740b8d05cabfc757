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

package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	assert.True(t, IsEnabled())

	Disable()
	assert.False(t, IsEnabled())

	Enable()
	assert.True(t, IsEnabled())
}

func TestRecordCommand(t *testing.T) {
	Enable()
	CommandsTotal.Reset()
	CommandDuration.Reset()

	RecordCommand("A4", "9000", 0.001)
	RecordCommand("A4", "9000", 0.002)
	RecordCommand("FF", "6D00", 0.001)

	assert.Equal(t, 2, testutil.CollectAndCount(CommandsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(CommandsTotal.WithLabelValues("A4", "9000")))
	assert.Equal(t, 2, testutil.CollectAndCount(CommandDuration))
}

func TestRecordWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	CommandsTotal.Reset()
	TransactionsTotal.Reset()

	RecordCommand("A4", "9000", 0.5)
	RecordTransaction(OutcomeCommit, 10)

	assert.Equal(t, 0, testutil.CollectAndCount(CommandsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(TransactionsTotal))
}

func TestRecordTransaction(t *testing.T) {
	Enable()
	TransactionsTotal.Reset()

	RecordTransaction(OutcomeCommit, 12)
	RecordTransaction(OutcomeAbort, 40)

	assert.Equal(t, float64(1), testutil.ToFloat64(TransactionsTotal.WithLabelValues(OutcomeCommit)))
	assert.Equal(t, float64(1), testutil.ToFloat64(TransactionsTotal.WithLabelValues(OutcomeAbort)))
	assert.Equal(t, float64(40), testutil.ToFloat64(JournalBytes))
}

func TestRecordCrypto(t *testing.T) {
	Enable()
	CryptoOperationsTotal.Reset()

	RecordCrypto(OpDigest, "SHA-256", nil)
	RecordCrypto(OpCipher, "AES-CBC", errors.New("bad padding"))

	assert.Equal(t, float64(1), testutil.ToFloat64(CryptoOperationsTotal.WithLabelValues(OpDigest, "SHA-256", StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(CryptoOperationsTotal.WithLabelValues(OpCipher, "AES-CBC", StatusError)))
}

func TestRecordTransientClearAndErrors(t *testing.T) {
	Enable()
	TransientClearsTotal.Reset()
	ErrorsTotal.Reset()

	RecordTransientClear(EventDeselect)
	RecordError("CryptoException")
	SetAppletsInstalled(3)

	assert.Equal(t, float64(1), testutil.ToFloat64(TransientClearsTotal.WithLabelValues(EventDeselect)))
	assert.Equal(t, float64(1), testutil.ToFloat64(ErrorsTotal.WithLabelValues("CryptoException")))
	assert.Equal(t, float64(3), testutil.ToFloat64(AppletsInstalled))
}

func TestHandler(t *testing.T) {
	Enable()
	RecordCommand("01", "9000", 0.001)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "jcsim_commands_total")
}
