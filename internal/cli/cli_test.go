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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-javacard/internal/config"
	"github.com/jeremyhahn/go-javacard/internal/script"
	"github.com/jeremyhahn/go-javacard/internal/testutil"
)

func execute(t *testing.T, fs afero.Fs, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(WithFs(fs))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "jcsim version dev")

	out, err = execute(t, afero.NewMemMapFs(), "", "version", "-o", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v["version"])
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := execute(t, afero.NewMemMapFs(), "", "version", "-o", "table")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestApplets(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "", "applets")
	require.NoError(t, err)
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "A0000000620301")
	assert.Contains(t, out, "wallet")
}

func TestStatus(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "", "status", "6D00", "0x9000")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "6D00 "))
	assert.True(t, strings.HasPrefix(lines[1], "9000 "))

	_, err = execute(t, afero.NewMemMapFs(), "", "status", "6D")
	assert.Error(t, err)
	_, err = execute(t, afero.NewMemMapFs(), "", "status", "ZZZZ")
	assert.Error(t, err)
}

func TestSend(t *testing.T) {
	// hello is the default applet on the basic channel
	out, err := execute(t, afero.NewMemMapFs(), "", "send", "0001000000", "00FF0000")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("%X 9000", "Hello world !"))
	assert.Contains(t, out, "6D00")

	out, err = execute(t, afero.NewMemMapFs(), "", "send", "-o", "json", "--select", "A0000000620301", "0001000000")
	require.NoError(t, err)
	dec := json.NewDecoder(strings.NewReader(out))
	var first, second map[string]interface{}
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "9000", first["sw"])
	assert.Equal(t, fmt.Sprintf("%X", "Hello world !"), second["data"])

	_, err = execute(t, afero.NewMemMapFs(), "", "send", "00A4")
	assert.Error(t, err)
	_, err = execute(t, afero.NewMemMapFs(), "", "send", "nothex")
	assert.Error(t, err)
}

func TestSendWithAppletFlag(t *testing.T) {
	out, err := execute(t, afero.NewMemMapFs(), "",
		"send", "--applet", "wallet:31323334",
		"--select", "A000000062030103",
		"8020000004 31323334", "8050000002")
	require.NoError(t, err)
	assert.Contains(t, out, "0000 9000")
}

func TestSendWithConfigFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/jcsim.yaml", []byte(`
card:
  protocol: "T=0"
applets:
  - name: hello
    params: "CAFE"
    default: true
`), 0o644))

	out, err := execute(t, fs, "", "--config", "/jcsim.yaml", "send", "0003000000")
	require.NoError(t, err)
	assert.Contains(t, out, "CAFE 9000")

	_, err = execute(t, fs, "", "--config", "/missing.yaml", "send", "0003000000")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ok.apdu", []byte(`
select A0000000620301
expect 9000
00FF0000
expect 6D00
`), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/bad.apdu", []byte("00FF0000\nexpect 9000\n"), 0o644))

	out, err := execute(t, fs, "", "run", "/ok.apdu")
	require.NoError(t, err)
	assert.Contains(t, out, "PASS: 2 commands")

	out, err = execute(t, fs, "", "run", "/ok.apdu", "/bad.apdu")
	assert.ErrorIs(t, err, script.ErrExpectation)
	assert.Contains(t, out, "FAIL line 2")

	_, err = execute(t, fs, "", "run", "/missing.apdu")
	assert.Error(t, err)
}

func TestShell(t *testing.T) {
	stdin := "# greet\n0001000000\nexpect 9000\nexpect 6A82\nbogus\nreset\nexpect 9000\nquit\n00FF0000\n"
	out, err := execute(t, afero.NewMemMapFs(), stdin, "shell")
	require.NoError(t, err)
	assert.Contains(t, out, "> 0001000000")
	assert.Contains(t, out, "expected 6A82")
	assert.Contains(t, out, "is neither a keyword nor hex")
	assert.Contains(t, out, "ATR 3BFA")
	assert.Contains(t, out, "no response to check")
	assert.NotContains(t, out, "00FF0000")
}

func TestParseAppletFlag(t *testing.T) {
	tests := []struct {
		in   string
		want config.AppletConfig
		err  bool
	}{
		{"hello", config.AppletConfig{Name: "hello"}, false},
		{"hello@A0000000620399", config.AppletConfig{Name: "hello", AID: "A0000000620399"}, false},
		{"wallet:31323334", config.AppletConfig{Name: "wallet", Params: "31323334"}, false},
		{"wallet@A0000000620398:31", config.AppletConfig{Name: "wallet", AID: "A0000000620398", Params: "31"}, false},
		{"@A0000000620398", config.AppletConfig{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAppletFlag(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg := NewConfig()
	cfg.Fs = fs
	cfg.MetricsAddr = "127.0.0.1:0"

	s, err := cfg.openSession(context.Background())
	require.NoError(t, err)
	defer s.close()
	require.NotNil(t, s.metrics)

	s.rt.Transmit([]byte{0x00, 0xFF, 0x00, 0x00})
	resp, err := http.Get("http://" + s.metrics.addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "jcsim_")

	ready, err := http.Get("http://" + s.metrics.addr + "/readyz")
	require.NoError(t, err)
	defer ready.Body.Close()
	assert.Equal(t, http.StatusOK, ready.StatusCode)
}

func TestMetricsEndpointTLS(t *testing.T) {
	fs := afero.NewMemMapFs()
	ca, err := testutil.NewCA()
	require.NoError(t, err)
	server, err := ca.Issue(testutil.ServerAuth, "localhost")
	require.NoError(t, err)
	certFile, keyFile, err := server.WriteFiles(fs, "/tls", "server")
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, "/jcsim.yaml", []byte(fmt.Sprintf(`
metrics:
  enabled: true
  address: "127.0.0.1:0"
  tls:
    enabled: true
    cert_file: %q
    key_file: %q
`, certFile, keyFile)), 0o644))

	cfg := NewConfig()
	cfg.Fs = fs
	cfg.ConfigFile = "/jcsim.yaml"
	s, err := cfg.openSession(context.Background())
	require.NoError(t, err)
	defer s.close()
	require.NotNil(t, s.metrics)
	assert.NotEmpty(t, s.metrics.addr)
}
