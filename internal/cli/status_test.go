package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okanya/webagentd/internal/config"
)

func TestStatusCommand(t *testing.T) {
	t.Run("command exists", func(t *testing.T) {
		cmd := GetRootCmd()
		statusCmd := cmd.Commands()

		found := false
		for _, c := range statusCmd {
			if c.Name() == "status" {
				found = true
				break
			}
		}
		assert.True(t, found, "status command should exist")
	})

	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"status", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "status")
	})
}

func TestPrintDaemonStatus(t *testing.T) {
	t.Run("reachable daemon", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/pool/status", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"total_sessions":2,"max_sessions":10}`))
		}))
		defer srv.Close()

		cfg := serverConfigFor(t, srv.URL)

		out := &bytes.Buffer{}
		printDaemonStatus(out, cfg)
		assert.Equal(t, "Sessions: 2/10\n", out.String())
	})

	t.Run("unreachable daemon stays silent", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.Server.Host = "127.0.0.1"
		cfg.Server.Port = 1 // nothing listens here

		out := &bytes.Buffer{}
		printDaemonStatus(out, cfg)
		assert.Empty(t, out.String())
	})
}

func serverConfigFor(t *testing.T, rawURL string) *config.Config {
	t.Helper()

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Server.Host = u.Hostname()
	cfg.Server.Port = port
	return cfg
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		expected string
	}{
		{"seconds only", 45 * time.Second, "45s"},
		{"minutes and seconds", 2*time.Minute + 30*time.Second, "2m30s"},
		{"hours minutes seconds", 3*time.Hour + 15*time.Minute + 20*time.Second, "3h15m20s"},
		{"zero", 0, "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatDuration(tt.duration)
			assert.Equal(t, tt.expected, result)
		})
	}
}
