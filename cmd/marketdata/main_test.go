package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata/internal/provider"
)

func TestParseRange(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 3, 22, 0, 0, 0, time.UTC)

	r, err := parseRange("", "", now)
	require.NoError(t, err)
	require.Equal(t, provider.DateRange{
		From: time.Date(2025, 5, 4, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	}, r)

	r, err = parseRange("2025-01-02", "2025-01-31", now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), r.From)

	_, err = parseRange("Jan 2", "", now)
	require.ErrorContains(t, err, "--from")
}

// offlineConfig writes a config whose commands never reach a vendor.
func offlineConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: error
providers:
  alphavantage:
    enabled: false
chains:
  search: [finnhub]
  quote: [finnhub, yahoo]
  history: yahoo
`), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_StatusWithEmptyWatchlist(t *testing.T) {
	// Act
	out, err := run(t, "status", "--config", offlineConfig(t))

	// Assert
	require.NoError(t, err)
	require.Contains(t, out, `"instrument_count": 0`)
	require.Contains(t, out, `"all_fresh": true`)
	require.Contains(t, out, `"scheduler_running": false`)
}

func TestRootCmd_HistoryFromStore(t *testing.T) {
	// Act: a fresh memory store holds no bars
	out, err := run(t, "history", "VTI", "--cached", "--from", "2025-06-02", "--to", "2025-06-03", "--config", offlineConfig(t))

	// Assert
	require.NoError(t, err)
	require.JSONEq(t, `[]`, out)
}
