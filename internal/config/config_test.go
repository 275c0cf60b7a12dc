package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata/internal/config"
)

const sample = `
server:
  port: "9090"
log:
  level: debug
  format: json
providers:
  finnhub:
    api_key: file-key
    hourly_limit: 30
  alphavantage:
    enabled: false
chains:
  search: [finnhub]
  quote: [finnhub, yahoo]
  history: yahoo
polling:
  interval: 5m
  concurrency: 8
store:
  backend: redis
  redis:
    addr: redis:6379
    db: 2
exchanges:
  tse:
    timezone: Asia/Tokyo
    open: "09:00"
    close: "15:00"
  nyse:
    holidays: ["2025-12-25"]
instruments:
  - id: vti
    symbol: VTI
    type: etf
    currency: USD
    exchange: ARCA
  - id: vwrl
    symbol: VWRL
    type: etf
    currency: GBP
    exchange: LSE
    first_bar_date: "2012-05-22"
    provider_symbols:
      yahoo: VWRL.L
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "")
	t.Setenv("PORT", "")

	// Arrange
	path := writeConfig(t, sample)

	// Act
	cfg, err := config.Load(path)

	// Assert
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "file-key", cfg.Providers.Finnhub.APIKey)
	require.Equal(t, 30, cfg.Providers.Finnhub.HourlyLimit)
	require.True(t, cfg.Providers.Finnhub.Enabled)
	require.False(t, cfg.Providers.AlphaVantage.Enabled)
	require.Equal(t, 25, cfg.Providers.AlphaVantage.DailyLimit)
	require.Equal(t, []string{"finnhub", "yahoo"}, cfg.Chains.Quote)
	require.Equal(t, 5*time.Minute, cfg.Polling.Interval)
	require.Equal(t, 5*time.Minute, cfg.Polling.FreshnessThreshold)
	require.Equal(t, 8, cfg.Polling.Concurrency)
	require.Equal(t, "redis", cfg.Store.Backend)
	require.Equal(t, 2, cfg.Store.Redis.DB)
	require.Equal(t, "marketdata:", cfg.Store.Redis.KeyPrefix)

	require.Len(t, cfg.Instruments, 2)
	vwrl := cfg.Instruments[1]
	require.Equal(t, "VWRL.L", vwrl.ProviderSymbols["yahoo"])
	require.Equal(t, time.Date(2012, 5, 22, 0, 0, 0, 0, time.UTC), vwrl.FirstBarDate)

	require.Contains(t, cfg.Exchanges, "TSE")
	require.Equal(t, []string{"2025-12-25"}, cfg.Exchanges["NYSE"].Holidays)
	cal, err := cfg.Calendar()
	require.NoError(t, err)
	require.Equal(t, "Asia/Tokyo", cal.Exchange("tse").Location.String())
	// New Year's Day is no longer a holiday once the list is replaced.
	require.True(t, cal.IsTradingDay(time.Date(2025, 1, 1, 15, 0, 0, 0, time.UTC), "NYSE"))
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "env-key")
	t.Setenv("PORT", "7070")
	t.Setenv("MARKETDATA_LOG_LEVEL", "warn")
	t.Setenv("MARKETDATA_POLLING_INTERVAL", "1m")
	t.Setenv("MARKETDATA_PROVIDERS_YAHOO_ENABLED", "false")

	cfg, err := config.Load(writeConfig(t, sample))

	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Providers.Finnhub.APIKey)
	require.Equal(t, "7070", cfg.Server.Port)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, time.Minute, cfg.Polling.Interval)
	require.False(t, cfg.Providers.Yahoo.Enabled)
	require.ErrorContains(t, cfg.Validate(), `provider "yahoo" is disabled`)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, config.Default().Validate())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown provider", func(c *config.Config) { c.Chains.Quote = []string{"bloomberg"} }, `unknown provider "bloomberg"`},
		{"capability", func(c *config.Config) { c.Chains.History = "finnhub" }, "does not support history"},
		{"empty quote chain", func(c *config.Config) { c.Chains.Quote = nil }, "at least one provider"},
		{"backend", func(c *config.Config) { c.Store.Backend = "mongo" }, `unknown backend "mongo"`},
		{"interval", func(c *config.Config) { c.Polling.Interval = 0 }, "polling.interval"},
		{"default exchange", func(c *config.Config) { c.DefaultExchange = "NOWHERE" }, "NOWHERE"},
		{"bad clock", func(c *config.Config) {
			c.Exchanges["LSE"] = calendarConfig("Europe/London", "8am", "16:30")
		}, "8am"},
		{"duplicate instrument", func(c *config.Config) {
			c.Instruments = append(c.Instruments, instrument("vti"), instrument("vti"))
		}, `duplicate id "vti"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.Default()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}
