// Package config loads process configuration from defaults, an optional
// YAML/JSON file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"marketdata/internal/calendar"
	"marketdata/internal/provider"
)

// Provider names known to the process.
const (
	Finnhub      = "finnhub"
	AlphaVantage = "alphavantage"
	Yahoo        = "yahoo"
)

// EnvPrefix prefixes every environment override, e.g. MARKETDATA_LOG_LEVEL.
const EnvPrefix = "MARKETDATA"

type Server struct {
	Port              string        `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// CORSOrigins lists allowed origins; empty disables CORS headers.
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
	Output string `mapstructure:"output"` // stdout, stderr or a file path
}

// Provider configures one upstream adapter and its call budget.
type Provider struct {
	Enabled  bool          `mapstructure:"enabled"`
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// Zero means unlimited.
	DailyLimit  int `mapstructure:"daily_limit"`
	HourlyLimit int `mapstructure:"hourly_limit"`
	// Timezone in which the daily and hourly budgets reset.
	Timezone string `mapstructure:"timezone"`
}

type Providers struct {
	Finnhub      Provider `mapstructure:"finnhub"`
	AlphaVantage Provider `mapstructure:"alphavantage"`
	Yahoo        Provider `mapstructure:"yahoo"`
}

// ByName returns the provider section for name.
func (p Providers) ByName(name string) (Provider, bool) {
	switch name {
	case Finnhub:
		return p.Finnhub, true
	case AlphaVantage:
		return p.AlphaVantage, true
	case Yahoo:
		return p.Yahoo, true
	}
	return Provider{}, false
}

// Chains orders providers per operation; the first entry is the primary.
type Chains struct {
	Search  []string `mapstructure:"search"`
	Quote   []string `mapstructure:"quote"`
	History string   `mapstructure:"history"`
}

type Polling struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	// FreshnessThreshold defaults to Interval when zero.
	FreshnessThreshold time.Duration `mapstructure:"freshness_threshold"`
	Concurrency        int           `mapstructure:"concurrency"`
}

type Redis struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type Store struct {
	Backend string `mapstructure:"backend"` // memory or redis
	Redis   Redis  `mapstructure:"redis"`
}

type Config struct {
	Server    Server    `mapstructure:"server"`
	Log       Log       `mapstructure:"log"`
	Providers Providers `mapstructure:"providers"`
	Chains    Chains    `mapstructure:"chains"`
	Polling   Polling   `mapstructure:"polling"`
	Store     Store     `mapstructure:"store"`
	// DefaultExchange is used for instruments naming an unknown exchange.
	DefaultExchange string                             `mapstructure:"default_exchange"`
	Exchanges       map[string]calendar.ExchangeConfig `mapstructure:"exchanges"`
	Instruments     []provider.Instrument              `mapstructure:"instruments"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", ReadHeaderTimeout: 5 * time.Second, ShutdownTimeout: 10 * time.Second},
		Log:    Log{Level: "info", Format: "text", Output: "stdout"},
		Providers: Providers{
			Finnhub: Provider{
				Enabled:     true,
				Endpoint:    "https://finnhub.io/api/v1",
				Timeout:     10 * time.Second,
				DailyLimit:  0,
				HourlyLimit: 3600,
				Timezone:    "UTC",
			},
			AlphaVantage: Provider{
				Enabled:    true,
				Endpoint:   "https://www.alphavantage.co",
				Timeout:    10 * time.Second,
				DailyLimit: 25,
				Timezone:   "America/New_York",
			},
			Yahoo: Provider{
				Enabled:     true,
				Endpoint:    "https://query1.finance.yahoo.com",
				Timeout:     10 * time.Second,
				DailyLimit:  2000,
				HourlyLimit: 360,
				Timezone:    "UTC",
			},
		},
		Chains: Chains{
			Search:  []string{Finnhub, AlphaVantage},
			Quote:   []string{Finnhub, Yahoo, AlphaVantage},
			History: Yahoo,
		},
		Polling: Polling{Enabled: true, Interval: 15 * time.Minute, Concurrency: 4},
		Store: Store{
			Backend: "memory",
			Redis:   Redis{Addr: "localhost:6379", KeyPrefix: "marketdata:", Timeout: 3 * time.Second},
		},
		DefaultExchange: "NYSE",
		Exchanges:       calendar.DefaultExchanges(),
	}
}

// envKeys are the settings overridable as MARKETDATA_<KEY> with dots as
// underscores.
var envKeys = []string{
	"server.port",
	"server.cors_origins",
	"log.level",
	"log.format",
	"log.output",
	"providers.finnhub.enabled",
	"providers.finnhub.api_key",
	"providers.alphavantage.enabled",
	"providers.alphavantage.api_key",
	"providers.yahoo.enabled",
	"polling.enabled",
	"polling.interval",
	"store.backend",
	"store.redis.addr",
	"store.redis.password",
	"store.redis.db",
}

// wellKnownEnv binds unprefixed variables commonly set by deployments.
var wellKnownEnv = map[string]string{
	"server.port":                    "PORT",
	"providers.finnhub.api_key":      "FINNHUB_API_KEY",
	"providers.alphavantage.api_key": "ALPHAVANTAGE_API_KEY",
	"store.redis.addr":               "REDIS_ADDR",
}

// Load reads the config file at path over Default. An empty path falls back to
// CONFIG_FILE, then config.yaml in the working directory; a missing default file
// is not an error. Environment variables override the file.
func Load(path string) (Config, error) {
	cfg := Default()
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		names := []string{EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}
		if name, ok := wellKnownEnv[key]; ok {
			names = append(names, name)
		}
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return cfg, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CONFIG_FILE")
		explicit = path != ""
	}
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.StringToTimeHookFunc(time.DateOnly),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Exchanges = normalizeExchanges(cfg.Exchanges)
	if cfg.Polling.FreshnessThreshold <= 0 {
		cfg.Polling.FreshnessThreshold = cfg.Polling.Interval
	}
	return cfg, nil
}

// normalizeExchanges upper-cases exchange names. Viper lower-cases file keys,
// so a lower-case entry overrides the built-in one of the same name.
func normalizeExchanges(in map[string]calendar.ExchangeConfig) map[string]calendar.ExchangeConfig {
	out := make(map[string]calendar.ExchangeConfig, len(in))
	for name, ex := range in {
		upper := strings.ToUpper(name)
		if _, ok := out[upper]; ok && name == upper {
			continue
		}
		out[upper] = ex
	}
	return out
}

// Validate checks chain names, exchanges and the watchlist.
func (c Config) Validate() error {
	var errs []error
	check := func(chain, name string, cap provider.Capability) {
		p, ok := c.Providers.ByName(name)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("chains.%s: unknown provider %q", chain, name))
		case !p.Enabled:
			errs = append(errs, fmt.Errorf("chains.%s: provider %q is disabled", chain, name))
		case !supports(name, cap):
			errs = append(errs, fmt.Errorf("chains.%s: provider %q does not support %s", chain, name, cap))
		}
	}
	for _, name := range c.Chains.Search {
		check("search", name, provider.CapSearch)
	}
	if len(c.Chains.Quote) == 0 {
		errs = append(errs, errors.New("chains.quote: at least one provider is required"))
	}
	for _, name := range c.Chains.Quote {
		check("quote", name, provider.CapQuote)
	}
	if c.Chains.History != "" {
		check("history", c.Chains.History, provider.CapHistory)
	}

	if c.Polling.Interval <= 0 {
		errs = append(errs, errors.New("polling.interval must be positive"))
	}
	if c.Polling.Concurrency < 0 {
		errs = append(errs, errors.New("polling.concurrency must not be negative"))
	}
	switch c.Store.Backend {
	case "memory":
	case "redis":
		if c.Store.Redis.Addr == "" {
			errs = append(errs, errors.New("store.redis.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend))
	}

	if _, err := c.Calendar(); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]struct{}, len(c.Instruments))
	for i, inst := range c.Instruments {
		if inst.ID == "" || inst.Symbol == "" {
			errs = append(errs, fmt.Errorf("instruments[%d]: id and symbol are required", i))
			continue
		}
		if _, dup := seen[inst.ID]; dup {
			errs = append(errs, fmt.Errorf("instruments[%d]: duplicate id %q", i, inst.ID))
		}
		seen[inst.ID] = struct{}{}
	}
	return errors.Join(errs...)
}

// Calendar builds the market calendar from the exchanges section.
func (c Config) Calendar() (*calendar.Calendar, error) {
	cal, err := calendar.New(c.Exchanges, c.DefaultExchange)
	if err != nil {
		return nil, fmt.Errorf("exchanges: %w", err)
	}
	return cal, nil
}

// Location returns the budget reset timezone of p, UTC when unset.
func (p Provider) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(p.Timezone)
}

var capabilities = map[string][]provider.Capability{
	Finnhub:      {provider.CapSearch, provider.CapQuote},
	AlphaVantage: {provider.CapSearch, provider.CapQuote, provider.CapHistory},
	Yahoo:        {provider.CapQuote, provider.CapHistory},
}

func supports(name string, c provider.Capability) bool {
	for _, have := range capabilities[name] {
		if have == c {
			return true
		}
	}
	return false
}
