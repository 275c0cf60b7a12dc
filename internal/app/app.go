// Package app wires configuration into a running market data service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"marketdata/internal/config"
	"marketdata/internal/httpx"
	"marketdata/internal/logging"
	"marketdata/internal/provider"
	"marketdata/internal/provider/alphavantage"
	"marketdata/internal/provider/cache"
	"marketdata/internal/provider/finnhub"
	"marketdata/internal/provider/ratelimit"
	"marketdata/internal/provider/yahoo"
	"marketdata/internal/server"
	"marketdata/internal/service"
)

// App holds the wired components of the process.
type App struct {
	Config  config.Config
	Service *service.Service
	Poller  *service.Poller
	Handler http.Handler

	closer func() error
}

// Option customizes Build, mainly for tests.
type Option func(*options)

type options struct {
	now        func() time.Time
	httpClient httpx.Doer
}

// WithClock overrides the clock of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithHTTPClient replaces the HTTP client used by the provider adapters.
func WithHTTPClient(d httpx.Doer) Option {
	return func(o *options) { o.httpClient = d }
}

// Build validates cfg and constructs the service, poller and HTTP handler.
// The caller owns the returned App and must Close it.
func Build(ctx context.Context, cfg config.Config, log *logrus.Logger, opts ...Option) (*App, error) {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cal, err := cfg.Calendar()
	if err != nil {
		return nil, err
	}
	limits, err := Limits(cfg.Providers)
	if err != nil {
		return nil, err
	}

	store, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	providers := Providers(cfg.Providers, o.httpClient, o.now, log)
	svc, err := service.New(service.Config{
		SearchChain:        cfg.Chains.Search,
		QuoteChain:         cfg.Chains.Quote,
		HistoryProvider:    cfg.Chains.History,
		PollInterval:       cfg.Polling.Interval,
		RefreshConcurrency: cfg.Polling.Concurrency,
	}, service.Deps{
		Providers: providers,
		Limiter:   ratelimit.New(limits, ratelimit.WithClock(o.now)),
		Cache:     cache.New(store, cal, cfg.Polling.FreshnessThreshold, cache.WithClock(o.now)),
		Calendar:  cal,
		Logger:    logging.WithComponent(log, "service"),
		Now:       o.now,
	})
	if err != nil {
		_ = closer()
		return nil, err
	}
	svc.SetInstruments(cfg.Instruments)

	return &App{
		Config:  cfg,
		Service: svc,
		Poller:  service.NewPoller(svc),
		Handler: server.New(svc, server.Options{
			Logger:      logging.WithComponent(log, "http"),
			CORSOrigins: cfg.Server.CORSOrigins,
			Now:         o.now,
		}),
		closer: closer,
	}, nil
}

// Close stops the poller and releases the store.
func (a *App) Close() error {
	a.Poller.Stop()
	return a.closer()
}

// Limits converts provider sections into limiter budgets.
func Limits(p config.Providers) (map[string]ratelimit.Limits, error) {
	out := make(map[string]ratelimit.Limits, 3)
	for _, name := range []string{config.Finnhub, config.AlphaVantage, config.Yahoo} {
		pc, _ := p.ByName(name)
		if !pc.Enabled {
			continue
		}
		loc, err := pc.Location()
		if err != nil {
			return nil, fmt.Errorf("providers.%s.timezone: %w", name, err)
		}
		out[name] = ratelimit.Limits{Daily: pc.DailyLimit, Hourly: pc.HourlyLimit, Location: loc}
	}
	return out, nil
}

// Providers constructs the enabled adapters. A nil doer gets a tuned client
// per provider.
func Providers(p config.Providers, doer httpx.Doer, now func() time.Time, log *logrus.Logger) []provider.Provider {
	client := func(timeout time.Duration) httpx.Doer {
		if doer != nil {
			return doer
		}
		return httpx.New(timeout)
	}

	var out []provider.Provider
	if c := p.Finnhub; c.Enabled {
		if c.APIKey == "" {
			log.Warn("providers.finnhub is enabled but FINNHUB_API_KEY is not set")
		}
		out = append(out, finnhub.New(c.APIKey,
			finnhub.WithBaseURL(c.Endpoint),
			finnhub.WithTimeout(c.Timeout),
			finnhub.WithHTTPClient(client(c.Timeout)),
			finnhub.WithClock(now),
		))
	}
	if c := p.AlphaVantage; c.Enabled {
		if c.APIKey == "" {
			log.Warn("providers.alphavantage is enabled but ALPHAVANTAGE_API_KEY is not set")
		}
		out = append(out, alphavantage.New(c.APIKey,
			alphavantage.WithBaseURL(c.Endpoint),
			alphavantage.WithTimeout(c.Timeout),
			alphavantage.WithHTTPClient(client(c.Timeout)),
			alphavantage.WithClock(now),
		))
	}
	if c := p.Yahoo; c.Enabled {
		out = append(out, yahoo.New(
			yahoo.WithBaseURL(c.Endpoint),
			yahoo.WithTimeout(c.Timeout),
			yahoo.WithHTTPClient(client(c.Timeout)),
			yahoo.WithClock(now),
		))
	}
	return out
}

func openStore(ctx context.Context, cfg config.Store) (cache.Store, func() error, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryStore(), func() error { return nil }, nil
	case "redis":
		s, err := cache.DialRedis(ctx, cache.RedisOptions{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Redis.KeyPrefix,
			DialTimeout:  cfg.Redis.Timeout,
			ReadTimeout:  cfg.Redis.Timeout,
			WriteTimeout: cfg.Redis.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, errors.New("unknown store backend " + cfg.Backend)
}
