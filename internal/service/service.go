// Package service is the single read path for market data. It walks the
// configured provider chains, consults the rate limiter and the quote cache,
// and never lets a single provider failure reach the caller.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"marketdata/internal/aggregate"
	"marketdata/internal/calendar"
	"marketdata/internal/provider"
	"marketdata/internal/provider/cache"
	"marketdata/internal/provider/ratelimit"
)

var (
	// ErrInvalidRange is returned by GetHistory when From is after To.
	ErrInvalidRange = errors.New("invalid date range")
	// ErrNoHistoryProvider is returned by GetHistory when none is configured.
	ErrNoHistoryProvider = errors.New("no history provider configured")
)

// Config selects and orders the providers used for each operation.
type Config struct {
	SearchChain     []string
	QuoteChain      []string
	HistoryProvider string
	PollInterval    time.Duration
	// RefreshConcurrency bounds parallel quote fetches in RefreshAll; 0 is unbounded.
	RefreshConcurrency int
}

// Deps are the collaborators of a Service.
type Deps struct {
	Providers []provider.Provider
	Limiter   *ratelimit.Limiter
	Cache     *cache.Cache
	Calendar  *calendar.Calendar
	Logger    *logrus.Entry
	Now       func() time.Time
}

// Service orchestrates providers, limiter and cache.
type Service struct {
	cfg       Config
	searchers []provider.Searcher
	quoters   []provider.Quoter
	historian provider.Historian

	limiter *ratelimit.Limiter
	cache   *cache.Cache
	cal     *calendar.Calendar
	log     *logrus.Entry
	now     func() time.Time

	sf singleflight.Group

	mu          sync.RWMutex
	instruments []provider.Instrument

	polling  atomic.Bool
	lastTick atomic.Pointer[tickRecord]
}

type tickRecord struct {
	ran         bool
	refreshedAt time.Time
}

// New builds a Service. Chain entries naming an unknown provider, or one
// lacking the needed capability, are dropped with a warning.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Cache == nil {
		return nil, errors.New("service: cache is required")
	}
	s := &Service{
		cfg:     cfg,
		limiter: deps.Limiter,
		cache:   deps.Cache,
		cal:     deps.Calendar,
		log:     deps.Logger,
		now:     deps.Now,
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New(nil)
	}
	if s.cal == nil {
		s.cal = calendar.Default()
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "service")
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.PollInterval <= 0 {
		s.cfg.PollInterval = cache.DefaultThreshold
	}

	byName := make(map[string]provider.Provider, len(deps.Providers))
	for _, p := range deps.Providers {
		byName[p.Name()] = p
	}

	for _, name := range cfg.SearchChain {
		if p, ok := s.lookup(byName, name, provider.CapSearch); ok {
			if sp, ok := p.(provider.Searcher); ok {
				s.searchers = append(s.searchers, sp)
			}
		}
	}
	for _, name := range cfg.QuoteChain {
		if p, ok := s.lookup(byName, name, provider.CapQuote); ok {
			if qp, ok := p.(provider.Quoter); ok {
				s.quoters = append(s.quoters, qp)
			}
		}
	}
	if cfg.HistoryProvider != "" {
		p, ok := byName[cfg.HistoryProvider]
		if !ok {
			return nil, fmt.Errorf("service: history provider %q is not configured", cfg.HistoryProvider)
		}
		hp, ok := p.(provider.Historian)
		if !ok || !provider.Supports(p, provider.CapHistory) {
			return nil, fmt.Errorf("service: provider %q does not support history", cfg.HistoryProvider)
		}
		s.historian = hp
	}
	return s, nil
}

func (s *Service) lookup(byName map[string]provider.Provider, name string, c provider.Capability) (provider.Provider, bool) {
	p, ok := byName[name]
	if !ok {
		s.log.WithField("provider", name).Warnf("%s chain names an unavailable provider; skipping", c)
		return nil, false
	}
	if !provider.Supports(p, c) {
		s.log.WithField("provider", name).Warnf("provider does not support %s; dropped from chain", c)
		return nil, false
	}
	return p, true
}

// acquire spends one unit of the provider's budget.
func (s *Service) acquire(name string) error {
	if !s.limiter.TryAcquire(name) {
		return fmt.Errorf("%s: %w", name, ratelimit.ErrBudgetExhausted)
	}
	return nil
}

// logFailure logs a provider failure at a level matching its kind.
func (s *Service) logFailure(name string, op provider.Capability, err error) {
	entry := s.log.WithFields(logrus.Fields{"provider": name, "op": string(op)}).WithError(err)
	switch kind := provider.KindOf(err); {
	case errors.Is(err, ratelimit.ErrBudgetExhausted):
		entry.Debug("budget exhausted; falling back")
	case kind == provider.ErrRateLimited, kind == provider.ErrNotFound:
		entry.Info("provider call failed; falling back")
	case kind == provider.ErrInvalidResponse:
		entry.Error("provider returned an unexpected payload")
	default:
		entry.Warn("provider call failed; falling back")
	}
}

// SearchSymbols walks the search chain and returns the first provider
// answer. Exhaustion of the chain yields an empty slice.
func (s *Service) SearchSymbols(ctx context.Context, query string) []provider.SymbolSearchResult {
	query = strings.TrimSpace(query)
	if query == "" {
		return []provider.SymbolSearchResult{}
	}
	for _, p := range s.searchers {
		if err := s.acquire(p.Name()); err != nil {
			s.logFailure(p.Name(), provider.CapSearch, err)
			continue
		}
		res, err := p.SearchSymbols(ctx, query)
		if err != nil {
			s.logFailure(p.Name(), provider.CapSearch, err)
			continue
		}
		if res == nil {
			res = []provider.SymbolSearchResult{}
		}
		return res
	}
	s.log.WithField("query", query).Info("search chain exhausted")
	return []provider.SymbolSearchResult{}
}

type source int

const (
	sourceNone source = iota
	sourceProvider
	sourceCacheFresh
	sourceCacheStale
)

type outcome struct {
	quote       provider.Quote
	source      source
	rateLimited bool
}

func (o outcome) ok() bool { return o.source != sourceNone }

// GetQuote returns the best available quote for inst: the primary provider,
// then a fresh cached record, then the rest of the chain, then a stale
// cached record. The bool is false only when none of these produced a price.
func (s *Service) GetQuote(ctx context.Context, inst provider.Instrument) (provider.Quote, bool) {
	o := s.resolve(ctx, inst)
	return o.quote, o.ok()
}

// resolve coalesces concurrent lookups of the same instrument. The shared
// lookup is detached from any one caller's cancellation; adapters bound each
// provider call with their own timeout. A caller whose ctx ends stops waiting
// and gets no result while the others still receive theirs.
func (s *Service) resolve(ctx context.Context, inst provider.Instrument) outcome {
	ch := s.sf.DoChan(inst.ID, func() (any, error) {
		return s.resolveQuote(context.WithoutCancel(ctx), inst), nil
	})
	select {
	case res := <-ch:
		return res.Val.(outcome)
	case <-ctx.Done():
		return outcome{}
	}
}

func (s *Service) resolveQuote(ctx context.Context, inst provider.Instrument) outcome {
	var o outcome
	log := s.log.WithFields(logrus.Fields{"instrument": inst.ID, "symbol": inst.Symbol})

	if len(s.quoters) > 0 {
		q, err := s.fetchQuote(ctx, s.quoters[0], inst)
		if err == nil {
			s.persist(ctx, q)
			o.quote, o.source = q, sourceProvider
			return o
		}
		o.rateLimited = throttled(err)
	}

	rec, cached := s.cached(ctx, inst)
	if cached && s.cache.IsFresh(rec, s.now(), inst.Exchange) {
		log.Debug("serving fresh cached quote")
		o.quote, o.source = rec.Quote(), sourceCacheFresh
		return o
	}

	for i := 1; i < len(s.quoters); i++ {
		q, err := s.fetchQuote(ctx, s.quoters[i], inst)
		if err == nil {
			s.persist(ctx, q)
			o.quote, o.source = q, sourceProvider
			return o
		}
		o.rateLimited = o.rateLimited || throttled(err)
	}

	if cached {
		log.WithField("fetched_at", rec.FetchedAt).Warn("all providers failed; serving stale quote")
		o.quote, o.source = rec.Quote(), sourceCacheStale
		return o
	}
	log.Warn("all providers failed and nothing is cached")
	return o
}

func throttled(err error) bool {
	return errors.Is(err, ratelimit.ErrBudgetExhausted) || errors.Is(err, provider.ErrRateLimited)
}

func (s *Service) fetchQuote(ctx context.Context, p provider.Quoter, inst provider.Instrument) (provider.Quote, error) {
	if err := s.acquire(p.Name()); err != nil {
		s.logFailure(p.Name(), provider.CapQuote, err)
		return provider.Quote{}, err
	}
	q, err := p.Quote(ctx, inst)
	if err != nil {
		s.logFailure(p.Name(), provider.CapQuote, err)
		return provider.Quote{}, err
	}
	return q, nil
}

func (s *Service) persist(ctx context.Context, q provider.Quote) {
	if err := s.cache.Upsert(ctx, q); err != nil {
		s.log.WithError(err).WithField("instrument", q.InstrumentID).Warn("storing quote")
	}
}

func (s *Service) cached(ctx context.Context, inst provider.Instrument) (cache.Record, bool) {
	rec, ok, err := s.cache.Latest(ctx, inst.ID)
	if err != nil {
		s.log.WithError(err).WithField("instrument", inst.ID).Warn("reading cached quote")
		return cache.Record{}, false
	}
	return rec, ok
}

// GetHistory fetches daily bars from the history provider. Failures are
// returned to the caller; there is no fallback.
func (s *Service) GetHistory(ctx context.Context, inst provider.Instrument, r provider.DateRange) ([]provider.PriceBar, error) {
	if s.historian == nil {
		return nil, ErrNoHistoryProvider
	}
	r, empty, err := barRange(inst, r)
	if err != nil {
		return nil, err
	}
	if empty {
		return []provider.PriceBar{}, nil
	}

	name := s.historian.Name()
	if err := s.acquire(name); err != nil {
		s.logFailure(name, provider.CapHistory, err)
		return nil, err
	}
	bars, err := s.historian.History(ctx, inst, r)
	if err != nil {
		s.logFailure(name, provider.CapHistory, err)
		return nil, err
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	if err := s.cache.PutBars(ctx, bars); err != nil {
		s.log.WithError(err).WithField("instrument", inst.ID).Warn("storing bars")
	}
	return bars, nil
}

// barRange normalizes r to whole dates and clamps From to the instrument's
// first bar. empty is true when nothing can exist inside the clamped range.
func barRange(inst provider.Instrument, r provider.DateRange) (provider.DateRange, bool, error) {
	r = provider.DateRange{From: provider.Day(r.From), To: provider.Day(r.To)}
	if r.To.Before(r.From) {
		return r, false, fmt.Errorf("%s to %s: %w", r.From.Format(time.DateOnly), r.To.Format(time.DateOnly), ErrInvalidRange)
	}
	if !inst.FirstBarDate.IsZero() {
		if first := provider.Day(inst.FirstBarDate); r.From.Before(first) {
			r.From = first
		}
	}
	return r, r.Days() == 0, nil
}

// CachedHistory returns previously stored bars inside r without calling any
// provider. Dates before inst.FirstBarDate are never returned.
func (s *Service) CachedHistory(ctx context.Context, inst provider.Instrument, r provider.DateRange) ([]provider.PriceBar, error) {
	r, empty, err := barRange(inst, r)
	if err != nil {
		return nil, err
	}
	if empty {
		return []provider.PriceBar{}, nil
	}
	bars, err := s.cache.Bars(ctx, inst.ID, r)
	if err != nil {
		return nil, fmt.Errorf("reading stored bars: %w", err)
	}
	if bars == nil {
		bars = []provider.PriceBar{}
	}
	return bars, nil
}

// RefreshSummary is the result of one RefreshAll cycle.
type RefreshSummary struct {
	Refreshed   int  `json:"refreshed"`
	Failed      int  `json:"failed"`
	RateLimited bool `json:"rate_limited"`
}

// RefreshAll resolves a quote for every instrument in parallel and records
// them as the tracked watchlist. It never aborts early. An instrument counts
// as refreshed when a provider answered or the cache was still fresh.
func (s *Service) RefreshAll(ctx context.Context, instruments []provider.Instrument) RefreshSummary {
	s.SetInstruments(instruments)
	return s.refresh(ctx, instruments)
}

func (s *Service) refresh(ctx context.Context, instruments []provider.Instrument) RefreshSummary {
	var refreshed, failed atomic.Int64
	var limited atomic.Bool

	g, gctx := errgroup.WithContext(ctx)
	if s.cfg.RefreshConcurrency > 0 {
		g.SetLimit(s.cfg.RefreshConcurrency)
	}
	for _, inst := range instruments {
		g.Go(func() error {
			o := s.resolve(gctx, inst)
			switch o.source {
			case sourceProvider, sourceCacheFresh:
				refreshed.Add(1)
			default:
				failed.Add(1)
			}
			if o.rateLimited {
				limited.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	sum := RefreshSummary{Refreshed: int(refreshed.Load()), Failed: int(failed.Load()), RateLimited: limited.Load()}
	s.log.WithFields(logrus.Fields{
		"refreshed":    sum.Refreshed,
		"failed":       sum.Failed,
		"rate_limited": sum.RateLimited,
	}).Info("refresh cycle finished")
	return sum
}

// SetInstruments replaces the tracked watchlist.
func (s *Service) SetInstruments(instruments []provider.Instrument) {
	cp := make([]provider.Instrument, len(instruments))
	copy(cp, instruments)
	s.mu.Lock()
	s.instruments = cp
	s.mu.Unlock()
}

// Instruments returns a copy of the tracked watchlist.
func (s *Service) Instruments() []provider.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]provider.Instrument, len(s.instruments))
	copy(cp, s.instruments)
	return cp
}

// Lookup finds a tracked instrument by id or symbol, case-insensitively.
func (s *Service) Lookup(key string) (provider.Instrument, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.instruments {
		if strings.EqualFold(inst.ID, key) || strings.EqualFold(inst.Symbol, key) {
			return inst, true
		}
	}
	return provider.Instrument{}, false
}

// MarketStatus is a point-in-time view of the subsystem. SchedulerRunning is
// true between Poller.Start and Poller.Stop; PollingActive additionally
// requires the latest tick to have refreshed instruments, so it is false
// while every watched exchange is closed.
type MarketStatus struct {
	InstrumentCount  int                       `json:"instrument_count"`
	PollInterval     time.Duration             `json:"poll_interval"`
	SchedulerRunning bool                      `json:"scheduler_running"`
	PollingActive    bool                      `json:"polling_active"`
	LastPollAt       *time.Time                `json:"last_poll_at,omitempty"`
	Budgets          []ratelimit.Budget        `json:"budgets"`
	Freshness        aggregate.FreshnessReport `json:"freshness"`
}

// Status reports watchlist freshness, provider budgets and poller state.
func (s *Service) Status(ctx context.Context) MarketStatus {
	instruments := s.Instruments()
	now := s.now()
	obs := make([]aggregate.Observation, 0, len(instruments))
	for _, inst := range instruments {
		o := aggregate.Observation{InstrumentID: inst.ID, Symbol: inst.Symbol}
		if rec, ok := s.cached(ctx, inst); ok {
			o.Age = s.cache.Age(rec, now, inst.Exchange)
		} else {
			o.Missing = true
		}
		obs = append(obs, o)
	}
	st := MarketStatus{
		InstrumentCount:  len(instruments),
		PollInterval:     s.cfg.PollInterval,
		SchedulerRunning: s.polling.Load(),
		Budgets:          s.limiter.Budgets(),
		Freshness:        aggregate.Freshness(obs, s.cache.Threshold()),
	}
	if last := s.lastTick.Load(); last != nil {
		st.PollingActive = st.SchedulerRunning && last.ran
		if !last.refreshedAt.IsZero() {
			at := last.refreshedAt
			st.LastPollAt = &at
		}
	}
	return st
}

// recordTick remembers the outcome of the latest poll cycle.
func (s *Service) recordTick(at time.Time, ran bool) {
	rec := &tickRecord{ran: ran}
	if prev := s.lastTick.Load(); prev != nil {
		rec.refreshedAt = prev.refreshedAt
	}
	if ran {
		rec.refreshedAt = at
	}
	s.lastTick.Store(rec)
}
