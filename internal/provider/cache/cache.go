// Package cache keeps the latest known quote per instrument and judges its
// freshness in elapsed trading time. It never calls a provider.
package cache

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/calendar"
	"marketdata/internal/provider"
)

// DefaultThreshold is used when no freshness threshold is configured.
const DefaultThreshold = 15 * time.Minute

// Record is the persisted latest quote of one instrument.
type Record struct {
	InstrumentID string          `json:"instrument_id"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty"`
	AsOf         time.Time       `json:"as_of"`
	FetchedAt    time.Time       `json:"fetched_at"`
	Provider     string          `json:"provider"`
	StoredAt     time.Time       `json:"stored_at"`
}

// RecordFrom converts a quote into its stored representation.
func RecordFrom(q provider.Quote, storedAt time.Time) Record {
	return Record{
		InstrumentID: q.InstrumentID,
		Symbol:       q.Symbol,
		Price:        q.Price,
		Currency:     q.Currency,
		AsOf:         q.AsOf,
		FetchedAt:    q.FetchedAt,
		Provider:     q.Provider,
		StoredAt:     storedAt,
	}
}

// Quote returns the quote held by the record.
func (r Record) Quote() provider.Quote {
	return provider.Quote{
		InstrumentID: r.InstrumentID,
		Symbol:       r.Symbol,
		Price:        r.Price,
		Currency:     r.Currency,
		AsOf:         r.AsOf,
		FetchedAt:    r.FetchedAt,
		Provider:     r.Provider,
	}
}

// Cache wraps a Store with calendar-aware freshness.
type Cache struct {
	store     Store
	cal       *calendar.Calendar
	threshold time.Duration
	now       func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used to stamp stored records.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store Store, cal *calendar.Calendar, threshold time.Duration, opts ...Option) *Cache {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cal == nil {
		cal = calendar.Default()
	}
	c := &Cache{store: store, cal: cal, threshold: threshold, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Threshold returns the configured freshness threshold.
func (c *Cache) Threshold() time.Duration { return c.threshold }

// Upsert stores q unless a record with a newer fetch time already exists.
func (c *Cache) Upsert(ctx context.Context, q provider.Quote) error {
	_, err := c.store.UpsertQuote(ctx, RecordFrom(q, c.now().UTC()))
	return err
}

// Latest returns the stored record for the instrument, if any.
func (c *Cache) Latest(ctx context.Context, instrumentID string) (Record, bool, error) {
	return c.store.LatestQuote(ctx, instrumentID)
}

// Age is the trading time of the exchange elapsed since the record was fetched.
func (c *Cache) Age(rec Record, now time.Time, exchange string) time.Duration {
	return c.cal.TradingTimeBetween(rec.FetchedAt, now, exchange)
}

// IsFresh reports whether less than the threshold of trading time has
// elapsed since the record was fetched. A weekend does not age a quote.
func (c *Cache) IsFresh(rec Record, now time.Time, exchange string) bool {
	if rec.FetchedAt.IsZero() {
		return false
	}
	return c.Age(rec, now, exchange) < c.threshold
}

// PutBars stores daily bars; a bar for an existing (instrument, date) replaces it.
func (c *Cache) PutBars(ctx context.Context, bars []provider.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}
	return c.store.PutBars(ctx, bars)
}

// Bars returns stored bars inside r, sorted by date.
func (c *Cache) Bars(ctx context.Context, instrumentID string, r provider.DateRange) ([]provider.PriceBar, error) {
	return c.store.Bars(ctx, instrumentID, r)
}
