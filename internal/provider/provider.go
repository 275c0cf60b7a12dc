package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Capability is an operation a provider may or may not support.
type Capability string

const (
	CapSearch  Capability = "search"
	CapQuote   Capability = "quote"
	CapHistory Capability = "history"
)

// InstrumentType classifies an instrument.
type InstrumentType string

const (
	TypeStock InstrumentType = "stock"
	TypeETF   InstrumentType = "etf"
	TypeFund  InstrumentType = "fund"
)

// Instrument is the identity record supplied by the caller. It is never
// fetched by this package; adapters only read it.
type Instrument struct {
	ID       string         `json:"id" mapstructure:"id"`
	Symbol   string         `json:"symbol" mapstructure:"symbol"`
	Name     string         `json:"name" mapstructure:"name"`
	Type     InstrumentType `json:"type" mapstructure:"type"`
	Currency string         `json:"currency" mapstructure:"currency"`
	Exchange string         `json:"exchange" mapstructure:"exchange"`
	Timezone string         `json:"timezone" mapstructure:"timezone"`
	// ProviderSymbols maps provider name -> that provider's ticker spelling.
	ProviderSymbols map[string]string `json:"provider_symbols,omitempty" mapstructure:"provider_symbols"`
	FirstBarDate    time.Time         `json:"first_bar_date,omitempty" mapstructure:"first_bar_date"`
}

// Quote is a point-in-time price observation normalized from any provider.
// A new observation is a new Quote; values are never mutated.
type Quote struct {
	InstrumentID string          `json:"instrument_id"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty"`
	AsOf         time.Time       `json:"as_of"`
	FetchedAt    time.Time       `json:"fetched_at"`
	Provider     string          `json:"provider"`
}

// PriceBar is one trading day of OHLC(V) data.
type PriceBar struct {
	InstrumentID string          `json:"instrument_id"`
	Date         time.Time       `json:"date"`
	Open         decimal.Decimal `json:"open"`
	High         decimal.Decimal `json:"high"`
	Low          decimal.Decimal `json:"low"`
	Close        decimal.Decimal `json:"close"`
	Volume       *int64          `json:"volume,omitempty"`
	Provider     string          `json:"provider"`
}

// SymbolSearchResult is a lightweight match returned by a search call.
type SymbolSearchResult struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Exchange string `json:"exchange,omitempty"`
	Currency string `json:"currency,omitempty"`
	Provider string `json:"provider"`
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Days returns the number of calendar days covered by the range.
func (r DateRange) Days() int {
	if r.To.Before(r.From) {
		return 0
	}
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

// Contains reports whether d falls on a date inside the range.
func (r DateRange) Contains(d time.Time) bool {
	day := Day(d)
	return !day.Before(Day(r.From)) && !day.After(Day(r.To))
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Provider is implemented by every adapter.
//
//go:generate mockgen -destination=mock_provider/provider.go -package=mock_provider -source=provider.go
type Provider interface {
	Name() string
	Capabilities() []Capability
}

// Searcher looks up instruments by free-text query.
type Searcher interface {
	Provider
	SearchSymbols(ctx context.Context, query string) ([]SymbolSearchResult, error)
}

// Quoter fetches the latest price of an instrument.
type Quoter interface {
	Provider
	Quote(ctx context.Context, inst Instrument) (Quote, error)
}

// Historian fetches daily bars for an instrument.
type Historian interface {
	Provider
	History(ctx context.Context, inst Instrument, r DateRange) ([]PriceBar, error)
}

// Supports reports whether p declares capability c.
func Supports(p Provider, c Capability) bool {
	for _, have := range p.Capabilities() {
		if have == c {
			return true
		}
	}
	return false
}
