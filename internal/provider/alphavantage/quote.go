package alphavantage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/provider"
)

type globalQuoteResponse struct {
	status
	GlobalQuote struct {
		Symbol           string          `json:"01. symbol"`
		Price            decimal.Decimal `json:"05. price"`
		LatestTradingDay string          `json:"07. latest trading day"`
	} `json:"Global Quote"`
}

// Quote calls GLOBAL_QUOTE. Alpha Vantage reports the trading day only, so
// AsOf is that date at midnight UTC.
func (c *Client) Quote(ctx context.Context, inst provider.Instrument) (provider.Quote, error) {
	sym := provider.ResolveSymbol(inst, Name)
	var body globalQuoteResponse
	if err := c.call(ctx, provider.CapQuote, "GLOBAL_QUOTE", url.Values{"symbol": {sym}}, &body); err != nil {
		return provider.Quote{}, err
	}
	gq := body.GlobalQuote
	if gq.Symbol == "" {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrNotFound, fmt.Errorf("symbol %s", sym))
	}
	if !gq.Price.IsPositive() {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrInvalidResponse, fmt.Errorf("price %s for %s", gq.Price, sym))
	}
	asOf, err := time.Parse(dateLayout, gq.LatestTradingDay)
	if err != nil {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrInvalidResponse, fmt.Errorf("latest trading day: %w", err))
	}
	return provider.Quote{
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		Price:        gq.Price,
		Currency:     inst.Currency,
		AsOf:         asOf,
		FetchedAt:    c.now().UTC(),
		Provider:     Name,
	}, nil
}
