package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"marketdata/internal/provider"
)

// Quote reads the regular market price from a one-day chart.
func (c *Client) Quote(ctx context.Context, inst provider.Instrument) (provider.Quote, error) {
	sym := provider.ResolveSymbol(inst, Name)
	res, err := c.chart(ctx, provider.CapQuote, sym, url.Values{"range": {"1d"}, "interval": {"1d"}})
	if err != nil {
		return provider.Quote{}, err
	}
	price := res.Meta.RegularMarketPrice
	if !price.Valid {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrNotFound, fmt.Errorf("no market price for %s", sym))
	}
	if !price.Decimal.IsPositive() {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrInvalidResponse, fmt.Errorf("price %s for %s", price.Decimal, sym))
	}
	if res.Meta.RegularMarketTime <= 0 {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrInvalidResponse, fmt.Errorf("missing market time for %s", sym))
	}
	currency := res.Meta.Currency
	if currency == "" {
		currency = inst.Currency
	}
	return provider.Quote{
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		Price:        price.Decimal,
		Currency:     currency,
		AsOf:         time.Unix(res.Meta.RegularMarketTime, 0).UTC(),
		FetchedAt:    c.now().UTC(),
		Provider:     Name,
	}, nil
}
