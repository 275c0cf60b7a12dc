package finnhub

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/provider"
)

// {"c":261.74,"d":0.41,"dp":0.1569,"h":263.31,"l":260.68,"o":261.07,"pc":261.33,"t":1602705600}
type quoteResponse struct {
	Current decimal.Decimal `json:"c"`
	Time    int64           `json:"t"`
}

// Quote queries /quote. Finnhub answers unknown symbols with an all-zero
// payload, reported as not found.
func (c *Client) Quote(ctx context.Context, inst provider.Instrument) (provider.Quote, error) {
	sym := provider.ResolveSymbol(inst, Name)
	var body quoteResponse
	if err := c.get(ctx, provider.CapQuote, "/quote", url.Values{"symbol": {sym}}, &body); err != nil {
		return provider.Quote{}, err
	}
	if body.Time == 0 || body.Current.IsZero() {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrNotFound, fmt.Errorf("symbol %s", sym))
	}
	if body.Current.IsNegative() {
		return provider.Quote{}, provider.Fail(Name, provider.CapQuote, provider.ErrInvalidResponse, fmt.Errorf("negative price %s for %s", body.Current, sym))
	}
	return provider.Quote{
		InstrumentID: inst.ID,
		Symbol:       inst.Symbol,
		Price:        body.Current,
		Currency:     inst.Currency,
		AsOf:         time.Unix(body.Time, 0).UTC(),
		FetchedAt:    c.now().UTC(),
		Provider:     Name,
	}, nil
}
