package alphavantage

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"marketdata/internal/provider"
)

const (
	dateLayout = "2006-01-02"
	// compactDays is roughly what outputsize=compact (100 bars) covers.
	compactDays = 140
)

type dailyResponse struct {
	status
	TimeSeries map[string]struct {
		Open   decimal.Decimal `json:"1. open"`
		High   decimal.Decimal `json:"2. high"`
		Low    decimal.Decimal `json:"3. low"`
		Close  decimal.Decimal `json:"4. close"`
		Volume string          `json:"5. volume"`
	} `json:"Time Series (Daily)"`
}

// History calls TIME_SERIES_DAILY and keeps the bars inside r.
func (c *Client) History(ctx context.Context, inst provider.Instrument, r provider.DateRange) ([]provider.PriceBar, error) {
	sym := provider.ResolveSymbol(inst, Name)
	size := "compact"
	if (provider.DateRange{From: r.From, To: c.now()}).Days() > compactDays {
		size = "full"
	}
	var body dailyResponse
	if err := c.call(ctx, provider.CapHistory, "TIME_SERIES_DAILY", url.Values{"symbol": {sym}, "outputsize": {size}}, &body); err != nil {
		return nil, err
	}

	out := make([]provider.PriceBar, 0, len(body.TimeSeries))
	for day, v := range body.TimeSeries {
		d, err := time.Parse(dateLayout, day)
		if err != nil {
			return nil, provider.Fail(Name, provider.CapHistory, provider.ErrInvalidResponse, fmt.Errorf("bar date %q: %w", day, err))
		}
		if !r.Contains(d) {
			continue
		}
		bar := provider.PriceBar{
			InstrumentID: inst.ID,
			Date:         d,
			Open:         v.Open,
			High:         v.High,
			Low:          v.Low,
			Close:        v.Close,
			Provider:     Name,
		}
		if v.Volume != "" {
			vol, err := strconv.ParseInt(v.Volume, 10, 64)
			if err != nil {
				return nil, provider.Fail(Name, provider.CapHistory, provider.ErrInvalidResponse, fmt.Errorf("volume %q: %w", v.Volume, err))
			}
			bar.Volume = &vol
		}
		out = append(out, bar)
	}
	if len(out) == 0 {
		return nil, provider.Fail(Name, provider.CapHistory, provider.ErrNotFound, fmt.Errorf("no bars for %s between %s and %s", sym, r.From.Format(dateLayout), r.To.Format(dateLayout)))
	}
	sortBars(out)
	return out, nil
}

func sortBars(bars []provider.PriceBar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
