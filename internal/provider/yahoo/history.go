package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"marketdata/internal/provider"
)

// History fetches daily bars for r. Bars with a missing price are skipped.
func (c *Client) History(ctx context.Context, inst provider.Instrument, r provider.DateRange) ([]provider.PriceBar, error) {
	sym := provider.ResolveSymbol(inst, Name)
	query := url.Values{
		"period1":  {strconv.FormatInt(provider.Day(r.From).Unix(), 10)},
		"period2":  {strconv.FormatInt(provider.Day(r.To).AddDate(0, 0, 1).Unix(), 10)},
		"interval": {"1d"},
		"events":   {"history"},
	}
	res, err := c.chart(ctx, provider.CapHistory, sym, query)
	if err != nil {
		return nil, err
	}
	if len(res.Indicators.Quote) == 0 {
		return nil, provider.Fail(Name, provider.CapHistory, provider.ErrNotFound, fmt.Errorf("no bars for %s", sym))
	}
	q := res.Indicators.Quote[0]
	n := len(res.Timestamp)
	if len(q.Open) != n || len(q.High) != n || len(q.Low) != n || len(q.Close) != n {
		return nil, provider.Fail(Name, provider.CapHistory, provider.ErrInvalidResponse, fmt.Errorf("ragged series for %s", sym))
	}

	loc := res.location(inst.Timezone)
	out := make([]provider.PriceBar, 0, n)
	for i, ts := range res.Timestamp {
		if !q.Open[i].Valid || !q.High[i].Valid || !q.Low[i].Valid || !q.Close[i].Valid {
			continue
		}
		d := provider.Day(time.Unix(ts, 0).In(loc))
		if !r.Contains(d) {
			continue
		}
		bar := provider.PriceBar{
			InstrumentID: inst.ID,
			Date:         d,
			Open:         q.Open[i].Decimal,
			High:         q.High[i].Decimal,
			Low:          q.Low[i].Decimal,
			Close:        q.Close[i].Decimal,
			Provider:     Name,
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			v := *q.Volume[i]
			bar.Volume = &v
		}
		out = append(out, bar)
	}
	if len(out) == 0 {
		return nil, provider.Fail(Name, provider.CapHistory, provider.ErrNotFound, fmt.Errorf("no bars for %s in range", sym))
	}
	return out, nil
}
