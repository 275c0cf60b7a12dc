package yahoo

import (
	"time"

	"github.com/shopspring/decimal"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta struct {
		Currency             string              `json:"currency"`
		Symbol               string              `json:"symbol"`
		ExchangeTimezoneName string              `json:"exchangeTimezoneName"`
		RegularMarketPrice   decimal.NullDecimal `json:"regularMarketPrice"`
		RegularMarketTime    int64               `json:"regularMarketTime"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []decimal.NullDecimal `json:"open"`
			High   []decimal.NullDecimal `json:"high"`
			Low    []decimal.NullDecimal `json:"low"`
			Close  []decimal.NullDecimal `json:"close"`
			Volume []*int64              `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// location returns the exchange timezone reported by the chart, then
// fallback, then UTC.
func (r *chartResult) location(fallback string) *time.Location {
	for _, name := range []string{r.Meta.ExchangeTimezoneName, fallback} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}
