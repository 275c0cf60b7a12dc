package alphavantage

import (
	"context"
	"net/url"

	"marketdata/internal/provider"
)

type searchResponse struct {
	status
	BestMatches []struct {
		Symbol   string `json:"1. symbol"`
		Name     string `json:"2. name"`
		Type     string `json:"3. type"`
		Region   string `json:"4. region"`
		Currency string `json:"8. currency"`
	} `json:"bestMatches"`
}

// SearchSymbols calls SYMBOL_SEARCH.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]provider.SymbolSearchResult, error) {
	var body searchResponse
	if err := c.call(ctx, provider.CapSearch, "SYMBOL_SEARCH", url.Values{"keywords": {query}}, &body); err != nil {
		return nil, err
	}
	out := make([]provider.SymbolSearchResult, 0, len(body.BestMatches))
	for _, m := range body.BestMatches {
		if m.Symbol == "" {
			continue
		}
		out = append(out, provider.SymbolSearchResult{
			Symbol:   m.Symbol,
			Name:     m.Name,
			Type:     m.Type,
			Exchange: m.Region,
			Currency: m.Currency,
			Provider: Name,
		})
	}
	return out, nil
}
