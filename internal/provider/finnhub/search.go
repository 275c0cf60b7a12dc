package finnhub

import (
	"context"
	"net/url"
	"strings"

	"marketdata/internal/provider"
)

type searchResponse struct {
	Count  int `json:"count"`
	Result []struct {
		Description   string `json:"description"`
		DisplaySymbol string `json:"displaySymbol"`
		Symbol        string `json:"symbol"`
		Type          string `json:"type"`
	} `json:"result"`
}

// SearchSymbols queries /search.
func (c *Client) SearchSymbols(ctx context.Context, query string) ([]provider.SymbolSearchResult, error) {
	var body searchResponse
	if err := c.get(ctx, provider.CapSearch, "/search", url.Values{"q": {query}}, &body); err != nil {
		return nil, err
	}
	out := make([]provider.SymbolSearchResult, 0, len(body.Result))
	for _, r := range body.Result {
		sym := r.DisplaySymbol
		if sym == "" {
			sym = r.Symbol
		}
		if strings.TrimSpace(sym) == "" {
			continue
		}
		out = append(out, provider.SymbolSearchResult{
			Symbol:   sym,
			Name:     r.Description,
			Type:     r.Type,
			Provider: Name,
		})
	}
	return out, nil
}
