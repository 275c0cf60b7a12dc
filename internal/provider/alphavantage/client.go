// Package alphavantage adapts the Alpha Vantage query API (search, quote, history).
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketdata/internal/httpx"
	"marketdata/internal/provider"
)

const (
	// Name is the provider name used in chains, limits and symbol overrides.
	Name    = "alphavantage"
	baseURL = "https://www.alphavantage.co"
)

// Client is an Alpha Vantage adapter.
type Client struct {
	baseURL    string
	httpClient httpx.Doer
	header     http.Header
	// query carries the api key on every request.
	query   url.Values
	timeout time.Duration
	now     func() time.Time
}

// Option is a configuration option for the Alpha Vantage client.
type Option func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(d httpx.Doer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithHeader adds headers to be sent with each request.
func WithHeader(header http.Header) Option {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithTimeout bounds each call. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the clock used to stamp fetch times.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates an Alpha Vantage client authenticated with key.
func New(key string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
		timeout:    httpx.DefaultTimeout,
		now:        time.Now,
	}
	if key != "" {
		c.query.Set("apikey", key)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

func (c *Client) Capabilities() []provider.Capability {
	return []provider.Capability{provider.CapSearch, provider.CapQuote, provider.CapHistory}
}

// status holds the in-body messages Alpha Vantage returns with HTTP 200.
type status struct {
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (s status) err(op provider.Capability) error {
	switch {
	case s.ErrorMessage != "":
		return provider.Fail(Name, op, provider.ErrNotFound, errors.New(s.ErrorMessage))
	case s.Note != "":
		return provider.Fail(Name, op, provider.ErrRateLimited, errors.New(s.Note))
	case s.Information != "":
		// Premium-only endpoints and the daily cap both arrive here.
		if strings.Contains(strings.ToLower(s.Information), "rate limit") {
			return provider.Fail(Name, op, provider.ErrRateLimited, errors.New(s.Information))
		}
		return provider.Fail(Name, op, provider.ErrInvalidResponse, errors.New(s.Information))
	}
	return nil
}

// call performs GET /query?function=fn and decodes the JSON body into out.
// out must embed status.
func (c *Client) call(ctx context.Context, op provider.Capability, fn string, params url.Values, out interface{ err(provider.Capability) error }) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := maps.Clone(c.query)
	query.Set("function", fn)
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	u := fmt.Sprintf("%s/query?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", Name, err)
	}
	req.Header = c.header.Clone()

	res, err := c.httpClient.Do(req)
	if err != nil {
		return provider.TransportFail(Name, op, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return provider.StatusFail(Name, op, res.StatusCode, httpx.Snippet(res.Body))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return provider.TransportFail(Name, op, err)
		}
		return provider.Fail(Name, op, provider.ErrInvalidResponse, fmt.Errorf("decoding response: %w", err))
	}
	return out.err(op)
}
