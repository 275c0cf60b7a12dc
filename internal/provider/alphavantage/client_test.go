package alphavantage_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketdata/internal/httpx/mock_httpx"
	"marketdata/internal/provider"
	"marketdata/internal/provider/alphavantage"
)

var now = time.Date(2025, 6, 2, 16, 0, 5, 0, time.UTC)

func respond(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func newClient(doer *mock_httpx.MockDoer) *alphavantage.Client {
	return alphavantage.New("test-key",
		alphavantage.WithHTTPClient(doer),
		alphavantage.WithBaseURL("http://av.test"),
		alphavantage.WithClock(func() time.Time { return now }),
	)
}

func TestQuote(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock HTTP client
	ctrl := gomock.NewController(t)
	httpClient := mock_httpx.NewMockDoer(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "/query", req.URL.Path)
			require.Equal(t, "GLOBAL_QUOTE", req.URL.Query().Get("function"))
			require.Equal(t, "VTI", req.URL.Query().Get("symbol"))
			require.Equal(t, "test-key", req.URL.Query().Get("apikey"))
			return respond(http.StatusOK, `{"Global Quote": {
				"01. symbol": "VTI", "02. open": "250.1000", "05. price": "251.4000",
				"06. volume": "3000000", "07. latest trading day": "2025-06-02"
			}}`), nil
		}).
		Times(1)

	// Act
	q, err := newClient(httpClient).Quote(t.Context(), provider.Instrument{ID: "vti", Symbol: "VTI", Currency: "USD"})

	// Assert
	require.NoError(t, err)
	require.Equal(t, "vti", q.InstrumentID)
	require.Equal(t, "251.4", q.Price.String())
	require.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), q.AsOf)
	require.Equal(t, now, q.FetchedAt)
	require.Equal(t, alphavantage.Name, q.Provider)
}

func TestQuote_InBodyErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want error
	}{
		{"empty quote", `{"Global Quote": {}}`, provider.ErrNotFound},
		{"error message", `{"Error Message": "Invalid API call."}`, provider.ErrNotFound},
		{"note", `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`, provider.ErrRateLimited},
		{"daily cap", `{"Information": "We have detected your API key and our standard API rate limit is 25 requests per day."}`, provider.ErrRateLimited},
		{"premium", `{"Information": "This is a premium endpoint."}`, provider.ErrInvalidResponse},
		{"bad price", `{"Global Quote": {"01. symbol": "VTI", "05. price": "abc", "07. latest trading day": "2025-06-02"}}`, provider.ErrInvalidResponse},
		{"bad date", `{"Global Quote": {"01. symbol": "VTI", "05. price": "1.00", "07. latest trading day": "June 2"}}`, provider.ErrInvalidResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			httpClient := mock_httpx.NewMockDoer(ctrl)
			httpClient.EXPECT().Do(gomock.Any()).Return(respond(http.StatusOK, tc.body), nil).Times(1)

			_, err := newClient(httpClient).Quote(t.Context(), provider.Instrument{ID: "vti", Symbol: "VTI"})
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestSearchSymbols(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock_httpx.NewMockDoer(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "SYMBOL_SEARCH", req.URL.Query().Get("function"))
			require.Equal(t, "tesco", req.URL.Query().Get("keywords"))
			return respond(http.StatusOK, `{"bestMatches": [
				{"1. symbol": "TSCO.LON", "2. name": "Tesco PLC", "3. type": "Equity", "4. region": "United Kingdom",
				 "5. marketOpen": "08:00", "6. marketClose": "16:30", "7. timezone": "UTC+01", "8. currency": "GBX", "9. matchScore": "0.7273"}
			]}`), nil
		}).
		Times(1)

	got, err := newClient(httpClient).SearchSymbols(t.Context(), "tesco")
	require.NoError(t, err)
	require.Equal(t, []provider.SymbolSearchResult{{
		Symbol: "TSCO.LON", Name: "Tesco PLC", Type: "Equity", Exchange: "United Kingdom", Currency: "GBX", Provider: alphavantage.Name,
	}}, got)
}

func TestHistory(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock_httpx.NewMockDoer(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "TIME_SERIES_DAILY", req.URL.Query().Get("function"))
			require.Equal(t, "compact", req.URL.Query().Get("outputsize"))
			return respond(http.StatusOK, `{"Meta Data": {"2. Symbol": "VTI"}, "Time Series (Daily)": {
				"2025-06-02": {"1. open": "250.10", "2. high": "252.00", "3. low": "249.80", "4. close": "251.40", "5. volume": "3100000"},
				"2025-05-30": {"1. open": "249.00", "2. high": "250.50", "3. low": "248.70", "4. close": "250.00", "5. volume": "2900000"},
				"2025-05-01": {"1. open": "240.00", "2. high": "241.00", "3. low": "239.00", "4. close": "240.50", "5. volume": "2000000"}
			}}`), nil
		}).
		Times(1)

	r := provider.DateRange{From: time.Date(2025, 5, 29, 0, 0, 0, 0, time.UTC), To: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)}
	bars, err := newClient(httpClient).History(t.Context(), provider.Instrument{ID: "vti", Symbol: "VTI"}, r)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, time.Date(2025, 5, 30, 0, 0, 0, 0, time.UTC), bars[0].Date)
	require.Equal(t, "251.4", bars[1].Close.String())
	require.Equal(t, int64(3100000), *bars[1].Volume)
	require.Equal(t, "vti", bars[1].InstrumentID)
}

func TestHistory_EmptyRangeIsNotFound(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := mock_httpx.NewMockDoer(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "full", req.URL.Query().Get("outputsize"))
			return respond(http.StatusOK, `{"Time Series (Daily)": {
				"2025-06-02": {"1. open": "250.10", "2. high": "252.00", "3. low": "249.80", "4. close": "251.40", "5. volume": "3100000"}
			}}`), nil
		}).
		Times(1)

	r := provider.DateRange{From: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)}
	_, err := newClient(httpClient).History(t.Context(), provider.Instrument{ID: "vti", Symbol: "VTI"}, r)
	require.ErrorIs(t, err, provider.ErrNotFound)
}
