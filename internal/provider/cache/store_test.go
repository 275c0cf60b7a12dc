package cache_test

import (
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketdata/internal/provider"
	"marketdata/internal/provider/cache"
)

func stores(t *testing.T) map[string]cache.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]cache.Store{
		"memory": cache.NewMemoryStore(),
		"redis":  cache.NewRedisStore(client, "md:"),
	}
}

func record(id, price string, fetchedAt time.Time) cache.Record {
	return cache.Record{
		InstrumentID: id,
		Symbol:       id,
		Price:        decimal.RequireFromString(price),
		Currency:     "USD",
		AsOf:         fetchedAt.Add(-5 * time.Second),
		FetchedAt:    fetchedAt,
		Provider:     "finnhub",
		StoredAt:     fetchedAt,
	}
}

func requireSameRecord(t *testing.T, want, got cache.Record) {
	t.Helper()
	require.Equal(t, want.InstrumentID, got.InstrumentID)
	require.Equal(t, want.Symbol, got.Symbol)
	require.Truef(t, want.Price.Equal(got.Price), "price: want %s got %s", want.Price, got.Price)
	require.Equal(t, want.Currency, got.Currency)
	require.True(t, want.AsOf.Equal(got.AsOf))
	require.True(t, want.FetchedAt.Equal(got.FetchedAt))
	require.Equal(t, want.Provider, got.Provider)
}

func TestStore_UpsertThenLatestReturnsLastWritten(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			t0 := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

			_, ok, err := s.LatestQuote(ctx, "vti")
			require.NoError(t, err)
			require.False(t, ok)

			first := record("vti", "250.10", t0)
			second := record("vti", "251.40", t0.Add(time.Minute))

			written, err := s.UpsertQuote(ctx, first)
			require.NoError(t, err)
			require.True(t, written)
			written, err = s.UpsertQuote(ctx, second)
			require.NoError(t, err)
			require.True(t, written)

			got, ok, err := s.LatestQuote(ctx, "vti")
			require.NoError(t, err)
			require.True(t, ok)
			requireSameRecord(t, second, got)
		})
	}
}

func TestStore_OlderFetchDoesNotOverwriteNewer(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			t0 := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
			newer := record("vti", "251.40", t0.Add(time.Minute))
			older := record("vti", "250.10", t0)

			_, err := s.UpsertQuote(ctx, newer)
			require.NoError(t, err)
			written, err := s.UpsertQuote(ctx, older)
			require.NoError(t, err)
			require.False(t, written)

			got, ok, err := s.LatestQuote(ctx, "vti")
			require.NoError(t, err)
			require.True(t, ok)
			requireSameRecord(t, newer, got)
		})
	}
}

func TestStore_EqualFetchTimeLaterWriteWins(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			t0 := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
			a := record("vti", "250.10", t0)
			b := record("vti", "250.20", t0)
			b.Provider = "alphavantage"

			_, err := s.UpsertQuote(ctx, a)
			require.NoError(t, err)
			_, err = s.UpsertQuote(ctx, b)
			require.NoError(t, err)

			got, _, err := s.LatestQuote(ctx, "vti")
			require.NoError(t, err)
			requireSameRecord(t, b, got)
		})
	}
}

func TestStore_ConcurrentWritersKeepNewest(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			t0 := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)

			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					rec := record("vti", decimal.NewFromInt(int64(200+i)).String(), t0.Add(time.Duration(i)*time.Second))
					_, err := s.UpsertQuote(ctx, rec)
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			got, ok, err := s.LatestQuote(ctx, "vti")
			require.NoError(t, err)
			require.True(t, ok)
			require.True(t, got.FetchedAt.Equal(t0.Add(49*time.Second)))
			require.Equal(t, "249", got.Price.String())
		})
	}
}

func TestStore_BarsKeyedByDateLatestWins(t *testing.T) {
	t.Parallel()

	vol := int64(1200)
	bar := func(day int, closePx string) provider.PriceBar {
		return provider.PriceBar{
			InstrumentID: "vti",
			Date:         time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC),
			Open:         decimal.RequireFromString("250"),
			High:         decimal.RequireFromString("252"),
			Low:          decimal.RequireFromString("249"),
			Close:        decimal.RequireFromString(closePx),
			Volume:       &vol,
			Provider:     "yahoo",
		}
	}

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			require.NoError(t, s.PutBars(ctx, []provider.PriceBar{bar(4, "251"), bar(2, "250.5"), bar(3, "250.9")}))
			require.NoError(t, s.PutBars(ctx, []provider.PriceBar{bar(3, "251.1")}))

			got, err := s.Bars(ctx, "vti", provider.DateRange{
				From: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC),
			})
			require.NoError(t, err)
			require.Len(t, got, 2)
			require.Equal(t, 3, got[0].Date.Day())
			require.Equal(t, "251.1", got[0].Close.String())
			require.Equal(t, 4, got[1].Date.Day())
			require.Equal(t, int64(1200), *got[1].Volume)

			none, err := s.Bars(ctx, "bnd", provider.DateRange{From: time.Time{}, To: time.Now()})
			require.NoError(t, err)
			require.Empty(t, none)
		})
	}
}
