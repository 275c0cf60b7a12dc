package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketdata/internal/calendar"
)

func ny(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(y, m, d, hh, mm, 0, 0, loc)
}

func TestIsMarketOpen_ClosedOnEveryHoliday(t *testing.T) {
	t.Parallel()

	cal := calendar.Default()
	for _, h := range calendar.DefaultExchanges()["NYSE"].Holidays {
		day, err := time.Parse("2006-01-02", h)
		require.NoError(t, err)
		ts := ny(t, day.Year(), day.Month(), day.Day(), 10, 0)
		require.Falsef(t, cal.IsTradingDay(ts, "NYSE"), "%s should not be a trading day", h)
		require.Falsef(t, cal.IsMarketOpen(ts, "NYSE"), "%s should be closed", h)
	}
}

func TestIsMarketOpen_ClosedOnWeekends(t *testing.T) {
	t.Parallel()

	cal := calendar.Default()
	// 2025-06-07 is a Saturday.
	for d := 7; d <= 8; d++ {
		for _, hh := range []int{0, 10, 12, 15} {
			ts := ny(t, 2025, time.June, d, hh, 0)
			require.False(t, cal.IsMarketOpen(ts, "NYSE"))
			require.False(t, cal.IsMarketOpen(ts, "NASDAQ"))
		}
	}
}

func TestIsMarketOpen_SessionBounds(t *testing.T) {
	t.Parallel()

	cal := calendar.Default()
	// 2025-06-03 is a Tuesday.
	require.True(t, cal.IsTradingDay(ny(t, 2025, time.June, 3, 0, 0), "NYSE"))
	require.True(t, cal.IsMarketOpen(ny(t, 2025, time.June, 3, 10, 0), "NYSE"))
	require.True(t, cal.IsMarketOpen(ny(t, 2025, time.June, 3, 9, 30), "NYSE"))
	require.True(t, cal.IsMarketOpen(ny(t, 2025, time.June, 3, 15, 59), "NYSE"))
	require.False(t, cal.IsMarketOpen(ny(t, 2025, time.June, 3, 9, 29), "NYSE"))
	require.False(t, cal.IsMarketOpen(ny(t, 2025, time.June, 3, 16, 0), "NYSE"))

	// Same instant expressed in UTC.
	require.True(t, cal.IsMarketOpen(time.Date(2025, time.June, 3, 14, 0, 0, 0, time.UTC), "NYSE"))
}

func TestIsMarketOpen_OtherTimezones(t *testing.T) {
	t.Parallel()

	cal := calendar.Default()
	// 08:30 UTC on a Tuesday in June is 09:30 London and 10:30 Berlin.
	ts := time.Date(2025, time.June, 3, 8, 30, 0, 0, time.UTC)
	require.True(t, cal.IsMarketOpen(ts, "LSE"))
	require.True(t, cal.IsMarketOpen(ts, "xetra"))
	require.False(t, cal.IsMarketOpen(ts, "NYSE"))
	require.False(t, cal.IsMarketOpen(ts, "NASDAQ"))
}

func TestExchange_UnknownUsesFallback(t *testing.T) {
	t.Parallel()

	cal := calendar.Default()
	require.Equal(t, "NYSE", cal.Exchange("BATS").Name)
	require.True(t, cal.IsMarketOpen(ny(t, 2025, time.June, 3, 10, 0), ""))
}

func TestTradingTimeBetween(t *testing.T) {
	t.Parallel()

	cal := calendar.Default()
	cases := []struct {
		name     string
		from, to time.Time
		want     time.Duration
	}{
		{
			name: "inside one session",
			from: ny(t, 2025, time.June, 3, 10, 0),
			to:   ny(t, 2025, time.June, 3, 10, 45),
			want: 45 * time.Minute,
		},
		{
			name: "over a weekend",
			from: ny(t, 2025, time.June, 6, 15, 0),
			to:   ny(t, 2025, time.June, 9, 10, 0),
			want: 90 * time.Minute,
		},
		{
			name: "weekend only",
			from: ny(t, 2025, time.June, 6, 16, 5),
			to:   ny(t, 2025, time.June, 9, 9, 0),
			want: 0,
		},
		{
			name: "across a holiday",
			from: ny(t, 2025, time.July, 2, 15, 0),
			to:   ny(t, 2025, time.July, 7, 9, 45),
			want: 7*time.Hour + 45*time.Minute,
		},
		{
			name: "across daylight saving change",
			from: ny(t, 2025, time.March, 7, 15, 0),
			to:   ny(t, 2025, time.March, 10, 10, 0),
			want: 90 * time.Minute,
		},
		{
			name: "inverted",
			from: ny(t, 2025, time.June, 3, 11, 0),
			to:   ny(t, 2025, time.June, 3, 10, 0),
			want: 0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, cal.TradingTimeBetween(tc.from, tc.to, "NYSE"))
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := calendar.New(map[string]calendar.ExchangeConfig{
		"NYSE": {Timezone: "Mars/Olympus"},
	}, "NYSE")
	require.Error(t, err)

	_, err = calendar.New(map[string]calendar.ExchangeConfig{
		"NYSE": {Open: "16:00", Close: "09:30"},
	}, "NYSE")
	require.Error(t, err)

	_, err = calendar.New(map[string]calendar.ExchangeConfig{
		"NYSE": {Holidays: []string{"25-12-2025"}},
	}, "NYSE")
	require.Error(t, err)

	_, err = calendar.New(map[string]calendar.ExchangeConfig{"NYSE": {}}, "LSE")
	require.Error(t, err)
}

func TestNew_CustomHolidays(t *testing.T) {
	t.Parallel()

	cal, err := calendar.New(map[string]calendar.ExchangeConfig{
		"tse": {Timezone: "Asia/Tokyo", Open: "09:00", Close: "15:30", Holidays: []string{"2025-06-03"}},
	}, "TSE")
	require.NoError(t, err)

	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	require.False(t, cal.IsMarketOpen(time.Date(2025, time.June, 3, 10, 0, 0, 0, loc), "TSE"))
	require.True(t, cal.IsMarketOpen(time.Date(2025, time.June, 4, 10, 0, 0, 0, loc), "TSE"))
}
