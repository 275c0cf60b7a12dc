package calendar

// DefaultExchanges returns session hours and observed holidays for the
// exchanges the service knows out of the box. Extend holiday lists via
// configuration as new years are published.
func DefaultExchanges() map[string]ExchangeConfig {
	us := []string{
		"2025-01-01", "2025-01-09", "2025-01-20", "2025-02-17", "2025-04-18",
		"2025-05-26", "2025-06-19", "2025-07-04", "2025-09-01", "2025-11-27",
		"2025-12-25",
		"2026-01-01", "2026-01-19", "2026-02-16", "2026-04-03", "2026-05-25",
		"2026-06-19", "2026-07-03", "2026-09-07", "2026-11-26", "2026-12-25",
	}
	return map[string]ExchangeConfig{
		"NYSE":   {Timezone: "America/New_York", Open: "09:30", Close: "16:00", Holidays: us},
		"NASDAQ": {Timezone: "America/New_York", Open: "09:30", Close: "16:00", Holidays: us},
		"ARCA":   {Timezone: "America/New_York", Open: "09:30", Close: "16:00", Holidays: us},
		"LSE": {Timezone: "Europe/London", Open: "08:00", Close: "16:30", Holidays: []string{
			"2025-01-01", "2025-04-18", "2025-04-21", "2025-05-05", "2025-05-26",
			"2025-08-25", "2025-12-25", "2025-12-26",
			"2026-01-01", "2026-04-03", "2026-04-06", "2026-05-04", "2026-05-25",
			"2026-08-31", "2026-12-25", "2026-12-28",
		}},
		"XETRA": {Timezone: "Europe/Berlin", Open: "09:00", Close: "17:30", Holidays: []string{
			"2025-01-01", "2025-04-18", "2025-04-21", "2025-05-01", "2025-12-24",
			"2025-12-25", "2025-12-26", "2025-12-31",
			"2026-01-01", "2026-04-03", "2026-04-06", "2026-05-01", "2026-12-24",
			"2026-12-25", "2026-12-31",
		}},
	}
}
