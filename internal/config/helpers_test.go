package config_test

import (
	"marketdata/internal/calendar"
	"marketdata/internal/provider"
)

func calendarConfig(tz, open, close string) calendar.ExchangeConfig {
	return calendar.ExchangeConfig{Timezone: tz, Open: open, Close: close}
}

func instrument(id string) provider.Instrument {
	return provider.Instrument{ID: id, Symbol: id}
}
