// Package calendar answers trading-session questions for exchanges.
// Half-day sessions are not modeled.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ExchangeConfig is the configuration shape of one exchange.
type ExchangeConfig struct {
	Timezone string   `json:"timezone" mapstructure:"timezone"`
	Open     string   `json:"open" mapstructure:"open"`
	Close    string   `json:"close" mapstructure:"close"`
	Holidays []string `json:"holidays" mapstructure:"holidays"`
}

// Clock is a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, c.Minute, 0, 0, day.Location())
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Exchange holds the session rules of a single exchange.
type Exchange struct {
	Name     string
	Location *time.Location
	Open     Clock
	Close    Clock
	holidays map[string]struct{}
}

// NewExchange builds an Exchange from its configuration.
func NewExchange(name string, cfg ExchangeConfig) (*Exchange, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("exchange %s: load timezone: %w", name, err)
	}
	openStr, closeStr := cfg.Open, cfg.Close
	if openStr == "" {
		openStr = "09:30"
	}
	if closeStr == "" {
		closeStr = "16:00"
	}
	open, err := ParseClock(openStr)
	if err != nil {
		return nil, fmt.Errorf("exchange %s: %w", name, err)
	}
	closeAt, err := ParseClock(closeStr)
	if err != nil {
		return nil, fmt.Errorf("exchange %s: %w", name, err)
	}
	if closeAt.Hour*60+closeAt.Minute <= open.Hour*60+open.Minute {
		return nil, fmt.Errorf("exchange %s: close %s is not after open %s", name, closeAt, open)
	}
	ex := &Exchange{
		Name:     strings.ToUpper(name),
		Location: loc,
		Open:     open,
		Close:    closeAt,
		holidays: make(map[string]struct{}, len(cfg.Holidays)),
	}
	for _, h := range cfg.Holidays {
		d, err := time.Parse(dateLayout, strings.TrimSpace(h))
		if err != nil {
			return nil, fmt.Errorf("exchange %s: holiday %q: %w", name, h, err)
		}
		ex.holidays[d.Format(dateLayout)] = struct{}{}
	}
	return ex, nil
}

func (e *Exchange) tradingDay(local time.Time) bool {
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := e.holidays[local.Format(dateLayout)]
	return !holiday
}

// Calendar resolves exchanges by name. Unknown names use the fallback exchange.
type Calendar struct {
	exchanges map[string]*Exchange
	fallback  *Exchange
}

// New builds a calendar. fallback names the exchange used for unknown names
// and must be present in cfgs.
func New(cfgs map[string]ExchangeConfig, fallback string) (*Calendar, error) {
	c := &Calendar{exchanges: make(map[string]*Exchange, len(cfgs))}
	for name, cfg := range cfgs {
		ex, err := NewExchange(name, cfg)
		if err != nil {
			return nil, err
		}
		c.exchanges[ex.Name] = ex
	}
	fb, ok := c.exchanges[strings.ToUpper(fallback)]
	if !ok {
		return nil, fmt.Errorf("fallback exchange %q not configured", fallback)
	}
	c.fallback = fb
	return c, nil
}

// Default returns the built-in calendar with NYSE as fallback.
func Default() *Calendar {
	c, err := New(DefaultExchanges(), "NYSE")
	if err != nil {
		panic(err)
	}
	return c
}

// Exchange returns the rules for name, or the fallback exchange.
func (c *Calendar) Exchange(name string) *Exchange {
	if ex, ok := c.exchanges[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return ex
	}
	return c.fallback
}

// IsTradingDay reports whether the calendar date of t, in the exchange's
// timezone, is a weekday outside the holiday set.
func (c *Calendar) IsTradingDay(t time.Time, exchange string) bool {
	ex := c.Exchange(exchange)
	return ex.tradingDay(t.In(ex.Location))
}

// IsMarketOpen reports whether t falls inside the exchange's regular session.
func (c *Calendar) IsMarketOpen(t time.Time, exchange string) bool {
	ex := c.Exchange(exchange)
	local := t.In(ex.Location)
	if !ex.tradingDay(local) {
		return false
	}
	return !local.Before(ex.Open.on(local)) && local.Before(ex.Close.on(local))
}

// TradingTimeBetween sums the regular-session time of the exchange that
// elapsed between from and to.
func (c *Calendar) TradingTimeBetween(from, to time.Time, exchange string) time.Duration {
	if !to.After(from) {
		return 0
	}
	ex := c.Exchange(exchange)
	f, t := from.In(ex.Location), to.In(ex.Location)

	var total time.Duration
	day := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, ex.Location)
	for !day.After(t) {
		if ex.tradingDay(day) {
			start, end := ex.Open.on(day), ex.Close.on(day)
			if f.After(start) {
				start = f
			}
			if t.Before(end) {
				end = t
			}
			if end.After(start) {
				total += end.Sub(start)
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, ex.Location)
	}
	return total
}
