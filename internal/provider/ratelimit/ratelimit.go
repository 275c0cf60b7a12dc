package ratelimit

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrBudgetExhausted labels a call denied by this process's own budget.
var ErrBudgetExhausted = errors.New("provider budget exhausted")

// Limits describes the quota of one provider. A limit <= 0 means unlimited.
// Buckets are computed in Location (UTC when nil).
type Limits struct {
	Daily    int
	Hourly   int
	Location *time.Location
}

// Budget is a read-only snapshot of a provider's consumption.
type Budget struct {
	Provider          string    `json:"provider"`
	DailyLimit        int       `json:"daily_limit"`
	HourlyLimit       int       `json:"hourly_limit,omitempty"`
	UsedToday         int       `json:"used_today"`
	UsedThisHour      int       `json:"used_this_hour"`
	RemainingToday    int       `json:"remaining_today"`
	RemainingThisHour int       `json:"remaining_this_hour,omitempty"`
	DayResetsAt       time.Time `json:"day_resets_at"`
	HourResetsAt      time.Time `json:"hour_resets_at"`
}

type counter struct {
	day, hour int // bucket keys
	usedDay   int
	usedHour  int
}

// Limiter tracks per-provider daily and hourly call budgets. Counters reset
// lazily the first time they are touched in a new bucket.
type Limiter struct {
	mu       sync.Mutex
	limits   map[string]Limits
	counters map[string]*counter
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(limits map[string]Limits, opts ...Option) *Limiter {
	l := &Limiter{
		limits:   make(map[string]Limits, len(limits)),
		counters: make(map[string]*counter, len(limits)),
		now:      time.Now,
	}
	for name, lim := range limits {
		if lim.Location == nil {
			lim.Location = time.UTC
		}
		l.limits[name] = lim
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func bucketKeys(t time.Time) (day, hour int) {
	y, m, d := t.Date()
	day = y*10000 + int(m)*100 + d
	return day, day*100 + t.Hour()
}

// TryAcquire consumes one call from the provider's budget. It returns false,
// leaving the counters untouched, when either window is exhausted.
func (l *Limiter) TryAcquire(provider string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limits[provider]
	if !ok {
		return true
	}
	day, hour := bucketKeys(l.now().In(lim.Location))
	c := l.counters[provider]
	if c == nil {
		c = &counter{day: day, hour: hour}
		l.counters[provider] = c
	}
	if c.day != day {
		c.day, c.usedDay = day, 0
	}
	if c.hour != hour {
		c.hour, c.usedHour = hour, 0
	}

	if lim.Daily > 0 && c.usedDay >= lim.Daily {
		return false
	}
	if lim.Hourly > 0 && c.usedHour >= lim.Hourly {
		return false
	}
	c.usedDay++
	c.usedHour++
	return true
}

// Budget returns the provider's current usage. Counters from a past bucket
// are reported as zero.
func (l *Limiter) Budget(provider string) Budget {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot(provider)
}

// Budgets returns snapshots of every configured provider, sorted by name.
func (l *Limiter) Budgets() []Budget {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make([]string, 0, len(l.limits))
	for name := range l.limits {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Budget, 0, len(names))
	for _, name := range names {
		out = append(out, l.snapshot(name))
	}
	return out
}

func (l *Limiter) snapshot(provider string) Budget {
	lim, ok := l.limits[provider]
	if !ok {
		lim = Limits{Location: time.UTC}
	}
	local := l.now().In(lim.Location)
	day, hour := bucketKeys(local)

	b := Budget{
		Provider:     provider,
		DailyLimit:   lim.Daily,
		HourlyLimit:  lim.Hourly,
		DayResetsAt:  time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, lim.Location),
		HourResetsAt: time.Date(local.Year(), local.Month(), local.Day(), local.Hour()+1, 0, 0, 0, lim.Location),
	}
	if c := l.counters[provider]; c != nil {
		if c.day == day {
			b.UsedToday = c.usedDay
		}
		if c.hour == hour {
			b.UsedThisHour = c.usedHour
		}
	}
	if lim.Daily > 0 {
		b.RemainingToday = max(lim.Daily-b.UsedToday, 0)
	}
	if lim.Hourly > 0 {
		b.RemainingThisHour = max(lim.Hourly-b.UsedThisHour, 0)
	}
	return b
}
