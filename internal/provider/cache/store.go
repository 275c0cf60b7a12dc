package cache

import (
	"context"
	"sort"
	"sync"

	"marketdata/internal/provider"
)

// Store is the persistence contract behind the cache. Any backend that keeps
// the newest record per instrument by FetchedAt satisfies it.
type Store interface {
	// UpsertQuote replaces the instrument's record unless the stored one was
	// fetched later. It reports whether rec was written.
	UpsertQuote(ctx context.Context, rec Record) (bool, error)
	LatestQuote(ctx context.Context, instrumentID string) (Record, bool, error)
	PutBars(ctx context.Context, bars []provider.PriceBar) error
	Bars(ctx context.Context, instrumentID string, r provider.DateRange) ([]provider.PriceBar, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	quotes map[string]Record
	bars   map[string]map[string]provider.PriceBar // instrument -> date -> bar
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes: make(map[string]Record),
		bars:   make(map[string]map[string]provider.PriceBar),
	}
}

func (m *MemoryStore) UpsertQuote(_ context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.quotes[rec.InstrumentID]; ok && cur.FetchedAt.After(rec.FetchedAt) {
		return false, nil
	}
	m.quotes[rec.InstrumentID] = rec
	return true, nil
}

func (m *MemoryStore) LatestQuote(_ context.Context, instrumentID string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.quotes[instrumentID]
	return rec, ok, nil
}

func (m *MemoryStore) PutBars(_ context.Context, bars []provider.PriceBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		byDate := m.bars[b.InstrumentID]
		if byDate == nil {
			byDate = make(map[string]provider.PriceBar)
			m.bars[b.InstrumentID] = byDate
		}
		byDate[b.Date.Format(dateLayout)] = b
	}
	return nil
}

func (m *MemoryStore) Bars(_ context.Context, instrumentID string, r provider.DateRange) ([]provider.PriceBar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]provider.PriceBar, 0, len(m.bars[instrumentID]))
	for _, b := range m.bars[instrumentID] {
		if r.Contains(b.Date) {
			out = append(out, b)
		}
	}
	sortBars(out)
	return out, nil
}

const dateLayout = "2006-01-02"

func sortBars(bars []provider.PriceBar) {
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}
