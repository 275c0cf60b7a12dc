// Package aggregate folds per-instrument cache state into the summaries
// reported by status endpoints.
package aggregate

import (
	"sort"
	"time"

	"marketdata/internal/provider"
)

// Observation is the cached state of one tracked instrument.
type Observation struct {
	InstrumentID string
	Symbol       string
	// Age is trading time elapsed since the cached quote was fetched.
	Age time.Duration
	// Missing is set when nothing is cached for the instrument.
	Missing bool
}

// StaleInstrument is one entry of a FreshnessReport.
type StaleInstrument struct {
	InstrumentID string `json:"instrument_id"`
	Symbol       string `json:"symbol"`
	AgeMinutes   int    `json:"age_minutes"`
	Missing      bool   `json:"missing,omitempty"`
}

// FreshnessReport summarizes which tracked instruments need a refresh.
type FreshnessReport struct {
	AllFresh bool              `json:"all_fresh"`
	Stale    []StaleInstrument `json:"stale"`
}

// Freshness builds a report from observations. An observation is stale when
// it is missing or its age reaches threshold.
// Missing instruments sort first, then oldest first, then by symbol.
func Freshness(obs []Observation, threshold time.Duration) FreshnessReport {
	stale := make([]StaleInstrument, 0)
	for _, o := range obs {
		if !o.Missing && o.Age < threshold {
			continue
		}
		s := StaleInstrument{InstrumentID: o.InstrumentID, Symbol: o.Symbol, Missing: o.Missing}
		if !o.Missing {
			s.AgeMinutes = int(o.Age / time.Minute)
		}
		stale = append(stale, s)
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].Missing != stale[j].Missing {
			return stale[i].Missing
		}
		if stale[i].AgeMinutes != stale[j].AgeMinutes {
			return stale[i].AgeMinutes > stale[j].AgeMinutes
		}
		return stale[i].Symbol < stale[j].Symbol
	})
	return FreshnessReport{AllFresh: len(stale) == 0, Stale: stale}
}

// LatestByInstrument collapses quotes to the newest per instrument id by
// FetchedAt. For equal fetch times, later input wins. Output is sorted by symbol.
func LatestByInstrument(quotes []provider.Quote) []provider.Quote {
	latest := make(map[string]provider.Quote, len(quotes))
	for _, q := range quotes {
		if cur, ok := latest[q.InstrumentID]; ok && q.FetchedAt.Before(cur.FetchedAt) {
			continue
		}
		latest[q.InstrumentID] = q
	}

	out := make([]provider.Quote, 0, len(latest))
	for _, q := range latest {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].InstrumentID < out[j].InstrumentID
	})
	return out
}
